package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Name         string `gorm:"not null"`
	Bio          string
	AvatarURL    string
	Country      string
	Role         string    `gorm:"not null"`
	IsActive     bool      `gorm:"not null;default:true"`
	IsVerified   bool      `gorm:"not null;default:false"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type PostModel struct {
	ID           string `gorm:"primaryKey"`
	AuthorID     string `gorm:"not null;index"`
	VideoURL     string `gorm:"not null"`
	Caption      string `gorm:"type:text"`
	ThumbnailURL string
	Duration     float64
	LinkPreview  datatypes.JSON `gorm:"type:jsonb"`
	IsActive     bool           `gorm:"not null;default:true;index"`
	CreatedAt    time.Time      `gorm:"not null;index"`
}

type StoryModel struct {
	ID        string `gorm:"primaryKey"`
	AuthorID  string `gorm:"not null;index"`
	MediaURL  string `gorm:"not null"`
	Caption   string
	ViewCount int64     `gorm:"not null;default:0"`
	IsActive  bool      `gorm:"not null;default:true"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"not null"`
}

// StoryViewModel enforces at most one view per (story, viewer) pair via the
// composite unique index, which also makes concurrent duplicate inserts safe.
type StoryViewModel struct {
	ID       uint      `gorm:"primaryKey"`
	StoryID  string    `gorm:"not null;uniqueIndex:idx_story_viewer"`
	UserID   string    `gorm:"not null;uniqueIndex:idx_story_viewer"`
	ViewedAt time.Time `gorm:"not null"`
}

type FollowModel struct {
	FollowerID string    `gorm:"primaryKey"`
	FolloweeID string    `gorm:"primaryKey"`
	CreatedAt  time.Time `gorm:"not null"`
}

type CountryModel struct {
	Code string `gorm:"primaryKey;size:2"`
	Name string `gorm:"not null"`
}
