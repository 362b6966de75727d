package domain

import "time"

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// Principal is the authenticated identity attached to a request after
// token verification. It is reconstructed per request, never persisted.
type Principal struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Bio          string    `json:"bio,omitempty"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	Country      string    `json:"country,omitempty"`
	Role         UserRole  `json:"role"`
	IsActive     bool      `json:"isActive"`
	IsVerified   bool      `json:"isVerified"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Profile is the reduced author projection attached to posts and stories.
type Profile struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	AvatarURL  string `json:"avatarUrl,omitempty"`
	IsVerified bool   `json:"isVerified"`
}

// Profile returns the public projection of a user.
func (u User) Profile() Profile {
	return Profile{
		ID:         u.ID,
		Name:       u.Name,
		AvatarURL:  u.AvatarURL,
		IsVerified: u.IsVerified,
	}
}

// LinkPreview holds metadata extracted from an external link on a post.
type LinkPreview struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

type Post struct {
	ID           string       `json:"id"`
	AuthorID     string       `json:"authorId"`
	Author       *Profile     `json:"author,omitempty"`
	VideoURL     string       `json:"videoUrl"`
	Caption      string       `json:"caption,omitempty"`
	ThumbnailURL string       `json:"thumbnailUrl,omitempty"`
	Duration     float64      `json:"duration,omitempty"`
	LinkPreview  *LinkPreview `json:"linkPreview,omitempty"`
	IsActive     bool         `json:"-"`
	CreatedAt    time.Time    `json:"createdAt"`
}

type Story struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Author    *Profile  `json:"author,omitempty"`
	MediaURL  string    `json:"mediaUrl"`
	Caption   string    `json:"caption,omitempty"`
	ViewCount int64     `json:"viewCount"`
	IsActive  bool      `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// Expired reports whether the story's lifetime has passed at the given instant.
func (s Story) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// StoryView records that a user saw a story. At most one row exists per
// (StoryID, UserID) pair; the story's own author never gets a row.
type StoryView struct {
	StoryID  string    `json:"storyId"`
	UserID   string    `json:"userId"`
	ViewedAt time.Time `json:"viewedAt"`
}

type Follow struct {
	FollowerID string    `json:"followerId"`
	FolloweeID string    `json:"followeeId"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Country struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Pagination is the envelope returned alongside paginated listings.
// TotalPages is ceil(Total/Limit), computed fresh from a count query.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}

// NewPagination computes the envelope for a page/limit pair and a total count.
func NewPagination(page, limit int, total int64) Pagination {
	totalPages := total / int64(limit)
	if total%int64(limit) != 0 {
		totalPages++
	}
	return Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}
}
