package store

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"clipstream/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(
		&UserModel{},
		&PostModel{},
		&StoryModel{},
		&StoryViewModel{},
		&FollowModel{},
		&CountryModel{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// CreateUser inserts a new user row.
func (s *GormStore) CreateUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Create(&model).Error
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// SuggestUsers returns active users the given user does not follow yet.
func (s *GormStore) SuggestUsers(forUserID string, limit int) ([]domain.User, error) {
	followed := s.db.Model(&FollowModel{}).
		Select("followee_id").
		Where("follower_id = ?", forUserID)
	var models []UserModel
	err := s.db.
		Where("is_active = ?", true).
		Where("id <> ?", forUserID).
		Where("id NOT IN (?)", followed).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(models))
	for _, m := range models {
		users = append(users, userFromModel(m))
	}
	return users, nil
}

// CreatePost inserts a post row.
func (s *GormStore) CreatePost(p domain.Post) error {
	model, err := postToModel(p)
	if err != nil {
		return err
	}
	return s.db.Create(&model).Error
}

// ListActivePosts returns one page of active posts, newest first, with the
// author projection attached, and the total active count.
func (s *GormStore) ListActivePosts(offset, limit int) ([]domain.Post, int64, error) {
	var total int64
	if err := s.db.Model(&PostModel{}).Where("is_active = ?", true).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []PostModel
	err := s.db.
		Where("is_active = ?", true).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}
	posts := make([]domain.Post, 0, len(models))
	for _, m := range models {
		post, err := postFromModel(m)
		if err != nil {
			return nil, 0, err
		}
		posts = append(posts, post)
	}
	if err := s.attachAuthors(posts); err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

func (s *GormStore) attachAuthors(posts []domain.Post) error {
	if len(posts) == 0 {
		return nil
	}
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.AuthorID)
	}
	var authors []UserModel
	if err := s.db.Where("id IN ?", ids).Find(&authors).Error; err != nil {
		return err
	}
	profiles := make(map[string]domain.Profile, len(authors))
	for _, a := range authors {
		profiles[a.ID] = userFromModel(a).Profile()
	}
	for i := range posts {
		if profile, ok := profiles[posts[i].AuthorID]; ok {
			posts[i].Author = &profile
		}
	}
	return nil
}

// CreateStory inserts a story row.
func (s *GormStore) CreateStory(st domain.Story) error {
	model := storyToModel(st)
	return s.db.Create(&model).Error
}

// GetStory retrieves a story.
func (s *GormStore) GetStory(id string) (domain.Story, bool, error) {
	var model StoryModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Story{}, false, nil
		}
		return domain.Story{}, false, err
	}
	return storyFromModel(model), true, nil
}

// ListActiveStories returns active, unexpired stories, newest first.
func (s *GormStore) ListActiveStories(now time.Time) ([]domain.Story, error) {
	var models []StoryModel
	err := s.db.
		Where("is_active = ?", true).
		Where("expires_at > ?", now).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	stories := make([]domain.Story, 0, len(models))
	for _, m := range models {
		stories = append(stories, storyFromModel(m))
	}
	return stories, nil
}

// RecordStoryView upserts the view row and bumps the counter only when the
// row was actually inserted, inside one transaction. The unique index on
// (story_id, user_id) makes concurrent duplicates collapse to a single row,
// so the counter cannot drift from the distinct-viewer count.
func (s *GormStore) RecordStoryView(storyID, viewerID string, at time.Time) (bool, error) {
	created := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		view := StoryViewModel{StoryID: storyID, UserID: viewerID, ViewedAt: at}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "story_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).Create(&view)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		created = true
		return tx.Model(&StoryModel{}).
			Where("id = ?", storyID).
			UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error
	})
	return created, err
}

// CreateFollow inserts the relation; reports false when it already existed.
func (s *GormStore) CreateFollow(followerID, followeeID string, at time.Time) (bool, error) {
	follow := FollowModel{FollowerID: followerID, FolloweeID: followeeID, CreatedAt: at}
	res := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "follower_id"}, {Name: "followee_id"}},
		DoNothing: true,
	}).Create(&follow)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DeleteFollow removes the relation; reports false when it was absent.
func (s *GormStore) DeleteFollow(followerID, followeeID string) (bool, error) {
	res := s.db.Delete(&FollowModel{}, "follower_id = ? AND followee_id = ?", followerID, followeeID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SeedCountries inserts missing reference rows; existing codes are left alone.
func (s *GormStore) SeedCountries(countries []domain.Country) error {
	if len(countries) == 0 {
		return nil
	}
	models := make([]CountryModel, 0, len(countries))
	for _, c := range countries {
		models = append(models, CountryModel{Code: c.Code, Name: c.Name})
	}
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models).Error
}

// ListCountries returns all countries ordered by name.
func (s *GormStore) ListCountries() ([]domain.Country, error) {
	var models []CountryModel
	if err := s.db.Order("name ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	countries := make([]domain.Country, 0, len(models))
	for _, m := range models {
		countries = append(countries, domain.Country{Code: m.Code, Name: m.Name})
	}
	return countries, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Name:         u.Name,
		Bio:          u.Bio,
		AvatarURL:    u.AvatarURL,
		Country:      u.Country,
		Role:         string(u.Role),
		IsActive:     u.IsActive,
		IsVerified:   u.IsVerified,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Name:         m.Name,
		Bio:          m.Bio,
		AvatarURL:    m.AvatarURL,
		Country:      m.Country,
		Role:         domain.UserRole(m.Role),
		IsActive:     m.IsActive,
		IsVerified:   m.IsVerified,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func postToModel(p domain.Post) (PostModel, error) {
	model := PostModel{
		ID:           p.ID,
		AuthorID:     p.AuthorID,
		VideoURL:     p.VideoURL,
		Caption:      p.Caption,
		ThumbnailURL: p.ThumbnailURL,
		Duration:     p.Duration,
		IsActive:     p.IsActive,
		CreatedAt:    p.CreatedAt,
	}
	if p.LinkPreview != nil {
		raw, err := json.Marshal(p.LinkPreview)
		if err != nil {
			return PostModel{}, fmt.Errorf("marshal link preview: %w", err)
		}
		model.LinkPreview = raw
	}
	return model, nil
}

func postFromModel(m PostModel) (domain.Post, error) {
	post := domain.Post{
		ID:           m.ID,
		AuthorID:     m.AuthorID,
		VideoURL:     m.VideoURL,
		Caption:      m.Caption,
		ThumbnailURL: m.ThumbnailURL,
		Duration:     m.Duration,
		IsActive:     m.IsActive,
		CreatedAt:    m.CreatedAt,
	}
	if len(m.LinkPreview) > 0 {
		var preview domain.LinkPreview
		if err := json.Unmarshal(m.LinkPreview, &preview); err != nil {
			return domain.Post{}, fmt.Errorf("unmarshal link preview: %w", err)
		}
		post.LinkPreview = &preview
	}
	return post, nil
}

func storyToModel(st domain.Story) StoryModel {
	return StoryModel{
		ID:        st.ID,
		AuthorID:  st.AuthorID,
		MediaURL:  st.MediaURL,
		Caption:   st.Caption,
		ViewCount: st.ViewCount,
		IsActive:  st.IsActive,
		ExpiresAt: st.ExpiresAt,
		CreatedAt: st.CreatedAt,
	}
}

func storyFromModel(m StoryModel) domain.Story {
	return domain.Story{
		ID:        m.ID,
		AuthorID:  m.AuthorID,
		MediaURL:  m.MediaURL,
		Caption:   m.Caption,
		ViewCount: m.ViewCount,
		IsActive:  m.IsActive,
		ExpiresAt: m.ExpiresAt,
		CreatedAt: m.CreatedAt,
	}
}
