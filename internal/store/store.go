package store

import (
	"time"

	"clipstream/pkg/domain"
)

// Store defines persistence operations for users, posts, stories, follows,
// and reference data.
type Store interface {
	// users
	CreateUser(domain.User) error
	GetUserByID(id string) (domain.User, bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	HasUserEmail(email string) (bool, error)
	SuggestUsers(forUserID string, limit int) ([]domain.User, error)

	// posts
	CreatePost(domain.Post) error
	// ListActivePosts returns one page of active posts, newest first,
	// with the author projection attached, plus the total active count.
	ListActivePosts(offset, limit int) ([]domain.Post, int64, error)

	// stories
	CreateStory(domain.Story) error
	GetStory(id string) (domain.Story, bool, error)
	ListActiveStories(now time.Time) ([]domain.Story, error)
	// RecordStoryView inserts the (story, viewer) view row if absent and,
	// only when a row was inserted, increments the story's view counter.
	// Both effects happen in a single transaction so the counter always
	// equals the distinct-viewer count. It reports whether a row was added.
	RecordStoryView(storyID, viewerID string, at time.Time) (bool, error)

	// follows
	// CreateFollow reports false when the relation already existed.
	CreateFollow(followerID, followeeID string, at time.Time) (bool, error)
	// DeleteFollow reports false when there was nothing to delete.
	DeleteFollow(followerID, followeeID string) (bool, error)

	// reference data
	SeedCountries([]domain.Country) error
	ListCountries() ([]domain.Country, error)
}
