package store

import (
	"sort"
	"sync"
	"time"

	"clipstream/pkg/domain"
)

// MemoryStore is an in-memory Store used by tests. It mirrors the relational
// constraints that matter: unique emails, the unique (story, viewer) pair,
// and the composite follow key.
type MemoryStore struct {
	mu        sync.Mutex
	users     map[string]domain.User
	posts     map[string]domain.Post
	stories   map[string]domain.Story
	views     map[string]map[string]domain.StoryView // storyID -> viewerID -> view
	follows   map[string]map[string]domain.Follow    // followerID -> followeeID -> follow
	countries map[string]domain.Country
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]domain.User),
		posts:     make(map[string]domain.Post),
		stories:   make(map[string]domain.Story),
		views:     make(map[string]map[string]domain.StoryView),
		follows:   make(map[string]map[string]domain.Follow),
		countries: make(map[string]domain.Country),
	}
}

func (s *MemoryStore) CreateUser(u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (s *MemoryStore) HasUserEmail(email string) (bool, error) {
	_, ok, err := s.GetUserByEmail(email)
	return ok, err
}

func (s *MemoryStore) SuggestUsers(forUserID string, limit int) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	followed := s.follows[forUserID]
	var users []domain.User
	for _, u := range s.users {
		if u.ID == forUserID || !u.IsActive {
			continue
		}
		if _, ok := followed[u.ID]; ok {
			continue
		}
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	if len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (s *MemoryStore) CreatePost(p domain.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[p.ID] = p
	return nil
}

func (s *MemoryStore) ListActivePosts(offset, limit int) ([]domain.Post, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var active []domain.Post
	for _, p := range s.posts {
		if p.IsActive {
			active = append(active, p)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.After(active[j].CreatedAt)
	})
	total := int64(len(active))
	if offset >= len(active) {
		return []domain.Post{}, total, nil
	}
	end := offset + limit
	if end > len(active) {
		end = len(active)
	}
	page := make([]domain.Post, end-offset)
	copy(page, active[offset:end])
	for i := range page {
		if author, ok := s.users[page[i].AuthorID]; ok {
			profile := author.Profile()
			page[i].Author = &profile
		}
	}
	return page, total, nil
}

func (s *MemoryStore) CreateStory(st domain.Story) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stories[st.ID] = st
	return nil
}

func (s *MemoryStore) GetStory(id string) (domain.Story, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stories[id]
	return st, ok, nil
}

func (s *MemoryStore) ListActiveStories(now time.Time) ([]domain.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stories []domain.Story
	for _, st := range s.stories {
		if st.IsActive && st.ExpiresAt.After(now) {
			stories = append(stories, st)
		}
	}
	sort.Slice(stories, func(i, j int) bool {
		return stories[i].CreatedAt.After(stories[j].CreatedAt)
	})
	return stories, nil
}

func (s *MemoryStore) RecordStoryView(storyID, viewerID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.views[storyID] == nil {
		s.views[storyID] = make(map[string]domain.StoryView)
	}
	if _, ok := s.views[storyID][viewerID]; ok {
		return false, nil
	}
	s.views[storyID][viewerID] = domain.StoryView{StoryID: storyID, UserID: viewerID, ViewedAt: at}
	story := s.stories[storyID]
	story.ViewCount++
	s.stories[storyID] = story
	return true, nil
}

func (s *MemoryStore) CreateFollow(followerID, followeeID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.follows[followerID] == nil {
		s.follows[followerID] = make(map[string]domain.Follow)
	}
	if _, ok := s.follows[followerID][followeeID]; ok {
		return false, nil
	}
	s.follows[followerID][followeeID] = domain.Follow{
		FollowerID: followerID,
		FolloweeID: followeeID,
		CreatedAt:  at,
	}
	return true, nil
}

func (s *MemoryStore) DeleteFollow(followerID, followeeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.follows[followerID][followeeID]; !ok {
		return false, nil
	}
	delete(s.follows[followerID], followeeID)
	return true, nil
}

func (s *MemoryStore) SeedCountries(countries []domain.Country) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range countries {
		if _, ok := s.countries[c.Code]; !ok {
			s.countries[c.Code] = c
		}
	}
	return nil
}

func (s *MemoryStore) ListCountries() ([]domain.Country, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	countries := make([]domain.Country, 0, len(s.countries))
	for _, c := range s.countries {
		countries = append(countries, c)
	}
	sort.Slice(countries, func(i, j int) bool {
		return countries[i].Name < countries[j].Name
	})
	return countries, nil
}

// DeactivateUser flips a user's active flag off. Test helper.
func (s *MemoryStore) DeactivateUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.IsActive = false
		s.users[id] = u
	}
}

// StoryViewCount reports the number of recorded view rows for a story.
// Test helper; the production counter lives on the story itself.
func (s *MemoryStore) StoryViewCount(storyID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.views[storyID])
}

// PostCount reports the total number of stored posts, active or not.
// Test helper for asserting that rejected requests wrote nothing.
func (s *MemoryStore) PostCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.posts)
}
