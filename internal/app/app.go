// Package app holds the application core: every operation the HTTP layer
// exposes is implemented here against the Store interface, with typed
// errors the server maps to HTTP statuses.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"clipstream/internal/cache"
	"clipstream/internal/notify"
	"clipstream/internal/preview"
	"clipstream/internal/store"
	"clipstream/internal/token"
	"clipstream/internal/util"
	"clipstream/pkg/auth"
	"clipstream/pkg/domain"
)

const (
	defaultStoryTTL    = 24 * time.Hour
	countriesCacheKey  = "countries:v1"
	countriesCacheTTL  = 12 * time.Hour
	linkPreviewTimeout = 3 * time.Second
)

// Config wires the application core's dependencies.
type Config struct {
	Store    store.Store
	Codec    *token.Codec
	Cache    cache.Cache
	Events   notify.Publisher
	Previews preview.Fetcher
	StoryTTL time.Duration
}

// App implements the domain operations behind the HTTP handlers.
type App struct {
	store    store.Store
	codec    *token.Codec
	cache    cache.Cache
	events   notify.Publisher
	previews preview.Fetcher
	storyTTL time.Duration
	now      func() time.Time
}

// New constructs the application core.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Codec == nil {
		return nil, fmt.Errorf("token codec is required")
	}
	events := cfg.Events
	if events == nil {
		events = notify.NopPublisher{}
	}
	cacheImpl := cfg.Cache
	if cacheImpl == nil {
		cacheImpl = cache.NewMemoryCache()
	}
	storyTTL := cfg.StoryTTL
	if storyTTL <= 0 {
		storyTTL = defaultStoryTTL
	}
	return &App{
		store:    cfg.Store,
		codec:    cfg.Codec,
		cache:    cacheImpl,
		events:   events,
		previews: cfg.Previews,
		storyTTL: storyTTL,
		now:      time.Now,
	}, nil
}

// Register creates an account and issues a session token.
func (a *App) Register(email, password, name, country string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, "", err
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, "", ErrEmailAlreadyExists
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	now := a.now().UTC()
	user := domain.User{
		ID:           util.NewID(),
		Email:        email,
		PasswordHash: passwordHash,
		Name:         strings.TrimSpace(name),
		Country:      strings.TrimSpace(country),
		Role:         domain.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.CreateUser(user); err != nil {
		return domain.User{}, "", fmt.Errorf("create user: %w", err)
	}
	signed, err := a.codec.Issue(domain.Principal{UserID: user.ID, Email: user.Email})
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, signed, nil
}

// Login validates credentials and issues a session token.
func (a *App) Login(email, password string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !user.IsActive {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	signed, err := a.codec.Issue(domain.Principal{UserID: user.ID, Email: user.Email})
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, signed, nil
}

// LookupActiveUser is the per-request liveness check behind the auth gate:
// a single storage read, never cached, so deactivation takes effect on the
// next call.
func (a *App) LookupActiveUser(id string) (domain.User, bool, error) {
	user, ok, err := a.store.GetUserByID(id)
	if err != nil {
		return domain.User{}, false, fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !user.IsActive {
		return domain.User{}, false, nil
	}
	return user, true, nil
}

// CreatePostInput carries the validated fields of a post creation request.
type CreatePostInput struct {
	VideoURL     string
	Caption      string
	ThumbnailURL string
	Duration     float64
	LinkURL      string
}

// CreatePost stores a post for the principal. The author is always the
// caller; a client-supplied author id is never trusted. A link preview is
// resolved best effort and its absence never fails the request.
func (a *App) CreatePost(ctx context.Context, p domain.Principal, input CreatePostInput) (domain.Post, error) {
	post := domain.Post{
		ID:           util.NewID(),
		AuthorID:     p.UserID,
		VideoURL:     input.VideoURL,
		Caption:      input.Caption,
		ThumbnailURL: input.ThumbnailURL,
		Duration:     input.Duration,
		IsActive:     true,
		CreatedAt:    a.now().UTC(),
	}
	if input.LinkURL != "" && a.previews != nil {
		previewCtx, cancel := context.WithTimeout(ctx, linkPreviewTimeout)
		linkPreview, err := a.previews.Fetch(previewCtx, input.LinkURL)
		cancel()
		if err != nil {
			util.LoggerFromContext(ctx).Warn("link preview failed", "url", input.LinkURL, "err", err)
		} else {
			post.LinkPreview = &linkPreview
		}
	}
	if err := a.store.CreatePost(post); err != nil {
		return domain.Post{}, fmt.Errorf("create post: %w", err)
	}
	a.publish(ctx, notify.Event{Type: notify.EventPostCreated, ActorID: p.UserID, SubjectID: post.ID})
	if author, ok, err := a.store.GetUserByID(p.UserID); err == nil && ok {
		profile := author.Profile()
		post.Author = &profile
	}
	return post, nil
}

// ListPosts returns one feed page of active posts plus the pagination
// envelope. Page and limit are already normalized by the caller.
func (a *App) ListPosts(page, limit int) ([]domain.Post, domain.Pagination, error) {
	offset := (page - 1) * limit
	posts, total, err := a.store.ListActivePosts(offset, limit)
	if err != nil {
		return nil, domain.Pagination{}, fmt.Errorf("list posts: %w", err)
	}
	return posts, domain.NewPagination(page, limit, total), nil
}

// CreateStoryInput carries the validated fields of a story creation request.
type CreateStoryInput struct {
	MediaURL string
	Caption  string
}

// CreateStory stores a story for the principal with the default expiry.
func (a *App) CreateStory(ctx context.Context, p domain.Principal, input CreateStoryInput) (domain.Story, error) {
	now := a.now().UTC()
	story := domain.Story{
		ID:        util.NewID(),
		AuthorID:  p.UserID,
		MediaURL:  input.MediaURL,
		Caption:   input.Caption,
		IsActive:  true,
		ExpiresAt: now.Add(a.storyTTL),
		CreatedAt: now,
	}
	if err := a.store.CreateStory(story); err != nil {
		return domain.Story{}, fmt.Errorf("create story: %w", err)
	}
	a.publish(ctx, notify.Event{Type: notify.EventStoryCreated, ActorID: p.UserID, SubjectID: story.ID})
	return story, nil
}

// ListStories returns the active, unexpired stories feed.
func (a *App) ListStories() ([]domain.Story, error) {
	stories, err := a.store.ListActiveStories(a.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	return stories, nil
}

// ViewStory records that the viewer saw the story. Checks run in order:
// existence (ErrStoryNotFound), liveness (ErrStoryGone for inactive or
// expired), then the author no-op rule. Only a non-author first view adds a
// row and moves the counter; repeats are no-op successes.
func (a *App) ViewStory(storyID, viewerID string) (domain.Story, bool, error) {
	story, ok, err := a.store.GetStory(storyID)
	if err != nil {
		return domain.Story{}, false, fmt.Errorf("fetch story: %w", err)
	}
	if !ok {
		return domain.Story{}, false, ErrStoryNotFound
	}
	now := a.now().UTC()
	if !story.IsActive || story.Expired(now) {
		return domain.Story{}, false, ErrStoryGone
	}
	if story.AuthorID == viewerID {
		return story, false, nil
	}
	counted, err := a.store.RecordStoryView(storyID, viewerID, now)
	if err != nil {
		return domain.Story{}, false, fmt.Errorf("record view: %w", err)
	}
	if counted {
		story.ViewCount++
	}
	return story, counted, nil
}

// Follow creates the follow relation; duplicates are no-op successes.
func (a *App) Follow(ctx context.Context, followerID, followeeID string) error {
	if followerID == followeeID {
		return ErrSelfFollow
	}
	followee, ok, err := a.store.GetUserByID(followeeID)
	if err != nil {
		return fmt.Errorf("fetch followee: %w", err)
	}
	if !ok || !followee.IsActive {
		return ErrUserNotFound
	}
	created, err := a.store.CreateFollow(followerID, followeeID, a.now().UTC())
	if err != nil {
		return fmt.Errorf("create follow: %w", err)
	}
	if created {
		a.publish(ctx, notify.Event{Type: notify.EventUserFollowed, ActorID: followerID, SubjectID: followeeID})
	}
	return nil
}

// Unfollow removes the follow relation.
func (a *App) Unfollow(followerID, followeeID string) error {
	deleted, err := a.store.DeleteFollow(followerID, followeeID)
	if err != nil {
		return fmt.Errorf("delete follow: %w", err)
	}
	if !deleted {
		return ErrNotFollowing
	}
	return nil
}

// Suggestions returns profiles of active users the caller does not follow.
func (a *App) Suggestions(forUserID string, limit int) ([]domain.Profile, error) {
	users, err := a.store.SuggestUsers(forUserID, limit)
	if err != nil {
		return nil, fmt.Errorf("suggest users: %w", err)
	}
	profiles := make([]domain.Profile, 0, len(users))
	for _, u := range users {
		profiles = append(profiles, u.Profile())
	}
	return profiles, nil
}

// Countries returns the reference country list through the TTL cache.
// A cache failure falls through to storage.
func (a *App) Countries(ctx context.Context) ([]domain.Country, error) {
	if raw, ok, err := a.cache.Get(ctx, countriesCacheKey); err == nil && ok {
		var countries []domain.Country
		if err := json.Unmarshal(raw, &countries); err == nil {
			return countries, nil
		}
	}
	countries, err := a.store.ListCountries()
	if err != nil {
		return nil, fmt.Errorf("list countries: %w", err)
	}
	if raw, err := json.Marshal(countries); err == nil {
		if err := a.cache.Set(ctx, countriesCacheKey, raw, countriesCacheTTL); err != nil {
			util.LoggerFromContext(ctx).Warn("cache countries failed", "err", err)
		}
	}
	return countries, nil
}

func (a *App) publish(ctx context.Context, event notify.Event) {
	event.OccurredAt = a.now().UTC()
	if err := a.events.Publish(ctx, event); err != nil {
		util.LoggerFromContext(ctx).Warn("publish event failed", "type", event.Type, "err", err)
	}
}
