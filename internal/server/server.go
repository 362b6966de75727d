package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"clipstream/internal/app"
	"clipstream/internal/cache"
	"clipstream/internal/ratelimit"
	"clipstream/internal/storage"
	"clipstream/internal/token"
	"clipstream/internal/util"
	"clipstream/internal/validate"
	"clipstream/pkg/auth"
	"clipstream/pkg/domain"
)

const (
	maxBodyBytes      = 1 << 20
	defaultPageLimit  = 10
	maxPageLimit      = 50
	uploadURLExpiry   = 15 * time.Minute
	revokedKeyPrefix  = "revoked:"
	suggestionDefault = 5
	suggestionMax     = 20
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                        *app.App
	Codec                      *token.Codec
	Cache                      cache.Cache
	Objects                    storage.ObjectStore
	Redis                      *redis.Client
	LoginRateLimitPerMinute    int
	RegisterRateLimitPerMinute int
}

// Server exposes the HTTP API.
type Server struct {
	app             *app.App
	codec           *token.Codec
	cache           cache.Cache
	objects         storage.ObjectStore
	mux             *http.ServeMux
	loginLimiter    *ratelimit.FixedWindowLimiter
	registerLimiter *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured. The Redis client is
// optional; without it the auth endpoints run unlimited.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, fmt.Errorf("app is required")
	}
	if cfg.Codec == nil {
		return nil, fmt.Errorf("token codec is required")
	}
	cacheImpl := cfg.Cache
	if cacheImpl == nil {
		cacheImpl = cache.NewMemoryCache()
	}
	s := &Server{
		app:     cfg.App,
		codec:   cfg.Codec,
		cache:   cacheImpl,
		objects: cfg.Objects,
		mux:     http.NewServeMux(),
	}
	if cfg.Redis != nil {
		loginLimit := cfg.LoginRateLimitPerMinute
		if loginLimit <= 0 {
			loginLimit = 10
		}
		registerLimit := cfg.RegisterRateLimitPerMinute
		if registerLimit <= 0 {
			registerLimit = 5
		}
		var err error
		s.loginLimiter, err = ratelimit.NewFixedWindowLimiter(cfg.Redis, "clipstream:ratelimit:login", loginLimit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init login limiter: %w", err)
		}
		s.registerLimiter, err = ratelimit.NewFixedWindowLimiter(cfg.Redis, "clipstream:ratelimit:register", registerLimit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init register limiter: %w", err)
		}
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler wrapped in the middleware chain.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/auth/register", s.handleRegister)
	s.mux.HandleFunc("/auth/login", s.handleLogin)
	s.mux.Handle("/auth/logout", s.authenticated(s.handleLogout))
	s.mux.Handle("/auth/me", s.authenticated(s.handleMe))

	// posts & stories
	s.mux.Handle("/posts", s.authenticated(s.handleListPosts))
	s.mux.Handle("/posts/create", s.authenticated(s.handleCreatePost))
	s.mux.Handle("/stories", s.authenticated(s.handleStories))
	s.mux.Handle("/stories/", s.authenticated(s.handleStoryView))

	// social graph
	s.mux.Handle("/user/follow", s.authenticated(s.handleFollow))
	s.mux.Handle("/user/suggestions", s.authenticated(s.handleSuggestions))

	// media
	s.mux.Handle("/media/upload-url", s.authenticated(s.handleUploadURL))

	// reference data (no auth)
	s.mux.HandleFunc("/countries", s.handleCountries)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth gate
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

// authenticated resolves the bearer token into a live user. Failures map to
// 401 with a message naming the stage that failed: no token, a token the
// codec rejects (or one revoked by logout), or a user that no longer exists
// or was deactivated. The liveness lookup is the gate's only storage read;
// nothing about the principal is cached between requests.
func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bearer, ok := bearerToken(r)
		if !ok {
			s.audit(r, "auth.gate", "fail", "reason", "missing_token")
			writeError(w, http.StatusUnauthorized, "No token provided")
			return
		}
		principal, ok := s.codec.Verify(bearer)
		if !ok {
			s.audit(r, "auth.gate", "fail", "reason", "invalid_token")
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		if s.isRevoked(r.Context(), bearer) {
			s.audit(r, "auth.gate", "fail", "reason", "revoked_token", "user_id", principal.UserID)
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		user, ok, err := s.app.LookupActiveUser(principal.UserID)
		if err != nil {
			s.audit(r, "auth.gate", "fail", "reason", "lookup_failed")
			s.writeAppError(w, r, err)
			return
		}
		if !ok {
			s.audit(r, "auth.gate", "fail", "reason", "user_inactive", "user_id", principal.UserID)
			writeError(w, http.StatusUnauthorized, "User not found or inactive")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) isRevoked(ctx context.Context, bearer string) bool {
	_, ok, err := s.cache.Get(ctx, revokedKeyPrefix+bearer)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("revocation check failed", "err", err)
		return false
	}
	return ok
}

// auth handlers

var registerSchema = validate.Schema{
	"email":    {Required: true, Kind: validate.String, Email: true, MaxLen: 254},
	"password": {Required: true, Kind: validate.String, MaxLen: 128},
	"name":     {Required: true, Kind: validate.String, MaxLen: 100},
	"country":  {Kind: validate.String, MaxLen: 56},
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.registerLimiter, "Too many registration attempts") {
		s.audit(r, "auth.register", "rate_limited")
		return
	}
	body, ok := s.decodeBody(w, r)
	if !ok {
		return
	}
	values, fieldErrs := registerSchema.Apply(body)
	if fieldErrs != nil {
		writeValidationError(w, fieldErrs)
		return
	}
	user, signed, err := s.app.Register(values.String("email"), values.String("password"), values.String("name"), values.String("country"))
	if err != nil {
		s.audit(r, "auth.register", "fail", "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.register", "success", "user_id", user.ID)
	writeSuccess(w, http.StatusCreated, map[string]any{"token": signed, "user": user}, "Account created")
}

var loginSchema = validate.Schema{
	"email":    {Required: true, Kind: validate.String, Email: true, MaxLen: 254},
	"password": {Required: true, Kind: validate.String, MaxLen: 128},
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "Too many login attempts") {
		s.audit(r, "auth.login", "rate_limited")
		return
	}
	body, ok := s.decodeBody(w, r)
	if !ok {
		return
	}
	values, fieldErrs := loginSchema.Apply(body)
	if fieldErrs != nil {
		writeValidationError(w, fieldErrs)
		return
	}
	user, signed, err := s.app.Login(values.String("email"), values.String("password"))
	if err != nil {
		s.audit(r, "auth.login", "fail", "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.login", "success", "user_id", user.ID)
	writeSuccess(w, http.StatusOK, map[string]any{"token": signed, "user": user}, "")
}

// handleLogout revokes the presented token for its remaining lifetime, so
// the gate rejects it on the next request even though it still verifies.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	bearer, _ := bearerToken(r)
	if remaining := s.codec.Remaining(bearer); remaining > 0 {
		if err := s.cache.Set(r.Context(), revokedKeyPrefix+bearer, []byte("1"), remaining); err != nil {
			util.LoggerFromContext(r.Context()).Error("revoke token failed", "err", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
	}
	s.audit(r, "auth.logout", "success", "user_id", user.ID)
	writeSuccess(w, http.StatusOK, nil, "Logged out")
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeSuccess(w, http.StatusOK, user, "")
}

// post handlers

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	page, limit := parsePageLimit(r)
	posts, pagination, err := s.app.ListPosts(page, limit)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"posts": posts, "pagination": pagination}, "")
}

var createPostSchema = validate.Schema{
	"videoUrl":     {Required: true, Kind: validate.String, URL: true, MaxLen: 2048},
	"caption":      {Kind: validate.String, MaxLen: 500},
	"thumbnailUrl": {Kind: validate.String, URL: true, MaxLen: 2048},
	"duration":     {Kind: validate.Number, Min: validate.Float(0), Max: validate.Float(600)},
	"linkUrl":      {Kind: validate.String, URL: true, MaxLen: 2048},
}

// handleCreatePost creates a post authored by the caller. The author comes
// from the verified token, never from the body.
func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	body, ok := s.decodeBody(w, r)
	if !ok {
		return
	}
	values, fieldErrs := createPostSchema.Apply(body)
	if fieldErrs != nil {
		writeValidationError(w, fieldErrs)
		return
	}
	post, err := s.app.CreatePost(r.Context(), domain.Principal{UserID: user.ID, Email: user.Email}, app.CreatePostInput{
		VideoURL:     values.String("videoUrl"),
		Caption:      values.String("caption"),
		ThumbnailURL: values.String("thumbnailUrl"),
		Duration:     values.Number("duration"),
		LinkURL:      values.String("linkUrl"),
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, post, "Post created")
}

// story handlers

var createStorySchema = validate.Schema{
	"mediaUrl": {Required: true, Kind: validate.String, URL: true, MaxLen: 2048},
	"caption":  {Kind: validate.String, MaxLen: 500},
}

func (s *Server) handleStories(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		stories, err := s.app.ListStories()
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, map[string]any{"stories": stories}, "")
	case http.MethodPost:
		body, ok := s.decodeBody(w, r)
		if !ok {
			return
		}
		values, fieldErrs := createStorySchema.Apply(body)
		if fieldErrs != nil {
			writeValidationError(w, fieldErrs)
			return
		}
		story, err := s.app.CreateStory(r.Context(), domain.Principal{UserID: user.ID, Email: user.Email}, app.CreateStoryInput{
			MediaURL: values.String("mediaUrl"),
			Caption:  values.String("caption"),
		})
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusCreated, story, "Story created")
	default:
		methodNotAllowed(w)
	}
}

// /stories/{id}/view
func (s *Server) handleStoryView(w http.ResponseWriter, r *http.Request, user domain.User) {
	rest := strings.TrimPrefix(r.URL.Path, "/stories/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] != "view" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	story, _, err := s.app.ViewStory(parts[0], user.ID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, story, "")
}

// social graph handlers

var followSchema = validate.Schema{
	"userId": {Required: true, Kind: validate.String, MaxLen: 64},
}

func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodPost:
		body, ok := s.decodeBody(w, r)
		if !ok {
			return
		}
		values, fieldErrs := followSchema.Apply(body)
		if fieldErrs != nil {
			writeValidationError(w, fieldErrs)
			return
		}
		if err := s.app.Follow(r.Context(), user.ID, values.String("userId")); err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, nil, "Followed")
	case http.MethodDelete:
		followeeID := strings.TrimSpace(r.URL.Query().Get("userId"))
		if followeeID == "" {
			writeValidationError(w, []validate.FieldError{{Field: "userId", Message: "userId is required"}})
			return
		}
		if err := s.app.Unfollow(user.ID, followeeID); err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, nil, "Unfollowed")
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit := suggestionDefault
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > suggestionMax {
		limit = suggestionMax
	}
	profiles, err := s.app.Suggestions(user.ID, limit)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"users": profiles}, "")
}

// media handlers

var uploadURLSchema = validate.Schema{
	"fileName": {Required: true, Kind: validate.String, MaxLen: 200},
}

// handleUploadURL hands the client a presigned PUT for a video object. The
// object key is namespaced per user so presigned URLs cannot collide across
// accounts.
func (s *Server) handleUploadURL(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.objects == nil {
		writeError(w, http.StatusServiceUnavailable, "Uploads are not configured")
		return
	}
	body, ok := s.decodeBody(w, r)
	if !ok {
		return
	}
	values, fieldErrs := uploadURLSchema.Apply(body)
	if fieldErrs != nil {
		writeValidationError(w, fieldErrs)
		return
	}
	ext := strings.ToLower(path.Ext(values.String("fileName")))
	key := fmt.Sprintf("uploads/%s/%s%s", user.ID, util.NewID(), ext)
	uploadURL, err := s.objects.PresignPut(r.Context(), key, uploadURLExpiry)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"uploadUrl": uploadURL, "key": key}, "")
}

// reference data

func (s *Server) handleCountries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	countries, err := s.app.Countries(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"countries": countries}, "")
}

// plumbing

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	bearer := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if bearer == "" {
		return "", false
	}
	return bearer, true
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var body map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return nil, false
	}
	return body, true
}

func parsePageLimit(r *http.Request) (int, int) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			page = n
		}
	}
	limit := defaultPageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

// writeAppError maps application errors to statuses. Anything outside the
// sentinel taxonomy is a 500 with a generic body; the cause stays in the log.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrEmailAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrStoryNotFound), errors.Is(err, app.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrStoryGone):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, app.ErrSelfFollow), errors.Is(err, app.ErrNotFollowing), errors.Is(err, auth.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

type envelope struct {
	Success bool                  `json:"success"`
	Data    any                   `json:"data,omitempty"`
	Message string                `json:"message,omitempty"`
	Error   string                `json:"error,omitempty"`
	Details []validate.FieldError `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, envelope{Success: true, Data: data, Message: message})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Error: msg})
}

func writeValidationError(w http.ResponseWriter, fieldErrs []validate.FieldError) {
	writeJSON(w, http.StatusBadRequest, envelope{Error: "Validation failed", Details: fieldErrs})
}
