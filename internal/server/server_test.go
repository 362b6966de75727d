package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"clipstream/internal/app"
	"clipstream/internal/store"
	"clipstream/internal/token"
	"clipstream/pkg/domain"
)

type testEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Details []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"details"`
}

func newTestServer(t *testing.T) (*httptest.Server, *store.MemoryStore) {
	t.Helper()
	codec, err := token.NewCodec("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	st := store.NewMemoryStore()
	application, err := app.New(app.Config{Store: st, Codec: codec})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srv, err := New(Config{App: application, Codec: codec})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, st
}

func doJSON(t *testing.T, method, url, bearer string, body any) (*http.Response, testEnvelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var env testEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp, env
}

func registerUser(t *testing.T, ts *httptest.Server, email string) (domain.User, string) {
	t.Helper()
	resp, env := doJSON(t, http.MethodPost, ts.URL+"/auth/register", "", map[string]any{
		"email":    email,
		"password": "passw0rd1",
		"name":     "User " + email,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status %d, error %q", email, resp.StatusCode, env.Error)
	}
	var data struct {
		Token string      `json:"token"`
		User  domain.User `json:"user"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode register data: %v", err)
	}
	return data.User, data.Token
}

func TestAuthGateFailureMessages(t *testing.T) {
	ts, st := newTestServer(t)
	user, bearer := registerUser(t, ts, "gate@example.com")

	// Missing token.
	resp, env := doJSON(t, http.MethodGet, ts.URL+"/auth/me", "", nil)
	if resp.StatusCode != http.StatusUnauthorized || env.Error != "No token provided" {
		t.Fatalf("missing token: status %d error %q", resp.StatusCode, env.Error)
	}
	if env.Success {
		t.Fatal("failure envelope must report success=false")
	}

	// Garbage token.
	resp, env = doJSON(t, http.MethodGet, ts.URL+"/auth/me", "not-a-jwt", nil)
	if resp.StatusCode != http.StatusUnauthorized || env.Error != "Invalid or expired token" {
		t.Fatalf("garbage token: status %d error %q", resp.StatusCode, env.Error)
	}

	// Valid token, deactivated user.
	st.DeactivateUser(user.ID)
	resp, env = doJSON(t, http.MethodGet, ts.URL+"/auth/me", bearer, nil)
	if resp.StatusCode != http.StatusUnauthorized || env.Error != "User not found or inactive" {
		t.Fatalf("deactivated user: status %d error %q", resp.StatusCode, env.Error)
	}
}

func TestRegisterLoginMeFlow(t *testing.T) {
	ts, _ := newTestServer(t)
	user, _ := registerUser(t, ts, "flow@example.com")

	resp, env := doJSON(t, http.MethodPost, ts.URL+"/auth/login", "", map[string]any{
		"email":    "flow@example.com",
		"password": "passw0rd1",
	})
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("login: status %d error %q", resp.StatusCode, env.Error)
	}
	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode login data: %v", err)
	}

	resp, env = doJSON(t, http.MethodGet, ts.URL+"/auth/me", data.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me: status %d error %q", resp.StatusCode, env.Error)
	}
	var me domain.User
	if err := json.Unmarshal(env.Data, &me); err != nil {
		t.Fatalf("decode me data: %v", err)
	}
	if me.ID != user.ID {
		t.Fatalf("me returned user %s, want %s", me.ID, user.ID)
	}

	resp, env = doJSON(t, http.MethodPost, ts.URL+"/auth/login", "", map[string]any{
		"email":    "flow@example.com",
		"password": "wrong-pass1",
	})
	if resp.StatusCode != http.StatusUnauthorized || env.Error != "Invalid email or password" {
		t.Fatalf("bad login: status %d error %q", resp.StatusCode, env.Error)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	ts, _ := newTestServer(t)
	_, bearer := registerUser(t, ts, "logout@example.com")

	resp, env := doJSON(t, http.MethodPost, ts.URL+"/auth/logout", bearer, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: status %d error %q", resp.StatusCode, env.Error)
	}

	resp, env = doJSON(t, http.MethodGet, ts.URL+"/auth/me", bearer, nil)
	if resp.StatusCode != http.StatusUnauthorized || env.Error != "Invalid or expired token" {
		t.Fatalf("revoked token: status %d error %q", resp.StatusCode, env.Error)
	}
}

func TestCreatePostValidationDetails(t *testing.T) {
	ts, st := newTestServer(t)
	_, bearer := registerUser(t, ts, "poster@example.com")

	resp, env := doJSON(t, http.MethodPost, ts.URL+"/posts/create", bearer, map[string]any{
		"videoUrl": "not a url",
		"duration": -5,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid post: status %d", resp.StatusCode)
	}
	if env.Error != "Validation failed" || len(env.Details) != 2 {
		t.Fatalf("invalid post: error %q details %+v", env.Error, env.Details)
	}
	// Deterministic field order.
	if env.Details[0].Field != "duration" || env.Details[1].Field != "videoUrl" {
		t.Fatalf("details order = %+v", env.Details)
	}
	if st.PostCount() != 0 {
		t.Fatalf("rejected request wrote %d posts", st.PostCount())
	}
}

func TestCreatePostAuthorNotSpoofable(t *testing.T) {
	ts, _ := newTestServer(t)
	user, bearer := registerUser(t, ts, "author@example.com")

	resp, env := doJSON(t, http.MethodPost, ts.URL+"/posts/create", bearer, map[string]any{
		"videoUrl": "https://cdn.example.com/v/1.mp4",
		"caption":  "hello",
		"authorId": "someone-else",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create post: status %d error %q", resp.StatusCode, env.Error)
	}
	var post domain.Post
	if err := json.Unmarshal(env.Data, &post); err != nil {
		t.Fatalf("decode post: %v", err)
	}
	if post.AuthorID != user.ID {
		t.Fatalf("authorId = %q, want caller %q", post.AuthorID, user.ID)
	}
}

func TestListPostsPaginationEnvelope(t *testing.T) {
	ts, _ := newTestServer(t)
	_, bearer := registerUser(t, ts, "feed@example.com")
	for i := 0; i < 5; i++ {
		resp, env := doJSON(t, http.MethodPost, ts.URL+"/posts/create", bearer, map[string]any{
			"videoUrl": fmt.Sprintf("https://cdn.example.com/v/%d.mp4", i),
		})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create post %d: status %d error %q", i, resp.StatusCode, env.Error)
		}
	}

	resp, env := doJSON(t, http.MethodGet, ts.URL+"/posts?page=2&limit=2", bearer, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list posts: status %d error %q", resp.StatusCode, env.Error)
	}
	var data struct {
		Posts      []domain.Post     `json:"posts"`
		Pagination domain.Pagination `json:"pagination"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode posts data: %v", err)
	}
	if len(data.Posts) != 2 {
		t.Fatalf("page size = %d, want 2", len(data.Posts))
	}
	if data.Pagination.Page != 2 || data.Pagination.Total != 5 || data.Pagination.TotalPages != 3 {
		t.Fatalf("pagination = %+v", data.Pagination)
	}
	for _, p := range data.Posts {
		if p.Author == nil {
			t.Fatalf("post %s missing author projection", p.ID)
		}
	}
}

func TestStoryViewEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	_, authorBearer := registerUser(t, ts, "storyteller@example.com")
	_, viewerBearer := registerUser(t, ts, "watcher@example.com")

	resp, env := doJSON(t, http.MethodPost, ts.URL+"/stories", authorBearer, map[string]any{
		"mediaUrl": "https://cdn.example.com/s/1.jpg",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create story: status %d error %q", resp.StatusCode, env.Error)
	}
	var story domain.Story
	if err := json.Unmarshal(env.Data, &story); err != nil {
		t.Fatalf("decode story: %v", err)
	}

	resp, env = doJSON(t, http.MethodPost, ts.URL+"/stories/nope/view", viewerBearer, nil)
	if resp.StatusCode != http.StatusNotFound || env.Error != "Story not found" {
		t.Fatalf("missing story: status %d error %q", resp.StatusCode, env.Error)
	}

	// Author self-view is a success no-op.
	resp, env = doJSON(t, http.MethodPost, ts.URL+"/stories/"+story.ID+"/view", authorBearer, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("self view: status %d error %q", resp.StatusCode, env.Error)
	}
	var viewed domain.Story
	if err := json.Unmarshal(env.Data, &viewed); err != nil {
		t.Fatalf("decode story: %v", err)
	}
	if viewed.ViewCount != 0 {
		t.Fatalf("self view moved the counter to %d", viewed.ViewCount)
	}

	// First real view counts, the repeat does not.
	for i, want := range []int64{1, 1} {
		resp, env = doJSON(t, http.MethodPost, ts.URL+"/stories/"+story.ID+"/view", viewerBearer, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("view %d: status %d error %q", i, resp.StatusCode, env.Error)
		}
		if err := json.Unmarshal(env.Data, &viewed); err != nil {
			t.Fatalf("decode story: %v", err)
		}
		if viewed.ViewCount != want {
			t.Fatalf("view %d: count = %d, want %d", i, viewed.ViewCount, want)
		}
	}
}

func TestExpiredStoryIsGone(t *testing.T) {
	ts, st := newTestServer(t)
	author, _ := registerUser(t, ts, "old@example.com")
	_, viewerBearer := registerUser(t, ts, "late@example.com")

	expired := domain.Story{
		ID:        "story-old",
		AuthorID:  author.ID,
		MediaURL:  "https://cdn.example.com/s/old.jpg",
		IsActive:  true,
		ExpiresAt: time.Now().Add(-time.Hour),
		CreatedAt: time.Now().Add(-25 * time.Hour),
	}
	if err := st.CreateStory(expired); err != nil {
		t.Fatalf("seed story: %v", err)
	}

	resp, env := doJSON(t, http.MethodPost, ts.URL+"/stories/story-old/view", viewerBearer, nil)
	if resp.StatusCode != http.StatusGone || env.Error != "Story is no longer available" {
		t.Fatalf("expired story: status %d error %q", resp.StatusCode, env.Error)
	}
}

func TestFollowEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)
	me, bearer := registerUser(t, ts, "follower@example.com")
	target, _ := registerUser(t, ts, "followee@example.com")

	resp, env := doJSON(t, http.MethodPost, ts.URL+"/user/follow", bearer, map[string]any{"userId": me.ID})
	if resp.StatusCode != http.StatusBadRequest || env.Error != "Cannot follow yourself" {
		t.Fatalf("self follow: status %d error %q", resp.StatusCode, env.Error)
	}

	resp, env = doJSON(t, http.MethodPost, ts.URL+"/user/follow", bearer, map[string]any{"userId": "missing"})
	if resp.StatusCode != http.StatusNotFound || env.Error != "User not found" {
		t.Fatalf("follow missing: status %d error %q", resp.StatusCode, env.Error)
	}

	resp, env = doJSON(t, http.MethodPost, ts.URL+"/user/follow", bearer, map[string]any{"userId": target.ID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("follow: status %d error %q", resp.StatusCode, env.Error)
	}

	// Suggestions exclude self and the followed user.
	resp, env = doJSON(t, http.MethodGet, ts.URL+"/user/suggestions", bearer, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("suggestions: status %d error %q", resp.StatusCode, env.Error)
	}
	var suggestions struct {
		Users []domain.Profile `json:"users"`
	}
	if err := json.Unmarshal(env.Data, &suggestions); err != nil {
		t.Fatalf("decode suggestions: %v", err)
	}
	if len(suggestions.Users) != 0 {
		t.Fatalf("suggestions = %+v, want none", suggestions.Users)
	}

	resp, env = doJSON(t, http.MethodDelete, ts.URL+"/user/follow?userId="+target.ID, bearer, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unfollow: status %d error %q", resp.StatusCode, env.Error)
	}
	resp, env = doJSON(t, http.MethodDelete, ts.URL+"/user/follow?userId="+target.ID, bearer, nil)
	if resp.StatusCode != http.StatusBadRequest || env.Error != "Not following this user" {
		t.Fatalf("repeat unfollow: status %d error %q", resp.StatusCode, env.Error)
	}
}

func TestCountriesIsPublic(t *testing.T) {
	ts, st := newTestServer(t)
	if err := st.SeedCountries([]domain.Country{{Code: "NO", Name: "Norway"}}); err != nil {
		t.Fatalf("seed countries: %v", err)
	}

	resp, env := doJSON(t, http.MethodGet, ts.URL+"/countries", "", nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("countries: status %d error %q", resp.StatusCode, env.Error)
	}
	var data struct {
		Countries []domain.Country `json:"countries"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode countries: %v", err)
	}
	if len(data.Countries) != 1 || data.Countries[0].Code != "NO" {
		t.Fatalf("countries = %+v", data.Countries)
	}
}

func TestDuplicateEmailConflict(t *testing.T) {
	ts, _ := newTestServer(t)
	registerUser(t, ts, "dup@example.com")

	resp, env := doJSON(t, http.MethodPost, ts.URL+"/auth/register", "", map[string]any{
		"email":    "dup@example.com",
		"password": "passw0rd1",
		"name":     "Dup",
	})
	if resp.StatusCode != http.StatusConflict || env.Error != "Email already registered" {
		t.Fatalf("duplicate email: status %d error %q", resp.StatusCode, env.Error)
	}
}

func TestUploadURLUnconfigured(t *testing.T) {
	ts, _ := newTestServer(t)
	_, bearer := registerUser(t, ts, "uploader@example.com")

	resp, env := doJSON(t, http.MethodPost, ts.URL+"/media/upload-url", bearer, map[string]any{
		"fileName": "clip.mp4",
	})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("upload-url without object store: status %d error %q", resp.StatusCode, env.Error)
	}
}
