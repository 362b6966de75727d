package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"clipstream/internal/app"
	"clipstream/internal/store"
	"clipstream/internal/token"
)

func TestLoginRateLimit(t *testing.T) {
	codec, err := token.NewCodec("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	application, err := app.New(app.Config{Store: store.NewMemoryStore(), Codec: codec})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	srv, err := New(Config{
		App:                     application,
		Codec:                   codec,
		Redis:                   client,
		LoginRateLimitPerMinute: 1,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body := []byte(`{"email":"u@example.com","password":"passw0rd1"}`)
	resp1, err := http.Post(ts.URL+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("first login request failed: %v", err)
	}
	resp1.Body.Close()
	if resp1.StatusCode != http.StatusUnauthorized {
		t.Fatalf("first request expected 401 for unknown user, got %d", resp1.StatusCode)
	}

	resp2, err := http.Post(ts.URL+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("second login request failed: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", resp2.StatusCode)
	}
	if got := resp2.Header.Get("Retry-After"); got != "60" {
		t.Fatalf("Retry-After = %q, want 60", got)
	}
}
