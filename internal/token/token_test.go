package token

import (
	"testing"
	"time"

	"clipstream/pkg/domain"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	codec, err := NewCodec("test-secret", time.Minute)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	want := domain.Principal{UserID: "user-1", Email: "u@example.com"}
	signed, err := codec.Issue(want)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, ok := codec.Verify(signed)
	if !ok {
		t.Fatalf("freshly issued token should verify")
	}
	if got != want {
		t.Fatalf("principal round trip: got %+v, want %+v", got, want)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	codec, err := NewCodec("test-secret", time.Minute)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	signed, err := codec.IssueExpiring(domain.Principal{UserID: "user-1"}, -time.Minute)
	if err != nil {
		t.Fatalf("issue expired: %v", err)
	}
	if _, ok := codec.Verify(signed); ok {
		t.Fatalf("expired token must not verify")
	}
	if got := codec.Remaining(signed); got != 0 {
		t.Fatalf("expired token remaining = %v, want 0", got)
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	issuer, err := NewCodec("secret-a", time.Minute)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	verifier, err := NewCodec("secret-b", time.Minute)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	signed, err := issuer.Issue(domain.Principal{UserID: "user-1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, ok := verifier.Verify(signed); ok {
		t.Fatalf("token signed with another key must not verify")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	codec, err := NewCodec("test-secret", time.Minute)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	for _, input := range []string{"", "garbage", "a.b.c", "eyJ.eyJ."} {
		if _, ok := codec.Verify(input); ok {
			t.Fatalf("input %q must not verify", input)
		}
	}
}

func TestNewCodecRequiresSecret(t *testing.T) {
	if _, err := NewCodec("  ", time.Minute); err == nil {
		t.Fatalf("expected error for blank secret")
	}
}

func TestRemainingOfFreshToken(t *testing.T) {
	codec, err := NewCodec("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	signed, err := codec.Issue(domain.Principal{UserID: "user-1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	remaining := codec.Remaining(signed)
	if remaining <= 50*time.Minute || remaining > time.Hour {
		t.Fatalf("remaining = %v, want close to 1h", remaining)
	}
}
