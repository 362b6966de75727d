package auth

import "testing"

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("sup3rsecret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if hash == "sup3rsecret" {
		t.Fatalf("hash must not equal the plain password")
	}
	if !CheckPassword("sup3rsecret", hash) {
		t.Fatalf("correct password should verify")
	}
	if CheckPassword("wr0ngsecret", hash) {
		t.Fatalf("wrong password should not verify")
	}
}

func TestCheckPasswordRejectsGarbageHash(t *testing.T) {
	if CheckPassword("anything1", "not-a-bcrypt-hash") {
		t.Fatalf("garbage hash should not verify")
	}
}

func TestValidatePassword(t *testing.T) {
	cases := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"ok", "passw0rd", false},
		{"too short", "a1", true},
		{"no digit", "passwords", true},
		{"no letter", "12345678", true},
		{"whitespace only", "        ", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePassword(tc.password)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error for %q", tc.password)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error for %q: %v", tc.password, err)
			}
		})
	}
}
