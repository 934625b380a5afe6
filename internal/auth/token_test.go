package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	v := NewVerifier("test-secret")

	token, err := v.Issue(42, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	userID, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if userID != 42 {
		t.Errorf("userID = %d, want 42", userID)
	}
}

func TestVerifyRejects(t *testing.T) {
	v := NewVerifier("test-secret")

	expired, err := v.Issue(42, -time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	other, err := NewVerifier("other-secret").Issue(42, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	cases := []struct {
		name  string
		token string
	}{
		{"expired", expired},
		{"wrong secret", other},
		{"garbage", "not.a.token"},
		{"empty", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := v.Verify(tc.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestAuthenticateSources(t *testing.T) {
	v := NewVerifier("test-secret")
	token, err := v.Issue(7, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	t.Run("authorization header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		userID, err := v.Authenticate(r)
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		if userID != 7 {
			t.Errorf("userID = %d, want 7", userID)
		}
	})

	t.Run("query parameter", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws?token="+token, nil)
		userID, err := v.Authenticate(r)
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		if userID != 7 {
			t.Errorf("userID = %d, want 7", userID)
		}
	})

	t.Run("no credentials", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		if _, err := v.Authenticate(r); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("malformed header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		if _, err := v.Authenticate(r); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})
}
