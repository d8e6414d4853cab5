package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthMiddleware_WithValidToken(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	access, _, err := m.IssueTokenPair(42, "user@example.com")
	if err != nil {
		t.Fatalf("IssueTokenPair error: %v", err)
	}

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		user, ok := GetUserFromContext(r.Context())
		if !ok {
			t.Fatalf("user not in context")
		}
		if user.ID != 42 {
			t.Fatalf("user id from context = %d, want 42", user.ID)
		}
		if user.Email != "user@example.com" {
			t.Fatalf("user email from context = %q, want user@example.com", user.Email)
		}
	})

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.Header.Set("Authorization", "Bearer "+access)

	handler := m.Middleware(next)
	handler.ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestAuthMiddleware_WithoutHeader(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/protected", nil)

	handler := m.Middleware(next)
	handler.ServeHTTP(w, r)

	res := w.Result()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_RejectsRefreshTokenAsAccess(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	_, refresh, err := m.IssueTokenPair(1, "user@example.com")
	if err != nil {
		t.Fatalf("IssueTokenPair error: %v", err)
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.Header.Set("Authorization", "Bearer "+refresh)

	handler := m.Middleware(next)
	handler.ServeHTTP(w, r)

	res := w.Result()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_RejectsForeignSignature(t *testing.T) {
	m := NewAuthMiddleware("test-secret")
	other := NewAuthMiddleware("other-secret")

	access, _, err := other.IssueTokenPair(1, "user@example.com")
	if err != nil {
		t.Fatalf("IssueTokenPair error: %v", err)
	}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.Header.Set("Authorization", "Bearer "+access)

	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	}))
	handler.ServeHTTP(w, r)

	res := w.Result()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestParseRefreshToken(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	_, refresh, err := m.IssueTokenPair(7, "user@example.com")
	if err != nil {
		t.Fatalf("IssueTokenPair error: %v", err)
	}

	user, err := m.ParseRefreshToken(refresh)
	if err != nil {
		t.Fatalf("ParseRefreshToken error: %v", err)
	}
	if user.ID != 7 || user.Email != "user@example.com" {
		t.Fatalf("unexpected user: %+v", user)
	}

	access, err := m.IssueAccessToken(user.ID, user.Email)
	if err != nil {
		t.Fatalf("IssueAccessToken error: %v", err)
	}
	if _, err := m.ParseRefreshToken(access); err == nil {
		t.Fatalf("access token must not pass as refresh token")
	}
}
