package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthMiddleware_WithValidCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret", nil)

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		id, ok := GetUserIDFromContext(r.Context())
		if !ok {
			t.Fatalf("user id not in context")
		}
		if id != "bidder-42" {
			t.Fatalf("user id from context = %q, want bidder-42", id)
		}
	})

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.AddCookie(&http.Cookie{Name: authCookieName, Value: m.Sign("bidder-42")})

	handler := m.Middleware(next)
	handler.ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestAuthMiddleware_WithoutCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret", nil)

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


func TestAuthMiddleware_BearerToken(t *testing.T) {
	m := NewAuthMiddleware("test-secret", nil)

	var got string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = GetUserIDFromContext(r.Context())
	})

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.Header.Set("Authorization", "Bearer "+m.Sign("user.with.dots"))

	w := httptest.NewRecorder()
	m.Middleware(next).ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got != "user.with.dots" {
		t.Fatalf("user id = %q, want user.with.dots", got)
	}
}

func TestAuthMiddleware_ForgedToken(t *testing.T) {
	m := NewAuthMiddleware("test-secret", nil)
	other := NewAuthMiddleware("other-secret", nil)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	for _, token := range []string{other.Sign("admin"), "garbage", "." + m.Sign("x")} {
		r := httptest.NewRequest(http.MethodGet, "/protected", nil)
		r.Header.Set("Authorization", "Bearer "+token)

		w := httptest.NewRecorder()
		m.Middleware(next).ServeHTTP(w, r)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("token %q: status = %d, want %d", token, w.Code, http.StatusUnauthorized)
		}
	}
}

func TestRequireOperator(t *testing.T) {
	m := NewAuthMiddleware("test-secret", []string{"ops-1", " "})

	tests := []struct {
		name   string
		userID string
		want   int
	}{
		{name: "operator", userID: "ops-1", want: http.StatusOK},
		{name: "regular user", userID: "bidder", want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			r := httptest.NewRequest(http.MethodPost, "/close", nil)
			r.AddCookie(&http.Cookie{Name: authCookieName, Value: m.Sign(tt.userID)})

			w := httptest.NewRecorder()
			m.Middleware(m.RequireOperator(next)).ServeHTTP(w, r)

			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
