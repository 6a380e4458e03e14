package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func TestGetAuth0ID(t *testing.T) {
	e := echo.New()

	tests := []struct {
		name     string
		setup    func(c echo.Context)
		expected string
	}{
		{
			name: "returns auth0 id when present",
			setup: func(c echo.Context) {
				ctx := context.WithValue(c.Request().Context(), Auth0IDKey, "auth0|12345")
				c.SetRequest(c.Request().WithContext(ctx))
			},
			expected: "auth0|12345",
		},
		{
			name:     "returns empty string when not present",
			setup:    func(c echo.Context) {},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			tt.setup(c)

			result := GetAuth0ID(c)
			if result != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestGetClaims(t *testing.T) {
	e := echo.New()

	t.Run("returns claims when present", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		claims := &validator.ValidatedClaims{
			RegisteredClaims: validator.RegisteredClaims{
				Subject: "auth0|test",
			},
		}
		ctx := context.WithValue(c.Request().Context(), ClaimsKey, claims)
		c.SetRequest(c.Request().WithContext(ctx))

		result := GetClaims(c)
		if result == nil {
			t.Fatal("Expected claims, got nil")
		}
		if result.RegisteredClaims.Subject != "auth0|test" {
			t.Errorf("Expected subject 'auth0|test', got %q", result.RegisteredClaims.Subject)
		}
	})

	t.Run("returns nil when not present", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		result := GetClaims(c)
		if result != nil {
			t.Error("Expected nil, got claims")
		}
	})
}

func TestGetCustomClaims(t *testing.T) {
	e := echo.New()

	t.Run("returns custom claims when present", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		customClaims := &CustomClaims{
			Email: "test@example.com",
			Name:  "Test User",
		}
		claims := &validator.ValidatedClaims{
			RegisteredClaims: validator.RegisteredClaims{
				Subject: "auth0|test",
			},
			CustomClaims: customClaims,
		}
		ctx := context.WithValue(c.Request().Context(), ClaimsKey, claims)
		c.SetRequest(c.Request().WithContext(ctx))

		result := GetCustomClaims(c)
		if result == nil {
			t.Fatal("Expected custom claims, got nil")
		}
		if result.Email != "test@example.com" {
			t.Errorf("Expected email 'test@example.com', got %q", result.Email)
		}
		if result.Name != "Test User" {
			t.Errorf("Expected name 'Test User', got %q", result.Name)
		}
	})

	t.Run("returns nil when claims not present", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		result := GetCustomClaims(c)
		if result != nil {
			t.Error("Expected nil, got custom claims")
		}
	})
}

func TestCustomClaims_Validate(t *testing.T) {
	claims := &CustomClaims{
		Email: "test@example.com",
		Name:  "Test",
	}

	err := claims.Validate(context.Background())
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

type fakeValidator struct {
	subject string
	email   string
}

func (f *fakeValidator) ValidateToken(ctx context.Context, token string) (interface{}, error) {
	if token != "good-token" {
		return nil, errors.New("bad signature")
	}
	return &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{Subject: f.subject},
		CustomClaims:     &CustomClaims{Email: f.email, Name: "Tester"},
	}, nil
}

type fakeUserProvider struct {
	userID uuid.UUID
	err    error
	seen   []string
}

func (f *fakeUserProvider) ResolveUser(ctx context.Context, auth0ID, email, name string) (uuid.UUID, error) {
	f.seen = append(f.seen, auth0ID+"|"+email+"|"+name)
	return f.userID, f.err
}

func runAuthenticate(t *testing.T, m *AuthMiddleware, header string) (*httptest.ResponseRecorder, uuid.UUID) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got uuid.UUID
	err := m.Authenticate()(func(c echo.Context) error {
		got = GetUserID(c)
		return c.String(http.StatusOK, "ok")
	})(c)
	if err != nil {
		if he, ok := err.(*echo.HTTPError); ok {
			rec.Code = he.Code
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	return rec, got
}

func TestAuthMiddleware_Authenticate(t *testing.T) {
	userID := uuid.New()
	users := &fakeUserProvider{userID: userID}
	m := NewAuthMiddlewareWithValidator(&fakeValidator{subject: "auth0|abc", email: "a@example.com"}, users)

	rec, got := runAuthenticate(t, m, "Bearer good-token")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if got != userID {
		t.Errorf("Expected user %s in context, got %s", userID, got)
	}
	if len(users.seen) != 1 || users.seen[0] != "auth0|abc|a@example.com|Tester" {
		t.Errorf("Unexpected provider calls: %v", users.seen)
	}
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		users    *fakeUserProvider
		expected int
	}{
		{"missing header", "", &fakeUserProvider{}, http.StatusUnauthorized},
		{"no bearer prefix", "good-token", &fakeUserProvider{}, http.StatusUnauthorized},
		{"wrong scheme", "Basic good-token", &fakeUserProvider{}, http.StatusUnauthorized},
		{"invalid token", "Bearer forged", &fakeUserProvider{}, http.StatusUnauthorized},
		{"unknown user without email", "Bearer good-token", &fakeUserProvider{err: domain.ErrUnauthorized}, http.StatusUnauthorized},
		{"user lookup failure", "Bearer good-token", &fakeUserProvider{err: errors.New("db down")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewAuthMiddlewareWithValidator(&fakeValidator{subject: "auth0|abc"}, tt.users)

			rec, got := runAuthenticate(t, m, tt.header)

			if rec.Code != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, rec.Code)
			}
			if got != uuid.Nil {
				t.Error("Handler should not have run")
			}
		})
	}
}

func TestGetUserID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	if GetUserID(c) != uuid.Nil {
		t.Error("Expected nil user ID without context value")
	}

	id := uuid.New()
	WithUserID(c, id)
	if GetUserID(c) != id {
		t.Errorf("Expected %s, got %s", id, GetUserID(c))
	}
}
