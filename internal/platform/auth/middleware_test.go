package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func runJWT(t *testing.T, header string) (Principal, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got Principal
	h := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(func(c echo.Context) error {
		got, _ = PrincipalFromContext(c.Request().Context())
		return c.String(http.StatusOK, "ok")
	})
	return got, h(c)
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, err := runJWT(t, "")
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", httpErr.Code)
	}
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runJWT(t, tt.header)
			httpErr, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected echo.HTTPError, got %T", err)
			}
			if httpErr.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", httpErr.Code)
			}
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	token := createTestToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "lect-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Name:  "Dr. Mensah",
		Roles: []string{RoleLecturer},
	}, testSigningKey)

	p, err := runJWT(t, "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != "lect-1" || p.Name != "Dr. Mensah" {
		t.Errorf("unexpected principal: %+v", p)
	}
	if len(p.Roles) != 1 || p.Roles[0] != RoleLecturer {
		t.Errorf("unexpected roles: %v", p.Roles)
	}
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	token := createTestToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "x"},
	}, []byte("another-key"))

	if _, err := runJWT(t, "Bearer "+token); err == nil {
		t.Fatal("expected error for token signed with a different key")
	}
}

func TestJWTMiddleware_Expired(t *testing.T) {
	token := createTestToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "x",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}, testSigningKey)

	if _, err := runJWT(t, "Bearer "+token); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestDevAuthMiddleware(t *testing.T) {
	e := echo.New()

	t.Run("defaults to admin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		c := e.NewContext(req, httptest.NewRecorder())
		var got Principal
		h := DevAuthMiddleware()(func(c echo.Context) error {
			got, _ = PrincipalFromContext(c.Request().Context())
			return nil
		})
		if err := h(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.ID != "dev-user" || !HasAnyRole(got.Roles, RoleAdmin) {
			t.Errorf("unexpected principal: %+v", got)
		}
	})

	t.Run("honours dev headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Dev-User", "stu-9")
		req.Header.Set("X-Dev-Name", "Ama")
		req.Header.Set("X-Dev-Roles", "student, clinician")
		c := e.NewContext(req, httptest.NewRecorder())
		var got Principal
		h := DevAuthMiddleware()(func(c echo.Context) error {
			got, _ = PrincipalFromContext(c.Request().Context())
			return nil
		})
		if err := h(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.ID != "stu-9" || got.Name != "Ama" {
			t.Errorf("unexpected principal: %+v", got)
		}
		if len(got.Roles) != 2 || got.Roles[1] != RoleClinician {
			t.Errorf("unexpected roles: %v", got.Roles)
		}
	})
}
