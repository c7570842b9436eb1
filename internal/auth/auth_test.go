package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIdentifyFromHeaders(t *testing.T) {
	a := NewAuthenticator("")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := a.Identify(req); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}

	req.Header.Set(HeaderUserID, "u1")
	req.Header.Set(HeaderUserName, "Alice")
	id, err := a.Identify(req)
	if err != nil || id.UserID != "u1" || id.DisplayName != "Alice" {
		t.Fatalf("unexpected identity %+v %v", id, err)
	}
}

func TestIdentifyFromToken(t *testing.T) {
	a := NewAuthenticator("s3cret")
	token, err := a.Issue("u1", "Alice", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	id, err := a.Identify(req)
	if err != nil || id.UserID != "u1" || id.DisplayName != "Alice" {
		t.Fatalf("unexpected identity %+v %v", id, err)
	}

	ws := httptest.NewRequest(http.MethodGet, "/ws?access_token="+token, nil)
	if id, err := a.Identify(ws); err != nil || id.UserID != "u1" {
		t.Fatalf("query token: %+v %v", id, err)
	}

	// Headers are ignored once tokens are required.
	spoofed := httptest.NewRequest(http.MethodGet, "/", nil)
	spoofed.Header.Set(HeaderUserID, "admin")
	if _, err := a.Identify(spoofed); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected header identity to be refused, got %v", err)
	}
}

func TestIdentifyRejectsBadTokens(t *testing.T) {
	a := NewAuthenticator("s3cret")
	other := NewAuthenticator("different")
	foreign, _ := other.Issue("u1", "", time.Hour)

	a.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _ := a.Issue("u1", "", time.Hour)
	a.now = time.Now

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, token := range map[string]string{"foreign": foreign, "expired": expired, "none": none, "garbage": "abc"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		if _, err := a.Identify(req); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("%s: expected unauthenticated, got %v", name, err)
		}
	}
}

func TestMiddleware(t *testing.T) {
	a := NewAuthenticator("")
	var seen Identity
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, "u9")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || seen.UserID != "u9" {
		t.Fatalf("expected identity in context, got %d %+v", rec.Code, seen)
	}
}
