package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated is returned when a request carries no usable identity.
var ErrUnauthenticated = errors.New("unauthenticated")

// Trusted identity headers used when no JWT secret is configured, e.g. behind
// a gateway that already authenticated the caller.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserName = "X-User-Name"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID      string
	DisplayName string
}

// Claims are the HS256 token claims. The user id travels in "sub".
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator resolves the caller from a bearer token, or from trusted
// headers when it has no secret.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

func NewAuthenticator(secret string) *Authenticator {
	a := &Authenticator{now: time.Now}
	if secret != "" {
		a.secret = []byte(secret)
	}
	return a
}

// UsesTokens reports whether bearer tokens are required.
func (a *Authenticator) UsesTokens() bool { return a.secret != nil }

// Issue signs a token for userID valid for ttl.
func (a *Authenticator) Issue(userID, name string, ttl time.Duration) (string, error) {
	if a.secret == nil {
		return "", errors.New("no jwt secret configured")
	}
	now := a.now()
	claims := &Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    "quiz-leaderboard-service",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Identify extracts the caller from r. Browsers cannot set headers on a
// WebSocket handshake, so the token may also arrive as ?access_token=.
func (a *Authenticator) Identify(r *http.Request) (Identity, error) {
	if a.secret == nil {
		id := Identity{
			UserID:      strings.TrimSpace(r.Header.Get(HeaderUserID)),
			DisplayName: strings.TrimSpace(r.Header.Get(HeaderUserName)),
		}
		if id.UserID == "" {
			return Identity{}, fmt.Errorf("%w: missing %s header", ErrUnauthenticated, HeaderUserID)
		}
		return id, nil
	}

	raw := ""
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		raw = strings.TrimPrefix(h, "Bearer ")
	} else {
		raw = r.URL.Query().Get("access_token")
	}
	if raw == "" {
		return Identity{}, fmt.Errorf("%w: missing bearer token", ErrUnauthenticated)
	}
	return a.parse(raw)
}

func (a *Authenticator) parse(raw string) (Identity, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return Identity{UserID: claims.Subject, DisplayName: claims.Name}, nil
}

// Middleware rejects unauthenticated requests with 401 and stores the
// identity in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.Identify(r)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":   "unauthorized",
				"message": err.Error(),
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
