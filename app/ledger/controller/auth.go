package controller

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrMisconfigured means auth is mandated but no secret is configured;
	// the trigger fails closed rather than running unauthenticated.
	ErrMisconfigured = errors.New("sync auth required but no token configured")

	errUnauthorized = errors.New("unauthorized")
)

// authorizeSync validates the sync trigger's bearer credential. The bearer
// may be the raw shared secret or an HS256 JWT signed with it, so schedulers
// can mint expiring tokens instead of shipping the secret.
func (c *Controller) authorizeSync(r *http.Request) error {
	if c.SyncToken == "" {
		if c.SyncAuthRequired {
			return ErrMisconfigured
		}
		return nil
	}

	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return errUnauthorized
	}
	bearer := strings.TrimPrefix(authHeader, "Bearer ")

	if bcrypt.CompareHashAndPassword(c.SyncHash, []byte(bearer)) == nil {
		return nil
	}

	tok, err := jwt.Parse(bearer,
		func(t *jwt.Token) (any, error) { return c.JWTSecret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err == nil && tok.Valid {
		return nil
	}

	return errUnauthorized
}

// RequireSyncAuth middleware
func (c *Controller) RequireSyncAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch err := c.authorizeSync(r); {
		case err == nil:
			next.ServeHTTP(w, r)
		case errors.Is(err, ErrMisconfigured):
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "sync auth misconfigured"})
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
		}
	})
}
