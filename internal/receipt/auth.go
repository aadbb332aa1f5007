package receipt

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Authenticator extracts the caller identity from a bearer JWT. With a
// secret configured the signature is verified locally; without one the token
// is trusted as-is, for deployments where a gateway in front of the service
// already validated it.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates an Authenticator. An empty secret disables local
// signature verification.
func NewAuthenticator(secret []byte) *Authenticator {
	return &Authenticator{secret: secret}
}

// UserID returns the caller's user ID from the Authorization header. The ID
// is the first non-empty of the "sub", "user_id" and "uid" claims.
func (a *Authenticator) UserID(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", fmt.Errorf("missing bearer token")
	}
	raw := strings.TrimPrefix(header, "Bearer ")

	claims := jwt.MapClaims{}
	if len(a.secret) > 0 {
		parsed, err := jwt.ParseWithClaims(raw, claims,
			func(t *jwt.Token) (any, error) { return a.secret, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		)
		if err != nil {
			return "", fmt.Errorf("parsing bearer token: %w", err)
		}
		if !parsed.Valid {
			return "", fmt.Errorf("bearer token is not valid")
		}
	} else {
		if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
			return "", fmt.Errorf("parsing bearer token: %w", err)
		}
	}

	for _, name := range []string{"sub", "user_id", "uid"} {
		if id, ok := claims[name].(string); ok && id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("no user identifier found in token claims")
}
