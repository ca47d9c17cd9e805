package diagnostics

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// tokenManager issues and validates the bearer tokens the sweep and
// single-pool endpoints require when DiagnosticsConfig.JWTRequired is set.
type tokenManager struct {
	secret []byte
}

type claims struct {
	jwt.RegisteredClaims
	Subject string `json:"sub"`
}

func newTokenManager(secret string) *tokenManager {
	return &tokenManager{secret: []byte(secret)}
}

// issue mints a bearer token for subject valid for ttl.
func (m *tokenManager) issue(subject string, ttl time.Duration) (string, error) {
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Subject: subject,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(m.secret)
}

func (m *tokenManager) parse(tokenStr string) (*claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	c, ok := token.Claims.(*claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return c, nil
}

// IssueToken mints a bearer token signed with secret, for use against a
// diagnostics server running with JWTRequired set. Exposed for idpoolctl's
// token-issuing CLI command; the server itself never issues its own tokens.
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	return newTokenManager(secret).issue(subject, ttl)
}

type contextKey string

const subjectContextKey contextKey = "diagnostics_subject"

// jwtAuthMiddleware rejects requests without a valid "Bearer <token>"
// Authorization header, as signed by m.
func jwtAuthMiddleware(m *tokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			c, err := m.parse(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), subjectContextKey, c.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
