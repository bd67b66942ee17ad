// Package api implements the Mailwright REST API using chi.
package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Auth modes.
const (
	AuthDisabled = "disabled"
	AuthToken    = "token"
	AuthJWT      = "jwt"
)

// AuthConfig selects how requests are authenticated.
type AuthConfig struct {
	Mode      string
	Token     string
	JWTSecret string
}

type subjectKey struct{}

// Subject returns the JWT subject of an authenticated request, if any.
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}

// AuthMiddleware returns middleware that validates the Authorization header.
// In disabled mode all requests pass through. In token mode the header must
// be "Bearer <token>". In jwt mode it must carry an HS256 JWT signed with
// the configured secret.
func AuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Mode == "" || cfg.Mode == AuthDisabled {
				next.ServeHTTP(w, r)
				return
			}
			auth := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || raw == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}

			switch cfg.Mode {
			case AuthToken:
				if subtle.ConstantTimeCompare([]byte(raw), []byte(cfg.Token)) != 1 {
					writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
					return
				}
			case AuthJWT:
				sub, err := verifyJWT(raw, cfg.JWTSecret)
				if err != nil {
					writeJSON(w, http.StatusUnauthorized, errorBody("invalid token"))
					return
				}
				r = r.WithContext(context.WithValue(r.Context(), subjectKey{}, sub))
			default:
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func verifyJWT(raw, secret string) (string, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok || secret == "" {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", err
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	return sub, nil
}
