package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"crm-tag-proxy/internal/common/logging"
)

// JWTAuth validates an HS256 bearer token on protected routes. The proxy does
// not mint tokens; callers bring tokens signed with the shared secret.
func JWTAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				logging.Warn("Request without bearer token rejected",
					logging.Field{Key: "path", Value: r.URL.Path},
					logging.Field{Key: "remote_addr", Value: r.RemoteAddr})
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
			token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{"HS256"}))

			if err != nil || !token.Valid {
				logging.Warn("Invalid bearer token rejected",
					logging.Field{Key: "path", Value: r.URL.Path},
					logging.Field{Key: "error", Value: err})
				http.Error(w, "invalid bearer token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
