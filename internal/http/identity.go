package httpapi

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// developerClaims is the subset of the gateway's token we care about.
type developerClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// DeveloperEmail recovers the acting developer's identity for audit entries.
// Access control already happened at the gateway; this only reads who the
// caller is, preferring the bearer token, then the X-Developer-Email header.
func DeveloperEmail(r *http.Request, jwtSecret string) string {
	tokenStr := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer"))
	if tokenStr != "" && jwtSecret != "" {
		claims := &developerClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
			return []byte(jwtSecret), nil
		})
		if err == nil && token.Valid {
			if claims.Email != "" {
				return strings.ToLower(claims.Email)
			}
			if claims.Subject != "" {
				return strings.ToLower(claims.Subject)
			}
		}
	}
	if h := strings.TrimSpace(r.Header.Get("X-Developer-Email")); h != "" {
		return strings.ToLower(h)
	}
	return "unknown"
}
