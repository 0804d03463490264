package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, secret, email string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, developerClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestDeveloperEmail_FromBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "s3cret", "Dev@Platform.io"))

	require.Equal(t, "dev@platform.io", DeveloperEmail(req, "s3cret"))
}

func TestDeveloperEmail_BadSignatureFallsThrough(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "wrong", "dev@platform.io"))
	req.Header.Set("X-Developer-Email", "Backup@Platform.io")

	require.Equal(t, "backup@platform.io", DeveloperEmail(req, "s3cret"))
}

func TestDeveloperEmail_HeaderFallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Developer-Email", "dev@platform.io")

	require.Equal(t, "dev@platform.io", DeveloperEmail(req, "s3cret"))
}

func TestDeveloperEmail_Unknown(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Equal(t, "unknown", DeveloperEmail(req, "s3cret"))
}
