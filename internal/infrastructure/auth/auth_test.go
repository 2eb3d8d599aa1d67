package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens map[string]string

func (s staticTokens) Validate(_ context.Context, raw string) (*PrincipalClaims, error) {
	if sub, ok := s[raw]; ok {
		return &PrincipalClaims{Subject: sub}, nil
	}
	return nil, errors.New("unknown token")
}

func newRouter(v *Validator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", v.Middleware(), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})
	return r
}

func TestMiddleware(t *testing.T) {
	router := newRouter(NewValidatorWithTokens(staticTokens{"good": "u1"}, zerolog.Nop()))

	tests := []struct {
		name   string
		target string
		header string
		status int
		body   string
	}{
		{name: "bearer header", target: "/me", header: "Bearer good", status: http.StatusOK, body: "u1"},
		{name: "query token", target: "/me?token=good", status: http.StatusOK, body: "u1"},
		{name: "missing token", target: "/me", status: http.StatusUnauthorized},
		{name: "invalid token", target: "/me", header: "Bearer bad", status: http.StatusUnauthorized},
		{name: "wrong scheme", target: "/me", header: "Basic good", status: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestMiddlewareDisabledPassesThrough(t *testing.T) {
	router := newRouter(&Validator{log: zerolog.Nop()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestKeycloakValidatorValidate(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	v := newKeycloakValidator("https://idp/realms/jan", "relay", time.Minute, zerolog.Nop())
	v.jwks.Store(keyfunc.NewGiven(map[string]keyfunc.GivenKey{
		"k1": keyfunc.NewGivenRSA(&key.PublicKey, keyfunc.GivenKeyOptions{Algorithm: "RS256"}),
	}))

	sign := func(claims jwt.MapClaims) string {
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
		token.Header["kid"] = "k1"
		raw, err := token.SignedString(key)
		require.NoError(t, err)
		return raw
	}

	now := time.Now()
	valid := jwt.MapClaims{
		"iss": "https://idp/realms/jan",
		"aud": []interface{}{"account", "relay"},
		"sub": "u1",
		"exp": float64(now.Add(time.Hour).Unix()),
	}

	claims, err := v.Validate(context.Background(), sign(valid))
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, []string{"account", "relay"}, claims.Audience)

	wrongIssuer := jwt.MapClaims{"iss": "other", "aud": "relay", "sub": "u1"}
	_, err = v.Validate(context.Background(), sign(wrongIssuer))
	assert.Error(t, err)

	wrongAudience := jwt.MapClaims{"iss": "https://idp/realms/jan", "aud": "web", "sub": "u1"}
	_, err = v.Validate(context.Background(), sign(wrongAudience))
	assert.Error(t, err)

	expired := jwt.MapClaims{
		"iss": "https://idp/realms/jan",
		"aud": "relay",
		"sub": "u1",
		"exp": float64(now.Add(-time.Hour).Unix()),
	}
	_, err = v.Validate(context.Background(), sign(expired))
	assert.Error(t, err)

	assert.True(t, v.Ready())
}
