package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/janhq/companion-relay/internal/config"
)

// UserIDKey is the gin context key holding the authenticated subject.
const UserIDKey = "user_id"

// TokenValidator validates a raw bearer token.
type TokenValidator interface {
	Validate(ctx context.Context, rawToken string) (*PrincipalClaims, error)
}

// Validator authenticates REST and relay requests.
type Validator struct {
	enabled bool
	tokens  TokenValidator
	log     zerolog.Logger
}

// NewValidator initializes a KeycloakValidator when auth is enabled.
func NewValidator(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Validator, error) {
	log = log.With().Str("component", "auth").Logger()
	if !cfg.AuthEnabled {
		log.Warn().Msg("authentication disabled, userId in frames is trusted as sent")
		return &Validator{log: log}, nil
	}

	keycloak, err := NewKeycloakValidator(
		ctx,
		cfg.AuthJWKSURL,
		cfg.AuthIssuer,
		cfg.AuthAudience,
		5*time.Minute, // refreshEvery
		time.Minute,   // clockSkew
		log,
	)
	if err != nil {
		return nil, err
	}
	return NewValidatorWithTokens(keycloak, log), nil
}

// NewValidatorWithTokens returns an enabled validator backed by tokens.
func NewValidatorWithTokens(tokens TokenValidator, log zerolog.Logger) *Validator {
	return &Validator{enabled: true, tokens: tokens, log: log}
}

// Enabled reports whether requests must carry a token.
func (v *Validator) Enabled() bool {
	return v != nil && v.enabled
}

// Ready reports whether the key set is loaded.
func (v *Validator) Ready() bool {
	if !v.Enabled() {
		return true
	}
	if r, ok := v.tokens.(interface{ Ready() bool }); ok {
		return r.Ready()
	}
	return true
}

// Middleware enforces JWT auth when enabled.
// Browsers cannot set headers on WebSocket upgrades, so a token query parameter is also accepted.
func (v *Validator) Middleware() gin.HandlerFunc {
	if !v.Enabled() {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		tokenString := bearerToken(c.GetHeader("Authorization"))
		if tokenString == "" {
			tokenString = strings.TrimSpace(c.Query("token"))
		}
		if tokenString == "" {
			abortUnauthorized(c, "missing bearer token")
			return
		}

		claims, err := v.tokens.Validate(c.Request.Context(), tokenString)
		if err != nil {
			v.log.Debug().Err(err).Msg("jwt validation failed")
			abortUnauthorized(c, "invalid token")
			return
		}

		c.Set(UserIDKey, claims.Subject)
		c.Set("principal_claims", claims)
		c.Next()
	}
}

// UserID returns the authenticated subject, or "" when auth is disabled.
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": message,
	})
}
