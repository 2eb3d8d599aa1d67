package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// PrincipalClaims represent the subset of JWT claims the relay uses.
type PrincipalClaims struct {
	Subject           string
	Issuer            string
	Audience          []string
	PreferredUsername string
	Email             string
	ExpiresAt         time.Time
	NotBefore         time.Time
}

// KeycloakValidator validates JWT tokens against Keycloak JWKS.
type KeycloakValidator struct {
	issuer    string
	audience  string
	jwksURL   string
	logger    zerolog.Logger
	clockSkew time.Duration
	now       func() time.Time
	jwks      atomic.Pointer[keyfunc.JWKS]
	lastErr   atomic.Value // stores lastErrWrap
}

// lastErrWrap avoids storing bare nil in atomic.Value.
type lastErrWrap struct{ Err error }

const (
	jwksInitialRetryInterval   = time.Second
	jwksInitialRetryMaxBackoff = 10 * time.Second
	jwksInitialRetryTimeout    = 2 * time.Minute
)

// NewKeycloakValidator fetches the JWKS, retrying with backoff, and returns a validator.
func NewKeycloakValidator(
	ctx context.Context,
	jwksURL,
	issuer,
	audience string,
	refreshEvery,
	clockSkew time.Duration,
	logger zerolog.Logger,
) (*KeycloakValidator, error) {
	if jwksURL == "" {
		return nil, errors.New("jwks url is required")
	}

	v := newKeycloakValidator(issuer, audience, clockSkew, logger)
	v.jwksURL = jwksURL
	if err := v.initJWKS(ctx, refreshEvery); err != nil {
		return nil, err
	}
	return v, nil
}

func newKeycloakValidator(issuer, audience string, clockSkew time.Duration, logger zerolog.Logger) *KeycloakValidator {
	v := &KeycloakValidator{
		issuer:    issuer,
		audience:  audience,
		logger:    logger.With().Str("component", "keycloak-validator").Logger(),
		clockSkew: clockSkew,
		now:       func() time.Time { return time.Now().UTC() },
	}
	v.lastErr.Store(lastErrWrap{Err: nil})
	return v
}

func (v *KeycloakValidator) initJWKS(ctx context.Context, refreshEvery time.Duration) error {
	options := keyfunc.Options{
		Ctx: ctx,
		RefreshErrorHandler: func(err error) {
			v.lastErr.Store(lastErrWrap{Err: err})
			if err != nil {
				v.logger.Error().Err(err).Msg("jwks refresh failed")
			}
		},
		RefreshInterval:   refreshEvery,
		RefreshUnknownKID: true,
	}

	backoff := jwksInitialRetryInterval
	deadline := time.Now().Add(jwksInitialRetryTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	for attempt := 1; ; attempt++ {
		jwks, err := keyfunc.Get(v.jwksURL, options)
		if err == nil {
			v.lastErr.Store(lastErrWrap{Err: nil})
			v.jwks.Store(jwks)
			return nil
		}

		v.logger.Warn().
			Err(err).
			Str("jwks_url", v.jwksURL).
			Int("attempt", attempt).
			Msg("initial jwks fetch failed, retrying")

		select {
		case <-ctx.Done():
			return fmt.Errorf("fetch jwks: %w", ctx.Err())
		case <-time.After(backoff):
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("fetch jwks: %w", err)
		}
		backoff = min(backoff*2, jwksInitialRetryMaxBackoff)
	}
}

// Validate parses and validates the given JWT returning principal claims.
func (v *KeycloakValidator) Validate(_ context.Context, rawToken string) (*PrincipalClaims, error) {
	jwks := v.jwks.Load()
	if jwks == nil {
		return nil, errors.New("jwks not initialised")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithoutClaimsValidation(),
	)
	token, err := parser.ParseWithClaims(rawToken, jwt.MapClaims{}, jwks.Keyfunc)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims")
	}
	return v.principal(mapClaims)
}

func (v *KeycloakValidator) principal(mapClaims jwt.MapClaims) (*PrincipalClaims, error) {
	iss := claimString(mapClaims["iss"])
	if iss != v.issuer {
		return nil, fmt.Errorf("issuer mismatch %s", iss)
	}

	var audiences []string
	if audRaw, ok := mapClaims["aud"]; ok {
		switch val := audRaw.(type) {
		case string:
			audiences = append(audiences, val)
		case []interface{}:
			for _, item := range val {
				if s, ok := item.(string); ok {
					audiences = append(audiences, s)
				}
			}
		default:
			return nil, fmt.Errorf("aud claim unsupported type %T", val)
		}
	}
	if v.audience != "" && !contains(audiences, v.audience) {
		return nil, errors.New("audience mismatch")
	}

	sub := claimString(mapClaims["sub"])
	if sub == "" {
		return nil, errors.New("sub claim missing")
	}

	expires := jwtNumericTime(mapClaims["exp"])
	notBefore := jwtNumericTime(mapClaims["nbf"])

	now := v.now()
	if !expires.IsZero() && now.After(expires.Add(v.clockSkew)) {
		return nil, errors.New("token expired")
	}
	if !notBefore.IsZero() && now.Add(v.clockSkew).Before(notBefore) {
		return nil, errors.New("token not yet valid")
	}

	return &PrincipalClaims{
		Subject:           sub,
		Issuer:            iss,
		Audience:          audiences,
		PreferredUsername: claimString(mapClaims["preferred_username"]),
		Email:             claimString(mapClaims["email"]),
		ExpiresAt:         expires,
		NotBefore:         notBefore,
	}, nil
}

// Ready indicates whether JWKS has been successfully loaded.
func (v *KeycloakValidator) Ready() bool {
	if v.jwks.Load() == nil {
		return false
	}
	if wrap, ok := v.lastErr.Load().(lastErrWrap); ok && wrap.Err != nil {
		return false
	}
	return true
}

func jwtNumericTime(value any) time.Time {
	switch timeValue := value.(type) {
	case float64:
		return time.Unix(int64(timeValue), 0).UTC()
	case int64:
		return time.Unix(timeValue, 0).UTC()
	case json.Number:
		if unixTime, err := timeValue.Int64(); err == nil {
			return time.Unix(unixTime, 0).UTC()
		}
	}
	return time.Time{}
}

func claimString(value any) string {
	if str, ok := value.(string); ok {
		return str
	}
	return ""
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
