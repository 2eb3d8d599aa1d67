package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// secretJSONKey is the field read when the secret is stored as a JSON object.
const secretJSONKey = "GROQ_API_KEY"

// ErrNoAPIKey is returned when neither the environment nor the secret store yields a key.
var ErrNoAPIKey = errors.New("provider API key not configured")

// SecretFetcher reads a secret string by name.
type SecretFetcher interface {
	GetSecretString(ctx context.Context, name string) (string, error)
}

// KeyResolver resolves the provider API key once and caches it.
// Concurrent first calls share one lookup; a failed lookup is retried on the next call.
type KeyResolver struct {
	staticKey  string
	secretName string
	fetcher    SecretFetcher
	log        zerolog.Logger

	group  singleflight.Group
	mu     sync.RWMutex
	cached string
}

// NewKeyResolver creates a resolver. staticKey wins when set; otherwise secretName is read through fetcher.
func NewKeyResolver(staticKey, secretName string, fetcher SecretFetcher, log zerolog.Logger) *KeyResolver {
	return &KeyResolver{
		staticKey:  strings.TrimSpace(staticKey),
		secretName: secretName,
		fetcher:    fetcher,
		log:        log.With().Str("component", "provider-credentials").Logger(),
	}
}

// Resolve returns the API key.
func (r *KeyResolver) Resolve(ctx context.Context) (string, error) {
	r.mu.RLock()
	cached := r.cached
	r.mu.RUnlock()
	if cached != "" {
		return cached, nil
	}

	// the shared lookup outlives any single caller; each caller still honours its own ctx
	lookupCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan("api-key", func() (interface{}, error) {
		r.mu.RLock()
		cached := r.cached
		r.mu.RUnlock()
		if cached != "" {
			return cached, nil
		}

		key, err := r.lookup(lookupCtx)
		if err != nil {
			return "", err
		}

		r.mu.Lock()
		r.cached = key
		r.mu.Unlock()
		return key, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if res.Err != nil {
		return "", res.Err
	}
	return res.Val.(string), nil
}

func (r *KeyResolver) lookup(ctx context.Context) (string, error) {
	if r.staticKey != "" {
		r.log.Debug().Msg("using API key from environment")
		return r.staticKey, nil
	}
	if r.fetcher == nil || r.secretName == "" {
		return "", ErrNoAPIKey
	}

	raw, err := r.fetcher.GetSecretString(ctx, r.secretName)
	if err != nil {
		r.log.Error().Err(err).Str("secret", r.secretName).Msg("failed to read API key secret")
		return "", fmt.Errorf("read secret %s: %w", r.secretName, err)
	}
	key := parseSecret(raw)
	if key == "" {
		return "", ErrNoAPIKey
	}
	r.log.Info().Str("secret", r.secretName).Msg("API key loaded from secrets manager")
	return key, nil
}

// parseSecret accepts either {"GROQ_API_KEY": "..."} or the bare key.
func parseSecret(raw string) string {
	raw = strings.TrimSpace(raw)
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &obj); err == nil {
		if v, ok := obj[secretJSONKey].(string); ok {
			return strings.TrimSpace(v)
		}
		return ""
	}
	return raw
}

// AWSSecretFetcher reads secrets from AWS Secrets Manager. The client is built on first successful use.
type AWSSecretFetcher struct {
	region string

	mu     sync.Mutex
	client *secretsmanager.Client
}

// NewAWSSecretFetcher creates a fetcher for region; an empty region uses the SDK default chain.
func NewAWSSecretFetcher(region string) *AWSSecretFetcher {
	return &AWSSecretFetcher{region: region}
}

func (f *AWSSecretFetcher) GetSecretString(ctx context.Context, name string) (string, error) {
	client, err := f.getClient(ctx)
	if err != nil {
		return "", err
	}

	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return "", err
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", name)
	}
	return *out.SecretString, nil
}

func (f *AWSSecretFetcher) getClient(ctx context.Context) (*secretsmanager.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.client != nil {
		return f.client, nil
	}
	opts := []func(*awsconfig.LoadOptions) error{}
	if f.region != "" {
		opts = append(opts, awsconfig.WithRegion(f.region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	f.client = secretsmanager.NewFromConfig(awsCfg)
	return f.client, nil
}
