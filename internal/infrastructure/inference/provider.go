package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/janhq/companion-relay/internal/domain/character"
	"github.com/janhq/companion-relay/internal/domain/relay"
	"github.com/janhq/companion-relay/internal/utils/platformerrors"
)

const profileDesignerPrompt = `You are a character designer for an AI companion service. Generate a detailed character profile based on the user's description. Return ONLY a JSON object with the following structure:
{
  "name": "string (character name)",
  "tone": "string (one of: playful, serious, romantic, professional, caring, adventurous)",
  "background": "string (2-3 sentences about character background)",
  "interests": ["array", "of", "3-5", "interests"],
  "speakingStyle": "string (describe how they communicate)",
  "systemPrompt": "string (detailed instructions for the AI to roleplay this character)"
}`

// ProviderConfig holds generation parameters.
type ProviderConfig struct {
	Model              string
	Temperature        float32
	MaxTokens          int
	TopP               float32
	ProfileTemperature float32
}

// Provider is the Groq-compatible completion provider.
type Provider struct {
	cfg    ProviderConfig
	client *ChatClient
	keys   *KeyResolver
	log    zerolog.Logger
}

var (
	_ relay.CompletionProvider   = (*Provider)(nil)
	_ character.ProfileGenerator = (*Provider)(nil)
)

// NewProvider wires the provider. Credentials are resolved lazily on the first request.
func NewProvider(cfg ProviderConfig, client *ChatClient, keys *KeyResolver, log zerolog.Logger) *Provider {
	if cfg.ProfileTemperature == 0 {
		cfg.ProfileTemperature = 0.8
	}
	return &Provider{
		cfg:    cfg,
		client: client,
		keys:   keys,
		log:    log.With().Str("component", "completion-provider").Str("model", cfg.Model).Logger(),
	}
}

// Close releases the underlying HTTP client.
func (p *Provider) Close() error {
	return p.client.Close()
}

// StreamCompletion implements relay.CompletionProvider.
func (p *Provider) StreamCompletion(ctx context.Context, messages []relay.ContextMessage, onIncrement func(string)) (*relay.Completion, error) {
	apiKey, err := p.keys.Resolve(ctx)
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal,
			"provider credentials unavailable", err, "")
	}

	request := openai.ChatCompletionRequest{
		Model:       p.cfg.Model,
		Messages:    toOpenAIMessages(messages),
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
		TopP:        p.cfg.TopP,
	}

	result, err := p.client.StreamChatCompletion(ctx, apiKey, request, onIncrement)
	if err != nil {
		p.log.Warn().Err(err).Int("messages", len(messages)).Msg("streaming completion failed")
		return nil, err
	}

	completion := &relay.Completion{
		Content: result.Content,
		Model:   result.Model,
	}
	if result.Usage != nil && result.Usage.CompletionTokens > 0 {
		completion.Tokens = result.Usage.CompletionTokens
	} else {
		completion.Tokens = relay.ApproximateTokens(result.Content)
		completion.TokensApproximate = true
	}
	return completion, nil
}

// GenerateProfile implements character.ProfileGenerator using JSON mode.
func (p *Provider) GenerateProfile(ctx context.Context, prompt string) (*character.GeneratedProfile, error) {
	apiKey, err := p.keys.Resolve(ctx)
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal,
			"provider credentials unavailable", err, "")
	}

	resp, err := p.client.CreateChatCompletion(ctx, apiKey, openai.ChatCompletionRequest{
		Model: p.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: profileDesignerPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Create a character based on this description: " + prompt},
		},
		Temperature: p.cfg.ProfileTemperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, err
	}

	content := "{}"
	if len(resp.Choices) > 0 && strings.TrimSpace(resp.Choices[0].Message.Content) != "" {
		content = resp.Choices[0].Message.Content
	}

	var profile character.GeneratedProfile
	if err := json.Unmarshal([]byte(content), &profile); err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal,
			fmt.Sprintf("provider returned invalid profile JSON: %v", err), err, "")
	}
	return &profile, nil
}

func toOpenAIMessages(messages []relay.ContextMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}
