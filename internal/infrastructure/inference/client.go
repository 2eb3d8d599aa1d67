package inference

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"resty.dev/v3"

	"github.com/janhq/companion-relay/internal/utils/platformerrors"
)

const (
	channelBufferSize    = 100
	errorBufferSize      = 10
	dataPrefix           = "data: "
	doneMarker           = "[DONE]"
	scannerInitialBuffer = 12 * 1024        // 12KB
	scannerMaxBuffer     = 10 * 1024 * 1024 // 10MB
)

type streamUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type streamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *streamUsage `json:"usage"`
	// Groq reports usage on the final chunk under x_groq.
	XGroq *struct {
		Usage *streamUsage `json:"usage"`
	} `json:"x_groq"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// StreamResult is the accumulated outcome of a streamed chat completion.
type StreamResult struct {
	Content string
	Model   string
	// Usage is nil when the upstream did not report token usage.
	Usage *streamUsage
}

// ChatClient talks to an OpenAI-compatible chat completions endpoint.
type ChatClient struct {
	client  *resty.Client
	baseURL string
	name    string
	log     zerolog.Logger
}

// NewChatClient creates a client for baseURL. timeout bounds each whole request.
func NewChatClient(name, baseURL string, timeout time.Duration, log zerolog.Logger) *ChatClient {
	c := &ChatClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		name:    name,
		log:     log.With().Str("component", "chat-client").Str("client", name).Logger(),
	}

	client := resty.New()
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	client.AddResponseMiddleware(func(_ *resty.Client, r *resty.Response) error {
		c.log.Debug().
			Int("status", r.StatusCode()).
			Str("method", r.Request.Method).
			Dur("latency", r.Duration()).
			Msg("HTTP client request")
		return nil
	})
	c.client = client
	return c
}

// Close releases idle connections.
func (c *ChatClient) Close() error {
	return c.client.Close()
}

// CreateChatCompletion performs a non-streaming request.
func (c *ChatClient) CreateChatCompletion(ctx context.Context, apiKey string, request openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	request.Stream = false
	request.StreamOptions = nil

	var respBody openai.ChatCompletionResponse
	resp, err := c.prepareRequest(ctx, apiKey).
		SetBody(request).
		SetResult(&respBody).
		Post(c.baseURL + "/chat/completions")
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "chat completion request failed")
	}
	if resp.IsError() {
		return nil, c.errorFromResponse(ctx, resp, "chat completion request failed")
	}
	return &respBody, nil
}

// StreamChatCompletion streams a completion, calling onDelta for every non-empty content delta in order.
func (c *ChatClient) StreamChatCompletion(ctx context.Context, apiKey string, request openai.ChatCompletionRequest, onDelta func(string)) (*StreamResult, error) {
	request.Stream = true
	request.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	dataChan := make(chan string, channelBufferSize)
	errChan := make(chan error, errorBufferSize)

	var wg sync.WaitGroup
	wg.Add(1)
	go c.streamResponseToChannel(streamCtx, apiKey, request, dataChan, errChan, &wg)

	result := &StreamResult{Model: request.Model}
	var content strings.Builder

	finish := func(err error) (*StreamResult, error) {
		cancel()
		wg.Wait()
		if err != nil {
			return nil, err
		}
		result.Content = content.String()
		return result, nil
	}

	for {
		select {
		case line, ok := <-dataChan:
			if !ok {
				// producer finished without [DONE]; surface cancellation or any pending error
				if ctx.Err() != nil {
					return finish(platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, ctx.Err(), "streaming context cancelled"))
				}
				select {
				case err := <-errChan:
					return finish(platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "streaming error"))
				default:
				}
				return finish(nil)
			}

			data, found := strings.CutPrefix(line, dataPrefix)
			if !found {
				continue
			}
			data = strings.TrimSpace(data)
			if data == doneMarker {
				return finish(nil)
			}

			chunk, err := c.parseChunk(data)
			if err != nil {
				continue
			}
			if chunk.Error != nil {
				return finish(platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal,
					"upstream stream error: "+chunk.Error.Message, nil, ""))
			}
			if chunk.Model != "" {
				result.Model = chunk.Model
			}
			if chunk.Usage != nil {
				result.Usage = chunk.Usage
			} else if chunk.XGroq != nil && chunk.XGroq.Usage != nil {
				result.Usage = chunk.XGroq.Usage
			}
			for _, choice := range chunk.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				content.WriteString(choice.Delta.Content)
				onDelta(choice.Delta.Content)
			}

		case err := <-errChan:
			return finish(platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "streaming error"))

		case <-ctx.Done():
			return finish(platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, ctx.Err(), "streaming context cancelled"))
		}
	}
}

func (c *ChatClient) parseChunk(data string) (*streamChunk, error) {
	var chunk streamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		c.log.Error().Err(err).Str("data", data).Msg("failed to parse stream chunk JSON")
		return nil, err
	}
	return &chunk, nil
}

func (c *ChatClient) prepareRequest(ctx context.Context, apiKey string) *resty.Request {
	req := c.client.R().SetContext(ctx)
	req.SetHeader("Content-Type", "application/json")
	if strings.TrimSpace(apiKey) != "" {
		req.SetHeader("Authorization", fmt.Sprintf("Bearer %s", apiKey))
	}
	return req
}

func (c *ChatClient) doStreamingRequest(ctx context.Context, apiKey string, request openai.ChatCompletionRequest) (*resty.Response, error) {
	resp, err := c.prepareRequest(ctx, apiKey).
		SetHeader("Accept", "text/event-stream").
		SetHeader("Accept-Encoding", "identity").
		SetBody(request).
		SetDoNotParseResponse(true).
		Post(c.baseURL + "/chat/completions")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, c.errorFromResponse(ctx, resp, "streaming request failed")
	}
	if resp.RawResponse == nil || resp.RawResponse.Body == nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal,
			"streaming request failed: empty response body", nil, "")
	}
	return resp, nil
}

func (c *ChatClient) streamResponseToChannel(ctx context.Context, apiKey string, request openai.ChatCompletionRequest, dataChan chan<- string, errChan chan<- error, wg *sync.WaitGroup) {
	defer wg.Done()
	defer close(dataChan)

	resp, err := c.doStreamingRequest(ctx, apiKey, request)
	if err != nil {
		sendAsyncError(errChan, err)
		return
	}
	defer func() {
		if closeErr := resp.RawResponse.Body.Close(); closeErr != nil {
			c.log.Error().Err(closeErr).Msg("unable to close response body")
		}
	}()

	scanner := bufio.NewScanner(resp.RawResponse.Body)
	scanner.Buffer(make([]byte, 0, scannerInitialBuffer), scannerMaxBuffer)

	for scanner.Scan() {
		select {
		case dataChan <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		sendAsyncError(errChan, err)
	}
}

func (c *ChatClient) errorFromResponse(ctx context.Context, resp *resty.Response, message string) error {
	errorType := platformerrors.ErrorTypeExternal
	if resp.StatusCode() == http.StatusTooManyRequests {
		errorType = platformerrors.ErrorTypeRateLimited
	}

	detail := strings.TrimSpace(resp.String())
	if detail == "" && resp.RawResponse != nil && resp.RawResponse.Body != nil {
		body, _ := io.ReadAll(io.LimitReader(resp.RawResponse.Body, 64*1024))
		_ = resp.RawResponse.Body.Close()
		detail = strings.TrimSpace(string(body))
	}
	if detail == "" {
		detail = fmt.Sprintf("status %d", resp.StatusCode())
	}
	return platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, errorType,
		fmt.Sprintf("%s: %s", message, detail), nil, "")
}

func sendAsyncError(errChan chan<- error, err error) {
	if err == nil {
		return
	}
	select {
	case errChan <- err:
	default:
	}
}
