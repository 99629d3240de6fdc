package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tokenwatch/internal/domain"
	"github.com/kailas-cloud/tokenwatch/internal/domain/usage"
	"github.com/kailas-cloud/tokenwatch/internal/usecase/accounting"
)

// Recorder accounts one usage event.
type Recorder interface {
	Record(ctx context.Context, ev usage.Event) accounting.Result
}

// Client is an OpenAI-compatible chat client that records the usage of every
// successful completion.
type Client struct {
	client   *openai.Client
	recorder Recorder
	logger   *zap.Logger
}

// Config holds the provider settings.
type Config struct {
	APIKey   string
	BaseURL  string
	Recorder Recorder
	Logger   *zap.Logger
}

// NewClient creates a metered chat client.
func NewClient(cfg *Config) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		client:   openai.NewClientWithConfig(clientCfg),
		recorder: cfg.Recorder,
		logger:   logger,
	}
}

// CreateChatCompletion calls the provider and records the response usage
// against the group (if any) or the user's private session.
func (c *Client) CreateChatCompletion(
	ctx context.Context,
	groupID, userID string,
	req openai.ChatCompletionRequest,
) (openai.ChatCompletionResponse, accounting.Result, error) {
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return openai.ChatCompletionResponse{}, accounting.Result{}, parseAPIError(err)
	}

	res := c.recorder.Record(ctx, EventFromCompletion(resp, groupID, userID))
	if !res.Recorded {
		c.logger.Debug("Completion carried no usage",
			zap.String("model", resp.Model),
			zap.String("user", userID),
		)
	}
	return resp, res, nil
}

// parseAPIError extracts a readable error from the provider response.
// All errors wrap domain.ErrProviderError.
func parseAPIError(err error) error {
	wrap := domain.ErrProviderError

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if detail := extractDetail(reqErr.Body); detail != "" {
			return fmt.Errorf("completion API error %d: %s: %w",
				reqErr.HTTPStatusCode, detail, wrap)
		}
		return fmt.Errorf("completion API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("completion API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("completion request failed: %w", wrap)
}

// extractDetail reads the "detail" field some compatible providers return.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
