package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/reviewgate/reviewgate/pkg/errors"
	"github.com/reviewgate/reviewgate/pkg/logger"
	"go.uber.org/zap"
)

const systemPrompt = `You are a code review assistant. You receive the results of deterministic checks over a merge request, bounded code snippets, and precedent material. Respond with a single JSON object: {"summary": string, "suggestions": [{"checkKey": string, "filePath": string, "line": number, "title": string, "body": string, "suggestedFix": string | string[]}]}. Keep suggestions concrete and scoped to the findings. Do not invent files or lines you were not shown.`

// OpenAIConfig configures the chat-completions adapter.
type OpenAIConfig struct {
	BaseURL string // e.g. https://api.openai.com/v1
	APIKey  string
	Model   string
	Timeout time.Duration
}

// OpenAIClient talks to an OpenAI-compatible chat completion endpoint.
type OpenAIClient struct {
	cfg  OpenAIConfig
	http *retryablehttp.Client
}

// NewOpenAIClient builds the adapter. Transient failures (429, 5xx,
// network) are retried up to three times; auth failures are not.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 1 * time.Second
	rc.RetryWaitMax = 10 * time.Second
	rc.Logger = nil
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			return true, nil
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return false, nil
		}
		return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500, nil
	}

	return &OpenAIClient{cfg: cfg, http: rc}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// rawSuggestion defers suggestedFix decoding; models return either a
// string or an array there.
type rawSuggestion struct {
	CheckKey     string          `json:"checkKey"`
	FilePath     string          `json:"filePath"`
	Line         int             `json:"line"`
	Title        string          `json:"title"`
	Body         string          `json:"body"`
	SuggestedFix json.RawMessage `json:"suggestedFix"`
}

type rawResponse struct {
	Summary     string          `json:"summary"`
	Suggestions []rawSuggestion `json:"suggestions"`
}

// Review sends the bounded findings to the model and parses its
// suggestions. The call is bounded by the configured timeout, retries
// included.
func (c *OpenAIClient) Review(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	payload, err := json.Marshal(buildUserPayload(req))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "marshal review payload", err)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(payload)},
		},
		Temperature:    0.2,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "marshal chat request", err)
	}

	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "build chat request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.Wrap(errors.ErrCodeAITimeout, "model call timed out", err)
		}
		return nil, errors.Wrap(errors.ErrCodeAINetwork, "model call failed", err)
	}
	defer resp.Body.Close()

	logger.Debug("model call finished",
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errors.New(errors.ErrCodeAIAuth, "model endpoint rejected credentials").WithStatusCode(resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errors.New(errors.ErrCodeAIRateLimit, "model endpoint rate limited").WithStatusCode(resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, errors.New(errors.ErrCodeAINetwork,
			fmt.Sprintf("model endpoint returned status %d", resp.StatusCode)).WithStatusCode(resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAINetwork, "read model response", err)
	}

	return parseChatResponse(data, req.MaxSuggestions)
}

func parseChatResponse(data []byte, maxSuggestions int) (*Response, error) {
	var chat chatResponse
	if err := json.Unmarshal(data, &chat); err != nil {
		return nil, errors.Wrap(errors.ErrCodeAIParse, "decode chat envelope", err)
	}
	if len(chat.Choices) == 0 {
		return nil, errors.New(errors.ErrCodeAIParse, "chat response has no choices")
	}

	content := strings.TrimSpace(chat.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var raw rawResponse
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, errors.Wrap(errors.ErrCodeAIParse, "decode suggestion payload", err)
	}

	if maxSuggestions <= 0 {
		maxSuggestions = DefaultMaxSuggestions
	}
	if len(raw.Suggestions) > maxSuggestions {
		raw.Suggestions = raw.Suggestions[:maxSuggestions]
	}

	out := &Response{Summary: strings.TrimSpace(raw.Summary)}
	for _, rs := range raw.Suggestions {
		out.Suggestions = append(out.Suggestions, Suggestion{
			CheckKey:     rs.CheckKey,
			FilePath:     rs.FilePath,
			Line:         rs.Line,
			Title:        strings.TrimSpace(rs.Title),
			Body:         strings.TrimSpace(rs.Body),
			SuggestedFix: normalizeFix(rs.SuggestedFix),
		})
	}
	return out, nil
}

func buildUserPayload(req Request) map[string]interface{} {
	max := req.MaxSuggestions
	if max <= 0 {
		max = DefaultMaxSuggestions
	}
	return map[string]interface{}{
		"mergeRequest": map[string]string{
			"title":       req.MRTitle,
			"description": req.MRDescription,
		},
		"findings":        req.Findings,
		"precedents":      req.Precedents,
		"guidelines":      req.Guidelines,
		"redactionReport": req.Redaction,
		"maxSuggestions":  max,
	}
}
