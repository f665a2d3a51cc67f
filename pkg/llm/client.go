// Package llm wraps the OpenAI-compatible chat completion API used by the
// orchestrator and the pipeline agents. It adds overload backoff, structured
// JSON output parsing with a single corrective re-ask, and delta streaming.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
)

// streamBuffer bounds the delta channel so a stalled consumer applies
// backpressure instead of growing memory.
const streamBuffer = 32

// ErrOverloaded is returned when the provider keeps rejecting requests with
// rate-limit or server errors after all backoff attempts.
var ErrOverloaded = errors.New("llm provider overloaded")

// ParseError is returned when the model output cannot be decoded into the
// requested structure even after a corrective re-ask. Callers are expected
// to fall back to deterministic defaults.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse model output: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsParseError checks if an error is a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// Message is one chat turn sent to the model.
type Message struct {
	Role    string
	Content string
}

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Completer is the interface the orchestrator and agents program against.
type Completer interface {
	// Complete returns the full text of a single chat completion.
	Complete(ctx context.Context, msgs []Message) (string, error)
	// CompleteJSON completes and decodes the output into out, re-asking
	// once with the decode error before giving up with a ParseError.
	CompleteJSON(ctx context.Context, msgs []Message, out any) error
	// Stream returns a channel of text deltas and a single-error channel.
	// Both channels are closed when the stream ends.
	Stream(ctx context.Context, msgs []Message) (<-chan string, <-chan error)
}

// Config holds the provider settings for Client.
type Config struct {
	Model   string
	APIKey  string
	BaseURL string
	// Timeout bounds each individual completion call (not the stream).
	Timeout time.Duration
	// BackoffBase is the first wait after an overload response.
	BackoffBase time.Duration
	// MaxAttempts is the total number of tries per call.
	MaxAttempts int
}

// Client implements Completer on top of go-openai.
type Client struct {
	api         *openai.Client
	model       string
	timeout     time.Duration
	backoffBase time.Duration
	maxAttempts int
	logger      *slog.Logger
}

// NewClient creates a Client from config, applying defaults for the
// retry knobs when unset.
func NewClient(cfg Config) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}

	return &Client{
		api:         openai.NewClientWithConfig(apiCfg),
		model:       cfg.Model,
		timeout:     cfg.Timeout,
		backoffBase: cfg.BackoffBase,
		maxAttempts: cfg.MaxAttempts,
		logger:      slog.Default().With("component", "llm"),
	}
}

// Complete returns the full text of a single chat completion.
func (c *Client) Complete(ctx context.Context, msgs []Message) (string, error) {
	var content string
	err := c.withOverloadRetry(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := c.api.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model:    c.model,
			Messages: toOpenAI(msgs),
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("provider returned no choices")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

// CompleteJSON completes and decodes the model output into out. A decode
// failure triggers one corrective re-ask that quotes the bad output and the
// decode error; a second failure returns a ParseError.
func (c *Client) CompleteJSON(ctx context.Context, msgs []Message, out any) error {
	raw, err := c.Complete(ctx, msgs)
	if err != nil {
		return err
	}

	decodeErr := decodeJSON(raw, out)
	if decodeErr == nil {
		return nil
	}
	c.logger.Warn("model output failed to decode, re-asking",
		"error", decodeErr)

	retryMsgs := append(append([]Message{}, msgs...),
		Message{Role: RoleAssistant, Content: raw},
		Message{Role: RoleUser, Content: fmt.Sprintf(
			"Your previous reply was not valid JSON (%v). Respond again with ONLY the JSON object, no prose and no code fences.", decodeErr)},
	)
	raw, err = c.Complete(ctx, retryMsgs)
	if err != nil {
		return err
	}
	if decodeErr = decodeJSON(raw, out); decodeErr != nil {
		return &ParseError{Raw: raw, Err: decodeErr}
	}
	return nil
}

// Stream starts a streaming completion and forwards text deltas. The error
// channel carries at most one error; both channels close when the stream
// ends or ctx is cancelled.
func (c *Client) Stream(ctx context.Context, msgs []Message) (<-chan string, <-chan error) {
	deltas := make(chan string, streamBuffer)
	errs := make(chan error, 1)

	go func() {
		defer close(deltas)
		defer close(errs)

		var stream *openai.ChatCompletionStream
		err := c.withOverloadRetry(ctx, func() error {
			var err error
			stream, err = c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
				Model:    c.model,
				Messages: toOpenAI(msgs),
				Stream:   true,
			})
			return err
		})
		if err != nil {
			errs <- err
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errs <- fmt.Errorf("stream receive failed: %w", err)
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case deltas <- delta:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()

	return deltas, errs
}

// newOverloadBackoff builds the retry schedule for overload responses:
// jittered exponential backoff with the base wait doubling per attempt.
func newOverloadBackoff(base time.Duration) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = base
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0
	return bo
}

// withOverloadRetry retries op on 429/5xx responses per newOverloadBackoff.
// Exhausting all attempts yields ErrOverloaded wrapping the last provider
// error.
func (c *Client) withOverloadRetry(ctx context.Context, op func() error) error {
	bo := newOverloadBackoff(c.backoffBase)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if !isOverloadError(err) || attempt >= c.maxAttempts {
			return backoff.Permanent(err)
		}
		c.logger.Warn("provider overloaded, backing off",
			"attempt", attempt, "error", err)
		return err
	}, backoff.WithContext(bo, ctx))

	if err != nil && isOverloadError(err) {
		return fmt.Errorf("%w: %v", ErrOverloaded, err)
	}
	return err
}

// isOverloadError reports whether err is a rate-limit or server-side
// failure worth retrying.
func isOverloadError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}
	return false
}

func toOpenAI(msgs []Message) []openai.ChatCompletionMessage {
	converted := make([]openai.ChatCompletionMessage, len(msgs))
	for i, msg := range msgs {
		converted[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}
	return converted
}

// DecodeOutput decodes accumulated model output into out, tolerating code
// fences and surrounding prose. Used by callers that stream the raw text
// themselves and parse at the end.
func DecodeOutput(raw string, out any) error {
	return decodeJSON(raw, out)
}

// decodeJSON strips markdown code fences and decodes the first JSON value.
func decodeJSON(raw string, out any) error {
	cleaned := stripCodeFence(raw)
	if cleaned == "" {
		return errors.New("empty output")
	}
	return json.Unmarshal([]byte(cleaned), out)
}

// stripCodeFence removes a surrounding ```json ... ``` fence, if present,
// and trims to the outermost JSON object or array.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	// Models sometimes wrap JSON in prose. Keep the outermost value.
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	var end int
	if s[start] == '{' {
		end = strings.LastIndex(s, "}")
	} else {
		end = strings.LastIndex(s, "]")
	}
	if end <= start {
		return s
	}
	return s[start : end+1]
}
