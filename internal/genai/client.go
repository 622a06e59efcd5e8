// Package genai talks to the Gemini REST API for structured text generation
// and to Veo for long-running video generation jobs.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/config"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/pipeline/core"
)

const op = "genai"

// Generator produces JSON conforming to a response schema.
type Generator interface {
	Generate(ctx context.Context, prompt, systemInstruction string, schema *Schema) (json.RawMessage, error)
}

// Schema is the subset of the OpenAPI schema object Gemini accepts as a
// responseSchema.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
}

// Schema type names.
const (
	TypeObject  = "OBJECT"
	TypeArray   = "ARRAY"
	TypeString  = "STRING"
	TypeNumber  = "NUMBER"
	TypeInteger = "INTEGER"
	TypeBoolean = "BOOLEAN"
)

// Object builds an OBJECT schema where every property is required.
func Object(props map[string]*Schema) *Schema {
	req := make([]string, 0, len(props))
	for k := range props {
		req = append(req, k)
	}
	slices.Sort(req)
	return &Schema{Type: TypeObject, Properties: props, Required: req}
}

// ArrayOf builds an ARRAY schema.
func ArrayOf(items *Schema) *Schema { return &Schema{Type: TypeArray, Items: items} }

// String builds a STRING schema.
func String() *Schema { return &Schema{Type: TypeString} }

// Number builds a NUMBER schema.
func Number() *Schema { return &Schema{Type: TypeNumber} }

// Decode runs g and unmarshals the result into T.
func Decode[T any](ctx context.Context, g Generator, prompt, systemInstruction string, schema *Schema) (T, error) {
	var out T
	raw, err := g.Generate(ctx, prompt, systemInstruction, schema)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, core.Wrap(core.ErrGeneration, op, err, "decoding generated JSON")
	}
	return out, nil
}

// Client is a Gemini API client.
type Client struct {
	cfg          config.GenAIConfig
	httpClient   *http.Client
	httpExecutor failsafe.Executor[*http.Response]
	logger       *slog.Logger
	baseDelay    time.Duration
	maxDelay     time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRetryBackoff sets the retry backoff bounds.
func WithRetryBackoff(base, ceiling time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = base
		c.maxDelay = ceiling
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a new Client.
func NewClient(cfg config.GenAIConfig, opts ...Option) *Client {
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		logger:     slog.Default(),
		baseDelay:  500 * time.Millisecond,
		maxDelay:   10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpExecutor = newHTTPExecutor(cfg.MaxRetries, c.baseDelay, c.maxDelay)
	return c
}

// shouldRetry retries on network errors, rate limits and server errors.
func shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if resp == nil {
		return true
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
}

//nolint:bodyclose // *http.Response is a type parameter here
func newHTTPExecutor(maxRetries int, base, ceiling time.Duration) failsafe.Executor[*http.Response] {
	policy := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(base, ceiling).
		WithMaxRetries(maxRetries).
		WithJitterFactor(0.1).
		HandleIf(shouldRetry).
		ReturnLastFailure().
		Build()
	return failsafe.With[*http.Response](policy)
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType"`
	ResponseSchema   *Schema `json:"responseSchema,omitempty"`
}

type generateRequest struct {
	Contents          []content        `json:"contents"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	Error *apiError `json:"error"`
}

// Generate calls models/{text_model}:generateContent in JSON mode and returns
// the model's JSON output.
func (c *Client) Generate(ctx context.Context, prompt, systemInstruction string, schema *Schema) (json.RawMessage, error) {
	reqBody := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:      c.cfg.Temperature,
			ResponseMimeType: "application/json",
			ResponseSchema:   schema,
		},
	}
	if systemInstruction != "" {
		reqBody.SystemInstruction = &content{Parts: []part{{Text: systemInstruction}}}
	}

	var genResp generateResponse
	url := fmt.Sprintf("%s/models/%s:generateContent", c.cfg.BaseURL, c.cfg.TextModel)
	if err := c.postJSON(ctx, url, reqBody, &genResp); err != nil {
		return nil, err
	}
	if genResp.Error != nil {
		return nil, core.Errorf(core.ErrGeneration, op, "api error %d: %s", genResp.Error.Code, genResp.Error.Message)
	}
	if len(genResp.Candidates) == 0 {
		return nil, core.Errorf(core.ErrGeneration, op, "no candidates returned")
	}

	var sb strings.Builder
	for _, p := range genResp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := cleanJSON(sb.String())
	if text == "" {
		return nil, core.Errorf(core.ErrGeneration, op, "empty response (finish reason %q)", genResp.Candidates[0].FinishReason)
	}
	if !json.Valid([]byte(text)) {
		return nil, core.Errorf(core.ErrGeneration, op, "response is not valid JSON: %s", truncate(text, 200))
	}

	c.logger.DebugContext(ctx, "generation complete",
		slog.String("model", c.cfg.TextModel),
		slog.Int("bytes", len(text)),
	)
	return json.RawMessage(text), nil
}

func (c *Client) postJSON(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, out)
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	return c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}, out)
}

// do executes the request through the retry executor and decodes a JSON
// response into out. Non-2xx responses carrying an API error body are
// decoded too, so the caller sees the message.
func (c *Client) do(ctx context.Context, build func(ctx context.Context) (*http.Request, error), out any) error {
	resp, err := c.send(ctx, build)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.Wrap(core.ErrGeneration, op, err, "reading response")
	}

	if resp.StatusCode >= 300 {
		var wrapped struct {
			Error *apiError `json:"error"`
		}
		if json.Unmarshal(data, &wrapped) == nil && wrapped.Error != nil {
			return core.Errorf(core.ErrGeneration, op, "api error %d: %s", wrapped.Error.Code, wrapped.Error.Message)
		}
		return core.Errorf(core.ErrGeneration, op, "HTTP %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return core.Wrap(core.ErrGeneration, op, err, "parsing response")
	}
	return nil
}

// send runs one logical request with retries. The returned response body is
// open and owned by the caller.
func (c *Client) send(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	resp, err := c.httpExecutor.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("x-goog-api-key", c.cfg.APIKey)
		resp, err := c.httpClient.Do(req)
		if shouldRetry(resp, err) && resp != nil {
			c.logger.WarnContext(ctx, "retryable generation response", slog.Int("status", resp.StatusCode))
			// Buffer the body so the last failure can still be reported once
			// retries run out.
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
			_ = resp.Body.Close()
			resp.Body = io.NopCloser(bytes.NewReader(body))
		}
		return resp, err
	})
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if ctx.Err() != nil {
			return nil, core.Wrap(core.ErrGeneration, op, ctx.Err(), "request canceled")
		}
		return nil, core.Wrap(core.ErrGeneration, op, err, "request failed")
	}
	return resp, nil
}

// cleanJSON strips markdown fences if the model wraps its output in ```json ... ```
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
