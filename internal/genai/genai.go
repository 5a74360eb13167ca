// Package genai provides text generation and embeddings over the OpenAI API.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Defaults used when no option overrides them.
const (
	DefaultModel          = openai.ChatModelGPT4oMini
	DefaultEmbeddingModel = openai.EmbeddingModelTextEmbedding3Small
	DefaultTemperature    = 0.3
	DefaultMaxTokens      = 1024
)

var (
	// ErrNoAPIKey is returned by NewClient when no API key is configured.
	ErrNoAPIKey = errors.New("OPENAI_API_KEY not set")
	// ErrNoChoicesReturned is returned when the API answers without a completion.
	ErrNoChoicesReturned = errors.New("no choices returned")
	// ErrEmbeddingCount is returned when the API returns a different number of vectors than inputs.
	ErrEmbeddingCount = errors.New("embedding count mismatch")
)

// chatService is the subset of chat completions the client needs; tests inject fakes.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
	Stream(ctx context.Context, params openai.ChatCompletionNewParams) chunkStream
}

// chunkStream is satisfied by the SDK's server-sent event stream.
type chunkStream interface {
	Next() bool
	Current() openai.ChatCompletionChunk
	Err() error
	Close() error
}

// embeddingService creates embeddings.
type embeddingService interface {
	Create(ctx context.Context, params openai.EmbeddingNewParams) (openai.CreateEmbeddingResponse, error)
}

type completionsAdapter struct {
	svc *openai.ChatCompletionService
}

func (a completionsAdapter) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := a.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

func (a completionsAdapter) Stream(ctx context.Context, params openai.ChatCompletionNewParams) chunkStream {
	return a.svc.NewStreaming(ctx, params)
}

type embeddingsAdapter struct {
	svc *openai.EmbeddingService
}

func (a embeddingsAdapter) Create(ctx context.Context, params openai.EmbeddingNewParams) (openai.CreateEmbeddingResponse, error) {
	resp, err := a.svc.New(ctx, params)
	if err != nil {
		return openai.CreateEmbeddingResponse{}, err
	}
	return *resp, nil
}

// Client wraps the OpenAI chat completion and embedding services.
type Client struct {
	chat           chatService
	embeddings     embeddingService
	model          string
	embeddingModel string
	temperature    float64
	maxTokens      int
	debugMode      bool
	stateDir       string
}

// Opts holds configuration for a Client.
type Opts struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	Temperature    float64
	MaxTokens      int
	DebugMode      bool
	StateDir       string
}

// Option configures a Client.
type Option func(*Opts)

// WithAPIKey sets the API key; it overrides OPENAI_API_KEY.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithEmbeddingModel sets the embedding model.
func WithEmbeddingModel(model string) Option {
	return func(o *Opts) { o.EmbeddingModel = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// WithMaxTokens bounds the completion length.
func WithMaxTokens(n int) Option {
	return func(o *Opts) { o.MaxTokens = n }
}

// WithDebugMode writes every request and response as JSON under stateDir/debug.
func WithDebugMode(enabled bool, stateDir string) Option {
	return func(o *Opts) {
		o.DebugMode = enabled
		o.StateDir = stateDir
	}
}

// NewClient creates a Client. The API key comes from WithAPIKey or OPENAI_API_KEY.
func NewClient(opts ...Option) (*Client, error) {
	o := Opts{
		Model:          string(DefaultModel),
		EmbeddingModel: string(DefaultEmbeddingModel),
		Temperature:    DefaultTemperature,
		MaxTokens:      DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.APIKey == "" {
		o.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if o.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(o.APIKey)}
	if o.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(o.BaseURL))
	}
	cli := openai.NewClient(reqOpts...)
	slog.Info("genai.NewClient: client configured", "model", o.Model, "embedding_model", o.EmbeddingModel, "custom_base_url", o.BaseURL != "", "debug", o.DebugMode)
	return &Client{
		chat:           completionsAdapter{svc: &cli.Chat.Completions},
		embeddings:     embeddingsAdapter{svc: &cli.Embeddings},
		model:          o.Model,
		embeddingModel: o.EmbeddingModel,
		temperature:    o.Temperature,
		maxTokens:      o.MaxTokens,
		debugMode:      o.DebugMode,
		stateDir:       o.StateDir,
	}, nil
}

// Name identifies the generator in logs and responses.
func (c *Client) Name() string { return "openai:" + c.model }

func (c *Client) params(systemPrompt, userPrompt string) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature:         openai.Float(c.temperature),
		MaxCompletionTokens: openai.Int(int64(c.maxTokens)),
	}
}

// Generate returns a single completion for the system and user prompts.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	params := c.params(systemPrompt, userPrompt)
	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		slog.Error("Client.Generate: completion failed", "model", c.model, "error", err)
		return "", fmt.Errorf("chat completion: %w", err)
	}
	c.writeDebugLog("Generate", params, resp)
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	out := resp.Choices[0].Message.Content
	slog.Debug("Client.Generate: completion received", "model", c.model, "length", len(out))
	return out, nil
}

// Stream yields completion fragments as they arrive. A failure is yielded once as the final
// element. Breaking out of the loop closes the underlying stream.
func (c *Client) Stream(ctx context.Context, systemPrompt, userPrompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		params := c.params(systemPrompt, userPrompt)
		stream := c.chat.Stream(ctx, params)
		defer stream.Close()

		var sb strings.Builder
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			sb.WriteString(delta)
			if !yield(delta, nil) {
				slog.Debug("Client.Stream: consumer stopped", "model", c.model, "received", sb.Len())
				return
			}
		}
		if err := stream.Err(); err != nil {
			slog.Error("Client.Stream: stream failed", "model", c.model, "error", err)
			yield("", fmt.Errorf("chat completion stream: %w", err))
			return
		}
		c.writeDebugLog("Stream", params, map[string]string{"content": sb.String()})
	}
}

// Embed returns one vector per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := c.embeddings.Create(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.embeddingModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		slog.Error("Client.Embed: embedding request failed", "model", c.embeddingModel, "items", len(texts), "error", err)
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d for %d inputs", ErrEmbeddingCount, len(resp.Data), len(texts))
	}
	out := make([][]float64, len(texts))
	for i, d := range resp.Data {
		idx := int(d.Index)
		if idx < 0 || idx >= len(out) {
			idx = i
		}
		out[idx] = d.Embedding
	}
	slog.Debug("Client.Embed: embeddings received", "model", c.embeddingModel, "items", len(out))
	return out, nil
}

// writeDebugLog records one API exchange when debug mode is on. Failures are logged and ignored.
func (c *Client) writeDebugLog(method string, params, response any) {
	if !c.debugMode || c.stateDir == "" {
		return
	}
	dir := filepath.Join(c.stateDir, "debug")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("Client.writeDebugLog: cannot create debug dir", "dir", dir, "error", err)
		return
	}
	now := time.Now().UTC()
	entry := map[string]any{
		"timestamp": now.Format(time.RFC3339Nano),
		"method":    method,
		"model":     c.model,
		"params":    params,
		"response":  response,
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		slog.Warn("Client.writeDebugLog: marshal failed", "error", err)
		return
	}
	name := fmt.Sprintf("%s_%s.json", now.Format("20060102T150405.000000000"), strings.ToLower(method))
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		slog.Warn("Client.writeDebugLog: write failed", "file", name, "error", err)
	}
}
