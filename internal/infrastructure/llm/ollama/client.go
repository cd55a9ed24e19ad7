// Package ollama adapts the Ollama HTTP API to the chat, embedding,
// vision and reranking capability ports.
package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mkravchenko/groundedqa/internal/core/domain"
	"github.com/mkravchenko/groundedqa/internal/core/ports"
	"github.com/mkravchenko/groundedqa/internal/infrastructure/resilience"
)

type Client struct {
	baseURL      string
	chatModel    string
	embedModel   string
	visionModel  string
	httpClient   *http.Client
	embedTimeout time.Duration
	executor     *resilience.Executor
}

type Options struct {
	ChatTimeout        time.Duration
	EmbedTimeout       time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL, chatModel, embedModel, visionModel string, options Options) *Client {
	timeout := options.ChatTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		chatModel:    chatModel,
		embedModel:   embedModel,
		visionModel:  visionModel,
		httpClient:   &http.Client{Timeout: timeout},
		embedTimeout: options.EmbedTimeout,
		executor:     options.ResilienceExecutor,
	}
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatPayload struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// Complete implements the Chat port over /api/chat.
func (c *Client) Complete(ctx context.Context, req ports.ChatRequest) (string, error) {
	payload := chatPayload{
		Model:  c.chatModel,
		Stream: false,
		Options: map[string]any{
			"temperature": req.Temperature,
		},
	}
	if req.MaxTokens > 0 {
		payload.Options["num_predict"] = req.MaxTokens
	}
	if req.JSONMode {
		payload.Format = "json"
	}
	if req.System != "" {
		payload.Messages = append(payload.Messages, chatMessage{Role: "system", Content: req.System})
	}
	payload.Messages = append(payload.Messages, chatMessage{Role: "user", Content: req.User})

	var response chatResponse
	call := func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/api/chat", payload, &response, "chat")
	}
	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "ollama.chat", call, classifyOllamaError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", wrapByKind("chat completion", err)
	}
	return strings.TrimSpace(response.Message.Content), nil
}

// Embedder paces embedding requests through a shared limiter so batch
// ingestion cannot starve query embedding.
type Embedder struct {
	client  *Client
	limiter *rate.Limiter
	timeout time.Duration
}

func NewEmbedder(client *Client, requestsPerSecond float64) *Embedder {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	timeout := client.embedTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Embedder{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		timeout: timeout,
	}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	payload := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}
	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	call := func(callCtx context.Context) error {
		return e.client.postJSON(callCtx, "/api/embed", payload, &response, "embed")
	}
	var err error
	if e.client.executor != nil {
		err = e.client.executor.Execute(ctx, "ollama.embed", call, classifyOllamaError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, wrapByKind("embed texts", err)
	}
	if len(response.Embeddings) != len(texts) {
		return nil, domain.WrapError(domain.ErrSchemaViolation, "embed texts",
			fmt.Errorf("embeddings/texts mismatch: %d/%d", len(response.Embeddings), len(texts)))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// Vision captions image regions with the vision-capable model.
type Vision struct {
	client *Client
}

func NewVision(client *Client) *Vision {
	return &Vision{client: client}
}

func (v *Vision) Describe(ctx context.Context, image []byte) (string, error) {
	payload := chatPayload{
		Model:  v.client.visionModel,
		Stream: false,
		Messages: []chatMessage{{
			Role:    "user",
			Content: "Describe this image from a document: the type of chart or figure, what it shows, and any visible numbers or labels.",
			Images:  []string{base64.StdEncoding.EncodeToString(image)},
		}},
	}

	var response chatResponse
	call := func(callCtx context.Context) error {
		return v.client.postJSON(callCtx, "/api/chat", payload, &response, "vision")
	}
	var err error
	if v.client.executor != nil {
		err = v.client.executor.Execute(ctx, "ollama.vision", call, classifyOllamaError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", wrapByKind("describe image", err)
	}
	return strings.TrimSpace(response.Message.Content), nil
}

// Reranker rescores candidates with a scoring prompt. Only monotone
// rescoring is promised; the core computes score deltas itself.
type Reranker struct {
	client *Client
}

func NewReranker(client *Client) *Reranker {
	return &Reranker{client: client}
}

const rerankSnippetMaxLen = 500

func (r *Reranker) Score(ctx context.Context, query string, candidates []domain.Candidate) ([]float64, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	var b strings.Builder
	for i, candidate := range candidates {
		snippet := candidate.Content
		if len(snippet) > rerankSnippetMaxLen {
			snippet = snippet[:rerankSnippetMaxLen]
		}
		fmt.Fprintf(&b, "[%d] %s\n\n", i, snippet)
	}

	raw, err := r.client.Complete(ctx, ports.ChatRequest{
		System: "You are a relevance scoring assistant. Always respond with valid JSON.",
		User: fmt.Sprintf(`Score each chunk's relevance to the query from 0.0 to 1.0.

Query: %s

Chunks:
%s
Respond with JSON only: {"scores": [0.0, ...]} with exactly %d scores in chunk order.`, query, b.String(), len(candidates)),
		MaxTokens:   200,
		Temperature: 0,
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Scores []float64 `json:"scores"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, domain.WrapError(domain.ErrSchemaViolation, "parse rerank scores", err)
	}
	if len(parsed.Scores) != len(candidates) {
		return nil, domain.WrapError(domain.ErrSchemaViolation, "parse rerank scores",
			fmt.Errorf("scores/candidates mismatch: %d/%d", len(parsed.Scores), len(candidates)))
	}
	return parsed.Scores, nil
}
