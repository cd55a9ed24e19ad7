// Package qdrant implements the VectorIndex port over the Qdrant HTTP API
// with named dense and sparse vectors per collection.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mkravchenko/groundedqa/internal/core/domain"
)

const (
	denseVectorName   = "dense"
	lexicalVectorName = "lexical"
)

type Client struct {
	baseURL    string
	httpClient *http.Client

	ensureMu sync.Mutex
	ensured  map[string]int
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		ensured:    make(map[string]int),
	}
}

type point struct {
	ID      string         `json:"id"`
	Vector  map[string]any `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) Upsert(ctx context.Context, collection string, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := c.ensureCollection(ctx, collection, len(records[0].Embedding)); err != nil {
		return err
	}

	points := make([]point, 0, len(records))
	for _, record := range records {
		points = append(points, point{
			ID: record.ChunkID,
			Vector: map[string]any{
				denseVectorName:   record.Embedding,
				lexicalVectorName: encodeSparseContent(record.Payload.Content),
			},
			Payload: recordPayload(record),
		})
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, collection)
	return c.do(ctx, http.MethodPut, url, map[string]any{"points": points}, nil, "upsert")
}

func (c *Client) DeleteByDoc(ctx context.Context, collection, docID string) error {
	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", c.baseURL, collection)
	body := map[string]any{
		"filter": docIDFilter([]string{docID}),
	}
	err := c.do(ctx, http.MethodPost, url, body, nil, "delete by doc")
	// A collection that does not exist yet has nothing to delete.
	if isNotFound(err) {
		return nil
	}
	return err
}

func (c *Client) DenseSearch(ctx context.Context, collection string, vector []float32, topK int, docFilter []string) ([]domain.Candidate, error) {
	body := map[string]any{
		"vector": map[string]any{
			"name":   denseVectorName,
			"vector": vector,
		},
		"limit":        topK,
		"with_payload": true,
	}
	if len(docFilter) > 0 {
		body["filter"] = docIDFilter(docFilter)
	}
	return c.search(ctx, collection, body)
}

func (c *Client) LexicalSearch(ctx context.Context, collection, text string, topK int, docFilter []string) ([]domain.Candidate, error) {
	sparse := encodeSparseQuery(text)
	if len(sparse.Indices) == 0 {
		return nil, nil
	}
	body := map[string]any{
		"vector": map[string]any{
			"name":   lexicalVectorName,
			"vector": sparse,
		},
		"limit":        topK,
		"with_payload": true,
	}
	if len(docFilter) > 0 {
		body["filter"] = docIDFilter(docFilter)
	}
	return c.search(ctx, collection, body)
}

func (c *Client) search(ctx context.Context, collection string, body map[string]any) ([]domain.Candidate, error) {
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, collection)

	var response struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, url, body, &response, "search"); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]domain.Candidate, 0, len(response.Result))
	for _, r := range response.Result {
		out = append(out, domain.Candidate{
			ChunkID:       r.ID,
			DocID:         payloadString(r.Payload, "doc_id"),
			Kind:          domain.ChunkKind(payloadString(r.Payload, "type")),
			Content:       payloadString(r.Payload, "content"),
			HierarchyPath: payloadStrings(r.Payload, "hierarchy_path"),
			PageNumber:    payloadInt(r.Payload, "page_number"),
			Collection:    collection,
			Score:         r.Score,
		})
	}
	return out, nil
}

// recordPayload flattens the chunk into the documented payload schema. The
// content field is the one the lexical vector indexes.
func recordPayload(record domain.VectorRecord) map[string]any {
	chunk := record.Payload
	metadata := map[string]any{"type": string(chunk.Kind)}
	if chunk.Metadata.Level != "" {
		metadata["level"] = string(chunk.Metadata.Level)
	}
	if chunk.Metadata.Question != "" {
		metadata["question"] = chunk.Metadata.Question
		metadata["answer"] = chunk.Metadata.Answer
		metadata["question_type"] = chunk.Metadata.QuestionType
	}
	if len(chunk.Metadata.Children) > 0 {
		metadata["children"] = chunk.Metadata.Children
	}

	payload := map[string]any{
		"doc_id":                record.DocID,
		"chunk_id":              chunk.ChunkID,
		"content":               chunk.Content,
		"hierarchy_path":        chunk.HierarchyPath,
		"language":              chunk.Language,
		"is_multilingual":       chunk.IsMultilingual,
		"languages":             chunk.Languages,
		"language_distribution": chunk.LanguageDistribution,
		"type":                  string(chunk.Kind),
		"metadata":              metadata,
	}
	if chunk.PageNumber > 0 {
		payload["page_number"] = chunk.PageNumber
	}
	return payload
}

func docIDFilter(docIDs []string) map[string]any {
	values := make([]any, 0, len(docIDs))
	for _, id := range docIDs {
		values = append(values, id)
	}
	return map[string]any{
		"must": []map[string]any{
			{
				"key":   "doc_id",
				"match": map[string]any{"any": values},
			},
		},
	}
}

func (c *Client) ensureCollection(ctx context.Context, collection string, vectorSize int) error {
	c.ensureMu.Lock()
	if size, ok := c.ensured[collection]; ok && size == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	body := map[string]any{
		"vectors": map[string]any{
			denseVectorName: map[string]any{
				"size":     vectorSize,
				"distance": "Cosine",
			},
		},
		"sparse_vectors": map[string]any{
			lexicalVectorName: map[string]any{},
		},
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, collection)
	err := c.do(ctx, http.MethodPut, url, body, nil, "ensure collection")
	if err != nil && !isConflict(err) {
		return err
	}

	c.ensureMu.Lock()
	c.ensured[collection] = vectorSize
	c.ensureMu.Unlock()
	return nil
}

type statusError struct {
	operation  string
	statusCode int
	status     string
	body       string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("qdrant %s status: %s", e.operation, e.status)
	}
	return fmt.Sprintf("qdrant %s status: %s: %s", e.operation, e.status, e.body)
}

func (c *Client) do(ctx context.Context, method, url string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrTransient, "qdrant "+operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{
			operation:  operation,
			statusCode: resp.StatusCode,
			status:     resp.Status,
			body:       strings.TrimSpace(string(raw)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var statusErr *statusError
	return errors.As(err, &statusErr) && statusErr.statusCode == http.StatusNotFound
}

func isConflict(err error) bool {
	var statusErr *statusError
	return errors.As(err, &statusErr) && statusErr.statusCode == http.StatusConflict
}

func payloadString(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func payloadStrings(payload map[string]any, key string) []string {
	raw, ok := payload[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func payloadInt(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
