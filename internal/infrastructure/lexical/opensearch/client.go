package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/btasdemir/medgraph-rag/internal/core/domain"
)

// Client is the BM25 half of hybrid retrieval. Documents are keyed by chunk id
// so re-processing a document overwrites its chunks in place.
type Client struct {
	baseURL    string
	index      string
	httpClient *http.Client

	ensureMu     sync.Mutex
	ensuredIndex bool
}

func New(baseURL, index string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		index:      index,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) IndexChunks(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := c.ensureIndex(ctx); err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, chunk := range chunks {
		action := map[string]any{
			"index": map[string]any{"_index": c.index, "_id": chunk.ChunkID},
		}
		doc := map[string]any{
			"chunk_id":      chunk.ChunkID,
			"doc_id":        chunk.DocumentID,
			"document_name": chunk.DocumentName,
			"page_number":   chunk.PageNumber,
			"chunk_index":   chunk.ChunkIndex,
			"text":          chunk.Text,
		}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("encode bulk action: %w", err)
		}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode bulk document: %w", err)
		}
	}

	url := fmt.Sprintf("%s/_bulk?refresh=true", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return fmt.Errorf("create bulk request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-ndjson")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("opensearch bulk request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("opensearch bulk status: %s", resp.Status)
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if bulkResp.Errors {
		return fmt.Errorf("opensearch bulk reported item errors")
	}
	return nil
}

func (c *Client) Search(ctx context.Context, query string, topK int) ([]domain.RankedHit, error) {
	reqBody := map[string]any{
		"size": topK,
		"query": map[string]any{
			"match": map[string]any{
				"text": query,
			},
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	url := fmt.Sprintf("%s/%s/_search", c.baseURL, c.index)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opensearch search request: %w", err)
	}
	defer resp.Body.Close()

	// A missing index just means nothing was processed yet.
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("opensearch search status: %s", resp.Status)
	}

	var searchResp struct {
		Hits struct {
			Hits []struct {
				Score  float64 `json:"_score"`
				Source struct {
					ChunkID      string `json:"chunk_id"`
					DocumentName string `json:"document_name"`
					PageNumber   int    `json:"page_number"`
					Text         string `json:"text"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]domain.RankedHit, 0, len(searchResp.Hits.Hits))
	for i, h := range searchResp.Hits.Hits {
		out = append(out, domain.RankedHit{
			ChunkID:      h.Source.ChunkID,
			Text:         h.Source.Text,
			PageNumber:   h.Source.PageNumber,
			DocumentName: h.Source.DocumentName,
			Rank:         i + 1,
			Score:        h.Score,
			Source:       domain.SourceLexical,
		})
	}
	return out, nil
}

func (c *Client) ensureIndex(ctx context.Context) error {
	c.ensureMu.Lock()
	if c.ensuredIndex {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	mapping := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"chunk_id":      map[string]any{"type": "keyword"},
				"doc_id":        map[string]any{"type": "keyword"},
				"document_name": map[string]any{"type": "keyword"},
				"page_number":   map[string]any{"type": "integer"},
				"chunk_index":   map[string]any{"type": "integer"},
				"text":          map[string]any{"type": "text"},
			},
		},
	}
	body, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("marshal index mapping: %w", err)
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, c.index)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create index request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("opensearch ensure index request: %w", err)
	}
	defer resp.Body.Close()

	// 400 with resource_already_exists_exception means another writer won.
	if resp.StatusCode == http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if strings.Contains(string(raw), "resource_already_exists_exception") {
			c.markIndexEnsured()
			return nil
		}
		return fmt.Errorf("opensearch ensure index status: %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("opensearch ensure index status: %s", resp.Status)
	}
	c.markIndexEnsured()
	return nil
}

func (c *Client) markIndexEnsured() {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredIndex = true
}
