package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/btasdemir/medgraph-rag/internal/core/domain"
	"github.com/btasdemir/medgraph-rag/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel, embedModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

// Classifier detects language, query type and complexity in a single LLM
// round trip so the request path pays for classification once.
type Classifier struct {
	client *Client
}

func NewClassifier(client *Client) *Classifier {
	return &Classifier{client: client}
}

func (c *Classifier) Classify(ctx context.Context, query string, history []string) (domain.Classification, error) {
	respText, err := c.client.generateJSON(ctx, "classify", buildClassificationPrompt(query, history))
	if err != nil {
		return domain.Classification{}, err
	}

	var raw struct {
		Language   string `json:"language"`
		QueryType  string `json:"query_type"`
		Complexity string `json:"complexity"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &raw); err != nil {
		return domain.Classification{}, fmt.Errorf("parse classification json: %w", err)
	}
	return normalizeClassification(raw.Language, raw.QueryType, raw.Complexity), nil
}

func normalizeClassification(language, queryType, complexity string) domain.Classification {
	out := domain.Classification{
		Language:   strings.ToLower(strings.TrimSpace(language)),
		QueryType:  domain.QueryType(strings.ToLower(strings.TrimSpace(queryType))),
		Complexity: domain.QueryComplexity(strings.ToLower(strings.TrimSpace(complexity))),
	}
	if out.Language == "" {
		out.Language = "en"
	}
	if out.QueryType != domain.QueryTypeConversational {
		out.QueryType = domain.QueryTypeMedical
	}
	if out.Complexity != domain.ComplexityComplex {
		out.Complexity = domain.ComplexitySimple
	}
	return out
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.call(ctx, "embed", "/api/embed", request, &response); err != nil {
		return nil, err
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

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) GenerateAnswer(ctx context.Context, query domain.Query, chunks []domain.FusedResult, graphContext string) (string, error) {
	return g.client.generateText(ctx, "generate", buildAnswerPrompt(query, chunks, graphContext))
}

func (g *Generator) GenerateFromPrompt(ctx context.Context, prompt string) (string, error) {
	return g.client.generateText(ctx, "generate", prompt)
}

// EntityExtractor asks the generation model for candidate medical terms. The
// graph lookup downstream filters hallucinated terms, so recall over
// precision here.
type EntityExtractor struct {
	client *Client
}

func NewEntityExtractor(client *Client) *EntityExtractor {
	return &EntityExtractor{client: client}
}

func (e *EntityExtractor) ExtractCandidates(ctx context.Context, query string, chunks []domain.FusedResult) ([]string, error) {
	respText, err := e.client.generateJSON(ctx, "extract_entities", buildEntityPrompt(query, chunks))
	if err != nil {
		return nil, err
	}

	var raw struct {
		Entities []string `json:"entities"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &raw); err != nil {
		return nil, fmt.Errorf("parse entity json: %w", err)
	}

	seen := make(map[string]bool, len(raw.Entities))
	out := make([]string, 0, len(raw.Entities))
	for _, entity := range raw.Entities {
		entity = strings.ToLower(strings.TrimSpace(entity))
		if entity == "" || seen[entity] {
			continue
		}
		seen[entity] = true
		out = append(out, entity)
	}
	return out, nil
}

func (c *Client) generateJSON(ctx context.Context, operation, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	}
	return c.generate(ctx, operation, reqBody)
}

func (c *Client) generateText(ctx context.Context, operation, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
	}
	return c.generate(ctx, operation, reqBody)
}

func (c *Client) generate(ctx context.Context, operation string, reqBody map[string]any) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	if err := c.call(ctx, operation, "/api/generate", reqBody, &response); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func (c *Client) call(ctx context.Context, operation, path string, payload, out any) error {
	fn := func(ctx context.Context) error {
		return c.postJSON(ctx, path, payload, out, operation)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "ollama."+operation, fn, classifyOllamaError)
	} else {
		err = fn(ctx)
	}
	return wrapTemporaryIfNeeded(operation, err)
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
