package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/btasdemir/medgraph-rag/internal/core/domain"
)

func TestGeneratorBuildsContextPrompt(t *testing.T) {
	var capturedPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		capturedPrompt, _ = payload["prompt"].(string)
		_, _ = w.Write([]byte(`{"response":"ok"}`))
	}))
	defer server.Close()

	client := New(server.URL, "gen", "embed", nil)
	gen := NewGenerator(client)
	query := domain.Query{Text: "what treats otitis media?", Language: "en", Complexity: domain.ComplexityComplex}
	chunks := []domain.FusedResult{{ChunkID: "doc-1_p2_c0", DocumentName: "guide.pdf", PageNumber: 2, Text: "amoxicillin is first line"}}

	_, err := gen.GenerateAnswer(context.Background(), query, chunks, "Entity: amoxicillin (Drug)")
	if err != nil {
		t.Fatalf("GenerateAnswer() error = %v", err)
	}
	if !strings.Contains(capturedPrompt, "what treats otitis media?") || !strings.Contains(capturedPrompt, "amoxicillin is first line") {
		t.Fatalf("unexpected prompt: %s", capturedPrompt)
	}
	if !strings.Contains(capturedPrompt, "Entity: amoxicillin (Drug)") {
		t.Fatalf("graph context missing from prompt: %s", capturedPrompt)
	}
	if !strings.Contains(capturedPrompt, "step by step") {
		t.Fatalf("complex query must ask for stepwise reasoning: %s", capturedPrompt)
	}
}

func TestGeneratorSimpleQuerySkipsStepwiseInstruction(t *testing.T) {
	var capturedPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		capturedPrompt, _ = payload["prompt"].(string)
		_, _ = w.Write([]byte(`{"response":"ok"}`))
	}))
	defer server.Close()

	gen := NewGenerator(New(server.URL, "gen", "embed", nil))
	query := domain.Query{Text: "dose?", Language: "tr", Complexity: domain.ComplexitySimple}
	if _, err := gen.GenerateAnswer(context.Background(), query, nil, ""); err != nil {
		t.Fatalf("GenerateAnswer() error = %v", err)
	}
	if strings.Contains(capturedPrompt, "step by step") {
		t.Fatalf("simple query must not ask for stepwise reasoning: %s", capturedPrompt)
	}
	if !strings.Contains(capturedPrompt, "Answer in Turkish.") {
		t.Fatalf("expected language instruction, got: %s", capturedPrompt)
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusNotFound)
	}))
	defer server.Close()

	client := New(server.URL, "gen", "embed", nil)
	embedder := NewEmbedder(client)
	_, err := embedder.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestEmbedWrapsRetryableStatusAsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "gen", "embed", nil))
	_, err := embedder.Embed(context.Background(), []string{"hello"})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary for 503, got %v", err)
	}
}

func TestClassifierNormalizesVerdict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"{\"language\":\"TR\",\"query_type\":\"Medical\",\"complexity\":\"COMPLEX\"}"}`))
	}))
	defer server.Close()

	classifier := NewClassifier(New(server.URL, "gen", "embed", nil))
	got, err := classifier.Classify(context.Background(), "soru", nil)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if got.Language != "tr" || got.QueryType != domain.QueryTypeMedical || got.Complexity != domain.ComplexityComplex {
		t.Fatalf("unexpected classification %+v", got)
	}
}

func TestClassifierDefaultsOnUnknownValues(t *testing.T) {
	got := normalizeClassification("", "weird", "medium")
	if got.Language != "en" || got.QueryType != domain.QueryTypeMedical || got.Complexity != domain.ComplexitySimple {
		t.Fatalf("unexpected defaults %+v", got)
	}
}

func TestEntityExtractorDeduplicatesTerms(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"{\"entities\":[\"Amoxicillin\",\"amoxicillin\",\" sepsis \",\"\"]}"}`))
	}))
	defer server.Close()

	extractor := NewEntityExtractor(New(server.URL, "gen", "embed", nil))
	got, err := extractor.ExtractCandidates(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("ExtractCandidates() error = %v", err)
	}
	if len(got) != 2 || got[0] != "amoxicillin" || got[1] != "sepsis" {
		t.Fatalf("unexpected candidates %v", got)
	}
}
