package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/btasdemir/medgraph-rag/internal/core/domain"
	"github.com/btasdemir/medgraph-rag/internal/observability/metrics"
)

type ingestorFake struct {
	doc *domain.Document
	err error
}

func (f *ingestorFake) Upload(context.Context, string, string, io.Reader) (*domain.Document, error) {
	return f.doc, f.err
}

type questionsFake struct {
	answer *domain.Answer
	err    error
	calls  int
	query  domain.Query
}

func (f *questionsFake) Ask(_ context.Context, query domain.Query) (*domain.Answer, error) {
	f.calls++
	f.query = query
	return f.answer, f.err
}

type classifierFake struct {
	result domain.Classification
	err    error
}

func (f *classifierFake) Classify(context.Context, string, []string) (domain.Classification, error) {
	return f.result, f.err
}

type promptGeneratorFake struct {
	reply string
	err   error
	calls int
}

func (f *promptGeneratorFake) GenerateAnswer(context.Context, domain.Query, []domain.FusedResult, string) (string, error) {
	return f.reply, f.err
}

func (f *promptGeneratorFake) GenerateFromPrompt(context.Context, string) (string, error) {
	f.calls++
	return f.reply, f.err
}

type readerFake struct {
	doc *domain.Document
	err error
}

func (f *readerFake) GetByID(context.Context, string) (*domain.Document, error) {
	return f.doc, f.err
}

func medicalClassification(complexity domain.QueryComplexity) domain.Classification {
	return domain.Classification{Language: "en", QueryType: domain.QueryTypeMedical, Complexity: complexity}
}

func newTestRouter(questions *questionsFake, classifier *classifierFake, generator *promptGeneratorFake, opts Options) http.Handler {
	return NewRouter(
		&ingestorFake{doc: &domain.Document{ID: "doc-1", Status: domain.StatusUploaded}},
		questions,
		classifier,
		generator,
		&readerFake{err: domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New("id missing"))},
		nil,
		nil,
		opts,
	).Handler()
}

func postAsk(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/ask", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestAskAnswersMedicalQuery(t *testing.T) {
	questions := &questionsFake{answer: &domain.Answer{
		Text:    "amoxicillin is first line",
		Sources: []domain.FusedResult{{ChunkID: "doc-1_p2_c0", FusedScore: 0.05}},
	}}
	handler := newTestRouter(questions, &classifierFake{result: medicalClassification(domain.ComplexityComplex)}, &promptGeneratorFake{}, Options{})

	res := postAsk(t, handler, `{"question":"what treats otitis media?"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var resp askResponse
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer != "amoxicillin is first line" || len(resp.Sources) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if questions.query.Complexity != domain.ComplexityComplex {
		t.Fatalf("classification complexity must flow into the query, got %s", questions.query.Complexity)
	}
}

func TestAskConversationalBypassesRetrieval(t *testing.T) {
	questions := &questionsFake{}
	generator := &promptGeneratorFake{reply: "hello!"}
	classifier := &classifierFake{result: domain.Classification{
		Language: "en", QueryType: domain.QueryTypeConversational, Complexity: domain.ComplexitySimple,
	}}
	handler := newTestRouter(questions, classifier, generator, Options{})

	res := postAsk(t, handler, `{"question":"hi there"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if questions.calls != 0 {
		t.Fatalf("conversational query must not reach the retrieval pipeline")
	}
	if generator.calls != 1 {
		t.Fatalf("expected one direct generation call, got %d", generator.calls)
	}
	if !strings.Contains(res.Body.String(), "hello!") {
		t.Fatalf("expected direct reply in body: %s", res.Body.String())
	}
}

func TestAskClassifierFailureFallsBack(t *testing.T) {
	questions := &questionsFake{answer: &domain.Answer{Text: "ok"}}
	handler := newTestRouter(questions, &classifierFake{err: errors.New("llm down")}, &promptGeneratorFake{}, Options{})

	res := postAsk(t, handler, `{"question":"amoxicillin dose?"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("classifier failure must not block answering, got %d", res.Code)
	}
	if questions.calls != 1 {
		t.Fatalf("expected fallback to retrieval pipeline")
	}
	if questions.query.Complexity != domain.ComplexitySimple {
		t.Fatalf("fallback must default to simple complexity, got %s", questions.query.Complexity)
	}
}

func TestAskRetrievalUnavailableMapsTo503(t *testing.T) {
	questions := &questionsFake{err: domain.WrapError(domain.ErrRetrievalUnavailable, "hybrid retrieve", errors.New("both down"))}
	handler := newTestRouter(questions, &classifierFake{result: medicalClassification(domain.ComplexitySimple)}, &promptGeneratorFake{}, Options{})

	res := postAsk(t, handler, `{"question":"q"}`)
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestAskGenerationFailureCarriesSources(t *testing.T) {
	questions := &questionsFake{
		answer: &domain.Answer{Sources: []domain.FusedResult{{ChunkID: "doc-1_p1_c0"}}},
		err:    domain.WrapError(domain.ErrGenerationFailed, "generate answer", errors.New("timeout")),
	}
	handler := newTestRouter(questions, &classifierFake{result: medicalClassification(domain.ComplexitySimple)}, &promptGeneratorFake{}, Options{})

	res := postAsk(t, handler, `{"question":"q"}`)
	if res.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "doc-1_p1_c0") {
		t.Fatalf("expected sources in error payload: %s", res.Body.String())
	}
}

func TestAskRejectsBlankQuestion(t *testing.T) {
	handler := newTestRouter(&questionsFake{}, &classifierFake{}, &promptGeneratorFake{}, Options{})
	res := postAsk(t, handler, `{"question":"   "}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestAskCountsDegradationAndExpansionMetrics(t *testing.T) {
	questions := &questionsFake{answer: &domain.Answer{
		Text:              "ok",
		Sources:           []domain.FusedResult{{ChunkID: "doc-1_p1_c0"}},
		GraphContext:      "Entity: sepsis (Condition)",
		DegradedSources:   []domain.RetrievalSource{domain.SourceLexical},
		ExpansionStrategy: domain.StrategyLocal,
	}}
	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	handler := NewRouter(
		&ingestorFake{},
		questions,
		&classifierFake{result: medicalClassification(domain.ComplexityComplex)},
		&promptGeneratorFake{},
		&readerFake{},
		httpMetrics,
		nil,
		Options{},
	).Handler()

	res := postAsk(t, handler, `{"question":"q"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	scrape := httptest.NewRecorder()
	handler.ServeHTTP(scrape, req)
	body := scrape.Body.String()

	if !strings.Contains(body, `mgr_pipeline_retrieval_degraded_total{failed_source="lexical",service="api"} 1`) {
		t.Fatalf("degraded retrieval counter missing from scrape:\n%s", body)
	}
	if !strings.Contains(body, `mgr_pipeline_kg_expansion_total{outcome="context",service="api",strategy="local"} 1`) {
		t.Fatalf("kg expansion counter missing from scrape:\n%s", body)
	}
}

func TestGetDocumentNotFoundMapsTo404(t *testing.T) {
	handler := newTestRouter(&questionsFake{}, &classifierFake{}, &promptGeneratorFake{}, Options{})
	req := httptest.NewRequest(http.MethodGet, "/v1/documents/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}
