package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/btasdemir/medgraph-rag/internal/core/domain"
	"github.com/btasdemir/medgraph-rag/internal/core/ports"
	"github.com/btasdemir/medgraph-rag/internal/observability/metrics"
)

const serviceName = "api"

// Options bundles the traffic-control knobs the router chain uses.
type Options struct {
	RateLimitRPS    float64
	RateLimitBurst  int
	MaxInFlight     int
	BackpressureMax time.Duration
}

type Router struct {
	ingestor   ports.DocumentIngestor
	questions  ports.QuestionService
	classifier ports.QueryClassifier
	generator  ports.AnswerGenerator
	reader     ports.DocumentReader
	metrics    *metrics.HTTPServerMetrics
	logger     *slog.Logger
	opts       Options
}

func NewRouter(
	ingestor ports.DocumentIngestor,
	questions ports.QuestionService,
	classifier ports.QueryClassifier,
	generator ports.AnswerGenerator,
	reader ports.DocumentReader,
	httpMetrics *metrics.HTTPServerMetrics,
	logger *slog.Logger,
	opts Options,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 64
	}
	if opts.BackpressureMax <= 0 {
		opts.BackpressureMax = 2 * time.Second
	}
	return &Router{
		ingestor:   ingestor,
		questions:  questions,
		classifier: classifier,
		generator:  generator,
		reader:     reader,
		metrics:    httpMetrics,
		logger:     logger,
		opts:       opts,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}
	mux.HandleFunc("/v1/documents", rt.uploadDocument)
	mux.HandleFunc("/v1/documents/", rt.getDocumentByID)
	mux.HandleFunc("/v1/ask", rt.ask)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.opts.MaxInFlight, rt.opts.BackpressureMax)
	handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.ingestor.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	doc, err := rt.reader.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type askRequest struct {
	Question string   `json:"question"`
	History  []string `json:"history"`
}

type askResponse struct {
	Answer          string                   `json:"answer"`
	Sources         []domain.FusedResult     `json:"sources,omitempty"`
	GraphContext    string                   `json:"graph_context,omitempty"`
	DegradedSources []domain.RetrievalSource `json:"degraded_sources,omitempty"`
	Language        string                   `json:"language"`
	QueryType       domain.QueryType         `json:"query_type"`
	Complexity      domain.QueryComplexity   `json:"complexity"`
}

func (rt *Router) ask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	start := time.Now()
	classification := rt.classify(r.Context(), question, req.History)
	if rt.metrics != nil {
		rt.metrics.RecordClassification(serviceName, string(classification.QueryType), string(classification.Complexity))
	}

	if classification.QueryType == domain.QueryTypeConversational {
		rt.answerConversational(w, r, question, classification, start)
		return
	}

	answer, err := rt.questions.Ask(r.Context(), domain.Query{
		Text:       question,
		Language:   classification.Language,
		Complexity: classification.Complexity,
	})
	rt.recordPipelineOutcome(answer)
	if err != nil {
		if rt.metrics != nil {
			rt.metrics.RecordAsk(serviceName, "error", sourceCount(answer), time.Since(start))
		}
		payload := map[string]any{"error": err.Error()}
		// Generation failures still carry the retrieved evidence.
		if answer != nil && len(answer.Sources) > 0 {
			payload["sources"] = answer.Sources
		}
		writeJSON(w, mapErrorToHTTPStatus(err), payload)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordAsk(serviceName, "success", len(answer.Sources), time.Since(start))
	}
	writeJSON(w, http.StatusOK, askResponse{
		Answer:          answer.Text,
		Sources:         answer.Sources,
		GraphContext:    answer.GraphContext,
		DegradedSources: answer.DegradedSources,
		Language:        classification.Language,
		QueryType:       classification.QueryType,
		Complexity:      classification.Complexity,
	})
}

// recordPipelineOutcome counts retrieval degradations and graph expansions
// the pipeline reported on the answer, including answers carried by a
// generation failure.
func (rt *Router) recordPipelineOutcome(answer *domain.Answer) {
	if rt.metrics == nil || answer == nil {
		return
	}
	for _, source := range answer.DegradedSources {
		rt.metrics.RecordRetrievalDegraded(serviceName, string(source))
	}
	if answer.ExpansionStrategy != "" {
		rt.metrics.RecordExpansion(serviceName, string(answer.ExpansionStrategy), answer.GraphContext != "")
	}
}

// answerConversational handles greetings and small talk without touching the
// retrieval pipeline.
func (rt *Router) answerConversational(w http.ResponseWriter, r *http.Request, question string, classification domain.Classification, start time.Time) {
	prompt := "Reply briefly and politely, in " + languageName(classification.Language) + ", to this message from a user of a medical document assistant:\n" + question
	reply, err := rt.generator.GenerateFromPrompt(r.Context(), prompt)
	if err != nil {
		if rt.metrics != nil {
			rt.metrics.RecordAsk(serviceName, "error", 0, time.Since(start))
		}
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordAsk(serviceName, "success", 0, time.Since(start))
	}
	writeJSON(w, http.StatusOK, askResponse{
		Answer:     reply,
		Language:   classification.Language,
		QueryType:  classification.QueryType,
		Complexity: classification.Complexity,
	})
}

// classify falls back to a plain medical/simple verdict when the classifier
// is unavailable; a broken classifier must not block answering.
func (rt *Router) classify(ctx context.Context, question string, history []string) domain.Classification {
	classification, err := rt.classifier.Classify(ctx, question, history)
	if err != nil {
		rt.logger.Warn("query_classification_failed", "error", err)
		return domain.Classification{
			Language:   "en",
			QueryType:  domain.QueryTypeMedical,
			Complexity: domain.ComplexitySimple,
		}
	}
	return classification
}

func languageName(code string) string {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "tr":
		return "Turkish"
	case "de":
		return "German"
	case "es":
		return "Spanish"
	case "fr":
		return "French"
	default:
		return "English"
	}
}

func sourceCount(answer *domain.Answer) int {
	if answer == nil {
		return 0
	}
	return len(answer.Sources)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
