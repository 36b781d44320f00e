package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/btasdemir/medgraph-rag/internal/core/domain"
	"github.com/btasdemir/medgraph-rag/internal/core/ports"
)

// RetrievalConfig sizes the hybrid retrieval stages.
type RetrievalConfig struct {
	TopKLexical  int
	TopKSemantic int
	TopKFused    int
	Fusion       FusionConfig
}

func (c RetrievalConfig) normalize() RetrievalConfig {
	out := c
	if out.TopKLexical <= 0 {
		out.TopKLexical = 10
	}
	if out.TopKSemantic <= 0 {
		out.TopKSemantic = 10
	}
	if out.TopKFused <= 0 {
		out.TopKFused = 5
	}
	out.Fusion = out.Fusion.normalize()
	return out
}

// AskUseCase sequences a query through retrieval, fusion, conditional graph
// expansion and generation. The two retrieval channels run concurrently; a
// single failed channel degrades to fusing the survivor, both failing is
// fatal for the query.
type AskUseCase struct {
	lexical   ports.LexicalIndex
	vector    ports.VectorIndex
	expander  ports.GraphContextExpander
	generator ports.AnswerGenerator
	cfg       RetrievalConfig
	logger    *slog.Logger
}

func NewAskUseCase(
	lexical ports.LexicalIndex,
	vector ports.VectorIndex,
	expander ports.GraphContextExpander,
	generator ports.AnswerGenerator,
	cfg RetrievalConfig,
	logger *slog.Logger,
) *AskUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &AskUseCase{
		lexical:   lexical,
		vector:    vector,
		expander:  expander,
		generator: generator,
		cfg:       cfg.normalize(),
		logger:    logger,
	}
}

func (uc *AskUseCase) Ask(ctx context.Context, query domain.Query) (*domain.Answer, error) {
	question := strings.TrimSpace(query.Text)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", fmt.Errorf("query text is required"))
	}
	query.Text = question

	fused, degraded, err := uc.retrieveAndFuse(ctx, question)
	if err != nil {
		return nil, err
	}

	graphContext := ""
	var expansionStrategy domain.ExpansionStrategy
	if query.Complexity == domain.ComplexityComplex {
		graphContext, expansionStrategy = uc.expander.Expand(ctx, question, fused)
	}

	answerText, err := uc.generator.GenerateAnswer(ctx, query, fused, graphContext)
	if err != nil {
		return &domain.Answer{
				Sources:           fused,
				GraphContext:      graphContext,
				DegradedSources:   degraded,
				ExpansionStrategy: expansionStrategy,
			},
			domain.WrapError(domain.ErrGenerationFailed, "generate answer", err)
	}

	return &domain.Answer{
		Text:              answerText,
		Sources:           fused,
		GraphContext:      graphContext,
		DegradedSources:   degraded,
		ExpansionStrategy: expansionStrategy,
	}, nil
}

// retrieveAndFuse dispatches both retrieval channels concurrently, waits for
// both, and fuses whatever survived. The second return value names the
// channels that failed.
func (uc *AskUseCase) retrieveAndFuse(ctx context.Context, question string) ([]domain.FusedResult, []domain.RetrievalSource, error) {
	var (
		wg          sync.WaitGroup
		lexicalHits []domain.RankedHit
		lexicalErr  error
		semHits     []domain.RankedHit
		semErr      error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		lexicalHits, lexicalErr = uc.lexical.Search(ctx, question, uc.cfg.TopKLexical)
	}()
	go func() {
		defer wg.Done()
		semHits, semErr = uc.vector.Search(ctx, question, uc.cfg.TopKSemantic)
	}()
	wg.Wait()

	if lexicalErr != nil && semErr != nil {
		return nil, nil, domain.WrapError(
			domain.ErrRetrievalUnavailable,
			"hybrid retrieve",
			fmt.Errorf("lexical: %v; semantic: %w", lexicalErr, semErr),
		)
	}
	var degraded []domain.RetrievalSource
	if lexicalErr != nil {
		uc.logger.Warn("retrieval_source_degraded", "source", domain.SourceLexical, "error", lexicalErr)
		lexicalHits = nil
		degraded = append(degraded, domain.SourceLexical)
	}
	if semErr != nil {
		uc.logger.Warn("retrieval_source_degraded", "source", domain.SourceSemantic, "error", semErr)
		semHits = nil
		degraded = append(degraded, domain.SourceSemantic)
	}

	fused, err := FuseRRF(lexicalHits, semHits, uc.cfg.TopKFused, uc.cfg.Fusion)
	if err != nil {
		return nil, nil, fmt.Errorf("fuse retrieval results: %w", err)
	}
	return fused, degraded, nil
}
