package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/btasdemir/medgraph-rag/internal/core/domain"
	"github.com/btasdemir/medgraph-rag/internal/core/ports"
)

// ProcessDocumentUseCase turns an uploaded PDF into indexed chunks: per-page
// text extraction, overlapping chunking, embedding, then indexing into both
// the lexical and the vector index under stable chunk ids.
type ProcessDocumentUseCase struct {
	repo      ports.DocumentRepository
	extractor ports.PageExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	lexical   ports.LexicalIndex
	vector    ports.VectorIndex
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.PageExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	lexical ports.LexicalIndex,
	vector ports.VectorIndex,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		repo:      repo,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		lexical:   lexical,
		vector:    vector,
	}
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	pageCount, chunkCount, err := uc.processPipeline(ctx, documentID)
	if err != nil {
		if failErr := uc.repo.UpdateStatus(ctx, documentID, domain.StatusFailed, err.Error()); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.UpdateCounts(ctx, documentID, pageCount, chunkCount); err != nil {
		return fmt.Errorf("save page/chunk counts: %w", err)
	}
	if err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, documentID string) (pages, chunks int, err error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch document by id: %w", err)
	}

	pageTexts, err := uc.extractor.ExtractPages(ctx, doc)
	if err != nil {
		return 0, 0, fmt.Errorf("extract pages: %w", err)
	}
	if len(pageTexts) == 0 {
		return 0, 0, domain.WrapError(domain.ErrInvalidInput, "extract pages", errors.New("document has no extractable text"))
	}

	chunkList := uc.buildChunks(doc, pageTexts)
	if len(chunkList) == 0 {
		return 0, 0, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunking produced zero chunks"))
	}

	texts := make([]string, len(chunkList))
	for i, chunk := range chunkList {
		texts[i] = chunk.Text
	}
	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, 0, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunkList) {
		return 0, 0, domain.WrapError(
			domain.ErrInvalidInput,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunkList)),
		)
	}

	if err := uc.lexical.IndexChunks(ctx, chunkList); err != nil {
		return 0, 0, fmt.Errorf("index chunks in lexical index: %w", err)
	}
	if err := uc.vector.IndexChunks(ctx, chunkList, vectors); err != nil {
		return 0, 0, fmt.Errorf("index chunks in vector index: %w", err)
	}

	return len(pageTexts), len(chunkList), nil
}

// buildChunks assigns each chunk a stable id carrying its provenance:
// <doc_id>_p<page>_c<index>. The id is the join key across all three stores.
func (uc *ProcessDocumentUseCase) buildChunks(doc *domain.Document, pages []domain.Page) []domain.Chunk {
	out := make([]domain.Chunk, 0, len(pages))
	for _, page := range pages {
		for i, text := range uc.chunker.Split(page.Text) {
			out = append(out, domain.Chunk{
				ChunkID:      fmt.Sprintf("%s_p%d_c%d", doc.ID, page.Number, i),
				DocumentID:   doc.ID,
				DocumentName: doc.Filename,
				PageNumber:   page.Number,
				ChunkIndex:   i,
				Text:         text,
			})
		}
	}
	return out
}
