package ports

import (
	"context"
	"io"

	"github.com/btasdemir/medgraph-rag/internal/core/domain"
)

// LexicalIndex is the BM25 side of hybrid retrieval. Search returns hits
// ordered by lexical relevance with contiguous 1-indexed ranks.
type LexicalIndex interface {
	IndexChunks(ctx context.Context, chunks []domain.Chunk) error
	Search(ctx context.Context, query string, topK int) ([]domain.RankedHit, error)
}

// VectorIndex is the semantic side of hybrid retrieval. Embedding the query
// is the index's own responsibility; callers pass plain text.
type VectorIndex interface {
	IndexChunks(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error
	Search(ctx context.Context, query string, topK int) ([]domain.RankedHit, error)
}

// GraphStore is the read-side contract over the medical knowledge graph.
// The graph is built offline; the query path never writes.
type GraphStore interface {
	// FindEntityNames resolves a candidate term to known entity names by
	// case-insensitive substring match. Chunk and document nodes are excluded.
	FindEntityNames(ctx context.Context, term string, limit int) ([]string, error)
	// Neighborhood traverses up to maxHops (1 or 2) edges around an entity.
	Neighborhood(ctx context.Context, entityName string, maxHops int) (*domain.EntityNeighborhood, error)
	// SimilarChunks follows SIMILAR edges from a chunk node.
	SimilarChunks(ctx context.Context, chunkID string, limit int) ([]domain.SimilarChunk, error)
}

// EntityExtractor produces candidate entity names from a query and the chunks
// already retrieved. Candidates are validated against the graph afterwards,
// so extractors may be generous.
type EntityExtractor interface {
	ExtractCandidates(ctx context.Context, query string, chunks []domain.FusedResult) ([]string, error)
}

// GraphContextExpander renders knowledge-graph context for a query and
// reports the strategy it resolved to (auto settles on local or global). An
// empty string means no useful context was found; expansion never fails the
// query.
type GraphContextExpander interface {
	Expand(ctx context.Context, query string, chunks []domain.FusedResult) (string, domain.ExpansionStrategy)
}

// AnswerGenerator creates the final user-facing answer.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, query domain.Query, chunks []domain.FusedResult, graphContext string) (string, error)
	GenerateFromPrompt(ctx context.Context, prompt string) (string, error)
}

// QueryClassifier detects language, query type and complexity upstream of the
// retrieval pipeline.
type QueryClassifier interface {
	Classify(ctx context.Context, query string, history []string) (domain.Classification, error)
}

// Embedder builds vectors for chunk and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits page text into indexable chunks.
type Chunker interface {
	Split(text string) []string
}

// PageExtractor extracts per-page text from a stored document.
type PageExtractor interface {
	ExtractPages(ctx context.Context, doc *domain.Document) ([]domain.Page, error)
}

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	UpdateCounts(ctx context.Context, id string, pageCount, chunkCount int) error
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}
