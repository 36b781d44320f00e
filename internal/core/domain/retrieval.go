package domain

// RetrievalSource identifies which index produced a ranked hit.
type RetrievalSource string

const (
	SourceLexical  RetrievalSource = "lexical"
	SourceSemantic RetrievalSource = "semantic"
)

// RankedHit is a chunk as returned by one retrieval channel. Rank is the
// 1-indexed position within that channel's result list; Score is on the
// channel's native scale and not comparable across channels.
type RankedHit struct {
	ChunkID      string          `json:"chunk_id"`
	Text         string          `json:"text"`
	PageNumber   int             `json:"page_number"`
	DocumentName string          `json:"document_name,omitempty"`
	Rank         int             `json:"rank"`
	Score        float64         `json:"score"`
	Source       RetrievalSource `json:"source"`
}

// FusedResult is a chunk after reciprocal rank fusion. A zero rank means the
// chunk was absent from that channel's result list.
type FusedResult struct {
	ChunkID       string  `json:"chunk_id"`
	Text          string  `json:"text"`
	PageNumber    int     `json:"page_number"`
	DocumentName  string  `json:"document_name,omitempty"`
	FusedScore    float64 `json:"fused_score"`
	LexicalScore  float64 `json:"lexical_score"`
	SemanticScore float64 `json:"semantic_score"`
	LexicalRank   int     `json:"lexical_rank"`
	SemanticRank  int     `json:"semantic_rank"`
}

// Answer is the final response of the retrieval pipeline.
type Answer struct {
	Text         string        `json:"text"`
	Sources      []FusedResult `json:"sources"`
	GraphContext string        `json:"graph_context,omitempty"`
	// DegradedSources lists retrieval channels that failed while this answer
	// was assembled from the surviving channel.
	DegradedSources []RetrievalSource `json:"degraded_sources,omitempty"`
	// ExpansionStrategy is the resolved graph-expansion strategy; empty when
	// expansion did not run.
	ExpansionStrategy ExpansionStrategy `json:"expansion_strategy,omitempty"`
}
