package domain

// GraphRelation is one edge out of (or into) an entity. Direction is folded
// away at query time: symmetric edge types are traversed both ways.
type GraphRelation struct {
	EdgeType   string `json:"edge_type"`
	Target     string `json:"target"`
	TargetType string `json:"target_type"`
}

// EntityNeighborhood is the bounded-hop traversal result for one entity.
// Indirect is populated only when the traversal ran with two hops.
type EntityNeighborhood struct {
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Direct   []GraphRelation `json:"direct"`
	Indirect []GraphRelation `json:"indirect,omitempty"`
}

// SimilarChunk is a chunk reachable over a SIMILAR edge from another chunk.
type SimilarChunk struct {
	ChunkID string `json:"chunk_id"`
	Text    string `json:"text"`
}
