package usecase

import (
	"fmt"
	"math"
	"sort"

	"github.com/btasdemir/medgraph-rag/internal/core/domain"
)

// FusionConfig tunes weighted reciprocal rank fusion. The semantic channel
// carries double weight by default: cross-lingual queries lean on embeddings,
// while the lexical channel still rewards exact term matches such as drug names.
type FusionConfig struct {
	K              int
	LexicalWeight  float64
	SemanticWeight float64
}

func (c FusionConfig) normalize() FusionConfig {
	out := c
	if out.K <= 0 {
		out.K = 60
	}
	if out.LexicalWeight <= 0 {
		out.LexicalWeight = 1.0
	}
	if out.SemanticWeight <= 0 {
		out.SemanticWeight = 2.0
	}
	return out
}

type fusedCandidate struct {
	result     domain.FusedResult
	inLexical  bool
	inSemantic bool
}

// FuseRRF combines the two independently-ranked hit lists into one list
// ordered by weighted RRF score, truncated to topK (topK <= 0 keeps all).
// Malformed input (broken rank sequence, non-finite score) is a caller
// contract violation and fails fast.
func FuseRRF(lexical, semantic []domain.RankedHit, topK int, cfg FusionConfig) ([]domain.FusedResult, error) {
	cfg = cfg.normalize()

	if err := validateHits(lexical, domain.SourceLexical); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "fuse candidates", err)
	}
	if err := validateHits(semantic, domain.SourceSemantic); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "fuse candidates", err)
	}

	acc := make(map[string]*fusedCandidate, len(lexical)+len(semantic))

	for _, hit := range lexical {
		candidate := acc[hit.ChunkID]
		if candidate == nil {
			candidate = &fusedCandidate{}
			acc[hit.ChunkID] = candidate
		}
		candidate.inLexical = true
		candidate.result.ChunkID = hit.ChunkID
		candidate.result.LexicalScore = hit.Score
		candidate.result.LexicalRank = hit.Rank
		candidate.result.FusedScore += cfg.LexicalWeight / float64(cfg.K+hit.Rank)
		// Lexical metadata is the fallback: keep it only while the semantic
		// copy has not claimed the slot.
		if !candidate.inSemantic {
			candidate.result.Text = hit.Text
			candidate.result.PageNumber = hit.PageNumber
			candidate.result.DocumentName = hit.DocumentName
		}
	}

	for _, hit := range semantic {
		candidate := acc[hit.ChunkID]
		if candidate == nil {
			candidate = &fusedCandidate{}
			acc[hit.ChunkID] = candidate
		}
		candidate.inSemantic = true
		candidate.result.ChunkID = hit.ChunkID
		candidate.result.SemanticScore = hit.Score
		candidate.result.SemanticRank = hit.Rank
		candidate.result.FusedScore += cfg.SemanticWeight / float64(cfg.K+hit.Rank)
		// The semantic copy of text/page metadata wins when a chunk appears
		// in both lists.
		if hit.Text != "" || !candidate.inLexical {
			candidate.result.Text = hit.Text
			candidate.result.PageNumber = hit.PageNumber
			candidate.result.DocumentName = hit.DocumentName
		}
	}

	out := make([]domain.FusedResult, 0, len(acc))
	both := make(map[string]bool, len(acc))
	for chunkID, candidate := range acc {
		both[chunkID] = candidate.inLexical && candidate.inSemantic
		out = append(out, candidate.result)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		if both[out[i].ChunkID] != both[out[j].ChunkID] {
			return both[out[i].ChunkID]
		}
		return out[i].ChunkID < out[j].ChunkID
	})

	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func validateHits(hits []domain.RankedHit, source domain.RetrievalSource) error {
	seen := make(map[string]struct{}, len(hits))
	for i, hit := range hits {
		if hit.ChunkID == "" {
			return fmt.Errorf("%s hit %d: empty chunk id", source, i)
		}
		if hit.Rank != i+1 {
			return fmt.Errorf("%s hit %d: rank %d breaks contiguous 1-indexed sequence", source, i, hit.Rank)
		}
		if math.IsNaN(hit.Score) || math.IsInf(hit.Score, 0) {
			return fmt.Errorf("%s hit %d (%s): non-finite score", source, i, hit.ChunkID)
		}
		if _, dup := seen[hit.ChunkID]; dup {
			return fmt.Errorf("%s hit %d: duplicate chunk id %s", source, i, hit.ChunkID)
		}
		seen[hit.ChunkID] = struct{}{}
	}
	return nil
}
