package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/btasdemir/medgraph-rag/internal/core/domain"
	"github.com/btasdemir/medgraph-rag/internal/core/ports"
)

const (
	maxExpansionEntities   = 5
	maxDirectPerEdgeType   = 5
	maxIndirectPerEdgeType = 3
	maxGlobalSourceChunks  = 3
	maxSimilarPerChunk     = 3
	similarPreviewChars    = 150
)

// ExpanderConfig tunes graph-context enrichment.
type ExpanderConfig struct {
	MaxHops  int
	Strategy domain.ExpansionStrategy
}

func (c ExpanderConfig) normalize() ExpanderConfig {
	out := c
	if out.MaxHops != 1 && out.MaxHops != 2 {
		out.MaxHops = 2
	}
	switch out.Strategy {
	case domain.StrategyLocal, domain.StrategyGlobal, domain.StrategyHybrid, domain.StrategyAuto:
	default:
		out.Strategy = domain.StrategyAuto
	}
	return out
}

// GraphExpander enriches a query with knowledge-graph context: it discovers
// entities mentioned in the query and retrieved chunks, traverses their
// neighborhoods, and renders a bounded text block for the LLM prompt.
// Every failure is absorbed per entity; expansion never fails a query.
type GraphExpander struct {
	graph     ports.GraphStore
	extractor ports.EntityExtractor
	cfg       ExpanderConfig
	logger    *slog.Logger
}

func NewGraphExpander(graph ports.GraphStore, extractor ports.EntityExtractor, cfg ExpanderConfig, logger *slog.Logger) *GraphExpander {
	if logger == nil {
		logger = slog.Default()
	}
	return &GraphExpander{
		graph:     graph,
		extractor: extractor,
		cfg:       cfg.normalize(),
		logger:    logger,
	}
}

func (e *GraphExpander) Expand(ctx context.Context, query string, chunks []domain.FusedResult) (string, domain.ExpansionStrategy) {
	strategy := e.cfg.Strategy
	if strategy == domain.StrategyAuto {
		strategy = detectStrategy(query)
	}

	switch strategy {
	case domain.StrategyGlobal:
		return e.globalSearch(ctx, chunks), strategy
	case domain.StrategyHybrid:
		local := e.localSearch(ctx, query, chunks)
		global := e.globalSearch(ctx, chunks)
		switch {
		case local == "":
			return global, strategy
		case global == "":
			return local, strategy
		default:
			return local + "\n\n" + global, strategy
		}
	default:
		return e.localSearch(ctx, query, chunks), strategy
	}
}

// detectStrategy routes dosing/named-entity questions to local search and
// broad summary questions to global search. Ambiguous queries default to
// local, the common shape for medical questions.
func detectStrategy(query string) domain.ExpansionStrategy {
	q := strings.ToLower(query)

	broadTerms := []string{"overview", "types of", "all ", "common", "main", "summary"}
	for _, term := range broadTerms {
		if strings.Contains(q, term) {
			return domain.StrategyGlobal
		}
	}
	return domain.StrategyLocal
}

func (e *GraphExpander) localSearch(ctx context.Context, query string, chunks []domain.FusedResult) string {
	candidates, err := e.extractor.ExtractCandidates(ctx, query, chunks)
	if err != nil {
		e.logger.Warn("entity_extraction_failed", "error", err)
		return ""
	}
	if len(candidates) == 0 {
		return ""
	}

	entities := e.resolveEntities(ctx, candidates)
	if len(entities) == 0 {
		return ""
	}

	sections := make([]string, 0, len(entities))
	for _, name := range entities {
		neighborhood, err := e.graph.Neighborhood(ctx, name, e.cfg.MaxHops)
		if err != nil {
			e.logger.Warn("graph_traversal_skipped", "entity", name, "error", err)
			continue
		}
		if neighborhood == nil {
			continue
		}
		if section := renderNeighborhood(neighborhood, e.cfg.MaxHops); section != "" {
			sections = append(sections, section)
		}
	}

	if len(sections) == 0 {
		return ""
	}
	return "=== Knowledge Graph Context ===\n" + strings.Join(sections, "\n\n") + "\n=== End of KG Context ==="
}

// resolveEntities validates extractor candidates against the graph, dropping
// unknown terms silently and capping the entity count to bound latency and
// prompt size.
func (e *GraphExpander) resolveEntities(ctx context.Context, candidates []string) []string {
	out := make([]string, 0, maxExpansionEntities)
	seen := make(map[string]struct{}, maxExpansionEntities)

	for _, candidate := range candidates {
		if len(out) >= maxExpansionEntities {
			break
		}
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		names, err := e.graph.FindEntityNames(ctx, candidate, 1)
		if err != nil {
			e.logger.Warn("entity_lookup_skipped", "candidate", candidate, "error", err)
			continue
		}
		if len(names) == 0 {
			continue
		}
		name := names[0]
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func renderNeighborhood(n *domain.EntityNeighborhood, maxHops int) string {
	if len(n.Direct) == 0 && len(n.Indirect) == 0 {
		return ""
	}

	lines := []string{fmt.Sprintf("Entity: %s (%s)", n.Name, n.Type)}

	for _, group := range groupByEdgeType(n.Direct) {
		targets := make([]string, 0, len(group.relations))
		for _, rel := range group.relations[:min(len(group.relations), maxDirectPerEdgeType)] {
			targets = append(targets, fmt.Sprintf("%s (%s)", rel.Target, rel.TargetType))
		}
		line := fmt.Sprintf("  %s: %s", group.edgeType, strings.Join(targets, ", "))
		if extra := len(group.relations) - maxDirectPerEdgeType; extra > 0 {
			line += fmt.Sprintf(" ... and %d more", extra)
		}
		lines = append(lines, line)
	}

	if maxHops >= 2 && len(n.Indirect) > 0 {
		lines = append(lines, "  Related (2-hop):")
		for _, group := range groupByEdgeType(n.Indirect) {
			targets := make([]string, 0, len(group.relations))
			for _, rel := range group.relations[:min(len(group.relations), maxIndirectPerEdgeType)] {
				targets = append(targets, rel.Target)
			}
			line := fmt.Sprintf("    %s: %s", group.edgeType, strings.Join(targets, ", "))
			if len(group.relations) > maxIndirectPerEdgeType {
				line += " ..."
			}
			lines = append(lines, line)
		}
	}

	return strings.Join(lines, "\n")
}

type edgeGroup struct {
	edgeType  string
	relations []domain.GraphRelation
}

func groupByEdgeType(relations []domain.GraphRelation) []edgeGroup {
	byType := make(map[string][]domain.GraphRelation)
	for _, rel := range relations {
		if rel.Target == "" {
			continue
		}
		byType[rel.EdgeType] = append(byType[rel.EdgeType], rel)
	}

	out := make([]edgeGroup, 0, len(byType))
	for edgeType, rels := range byType {
		out = append(out, edgeGroup{edgeType: edgeType, relations: rels})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].edgeType < out[j].edgeType })
	return out
}

// globalSearch follows SIMILAR chunk-to-chunk edges from the top retrieved
// chunks to surface semantically adjacent corpus passages.
func (e *GraphExpander) globalSearch(ctx context.Context, chunks []domain.FusedResult) string {
	if len(chunks) == 0 {
		return ""
	}
	if len(chunks) > maxGlobalSourceChunks {
		chunks = chunks[:maxGlobalSourceChunks]
	}

	sections := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		similar, err := e.graph.SimilarChunks(ctx, chunk.ChunkID, maxSimilarPerChunk)
		if err != nil {
			e.logger.Warn("similar_chunk_lookup_skipped", "chunk_id", chunk.ChunkID, "error", err)
			continue
		}
		if len(similar) == 0 {
			continue
		}

		lines := make([]string, 0, len(similar)+1)
		lines = append(lines, fmt.Sprintf("Related to '%s':", truncate(chunk.ChunkID, 30)))
		for _, s := range similar {
			lines = append(lines, fmt.Sprintf("  - %s", truncate(strings.TrimSpace(s.Text), similarPreviewChars)))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}

	if len(sections) == 0 {
		return ""
	}
	return "=== Semantic Context (similar chunks) ===\n" + strings.Join(sections, "\n\n") + "\n=== End ==="
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
