package neo4j

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/btasdemir/medgraph-rag/internal/core/domain"
	"github.com/btasdemir/medgraph-rag/internal/infrastructure/resilience"
)

// Store is the read side of the medical knowledge graph. The graph is built
// by an offline pipeline; chunk and document nodes share the graph with the
// medical entities and are excluded from entity queries by label.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	executor *resilience.Executor
}

func New(ctx context.Context, uri, user, password, database string, executor *resilience.Executor) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return &Store{
		driver:   driver,
		database: database,
		executor: executor,
	}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Store) FindEntityNames(ctx context.Context, term string, limit int) ([]string, error) {
	const query = `
MATCH (e)
WHERE NOT e:Chunk AND NOT e:Document
  AND toLower(e.name) CONTAINS toLower($term)
RETURN e.name AS name
ORDER BY size(e.name) ASC
LIMIT $limit`

	records, err := s.readRecords(ctx, "neo4j.find_entities", query, map[string]any{
		"term":  strings.TrimSpace(term),
		"limit": limit,
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(records))
	for _, record := range records {
		if name := recordString(record, "name"); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

func (s *Store) Neighborhood(ctx context.Context, entityName string, maxHops int) (*domain.EntityNeighborhood, error) {
	const directQuery = `
MATCH (e {name: $name})
WHERE NOT e:Chunk AND NOT e:Document
OPTIONAL MATCH (e)-[r]-(n)
WHERE NOT n:Chunk AND NOT n:Document
RETURN labels(e) AS entityLabels,
       type(r) AS edge,
       n.name AS target,
       labels(n) AS targetLabels`

	records, err := s.readRecords(ctx, "neo4j.neighborhood", directQuery, map[string]any{"name": entityName})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "neo4j neighborhood", fmt.Errorf("entity %q not found", entityName))
	}

	neighborhood := &domain.EntityNeighborhood{
		Name: entityName,
		Type: firstEntityLabel(recordStrings(records[0], "entityLabels")),
	}
	for _, record := range records {
		relation, ok := recordRelation(record)
		if !ok {
			continue
		}
		neighborhood.Direct = append(neighborhood.Direct, relation)
	}

	if maxHops < 2 {
		return neighborhood, nil
	}

	const indirectQuery = `
MATCH (e {name: $name})-[]-(mid)-[r]-(n)
WHERE NOT e:Chunk AND NOT e:Document
  AND NOT mid:Chunk AND NOT mid:Document
  AND NOT n:Chunk AND NOT n:Document
  AND n.name <> $name
RETURN DISTINCT type(r) AS edge, n.name AS target, labels(n) AS targetLabels
LIMIT 30`

	indirect, err := s.readRecords(ctx, "neo4j.neighborhood", indirectQuery, map[string]any{"name": entityName})
	if err != nil {
		return nil, err
	}
	direct := make(map[string]bool, len(neighborhood.Direct))
	for _, rel := range neighborhood.Direct {
		direct[rel.Target] = true
	}
	for _, record := range indirect {
		relation, ok := recordRelation(record)
		if !ok || direct[relation.Target] {
			continue
		}
		neighborhood.Indirect = append(neighborhood.Indirect, relation)
	}
	return neighborhood, nil
}

func (s *Store) SimilarChunks(ctx context.Context, chunkID string, limit int) ([]domain.SimilarChunk, error) {
	const query = `
MATCH (c:Chunk {chunk_id: $chunkID})-[:SIMILAR]-(o:Chunk)
RETURN o.chunk_id AS chunkID, o.text AS text
LIMIT $limit`

	records, err := s.readRecords(ctx, "neo4j.similar_chunks", query, map[string]any{
		"chunkID": chunkID,
		"limit":   limit,
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.SimilarChunk, 0, len(records))
	for _, record := range records {
		out = append(out, domain.SimilarChunk{
			ChunkID: recordString(record, "chunkID"),
			Text:    recordString(record, "text"),
		})
	}
	return out, nil
}

func (s *Store) readRecords(ctx context.Context, operation, query string, params map[string]any) ([]*neo4j.Record, error) {
	var records []*neo4j.Record
	call := func(ctx context.Context) error {
		session := s.driver.NewSession(ctx, neo4j.SessionConfig{
			AccessMode:   neo4j.AccessModeRead,
			DatabaseName: s.database,
		})
		defer session.Close(ctx)

		collected, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			result, err := tx.Run(ctx, query, params)
			if err != nil {
				return nil, err
			}
			return result.Collect(ctx)
		})
		if err != nil {
			return err
		}
		records = collected.([]*neo4j.Record)
		return nil
	}

	var err error
	if s.executor != nil {
		err = s.executor.Execute(ctx, operation, call, classifyNeo4jError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return records, nil
}

func classifyNeo4jError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if resilience.IsCircuitOpen(err) || neo4j.IsRetryable(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

// firstEntityLabel picks the entity's type from its labels, skipping the
// structural labels shared with the text side of the graph.
func firstEntityLabel(labels []string) string {
	for _, label := range labels {
		if label != "Chunk" && label != "Document" {
			return label
		}
	}
	return "Entity"
}

func recordRelation(record *neo4j.Record) (domain.GraphRelation, bool) {
	edge := recordString(record, "edge")
	target := recordString(record, "target")
	if edge == "" || target == "" {
		return domain.GraphRelation{}, false
	}
	return domain.GraphRelation{
		EdgeType:   edge,
		Target:     target,
		TargetType: firstEntityLabel(recordStrings(record, "targetLabels")),
	}, true
}

func recordString(record *neo4j.Record, key string) string {
	v, ok := record.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

func recordStrings(record *neo4j.Record, key string) []string {
	v, ok := record.Get(key)
	if !ok || v == nil {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
