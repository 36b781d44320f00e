package neo4j

import (
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

func record(keys []string, values []any) *neo4j.Record {
	return &neo4j.Record{Keys: keys, Values: values}
}

func TestFirstEntityLabelSkipsStructuralLabels(t *testing.T) {
	if got := firstEntityLabel([]string{"Chunk", "Drug"}); got != "Drug" {
		t.Fatalf("expected Drug, got %s", got)
	}
	if got := firstEntityLabel([]string{"Document"}); got != "Entity" {
		t.Fatalf("expected Entity fallback, got %s", got)
	}
	if got := firstEntityLabel(nil); got != "Entity" {
		t.Fatalf("expected Entity fallback for no labels, got %s", got)
	}
}

func TestRecordRelationMapsFields(t *testing.T) {
	rec := record(
		[]string{"edge", "target", "targetLabels"},
		[]any{"TREATS", "otitis media", []any{"Condition"}},
	)
	relation, ok := recordRelation(rec)
	if !ok {
		t.Fatalf("expected relation")
	}
	if relation.EdgeType != "TREATS" || relation.Target != "otitis media" || relation.TargetType != "Condition" {
		t.Fatalf("unexpected relation %+v", relation)
	}
}

func TestRecordRelationSkipsNullRows(t *testing.T) {
	// OPTIONAL MATCH produces rows with null edge/target for isolated entities.
	rec := record(
		[]string{"edge", "target", "targetLabels"},
		[]any{nil, nil, nil},
	)
	if _, ok := recordRelation(rec); ok {
		t.Fatalf("null row must not produce a relation")
	}
}

func TestRecordStringsIgnoresNonStrings(t *testing.T) {
	rec := record([]string{"entityLabels"}, []any{[]any{"Drug", 42, "Condition"}})
	got := recordStrings(rec, "entityLabels")
	if len(got) != 2 || got[0] != "Drug" || got[1] != "Condition" {
		t.Fatalf("unexpected labels %v", got)
	}
}
