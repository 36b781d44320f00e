package config

import "testing"

func TestLoadIncludesFusionDefaults(t *testing.T) {
	t.Setenv("RRF_K", "")
	t.Setenv("LEXICAL_WEIGHT", "")
	t.Setenv("SEMANTIC_WEIGHT", "")
	t.Setenv("TOP_K_LEXICAL", "")
	t.Setenv("TOP_K_SEMANTIC", "")
	t.Setenv("TOP_K_FUSED", "")

	cfg := Load()
	if cfg.RRFK != 60 {
		t.Fatalf("expected default rrf k 60, got %d", cfg.RRFK)
	}
	if cfg.LexicalWeight != 1.0 {
		t.Fatalf("expected default lexical weight 1.0, got %f", cfg.LexicalWeight)
	}
	if cfg.SemanticWeight != 2.0 {
		t.Fatalf("expected default semantic weight 2.0, got %f", cfg.SemanticWeight)
	}
	if cfg.TopKLexical != 10 || cfg.TopKSemantic != 10 || cfg.TopKFused != 5 {
		t.Fatalf("unexpected top-k defaults %d/%d/%d", cfg.TopKLexical, cfg.TopKSemantic, cfg.TopKFused)
	}
}

func TestLoadParsesFusionOverrides(t *testing.T) {
	t.Setenv("RRF_K", "75")
	t.Setenv("SEMANTIC_WEIGHT", "3.5")
	t.Setenv("TOP_K_FUSED", "8")
	t.Setenv("KG_EXPANSION_STRATEGY", "hybrid")
	t.Setenv("KG_MAX_HOPS", "1")

	cfg := Load()
	if cfg.RRFK != 75 {
		t.Fatalf("expected rrf k 75, got %d", cfg.RRFK)
	}
	if cfg.SemanticWeight != 3.5 {
		t.Fatalf("expected semantic weight 3.5, got %f", cfg.SemanticWeight)
	}
	if cfg.TopKFused != 8 {
		t.Fatalf("expected top k fused 8, got %d", cfg.TopKFused)
	}
	if cfg.KGExpansionStrategy != "hybrid" || cfg.KGMaxHops != 1 {
		t.Fatalf("unexpected kg overrides %s/%d", cfg.KGExpansionStrategy, cfg.KGMaxHops)
	}
}

func TestLoadFallsBackOnMalformedNumbers(t *testing.T) {
	t.Setenv("SEMANTIC_WEIGHT", "heavy")
	t.Setenv("KG_MAX_HOPS", "two")

	cfg := Load()
	if cfg.SemanticWeight != 2.0 {
		t.Fatalf("expected fallback semantic weight, got %f", cfg.SemanticWeight)
	}
	if cfg.KGMaxHops != 2 {
		t.Fatalf("expected fallback max hops, got %d", cfg.KGMaxHops)
	}
}
