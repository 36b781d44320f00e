package domain

// QueryComplexity controls whether knowledge-graph enrichment runs for a query.
type QueryComplexity string

const (
	ComplexitySimple  QueryComplexity = "simple"
	ComplexityComplex QueryComplexity = "complex"
)

// QueryType distinguishes medical questions from casual conversation.
type QueryType string

const (
	QueryTypeMedical        QueryType = "medical"
	QueryTypeConversational QueryType = "conversational"
)

// ExpansionStrategy selects how the graph expander gathers context.
type ExpansionStrategy string

const (
	StrategyLocal  ExpansionStrategy = "local"
	StrategyGlobal ExpansionStrategy = "global"
	StrategyHybrid ExpansionStrategy = "hybrid"
	StrategyAuto   ExpansionStrategy = "auto"
)

// Classification is the upstream verdict on a query: detected language,
// conversational vs medical, and whether graph enrichment is worthwhile.
type Classification struct {
	Language   string          `json:"language"`
	QueryType  QueryType       `json:"query_type"`
	Complexity QueryComplexity `json:"complexity"`
}

// Query is the input to the retrieval orchestrator. Complexity and Language
// come from upstream classification; the orchestrator never re-classifies.
type Query struct {
	Text       string          `json:"text"`
	Language   string          `json:"language"`
	Complexity QueryComplexity `json:"complexity"`
}
