package domain

// ChunkResult is the UI-facing view of one retrieved chunk inside debug
// data. Preview is the leading characters of content; ScoreChange is set
// only on the after-rerank list.
type ChunkResult struct {
	ID          string   `json:"id"`
	Score       float64  `json:"score"`
	Source      string   `json:"source"`
	Section     string   `json:"section"`
	Preview     string   `json:"preview"`
	ScoreChange *float64 `json:"score_change,omitempty"`
}

// DebugIteration records one pass of the agent loop, bit-exact for the
// operator UI.
type DebugIteration struct {
	IterationNumber    int             `json:"iteration_number"`
	QueryUsed          string          `json:"query_used"`
	SearchSources      SearchSources   `json:"search_sources"`
	ChunksBeforeRerank []ChunkResult   `json:"chunks_before_rerank"`
	ChunksAfterRerank  []ChunkResult   `json:"chunks_after_rerank"`
	AgentEvaluation    AgentEvaluation `json:"agent_evaluation"`
	DurationMS         int64           `json:"duration_ms"`
}

// DebugTiming accumulates stage totals across iterations; GenerationMS is
// the single final answer call and TotalMS is wall time to persistence.
type DebugTiming struct {
	EmbeddingMS  int64 `json:"embedding_ms"`
	SearchMS     int64 `json:"search_ms"`
	RerankMS     int64 `json:"rerank_ms"`
	AgentMS      int64 `json:"agent_ms"`
	GenerationMS int64 `json:"generation_ms"`
	TotalMS      int64 `json:"total_ms"`
}

type DebugData struct {
	Iterations []DebugIteration `json:"iterations"`
	Timing     DebugTiming      `json:"timing"`
}

// Citation points at a chunk from the last iteration's reranked context.
// Number matches the [n] marker in the answer text.
type Citation struct {
	Number        int      `json:"citation_number"`
	ChunkID       string   `json:"chunk_id"`
	DocumentID    string   `json:"document_id"`
	DocumentName  string   `json:"document_name"`
	HierarchyPath []string `json:"hierarchy_path"`
	PageNumber    int      `json:"page_number,omitempty"`
}

// QueryResult is what the query worker persists. Answer stays empty and
// ErrorMessage is set when the query fails; DebugData covers the iterations
// completed up to the failure.
type QueryResult struct {
	QueryID         string     `json:"query_id"`
	QueryText       string     `json:"query_text"`
	Answer          string     `json:"answer"`
	Citations       []Citation `json:"citations"`
	ConfidenceScore float64    `json:"confidence_score"`
	TotalTimeMS     int64      `json:"total_time_ms"`
	IterationCount  int        `json:"iteration_count"`
	DebugData       *DebugData `json:"debug_data,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
}
