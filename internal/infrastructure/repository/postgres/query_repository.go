package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mkravchenko/groundedqa/internal/core/domain"
)

type QueryResultRepository struct {
	db *sql.DB
}

func NewQueryResultRepository(db *sql.DB) *QueryResultRepository {
	return &QueryResultRepository{db: db}
}

// Save upserts the result row. Answer is stored as NULL for failed queries
// so the control plane can distinguish "no answer" from an empty string;
// debug_data is NULL unless the job ran in debug mode.
func (r *QueryResultRepository) Save(ctx context.Context, result *domain.QueryResult) error {
	citationsJSON, err := marshalJSON(result.Citations)
	if err != nil {
		return fmt.Errorf("marshal citations: %w", err)
	}

	var debugJSON any
	if result.DebugData != nil {
		raw, err := marshalJSON(result.DebugData)
		if err != nil {
			return fmt.Errorf("marshal debug data: %w", err)
		}
		debugJSON = raw
	}

	var answer any
	if result.ErrorMessage == "" {
		answer = result.Answer
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO query_results (
	id, query_text, answer, confidence_score, citations, total_time_ms,
	iteration_count, debug_data, error_message, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
	answer = EXCLUDED.answer,
	confidence_score = EXCLUDED.confidence_score,
	citations = EXCLUDED.citations,
	total_time_ms = EXCLUDED.total_time_ms,
	iteration_count = EXCLUDED.iteration_count,
	debug_data = EXCLUDED.debug_data,
	error_message = EXCLUDED.error_message
`,
		result.QueryID, result.QueryText, answer, result.ConfidenceScore,
		citationsJSON, result.TotalTimeMS, result.IterationCount, debugJSON,
		result.ErrorMessage, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save query result: %w", err)
	}
	return nil
}
