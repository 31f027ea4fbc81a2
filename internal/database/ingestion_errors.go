package database

import (
	"context"
	"fmt"
	"time"
)

// RecordIngestionError persists one row-level audit entry for a price row
// that an ImportRun skipped, per §3's "per-row parse failures are recorded,
// not just aggregate counters" supplemented feature.
func RecordIngestionError(ctx context.Context, e *IngestionError) error {
	pool := Pool()

	_, err := pool.Exec(ctx, `
		INSERT INTO ingestion_errors (
			import_run_id, row_number, error_type, error_message, raw_row, severity, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, e.ImportRunID, e.RowNumber, e.ErrorType, e.ErrorMessage, e.RawRow, e.Severity)
	if err != nil {
		return fmt.Errorf("record ingestion error for import run %d: %w", e.ImportRunID, err)
	}
	return nil
}

// ListIngestionErrors returns the audit rows for one import run, paginated,
// so operators can inspect why specific rows were skipped.
func ListIngestionErrors(ctx context.Context, importRunID int64, limit, offset int) ([]IngestionError, error) {
	pool := Pool()

	rows, err := pool.Query(ctx, `
		SELECT id, import_run_id, row_number, error_type, error_message, raw_row, severity, created_at
		FROM ingestion_errors
		WHERE import_run_id = $1
		ORDER BY id
		LIMIT $2 OFFSET $3
	`, importRunID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list ingestion errors for import run %d: %w", importRunID, err)
	}
	defer rows.Close()

	out := make([]IngestionError, 0)
	for rows.Next() {
		var e IngestionError
		if err := rows.Scan(
			&e.ID, &e.ImportRunID, &e.RowNumber, &e.ErrorType, &e.ErrorMessage, &e.RawRow, &e.Severity, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ingestion error: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CleanupOldIngestionErrors deletes audit rows older than the retention
// window, mirroring the teacher's internal/jobs/cleanup_exceptions.go sweep.
func CleanupOldIngestionErrors(ctx context.Context, olderThan time.Duration) (int, error) {
	pool := Pool()

	cutoff := time.Now().Add(-olderThan)
	result, err := pool.Exec(ctx, `DELETE FROM ingestion_errors WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup old ingestion errors: %w", err)
	}
	return int(result.RowsAffected()), nil
}
