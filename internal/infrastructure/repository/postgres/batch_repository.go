package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/olegkarev/testcase-search/internal/core/domain"
)

type BatchRepository struct {
	db *sql.DB
}

func NewBatchRepository(db *sql.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

func (r *BatchRepository) Create(ctx context.Context, batch *domain.Batch) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO batches (id, filename, mime_type, storage_path, status, total, inserted, duplicates, failed, error_message, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
		batch.ID, batch.Filename, batch.MimeType, batch.StoragePath, string(batch.Status),
		batch.Total, batch.Inserted, batch.Duplicates, batch.Failed, batch.Error,
		batch.CreatedAt, batch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

func (r *BatchRepository) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	var batch domain.Batch
	var status string
	var errMessage sql.NullString

	err := r.db.QueryRowContext(ctx, `
SELECT id, filename, mime_type, storage_path, status, total, inserted, duplicates, failed, error_message, created_at, updated_at
FROM batches WHERE id = $1
`, id).Scan(
		&batch.ID, &batch.Filename, &batch.MimeType, &batch.StoragePath, &status,
		&batch.Total, &batch.Inserted, &batch.Duplicates, &batch.Failed, &errMessage,
		&batch.CreatedAt, &batch.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get batch", err)
		}
		return nil, fmt.Errorf("select batch: %w", err)
	}

	batch.Status = domain.BatchStatus(status)
	batch.Error = errMessage.String
	return &batch, nil
}

func (r *BatchRepository) UpdateStatus(ctx context.Context, id string, status domain.BatchStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE batches SET status = $2, error_message = $3, updated_at = $4 WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update batch status: %w", err)
	}
	return requireRow(res, "update batch status")
}

func (r *BatchRepository) UpdateCounters(ctx context.Context, id string, total, inserted, duplicates, failed int) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE batches SET total = $2, inserted = $3, duplicates = $4, failed = $5, updated_at = $6 WHERE id = $1
`, id, total, inserted, duplicates, failed, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update batch counters: %w", err)
	}
	return requireRow(res, "update batch counters")
}

func requireRow(res sql.Result, operation string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, operation, sql.ErrNoRows)
	}
	return nil
}
