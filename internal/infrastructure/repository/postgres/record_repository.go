package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/olegkarev/testcase-search/internal/core/domain"
)

type RecordRepository struct {
	db *sql.DB
}

func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

const recordColumns = `id, test_case_id, feature, description, prerequisites, steps, tags,
priority, platform, summary, keywords, main_vector, desc_vector, summary_vector, step_vectors,
popularity, status, batch_id, created_at, updated_at`

func (r *RecordRepository) Create(ctx context.Context, tc *domain.TestCase) error {
	steps, err := json.Marshal(tc.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	tags, err := json.Marshal(emptyIfNil(tc.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	keywords, err := json.Marshal(emptyIfNil(tc.Keywords))
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}

	mainVec, err := marshalVector(tc.MainVector)
	if err != nil {
		return err
	}
	descVec, err := marshalVector(tc.DescVector)
	if err != nil {
		return err
	}
	summaryVec, err := marshalVector(tc.SummaryVector)
	if err != nil {
		return err
	}
	var stepVecs any
	if len(tc.StepVectors) > 0 {
		raw, err := json.Marshal(tc.StepVectors)
		if err != nil {
			return fmt.Errorf("marshal step vectors: %w", err)
		}
		stepVecs = raw
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO test_cases (`+recordColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
`,
		tc.ID, tc.TestCaseID, tc.Feature, tc.Description, tc.Prerequisites, steps, tags,
		string(tc.Priority), tc.Platform, tc.Summary, keywords, mainVec, descVec, summaryVec, stepVecs,
		tc.Popularity, string(tc.Status), tc.BatchID, tc.CreatedAt, tc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert test case: %w", err)
	}
	return nil
}

func (r *RecordRepository) GetByID(ctx context.Context, id string) (*domain.TestCase, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM test_cases WHERE id = $1`, id)
	tc, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get test case", err)
		}
		return nil, err
	}
	return tc, nil
}

func (r *RecordRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.TestCase, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := `SELECT ` + recordColumns + ` FROM test_cases WHERE id IN (` + strings.Join(placeholders, ",") + `)`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select test cases: %w", err)
	}
	defer rows.Close()

	out := make([]domain.TestCase, 0, len(ids))
	for rows.Next() {
		tc, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate test cases: %w", err)
	}
	return out, nil
}

func (r *RecordRepository) BumpPopularity(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := `UPDATE test_cases SET popularity = popularity + 1, updated_at = NOW() WHERE id IN (` +
		strings.Join(placeholders, ",") + `)`
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("bump popularity: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.TestCase, error) {
	var tc domain.TestCase
	var steps, tags, keywords []byte
	var mainVec, descVec, summaryVec, stepVecs []byte
	var priority, status string
	var feature, prerequisites, platform, summary, batchID sql.NullString

	err := row.Scan(
		&tc.ID, &tc.TestCaseID, &feature, &tc.Description, &prerequisites, &steps, &tags,
		&priority, &platform, &summary, &keywords, &mainVec, &descVec, &summaryVec, &stepVecs,
		&tc.Popularity, &status, &batchID, &tc.CreatedAt, &tc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tc.Feature = feature.String
	tc.Prerequisites = prerequisites.String
	tc.Platform = platform.String
	tc.Summary = summary.String
	tc.BatchID = batchID.String
	tc.Priority = domain.Priority(priority)
	tc.Status = domain.RecordStatus(status)

	if err := json.Unmarshal(steps, &tc.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	if err := json.Unmarshal(tags, &tc.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if err := json.Unmarshal(keywords, &tc.Keywords); err != nil {
		return nil, fmt.Errorf("unmarshal keywords: %w", err)
	}
	if tc.MainVector, err = unmarshalVector(mainVec); err != nil {
		return nil, err
	}
	if tc.DescVector, err = unmarshalVector(descVec); err != nil {
		return nil, err
	}
	if tc.SummaryVector, err = unmarshalVector(summaryVec); err != nil {
		return nil, err
	}
	if len(stepVecs) > 0 {
		if err := json.Unmarshal(stepVecs, &tc.StepVectors); err != nil {
			return nil, fmt.Errorf("unmarshal step vectors: %w", err)
		}
	}
	return &tc, nil
}

func marshalVector(v []float32) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal vector: %w", err)
	}
	return raw, nil
}

func unmarshalVector(raw []byte) ([]float32, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v []float32
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("unmarshal vector: %w", err)
	}
	return v, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
