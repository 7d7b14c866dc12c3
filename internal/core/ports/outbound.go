package ports

import (
	"context"
	"io"

	"github.com/olegkarev/testcase-search/internal/core/domain"
)

// RecordRepository persists and reads test-case records.
type RecordRepository interface {
	Create(ctx context.Context, tc *domain.TestCase) error
	GetByID(ctx context.Context, id string) (*domain.TestCase, error)
	GetByIDs(ctx context.Context, ids []string) ([]domain.TestCase, error)
	BumpPopularity(ctx context.Context, ids []string) error
}

// BatchRepository persists upload-batch state.
type BatchRepository interface {
	Create(ctx context.Context, batch *domain.Batch) error
	GetByID(ctx context.Context, id string) (*domain.Batch, error)
	UpdateStatus(ctx context.Context, id string, status domain.BatchStatus, errMessage string) error
	UpdateCounters(ctx context.Context, id string, total, inserted, duplicates, failed int) error
}

// ObjectStorage stores uploaded source files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes batch-uploaded events.
type MessageQueue interface {
	PublishBatchUploaded(ctx context.Context, event domain.BatchUploadedEvent) error
	SubscribeBatchUploaded(ctx context.Context, handler func(context.Context, domain.BatchUploadedEvent) error) error
}

// TabularParser turns an uploaded CSV/XLSX stream into test-case drafts.
type TabularParser interface {
	Parse(ctx context.Context, filename string, data io.Reader) ([]domain.TestCase, error)
}

// Enricher produces a summary and keywords for a record.
type Enricher interface {
	Enrich(ctx context.Context, tc *domain.TestCase) (domain.Enrichment, error)
}

// Embedder builds record and query vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex stores record vectors and serves nearest-neighbor search.
type VectorIndex interface {
	IndexRecord(ctx context.Context, tc *domain.TestCase) error
	Nearest(ctx context.Context, vector []float32, topN int) ([]domain.Candidate, error)
	NearestFiltered(ctx context.Context, vector []float32, topN int, filter domain.SearchFilter) ([]domain.Candidate, error)
}

// FuzzyIndex serves token-overlap candidate retrieval.
type FuzzyIndex interface {
	FuzzyMatch(ctx context.Context, tokens map[string]struct{}, topN int) ([]domain.Candidate, error)
}
