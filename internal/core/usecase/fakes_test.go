package usecase

import (
	"bytes"
	"context"
	"hash/fnv"
	"io"
	"sync"

	"github.com/olegkarev/testcase-search/internal/core/domain"
)

type fakeBatchRepo struct {
	mu       sync.Mutex
	batches  map[string]*domain.Batch
	statuses []domain.BatchStatus
	failNext error
}

func newFakeBatchRepo() *fakeBatchRepo {
	return &fakeBatchRepo{batches: make(map[string]*domain.Batch)}
}

func (f *fakeBatchRepo) Create(_ context.Context, batch *domain.Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		return f.failNext
	}
	clone := *batch
	f.batches[batch.ID] = &clone
	return nil
}

func (f *fakeBatchRepo) GetByID(_ context.Context, id string) (*domain.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch, ok := f.batches[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *batch
	return &clone, nil
}

func (f *fakeBatchRepo) UpdateStatus(_ context.Context, id string, status domain.BatchStatus, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	if batch, ok := f.batches[id]; ok {
		batch.Status = status
		batch.Error = errMessage
	}
	return nil
}

func (f *fakeBatchRepo) UpdateCounters(_ context.Context, id string, total, inserted, duplicates, failed int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if batch, ok := f.batches[id]; ok {
		batch.Total = total
		batch.Inserted = inserted
		batch.Duplicates = duplicates
		batch.Failed = failed
	}
	return nil
}

type fakeRecordRepo struct {
	mu      sync.Mutex
	records map[string]domain.TestCase
	bumped  []string
	bumpErr error
}

func newFakeRecordRepo() *fakeRecordRepo {
	return &fakeRecordRepo{records: make(map[string]domain.TestCase)}
}

func (f *fakeRecordRepo) Create(_ context.Context, tc *domain.TestCase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[tc.ID] = *tc
	return nil
}

func (f *fakeRecordRepo) GetByID(_ context.Context, id string) (*domain.TestCase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

func (f *fakeRecordRepo) GetByIDs(_ context.Context, ids []string) ([]domain.TestCase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.TestCase, 0, len(ids))
	for _, id := range ids {
		if rec, ok := f.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeRecordRepo) BumpPopularity(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bumpErr != nil {
		return f.bumpErr
	}
	f.bumped = append(f.bumped, ids...)
	return nil
}

type fakeStorage struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{files: make(map[string][]byte)}
}

func (f *fakeStorage) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[key] = raw
	return nil
}

func (f *fakeStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.files[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type fakeQueue struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (f *fakeQueue) PublishBatchUploaded(_ context.Context, event domain.BatchUploadedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, event.BatchID)
	return nil
}

func (f *fakeQueue) SubscribeBatchUploaded(context.Context, func(context.Context, domain.BatchUploadedEvent) error) error {
	return nil
}

type fakeParser struct {
	drafts []domain.TestCase
	err    error
}

func (f *fakeParser) Parse(context.Context, string, io.Reader) ([]domain.TestCase, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.TestCase, len(f.drafts))
	copy(out, f.drafts)
	return out, nil
}

type fakeEnricher struct {
	enrichment domain.Enrichment
	err        error
}

func (f *fakeEnricher) Enrich(context.Context, *domain.TestCase) (domain.Enrichment, error) {
	return f.enrichment, f.err
}

// fakeEmbedder derives a deterministic unit-ish vector from the text so
// identical texts embed identically.
type fakeEmbedder struct {
	err error
}

func hashVector(text string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()
	v := make([]float32, domain.VectorDim)
	v[seed%uint64(domain.VectorDim)] = 1
	v[(seed>>8)%uint64(domain.VectorDim)] += 0.5
	return v
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = hashVector(text)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type fakeVectorIndex struct {
	mu      sync.Mutex
	indexed []string
	hits    []domain.Candidate
	err     error
}

func (f *fakeVectorIndex) IndexRecord(_ context.Context, tc *domain.TestCase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.indexed = append(f.indexed, tc.ID)
	return nil
}

func (f *fakeVectorIndex) Nearest(context.Context, []float32, int) ([]domain.Candidate, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func (f *fakeVectorIndex) NearestFiltered(ctx context.Context, vector []float32, topN int, _ domain.SearchFilter) ([]domain.Candidate, error) {
	return f.Nearest(ctx, vector, topN)
}

type fakeFuzzyIndex struct {
	hits []domain.Candidate
	err  error
}

func (f *fakeFuzzyIndex) FuzzyMatch(context.Context, map[string]struct{}, int) ([]domain.Candidate, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}
