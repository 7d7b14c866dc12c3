package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/olegkarev/testcase-search/internal/core/dedupe"
	"github.com/olegkarev/testcase-search/internal/core/domain"
)

func seedBatch(t *testing.T, batches *fakeBatchRepo, storage *fakeStorage) *domain.Batch {
	t.Helper()
	batch := &domain.Batch{
		ID:          "batch-1",
		Filename:    "cases.csv",
		StoragePath: "batch-1_cases.csv",
		Status:      domain.BatchStatusUploaded,
		CreatedAt:   time.Now().UTC(),
	}
	if err := batches.Create(context.Background(), batch); err != nil {
		t.Fatalf("seed batch: %v", err)
	}
	storage.files[batch.StoragePath] = []byte("raw")
	return batch
}

func newProcessUC(
	batches *fakeBatchRepo,
	records *fakeRecordRepo,
	storage *fakeStorage,
	parser *fakeParser,
	vectors *fakeVectorIndex,
	fuzzy *fakeFuzzyIndex,
) *ProcessBatchUseCase {
	detector := dedupe.NewDetector(vectors, fuzzy, records, dedupe.DefaultConfig(), nil)
	return NewProcessBatchUseCase(
		batches, records, storage,
		parser,
		&fakeEnricher{enrichment: domain.Enrichment{Summary: "summary", Keywords: []string{"cart"}}},
		&fakeEmbedder{},
		vectors,
		detector,
		nil,
	)
}

func TestProcessBatchInsertsUniqueRecords(t *testing.T) {
	batches := newFakeBatchRepo()
	records := newFakeRecordRepo()
	storage := newFakeStorage()
	seedBatch(t, batches, storage)

	parser := &fakeParser{drafts: []domain.TestCase{
		{TestCaseID: "TC-1", Description: "add item to cart", Steps: []domain.Step{{Number: 1, Action: "open cart"}}},
		{TestCaseID: "TC-2", Description: "remove item from cart", Steps: []domain.Step{{Number: 1, Action: "open cart"}}},
	}}
	vectors := &fakeVectorIndex{}
	uc := newProcessUC(batches, records, storage, parser, vectors, &fakeFuzzyIndex{})

	if err := uc.ProcessByID(context.Background(), "batch-1"); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	batch, _ := batches.GetByID(context.Background(), "batch-1")
	if batch.Status != domain.BatchStatusReady {
		t.Fatalf("expected status=ready, got %s", batch.Status)
	}
	if batch.Inserted != 2 || batch.Duplicates != 0 || batch.Failed != 0 {
		t.Fatalf("unexpected counters: %+v", batch)
	}
	if len(records.records) != 2 {
		t.Fatalf("expected 2 persisted records, got %d", len(records.records))
	}
	if len(vectors.indexed) != 2 {
		t.Fatalf("expected 2 indexed records, got %d", len(vectors.indexed))
	}

	for _, rec := range records.records {
		if rec.Summary != "summary" {
			t.Fatalf("expected enrichment summary applied, got %q", rec.Summary)
		}
		if !rec.HasVector() {
			t.Fatalf("expected main vector set for %s", rec.TestCaseID)
		}
	}
}

func TestProcessBatchSkipsDuplicates(t *testing.T) {
	batches := newFakeBatchRepo()
	records := newFakeRecordRepo()
	storage := newFakeStorage()
	seedBatch(t, batches, storage)

	stored := domain.TestCase{
		ID:          "existing",
		TestCaseID:  "TC-OLD",
		Description: "add item to cart",
		Steps:       []domain.Step{{Number: 1, Action: "open cart"}},
	}
	records.records[stored.ID] = stored

	parser := &fakeParser{drafts: []domain.TestCase{
		{TestCaseID: "TC-1", Description: "add item to cart", Steps: []domain.Step{{Number: 1, Action: "open cart"}}},
	}}
	vectors := &fakeVectorIndex{hits: []domain.Candidate{{RecordID: "existing", VectorScore: 0.99}}}
	uc := newProcessUC(batches, records, storage, parser, vectors, &fakeFuzzyIndex{})

	if err := uc.ProcessByID(context.Background(), "batch-1"); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	batch, _ := batches.GetByID(context.Background(), "batch-1")
	if batch.Inserted != 0 || batch.Duplicates != 1 {
		t.Fatalf("expected 1 duplicate, got %+v", batch)
	}
	if len(records.records) != 1 {
		t.Fatalf("duplicate must not be persisted, have %d records", len(records.records))
	}
}

func TestProcessBatchMarksFailedOnParseError(t *testing.T) {
	batches := newFakeBatchRepo()
	storage := newFakeStorage()
	seedBatch(t, batches, storage)

	parser := &fakeParser{err: errors.New("malformed header")}
	uc := newProcessUC(batches, newFakeRecordRepo(), storage, parser, &fakeVectorIndex{}, &fakeFuzzyIndex{})

	if err := uc.ProcessByID(context.Background(), "batch-1"); err == nil {
		t.Fatalf("expected parse error to surface")
	}

	batch, _ := batches.GetByID(context.Background(), "batch-1")
	if batch.Status != domain.BatchStatusFailed {
		t.Fatalf("expected status=failed, got %s", batch.Status)
	}
	if batch.Error == "" {
		t.Fatalf("expected error message recorded on batch")
	}
}

func TestProcessBatchEmbeddingFailureDegradesNotFails(t *testing.T) {
	batches := newFakeBatchRepo()
	records := newFakeRecordRepo()
	storage := newFakeStorage()
	seedBatch(t, batches, storage)

	parser := &fakeParser{drafts: []domain.TestCase{
		{TestCaseID: "TC-1", Description: "unique flow", Steps: []domain.Step{{Number: 1, Action: "do thing"}}},
	}}
	vectors := &fakeVectorIndex{}
	detector := dedupe.NewDetector(vectors, &fakeFuzzyIndex{}, records, dedupe.DefaultConfig(), nil)
	uc := NewProcessBatchUseCase(
		batches, records, storage, parser,
		&fakeEnricher{err: errors.New("llm down")},
		&fakeEmbedder{err: errors.New("embedder down")},
		vectors,
		detector,
		nil,
	)

	if err := uc.ProcessByID(context.Background(), "batch-1"); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	batch, _ := batches.GetByID(context.Background(), "batch-1")
	if batch.Inserted != 1 {
		t.Fatalf("expected degraded record still inserted, got %+v", batch)
	}
	if len(vectors.indexed) != 0 {
		t.Fatalf("vector-less record must not be vector-indexed")
	}
}
