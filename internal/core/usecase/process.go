package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/olegkarev/testcase-search/internal/core/dedupe"
	"github.com/olegkarev/testcase-search/internal/core/domain"
	"github.com/olegkarev/testcase-search/internal/core/ports"
)

// ProcessBatchUseCase drives one uploaded batch through parsing,
// enrichment, embedding, duplicate detection and indexing.
type ProcessBatchUseCase struct {
	batches  ports.BatchRepository
	records  ports.RecordRepository
	storage  ports.ObjectStorage
	parser   ports.TabularParser
	enricher ports.Enricher
	embedder ports.Embedder
	vectors  ports.VectorIndex
	detector *dedupe.Detector
	logger   *slog.Logger

	verdictHook func(domain.Verdict)
}

func NewProcessBatchUseCase(
	batches ports.BatchRepository,
	records ports.RecordRepository,
	storage ports.ObjectStorage,
	parser ports.TabularParser,
	enricher ports.Enricher,
	embedder ports.Embedder,
	vectors ports.VectorIndex,
	detector *dedupe.Detector,
	logger *slog.Logger,
) *ProcessBatchUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessBatchUseCase{
		batches:  batches,
		records:  records,
		storage:  storage,
		parser:   parser,
		enricher: enricher,
		embedder: embedder,
		vectors:  vectors,
		detector: detector,
		logger:   logger,
	}
}

// SetVerdictObserver registers a hook receiving every dedupe verdict,
// typically for metrics. Call before processing starts.
func (uc *ProcessBatchUseCase) SetVerdictObserver(fn func(domain.Verdict)) {
	uc.verdictHook = fn
}

func (uc *ProcessBatchUseCase) ProcessByID(ctx context.Context, batchID string) error {
	if err := uc.batches.UpdateStatus(ctx, batchID, domain.BatchStatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	if err := uc.processBatch(ctx, batchID); err != nil {
		if failErr := uc.batches.UpdateStatus(ctx, batchID, domain.BatchStatusFailed, err.Error()); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.batches.UpdateStatus(ctx, batchID, domain.BatchStatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	return nil
}

func (uc *ProcessBatchUseCase) processBatch(ctx context.Context, batchID string) error {
	batch, err := uc.batches.GetByID(ctx, batchID)
	if err != nil {
		return fmt.Errorf("fetch batch by id: %w", err)
	}

	file, err := uc.storage.Open(ctx, batch.StoragePath)
	if err != nil {
		return fmt.Errorf("open uploaded file: %w", err)
	}
	defer file.Close()

	drafts, err := uc.parser.Parse(ctx, batch.Filename, file)
	if err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "parse upload", err)
	}
	if len(drafts) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "parse upload",
			errors.New("no valid test cases found in file"))
	}

	inserted, duplicates, failed := 0, 0, 0
	for i := range drafts {
		outcome, err := uc.ingestRecord(ctx, batchID, &drafts[i])
		if err != nil {
			failed++
			uc.logger.Error("record_ingest_failed",
				"batch", batchID,
				"test_case", drafts[i].TestCaseID,
				"error", err,
			)
			continue
		}
		if outcome.Duplicate {
			duplicates++
		} else {
			inserted++
		}
	}

	if err := uc.batches.UpdateCounters(ctx, batchID, len(drafts), inserted, duplicates, failed); err != nil {
		return fmt.Errorf("update batch counters: %w", err)
	}

	uc.logger.Info("batch_processed",
		"batch", batchID,
		"total", len(drafts),
		"inserted", inserted,
		"duplicates", duplicates,
		"failed", failed,
	)
	return nil
}

// ingestRecord enriches, embeds and dedupe-checks one draft, persisting
// and indexing it only on a unique verdict. Enrichment and embedding
// failures degrade the record (no summary, fuzzy-only retrieval) but do
// not fail ingestion.
func (uc *ProcessBatchUseCase) ingestRecord(ctx context.Context, batchID string, draft *domain.TestCase) (domain.Verdict, error) {
	draft.ID = uuid.NewString()
	draft.BatchID = batchID
	now := time.Now().UTC()
	draft.CreatedAt = now
	draft.UpdatedAt = now

	enrichment, err := uc.enricher.Enrich(ctx, draft)
	if err != nil {
		uc.logger.Warn("enrichment_unavailable", "test_case", draft.TestCaseID, "error", err)
	} else {
		draft.Summary = enrichment.Summary
		draft.Keywords = enrichment.Keywords
	}

	if err := uc.embedRecord(ctx, draft); err != nil {
		uc.logger.Warn("embedding_unavailable", "test_case", draft.TestCaseID, "error", err)
	}

	verdict, err := uc.detector.Detect(ctx, draft)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("duplicate detection: %w", err)
	}
	if uc.verdictHook != nil {
		uc.verdictHook(verdict)
	}
	if verdict.Duplicate {
		uc.logger.Info("record_skipped_duplicate",
			"test_case", draft.TestCaseID,
			"match", verdict.MatchID,
			"confidence", verdict.Confidence,
		)
		return verdict, nil
	}

	draft.Status = domain.RecordStatusReady
	if err := uc.records.Create(ctx, draft); err != nil {
		return domain.Verdict{}, fmt.Errorf("persist record: %w", err)
	}

	if draft.HasVector() {
		if err := uc.vectors.IndexRecord(ctx, draft); err != nil {
			return domain.Verdict{}, fmt.Errorf("index record vectors: %w", err)
		}
	}
	return verdict, nil
}

// embedRecord fills the multi-vector scheme: description, combined step
// text, summary and the whole record in one embedder call, then one
// vector per step.
func (uc *ProcessBatchUseCase) embedRecord(ctx context.Context, tc *domain.TestCase) error {
	stepText := tc.StepText()
	combined := tc.Description + "\n" + tc.Prerequisites + "\n" + stepText
	if tc.Summary != "" {
		combined += "\n" + tc.Summary
	}

	texts := []string{tc.Description, stepText, tc.Summary, combined}
	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed record: %w", err)
	}
	if len(vectors) != len(texts) {
		return domain.WrapError(domain.ErrInvalidInput, "embed record",
			fmt.Errorf("vectors/texts mismatch: %d/%d", len(vectors), len(texts)))
	}
	tc.DescVector = vectors[0]
	tc.SummaryVector = vectors[2]
	tc.MainVector = vectors[3]

	if len(tc.Steps) == 0 {
		return nil
	}
	stepTexts := make([]string, 0, len(tc.Steps))
	for _, step := range tc.Steps {
		stepTexts = append(stepTexts, step.Action)
	}
	stepVectors, err := uc.embedder.Embed(ctx, stepTexts)
	if err != nil {
		return fmt.Errorf("embed steps: %w", err)
	}
	tc.StepVectors = stepVectors
	return nil
}
