package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/olegkarev/testcase-search/internal/core/domain"
	"github.com/olegkarev/testcase-search/internal/core/ports"
)

type UploadBatchUseCase struct {
	batches ports.BatchRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
}

func NewUploadBatchUseCase(
	batches ports.BatchRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *UploadBatchUseCase {
	return &UploadBatchUseCase{
		batches: batches,
		storage: storage,
		queue:   queue,
	}
}

func (uc *UploadBatchUseCase) Upload(
	ctx context.Context,
	filename, mimeType string,
	body io.Reader,
) (*domain.Batch, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".csv" && ext != ".xlsx" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload batch",
			errors.New("only .csv and .xlsx uploads are supported"))
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save upload to object storage: %w", err)
	}

	batch := &domain.Batch{
		ID:          id,
		Filename:    filename,
		MimeType:    mimeType,
		StoragePath: storageKey,
		Status:      domain.BatchStatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.batches.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("create batch metadata: %w", err)
	}

	event := domain.BatchUploadedEvent{BatchID: batch.ID, PublishedAt: now}
	if err := uc.queue.PublishBatchUploaded(ctx, event); err != nil {
		return nil, fmt.Errorf("publish batch event: %w", err)
	}

	return batch, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "upload.bin"
	}
	return base
}
