package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	v1 "github.com/datahub-lab/datahub/internal/api/v1"
	"github.com/datahub-lab/datahub/internal/core/storage"
)

// ErrInvalidRequest marks request validation errors that should return HTTP 400.
// No storage access happens once a request fails validation.
var ErrInvalidRequest = errors.New("invalid track request")

// Service is the download tracker. It decides, per download event, whether
// the (user, dataset) pair is a new distinct downloader and keeps the
// dataset's public downloads_count equal to the ledger's distinct-pair count.
//
// The service is a stateless value holding only storage handles; a single
// instance is safely shared across concurrent requests. First-download races
// are resolved entirely by the ledger's unique constraint, with no
// in-process locking.
type Service struct {
	ledger   storage.DownloadLedger
	datasets storage.DatasetCounter
	nowFn    func() time.Time
}

// NewService creates a download tracker over the given stores.
func NewService(ledger storage.DownloadLedger, datasets storage.DatasetCounter) *Service {
	if ledger == nil {
		panic("tracking: ledger must not be nil")
	}
	if datasets == nil {
		panic("tracking: dataset counter must not be nil")
	}
	return &Service{
		ledger:   ledger,
		datasets: datasets,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// RecordDownload records one download event for a (user, dataset) pair.
//
// The first event for a pair creates the ledger row and increments the
// dataset counter atomically; every later event only bumps the row's
// occurrence count. When two first downloads race, the unique constraint
// rejects the loser's insert and the loser re-executes as a repeat: one
// bounded extra round trip, never a retry loop.
func (s *Service) RecordDownload(ctx context.Context, req v1.TrackRequest) (*v1.TrackResult, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	_, err := s.ledger.GetByUserAndDataset(ctx, req.UserID, req.DatasetID)
	if err == nil {
		return s.recordRepeat(ctx, req)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("lookup download record: %w", err)
	}

	now := s.nowFn()
	rec := &v1.DownloadRecord{
		UserID:          req.UserID,
		DatasetID:       req.DatasetID,
		FirstDownloadAt: now,
		LastDownloadAt:  now,
		Kind:            req.Kind,
		OccurrenceCount: 1,
	}
	if req.Kind == v1.KindFile {
		rec.LastFileID = req.FileID
	}

	count, err := s.ledger.Insert(ctx, rec)
	if errors.Is(err, storage.ErrDuplicate) {
		// A concurrent request for the same pair committed first. The row
		// now exists, so the update targets it directly by key.
		slog.Info("First-download race lost, converting to repeat",
			"user_id", req.UserID,
			"dataset_id", req.DatasetID)
		return s.recordRepeat(ctx, req)
	}
	if err != nil {
		return nil, fmt.Errorf("insert download record: %w", err)
	}

	slog.Info("First download recorded",
		"user_id", req.UserID,
		"dataset_id", req.DatasetID,
		"dataset_count", count)

	return &v1.TrackResult{
		IsFirstDownload:      true,
		UserTotalDownloads:   1,
		DatasetDownloadCount: count,
	}, nil
}

// recordRepeat applies a repeat download: occurrence bump, timestamp, kind
// merge. The dataset counter is read, never written.
func (s *Service) recordRepeat(ctx context.Context, req v1.TrackRequest) (*v1.TrackResult, error) {
	rec, err := s.ledger.UpdateOccurrence(ctx, storage.OccurrenceUpdate{
		UserID:    req.UserID,
		DatasetID: req.DatasetID,
		Kind:      req.Kind,
		FileID:    req.FileID,
		Now:       s.nowFn(),
	})
	if err != nil {
		return nil, fmt.Errorf("update download occurrence: %w", err)
	}

	count, err := s.datasets.DownloadCount(ctx, req.DatasetID)
	if err != nil {
		return nil, fmt.Errorf("read dataset download count: %w", err)
	}

	slog.Info("Repeat download recorded",
		"user_id", req.UserID,
		"dataset_id", req.DatasetID,
		"occurrence_count", rec.OccurrenceCount)

	return &v1.TrackResult{
		IsFirstDownload:      false,
		UserTotalDownloads:   rec.OccurrenceCount,
		DatasetDownloadCount: count,
	}, nil
}

// IsFirstDownload reports whether the pair has no recorded activity yet.
// Purely advisory: a concurrent RecordDownload can change the answer
// immediately after it returns.
func (s *Service) IsFirstDownload(ctx context.Context, userID, datasetID int64) (bool, error) {
	_, err := s.ledger.GetByUserAndDataset(ctx, userID, datasetID)
	if errors.Is(err, storage.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup download record: %w", err)
	}
	return false, nil
}
