package storage

import (
	"context"
	"errors"
	"time"

	v1 "github.com/datahub-lab/datahub/internal/api/v1"
)

// ErrDuplicate is returned by Insert when a ledger row for the same
// (user_id, dataset_id) pair already exists. It is the conflict signal
// the tracker converts into a repeat-download update.
var ErrDuplicate = errors.New("download record already exists")

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// OccurrenceUpdate describes one repeat-download event applied to an
// existing ledger row.
type OccurrenceUpdate struct {
	UserID    int64
	DatasetID int64
	Kind      v1.DownloadKind
	FileID    *int64
	Now       time.Time
}

// DownloadLedger is the uniquely-constrained store of DownloadRecord rows.
// It enforces at most one row per (user_id, dataset_id) and carries no
// business logic beyond that constraint.
type DownloadLedger interface {
	// GetByUserAndDataset returns the ledger row for the pair, or ErrNotFound.
	GetByUserAndDataset(ctx context.Context, userID, datasetID int64) (*v1.DownloadRecord, error)

	// Insert creates the pair's ledger row and increments the dataset's
	// downloads_count in one transaction, returning the new counter value.
	// Returns ErrDuplicate if the row already exists; the counter is then
	// untouched. Any other failure rolls the whole transaction back.
	Insert(ctx context.Context, rec *v1.DownloadRecord) (datasetCount int64, err error)

	// UpdateOccurrence applies a repeat download: occurrence_count+1, new
	// last_download_at, kind collapsed to mixed when it differs. Returns
	// the updated row, or ErrNotFound if the pair has no ledger row.
	UpdateOccurrence(ctx context.Context, upd OccurrenceUpdate) (*v1.DownloadRecord, error)

	// ListByUser returns the user's ledger rows joined with dataset names,
	// most recent activity first.
	ListByUser(ctx context.Context, userID int64, limit int) ([]*v1.HistoryEntry, error)

	// ListByDataset returns all ledger rows referencing the dataset.
	ListByDataset(ctx context.Context, datasetID int64) ([]*v1.DownloadRecord, error)
}

// DatasetCounter reads the public downloads_count on the external Dataset
// entity. The field is only ever written inside DownloadLedger.Insert.
type DatasetCounter interface {
	// DownloadCount returns the dataset's current downloads_count, or
	// ErrNotFound if the dataset does not exist.
	DownloadCount(ctx context.Context, datasetID int64) (int64, error)

	// DatasetName returns the dataset's display name, or ErrNotFound if the
	// dataset does not exist.
	DatasetName(ctx context.Context, datasetID int64) (string, error)
}
