package v1

import (
	"fmt"
	"time"
)

// DownloadKind classifies what a user downloaded: a single file out of a
// dataset, the full dataset archive, or (for ledger rows) both over time.
type DownloadKind string

const (
	KindFile    DownloadKind = "file"
	KindDataset DownloadKind = "dataset"

	// KindMixed is a ledger-only marker: the user has performed both
	// file-level and full-dataset downloads for the same dataset.
	// It is never valid on an incoming request.
	KindMixed DownloadKind = "mixed"
)

// Valid reports whether k is an acceptable request kind.
func (k DownloadKind) Valid() bool {
	return k == KindFile || k == KindDataset
}

// Merge returns the ledger kind after an event of kind next.
// Differing kinds collapse to mixed; mixed absorbs everything.
func (k DownloadKind) Merge(next DownloadKind) DownloadKind {
	if k == next {
		return k
	}
	return KindMixed
}

// DownloadRecord is the ledger row: exactly one per (user, dataset) pair,
// enforced by a UNIQUE constraint in the store.
type DownloadRecord struct {
	// ID is the surrogate key assigned by the database.
	ID int64 `json:"-"`

	UserID    int64 `json:"user_id"`
	DatasetID int64 `json:"dataset_id"`

	// FirstDownloadAt is set once, when the row is created.
	FirstDownloadAt time.Time `json:"first_download_at"`

	// LastDownloadAt is updated on every download event for the pair.
	LastDownloadAt time.Time `json:"last_download_at"`

	Kind DownloadKind `json:"download_kind"`

	// LastFileID is set only by file-kind events; nil otherwise.
	LastFileID *int64 `json:"last_file_id,omitempty"`

	// OccurrenceCount is the number of download events ever recorded for
	// the pair. Starts at 1, never decreases.
	OccurrenceCount int64 `json:"occurrence_count"`
}

// HistoryEntry is a ledger row joined with the dataset's display name,
// the shape user-facing download history is served in.
type HistoryEntry struct {
	DownloadRecord
	DatasetName string `json:"dataset_name"`
}

// TrackRequest is a single download event to record.
type TrackRequest struct {
	UserID    int64        `json:"user_id"`
	DatasetID int64        `json:"dataset_id"`
	Kind      DownloadKind `json:"kind"`

	// FileID identifies the downloaded file for file-kind events.
	FileID *int64 `json:"file_id,omitempty"`
}

// Validate ensures the request is well-formed before any storage access.
func (r *TrackRequest) Validate() error {
	if r.UserID <= 0 {
		return fmt.Errorf("user_id is required")
	}

	if r.DatasetID <= 0 {
		return fmt.Errorf("dataset_id is required")
	}

	if !r.Kind.Valid() {
		return fmt.Errorf("kind must be %q or %q", KindFile, KindDataset)
	}

	if r.Kind == KindFile && (r.FileID == nil || *r.FileID <= 0) {
		return fmt.Errorf("file_id is required for file downloads")
	}

	if r.Kind == KindDataset && r.FileID != nil {
		return fmt.Errorf("file_id is only valid for file downloads")
	}

	return nil
}

// TrackResult is the outcome of recording one download event.
type TrackResult struct {
	// IsFirstDownload is true for exactly one event per (user, dataset)
	// pair: the one that created the ledger row and bumped the dataset's
	// public counter.
	IsFirstDownload bool `json:"is_first_download"`

	// UserTotalDownloads is this user's occurrence count for the dataset
	// after the event.
	UserTotalDownloads int64 `json:"user_total_downloads"`

	// DatasetDownloadCount is the dataset's public downloads_count after
	// the event. Unchanged unless IsFirstDownload.
	DatasetDownloadCount int64 `json:"dataset_download_count"`
}
