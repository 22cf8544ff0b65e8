package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/datahub-lab/datahub/internal/core/storage"
)

const (
	queryDatasetArchiveKey = `
		SELECT archive_key
		FROM datasets
		WHERE dataset_id = $1
	`

	queryFileObjectKey = `
		SELECT object_key
		FROM files
		WHERE file_id = $1 AND dataset_id = $2
	`
)

// CatalogAdapter resolves datasets and files to their blob-store object keys.
// It shares the ledger adapter's connection and never writes.
type CatalogAdapter struct {
	db *sql.DB
}

// NewCatalogAdapter creates a new CatalogAdapter sharing the given connection.
func NewCatalogAdapter(db *sql.DB) *CatalogAdapter {
	return &CatalogAdapter{db: db}
}

// DatasetArchiveKey returns the object key of the dataset's full archive.
// Returns storage.ErrNotFound if the dataset does not exist or has no archive.
func (a *CatalogAdapter) DatasetArchiveKey(ctx context.Context, datasetID int64) (string, error) {
	var key sql.NullString
	err := a.db.QueryRowContext(ctx, queryDatasetArchiveKey, datasetID).Scan(&key)
	if err == sql.ErrNoRows {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve dataset archive key: %w", err)
	}
	if !key.Valid || key.String == "" {
		return "", storage.ErrNotFound
	}
	return key.String, nil
}

// FileObjectKey returns the object key of one file within a dataset.
// Returns storage.ErrNotFound if the file does not exist in that dataset.
func (a *CatalogAdapter) FileObjectKey(ctx context.Context, datasetID, fileID int64) (string, error) {
	var key string
	err := a.db.QueryRowContext(ctx, queryFileObjectKey, fileID, datasetID).Scan(&key)
	if err == sql.ErrNoRows {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve file object key: %w", err)
	}
	return key, nil
}
