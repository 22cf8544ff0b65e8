package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	v1 "github.com/datahub-lab/datahub/internal/api/v1"
)

const (
	queryPlatformTotals = `
		SELECT COUNT(*), COALESCE(SUM(occurrence_count), 0)
		FROM user_downloads
	`

	queryTopDatasets = `
		SELECT dataset_id, dataset_name, downloads_count
		FROM datasets
		ORDER BY downloads_count DESC, dataset_id ASC
		LIMIT $1
	`

	queryTopDownloaders = `
		SELECT
			user_id,
			COUNT(dataset_id) AS datasets_downloaded,
			SUM(occurrence_count) AS total_downloads
		FROM user_downloads
		GROUP BY user_id
		ORDER BY total_downloads DESC, user_id ASC
		LIMIT $1
	`

	queryActivePairsSince = `
		SELECT COUNT(*)
		FROM user_downloads
		WHERE last_download_at >= $1
	`

	queryDatasetConversion = `
		SELECT
			COUNT(*) FILTER (WHERE downloads_count > 0),
			COUNT(*)
		FROM datasets
	`
)

// StatsAdapter serves the read-only platform rollups behind the analytics
// aggregator. It shares the ledger adapter's connection and never writes.
type StatsAdapter struct {
	db *sql.DB
}

// NewStatsAdapter creates a new StatsAdapter sharing the given connection.
func NewStatsAdapter(db *sql.DB) *StatsAdapter {
	return &StatsAdapter{db: db}
}

// PlatformTotals returns the number of distinct (user, dataset) pairs and
// the total download events across all of them.
func (a *StatsAdapter) PlatformTotals(ctx context.Context) (uniquePairs, totalEvents int64, err error) {
	err = a.db.QueryRowContext(ctx, queryPlatformTotals).Scan(&uniquePairs, &totalEvents)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query platform totals: %w", err)
	}
	return uniquePairs, totalEvents, nil
}

// TopDatasets returns the most-downloaded datasets by public counter.
func (a *StatsAdapter) TopDatasets(ctx context.Context, limit int) ([]v1.RankedDataset, error) {
	rows, err := a.db.QueryContext(ctx, queryTopDatasets, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top datasets: %w", err)
	}
	defer rows.Close()

	var out []v1.RankedDataset
	for rows.Next() {
		var d v1.RankedDataset
		if err := rows.Scan(&d.DatasetID, &d.Name, &d.DownloadCount); err != nil {
			return nil, fmt.Errorf("failed to scan ranked dataset: %w", err)
		}
		out = append(out, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating top datasets: %w", err)
	}
	return out, nil
}

// TopDownloaders returns the most-active downloaders by total events.
func (a *StatsAdapter) TopDownloaders(ctx context.Context, limit int) ([]v1.RankedUser, error) {
	rows, err := a.db.QueryContext(ctx, queryTopDownloaders, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top downloaders: %w", err)
	}
	defer rows.Close()

	var out []v1.RankedUser
	for rows.Next() {
		var u v1.RankedUser
		if err := rows.Scan(&u.UserID, &u.DatasetsDownloaded, &u.TotalDownloads); err != nil {
			return nil, fmt.Errorf("failed to scan ranked user: %w", err)
		}
		out = append(out, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating top downloaders: %w", err)
	}
	return out, nil
}

// ActivePairsSince counts (user, dataset) pairs with download activity at or
// after the given instant.
func (a *StatsAdapter) ActivePairsSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	if err := a.db.QueryRowContext(ctx, queryActivePairsSince, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to query recent activity: %w", err)
	}
	return count, nil
}

// DatasetConversion returns how many datasets have at least one unique
// downloader, and how many datasets exist in total.
func (a *StatsAdapter) DatasetConversion(ctx context.Context) (converted, total int64, err error) {
	err = a.db.QueryRowContext(ctx, queryDatasetConversion).Scan(&converted, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query dataset conversion: %w", err)
	}
	return converted, total, nil
}
