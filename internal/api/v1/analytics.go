package v1

import "github.com/shopspring/decimal"

// KindBreakdown counts a dataset's downloaders by the kind of activity
// recorded on their ledger row.
type KindBreakdown struct {
	FileOnly    int64 `json:"file_only"`
	DatasetOnly int64 `json:"dataset_only"`
	Mixed       int64 `json:"mixed"`
}

// DatasetStats is the per-dataset analytics read surface.
type DatasetStats struct {
	DatasetID   int64  `json:"dataset_id"`
	DatasetName string `json:"dataset_name"`

	// OfficialDownloadCount is the public downloads_count field.
	OfficialDownloadCount int64 `json:"official_download_count"`

	// UniqueDownloaders is the number of ledger rows for the dataset.
	UniqueDownloaders int64 `json:"unique_downloaders"`

	// TotalDownloadEvents is the sum of occurrence_count across those rows.
	TotalDownloadEvents int64 `json:"total_download_events"`

	AverageEventsPerDownloader decimal.Decimal `json:"average_events_per_downloader"`

	// AbuseRatio is total events over unique downloaders; values well above 1
	// flag datasets being hammered by few users.
	AbuseRatio decimal.Decimal `json:"abuse_ratio"`

	KindBreakdown KindBreakdown `json:"download_kind_breakdown"`
}

// RankedDataset is one entry of the most-downloaded-datasets leaderboard.
type RankedDataset struct {
	DatasetID     int64  `json:"dataset_id"`
	Name          string `json:"dataset_name"`
	DownloadCount int64  `json:"download_count"`
}

// RankedUser is one entry of the most-active-downloaders leaderboard.
type RankedUser struct {
	UserID             int64 `json:"user_id"`
	DatasetsDownloaded int64 `json:"datasets_downloaded"`
	TotalDownloads     int64 `json:"total_downloads"`
}

// WindowActivity is the number of (user, dataset) pairs with download
// activity inside one configured reporting window.
type WindowActivity struct {
	Window      string `json:"window"`
	ActivePairs int64  `json:"active_pairs"`
}

// PlatformStats is the platform-wide analytics read surface.
type PlatformStats struct {
	TotalUniqueDownloads int64 `json:"total_unique_downloads"`
	TotalDownloadEvents  int64 `json:"total_download_events"`

	PopularDatasets   []RankedDataset  `json:"popular_datasets"`
	ActiveDownloaders []RankedUser     `json:"active_downloaders"`
	RecentActivity    []WindowActivity `json:"recent_activity"`

	// ConversionRate is datasets with at least one unique downloader over
	// total datasets.
	ConversionRate decimal.Decimal `json:"conversion_rate"`
}
