package postgres

// SQL queries for the download ledger and dataset counter.

const (
	downloadColumns = `
		download_id, user_id, dataset_id, first_download_at, last_download_at,
		download_kind, last_file_id, occurrence_count
	`

	// queryGetDownload fetches the single ledger row for a (user, dataset) pair.
	queryGetDownload = `
		SELECT ` + downloadColumns + `
		FROM user_downloads
		WHERE user_id = $1 AND dataset_id = $2
	`

	// queryInsertDownload creates the pair's ledger row.
	// ON CONFLICT DO NOTHING returns no rows (sql.ErrNoRows) when the pair
	// already has a row; the caller maps that to storage.ErrDuplicate.
	// Runs inside the same transaction as queryIncrementDatasetCount.
	queryInsertDownload = `
		INSERT INTO user_downloads (
			user_id, dataset_id, first_download_at, last_download_at,
			download_kind, last_file_id, occurrence_count
		)
		VALUES ($1, $2, $3, $3, $4, $5, 1)
		ON CONFLICT (user_id, dataset_id) DO NOTHING
		RETURNING download_id
	`

	// queryIncrementDatasetCount bumps the dataset's public counter by one.
	// Only ever executed in the first-download transaction, right after a
	// successful ledger insert.
	queryIncrementDatasetCount = `
		UPDATE datasets
		SET downloads_count = downloads_count + 1
		WHERE dataset_id = $1
		RETURNING downloads_count
	`

	// queryUpdateOccurrence applies a repeat download to an existing row.
	// A kind differing from the stored one collapses to 'mixed'; last_file_id
	// is only touched by file-kind events.
	queryUpdateOccurrence = `
		UPDATE user_downloads
		SET
			occurrence_count = occurrence_count + 1,
			last_download_at = $3,
			download_kind = CASE WHEN download_kind <> $4 THEN 'mixed' ELSE download_kind END,
			last_file_id = CASE WHEN $4 = 'file' THEN $5 ELSE last_file_id END
		WHERE user_id = $1 AND dataset_id = $2
		RETURNING ` + downloadColumns

	// queryListByUser returns a user's ledger rows joined with dataset names,
	// most recent activity first.
	queryListByUser = `
		SELECT
			ud.download_id, ud.user_id, ud.dataset_id, ud.first_download_at,
			ud.last_download_at, ud.download_kind, ud.last_file_id,
			ud.occurrence_count, d.dataset_name
		FROM user_downloads ud
		JOIN datasets d ON d.dataset_id = ud.dataset_id
		WHERE ud.user_id = $1
		ORDER BY ud.last_download_at DESC
		LIMIT $2
	`

	// queryListByDataset returns every ledger row referencing a dataset.
	queryListByDataset = `
		SELECT ` + downloadColumns + `
		FROM user_downloads
		WHERE dataset_id = $1
		ORDER BY first_download_at ASC
	`

	// queryDatasetDownloadCount reads the public counter.
	queryDatasetDownloadCount = `
		SELECT downloads_count
		FROM datasets
		WHERE dataset_id = $1
	`

	// queryDatasetName reads the dataset's display name.
	queryDatasetName = `
		SELECT dataset_name
		FROM datasets
		WHERE dataset_id = $1
	`
)
