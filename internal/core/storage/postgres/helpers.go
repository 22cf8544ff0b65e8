package postgres

import (
	"database/sql"
	"fmt"

	v1 "github.com/datahub-lab/datahub/internal/api/v1"
)

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanDownloadRow scans a database row into a DownloadRecord.
// Compatible with both sql.Row (single) and sql.Rows (multiple).
// Passes through sql.ErrNoRows untouched so callers can map it.
func scanDownloadRow(row scanner) (*v1.DownloadRecord, error) {
	var rec v1.DownloadRecord
	var lastFileID sql.NullInt64

	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.DatasetID,
		&rec.FirstDownloadAt,
		&rec.LastDownloadAt,
		&rec.Kind,
		&lastFileID,
		&rec.OccurrenceCount,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan download row: %w", err)
	}

	if lastFileID.Valid {
		rec.LastFileID = &lastFileID.Int64
	}

	return &rec, nil
}

// scanHistoryRow scans a ledger row joined with the dataset name.
func scanHistoryRow(row scanner) (*v1.HistoryEntry, error) {
	var entry v1.HistoryEntry
	var lastFileID sql.NullInt64

	err := row.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.DatasetID,
		&entry.FirstDownloadAt,
		&entry.LastDownloadAt,
		&entry.Kind,
		&lastFileID,
		&entry.OccurrenceCount,
		&entry.DatasetName,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan history row: %w", err)
	}

	if lastFileID.Valid {
		entry.LastFileID = &lastFileID.Int64
	}

	return &entry, nil
}

// collectHistoryRows drains a result set into HistoryEntry values.
func collectHistoryRows(rows *sql.Rows) ([]*v1.HistoryEntry, error) {
	var entries []*v1.HistoryEntry
	for rows.Next() {
		entry, err := scanHistoryRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}

	return entries, nil
}

// collectDownloadRows drains a result set into DownloadRecord values.
func collectDownloadRows(rows *sql.Rows) ([]*v1.DownloadRecord, error) {
	var records []*v1.DownloadRecord
	for rows.Next() {
		rec, err := scanDownloadRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating download rows: %w", err)
	}

	return records, nil
}
