package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	v1 "github.com/datahub-lab/datahub/internal/api/v1"
	"github.com/datahub-lab/datahub/internal/core/storage"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func newMockAdapter(t *testing.T) (*Adapter, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	for _, q := range []string{
		queryGetDownload,
		queryUpdateOccurrence,
		queryListByUser,
		queryListByDataset,
		queryDatasetDownloadCount,
		queryDatasetName,
	} {
		mock.ExpectPrepare(regexp.QuoteMeta(q))
	}

	adapter, err := prepareAdapter(db)
	require.NoError(t, err)
	return adapter, mock, db
}

func downloadRowColumns() []string {
	return []string{
		"download_id", "user_id", "dataset_id", "first_download_at",
		"last_download_at", "download_kind", "last_file_id", "occurrence_count",
	}
}

func TestAdapter_Insert(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		mockResult func(mock sqlmock.Sqlmock, rec *v1.DownloadRecord)
		assertions func(t *testing.T, rec *v1.DownloadRecord, count int64, err error)
	}{
		{
			name: "first download inserts row and bumps counter in one tx",
			mockResult: func(mock sqlmock.Sqlmock, rec *v1.DownloadRecord) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(queryInsertDownload)).
					WithArgs(rec.UserID, rec.DatasetID, rec.FirstDownloadAt, "file", sqlmock.AnyArg()).
					WillReturnRows(sqlmock.NewRows([]string{"download_id"}).AddRow(int64(9)))
				mock.ExpectQuery(regexp.QuoteMeta(queryIncrementDatasetCount)).
					WithArgs(rec.DatasetID).
					WillReturnRows(sqlmock.NewRows([]string{"downloads_count"}).AddRow(int64(11)))
				mock.ExpectCommit()
			},
			assertions: func(t *testing.T, rec *v1.DownloadRecord, count int64, err error) {
				require.NoError(t, err)
				require.Equal(t, int64(11), count)
				require.Equal(t, int64(9), rec.ID)
			},
		},
		{
			name: "conflict maps to ErrDuplicate and rolls back",
			mockResult: func(mock sqlmock.Sqlmock, rec *v1.DownloadRecord) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(queryInsertDownload)).
					WithArgs(rec.UserID, rec.DatasetID, rec.FirstDownloadAt, "file", sqlmock.AnyArg()).
					WillReturnRows(sqlmock.NewRows([]string{"download_id"}))
				mock.ExpectRollback()
			},
			assertions: func(t *testing.T, rec *v1.DownloadRecord, count int64, err error) {
				require.ErrorIs(t, err, storage.ErrDuplicate)
				require.Equal(t, int64(0), count)
				require.Equal(t, int64(0), rec.ID)
			},
		},
		{
			name: "dataset deleted mid-flight rolls back the insert",
			mockResult: func(mock sqlmock.Sqlmock, rec *v1.DownloadRecord) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(queryInsertDownload)).
					WithArgs(rec.UserID, rec.DatasetID, rec.FirstDownloadAt, "file", sqlmock.AnyArg()).
					WillReturnRows(sqlmock.NewRows([]string{"download_id"}).AddRow(int64(9)))
				mock.ExpectQuery(regexp.QuoteMeta(queryIncrementDatasetCount)).
					WithArgs(rec.DatasetID).
					WillReturnRows(sqlmock.NewRows([]string{"downloads_count"}))
				mock.ExpectRollback()
			},
			assertions: func(t *testing.T, rec *v1.DownloadRecord, count int64, err error) {
				require.Error(t, err)
				require.NotErrorIs(t, err, storage.ErrDuplicate)
				require.ErrorContains(t, err, "missing while incrementing counter")
			},
		},
		{
			name: "foreign key violation maps to ErrNotFound",
			mockResult: func(mock sqlmock.Sqlmock, rec *v1.DownloadRecord) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(queryInsertDownload)).
					WithArgs(rec.UserID, rec.DatasetID, rec.FirstDownloadAt, "file", sqlmock.AnyArg()).
					WillReturnError(&pq.Error{Code: "23503"})
				mock.ExpectRollback()
			},
			assertions: func(t *testing.T, rec *v1.DownloadRecord, count int64, err error) {
				require.ErrorIs(t, err, storage.ErrNotFound)
			},
		},
		{
			name: "storage failure propagates",
			mockResult: func(mock sqlmock.Sqlmock, rec *v1.DownloadRecord) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(queryInsertDownload)).
					WithArgs(rec.UserID, rec.DatasetID, rec.FirstDownloadAt, "file", sqlmock.AnyArg()).
					WillReturnError(errors.New("connection reset"))
				mock.ExpectRollback()
			},
			assertions: func(t *testing.T, rec *v1.DownloadRecord, count int64, err error) {
				require.Error(t, err)
				require.ErrorContains(t, err, "insert download record")
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			adapter, mock, db := newMockAdapter(t)
			defer db.Close()

			fileID := int64(3)
			rec := &v1.DownloadRecord{
				UserID:          7,
				DatasetID:       42,
				FirstDownloadAt: now,
				LastDownloadAt:  now,
				Kind:            v1.KindFile,
				LastFileID:      &fileID,
				OccurrenceCount: 1,
			}

			tc.mockResult(mock, rec)

			count, err := adapter.Insert(context.Background(), rec)
			tc.assertions(t, rec, count, err)

			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAdapter_Insert_CanceledMidTransaction(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &v1.DownloadRecord{
		UserID:          7,
		DatasetID:       42,
		FirstDownloadAt: now,
		LastDownloadAt:  now,
		Kind:            v1.KindDataset,
		OccurrenceCount: 1,
	}

	// Cancellation hits between the ledger insert and the counter bump; the
	// whole transaction rolls back, leaving no half-written state.
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(queryInsertDownload)).
		WithArgs(rec.UserID, rec.DatasetID, rec.FirstDownloadAt, "dataset", nil).
		WillReturnRows(sqlmock.NewRows([]string{"download_id"}).AddRow(int64(9)))
	mock.ExpectQuery(regexp.QuoteMeta(queryIncrementDatasetCount)).
		WithArgs(rec.DatasetID).
		WillReturnError(context.Canceled)
	mock.ExpectRollback()

	_, err := adapter.Insert(context.Background(), rec)
	require.ErrorIs(t, err, context.Canceled)

	// Retrying the same request starts a fresh transaction and succeeds as the
	// pair's first download.
	retry := &v1.DownloadRecord{
		UserID:          rec.UserID,
		DatasetID:       rec.DatasetID,
		FirstDownloadAt: now,
		LastDownloadAt:  now,
		Kind:            v1.KindDataset,
		OccurrenceCount: 1,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(queryInsertDownload)).
		WithArgs(retry.UserID, retry.DatasetID, retry.FirstDownloadAt, "dataset", nil).
		WillReturnRows(sqlmock.NewRows([]string{"download_id"}).AddRow(int64(10)))
	mock.ExpectQuery(regexp.QuoteMeta(queryIncrementDatasetCount)).
		WithArgs(retry.DatasetID).
		WillReturnRows(sqlmock.NewRows([]string{"downloads_count"}).AddRow(int64(11)))
	mock.ExpectCommit()

	count, err := adapter.Insert(context.Background(), retry)
	require.NoError(t, err)
	require.Equal(t, int64(11), count)
	require.Equal(t, int64(10), retry.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_GetByUserAndDataset(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	last := first.Add(2 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(queryGetDownload)).
		WithArgs(int64(7), int64(42)).
		WillReturnRows(sqlmock.NewRows(downloadRowColumns()).
			AddRow(int64(9), int64(7), int64(42), first, last, "mixed", int64(3), int64(4)))

	rec, err := adapter.GetByUserAndDataset(context.Background(), 7, 42)
	require.NoError(t, err)
	require.Equal(t, v1.KindMixed, rec.Kind)
	require.Equal(t, int64(4), rec.OccurrenceCount)
	require.NotNil(t, rec.LastFileID)
	require.Equal(t, int64(3), *rec.LastFileID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_GetByUserAndDataset_NotFound(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(queryGetDownload)).
		WithArgs(int64(7), int64(42)).
		WillReturnRows(sqlmock.NewRows(downloadRowColumns()))

	_, err := adapter.GetByUserAndDataset(context.Background(), 7, 42)
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_UpdateOccurrence(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now := first.Add(30 * time.Minute)

	// Stored kind was 'file'; a dataset-kind event collapses it to 'mixed'.
	mock.ExpectQuery(regexp.QuoteMeta(queryUpdateOccurrence)).
		WithArgs(int64(7), int64(42), now, "dataset", nil).
		WillReturnRows(sqlmock.NewRows(downloadRowColumns()).
			AddRow(int64(9), int64(7), int64(42), first, now, "mixed", int64(3), int64(2)))

	rec, err := adapter.UpdateOccurrence(context.Background(), storage.OccurrenceUpdate{
		UserID:    7,
		DatasetID: 42,
		Kind:      v1.KindDataset,
		Now:       now,
	})
	require.NoError(t, err)
	require.Equal(t, v1.KindMixed, rec.Kind)
	require.Equal(t, int64(2), rec.OccurrenceCount)
	require.Equal(t, now, rec.LastDownloadAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_UpdateOccurrence_NotFound(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(queryUpdateOccurrence)).
		WithArgs(int64(7), int64(42), now, "dataset", nil).
		WillReturnRows(sqlmock.NewRows(downloadRowColumns()))

	_, err := adapter.UpdateOccurrence(context.Background(), storage.OccurrenceUpdate{
		UserID:    7,
		DatasetID: 42,
		Kind:      v1.KindDataset,
		Now:       now,
	})
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_ListByUser(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	columns := append(downloadRowColumns(), "dataset_name")

	mock.ExpectQuery(regexp.QuoteMeta(queryListByUser)).
		WithArgs(int64(7), 50).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(2), int64(7), int64(43), first, first.Add(time.Hour), "dataset", nil, int64(1), "census-2020").
			AddRow(int64(1), int64(7), int64(42), first, first, "file", int64(3), int64(5), "ocean-temps"))

	records, err := adapter.ListByUser(context.Background(), 7, 50)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, int64(43), records[0].DatasetID)
	require.Equal(t, "census-2020", records[0].DatasetName)
	require.Nil(t, records[0].LastFileID)
	require.Equal(t, "ocean-temps", records[1].DatasetName)
	require.Equal(t, int64(5), records[1].OccurrenceCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_DownloadCount(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(queryDatasetDownloadCount)).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"downloads_count"}).AddRow(int64(11)))

	count, err := adapter.DownloadCount(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, int64(11), count)

	mock.ExpectQuery(regexp.QuoteMeta(queryDatasetDownloadCount)).
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"downloads_count"}))

	_, err = adapter.DownloadCount(context.Background(), 404)
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_DatasetName(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(queryDatasetName)).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"dataset_name"}).AddRow("ocean-temps"))

	name, err := adapter.DatasetName(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, "ocean-temps", name)

	mock.ExpectQuery(regexp.QuoteMeta(queryDatasetName)).
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"dataset_name"}))

	_, err = adapter.DatasetName(context.Background(), 404)
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_Prepare(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(querySchemaExists)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	for _, q := range []string{
		queryGetDownload,
		queryUpdateOccurrence,
		queryListByUser,
		queryListByDataset,
		queryDatasetDownloadCount,
		queryDatasetName,
	} {
		mock.ExpectPrepare(regexp.QuoteMeta(q))
	}

	adapter := &Adapter{db: db}
	require.NoError(t, adapter.Prepare())
	require.NotNil(t, adapter.stmtGetDownload)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_Prepare_MissingSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(querySchemaExists)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	adapter := &Adapter{db: db}
	err = adapter.Prepare()
	require.Error(t, err)
	require.ErrorContains(t, err, "user_downloads")
	require.NoError(t, mock.ExpectationsWereMet())
}
