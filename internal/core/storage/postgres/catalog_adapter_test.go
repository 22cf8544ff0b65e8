package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/datahub-lab/datahub/internal/core/storage"
)

func newMockCatalog(t *testing.T) (*CatalogAdapter, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewCatalogAdapter(db), mock
}

func TestCatalogAdapter_DatasetArchiveKey(t *testing.T) {
	tests := []struct {
		name    string
		rows    func() *sqlmock.Rows
		wantKey string
		wantErr error
	}{
		{
			name: "archive present",
			rows: func() *sqlmock.Rows {
				return sqlmock.NewRows([]string{"archive_key"}).AddRow("archives/ocean-temps.tar.gz")
			},
			wantKey: "archives/ocean-temps.tar.gz",
		},
		{
			name: "dataset without archive",
			rows: func() *sqlmock.Rows {
				return sqlmock.NewRows([]string{"archive_key"}).AddRow(nil)
			},
			wantErr: storage.ErrNotFound,
		},
		{
			name: "dataset missing",
			rows: func() *sqlmock.Rows {
				return sqlmock.NewRows([]string{"archive_key"})
			},
			wantErr: storage.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, mock := newMockCatalog(t)

			q := mock.ExpectQuery(regexp.QuoteMeta(queryDatasetArchiveKey)).
				WithArgs(int64(42))
			rows := tt.rows()
			if tt.name == "dataset missing" {
				q.WillReturnError(sql.ErrNoRows)
			} else {
				q.WillReturnRows(rows)
			}

			key, err := adapter.DatasetArchiveKey(context.Background(), 42)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantKey, key)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCatalogAdapter_FileObjectKey(t *testing.T) {
	adapter, mock := newMockCatalog(t)

	mock.ExpectQuery(regexp.QuoteMeta(queryFileObjectKey)).
		WithArgs(int64(7), int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"object_key"}).AddRow("datasets/42/files/readings.csv"))

	key, err := adapter.FileObjectKey(context.Background(), 42, 7)
	require.NoError(t, err)
	require.Equal(t, "datasets/42/files/readings.csv", key)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogAdapter_FileObjectKey_NotFound(t *testing.T) {
	adapter, mock := newMockCatalog(t)

	mock.ExpectQuery(regexp.QuoteMeta(queryFileObjectKey)).
		WithArgs(int64(9), int64(42)).
		WillReturnError(sql.ErrNoRows)

	_, err := adapter.FileObjectKey(context.Background(), 42, 9)
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
