package storage

import (
	"context"
	"sort"
	"sync"

	v1 "github.com/datahub-lab/datahub/internal/api/v1"
)

type pairKey struct {
	UserID    int64
	DatasetID int64
}

// MemoryStore is an in-memory implementation of DownloadLedger and
// DatasetCounter. Useful for testing and development. The mutex plays the
// role of the database's unique constraint: Insert is atomic, so exactly one
// of any number of racing first downloads wins.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[pairKey]*v1.DownloadRecord
	datasets map[int64]int64 // dataset_id -> downloads_count
	names    map[int64]string
	nextID   int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[pairKey]*v1.DownloadRecord),
		datasets: make(map[int64]int64),
		names:    make(map[int64]string),
	}
}

// AddDataset registers a dataset with a starting counter value.
func (m *MemoryStore) AddDataset(datasetID int64, name string, downloadsCount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets[datasetID] = downloadsCount
	m.names[datasetID] = name
}

func (m *MemoryStore) GetByUserAndDataset(ctx context.Context, userID, datasetID int64) (*v1.DownloadRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, exists := m.records[pairKey{userID, datasetID}]
	if !exists {
		return nil, ErrNotFound
	}

	copy := *rec
	return &copy, nil
}

func (m *MemoryStore) Insert(ctx context.Context, rec *v1.DownloadRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey{rec.UserID, rec.DatasetID}
	if _, exists := m.records[key]; exists {
		return 0, ErrDuplicate
	}

	if _, exists := m.datasets[rec.DatasetID]; !exists {
		return 0, ErrNotFound
	}

	m.nextID++
	rec.ID = m.nextID

	copy := *rec
	m.records[key] = &copy
	m.datasets[rec.DatasetID]++
	return m.datasets[rec.DatasetID], nil
}

func (m *MemoryStore) UpdateOccurrence(ctx context.Context, upd OccurrenceUpdate) (*v1.DownloadRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, exists := m.records[pairKey{upd.UserID, upd.DatasetID}]
	if !exists {
		return nil, ErrNotFound
	}

	rec.OccurrenceCount++
	rec.LastDownloadAt = upd.Now
	rec.Kind = rec.Kind.Merge(upd.Kind)
	if upd.Kind == v1.KindFile {
		rec.LastFileID = upd.FileID
	}

	copy := *rec
	return &copy, nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID int64, limit int) ([]*v1.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*v1.HistoryEntry
	for _, rec := range m.records {
		if rec.UserID != userID {
			continue
		}
		result = append(result, &v1.HistoryEntry{
			DownloadRecord: *rec,
			DatasetName:    m.names[rec.DatasetID],
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].LastDownloadAt.After(result[j].LastDownloadAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) ListByDataset(ctx context.Context, datasetID int64) ([]*v1.DownloadRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*v1.DownloadRecord
	for _, rec := range m.records {
		if rec.DatasetID != datasetID {
			continue
		}
		copy := *rec
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].FirstDownloadAt.Before(result[j].FirstDownloadAt)
	})
	return result, nil
}

func (m *MemoryStore) DownloadCount(ctx context.Context, datasetID int64) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count, exists := m.datasets[datasetID]
	if !exists {
		return 0, ErrNotFound
	}
	return count, nil
}

func (m *MemoryStore) DatasetName(ctx context.Context, datasetID int64) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name, exists := m.names[datasetID]
	if !exists {
		return "", ErrNotFound
	}
	return name, nil
}
