package files

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	v1 "github.com/datahub-lab/datahub/internal/api/v1"
)

const defaultURLTTL = 15 * time.Minute

// Catalog resolves datasets and files to blob-store object keys.
type Catalog interface {
	DatasetArchiveKey(ctx context.Context, datasetID int64) (string, error)
	FileObjectKey(ctx context.Context, datasetID, fileID int64) (string, error)
}

// DownloadTracker records that a user downloaded a dataset.
type DownloadTracker interface {
	RecordDownload(ctx context.Context, req v1.TrackRequest) (*v1.TrackResult, error)
}

// Delivery is the outcome of handing a download URL to a user.
type Delivery struct {
	DeliveryID       string          `json:"delivery_id"`
	DownloadURL      string          `json:"download_url"`
	ExpiresInSeconds int64           `json:"expires_in_seconds"`
	Tracking         *v1.TrackResult `json:"tracking,omitempty"`
}

// Service issues presigned download URLs and records each delivery in
// the download ledger. Tracking is best effort: a ledger failure never
// blocks the delivery that triggered it.
type Service struct {
	catalog Catalog
	objects ObjectStore
	tracker DownloadTracker
	urlTTL  time.Duration
}

func NewService(catalog Catalog, objects ObjectStore, tracker DownloadTracker, urlTTL time.Duration) *Service {
	if catalog == nil || objects == nil || tracker == nil {
		panic("files: nil dependency")
	}
	if urlTTL <= 0 {
		urlTTL = defaultURLTTL
	}

	return &Service{
		catalog: catalog,
		objects: objects,
		tracker: tracker,
		urlTTL:  urlTTL,
	}
}

// DeliverDataset issues a URL for the dataset's full archive.
func (s *Service) DeliverDataset(ctx context.Context, userID, datasetID int64) (*Delivery, error) {
	key, err := s.catalog.DatasetArchiveKey(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	return s.deliver(ctx, key, v1.TrackRequest{
		UserID:    userID,
		DatasetID: datasetID,
		Kind:      v1.KindDataset,
	})
}

// DeliverFile issues a URL for a single file within a dataset.
func (s *Service) DeliverFile(ctx context.Context, userID, datasetID, fileID int64) (*Delivery, error) {
	key, err := s.catalog.FileObjectKey(ctx, datasetID, fileID)
	if err != nil {
		return nil, err
	}

	return s.deliver(ctx, key, v1.TrackRequest{
		UserID:    userID,
		DatasetID: datasetID,
		Kind:      v1.KindFile,
		FileID:    &fileID,
	})
}

func (s *Service) deliver(ctx context.Context, objectKey string, req v1.TrackRequest) (*Delivery, error) {
	url, err := s.objects.PresignedURL(ctx, objectKey, s.urlTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue download URL: %w", err)
	}

	delivery := &Delivery{
		DeliveryID:       uuid.New().String(),
		DownloadURL:      url,
		ExpiresInSeconds: int64(s.urlTTL.Seconds()),
	}

	// The URL is already issued, so a tracking failure is logged and
	// the delivery succeeds without a ledger entry.
	result, err := s.tracker.RecordDownload(ctx, req)
	if err != nil {
		slog.Error("Failed to record download",
			"delivery_id", delivery.DeliveryID,
			"user_id", req.UserID,
			"dataset_id", req.DatasetID,
			"kind", req.Kind,
			"error", err)
		return delivery, nil
	}

	delivery.Tracking = result
	slog.Info("Download delivered",
		"delivery_id", delivery.DeliveryID,
		"user_id", req.UserID,
		"dataset_id", req.DatasetID,
		"kind", req.Kind,
		"first_download", result.IsFirstDownload)
	return delivery, nil
}
