package analytics

import (
	"context"
	"fmt"
	"time"

	v1 "github.com/datahub-lab/datahub/internal/api/v1"
	"github.com/datahub-lab/datahub/internal/core/storage"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTopN         = 10
	defaultHistoryLimit = 50
	ratioPlaces         = 2
)

// PlatformReader serves the platform-wide rollup queries. Read-only.
type PlatformReader interface {
	PlatformTotals(ctx context.Context) (uniquePairs, totalEvents int64, err error)
	TopDatasets(ctx context.Context, limit int) ([]v1.RankedDataset, error)
	TopDownloaders(ctx context.Context, limit int) ([]v1.RankedUser, error)
	ActivePairsSince(ctx context.Context, since time.Time) (int64, error)
	DatasetConversion(ctx context.Context) (converted, total int64, err error)
}

// Options tunes the analytics read surface.
type Options struct {
	// TopN caps the leaderboard sizes in platform stats.
	TopN int

	// HistoryLimit is the default page size for user download history.
	HistoryLimit int

	// Windows are the recent-activity reporting windows.
	Windows []ReportWindow
}

func (o Options) normalized() Options {
	if o.TopN <= 0 {
		o.TopN = defaultTopN
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = defaultHistoryLimit
	}
	if len(o.Windows) == 0 {
		o.Windows = DefaultWindows
	}
	return o
}

// Service is the analytics aggregator: pure read queries over the download
// ledger and the dataset counters. It never writes to either.
type Service struct {
	ledger   storage.DownloadLedger
	datasets storage.DatasetCounter
	platform PlatformReader
	opts     Options
	nowFn    func() time.Time

	// Platform stats is the heaviest query; concurrent callers share one
	// in-flight execution.
	flight singleflight.Group
}

// NewService creates an analytics service over the given stores.
func NewService(ledger storage.DownloadLedger, datasets storage.DatasetCounter, platform PlatformReader, opts Options) *Service {
	if ledger == nil {
		panic("analytics: ledger must not be nil")
	}
	if datasets == nil {
		panic("analytics: dataset counter must not be nil")
	}
	if platform == nil {
		panic("analytics: platform reader must not be nil")
	}
	return &Service{
		ledger:   ledger,
		datasets: datasets,
		platform: platform,
		opts:     opts.normalized(),
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// DatasetStats computes the per-dataset analytics view.
// Returns storage.ErrNotFound when the dataset does not exist.
func (s *Service) DatasetStats(ctx context.Context, datasetID int64) (*v1.DatasetStats, error) {
	official, err := s.datasets.DownloadCount(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("read dataset download count: %w", err)
	}

	name, err := s.datasets.DatasetName(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("read dataset name: %w", err)
	}

	records, err := s.ledger.ListByDataset(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("list dataset downloads: %w", err)
	}

	stats := &v1.DatasetStats{
		DatasetID:             datasetID,
		DatasetName:           name,
		OfficialDownloadCount: official,
	}

	var totalEvents int64
	for _, rec := range records {
		totalEvents += rec.OccurrenceCount
		switch rec.Kind {
		case v1.KindFile:
			stats.KindBreakdown.FileOnly++
		case v1.KindDataset:
			stats.KindBreakdown.DatasetOnly++
		case v1.KindMixed:
			stats.KindBreakdown.Mixed++
		}
	}

	stats.UniqueDownloaders = int64(len(records))
	stats.TotalDownloadEvents = totalEvents
	stats.AverageEventsPerDownloader = ratio(totalEvents, stats.UniqueDownloaders)
	stats.AbuseRatio = stats.AverageEventsPerDownloader

	return stats, nil
}

// UserHistory returns the user's ledger rows joined with dataset names,
// most recent activity first. limit <= 0 applies the configured default.
func (s *Service) UserHistory(ctx context.Context, userID int64, limit int) ([]*v1.HistoryEntry, error) {
	if limit <= 0 {
		limit = s.opts.HistoryLimit
	}

	records, err := s.ledger.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list user downloads: %w", err)
	}
	return records, nil
}

// PlatformStats computes the platform-wide analytics view.
func (s *Service) PlatformStats(ctx context.Context) (*v1.PlatformStats, error) {
	result, err, _ := s.flight.Do("platform_stats", func() (interface{}, error) {
		return s.buildPlatformStats(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.(*v1.PlatformStats), nil
}

func (s *Service) buildPlatformStats(ctx context.Context) (*v1.PlatformStats, error) {
	uniquePairs, totalEvents, err := s.platform.PlatformTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("platform totals: %w", err)
	}

	popular, err := s.platform.TopDatasets(ctx, s.opts.TopN)
	if err != nil {
		return nil, fmt.Errorf("top datasets: %w", err)
	}

	active, err := s.platform.TopDownloaders(ctx, s.opts.TopN)
	if err != nil {
		return nil, fmt.Errorf("top downloaders: %w", err)
	}

	now := s.nowFn()
	recent := make([]v1.WindowActivity, 0, len(s.opts.Windows))
	for _, w := range s.opts.Windows {
		count, err := s.platform.ActivePairsSince(ctx, now.Add(-w.Duration))
		if err != nil {
			return nil, fmt.Errorf("recent activity %s: %w", w.Label, err)
		}
		recent = append(recent, v1.WindowActivity{Window: w.Label, ActivePairs: count})
	}

	converted, totalDatasets, err := s.platform.DatasetConversion(ctx)
	if err != nil {
		return nil, fmt.Errorf("dataset conversion: %w", err)
	}

	return &v1.PlatformStats{
		TotalUniqueDownloads: uniquePairs,
		TotalDownloadEvents:  totalEvents,
		PopularDatasets:      popular,
		ActiveDownloaders:    active,
		RecentActivity:       recent,
		ConversionRate:       ratio(converted, totalDatasets),
	}, nil
}

// ratio returns num/den rounded to two places, or zero when den is zero.
func ratio(num, den int64) decimal.Decimal {
	if den == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(num).DivRound(decimal.NewFromInt(den), ratioPlaces)
}
