package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/infrastructure/feed"
	"github.com/pricelens/backend/internal/metrics"
)

const (
	// DefaultBatchSize bounds the records sent in one upsert call
	DefaultBatchSize = 1000

	// DefaultChunkSize bounds the feed rows held in memory at once
	DefaultChunkSize = 5000
)

// ReconcileConfig holds configuration for the reconcile service
type ReconcileConfig struct {
	BatchSize int
	// ChunkSize is the number of feed rows reconciled together; 0 or less
	// processes the whole feed as one chunk
	ChunkSize  int
	ChunkDelay time.Duration
	DryRun     bool
}

// ReconcileService brings the price store in line with the external feed,
// writing only the records whose prices changed
type ReconcileService struct {
	store      domain.PriceStore
	feed       domain.FeedSource
	batchSize  int
	chunkSize  int
	chunkDelay time.Duration
	dryRun     bool
	logger     *zap.Logger
}

// NewReconcileService creates a new reconcile service with dependencies
func NewReconcileService(
	store domain.PriceStore,
	source domain.FeedSource,
	config ReconcileConfig,
	logger *zap.Logger,
) *ReconcileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &ReconcileService{
		store:      store,
		feed:       source,
		batchSize:  batchSize,
		chunkSize:  config.ChunkSize,
		chunkDelay: config.ChunkDelay,
		dryRun:     config.DryRun,
		logger:     logger,
	}
}

// Diff returns the external records that are new or whose loose, CIB or new
// price differs numerically from the stored record with the same key.
// Input order is preserved. When existing holds several rows for one key,
// the first one is used.
func Diff(external, existing []domain.ExternalPriceRecord) []domain.ExternalPriceRecord {
	index := make(map[domain.RecordKey]domain.ExternalPriceRecord, len(existing))
	for _, rec := range existing {
		if _, ok := index[rec.Key()]; !ok {
			index[rec.Key()] = rec
		}
	}

	updates := make([]domain.ExternalPriceRecord, 0)
	for _, rec := range external {
		stored, ok := index[rec.Key()]
		if !ok || !rec.SamePrices(stored) {
			updates = append(updates, rec)
		}
	}
	return updates
}

// ApplyUpdates upserts updates in consecutive batches of at most batchSize,
// one call at a time. It stops at the first failing batch and returns a
// *domain.ReconciliationError; batches before it stay applied. The number
// of batches and records written is returned in both cases.
func (s *ReconcileService) ApplyUpdates(
	ctx context.Context,
	updates []domain.ExternalPriceRecord,
	batchSize int,
) (batches, records int, err error) {
	if batchSize <= 0 {
		batchSize = s.batchSize
	}

	for start := 0; start < len(updates); start += batchSize {
		end := min(start+batchSize, len(updates))
		batch := updates[start:end]
		index := start / batchSize

		if err := s.store.UpsertPrices(ctx, batch); err != nil {
			metrics.UpsertBatchesTotal.WithLabelValues("error").Inc()
			return batches, records, &domain.ReconciliationError{
				BatchIndex: index,
				FirstKey:   batch[0].Key(),
				LastKey:    batch[len(batch)-1].Key(),
				Size:       len(batch),
				Err:        err,
			}
		}

		metrics.UpsertBatchesTotal.WithLabelValues("ok").Inc()
		batches++
		records += len(batch)

		s.logger.Info("reconcile.batch_applied",
			zap.Int("batch", index+1),
			zap.Int("of", (len(updates)+batchSize-1)/batchSize),
			zap.Int("size", len(batch)))
	}

	return batches, records, nil
}

// RunReconciliation fetches the feed and reconciles it against the store.
// Callers decide when and how often to invoke it.
func (s *ReconcileService) RunReconciliation(ctx context.Context) (*domain.ReconcileReport, error) {
	start := time.Now()
	s.logger.Info("reconcile.fetching_feed")

	body, err := s.feed.Fetch(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrFeedUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrFeedUnavailable, err)
		}
		return nil, err
	}
	defer body.Close()

	report, err := s.ProcessFeed(ctx, body)
	metrics.ReconcileRunDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Error("reconcile.failed", zap.String("run_id", report.RunID), zap.Error(err))
		return report, err
	}

	s.logger.Info("reconcile.complete",
		zap.String("run_id", report.RunID),
		zap.Bool("dry_run", report.DryRun),
		zap.Int("chunks", report.Chunks),
		zap.Int("parsed", report.Parsed),
		zap.Int("skipped", report.Skipped),
		zap.Int("changed", report.Changed),
		zap.Int("applied", report.Applied),
		zap.Duration("duration", report.Duration))

	return report, nil
}

// ProcessFeed reads a CSV feed (header row first) in chunks of chunkSize
// rows. Each chunk is diffed against a fresh snapshot of its keys and
// applied before the next chunk is read. The returned report is never nil
// and reflects the work done up to any error.
func (s *ReconcileService) ProcessFeed(ctx context.Context, r io.Reader) (*domain.ReconcileReport, error) {
	report := &domain.ReconcileReport{
		RunID:     uuid.NewString(),
		DryRun:    s.dryRun,
		StartedAt: time.Now(),
	}
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	reader, err := feed.NewReader(r)
	if err != nil {
		return report, fmt.Errorf("read feed header: %w", err)
	}
	reader.OnSkip(func(line int, reason string) {
		s.logger.Debug("reconcile.row_skipped", zap.Int("line", line), zap.String("reason", reason))
	})

	for chunk := 0; ; chunk++ {
		records, err := reader.ReadChunk(s.chunkSize)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			report.Skipped = reader.Skipped()
			return report, fmt.Errorf("chunk %d: read feed: %w", chunk, err)
		}

		if chunk > 0 {
			if err := s.pause(ctx); err != nil {
				return report, err
			}
		}

		s.logger.Info("reconcile.chunk_started", zap.Int("chunk", chunk), zap.Int("rows", len(records)))
		if err := s.reconcileChunk(ctx, records, report); err != nil {
			report.Skipped = reader.Skipped()
			return report, fmt.Errorf("chunk %d: %w", chunk, err)
		}
		report.Chunks++
	}

	report.Skipped = reader.Skipped()
	metrics.ReconcileRecordsTotal.WithLabelValues("skipped").Add(float64(report.Skipped))
	return report, nil
}

func (s *ReconcileService) reconcileChunk(ctx context.Context, records []domain.ExternalPriceRecord, report *domain.ReconcileReport) error {
	report.Parsed += len(records)
	metrics.ReconcileRecordsTotal.WithLabelValues("parsed").Add(float64(len(records)))

	existing, err := s.store.ExistingPrices(ctx, uniqueKeys(records))
	if err != nil {
		return fmt.Errorf("load existing prices: %w", err)
	}

	updates := Diff(records, existing)
	report.Changed += len(updates)
	metrics.ReconcileRecordsTotal.WithLabelValues("changed").Add(float64(len(updates)))

	s.logger.Info("reconcile.chunk_diffed",
		zap.Int("rows", len(records)),
		zap.Int("existing", len(existing)),
		zap.Int("changed", len(updates)))

	if s.dryRun || len(updates) == 0 {
		return nil
	}

	batches, applied, err := s.ApplyUpdates(ctx, updates, s.batchSize)
	report.Batches += batches
	report.Applied += applied
	metrics.ReconcileRecordsTotal.WithLabelValues("applied").Add(float64(applied))
	return err
}

// pause waits chunkDelay between chunks to bound the request rate against the store
func (s *ReconcileService) pause(ctx context.Context) error {
	if s.chunkDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(s.chunkDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// uniqueKeys returns the distinct keys of records in first-seen order
func uniqueKeys(records []domain.ExternalPriceRecord) []domain.RecordKey {
	seen := make(map[domain.RecordKey]struct{}, len(records))
	keys := make([]domain.RecordKey, 0, len(records))
	for _, rec := range records {
		k := rec.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}
