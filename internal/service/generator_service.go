package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/metrics"
	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/model"
	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/store"
)

// Generation cycle states
const (
	StateIdle       = "IDLE"
	StateGenerating = "GENERATING"
	StatePublished  = "PUBLISHED"
	StateCleanup    = "CLEANUP"
)

// GeneratorService orchestrates one full dataset generation cycle:
// new immutable etag, change detection, regeneration, atomic etag swap
// and garbage collection.
type GeneratorService struct {
	changeset    *ChangesetService
	partitions   *PartitionService
	hashStore    store.HashStore
	datasetStore store.DatasetStore
	infoStore    store.InfoStore
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// NewGeneratorService creates a new generator service
func NewGeneratorService(
	changeset *ChangesetService,
	partitions *PartitionService,
	hashStore store.HashStore,
	datasetStore store.DatasetStore,
	infoStore store.InfoStore,
	m *metrics.Metrics,
	logger *zap.Logger,
) *GeneratorService {
	return &GeneratorService{
		changeset:    changeset,
		partitions:   partitions,
		hashStore:    hashStore,
		datasetStore: datasetStore,
		infoStore:    infoStore,
		metrics:      m,
		logger:       logger,
	}
}

// RunCycle performs one generation cycle. Readers observe the previous
// etag until the single publish step; a crash mid-generation leaves
// only rows tagged with an etag that never became current.
func (s *GeneratorService) RunCycle(ctx context.Context) error {
	start := time.Now()

	oldEtag, err := s.currentEtag(ctx)
	if err != nil {
		return err
	}

	cycle := model.GenerationCycle{
		OldETag:   oldEtag,
		NewETag:   uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}

	s.setState(StateGenerating, cycle)

	changes, err := s.changeset.Detect(ctx, cycle)
	if err != nil {
		s.finish(start, "error")
		return fmt.Errorf("change detection failed: %w", err)
	}

	if err := s.partitions.GenerateFor(ctx, cycle, changes); err != nil {
		s.finish(start, "error")
		return fmt.Errorf("partition generation failed: %w", err)
	}

	// Unchanged KIDs got no new rows; carry their existing rows into
	// the new version so the etag swap serves the complete dataset.
	promoted, err := s.datasetStore.PromoteSurvivors(ctx, cycle.NewETag)
	if err != nil {
		s.finish(start, "error")
		return fmt.Errorf("failed to promote surviving rows: %w", err)
	}

	// The single moment readers see the new dataset.
	if err := s.infoStore.SetValue(ctx, store.KeyCurrentETag, cycle.NewETag); err != nil {
		s.finish(start, "error")
		return fmt.Errorf("failed to publish etag: %w", err)
	}
	s.setState(StatePublished, cycle)

	s.setState(StateCleanup, cycle)
	if err := s.cleanup(ctx, cycle); err != nil {
		// The new etag is already published and fully served; stale
		// rows are retried on the next cycle.
		s.finish(start, "cleanup_error")
		return fmt.Errorf("cleanup failed after publish: %w", err)
	}

	s.setState(StateIdle, cycle)
	s.finish(start, "success")

	s.logger.Info("Generation cycle complete",
		zap.String("etag", cycle.NewETag),
		zap.String("old_etag", cycle.OldETag),
		zap.Int("updated_kids", len(changes.Updated)),
		zap.Int("deleted_kids", len(changes.Deleted)),
		zap.Int64("promoted_rows", promoted),
		zap.Duration("duration", time.Since(start)))

	return nil
}

func (s *GeneratorService) cleanup(ctx context.Context, cycle model.GenerationCycle) error {
	if err := s.hashStore.ResetUpdatedFlags(ctx); err != nil {
		return fmt.Errorf("failed to reset updated flags: %w", err)
	}

	orphans, err := s.hashStore.DeleteOrphans(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete orphaned hashes: %w", err)
	}

	snapshots, err := s.datasetStore.DeleteSnapshotsExcept(ctx, cycle.NewETag)
	if err != nil {
		return fmt.Errorf("failed to delete superseded snapshots: %w", err)
	}

	purged, err := s.datasetStore.PurgeMarked(ctx, cycle.NewETag)
	if err != nil {
		return fmt.Errorf("failed to purge marked rows: %w", err)
	}

	s.logger.Info("Cleanup complete",
		zap.String("etag", cycle.NewETag),
		zap.Int64("orphaned_hashes", orphans),
		zap.Int64("superseded_snapshots", snapshots),
		zap.Int64("purged_rows", purged))

	return nil
}

func (s *GeneratorService) currentEtag(ctx context.Context) (string, error) {
	etag, err := s.infoStore.GetValue(ctx, store.KeyCurrentETag)
	if err == store.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read current etag: %w", err)
	}
	return etag, nil
}

func (s *GeneratorService) setState(state string, cycle model.GenerationCycle) {
	s.logger.Debug("Generation state",
		zap.String("state", state),
		zap.String("etag", cycle.NewETag))
}

func (s *GeneratorService) finish(start time.Time, result string) {
	s.metrics.GenerationRuns.WithLabelValues(result).Inc()
	s.metrics.GenerationDuration.Observe(time.Since(start).Seconds())
}
