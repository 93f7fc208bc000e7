package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/store"
)

// lockKey is the cross-instance generation lease key.
const lockKey = "revocation:generation:lock"

// SchedulerService runs the periodic ingestion + generation task under
// a cooperative distributed lease. Only one instance runs a cycle at a
// time; losing the lease race skips the tick.
type SchedulerService struct {
	ingestion *IngestionService
	generator *GeneratorService
	lockStore store.LockStore

	interval    time.Duration
	minLockHold time.Duration
	maxLockHold time.Duration

	logger *zap.Logger
	stop   chan struct{}
	done   chan struct{}
}

// NewSchedulerService creates a new scheduler service
func NewSchedulerService(
	ingestion *IngestionService,
	generator *GeneratorService,
	lockStore store.LockStore,
	interval, minLockHold, maxLockHold time.Duration,
	logger *zap.Logger,
) *SchedulerService {
	return &SchedulerService{
		ingestion:   ingestion,
		generator:   generator,
		lockStore:   lockStore,
		interval:    interval,
		minLockHold: minLockHold,
		maxLockHold: maxLockHold,
		logger:      logger,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start begins the background loop
func (s *SchedulerService) Start() {
	go s.loop()
	s.logger.Info("Scheduler started",
		zap.Duration("interval", s.interval),
		zap.Duration("min_lock_hold", s.minLockHold),
		zap.Duration("max_lock_hold", s.maxLockHold))
}

// Stop terminates the background loop and waits for a running tick to
// finish
func (s *SchedulerService) Stop() {
	close(s.stop)
	<-s.done
	s.logger.Info("Scheduler stopped")
}

func (s *SchedulerService) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.RunOnce(context.Background())
		}
	}
}

// RunOnce performs a single scheduled tick: take the lease, ingest,
// generate, hold the lease for at least the configured minimum, then
// release. Lease acquisition failure skips the tick.
func (s *SchedulerService) RunOnce(ctx context.Context) {
	token, err := s.lockStore.Acquire(ctx, lockKey, s.maxLockHold)
	if err == store.ErrLockNotAcquired {
		s.logger.Debug("Generation lease held elsewhere, skipping tick")
		return
	}
	if err != nil {
		s.logger.Error("Failed to acquire generation lease", zap.Error(err))
		return
	}

	start := time.Now()
	defer func() {
		// The minimum hold prevents a fast cycle from releasing the
		// lease before slower instances have seen it taken.
		if held := time.Since(start); held < s.minLockHold {
			select {
			case <-time.After(s.minLockHold - held):
			case <-ctx.Done():
			}
		}
		if err := s.lockStore.Release(ctx, lockKey, token); err != nil {
			s.logger.Error("Failed to release generation lease", zap.Error(err))
		}
	}()

	if err := s.ingestion.Run(ctx); err != nil {
		s.logger.Error("Ingestion failed, skipping generation", zap.Error(err))
		return
	}

	if err := s.generator.RunCycle(ctx); err != nil {
		s.logger.Error("Generation cycle failed", zap.Error(err))
	}
}
