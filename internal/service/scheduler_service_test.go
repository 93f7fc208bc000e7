package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/encoder"
	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/model"
	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/store"
)

type schedulerFixture struct {
	svc       *SchedulerService
	gateway   *MockGatewayClient
	hashStore *MockHashStore
	infoStore *MockInfoStore
	lockStore *MockLockStore
	dataset   *MockDatasetStore
}

func newSchedulerFixture() *schedulerFixture {
	gateway := new(MockGatewayClient)
	hashStore := new(MockHashStore)
	batchStore := new(MockBatchStore)
	datasetStore := new(MockDatasetStore)
	infoStore := new(MockInfoStore)
	lockStore := new(MockLockStore)
	logger := zap.NewNop()
	m := newTestMetrics()

	ingestion := NewIngestionService(gateway, hashStore, batchStore, infoStore, m, logger)
	changeset := NewChangesetService(hashStore, datasetStore, logger)
	partitions := NewPartitionService(hashStore, datasetStore,
		[]encoder.Encoder{encoder.NewBloomFilterEncoder(1e-6)}, m, logger)
	generator := NewGeneratorService(changeset, partitions, hashStore, datasetStore, infoStore, m, logger)
	svc := NewSchedulerService(ingestion, generator, lockStore, time.Hour, 0, time.Minute, logger)

	return &schedulerFixture{
		svc:       svc,
		gateway:   gateway,
		hashStore: hashStore,
		infoStore: infoStore,
		lockStore: lockStore,
		dataset:   datasetStore,
	}
}

// expectEmptyCycle wires the stores for a tick that ingests nothing and
// generates an empty dataset.
func (f *schedulerFixture) expectEmptyCycle() {
	f.infoStore.On("GetValue", mock.Anything, store.KeyLastBatchDate).Return("", store.ErrNotFound)
	f.gateway.On("ListBatches", mock.Anything, time.Time{}).Return([]model.BatchListItem{}, nil)
	f.infoStore.On("GetValue", mock.Anything, store.KeyCurrentETag).Return("", store.ErrNotFound)
	f.hashStore.On("ListKidViews", mock.Anything).Return([]*model.KidView{}, nil)
	f.dataset.On("SaveSnapshot", mock.Anything, mock.Anything).Return(nil)
	f.dataset.On("PromoteSurvivors", mock.Anything, mock.Anything).Return(int64(0), nil)
	f.infoStore.On("SetValue", mock.Anything, store.KeyCurrentETag, mock.Anything).Return(nil)
	f.hashStore.On("ResetUpdatedFlags", mock.Anything).Return(nil)
	f.hashStore.On("DeleteOrphans", mock.Anything).Return(int64(0), nil)
	f.dataset.On("DeleteSnapshotsExcept", mock.Anything, mock.Anything).Return(int64(0), nil)
	f.dataset.On("PurgeMarked", mock.Anything, mock.Anything).Return(int64(0), nil)
}

func TestSchedulerService_RunOnce_AcquiresAndReleasesLease(t *testing.T) {
	f := newSchedulerFixture()

	f.lockStore.On("Acquire", mock.Anything, lockKey, time.Minute).Return("token-1", nil)
	f.lockStore.On("Release", mock.Anything, lockKey, "token-1").Return(nil)
	f.expectEmptyCycle()

	f.svc.RunOnce(context.Background())

	f.lockStore.AssertExpectations(t)
	f.infoStore.AssertCalled(t, "SetValue", mock.Anything, store.KeyCurrentETag, mock.Anything)
}

func TestSchedulerService_RunOnce_LeaseHeldElsewhereSkips(t *testing.T) {
	f := newSchedulerFixture()

	f.lockStore.On("Acquire", mock.Anything, lockKey, time.Minute).Return("", store.ErrLockNotAcquired)

	f.svc.RunOnce(context.Background())

	f.gateway.AssertNotCalled(t, "ListBatches", mock.Anything, mock.Anything)
	f.lockStore.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
}

func TestSchedulerService_RunOnce_IngestionFailureSkipsGeneration(t *testing.T) {
	f := newSchedulerFixture()

	f.lockStore.On("Acquire", mock.Anything, lockKey, time.Minute).Return("token-1", nil)
	f.lockStore.On("Release", mock.Anything, lockKey, "token-1").Return(nil)
	f.infoStore.On("GetValue", mock.Anything, store.KeyLastBatchDate).Return("", store.ErrNotFound)
	f.gateway.On("ListBatches", mock.Anything, time.Time{}).Return(nil, errors.New("gateway down"))

	f.svc.RunOnce(context.Background())

	f.hashStore.AssertNotCalled(t, "ListKidViews", mock.Anything)
	f.lockStore.AssertExpectations(t)
}

func TestSchedulerService_RunOnce_MinimumLeaseHold(t *testing.T) {
	f := newSchedulerFixture()
	f.svc.minLockHold = 50 * time.Millisecond

	f.lockStore.On("Acquire", mock.Anything, lockKey, time.Minute).Return("token-1", nil)
	f.lockStore.On("Release", mock.Anything, lockKey, "token-1").Return(nil)
	f.expectEmptyCycle()

	start := time.Now()
	f.svc.RunOnce(context.Background())

	if held := time.Since(start); held < 50*time.Millisecond {
		t.Fatalf("lease released after %v, want at least 50ms", held)
	}
	f.lockStore.AssertExpectations(t)
}

func TestSchedulerService_StartStop(t *testing.T) {
	f := newSchedulerFixture()
	f.svc.interval = time.Hour // never ticks during the test

	f.svc.Start()
	f.svc.Stop()
}
