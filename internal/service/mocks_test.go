package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/model"
)

// MockHashStore is a mock implementation of store.HashStore
type MockHashStore struct {
	mock.Mock
}

func (m *MockHashStore) UpsertHashes(ctx context.Context, records []*model.HashRecord) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}

func (m *MockHashStore) ResetUpdatedFlags(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockHashStore) DeleteOrphans(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockHashStore) ListKidViews(ctx context.Context) ([]*model.KidView, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.KidView), args.Error(1)
}

func (m *MockHashStore) ListPartitionIDs(ctx context.Context, kid string, mode model.StorageMode) ([]string, error) {
	args := m.Called(ctx, kid, mode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockHashStore) ListChunkSources(ctx context.Context, kid string, mode model.StorageMode, partitionID *string) ([]*model.ChunkSource, error) {
	args := m.Called(ctx, kid, mode, partitionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ChunkSource), args.Error(1)
}

func (m *MockHashStore) AnyExist(ctx context.Context, kid string, hashes []string) (bool, error) {
	args := m.Called(ctx, kid, hashes)
	return args.Bool(0), args.Error(1)
}

func (m *MockHashStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockBatchStore is a mock implementation of store.BatchStore
type MockBatchStore struct {
	mock.Mock
}

func (m *MockBatchStore) UpsertBatch(ctx context.Context, batch *model.BatchRecord) error {
	args := m.Called(ctx, batch)
	return args.Error(0)
}

func (m *MockBatchStore) DeleteBatches(ctx context.Context, batchIDs []string) (int64, error) {
	args := m.Called(ctx, batchIDs)
	return args.Get(0).(int64), args.Error(1)
}

// MockDatasetStore is a mock implementation of store.DatasetStore
type MockDatasetStore struct {
	mock.Mock
}

func (m *MockDatasetStore) SaveSnapshot(ctx context.Context, snapshot *model.RevocationListSnapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *MockDatasetStore) GetSnapshot(ctx context.Context, etag string) (*model.RevocationListSnapshot, error) {
	args := m.Called(ctx, etag)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RevocationListSnapshot), args.Error(1)
}

func (m *MockDatasetStore) DeleteSnapshotsExcept(ctx context.Context, etag string) (int64, error) {
	args := m.Called(ctx, etag)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDatasetStore) SavePartition(ctx context.Context, partition *model.Partition) error {
	args := m.Called(ctx, partition)
	return args.Error(0)
}

func (m *MockDatasetStore) SaveSlice(ctx context.Context, slice *model.Slice) error {
	args := m.Called(ctx, slice)
	return args.Error(0)
}

func (m *MockDatasetStore) MarkKidForDeletion(ctx context.Context, kid string) error {
	args := m.Called(ctx, kid)
	return args.Error(0)
}

func (m *MockDatasetStore) PromoteSurvivors(ctx context.Context, etag string) (int64, error) {
	args := m.Called(ctx, etag)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDatasetStore) PurgeMarked(ctx context.Context, keepEtag string) (int64, error) {
	args := m.Called(ctx, keepEtag)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDatasetStore) ListPartitions(ctx context.Context, etag, kid string, modifiedSince *time.Time) ([]*model.Partition, error) {
	args := m.Called(ctx, etag, kid, modifiedSince)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Partition), args.Error(1)
}

func (m *MockDatasetStore) GetPartition(ctx context.Context, etag, kid string, partitionID *string) (*model.Partition, error) {
	args := m.Called(ctx, etag, kid, partitionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Partition), args.Error(1)
}

func (m *MockDatasetStore) ListSlices(ctx context.Context, etag, kid string, partitionID *string, chunks []string, sliceID *string) ([]*model.Slice, error) {
	args := m.Called(ctx, etag, kid, partitionID, chunks, sliceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Slice), args.Error(1)
}

// MockInfoStore is a mock implementation of store.InfoStore
type MockInfoStore struct {
	mock.Mock
}

func (m *MockInfoStore) GetValue(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockInfoStore) SetValue(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

// MockLockStore is a mock implementation of store.LockStore
type MockLockStore struct {
	mock.Mock
}

func (m *MockLockStore) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, key, ttl)
	return args.String(0), args.Error(1)
}

func (m *MockLockStore) Release(ctx context.Context, key, token string) error {
	args := m.Called(ctx, key, token)
	return args.Error(0)
}

func (m *MockLockStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockLockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockGatewayClient is a mock implementation of client.GatewayClient
type MockGatewayClient struct {
	mock.Mock
}

func (m *MockGatewayClient) ListBatches(ctx context.Context, since time.Time) ([]model.BatchListItem, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.BatchListItem), args.Error(1)
}

func (m *MockGatewayClient) GetBatch(ctx context.Context, batchID string) (*model.BatchContent, bool, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.BatchContent), args.Bool(1), args.Error(2)
}
