package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/encoder"
	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/model"
	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/store"
)

func newGeneratorFixture() (*GeneratorService, *MockHashStore, *MockDatasetStore, *MockInfoStore) {
	hashStore := new(MockHashStore)
	datasetStore := new(MockDatasetStore)
	infoStore := new(MockInfoStore)
	logger := zap.NewNop()
	m := newTestMetrics()

	changeset := NewChangesetService(hashStore, datasetStore, logger)
	partitions := NewPartitionService(hashStore, datasetStore,
		[]encoder.Encoder{encoder.NewBloomFilterEncoder(1e-6)}, m, logger)
	svc := NewGeneratorService(changeset, partitions, hashStore, datasetStore, infoStore, m, logger)
	return svc, hashStore, datasetStore, infoStore
}

func TestGeneratorService_RunCycle_FullCycle(t *testing.T) {
	svc, hashStore, datasetStore, infoStore := newGeneratorFixture()

	updated := time.Date(2023, 5, 2, 9, 0, 0, 0, time.UTC)
	var publishedEtag string

	infoStore.On("GetValue", mock.Anything, store.KeyCurrentETag).Return("", store.ErrNotFound)
	hashStore.On("ListKidViews", mock.Anything).Return([]*model.KidView{
		{KID: "kid-a", HashTypes: []string{"UCI"}, StorageMode: model.StorageModePoint, LastUpdated: updated, Updated: true},
	}, nil)
	datasetStore.On("SaveSnapshot", mock.Anything, mock.Anything).Return(nil)
	datasetStore.On("MarkKidForDeletion", mock.Anything, "kid-a").Return(nil)
	hashStore.On("ListChunkSources", mock.Anything, "kid-a", model.StorageModePoint, (*string)(nil)).
		Return([]*model.ChunkSource{pointSource("kid-a", "ab", []string{"ab0102030405"})}, nil)
	datasetStore.On("SaveSlice", mock.Anything, mock.Anything).Return(nil)
	datasetStore.On("SavePartition", mock.Anything, mock.Anything).Return(nil)
	datasetStore.On("PromoteSurvivors", mock.Anything, mock.AnythingOfType("string")).Return(int64(0), nil)

	infoStore.On("SetValue", mock.Anything, store.KeyCurrentETag, mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { publishedEtag = args.String(2) }).Return(nil)

	hashStore.On("ResetUpdatedFlags", mock.Anything).Return(nil)
	hashStore.On("DeleteOrphans", mock.Anything).Return(int64(0), nil)
	datasetStore.On("DeleteSnapshotsExcept", mock.Anything, mock.AnythingOfType("string")).Return(int64(1), nil)
	datasetStore.On("PurgeMarked", mock.Anything, mock.AnythingOfType("string")).Return(int64(3), nil)

	err := svc.RunCycle(context.Background())

	require.NoError(t, err)
	require.NotEmpty(t, publishedEtag)
	// promotion and cleanup must use exactly the etag that was published
	datasetStore.AssertCalled(t, "PromoteSurvivors", mock.Anything, publishedEtag)
	datasetStore.AssertCalled(t, "DeleteSnapshotsExcept", mock.Anything, publishedEtag)
	datasetStore.AssertCalled(t, "PurgeMarked", mock.Anything, publishedEtag)
	hashStore.AssertExpectations(t)
	datasetStore.AssertExpectations(t)
	infoStore.AssertExpectations(t)
}

func TestGeneratorService_RunCycle_DetectFailureDoesNotPublish(t *testing.T) {
	svc, hashStore, _, infoStore := newGeneratorFixture()

	infoStore.On("GetValue", mock.Anything, store.KeyCurrentETag).Return("", store.ErrNotFound)
	hashStore.On("ListKidViews", mock.Anything).Return(nil, errors.New("db down"))

	err := svc.RunCycle(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "change detection failed")
	infoStore.AssertNotCalled(t, "SetValue", mock.Anything, store.KeyCurrentETag, mock.Anything)
}

func TestGeneratorService_RunCycle_GenerationFailureDoesNotPublish(t *testing.T) {
	svc, hashStore, datasetStore, infoStore := newGeneratorFixture()

	updated := time.Date(2023, 5, 2, 9, 0, 0, 0, time.UTC)
	infoStore.On("GetValue", mock.Anything, store.KeyCurrentETag).Return("etag-old", nil)
	datasetStore.On("GetSnapshot", mock.Anything, "etag-old").Return(nil, store.ErrNotFound)
	hashStore.On("ListKidViews", mock.Anything).Return([]*model.KidView{
		{KID: "kid-a", HashTypes: []string{"UCI"}, StorageMode: model.StorageModePoint, LastUpdated: updated, Updated: true},
	}, nil)
	datasetStore.On("SaveSnapshot", mock.Anything, mock.Anything).Return(nil)
	datasetStore.On("MarkKidForDeletion", mock.Anything, "kid-a").Return(errors.New("db down"))

	err := svc.RunCycle(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "partition generation failed")
	infoStore.AssertNotCalled(t, "SetValue", mock.Anything, store.KeyCurrentETag, mock.Anything)
	datasetStore.AssertNotCalled(t, "PromoteSurvivors", mock.Anything, mock.Anything)
	hashStore.AssertNotCalled(t, "ResetUpdatedFlags", mock.Anything)
}

func TestGeneratorService_RunCycle_CleanupFailureAfterPublish(t *testing.T) {
	svc, hashStore, datasetStore, infoStore := newGeneratorFixture()

	infoStore.On("GetValue", mock.Anything, store.KeyCurrentETag).Return("", store.ErrNotFound)
	hashStore.On("ListKidViews", mock.Anything).Return([]*model.KidView{}, nil)
	datasetStore.On("SaveSnapshot", mock.Anything, mock.Anything).Return(nil)
	datasetStore.On("PromoteSurvivors", mock.Anything, mock.AnythingOfType("string")).Return(int64(0), nil)
	infoStore.On("SetValue", mock.Anything, store.KeyCurrentETag, mock.AnythingOfType("string")).Return(nil)
	hashStore.On("ResetUpdatedFlags", mock.Anything).Return(errors.New("db down"))

	err := svc.RunCycle(context.Background())

	// The etag swap already happened; the cycle still reports the
	// cleanup error so the operator sees it.
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cleanup failed after publish")
	infoStore.AssertCalled(t, "SetValue", mock.Anything, store.KeyCurrentETag, mock.AnythingOfType("string"))
}

func TestGeneratorService_RunCycle_NewEtagPerCycle(t *testing.T) {
	svc, hashStore, datasetStore, infoStore := newGeneratorFixture()

	etags := make(map[string]bool)
	infoStore.On("GetValue", mock.Anything, store.KeyCurrentETag).Return("", store.ErrNotFound)
	hashStore.On("ListKidViews", mock.Anything).Return([]*model.KidView{}, nil)
	datasetStore.On("SaveSnapshot", mock.Anything, mock.Anything).Return(nil)
	datasetStore.On("PromoteSurvivors", mock.Anything, mock.AnythingOfType("string")).Return(int64(0), nil)
	infoStore.On("SetValue", mock.Anything, store.KeyCurrentETag, mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { etags[args.String(2)] = true }).Return(nil)
	hashStore.On("ResetUpdatedFlags", mock.Anything).Return(nil)
	hashStore.On("DeleteOrphans", mock.Anything).Return(int64(0), nil)
	datasetStore.On("DeleteSnapshotsExcept", mock.Anything, mock.Anything).Return(int64(0), nil)
	datasetStore.On("PurgeMarked", mock.Anything, mock.Anything).Return(int64(0), nil)

	require.NoError(t, svc.RunCycle(context.Background()))
	require.NoError(t, svc.RunCycle(context.Background()))

	assert.Len(t, etags, 2)
}

// fakeDatasetStore keeps rows in memory with the same filter semantics
// as the postgres store, so multi-cycle tests observe real row
// lifecycles instead of canned mock answers.
type fakeDatasetStore struct {
	snapshots  map[string]*model.RevocationListSnapshot
	partitions []*model.Partition
	slices     []*model.Slice
}

func newFakeDatasetStore() *fakeDatasetStore {
	return &fakeDatasetStore{snapshots: make(map[string]*model.RevocationListSnapshot)}
}

func (f *fakeDatasetStore) SaveSnapshot(ctx context.Context, snapshot *model.RevocationListSnapshot) error {
	f.snapshots[snapshot.ETag] = snapshot
	return nil
}

func (f *fakeDatasetStore) GetSnapshot(ctx context.Context, etag string) (*model.RevocationListSnapshot, error) {
	s, ok := f.snapshots[etag]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s, nil
}

func (f *fakeDatasetStore) DeleteSnapshotsExcept(ctx context.Context, etag string) (int64, error) {
	var deleted int64
	for e := range f.snapshots {
		if e != etag {
			delete(f.snapshots, e)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeDatasetStore) SavePartition(ctx context.Context, partition *model.Partition) error {
	p := *partition
	f.partitions = append(f.partitions, &p)
	return nil
}

func (f *fakeDatasetStore) SaveSlice(ctx context.Context, slice *model.Slice) error {
	s := *slice
	f.slices = append(f.slices, &s)
	return nil
}

func (f *fakeDatasetStore) MarkKidForDeletion(ctx context.Context, kid string) error {
	for _, p := range f.partitions {
		if p.KID == kid {
			p.ToBeDeleted = true
		}
	}
	for _, s := range f.slices {
		if s.KID == kid {
			s.ToBeDeleted = true
		}
	}
	return nil
}

func (f *fakeDatasetStore) PromoteSurvivors(ctx context.Context, etag string) (int64, error) {
	var promoted int64
	for _, p := range f.partitions {
		if !p.ToBeDeleted && p.ETag != etag {
			p.ETag = etag
			promoted++
		}
	}
	for _, s := range f.slices {
		if !s.ToBeDeleted && s.ETag != etag {
			s.ETag = etag
			promoted++
		}
	}
	return promoted, nil
}

func (f *fakeDatasetStore) PurgeMarked(ctx context.Context, keepEtag string) (int64, error) {
	var purged int64

	kept := f.partitions[:0]
	for _, p := range f.partitions {
		if p.ToBeDeleted && p.ETag != keepEtag {
			purged++
			continue
		}
		kept = append(kept, p)
	}
	f.partitions = kept

	keptSlices := f.slices[:0]
	for _, s := range f.slices {
		if s.ToBeDeleted && s.ETag != keepEtag {
			purged++
			continue
		}
		keptSlices = append(keptSlices, s)
	}
	f.slices = keptSlices

	return purged, nil
}

func (f *fakeDatasetStore) ListPartitions(ctx context.Context, etag, kid string, modifiedSince *time.Time) ([]*model.Partition, error) {
	result := make([]*model.Partition, 0)
	for _, p := range f.partitions {
		if p.ETag != etag || p.KID != kid {
			continue
		}
		if modifiedSince != nil && !p.LastUpdated.After(*modifiedSince) {
			continue
		}
		result = append(result, p)
	}
	return result, nil
}

func (f *fakeDatasetStore) GetPartition(ctx context.Context, etag, kid string, partitionID *string) (*model.Partition, error) {
	for _, p := range f.partitions {
		if p.ETag == etag && p.KID == kid && samePartition(p.ID, partitionID) {
			return p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeDatasetStore) ListSlices(ctx context.Context, etag, kid string, partitionID *string, chunks []string, sliceID *string) ([]*model.Slice, error) {
	result := make([]*model.Slice, 0)
	for _, s := range f.slices {
		if s.ETag != etag || s.KID != kid || !samePartition(s.PartitionID, partitionID) {
			continue
		}
		if len(chunks) > 0 {
			found := false
			for _, c := range chunks {
				if s.Chunk == c {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		if sliceID != nil && s.SliceID != *sliceID {
			continue
		}
		result = append(result, s)
	}
	return result, nil
}

type fakeInfoStore struct {
	values map[string]string
}

func (f *fakeInfoStore) GetValue(ctx context.Context, key string) (string, error) {
	v, ok := f.values[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (f *fakeInfoStore) SetValue(ctx context.Context, key, value string) error {
	f.values[key] = value
	return nil
}

// An unchanged KID gets no new rows during a cycle; its existing rows
// must be carried into the newly published etag or the second cycle
// would silently drop it from the served dataset.
func TestGeneratorService_RunCycle_UnchangedKidStaysReachable(t *testing.T) {
	hashStore := new(MockHashStore)
	datasetStore := newFakeDatasetStore()
	infoStore := &fakeInfoStore{values: make(map[string]string)}
	logger := zap.NewNop()
	m := newTestMetrics()

	changeset := NewChangesetService(hashStore, datasetStore, logger)
	partitions := NewPartitionService(hashStore, datasetStore,
		[]encoder.Encoder{encoder.NewBloomFilterEncoder(1e-6)}, m, logger)
	svc := NewGeneratorService(changeset, partitions, hashStore, datasetStore, infoStore, m, logger)

	updated := time.Date(2023, 5, 2, 9, 0, 0, 0, time.UTC)
	view := func(touched bool) []*model.KidView {
		return []*model.KidView{
			{KID: "kid-a", HashTypes: []string{"UCI"}, StorageMode: model.StorageModePoint, LastUpdated: updated, Updated: touched},
		}
	}

	// First cycle writes the KID, second cycle sees it untouched.
	hashStore.On("ListKidViews", mock.Anything).Return(view(true), nil).Once()
	hashStore.On("ListKidViews", mock.Anything).Return(view(false), nil).Once()
	hashStore.On("ListChunkSources", mock.Anything, "kid-a", model.StorageModePoint, (*string)(nil)).
		Return([]*model.ChunkSource{pointSource("kid-a", "ab", []string{"ab0102030405"})}, nil).Once()
	hashStore.On("ResetUpdatedFlags", mock.Anything).Return(nil)
	hashStore.On("DeleteOrphans", mock.Anything).Return(int64(0), nil)

	require.NoError(t, svc.RunCycle(context.Background()))

	etag1 := infoStore.values[store.KeyCurrentETag]
	require.NotEmpty(t, etag1)
	firstSlices, err := datasetStore.ListSlices(context.Background(), etag1, "kid-a", nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, firstSlices, 1)
	firstSliceID := firstSlices[0].SliceID
	firstBinary := firstSlices[0].BinaryData

	require.NoError(t, svc.RunCycle(context.Background()))

	etag2 := infoStore.values[store.KeyCurrentETag]
	require.NotEmpty(t, etag2)
	require.NotEqual(t, etag1, etag2)

	// The untouched KID is still fully served under the new etag.
	parts, err := datasetStore.ListPartitions(context.Background(), etag2, "kid-a", nil)
	require.NoError(t, err)
	require.Len(t, parts, 1)

	slices, err := datasetStore.ListSlices(context.Background(), etag2, "kid-a", nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, slices, 1)
	assert.Equal(t, firstSliceID, slices[0].SliceID)
	assert.Equal(t, firstBinary, slices[0].BinaryData)

	// Nothing lingers under the superseded etag.
	stale, err := datasetStore.ListPartitions(context.Background(), etag1, "kid-a", nil)
	require.NoError(t, err)
	assert.Empty(t, stale)
	assert.Len(t, datasetStore.snapshots, 1)

	hashStore.AssertExpectations(t)
}
