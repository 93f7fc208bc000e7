package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/model"
	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/store"
)

// ChangesetService computes, for the current KID views, the delta
// versus the previously published snapshot.
type ChangesetService struct {
	hashStore    store.HashStore
	datasetStore store.DatasetStore
	logger       *zap.Logger
}

// NewChangesetService creates a new changeset service
func NewChangesetService(hashStore store.HashStore, datasetStore store.DatasetStore, logger *zap.Logger) *ChangesetService {
	return &ChangesetService{
		hashStore:    hashStore,
		datasetStore: datasetStore,
		logger:       logger,
	}
}

// Detect diffs the current KID views against the snapshot published
// under cycle.OldETag, persists the new snapshot under cycle.NewETag
// and returns the change set. New KIDs and changed KIDs are treated
// identically downstream.
func (s *ChangesetService) Detect(ctx context.Context, cycle model.GenerationCycle) (*model.Changes, error) {
	itemsMap, err := s.loadPreviousItems(ctx, cycle.OldETag)
	if err != nil {
		return nil, err
	}

	views, err := s.hashStore.ListKidViews(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list kid views: %w", err)
	}

	currentKids := make(map[string]bool, len(views))
	for _, view := range views {
		currentKids[view.KID] = true
	}

	changes := &model.Changes{}

	// KIDs published before but absent from the current views are
	// gone.
	for kid := range itemsMap {
		if !currentKids[kid] {
			changes.Deleted = append(changes.Deleted, kid)
			delete(itemsMap, kid)
		}
	}

	for _, view := range views {
		if view.Deleted() {
			if _, ok := itemsMap[view.KID]; ok {
				changes.Deleted = append(changes.Deleted, view.KID)
				delete(itemsMap, view.KID)
			}
			continue
		}

		candidate := model.SnapshotItem{
			KID:         view.KID,
			Mode:        view.StorageMode,
			HashTypes:   view.HashTypes,
			Expires:     view.Expired,
			LastUpdated: view.LastUpdated,
		}

		existing, ok := itemsMap[view.KID]
		if ok && !view.Updated && existing.Equal(candidate) {
			continue
		}

		itemsMap[view.KID] = candidate
		changes.Updated = append(changes.Updated, candidate)
	}

	items := make([]model.SnapshotItem, 0, len(itemsMap))
	for _, item := range itemsMap {
		items = append(items, item)
	}

	snapshot := &model.RevocationListSnapshot{
		ETag:      cycle.NewETag,
		CreatedAt: cycle.StartedAt,
		Items:     items,
	}
	if err := s.datasetStore.SaveSnapshot(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}

	s.logger.Info("Change detection complete",
		zap.String("etag", cycle.NewETag),
		zap.Int("items", len(items)),
		zap.Int("updated", len(changes.Updated)),
		zap.Int("deleted", len(changes.Deleted)))

	return changes, nil
}

func (s *ChangesetService) loadPreviousItems(ctx context.Context, oldEtag string) (map[string]model.SnapshotItem, error) {
	itemsMap := make(map[string]model.SnapshotItem)
	if oldEtag == "" {
		return itemsMap, nil
	}

	previous, err := s.datasetStore.GetSnapshot(ctx, oldEtag)
	if err == store.ErrNotFound {
		s.logger.Warn("Previous snapshot missing, treating all KIDs as new",
			zap.String("old_etag", oldEtag))
		return itemsMap, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load previous snapshot: %w", err)
	}

	for _, item := range previous.Items {
		itemsMap[item.KID] = item
	}
	return itemsMap, nil
}
