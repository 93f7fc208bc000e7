package service

import (
	"context"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"

	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/encoder"
	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/metrics"
	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/model"
	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/store"
)

// PartitionService regenerates partitions, chunks and slices for
// changed KIDs according to their storage mode.
type PartitionService struct {
	hashStore    store.HashStore
	datasetStore store.DatasetStore
	encoders     []encoder.Encoder
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// NewPartitionService creates a new partition service
func NewPartitionService(
	hashStore store.HashStore,
	datasetStore store.DatasetStore,
	encoders []encoder.Encoder,
	m *metrics.Metrics,
	logger *zap.Logger,
) *PartitionService {
	return &PartitionService{
		hashStore:    hashStore,
		datasetStore: datasetStore,
		encoders:     encoders,
		metrics:      m,
		logger:       logger,
	}
}

// GenerateFor regenerates all changed KIDs of the cycle. Existing rows
// of every changed KID are flagged for deletion first; deleted KIDs
// simply receive no replacement.
func (s *PartitionService) GenerateFor(ctx context.Context, cycle model.GenerationCycle, changes *model.Changes) error {
	for _, kid := range changes.Deleted {
		if err := s.datasetStore.MarkKidForDeletion(ctx, kid); err != nil {
			return fmt.Errorf("failed to mark kid %s for deletion: %w", kid, err)
		}
	}

	for _, item := range changes.Updated {
		if err := s.datasetStore.MarkKidForDeletion(ctx, item.KID); err != nil {
			return fmt.Errorf("failed to mark kid %s for deletion: %w", item.KID, err)
		}

		if err := s.generateKid(ctx, cycle, item); err != nil {
			return err
		}
	}

	return nil
}

func (s *PartitionService) generateKid(ctx context.Context, cycle model.GenerationCycle, item model.SnapshotItem) error {
	switch item.Mode {
	case model.StorageModePoint:
		sources, err := s.hashStore.ListChunkSources(ctx, item.KID, item.Mode, nil)
		if err != nil {
			return fmt.Errorf("failed to list chunk sources for kid %s: %w", item.KID, err)
		}
		return s.buildPartition(ctx, cycle, item, nil, sources)

	case model.StorageModeVector, model.StorageModeCoordinate:
		ids, err := s.hashStore.ListPartitionIDs(ctx, item.KID, item.Mode)
		if err != nil {
			return fmt.Errorf("failed to list partition ids for kid %s: %w", item.KID, err)
		}
		for _, id := range ids {
			id := id
			sources, err := s.hashStore.ListChunkSources(ctx, item.KID, item.Mode, &id)
			if err != nil {
				return fmt.Errorf("failed to list chunk sources for kid %s partition %s: %w", item.KID, id, err)
			}
			if err := s.buildPartition(ctx, cycle, item, &id, sources); err != nil {
				return err
			}
		}
		return nil

	default:
		s.logger.Error("Unrecognized storage mode, skipping KID",
			zap.String("kid", item.KID),
			zap.String("mode", string(item.Mode)))
		return nil
	}
}

// buildPartition encodes the chunk rows of one partition and persists
// the partition with its slices. A partition whose chunk map ends up
// empty is not saved.
func (s *PartitionService) buildPartition(ctx context.Context, cycle model.GenerationCycle, item model.SnapshotItem, partitionID *string, sources []*model.ChunkSource) error {
	partition := &model.Partition{
		ETag:   cycle.NewETag,
		KID:    item.KID,
		ID:     partitionID,
		Chunks: model.ChunkMap{},
	}
	offset := item.Mode.PartitionOffset()

	for _, src := range sources {
		if src.KID != item.KID || !samePartition(src.PartitionID, partitionID) {
			s.logger.Error("Chunk row does not belong to partition under construction",
				zap.String("kid", item.KID),
				zap.Stringp("partition_id", partitionID),
				zap.Stringp("row_partition_id", src.PartitionID),
				zap.String("row_kid", src.KID))
			continue
		}
		if len(src.Hashes) == 0 {
			continue
		}

		raw, err := decodeHashes(src.Hashes)
		if err != nil {
			return fmt.Errorf("failed to decode hashes for kid %s chunk %s: %w", item.KID, src.Chunk, err)
		}

		for _, enc := range s.encoders {
			encoded, err := enc.Encode(raw, offset)
			if err != nil {
				return fmt.Errorf("encoder %s failed for kid %s chunk %s: %w", enc.Type(), item.KID, src.Chunk, err)
			}
			if encoded == nil {
				continue
			}

			slice := &model.Slice{
				ETag:         cycle.NewETag,
				KID:          item.KID,
				PartitionID:  partitionID,
				Chunk:        src.Chunk,
				SliceID:      encoded.Hash,
				LastUpdated:  src.LastUpdated,
				Expired:      src.Expired,
				EncodingType: encoded.Type,
				Version:      encoded.Version,
				BinaryData:   encoded.Binary,
			}
			if err := s.datasetStore.SaveSlice(ctx, slice); err != nil {
				return fmt.Errorf("failed to save slice for kid %s chunk %s: %w", item.KID, src.Chunk, err)
			}
			s.metrics.SlicesWritten.Inc()

			if partition.Chunks[src.Chunk] == nil {
				partition.Chunks[src.Chunk] = make(map[string]model.SliceRef)
			}
			partition.Chunks[src.Chunk][encoded.Type] = model.SliceRef{
				Type:    encoded.Type,
				Version: encoded.Version,
				Hash:    encoded.Hash,
			}
		}

		partition.LastUpdated, partition.Expired = model.ChunkTimestamps(partition.LastUpdated, partition.Expired, src.LastUpdated, src.Expired)
		partition.X, partition.Y, partition.Z = src.X, src.Y, src.Z
	}

	if len(partition.Chunks) == 0 {
		s.logger.Debug("Skipping empty partition",
			zap.String("kid", item.KID),
			zap.Stringp("partition_id", partitionID))
		return nil
	}

	if err := s.datasetStore.SavePartition(ctx, partition); err != nil {
		return fmt.Errorf("failed to save partition for kid %s: %w", item.KID, err)
	}
	s.metrics.PartitionsWritten.Inc()

	return nil
}

func samePartition(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func decodeHashes(hexHashes []string) ([][]byte, error) {
	raw := make([][]byte, 0, len(hexHashes))
	for _, h := range hexHashes {
		b, err := hex.DecodeString(h)
		if err != nil {
			return nil, fmt.Errorf("invalid hex hash %q: %w", h, err)
		}
		raw = append(raw, b)
	}
	return raw, nil
}
