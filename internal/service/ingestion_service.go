package service

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/client"
	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/metrics"
	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/model"
	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/store"
)

// minHashBytes is the minimum decoded hash length: the first three
// bytes form the partition coordinates.
const minHashBytes = 3

// IngestionService applies upstream batch events to the hash store and
// tracks the ingestion watermark for incremental resumption.
type IngestionService struct {
	gateway    client.GatewayClient
	hashStore  store.HashStore
	batchStore store.BatchStore
	infoStore  store.InfoStore
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(
	gateway client.GatewayClient,
	hashStore store.HashStore,
	batchStore store.BatchStore,
	infoStore store.InfoStore,
	m *metrics.Metrics,
	logger *zap.Logger,
) *IngestionService {
	return &IngestionService{
		gateway:    gateway,
		hashStore:  hashStore,
		batchStore: batchStore,
		infoStore:  infoStore,
		metrics:    m,
		logger:     logger,
	}
}

// Run performs one incremental ingestion pass. A single batch failure
// is logged and skipped; only the initial list fetch and final
// bookkeeping can fail the pass.
func (s *IngestionService) Run(ctx context.Context) error {
	watermark, err := s.loadWatermark(ctx)
	if err != nil {
		return err
	}

	items, err := s.gateway.ListBatches(ctx, watermark)
	if err != nil {
		return fmt.Errorf("failed to list upstream batches: %w", err)
	}

	if len(items) == 0 {
		s.logger.Debug("No new upstream batches", zap.Time("watermark", watermark))
		return nil
	}

	s.logger.Info("Ingesting upstream batches",
		zap.Int("count", len(items)),
		zap.Time("watermark", watermark))

	toDelete := make([]string, 0)
	maxDate := watermark

	for _, item := range items {
		if item.Date.After(maxDate) {
			maxDate = item.Date
		}

		if item.Deleted {
			toDelete = append(toDelete, item.BatchID)
			continue
		}

		if err := s.ingestBatch(ctx, item.BatchID, item.Date); err != nil {
			s.logger.Error("Failed to ingest batch, skipping",
				zap.String("batch_id", item.BatchID),
				zap.Error(err))
			s.metrics.BatchErrors.Inc()
			continue
		}
	}

	if len(toDelete) > 0 {
		deleted, err := s.batchStore.DeleteBatches(ctx, toDelete)
		if err != nil {
			return fmt.Errorf("failed to delete batches: %w", err)
		}
		s.logger.Info("Deleted upstream-gone batches",
			zap.Int("requested", len(toDelete)),
			zap.Int64("deleted", deleted))
	}

	if maxDate.After(watermark) {
		if err := s.infoStore.SetValue(ctx, store.KeyLastBatchDate, maxDate.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("failed to persist watermark: %w", err)
		}
	}

	return nil
}

// ingestBatch fetches one batch and upserts its records
func (s *IngestionService) ingestBatch(ctx context.Context, batchID string, date time.Time) error {
	content, gone, err := s.gateway.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if gone {
		// Upstream dropped the batch between listing and fetch.
		if _, err := s.batchStore.DeleteBatches(ctx, []string{batchID}); err != nil {
			return fmt.Errorf("failed to delete gone batch: %w", err)
		}
		return nil
	}

	batch := &model.BatchRecord{
		BatchID:   batchID,
		Expires:   content.Expires,
		Country:   content.Country,
		HashType:  content.HashType,
		KID:       content.KID,
		CreatedAt: date,
	}
	if err := s.batchStore.UpsertBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to upsert batch: %w", err)
	}

	records := make([]*model.HashRecord, 0, len(content.Entries))
	for _, entry := range content.Entries {
		record, err := s.buildHashRecord(content.KID, batchID, entry.Hash)
		if err != nil {
			s.logger.Warn("Skipping malformed hash entry",
				zap.String("batch_id", batchID),
				zap.Error(err))
			s.metrics.MalformedHashes.Inc()
			continue
		}
		records = append(records, record)
	}

	if err := s.hashStore.UpsertHashes(ctx, records); err != nil {
		return fmt.Errorf("failed to upsert hashes: %w", err)
	}

	s.metrics.BatchesIngested.Inc()
	s.metrics.HashesUpserted.Add(float64(len(records)))
	return nil
}

// buildHashRecord decodes one base64 entry into a hash record with its
// derived shard prefix
func (s *IngestionService) buildHashRecord(kid, batchID, b64 string) (*model.HashRecord, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 hash: %w", err)
	}
	if len(raw) < minHashBytes {
		return nil, fmt.Errorf("hash too short: %d bytes", len(raw))
	}

	hexHash := hex.EncodeToString(raw)
	return &model.HashRecord{
		Hash:    hexHash,
		KID:     kid,
		X:       hexHash[0:2],
		Y:       hexHash[2:4],
		Z:       hexHash[4:6],
		BatchID: batchID,
	}, nil
}

func (s *IngestionService) loadWatermark(ctx context.Context) (time.Time, error) {
	value, err := s.infoStore.GetValue(ctx, store.KeyLastBatchDate)
	if err == store.ErrNotFound {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load watermark: %w", err)
	}

	watermark, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse watermark %q: %w", value, err)
	}
	return watermark, nil
}
