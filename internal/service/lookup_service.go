package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/store"
)

// LookupService answers bulk check-for-revocation queries against the
// hash store maintained by the ingestion pipeline.
type LookupService struct {
	hashStore store.HashStore
	logger    *zap.Logger
}

// NewLookupService creates a new lookup service
func NewLookupService(hashStore store.HashStore, logger *zap.Logger) *LookupService {
	return &LookupService{hashStore: hashStore, logger: logger}
}

// AnyRevoked reports whether any of the given hex hashes is revoked
// under the signing key.
func (s *LookupService) AnyRevoked(ctx context.Context, kid string, hashes []string) (bool, error) {
	if len(hashes) == 0 {
		return false, nil
	}

	revoked, err := s.hashStore.AnyExist(ctx, kid, hashes)
	if err != nil {
		return false, fmt.Errorf("failed to query hash store: %w", err)
	}

	return revoked, nil
}
