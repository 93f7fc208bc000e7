package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/store"
)

// HealthChecker provides liveness and readiness handlers backed by the
// backing stores.
type HealthChecker struct {
	hashStore store.HashStore
	lockStore store.LockStore
	logger    *zap.Logger
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(hashStore store.HashStore, lockStore store.LockStore, logger *zap.Logger) *HealthChecker {
	return &HealthChecker{
		hashStore: hashStore,
		lockStore: lockStore,
		logger:    logger,
	}
}

// LivenessHandler reports that the process is running
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ReadinessHandler reports whether the backing stores are reachable
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{
		"database": "ok",
		"redis":    "ok",
	}
	healthy := true

	if err := h.hashStore.Ping(ctx); err != nil {
		h.logger.Warn("Database readiness check failed", zap.Error(err))
		checks["database"] = err.Error()
		healthy = false
	}
	if err := h.lockStore.Ping(ctx); err != nil {
		h.logger.Warn("Redis readiness check failed", zap.Error(err))
		checks["redis"] = err.Error()
		healthy = false
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeStatus(w, status, checks)
}

func writeStatus(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
