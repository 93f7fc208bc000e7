// Package handler provides the HTTP handlers of the hierarchical,
// cache-aware distribution API.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	apierrors "github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/errors"
	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/service"
	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/store"
)

// DistributionHandler serves the generated dataset. Every read below
// the top-level list is conditioned on the caller supplying the
// current etag via If-Match.
type DistributionHandler struct {
	infoStore    store.InfoStore
	datasetStore store.DatasetStore
	lookup       *service.LookupService
	errorHandler *apierrors.Handler
	logger       *zap.Logger
}

// NewDistributionHandler creates a new distribution handler
func NewDistributionHandler(
	infoStore store.InfoStore,
	datasetStore store.DatasetStore,
	lookup *service.LookupService,
	errorHandler *apierrors.Handler,
	logger *zap.Logger,
) *DistributionHandler {
	return &DistributionHandler{
		infoStore:    infoStore,
		datasetStore: datasetStore,
		lookup:       lookup,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// GetList handles GET /lists.
func (h *DistributionHandler) GetList(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	etag, err := h.currentEtag(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	if trimEtag(r.Header.Get("If-None-Match")) == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	snapshot, err := h.datasetStore.GetSnapshot(r.Context(), etag)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	w.Header().Set("ETag", etag)
	h.writeJSONResponse(w, http.StatusOK, snapshot.Items, requestID)
}

// GetPartitions handles GET /lists/{kid}/partitions.
func (h *DistributionHandler) GetPartitions(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	etag, kid, ok := h.checkPreconditions(w, r)
	if !ok {
		return
	}

	var modifiedSince *time.Time
	if ims := r.Header.Get("If-Modified-Since"); ims != "" {
		t, err := http.ParseTime(ims)
		if err != nil {
			h.errorHandler.WriteErrorResponse(w, http.StatusBadRequest, apierrors.ErrorCodeInvalidRequest, "invalid If-Modified-Since header", requestID)
			return
		}
		modifiedSince = &t
	}

	partitions, err := h.datasetStore.ListPartitions(r.Context(), etag, kid, modifiedSince)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	if len(partitions) == 0 {
		if modifiedSince != nil {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		h.errorHandler.WriteErrorResponse(w, http.StatusNotFound, apierrors.ErrorCodeNotFound, "no partitions for kid", requestID)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, partitions, requestID)
}

// GetPartition handles GET|POST /lists/{kid}/partitions/{id}.
func (h *DistributionHandler) GetPartition(w http.ResponseWriter, r *http.Request) {
	etag, kid, ok := h.checkPreconditions(w, r)
	if !ok {
		return
	}

	partitionID := pathPartitionID(r)

	partition, err := h.datasetStore.GetPartition(r.Context(), etag, kid, partitionID)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, partition, r.Header.Get("X-Request-ID"))
}

// GetPartitionSlices handles POST /lists/{kid}/partitions/{id}/slices.
// An optional JSON body lists the chunk names to include.
func (h *DistributionHandler) GetPartitionSlices(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	etag, kid, ok := h.checkPreconditions(w, r)
	if !ok {
		return
	}

	var chunks []string
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&chunks); err != nil {
			h.errorHandler.WriteErrorResponse(w, http.StatusBadRequest, apierrors.ErrorCodeInvalidRequest, "invalid chunk filter body", requestID)
			return
		}
	}

	h.serveSliceArchive(w, r, etag, kid, pathPartitionID(r), chunks, nil)
}

// GetChunkSlices handles GET|POST .../chunks/{cid}/slices.
func (h *DistributionHandler) GetChunkSlices(w http.ResponseWriter, r *http.Request) {
	etag, kid, ok := h.checkPreconditions(w, r)
	if !ok {
		return
	}

	cid := mux.Vars(r)["cid"]
	h.serveSliceArchive(w, r, etag, kid, pathPartitionID(r), []string{cid}, nil)
}

// GetChunkSlice handles GET|POST .../chunks/{cid}/slices/{sid}.
func (h *DistributionHandler) GetChunkSlice(w http.ResponseWriter, r *http.Request) {
	etag, kid, ok := h.checkPreconditions(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)
	cid := vars["cid"]
	sid := vars["sid"]
	h.serveSliceArchive(w, r, etag, kid, pathPartitionID(r), []string{cid}, &sid)
}

// Lookup handles POST /lookup: a bulk set-membership query against the
// hashes of one signing key.
func (h *DistributionHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	var req struct {
		KID    string   `json:"kid"`
		Hashes []string `json:"hashes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.WriteErrorResponse(w, http.StatusBadRequest, apierrors.ErrorCodeInvalidRequest, "invalid lookup body", requestID)
		return
	}
	if req.KID == "" {
		h.errorHandler.WriteErrorResponse(w, http.StatusBadRequest, apierrors.ErrorCodeInvalidRequest, "kid is required", requestID)
		return
	}

	revoked, err := h.lookup.AnyRevoked(r.Context(), req.KID, req.Hashes)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]bool{"revoked": revoked}, requestID)
}

func (h *DistributionHandler) serveSliceArchive(w http.ResponseWriter, r *http.Request, etag, kid string, partitionID *string, chunks []string, sliceID *string) {
	requestID := r.Header.Get("X-Request-ID")

	slices, err := h.datasetStore.ListSlices(r.Context(), etag, kid, partitionID, chunks, sliceID)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	if len(slices) == 0 {
		h.errorHandler.WriteErrorResponse(w, http.StatusNotFound, apierrors.ErrorCodeNotFound, "no slices for the requested coordinates", requestID)
		return
	}

	w.Header().Set("Content-Type", "application/gzip")
	w.WriteHeader(http.StatusOK)
	if err := writeSliceArchive(w, slices); err != nil {
		// Headers already sent; the truncated body fails the client's
		// integrity check.
		h.logger.Error("Failed to stream slice archive",
			zap.String("kid", kid),
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// checkPreconditions resolves the current etag, enforces If-Match and
// transcodes the kid path segment to the storage encoding.
func (h *DistributionHandler) checkPreconditions(w http.ResponseWriter, r *http.Request) (etag, kid string, ok bool) {
	requestID := r.Header.Get("X-Request-ID")

	etag, err := h.currentEtag(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return "", "", false
	}

	if trimEtag(r.Header.Get("If-Match")) != etag {
		h.errorHandler.WriteErrorResponse(w, http.StatusPreconditionFailed, apierrors.ErrorCodePreconditionFailed, "etag does not match the current dataset", requestID)
		return "", "", false
	}

	kid, err = transcodeKid(mux.Vars(r)["kid"])
	if err != nil {
		h.errorHandler.WriteErrorResponse(w, http.StatusBadRequest, apierrors.ErrorCodeInvalidRequest, "invalid kid encoding", requestID)
		return "", "", false
	}

	return etag, kid, true
}

func (h *DistributionHandler) currentEtag(ctx context.Context) (string, error) {
	return h.infoStore.GetValue(ctx, store.KeyCurrentETag)
}

func (h *DistributionHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to write response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// pathPartitionID maps the {id} path segment to a storage partition
// id; the literal "null" addresses a POINT mode KID's single
// partition.
func pathPartitionID(r *http.Request) *string {
	id := mux.Vars(r)["id"]
	if id == nullPartitionLabel || id == "" {
		return nil
	}
	return &id
}

// transcodeKid converts the base64url path form of a kid to the
// standard base64 form used by the stores.
func transcodeKid(kid string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(kid, "="))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func trimEtag(value string) string {
	return strings.Trim(value, `"`)
}
