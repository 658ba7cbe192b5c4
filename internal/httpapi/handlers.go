package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Septimus4/Futurisys/internal/features"
	"github.com/Septimus4/Futurisys/internal/middleware"
	"github.com/Septimus4/Futurisys/internal/prediction"
	"github.com/Septimus4/Futurisys/internal/utils"
)

var (
	errMalformedJSON    = errors.New("malformed JSON")
	errInvalidRequestID = errors.New("invalid request id")
)

// Handler serves the prediction endpoints.
type Handler struct {
	service        *prediction.Service
	maxSingleBytes int64
	logger         *zap.Logger
}

// NewHandler creates a handler. maxSingleBytes bounds single prediction bodies.
func NewHandler(service *prediction.Service, maxSingleBytes int64, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, maxSingleBytes: maxSingleBytes, logger: logger}
}

// Health reports whether a model is loaded. It never touches the ledger.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	info, ok := h.service.ModelInfo()
	if !ok {
		utils.RespondWithError(w, http.StatusServiceUnavailable, kindModelNotReady, "Model is not loaded")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Model:    info.Name,
		Artifact: info.ArtifactPath,
		Version:  info.Version,
	})
}

// Predict handles POST /predict-energy-eui.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxSingleBytes))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	raw, err := features.Decode(body)
	if err != nil {
		if errors.Is(err, features.ErrNotObject) {
			h.writeError(w, r, &features.ValidationError{
				Constraint: features.ConstraintType,
				Message:    "request body must be a JSON object",
			})
			return
		}
		h.writeError(w, r, fmt.Errorf("%w: %v", errMalformedJSON, err))
		return
	}

	result, err := h.service.Predict(r.Context(), raw, middleware.CallerKeyHint(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, newPredictionResponse(result.RequestID, result.Outcome, result.AuditDegraded))
}

// PredictBatch handles POST /predict-energy-eui/batch.
func (h *Handler) PredictBatch(w http.ResponseWriter, r *http.Request) {
	limit := int64(h.service.Limits().MaxBatchBytes)
	// one extra byte lets the service tell "at the limit" from "over it"
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	outcomes, err := h.service.PredictBatch(r.Context(), body, middleware.CallerKeyHint(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, newBatchResponse(outcomes))
}

// Lookup handles GET /requests/{request_id}.
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "request_id"))
	if err != nil {
		h.writeError(w, r, errInvalidRequestID)
		return
	}

	lookup, err := h.service.Lookup(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, newLookupResponse(lookup))
}
