package httpapi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Septimus4/Futurisys/internal/features"
	"github.com/Septimus4/Futurisys/internal/inference"
	"github.com/Septimus4/Futurisys/internal/ledger"
	"github.com/Septimus4/Futurisys/internal/prediction"
	"github.com/Septimus4/Futurisys/internal/utils"
)

// Error kinds that only exist at the HTTP boundary.
const (
	kindMalformedJSON    = "MalformedJSON"
	kindPayloadTooLarge  = "PayloadTooLarge"
	kindBatchTooLarge    = "BatchTooLarge"
	kindEmptyBatch       = "EmptyBatch"
	kindModelNotReady    = "ModelNotReady"
	kindNotFound         = "NotFound"
	kindInvalidRequestID = "InvalidRequestID"
	kindInternal         = "InternalServerError"
)

// statusClientClosedRequest is the non-standard status logged when the caller
// disconnects before the prediction completes.
const statusClientClosedRequest = 499

// errorResponse maps an error to its status code and envelope.
func errorResponse(err error) (int, utils.ErrorResponse) {
	var (
		verr   *features.ValidationError
		reqErr *prediction.RequestError
		perr   *ledger.PersistenceError
		maxErr *http.MaxBytesError
	)
	switch {
	case errors.As(err, &verr):
		resp := utils.ErrorResponse{Error: prediction.KindValidation, Message: verr.Error()}
		if verr.Field != "" || verr.Constraint != "" {
			resp.Details = map[string]any{"field": verr.Field, "constraint": verr.Constraint}
		}
		return http.StatusUnprocessableEntity, resp
	case errors.As(err, &reqErr):
		resp := utils.ErrorResponse{Error: reqErr.Kind, Message: failureMessage(reqErr.Kind), RequestID: reqErr.RequestID.String()}
		switch reqErr.Kind {
		case prediction.KindInferenceTimeout:
			return http.StatusGatewayTimeout, resp
		case prediction.KindCanceled:
			return statusClientClosedRequest, resp
		}
		return http.StatusInternalServerError, resp
	case errors.As(err, &perr):
		return http.StatusServiceUnavailable, utils.ErrorResponse{Error: prediction.KindPersistence, Message: "Request could not be recorded"}
	case errors.Is(err, inference.ErrModelNotReady):
		return http.StatusServiceUnavailable, utils.ErrorResponse{Error: kindModelNotReady, Message: "Model is not loaded"}
	case errors.Is(err, prediction.ErrPayloadTooLarge), errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge, utils.ErrorResponse{Error: kindPayloadTooLarge, Message: "Request body too large"}
	case errors.Is(err, prediction.ErrBatchTooLarge):
		return http.StatusUnprocessableEntity, utils.ErrorResponse{Error: kindBatchTooLarge, Message: err.Error()}
	case errors.Is(err, prediction.ErrEmptyBatch):
		return http.StatusUnprocessableEntity, utils.ErrorResponse{Error: kindEmptyBatch, Message: err.Error()}
	case errors.Is(err, prediction.ErrMalformedPayload), errors.Is(err, errMalformedJSON):
		return http.StatusBadRequest, utils.ErrorResponse{Error: kindMalformedJSON, Message: "Request body is not valid JSON"}
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, utils.ErrorResponse{Error: kindNotFound, Message: "Request not found"}
	case errors.Is(err, errInvalidRequestID):
		return http.StatusBadRequest, utils.ErrorResponse{Error: kindInvalidRequestID, Message: "Request id must be a UUID"}
	default:
		return http.StatusInternalServerError, utils.ErrorResponse{Error: kindInternal, Message: "An internal error occurred"}
	}
}

// failureMessage is the caller-facing message for an inference error kind.
func failureMessage(kind string) string {
	switch kind {
	case prediction.KindInferenceTimeout:
		return "Prediction timeout"
	case prediction.KindCanceled:
		return "Request canceled before the prediction completed"
	}
	return "Model inference failed"
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := errorResponse(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	utils.RespondWithErrorResponse(w, status, resp)
}
