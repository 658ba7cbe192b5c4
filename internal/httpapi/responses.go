package httpapi

import (
	"time"

	"github.com/google/uuid"

	"github.com/Septimus4/Futurisys/internal/inference"
	"github.com/Septimus4/Futurisys/internal/models"
	"github.com/Septimus4/Futurisys/internal/prediction"
	"github.com/Septimus4/Futurisys/internal/utils"
)

// HealthResponse reports readiness and the loaded model.
type HealthResponse struct {
	Status   string `json:"status"`
	Model    string `json:"model"`
	Artifact string `json:"artifact"`
	Version  string `json:"version"`
}

// PredictionResponse is a successful single prediction.
type PredictionResponse struct {
	RequestID          uuid.UUID `json:"request_id"`
	PredictedSourceEUI float64   `json:"predicted_source_eui_wn_kbtu_sf"`
	ModelName          string    `json:"model_name"`
	ModelVersion       string    `json:"model_version"`
	InferenceMs        float64   `json:"inference_ms"`
	AuditDegraded      bool      `json:"audit_degraded,omitempty"`
}

func newPredictionResponse(id uuid.UUID, outcome inference.Outcome, degraded bool) PredictionResponse {
	return PredictionResponse{
		RequestID:          id,
		PredictedSourceEUI: outcome.Value,
		ModelName:          outcome.ModelName,
		ModelVersion:       outcome.ModelVersion,
		InferenceMs:        outcome.LatencyMs,
		AuditDegraded:      degraded,
	}
}

// BatchItemResponse is one entry of a batch response. Prediction fields are
// set on success and Error on failure.
type BatchItemResponse struct {
	Index              int                   `json:"index"`
	RequestID          *uuid.UUID            `json:"request_id,omitempty"`
	PredictedSourceEUI *float64              `json:"predicted_source_eui_wn_kbtu_sf,omitempty"`
	ModelName          string                `json:"model_name,omitempty"`
	ModelVersion       string                `json:"model_version,omitempty"`
	InferenceMs        *float64              `json:"inference_ms,omitempty"`
	AuditDegraded      bool                  `json:"audit_degraded,omitempty"`
	Error              *prediction.ItemError `json:"error,omitempty"`
}

// BatchResponse lists item results in input order.
type BatchResponse struct {
	Results   []BatchItemResponse `json:"results"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
}

func newBatchResponse(outcomes []prediction.ItemOutcome) BatchResponse {
	resp := BatchResponse{Results: make([]BatchItemResponse, len(outcomes))}
	for i, o := range outcomes {
		item := BatchItemResponse{
			Index:         o.Index,
			RequestID:     o.RequestID,
			AuditDegraded: o.AuditDegraded,
			Error:         o.Error,
		}
		if o.Outcome != nil {
			value, latency := o.Outcome.Value, o.Outcome.LatencyMs
			item.PredictedSourceEUI = &value
			item.InferenceMs = &latency
			item.ModelName = o.Outcome.ModelName
			item.ModelVersion = o.Outcome.ModelVersion
			resp.Succeeded++
		} else {
			resp.Failed++
		}
		resp.Results[i] = item
	}
	return resp
}

// LookupResponse is a ledger entry with its outcome.
type LookupResponse struct {
	RequestID  uuid.UUID            `json:"request_id"`
	ReceivedAt time.Time            `json:"received_at"`
	Features   models.RawJSON       `json:"features"`
	Status     models.RequestStatus `json:"status"`
	Result     *PredictionResponse  `json:"result,omitempty"`
	Error      *utils.ErrorResponse `json:"error,omitempty"`
}

func newLookupResponse(lookup *models.LedgerLookup) LookupResponse {
	resp := LookupResponse{
		RequestID:  lookup.Entry.ID,
		ReceivedAt: lookup.Entry.ReceivedAt,
		Features:   lookup.Entry.Features,
		Status:     lookup.Status(),
	}
	if r := lookup.Result; r != nil {
		resp.Result = &PredictionResponse{
			RequestID:          r.RequestID,
			PredictedSourceEUI: r.PredictedValue,
			ModelName:          r.ModelName,
			ModelVersion:       r.ModelVersion,
			InferenceMs:        r.InferenceMs,
		}
	}
	if e := lookup.Error; e != nil {
		resp.Error = &utils.ErrorResponse{
			Error:     e.ErrorKind,
			Message:   e.Message,
			RequestID: e.RequestID.String(),
		}
	}
	return resp
}
