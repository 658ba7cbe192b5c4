// Package inference loads the EUI regressor and runs it under a deadline.
package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Septimus4/Futurisys/internal/features"
)

// DefaultTimeout bounds a single model invocation.
const DefaultTimeout = 5 * time.Second

var (
	// ErrInferenceTimeout is returned when the model does not answer in time.
	ErrInferenceTimeout = errors.New("inference timed out")
	// ErrModelNotReady is returned when no model is loaded.
	ErrModelNotReady = errors.New("model is not loaded")
	// ErrInferenceCanceled is returned when the caller goes away before the
	// model answers.
	ErrInferenceCanceled = errors.New("inference canceled")
)

// InferenceFailure wraps any error raised by the model itself.
type InferenceFailure struct {
	Detail string
	Err    error
}

func (e *InferenceFailure) Error() string {
	return "inference failed: " + e.Detail
}

func (e *InferenceFailure) Unwrap() error { return e.Err }

// Outcome is a successful prediction.
type Outcome struct {
	Value        float64
	ModelName    string
	ModelVersion string
	LatencyMs    float64
}

// Adapter runs a shared model with a per-call timeout. It holds no mutable state.
type Adapter struct {
	model   Model
	timeout time.Duration
}

// NewAdapter returns an adapter for model. A non-positive timeout uses DefaultTimeout.
func NewAdapter(model Model, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Adapter{model: model, timeout: timeout}
}

// Ready reports whether a model is loaded.
func (a *Adapter) Ready() bool {
	return a != nil && a.model != nil
}

// Info describes the loaded model.
func (a *Adapter) Info() ModelInfo {
	if !a.Ready() {
		return ModelInfo{}
	}
	return a.model.Info()
}

// Timeout returns the per-call deadline.
func (a *Adapter) Timeout() time.Duration { return a.timeout }

type prediction struct {
	value float64
	err   error
}

// Predict runs the model on rec. The call is abandoned when the timeout or ctx
// expires; the model goroutine finishes in the background.
func (a *Adapter) Predict(ctx context.Context, rec features.Record) (Outcome, error) {
	if !a.Ready() {
		return Outcome{}, ErrModelNotReady
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan prediction, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- prediction{err: fmt.Errorf("model panic: %v", r)}
			}
		}()
		v, err := a.model.Predict(rec)
		done <- prediction{value: v, err: err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Outcome{}, ErrInferenceTimeout
		}
		return Outcome{}, fmt.Errorf("%w: %w", ErrInferenceCanceled, ctx.Err())
	case p := <-done:
		elapsed := time.Since(start)
		if p.err != nil {
			return Outcome{}, &InferenceFailure{Detail: p.err.Error(), Err: p.err}
		}
		if elapsed > a.timeout {
			return Outcome{}, ErrInferenceTimeout
		}
		info := a.model.Info()
		return Outcome{
			Value:        p.value,
			ModelName:    info.Name,
			ModelVersion: info.Version,
			LatencyMs:    float64(elapsed.Microseconds()) / 1000,
		}, nil
	}
}
