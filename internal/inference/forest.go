package inference

import (
	"fmt"
	"math"

	"github.com/Septimus4/Futurisys/internal/features"
)

// Model is a loaded regressor. Implementations must be safe for concurrent
// Predict calls.
type Model interface {
	Predict(rec features.Record) (float64, error)
	Info() ModelInfo
}

// Forest is an immutable random-forest regressor; the prediction is the mean
// of its tree outputs.
type Forest struct {
	artifact *Artifact
	info     ModelInfo
	// offsets[i] is the vector index of the first one-hot column of categorical i
	offsets []int
	index   []map[string]int
	width   int
}

// NewForest wraps a validated artifact.
func NewForest(artifact *Artifact, info ModelInfo) *Forest {
	f := &Forest{artifact: artifact, info: info}
	pos := len(artifact.FeatureContract.Numeric)
	for _, name := range artifact.FeatureContract.Categorical {
		vocab := artifact.Categories[name]
		lookup := make(map[string]int, len(vocab))
		for i, v := range vocab {
			lookup[v] = i
		}
		f.offsets = append(f.offsets, pos)
		f.index = append(f.index, lookup)
		pos += len(vocab)
	}
	f.width = pos
	return f
}

func (f *Forest) Info() ModelInfo { return f.info }

// Trees returns the number of trees in the forest.
func (f *Forest) Trees() int { return len(f.artifact.Trees) }

// Encode turns a record into the model's input vector. Missing numeric values
// take their imputation value and unseen categories encode as all zeros.
func (f *Forest) Encode(rec features.Record) []float64 {
	vec := make([]float64, f.width)
	for i, name := range f.artifact.FeatureContract.Numeric {
		if v, ok := rec.Numeric(name); ok {
			vec[i] = v
		} else {
			vec[i] = f.artifact.NumericImpute[name]
		}
	}
	for i, name := range f.artifact.FeatureContract.Categorical {
		if j, ok := f.index[i][rec.Categorical(name)]; ok {
			vec[f.offsets[i]+j] = 1
		}
	}
	return vec
}

func (f *Forest) Predict(rec features.Record) (float64, error) {
	if rec.IsZero() {
		return 0, fmt.Errorf("cannot predict an empty feature record")
	}
	return f.PredictVector(f.Encode(rec))
}

// PredictVector runs the forest on an encoded vector.
func (f *Forest) PredictVector(vec []float64) (float64, error) {
	if len(vec) != f.width {
		return 0, fmt.Errorf("feature vector has %d columns, expected %d", len(vec), f.width)
	}
	var sum float64
	for _, tree := range f.artifact.Trees {
		sum += walk(tree.Nodes, vec)
	}
	mean := sum / float64(len(f.artifact.Trees))
	if math.IsNaN(mean) || math.IsInf(mean, 0) {
		return 0, fmt.Errorf("model produced a non-finite prediction")
	}
	return mean, nil
}

func walk(nodes []Node, vec []float64) float64 {
	i := 0
	for nodes[i].Feature != leafFeature {
		if vec[nodes[i].Feature] <= nodes[i].Threshold {
			i = nodes[i].Left
		} else {
			i = nodes[i].Right
		}
	}
	return nodes[i].Value
}
