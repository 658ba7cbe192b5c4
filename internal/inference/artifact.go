package inference

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/Septimus4/Futurisys/internal/features"
)

// ArtifactFormat identifies the JSON forest layout understood by LoadArtifact.
const ArtifactFormat = "eui-forest/v1"

// leafFeature marks a leaf node.
const leafFeature = -1

// FeatureContract lists the model inputs in the order they are encoded.
type FeatureContract struct {
	Numeric     []string `json:"numeric"`
	Categorical []string `json:"categorical"`
}

// DefaultFeatureContract follows the feature table order.
func DefaultFeatureContract() FeatureContract {
	return FeatureContract{
		Numeric:     features.NumericFields(),
		Categorical: features.CategoricalFields(),
	}
}

// Node is one split or leaf of a regression tree. Leaves have Feature == -1.
// Samples with x[Feature] <= Threshold follow Left.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
	Value     float64 `json:"value,omitempty"`
}

// Tree is a regression tree stored as a flat node array rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Artifact is the serialized forest regressor.
type Artifact struct {
	Format          string              `json:"format"`
	FeatureContract FeatureContract     `json:"feature_contract"`
	NumericImpute   map[string]float64  `json:"numeric_impute"`
	Categories      map[string][]string `json:"categories"`
	Trees           []Tree              `json:"trees"`
}

// Metrics are hold-out scores recorded by the trainer.
type Metrics struct {
	MAE         float64 `json:"mae"`
	RMSE        float64 `json:"rmse"`
	R2          float64 `json:"r2"`
	TrainRows   int     `json:"train_rows"`
	HoldoutRows int     `json:"holdout_rows"`
}

// Card describes a trained artifact.
type Card struct {
	ModelName       string           `json:"model_name,omitempty"`
	ModelVersion    string           `json:"model_version,omitempty"`
	ArtifactPath    string           `json:"artifact_path,omitempty"`
	TargetVariable  string           `json:"target_variable,omitempty"`
	PredictedField  string           `json:"predicted_field,omitempty"`
	Algorithm       string           `json:"algorithm,omitempty"`
	FeatureContract *FeatureContract `json:"feature_contract,omitempty"`
	Metrics         *Metrics         `json:"metrics,omitempty"`
}

// ModelInfo identifies the loaded model.
type ModelInfo struct {
	Name         string `json:"model"`
	Version      string `json:"version"`
	ArtifactPath string `json:"artifact"`
}

// width is the length of an encoded feature vector.
func (a *Artifact) width() int {
	n := len(a.FeatureContract.Numeric)
	for _, name := range a.FeatureContract.Categorical {
		n += len(a.Categories[name])
	}
	return n
}

// Validate checks that every tree is well formed for the encoded width.
func (a *Artifact) Validate() error {
	if a.Format != ArtifactFormat {
		return fmt.Errorf("unsupported artifact format %q", a.Format)
	}
	if len(a.FeatureContract.Numeric)+len(a.FeatureContract.Categorical) == 0 {
		return errors.New("artifact has an empty feature contract")
	}
	for _, name := range append(append([]string{}, a.FeatureContract.Numeric...), a.FeatureContract.Categorical...) {
		if !features.IsKnownField(name) {
			return fmt.Errorf("artifact references unknown feature %q", name)
		}
	}
	if len(a.Trees) == 0 {
		return errors.New("artifact has no trees")
	}

	width := a.width()
	for t, tree := range a.Trees {
		if len(tree.Nodes) == 0 {
			return fmt.Errorf("tree %d has no nodes", t)
		}
		for i, node := range tree.Nodes {
			if node.Feature == leafFeature {
				continue
			}
			if node.Feature < 0 || node.Feature >= width {
				return fmt.Errorf("tree %d node %d: feature index %d out of range [0,%d)", t, i, node.Feature, width)
			}
			// children always follow their parent, so traversal terminates
			if node.Left <= i || node.Right <= i || node.Left >= len(tree.Nodes) || node.Right >= len(tree.Nodes) {
				return fmt.Errorf("tree %d node %d: invalid children %d/%d", t, i, node.Left, node.Right)
			}
		}
	}
	return nil
}

// LoadArtifact reads the forest at path and its optional model card.
// Card values take precedence over fallback; a missing card is not an error.
func LoadArtifact(path, cardPath string, fallback ModelInfo) (*Forest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact: %w", err)
	}

	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to decode model artifact %s: %w", path, err)
	}
	if err := artifact.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model artifact %s: %w", path, err)
	}

	info := fallback
	info.ArtifactPath = path
	if cardPath != "" {
		card, err := ReadCard(cardPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if card.ModelName != "" {
				info.Name = card.ModelName
			}
			if card.ModelVersion != "" {
				info.Version = card.ModelVersion
			}
			if card.ArtifactPath != "" {
				info.ArtifactPath = card.ArtifactPath
			}
		}
	}

	return NewForest(&artifact, info), nil
}

// ReadCard decodes a model card file.
func ReadCard(path string) (*Card, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model card: %w", err)
	}
	var card Card
	if err := json.Unmarshal(data, &card); err != nil {
		return nil, fmt.Errorf("failed to decode model card %s: %w", path, err)
	}
	return &card, nil
}

// WriteJSON writes v to path as indented JSON.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
