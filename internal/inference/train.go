package inference

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/Septimus4/Futurisys/internal/features"
)

// TargetColumn is the training label column.
const TargetColumn = "SourceEUIWN(kBtu/sf)"

// Sample is one labelled training row.
type Sample struct {
	Record features.Record
	Target float64
}

// TrainOptions controls forest fitting.
type TrainOptions struct {
	Trees           int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	HoldoutFraction float64
	Seed            int64
}

// DefaultTrainOptions mirrors the hyper-parameters of the published model.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		Trees:           100,
		MaxDepth:        15,
		MinSamplesSplit: 10,
		MinSamplesLeaf:  4,
		HoldoutFraction: 0.2,
		Seed:            42,
	}
}

// ReadTrainingCSV parses rows with the nine feature columns and TargetColumn.
// Rows with a missing target or failing validation are skipped and counted.
func ReadTrainingCSV(r io.Reader, v *features.Validator) (samples []Sample, skipped int, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read CSV header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}

	required := append(append(features.NumericFields(), features.CategoricalFields()...), TargetColumn)
	var missing []string
	for _, name := range required {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, 0, fmt.Errorf("missing columns in dataset: %s", strings.Join(missing, ", "))
	}

	numeric := make(map[string]bool)
	for _, name := range features.NumericFields() {
		numeric[name] = true
	}

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, skipped, fmt.Errorf("failed to read CSV row: %w", err)
		}

		cell := func(name string) string {
			i := columns[name]
			if i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		target, err := strconv.ParseFloat(cell(TargetColumn), 64)
		if err != nil || math.IsNaN(target) || math.IsInf(target, 0) {
			skipped++
			continue
		}

		raw := features.Raw{}
		for _, name := range required[:len(required)-1] {
			value := cell(name)
			if value == "" {
				continue
			}
			if numeric[name] {
				raw[name] = json.Number(value)
			} else {
				raw[name] = value
			}
		}
		rec, err := v.Validate(raw)
		if err != nil {
			skipped++
			continue
		}
		samples = append(samples, Sample{Record: rec, Target: target})
	}
	return samples, skipped, nil
}

// Train fits a bagged regression-tree forest and scores it on a hold-out split.
func Train(samples []Sample, opts TrainOptions) (*Artifact, Metrics, error) {
	if opts.Trees <= 0 || opts.MaxDepth <= 0 {
		return nil, Metrics{}, errors.New("trees and max depth must be positive")
	}
	if opts.MinSamplesLeaf < 1 {
		opts.MinSamplesLeaf = 1
	}
	if opts.MinSamplesSplit < 2*opts.MinSamplesLeaf {
		opts.MinSamplesSplit = 2 * opts.MinSamplesLeaf
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	shuffled := make([]Sample, len(samples))
	copy(shuffled, samples)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	holdout := int(float64(len(shuffled)) * opts.HoldoutFraction)
	train, test := shuffled[holdout:], shuffled[:holdout]
	if len(train) < 2 {
		return nil, Metrics{}, fmt.Errorf("need at least 2 training rows, have %d", len(train))
	}

	artifact := &Artifact{
		Format:          ArtifactFormat,
		FeatureContract: DefaultFeatureContract(),
		NumericImpute:   medians(train),
		Categories:      vocabularies(train),
	}
	encoder := NewForest(artifact, ModelInfo{})

	xs := make([][]float64, len(train))
	ys := make([]float64, len(train))
	for i, s := range train {
		xs[i] = encoder.Encode(s.Record)
		ys[i] = s.Target
	}

	b := &treeBuilder{xs: xs, ys: ys, opts: opts}
	for t := 0; t < opts.Trees; t++ {
		bag := make([]int, len(train))
		for i := range bag {
			bag[i] = rng.Intn(len(train))
		}
		b.nodes = nil
		b.grow(bag, 0)
		artifact.Trees = append(artifact.Trees, Tree{Nodes: b.nodes})
	}

	forest := NewForest(artifact, ModelInfo{})
	scored := test
	if len(scored) == 0 {
		scored = train
	}
	metrics, err := score(forest, scored)
	if err != nil {
		return nil, Metrics{}, err
	}
	metrics.TrainRows = len(train)
	metrics.HoldoutRows = len(test)
	return artifact, metrics, nil
}

func medians(samples []Sample) map[string]float64 {
	out := make(map[string]float64)
	for _, name := range features.NumericFields() {
		var values []float64
		for _, s := range samples {
			if v, ok := s.Record.Numeric(name); ok {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			continue
		}
		sort.Float64s(values)
		mid := len(values) / 2
		if len(values)%2 == 0 {
			out[name] = (values[mid-1] + values[mid]) / 2
		} else {
			out[name] = values[mid]
		}
	}
	return out
}

func vocabularies(samples []Sample) map[string][]string {
	out := make(map[string][]string)
	for _, name := range features.CategoricalFields() {
		seen := make(map[string]bool)
		for _, s := range samples {
			seen[s.Record.Categorical(name)] = true
		}
		vocab := make([]string, 0, len(seen))
		for v := range seen {
			vocab = append(vocab, v)
		}
		sort.Strings(vocab)
		out[name] = vocab
	}
	return out
}

func score(forest *Forest, samples []Sample) (Metrics, error) {
	var absSum, sqSum, mean float64
	for _, s := range samples {
		mean += s.Target
	}
	mean /= float64(len(samples))

	var total float64
	for _, s := range samples {
		pred, err := forest.Predict(s.Record)
		if err != nil {
			return Metrics{}, err
		}
		diff := s.Target - pred
		absSum += math.Abs(diff)
		sqSum += diff * diff
		total += (s.Target - mean) * (s.Target - mean)
	}

	n := float64(len(samples))
	m := Metrics{MAE: absSum / n, RMSE: math.Sqrt(sqSum / n)}
	if total > 0 {
		m.R2 = 1 - sqSum/total
	}
	return m, nil
}

type treeBuilder struct {
	xs    [][]float64
	ys    []float64
	opts  TrainOptions
	nodes []Node
}

// grow appends the subtree for rows and returns its root index. Children are
// appended after their parent.
func (b *treeBuilder) grow(rows []int, depth int) int {
	at := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: leafFeature, Value: b.mean(rows)})

	if depth >= b.opts.MaxDepth || len(rows) < b.opts.MinSamplesSplit {
		return at
	}
	feature, threshold, ok := b.bestSplit(rows)
	if !ok {
		return at
	}

	var left, right []int
	for _, r := range rows {
		if b.xs[r][feature] <= threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[at] = Node{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return at
}

func (b *treeBuilder) mean(rows []int) float64 {
	var sum float64
	for _, r := range rows {
		sum += b.ys[r]
	}
	return sum / float64(len(rows))
}

// bestSplit finds the split minimising the summed squared error of both sides.
func (b *treeBuilder) bestSplit(rows []int) (feature int, threshold float64, ok bool) {
	var total, totalSq float64
	for _, r := range rows {
		total += b.ys[r]
		totalSq += b.ys[r] * b.ys[r]
	}
	n := float64(len(rows))
	best := totalSq - total*total/n

	sorted := make([]int, len(rows))
	minLeaf := b.opts.MinSamplesLeaf
	width := len(b.xs[rows[0]])
	for f := 0; f < width; f++ {
		copy(sorted, rows)
		sort.Slice(sorted, func(i, j int) bool { return b.xs[sorted[i]][f] < b.xs[sorted[j]][f] })

		var leftSum, leftSq float64
		for i := 0; i < len(sorted)-1; i++ {
			y := b.ys[sorted[i]]
			leftSum += y
			leftSq += y * y

			nl := i + 1
			nr := len(sorted) - nl
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			lo, hi := b.xs[sorted[i]][f], b.xs[sorted[i+1]][f]
			if lo == hi {
				continue
			}
			rightSum := total - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/float64(nl)) + (rightSq - rightSum*rightSum/float64(nr))
			if sse < best-1e-12 {
				best = sse
				feature, threshold, ok = f, (lo+hi)/2, true
			}
		}
	}
	return feature, threshold, ok
}
