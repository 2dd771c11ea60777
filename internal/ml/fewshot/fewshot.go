// Package fewshot implements a small one-vs-rest classification head trained
// over sentence embeddings. Few labeled examples are enough because the
// embedding space already separates topics; the head only learns per-tag
// decision boundaries.
package fewshot

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
)

const (
	ConfigFileName = "config.json"
	HeadFileName   = "head.json"
)

// Config describes the serialized model shape.
type Config struct {
	Vocabulary []string `json:"vocabulary"`
	Dim        int      `json:"dim"`
	MultiLabel bool     `json:"multi_label"`
}

// Model is a logistic head: one weight row plus bias per vocabulary tag.
type Model struct {
	cfg     Config
	weights [][]float64
}

// TrainOptions mirror the fixed, data-independent training knobs. A pass is
// one sweep over the shuffled training set; total passes = Iterations *
// Epochs. Checkpoint runs before each pass and may abort training.
type TrainOptions struct {
	BatchSize    int
	Iterations   int
	Epochs       int
	LearningRate float64
	Seed         int64
	Checkpoint   func(pass int) error
}

func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		BatchSize:    4,
		Iterations:   2,
		Epochs:       1,
		LearningRate: 0.1,
	}
}

func New(cfg Config) (*Model, error) {
	if cfg.Dim <= 0 {
		return nil, fmt.Errorf("fewshot: invalid embedding dim %d", cfg.Dim)
	}
	if len(cfg.Vocabulary) == 0 {
		return nil, fmt.Errorf("fewshot: empty vocabulary")
	}
	weights := make([][]float64, len(cfg.Vocabulary))
	for i := range weights {
		weights[i] = make([]float64, cfg.Dim+1)
	}
	return &Model{cfg: cfg, weights: weights}, nil
}

func (m *Model) Config() Config { return m.cfg }

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func (m *Model) score(class int, vec []float32) float64 {
	w := m.weights[class]
	z := w[m.cfg.Dim]
	for i := 0; i < m.cfg.Dim && i < len(vec); i++ {
		z += w[i] * float64(vec[i])
	}
	return sigmoid(z)
}

// Train fits the head on embedding vectors and multi-hot targets with
// mini-batch gradient steps. Targets must be one multi-hot row per vector,
// sized to the vocabulary.
func (m *Model) Train(vectors [][]float32, targets [][]float64, opts TrainOptions) error {
	if len(vectors) == 0 {
		return fmt.Errorf("fewshot: no training examples")
	}
	if len(vectors) != len(targets) {
		return fmt.Errorf("fewshot: %d vectors but %d targets", len(vectors), len(targets))
	}
	for i, t := range targets {
		if len(t) != len(m.cfg.Vocabulary) {
			return fmt.Errorf("fewshot: target %d has width %d, want %d", i, len(t), len(m.cfg.Vocabulary))
		}
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 4
	}
	if opts.Iterations <= 0 {
		opts.Iterations = 1
	}
	if opts.Epochs <= 0 {
		opts.Epochs = 1
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = 0.1
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	order := rng.Perm(len(vectors))
	passes := opts.Iterations * opts.Epochs

	for pass := 0; pass < passes; pass++ {
		if opts.Checkpoint != nil {
			if err := opts.Checkpoint(pass); err != nil {
				return err
			}
		}
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		for start := 0; start < len(order); start += opts.BatchSize {
			end := start + opts.BatchSize
			if end > len(order) {
				end = len(order)
			}
			batch := order[start:end]

			for class := range m.weights {
				grad := make([]float64, m.cfg.Dim+1)
				for _, idx := range batch {
					vec := vectors[idx]
					err := m.score(class, vec) - targets[idx][class]
					for i := 0; i < m.cfg.Dim && i < len(vec); i++ {
						grad[i] += err * float64(vec[i])
					}
					grad[m.cfg.Dim] += err
				}
				scale := opts.LearningRate / float64(len(batch))
				for i := range grad {
					m.weights[class][i] -= scale * grad[i]
				}
			}
		}
	}
	return nil
}

// Predict returns per-tag sigmoid scores for each vector, in vocabulary
// index order.
func (m *Model) Predict(vectors [][]float32) [][]float64 {
	out := make([][]float64, len(vectors))
	for i, vec := range vectors {
		scores := make([]float64, len(m.weights))
		for class := range m.weights {
			scores[class] = m.score(class, vec)
		}
		out[i] = scores
	}
	return out
}

// PredictClass is the single-label variant: the argmax tag index per vector.
func (m *Model) PredictClass(vectors [][]float32) []int {
	out := make([]int, len(vectors))
	scores := m.Predict(vectors)
	for i, row := range scores {
		best := 0
		for j := 1; j < len(row); j++ {
			if row[j] > row[best] {
				best = j
			}
		}
		out[i] = best
	}
	return out
}

// Save serializes the model into dir as config.json plus head.json. The
// directory is uploaded wholesale to the artifact store afterwards.
func (m *Model) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	cfgBytes, err := json.MarshalIndent(m.cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), cfgBytes, 0o644); err != nil {
		return err
	}
	headBytes, err := json.Marshal(m.weights)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, HeadFileName), headBytes, 0o644)
}

// Load deserializes a model previously written by Save.
func Load(dir string) (*Model, error) {
	cfgBytes, err := os.ReadFile(filepath.Join(dir, ConfigFileName))
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(cfgBytes, &cfg); err != nil {
		return nil, fmt.Errorf("fewshot: bad %s: %w", ConfigFileName, err)
	}
	headBytes, err := os.ReadFile(filepath.Join(dir, HeadFileName))
	if err != nil {
		return nil, err
	}
	var weights [][]float64
	if err := json.Unmarshal(headBytes, &weights); err != nil {
		return nil, fmt.Errorf("fewshot: bad %s: %w", HeadFileName, err)
	}
	if len(weights) != len(cfg.Vocabulary) {
		return nil, fmt.Errorf("fewshot: head has %d classes, config names %d tags", len(weights), len(cfg.Vocabulary))
	}
	for i, w := range weights {
		if len(w) != cfg.Dim+1 {
			return nil, fmt.Errorf("fewshot: class %d weight width %d, want %d", i, len(w), cfg.Dim+1)
		}
	}
	return &Model{cfg: cfg, weights: weights}, nil
}
