package fewshot

import (
	"errors"
	"path/filepath"
	"testing"
)

func trainingData() ([][]float32, [][]float64) {
	// Two well-separated embedding directions, one per tag.
	vectors := [][]float32{
		{1, 0, 0.1}, {0.9, 0.05, 0}, {1, 0.1, 0}, {0.95, 0, 0},
		{0, 1, 0}, {0.05, 0.9, 0.1}, {0, 1, 0.05}, {0.1, 0.95, 0},
	}
	targets := [][]float64{
		{1, 0}, {1, 0}, {1, 0}, {1, 0},
		{0, 1}, {0, 1}, {0, 1}, {0, 1},
	}
	return vectors, targets
}

func TestTrainAndPredict(t *testing.T) {
	m, err := New(Config{Vocabulary: []string{"parking", "pets"}, Dim: 3, MultiLabel: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	vectors, targets := trainingData()
	opts := DefaultTrainOptions()
	opts.Iterations = 50
	if err := m.Train(vectors, targets, opts); err != nil {
		t.Fatalf("Train: %v", err)
	}

	scores := m.Predict([][]float32{{1, 0, 0}, {0, 1, 0}})
	if scores[0][0] <= scores[0][1] {
		t.Fatalf("expected first tag to win for first direction: %v", scores[0])
	}
	if scores[1][1] <= scores[1][0] {
		t.Fatalf("expected second tag to win for second direction: %v", scores[1])
	}

	classes := m.PredictClass([][]float32{{1, 0, 0}, {0, 1, 0}})
	if classes[0] != 0 || classes[1] != 1 {
		t.Fatalf("unexpected argmax classes: %v", classes)
	}
}

func TestTrainRejectsEmptySet(t *testing.T) {
	m, err := New(Config{Vocabulary: []string{"a"}, Dim: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.Train(nil, nil, DefaultTrainOptions()); err == nil {
		t.Fatalf("expected error for empty training set")
	}
}

func TestTrainCheckpointAborts(t *testing.T) {
	m, err := New(Config{Vocabulary: []string{"a", "b"}, Dim: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	vectors, targets := trainingData()
	wantErr := errors.New("aborted")
	opts := DefaultTrainOptions()
	opts.Iterations = 10
	passes := 0
	opts.Checkpoint = func(pass int) error {
		passes++
		if pass >= 2 {
			return wantErr
		}
		return nil
	}
	if err := m.Train(vectors, targets, opts); !errors.Is(err, wantErr) {
		t.Fatalf("expected checkpoint abort, got %v", err)
	}
	if passes != 3 {
		t.Fatalf("expected 3 checkpoint calls, got %d", passes)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m, err := New(Config{Vocabulary: []string{"parking", "pets"}, Dim: 3, MultiLabel: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	vectors, targets := trainingData()
	opts := DefaultTrainOptions()
	opts.Iterations = 30
	if err := m.Train(vectors, targets, opts); err != nil {
		t.Fatalf("Train: %v", err)
	}

	dir := filepath.Join(t.TempDir(), "model")
	if err := m.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	probe := [][]float32{{1, 0, 0}, {0, 1, 0}, {0.5, 0.5, 0}}
	want := m.Predict(probe)
	got := loaded.Predict(probe)
	for i := range want {
		for j := range want[i] {
			if diff := want[i][j] - got[i][j]; diff > 1e-12 || diff < -1e-12 {
				t.Fatalf("prediction drift after reload at [%d][%d]: %v vs %v", i, j, want[i][j], got[i][j])
			}
		}
	}
	if loaded.Config().MultiLabel != true || loaded.Config().Dim != 3 {
		t.Fatalf("config not preserved: %+v", loaded.Config())
	}
}

func TestLoadRejectsShapeMismatch(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatalf("expected error for missing artifact files")
	}
}
