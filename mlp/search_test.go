package mlp

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGrid_ConfigsCartesianProduct(t *testing.T) {
	g := Grid{
		Activations:   []string{"relu", "tanh"},
		LearningRates: []float64{0.001, 0.01, 0.1},
	}
	base := Config{InputDim: 2, NumClasses: 2, Alpha: 0.5}

	configs := g.Configs(base)
	if len(configs) != 6 {
		t.Fatalf("expected 6 combinations, got %d", len(configs))
	}

	seen := map[string]map[float64]bool{}
	for _, cfg := range configs {
		if cfg.Alpha != 0.5 {
			t.Fatalf("empty grid dimension should keep base alpha, got %v", cfg.Alpha)
		}
		if seen[cfg.Activation] == nil {
			seen[cfg.Activation] = map[float64]bool{}
		}
		if seen[cfg.Activation][cfg.LearningRate] {
			t.Fatalf("duplicate combination %s/%v", cfg.Activation, cfg.LearningRate)
		}
		seen[cfg.Activation][cfg.LearningRate] = true
	}
}

func TestGrid_EmptyGridKeepsBase(t *testing.T) {
	base := Config{InputDim: 2, NumClasses: 2, Activation: "tanh", LearningRate: 0.02}
	configs := Grid{}.Configs(base)
	if len(configs) != 1 {
		t.Fatalf("expected single base config, got %d", len(configs))
	}
	if configs[0].Activation != "tanh" || configs[0].LearningRate != 0.02 {
		t.Fatalf("base config not preserved: %+v", configs[0])
	}
}

func TestLoadGrid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.json")
	data := []byte(`{
		"activation": ["relu"],
		"alpha": [0.0001, 0.001],
		"learning_rate_init": [0.001],
		"hidden_layer_sizes": [[32], [64, 32]],
		"beta_1": [0.9],
		"beta_2": [0.999]
	}`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write grid config: %v", err)
	}

	g, err := LoadGrid(path)
	if err != nil {
		t.Fatalf("LoadGrid failed: %v", err)
	}
	if len(g.Alphas) != 2 || len(g.HiddenSizes) != 2 {
		t.Fatalf("unexpected grid: %+v", g)
	}
	if g.HiddenSizes[1][0] != 64 || g.HiddenSizes[1][1] != 32 {
		t.Fatalf("hidden sizes misparsed: %v", g.HiddenSizes)
	}

	if _, err := LoadGrid(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestSearch_RanksByAccuracy(t *testing.T) {
	train := twoClusters(60, 21)
	val := twoClusters(20, 22)

	base := Config{
		InputDim:    2,
		NumClasses:  2,
		HiddenSizes: []int{8},
		BatchSize:   10,
		Epochs:      40,
		Seed:        9,
	}
	// a learning rate of zero cannot learn anything; the working
	// candidate must rank first
	candidates := []Config{
		func() Config { c := base; c.LearningRate = 1e-12; return c }(),
		func() Config { c := base; c.LearningRate = 0.01; return c }(),
	}

	results, err := Search(candidates, train, val, 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Accuracy < results[1].Accuracy {
		t.Fatalf("results not sorted by accuracy: %v then %v",
			results[0].Accuracy, results[1].Accuracy)
	}
	if results[0].Config.LearningRate != 0.01 {
		t.Fatalf("expected the trainable candidate to win, got lr=%v",
			results[0].Config.LearningRate)
	}
}

func TestSearch_NoCandidates(t *testing.T) {
	train := twoClusters(10, 3)
	if _, err := Search(nil, train, train, 1); err == nil {
		t.Fatalf("expected error for empty candidate list")
	}
}

func TestSearch_PropagatesCandidateError(t *testing.T) {
	train := twoClusters(10, 3)
	bad := Config{InputDim: 2, NumClasses: 2, Activation: "swish", Epochs: 1}
	if _, err := Search([]Config{bad}, train, train, 1); err == nil {
		t.Fatalf("expected error from invalid candidate config")
	}
}

func TestRandomSearch(t *testing.T) {
	train := twoClusters(40, 31)
	val := twoClusters(16, 32)

	g := Grid{
		Activations:   []string{"relu", "tanh"},
		LearningRates: []float64{0.005, 0.01},
	}
	base := Config{
		InputDim:    2,
		NumClasses:  2,
		HiddenSizes: []int{8},
		BatchSize:   10,
		Epochs:      20,
		Seed:        9,
	}

	results, err := RandomSearch(g, base, train, val, 3, 42, 2)
	if err != nil {
		t.Fatalf("RandomSearch failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	if _, err := RandomSearch(g, base, train, val, 0, 42, 1); err == nil {
		t.Fatalf("expected error for non-positive sample count")
	}
}
