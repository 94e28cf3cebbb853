package mlp

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"runtime"
	"sort"
	"sync"
)

// Grid enumerates hyperparameter candidates for the classifier. Field names
// in the JSON form follow the conventional scikit-style parameter keys. An
// empty dimension keeps the base config's value.
type Grid struct {
	HiddenSizes   [][]int   `json:"hidden_layer_sizes"`
	Activations   []string  `json:"activation"`
	Alphas        []float64 `json:"alpha"`
	LearningRates []float64 `json:"learning_rate_init"`
	MaxIters      []int     `json:"max_iter"`
	Beta1s        []float64 `json:"beta_1"`
	Beta2s        []float64 `json:"beta_2"`
}

// DefaultGrid returns the stock search space for the adam solver.
func DefaultGrid() Grid {
	return Grid{
		HiddenSizes:   [][]int{{64}, {128}, {64, 32}},
		Activations:   []string{"logistic", "tanh", "relu"},
		Alphas:        []float64{0, 1e-4, 1e-3, 1e-2},
		LearningRates: []float64{1e-4, 1e-3, 1e-2},
		MaxIters:      []int{100, 200, 500},
		Beta1s:        []float64{0.5, 0.8, 0.9, 0.999},
		Beta2s:        []float64{0.9, 0.999, 0.99999},
	}
}

// LoadGrid reads a grid definition from a JSON file.
func LoadGrid(path string) (Grid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Grid{}, fmt.Errorf("read grid config %s: %w", path, err)
	}
	var g Grid
	if err := json.Unmarshal(data, &g); err != nil {
		return Grid{}, fmt.Errorf("parse grid config %s: %w", path, err)
	}
	return g, nil
}

// size returns the number of combinations in the grid.
func (g Grid) size() int {
	n := 1
	for _, d := range g.dims() {
		if d > 0 {
			n *= d
		}
	}
	return n
}

func (g Grid) dims() []int {
	return []int{
		len(g.HiddenSizes), len(g.Activations), len(g.Alphas),
		len(g.LearningRates), len(g.MaxIters), len(g.Beta1s), len(g.Beta2s),
	}
}

// pick applies the i-th value of each non-empty dimension onto base.
// A negative index for a dimension keeps the base value.
func (g Grid) pick(base Config, idx []int) Config {
	cfg := base
	if i := idx[0]; i >= 0 {
		cfg.HiddenSizes = g.HiddenSizes[i]
	}
	if i := idx[1]; i >= 0 {
		cfg.Activation = g.Activations[i]
	}
	if i := idx[2]; i >= 0 {
		cfg.Alpha = g.Alphas[i]
	}
	if i := idx[3]; i >= 0 {
		cfg.LearningRate = g.LearningRates[i]
	}
	if i := idx[4]; i >= 0 {
		cfg.Epochs = g.MaxIters[i]
	}
	if i := idx[5]; i >= 0 {
		cfg.Beta1 = g.Beta1s[i]
	}
	if i := idx[6]; i >= 0 {
		cfg.Beta2 = g.Beta2s[i]
	}
	return cfg
}

// Configs enumerates the full cartesian product of the grid applied to base.
func (g Grid) Configs(base Config) []Config {
	dims := g.dims()
	idx := make([]int, len(dims))
	for d := range idx {
		if dims[d] == 0 {
			idx[d] = -1
		}
	}

	out := make([]Config, 0, g.size())
	for {
		out = append(out, g.pick(base, idx))

		// advance the mixed-radix counter, skipping empty dimensions
		d := len(dims) - 1
		for d >= 0 {
			if dims[d] == 0 {
				d--
				continue
			}
			idx[d]++
			if idx[d] < dims[d] {
				break
			}
			idx[d] = 0
			d--
		}
		if d < 0 {
			return out
		}
	}
}

// sample draws one random combination from the grid applied to base.
func (g Grid) sample(base Config, rng *rand.Rand) Config {
	dims := g.dims()
	idx := make([]int, len(dims))
	for d := range idx {
		if dims[d] == 0 {
			idx[d] = -1
		} else {
			idx[d] = rng.Intn(dims[d])
		}
	}
	return g.pick(base, idx)
}

// SearchResult holds the validation score of one candidate configuration.
type SearchResult struct {
	Config   Config
	Accuracy float64
	Loss     float64
}

// Search trains one model per candidate config on train, scores it on val,
// and returns results sorted by validation accuracy (best first). Candidates
// are evaluated by a worker pool; each worker owns its model, and the
// datasets are only read.
func Search(candidates []Config, train, val Dataset, workers int) ([]SearchResult, error) {
	if len(candidates) == 0 {
		return nil, errors.New("no candidate configurations")
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, len(candidates))

	results := make([]SearchResult, len(candidates))
	jobs := make(chan int, len(candidates))
	errCh := make(chan error, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for pos := range jobs {
				cfg := candidates[pos]
				model, err := NewModel(cfg)
				if err != nil {
					errCh <- fmt.Errorf("candidate %d: %w", pos, err)
					return
				}
				session, err := NewSession(model, train)
				if err != nil {
					errCh <- fmt.Errorf("candidate %d: %w", pos, err)
					return
				}
				session.ReportEvery = 0
				if err := session.Train(cfg.Epochs); err != nil {
					errCh <- fmt.Errorf("candidate %d: %w", pos, err)
					return
				}
				loss, acc, err := session.Evaluate(val)
				if err != nil {
					errCh <- fmt.Errorf("candidate %d: %w", pos, err)
					return
				}
				results[pos] = SearchResult{Config: cfg, Accuracy: acc, Loss: loss}
				log.Printf("[search] candidate %d/%d: accuracy=%.4f loss=%.4f",
					pos+1, len(candidates), acc, loss)
			}
		}()
	}

	for i := range candidates {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Accuracy > results[j].Accuracy
	})
	return results, nil
}

// GridSearch evaluates the full cartesian product of the grid.
func GridSearch(g Grid, base Config, train, val Dataset, workers int) ([]SearchResult, error) {
	return Search(g.Configs(base), train, val, workers)
}

// RandomSearch evaluates n configurations drawn uniformly from the grid,
// the randomized counterpart to GridSearch for large search spaces.
func RandomSearch(g Grid, base Config, train, val Dataset, n int, seed int64, workers int) ([]SearchResult, error) {
	if n <= 0 {
		return nil, errors.New("random search needs a positive sample count")
	}
	rng := rand.New(rand.NewSource(seed))
	candidates := make([]Config, n)
	for i := range n {
		candidates[i] = g.sample(base, rng)
	}
	return Search(candidates, train, val, workers)
}
