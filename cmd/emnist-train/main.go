package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/wishml/emnist/datasets"
	"github.com/wishml/emnist/mlp"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// defaultConfigJSON is the embedded JSON used to create config.json when the
// user did not provide a --config path. We write this file as a convenience so
// the default configuration is available on disk; explicit CLI flags always
// override JSON values.
const defaultConfigJSON = `{
  "dataset": {
    "label_order": "reorder",
    "train_fraction": 1.0,
    "test_fraction": 1.0
  },
  "training": {
    "hidden_sizes": [64],
    "activation": "relu",
    "optimizer": "adam",
    "learning_rate": 0.001,
    "alpha": 0.0001,
    "epochs": 10,
    "batch_size": 8,
    "max_steps": 0,
    "report_every": 100,
    "adam_beta1": 0.9,
    "adam_beta2": 0.999,
    "adam_eps": 1e-8,
    "clip_norm": 5.0
  },
  "search": {
    "workers": 0
  }
}
`

// subsetData adapts datasets.Subset to the mlp.Dataset interface, widening
// features to float64 for the solver.
type subsetData struct {
	sub *datasets.Subset
}

func (s *subsetData) Len() int { return s.sub.Len() }

func (s *subsetData) Batch(indices []int) ([][]float64, []int, error) {
	x, y, err := s.sub.Batch(indices)
	if err != nil {
		return nil, nil, err
	}
	inputs := make([][]float64, len(x))
	for i, row := range x {
		wide := make([]float64, len(row))
		for j, v := range row {
			wide[j] = float64(v)
		}
		inputs[i] = wide
	}
	return inputs, y, nil
}

// parseHidden parses a comma-separated layer size list like "64,32".
func parseHidden(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	sizes := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid hidden layer size %q: %w", p, err)
		}
		if n <= 0 {
			return nil, fmt.Errorf("hidden layer size must be positive, got %d", n)
		}
		sizes = append(sizes, n)
	}
	return sizes, nil
}

func main() {
	// CLI flags
	archivePath := flag.String("archive", "data/emnist.gob", "path to the dataset archive")
	labelOrder := flag.String("label-order", "reorder", "label order policy: 'shift', 'reorder', or empty for none")
	trainFraction := flag.Float64("train-fraction", 1.0, "fraction of training examples to sample (0 < f <= 1)")
	testFraction := flag.Float64("test-fraction", 1.0, "fraction of test examples to sample (0 < f <= 1)")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed")

	// Training tunables
	hiddenFlag := flag.String("hidden", "64", "comma-separated hidden layer sizes, e.g. '64,32'")
	activation := flag.String("activation", "relu", "activation function: 'relu', 'tanh', or 'logistic'")
	optimizer := flag.String("optimizer", "adam", "optimizer to use for training: 'adam' or 'sgd'")
	learningRate := flag.Float64("learning-rate", 0.001, "learning rate for training (overrides JSON if provided)")
	alpha := flag.Float64("alpha", 1e-4, "L2 regularization strength")
	epochs := flag.Int("epochs", 10, "number of training epochs (overrides JSON if provided)")
	batchSize := flag.Int("batch-size", 8, "training batch size (overrides JSON if provided)")
	maxSteps := flag.Int("max-steps", 0, "stop training after this many optimizer steps (0 = no cutoff)")
	reportEvery := flag.Int("report-every", 100, "log training metrics every N steps (0 = silent)")
	adamBeta1 := flag.Float64("adam-beta1", 0.9, "Adam beta1 hyperparameter")
	adamBeta2 := flag.Float64("adam-beta2", 0.999, "Adam beta2 hyperparameter")
	adamEps := flag.Float64("adam-eps", 1e-8, "Adam epsilon hyperparameter")
	clipNorm := flag.Float64("clip-norm", 5.0, "gradient clipping norm")

	// Hyperparameter search
	gridSearch := flag.Bool("grid-search", false, "run an exhaustive grid search before training")
	randomSearch := flag.Int("random-search", 0, "run a randomized search with N candidates before training (0 = off)")
	gridConfig := flag.String("grid-config", "", "path to JSON grid definition (optional, defaults to the built-in grid)")
	searchWorkers := flag.Int("search-workers", 0, "worker pool size for hyperparameter search (0 = NumCPU)")

	// Outputs
	configPath := flag.String("config", "", "path to JSON configuration file (optional)")
	outDir := flag.String("out", "plots", "output directory for generated plots")
	outCSV := flag.String("out-csv", "", "if set, write per-example test evaluation CSV to this path")
	printEffectiveConfig := flag.Bool("print-effective-config", false, "print the effective (JSON+CLI merged) configuration and exit")

	flag.Parse()

	// Configuration file behavior: if the user supplied -config, load that
	// file. Otherwise ensure a default config.json exists on disk (created
	// from embedded defaults) and load it. JSON values apply only where the
	// corresponding CLI flag was left at its default.
	effectiveConfigPath := strings.TrimSpace(*configPath)
	if effectiveConfigPath == "" {
		defaultPath := "config.json"
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			if werr := os.WriteFile(defaultPath, []byte(defaultConfigJSON), 0644); werr != nil {
				log.Printf("warning: failed to write default config to %s: %v", defaultPath, werr)
			} else {
				log.Printf("Wrote default config to %s", defaultPath)
			}
		}
		effectiveConfigPath = defaultPath
	}

	hiddenSizes, err := parseHidden(*hiddenFlag)
	if err != nil {
		log.Fatalf("invalid -hidden: %v", err)
	}

	if data, err := os.ReadFile(effectiveConfigPath); err == nil {
		var raw struct {
			Dataset *struct {
				LabelOrder    *string  `json:"label_order"`
				TrainFraction *float64 `json:"train_fraction"`
				TestFraction  *float64 `json:"test_fraction"`
			} `json:"dataset"`
			Training *struct {
				HiddenSizes  []int    `json:"hidden_sizes"`
				Activation   *string  `json:"activation"`
				Optimizer    *string  `json:"optimizer"`
				LearningRate *float64 `json:"learning_rate"`
				Alpha        *float64 `json:"alpha"`
				Epochs       *int     `json:"epochs"`
				BatchSize    *int     `json:"batch_size"`
				MaxSteps     *int     `json:"max_steps"`
				ReportEvery  *int     `json:"report_every"`
				AdamBeta1    *float64 `json:"adam_beta1"`
				AdamBeta2    *float64 `json:"adam_beta2"`
				AdamEps      *float64 `json:"adam_eps"`
				ClipNorm     *float64 `json:"clip_norm"`
			} `json:"training"`
			Search *struct {
				Workers *int `json:"workers"`
			} `json:"search"`
		}
		if jerr := json.Unmarshal(data, &raw); jerr == nil {
			if raw.Dataset != nil {
				d := raw.Dataset
				if d.LabelOrder != nil && *labelOrder == "reorder" {
					*labelOrder = *d.LabelOrder
				}
				if d.TrainFraction != nil && *trainFraction == 1.0 {
					*trainFraction = *d.TrainFraction
				}
				if d.TestFraction != nil && *testFraction == 1.0 {
					*testFraction = *d.TestFraction
				}
			}
			if raw.Training != nil {
				t := raw.Training
				if len(t.HiddenSizes) > 0 && *hiddenFlag == "64" {
					hiddenSizes = t.HiddenSizes
				}
				if t.Activation != nil && *activation == "relu" {
					*activation = *t.Activation
				}
				if t.Optimizer != nil && *optimizer == "adam" {
					*optimizer = *t.Optimizer
				}
				if t.LearningRate != nil && *learningRate == 0.001 {
					*learningRate = *t.LearningRate
				}
				if t.Alpha != nil && *alpha == 1e-4 {
					*alpha = *t.Alpha
				}
				if t.Epochs != nil && *epochs == 10 {
					*epochs = *t.Epochs
				}
				if t.BatchSize != nil && *batchSize == 8 {
					*batchSize = *t.BatchSize
				}
				if t.MaxSteps != nil && *maxSteps == 0 {
					*maxSteps = *t.MaxSteps
				}
				if t.ReportEvery != nil && *reportEvery == 100 {
					*reportEvery = *t.ReportEvery
				}
				if t.AdamBeta1 != nil && *adamBeta1 == 0.9 {
					*adamBeta1 = *t.AdamBeta1
				}
				if t.AdamBeta2 != nil && *adamBeta2 == 0.999 {
					*adamBeta2 = *t.AdamBeta2
				}
				if t.AdamEps != nil && *adamEps == 1e-8 {
					*adamEps = *t.AdamEps
				}
				if t.ClipNorm != nil && *clipNorm == 5.0 {
					*clipNorm = *t.ClipNorm
				}
			}
			if raw.Search != nil && raw.Search.Workers != nil && *searchWorkers == 0 {
				*searchWorkers = *raw.Search.Workers
			}
		} else {
			log.Printf("warning: failed to parse config from %s: %v", effectiveConfigPath, jerr)
		}
	}

	// Load the dataset archive and sample the requested views.
	log.Printf("Loading dataset archive from %s (label order %q)", *archivePath, *labelOrder)
	ds, err := datasets.NewDataset(*archivePath, datasets.LabelOrder(*labelOrder))
	if err != nil {
		log.Fatalf("failed to load dataset: %v", err)
	}
	ds.Seed(*seed)
	log.Printf("Dataset loaded: train=%d test=%d classes=%d", ds.TrainSize(), ds.TestSize(), ds.NumClasses())

	if *trainFraction < 1.0 {
		if _, err := ds.SampleTrainFraction(*trainFraction); err != nil {
			log.Fatalf("failed to sample training set: %v", err)
		}
		log.Printf("Sampled training set: %d examples", ds.TrainSize())
	}
	if *testFraction < 1.0 {
		if _, err := ds.SampleTestFraction(*testFraction); err != nil {
			log.Fatalf("failed to sample test set: %v", err)
		}
		log.Printf("Sampled test set: %d examples", ds.TestSize())
	}

	train := &subsetData{sub: ds.Train()}
	test := &subsetData{sub: ds.Test()}

	inputDim := 1
	for _, d := range ds.Train().Shape() {
		inputDim *= d
	}

	cfg := mlp.Config{
		HiddenSizes:  hiddenSizes,
		InputDim:     inputDim,
		NumClasses:   ds.NumClasses(),
		Activation:   *activation,
		LearningRate: *learningRate,
		Alpha:        *alpha,
		Epochs:       *epochs,
		BatchSize:    *batchSize,
		MaxSteps:     *maxSteps,
		ReportEvery:  *reportEvery,
		Seed:         *seed,
		Optimizer:    *optimizer,
		Beta1:        *adamBeta1,
		Beta2:        *adamBeta2,
		Epsilon:      *adamEps,
		ClipNorm:     *clipNorm,
	}

	if *printEffectiveConfig {
		fmt.Printf("Dataset:\n")
		fmt.Printf("  archive: %s\n", *archivePath)
		fmt.Printf("  label_order: %s\n", *labelOrder)
		fmt.Printf("  train: %d examples (fraction %.3f)\n", ds.TrainSize(), *trainFraction)
		fmt.Printf("  test: %d examples (fraction %.3f)\n", ds.TestSize(), *testFraction)
		fmt.Printf("  classes: %d, input_dim: %d\n", ds.NumClasses(), inputDim)
		fmt.Printf("Training settings:\n")
		fmt.Printf("  hidden_sizes: %v\n", cfg.HiddenSizes)
		fmt.Printf("  activation: %s\n", cfg.Activation)
		fmt.Printf("  optimizer: %s\n", cfg.Optimizer)
		fmt.Printf("  learning_rate: %f\n", cfg.LearningRate)
		fmt.Printf("  alpha: %f\n", cfg.Alpha)
		fmt.Printf("  epochs: %d\n", cfg.Epochs)
		fmt.Printf("  batch_size: %d\n", cfg.BatchSize)
		fmt.Printf("  max_steps: %d\n", cfg.MaxSteps)
		fmt.Printf("  adam_beta1: %f\n", cfg.Beta1)
		fmt.Printf("  adam_beta2: %f\n", cfg.Beta2)
		fmt.Printf("  adam_eps: %g\n", cfg.Epsilon)
		fmt.Printf("  clip_norm: %f\n", cfg.ClipNorm)
		os.Exit(0)
	}

	// Optional hyperparameter search: the best candidate becomes the
	// training configuration.
	if *gridSearch || *randomSearch > 0 {
		grid := mlp.DefaultGrid()
		if strings.TrimSpace(*gridConfig) != "" {
			grid, err = mlp.LoadGrid(*gridConfig)
			if err != nil {
				log.Fatalf("failed to load grid config: %v", err)
			}
			log.Printf("Loaded grid config from %s", *gridConfig)
		}

		var results []mlp.SearchResult
		start := time.Now()
		if *randomSearch > 0 {
			log.Printf("Running randomized search over %d candidates...", *randomSearch)
			results, err = mlp.RandomSearch(grid, cfg, train, test, *randomSearch, *seed, *searchWorkers)
		} else {
			candidates := grid.Configs(cfg)
			log.Printf("Running grid search over %d candidates...", len(candidates))
			results, err = mlp.Search(candidates, train, test, *searchWorkers)
		}
		if err != nil {
			log.Fatalf("hyperparameter search failed: %v", err)
		}
		log.Printf("Search completed in %v", time.Since(start))

		top := min(5, len(results))
		for i := range top {
			r := results[i]
			log.Printf("  #%d accuracy=%.4f loss=%.4f hidden=%v activation=%s lr=%g alpha=%g",
				i+1, r.Accuracy, r.Loss, r.Config.HiddenSizes, r.Config.Activation,
				r.Config.LearningRate, r.Config.Alpha)
		}
		cfg = results[0].Config
		log.Printf("Training final model with the best candidate")
	}

	// Train the final model.
	model, err := mlp.NewModel(cfg)
	if err != nil {
		log.Fatalf("failed to create model: %v", err)
	}
	session, err := mlp.NewSession(model, train)
	if err != nil {
		log.Fatalf("failed to create training session: %v", err)
	}

	start := time.Now()
	log.Printf("Training on %d examples (epochs=%d, batch=%d)...", train.Len(), cfg.Epochs, cfg.BatchSize)
	if err := session.Train(cfg.Epochs); err != nil {
		log.Fatalf("training failed: %v", err)
	}
	log.Printf("Training completed in %v (%d steps)", time.Since(start), session.GlobalStep())

	testLoss, testAcc, err := session.Evaluate(test)
	if err != nil {
		log.Fatalf("evaluation failed: %v", err)
	}
	log.Printf("Test set: loss = %.5f, accuracy = %.5f", testLoss, testAcc)

	if *outCSV != "" {
		if err := writeEvalCSV(*outCSV, model, ds, cfg.BatchSize); err != nil {
			log.Fatalf("failed to write evaluation CSV: %v", err)
		}
		log.Printf("Evaluation CSV written to %s", *outCSV)
	}

	if err := plotTraining(*outDir, session.History); err != nil {
		log.Fatalf("failed to generate training plots: %v", err)
	}
	if err := plotLabelHist(*outDir, ds); err != nil {
		log.Fatalf("failed to generate label histogram: %v", err)
	}
	log.Printf("Plots written to %s", *outDir)
}

// writeEvalCSV evaluates the model on the test view and writes one row per
// example: index, encoded and decoded labels, encoded and decoded predictions,
// correctness, and per-example cross-entropy loss.
func writeEvalCSV(path string, model *mlp.Model, ds *datasets.Dataset, batchSize int) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"idx", "label", "label_decoded", "pred", "pred_decoded", "correct", "loss"}); err != nil {
		return err
	}

	test := &subsetData{sub: ds.Test()}
	dec := ds.Decoder()
	if batchSize <= 0 {
		batchSize = 32
	}

	n := test.Len()
	for startIdx := 0; startIdx < n; startIdx += batchSize {
		end := min(startIdx+batchSize, n)
		indices := make([]int, 0, end-startIdx)
		for i := startIdx; i < end; i++ {
			indices = append(indices, i)
		}
		inputs, labels, err := test.Batch(indices)
		if err != nil {
			return err
		}
		losses, preds, err := model.EvalBatch(inputs, labels)
		if err != nil {
			return err
		}
		for bi := range indices {
			labelDec, err := dec.Decode(labels[bi])
			if err != nil {
				return fmt.Errorf("decode label %d: %w", labels[bi], err)
			}
			predDec, err := dec.Decode(preds[bi])
			if err != nil {
				return fmt.Errorf("decode prediction %d: %w", preds[bi], err)
			}
			row := []string{
				strconv.Itoa(indices[bi]),
				strconv.Itoa(labels[bi]),
				strconv.Itoa(labelDec),
				strconv.Itoa(preds[bi]),
				strconv.Itoa(predDec),
				strconv.FormatBool(preds[bi] == labels[bi]),
				strconv.FormatFloat(losses[bi], 'f', 6, 64),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}

	w.Flush()
	return w.Error()
}

// plotTraining writes a PNG with the loss (red) and accuracy (blue) curves
// over training steps.
func plotTraining(outDir string, history []mlp.StepMetrics) error {
	if len(history) == 0 {
		return nil
	}

	lossXY := make(plotter.XYs, 0, len(history))
	accXY := make(plotter.XYs, 0, len(history))
	for _, h := range history {
		lossXY = append(lossXY, plotter.XY{X: float64(h.Step), Y: h.Loss})
		accXY = append(accXY, plotter.XY{X: float64(h.Step), Y: h.Accuracy})
	}

	p := plot.New()
	p.Title.Text = "Training: loss (red), accuracy (blue)"
	p.X.Label.Text = "step"
	p.Add(plotter.NewGrid())

	lossLine, err := plotter.NewLine(lossXY)
	if err != nil {
		return err
	}
	lossLine.Color = color.RGBA{R: 200, G: 30, B: 30, A: 255}
	lossLine.Width = vg.Points(1)
	p.Add(lossLine)
	p.Legend.Add("loss", lossLine)

	accLine, err := plotter.NewLine(accXY)
	if err != nil {
		return err
	}
	accLine.Color = color.RGBA{R: 20, G: 80, B: 200, A: 255}
	accLine.Width = vg.Points(1)
	p.Add(accLine)
	p.Legend.Add("accuracy", accLine)

	if err := ensureDir(outDir); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 6*vg.Inch, filepath.Join(outDir, "training_curves.png"))
}

// plotLabelHist writes a histogram of the decoded training labels, a quick
// visual check that classes are balanced and decoding is sane.
func plotLabelHist(outDir string, ds *datasets.Dataset) error {
	labels := ds.Train().Y()
	if len(labels) == 0 {
		return nil
	}
	dec := ds.Decoder()

	vals := make(plotter.Values, 0, len(labels))
	for _, y := range labels {
		orig, err := dec.Decode(y)
		if err != nil {
			return fmt.Errorf("decode label %d: %w", y, err)
		}
		vals = append(vals, float64(orig))
	}

	bins := ds.NumClasses()
	if bins < 1 {
		bins = 1
	}
	h, err := plotter.NewHist(vals, bins)
	if err != nil {
		return err
	}
	h.FillColor = color.RGBA{R: 120, G: 120, B: 200, A: 200}

	p := plot.New()
	p.Title.Text = "Training label distribution"
	p.X.Label.Text = "label"
	p.Y.Label.Text = "count"
	p.Add(h)

	if err := ensureDir(outDir); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 4*vg.Inch, filepath.Join(outDir, "label_hist.png"))
}

func ensureDir(path string) error {
	if path == "" {
		return nil
	}
	return os.MkdirAll(path, 0755)
}
