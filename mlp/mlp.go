package mlp

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Config holds configurable hyperparameters for the MLP classifier and its
// training loop.
type Config struct {
	// HiddenSizes is the list of hidden layer sizes. Example: []int{64, 32}
	// If empty, a single hidden layer of size 64 will be used.
	HiddenSizes []int

	// InputDim is the dimensionality of the input feature vector. Required.
	InputDim int

	// NumClasses is the size of the output layer. Required, at least 2.
	NumClasses int

	// Activation applied on hidden layers: "relu", "tanh" or "logistic".
	// Default: "relu".
	Activation string

	// LearningRate used by the optimizer (SGD or Adam).
	LearningRate float64

	// Alpha is the L2 penalty strength. Zero disables regularization.
	Alpha float64

	// Epochs to train for (default if 0 will be set by NewModel to 10).
	Epochs int

	// BatchSize for mini-batch updates (default if 0 will be set by NewModel to 8).
	BatchSize int

	// MaxSteps caps the number of optimizer steps across all epochs.
	// Zero means no cap.
	MaxSteps int

	// ReportEvery controls how often the session logs step metrics.
	// Zero disables reporting.
	ReportEvery int

	// Seed controls RNG for weight init and shuffling. If zero, time-based seed is used.
	Seed int64

	// Optimizer selects the optimizer to use: "adam" or "sgd". Default: "adam".
	Optimizer string

	// Adam hyperparameters (used when Optimizer == "adam"; defaults below if zero).
	Beta1   float64
	Beta2   float64
	Epsilon float64

	// ClipNorm is the per-layer gradient clipping threshold. If zero a
	// sensible default is used.
	ClipNorm float64
}

// Dataset is the minimal interface this package requires from a training
// dataset. This keeps mlp decoupled from the concrete datasets package while
// allowing callers to adapt the repository's Subset (it matches these
// methods after a float32 -> float64 conversion).
type Dataset interface {
	Len() int
	// Batch returns feature rows and class labels for the provided indices.
	Batch(indices []int) ([][]float64, []int, error)
}

// Model is a small configurable MLP classifier: hidden layers with a chosen
// activation, a linear output layer, and softmax cross-entropy loss. It is
// implemented in pure Go so tests run quickly and deterministically.
type Model struct {
	// Config used for training / initialization.
	Config Config

	// layerSizes includes input size, hidden sizes, then the class count.
	layerSizes []int

	// weights[l] is a matrix of shape [out][in] for layer l -> l+1
	weights [][][]float64

	// biases[l] is a vector of length out for layer l -> l+1
	biases [][]float64

	// Adam moment estimates, allocated lazily on the first Adam step.
	adamMW, adamVW [][][]float64
	adamMB, adamVB [][]float64
	adamT          int

	// rng used for weight initialization and shuffling
	rng *rand.Rand
}

// NewModel creates a new Model instance with the provided configuration.
// It initializes weights (small random values) and is ready to train.
func NewModel(cfg Config) (*Model, error) {
	if cfg.InputDim <= 0 {
		return nil, errors.New("input dimension must be positive")
	}
	if cfg.NumClasses < 2 {
		return nil, errors.New("classifier needs at least 2 classes")
	}

	// defaults
	if len(cfg.HiddenSizes) == 0 {
		cfg.HiddenSizes = []int{64}
	}
	if cfg.Activation == "" {
		cfg.Activation = "relu"
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = 0.001
	}
	if cfg.Epochs == 0 {
		cfg.Epochs = 10
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 8
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if cfg.Optimizer == "" {
		cfg.Optimizer = "adam"
	}
	if cfg.Beta1 == 0 {
		cfg.Beta1 = 0.9
	}
	if cfg.Beta2 == 0 {
		cfg.Beta2 = 0.999
	}
	if cfg.Epsilon == 0 {
		cfg.Epsilon = 1e-8
	}
	if cfg.ClipNorm == 0 {
		cfg.ClipNorm = 5.0
	}

	switch cfg.Activation {
	case "relu", "tanh", "logistic":
	default:
		return nil, fmt.Errorf("unknown activation %q", cfg.Activation)
	}
	switch cfg.Optimizer {
	case "adam", "sgd":
	default:
		return nil, fmt.Errorf("unknown optimizer %q", cfg.Optimizer)
	}

	m := &Model{
		Config: cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}

	sizes := make([]int, 0, 2+len(cfg.HiddenSizes))
	sizes = append(sizes, cfg.InputDim)
	sizes = append(sizes, cfg.HiddenSizes...)
	sizes = append(sizes, cfg.NumClasses)
	m.layerSizes = sizes

	L := len(sizes) - 1
	m.weights = make([][][]float64, L)
	m.biases = make([][]float64, L)
	for l := range L {
		in := sizes[l]
		out := sizes[l+1]
		mat := make([][]float64, out)
		// Xavier/Glorot uniform initialization heuristic
		limit := math.Sqrt(6.0 / float64(in+out))
		for j := range out {
			row := make([]float64, in)
			for i := range in {
				row[i] = (m.rng.Float64()*2.0 - 1.0) * limit
			}
			mat[j] = row
		}
		m.weights[l] = mat
		m.biases[l] = make([]float64, out)
	}

	return m, nil
}

// NumClasses returns the size of the model's output layer.
func (m *Model) NumClasses() int {
	return m.layerSizes[len(m.layerSizes)-1]
}

// applyActivation applies the configured hidden activation in-place.
func applyActivation(name string, x []float64) {
	switch name {
	case "relu":
		for i := range x {
			if x[i] < 0 {
				x[i] = 0
			}
		}
	case "tanh":
		for i := range x {
			x[i] = math.Tanh(x[i])
		}
	case "logistic":
		for i := range x {
			x[i] = 1.0 / (1.0 + math.Exp(-x[i]))
		}
	}
}

// activationDeriv returns the elementwise activation derivative evaluated at
// the pre-activation values.
func activationDeriv(name string, preact []float64) []float64 {
	d := make([]float64, len(preact))
	switch name {
	case "relu":
		for i, v := range preact {
			if v > 0 {
				d[i] = 1.0
			}
		}
	case "tanh":
		for i, v := range preact {
			th := math.Tanh(v)
			d[i] = 1.0 - th*th
		}
	case "logistic":
		for i, v := range preact {
			s := 1.0 / (1.0 + math.Exp(-v))
			d[i] = s * (1.0 - s)
		}
	}
	return d
}

// softmax returns the normalized class distribution for a logit vector,
// shifted by the max logit for numerical stability.
func softmax(logits []float64) []float64 {
	p := make([]float64, len(logits))
	maxLogit := floats.Max(logits)
	for i, v := range logits {
		p[i] = math.Exp(v - maxLogit)
	}
	total := floats.Sum(p)
	floats.Scale(1.0/total, p)
	return p
}

// forwardSingle performs a forward pass for a single input vector, returning:
// - preActivations: list of pre-activation vectors per layer (len = L)
// - activations: list of activation vectors per layer (len = L+1, activations[0] = input)
// The output layer stays linear; softmax is applied at the loss.
func (m *Model) forwardSingle(input []float64) (preActs [][]float64, acts [][]float64, err error) {
	if len(input) != m.layerSizes[0] {
		return nil, nil, fmt.Errorf("input has dimension %d, model expects %d", len(input), m.layerSizes[0])
	}
	L := len(m.weights)
	acts = make([][]float64, L+1)
	acts[0] = input

	preActs = make([][]float64, L)
	for l := range L {
		inVec := acts[l]
		outDim := len(m.biases[l])
		pre := make([]float64, outDim)
		W := m.weights[l]
		b := m.biases[l]
		for j := range outDim {
			pre[j] = floats.Dot(W[j], inVec) + b[j]
		}
		preActs[l] = pre

		act := make([]float64, outDim)
		copy(act, pre)
		if l < L-1 {
			applyActivation(m.Config.Activation, act)
		}
		acts[l+1] = act
	}
	return preActs, acts, nil
}

// Logits returns the raw output-layer values for a batch of inputs.
func (m *Model) Logits(inputs [][]float64) ([][]float64, error) {
	out := make([][]float64, len(inputs))
	for i, in := range inputs {
		_, acts, err := m.forwardSingle(in)
		if err != nil {
			return nil, err
		}
		out[i] = acts[len(acts)-1]
	}
	return out, nil
}

// PredictProba returns softmax class probabilities for a batch of inputs.
func (m *Model) PredictProba(inputs [][]float64) ([][]float64, error) {
	logits, err := m.Logits(inputs)
	if err != nil {
		return nil, err
	}
	probs := make([][]float64, len(logits))
	for i, lg := range logits {
		probs[i] = softmax(lg)
	}
	return probs, nil
}

// Predict returns the argmax class index per input.
func (m *Model) Predict(inputs [][]float64) ([]int, error) {
	logits, err := m.Logits(inputs)
	if err != nil {
		return nil, err
	}
	preds := make([]int, len(logits))
	for i, lg := range logits {
		preds[i] = floats.MaxIdx(lg)
	}
	return preds, nil
}

// EvalBatch computes per-example cross-entropy losses and predictions for a
// labeled batch without updating the model.
func (m *Model) EvalBatch(inputs [][]float64, labels []int) (losses []float64, preds []int, err error) {
	if len(inputs) != len(labels) {
		return nil, nil, fmt.Errorf("inputs and labels batch sizes don't match: %d != %d", len(inputs), len(labels))
	}
	losses = make([]float64, len(inputs))
	preds = make([]int, len(inputs))
	for i, in := range inputs {
		if labels[i] < 0 || labels[i] >= m.NumClasses() {
			return nil, nil, fmt.Errorf("label %d outside class range [0, %d)", labels[i], m.NumClasses())
		}
		_, acts, err := m.forwardSingle(in)
		if err != nil {
			return nil, nil, err
		}
		p := softmax(acts[len(acts)-1])
		losses[i] = -math.Log(math.Max(p[labels[i]], 1e-300))
		preds[i] = floats.MaxIdx(p)
	}
	return losses, preds, nil
}

// TrainBatch accumulates cross-entropy gradients over the mini-batch and
// applies one averaged optimizer step (Adam or SGD), with L2 penalty and
// per-layer gradient-norm clipping. It returns the mean loss and the number
// of correct argmax predictions before the update.
func (m *Model) TrainBatch(inputs [][]float64, labels []int) (loss float64, correct int, err error) {
	if len(inputs) != len(labels) {
		return 0, 0, fmt.Errorf("inputs and labels batch sizes don't match: %d != %d", len(inputs), len(labels))
	}
	batchN := len(inputs)
	if batchN == 0 {
		return 0, 0, nil
	}

	L := len(m.weights)
	gradW := make([][][]float64, L)
	gradB := make([][]float64, L)
	for l := range L {
		outDim := len(m.biases[l])
		inDim := len(m.weights[l][0])
		gradW[l] = make([][]float64, outDim)
		for j := range outDim {
			gradW[l][j] = make([]float64, inDim)
		}
		gradB[l] = make([]float64, outDim)
	}

	var lossSum float64
	for ex := range batchN {
		in := inputs[ex]
		label := labels[ex]
		if label < 0 || label >= m.NumClasses() {
			return 0, 0, fmt.Errorf("label %d outside class range [0, %d)", label, m.NumClasses())
		}

		preacts, acts, err := m.forwardSingle(in)
		if err != nil {
			return 0, 0, err
		}

		p := softmax(acts[len(acts)-1])
		lossSum += -math.Log(math.Max(p[label], 1e-300))
		if floats.MaxIdx(p) == label {
			correct++
		}

		// dLoss/dLogits for softmax cross-entropy: p - onehot(label)
		delta := make([]float64, len(p))
		copy(delta, p)
		delta[label] -= 1.0

		for l := L - 1; l >= 0; l-- {
			inAct := acts[l]
			outDim := len(delta)
			for j := range outDim {
				gradB[l][j] += delta[j]
				floats.AddScaled(gradW[l][j], delta[j], inAct)
			}

			if l > 0 {
				prevLen := len(m.weights[l][0])
				newDelta := make([]float64, prevLen)
				for i := range prevLen {
					sum := 0.0
					for j := range outDim {
						sum += m.weights[l][j][i] * delta[j]
					}
					newDelta[i] = sum
				}
				deriv := activationDeriv(m.Config.Activation, preacts[l-1])
				floats.Mul(newDelta, deriv)
				delta = newDelta
			}
		}
	}

	bInv := 1.0 / float64(batchN)
	for l := range L {
		outDim := len(m.biases[l])
		for j := range outDim {
			floats.Scale(bInv, gradW[l][j])
			gradB[l][j] *= bInv
			if m.Config.Alpha > 0 {
				floats.AddScaled(gradW[l][j], m.Config.Alpha, m.weights[l][j])
			}
		}
		m.clipLayer(gradW[l], gradB[l])
	}

	switch m.Config.Optimizer {
	case "sgd":
		m.stepSGD(gradW, gradB)
	default:
		m.stepAdam(gradW, gradB)
	}

	return lossSum * bInv, correct, nil
}

// clipLayer rescales one layer's gradients when their joint L2 norm exceeds
// the configured clipping threshold.
func (m *Model) clipLayer(gradW [][]float64, gradB []float64) {
	clip := m.Config.ClipNorm
	if clip <= 0 {
		return
	}
	var sq float64
	for _, row := range gradW {
		n := floats.Norm(row, 2)
		sq += n * n
	}
	n := floats.Norm(gradB, 2)
	sq += n * n
	norm := math.Sqrt(sq)
	if norm <= clip {
		return
	}
	scale := clip / norm
	for _, row := range gradW {
		floats.Scale(scale, row)
	}
	floats.Scale(scale, gradB)
}

func (m *Model) stepSGD(gradW [][][]float64, gradB [][]float64) {
	lr := m.Config.LearningRate
	for l := range m.weights {
		for j := range m.weights[l] {
			floats.AddScaled(m.weights[l][j], -lr, gradW[l][j])
		}
		floats.AddScaled(m.biases[l], -lr, gradB[l])
	}
}

func (m *Model) stepAdam(gradW [][][]float64, gradB [][]float64) {
	if m.adamMW == nil {
		m.adamMW = zerosLike3(m.weights)
		m.adamVW = zerosLike3(m.weights)
		m.adamMB = zerosLike2(m.biases)
		m.adamVB = zerosLike2(m.biases)
	}
	m.adamT++
	b1 := m.Config.Beta1
	b2 := m.Config.Beta2
	eps := m.Config.Epsilon
	lr := m.Config.LearningRate
	c1 := 1.0 - math.Pow(b1, float64(m.adamT))
	c2 := 1.0 - math.Pow(b2, float64(m.adamT))

	for l := range m.weights {
		for j := range m.weights[l] {
			for i := range m.weights[l][j] {
				g := gradW[l][j][i]
				m.adamMW[l][j][i] = b1*m.adamMW[l][j][i] + (1.0-b1)*g
				m.adamVW[l][j][i] = b2*m.adamVW[l][j][i] + (1.0-b2)*g*g
				mHat := m.adamMW[l][j][i] / c1
				vHat := m.adamVW[l][j][i] / c2
				m.weights[l][j][i] -= lr * mHat / (math.Sqrt(vHat) + eps)
			}
		}
		for j := range m.biases[l] {
			g := gradB[l][j]
			m.adamMB[l][j] = b1*m.adamMB[l][j] + (1.0-b1)*g
			m.adamVB[l][j] = b2*m.adamVB[l][j] + (1.0-b2)*g*g
			mHat := m.adamMB[l][j] / c1
			vHat := m.adamVB[l][j] / c2
			m.biases[l][j] -= lr * mHat / (math.Sqrt(vHat) + eps)
		}
	}
}

func zerosLike3(w [][][]float64) [][][]float64 {
	out := make([][][]float64, len(w))
	for l := range w {
		out[l] = make([][]float64, len(w[l]))
		for j := range w[l] {
			out[l][j] = make([]float64, len(w[l][j]))
		}
	}
	return out
}

func zerosLike2(b [][]float64) [][]float64 {
	out := make([][]float64, len(b))
	for l := range b {
		out[l] = make([]float64, len(b[l]))
	}
	return out
}
