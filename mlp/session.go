package mlp

import (
	"errors"
	"log"
	"math/rand"

	"gonum.org/v1/gonum/stat"
)

// StepMetrics records the training metrics of a single optimizer step.
type StepMetrics struct {
	Step     int
	Loss     float64
	Accuracy float64
}

// Session drives mini-batch training of a Model over a Dataset: it shuffles
// indices each epoch, keeps a global step counter with an optional max-steps
// cutoff, and logs metrics at the configured report period.
type Session struct {
	Model *Model
	DS    Dataset

	// BatchSize, MaxSteps and ReportEvery default to the model's Config.
	BatchSize   int
	MaxSteps    int
	ReportEvery int

	// History holds the metrics of every completed step, in order.
	History []StepMetrics

	step int
	rng  *rand.Rand
}

// NewSession creates a training session bound to a model and dataset.
func NewSession(m *Model, ds Dataset) (*Session, error) {
	if m == nil {
		return nil, errors.New("model is nil")
	}
	if ds == nil {
		return nil, errors.New("dataset is nil")
	}
	if ds.Len() == 0 {
		return nil, errors.New("dataset has no examples")
	}
	return &Session{
		Model:       m,
		DS:          ds,
		BatchSize:   m.Config.BatchSize,
		MaxSteps:    m.Config.MaxSteps,
		ReportEvery: m.Config.ReportEvery,
		rng:         rand.New(rand.NewSource(m.Config.Seed)),
	}, nil
}

// GlobalStep returns the number of optimizer steps taken so far.
func (s *Session) GlobalStep() int { return s.step }

// Step runs one optimizer step on the rows at the given dataset indices.
// It returns false once the max-steps cutoff is reached, without training.
func (s *Session) Step(indices []int) (bool, error) {
	if s.MaxSteps > 0 && s.step >= s.MaxSteps {
		log.Printf("max steps %d reached", s.MaxSteps)
		return false, nil
	}
	s.step++

	inputs, labels, err := s.DS.Batch(indices)
	if err != nil {
		return false, err
	}
	loss, correct, err := s.Model.TrainBatch(inputs, labels)
	if err != nil {
		return false, err
	}

	acc := 0.0
	if len(labels) > 0 {
		acc = float64(correct) / float64(len(labels))
	}
	s.History = append(s.History, StepMetrics{Step: s.step, Loss: loss, Accuracy: acc})

	if s.ReportEvery > 0 && s.step%s.ReportEvery == 0 {
		log.Printf("step %d, loss = %.5f, accuracy = %.5f", s.step, loss, acc)
	}
	return true, nil
}

// Epoch runs one pass over the dataset in shuffled mini-batches. It stops
// early when the max-steps cutoff is reached.
func (s *Session) Epoch() error {
	n := s.DS.Len()
	batchSize := s.BatchSize
	if batchSize <= 0 {
		batchSize = 8
	}

	indices := make([]int, n)
	for i := range n {
		indices[i] = i
	}
	s.rng.Shuffle(n, func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})

	for start := 0; start < n; start += batchSize {
		end := min(start+batchSize, n)
		cont, err := s.Step(indices[start:end])
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

// Train runs the given number of epochs, honoring the max-steps cutoff.
func (s *Session) Train(epochs int) error {
	if epochs <= 0 {
		epochs = s.Model.Config.Epochs
	}
	for range epochs {
		if s.MaxSteps > 0 && s.step >= s.MaxSteps {
			return nil
		}
		if err := s.Epoch(); err != nil {
			return err
		}
	}
	return nil
}

// Evaluate runs a full forward pass over the dataset and returns the mean
// cross-entropy loss and accuracy. The model is not updated.
func (s *Session) Evaluate(ds Dataset) (loss, acc float64, err error) {
	return Evaluate(s.Model, ds, s.BatchSize)
}

// Evaluate scores a model over an entire dataset in mini-batches.
func Evaluate(m *Model, ds Dataset, batchSize int) (loss, acc float64, err error) {
	if ds == nil || ds.Len() == 0 {
		return 0, 0, errors.New("dataset has no examples")
	}
	if batchSize <= 0 {
		batchSize = 32
	}

	n := ds.Len()
	losses := make([]float64, 0, n)
	hits := make([]float64, 0, n)
	for start := 0; start < n; start += batchSize {
		end := min(start+batchSize, n)
		indices := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			indices = append(indices, i)
		}
		inputs, labels, err := ds.Batch(indices)
		if err != nil {
			return 0, 0, err
		}
		batchLosses, preds, err := m.EvalBatch(inputs, labels)
		if err != nil {
			return 0, 0, err
		}
		losses = append(losses, batchLosses...)
		for i, p := range preds {
			if p == labels[i] {
				hits = append(hits, 1.0)
			} else {
				hits = append(hits, 0.0)
			}
		}
	}
	return stat.Mean(losses, nil), stat.Mean(hits, nil), nil
}
