package datasets

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// BatchFlat stores a batch of feature rows and class labels in flat
// contiguous buffers, ready for tensor conversion.
type BatchFlat struct {
	Inputs    []float32
	Labels    []int32
	BatchSize int
	InputDim  int
}

// MakeBatchFlat flattens a batch into contiguous buffers, validating that
// every row has the same dimension.
func MakeBatchFlat(inputs [][]float32, labels []int) (*BatchFlat, error) {
	if len(inputs) != len(labels) {
		return nil, fmt.Errorf("inputs and labels batch sizes don't match: %d != %d", len(inputs), len(labels))
	}
	if len(inputs) == 0 {
		return &BatchFlat{}, nil
	}

	batchSize := len(inputs)
	inputDim := len(inputs[0])

	flatInputs := make([]float32, batchSize*inputDim)
	flatLabels := make([]int32, batchSize)

	for i := range batchSize {
		if len(inputs[i]) != inputDim {
			return nil, fmt.Errorf("inconsistent input dimensions at example %d: expected %d, got %d",
				i, inputDim, len(inputs[i]))
		}
		copy(flatInputs[i*inputDim:], inputs[i])
		flatLabels[i] = int32(labels[i])
	}

	return &BatchFlat{
		Inputs:    flatInputs,
		Labels:    flatLabels,
		BatchSize: batchSize,
		InputDim:  inputDim,
	}, nil
}

// ToGomlxTensors converts the flat batch to gomlx tensors: inputs as a
// [batch, dim] float32 tensor, labels as a [batch] int32 tensor.
func (b *BatchFlat) ToGomlxTensors() (*tensors.Tensor, *tensors.Tensor, error) {
	// handle empty batch gracefully
	if b.BatchSize == 0 || b.InputDim == 0 {
		emptyInputs := make([][]float32, 0)
		emptyLabels := make([]int32, 0)
		return tensors.FromAnyValue(emptyInputs), tensors.FromAnyValue(emptyLabels), nil
	}

	inputs := make([][]float32, b.BatchSize)
	for i := range b.BatchSize {
		inputs[i] = b.Inputs[i*b.InputDim : (i+1)*b.InputDim]
	}
	return tensors.FromAnyValue(inputs), tensors.FromAnyValue(b.Labels), nil
}

// Tensors reads a batch of rows from the subset and returns them as gomlx
// tensors, flattening any multi-dimensional feature shape.
func (s *Subset) Tensors(indices []int) (*tensors.Tensor, *tensors.Tensor, error) {
	inputs, labels, err := s.Batch(indices)
	if err != nil {
		return nil, nil, err
	}
	flat, err := MakeBatchFlat(inputs, labels)
	if err != nil {
		return nil, nil, err
	}
	return flat.ToGomlxTensors()
}
