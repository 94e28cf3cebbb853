package datasets

import (
	"fmt"
	"math/rand"
	"time"
)

// Dataset loads a multi-split archive and exposes a coherent, re-samplable
// train/test pair with consistent label normalization. The full subsets are
// immutable; SampleTrain/SampleTest replace the cached sampled views, which
// start out as aliases of the full splits.
//
// Dataset is not safe for concurrent use: sampling replaces view references
// without synchronization.
type Dataset struct {
	train, test               *Subset
	sampledTrain, sampledTest *Subset
	trainSize, testSize       int
	mapping                   [][]int
	encoder                   Encoder
	decoder                   Decoder
	order                     LabelOrder
	rng                       *rand.Rand
}

// NewDataset loads the archive at path and builds both splits with the
// encoder derived from the label order policy. The shift policy offsets by
// the global minimum label over both splits; reorder fits a categorical
// table on the training labels only; anything else leaves labels unencoded
// (an unrecognized policy logs a warning).
func NewDataset(path string, order LabelOrder) (*Dataset, error) {
	arch, err := LoadArchive(path)
	if err != nil {
		return nil, err
	}
	return newDataset(arch, order)
}

func newDataset(arch *Archive, order LabelOrder) (*Dataset, error) {
	trainLabels := FlattenLabels(arch.Train.Labels)
	testLabels := FlattenLabels(arch.Test.Labels)
	enc, dec := codecFor(order, trainLabels, testLabels)

	train, err := NewSubset(arch.Train.Images, trainLabels, nil, enc)
	if err != nil {
		return nil, fmt.Errorf("build training subset: %w", err)
	}
	test, err := NewSubset(arch.Test.Images, testLabels, nil, enc)
	if err != nil {
		return nil, fmt.Errorf("build testing subset: %w", err)
	}

	return &Dataset{
		train:        train,
		test:         test,
		sampledTrain: train,
		sampledTest:  test,
		trainSize:    train.Len(),
		testSize:     test.Len(),
		mapping:      arch.Mapping,
		encoder:      enc,
		decoder:      dec,
		order:        order,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Seed resets the dataset's sampling source for reproducible sampling.
func (d *Dataset) Seed(seed int64) {
	d.rng = rand.New(rand.NewSource(seed))
}

// SampleTrain replaces the sampled training view with count rows drawn from
// the full training split. Returns the dataset for chaining.
func (d *Dataset) SampleTrain(count int) (*Dataset, error) {
	s, err := d.train.Sample(count, d.rng)
	if err != nil {
		return nil, err
	}
	d.sampledTrain = s
	d.trainSize = s.Len()
	return d, nil
}

// SampleTrainFraction replaces the sampled training view with a fraction of
// the full training split.
func (d *Dataset) SampleTrainFraction(frac float64) (*Dataset, error) {
	s, err := d.train.SampleFraction(frac, d.rng)
	if err != nil {
		return nil, err
	}
	d.sampledTrain = s
	d.trainSize = s.Len()
	return d, nil
}

// SampleTest replaces the sampled testing view with count rows drawn from
// the full testing split. The training view is unaffected.
func (d *Dataset) SampleTest(count int) (*Dataset, error) {
	s, err := d.test.Sample(count, d.rng)
	if err != nil {
		return nil, err
	}
	d.sampledTest = s
	d.testSize = s.Len()
	return d, nil
}

// SampleTestFraction replaces the sampled testing view with a fraction of
// the full testing split.
func (d *Dataset) SampleTestFraction(frac float64) (*Dataset, error) {
	s, err := d.test.SampleFraction(frac, d.rng)
	if err != nil {
		return nil, err
	}
	d.sampledTest = s
	d.testSize = s.Len()
	return d, nil
}

// Train returns the current sampled training view.
func (d *Dataset) Train() *Subset { return d.sampledTrain }

// Test returns the current sampled testing view.
func (d *Dataset) Test() *Subset { return d.sampledTest }

// TrainSize returns the length of the current sampled training view.
func (d *Dataset) TrainSize() int { return d.trainSize }

// TestSize returns the length of the current sampled testing view.
func (d *Dataset) TestSize() int { return d.testSize }

// Encoder returns the active label encoder.
func (d *Dataset) Encoder() Encoder { return d.encoder }

// Decoder returns the active label decoder.
func (d *Dataset) Decoder() Decoder { return d.decoder }

// Mapping returns the archive's class-index mapping table.
func (d *Dataset) Mapping() [][]int { return d.mapping }

// Order returns the label order policy the dataset was built with.
func (d *Dataset) Order() LabelOrder { return d.order }

// NumClasses returns the number of classes, preferring the mapping table and
// falling back to counting distinct training labels.
func (d *Dataset) NumClasses() int {
	if len(d.mapping) > 0 {
		return len(d.mapping)
	}
	uniq := make(map[int]struct{})
	for _, l := range d.train.Y() {
		uniq[l] = struct{}{}
	}
	return len(uniq)
}

// DatasetSnapshot is the serializable form of a Dataset. Besides the full
// subsets and the mapping table it records the label order policy and the
// fitted codec parameters, so reconstruction re-derives the exact
// encoder/decoder pair rather than dropping it.
type DatasetSnapshot struct {
	Train   SubsetSnapshot
	Test    SubsetSnapshot
	Mapping [][]int
	Order   LabelOrder

	// ShiftOffset is set when Order is shift.
	ShiftOffset int
	// Classes is the fitted class table when Order is reorder.
	Classes []int
}

// Snapshot captures the Dataset state for persistence. Sampled views are not
// part of the snapshot: reconstruction starts from the full splits.
func (d *Dataset) Snapshot() DatasetSnapshot {
	snap := DatasetSnapshot{
		Train:   d.train.Snapshot(),
		Test:    d.test.Snapshot(),
		Mapping: d.mapping,
		Order:   d.order,
	}
	switch c := d.encoder.(type) {
	case *ShiftCodec:
		snap.ShiftOffset = c.Offset
	case *ReorderCodec:
		snap.Classes = c.Classes()
	}
	return snap
}

// NewDatasetFromSnapshot rebuilds a Dataset. Subset labels in the snapshot
// are already encoded, so the stored codec parameters restore the
// encoder/decoder pair without re-applying it to the data.
func NewDatasetFromSnapshot(snap DatasetSnapshot) (*Dataset, error) {
	train, err := NewSubsetFromSnapshot(snap.Train)
	if err != nil {
		return nil, fmt.Errorf("restore training subset: %w", err)
	}
	test, err := NewSubsetFromSnapshot(snap.Test)
	if err != nil {
		return nil, fmt.Errorf("restore testing subset: %w", err)
	}

	var enc Encoder
	var dec Decoder
	switch snap.Order {
	case LabelOrderShift:
		c := &ShiftCodec{Offset: snap.ShiftOffset}
		enc, dec = c, c
	case LabelOrderReorder:
		c := NewReorderCodec(snap.Classes)
		enc, dec = c, c
	default:
		enc, dec = identityCodec{}, identityCodec{}
	}

	return &Dataset{
		train:        train,
		test:         test,
		sampledTrain: train,
		sampledTest:  test,
		trainSize:    train.Len(),
		testSize:     test.Len(),
		mapping:      snap.Mapping,
		encoder:      enc,
		decoder:      dec,
		order:        snap.Order,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}
