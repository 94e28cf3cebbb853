package datasets

import (
	"errors"
	"fmt"
	"math/rand"
	"time"
)

var (
	// ErrShape is returned when feature rows do not divide into the declared
	// per-sample feature shape.
	ErrShape = errors.New("features do not reshape into feature shape")

	// ErrLengthMismatch is returned when features and labels differ in length
	// at construction. This is a hard precondition, not a recoverable case.
	ErrLengthMismatch = errors.New("features and labels differ in length")

	// ErrIndexOutOfRange is returned by At for indices outside [0, Len).
	ErrIndexOutOfRange = errors.New("sample index out of range")

	// ErrSampleSize is returned for non-positive sample sizes.
	ErrSampleSize = errors.New("invalid sample size")
)

// defaultRand backs sampling calls that do not inject their own source.
var defaultRand = rand.New(rand.NewSource(time.Now().UnixNano()))

// Subset holds one aligned (features, labels) split of a dataset: feature
// rows, one label per row, and the per-sample feature shape. Instances are
// immutable after construction; sampling produces new Subsets.
type Subset struct {
	x     [][]float32
	y     []int
	shape []int
}

// NewSubset builds a Subset from feature rows and labels.
//
// When featureShape is non-empty every row must contain exactly
// prod(featureShape) elements; a row that does not divide into the shape
// fails with ErrShape. An empty shape infers a flat per-sample dimension
// from the first row. If enc is non-nil it is applied to every label before
// storage. Features and labels must have equal length (ErrLengthMismatch).
func NewSubset(x [][]float32, y []int, featureShape []int, enc Encoder) (*Subset, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("%w: %d != %d", ErrLengthMismatch, len(x), len(y))
	}

	shape := featureShape
	if len(shape) == 0 {
		dim := 0
		if len(x) > 0 {
			dim = len(x[0])
		}
		shape = []int{dim}
	}
	want := 1
	for _, d := range shape {
		if d <= 0 {
			return nil, fmt.Errorf("%w: non-positive dimension in shape %v", ErrShape, shape)
		}
		want *= d
	}
	for i, row := range x {
		if len(row) != want {
			return nil, fmt.Errorf("%w: row %d has %d elements, shape %v needs %d",
				ErrShape, i, len(row), shape, want)
		}
	}

	labels := make([]int, len(y))
	if enc != nil {
		for i, l := range y {
			e, err := enc.Encode(l)
			if err != nil {
				return nil, fmt.Errorf("encode label at row %d: %w", i, err)
			}
			labels[i] = e
		}
	} else {
		copy(labels, y)
	}

	return &Subset{x: x, y: labels, shape: shape}, nil
}

// Len returns the number of samples. It takes the minimum of the two sides
// in case the length invariant was ever broken after construction.
func (s *Subset) Len() int {
	return min(len(s.x), len(s.y))
}

// Shape returns the per-sample feature shape.
func (s *Subset) Shape() []int {
	out := make([]int, len(s.shape))
	copy(out, s.shape)
	return out
}

// X returns the feature rows. Callers must not mutate them.
func (s *Subset) X() [][]float32 { return s.x }

// Y returns the stored (already encoded) labels. Callers must not mutate them.
func (s *Subset) Y() []int { return s.y }

// At returns the (feature, label) pair at row i.
func (s *Subset) At(i int) ([]float32, int, error) {
	if i < 0 || i >= s.Len() {
		return nil, 0, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, s.Len())
	}
	return s.x[i], s.y[i], nil
}

// Batch returns the feature rows and labels for the given row indices.
func (s *Subset) Batch(indices []int) ([][]float32, []int, error) {
	x := make([][]float32, len(indices))
	y := make([]int, len(indices))
	for bi, i := range indices {
		row, label, err := s.At(i)
		if err != nil {
			return nil, nil, err
		}
		x[bi] = row
		y[bi] = label
	}
	return x, y, nil
}

// Sample returns a new Subset of count rows drawn uniformly without
// replacement. A count larger than Len is clamped. The returned Subset does
// not carry an encoder: labels are already encoded. rng may be nil, in which
// case a time-seeded package source is used; callers needing reproducibility
// pass their own source.
func (s *Subset) Sample(count int, rng *rand.Rand) (*Subset, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: count %d", ErrSampleSize, count)
	}
	n := s.Len()
	count = min(count, n)
	if rng == nil {
		rng = defaultRand
	}

	perm := rng.Perm(n)
	x := make([][]float32, count)
	y := make([]int, count)
	for i := range count {
		x[i] = s.x[perm[i]]
		y[i] = s.y[perm[i]]
	}
	return NewSubset(x, y, s.shape, nil)
}

// SampleFraction samples floor(frac*Len) rows without replacement. Fractions
// above 1.0 are clamped; non-positive fractions are ErrSampleSize.
func (s *Subset) SampleFraction(frac float64, rng *rand.Rand) (*Subset, error) {
	if frac <= 0 {
		return nil, fmt.Errorf("%w: fraction %v", ErrSampleSize, frac)
	}
	if frac > 1.0 {
		frac = 1.0
	}
	return s.Sample(int(frac*float64(s.Len())), rng)
}

// SubsetSnapshot is the serializable form of a Subset. The field set is the
// whole state: changing it requires bumping the archive version.
type SubsetSnapshot struct {
	X     [][]float32
	Y     []int
	Shape []int
}

// Snapshot captures the Subset state for persistence.
func (s *Subset) Snapshot() SubsetSnapshot {
	return SubsetSnapshot{X: s.x, Y: s.y, Shape: s.shape}
}

// NewSubsetFromSnapshot rebuilds a Subset from a snapshot. No encoder is
// applied: snapshot labels are stored as-is.
func NewSubsetFromSnapshot(snap SubsetSnapshot) (*Subset, error) {
	return NewSubset(snap.X, snap.Y, snap.Shape, nil)
}
