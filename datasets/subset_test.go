package datasets

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"
)

// makeRows builds n feature rows of the given dimension with unique values,
// so sampled rows can be traced back to their origin.
func makeRows(n, dim int) ([][]float32, []int) {
	x := make([][]float32, n)
	y := make([]int, n)
	for i := range n {
		row := make([]float32, dim)
		for j := range dim {
			row[j] = float32(i*dim + j)
		}
		x[i] = row
		y[i] = i
	}
	return x, y
}

func TestNewSubset_ValidLengths(t *testing.T) {
	x, y := makeRows(100, 15)
	s, err := NewSubset(x, y, nil, nil)
	if err != nil {
		t.Fatalf("NewSubset failed: %v", err)
	}
	if s.Len() != 100 {
		t.Fatalf("expected len 100, got %d", s.Len())
	}
	if len(s.X()) != len(s.Y()) {
		t.Fatalf("X and Y differ in length: %d != %d", len(s.X()), len(s.Y()))
	}
	if got := s.Shape(); !reflect.DeepEqual(got, []int{15}) {
		t.Fatalf("expected inferred shape [15], got %v", got)
	}
}

func TestNewSubset_LengthMismatch(t *testing.T) {
	x, _ := makeRows(101, 15)
	_, y := makeRows(100, 15)
	_, err := NewSubset(x, y, nil, nil)
	if !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestNewSubset_ShapeValidation(t *testing.T) {
	x, y := makeRows(10, 4)

	s, err := NewSubset(x, y, []int{2, 2}, nil)
	if err != nil {
		t.Fatalf("NewSubset with shape [2 2] failed: %v", err)
	}
	if got := s.Shape(); !reflect.DeepEqual(got, []int{2, 2}) {
		t.Fatalf("expected shape [2 2], got %v", got)
	}

	// 4 elements per row do not divide into a [5] shape.
	_, err = NewSubset(x, y, []int{5}, nil)
	if !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
}

func TestNewSubset_EncoderApplied(t *testing.T) {
	x, _ := makeRows(4, 2)
	y := []int{10, 11, 12, 13}
	s, err := NewSubset(x, y, nil, EncoderFunc(func(l int) int { return l - 10 }))
	if err != nil {
		t.Fatalf("NewSubset failed: %v", err)
	}
	if got := s.Y(); !reflect.DeepEqual(got, []int{0, 1, 2, 3}) {
		t.Fatalf("expected encoded labels [0 1 2 3], got %v", got)
	}
}

func TestSubset_AtBounds(t *testing.T) {
	x, y := makeRows(5, 3)
	s, err := NewSubset(x, y, nil, nil)
	if err != nil {
		t.Fatalf("NewSubset failed: %v", err)
	}

	row, label, err := s.At(2)
	if err != nil {
		t.Fatalf("At(2) error: %v", err)
	}
	if label != 2 || row[0] != 6 {
		t.Fatalf("unexpected sample at row 2: row=%v label=%d", row, label)
	}

	if _, _, err := s.At(-1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange for At(-1), got %v", err)
	}
	if _, _, err := s.At(5); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange for At(5), got %v", err)
	}
}

// assertDrawnFrom checks that every sampled row exists in the parent and that
// no parent row was used twice (sampling without replacement).
func assertDrawnFrom(t *testing.T, sampled, parent *Subset) {
	t.Helper()
	used := make(map[int]bool, sampled.Len())
	for i := range sampled.Len() {
		row, label, err := sampled.At(i)
		if err != nil {
			t.Fatalf("At(%d) error: %v", i, err)
		}
		found := -1
		for j := range parent.Len() {
			prow, plabel, _ := parent.At(j)
			if plabel == label && reflect.DeepEqual(prow, row) {
				found = j
				break
			}
		}
		if found == -1 {
			t.Fatalf("sampled row %d not present in parent", i)
		}
		if used[found] {
			t.Fatalf("parent row %d sampled twice", found)
		}
		used[found] = true
	}
}

func TestSubset_SampleCount(t *testing.T) {
	x, y := makeRows(10, 3)
	s, err := NewSubset(x, y, nil, nil)
	if err != nil {
		t.Fatalf("NewSubset failed: %v", err)
	}
	rng := rand.New(rand.NewSource(1))

	sampled, err := s.Sample(4, rng)
	if err != nil {
		t.Fatalf("Sample(4) error: %v", err)
	}
	if sampled.Len() != 4 {
		t.Fatalf("expected 4 samples, got %d", sampled.Len())
	}
	assertDrawnFrom(t, sampled, s)

	// counts above Len are clamped
	clamped, err := s.Sample(25, rng)
	if err != nil {
		t.Fatalf("Sample(25) error: %v", err)
	}
	if clamped.Len() != 10 {
		t.Fatalf("expected clamped length 10, got %d", clamped.Len())
	}

	if _, err := s.Sample(-1, rng); !errors.Is(err, ErrSampleSize) {
		t.Fatalf("expected ErrSampleSize for negative count, got %v", err)
	}
}

func TestSubset_SampleFraction(t *testing.T) {
	x, y := makeRows(10, 3)
	s, err := NewSubset(x, y, nil, nil)
	if err != nil {
		t.Fatalf("NewSubset failed: %v", err)
	}
	rng := rand.New(rand.NewSource(7))

	half, err := s.SampleFraction(0.5, rng)
	if err != nil {
		t.Fatalf("SampleFraction(0.5) error: %v", err)
	}
	if half.Len() != 5 {
		t.Fatalf("expected 5 samples, got %d", half.Len())
	}
	assertDrawnFrom(t, half, s)

	// floor semantics
	third, err := s.SampleFraction(0.35, rng)
	if err != nil {
		t.Fatalf("SampleFraction(0.35) error: %v", err)
	}
	if third.Len() != 3 {
		t.Fatalf("expected floor(0.35*10)=3 samples, got %d", third.Len())
	}

	// fractions above 1.0 are clamped
	all, err := s.SampleFraction(2.5, rng)
	if err != nil {
		t.Fatalf("SampleFraction(2.5) error: %v", err)
	}
	if all.Len() != 10 {
		t.Fatalf("expected clamped length 10, got %d", all.Len())
	}

	if _, err := s.SampleFraction(0, rng); !errors.Is(err, ErrSampleSize) {
		t.Fatalf("expected ErrSampleSize for zero fraction, got %v", err)
	}
}

func TestSubset_SnapshotRoundTrip(t *testing.T) {
	x, y := makeRows(6, 4)
	s, err := NewSubset(x, y, []int{2, 2}, nil)
	if err != nil {
		t.Fatalf("NewSubset failed: %v", err)
	}

	restored, err := NewSubsetFromSnapshot(s.Snapshot())
	if err != nil {
		t.Fatalf("NewSubsetFromSnapshot failed: %v", err)
	}
	if !reflect.DeepEqual(restored.X(), s.X()) {
		t.Fatalf("features changed across snapshot round trip")
	}
	if !reflect.DeepEqual(restored.Y(), s.Y()) {
		t.Fatalf("labels changed across snapshot round trip")
	}
	if !reflect.DeepEqual(restored.Shape(), s.Shape()) {
		t.Fatalf("shape changed across snapshot round trip")
	}
}

func TestSubset_Batch(t *testing.T) {
	x, y := makeRows(5, 2)
	s, err := NewSubset(x, y, nil, nil)
	if err != nil {
		t.Fatalf("NewSubset failed: %v", err)
	}

	inputs, labels, err := s.Batch([]int{4, 0, 2})
	if err != nil {
		t.Fatalf("Batch error: %v", err)
	}
	if !reflect.DeepEqual(labels, []int{4, 0, 2}) {
		t.Fatalf("unexpected batch labels: %v", labels)
	}
	if inputs[0][0] != 8 || inputs[1][0] != 0 || inputs[2][0] != 4 {
		t.Fatalf("unexpected batch rows: %v", inputs)
	}

	if _, _, err := s.Batch([]int{5}); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
}
