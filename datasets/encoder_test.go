package datasets

import (
	"errors"
	"reflect"
	"testing"
)

func TestShiftCodec_RoundTrip(t *testing.T) {
	train := []int{3, 5, 3, 7, 5, 3, 7, 5, 3, 7}
	test := []int{5, 7, 3, 3, 5}

	c := NewShiftCodec(train, test)
	if c.Offset != 3 {
		t.Fatalf("expected offset 3, got %d", c.Offset)
	}

	for _, l := range append(append([]int{}, train...), test...) {
		e, err := c.Encode(l)
		if err != nil {
			t.Fatalf("Encode(%d) error: %v", l, err)
		}
		d, err := c.Decode(e)
		if err != nil {
			t.Fatalf("Decode(%d) error: %v", e, err)
		}
		if d != l {
			t.Fatalf("round trip failed for %d: encoded=%d decoded=%d", l, e, d)
		}
	}
}

func TestShiftCodec_NegativeLabels(t *testing.T) {
	c := NewShiftCodec([]int{-2, 4, 0})
	if c.Offset != -2 {
		t.Fatalf("expected offset -2, got %d", c.Offset)
	}
	e, _ := c.Encode(-2)
	if e != 0 {
		t.Fatalf("expected minimum label to encode to 0, got %d", e)
	}
}

func TestReorderCodec_RoundTrip(t *testing.T) {
	train := []int{30, 10, 30, 20, 10}
	c := FitReorderCodec(train)

	if got := c.Classes(); !reflect.DeepEqual(got, []int{10, 20, 30}) {
		t.Fatalf("expected sorted classes [10 20 30], got %v", got)
	}

	for _, l := range train {
		e, err := c.Encode(l)
		if err != nil {
			t.Fatalf("Encode(%d) error: %v", l, err)
		}
		if e < 0 || e >= 3 {
			t.Fatalf("encoded index %d outside dense range", e)
		}
		d, err := c.Decode(e)
		if err != nil {
			t.Fatalf("Decode(%d) error: %v", e, err)
		}
		if d != l {
			t.Fatalf("round trip failed for %d", l)
		}
	}
}

func TestReorderCodec_UnseenLabel(t *testing.T) {
	c := FitReorderCodec([]int{1, 2, 3})
	if _, err := c.Encode(9); !errors.Is(err, ErrUnknownLabel) {
		t.Fatalf("expected ErrUnknownLabel, got %v", err)
	}
	if _, err := c.Decode(3); !errors.Is(err, ErrUnknownLabel) {
		t.Fatalf("expected ErrUnknownLabel for out-of-range decode, got %v", err)
	}
}

func TestCodecFor_UnrecognizedPolicy(t *testing.T) {
	// unrecognized policies are non-fatal and fall back to identity
	enc, dec := codecFor(LabelOrder("scramble"), []int{5, 6}, []int{5})
	e, err := enc.Encode(5)
	if err != nil || e != 5 {
		t.Fatalf("expected identity encode, got %d (%v)", e, err)
	}
	d, err := dec.Decode(5)
	if err != nil || d != 5 {
		t.Fatalf("expected identity decode, got %d (%v)", d, err)
	}
}

func TestEncoderFunc(t *testing.T) {
	double := EncoderFunc(func(l int) int { return l * 2 })
	e, err := double.Encode(21)
	if err != nil || e != 42 {
		t.Fatalf("expected 42, got %d (%v)", e, err)
	}
}
