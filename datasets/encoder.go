package datasets

import (
	"errors"
	"fmt"
	"log"
	"sort"
)

// ErrUnknownLabel is returned when encoding a label that was not seen while
// fitting a ReorderCodec.
var ErrUnknownLabel = errors.New("label not seen during fit")

// LabelOrder selects how raw class labels are normalized into a dense index
// range before they are stored on a Subset.
type LabelOrder string

const (
	// LabelOrderNone leaves labels untouched.
	LabelOrderNone LabelOrder = ""

	// LabelOrderShift subtracts the global minimum label observed across the
	// training and testing splits. Pure integer offset, classes keep their
	// relative order.
	LabelOrderShift LabelOrder = "shift"

	// LabelOrderReorder remaps labels through a categorical table fitted on
	// the training labels only. Labels absent from the training split fail
	// to encode.
	LabelOrderReorder LabelOrder = "reorder"
)

// Encoder maps a raw class label to its normalized index.
type Encoder interface {
	Encode(label int) (int, error)
}

// Decoder maps a normalized index back to the raw class label.
type Decoder interface {
	Decode(index int) (int, error)
}

// EncoderFunc adapts a plain label function to the Encoder interface.
type EncoderFunc func(label int) int

// Encode applies the wrapped function. It never fails.
func (f EncoderFunc) Encode(label int) (int, error) { return f(label), nil }

// identityCodec passes labels through unchanged. Used when no label order
// policy is in effect.
type identityCodec struct{}

func (identityCodec) Encode(label int) (int, error) { return label, nil }
func (identityCodec) Decode(index int) (int, error) { return index, nil }

// ShiftCodec normalizes labels by subtracting a fixed offset. Decoding adds
// the offset back, so the pair is inverse over all integers.
type ShiftCodec struct {
	Offset int
}

// NewShiftCodec builds a ShiftCodec whose offset is the minimum label found
// across all provided label groups. With no labels at all the offset is zero.
func NewShiftCodec(groups ...[]int) *ShiftCodec {
	offset := 0
	seen := false
	for _, labels := range groups {
		for _, l := range labels {
			if !seen || l < offset {
				offset = l
				seen = true
			}
		}
	}
	return &ShiftCodec{Offset: offset}
}

// Encode subtracts the offset.
func (c *ShiftCodec) Encode(label int) (int, error) { return label - c.Offset, nil }

// Decode adds the offset back.
func (c *ShiftCodec) Decode(index int) (int, error) { return index + c.Offset, nil }

// ReorderCodec is a fitted categorical mapping from raw labels to dense
// indices 0..k-1. Classes are kept in sorted order, so encode/decode are
// mutual inverses over the fitted label set.
type ReorderCodec struct {
	classes []int
	index   map[int]int
}

// FitReorderCodec fits a ReorderCodec on the given labels. Duplicate labels
// collapse into a single class.
func FitReorderCodec(labels []int) *ReorderCodec {
	uniq := make(map[int]struct{}, len(labels))
	for _, l := range labels {
		uniq[l] = struct{}{}
	}
	classes := make([]int, 0, len(uniq))
	for l := range uniq {
		classes = append(classes, l)
	}
	sort.Ints(classes)
	return NewReorderCodec(classes)
}

// NewReorderCodec builds a ReorderCodec directly from an ordered class table,
// as stored in a DatasetSnapshot.
func NewReorderCodec(classes []int) *ReorderCodec {
	index := make(map[int]int, len(classes))
	for i, l := range classes {
		index[l] = i
	}
	return &ReorderCodec{classes: classes, index: index}
}

// Encode returns the dense index of label, or ErrUnknownLabel if the label
// was not part of the fitted set.
func (c *ReorderCodec) Encode(label int) (int, error) {
	i, ok := c.index[label]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownLabel, label)
	}
	return i, nil
}

// Decode returns the raw label for a dense index.
func (c *ReorderCodec) Decode(index int) (int, error) {
	if index < 0 || index >= len(c.classes) {
		return 0, fmt.Errorf("%w: index %d outside 0..%d", ErrUnknownLabel, index, len(c.classes)-1)
	}
	return c.classes[index], nil
}

// Classes returns the fitted class table in encoding order.
func (c *ReorderCodec) Classes() []int {
	out := make([]int, len(c.classes))
	copy(out, c.classes)
	return out
}

// codecFor derives the encoder/decoder pair for a label order policy. An
// unrecognized non-empty policy logs a warning and falls back to identity.
func codecFor(order LabelOrder, trainLabels, testLabels []int) (Encoder, Decoder) {
	switch order {
	case LabelOrderShift:
		c := NewShiftCodec(trainLabels, testLabels)
		return c, c
	case LabelOrderReorder:
		c := FitReorderCodec(trainLabels)
		return c, c
	case LabelOrderNone:
		return identityCodec{}, identityCodec{}
	default:
		log.Printf("unrecognized label order %q, labels left unencoded", order)
		return identityCodec{}, identityCodec{}
	}
}
