package protocol

import (
	"errors"
	"testing"
)

func TestElementTypeWidths(t *testing.T) {
	widths := map[ElementType]int{
		Float:  4,
		Double: 8,
		Int8:   1,
		UInt8:  1,
		Int16:  2,
		UInt16: 2,
		Int32:  4,
		UInt32: 4,
		Int64:  8,
		UInt64: 8,
	}
	for ty, want := range widths {
		if got := ty.Width(); got != want {
			t.Errorf("%s: expected width %d, got %d", ty, want, got)
		}
	}
}

func TestParseElementType(t *testing.T) {
	ty, err := ParseElementType("int32_t")
	if err != nil {
		t.Fatalf("ParseElementType failed: %v", err)
	}
	if ty != Int32 {
		t.Errorf("expected Int32, got %v", ty)
	}

	if _, err := ParseElementType("string"); !errors.Is(err, ErrFormat) {
		t.Errorf("expected ErrFormat for unknown tag, got %v", err)
	}
}

func TestSpecSizes(t *testing.T) {
	spec := TensorSpec{Name: "f", Shape: []int{3, 4, 2}, Type: Double}
	if spec.NumElements() != 24 {
		t.Errorf("expected 24 elements, got %d", spec.NumElements())
	}
	if spec.NumBytes() != 192 {
		t.Errorf("expected 192 bytes, got %d", spec.NumBytes())
	}
}

func TestTensorValueBounds(t *testing.T) {
	spec := TensorSpec{Name: "f", Shape: []int{2}, Type: Int32}
	tv, err := NewTensorValue(spec, make([]byte, 8))
	if err != nil {
		t.Fatalf("NewTensorValue failed: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic on out-of-range index")
		}
	}()
	tv.Int(2)
}

func TestNewTensorValueShortBuffer(t *testing.T) {
	spec := TensorSpec{Name: "f", Shape: []int{2}, Type: Int32}
	if _, err := NewTensorValue(spec, make([]byte, 4)); !errors.Is(err, ErrTruncated) {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
}
