package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// WriteTensor encodes values per the spec's element type and writes the
// payload in a single call. The compiler blocks on exactly
// spec.NumBytes() bytes, so the payload is assembled up front and handed
// to w whole; pass an unbuffered writer (the channel FIFO) so nothing sits
// behind the rendezvous.
//
// Only the kinds the interactive advisor actually sends are encodable:
// float and int64_t. Anything else is ErrUnsupportedType.
func WriteTensor(w io.Writer, spec TensorSpec, values []float64) error {
	if len(values) != spec.NumElements() {
		return fmt.Errorf("tensor %q wants %d elements, have %d",
			spec.Name, spec.NumElements(), len(values))
	}

	buf := make([]byte, spec.NumBytes())
	switch spec.Type {
	case Float:
		for i, v := range values {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(v)))
		}
	case Int64:
		for i, v := range values {
			binary.LittleEndian.PutUint64(buf[i*8:], uint64(int64(v)))
		}
	default:
		return fmt.Errorf("%w: cannot encode %s", ErrUnsupportedType, spec.Type)
	}

	n, err := w.Write(buf)
	if err != nil {
		return fmt.Errorf("write tensor %q: %w", spec.Name, err)
	}
	if n != len(buf) {
		return fmt.Errorf("write tensor %q: short write %d/%d", spec.Name, n, len(buf))
	}
	if f, ok := w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("flush tensor %q: %w", spec.Name, err)
		}
	}
	return nil
}

// WriteScalar writes a single-element tensor.
func WriteScalar(w io.Writer, spec TensorSpec, value float64) error {
	return WriteTensor(w, spec, []float64{value})
}
