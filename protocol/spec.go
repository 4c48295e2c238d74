package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ElementType is the numeric kind of a tensor element. The set is closed:
// the compiler's training logger only ever emits these ten tags.
type ElementType int

const (
	Float ElementType = iota
	Double
	Int8
	UInt8
	Int16
	UInt16
	Int32
	UInt32
	Int64
	UInt64
)

var elementTypeNames = map[ElementType]string{
	Float:  "float",
	Double: "double",
	Int8:   "int8_t",
	UInt8:  "uint8_t",
	Int16:  "int16_t",
	UInt16: "uint16_t",
	Int32:  "int32_t",
	UInt32: "uint32_t",
	Int64:  "int64_t",
	UInt64: "uint64_t",
}

// ParseElementType maps a wire type tag to its ElementType.
func ParseElementType(tag string) (ElementType, error) {
	for ty, name := range elementTypeNames {
		if name == tag {
			return ty, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown element type %q", ErrFormat, tag)
}

func (t ElementType) String() string {
	if name, ok := elementTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ElementType(%d)", int(t))
}

// Width returns the size of one element in bytes.
func (t ElementType) Width() int {
	switch t {
	case Int8, UInt8:
		return 1
	case Int16, UInt16:
		return 2
	case Float, Int32, UInt32:
		return 4
	case Double, Int64, UInt64:
		return 8
	default:
		panic(fmt.Sprintf("protocol: invalid element type %d", int(t)))
	}
}

// TensorSpec describes one fixed-shape tensor on the wire. Built once from
// the stream header and immutable afterwards.
type TensorSpec struct {
	Name  string
	Port  int
	Shape []int
	Type  ElementType
}

type specJSON struct {
	Name  *string `json:"name"`
	Port  *int    `json:"port"`
	Shape []int   `json:"shape"`
	Type  *string `json:"type"`
}

func specFromJSON(raw specJSON) (TensorSpec, error) {
	if raw.Name == nil || raw.Port == nil || raw.Shape == nil || raw.Type == nil {
		return TensorSpec{}, fmt.Errorf("%w: tensor spec missing name/port/shape/type", ErrFormat)
	}
	ty, err := ParseElementType(*raw.Type)
	if err != nil {
		return TensorSpec{}, err
	}
	return TensorSpec{
		Name:  *raw.Name,
		Port:  *raw.Port,
		Shape: raw.Shape,
		Type:  ty,
	}, nil
}

// NumElements is the flattened element count, product of all dims.
func (s TensorSpec) NumElements() int {
	n := 1
	for _, d := range s.Shape {
		n *= d
	}
	return n
}

// NumBytes is the exact byte length of one tensor payload.
func (s TensorSpec) NumBytes() int {
	return s.NumElements() * s.Type.Width()
}

// TensorValue is one decoded tensor: the spec plus its raw little-endian
// payload. Values are short-lived; readers create one per tensor block and
// callers pull the elements they need.
type TensorValue struct {
	spec TensorSpec
	raw  []byte
}

func NewTensorValue(spec TensorSpec, raw []byte) (TensorValue, error) {
	if len(raw) != spec.NumBytes() {
		return TensorValue{}, fmt.Errorf("%w: tensor %q needs %d bytes, have %d",
			ErrTruncated, spec.Name, spec.NumBytes(), len(raw))
	}
	return TensorValue{spec: spec, raw: raw}, nil
}

func (v TensorValue) Spec() TensorSpec { return v.spec }

func (v TensorValue) Len() int { return v.spec.NumElements() }

func (v TensorValue) checkIndex(i int) {
	if i < 0 || i >= v.Len() {
		panic(fmt.Sprintf("protocol: index %d out of range [0..%d)", i, v.Len()))
	}
}

// Int reads element i as a signed integer. Unsigned kinds are reinterpreted
// as their signed counterparts; the unroll model only consumes signed inputs.
func (v TensorValue) Int(i int) int64 {
	v.checkIndex(i)
	w := v.spec.Type.Width()
	b := v.raw[i*w:]
	switch v.spec.Type {
	case Int8, UInt8:
		return int64(int8(b[0]))
	case Int16, UInt16:
		return int64(int16(binary.LittleEndian.Uint16(b)))
	case Int32, UInt32:
		return int64(int32(binary.LittleEndian.Uint32(b)))
	case Int64, UInt64:
		return int64(binary.LittleEndian.Uint64(b))
	case Float:
		return int64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case Double:
		return int64(math.Float64frombits(binary.LittleEndian.Uint64(b)))
	default:
		panic(fmt.Sprintf("protocol: invalid element type %d", int(v.spec.Type)))
	}
}

// Float reads element i as a float64, converting integer kinds.
func (v TensorValue) Float(i int) float64 {
	v.checkIndex(i)
	w := v.spec.Type.Width()
	b := v.raw[i*w:]
	switch v.spec.Type {
	case Float:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case Double:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	default:
		return float64(v.Int(i))
	}
}

// Bytes returns a copy of the raw little-endian payload.
func (v TensorValue) Bytes() []byte {
	return append([]byte(nil), v.raw...)
}

// Int64s returns the whole tensor as a signed integer slice.
func (v TensorValue) Int64s() []int64 {
	out := make([]int64, v.Len())
	for i := range out {
		out[i] = v.Int(i)
	}
	return out
}

// Float64s returns the whole tensor as a float slice.
func (v TensorValue) Float64s() []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.Float(i)
	}
	return out
}

// String renders "name: v1,v2,..." matching the log pretty-printer output.
func (v TensorValue) String() string {
	parts := make([]string, v.Len())
	switch v.spec.Type {
	case Float, Double:
		for i := range parts {
			parts[i] = strconv.FormatFloat(v.Float(i), 'g', -1, 64)
		}
	default:
		for i := range parts {
			parts[i] = strconv.FormatInt(v.Int(i), 10)
		}
	}
	return v.spec.Name + ": " + strings.Join(parts, ",")
}
