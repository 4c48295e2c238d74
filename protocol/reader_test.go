package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"
)

func appendInt32s(buf []byte, vals ...int32) []byte {
	for _, v := range vals {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(v))
	}
	return buf
}

func appendFloats(buf []byte, vals ...float32) []byte {
	for _, v := range vals {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	return buf
}

const scoredHeader = `{"features":[{"name":"f","port":0,"shape":[2],"type":"int32_t"}],` +
	`"score":{"name":"s","port":0,"shape":[1],"type":"float"}}` + "\n"

func TestReadSingleScoredObservation(t *testing.T) {
	var buf []byte
	buf = append(buf, scoredHeader...)
	buf = append(buf, `{"observation":0}`+"\n"...)
	buf = appendInt32s(buf, 3, 4)
	buf = append(buf, '\n')
	buf = append(buf, `{"outcome":0}`+"\n"...)
	buf = appendFloats(buf, 1.5)
	buf = append(buf, '\n')

	r, err := NewReader(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}

	obs, err := r.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if obs.Context != "" {
		t.Errorf("expected empty context, got %q", obs.Context)
	}
	if obs.ID != 0 {
		t.Errorf("expected observation 0, got %d", obs.ID)
	}
	if len(obs.Features) != 1 {
		t.Fatalf("expected 1 feature, got %d", len(obs.Features))
	}
	if got := obs.Features[0].Int64s(); got[0] != 3 || got[1] != 4 {
		t.Errorf("expected feature [3 4], got %v", got)
	}
	if obs.Score == nil {
		t.Fatal("expected a score tensor")
	}
	if got := obs.Score.Float(0); got != 1.5 {
		t.Errorf("expected score 1.5, got %v", got)
	}

	if _, err := r.Read(); err != io.EOF {
		t.Errorf("expected io.EOF at end of stream, got %v", err)
	}
}

func TestStickyContext(t *testing.T) {
	header := `{"features":[{"name":"f","port":0,"shape":[1],"type":"int32_t"}]}` + "\n"
	var buf []byte
	buf = append(buf, header...)
	buf = append(buf, `{"context":"loop_a"}`+"\n"...)
	buf = append(buf, `{"observation":0}`+"\n"...)
	buf = appendInt32s(buf, 7)
	buf = append(buf, '\n')
	buf = append(buf, `{"observation":1}`+"\n"...)
	buf = appendInt32s(buf, 8)
	buf = append(buf, '\n')

	r, err := NewReader(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}

	first, err := r.Read()
	if err != nil {
		t.Fatalf("first Read failed: %v", err)
	}
	if first.Context != "loop_a" || first.ID != 0 {
		t.Errorf("expected (loop_a, 0), got (%q, %d)", first.Context, first.ID)
	}

	// No context line before the second record: the context sticks.
	second, err := r.Read()
	if err != nil {
		t.Fatalf("second Read failed: %v", err)
	}
	if second.Context != "loop_a" || second.ID != 1 {
		t.Errorf("expected (loop_a, 1), got (%q, %d)", second.Context, second.ID)
	}
}

func TestOutcomeMismatch(t *testing.T) {
	var buf []byte
	buf = append(buf, scoredHeader...)
	buf = append(buf, `{"observation":0}`+"\n"...)
	buf = appendInt32s(buf, 3, 4)
	buf = append(buf, '\n')
	buf = append(buf, `{"outcome":5}`+"\n"...)
	buf = appendFloats(buf, 1.5)
	buf = append(buf, '\n')

	r, err := NewReader(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	if _, err := r.Read(); !errors.Is(err, ErrProtocolMismatch) {
		t.Errorf("expected ErrProtocolMismatch, got %v", err)
	}
}

func TestTruncatedTensor(t *testing.T) {
	var buf []byte
	buf = append(buf, scoredHeader...)
	buf = append(buf, `{"observation":0}`+"\n"...)
	buf = appendInt32s(buf, 3) // spec wants 8 bytes, provide 4

	r, err := NewReader(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	if _, err := r.Read(); !errors.Is(err, ErrTruncated) {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
}

func TestReadTensorConsumesExactBytes(t *testing.T) {
	spec := TensorSpec{Name: "x", Shape: []int{2, 3}, Type: Int16}
	payload := make([]byte, spec.NumBytes()+4)
	for i := range payload {
		payload[i] = byte(i)
	}
	r := bytes.NewReader(payload)
	if _, err := ReadTensor(r, spec); err != nil {
		t.Fatalf("ReadTensor failed: %v", err)
	}
	if r.Len() != 4 {
		t.Errorf("expected 4 leftover bytes, got %d", r.Len())
	}
}

func TestHeaderErrors(t *testing.T) {
	cases := []struct {
		name   string
		header string
	}{
		{"bad type tag", `{"features":[{"name":"f","port":0,"shape":[1],"type":"complex"}]}`},
		{"missing shape", `{"features":[{"name":"f","port":0,"type":"float"}]}`},
		{"missing name", `{"features":[{"port":0,"shape":[1],"type":"float"}]}`},
		{"not json", `features: f`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewReader(bytes.NewReader([]byte(tc.header + "\n")))
			if !errors.Is(err, ErrFormat) {
				t.Errorf("expected ErrFormat, got %v", err)
			}
		})
	}
}

func TestHeaderAdviceSpec(t *testing.T) {
	header := `{"features":[{"name":"f","port":0,"shape":[1],"type":"int64_t"}],` +
		`"advice":{"name":"a","port":0,"shape":[1,31],"type":"float"}}` + "\n"
	r, err := NewReader(bytes.NewReader([]byte(header)))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	h := r.Header()
	if h.Advice == nil {
		t.Fatal("expected an advice spec")
	}
	if h.Advice.NumElements() != 31 {
		t.Errorf("expected 31 advice elements, got %d", h.Advice.NumElements())
	}
	if h.Score != nil {
		t.Error("expected no score spec")
	}
}
