package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// Header is the first line of a training log: the ordered feature specs
// plus optional score and advice specs.
type Header struct {
	Features []TensorSpec
	Score    *TensorSpec
	Advice   *TensorSpec
}

type headerJSON struct {
	Features []specJSON `json:"features"`
	Score    *specJSON  `json:"score"`
	Advice   *specJSON  `json:"advice"`
}

// Observation is one decoded record. Context is the sticky context string
// ("" until the stream sets one). Score is nil when the header declares no
// score spec.
type Observation struct {
	Context  string
	ID       int64
	Features []TensorValue
	Score    *TensorValue
}

// Feature returns the named feature tensor, if the header declared one.
func (o Observation) Feature(name string) (TensorValue, bool) {
	for _, f := range o.Features {
		if f.Spec().Name == name {
			return f, true
		}
	}
	return TensorValue{}, false
}

// ReadTensor reads exactly spec.NumBytes() bytes. A short read is fatal to
// the stream: there are no resynchronization markers to recover at.
func ReadTensor(r io.Reader, spec TensorSpec) (TensorValue, error) {
	raw := make([]byte, spec.NumBytes())
	if _, err := io.ReadFull(r, raw); err != nil {
		return TensorValue{}, fmt.Errorf("%w: tensor %q: %v", ErrTruncated, spec.Name, err)
	}
	return TensorValue{spec: spec, raw: raw}, nil
}

// ReadHeader parses the JSON header line.
func ReadHeader(r *bufio.Reader) (Header, error) {
	line, err := r.ReadBytes('\n')
	if len(line) == 0 && err != nil {
		return Header{}, fmt.Errorf("%w: missing header: %v", ErrFormat, err)
	}
	var raw headerJSON
	if err := json.Unmarshal(line, &raw); err != nil {
		return Header{}, fmt.Errorf("%w: header: %v", ErrFormat, err)
	}
	h := Header{Features: make([]TensorSpec, 0, len(raw.Features))}
	for _, f := range raw.Features {
		spec, err := specFromJSON(f)
		if err != nil {
			return Header{}, err
		}
		h.Features = append(h.Features, spec)
	}
	if raw.Score != nil {
		spec, err := specFromJSON(*raw.Score)
		if err != nil {
			return Header{}, err
		}
		h.Score = &spec
	}
	if raw.Advice != nil {
		spec, err := specFromJSON(*raw.Advice)
		if err != nil {
			return Header{}, err
		}
		h.Advice = &spec
	}
	return h, nil
}

// Reader decodes a training log stream: one header, then observation
// records until EOF. It carries the sticky context across records.
type Reader struct {
	r       *bufio.Reader
	header  Header
	context string
}

// NewReader wraps r and immediately consumes the header line.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	h, err := ReadHeader(br)
	if err != nil {
		return nil, err
	}
	return &Reader{r: br, header: h}, nil
}

func (r *Reader) Header() Header { return r.header }

type eventJSON struct {
	Context     *string `json:"context"`
	Observation *int64  `json:"observation"`
	Outcome     *int64  `json:"outcome"`
}

func (r *Reader) readEvent() (eventJSON, error) {
	line, err := r.r.ReadBytes('\n')
	if len(line) == 0 {
		if err == io.EOF {
			return eventJSON{}, io.EOF
		}
		return eventJSON{}, fmt.Errorf("%w: record line: %v", ErrFormat, err)
	}
	var ev eventJSON
	if err := json.Unmarshal(line, &ev); err != nil {
		return eventJSON{}, fmt.Errorf("%w: record line: %v", ErrFormat, err)
	}
	return ev, nil
}

// discardLineBreak consumes the newline written after each binary block.
func (r *Reader) discardLineBreak() error {
	if _, err := r.r.ReadBytes('\n'); err != nil && err != io.EOF {
		return fmt.Errorf("%w: tensor terminator: %v", ErrTruncated, err)
	}
	return nil
}

// Read decodes the next observation. It returns io.EOF at a clean end of
// stream; any other error poisons the reader.
func (r *Reader) Read() (Observation, error) {
	ev, err := r.readEvent()
	if err != nil {
		return Observation{}, err
	}
	if ev.Context != nil {
		// A context line stands alone; the real record follows it.
		r.context = *ev.Context
		ev, err = r.readEvent()
		if err != nil {
			return Observation{}, err
		}
	}
	if ev.Observation == nil {
		return Observation{}, fmt.Errorf("%w: record missing observation id", ErrFormat)
	}

	obs := Observation{
		Context:  r.context,
		ID:       *ev.Observation,
		Features: make([]TensorValue, 0, len(r.header.Features)),
	}
	for _, spec := range r.header.Features {
		tv, err := ReadTensor(r.r, spec)
		if err != nil {
			return Observation{}, err
		}
		obs.Features = append(obs.Features, tv)
		if err := r.discardLineBreak(); err != nil {
			return Observation{}, err
		}
	}

	if r.header.Score != nil {
		outcome, err := r.readEvent()
		if err != nil {
			if err == io.EOF {
				return Observation{}, fmt.Errorf("%w: missing outcome line", ErrTruncated)
			}
			return Observation{}, err
		}
		if outcome.Outcome == nil {
			return Observation{}, fmt.Errorf("%w: expected outcome line", ErrFormat)
		}
		if *outcome.Outcome != obs.ID {
			return Observation{}, fmt.Errorf("%w: outcome %d for observation %d",
				ErrProtocolMismatch, *outcome.Outcome, obs.ID)
		}
		score, err := ReadTensor(r.r, *r.header.Score)
		if err != nil {
			return Observation{}, err
		}
		obs.Score = &score
		if err := r.discardLineBreak(); err != nil {
			return Observation{}, err
		}
	}
	return obs, nil
}
