package store

import (
	"bytes"
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/brensch/unrolled/protocol"
)

func buildLog(t *testing.T) []byte {
	t.Helper()
	var buf []byte
	buf = append(buf, `{"features":[{"name":"trip_count","port":0,"shape":[1],"type":"int64_t"}],`+
		`"score":{"name":"reward","port":0,"shape":[1],"type":"float"}}`+"\n"...)
	buf = append(buf, `{"context":"loop_a"}`+"\n"...)
	buf = append(buf, `{"observation":0}`+"\n"...)
	buf = binary.LittleEndian.AppendUint64(buf, 16)
	buf = append(buf, '\n')
	buf = append(buf, `{"outcome":0}`+"\n"...)
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(0.25))
	buf = append(buf, '\n')
	return buf
}

func TestRowsFromLog(t *testing.T) {
	r, err := protocol.NewReader(bytes.NewReader(buildLog(t)))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	rows, err := RowsFromLog(r)
	if err != nil {
		t.Fatalf("RowsFromLog failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	if row.Context != "loop_a" || row.Feature != "trip_count" || row.Type != "int64_t" {
		t.Errorf("unexpected row: %+v", row)
	}
	if !row.HasScore || row.Score != 0.25 {
		t.Errorf("expected score 0.25, got %+v", row)
	}
	if len(row.Raw) != 8 {
		t.Errorf("expected 8 raw bytes, got %d", len(row.Raw))
	}
}

func TestWriteObservationsParquet(t *testing.T) {
	r, err := protocol.NewReader(bytes.NewReader(buildLog(t)))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	rows, err := RowsFromLog(r)
	if err != nil {
		t.Fatalf("RowsFromLog failed: %v", err)
	}

	outPath := filepath.Join(t.TempDir(), "observations.parquet")
	if err := WriteObservationsParquet(outPath, rows); err != nil {
		t.Fatalf("WriteObservationsParquet failed: %v", err)
	}

	got, err := parquet.ReadFile[ObservationRow](outPath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(got) != len(rows) {
		t.Fatalf("expected %d rows back, got %d", len(rows), len(got))
	}
	if got[0].Feature != rows[0].Feature || got[0].ObservationID != rows[0].ObservationID {
		t.Errorf("round trip mismatch: %+v vs %+v", got[0], rows[0])
	}
}
