package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/brensch/unrolled/protocol"
)

// ObservationRow is one (observation, feature) pair from a training log,
// flattened for columnar storage. Raw keeps the original little-endian
// payload so trainers can featurize it however they like.
type ObservationRow struct {
	Context       string  `parquet:"context,dict"`
	ObservationID int64   `parquet:"observation_id"`
	Feature       string  `parquet:"feature,dict"`
	Type          string  `parquet:"type,dict"`
	Shape         []int32 `parquet:"shape"`
	Raw           []byte  `parquet:"raw"`
	Score         float64 `parquet:"score"`
	HasScore      bool    `parquet:"has_score"`
}

// RowsFromObservation flattens one observation into per-feature rows.
func RowsFromObservation(obs protocol.Observation) []ObservationRow {
	score := 0.0
	hasScore := false
	if obs.Score != nil && obs.Score.Len() > 0 {
		score = obs.Score.Float(0)
		hasScore = true
	}

	rows := make([]ObservationRow, 0, len(obs.Features))
	for _, f := range obs.Features {
		spec := f.Spec()
		shape := make([]int32, len(spec.Shape))
		for i, d := range spec.Shape {
			shape[i] = int32(d)
		}
		rows = append(rows, ObservationRow{
			Context:       obs.Context,
			ObservationID: obs.ID,
			Feature:       spec.Name,
			Type:          spec.Type.String(),
			Shape:         shape,
			Raw:           f.Bytes(),
			Score:         score,
			HasScore:      hasScore,
		})
	}
	return rows
}

// RowsFromLog drains a training log reader into parquet rows.
func RowsFromLog(r *protocol.Reader) ([]ObservationRow, error) {
	var rows []ObservationRow
	for {
		obs, err := r.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, RowsFromObservation(obs)...)
	}
}

// WriteObservationsParquet writes rows to a temp file and renames
// atomically so readers never observe a partial shard.
func WriteObservationsParquet(outPath string, rows []ObservationRow) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmpPath := outPath + ".tmp"
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.SkipPageBounds("raw"),
		parquet.KeyValueMetadata("schema", "observation_row_v1"),
	); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename parquet: %w", err)
	}
	return nil
}
