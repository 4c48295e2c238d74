package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/brensch/unrolled/protocol"
	"github.com/brensch/unrolled/store"
)

func main() {
	logPath := flag.String("log", "", "Training log to pretty print (and export with -out-dir)")
	inDir := flag.String("in-dir", "", "Directory of training logs to batch export")
	outDir := flag.String("out-dir", "", "Directory for parquet exports")
	exportLogPath := flag.String("export-log", "", "Append-only log of already exported files (batch mode)")
	max := flag.Int("max", 0, "Stop after this many observations (0 = all)")
	quiet := flag.Bool("quiet", false, "Skip pretty printing")
	flag.Parse()

	switch {
	case *logPath != "" && *inDir != "":
		fmt.Fprintln(os.Stderr, "-log and -in-dir are mutually exclusive")
		os.Exit(2)
	case *logPath != "":
		if err := readOne(*logPath, *outDir, *max, *quiet); err != nil {
			log.Fatalf("Failed to read %s: %v", *logPath, err)
		}
	case *inDir != "":
		if *outDir == "" {
			fmt.Fprintln(os.Stderr, "-out-dir is required with -in-dir")
			os.Exit(2)
		}
		if err := exportAll(*inDir, *outDir, *exportLogPath); err != nil {
			log.Fatalf("Batch export failed: %v", err)
		}
	default:
		fmt.Fprintln(os.Stderr, "one of -log or -in-dir is required")
		os.Exit(2)
	}
}

// readOne pretty prints a single training log, optionally exporting it.
func readOne(logPath, outDir string, max int, quiet bool) error {
	f, err := os.Open(logPath)
	if err != nil {
		return err
	}
	defer f.Close()

	reader, err := protocol.NewReader(f)
	if err != nil {
		return err
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	rows, count, err := render(out, reader, max, quiet, outDir != "")
	if err != nil {
		return err
	}

	if outDir != "" {
		outPath := filepath.Join(outDir, filepath.Base(logPath)+".parquet")
		if err := store.WriteObservationsParquet(outPath, rows); err != nil {
			return err
		}
		log.Printf("Wrote %d rows from %d observations to %s", len(rows), count, outPath)
	}
	return nil
}

// render pretty prints every observation to out, collecting parquet rows
// when collect is set. The context header is emitted only when the
// stream's context changes, so a log that never carries one prints none.
func render(out io.Writer, reader *protocol.Reader, max int, quiet, collect bool) ([]store.ObservationRow, int, error) {
	var rows []store.ObservationRow
	lastContext := ""
	count := 0

	for max == 0 || count < max {
		obs, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rows, count, fmt.Errorf("observation %d: %w", count, err)
		}
		count++

		if !quiet {
			if obs.Context != lastContext {
				fmt.Fprintf(out, "context: %s\n", obs.Context)
				lastContext = obs.Context
			}
			fmt.Fprintf(out, "observation: %d\n", obs.ID)
			for _, fv := range obs.Features {
				fmt.Fprintln(out, fv)
			}
			if obs.Score != nil {
				fmt.Fprintln(out, obs.Score)
			}
		}

		if collect {
			rows = append(rows, store.RowsFromObservation(obs)...)
		}
	}
	return rows, count, nil
}

// exportAll converts every .log under inDir to a parquet shard, skipping
// files recorded in the export log from earlier runs.
func exportAll(inDir, outDir, exportLogPath string) error {
	if exportLogPath == "" {
		exportLogPath = filepath.Join(outDir, "exported.log")
	}
	exported, err := store.OpenExportLog(exportLogPath)
	if err != nil {
		return err
	}
	defer exported.Close()
	log.Printf("Export log: %s (%d already)", exportLogPath, exported.Count())

	inputs := make([]string, 0, 64)
	err = filepath.WalkDir(inDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if strings.HasSuffix(strings.ToLower(d.Name()), ".log") {
			inputs = append(inputs, path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	converted, skipped := 0, 0
	for _, path := range inputs {
		if exported.Has(path) {
			skipped++
			continue
		}
		if err := readOne(path, outDir, 0, true); err != nil {
			log.Printf("Skipping %s: %v", path, err)
			continue
		}
		if err := exported.Add(path); err != nil {
			return err
		}
		converted++
	}
	log.Printf("Converted %d logs (%d already exported)", converted, skipped)
	return nil
}
