// Package ingest wires the pipeline, the SerpApi client and the document
// store into ingestion runs: CSV registry import, raw capture sweeps, the
// per-parent review refresh and the one-off reconciliation sweeps.
//
// Runs have partial-failure semantics: a malformed row, file or entry is
// skipped with a count and the run continues. Only budget exhaustion ends a
// run early, and that is reported as a normal outcome, not an error.
package ingest

import (
	"io"
	"log"
	"log/slog"
	"path/filepath"

	"github.com/tattler-mx/tattler-go/internal/logging"
)

// Package-level logger specific to ingestion runs
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "ingest.log")
	serviceLevelVar.Set(slog.LevelDebug)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "ingest", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize ingest file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "ingest")
		closeLogger = func() error { return nil }
	}
}

// Close flushes and closes the ingest log file.
func Close() {
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing ingest logger: %v", err)
		}
	}
}

// Summary is the run-level report every ingestion sweep returns instead of
// per-item errors.
type Summary struct {
	Processed int
	Inserted  int
	Modified  int
	Unchanged int
	Skipped   int
}

// Upserted returns how many documents the run actually changed.
func (s *Summary) Upserted() int {
	return s.Inserted + s.Modified
}
