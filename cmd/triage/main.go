// Command triage exports the meter readings stored by ocpp-sync as CSV or
// JSON, one row per MeterValues frame with measurands flattened to columns.
//
// Usage:
//
//	triage -format csv -since 24h > readings.csv
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/couchcryptid/ocpp-log-etl/internal/adapter/postgres"
	"github.com/couchcryptid/ocpp-log-etl/internal/domain"
	"github.com/couchcryptid/ocpp-log-etl/internal/store"
	"github.com/couchcryptid/ocpp-log-etl/internal/triage"
)

func main() {
	_ = godotenv.Load()

	dsn := flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	format := flag.String("format", "csv", "output format: csv or json")
	since := flag.Duration("since", 0, "only records newer than this (0 exports everything)")
	out := flag.String("out", "", "output file (default stdout)")
	flag.Parse()

	if *dsn == "" || (*format != "csv" && *format != "json") {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*dsn, *format, *since, *out); err != nil {
		fmt.Fprintln(os.Stderr, "triage:", err)
		os.Exit(1)
	}
}

func run(dsn, format string, since time.Duration, outPath string) (err error) {
	ctx := context.Background()

	db, err := postgres.Open(ctx, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	filter := store.Filter{}
	if since > 0 {
		filter.Since = time.Now().Add(-since)
	}
	records, err := postgres.NewStore(db, slog.Default()).Select(ctx, store.TableLogs, filter)
	if err != nil {
		return err
	}
	readings := triage.MeterReadings(records)

	w := os.Stdout
	if outPath != "" {
		f, createErr := os.Create(outPath)
		if createErr != nil {
			return fmt.Errorf("create output: %w", createErr)
		}
		defer func() { err = errors.Join(err, f.Close()) }()
		w = f
	}

	fmt.Fprintf(os.Stderr, "triage: %d of %d records are meter readings\n", len(readings), len(records))
	return write(w, format, readings)
}

func write(w *os.File, format string, readings []domain.NormalizedRecord) error {
	if format == "json" {
		return triage.WriteJSON(w, readings)
	}
	return triage.WriteCSV(w, readings)
}
