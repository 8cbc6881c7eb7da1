// Package triage extracts meter readings from stored log records into flat
// rows for offline analysis.
package triage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/couchcryptid/ocpp-log-etl/internal/domain"
)

const (
	meterValuesAction         = "MeterValues"
	changeConfigurationAction = "ChangeConfiguration"
)

// Row is one meter reading with its measurands flattened into columns.
type Row struct {
	UniqueID      string            `json:"unique_id"`
	PortID        string            `json:"port_uuid"`
	PostID        string            `json:"post_id,omitempty"`
	Timestamp     string            `json:"timestamp"`
	Direction     domain.Direction  `json:"direction"`
	MessageID     string            `json:"message_id,omitempty"`
	TransactionID string            `json:"transaction_id,omitempty"`
	Columns       map[string]string `json:"measurands"`
}

// MeterReadings keeps protocol records that mention MeterValues and are not
// configuration changes, in input order.
func MeterReadings(records []domain.NormalizedRecord) []domain.NormalizedRecord {
	var out []domain.NormalizedRecord
	for _, r := range records {
		if r.Direction == domain.DirectionUnknown {
			continue
		}
		if !strings.Contains(r.Message, meterValuesAction) || strings.Contains(r.Message, changeConfigurationAction) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Header is the CSV header written by WriteCSV.
func Header() []string {
	h := []string{"unique_id", "port_uuid", "post_id", "timestamp", "direction", "message_id", "transaction_id"}
	for _, m := range domain.KnownMeasurands {
		c := m.Column()
		h = append(h, c, c+"_context", c+"_unit")
	}
	return h
}

// ToRow flattens rec. Missing measurands produce empty columns.
func ToRow(rec domain.NormalizedRecord) Row {
	row := Row{
		UniqueID:      rec.Identity(),
		PortID:        rec.PortID,
		PostID:        rec.PostID,
		Timestamp:     rec.Timestamp,
		Direction:     rec.Direction,
		MessageID:     deref(rec.MessageID),
		TransactionID: deref(rec.TransactionID),
		Columns:       make(map[string]string, 3*len(domain.KnownMeasurands)),
	}
	for _, m := range domain.KnownMeasurands {
		s, _ := rec.Sample(m)
		c := m.Column()
		row.Columns[c] = s.Value
		row.Columns[c+"_context"] = s.Context
		row.Columns[c+"_unit"] = s.Unit
	}
	return row
}

// WriteCSV writes a header line and one line per record.
func WriteCSV(w io.Writer, records []domain.NormalizedRecord) error {
	cw := csv.NewWriter(w)
	header := Header()
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	line := make([]string, len(header))
	for _, rec := range records {
		row := ToRow(rec)
		copy(line, []string{row.UniqueID, row.PortID, row.PostID, row.Timestamp, string(row.Direction), row.MessageID, row.TransactionID})
		for i := 7; i < len(header); i++ {
			line[i] = row.Columns[header[i]]
		}
		if err := cw.Write(line); err != nil {
			return fmt.Errorf("write csv row %s: %w", row.UniqueID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the rows as an indented JSON array.
func WriteJSON(w io.Writer, records []domain.NormalizedRecord) error {
	rows := make([]Row, len(records))
	for i, rec := range records {
		rows[i] = ToRow(rec)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("encode rows: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
