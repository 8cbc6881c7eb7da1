package postgres

import (
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/ocpp-log-etl/internal/domain"
)

// baseColumns are the record columns that precede the flattened measurands.
var baseColumns = []string{
	"unique_id",
	"port_uuid",
	"post_id",
	"status",
	"organization_id",
	"timestamp",
	"record_timestamp",
	"message",
	"direction",
	"call_type",
	"message_id",
	"non_json_part",
	"json_part",
	"transaction_id",
}

// recordColumns lists every ocpp_logs column in insert order: the base
// columns, then value, context and unit for each known measurand.
var recordColumns = func() []string {
	cols := append([]string(nil), baseColumns...)
	for _, m := range domain.KnownMeasurands {
		c := m.Column()
		cols = append(cols, c, c+"_context", c+"_unit")
	}
	return cols
}()

// recordArgs returns the bind arguments for rec in recordColumns order.
func recordArgs(rec domain.NormalizedRecord) []any {
	args := make([]any, 0, len(recordColumns))
	args = append(args,
		rec.Identity(),
		rec.PortID,
		nullString(rec.PostID),
		nullString(rec.Status),
		nullString(rec.OrganizationID),
		rec.Timestamp,
		nullTime(rec.RecordTimestamp),
		rec.Message,
		nullString(string(rec.Direction)),
		nullStringPtr(rec.CallType),
		nullStringPtr(rec.MessageID),
		nullString(rec.Preamble),
		nullJSON(rec.Payload),
		nullStringPtr(rec.TransactionID),
	)
	for _, m := range domain.KnownMeasurands {
		s, ok := rec.Sample(m)
		if !ok {
			args = append(args, nil, nil, nil)
			continue
		}
		args = append(args, nullString(s.Value), nullString(s.Context), nullString(s.Unit))
	}
	return args
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (domain.NormalizedRecord, error) {
	var (
		rec                                          domain.NormalizedRecord
		postID, status, orgID, direction             sql.NullString
		callType, messageID, preamble, payload, txID sql.NullString
		recordTS                                     sql.NullTime
	)
	samples := make([]sql.NullString, 3*len(domain.KnownMeasurands))

	dest := []any{
		&rec.UniqueID,
		&rec.PortID,
		&postID,
		&status,
		&orgID,
		&rec.Timestamp,
		&recordTS,
		&rec.Message,
		&direction,
		&callType,
		&messageID,
		&preamble,
		&payload,
		&txID,
	}
	for i := range samples {
		dest = append(dest, &samples[i])
	}
	if err := row.Scan(dest...); err != nil {
		return domain.NormalizedRecord{}, err
	}

	rec.PostID = postID.String
	rec.Status = status.String
	rec.OrganizationID = orgID.String
	rec.Direction = domain.Direction(direction.String)
	rec.CallType = stringPtr(callType)
	rec.MessageID = stringPtr(messageID)
	rec.Preamble = preamble.String
	rec.TransactionID = stringPtr(txID)
	if recordTS.Valid {
		t := recordTS.Time.UTC()
		rec.RecordTimestamp = &t
	}
	if payload.Valid {
		rec.Payload = json.RawMessage(payload.String)
	}

	for i, m := range domain.KnownMeasurands {
		value, sampleCtx, unit := samples[3*i], samples[3*i+1], samples[3*i+2]
		if !value.Valid && !sampleCtx.Valid && !unit.Valid {
			continue
		}
		if rec.Measurands == nil {
			rec.Measurands = make(map[domain.Measurand]domain.MeasurandSample)
		}
		rec.Measurands[m] = domain.MeasurandSample{
			Name:    m,
			Value:   value.String,
			Context: sampleCtx.String,
			Unit:    unit.String,
		}
	}
	return rec, nil
}

// placeholders returns "$from, $from+1, ..." for n bind parameters.
func placeholders(from, n int) string {
	var b strings.Builder
	for i := range n {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(from + i))
	}
	return b.String()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullStringPtr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
