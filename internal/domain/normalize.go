package domain

import (
	"encoding/json"
)

// Normalize turns one raw log line into a flat record. It never fails and
// never drops the line: anything that cannot be decoded leaves the derived
// fields nil, and the decode outcome is kept on ParseFailure for reporting.
func Normalize(raw RawLogLine) NormalizedRecord {
	frame := ParseFrame(raw.Message)

	rec := NormalizedRecord{
		UniqueID:       UniqueID(raw.Timestamp, raw.Message, raw.PortID),
		PortID:         raw.PortID,
		PostID:         raw.PostID,
		Status:         raw.Status,
		OrganizationID: raw.OrganizationID,
		Timestamp:      raw.Timestamp,
		Message:        raw.Message,
		Direction:      frame.Direction,
		CallType:       frame.CallType,
		MessageID:      frame.MessageID,
		Preamble:       frame.Preamble,
		Payload:        frame.Payload,
		ParseFailure:   frame.Failure,
	}

	if ts, ok := ParseTimestamp(raw.Timestamp); ok {
		rec.RecordTimestamp = &ts
	}

	if frame.Direction == DirectionUnknown {
		return rec
	}

	fields := payloadFields(frame.Payload)
	rec.Measurands = ExtractKnownMeasurands(firstSampledValues(fields))
	rec.TransactionID = resolveTransactionID(fields, raw.Message)
	return rec
}

// NormalizeAll normalizes a batch, preserving input order.
func NormalizeAll(lines []RawLogLine) []NormalizedRecord {
	out := make([]NormalizedRecord, len(lines))
	for i, l := range lines {
		out[i] = Normalize(l)
	}
	return out
}

// payloadFields decodes the top-level keys of a JSON object payload.
func payloadFields(payload json.RawMessage) map[string]json.RawMessage {
	if len(payload) == 0 {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil
	}
	return fields
}

// firstSampledValues returns meterValue[0].sampledValue, or nil when the
// payload does not have that shape.
func firstSampledValues(fields map[string]json.RawMessage) []SampledValue {
	raw, ok := fields["meterValue"]
	if !ok {
		return nil
	}
	var meterValues []struct {
		SampledValue []SampledValue `json:"sampledValue"`
	}
	if err := json.Unmarshal(raw, &meterValues); err != nil || len(meterValues) == 0 {
		return nil
	}
	return meterValues[0].SampledValue
}

// resolveTransactionID prefers the payload's transactionId over a UUID found
// anywhere in the raw message.
func resolveTransactionID(fields map[string]json.RawMessage, message string) *string {
	if raw, ok := fields["transactionId"]; ok {
		if id := scalarString(raw); id != "" {
			return &id
		}
	}
	return ExtractTransactionUUID(message)
}
