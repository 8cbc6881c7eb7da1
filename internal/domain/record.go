package domain

import (
	"encoding/json"
	"time"
)

// Direction is the flow of an OCPP frame relative to the central system.
type Direction string

const (
	DirectionUnknown    Direction = ""
	DirectionCPToServer Direction = "CP to Server"
	DirectionServerToCP Direction = "Server to CP"
)

// FrameKind identifies the shape of a parsed frame.
type FrameKind string

const (
	KindText       FrameKind = "text"
	KindCall       FrameKind = "call"
	KindCallResult FrameKind = "call_result"
	KindCallError  FrameKind = "call_error"
	KindSegmented  FrameKind = "segmented"
)

// ChargerPort is one tracked charging port, as listed in the charger registry.
type ChargerPort struct {
	PortID string `json:"port_uuid" yaml:"port_uuid"`
	PostID string `json:"post_id" yaml:"post_id"`
	Status string `json:"status" yaml:"status"`
}

// LogEntry is one element of the log source response body.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Msg       string `json:"msg"`
}

// RawLogLine is a log entry as reported for a single charging port, before
// any parsing. Produced by the log source and never modified afterwards.
type RawLogLine struct {
	PortID         string
	PostID         string
	Status         string
	OrganizationID string
	Timestamp      string
	Message        string
}

// ParsedFrame is the result of splitting one log message into OCPP fields.
// Payload is nil whenever the message did not carry a decodable JSON object.
type ParsedFrame struct {
	Direction Direction
	Kind      FrameKind
	CallType  *string
	MessageID *string
	Preamble  string
	Payload   json.RawMessage

	// Failure is set when the message looked like a protocol frame but could
	// not be decoded. The frame is still usable.
	Failure *ParseFailure
}

// NormalizedRecord is the flat, persisted form of a log line.
type NormalizedRecord struct {
	UniqueID        string     `json:"unique_id"`
	PortID          string     `json:"port_uuid"`
	PostID          string     `json:"post_id,omitempty"`
	Status          string     `json:"status,omitempty"`
	OrganizationID  string     `json:"organization_id"`
	Timestamp       string     `json:"timestamp"`
	RecordTimestamp *time.Time `json:"record_timestamp,omitempty"`
	Message         string     `json:"message"`

	Direction     Direction       `json:"direction,omitempty"`
	CallType      *string         `json:"call_type,omitempty"`
	MessageID     *string         `json:"message_id,omitempty"`
	Preamble      string          `json:"non_json_part,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	TransactionID *string         `json:"transaction_id,omitempty"`

	Measurands map[Measurand]MeasurandSample `json:"measurands,omitempty"`

	// ParseFailure carries the non-fatal decode outcome. Not persisted.
	ParseFailure *ParseFailure `json:"-"`
}

// Sample returns the extracted sample for m, if the record carries one.
func (r NormalizedRecord) Sample(m Measurand) (MeasurandSample, bool) {
	s, ok := r.Measurands[m]
	return s, ok
}

// EventTime returns the parsed record timestamp, parsing the raw value when
// the record was built without one.
func (r NormalizedRecord) EventTime() (time.Time, bool) {
	if r.RecordTimestamp != nil {
		return *r.RecordTimestamp, true
	}
	return ParseTimestamp(r.Timestamp)
}

// Identity returns the record's dedup key, computing it when unset.
func (r NormalizedRecord) Identity() string {
	if r.UniqueID != "" {
		return r.UniqueID
	}
	return UniqueID(r.Timestamp, r.Message, r.PortID)
}
