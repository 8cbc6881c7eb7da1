package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const (
	markerInbound  = "<-"
	markerOutbound = "->"
)

// OCPP-J message type ids.
const (
	msgTypeCall       = 2
	msgTypeCallResult = 3
	msgTypeCallError  = 4
)

// transactionUUIDRe matches a hyphenated 36-character hex token, the shape the
// charger firmware uses for device and session identifiers.
var transactionUUIDRe = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// DetectDirection reports the frame direction from the arrow marker. The
// inbound marker wins when both appear, wherever they sit in the line.
func DetectDirection(message string) Direction {
	switch {
	case strings.Contains(message, markerInbound):
		return DirectionCPToServer
	case strings.Contains(message, markerOutbound):
		return DirectionServerToCP
	default:
		return DirectionUnknown
	}
}

// ParseFrame splits a raw log message into its OCPP fields. It never fails:
// messages without an arrow marker are returned as plain text, and protocol
// messages that cannot be decoded come back with Failure set and the original
// message as the preamble.
func ParseFrame(message string) ParsedFrame {
	dir := DetectDirection(message)
	if dir == DirectionUnknown {
		return ParsedFrame{Kind: KindText}
	}

	body := strings.TrimSpace(stripMarker(message))

	if frame, ok := parseArrayFrame(body); ok {
		frame.Direction = dir
		return frame
	}

	frame, failure := parseSegments(body)
	if failure != nil {
		return ParsedFrame{
			Direction: dir,
			Kind:      KindText,
			Preamble:  message,
			Failure:   failure,
		}
	}
	frame.Direction = dir
	return frame
}

// ExtractTransactionUUID returns the first UUID-shaped token in the message.
func ExtractTransactionUUID(message string) *string {
	m := transactionUUIDRe.FindString(message)
	if m == "" {
		return nil
	}
	return &m
}

// stripMarker drops everything up to and including the earliest arrow
// marker. Markers later in the line belong to the frame body.
func stripMarker(message string) string {
	idx, size := -1, 0
	for _, marker := range []string{markerInbound, markerOutbound} {
		if i := strings.Index(message, marker); i >= 0 && (idx < 0 || i < idx) {
			idx, size = i, len(marker)
		}
	}
	if idx < 0 {
		return message
	}
	return message[idx+size:]
}

// parseArrayFrame decodes an OCPP-J array frame such as
// [2,"id","MeterValues",{...}]. It returns false when body is not one, so the
// caller can fall back to the segment form.
func parseArrayFrame(body string) (ParsedFrame, bool) {
	if !strings.HasPrefix(body, "[") {
		return ParsedFrame{}, false
	}

	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(body), &elems); err != nil || len(elems) < 3 {
		return ParsedFrame{}, false
	}

	var msgType int
	if err := json.Unmarshal(elems[0], &msgType); err != nil {
		return ParsedFrame{}, false
	}

	messageID := optional(scalarString(elems[1]))

	switch msgType {
	case msgTypeCall:
		if len(elems) < 4 {
			return ParsedFrame{}, false
		}
		return ParsedFrame{
			Kind:      KindCall,
			CallType:  optional(scalarString(elems[2])),
			MessageID: messageID,
			Payload:   objectOrNil(elems[3]),
		}, true
	case msgTypeCallResult:
		return ParsedFrame{
			Kind:      KindCallResult,
			MessageID: messageID,
			Payload:   objectOrNil(elems[2]),
		}, true
	case msgTypeCallError:
		frame := ParsedFrame{
			Kind:      KindCallError,
			MessageID: messageID,
			Preamble:  scalarString(elems[2]),
		}
		if len(elems) > 3 {
			if desc := scalarString(elems[3]); desc != "" {
				frame.Preamble += ": " + desc
			}
		}
		if len(elems) > 4 {
			frame.Payload = objectOrNil(elems[4])
		}
		return frame, true
	default:
		return ParsedFrame{}, false
	}
}

// parseSegments handles the "<call type>, <message id>, <preamble>{json}" form.
// Only the first two commas outside quotes and braces separate segments.
func parseSegments(body string) (ParsedFrame, *ParseFailure) {
	first, second := topLevelCommas(body)
	if second < 0 {
		return ParsedFrame{}, parseFailure(ReasonMalformedFrame, ErrMalformedFrame)
	}

	callType := unquote(strings.TrimLeft(strings.TrimSpace(body[:first]), "[ "))
	messageID := unquote(body[first+1 : second])
	rest := body[second+1:]

	brace := strings.IndexByte(rest, '{')
	if brace < 0 {
		return ParsedFrame{}, parseFailure(ReasonMissingJSON, ErrMissingJSON)
	}

	payload, err := decodeObject(rest[brace:])
	if err != nil {
		return ParsedFrame{}, parseFailure(ReasonInvalidJSON, err)
	}

	return ParsedFrame{
		Kind:      KindSegmented,
		CallType:  optional(callType),
		MessageID: optional(messageID),
		Preamble:  strings.TrimSpace(rest[:brace]),
		Payload:   payload,
	}, nil
}

// topLevelCommas returns the byte offsets of the first two commas that are
// not inside a quoted string or a JSON object, or -1 when absent.
func topLevelCommas(s string) (int, int) {
	first, second := -1, -1
	depth := 0
	inQuote, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inQuote {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inQuote = false
			}
			continue
		}
		switch c {
		case '"':
			inQuote = true
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth > 0 {
				continue
			}
			if first < 0 {
				first = i
				continue
			}
			second = i
			return first, second
		}
	}
	return first, second
}

// decodeObject decodes the leading JSON object of s. Anything after it other
// than whitespace and the closing frame bracket is rejected.
func decodeObject(s string) (json.RawMessage, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if trailing := strings.Trim(s[dec.InputOffset():], " \t\r\n]"); trailing != "" {
		return nil, fmt.Errorf("unexpected data after JSON body: %q", truncate(trailing, 32))
	}
	return raw, nil
}

func objectOrNil(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	return trimmed
}

// scalarString renders a JSON string or number as plain text.
func scalarString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func unquote(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"'`)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
