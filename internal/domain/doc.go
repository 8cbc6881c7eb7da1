// Package domain models OCPP session logs reported by EV charging ports and
// the rules for turning them into deduplicated store records.
//
// # Log Source
//
// Each charging port exposes its recent log lines as a JSON array of
// {"timestamp", "msg"} objects. A line is either free text emitted by the
// charger firmware or an OCPP-J frame prefixed with an arrow marker:
//
//	<- [2,"4f1c","MeterValues",{"connectorId":1,"meterValue":[...]}]   charger to server
//	-> [3,"4f1c",{}]                                                    server to charger
//
// Some firmware logs frames in a segment form instead of a JSON array:
//
//	<- MeterValues, 4f1c, payload {"connectorId":1,...}
//
// Only the first two commas outside quotes and braces separate segments: call
// type, message id, then free text up to the first '{' (the preamble) and the
// JSON body. Lines without an arrow marker skip frame parsing entirely.
//
// # Decode Failures
//
// A protocol-shaped line that cannot be decoded is not an error for the
// caller. The record keeps the original message as its preamble, every
// derived field stays nil, and the frame carries a [ParseFailure] so the
// failure can be counted. See [ParseFrame].
//
// # Measurands
//
// MeterValues payloads carry meterValue[0].sampledValue, a list of
// {measurand, value, context, unit}. The nine measurands in [KnownMeasurands]
// are flattened onto each record; the first entry with an exactly matching
// name wins. Absent measurands are the common case, not an error.
//
// # Transaction IDs
//
// The payload's transactionId takes precedence. Otherwise the first
// 36-character hyphenated hex token in the raw message is used, which is how
// most firmware logs device and session identifiers.
//
// # Identity and Deduplication
//
// A record's identity is timestamp + "-*-*-" + message + "-*-*-" + port id.
// It is a pure function of those three fields and is the only dedup key, so
// re-fetching the same line always maps to the same stored row and the store
// upserts on it. [Reconcile] keeps candidates that fall inside a trailing
// window, are not already stored, and are the first of their identity in the
// batch. Given the same inputs it returns the same output, and running it
// again with its own output added to the known set returns nothing.
package domain
