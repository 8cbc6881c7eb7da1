package kafka

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ocpp-log-etl/internal/config"
	"github.com/couchcryptid/ocpp-log-etl/internal/domain"
)

const meterValuesLine = `<- [2,"abc123","MeterValues",{"connectorId":1,"meterValue":[{"sampledValue":[{"measurand":"Voltage","value":"230","unit":"V"}]}]}]`

func TestSerializeToMessage(t *testing.T) {
	rec := domain.Normalize(domain.RawLogLine{
		PortID:    "port-1",
		Timestamp: "2024-09-03T12:00:00Z",
		Message:   meterValuesLine,
	})

	msg, err := serializeToMessage(rec)
	require.NoError(t, err)

	assert.Equal(t, []byte("port-1"), msg.Key)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "unique_id", msg.Headers[0].Key)
	assert.Equal(t, []byte(rec.UniqueID), msg.Headers[0].Value)
	assert.Equal(t, "direction", msg.Headers[1].Key)
	assert.Equal(t, []byte("CP to Server"), msg.Headers[1].Value)
	assert.Equal(t, "call_type", msg.Headers[2].Key)
	assert.Equal(t, []byte("MeterValues"), msg.Headers[2].Value)

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, rec.UniqueID, body["unique_id"])
	assert.Equal(t, "MeterValues", body["call_type"])
	assert.NotContains(t, body, "ParseFailure")
}

func TestSerializeToMessage_TextLine(t *testing.T) {
	rec := domain.Normalize(domain.RawLogLine{PortID: "port-1", Timestamp: "t", Message: "Charger rebooted"})

	msg, err := serializeToMessage(rec)
	require.NoError(t, err)

	assert.Len(t, msg.Headers, 2, "no call_type header for plain text")
	assert.Empty(t, msg.Headers[1].Value)
}

func TestWriter_PublishEmptyIsNoop(t *testing.T) {
	w := NewWriter(&config.Config{KafkaBrokers: []string{"localhost:1"}, KafkaTopic: "t"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = w.Close() })

	require.NoError(t, w.Publish(context.Background(), nil))
}
