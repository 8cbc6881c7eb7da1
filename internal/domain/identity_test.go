package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniqueID(t *testing.T) {
	t.Run("format", func(t *testing.T) {
		assert.Equal(t, "ts-*-*-msg-*-*-port", UniqueID("ts", "msg", "port"))
	})

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t,
			UniqueID(testTimestamp, testMeterValuesCall, testPortID),
			UniqueID(testTimestamp, testMeterValuesCall, testPortID),
		)
	})

	t.Run("any field change gives a new id", func(t *testing.T) {
		base := UniqueID(testTimestamp, "msg", testPortID)
		assert.NotEqual(t, base, UniqueID("2024-09-03T12:00:00.001Z", "msg", testPortID))
		assert.NotEqual(t, base, UniqueID(testTimestamp, "msg2", testPortID))
		assert.NotEqual(t, base, UniqueID(testTimestamp, "msg", "other-port"))
	})

	t.Run("protocol punctuation does not collide", func(t *testing.T) {
		assert.NotEqual(t, UniqueID("a,b", "c", "d"), UniqueID("a", "b,c", "d"))
		assert.NotEqual(t, UniqueID("a-b", "c", "d"), UniqueID("a", "b-c", "d"))
	})
}

func TestNormalizedRecord_Identity(t *testing.T) {
	rec := NormalizedRecord{Timestamp: "t", Message: "m", PortID: "p"}
	assert.Equal(t, UniqueID("t", "m", "p"), rec.Identity())

	rec.UniqueID = "stored-id"
	assert.Equal(t, "stored-id", rec.Identity())
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 9, 3, 12, 34, 56, 789000000, time.UTC)

	tests := []struct {
		name  string
		input string
		want  time.Time
		ok    bool
	}{
		{"RFC3339 Z", "2024-09-03T12:34:56.789Z", want, true},
		{"RFC3339 offset", "2024-09-03T14:34:56.789+02:00", want, true},
		{"space separated offset", "2024-09-03 12:34:56.789+00:00", want, true},
		{"short offset", "2024-09-03 12:34:56.789+00", want, true},
		{"offset without colon", "2024-09-03T12:34:56.789+0000", want, true},
		{"negative offset without colon", "2024-09-03 07:34:56.789-0500", want, true},
		{"naive is UTC", "2024-09-03T12:34:56.789", want, true},
		{"naive space", "2024-09-03 12:34:56.789", want, true},
		{"no fraction", "2024-09-03T12:34:56Z", want.Truncate(time.Second), true},
		{"padded", "  2024-09-03T12:34:56.789Z ", want, true},
		{"empty", "", time.Time{}, false},
		{"garbage", "not a time", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.input)
			require.Equal(t, tt.ok, ok)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}
