package store

import (
	"context"
	"testing"
	"time"

	"github.com/couchcryptid/ocpp-log-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 9, 3, 12, 0, 0, 0, time.UTC)

func rec(offset time.Duration, message string) domain.NormalizedRecord {
	return domain.Normalize(domain.RawLogLine{
		PortID:    "port-1",
		Timestamp: base.Add(offset).Format(time.RFC3339Nano),
		Message:   message,
	})
}

func messages(recs []domain.NormalizedRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Message
	}
	return out
}

func TestMemory_UnknownTable(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.Select(ctx, TableChargers, Filter{})
	require.ErrorIs(t, err, ErrUnknownTable)
	require.ErrorIs(t, m.Insert(ctx, "nope", nil), ErrUnknownTable)
	require.ErrorIs(t, m.Delete(ctx, "nope", Filter{}), ErrUnknownTable)
	require.ErrorIs(t, m.Upsert(ctx, "nope", nil, ConflictKey), ErrUnknownTable)
}

func TestMemory_SelectFilter(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Insert(ctx, TableLogs, []domain.NormalizedRecord{
		rec(-2*time.Hour, "old"),
		rec(-time.Hour, "mid"),
		rec(0, "new"),
	}))

	all, err := m.Select(ctx, TableLogs, Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"old", "mid", "new"}, messages(all))

	recent, err := m.Select(ctx, TableLogs, Filter{Since: base.Add(-time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, []string{"mid", "new"}, messages(recent))

	limited, err := m.Select(ctx, TableLogs, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, messages(limited))
}

func TestMemory_InsertRejectsDuplicates(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	r := rec(0, "a")

	require.NoError(t, m.Insert(ctx, TableBackup, []domain.NormalizedRecord{r}))
	require.Error(t, m.Insert(ctx, TableBackup, []domain.NormalizedRecord{rec(time.Second, "b"), r}))

	assert.Equal(t, []string{"a"}, messages(m.Rows(TableBackup)), "failed batch leaves table unchanged")
}

func TestMemory_Delete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Insert(ctx, TableBackup, []domain.NormalizedRecord{rec(-time.Hour, "a"), rec(0, "b")}))

	require.NoError(t, m.Delete(ctx, TableBackup, Filter{Since: base}))
	assert.Equal(t, []string{"a"}, messages(m.Rows(TableBackup)))

	require.NoError(t, m.Delete(ctx, TableBackup, Filter{}))
	assert.Empty(t, m.Rows(TableBackup))
}

func TestMemory_Upsert(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	a := rec(0, "a")

	require.NoError(t, m.Upsert(ctx, TableLogs, []domain.NormalizedRecord{a, rec(time.Second, "b")}, ConflictKey))

	updated := a
	updated.Status = "Charging"
	require.NoError(t, m.Upsert(ctx, TableLogs, []domain.NormalizedRecord{updated}, ConflictKey))

	rows := m.Rows(TableLogs)
	require.Len(t, rows, 2)
	assert.Equal(t, "Charging", rows[0].Status)
	assert.Equal(t, "b", rows[1].Message)
}

func TestMemory_UpsertConflictKey(t *testing.T) {
	err := NewMemory().Upsert(context.Background(), TableLogs, nil, "id")
	require.ErrorIs(t, err, ErrUnsupportedConflict)
}

func TestMemory_ListPorts(t *testing.T) {
	ports := []domain.ChargerPort{{PortID: "p1"}, {PortID: "p2", PostID: "post"}}
	m := NewMemory(ports...)

	got, err := m.ListPorts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ports, got)

	got[0].PortID = "mutated"
	again, _ := m.ListPorts(context.Background())
	assert.Equal(t, "p1", again[0].PortID)
}

func TestFilter_Matches(t *testing.T) {
	unparsable := domain.NormalizedRecord{Timestamp: "??"}

	assert.True(t, Filter{}.Matches(unparsable))
	assert.False(t, Filter{Since: base}.Matches(unparsable))
	assert.True(t, Filter{Since: base}.Matches(rec(0, "x")))
	assert.False(t, Filter{Since: base}.Matches(rec(-time.Nanosecond, "x")))
}
