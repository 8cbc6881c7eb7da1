//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/ocpp-log-etl/internal/adapter/postgres"
	"github.com/couchcryptid/ocpp-log-etl/internal/domain"
	"github.com/couchcryptid/ocpp-log-etl/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const meterValuesLine = `<- [2,"abc123","MeterValues",{"connectorId":1,"meterValue":[{"sampledValue":[{"measurand":"Voltage","value":"230","context":"Sample.Periodic","unit":"V"}]}]}]`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startPostgres(ctx context.Context, t *testing.T) string {
	t.Helper()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "ocpp",
				"POSTGRES_PASSWORD": "ocpp",
				"POSTGRES_DB":       "ocpp",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://ocpp:ocpp@%s:%s/ocpp?sslmode=disable", host, port.Port())
}

func TestStore_RoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dsn := startPostgres(ctx, t)
	require.NoError(t, postgres.Migrate(dsn, discardLogger()))
	require.NoError(t, postgres.Migrate(dsn, discardLogger()), "second run is a no-op")

	db, err := postgres.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s := postgres.NewStore(db, discardLogger())

	_, err = db.ExecContext(ctx, `INSERT INTO chargers (port_uuid, post_id, status) VALUES ('port-b', 'post-2', NULL), ('port-a', 'post-1', 'Available')`)
	require.NoError(t, err)

	ports, err := s.ListPorts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.ChargerPort{
		{PortID: "port-a", PostID: "post-1", Status: "Available"},
		{PortID: "port-b", PostID: "post-2"},
	}, ports)

	meter := domain.Normalize(domain.RawLogLine{
		PortID: "port-a", PostID: "post-1", OrganizationID: "org-1",
		Timestamp: "2024-09-03T12:00:00Z", Message: meterValuesLine,
	})
	text := domain.Normalize(domain.RawLogLine{
		PortID: "port-a", Timestamp: "2024-09-03T11:00:00Z", Message: "Charger rebooted",
	})

	require.NoError(t, s.Upsert(ctx, store.TableLogs, []domain.NormalizedRecord{meter, text}, store.ConflictKey))
	require.NoError(t, s.Upsert(ctx, store.TableLogs, []domain.NormalizedRecord{meter}, store.ConflictKey), "upsert is idempotent")

	rows, err := s.Select(ctx, store.TableLogs, store.Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, text.UniqueID, rows[0].UniqueID)

	got := rows[1]
	assert.Equal(t, meter.UniqueID, got.UniqueID)
	require.NotNil(t, got.CallType)
	assert.Equal(t, "MeterValues", *got.CallType)
	voltage, ok := got.Sample(domain.MeasurandVoltage)
	require.True(t, ok)
	assert.Equal(t, "230", voltage.Value)
	assert.JSONEq(t, string(meter.Payload), string(got.Payload))

	recent, err := s.Select(ctx, store.TableLogs, store.Filter{Since: time.Date(2024, 9, 3, 11, 30, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	require.NoError(t, s.Insert(ctx, store.TableBackup, rows))
	require.Error(t, s.Insert(ctx, store.TableBackup, rows[:1]), "duplicate unique_id")
	require.NoError(t, s.Delete(ctx, store.TableBackup, store.Filter{}))
	backup, err := s.Select(ctx, store.TableBackup, store.Filter{})
	require.NoError(t, err)
	assert.Empty(t, backup)
}
