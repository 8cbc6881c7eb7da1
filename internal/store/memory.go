package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/couchcryptid/ocpp-log-etl/internal/domain"
)

// Memory is an in-process Store and PortRegistry. Rows keep insertion order.
type Memory struct {
	mu     sync.Mutex
	tables map[string][]domain.NormalizedRecord
	ports  []domain.ChargerPort
}

// NewMemory creates an empty in-memory store tracking the given ports.
func NewMemory(ports ...domain.ChargerPort) *Memory {
	return &Memory{
		tables: make(map[string][]domain.NormalizedRecord),
		ports:  ports,
	}
}

func (m *Memory) ListPorts(_ context.Context) ([]domain.ChargerPort, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.ports), nil
}

func (m *Memory) Select(_ context.Context, table string, filter Filter) ([]domain.NormalizedRecord, error) {
	if err := ValidateRecordTable(table); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.NormalizedRecord, 0, len(m.tables[table]))
	for _, r := range m.tables[table] {
		if !filter.Matches(r) {
			continue
		}
		out = append(out, r)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Insert appends rows. Like a table with a unique index, it rejects the whole
// batch when any row's identity is already present.
func (m *Memory) Insert(_ context.Context, table string, rows []domain.NormalizedRecord) error {
	if err := ValidateRecordTable(table); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := domain.NewKnownIDs(m.tables[table])
	for _, r := range rows {
		id := r.Identity()
		if existing.Has(id) {
			return fmt.Errorf("insert into %s: duplicate %s %q", table, ConflictKey, id)
		}
		existing[id] = struct{}{}
	}
	m.tables[table] = append(m.tables[table], rows...)
	return nil
}

func (m *Memory) Delete(_ context.Context, table string, filter Filter) error {
	if err := ValidateRecordTable(table); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tables[table] = slices.DeleteFunc(m.tables[table], filter.Matches)
	return nil
}

func (m *Memory) Upsert(_ context.Context, table string, rows []domain.NormalizedRecord, conflictKey string) error {
	if err := ValidateRecordTable(table); err != nil {
		return err
	}
	if conflictKey != ConflictKey {
		return fmt.Errorf("%w: %q", ErrUnsupportedConflict, conflictKey)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	index := make(map[string]int, len(m.tables[table]))
	for i, r := range m.tables[table] {
		index[r.Identity()] = i
	}
	for _, r := range rows {
		id := r.Identity()
		if i, ok := index[id]; ok {
			m.tables[table][i] = r
			continue
		}
		index[id] = len(m.tables[table])
		m.tables[table] = append(m.tables[table], r)
	}
	return nil
}

// Rows returns a copy of every row in table.
func (m *Memory) Rows(table string) []domain.NormalizedRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.tables[table])
}
