package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/ocpp-log-etl/internal/domain"
)

// ErrNoChargers is returned when a chargers file lists no ports.
var ErrNoChargers = errors.New("chargers file lists no ports")

type chargersFile struct {
	Chargers []domain.ChargerPort `yaml:"chargers"`
}

// LoadPorts reads the tracked-port registry from a YAML file of the form
//
//	chargers:
//	  - port_uuid: 362bec58-3f5d-49d1-a8bc-2b67757c3c78
//	    post_id: post-7
//	    status: Available
func LoadPorts(path string) ([]domain.ChargerPort, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chargers file: %w", err)
	}
	return parsePorts(data)
}

func parsePorts(data []byte) ([]domain.ChargerPort, error) {
	var f chargersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse chargers file: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Chargers))
	ports := make([]domain.ChargerPort, 0, len(f.Chargers))
	for i, p := range f.Chargers {
		p.PortID = strings.TrimSpace(p.PortID)
		if p.PortID == "" {
			return nil, fmt.Errorf("chargers[%d]: port_uuid is required", i)
		}
		if _, dup := seen[p.PortID]; dup {
			return nil, fmt.Errorf("chargers[%d]: duplicate port_uuid %q", i, p.PortID)
		}
		seen[p.PortID] = struct{}{}
		ports = append(ports, p)
	}
	if len(ports) == 0 {
		return nil, ErrNoChargers
	}
	return ports, nil
}

// StaticPorts is a fixed port registry, typically loaded from CHARGERS_FILE.
type StaticPorts []domain.ChargerPort

func (s StaticPorts) ListPorts(_ context.Context) ([]domain.ChargerPort, error) {
	return append([]domain.ChargerPort(nil), s...), nil
}
