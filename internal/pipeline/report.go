package pipeline

import (
	"fmt"
	"time"
)

// FetchFailure records a port whose logs could not be fetched during a pass.
type FetchFailure struct {
	PortID string
	Err    error
}

func (f FetchFailure) Error() string {
	return fmt.Sprintf("fetch port %s: %v", f.PortID, f.Err)
}

func (f FetchFailure) Unwrap() error { return f.Err }

// PassReport summarizes one sync pass.
type PassReport struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration

	Ports         int
	LogsFetched   int
	FetchFailures []FetchFailure
	ParseFailures int

	SnapshotSize int
	BackedUp     int

	OutOfWindow int
	Known       int
	Duplicates  int
	Upserted    int

	Published    int
	PublishError error
}

// LogAttrs returns the report as slog key/value pairs.
func (p PassReport) LogAttrs() []any {
	return []any{
		"ports", p.Ports,
		"logs_fetched", p.LogsFetched,
		"fetch_failures", len(p.FetchFailures),
		"parse_failures", p.ParseFailures,
		"snapshot_size", p.SnapshotSize,
		"out_of_window", p.OutOfWindow,
		"known", p.Known,
		"duplicates", p.Duplicates,
		"upserted", p.Upserted,
		"published", p.Published,
		"duration", p.Duration,
	}
}

// PassStatus is the JSON view of a finished pass served on /status.
type PassStatus struct {
	RunID         string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	Duration      string    `json:"duration"`
	Error         string    `json:"error,omitempty"`
	Ports         int       `json:"ports"`
	LogsFetched   int       `json:"logs_fetched"`
	FetchFailures []string  `json:"fetch_failures,omitempty"`
	ParseFailures int       `json:"parse_failures"`
	SnapshotSize  int       `json:"snapshot_size"`
	OutOfWindow   int       `json:"out_of_window"`
	Known         int       `json:"known"`
	Duplicates    int       `json:"duplicates"`
	Upserted      int       `json:"upserted"`
	Published     int       `json:"published"`
	PublishError  string    `json:"publish_error,omitempty"`
}

// Status converts the report and the pass error, if any, to a PassStatus.
func (p PassReport) Status(err error) PassStatus {
	s := PassStatus{
		RunID:         p.RunID,
		StartedAt:     p.StartedAt,
		Duration:      p.Duration.String(),
		Ports:         p.Ports,
		LogsFetched:   p.LogsFetched,
		ParseFailures: p.ParseFailures,
		SnapshotSize:  p.SnapshotSize,
		OutOfWindow:   p.OutOfWindow,
		Known:         p.Known,
		Duplicates:    p.Duplicates,
		Upserted:      p.Upserted,
		Published:     p.Published,
	}
	if err != nil {
		s.Error = err.Error()
	}
	if p.PublishError != nil {
		s.PublishError = p.PublishError.Error()
	}
	for _, f := range p.FetchFailures {
		s.FetchFailures = append(s.FetchFailures, f.Error())
	}
	return s
}
