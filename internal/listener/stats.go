package listener

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Vodeneev/oddsapi/internal/pkg/logging"
)

// Status is the per-item result of a consumer iteration.
type Status int

const (
	StatusAdded Status = iota
	StatusUpdated
	StatusNotFound
	StatusDateParseError
	StatusDecodeError
)

func (s Status) String() string {
	switch s {
	case StatusAdded:
		return "added"
	case StatusUpdated:
		return "updated"
	case StatusNotFound:
		return "not_found"
	case StatusDateParseError:
		return "dateparse_error"
	case StatusDecodeError:
		return "decode_error"
	}
	return "unknown"
}

type ErrorCounts struct {
	NotFound       int64 `json:"not_found"`
	DateParseError int64 `json:"dateparse_error"`
	Decode         int64 `json:"decode"`
}

// Snapshot is a copy of the counters at one point in time.
type Snapshot struct {
	TotalEvents int64       `json:"total_events"`
	Added       int64       `json:"added"`
	Updated     int64       `json:"updated"`
	Errors      ErrorCounts `json:"errors"`
}

func (s *Snapshot) add(st Status) {
	s.TotalEvents++
	switch st {
	case StatusAdded:
		s.Added++
	case StatusUpdated:
		s.Updated++
	case StatusNotFound:
		s.Errors.NotFound++
	case StatusDateParseError:
		s.Errors.DateParseError++
	case StatusDecodeError:
		s.Errors.Decode++
	}
}

// Stats is shared by all consumers of a process.
type Stats struct {
	mu       sync.Mutex
	total    Snapshot
	bySource map[string]*Snapshot

	events *prometheus.CounterVec
}

// NewStats creates the counters and registers the Prometheus mirror on reg
// when reg is not nil.
func NewStats(reg prometheus.Registerer) *Stats {
	events := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oddsapi_listener_events_total",
			Help: "Queue events processed by the listener, by source and status",
		},
		[]string{"source", "status"},
	)
	if reg != nil {
		if err := reg.Register(events); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				events = are.ExistingCollector.(*prometheus.CounterVec)
			} else {
				slog.Warn("Failed to register listener metrics", "error", err)
			}
		}
	}
	return &Stats{
		bySource: map[string]*Snapshot{},
		events:   events,
	}
}

func (s *Stats) Record(source string, st Status) {
	s.mu.Lock()
	s.total.add(st)
	snap, ok := s.bySource[source]
	if !ok {
		snap = &Snapshot{}
		s.bySource[source] = snap
	}
	snap.add(st)
	s.mu.Unlock()

	s.events.WithLabelValues(source, st.String()).Inc()
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Sources returns per-source snapshots keyed by source name.
func (s *Stats) Sources() map[string]Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Snapshot, len(s.bySource))
	for k, v := range s.bySource {
		out[k] = *v
	}
	return out
}

// RunReporter logs the counters every interval until ctx is done.
func RunReporter(ctx context.Context, stats *Stats, interval time.Duration, logger *slog.Logger) error {
	logger = logging.OrDefault(logger)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		report(stats, logger)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func report(stats *Stats, logger *slog.Logger) {
	total := stats.Snapshot()
	attrs := []any{
		"total_events", total.TotalEvents,
		"added", total.Added,
		"updated", total.Updated,
		"not_found", total.Errors.NotFound,
		"dateparse_error", total.Errors.DateParseError,
		"decode_error", total.Errors.Decode,
	}

	sources := stats.Sources()
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		attrs = append(attrs, slog.Int64(name, sources[name].TotalEvents))
	}
	logger.Info("Processing stats", attrs...)
}
