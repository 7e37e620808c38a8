package listener

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/Vodeneev/oddsapi/internal/pkg/models"
)

// Normalizer rewrites source specific market encodings into the shared wire
// shape before conversion.
type Normalizer func(raw *rawEvent) error

// Source describes one odds feed. Its Name is both the queue name and the
// bookmaker recorded on stored snapshots.
type Source struct {
	Name      string
	Normalize Normalizer
}

// Decode parses a queue item of this source.
func (s Source) Decode(data []byte) (Event, error) {
	return decodeEvent(data, s.Normalize)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Source{}
)

// Register adds a source. It panics on empty or duplicate names.
func Register(s Source) {
	n := strings.ToLower(strings.TrimSpace(s.Name))
	if n == "" {
		panic("listener: empty name in Register")
	}
	s.Name = n

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[n]; exists {
		panic("listener: duplicate registration for " + n)
	}
	registry[n] = s
}

func SourceByName(name string) (Source, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[n]
	return s, ok
}

func AvailableNames() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Resolve maps names to sources; an empty list selects every source.
func Resolve(names []string) ([]Source, error) {
	if len(names) == 0 {
		names = AvailableNames()
	}
	out := make([]Source, 0, len(names))
	for _, name := range names {
		s, ok := SourceByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown source %q (available: %v)", name, AvailableNames())
		}
		out = append(out, s)
	}
	return out, nil
}

func init() {
	Register(Source{Name: "betcity", Normalize: keyedTotals(firstHalfTotals)})
	Register(Source{Name: "fonbet"})
	Register(Source{Name: "marathon", Normalize: keyedTotals(fullTimeTotals, firstHalfTotals)})
	Register(Source{Name: "pinnacle", Normalize: keyedTotals(fullTimeTotals, firstHalfTotals)})
}

type totalsBlock int

const (
	fullTimeTotals totalsBlock = iota
	firstHalfTotals
)

// keyedTotals converts totals blocks encoded as {"<line>": {...}} into arrays
// of records carrying the line in "total". Arrays pass through unchanged.
func keyedTotals(blocks ...totalsBlock) Normalizer {
	return func(raw *rawEvent) error {
		for _, b := range blocks {
			field := &raw.TotalOdds
			if b == firstHalfTotals {
				field = &raw.FirstHalfTotalOdds
			}
			converted, err := keyedToArray(*field)
			if err != nil {
				return err
			}
			*field = converted
		}
		return nil
	}
}

func keyedToArray(data json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return data, nil
	}

	var byLine map[string]map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &byLine); err != nil {
		return nil, fmt.Errorf("keyed totals: %w", err)
	}

	type keyed struct {
		line   decimal.Decimal
		record map[string]json.RawMessage
	}
	records := make([]keyed, 0, len(byLine))
	for line, rec := range byLine {
		d, err := models.ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("keyed totals: %w", err)
		}
		if rec == nil {
			rec = map[string]json.RawMessage{}
		}
		quoted, _ := json.Marshal(line)
		rec["total"] = quoted
		records = append(records, keyed{line: d, record: rec})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].line.LessThan(records[j].line) })

	out := make([]map[string]json.RawMessage, len(records))
	for i, r := range records {
		out[i] = r.record
	}
	return json.Marshal(out)
}
