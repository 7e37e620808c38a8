package models

import (
	"testing"
	"time"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"2.5", "2.5", false},
		{" +1 ", "1", false},
		{"-1.5", "-1.5", false},
		{"‑1.5", "-1.5", false},
		{"‒0.25", "-0.25", false},
		{"–2", "-2", false},
		{"−0.5", "-0.5", false},
		{"2.50", "2.5", false},
		{"abc", "", true},
	}
	for _, tt := range tests {
		got, err := ParseLine(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLine(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if err == nil && got.String() != tt.want {
			t.Errorf("ParseLine(%q) = %s, want %s", tt.input, got.String(), tt.want)
		}
	}
}

func TestOddsUpdateEmpty(t *testing.T) {
	if !(OddsUpdate{EventURL: "x"}).Empty() {
		t.Error("update without blocks should be empty")
	}
	if (OddsUpdate{Totals: Totals{{Over: 1.9, Under: 1.9}}}).Empty() {
		t.Error("update with totals should not be empty")
	}
}

func TestTotalsScanNull(t *testing.T) {
	totals := Totals{{Over: 1}}
	if err := totals.Scan(nil); err != nil {
		t.Fatal(err)
	}
	if totals != nil {
		t.Errorf("Scan(nil) left %v", totals)
	}
	v, err := Totals(nil).Value()
	if err != nil || v != nil {
		t.Errorf("nil Totals Value() = %v, %v", v, err)
	}
}

func TestOutcomeScanRejectsUnknownType(t *testing.T) {
	var o Outcome
	if err := o.Scan(42); err == nil {
		t.Error("expected error scanning int")
	}
}

func TestFixtureStarted(t *testing.T) {
	kickoff := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	f := Fixture{Date: kickoff}
	if !f.Started(kickoff) {
		t.Error("fixture at now should count as started")
	}
	if f.Started(kickoff.Add(-time.Minute)) {
		t.Error("future fixture reported as started")
	}
}
