package portefeuille

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		input    string
		expected Date
		err      bool
	}{
		{"2025-01-15", NewDate(2025, time.January, 15), false},
		{"2025-7-1", NewDate(2025, time.July, 1), false},
		{" 2025-01-15 ", NewDate(2025, time.January, 15), false},
		{"2025-01-15T10:30:00Z", NewDate(2025, time.January, 15), false},
		{"invalid-date", Date{}, true},
		{"", Date{}, true},
	}

	for _, tt := range tests {
		got, err := ParseDate(tt.input)
		if tt.err {
			if err == nil {
				t.Errorf("ParseDate(%q) expected an error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDate(%q) failed: %v", tt.input, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseDate(%q) = %s, want %s", tt.input, got, tt.expected)
		}
	}
}

func TestDateOrdering(t *testing.T) {
	a := NewDate(2025, time.January, 15)
	b := NewDate(2025, time.January, 16)
	if !a.Before(b) || b.Before(a) || !b.After(a) {
		t.Errorf("ordering broken between %s and %s", a, b)
	}
	if a.Before(a) || a.After(a) {
		t.Error("a date compares against itself")
	}
}

func TestDateAddNormalizes(t *testing.T) {
	d := NewDate(2025, time.January, 31).Add(1)
	if d != NewDate(2025, time.February, 1) {
		t.Errorf("Add(1) = %s, want 2025-02-01", d)
	}
}

func TestDateJSONRoundTrip(t *testing.T) {
	d := NewDate(2025, time.July, 1)
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `"2025-07-01"` {
		t.Errorf("Marshal = %s, want \"2025-07-01\"", data)
	}
	var back Date
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if back != d {
		t.Errorf("round trip = %s, want %s", back, d)
	}
}
