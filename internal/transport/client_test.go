package transport

import "testing"

func TestParseContentRangeTotal(t *testing.T) {
	cases := map[string]int64{
		"bytes 0-0/12345": 12345,
		"bytes 0-0/*":     0,
		"":                0,
		"garbage":         0,
	}
	for header, want := range cases {
		if got := parseContentRangeTotal(header); got != want {
			t.Errorf("parseContentRangeTotal(%q) = %d, want %d", header, got, want)
		}
	}
}

func TestParseFilename(t *testing.T) {
	got := parseFilename(`attachment; filename="report.csv"`)
	if got != "report.csv" {
		t.Errorf("parseFilename() = %q, want report.csv", got)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.RedirectPolicy != "limited" {
		t.Errorf("expected limited redirect policy by default")
	}
	if _, err := New(cfg); err != nil {
		t.Fatalf("New(DefaultConfig()) error: %v", err)
	}
}
