package cudaver

import (
	"errors"
	"testing"

	"gridup"
)

func TestResolvePicksHighestThresholdAtOrBelow(t *testing.T) {
	tests := []struct {
		driver       string
		wantToolkit  string
		wantDegraded bool
	}{
		{"600.0", "12.1", false},
		{"525.60.13", "12.1", false},
		{"525.60", "12.1", false},
		{"525.59", "11.7", false},
		{"515.43", "11.7", false},
		{"515.105.01", "11.7", false},
		{"510.39", "11.6", false},
		{"470.199.02", "11.4", false},
		{"450.80", "11.0", false},
		{"450.79", "11.0", true},
		{"400.0", "11.0", true},
	}
	for _, tt := range tests {
		got, err := Resolve(tt.driver)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", tt.driver, err)
		}
		if got.Toolkit != tt.wantToolkit {
			t.Errorf("Resolve(%q).Toolkit = %q, want %q", tt.driver, got.Toolkit, tt.wantToolkit)
		}
		if got.Degraded != tt.wantDegraded {
			t.Errorf("Resolve(%q).Degraded = %v, want %v", tt.driver, got.Degraded, tt.wantDegraded)
		}
	}
}

// Multi-digit components must order numerically: 525 > 70 even though the
// strings compare the other way.
func TestResolveComparesNumerically(t *testing.T) {
	got, err := Resolve("70.5")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !got.Degraded || got.Toolkit != Oldest() {
		t.Errorf("Resolve(70.5) = %+v, want degraded fallback to %s", got, Oldest())
	}

	newest, err := Resolve("525.60")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if newest.Toolkit != Newest() {
		t.Errorf("Resolve(525.60).Toolkit = %q, want %q", newest.Toolkit, Newest())
	}
}

func TestResolveRejectsUnparsableVersions(t *testing.T) {
	for _, driver := range []string{"", "   ", "abc", "x.y", "12a.0"} {
		_, err := Resolve(driver)
		if err == nil {
			t.Errorf("Resolve(%q): expected error", driver)
			continue
		}
		if !errors.Is(err, gridup.ErrPrerequisite) {
			t.Errorf("Resolve(%q) error = %v, want ErrPrerequisite", driver, err)
		}
	}
}

func TestParseArbitraryPrecision(t *testing.T) {
	v, err := Parse("535.183.01.002")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if v.Major != 535 || v.Minor != 183 {
		t.Errorf("Parse = %+v, want 535.183", v)
	}

	v, err = Parse("525")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if v.Major != 525 || v.Minor != 0 {
		t.Errorf("Parse = %+v, want 525.0", v)
	}
}
