package types

import (
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"Bronze", LevelBronze, false},
		{"bronce", LevelBronze, false},
		{"Plata", LevelSilver, false},
		{" silver ", LevelSilver, false},
		{"Oro", LevelGold, false},
		{"GOLD", LevelGold, false},
		{"platinum", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLevelFor_Boundaries(t *testing.T) {
	thresholds := DefaultLevelThresholds()

	cases := map[int]Level{
		0:  LevelBronze,
		10: LevelBronze,
		11: LevelSilver,
		30: LevelSilver,
		31: LevelGold,
		99: LevelGold,
	}
	for stars, want := range cases {
		if got := thresholds.LevelFor(stars); got != want {
			t.Errorf("LevelFor(%d) = %s, want %s", stars, got, want)
		}
	}
}

func TestDayOf_Timezone(t *testing.T) {
	// 23:30 UTC on Jan 1 is already Jan 2 in Madrid
	ts := time.Date(2026, 1, 1, 23, 30, 0, 0, time.UTC)
	madrid := time.FixedZone("CET", 3600)

	if got := DayOf(ts, time.UTC); got != "2026-01-01" {
		t.Errorf("DayOf(UTC) = %s", got)
	}
	if got := DayOf(ts, madrid); got != "2026-01-02" {
		t.Errorf("DayOf(CET) = %s", got)
	}
	if got := DayOf(ts, nil); got != "2026-01-01" {
		t.Errorf("DayOf(nil) = %s", got)
	}
}

func TestParseDay_Invalid(t *testing.T) {
	if _, err := ParseDay("2026-13-01"); err == nil {
		t.Error("expected error for month 13")
	}
}
