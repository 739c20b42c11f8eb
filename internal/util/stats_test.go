package util

import "testing"

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, " 0.0   B"},
		{99, "99.0   B"},
		{1536, " 1.5 KiB"},
		{100 * 1024, " 0.1 MiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatStats(t *testing.T) {
	got := formatStats(1536, 0, 4, 2, 1)
	want := "In:  1.5 KiB/s | Out:  0.0   B/s | Msg:   4↓   2↑ | Queued:   1"
	if got != want {
		t.Errorf("formatStats = %q, want %q", got, want)
	}
}

// TestStatsCounters verifies message and byte counters move together.
func TestStatsCounters(t *testing.T) {
	msgs, bytes := Stats.MessagesSent.Load(), Stats.BytesSent.Load()
	Stats.AddSent(5)
	Stats.AddSent(7)
	if d := Stats.MessagesSent.Load() - msgs; d != 2 {
		t.Errorf("messages delta = %d, want 2", d)
	}
	if d := Stats.BytesSent.Load() - bytes; d != 12 {
		t.Errorf("bytes delta = %d, want 12", d)
	}
}
