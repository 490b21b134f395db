package poller

import "testing"

func TestParseDurationSeconds(t *testing.T) {
	cases := []struct {
		value   string
		want    int
		wantOK  bool
	}{
		{"5m", 300, true},
		{"10s", 10, true},
		{"1h", 3600, true},
		{"45", 45, true},
		{"  30s  ", 30, true},
		{"5M", 300, true},
		{"", 0, false},
		{"abc", 0, false},
		{"-5s", 0, false},
	}

	for _, c := range cases {
		got, ok := ParseDurationSeconds(c.value)
		if ok != c.wantOK || (ok && got != c.want) {
			t.Errorf("ParseDurationSeconds(%q) = (%d, %v), want (%d, %v)", c.value, got, ok, c.want, c.wantOK)
		}
	}
}

func TestDetermineIntervalSeconds(t *testing.T) {
	cases := []struct {
		name    string
		poll    string
		def     int
		want    int
	}{
		{"valid override", "10m", 300, 600},
		{"empty falls back", "", 300, 300},
		{"invalid falls back", "not-a-duration", 300, 300},
		{"zero falls back", "0s", 300, 300},
		{"whitespace falls back", "   ", 300, 300},
	}

	for _, c := range cases {
		got := DetermineIntervalSeconds(c.poll, c.def)
		if got != c.want {
			t.Errorf("%s: DetermineIntervalSeconds(%q, %d) = %d, want %d", c.name, c.poll, c.def, got, c.want)
		}
	}
}
