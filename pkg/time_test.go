package pkg

import (
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "0"},
		{500 * time.Nanosecond, "500ns"},
		{42 * time.Microsecond, "42μs"},
		{1500 * time.Microsecond, "1ms"},
		{time.Second, "1s"},
		{2*time.Minute + 5*time.Second, "2m5s"},
		{time.Hour + 30*time.Minute + 9*time.Second, "1h30m"},
		{time.Hour + 5*time.Second, "1h"},
		{26 * time.Hour, "1d2h"},
		{-3 * time.Second, "-3s"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.in); got != tc.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatDwell(t *testing.T) {
	cases := map[int]string{0: "0m", -1: "0m", 5: "5m", 95: "1h35m"}
	for in, want := range cases {
		if got := FormatDwell(in); got != want {
			t.Errorf("FormatDwell(%d) = %q, want %q", in, got, want)
		}
	}
}
