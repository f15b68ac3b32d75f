package queue

import (
	"testing"
	"time"
)

func TestBackoff_Doubles(t *testing.T) {
	base := time.Second

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second}, // clamped to attempt 1
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
	}
	for _, tc := range cases {
		if got := Backoff(base, tc.attempt); got != tc.want {
			t.Fatalf("Backoff(1s, %d) = %s, want %s", tc.attempt, got, tc.want)
		}
	}
}

func TestBackoff_Capped(t *testing.T) {
	if got := Backoff(time.Minute, 30); got != 10*time.Minute {
		t.Fatalf("expected cap at 10m, got %s", got)
	}
}
