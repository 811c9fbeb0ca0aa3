package backoff

import (
	"testing"
	"time"
)

func TestDelay(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name    string
		attempt int
		rnd     float64
		want    time.Duration
	}{
		{"first attempt full jitter", 0, 1.0, time.Second},
		{"first attempt half jitter", 0, 0.5, 500 * time.Millisecond},
		{"zero jitter", 0, 0.0, 0},
		{"second attempt doubles", 1, 1.0, 2 * time.Second},
		{"third attempt", 2, 0.5, 2 * time.Second},
		{"capped at max", 10, 1.0, 30 * time.Second},
		{"capped then jittered", 10, 0.5, 15 * time.Second},
		{"negative attempt clamps", -3, 1.0, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Delay(p, tt.attempt, tt.rnd); got != tt.want {
				t.Errorf("Delay(%d, %v) = %v, want %v", tt.attempt, tt.rnd, got, tt.want)
			}
		})
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.Initial != time.Second {
		t.Errorf("Initial = %v, want 1s", p.Initial)
	}
	if p.Max != 30*time.Second {
		t.Errorf("Max = %v, want 30s", p.Max)
	}
	if p.Factor != 2 {
		t.Errorf("Factor = %v, want 2", p.Factor)
	}
}
