package dispatch

import (
	"math/rand"
	"testing"
	"time"

	"github.com/danmuck/qubicctl/internal/testutil/testlog"
)

func TestNextBackoffDelayFixedByDefault(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig().Retry
	for attempt := 1; attempt <= 5; attempt++ {
		if got := NextBackoffDelay(cfg, attempt, nil); got != DefaultRetryDelay {
			t.Fatalf("attempt%d got=%v", attempt, got)
		}
	}
}

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestNextBackoffDelayJitterRange(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
	}
	rng := rand.New(rand.NewSource(7))
	for attempt := 1; attempt <= 3; attempt++ {
		base := NextBackoffDelay(BackoffConfig{InitialDelay: cfg.InitialDelay, Multiplier: 2.0, MaxDelay: cfg.MaxDelay}, attempt, nil)
		got := NextBackoffDelay(cfg, attempt, rng)
		if got < base/2 || got > base*3/2 {
			t.Fatalf("attempt%d jitter out of range: %v base=%v", attempt, got, base)
		}
	}
}

func TestConfigNormalizedClamps(t *testing.T) {
	testlog.Start(t)
	cfg := Config{MaxAttempts: -2, Retry: BackoffConfig{InitialDelay: time.Millisecond}}.normalized()
	if cfg.MaxAttempts != 1 {
		t.Fatalf("max attempts not clamped: %d", cfg.MaxAttempts)
	}
	if cfg.Retry.InitialDelay != MinRetryDelay {
		t.Fatalf("retry delay not clamped: %v", cfg.Retry.InitialDelay)
	}
	if cfg.DefaultTickOffset != DefaultTickOffset || cfg.MinTickOffset != MinTickOffset || cfg.MaxTickOffset != MaxTickOffset {
		t.Fatalf("tick offsets not defaulted: %+v", cfg)
	}
}
