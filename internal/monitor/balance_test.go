package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/qubicctl/internal/client/live"
	"github.com/danmuck/qubicctl/internal/protocol"
	"github.com/danmuck/qubicctl/internal/testutil/testlog"
)

// scriptedBalances returns the next scripted value per identity and repeats
// the last one. A value of "" fails the call.
type scriptedBalances struct {
	mu     sync.Mutex
	script map[string][]string
	calls  map[string]int
}

func (s *scriptedBalances) Balance(_ context.Context, id string) (live.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	values := s.script[id]
	i := s.calls[id]
	s.calls[id]++
	if i >= len(values) {
		i = len(values) - 1
	}
	if values[i] == "" {
		return live.Balance{}, errors.New("upstream unavailable")
	}
	return live.Balance{ID: id, Balance: values[i], LatestIncomingTransferTick: uint32(100 + i), LatestOutgoingTransferTick: uint32(50 + i)}, nil
}

type balanceErr struct {
	identity string
	err      error
}

func waitBalance(t *testing.T, ch <-chan BalanceSample) BalanceSample {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for balance sample")
		return BalanceSample{}
	}
}

func TestBalanceMonitorTracksDeltaPerIdentity(t *testing.T) {
	testlog.Start(t)

	clock := clockwork.NewFakeClock()
	samples := make(chan BalanceSample, 16)
	m := NewBalanceMonitor(&scriptedBalances{script: map[string][]string{
		"ALICE": {"1000", "1250", "900"},
		"BOB":   {"7", "7"},
	}}, BalanceOptions{
		Identities: []string{"ALICE", "BOB"},
		Interval:   2 * time.Second,
		Clock:      clock,
		OnSample:   func(s BalanceSample) { samples <- s },
	})
	m.Start(context.Background())
	defer m.Stop()

	a1, b1 := waitBalance(t, samples), waitBalance(t, samples)
	require.Equal(t, "ALICE", a1.Identity)
	require.Equal(t, int64(1000), a1.Balance)
	require.Zero(t, a1.Delta)
	require.Equal(t, uint32(100), a1.LatestIncomingTick)
	require.Equal(t, uint32(50), a1.LatestOutgoingTick)
	require.Equal(t, "BOB", b1.Identity)
	require.Zero(t, b1.Delta)

	clock.BlockUntil(1)
	clock.Advance(2 * time.Second)
	a2, b2 := waitBalance(t, samples), waitBalance(t, samples)
	require.Equal(t, int64(250), a2.Delta)
	require.Zero(t, b2.Delta)

	clock.Advance(2 * time.Second)
	a3 := waitBalance(t, samples)
	require.Equal(t, int64(900), a3.Balance)
	require.Equal(t, int64(-350), a3.Delta)
	require.Equal(t, clock.Now(), a3.At)

	last, ok := m.Last("ALICE")
	require.True(t, ok)
	require.Equal(t, int64(900), last.Balance)
}

func TestBalanceMonitorReportsErrorsPerIdentity(t *testing.T) {
	testlog.Start(t)

	clock := clockwork.NewFakeClock()
	samples := make(chan BalanceSample, 16)
	errs := make(chan balanceErr, 16)
	m := NewBalanceMonitor(&scriptedBalances{script: map[string][]string{
		"ALICE": {"", "40"},
		"BOB":   {"12"},
		"CAROL": {"not-a-number"},
	}}, BalanceOptions{
		Identities: []string{"ALICE", "BOB", "CAROL"},
		Clock:      clock,
		OnSample:   func(s BalanceSample) { samples <- s },
		OnError:    func(id string, err error) { errs <- balanceErr{identity: id, err: err} },
	})
	require.Equal(t, DefaultBalanceInterval, m.Interval())

	m.Poll(context.Background())

	first := <-errs
	require.Equal(t, "ALICE", first.identity)
	require.ErrorContains(t, first.err, "upstream unavailable")
	require.Equal(t, "BOB", waitBalance(t, samples).Identity)
	third := <-errs
	require.Equal(t, "CAROL", third.identity)
	require.ErrorIs(t, third.err, protocol.ErrFormat)

	_, ok := m.Last("ALICE")
	require.False(t, ok)

	m.Poll(context.Background())
	recovered := waitBalance(t, samples)
	require.Equal(t, "ALICE", recovered.Identity)
	require.Equal(t, int64(40), recovered.Balance)
	require.Zero(t, recovered.Delta)
}

func TestBalanceMonitorClampsInterval(t *testing.T) {
	testlog.Start(t)

	m := NewBalanceMonitor(&scriptedBalances{}, BalanceOptions{Interval: 10 * time.Millisecond, Clock: clockwork.NewFakeClock()})
	require.Equal(t, MinInterval, m.Interval())
	m.Start(context.Background())
	require.True(t, m.Running())
	m.Stop()
	m.Stop()
	require.False(t, m.Running())
}
