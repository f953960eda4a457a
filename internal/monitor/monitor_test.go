package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/qubicctl/internal/protocol"
	"github.com/danmuck/qubicctl/internal/testutil/testlog"
)

type stepTicks struct {
	mu    sync.Mutex
	ticks []uint32
	fail  map[int]error
	calls int
}

func (s *stepTicks) TickInfo(context.Context) (protocol.TickInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if err := s.fail[i]; err != nil {
		return protocol.TickInfo{}, err
	}
	tick := s.ticks[len(s.ticks)-1]
	if i < len(s.ticks) {
		tick = s.ticks[i]
	}
	return protocol.TickInfo{Tick: tick, Epoch: 140, Duration: 2}, nil
}

func waitSample(t *testing.T, ch <-chan Sample) Sample {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sample")
		return Sample{}
	}
}

func TestMonitorEmitsDeltas(t *testing.T) {
	testlog.Start(t)

	clock := clockwork.NewFakeClock()
	samples := make(chan Sample, 8)
	m := New(&stepTicks{ticks: []uint32{100, 103, 103}}, Options{
		Interval: 5 * time.Second,
		Clock:    clock,
		OnSample: func(s Sample) { samples <- s },
	})
	m.Start(context.Background())
	defer m.Stop()

	first := waitSample(t, samples)
	require.Equal(t, uint32(100), first.Tick)
	require.Zero(t, first.DeltaTick)
	require.Zero(t, first.DeltaDuration)

	clock.BlockUntil(1)
	clock.Advance(5 * time.Second)
	second := waitSample(t, samples)
	require.Equal(t, int64(3), second.DeltaTick)
	require.Equal(t, 5*time.Second, second.DeltaDuration)

	clock.Advance(5 * time.Second)
	third := waitSample(t, samples)
	require.Zero(t, third.DeltaTick)

	last, ok := m.Last()
	require.True(t, ok)
	require.Equal(t, third, last)
}

func TestMonitorReportsErrorsAndKeepsPolling(t *testing.T) {
	testlog.Start(t)

	clock := clockwork.NewFakeClock()
	samples := make(chan Sample, 8)
	errs := make(chan error, 8)
	m := New(&stepTicks{ticks: []uint32{7}, fail: map[int]error{0: errors.New("down")}}, Options{
		Clock:    clock,
		OnSample: func(s Sample) { samples <- s },
		OnError:  func(err error) { errs <- err },
	})
	require.Equal(t, DefaultInterval, m.Interval())
	m.Start(context.Background())
	defer m.Stop()

	select {
	case err := <-errs:
		require.ErrorContains(t, err, "down")
	case <-time.After(2 * time.Second):
		t.Fatal("expected poll error")
	}
	clock.BlockUntil(1)
	clock.Advance(DefaultInterval)
	require.Equal(t, uint32(7), waitSample(t, samples).Tick)
}

func TestStartStopIdempotent(t *testing.T) {
	testlog.Start(t)

	m := New(&stepTicks{ticks: []uint32{1}}, Options{Interval: time.Millisecond, Clock: clockwork.NewFakeClock()})
	require.Equal(t, MinInterval, m.Interval())

	m.Stop()
	m.Start(context.Background())
	m.Start(context.Background())
	require.True(t, m.Running())
	m.Stop()
	m.Stop()
	require.False(t, m.Running())
}
