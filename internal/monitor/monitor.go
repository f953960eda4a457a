// Package monitor polls the network tick and account balances on an
// interval and publishes samples with the change since the previous poll.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/qubicctl/internal/observability"
	"github.com/danmuck/qubicctl/internal/protocol"
)

const (
	DefaultInterval = 5 * time.Second
	MinInterval     = time.Second
)

type TickSource interface {
	TickInfo(ctx context.Context) (protocol.TickInfo, error)
}

// Sample is one poll result. Deltas are zero on the first sample.
type Sample struct {
	Tick          uint32        `json:"tick"`
	Epoch         uint32        `json:"epoch"`
	Duration      uint32        `json:"duration"`
	DeltaTick     int64         `json:"deltaTick"`
	DeltaDuration time.Duration `json:"deltaDuration"`
	At            time.Time     `json:"at"`
}

type Options struct {
	Interval time.Duration
	// PollTimeout bounds one TickInfo call. Zero means the interval.
	PollTimeout time.Duration
	Clock       clockwork.Clock
	OnSample    func(Sample)
	OnError     func(error)
}

type Monitor struct {
	src  TickSource
	opts Options
	run  poller

	mu      sync.Mutex
	last    *Sample
	samples int
}

func New(src TickSource, opts Options) *Monitor {
	opts.Interval = clampInterval(opts.Interval, DefaultInterval)
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = opts.Interval
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Monitor{src: src, opts: opts, run: poller{clock: opts.Clock, interval: opts.Interval}}
}

func (m *Monitor) Interval() time.Duration { return m.opts.Interval }

// Start polls once right away and then every interval. Calling Start on a
// running monitor does nothing.
func (m *Monitor) Start(ctx context.Context) { m.run.start(ctx, m.Poll) }

// Stop halts polling and waits for an in-progress poll. It is safe to call
// more than once.
func (m *Monitor) Stop() { m.run.stop() }

func (m *Monitor) Running() bool { return m.run.running() }

// Last returns the latest sample, if any.
func (m *Monitor) Last() (Sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return Sample{}, false
	}
	return *m.last, true
}

// Poll fetches one sample and reports it to the handlers.
func (m *Monitor) Poll(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, m.opts.PollTimeout)
	info, err := m.src.TickInfo(pctx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Msg("tick monitor poll failed")
		if m.opts.OnError != nil {
			m.opts.OnError(err)
		}
		return
	}

	now := m.opts.Clock.Now()
	sample := Sample{Tick: info.Tick, Epoch: info.Epoch, Duration: info.Duration, At: now}

	m.mu.Lock()
	prev := m.last
	if prev != nil {
		sample.DeltaTick = int64(info.Tick) - int64(prev.Tick)
		sample.DeltaDuration = now.Sub(prev.At)
	}
	m.last = &sample
	m.samples++
	m.mu.Unlock()

	observability.SetNetworkTick(info.Tick, info.Epoch)
	if prev != nil && sample.DeltaTick == 0 {
		observability.RecordTickStall()
	}
	log.Debug().Uint32("tick", sample.Tick).Uint32("epoch", sample.Epoch).Int64("delta", sample.DeltaTick).Msg("tick sample")
	if m.opts.OnSample != nil {
		m.opts.OnSample(sample)
	}
}
