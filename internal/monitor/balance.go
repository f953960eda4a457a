package monitor

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/qubicctl/internal/client/live"
	"github.com/danmuck/qubicctl/internal/observability"
	"github.com/danmuck/qubicctl/internal/protocol"
)

const DefaultBalanceInterval = 10 * time.Second

type BalanceSource interface {
	Balance(ctx context.Context, id string) (live.Balance, error)
}

// BalanceSample is one identity's balance. Delta is zero on its first sample.
type BalanceSample struct {
	Identity           string    `json:"identity"`
	Balance            int64     `json:"balance"`
	Delta              int64     `json:"delta"`
	LatestIncomingTick uint32    `json:"latestIncomingTick"`
	LatestOutgoingTick uint32    `json:"latestOutgoingTick"`
	At                 time.Time `json:"at"`
}

type BalanceOptions struct {
	Identities []string
	Interval   time.Duration
	// PollTimeout bounds one Balance call. Zero means the interval.
	PollTimeout time.Duration
	Clock       clockwork.Clock
	OnSample    func(BalanceSample)
	// OnError receives failures per identity; the other identities still poll.
	OnError func(identity string, err error)
}

type BalanceMonitor struct {
	src  BalanceSource
	opts BalanceOptions
	run  poller

	mu   sync.Mutex
	last map[string]BalanceSample
}

func NewBalanceMonitor(src BalanceSource, opts BalanceOptions) *BalanceMonitor {
	opts.Interval = clampInterval(opts.Interval, DefaultBalanceInterval)
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = opts.Interval
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	opts.Identities = append([]string(nil), opts.Identities...)
	return &BalanceMonitor{
		src:  src,
		opts: opts,
		run:  poller{clock: opts.Clock, interval: opts.Interval},
		last: make(map[string]BalanceSample, len(opts.Identities)),
	}
}

func (m *BalanceMonitor) Interval() time.Duration { return m.opts.Interval }

// Start polls every identity right away and then every interval.
func (m *BalanceMonitor) Start(ctx context.Context) { m.run.start(ctx, m.Poll) }

func (m *BalanceMonitor) Stop() { m.run.stop() }

func (m *BalanceMonitor) Running() bool { return m.run.running() }

func (m *BalanceMonitor) Last(identity string) (BalanceSample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.last[identity]
	return s, ok
}

// Poll fetches each identity in order and reports samples and errors.
func (m *BalanceMonitor) Poll(ctx context.Context) {
	for _, id := range m.opts.Identities {
		if ctx.Err() != nil {
			return
		}
		sample, err := m.pollOne(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("identity", id).Msg("balance monitor poll failed")
			if m.opts.OnError != nil {
				m.opts.OnError(id, err)
			}
			continue
		}
		log.Debug().Str("identity", id).Int64("balance", sample.Balance).Int64("delta", sample.Delta).Msg("balance sample")
		if m.opts.OnSample != nil {
			m.opts.OnSample(sample)
		}
	}
}

func (m *BalanceMonitor) pollOne(ctx context.Context, id string) (BalanceSample, error) {
	pctx, cancel := context.WithTimeout(ctx, m.opts.PollTimeout)
	b, err := m.src.Balance(pctx, id)
	cancel()
	if err != nil {
		return BalanceSample{}, errors.Wrapf(err, "balance %s", id)
	}
	amount, err := strconv.ParseInt(strings.TrimSpace(b.Balance), 10, 64)
	if err != nil {
		return BalanceSample{}, protocol.Formatf("balance of %s is not an integer: %q", id, b.Balance)
	}

	sample := BalanceSample{
		Identity:           id,
		Balance:            amount,
		LatestIncomingTick: b.LatestIncomingTransferTick,
		LatestOutgoingTick: b.LatestOutgoingTransferTick,
		At:                 m.opts.Clock.Now(),
	}
	m.mu.Lock()
	if prev, ok := m.last[id]; ok {
		sample.Delta = amount - prev.Balance
	}
	m.last[id] = sample
	m.mu.Unlock()

	observability.SetBalance(id, amount)
	return sample, nil
}
