package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

func clampInterval(d, def time.Duration) time.Duration {
	if d <= 0 {
		d = def
	}
	if d < MinInterval {
		d = MinInterval
	}
	return d
}

// poller runs one poll function immediately and then on every tick until
// stopped.
type poller struct {
	clock    clockwork.Clock
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func (p *poller) start(ctx context.Context, poll func(context.Context)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	ticker := p.clock.NewTicker(p.interval)
	go p.loop(ctx, ticker, p.done, poll)
}

func (p *poller) stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *poller) running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *poller) loop(ctx context.Context, ticker clockwork.Ticker, done chan struct{}, poll func(context.Context)) {
	defer close(done)
	defer ticker.Stop()

	poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			poll(ctx)
		}
	}
}
