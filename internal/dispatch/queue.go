// Package dispatch signs and submits transfers one at a time, retrying
// transient failures on a timer.
package dispatch

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/qubicctl/internal/hashing"
	"github.com/danmuck/qubicctl/internal/observability"
	"github.com/danmuck/qubicctl/internal/protocol"
	"github.com/danmuck/qubicctl/internal/protocol/identity"
	"github.com/danmuck/qubicctl/internal/protocol/tx"
)

var ErrStopped = errors.New("dispatch: queue stopped")

// TickSource reads the current network round.
type TickSource interface {
	TickInfo(ctx context.Context) (protocol.TickInfo, error)
}

// Receipt is what a submitter reports back for an accepted transaction.
type Receipt struct {
	TransactionID    string
	PeersBroadcasted int
}

// Submitter hands a signed transaction to the network.
type Submitter interface {
	Submit(ctx context.Context, signed tx.Signed) (Receipt, error)
}

// Deps are the capabilities a queue drives.
type Deps struct {
	Ticks     TickSource
	Signer    tx.Signer
	Submitter Submitter
	Hasher    hashing.Hasher
}

// Item is one requested transfer or contract invocation.
type Item struct {
	ID          string
	Destination string
	Amount      uint64
	// TickOffset is added to the current tick. Zero means the queue default.
	TickOffset uint32
	InputType  uint16
	Input      []byte
	// MaxAttempts overrides the queue default when positive.
	MaxAttempts int
	Metadata    map[string]string
}

type entry struct {
	seq         int64
	item        Item
	destination [tx.KeySize]byte
	offset      uint32
	maxAttempts int
	state       State
	attempts    int
	lastErr     error
	timer       clockwork.Timer
}

// Status is a point-in-time view of a live entry.
type Status struct {
	ID        string
	State     State
	Attempts  int
	LastError string
}

type Queue struct {
	cfg   Config
	deps  Deps
	clock clockwork.Clock

	mu        sync.Mutex
	pending   []*entry
	retrying  map[int64]*entry
	inFlight  *entry
	running   bool
	stopped   bool
	seq       int64
	idle      []chan struct{}
	listeners map[int]Listener
	nextSub   int
}

type Option func(*Queue)

func WithClock(clock clockwork.Clock) Option {
	return func(q *Queue) { q.clock = clock }
}

func New(cfg Config, deps Deps, opts ...Option) *Queue {
	if deps.Hasher == nil {
		deps.Hasher = hashing.K12
	}
	q := &Queue{
		cfg:       cfg.normalized(),
		deps:      deps,
		clock:     clockwork.NewRealClock(),
		retrying:  make(map[int64]*entry),
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Subscribe registers fn for every event and returns its cancel func.
func (q *Queue) Subscribe(fn Listener) func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := q.nextSub
	q.nextSub++
	q.listeners[id] = fn
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.listeners, id)
	}
}

// Enqueue validates item against the guardrails and appends it. It returns
// the item id, generated when empty.
func (q *Queue) Enqueue(item Item) (string, error) {
	dest, err := identity.ParseKey(item.Destination)
	if err != nil {
		return "", err
	}
	offset := item.TickOffset
	if offset == 0 {
		offset = q.cfg.DefaultTickOffset
	}
	if offset < q.cfg.MinTickOffset || offset > q.cfg.MaxTickOffset {
		return "", protocol.Validationf("tick offset %d outside [%d, %d]", offset, q.cfg.MinTickOffset, q.cfg.MaxTickOffset)
	}
	if item.Amount == 0 && item.InputType == 0 {
		return "", protocol.Validationf("transfer amount must be greater than zero")
	}
	if len(item.Input) > tx.MaxInputSize {
		return "", protocol.Validationf("input of %d bytes exceeds %d", len(item.Input), tx.MaxInputSize)
	}
	maxAttempts := q.cfg.MaxAttempts
	if item.MaxAttempts > 0 {
		maxAttempts = item.MaxAttempts
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return "", ErrStopped
	}
	q.seq++
	if item.ID == "" {
		item.ID = "item-" + strconv.FormatInt(q.seq, 10)
	}
	e := &entry{
		seq:         q.seq,
		item:        item,
		destination: dest,
		offset:      offset,
		maxAttempts: maxAttempts,
		state:       StatePending,
	}
	q.pending = append(q.pending, e)
	observability.SetDispatchDepth(len(q.pending) + len(q.retrying))
	log.Debug().Str("item", item.ID).Int("pending", len(q.pending)).Msg("dispatch.Enqueue")
	q.kickLocked()
	return item.ID, nil
}

func (q *Queue) kickLocked() {
	if q.running || q.stopped || len(q.pending) == 0 {
		return
	}
	q.running = true
	go q.run()
}

// run is the single worker. At most one entry is dispatching at a time.
func (q *Queue) run() {
	for {
		q.mu.Lock()
		if q.stopped || len(q.pending) == 0 {
			q.running = false
			q.notifyIdleLocked()
			q.mu.Unlock()
			return
		}
		e := q.pending[0]
		q.pending = q.pending[1:]
		e.state = StateDispatching
		q.inFlight = e
		q.mu.Unlock()

		q.process(e)
	}
}

func (q *Queue) process(e *entry) {
	ctx := context.Background()
	if q.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.cfg.AttemptTimeout)
		defer cancel()
	}
	attempt := e.attempts + 1

	signed, receipt, err := q.attempt(ctx, e, attempt)

	q.mu.Lock()
	q.inFlight = nil
	if err == nil {
		e.state = StateDone
		q.mu.Unlock()
		observability.RecordDispatch("processed")
		log.Info().Str("item", e.item.ID).Str("tx", signed.ID).Int("attempt", attempt).Msg("dispatch processed")
		q.emit(Event{Kind: EventProcessed, Item: e.item, Attempt: attempt, MaxAttempts: e.maxAttempts,
			ScheduledTick: signed.Tick, Signed: &signed, Receipt: receipt})
		return
	}

	e.attempts++
	e.lastErr = err
	if !protocol.IsCodecError(err) && e.attempts < e.maxAttempts && !q.stopped {
		e.state = StateRetryWait
		delay := NextBackoffDelay(q.cfg.Retry, e.attempts, nil)
		seq := e.seq
		e.timer = q.clock.AfterFunc(delay, func() { q.fireRetry(seq) })
		q.retrying[seq] = e
		q.mu.Unlock()
		observability.RecordDispatch("retry")
		log.Warn().Err(err).Str("item", e.item.ID).Int("attempt", e.attempts).Dur("delay", delay).Msg("dispatch retry scheduled")
		q.emit(Event{Kind: EventRetry, Item: e.item, Attempt: e.attempts, MaxAttempts: e.maxAttempts, Err: err})
		return
	}

	e.state = StateFailed
	q.mu.Unlock()
	observability.RecordDispatch("failed")
	log.Error().Err(err).Str("item", e.item.ID).Int("attempts", e.attempts).Msg("dispatch failed")
	q.emit(Event{Kind: EventFailed, Item: e.item, Attempt: e.attempts, MaxAttempts: e.maxAttempts, Err: err})
}

func (q *Queue) attempt(ctx context.Context, e *entry, attempt int) (tx.Signed, Receipt, error) {
	info, err := q.deps.Ticks.TickInfo(ctx)
	if err != nil {
		return tx.Signed{}, Receipt{}, errors.Wrap(err, "fetch tick")
	}
	target := info.Tick + e.offset
	q.emit(Event{Kind: EventDispatch, Item: e.item, Attempt: attempt, MaxAttempts: e.maxAttempts, ScheduledTick: target})

	t := tx.Transaction{
		Source:      q.deps.Signer.PublicKey(),
		Destination: e.destination,
		Amount:      e.item.Amount,
		Tick:        target,
		InputType:   e.item.InputType,
		InputSize:   uint16(len(e.item.Input)),
		Input:       e.item.Input,
	}
	signed, err := tx.Sign(t, q.deps.Signer, q.deps.Hasher)
	if err != nil {
		return tx.Signed{}, Receipt{}, err
	}
	receipt, err := q.deps.Submitter.Submit(ctx, signed)
	if err != nil {
		return signed, Receipt{}, errors.Wrap(err, "submit")
	}
	if receipt.TransactionID == "" {
		receipt.TransactionID = signed.ID
	}
	return signed, receipt, nil
}

func (q *Queue) fireRetry(seq int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.retrying[seq]
	if !ok || q.stopped {
		return
	}
	delete(q.retrying, seq)
	e.timer = nil
	e.state = StatePending
	q.pending = append([]*entry{e}, q.pending...)
	q.kickLocked()
}

func (q *Queue) emit(ev Event) {
	q.mu.Lock()
	ids := make([]int, 0, len(q.listeners))
	for id := range q.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]Listener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, q.listeners[id])
	}
	q.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (q *Queue) idleLocked() bool {
	return !q.running && q.inFlight == nil && len(q.pending) == 0 && len(q.retrying) == 0
}

func (q *Queue) notifyIdleLocked() {
	observability.SetDispatchDepth(len(q.pending) + len(q.retrying))
	if !q.idleLocked() {
		return
	}
	for _, ch := range q.idle {
		close(ch)
	}
	q.idle = nil
}

// WaitForIdle returns once nothing is pending, dispatching, or waiting on a
// retry timer.
func (q *Queue) WaitForIdle(ctx context.Context) error {
	q.mu.Lock()
	if q.idleLocked() {
		q.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	q.idle = append(q.idle, ch)
	q.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop rejects new items, drops pending ones, cancels retry timers and waits
// for an in-flight submit to finish.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	q.stopped = true
	dropped := len(q.pending) + len(q.retrying)
	for _, e := range q.pending {
		e.state = StateFailed
	}
	q.pending = nil
	for seq, e := range q.retrying {
		if e.timer != nil {
			e.timer.Stop()
		}
		e.state = StateFailed
		delete(q.retrying, seq)
	}
	q.notifyIdleLocked()
	q.mu.Unlock()

	log.Info().Int("dropped", dropped).Msg("dispatch stopped")
	return q.WaitForIdle(ctx)
}

// Snapshot lists live entries: in-flight first, then pending in order, then
// those waiting on a retry.
func (q *Queue) Snapshot() []Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Status, 0, len(q.pending)+len(q.retrying)+1)
	if q.inFlight != nil {
		out = append(out, statusOf(q.inFlight))
	}
	for _, e := range q.pending {
		out = append(out, statusOf(e))
	}
	waiting := make([]*entry, 0, len(q.retrying))
	for _, e := range q.retrying {
		waiting = append(waiting, e)
	}
	sort.Slice(waiting, func(i, j int) bool { return waiting[i].seq < waiting[j].seq })
	for _, e := range waiting {
		out = append(out, statusOf(e))
	}
	return out
}

func statusOf(e *entry) Status {
	s := Status{ID: e.item.ID, State: e.state, Attempts: e.attempts}
	if e.lastErr != nil {
		s.LastError = e.lastErr.Error()
	}
	return s
}

// Len counts entries not yet terminal.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.pending) + len(q.retrying)
	if q.inFlight != nil {
		n++
	}
	return n
}
