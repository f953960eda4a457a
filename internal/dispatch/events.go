package dispatch

import "github.com/danmuck/qubicctl/internal/protocol/tx"

// State is the lifecycle position of one queue entry.
type State int

const (
	StatePending State = iota
	StateDispatching
	StateRetryWait
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateDispatching:
		return "dispatching"
	case StateRetryWait:
		return "retry-wait"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type EventKind int

const (
	// EventDispatch fires before signing, once the target tick is known.
	EventDispatch EventKind = iota
	// EventRetry fires after a failed attempt once the retry timer is armed.
	EventRetry
	EventProcessed
	// EventFailed is terminal and fires once per entry.
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventDispatch:
		return "dispatch"
	case EventRetry:
		return "retry"
	case EventProcessed:
		return "processed"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is an in-process notification about one entry.
type Event struct {
	Kind          EventKind
	Item          Item
	Attempt       int
	MaxAttempts   int
	ScheduledTick uint32
	Signed        *tx.Signed
	Receipt       Receipt
	Err           error
}

// Listener receives events on the worker goroutine. It must not block.
type Listener func(Event)
