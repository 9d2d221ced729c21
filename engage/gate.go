package engage

import (
	"sync"
	"time"
)

// Gate drops stale and bursty messages before they reach the decision
// engine. It admits nothing until armed: Arm is called after the transport's
// initial catch-up sync, so backlog replayed on restart is never processed.
// The debounce is a single global scalar by default; PerRoom keys it by room
// id instead.
type Gate struct {
	mu          sync.Mutex
	minInterval time.Duration
	perRoom     bool
	armedAt     time.Time
	last        time.Time
	lastByRoom  map[string]time.Time
	now         func() time.Time
}

type GateOptions struct {
	MinInterval time.Duration
	PerRoom     bool
	Now         func() time.Time
}

func NewGate(opts GateOptions) *Gate {
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Gate{
		minInterval: opts.MinInterval,
		perRoom:     opts.PerRoom,
		lastByRoom:  make(map[string]time.Time),
		now:         nowFn,
	}
}

// Arm captures the effective start time. Messages timestamped earlier are
// dropped.
func (g *Gate) Arm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	// Message timestamps arrive at millisecond resolution, so the arm time
	// must be compared at the same resolution.
	g.armedAt = g.now().Truncate(time.Millisecond)
}

// Admit reports whether a message with the given room and server timestamp
// (milliseconds) may proceed. It does not update the debounce clock; call
// MarkHandled once the message is actually handled.
func (g *Gate) Admit(roomID string, timestampMs int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.armedAt.IsZero() {
		return false
	}
	if time.UnixMilli(timestampMs).Before(g.armedAt) {
		return false
	}
	if g.minInterval <= 0 {
		return true
	}
	last := g.last
	if g.perRoom {
		last = g.lastByRoom[roomID]
	}
	return last.IsZero() || g.now().Sub(last) >= g.minInterval
}

// MarkHandled records that a message in roomID was handled now.
func (g *Gate) MarkHandled(roomID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.perRoom {
		g.lastByRoom[roomID] = g.now()
		return
	}
	g.last = g.now()
}
