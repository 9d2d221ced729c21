package engage

import "sync"

const defaultRegistryCapacity = 5000

// SentRegistry remembers which message ids the bot itself sent, so replies
// to those messages can be classified. Membership is bounded: once capacity
// is reached the oldest ids age out, and replies to very old bot messages
// stop being recognized. That is the accepted tradeoff for constant memory.
type SentRegistry struct {
	mu       sync.Mutex
	capacity int
	ids      map[string]struct{}
	order    []string
}

func NewSentRegistry(capacity int) *SentRegistry {
	if capacity <= 0 {
		capacity = defaultRegistryCapacity
	}
	return &SentRegistry{
		capacity: capacity,
		ids:      make(map[string]struct{}, capacity),
	}
}

// Add records a sent message id, evicting the oldest entry at capacity.
func (r *SentRegistry) Add(id string) {
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; ok {
		return
	}
	if len(r.order) >= r.capacity {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.ids, oldest)
	}
	r.ids[id] = struct{}{}
	r.order = append(r.order, id)
}

func (r *SentRegistry) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ids[id]
	return ok
}

// Snapshot returns the remembered ids oldest-first.
func (r *SentRegistry) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *SentRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}
