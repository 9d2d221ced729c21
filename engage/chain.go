package engage

import (
	"context"
	"log/slog"
	"time"
)

const defaultHopTimeout = 5 * time.Second

// Fetcher retrieves a single prior message by id. Implementations wrap the
// transport's event-by-id call; errors (including not-found and timeout) are
// treated uniformly as "ancestor unavailable".
type Fetcher interface {
	FetchEvent(ctx context.Context, roomID, eventID string) (Message, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, roomID, eventID string) (Message, error)

func (f FetcherFunc) FetchEvent(ctx context.Context, roomID, eventID string) (Message, error) {
	return f(ctx, roomID, eventID)
}

// Resolver walks reply relations backward to reconstruct a conversation
// thread. Traversal is bounded by depth and a visited set, and each hop gets
// its own timeout; a failed hop truncates the chain instead of failing it.
type Resolver struct {
	Fetcher    Fetcher
	HopTimeout time.Duration
	Logger     *slog.Logger
}

// ResolveChain returns the thread containing start, oldest first. The walk
// goes newest to oldest (a hop's target id is only known after the previous
// fetch returns) and the result is reversed. Partial chains are normal:
// depth limit, a reply cycle or a fetch failure all just stop the walk.
func (r *Resolver) ResolveChain(ctx context.Context, start Message, maxDepth int) []Message {
	chain := []Message{start}
	visited := map[string]bool{start.ID: true}
	current := start

	hopTimeout := r.HopTimeout
	if hopTimeout <= 0 {
		hopTimeout = defaultHopTimeout
	}

	for depth := 0; current.ReplyToID != "" && depth < maxDepth; depth++ {
		next := current.ReplyToID
		if visited[next] {
			if r.Logger != nil {
				r.Logger.Warn("thread_cycle_detected", "event_id", next, "depth", depth)
			}
			break
		}

		hopCtx, cancel := context.WithTimeout(ctx, hopTimeout)
		ancestor, err := r.Fetcher.FetchEvent(hopCtx, current.RoomID, next)
		cancel()
		if err != nil {
			if r.Logger != nil {
				r.Logger.Warn("thread_fetch_failed", "event_id", next, "depth", depth, "error", err.Error())
			}
			break
		}

		chain = append(chain, ancestor)
		visited[next] = true
		current = ancestor
	}

	// Reverse to chronological order.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}
