package host

import (
	"context"
	"fmt"
	"regexp"
	"sync"
)

// Waiter resolves outgoing host commands against incoming log lines: each
// call to Wait registers a regular expression and blocks until a line
// pushed through Observe matches it, or the context is done. This is the
// "small request/response registry" spec.md §9 prefers over raw polling —
// an adapter that can push log lines through Observe gets constant-time
// resolution instead of a busy poll.
type Waiter struct {
	mu      sync.Mutex
	pending []*pendingMatch
}

type pendingMatch struct {
	re   *regexp.Regexp
	done chan []string // capture groups of the matching line, by SubexpNames order
}

// NewWaiter returns an empty Waiter.
func NewWaiter() *Waiter {
	return &Waiter{}
}

// Wait registers pattern and blocks until a line Observe receives matches
// it, returning the named capture groups as a map, or until ctx is done.
func (w *Waiter) Wait(ctx context.Context, pattern string) (map[string]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("host: waiter: compile pattern %q: %w", pattern, err)
	}
	pm := &pendingMatch{re: re, done: make(chan []string, 1)}

	w.mu.Lock()
	w.pending = append(w.pending, pm)
	w.mu.Unlock()

	select {
	case groups := <-pm.done:
		result := make(map[string]string, len(groups))
		for i, name := range re.SubexpNames() {
			if i == 0 || name == "" {
				continue
			}
			result[name] = groups[i]
		}
		return result, nil
	case <-ctx.Done():
		w.remove(pm)
		return nil, ctx.Err()
	}
}

// Observe feeds one host log line through every pending Wait, resolving
// (and removing) every pattern that matches it. It is safe to call from
// whatever goroutine streams the host's log, concurrently with Wait.
func (w *Waiter) Observe(line string) {
	w.mu.Lock()
	type hit struct {
		pm     *pendingMatch
		groups []string
	}
	var matched []hit
	remaining := w.pending[:0]
	for _, pm := range w.pending {
		if m := pm.re.FindStringSubmatch(line); m != nil {
			matched = append(matched, hit{pm: pm, groups: m})
			continue
		}
		remaining = append(remaining, pm)
	}
	w.pending = remaining
	w.mu.Unlock()

	for _, h := range matched {
		h.pm.done <- h.groups
	}
}

func (w *Waiter) remove(target *pendingMatch) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, pm := range w.pending {
		if pm == target {
			w.pending = append(w.pending[:i], w.pending[i+1:]...)
			return
		}
	}
}
