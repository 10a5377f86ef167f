// Package barrier tracks outstanding render obligations ("holds") that must
// clear before a frame is considered stable.
package barrier

import (
	"fmt"
	"sync"
)

// ErrUnknownHold is returned when releasing a token that was never acquired
// or has already been released.
var ErrUnknownHold = fmt.Errorf("unknown hold token")

// Barrier is a passive registry of named holds. It carries no timeout of its
// own; callers that need bounded waiting poll PendingCount with their own
// deadline.
type Barrier struct {
	mu    sync.Mutex
	next  int
	holds map[int]string
}

// New returns an empty barrier.
func New() *Barrier {
	return &Barrier{holds: make(map[int]string)}
}

// Acquire registers a hold under the given label and returns its token.
func (b *Barrier) Acquire(label string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	token := b.next
	b.next++
	b.holds[token] = label
	return token
}

// Release removes a previously acquired hold. Releasing an unknown or
// already-released token is an error.
func (b *Barrier) Release(token int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.holds[token]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownHold, token)
	}
	delete(b.holds, token)
	return nil
}

// PendingCount returns the number of outstanding holds.
func (b *Barrier) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.holds)
}

// PendingLabels returns the labels of all outstanding holds, for diagnostics
// when a frame times out.
func (b *Barrier) PendingLabels() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	labels := make([]string, 0, len(b.holds))
	for _, label := range b.holds {
		labels = append(labels, label)
	}
	return labels
}
