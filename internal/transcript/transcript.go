// Package transcript keeps the shared log of recognized labels for one call.
package transcript

import (
	"sync"

	"github.com/signlink/signlink/internal/domain"
)

// Transcript is an append-only, arrival-ordered entry log. Per-sender order
// follows request order because each source keeps at most one recognizer
// request in flight; no ordering is promised across senders.
type Transcript struct {
	mu       sync.RWMutex
	entries  []domain.Entry
	onAppend func(domain.Entry)
}

func New() *Transcript {
	return &Transcript{}
}

// OnAppend registers a hook observing every appended entry, e.g. a printer.
// It runs on the appending goroutine.
func (t *Transcript) OnAppend(fn func(domain.Entry)) {
	t.mu.Lock()
	t.onAppend = fn
	t.mu.Unlock()
}

func (t *Transcript) Append(e domain.Entry) {
	t.mu.Lock()
	t.entries = append(t.entries, e)
	fn := t.onAppend
	t.mu.Unlock()
	if fn != nil {
		fn(e)
	}
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func (t *Transcript) Snapshot() []domain.Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Transcript) Clear() {
	t.mu.Lock()
	t.entries = nil
	t.mu.Unlock()
}
