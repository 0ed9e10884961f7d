package media

import (
	"context"
	"errors"
	"sync"
)

// ErrNoFrame is returned by LatestFrame.Capture before any frame arrived.
var ErrNoFrame = errors.New("no frame available yet")

// LatestFrame holds the most recent snapshot published by the peer. The
// remote sampling ticker reads from it at its own pace; stale frames are
// simply re-read, which mirrors sampling a live stream at a lower rate.
type LatestFrame struct {
	mu   sync.RWMutex
	data []byte
}

func NewLatestFrame() *LatestFrame {
	return &LatestFrame{}
}

func (l *LatestFrame) Set(frame []byte) {
	l.mu.Lock()
	l.data = frame
	l.mu.Unlock()
}

func (l *LatestFrame) Capture(_ context.Context) ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.data == nil {
		return nil, ErrNoFrame
	}
	return l.data, nil
}

// Clear drops the held frame, e.g. when a session ends.
func (l *LatestFrame) Clear() {
	l.mu.Lock()
	l.data = nil
	l.mu.Unlock()
}
