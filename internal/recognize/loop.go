package recognize

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/signlink/signlink/internal/domain"
	"github.com/signlink/signlink/internal/transcript"
)

// FrameSource captures one encoded still from a live video source.
type FrameSource interface {
	Capture(ctx context.Context) ([]byte, error)
}

// Loop samples the local and remote video sources on independent timers and
// feeds recognized labels into the transcript. It only runs while the
// session is active: the caller cancels the context on leaving that state,
// which stops both timers unconditionally.
type Loop struct {
	Recognizer Recognizer
	Transcript *transcript.Transcript

	Local       FrameSource
	LocalEvery  time.Duration
	Remote      FrameSource
	RemoteEvery time.Duration

	Logger zerolog.Logger
}

// Run blocks until ctx is cancelled. Outstanding recognizer calls are not
// force-killed; they finish on their own and their results are discarded.
func (l *Loop) Run(ctx context.Context) {
	var wg sync.WaitGroup
	if l.Local != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.sample(ctx, l.Local, domain.SenderLocal, l.LocalEvery)
		}()
	}
	if l.Remote != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.sample(ctx, l.Remote, domain.SenderRemote, l.RemoteEvery)
		}()
	}
	wg.Wait()
}

// sample runs one source's timer. At most one request per source is in
// flight: a tick that fires while the previous request is outstanding is
// skipped, bounding concurrent load on the recognizer.
func (l *Loop) sample(ctx context.Context, src FrameSource, sender domain.Sender, every time.Duration) {
	log := l.Logger.With().Str("module", "recognize").Str("sender", string(sender)).Logger()

	var inflight atomic.Bool
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !inflight.CompareAndSwap(false, true) {
				log.Debug().Msg("tick skipped, request outstanding")
				continue
			}
			go func() {
				defer inflight.Store(false)
				l.tick(ctx, log, src, sender)
			}()
		}
	}
}

// tick captures and submits one frame. Any failure means this tick yields no
// entry; the timer keeps running and the same frame is never retried.
func (l *Loop) tick(ctx context.Context, log zerolog.Logger, src FrameSource, sender domain.Sender) {
	frame, err := src.Capture(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("capture skipped")
		return
	}
	res, err := l.Recognizer.Recognize(ctx, frame)
	if err != nil {
		log.Debug().Err(err).Msg("recognition skipped")
		return
	}
	select {
	case <-ctx.Done():
		// Session is gone; the late result is discarded.
		return
	default:
	}
	l.Transcript.Append(domain.Entry{
		Text:   res.Label,
		Lang:   res.Lang,
		Sender: sender,
		At:     time.Now(),
	})
}
