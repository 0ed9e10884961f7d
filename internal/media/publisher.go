package media

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// FrameFunc captures one encoded frame.
type FrameFunc func(ctx context.Context) ([]byte, error)

// PublishSnapshots periodically captures a frame and hands it to send, so
// the peer can sample our feed without decoding the media stream. It runs
// until the context is cancelled; capture and send failures only cost the
// current tick.
func PublishSnapshots(ctx context.Context, capture FrameFunc, every time.Duration, send func([]byte) error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, err := capture(ctx)
			if err != nil {
				log.Debug().Err(err).Str("module", "media").Msg("snapshot capture skipped")
				continue
			}
			if err := send(frame); err != nil {
				log.Debug().Err(err).Str("module", "media").Msg("snapshot send failed")
			}
		}
	}
}
