// Package media owns the local camera and the frame plumbing between the two
// endpoints of a call.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"sync"

	"github.com/pion/mediadevices"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/rs/zerolog/log"
)

var (
	// ErrDisabled is returned by Capture while the camera toggle is off.
	ErrDisabled = errors.New("camera disabled")
)

const jpegQuality = 80

// Camera is the exclusively-owned local video capture. Toggling it off flips
// a flag in place; it never triggers renegotiation.
type Camera struct {
	stream mediadevices.MediaStream
	track  *mediadevices.VideoTrack

	mu      sync.Mutex
	reader  video.Reader
	enabled bool
}

func OpenCamera(width, height int) (*Camera, error) {
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.Width = prop.Int(width)
			c.Height = prop.Int(height)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("acquiring camera: %w", err)
	}
	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return nil, errors.New("no video track available")
	}
	track, ok := tracks[0].(*mediadevices.VideoTrack)
	if !ok {
		return nil, errors.New("unexpected video track type")
	}
	log.Info().Str("module", "media").Str("track", track.ID()).Msg("camera acquired")
	return &Camera{
		stream:  stream,
		track:   track,
		reader:  track.NewReader(false),
		enabled: true,
	}, nil
}

// Capture reads one frame and encodes it as JPEG.
func (c *Camera) Capture(_ context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return nil, ErrDisabled
	}
	frame, release, err := c.reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading camera frame: %w", err)
	}
	defer release()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	return buf.Bytes(), nil
}

// SetEnabled flips the camera toggle. This is the only mutation UI controls
// may perform while capture is in flight.
func (c *Camera) SetEnabled(on bool) {
	c.mu.Lock()
	c.enabled = on
	c.mu.Unlock()
	log.Info().Str("module", "media").Bool("enabled", on).Msg("camera toggled")
}

func (c *Camera) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

func (c *Camera) Close() {
	for _, t := range c.stream.GetTracks() {
		if err := t.Close(); err != nil {
			log.Warn().Err(err).Str("module", "media").Msg("closing track")
		}
	}
}
