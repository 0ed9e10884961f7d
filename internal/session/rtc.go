package session

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// RTCTransport implements Transport on a pion PeerConnection. It also owns
// the negotiated "frames" data channel carrying JPEG snapshots between the
// endpoints; both sides create the channel symmetrically so neither depends
// on who offered.
type RTCTransport struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	mu      sync.Mutex
	onCand  func(webrtc.ICECandidateInit)
	onFrame func([]byte)
}

func NewRTCTransport(stunURLs []string) (*RTCTransport, error) {
	cfg := webrtc.Configuration{}
	if len(stunURLs) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: stunURLs}}
	}
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating peer connection: %w", err)
	}
	t := &RTCTransport{pc: pc}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		t.mu.Lock()
		fn := t.onCand
		t.mu.Unlock()
		if fn != nil {
			fn(cand.ToJSON())
		}
	})

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Debug().Str("module", "session.rtc").Str("state", s.String()).Msg("ICE state")
	})

	negotiated := true
	id := uint16(0)
	dc, err := pc.CreateDataChannel("frames", &webrtc.DataChannelInit{
		Negotiated: &negotiated,
		ID:         &id,
	})
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("creating frames channel: %w", err)
	}
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.mu.Lock()
		fn := t.onFrame
		t.mu.Unlock()
		if fn != nil {
			fn(msg.Data)
		}
	})
	t.dc = dc
	return t, nil
}

func (t *RTCTransport) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("creating offer: %w", err)
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("applying local offer: %w", err)
	}
	return offer, nil
}

func (t *RTCTransport) CreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := t.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("applying remote offer: %w", err)
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("creating answer: %w", err)
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("applying local answer: %w", err)
	}
	return answer, nil
}

func (t *RTCTransport) ApplyAnswer(answer webrtc.SessionDescription) error {
	if err := t.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("applying remote answer: %w", err)
	}
	return nil
}

func (t *RTCTransport) AddCandidate(cand webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(cand)
}

func (t *RTCTransport) OnCandidate(fn func(webrtc.ICECandidateInit)) {
	t.mu.Lock()
	t.onCand = fn
	t.mu.Unlock()
}

// OnFrame registers the receiver of peer-published snapshot frames.
func (t *RTCTransport) OnFrame(fn func([]byte)) {
	t.mu.Lock()
	t.onFrame = fn
	t.mu.Unlock()
}

// SendFrame publishes one snapshot to the peer. Errors are the caller's to
// absorb; a lost snapshot only costs one recognition tick.
func (t *RTCTransport) SendFrame(frame []byte) error {
	return t.dc.Send(frame)
}

func (t *RTCTransport) Close() error {
	return t.pc.Close()
}
