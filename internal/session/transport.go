package session

import "github.com/pion/webrtc/v4"

// Transport is the direct peer-to-peer connection under negotiation. The
// machine drives it only through descriptions and candidates; the pion
// implementation lives in rtc.go and fakes stand in for it in tests.
type Transport interface {
	// CreateOffer produces and applies the local description.
	CreateOffer() (webrtc.SessionDescription, error)
	// CreateAnswer applies the remote offer, then produces and applies the
	// local answer.
	CreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	// ApplyAnswer applies the remote answer on the offering side.
	ApplyAnswer(answer webrtc.SessionDescription) error
	// AddCandidate applies a remote transport hint. Only valid once a remote
	// description is set.
	AddCandidate(webrtc.ICECandidateInit) error
	// OnCandidate registers the callback receiving locally gathered hints.
	OnCandidate(func(webrtc.ICECandidateInit))
	Close() error
}

// Signaler carries session messages to the peer through the relay.
type Signaler interface {
	SendOffer(to string, sdp webrtc.SessionDescription) error
	SendAnswer(to string, sdp webrtc.SessionDescription) error
	SendCandidate(to string, cand webrtc.ICECandidateInit) error
	SendTerminate(to string) error
}
