// Package session runs the client side of a call: the state machine driving
// negotiation with the remote participant through relayed messages, and the
// relay client those messages travel over.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

var (
	// ErrBadPhase is returned when an operation is not legal in the current
	// phase.
	ErrBadPhase = errors.New("operation not allowed in current phase")
)

type Options struct {
	Signaler     Signaler
	NewTransport func() (Transport, error)
	// NegotiationTimeout bounds how long the session may sit in Negotiating
	// before giving up. Zero disables the deadline.
	NegotiationTimeout time.Duration
	Logger             zerolog.Logger
	// OnPhase, when set, observes every phase change. It runs under the
	// machine lock and must not call back into the machine.
	OnPhase func(Phase)
}

// Machine owns the local half of one peer session. The remote session is a
// distinct instance on the other endpoint, correlated only through relayed
// messages.
type Machine struct {
	mu   sync.Mutex
	opts Options
	log  zerolog.Logger

	phase      Phase
	tr         Transport
	localID    string
	remoteID   string
	localMedia bool

	localDescSet  bool
	remoteDescSet bool

	// outbound queues locally gathered hints until the remote participant
	// identifier is known; inbound queues remote hints until the remote
	// description is applied. Both drain in arrival order.
	outbound []webrtc.ICECandidateInit
	inbound  []webrtc.ICECandidateInit

	deadline *time.Timer
}

func NewMachine(opts Options) *Machine {
	return &Machine{
		opts:  opts,
		log:   opts.Logger.With().Str("module", "session").Logger(),
		phase: PhaseIdle,
	}
}

func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

func (m *Machine) RemoteID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remoteID
}

// StartMedia marks local media as acquired and readies the transport. From
// Idle this is the opting-in path into AwaitingRemote; on the answering path
// it only records that media exists.
func (m *Machine) StartMedia() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.phase {
	case PhaseIdle:
		if err := m.ensureTransportLocked(); err != nil {
			m.failLocked("creating transport", err)
			return err
		}
		m.localMedia = true
		m.setPhaseLocked(PhaseAwaitingRemote)
		return nil
	case PhaseAwaitingRemote:
		m.localMedia = true
		return nil
	default:
		return ErrBadPhase
	}
}

// HandlePeerDiscovered records the remote participant, drains hints queued
// for it, and starts negotiation if this side holds local media. self is our
// own relay-assigned identifier; it is channel-scoped, so it survives session
// teardown and is what breaks offer glare deterministically.
func (m *Machine) HandlePeerDiscovered(peer, self string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if self != "" {
		m.localID = self
	}
	switch m.phase {
	case PhaseIdle:
		// Answering path: no media yet, wait for their offer.
		if err := m.ensureTransportLocked(); err != nil {
			m.failLocked("creating transport", err)
			return
		}
		m.setRemoteLocked(peer)
		m.setPhaseLocked(PhaseAwaitingRemote)
	case PhaseAwaitingRemote:
		m.setRemoteLocked(peer)
		if !m.localMedia {
			return
		}
		m.setPhaseLocked(PhaseNegotiating)
		m.startDeadlineLocked()
		offer, err := m.tr.CreateOffer()
		if err != nil {
			m.failLocked("creating offer", err)
			return
		}
		m.localDescSet = true
		if err := m.opts.Signaler.SendOffer(peer, offer); err != nil {
			m.failLocked("sending offer", err)
		}
	default:
		m.log.Debug().Str("phase", m.phase.String()).Str("peer", peer).Msg("peer-discovered ignored")
	}
}

// HandleOffer answers a remote offer. Arriving in Idle it also stands in for
// peer discovery (the relay may race the two messages). Arriving in
// Negotiating it means both sides held media and offered at once: the side
// with the smaller identifier abandons its own offer and answers, the other
// side ignores the crossing offer and waits for that answer.
func (m *Machine) HandleOffer(from string, sdp webrtc.SessionDescription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.phase {
	case PhaseIdle, PhaseAwaitingRemote:
		m.answerLocked(from, sdp)
	case PhaseNegotiating:
		if m.localID == "" || m.localID >= from {
			m.log.Debug().Str("from", from).Msg("crossing offer ignored, peer will answer ours")
			return
		}
		m.log.Info().Str("from", from).Msg("offer glare, yielding")
		if m.tr != nil {
			if err := m.tr.Close(); err != nil {
				m.log.Warn().Err(err).Msg("closing abandoned transport")
			}
			m.tr = nil
		}
		m.localDescSet = false
		m.remoteDescSet = false
		m.answerLocked(from, sdp)
	default:
		m.log.Debug().Str("phase", m.phase.String()).Msg("offer ignored")
	}
}

// answerLocked runs the answering path: transport up, remote description
// applied, queued hints flushed, answer sent, session active.
func (m *Machine) answerLocked(from string, sdp webrtc.SessionDescription) {
	if err := m.ensureTransportLocked(); err != nil {
		m.failLocked("creating transport", err)
		return
	}
	if m.remoteID == "" {
		m.setRemoteLocked(from)
	}
	m.setPhaseLocked(PhaseNegotiating)
	answer, err := m.tr.CreateAnswer(sdp)
	if err != nil {
		m.failLocked("creating answer", err)
		return
	}
	m.remoteDescSet = true
	m.flushInboundLocked()
	m.localDescSet = true
	if err := m.opts.Signaler.SendAnswer(from, answer); err != nil {
		m.failLocked("sending answer", err)
		return
	}
	m.toActiveLocked()
}

// HandleAnswer completes negotiation on the offering side.
func (m *Machine) HandleAnswer(sdp webrtc.SessionDescription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseNegotiating {
		m.log.Debug().Str("phase", m.phase.String()).Msg("answer ignored")
		return
	}
	if err := m.tr.ApplyAnswer(sdp); err != nil {
		m.failLocked("applying answer", err)
		return
	}
	m.remoteDescSet = true
	m.flushInboundLocked()
	m.toActiveLocked()
}

// HandleRemoteCandidate applies a transport hint from the peer, queueing it
// while no remote description is set. Hints are never applied before the
// description. Hints for an ended session are discarded.
func (m *Machine) HandleRemoteCandidate(cand webrtc.ICECandidateInit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseIdle || m.phase == PhaseEnded {
		m.log.Debug().Str("phase", m.phase.String()).Msg("candidate discarded")
		return
	}
	if !m.remoteDescSet {
		m.inbound = append(m.inbound, cand)
		return
	}
	if err := m.tr.AddCandidate(cand); err != nil {
		m.log.Warn().Err(err).Msg("adding remote candidate")
	}
}

// Terminate ends the session voluntarily, notifying the peer.
func (m *Machine) Terminate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseIdle || m.phase == PhaseEnded {
		return
	}
	m.endLocked(true)
}

// HandlePeerTerminate ends the session on the peer's request or disconnect.
func (m *Machine) HandlePeerTerminate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseIdle || m.phase == PhaseEnded {
		return
	}
	m.endLocked(false)
}

// Reset makes an ended session reusable for a fresh call. No negotiation
// state carries over.
func (m *Machine) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseEnded {
		return ErrBadPhase
	}
	m.localMedia = false
	m.setPhaseLocked(PhaseIdle)
	return nil
}

func (m *Machine) ensureTransportLocked() error {
	if m.tr != nil {
		return nil
	}
	tr, err := m.opts.NewTransport()
	if err != nil {
		return err
	}
	tr.OnCandidate(m.localCandidate)
	m.tr = tr
	return nil
}

// localCandidate receives hints gathered by the transport. Before the remote
// participant is known they queue; afterwards they go straight out.
func (m *Machine) localCandidate(cand webrtc.ICECandidateInit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseEnded {
		return
	}
	if m.remoteID == "" {
		m.outbound = append(m.outbound, cand)
		return
	}
	if err := m.opts.Signaler.SendCandidate(m.remoteID, cand); err != nil {
		m.log.Warn().Err(err).Msg("sending candidate")
	}
}

func (m *Machine) setRemoteLocked(peer string) {
	m.remoteID = peer
	for _, cand := range m.outbound {
		if err := m.opts.Signaler.SendCandidate(peer, cand); err != nil {
			m.log.Warn().Err(err).Msg("sending queued candidate")
		}
	}
	m.outbound = nil
}

func (m *Machine) flushInboundLocked() {
	for _, cand := range m.inbound {
		if err := m.tr.AddCandidate(cand); err != nil {
			m.log.Warn().Err(err).Msg("applying queued candidate")
		}
	}
	m.inbound = nil
}

func (m *Machine) toActiveLocked() {
	m.stopDeadlineLocked()
	m.setPhaseLocked(PhaseActive)
}

func (m *Machine) startDeadlineLocked() {
	if m.opts.NegotiationTimeout <= 0 {
		return
	}
	m.deadline = time.AfterFunc(m.opts.NegotiationTimeout, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.phase != PhaseNegotiating {
			return
		}
		m.log.Warn().Dur("timeout", m.opts.NegotiationTimeout).Msg("negotiation deadline expired")
		m.endLocked(true)
	})
}

func (m *Machine) stopDeadlineLocked() {
	if m.deadline != nil {
		m.deadline.Stop()
		m.deadline = nil
	}
}

// failLocked is the uniform negotiation-error path: log and stop, no retry.
func (m *Machine) failLocked(msg string, err error) {
	m.log.Error().Err(err).Msg(msg)
	if m.phase == PhaseEnded {
		return
	}
	m.endLocked(true)
}

func (m *Machine) endLocked(notifyPeer bool) {
	if notifyPeer && m.remoteID != "" {
		if err := m.opts.Signaler.SendTerminate(m.remoteID); err != nil {
			m.log.Warn().Err(err).Msg("sending terminate")
		}
	}
	m.stopDeadlineLocked()
	if m.tr != nil {
		if err := m.tr.Close(); err != nil {
			m.log.Warn().Err(err).Msg("closing transport")
		}
		m.tr = nil
	}
	m.remoteID = ""
	m.outbound = nil
	m.inbound = nil
	m.localDescSet = false
	m.remoteDescSet = false
	m.setPhaseLocked(PhaseEnded)
}

func (m *Machine) setPhaseLocked(p Phase) {
	if m.phase == p {
		return
	}
	m.log.Info().Str("from", m.phase.String()).Str("to", p.String()).Msg("phase change")
	m.phase = p
	if m.opts.OnPhase != nil {
		m.opts.OnPhase(p)
	}
}
