// Package signal defines the wire schema spoken between call participants and
// the relay. The relay never interprets SDP or candidate payloads, it only
// routes them, so both sides share these types.
package signal

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

type Type string

const (
	TypeJoin           Type = "join"
	TypePeerDiscovered Type = "peer-discovered"
	TypeOffer          Type = "offer"
	TypeAnswer         Type = "answer"
	TypeCandidate      Type = "candidate"
	TypeTerminate      Type = "terminate"
	TypeError          Type = "error"
)

// ErrRoomFull is the error code a third joiner receives.
const ErrRoomFull = "room_full"

var (
	errMissingRoom      = errors.New("join message missing room")
	errMissingPeer      = errors.New("peer-discovered message missing peer")
	errMissingSDP       = errors.New("message missing sdp")
	errMissingCandidate = errors.New("message missing candidate")
	errMissingAddress   = errors.New("message missing to/from")
	errMissingError     = errors.New("error message missing error code")
)

// Message is the single envelope for every signal. The relay fills From when
// forwarding; clients fill To when addressing their peer. On peer-discovered
// the relay sets To to the recipient's own identifier, which is how a client
// learns the id it was assigned.
type Message struct {
	Type Type   `json:"type"`
	Room string `json:"room,omitempty"`
	Peer string `json:"peer,omitempty"`
	To   string `json:"to,omitempty"`
	From string `json:"from,omitempty"`

	SDP       *SDP       `json:"sdp,omitempty"`
	Candidate *Candidate `json:"candidate,omitempty"`

	Error string `json:"error,omitempty"`
}

func Decode(data []byte) (Message, error) {
	var m Message
	if err := sonic.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decoding signal message: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

func (m Message) Encode() ([]byte, error) {
	return sonic.Marshal(m)
}

func (m Message) Validate() error {
	switch m.Type {
	case TypeJoin:
		if m.Room == "" {
			return errMissingRoom
		}
	case TypePeerDiscovered:
		if m.Peer == "" {
			return errMissingPeer
		}
	case TypeOffer:
		if m.SDP == nil {
			return errMissingSDP
		}
		if m.SDP.Type != "offer" {
			return fmt.Errorf("offer message has sdp.type=%q", m.SDP.Type)
		}
		if m.To == "" && m.From == "" {
			return errMissingAddress
		}
	case TypeAnswer:
		if m.SDP == nil {
			return errMissingSDP
		}
		if m.SDP.Type != "answer" {
			return fmt.Errorf("answer message has sdp.type=%q", m.SDP.Type)
		}
		if m.To == "" && m.From == "" {
			return errMissingAddress
		}
	case TypeCandidate:
		if m.Candidate == nil {
			return errMissingCandidate
		}
		if m.To == "" && m.From == "" {
			return errMissingAddress
		}
	case TypeTerminate:
		if m.To == "" && m.From == "" {
			return errMissingAddress
		}
	case TypeError:
		if m.Error == "" {
			return errMissingError
		}
	default:
		return fmt.Errorf("unknown signal type %q", m.Type)
	}
	return nil
}
