// Package registry owns the in-memory room table: which participants sit in
// which room and who their peer is. All state lives behind one RWMutex so
// concurrent connection handlers can never corrupt membership.
package registry

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/signlink/signlink/internal/domain"
)

// ErrRoomFull is returned to a third joiner. Rooms pair exactly two
// participants; extra joiners are refused rather than parked as spectators.
var ErrRoomFull = errors.New("room full")

type Registry struct {
	mu     sync.RWMutex
	rooms  map[domain.RoomID][]domain.ParticipantID
	roomOf map[domain.ParticipantID]domain.RoomID
}

func New() *Registry {
	return &Registry{
		rooms:  make(map[domain.RoomID][]domain.ParticipantID),
		roomOf: make(map[domain.ParticipantID]domain.RoomID),
	}
}

// Join registers p under room and returns the peer already occupying it, if
// any. A participant already in another room is moved; a refused move leaves
// the old membership intact. The returned peer is empty when p is the first
// occupant.
func (r *Registry) Join(room domain.RoomID, p domain.ParticipantID) (domain.ParticipantID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.roomOf[p]; ok && prev == room {
		return r.peerLocked(room, p), nil
	}

	members := r.rooms[room]
	if len(members) >= 2 {
		return "", ErrRoomFull
	}
	r.leaveLocked(p)
	r.rooms[room] = append(members, p)
	r.roomOf[p] = room
	log.Info().Str("module", "registry").Str("room", string(room)).Str("participant", string(p)).Int("occupancy", len(members)+1).Msg("joined room")
	return r.peerLocked(room, p), nil
}

// Leave removes p from its room. The room entry is deleted the moment it
// empties. Leaving twice is a no-op.
func (r *Registry) Leave(p domain.ParticipantID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(p)
}

func (r *Registry) leaveLocked(p domain.ParticipantID) {
	room, ok := r.roomOf[p]
	if !ok {
		return
	}
	delete(r.roomOf, p)

	members := r.rooms[room]
	kept := members[:0]
	for _, m := range members {
		if m != p {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		delete(r.rooms, room)
	} else {
		r.rooms[room] = kept
	}
	log.Info().Str("module", "registry").Str("room", string(room)).Str("participant", string(p)).Msg("left room")
}

// PeerOf returns the other occupant of p's room, when both exist. Relay
// handlers use it to validate message destinations.
func (r *Registry) PeerOf(p domain.ParticipantID) (domain.ParticipantID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.roomOf[p]
	if !ok {
		return "", false
	}
	peer := r.peerLocked(room, p)
	return peer, peer != ""
}

// RoomOf reports the room p currently occupies.
func (r *Registry) RoomOf(p domain.ParticipantID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.roomOf[p]
	return room, ok
}

// RoomCount reports how many rooms currently hold at least one participant.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Occupants returns the members of room in join order.
func (r *Registry) Occupants(room domain.RoomID) []domain.ParticipantID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[room]
	out := make([]domain.ParticipantID, len(members))
	copy(out, members)
	return out
}

func (r *Registry) peerLocked(room domain.RoomID, p domain.ParticipantID) domain.ParticipantID {
	for _, m := range r.rooms[room] {
		if m != p {
			return m
		}
	}
	return ""
}
