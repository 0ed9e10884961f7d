package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signlink/signlink/internal/domain"
)

func TestJoinPairsSymmetrically(t *testing.T) {
	r := New()

	peer, err := r.Join("r1", "A")
	require.NoError(t, err)
	assert.Empty(t, peer, "first joiner has no peer")

	peer, err = r.Join("r1", "B")
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantID("A"), peer)

	got, ok := r.PeerOf("A")
	require.True(t, ok)
	assert.Equal(t, domain.ParticipantID("B"), got)

	got, ok = r.PeerOf("B")
	require.True(t, ok)
	assert.Equal(t, domain.ParticipantID("A"), got)

	assert.Equal(t, []domain.ParticipantID{"A", "B"}, r.Occupants("r1"))
}

func TestThirdJoinerRefused(t *testing.T) {
	r := New()
	_, err := r.Join("r1", "A")
	require.NoError(t, err)
	_, err = r.Join("r1", "B")
	require.NoError(t, err)

	_, err = r.Join("r1", "C")
	assert.ErrorIs(t, err, ErrRoomFull)

	_, ok := r.RoomOf("C")
	assert.False(t, ok, "refused joiner must not be registered")
	assert.Len(t, r.Occupants("r1"), 2)
}

func TestLeaveRemovesEmptyRoom(t *testing.T) {
	r := New()
	_, err := r.Join("r1", "A")
	require.NoError(t, err)
	_, err = r.Join("r1", "B")
	require.NoError(t, err)

	r.Leave("B")
	assert.Equal(t, []domain.ParticipantID{"A"}, r.Occupants("r1"))
	_, ok := r.PeerOf("A")
	assert.False(t, ok)

	r.Leave("A")
	assert.Equal(t, 0, r.RoomCount(), "empty rooms are never retained")

	// Idempotent.
	r.Leave("A")
	assert.Equal(t, 0, r.RoomCount())
}

func TestRejoinMovesParticipant(t *testing.T) {
	r := New()
	_, err := r.Join("r1", "A")
	require.NoError(t, err)

	_, err = r.Join("r2", "A")
	require.NoError(t, err)

	room, ok := r.RoomOf("A")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("r2"), room)
	assert.Equal(t, 1, r.RoomCount(), "old room must be gone")
}

func TestJoinSameRoomTwiceIsNoop(t *testing.T) {
	r := New()
	_, err := r.Join("r1", "A")
	require.NoError(t, err)
	_, err = r.Join("r1", "B")
	require.NoError(t, err)

	peer, err := r.Join("r1", "A")
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantID("B"), peer)
	assert.Len(t, r.Occupants("r1"), 2)
}

func TestConcurrentJoinLeave(t *testing.T) {
	r := New()

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := domain.ParticipantID(fmt.Sprintf("p%d", i))
			room := domain.RoomID(fmt.Sprintf("room%d", i%8))
			for j := 0; j < 50; j++ {
				_, _ = r.Join(room, p)
				r.Leave(p)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, r.RoomCount())
	for i := 0; i < 8; i++ {
		assert.Empty(t, r.Occupants(domain.RoomID(fmt.Sprintf("room%d", i))))
	}
}

func TestRoomNeverExceedsTwo(t *testing.T) {
	r := New()
	room := domain.RoomID("crowded")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := domain.ParticipantID(fmt.Sprintf("p%d", i))
			if _, err := r.Join(room, p); err != nil {
				return
			}
			assert.LessOrEqual(t, len(r.Occupants(room)), 2)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, len(r.Occupants(room)), 2)
}

func TestRefusedMoveKeepsOldMembership(t *testing.T) {
	r := New()
	_, err := r.Join("r1", "A")
	require.NoError(t, err)
	_, err = r.Join("r1", "B")
	require.NoError(t, err)
	_, err = r.Join("r2", "C")
	require.NoError(t, err)
	_, err = r.Join("r2", "D")
	require.NoError(t, err)

	// A cannot move into the full r2; it must still be paired in r1.
	_, err = r.Join("r2", "A")
	assert.ErrorIs(t, err, ErrRoomFull)

	room, ok := r.RoomOf("A")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("r1"), room)
	peer, ok := r.PeerOf("A")
	require.True(t, ok)
	assert.Equal(t, domain.ParticipantID("B"), peer)
}
