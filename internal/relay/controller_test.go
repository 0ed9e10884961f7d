package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signlink/signlink/internal/config"
	"github.com/signlink/signlink/internal/domain"
	"github.com/signlink/signlink/internal/registry"
	"github.com/signlink/signlink/internal/signal"
)

// fakeConn satisfies wsConn; tests drive the controller through handle and
// read deliveries straight off the client's send queue, the pumps are plain
// plumbing around those two.
type fakeConn struct{}

func (fakeConn) ReadMessage() (int, []byte, error) { return 0, nil, nil }
func (fakeConn) WriteMessage(int, []byte) error    { return nil }
func (fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (fakeConn) Close() error                      { return nil }

func newTestController(t *testing.T) (*Controller, *registry.Registry) {
	t.Helper()
	cfg := &config.Config{SendBuffer: 32, AllowedOrigins: []string{"*"}}
	reg := registry.New()
	return NewController(cfg, reg), reg
}

func recvMessage(t *testing.T, cl *client) signal.Message {
	t.Helper()
	select {
	case data := <-cl.send:
		msg, err := signal.Decode(data)
		require.NoError(t, err)
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
		return signal.Message{}
	}
}

func assertNoMessage(t *testing.T, cl *client) {
	t.Helper()
	select {
	case data := <-cl.send:
		t.Fatalf("unexpected delivery: %s", data)
	default:
	}
}

func join(t *testing.T, ctl *Controller, cl *client, room string) {
	t.Helper()
	data, err := signal.Message{Type: signal.TypeJoin, Room: room}.Encode()
	require.NoError(t, err)
	ctl.handle(cl, data)
}

func TestJoinPairingAndForwarding(t *testing.T) {
	ctl, reg := newTestController(t)

	a := ctl.attach("A", fakeConn{})
	b := ctl.attach("B", fakeConn{})

	join(t, ctl, a, "r1")
	assert.Equal(t, []domain.ParticipantID{"A"}, reg.Occupants("r1"))
	assertNoMessage(t, a)

	join(t, ctl, b, "r1")
	assert.Equal(t, []domain.ParticipantID{"A", "B"}, reg.Occupants("r1"))

	// Both sides learn about each other, and each learns its own id.
	got := recvMessage(t, b)
	assert.Equal(t, signal.TypePeerDiscovered, got.Type)
	assert.Equal(t, "A", got.Peer)
	assert.Equal(t, "B", got.To)

	got = recvMessage(t, a)
	assert.Equal(t, signal.TypePeerDiscovered, got.Type)
	assert.Equal(t, "B", got.Peer)
	assert.Equal(t, "A", got.To)

	// A's offer reaches B stamped with the sender.
	offer, err := signal.Message{
		Type: signal.TypeOffer,
		To:   "B",
		SDP:  &signal.SDP{Type: "offer", SDP: "v=0 X"},
	}.Encode()
	require.NoError(t, err)
	ctl.handle(a, offer)

	got = recvMessage(t, b)
	assert.Equal(t, signal.TypeOffer, got.Type)
	assert.Equal(t, "A", got.From)
	assert.Empty(t, got.To)
	require.NotNil(t, got.SDP)
	assert.Equal(t, "v=0 X", got.SDP.SDP)

	// B drops off the network: A gets a synthetic terminate and the room
	// keeps only A.
	ctl.disconnect(b)
	got = recvMessage(t, a)
	assert.Equal(t, signal.TypeTerminate, got.Type)
	assert.Equal(t, "B", got.From)
	assert.Equal(t, []domain.ParticipantID{"A"}, reg.Occupants("r1"))
}

func TestThirdJoinerRefused(t *testing.T) {
	ctl, reg := newTestController(t)

	a := ctl.attach("A", fakeConn{})
	b := ctl.attach("B", fakeConn{})
	c := ctl.attach("C", fakeConn{})

	join(t, ctl, a, "r1")
	join(t, ctl, b, "r1")
	recvMessage(t, a)
	recvMessage(t, b)

	join(t, ctl, c, "r1")
	got := recvMessage(t, c)
	assert.Equal(t, signal.TypeError, got.Type)
	assert.Equal(t, signal.ErrRoomFull, got.Error)

	assert.Len(t, reg.Occupants("r1"), 2)
	assertNoMessage(t, a)
	assertNoMessage(t, b)
}

func TestMisdirectedMessagesDroppedSilently(t *testing.T) {
	ctl, _ := newTestController(t)

	a := ctl.attach("A", fakeConn{})
	b := ctl.attach("B", fakeConn{})
	c := ctl.attach("C", fakeConn{})

	join(t, ctl, a, "r1")
	join(t, ctl, b, "r1")
	recvMessage(t, a)
	recvMessage(t, b)
	join(t, ctl, c, "r2")

	// A tries to address C, who is not A's peer.
	msg, err := signal.Message{Type: signal.TypeTerminate, To: "C"}.Encode()
	require.NoError(t, err)
	ctl.handle(a, msg)
	assertNoMessage(t, c)

	// C has no peer at all; nothing is routable.
	msg, err = signal.Message{Type: signal.TypeTerminate, To: "A"}.Encode()
	require.NoError(t, err)
	ctl.handle(c, msg)
	assertNoMessage(t, a)
}

func TestCandidateOrderPreserved(t *testing.T) {
	ctl, _ := newTestController(t)

	a := ctl.attach("A", fakeConn{})
	b := ctl.attach("B", fakeConn{})
	join(t, ctl, a, "r1")
	join(t, ctl, b, "r1")
	recvMessage(t, a)
	recvMessage(t, b)

	candidates := []string{"candidate:1", "candidate:2", "candidate:3", "candidate:4"}
	for _, cand := range candidates {
		msg, err := signal.Message{
			Type:      signal.TypeCandidate,
			To:        "B",
			Candidate: &signal.Candidate{Candidate: cand},
		}.Encode()
		require.NoError(t, err)
		ctl.handle(a, msg)
	}

	for _, want := range candidates {
		got := recvMessage(t, b)
		require.Equal(t, signal.TypeCandidate, got.Type)
		require.NotNil(t, got.Candidate)
		assert.Equal(t, want, got.Candidate.Candidate)
	}
}

func TestMalformedMessageIgnored(t *testing.T) {
	ctl, reg := newTestController(t)
	a := ctl.attach("A", fakeConn{})
	join(t, ctl, a, "r1")

	ctl.handle(a, []byte(`{{{not json`))
	ctl.handle(a, []byte(`{"type":"peer-discovered","peer":"x"}`))

	assert.Equal(t, []domain.ParticipantID{"A"}, reg.Occupants("r1"))
	assertNoMessage(t, a)
}

func TestRoomSwitchNotifiesAbandonedPeer(t *testing.T) {
	ctl, reg := newTestController(t)

	a := ctl.attach("A", fakeConn{})
	b := ctl.attach("B", fakeConn{})
	join(t, ctl, a, "r1")
	join(t, ctl, b, "r1")
	recvMessage(t, a)
	recvMessage(t, b)

	// A walks off to another room; B must see the same synthetic terminate
	// a disconnect would deliver.
	join(t, ctl, a, "r2")
	got := recvMessage(t, b)
	assert.Equal(t, signal.TypeTerminate, got.Type)
	assert.Equal(t, "A", got.From)

	assert.Equal(t, []domain.ParticipantID{"B"}, reg.Occupants("r1"))
	assert.Equal(t, []domain.ParticipantID{"A"}, reg.Occupants("r2"))

	// Re-sending join for the room A already occupies is a no-op; nobody
	// gets terminated for it.
	join(t, ctl, a, "r2")
	assertNoMessage(t, a)
	assertNoMessage(t, b)
}

func TestRoomSwitchIntoFullRoomKeepsPairing(t *testing.T) {
	ctl, reg := newTestController(t)

	a := ctl.attach("A", fakeConn{})
	b := ctl.attach("B", fakeConn{})
	c := ctl.attach("C", fakeConn{})
	d := ctl.attach("D", fakeConn{})
	join(t, ctl, a, "r1")
	join(t, ctl, b, "r1")
	join(t, ctl, c, "r2")
	join(t, ctl, d, "r2")
	recvMessage(t, a)
	recvMessage(t, b)
	recvMessage(t, c)
	recvMessage(t, d)

	join(t, ctl, a, "r2")
	got := recvMessage(t, a)
	assert.Equal(t, signal.TypeError, got.Type)
	assert.Equal(t, signal.ErrRoomFull, got.Error)

	// The refused move must not break the existing pairing.
	assert.Equal(t, []domain.ParticipantID{"A", "B"}, reg.Occupants("r1"))
	assertNoMessage(t, b)
}
