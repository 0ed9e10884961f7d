package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/signlink/signlink/internal/signal"
)

var ErrBackpressure = errors.New("backpressure")

// RelayClient is the client end of the signaling channel. It implements
// Signaler for the machine and feeds relayed messages back into it. One
// ordered send queue keeps candidates in send order, mirroring the relay's
// per-connection queue.
type RelayClient struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool

	// OnRefused, when set, is called when the relay refuses a join (room
	// already holds two participants).
	OnRefused func(code string)
}

func DialRelay(ctx context.Context, url string) (*RelayClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &RelayClient{
		conn: conn,
		send: make(chan []byte, 32),
	}, nil
}

// Join asks the relay to place this participant in room.
func (c *RelayClient) Join(room string) error {
	return c.trySend(signal.Message{Type: signal.TypeJoin, Room: room})
}

func (c *RelayClient) SendOffer(to string, sdp webrtc.SessionDescription) error {
	return c.trySend(signal.Message{Type: signal.TypeOffer, To: to, SDP: signal.SDPFromPion(sdp)})
}

func (c *RelayClient) SendAnswer(to string, sdp webrtc.SessionDescription) error {
	return c.trySend(signal.Message{Type: signal.TypeAnswer, To: to, SDP: signal.SDPFromPion(sdp)})
}

func (c *RelayClient) SendCandidate(to string, cand webrtc.ICECandidateInit) error {
	return c.trySend(signal.Message{Type: signal.TypeCandidate, To: to, Candidate: signal.CandidateFromPion(cand)})
}

func (c *RelayClient) SendTerminate(to string) error {
	return c.trySend(signal.Message{Type: signal.TypeTerminate, To: to})
}

func (c *RelayClient) trySend(msg signal.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("relay connection closed")
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

// Run pumps the connection in both directions and dispatches incoming
// messages into the machine. It returns when the context is cancelled or the
// connection drops; either way the machine sees a peer terminate.
func (c *RelayClient) Run(ctx context.Context, m *Machine) {
	go c.writePump(ctx)
	c.readPump(ctx, m)
}

func (c *RelayClient) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "session.relayclient").Msg("writePump write error")
				return
			}
		}
	}
}

func (c *RelayClient) readPump(ctx context.Context, m *Machine) {
	defer func() {
		c.Close()
		m.HandlePeerTerminate()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "session.relayclient").Msg("readPump closing")
				return
			}
			c.dispatch(m, data)
		}
	}
}

func (c *RelayClient) dispatch(m *Machine, data []byte) {
	msg, err := signal.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "session.relayclient").Msg("bad signal message")
		return
	}

	switch msg.Type {
	case signal.TypePeerDiscovered:
		m.HandlePeerDiscovered(msg.Peer, msg.To)
	case signal.TypeOffer:
		sdp, err := msg.SDP.ToPion()
		if err != nil {
			log.Warn().Err(err).Str("module", "session.relayclient").Msg("bad offer sdp")
			return
		}
		m.HandleOffer(msg.From, sdp)
	case signal.TypeAnswer:
		sdp, err := msg.SDP.ToPion()
		if err != nil {
			log.Warn().Err(err).Str("module", "session.relayclient").Msg("bad answer sdp")
			return
		}
		m.HandleAnswer(sdp)
	case signal.TypeCandidate:
		m.HandleRemoteCandidate(msg.Candidate.ToPion())
	case signal.TypeTerminate:
		m.HandlePeerTerminate()
	case signal.TypeError:
		log.Warn().Str("module", "session.relayclient").Str("code", msg.Error).Msg("relay refused request")
		if c.OnRefused != nil {
			c.OnRefused(msg.Error)
		}
	default:
		log.Warn().Str("module", "session.relayclient").Str("type", string(msg.Type)).Msg("unexpected signal from relay")
	}
}

func (c *RelayClient) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
	_ = c.conn.Close()
}
