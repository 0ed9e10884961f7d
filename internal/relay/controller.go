// Package relay implements the signaling relay: it pairs participants into
// two-party rooms and forwards negotiation messages between them without
// interpreting their payloads.
package relay

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/signlink/signlink/internal/config"
	"github.com/signlink/signlink/internal/domain"
	"github.com/signlink/signlink/internal/registry"
	"github.com/signlink/signlink/internal/signal"
)

type Controller struct {
	cfg *config.Config
	reg *registry.Registry

	mu      sync.RWMutex
	clients map[domain.ParticipantID]*client
}

func NewController(cfg *config.Config, reg *registry.Registry) *Controller {
	return &Controller{
		cfg:     cfg,
		reg:     reg,
		clients: make(map[domain.ParticipantID]*client),
	}
}

func (ctl *Controller) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range ctl.cfg.AllowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
}

// HandleSignal upgrades the HTTP request, assigns the connection its
// participant identifier and starts the pumps. The identifier lives exactly
// as long as the channel.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	up := ctl.upgrader()
	ws, err := up.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("ws upgrade")
		return
	}

	id := domain.ParticipantID(uuid.NewString())
	cl := ctl.attach(id, ws)
	log.Info().Str("module", "relay").Str("participant", string(id)).Msg("new signaling channel")

	go ctl.writePump(ctx, cl)
	go ctl.readPump(ctx, cl)
}

// attach registers a connected client. Split from HandleSignal so tests can
// drive the controller with a fake conn.
func (ctl *Controller) attach(id domain.ParticipantID, conn wsConn) *client {
	cl := newClient(id, conn, ctl.cfg.SendBuffer)
	ctl.mu.Lock()
	ctl.clients[id] = cl
	ctl.mu.Unlock()
	connectionsTotal.Inc()
	return cl
}

func (ctl *Controller) lookup(id domain.ParticipantID) (*client, bool) {
	ctl.mu.RLock()
	defer ctl.mu.RUnlock()
	cl, ok := ctl.clients[id]
	return cl, ok
}

func (ctl *Controller) writePump(ctx context.Context, cl *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-cl.send:
			if !ok {
				return
			}
			if err := cl.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "relay").Msg("writePump set deadline")
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "relay").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cl *client) {
	defer ctl.disconnect(cl)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := cl.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "relay").Str("participant", string(cl.id)).Msg("readPump closing")
				return
			}
			ctl.handle(cl, data)
		}
	}
}

// disconnect covers both voluntary close and network loss: the peer gets a
// synthetic terminate so it can clean up without an explicit message.
func (ctl *Controller) disconnect(cl *client) {
	peer, hadPeer := ctl.reg.PeerOf(cl.id)
	ctl.reg.Leave(cl.id)
	roomsGauge.Set(float64(ctl.reg.RoomCount()))

	ctl.mu.Lock()
	delete(ctl.clients, cl.id)
	ctl.mu.Unlock()
	cl.close()

	if hadPeer {
		ctl.deliver(peer, signal.Message{Type: signal.TypeTerminate, From: string(cl.id)})
	}
	log.Info().Str("module", "relay").Str("participant", string(cl.id)).Msg("disconnected")
}

func (ctl *Controller) handle(cl *client, data []byte) {
	msg, err := signal.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "relay").Str("participant", string(cl.id)).Msg("bad signal message")
		dropsTotal.WithLabelValues("malformed").Inc()
		return
	}

	switch msg.Type {
	case signal.TypeJoin:
		ctl.handleJoin(cl, msg)
	case signal.TypeOffer, signal.TypeAnswer, signal.TypeCandidate, signal.TypeTerminate:
		ctl.forward(cl, msg)
	default:
		log.Warn().Str("module", "relay").Str("type", string(msg.Type)).Msg("unexpected signal from client")
		dropsTotal.WithLabelValues("unexpected").Inc()
	}
}

// handleJoin pairs the joiner with any existing occupant and tells BOTH sides
// about each other, so either side may start negotiating deterministically.
// Joining a different room while paired counts as leaving: the abandoned peer
// gets the same synthetic terminate a disconnect would produce.
func (ctl *Controller) handleJoin(cl *client, msg signal.Message) {
	room := domain.RoomID(msg.Room)
	prevRoom, hadRoom := ctl.reg.RoomOf(cl.id)
	prevPeer, hadPeer := ctl.reg.PeerOf(cl.id)
	peer, err := ctl.reg.Join(room, cl.id)
	if err != nil {
		log.Info().Str("module", "relay").Str("room", string(room)).Str("participant", string(cl.id)).Msg("join refused, room full")
		ctl.deliver(cl.id, signal.Message{Type: signal.TypeError, Error: signal.ErrRoomFull})
		return
	}
	joinsTotal.Inc()
	roomsGauge.Set(float64(ctl.reg.RoomCount()))

	if hadRoom && prevRoom != room && hadPeer {
		ctl.deliver(prevPeer, signal.Message{Type: signal.TypeTerminate, From: string(cl.id)})
	}

	if peer == "" {
		return
	}
	// To carries the recipient's own identifier; it is the one place a
	// client learns the id the relay assigned to it.
	ctl.deliver(cl.id, signal.Message{Type: signal.TypePeerDiscovered, Peer: string(peer), To: string(cl.id)})
	ctl.deliver(peer, signal.Message{Type: signal.TypePeerDiscovered, Peer: string(cl.id), To: string(peer)})
}

// forward relays a message verbatim to its destination, stamping the sender.
// A message addressed to anyone but the sender's current room peer is
// dropped without a reply.
func (ctl *Controller) forward(cl *client, msg signal.Message) {
	to := domain.ParticipantID(msg.To)
	peer, ok := ctl.reg.PeerOf(cl.id)
	if !ok || peer != to {
		log.Debug().Str("module", "relay").Str("participant", string(cl.id)).Str("to", msg.To).Msg("drop misdirected message")
		dropsTotal.WithLabelValues("misdirected").Inc()
		return
	}

	out := msg
	out.To = ""
	out.From = string(cl.id)
	ctl.deliver(to, out)
	forwardsTotal.WithLabelValues(string(msg.Type)).Inc()
}

func (ctl *Controller) deliver(to domain.ParticipantID, msg signal.Message) {
	cl, ok := ctl.lookup(to)
	if !ok {
		dropsTotal.WithLabelValues("unknown_destination").Inc()
		return
	}
	data, err := msg.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("encode signal message")
		return
	}
	if err := cl.trySend(data); err != nil {
		log.Warn().Err(err).Str("module", "relay").Str("participant", string(to)).Msg("deliver failed")
		dropsTotal.WithLabelValues("backpressure").Inc()
	}
}
