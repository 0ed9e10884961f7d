package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signlink_relay_connections_total",
		Help: "Signaling channels opened.",
	})
	joinsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signlink_relay_joins_total",
		Help: "Successful room joins.",
	})
	forwardsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signlink_relay_forwards_total",
		Help: "Messages forwarded to a peer, by type.",
	}, []string{"type"})
	dropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signlink_relay_drops_total",
		Help: "Messages dropped instead of forwarded, by reason.",
	}, []string{"reason"})
	roomsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signlink_relay_rooms",
		Help: "Rooms currently occupied.",
	})
)
