package chat

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Broadcast addresses every connection on every process.
const Broadcast int64 = 0

// Envelope routes a frame to a user's connections, or to all with Broadcast.
type Envelope struct {
	To    int64 `json:"to"`
	Frame Frame `json:"frame"`
}

// conn is a local connection as seen by the hub.
type conn interface {
	userID() int64
	enqueue(payload []byte) bool
	hangup()
}

// Hub tracks the connections held by this process and delivers envelopes to
// them.
type Hub struct {
	mu      sync.RWMutex
	conns   map[int64]map[conn]struct{}
	logger  *slog.Logger
	gauge   prometheus.Gauge
	dropped prometheus.Counter
}

// NewHub constructs a Hub. Metrics are registered when registerer is non-nil.
func NewHub(logger *slog.Logger, registerer prometheus.Registerer) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		conns:  make(map[int64]map[conn]struct{}),
		logger: logger,
		gauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "guardpost_chat_connections",
			Help: "Open chat websocket connections on this process",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "guardpost_chat_dropped_frames_total",
			Help: "Frames dropped because a connection's send buffer was full",
		}),
	}
	if registerer != nil {
		registerer.MustRegister(h.gauge, h.dropped)
	}
	return h
}

func (h *Hub) register(c conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[c.userID()]
	if !ok {
		set = make(map[conn]struct{})
		h.conns[c.userID()] = set
	}
	set[c] = struct{}{}
	h.gauge.Inc()
}

func (h *Hub) unregister(c conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[c.userID()]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, c.userID())
	}
	h.gauge.Dec()
}

// Deliver writes env to the matching local connections. Delivery is best
// effort: a full send buffer drops the frame for that connection.
func (h *Hub) Deliver(env Envelope) {
	payload, err := json.Marshal(env.Frame)
	if err != nil {
		h.logger.Error("chat: encode frame", slog.String("event", env.Frame.Event), slog.Any("error", err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if env.To == Broadcast {
		for _, set := range h.conns {
			h.send(set, payload)
		}
		return
	}
	h.send(h.conns[env.To], payload)
}

func (h *Hub) send(set map[conn]struct{}, payload []byte) {
	for c := range set {
		if !c.enqueue(payload) {
			h.dropped.Inc()
		}
	}
}

// Connections reports how many local connections userID holds.
func (h *Hub) Connections(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// CloseAll hangs up every local connection. Each socket then leaves presence
// through its normal disconnect path.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, set := range h.conns {
		for c := range set {
			c.hangup()
		}
	}
}
