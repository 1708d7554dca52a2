package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"whatsbot/internal/constants"
	"whatsbot/internal/dashboard"
	"whatsbot/internal/metrics"
	"whatsbot/internal/middleware"
	"whatsbot/internal/query"
	"whatsbot/internal/tracing"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

// MessageSnapshot is the type of every message pushed to dashboard clients.
const MessageSnapshot = "snapshot"

const peerBuffer = 16

// Message is the envelope pushed over the dashboard websocket.
type Message struct {
	Type     string             `json:"type"`
	Snapshot dashboard.Snapshot `json:"snapshot"`
}

type peer struct {
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (p *peer) stop() {
	p.once.Do(func() { close(p.done) })
}

// Hub fans dashboard snapshots out to websocket clients.
type Hub struct {
	service      *dashboard.Service
	logger       *logrus.Logger
	metrics      *metrics.Registry
	maxPeers     int
	writeTimeout time.Duration

	mu     sync.Mutex
	peers  map[*peer]struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewHub(service *dashboard.Service, logger *logrus.Logger, registry *metrics.Registry, maxPeers int) *Hub {
	if maxPeers <= 0 {
		maxPeers = constants.DefaultWebsocketMaxPeers
	}
	return &Hub{
		service:      service,
		logger:       logger,
		metrics:      registry,
		maxPeers:     maxPeers,
		writeTimeout: constants.DefaultWebsocketWriteTimeout,
		peers:        make(map[*peer]struct{}),
	}
}

// ServeHTTP upgrades the request and streams snapshots until the client
// leaves, falls too far behind, or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := tracing.GetRequestID(r.Context())

	// The server write timeout would otherwise cut long-lived connections.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.WithField("request_id", requestID).WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.CloseNow()

	p := &peer{send: make(chan []byte, peerBuffer), done: make(chan struct{})}
	if !h.add(p) {
		conn.Close(websocket.StatusTryAgainLater, "too many dashboard clients")
		return
	}
	defer h.remove(p)

	ctx := conn.CloseRead(r.Context())
	h.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"remote_ip":  middleware.GetClientIP(r),
	}).Info("Dashboard client connected")

	initial, err := encodeSnapshot(h.service.Snapshot(ctx))
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode dashboard snapshot")
		conn.Close(websocket.StatusInternalError, "snapshot unavailable")
		return
	}
	if err := h.write(ctx, conn, initial); err != nil {
		return
	}

	for {
		select {
		case msg := <-p.send:
			if err := h.write(ctx, conn, msg); err != nil {
				h.logger.WithField("request_id", requestID).WithError(err).Debug("Dashboard client write failed")
				return
			}
		case <-p.done:
			conn.Close(websocket.StatusGoingAway, "dashboard closing")
			return
		case <-ctx.Done():
			h.logger.WithField("request_id", requestID).Debug("Dashboard client disconnected")
			return
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
		return err
	}
	h.metrics.IncrementCounter(metrics.WebsocketPushes, nil, "Snapshots pushed to dashboard clients")
	return nil
}

func (h *Hub) add(p *peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || len(h.peers) >= h.maxPeers {
		return false
	}
	h.peers[p] = struct{}{}
	h.wg.Add(1)
	h.metrics.SetGauge(metrics.WebsocketPeers, float64(len(h.peers)), nil, "Connected dashboard clients")
	return true
}

func (h *Hub) remove(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.peers[p]; !ok {
		return
	}
	delete(h.peers, p)
	h.wg.Done()
	h.metrics.SetGauge(metrics.WebsocketPeers, float64(len(h.peers)), nil, "Connected dashboard clients")
}

// Peers returns the number of connected clients.
func (h *Hub) Peers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// Broadcast queues snap for every client. A client whose queue is full is
// disconnected.
func (h *Hub) Broadcast(snap dashboard.Snapshot) {
	msg, err := encodeSnapshot(snap)
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode dashboard snapshot")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for p := range h.peers {
		select {
		case p.send <- msg:
		default:
			h.logger.Warn("Dropping slow dashboard client")
			p.stop()
		}
	}
}

// Follow pushes the cached snapshot to every client whenever one of subs
// delivers an update. It returns once every subscription is stopped.
func (h *Hub) Follow(subs []*query.Subscription) {
	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub *query.Subscription) {
			defer wg.Done()
			for u := range sub.Updates() {
				if u.Err != nil {
					h.logger.WithField("key", u.Key.String()).WithError(u.Err).Debug("Dashboard source update failed")
				}
				h.Broadcast(h.service.Cached())
			}
		}(sub)
	}
	wg.Wait()
}

// Close disconnects every client and waits for their handlers to return.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	for p := range h.peers {
		p.stop()
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func encodeSnapshot(snap dashboard.Snapshot) ([]byte, error) {
	return json.Marshal(Message{Type: MessageSnapshot, Snapshot: snap})
}
