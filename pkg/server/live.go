package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/NicolasHaas/posterchat/pkg/model"
	"github.com/gorilla/websocket"
)

const (
	liveSendBuffer = 16
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = livePongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// LiveEvent is the message pushed to live subscribers.
type LiveEvent struct {
	Type    string        `json:"type"` // "comment"
	Comment model.Comment `json:"comment"`
}

type subscriber struct {
	send chan LiveEvent
}

// LiveHub fans new comments out to websocket subscribers of a poster.
type LiveHub struct {
	mu      sync.RWMutex
	posters map[int64]map[*subscriber]bool // posterID -> subscribers
	metrics *Metrics
	done    <-chan struct{}
}

// NewLiveHub creates an empty hub. Open feeds end when done is closed.
func NewLiveHub(metrics *Metrics, done <-chan struct{}) *LiveHub {
	return &LiveHub{
		posters: make(map[int64]map[*subscriber]bool),
		metrics: metrics,
		done:    done,
	}
}

func (h *LiveHub) subscribe(posterID int64) *subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &subscriber{send: make(chan LiveEvent, liveSendBuffer)}
	if _, ok := h.posters[posterID]; !ok {
		h.posters[posterID] = make(map[*subscriber]bool)
	}
	h.posters[posterID][sub] = true
	h.metrics.LiveSubscribers.Add(1)
	return sub
}

func (h *LiveHub) unsubscribe(posterID int64, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.posters[posterID]
	if !subs[sub] {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.posters, posterID)
	}
	close(sub.send)
	h.metrics.LiveSubscribers.Add(-1)
}

// SubscriberCount returns how many live subscribers a poster has.
func (h *LiveHub) SubscriberCount(posterID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.posters[posterID])
}

// PublishComment delivers a comment to every subscriber of its poster.
// Subscribers whose buffer is full miss the event.
func (h *LiveHub) PublishComment(_ int64, c model.Comment) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ev := LiveEvent{Type: "comment", Comment: c}
	for sub := range h.posters[c.PosterID] {
		select {
		case sub.send <- ev:
		default:
			h.metrics.LiveDropped.Add(1)
		}
	}
}

// serve upgrades the request and streams events until the client goes away.
func (h *LiveHub) serve(w http.ResponseWriter, r *http.Request, posterID int64) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "err", err)
		return
	}
	defer func() { _ = conn.Close() }()

	sub := h.subscribe(posterID)
	defer h.unsubscribe(posterID, sub)

	// Reader: only control frames are expected; any error ends the feed.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		_ = conn.SetReadDeadline(time.Now().Add(livePongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(livePongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("websocket read error", "poster_id", posterID, "err", err)
				}
				return
			}
		}
	}()

	ping := time.NewTicker(livePingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			return
		case <-h.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(liveWriteWait))
			return
		case ev := <-sub.send:
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
