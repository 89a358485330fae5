package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/couplemovie/backend/internal/logging"
	"github.com/couplemovie/backend/internal/models"
)

const (
	subscriberBuffer = 32
	writeTimeout     = 10 * time.Second
	pingInterval     = 30 * time.Second
)

// Hub routes events to the websocket connections of their recipients.
// An account may hold several connections (one per device).
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*Subscription]struct{}
	closed      bool
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[*Subscription]struct{})}
}

// Subscription is one live connection's event feed.
type Subscription struct {
	accountID string
	events    chan json.RawMessage
	once      sync.Once
}

// Events yields encoded events until the subscription is closed.
func (s *Subscription) Events() <-chan json.RawMessage {
	return s.events
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.events) })
}

// Name identifies the sink in delivery logs.
func (h *Hub) Name() string { return "websocket" }

// Subscribe registers a new feed for accountID.
func (h *Hub) Subscribe(accountID string) *Subscription {
	sub := &Subscription{accountID: accountID, events: make(chan json.RawMessage, subscriberBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.close()
		return sub
	}
	if h.subscribers[accountID] == nil {
		h.subscribers[accountID] = make(map[*Subscription]struct{})
	}
	h.subscribers[accountID][sub] = struct{}{}
	return sub
}

// Unsubscribe removes and closes the feed.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	if subs, ok := h.subscribers[sub.accountID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.subscribers, sub.accountID)
		}
	}
	h.mu.Unlock()
	sub.close()
}

// Close ends every feed and refuses new ones. Open streams tell their
// clients the server is going away.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := h.subscribers
	h.subscribers = make(map[string]map[*Subscription]struct{})
	h.mu.Unlock()

	for _, set := range subs {
		for sub := range set {
			sub.close()
		}
	}
}

func (h *Hub) isClosed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

// Connected reports how many feeds accountID currently holds.
func (h *Hub) Connected(accountID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[accountID])
}

// Deliver pushes the event to every feed of every recipient. Feeds that
// cannot keep up are closed so the client reconnects and resyncs.
func (h *Hub) Deliver(_ context.Context, event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	var slow []*Subscription

	h.mu.RLock()
	for _, recipient := range event.Recipients {
		for sub := range h.subscribers[recipient] {
			select {
			case sub.events <- payload:
			default:
				slow = append(slow, sub)
			}
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		h.Unsubscribe(sub)
	}
	return nil
}

// Stream writes events for accountID to conn until the client goes away or ctx ends.
func (h *Hub) Stream(ctx context.Context, conn *websocket.Conn, accountID string) error {
	sub := h.Subscribe(accountID)
	defer h.Unsubscribe(sub)

	// Clients only listen; CloseRead handles control frames and cancels on close.
	ctx = conn.CloseRead(ctx)

	logger := logging.FromContext(ctx)
	logger.Info("event stream opened", "connections", h.Connected(accountID))

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-sub.Events():
			if !ok {
				if h.isClosed() {
					conn.Close(websocket.StatusGoingAway, "server shutting down")
					return nil
				}
				conn.Close(websocket.StatusPolicyViolation, "event stream too slow")
				return errors.New("subscriber fell behind")
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, conn, payload)
			cancel()
			if err != nil {
				return fmt.Errorf("write event: %w", err)
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}
