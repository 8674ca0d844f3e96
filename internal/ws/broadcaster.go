// Package ws pushes freshly computed analytics snapshots to subscribed
// frontends over a websocket fan-out.
package ws

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/mkaplon/foresight-backend/internal/models"
)

// Broadcaster fans analytics updates out to every connected client.
type Broadcaster struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
	upgrader websocket.Upgrader
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients:  make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

// update is the wire envelope for a pushed snapshot.
type update struct {
	Type      string                  `json:"type"`
	MarketID  string                  `json:"marketId"`
	Analytics *models.MarketAnalytics `json:"analytics"`
}

// BroadcastAnalytics sends a snapshot to all clients. Dead connections are
// dropped on write failure.
func (b *Broadcaster) BroadcastAnalytics(snap *models.MarketAnalytics) {
	msg, err := json.Marshal(update{
		Type:      "market_analytics",
		MarketID:  snap.MarketID,
		Analytics: snap,
	})
	if err != nil {
		fmt.Printf("[WS] Marshal failed for market %s: %v\n", snap.MarketID, err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.Close()
			delete(b.clients, c)
		}
	}
}

// ClientCount reports connected subscribers, for the health endpoint.
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Handler upgrades the request and registers the connection. A read loop
// runs per client solely to detect disconnects.
func (b *Broadcaster) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			fmt.Printf("[WS] Upgrade failed: %v\n", err)
			return
		}
		b.mu.Lock()
		b.clients[conn] = struct{}{}
		b.mu.Unlock()

		go func() {
			defer func() {
				b.mu.Lock()
				delete(b.clients, conn)
				b.mu.Unlock()
				conn.Close()
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}
