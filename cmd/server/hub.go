package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xtrntr/auctionhouse/internal/api"
)

const (
	writeWait      = 10 * time.Second
	receiptBacklog = 256
)

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// receiptHub streams committed purchase receipts to websocket clients. It
// implements api.ReceiptSink.
type receiptHub struct {
	upgrader websocket.Upgrader
	receipts chan *api.ReceiptView

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

func newReceiptHub(origins []string) *receiptHub {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &receiptHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowed["*"] || origin == "" || allowed[origin]
			},
		},
		receipts: make(chan *api.ReceiptView, receiptBacklog),
		clients:  make(map[*wsClient]struct{}),
	}
}

// PublishReceipt queues r for broadcast. Receipts are dropped rather than
// blocking the settling request when the backlog is full.
func (h *receiptHub) PublishReceipt(r *api.ReceiptView) {
	select {
	case h.receipts <- r:
	default:
		wsLog.Warnf("Receipt backlog full, dropping receipt %d", r.Seq)
	}
}

// run broadcasts queued receipts until ctx is done, then disconnects every
// client.
func (h *receiptHub) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				c.conn.Close()
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return nil
		case r := <-h.receipts:
			h.broadcast(r)
		}
	}
}

func (h *receiptHub) broadcast(r *api.ReceiptView) {
	data, err := json.Marshal(r)
	if err != nil {
		wsLog.Errorf("Failed to marshal receipt %d: %v", r.Seq, err)
		return
	}

	h.mu.RLock()
	var dead []*wsClient
	for c := range h.clients {
		if err := c.send(data); err != nil {
			wsLog.Debugf("Failed to send receipt to %s: %v", c.conn.RemoteAddr(), err)
			dead = append(dead, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range dead {
		h.remove(c)
	}
}

func (h *receiptHub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.conn.Close()
	}
}

// ServeHTTP upgrades the connection and keeps the client registered until
// it disconnects. Clients only receive; anything they send is discarded.
func (h *receiptHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wsLog.Debugf("Failed to upgrade connection: %v", err)
		return
	}

	c := &wsClient{conn: conn}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	wsLog.Debugf("Client %s connected (%d total)", conn.RemoteAddr(), n)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(c)
}
