package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtrntr/auctionhouse/internal/api"
)

func TestReceiptHub_Broadcast(t *testing.T) {
	hub := newReceiptHub([]string{"*"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.run(ctx) }()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Wait for the client to be registered before publishing.
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.clients) == 1
	}, time.Second, 10*time.Millisecond)

	hub.PublishReceipt(&api.ReceiptView{Seq: 7, PriceUI: "0.5", ListingClosed: true})

	var got api.ReceiptView
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, uint64(7), got.Seq)
	assert.Equal(t, "0.5", got.PriceUI)
	assert.True(t, got.ListingClosed)

	cancel()
	require.NoError(t, <-done)
	hub.mu.RLock()
	assert.Empty(t, hub.clients)
	hub.mu.RUnlock()
}

func TestReceiptHub_CheckOrigin(t *testing.T) {
	hub := newReceiptHub([]string{"https://market.example"})
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}
	assert.True(t, hub.upgrader.CheckOrigin(req("https://market.example")))
	assert.True(t, hub.upgrader.CheckOrigin(req("")))
	assert.False(t, hub.upgrader.CheckOrigin(req("https://evil.example")))
}

func TestReceiptHub_PublishDropsWhenFull(t *testing.T) {
	hub := newReceiptHub(nil)
	for i := 0; i < receiptBacklog+5; i++ {
		hub.PublishReceipt(&api.ReceiptView{Seq: uint64(i)})
	}
	assert.Len(t, hub.receipts, receiptBacklog)
}

func TestSetLogLevels(t *testing.T) {
	require.NoError(t, setLogLevels("info,SETL=debug"))
	assert.Error(t, setLogLevels("info,NOPE=debug"))
	assert.Error(t, setLogLevels("loud"))
}
