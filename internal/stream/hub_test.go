package stream

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/orderbook-api/internal/types"
)

func testServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/ws/trades", hub.Handler(FeedTrades))
	router.GET("/ws/orderbook", hub.Handler(FeedOrderBook))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func TestPingPong(t *testing.T) {
	hub := NewHub()
	srv := testServer(t, hub)
	conn := dial(t, srv, "/ws/trades")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	msg := readJSON(t, conn)
	assert.Equal(t, "pong", msg["type"])
}

func TestUnknownMessageType(t *testing.T) {
	hub := NewHub()
	srv := testServer(t, hub)
	conn := dial(t, srv, "/ws/trades")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe"}`)))
	msg := readJSON(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "Unknown message type", msg["message"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	msg = readJSON(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "Invalid JSON", msg["message"])
}

func TestBroadcastReachesSubscribers(t *testing.T) {
	hub := NewHub()
	srv := testServer(t, hub)
	conn := dial(t, srv, "/ws/orderbook")

	require.Eventually(t, func() bool {
		return hub.Subscribers(FeedOrderBook) == 1
	}, time.Second, 10*time.Millisecond)

	hub.Broadcast(FeedOrderBook, bookFeedPayload{
		Bids: []types.PriceLevelSnapshot{{Price: 10000, Quantity: 10}},
		Asks: []types.PriceLevelSnapshot{{Price: 10100, Quantity: 5}},
	})

	msg := readJSON(t, conn)
	bids, ok := msg["bids"].([]interface{})
	require.True(t, ok)
	require.Len(t, bids, 1)

	level, ok := bids[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "100.00", level["price"])
	assert.Equal(t, float64(10), level["quantity"])
}

// fakeSource is a canned BookSource for broadcaster tests.
type fakeSource struct {
	trades []types.Trade
	snap   types.BookSnapshot
}

func (f *fakeSource) Snapshot(depth int) types.BookSnapshot { return f.snap }
func (f *fakeSource) RecentTrades(n int) []types.Trade      { return f.trades }

func TestBroadcasterPushesPeriodicUpdates(t *testing.T) {
	hub := NewHub()
	srv := testServer(t, hub)

	source := &fakeSource{
		trades: []types.Trade{{
			TradeID:            uuid.New(),
			Price:              10100,
			Quantity:           4,
			BidOrderID:         uuid.New(),
			AskOrderID:         uuid.New(),
			ExecutionTimestamp: time.Now().UTC(),
		}},
		snap: types.BookSnapshot{
			Bids: []types.PriceLevelSnapshot{{Price: 10000, Quantity: 10}},
			Asks: []types.PriceLevelSnapshot{{Price: 10100, Quantity: 6}},
		},
	}

	broadcaster := NewBroadcaster(hub, source, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go broadcaster.Start(ctx)

	tradeConn := dial(t, srv, "/ws/trades")
	bookConn := dial(t, srv, "/ws/orderbook")

	tradeMsg := readJSON(t, tradeConn)
	trades, ok := tradeMsg["trades"].([]interface{})
	require.True(t, ok)
	require.Len(t, trades, 1)

	first, ok := trades[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "101.00", first["price"])
	assert.Equal(t, float64(4), first["quantity"])
	assert.Equal(t, source.trades[0].TradeID.String(), first["trade_id"])

	bookMsg := readJSON(t, bookConn)
	asks, ok := bookMsg["asks"].([]interface{})
	require.True(t, ok)
	require.Len(t, asks, 1)
}
