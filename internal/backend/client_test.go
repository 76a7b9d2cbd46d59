package backend

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xpads/curvewatch/internal/config"
)

func newTestClient() *Client {
	return NewClient(config.Websocket{
		BackendSocketURL: "ws://localhost:3001",
		BackendNamespace: "/charts",
	}, "test")
}

func TestURLJoinsNamespace(t *testing.T) {
	c := newTestClient()
	assert.Equal(t, "ws://localhost:3001/charts", c.url)

	trailing := NewClient(config.Websocket{
		BackendSocketURL: "ws://localhost:3001/",
		BackendNamespace: "/charts",
	}, "test")
	assert.Equal(t, "ws://localhost:3001/charts", trailing.url)
}

func drain(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case frame := <-c.sendQ:
		var msg Message
		require.NoError(t, json.Unmarshal(frame, &msg))
		return msg
	default:
		t.Fatal("no frame queued")
		return Message{}
	}
}

func TestEmitRoomShape(t *testing.T) {
	c := newTestClient()
	c.rooms["token:0xT"] = 3

	require.NoError(t, c.EmitRoom("token:0xT", map[string]string{"type": "trade"}))

	msg := drain(t, c)
	assert.Equal(t, "room_message", msg.Event)
	var data struct {
		Room        string          `json:"room"`
		Data        json.RawMessage `json:"data"`
		ClientCount int             `json:"client_count"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, "token:0xT", data.Room)
	assert.Equal(t, 3, data.ClientCount)
}

func TestSubscribeBookkeeping(t *testing.T) {
	c := newTestClient()
	sub, _ := json.Marshal(map[string]string{"room": "token:0xT"})

	c.handle(Message{Event: "subscribe_request", Data: sub})
	c.handle(Message{Event: "subscribe_request", Data: sub})
	assert.Equal(t, 2, c.RoomCount("token:0xT"))

	c.handle(Message{Event: "unsubscribe_request", Data: sub})
	assert.Equal(t, 1, c.RoomCount("token:0xT"))
	c.handle(Message{Event: "unsubscribe_request", Data: sub})
	assert.Equal(t, 0, c.RoomCount("token:0xT"))
	// Underflow is clamped.
	c.handle(Message{Event: "unsubscribe_request", Data: sub})
	assert.Equal(t, 0, c.RoomCount("token:0xT"))
}

func TestPingAnswersPong(t *testing.T) {
	c := newTestClient()
	c.handle(Message{Event: "ping"})
	msg := drain(t, c)
	assert.Equal(t, "pong", msg.Event)
}

func TestChartDataRequestRoutedToHandler(t *testing.T) {
	c := newTestClient()
	var got DataRequest
	c.OnChartData = func(req DataRequest) (interface{}, bool) {
		got = req
		return map[string]string{"type": "chart_data"}, true
	}
	raw, _ := json.Marshal(DataRequest{TokenAddress: "0xT", Interval: "1m"})
	c.handle(Message{Event: "chart_data_request", Data: raw})

	assert.Equal(t, "0xT", got.TokenAddress)
	assert.Equal(t, "1m", got.Interval)
	msg := drain(t, c)
	assert.Equal(t, "room_message", msg.Event)
}

func TestEnqueueDropsOldestWhenFull(t *testing.T) {
	c := newTestClient()
	var dropped int
	c.OnDrop = func() { dropped++ }

	for i := 0; i < sendQueueSize; i++ {
		require.NoError(t, c.Emit("broadcast", map[string]int{"n": i}))
	}
	// Queue is full; the next emit must not block and must shed the
	// oldest frame.
	require.NoError(t, c.Emit("broadcast", map[string]int{"n": sendQueueSize}))

	assert.Equal(t, 1, dropped)
	assert.Equal(t, uint64(1), c.Drops())
	assert.Len(t, c.sendQ, sendQueueSize)

	first := drain(t, c)
	var data struct {
		Data map[string]int `json:"data"`
	}
	require.NoError(t, json.Unmarshal(first.Data, &data))
	assert.Equal(t, 1, data.Data["n"], "frame 0 was the one dropped")
}

func TestHealthyReflectsConnection(t *testing.T) {
	c := newTestClient()
	assert.False(t, c.Healthy())
}
