package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"callhub/internal/core/domain"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type collectingHandler struct {
	mu   sync.Mutex
	msgs []*domain.Message
}

func (h *collectingHandler) HandleMessage(msg *domain.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, msg)
	return nil
}

func (h *collectingHandler) events() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.msgs))
	for _, m := range h.msgs {
		out = append(out, m.Event)
	}
	return out
}

// fakeSignalServer greets, then answers every inbound frame with an echo of
// its event name.
func fakeSignalServer(t *testing.T, frames chan<- outboundFrame, query chan<- string) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query <- r.URL.RawQuery
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		ws.WriteJSON(domain.NewMessage(domain.EventConnected, "", "", domain.ConnectedPayload{ConnectionID: "me"}))
		for {
			var f outboundFrame
			if err := ws.ReadJSON(&f); err != nil {
				return
			}
			frames <- f
			ws.WriteJSON(domain.NewMessage(f.Event, f.RoomID, "server", nil))
		}
	}))
}

func TestConn_RoundTrip(t *testing.T) {
	frames := make(chan outboundFrame, 8)
	query := make(chan string, 1)
	ts := fakeSignalServer(t, frames, query)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, err := Dial(context.Background(), url, "tok", "Ann", zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Contains(t, <-query, "token=tok")

	ctx, cancel := context.WithCancel(context.Background())
	handler := &collectingHandler{}
	done := make(chan error, 1)
	go func() { done <- conn.Run(ctx, handler) }()

	require.NoError(t, conn.Join("r1", domain.JoinPayload{CallType: domain.CallTypeVideo}))
	require.NoError(t, conn.Signal(domain.EventOffer, "r1", "b", map[string]string{"type": "offer", "sdp": "x"}))

	join := <-frames
	assert.Equal(t, domain.EventJoinRoom, join.Event)
	assert.Equal(t, domain.RoomID("r1"), join.RoomID)
	var payload domain.JoinPayload
	require.NoError(t, json.Unmarshal(join.Payload, &payload))
	assert.Equal(t, domain.CallTypeVideo, payload.CallType)

	offer := <-frames
	assert.Equal(t, domain.ConnectionID("b"), offer.Target)

	require.Eventually(t, func() bool { return len(handler.events()) == 3 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{domain.EventConnected, domain.EventJoinRoom, domain.EventOffer}, handler.events())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.NoError(t, conn.Close())
}

func TestDial_Rejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer ts.Close()

	_, err := Dial(context.Background(), "ws"+strings.TrimPrefix(ts.URL, "http"), "bad", "", zap.NewNop().Sugar())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
