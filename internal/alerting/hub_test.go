package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestHub_BroadcastsAlerts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(zaptest.NewLogger(t))
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, hub.Send(context.Background(), sampleAlert()))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "alert", msg.Type)
	assert.Contains(t, string(msg.Payload), `"machine_id":"m1"`)
}

func TestHub_SendWithoutRunnerDoesNotBlock(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	var err error
	for i := 0; i < 300; i++ {
		if err = hub.Send(context.Background(), sampleAlert()); err != nil {
			break
		}
	}
	assert.ErrorIs(t, err, ErrHubBusy)
}

func TestHub_OriginAllowList(t *testing.T) {
	check := originChecker(map[string]struct{}{"https://dashboard.plant.local": {}})

	tests := []struct {
		name   string
		origin string
		host   string
		want   bool
	}{
		{name: "no origin header", origin: "", host: "pdm:8080", want: true},
		{name: "same origin", origin: "http://pdm:8080", host: "pdm:8080", want: true},
		{name: "listed origin", origin: "https://Dashboard.plant.local/", host: "pdm:8080", want: true},
		{name: "foreign origin", origin: "https://evil.example", host: "pdm:8080", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "http://"+tt.host+"/ws/alerts", nil)
			req.Host = tt.host
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, check(req))
		})
	}

	assert.True(t, originChecker(map[string]struct{}{"*": {}})(func() *http.Request {
		req := httptest.NewRequest("GET", "/ws/alerts", nil)
		req.Header.Set("Origin", "https://anywhere.example")
		return req
	}()))
}

func TestHub_RejectsForeignOriginUpgrade(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(zaptest.NewLogger(t), "https://dashboard.plant.local")
	go hub.Run(ctx)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": []string{"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, hub.Clients())

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": []string{"https://dashboard.plant.local"}})
	require.NoError(t, err)
	conn.Close()
}
