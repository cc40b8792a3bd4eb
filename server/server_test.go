package server

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/grainway/batchgate/reconcile"
)

func wsURL(ts string) string {
	return "ws" + strings.TrimPrefix(ts, "http") + "/ws/runs"
}

func TestRunsFeed_StreamsBroadcasts(t *testing.T) {
	ts, _, srv := newTestServer(t, testConfig())

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts.URL), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return srv.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	srv.BroadcastRunSummary(&reconcile.RunSummary{
		RunID:     "run-live",
		Mode:      reconcile.ModeSweep,
		Processed: 3,
		Updated:   2,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got reconcile.RunSummary
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "run-live", got.RunID)
	assert.Equal(t, 3, got.Processed)
}

func TestRunsFeed_NewClientGetsCachedSummary(t *testing.T) {
	ts, _, srv := newTestServer(t, testConfig())

	srv.BroadcastRunSummary(&reconcile.RunSummary{
		RunID: "run-cached",
		Mode:  reconcile.ModeSweep,
	})
	require.Eventually(t, func() bool {
		return srv.lastRun() != nil
	}, time.Second, 10*time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts.URL), nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got reconcile.RunSummary
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "run-cached", got.RunID)
}

func TestRunsFeed_RejectsDisallowedOrigin(t *testing.T) {
	cfg := testConfig()
	cfg.AllowedOrigins = []string{"http://localhost:3000"}
	ts, _, _ := newTestServer(t, cfg)

	header := http.Header{"Origin": []string{"http://evil.example"}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts.URL), header)
	require.Error(t, err)
	if conn != nil {
		conn.Close()
	}
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"http://localhost:3000"}}
	conn, _, err = websocket.DefaultDialer.Dial(wsURL(ts.URL), header)
	require.NoError(t, err)
	conn.Close()
}

func TestSlowClientIsDropped(t *testing.T) {
	_, _, srv := newTestServer(t, testConfig())

	// No reader and no buffer, so the first broadcast cannot be
	// delivered.
	slow := &Client{
		server: srv,
		send:   make(chan *reconcile.RunSummary),
		id:     "slowpoke",
	}
	srv.register <- slow
	require.Eventually(t, func() bool {
		return srv.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	srv.BroadcastRunSummary(&reconcile.RunSummary{RunID: "run-1", Mode: reconcile.ModeSweep})

	require.Eventually(t, func() bool {
		return srv.ClientCount() == 0
	}, time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, srv.broadcastDrops.Load(), int64(1))
}

func TestStartStopLifecycle(t *testing.T) {
	cfg := testConfig()
	cfg.Port = 0
	srv := New(cfg, &fakeRunner{}, zap.NewNop().Sugar())

	require.NoError(t, srv.Start())
	port := srv.Port()
	require.NotZero(t, port)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Stop())

	_, err = http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
	assert.Error(t, err)
}
