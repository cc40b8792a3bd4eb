package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/grainway/batchgate/errors"
	"github.com/grainway/batchgate/reconcile"
)

type targetedCall struct {
	id     string
	dryRun bool
}

type fakeRunner struct {
	mu            sync.Mutex
	sweepCalls    []bool
	targetedCalls []targetedCall
	err           error
}

func (f *fakeRunner) RunFullSweep(ctx context.Context, dryRun bool) (*reconcile.RunSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweepCalls = append(f.sweepCalls, dryRun)
	if f.err != nil {
		return nil, f.err
	}
	return &reconcile.RunSummary{
		RunID:     "run-sweep",
		Mode:      reconcile.ModeSweep,
		DryRun:    dryRun,
		Processed: 2,
		Updated:   1,
		Skipped:   1,
	}, nil
}

func (f *fakeRunner) RunTargeted(ctx context.Context, dependencyItemID string, dryRun bool) (*reconcile.RunSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targetedCalls = append(f.targetedCalls, targetedCall{id: dependencyItemID, dryRun: dryRun})
	if f.err != nil {
		return nil, f.err
	}
	return &reconcile.RunSummary{
		RunID:     "run-targeted",
		Mode:      reconcile.ModeTargeted,
		TargetID:  dependencyItemID,
		DryRun:    dryRun,
		Processed: 1,
		Updated:   1,
	}, nil
}

func (f *fakeRunner) calls() (sweeps []bool, targeted []targetedCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.sweepCalls...), append([]targetedCall(nil), f.targetedCalls...)
}

func testConfig() Config {
	return Config{
		DependencyStatusColumn: "status",
		SatisfyingLabels:       []string{"Ready", "Excluded"},
	}
}

// newTestServer wires a Server to httptest so handlers are exercised
// through the real route table.
func newTestServer(t *testing.T, cfg Config) (*httptest.Server, *fakeRunner, *Server) {
	t.Helper()

	runner := &fakeRunner{}
	srv := New(cfg, runner, zap.NewNop().Sugar())
	srv.startHub()

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Stop()
	})
	return ts, runner, srv
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestWebhook_ChallengeEcho(t *testing.T) {
	ts, runner, _ := newTestServer(t, testConfig())

	resp := postJSON(t, ts.URL+"/webhooks/board", `{"challenge": "abc-123"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "abc-123", body["challenge"])

	sweeps, targeted := runner.calls()
	assert.Empty(t, sweeps)
	assert.Empty(t, targeted)
}

func TestWebhook_TriggersTargetedRun(t *testing.T) {
	ts, runner, _ := newTestServer(t, testConfig())

	resp := postJSON(t, ts.URL+"/webhooks/board",
		`{"changedItemId": "101", "changedColumnId": "status", "newLabel": "Ready"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status string               `json:"status"`
		Run    reconcile.RunSummary `json:"run"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, "processed", body.Status)
	assert.Equal(t, "run-targeted", body.Run.RunID)
	assert.Equal(t, "101", body.Run.TargetID)

	_, targeted := runner.calls()
	require.Equal(t, []targetedCall{{id: "101", dryRun: false}}, targeted)
}

func TestWebhook_IgnoresOtherColumns(t *testing.T) {
	ts, runner, _ := newTestServer(t, testConfig())

	resp := postJSON(t, ts.URL+"/webhooks/board",
		`{"changedItemId": "101", "changedColumnId": "priority", "newLabel": "Ready"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "ignored", body["status"])
	assert.Contains(t, body["reason"], "priority")

	_, targeted := runner.calls()
	assert.Empty(t, targeted)
}

func TestWebhook_IgnoresNonQualifyingLabels(t *testing.T) {
	ts, runner, _ := newTestServer(t, testConfig())

	resp := postJSON(t, ts.URL+"/webhooks/board",
		`{"changedItemId": "101", "changedColumnId": "status", "newLabel": "Working on it"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "ignored", body["status"])
	assert.Contains(t, body["reason"], "Working on it")

	_, targeted := runner.calls()
	assert.Empty(t, targeted)
}

func TestWebhook_SecretGuardsEndpoint(t *testing.T) {
	cfg := testConfig()
	cfg.WebhookSecret = "s3cret-token"
	ts, runner, _ := newTestServer(t, cfg)

	send := func(auth string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/webhooks/board",
			strings.NewReader(`{"challenge": "ping"}`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := send("")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = send("wrong-token")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = send("s3cret-token")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "ping", body["challenge"])

	_, targeted := runner.calls()
	assert.Empty(t, targeted)
}

func TestWebhook_MissingItemIDIsBadRequest(t *testing.T) {
	ts, _, _ := newTestServer(t, testConfig())

	resp := postJSON(t, ts.URL+"/webhooks/board", `{"changedColumnId": "status", "newLabel": "Ready"}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhook_MalformedJSONIsBadRequest(t *testing.T) {
	ts, _, _ := newTestServer(t, testConfig())

	resp := postJSON(t, ts.URL+"/webhooks/board", `{not json`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSweepRun_ReturnsSummary(t *testing.T) {
	ts, runner, _ := newTestServer(t, testConfig())

	resp := postJSON(t, ts.URL+"/api/runs/sweep", `{"dry_run": true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary reconcile.RunSummary
	decodeBody(t, resp, &summary)
	assert.Equal(t, "run-sweep", summary.RunID)
	assert.True(t, summary.DryRun)

	sweeps, _ := runner.calls()
	require.Equal(t, []bool{true}, sweeps)
}

func TestSweepRun_EmptyBodyIsLiveRun(t *testing.T) {
	ts, runner, _ := newTestServer(t, testConfig())

	resp := postJSON(t, ts.URL+"/api/runs/sweep", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary reconcile.RunSummary
	decodeBody(t, resp, &summary)
	assert.False(t, summary.DryRun)

	sweeps, _ := runner.calls()
	require.Equal(t, []bool{false}, sweeps)
}

func TestSweepRun_FailureIsBadGateway(t *testing.T) {
	ts, runner, _ := newTestServer(t, testConfig())
	runner.err = errors.NewNetworkError(errors.New("connection refused"), "enumerating items")

	resp := postJSON(t, ts.URL+"/api/runs/sweep", "")
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Contains(t, body["error"], "sweep failed")
}

func TestTargetedRun_RequiresItemID(t *testing.T) {
	ts, _, _ := newTestServer(t, testConfig())

	resp := postJSON(t, ts.URL+"/api/runs/targeted", `{"dry_run": true}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTargetedRun_ReturnsSummary(t *testing.T) {
	ts, runner, _ := newTestServer(t, testConfig())

	resp := postJSON(t, ts.URL+"/api/runs/targeted",
		`{"dependency_item_id": "202", "dry_run": true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary reconcile.RunSummary
	decodeBody(t, resp, &summary)
	assert.Equal(t, "202", summary.TargetID)
	assert.True(t, summary.DryRun)

	_, targeted := runner.calls()
	require.Equal(t, []targetedCall{{id: "202", dryRun: true}}, targeted)
}

func TestRunEndpoints_RejectNonPost(t *testing.T) {
	ts, _, _ := newTestServer(t, testConfig())

	for _, path := range []string{"/webhooks/board", "/api/runs/sweep", "/api/runs/targeted"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, path)
		assert.Equal(t, http.MethodPost, resp.Header.Get("Allow"), path)
	}
}

func TestHealth(t *testing.T) {
	ts, _, _ := newTestServer(t, testConfig())

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestStatus_ReportsRuntimeState(t *testing.T) {
	ts, _, srv := newTestServer(t, testConfig())

	// Seed a run so last_run shows up once the hub caches it.
	resp := postJSON(t, ts.URL+"/api/runs/sweep", "")
	resp.Body.Close()
	require.Eventually(t, func() bool {
		return srv.lastRun() != nil
	}, time.Second, 10*time.Millisecond)

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status struct {
		UptimeSeconds    int64                 `json:"uptime_seconds"`
		WebsocketClients int                   `json:"websocket_clients"`
		System           SystemMetrics         `json:"system"`
		LastRun          *reconcile.RunSummary `json:"last_run"`
	}
	decodeBody(t, resp, &status)

	assert.GreaterOrEqual(t, status.UptimeSeconds, int64(0))
	assert.Equal(t, 0, status.WebsocketClients)
	assert.GreaterOrEqual(t, status.System.MemoryTotalGB, 0.0)
	require.NotNil(t, status.LastRun)
	assert.Equal(t, "run-sweep", status.LastRun.RunID)
}

func TestCORS_Preflight(t *testing.T) {
	cfg := testConfig()
	cfg.AllowedOrigins = []string{"http://localhost:3000"}
	ts, _, _ := newTestServer(t, cfg)

	send := func(origin string) *http.Response {
		req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/status", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	resp := send("http://localhost:3000")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))

	resp = send("http://evil.example")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}
