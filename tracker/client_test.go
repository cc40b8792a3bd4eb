package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/grainway/batchgate/errors"
)

var testBoards = Boards{
	DependencyBoardID:        1111,
	DependentBoardID:         2222,
	DependencyStatusColumn:   "status",
	DependentStatusColumn:    "status",
	DependentRelationColumn:  "connect_boards4",
	DependencyRelationColumn: "connect_boards7",
}

// capturedRequest records one GraphQL request seen by the test server
type capturedRequest struct {
	query     string
	variables map[string]interface{}
	auth      string
}

func decodeRequest(t *testing.T, r *http.Request) capturedRequest {
	t.Helper()
	var req graphQLRequest
	require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
	return capturedRequest{
		query:     req.Query,
		variables: req.Variables,
		auth:      r.Header.Get("Authorization"),
	}
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Config{
		APIURL:            server.URL,
		APIToken:          "test-token",
		MaxRetries:        1,
		PageSize:          2,
		AllowPrivateHosts: true,
		Boards:            testBoards,
		Logger:            zap.NewNop().Sugar(),
	})
	require.NoError(t, err)
	client.SetHTTPClient(server.Client())
	return client
}

func writeData(w http.ResponseWriter, data string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"data": %s}`, data)
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(Config{APIToken: "tok"})
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))

	_, err = New(Config{APIURL: "https://tracker.example.com/v2"})
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestNew_RejectsPrivateURLByDefault(t *testing.T) {
	_, err := New(Config{APIURL: "http://127.0.0.1:8080/v2", APIToken: "tok"})
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestDependentItems_AlwaysRequestsExpandedRelation(t *testing.T) {
	var captured capturedRequest
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = decodeRequest(t, r)
		// Relation column reports empty text; only linked_items carries the links
		writeData(w, `{"boards": [{"items_page": {"cursor": null, "items": [
			{"id": "501", "name": "Batch A", "column_values": [
				{"id": "status", "type": "status", "text": "Not Started", "label": "Not Started", "index": 5},
				{"id": "connect_boards4", "type": "board_relation", "text": "", "linked_items": [
					{"id": "101", "board": {"id": "1111"}},
					{"id": "102", "board": {"id": "1111"}}
				]}
			]}
		]}}]}`)
	}))

	items, err := client.DependentItems(context.Background(), nil)
	require.NoError(t, err)

	assert.Contains(t, captured.query, "linked_items", "query must request expanded linked items")
	assert.Contains(t, captured.query, "BoardRelationValue", "query must use the relation fragment")
	assert.Equal(t, "test-token", captured.auth)

	require.Len(t, items, 1)
	assert.Equal(t, "501", items[0].ID)
	assert.Equal(t, "Not Started", items[0].StatusLabel)
	assert.Equal(t, 5, items[0].StatusIndex)
	require.Len(t, items[0].Dependencies, 2, "links must come from linked_items despite empty text")
	assert.Equal(t, LinkedItem{ID: "101", BoardID: 1111}, items[0].Dependencies[0])
}

func TestDependentItems_PaginatesUntilExhausted(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured := decodeRequest(t, r)
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			assert.Nil(t, captured.variables["cursor"], "first page must not carry a cursor")
			assert.EqualValues(t, 2, captured.variables["pageSize"])
			writeData(w, `{"boards": [{"items_page": {"cursor": "page-2", "items": [
				{"id": "501", "name": "A", "column_values": [{"id": "status", "type": "status", "text": "", "label": "Not Started", "index": 5}]},
				{"id": "502", "name": "B", "column_values": [{"id": "status", "type": "status", "text": "", "label": "Done", "index": 1}]}
			]}}]}`)
		case 2:
			assert.Equal(t, "page-2", captured.variables["cursor"])
			writeData(w, `{"boards": [{"items_page": {"cursor": null, "items": [
				{"id": "503", "name": "C", "column_values": [{"id": "status", "type": "status", "text": "", "label": "Not Started", "index": 5}]}
			]}}]}`)
		default:
			t.Error("unexpected extra page request")
		}
	}))

	items, err := client.DependentItems(context.Background(), nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))

	require.Len(t, items, 3)
	assert.Equal(t, "503", items[2].ID)
}

func TestDependentItems_ByIDSkipsPagination(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured := decodeRequest(t, r)
		assert.Contains(t, captured.query, "items(ids: $itemIDs)")
		ids, ok := captured.variables["itemIDs"].([]interface{})
		require.True(t, ok)
		assert.Len(t, ids, 2)
		writeData(w, `{"items": [
			{"id": "501", "name": "A", "column_values": [{"id": "status", "type": "status", "text": "", "label": "Not Started", "index": 5}]},
			{"id": "502", "name": "B", "column_values": [{"id": "status", "type": "status", "text": "", "label": "Not Started", "index": 5}]}
		]}`)
	}))

	items, err := client.DependentItems(context.Background(), []string{"501", "502"})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestDependentItems_MissingRelationColumnMeansNoLinks(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(w, `{"items": [
			{"id": "501", "name": "A", "column_values": [{"id": "status", "type": "status", "text": "", "label": "Not Started", "index": 5}]}
		]}`)
	}))

	items, err := client.DependentItems(context.Background(), []string{"501"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Empty(t, items[0].Dependencies, "no relation column decodes to an empty dependency set")
}

func TestDependencyStatuses_SingleBatchedCall(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		captured := decodeRequest(t, r)
		ids, ok := captured.variables["itemIDs"].([]interface{})
		require.True(t, ok)
		assert.Len(t, ids, 3, "all ids must travel in one batched query")
		writeData(w, `{"items": [
			{"id": "101", "column_values": [{"id": "status", "type": "status", "text": "", "label": "Ready", "index": 1}]},
			{"id": "102", "column_values": [{"id": "status", "type": "status", "text": "", "label": "Excluded", "index": 2}]},
			{"id": "103", "column_values": [{"id": "status", "type": "status", "text": "", "label": "Pending", "index": 0}]}
		]}`)
	}))

	statuses, err := client.DependencyStatuses(context.Background(), []string{"101", "102", "103"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	require.Len(t, statuses, 3)
	assert.Equal(t, DependencyStatus{ID: "101", Label: "Ready", Index: 1}, statuses[0])
}

func TestDependencyStatuses_PartialResponseIsNotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only two of the three requested ids still exist
		writeData(w, `{"items": [
			{"id": "101", "column_values": [{"id": "status", "type": "status", "text": "", "label": "Ready", "index": 1}]},
			{"id": "103", "column_values": [{"id": "status", "type": "status", "text": "", "label": "Ready", "index": 1}]}
		]}`)
	}))

	statuses, err := client.DependencyStatuses(context.Background(), []string{"101", "102", "103"})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Contains(t, err.Error(), "102", "missing id must be named")

	// Partial results still come back so callers can treat missing as not ready
	require.Len(t, statuses, 2)
	assert.Equal(t, "101", statuses[0].ID)
	assert.Equal(t, "103", statuses[1].ID)
}

func TestDependencyStatuses_EmptyIDsNoCall(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be made for an empty id set")
	}))

	statuses, err := client.DependencyStatuses(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, statuses)
}

func TestDependencyItem_DecodesBackRelation(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(w, `{"items": [
			{"id": "101", "name": "PO-77", "column_values": [
				{"id": "status", "type": "status", "text": "", "label": "Ready", "index": 1},
				{"id": "connect_boards7", "type": "board_relation", "text": "", "linked_items": [
					{"id": "501", "board": {"id": "2222"}},
					{"id": "900", "board": {"id": "9999"}}
				]}
			]}
		]}`)
	}))

	item, err := client.DependencyItem(context.Background(), "101")
	require.NoError(t, err)
	assert.Equal(t, "Ready", item.StatusLabel)
	// Both links decode; filtering to the dependent board happens downstream
	require.Len(t, item.Dependents, 2)
	assert.Equal(t, int64(9999), item.Dependents[1].BoardID)
}

func TestDependencyItem_MissingIsNotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(w, `{"items": []}`)
	}))

	_, err := client.DependencyItem(context.Background(), "101")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestUpdateDependentStatus_EncodesIndex(t *testing.T) {
	var captured capturedRequest
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = decodeRequest(t, r)
		writeData(w, `{"change_column_value": {"id": "501"}}`)
	}))

	err := client.UpdateDependentStatus(context.Background(), "501", 0)
	require.NoError(t, err)

	assert.Contains(t, captured.query, "change_column_value")
	assert.EqualValues(t, 2222, captured.variables["boardID"], "mutation targets the dependent board")
	assert.Equal(t, "501", captured.variables["itemID"])
	assert.Equal(t, "status", captured.variables["columnID"])
	assert.JSONEq(t, `{"index": 0}`, captured.variables["value"].(string), "status travels by positional index")
}

func TestRemoteRejected_NotRetried(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"errors": [{"message": "column not found"}]}`)
	}))

	err := client.UpdateDependentStatus(context.Background(), "501", 0)
	require.Error(t, err)
	assert.True(t, errors.IsRemoteRejected(err))
	assert.Contains(t, err.Error(), "column not found")
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "rejections must not be retried")
}

func TestNon2xxIsRemoteRejected(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "forbidden", http.StatusForbidden)
	}))

	_, err := client.DependentItems(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsRemoteRejected(err))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

// flakyTransport fails the first n round trips at the transport level, then
// delegates to the real transport
type flakyTransport struct {
	failures int32
	inner    http.RoundTripper
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if atomic.AddInt32(&f.failures, -1) >= 0 {
		return nil, fmt.Errorf("connection reset by peer")
	}
	return f.inner.RoundTrip(req)
}

func TestNetworkFailure_RetriedThenSucceeds(t *testing.T) {
	restore := retryBaseDelay
	retryBaseDelay = time.Millisecond
	defer func() { retryBaseDelay = restore }()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(w, `{"items": []}`)
	}))
	defer server.Close()

	client, err := New(Config{
		APIURL:            server.URL,
		APIToken:          "tok",
		MaxRetries:        3,
		AllowPrivateHosts: true,
		Boards:            testBoards,
		Logger:            zap.NewNop().Sugar(),
	})
	require.NoError(t, err)

	flaky := &flakyTransport{failures: 2, inner: http.DefaultTransport}
	client.SetHTTPClient(&http.Client{Transport: flaky})

	statuses, err := client.DependencyStatuses(context.Background(), []string{"101"})
	// Two transport failures, then a response (empty: id gone remotely)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Empty(t, statuses)
}

func TestNetworkFailure_RetriesExhausted(t *testing.T) {
	restore := retryBaseDelay
	retryBaseDelay = time.Millisecond
	defer func() { retryBaseDelay = restore }()

	client, err := New(Config{
		APIURL:            "http://127.0.0.1:1/v2", // nothing listens here
		APIToken:          "tok",
		MaxRetries:        3,
		AllowPrivateHosts: true,
		Boards:            testBoards,
		Logger:            zap.NewNop().Sugar(),
	})
	require.NoError(t, err)

	flaky := &flakyTransport{failures: 99, inner: http.DefaultTransport}
	client.SetHTTPClient(&http.Client{Transport: flaky})

	_, err = client.DependentItems(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsNetwork(err))
	// 3 attempts consumed: initial plus two retries
	assert.EqualValues(t, 99-3, atomic.LoadInt32(&flaky.failures))
}

func TestStatusLabels(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured := decodeRequest(t, r)
		assert.Contains(t, captured.query, "settings_str")
		writeData(w, `{"boards": [{"columns": [
			{"id": "status", "type": "status", "settings_str": "{\"labels\": {\"0\": \"In Progress\", \"1\": \"Done\", \"5\": \"Not Started\"}}"}
		]}]}`)
	}))

	labels, err := client.StatusLabels(context.Background(), 2222, "status")
	require.NoError(t, err)
	assert.Equal(t, map[int]string{0: "In Progress", 1: "Done", 5: "Not Started"}, labels)
}

func TestStatusLabels_WrongColumnType(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(w, `{"boards": [{"columns": [
			{"id": "status", "type": "text", "settings_str": "{}"}
		]}]}`)
	}))

	_, err := client.StatusLabels(context.Background(), 2222, "status")
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestStatusLabels_MissingColumn(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(w, `{"boards": [{"columns": []}]}`)
	}))

	_, err := client.StatusLabels(context.Background(), 2222, "status")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestVerifySchema(t *testing.T) {
	expect := SchemaExpectations{
		DependencyLabels: map[int]string{1: "Ready", 2: "Excluded"},
		DependentLabels:  map[int]string{5: "Not Started", 0: "In Progress"},
	}

	t.Run("matching schema passes", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeData(w, `{"boards": [{"columns": [
				{"id": "status", "type": "status", "settings_str": "{\"labels\": {\"0\": \"In Progress\", \"1\": \"Ready\", \"2\": \"Excluded\", \"5\": \"Not Started\"}}"}
			]}]}`)
		}))
		require.NoError(t, client.VerifySchema(context.Background(), expect))
	})

	t.Run("reordered labels fail", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeData(w, `{"boards": [{"columns": [
				{"id": "status", "type": "status", "settings_str": "{\"labels\": {\"1\": \"Excluded\", \"2\": \"Ready\", \"0\": \"In Progress\", \"5\": \"Not Started\"}}"}
			]}]}`)
		}))
		err := client.VerifySchema(context.Background(), SchemaExpectations{
			DependencyLabels: map[int]string{1: "Ready"},
		})
		require.Error(t, err)
		assert.True(t, errors.IsConfiguration(err))
		assert.Contains(t, err.Error(), "order has changed")
	})

	t.Run("missing index fails", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeData(w, `{"boards": [{"columns": [
				{"id": "status", "type": "status", "settings_str": "{\"labels\": {\"0\": \"In Progress\"}}"}
			]}]}`)
		}))
		err := client.VerifySchema(context.Background(), SchemaExpectations{
			DependencyLabels: map[int]string{1: "Ready"},
		})
		require.Error(t, err)
		assert.True(t, errors.IsConfiguration(err))
	})
}

func TestTruncateBody(t *testing.T) {
	short := []byte("short error")
	assert.Equal(t, "short error", truncateBody(short))

	long := []byte(strings.Repeat("x", 600))
	truncated := truncateBody(long)
	assert.Len(t, truncated, 512+len("... (truncated)"))
	assert.True(t, strings.HasSuffix(truncated, "... (truncated)"))
}
