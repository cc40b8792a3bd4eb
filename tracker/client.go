// Package tracker is the typed client for the board service's GraphQL API:
// read queries for items and relations, one status mutation, and the startup
// schema check. All failures map onto the engine's error taxonomy (network,
// remote-rejected, not-found) so callers classify instead of string-matching.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/grainway/batchgate/errors"
	"github.com/grainway/batchgate/internal/httpclient"
	"github.com/grainway/batchgate/logger"
)

// Config holds everything the client needs, injected explicitly at startup.
type Config struct {
	APIURL             string
	APIToken           string
	Timeout            time.Duration // per-request cap (default: 30s)
	MaxRetries         int           // total attempts for transport failures (default: 3)
	RateLimitPerMinute int           // 0 = unlimited
	PageSize           int           // sweep pagination size (default: 100)
	AllowPrivateHosts  bool          // permit self-hosted trackers on internal networks
	Verbosity          int           // -vvv dumps full request/response bodies

	Boards Boards

	Logger *zap.SugaredLogger // nil = package logger
}

// Boards identifies the two boards and the columns the engine touches.
type Boards struct {
	DependencyBoardID        int64
	DependentBoardID         int64
	DependencyStatusColumn   string
	DependentStatusColumn    string
	DependentRelationColumn  string
	DependencyRelationColumn string
}

// Client executes queries and the status mutation against the board service.
// Safe for concurrent use: every method is an independent request/response
// pair; the auth token is read-only after construction.
type Client struct {
	apiURL     string
	apiToken   string
	httpClient *httpclient.SaferClient
	limiter    *rate.Limiter
	maxRetries int
	pageSize   int
	verbosity  int
	boards     Boards
	logger     *zap.SugaredLogger
}

const (
	defaultTimeout  = 30 * time.Second
	defaultRetries  = 3
	defaultPageSize = 100
)

// retryBaseDelay scales the backoff between attempts; variable so tests can shrink it
var retryBaseDelay = time.Second

// New constructs a client from explicit configuration.
func New(cfg Config) (*Client, error) {
	if cfg.APIURL == "" {
		return nil, errors.NewConfigurationError("tracker api url is required")
	}
	if cfg.APIToken == "" {
		return nil, errors.NewConfigurationError("tracker api token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultRetries
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	saferClient := httpclient.NewWithOptions(timeout, httpclient.Options{
		AllowPrivateHosts: cfg.AllowPrivateHosts,
	})
	if _, err := saferClient.ValidateURL(cfg.APIURL); err != nil {
		return nil, errors.NewConfigurationError("tracker api url rejected: %v", err)
	}

	var limiter *rate.Limiter
	if cfg.RateLimitPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RateLimitPerMinute)/60.0), 1)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Named("tracker")
	}

	return &Client{
		apiURL:     cfg.APIURL,
		apiToken:   cfg.APIToken,
		httpClient: saferClient,
		limiter:    limiter,
		maxRetries: maxRetries,
		pageSize:   pageSize,
		verbosity:  cfg.Verbosity,
		boards:     cfg.Boards,
		logger:     log,
	}, nil
}

// Boards returns the board wiring the client was constructed with
func (c *Client) Boards() Boards {
	return c.boards
}

// DependentItems fetches dependent items with status and expanded dependency
// links. With no ids it sweeps the whole dependent board through cursor
// pagination; with ids it fetches exactly those items.
func (c *Client) DependentItems(ctx context.Context, ids []string) ([]DependentItem, error) {
	if len(ids) > 0 {
		return c.dependentItemsByID(ctx, ids)
	}
	return c.allDependentItems(ctx)
}

func (c *Client) allDependentItems(ctx context.Context) ([]DependentItem, error) {
	columnIDs := []string{c.boards.DependentStatusColumn, c.boards.DependentRelationColumn}

	var items []DependentItem
	var cursor string
	for {
		variables := map[string]interface{}{
			"boardID":   c.boards.DependentBoardID,
			"pageSize":  c.pageSize,
			"columnIDs": columnIDs,
		}
		if cursor != "" {
			variables["cursor"] = cursor
		}

		var data dependentItemsPageData
		if err := c.execute(ctx, queryDependentItemsPage, variables, &data); err != nil {
			return nil, err
		}
		if len(data.Boards) == 0 {
			return nil, errors.NewNotFoundError("dependent board %d not found", c.boards.DependentBoardID)
		}

		page := data.Boards[0].ItemsPage
		for _, raw := range page.Items {
			item, err := c.decodeDependentItem(raw)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}

		if page.Cursor == nil || *page.Cursor == "" {
			break
		}
		cursor = *page.Cursor
	}
	return items, nil
}

func (c *Client) dependentItemsByID(ctx context.Context, ids []string) ([]DependentItem, error) {
	variables := map[string]interface{}{
		"itemIDs":   ids,
		"columnIDs": []string{c.boards.DependentStatusColumn, c.boards.DependentRelationColumn},
	}

	var data itemsData
	if err := c.execute(ctx, queryItemsByID, variables, &data); err != nil {
		return nil, err
	}

	items := make([]DependentItem, 0, len(data.Items))
	for _, raw := range data.Items {
		item, err := c.decodeDependentItem(raw)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (c *Client) decodeDependentItem(raw itemWire) (DependentItem, error) {
	statusColumn, ok := findColumn(raw.ColumnValues, c.boards.DependentStatusColumn)
	if !ok {
		return DependentItem{}, errors.NewRemoteRejectedError("item %s response is missing status column %q", raw.ID, c.boards.DependentStatusColumn)
	}
	status, err := decodeStatus(statusColumn)
	if err != nil {
		return DependentItem{}, errors.NewRemoteRejectedError("item %s: %v", raw.ID, err)
	}

	item := DependentItem{
		ID:          raw.ID,
		Name:        raw.Name,
		StatusLabel: status.Label,
		StatusIndex: status.Index,
	}

	// A missing relation column means no links at all; valid, not an error
	if relationColumn, ok := findColumn(raw.ColumnValues, c.boards.DependentRelationColumn); ok {
		links, err := decodeLinkedItems(relationColumn)
		if err != nil {
			return DependentItem{}, errors.NewRemoteRejectedError("item %s: %v", raw.ID, err)
		}
		item.Dependencies = links.Items
	}
	return item, nil
}

// DependencyStatuses fetches the status of the given dependency items in one
// batched call. When the service returns fewer items than requested, the
// partial result is returned together with a not-found error naming the
// missing ids; callers treat those as not ready.
func (c *Client) DependencyStatuses(ctx context.Context, ids []string) ([]DependencyStatus, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	variables := map[string]interface{}{
		"itemIDs":   ids,
		"columnIDs": []string{c.boards.DependencyStatusColumn},
	}

	var data itemsData
	if err := c.execute(ctx, queryItemsByID, variables, &data); err != nil {
		return nil, err
	}

	statuses := make([]DependencyStatus, 0, len(data.Items))
	returned := make(map[string]bool, len(data.Items))
	for _, raw := range data.Items {
		statusColumn, ok := findColumn(raw.ColumnValues, c.boards.DependencyStatusColumn)
		if !ok {
			return nil, errors.NewRemoteRejectedError("item %s response is missing status column %q", raw.ID, c.boards.DependencyStatusColumn)
		}
		status, err := decodeStatus(statusColumn)
		if err != nil {
			return nil, errors.NewRemoteRejectedError("item %s: %v", raw.ID, err)
		}
		statuses = append(statuses, DependencyStatus{ID: raw.ID, Label: status.Label, Index: status.Index})
		returned[raw.ID] = true
	}

	var missing []string
	for _, id := range ids {
		if !returned[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return statuses, errors.NewNotFoundError("%d of %d dependency items missing: %s", len(missing), len(ids), strings.Join(missing, ", "))
	}
	return statuses, nil
}

// DependencyItem fetches one dependency item with its status and the
// back-relation links to the items that wait on it.
func (c *Client) DependencyItem(ctx context.Context, id string) (*DependencyItem, error) {
	variables := map[string]interface{}{
		"itemIDs":   []string{id},
		"columnIDs": []string{c.boards.DependencyStatusColumn, c.boards.DependencyRelationColumn},
	}

	var data itemsData
	if err := c.execute(ctx, queryItemsByID, variables, &data); err != nil {
		return nil, err
	}
	if len(data.Items) == 0 {
		return nil, errors.NewNotFoundError("dependency item %s not found", id)
	}

	raw := data.Items[0]
	statusColumn, ok := findColumn(raw.ColumnValues, c.boards.DependencyStatusColumn)
	if !ok {
		return nil, errors.NewRemoteRejectedError("item %s response is missing status column %q", raw.ID, c.boards.DependencyStatusColumn)
	}
	status, err := decodeStatus(statusColumn)
	if err != nil {
		return nil, errors.NewRemoteRejectedError("item %s: %v", raw.ID, err)
	}

	item := &DependencyItem{
		ID:          raw.ID,
		Name:        raw.Name,
		StatusLabel: status.Label,
	}
	if relationColumn, ok := findColumn(raw.ColumnValues, c.boards.DependencyRelationColumn); ok {
		links, err := decodeLinkedItems(relationColumn)
		if err != nil {
			return nil, errors.NewRemoteRejectedError("item %s: %v", raw.ID, err)
		}
		item.Dependents = links.Items
	}
	return item, nil
}

// UpdateDependentStatus sets a dependent item's status column by positional
// index: one item/board/column triple per call, value encoded in the
// service's status-by-index representation.
func (c *Client) UpdateDependentStatus(ctx context.Context, itemID string, statusIndex int) error {
	value, err := json.Marshal(map[string]int{"index": statusIndex})
	if err != nil {
		return errors.Wrap(err, "failed to encode status value")
	}

	variables := map[string]interface{}{
		"boardID":  c.boards.DependentBoardID,
		"itemID":   itemID,
		"columnID": c.boards.DependentStatusColumn,
		// JSON scalar: a string containing the JSON document
		"value": string(value),
	}

	var data changeColumnData
	if err := c.execute(ctx, mutationChangeColumnValue, variables, &data); err != nil {
		return err
	}
	if data.ChangeColumnValue.ID == "" {
		return errors.NewRemoteRejectedError("mutation for item %s returned no item", itemID)
	}

	c.logger.Debugw("Updated dependent status",
		"item_id", itemID,
		"status_index", statusIndex)
	return nil
}

// StatusLabels fetches a status column's index-to-label map from its settings
func (c *Client) StatusLabels(ctx context.Context, boardID int64, columnID string) (map[int]string, error) {
	variables := map[string]interface{}{
		"boardID":   boardID,
		"columnIDs": []string{columnID},
	}

	var data boardColumnsData
	if err := c.execute(ctx, queryColumnSettings, variables, &data); err != nil {
		return nil, err
	}
	if len(data.Boards) == 0 {
		return nil, errors.NewNotFoundError("board %d not found", boardID)
	}
	for _, column := range data.Boards[0].Columns {
		if column.ID != columnID {
			continue
		}
		if column.Type != columnTypeStatus {
			return nil, errors.NewConfigurationError("column %q on board %d has type %q, expected a status column", columnID, boardID, column.Type)
		}
		return parseStatusLabels(column.SettingsStr)
	}
	return nil, errors.NewNotFoundError("column %q not found on board %d", columnID, boardID)
}

// execute runs one GraphQL document with rate limiting and bounded retry.
// Only transport failures are retried; a well-formed rejection from the
// service never is.
func (c *Client) execute(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * retryBaseDelay
			c.logger.Debugw("Retrying tracker request",
				"attempt", attempt+1,
				"max_retries", c.maxRetries,
				"delay", delay)
			select {
			case <-ctx.Done():
				return errors.NewNetworkError(ctx.Err(), "cancelled while waiting to retry")
			case <-time.After(delay):
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return errors.NewNetworkError(err, "cancelled while awaiting rate limiter")
			}
		}

		err := c.doRequest(ctx, query, variables, out)
		if err == nil {
			if attempt > 0 {
				c.logger.Infow("Tracker request succeeded after retries",
					"attempts", attempt+1)
			}
			return nil
		}
		lastErr = err

		if !errors.IsNetwork(err) {
			return err
		}
		c.logger.Warnw("Tracker request failed",
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"error", err)
	}
	return lastErr
}

func (c *Client) doRequest(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return errors.Wrap(err, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.NewNetworkError(err, "tracker request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewNetworkError(err, "failed to read tracker response")
	}

	if logger.ShouldLogTrace(c.verbosity) {
		c.logger.Debugw("GraphQL exchange",
			"request", string(body),
			"response", string(respBody))
	}

	if resp.StatusCode != http.StatusOK {
		return errors.NewRemoteRejectedError("tracker returned status %d: %s", resp.StatusCode, truncateBody(respBody))
	}

	var envelope graphQLResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return errors.NewRemoteRejectedError("tracker response is not valid JSON: %v", err)
	}
	if len(envelope.Errors) > 0 {
		messages := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			messages = append(messages, e.Message)
		}
		return errors.NewRemoteRejectedError("tracker rejected request: %s", strings.Join(messages, "; "))
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return errors.NewRemoteRejectedError("failed to decode tracker response: %v", err)
		}
	}
	return nil
}

// truncateBody bounds error messages when the service returns HTML error pages
func truncateBody(body []byte) string {
	const max = 512
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "... (truncated)"
}

// SetHTTPClient allows overriding the HTTP client for testing
// ⚠️ WARNING: Only use this in tests. Production code should use the default SSRF-safer client.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.WrapClient(client)
}
