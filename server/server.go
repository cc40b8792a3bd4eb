// Package server exposes the HTTP trigger surface of the reconciliation
// daemon: the webhook receiver for tracker column-change events, manual
// run endpoints, a status endpoint, and a WebSocket feed that streams
// run summaries to connected dashboards.
package server

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/grainway/batchgate/logger"
	"github.com/grainway/batchgate/reconcile"
)

// MaxClients caps concurrent WebSocket connections.
const MaxClients = 64

// broadcastBuffer is the depth of the hub's inbound summary queue.
// Senders never block on a busy hub; summaries past this are dropped.
const broadcastBuffer = 16

// Runner starts reconciliation runs on behalf of HTTP callers.
type Runner interface {
	RunFullSweep(ctx context.Context, dryRun bool) (*reconcile.RunSummary, error)
	RunTargeted(ctx context.Context, dependencyItemID string, dryRun bool) (*reconcile.RunSummary, error)
}

// Config carries the server's own settings; everything else arrives
// through the Runner and ticker handles.
type Config struct {
	// Port to bind. 0 asks the OS for a free port (tests).
	Port int

	// WebhookSecret guards POST /webhooks/board when non-empty. Empty disables
	// the check for local development.
	WebhookSecret string

	// AllowedOrigins lists origin prefixes permitted for CORS and
	// WebSocket upgrades.
	AllowedOrigins []string

	// DependencyStatusColumn is the column id webhook events must name
	// to trigger a targeted run.
	DependencyStatusColumn string

	// SatisfyingLabels are the status labels that mark a dependency as
	// done; webhook events for other labels are acknowledged and ignored.
	SatisfyingLabels []string
}

// Server owns the HTTP listener and the WebSocket hub.
type Server struct {
	cfg    Config
	runner Runner
	ticker ScheduleReporter

	upgrader websocket.Upgrader

	// Hub channels. The hub goroutine is the only writer to clients.
	register   chan *Client
	unregister chan *Client
	broadcast  chan *reconcile.RunSummary

	mu          sync.RWMutex
	clients     map[*Client]bool
	lastSummary *reconcile.RunSummary

	httpServer *http.Server
	port       int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	startedAt      time.Time
	broadcastDrops atomic.Int64

	logger *zap.SugaredLogger
}

// ScheduleReporter is the slice of the sweep ticker the status endpoint
// reads. Nil is fine when scheduled sweeps are disabled.
type ScheduleReporter interface {
	LastRun() *reconcile.RunSummary
	Stats() map[string]interface{}
}

// New builds a Server.
func New(cfg Config, runner Runner, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = logger.Named("server")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:        cfg,
		runner:     runner,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *reconcile.RunSummary, broadcastBuffer),
		clients:    make(map[*Client]bool),
		ctx:        ctx,
		cancel:     cancel,
		startedAt:  time.Now(),
		logger:     log,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// SetScheduleReporter wires the sweep ticker into the status endpoint.
// The ticker broadcasts through this server, so it is constructed after
// the server and attached here. Must be called before Start.
func (s *Server) SetScheduleReporter(ticker ScheduleReporter) {
	s.ticker = ticker
}

// startHub launches the hub goroutine. Start calls this; tests that
// exercise the hub without an HTTP listener call it directly.
func (s *Server) startHub() {
	s.wg.Add(1)
	go s.runHub()
}

// runHub serializes all client registration and broadcast fan-out in a
// single goroutine.
func (s *Server) runHub() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case client := <-s.register:
			s.handleRegister(client)
		case client := <-s.unregister:
			s.handleUnregister(client)
		case summary := <-s.broadcast:
			s.handleBroadcast(summary)
		}
	}
}

func (s *Server) handleRegister(client *Client) {
	s.mu.Lock()
	if len(s.clients) >= MaxClients {
		s.mu.Unlock()
		s.logger.Warnw("Connection limit reached, rejecting client",
			"client_id", client.id,
			"max_clients", MaxClients)
		client.conn.Close()
		return
	}
	s.clients[client] = true
	cached := s.lastSummary
	count := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("Client connected",
		"client_id", client.id,
		"total_clients", count)

	// A freshly connected dashboard gets the latest run so it does not
	// sit empty until the next sweep.
	if cached != nil {
		select {
		case client.send <- cached:
		default:
		}
	}
}

func (s *Server) handleUnregister(client *Client) {
	s.mu.Lock()
	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		client.close()
	}
	count := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("Client disconnected",
		"client_id", client.id,
		"total_clients", count)
}

func (s *Server) handleBroadcast(summary *reconcile.RunSummary) {
	s.mu.Lock()
	s.lastSummary = summary
	var slow []*Client
	for client := range s.clients {
		select {
		case client.send <- summary:
		default:
			slow = append(slow, client)
		}
	}
	for _, client := range slow {
		delete(s.clients, client)
		client.close()
	}
	count := len(s.clients)
	s.mu.Unlock()

	for _, client := range slow {
		s.broadcastDrops.Add(1)
		s.logger.Warnw("Dropping slow client",
			"client_id", client.id,
			"total_clients", count)
	}
}

// BroadcastRunSummary queues a run summary for fan-out to connected
// clients. It never blocks; summaries are dropped when the hub cannot
// keep up. Implements schedule.RunBroadcaster.
func (s *Server) BroadcastRunSummary(summary *reconcile.RunSummary) {
	if summary == nil {
		return
	}
	select {
	case s.broadcast <- summary:
	case <-s.ctx.Done():
	default:
		s.broadcastDrops.Add(1)
		s.logger.Warnw("Broadcast queue full, dropping run summary",
			logger.FieldRunID, summary.RunID)
	}
}

// ClientCount reports the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) lastRun() *reconcile.RunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSummary
}
