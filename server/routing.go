package server

import (
	"net/http"
	"strings"
)

// Handler returns the server's route table. Exposed so tests can drive
// handlers through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.corsMiddleware(s.HandleHealth))
	mux.HandleFunc("/api/status", s.corsMiddleware(s.HandleStatus))
	mux.HandleFunc("/api/runs/sweep", s.corsMiddleware(s.HandleSweepRun))
	mux.HandleFunc("/api/runs/targeted", s.corsMiddleware(s.HandleTargetedRun))
	mux.HandleFunc("/webhooks/board", s.corsMiddleware(s.HandleWebhook))
	mux.HandleFunc("/ws/runs", s.HandleRunsFeed)

	return mux
}

// corsMiddleware answers preflight requests and stamps CORS headers for
// allowed origins.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// checkOrigin gates WebSocket upgrades with the same origin rules as
// the CORS layer.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients (curl, service-to-service) send no origin.
		return true
	}
	return s.originAllowed(origin)
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" {
			return true
		}
		if strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	return false
}
