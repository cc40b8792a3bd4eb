package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/grainway/batchgate/logger"
	"github.com/grainway/batchgate/version"
)

// webhookPayload is the column-change notification the tracker posts.
// During webhook registration the tracker instead posts a challenge
// that must be echoed back verbatim.
type webhookPayload struct {
	Challenge       string `json:"challenge,omitempty"`
	ChangedItemID   string `json:"changedItemId"`
	ChangedColumnID string `json:"changedColumnId"`
	NewLabel        string `json:"newLabel"`
}

// runRequest is the body of the manual run endpoints. All fields are
// optional on the sweep endpoint.
type runRequest struct {
	DryRun           bool   `json:"dry_run"`
	DependencyItemID string `json:"dependency_item_id"`
}

// HandleHealth answers liveness probes.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Get().Short(),
	})
}

// HandleWebhook receives tracker column-change events. Events on the
// watched status column whose new label can satisfy readiness trigger a
// targeted run for the changed dependency item; everything else is
// acknowledged without touching the tracker.
func (s *Server) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	if s.cfg.WebhookSecret != "" {
		provided := r.Header.Get("Authorization")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.cfg.WebhookSecret)) != 1 {
			s.logger.Warnw("Webhook rejected, bad credentials",
				"remote_addr", r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, "invalid webhook credentials")
			return
		}
	}

	var payload webhookPayload
	if err := readJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	// Registration handshake.
	if payload.Challenge != "" {
		writeJSON(w, http.StatusOK, map[string]string{"challenge": payload.Challenge})
		return
	}

	if payload.ChangedItemID == "" {
		writeError(w, http.StatusBadRequest, "missing changedItemId")
		return
	}

	if payload.ChangedColumnID != s.cfg.DependencyStatusColumn {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ignored",
			"reason": fmt.Sprintf("column %q is not the watched status column", payload.ChangedColumnID),
		})
		return
	}

	if !s.labelQualifies(payload.NewLabel) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ignored",
			"reason": fmt.Sprintf("label %q cannot newly satisfy readiness", payload.NewLabel),
		})
		return
	}

	s.logger.Infow("Webhook triggered targeted run",
		logger.FieldDependencyID, payload.ChangedItemID,
		"new_label", payload.NewLabel)

	summary, err := s.runner.RunTargeted(r.Context(), payload.ChangedItemID, false)
	if err != nil {
		s.logger.Errorw("Targeted run failed",
			logger.FieldDependencyID, payload.ChangedItemID,
			logger.FieldError, err)
		writeError(w, http.StatusBadGateway, fmt.Sprintf("targeted run failed: %v", err))
		return
	}

	s.BroadcastRunSummary(summary)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "processed",
		"run":    summary,
	})
}

// HandleSweepRun starts a full sweep. The body is optional; pass
// {"dry_run": true} to preview without mutating the tracker.
func (s *Server) HandleSweepRun(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req runRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	summary, err := s.runner.RunFullSweep(r.Context(), req.DryRun)
	if err != nil {
		s.logger.Errorw("Sweep run failed", logger.FieldError, err)
		writeError(w, http.StatusBadGateway, fmt.Sprintf("sweep failed: %v", err))
		return
	}

	s.BroadcastRunSummary(summary)
	writeJSON(w, http.StatusOK, summary)
}

// HandleTargetedRun starts a targeted run for one dependency item.
func (s *Server) HandleTargetedRun(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req runRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if req.DependencyItemID == "" {
		writeError(w, http.StatusBadRequest, "missing dependency_item_id")
		return
	}

	summary, err := s.runner.RunTargeted(r.Context(), req.DependencyItemID, req.DryRun)
	if err != nil {
		s.logger.Errorw("Targeted run failed",
			logger.FieldDependencyID, req.DependencyItemID,
			logger.FieldError, err)
		writeError(w, http.StatusBadGateway, fmt.Sprintf("targeted run failed: %v", err))
		return
	}

	s.BroadcastRunSummary(summary)
	writeJSON(w, http.StatusOK, summary)
}

// HandleStatus reports daemon health: version, uptime, schedule state,
// the most recent run, and host memory pressure.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	resp := map[string]interface{}{
		"version":           version.Get(),
		"uptime_seconds":    int64(time.Since(s.startedAt).Seconds()),
		"websocket_clients": s.ClientCount(),
		"system":            systemMetrics(),
	}

	last := s.lastRun()
	if s.ticker != nil {
		resp["schedule"] = s.ticker.Stats()
		if last == nil {
			last = s.ticker.LastRun()
		}
	}
	if last != nil {
		resp["last_run"] = last
	}

	writeJSON(w, http.StatusOK, resp)
}

// labelQualifies reports whether a webhook's new label is one that can
// newly satisfy readiness. Labels are matched exactly.
func (s *Server) labelQualifies(label string) bool {
	for _, satisfying := range s.cfg.SatisfyingLabels {
		if label == satisfying {
			return true
		}
	}
	return false
}
