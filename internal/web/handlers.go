package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/vitos/tg_signal_trader/internal/domain"
	"go.uber.org/zap"
)

var startedAt = time.Now()

type signalRequest struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// handleSignal feeds one channel message into the pipeline. Any message,
// tradable or not, counts as feed liveness.
func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	var req signalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		http.Error(w, "expected JSON body with a text field", http.StatusBadRequest)
		return
	}

	s.watchdog.Beat()

	sig := domain.Signal{
		Text:       req.Text,
		Source:     req.Source,
		ReceivedAt: time.Now(),
	}
	if err := s.trader.OnSignal(r.Context(), sig); err != nil {
		s.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"status": "rejected",
			"error":  err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	s.watchdog.Beat()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.Snapshot())
}

// handleUpdateConfig applies a partial update on top of the current snapshot
// and swaps it in atomically. A rejected update leaves the running config
// untouched.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	next := *s.cfg.Snapshot()
	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	if err := s.cfg.Replace(next); err != nil {
		s.events.Emit(domain.EventConfigRejected, map[string]any{
			"error": err.Error(),
		})
		s.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"status": "rejected",
			"error":  err.Error(),
		})
		return
	}

	s.events.Emit(domain.EventConfigReloaded, map[string]any{
		"source": "api",
	})
	s.writeJSON(w, http.StatusOK, s.cfg.Snapshot())
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions := s.engine.OpenPositions()
	if positions == nil {
		positions = []domain.Position{}
	}
	s.writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.archive.ListPositionHistory(r.Context(), 100)
	if err != nil {
		s.logger.Error("failed to list position history", zap.Error(err))
		http.Error(w, "failed to list history", http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []*domain.PositionHistory{}
	}
	s.writeJSON(w, http.StatusOK, history)
}

type flattenRequest struct {
	Symbol        string `json:"symbol"` // empty means all
	CancelPending *bool  `json:"cancel_pending"`
}

// handleFlatten is the operator's kill switch.
func (s *Server) handleFlatten(w http.ResponseWriter, r *http.Request) {
	var req flattenRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	cancelPending := s.cfg.Snapshot().FlattenCancelsPending
	if req.CancelPending != nil {
		cancelPending = *req.CancelPending
	}

	if req.Symbol != "" {
		if err := s.engine.Flatten(r.Context(), req.Symbol, "operator_request", cancelPending); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"flattened": 1})
		return
	}

	n := s.engine.FlattenAll(r.Context(), "operator_request", cancelPending)
	s.writeJSON(w, http.StatusOK, map[string]any{"flattened": n})
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"source_channel": s.channel,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := s.cfg.Snapshot()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"machine":        cfg.MachineName,
		"dry_run":        cfg.DryRun,
		"uptime_sec":     int64(time.Since(startedAt).Seconds()),
		"open_positions": len(s.engine.OpenPositions()),
		"last_heartbeat": s.watchdog.LastBeat().UTC().Format(time.RFC3339),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}
