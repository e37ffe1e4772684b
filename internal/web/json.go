package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/sweeney/env-station/internal/config"
	"github.com/sweeney/env-station/internal/journal"
	"github.com/sweeney/env-station/internal/mode"
	"github.com/sweeney/env-station/internal/station"
)

const (
	maxBodyBytes       = 4096
	defaultJournalRows = 50
	maxJournalRows     = 1000
)

var errBusy = errors.New("station busy")

// ModeRequest is the body of POST /mode.
type ModeRequest struct {
	Mode string `json:"mode"`
}

// CommandResponse is returned by the console endpoints.
type CommandResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeResult(w http.ResponseWriter, code int, err error) {
	if err != nil {
		writeJSON(w, code, CommandResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{OK: true})
}

func allowPost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeResult(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return false
	}
	return true
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	if !allowPost(w, r) {
		return
	}
	var req ModeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeResult(w, http.StatusBadRequest, fmt.Errorf("decode mode request: %w", err))
		return
	}
	m, err := mode.Parse(req.Mode)
	if err != nil {
		writeResult(w, http.StatusBadRequest, err)
		return
	}
	s.submit(w, r, station.ModeCommand("http", m))
}

// handleConfig overlays the request body on the thresholds in force, so a
// partial document changes only the fields it names.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, s.tracker.Snapshot().Thresholds)
		return
	}
	if !allowPost(w, r) {
		return
	}
	t := s.tracker.Snapshot().Thresholds
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&t); err != nil {
		writeResult(w, http.StatusBadRequest, fmt.Errorf("decode thresholds: %w", err))
		return
	}
	s.submit(w, r, station.ThresholdsCommand("http", t))
}

// submit hands cmd to the loop and waits for its reply.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, cmd station.Command) {
	if s.opts.Commands == nil {
		writeResult(w, http.StatusNotImplemented, errors.New("console disabled"))
		return
	}
	cmd, reply := cmd.WithReply()

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.ReplyTimeout)
	defer cancel()

	select {
	case s.opts.Commands <- cmd:
	case <-ctx.Done():
		writeResult(w, http.StatusServiceUnavailable, errBusy)
		return
	}

	select {
	case err := <-reply:
		s.logger.Info("console command", "command", cmd.String(), "error", err)
		writeResult(w, statusFor(err), err)
	case <-ctx.Done():
		writeResult(w, http.StatusGatewayTimeout, errBusy)
	}
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, station.ErrNotConfiguring):
		return http.StatusConflict
	case errors.Is(err, config.ErrInvalidThresholds):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.opts.Journal == nil {
		http.NotFound(w, r)
		return
	}
	n := defaultJournalRows
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeResult(w, http.StatusBadRequest, fmt.Errorf("invalid n %q", v))
			return
		}
		n = min(parsed, maxJournalRows)
	}
	rows, err := s.opts.Journal.Recent(r.Context(), n)
	if err != nil {
		s.logger.Warn("read journal", "error", err)
		writeResult(w, http.StatusInternalServerError, err)
		return
	}
	if rows == nil {
		rows = []journal.Row{}
	}
	writeJSON(w, http.StatusOK, rows)
}
