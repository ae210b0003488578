package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/dgnsrekt/narrator/internal/queue"
)

const (
	msgNotFound    = "Not found"
	msgInvalidJSON = "Invalid JSON body"
	msgBadText     = "Field 'text' must be a non-empty string"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// QueueResponse is returned by /speak, /addToQueue and /stop.
type QueueResponse struct {
	OK        bool `json:"ok"`
	QueueSize int  `json:"queue_size"`
}

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse is returned by /status.
type StatusResponse struct {
	State     string `json:"state"`
	OffsetMs  int64  `json:"offset_ms"`
	QueueSize int    `json:"queue_size"`
}

// route dispatches on method and path. Anything unknown is a JSON 404,
// including known paths with the wrong method.
func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		switch r.URL.Path {
		case "/speak":
			s.handleText(w, r, s.queue.Speak)
			return
		case "/addToQueue":
			s.handleText(w, r, s.queue.Enqueue)
			return
		case "/stop":
			s.handleStop(w, r)
			return
		}
	case http.MethodGet:
		switch r.URL.Path {
		case "/healthz":
			s.handleHealthz(w, r)
			return
		case "/status":
			s.handleStatus(w, r)
			return
		case "/metrics":
			if s.metrics != nil {
				s.metrics.ServeHTTP(w, r)
				return
			}
		}
	}
	writeError(w, http.StatusNotFound, msgNotFound)
}

func (s *Server) handleText(w http.ResponseWriter, r *http.Request, submit func(string) error) {
	text, status, msg := s.readText(w, r)
	if status != 0 {
		writeError(w, status, msg)
		return
	}

	if err := submit(text); err != nil {
		switch {
		case errors.Is(err, queue.ErrEmptyText):
			writeError(w, http.StatusBadRequest, msgBadText)
		case errors.Is(err, queue.ErrClosed):
			writeError(w, http.StatusServiceUnavailable, "Queue is shutting down")
		default:
			s.logger.Error("Request failed", "path", r.URL.Path, "err", err)
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, QueueResponse{OK: true, QueueSize: s.queue.Size()})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.queue.Stop()
	writeJSON(w, http.StatusOK, QueueResponse{OK: true, QueueSize: s.queue.Size()})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{State: "idle", QueueSize: s.queue.Size()}
	if s.player != nil {
		resp.State = s.player.State().String()
		resp.OffsetMs = s.player.Offset().Milliseconds()
	}
	writeJSON(w, http.StatusOK, resp)
}

// readText extracts the text field. A non-zero status reports why the body
// was rejected. An empty body counts as an empty object.
func (s *Server) readText(w http.ResponseWriter, r *http.Request) (string, int, string) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", http.StatusRequestEntityTooLarge, "Request body too large"
		}
		return "", http.StatusBadRequest, msgInvalidJSON
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return "", http.StatusBadRequest, msgBadText
	}
	if !utf8.Valid(raw) {
		return "", http.StatusBadRequest, msgInvalidJSON
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", http.StatusBadRequest, msgInvalidJSON
	}

	obj, _ := payload.(map[string]any)
	text, ok := obj["text"].(string)
	if !ok || strings.TrimSpace(text) == "" {
		return "", http.StatusBadRequest, msgBadText
	}
	if limit := s.cfg.MaxTextLength; limit > 0 && utf8.RuneCountInString(text) > limit {
		return "", http.StatusBadRequest, fmt.Sprintf("Field 'text' must be at most %d characters", limit)
	}
	return text, 0, ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
