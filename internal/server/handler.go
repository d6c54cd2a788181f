package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"callfold/internal/coalescer"
	"callfold/internal/transport"
)

// statusClientClosedRequest is the nginx convention for a client that went
// away before a response could be written.
const statusClientClosedRequest = 499

// callRequest is the public entry point's payload. Identical bodies
// arriving within the quiet window coalesce onto one transport call.
type callRequest struct {
	Transport string         `json:"transport,omitempty"`
	Target    string         `json:"target"`
	Params    map[string]any `json:"params,omitempty"`
}

// handleCall funnels one inbound request into the coordinator for the
// requested transport. The request context is the caller's cancellation
// token: a dropped client connection withdraws only this caller.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body []byte
	var err error
	if s.cfg.MaxBodySize > 0 {
		body, err = io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxBodySize+1))
		if err == nil && int64(len(body)) > s.cfg.MaxBodySize {
			s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
	} else {
		body, err = io.ReadAll(r.Body)
	}
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req callRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to parse request")
		return
	}
	if req.Target == "" {
		s.writeError(w, http.StatusBadRequest, "target is required")
		return
	}

	name := req.Transport
	if name == "" {
		name = s.defaultName
	}
	coord, ok := s.coordinators[name]
	if !ok {
		s.writeError(w, http.StatusBadRequest, "unknown transport '"+name+"'")
		return
	}

	res, err := coord.Call(r.Context(), req.Target, transport.Params(req.Params))
	if err != nil {
		s.writeCallError(w, err)
		return
	}

	if ct := res.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	status := res.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	io.Copy(w, res.Body())
}

// writeCallError maps coordinator errors onto HTTP statuses.
func (s *Server) writeCallError(w http.ResponseWriter, err error) {
	var sigErr *coalescer.SignatureError
	var cancelErr *coalescer.CanceledError
	var trErr *coalescer.TransportError

	switch {
	case errors.As(err, &sigErr):
		s.writeError(w, http.StatusBadRequest, sigErr.Error())
	case errors.As(err, &cancelErr):
		s.writeError(w, statusClientClosedRequest, cancelErr.Error())
	case errors.As(err, &trErr):
		s.writeError(w, http.StatusBadGateway, trErr.Error())
	case errors.Is(err, coalescer.ErrClosed):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleStatus reports uptime and live batch counts per transport.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	batches := make(map[string]int, len(s.coordinators))
	for name, coord := range s.coordinators {
		batches[name] = coord.Live()
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"uptimeSeconds": int64(time.Since(s.startedAt).Seconds()),
		"liveBatches":   batches,
		"journalSize":   s.jnl.Len(),
	})
}

// handleJournal dumps the recently retired batches, newest first.
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.jnl.Snapshot())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug().Err(err).Msg("failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
