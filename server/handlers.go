package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/knotx-labs/knotx-relayer/core"
)

type errorResponse struct {
	Error string `json:"error"`
}

type statsResponse struct {
	Counts map[core.MessageStatus]int64 `json:"counts"`
	Total  int64                        `json:"total"`
}

func (srv *APIServer) healthz(w http.ResponseWriter, r *http.Request) {
	srv.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (srv *APIServer) listMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := core.MessageFilter{
		Status:           core.MessageStatus(q.Get("status")),
		SourceChain:      q.Get("source"),
		DestinationChain: q.Get("destination"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		srv.writeError(w, http.StatusBadRequest, errors.Newf("unknown status %q", filter.Status))
		return
	}
	var err error
	if filter.Limit, err = limitParam(q.Get("limit")); err != nil {
		srv.writeError(w, http.StatusBadRequest, err)
		return
	}
	if filter.Offset, err = intParam(q.Get("offset"), 0); err != nil {
		srv.writeError(w, http.StatusBadRequest, err)
		return
	}

	msgs, err := srv.store.ListMessages(r.Context(), filter)
	if err != nil {
		srv.internalError(w, "failed to list messages", err)
		return
	}
	if msgs == nil {
		msgs = []*core.PersistedMessage{}
	}
	srv.writeJSON(w, http.StatusOK, msgs)
}

func (srv *APIServer) getMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	msg, err := srv.store.GetMessage(r.Context(), id)
	if errors.Is(err, core.ErrNotFound) {
		srv.writeError(w, http.StatusNotFound, errors.Newf("message %s not found", id))
		return
	}
	if err != nil {
		srv.internalError(w, "failed to get message", err)
		return
	}
	srv.writeJSON(w, http.StatusOK, msg)
}

func (srv *APIServer) stats(w http.ResponseWriter, r *http.Request) {
	counts, err := srv.store.CountByStatus(r.Context())
	if err != nil {
		srv.internalError(w, "failed to count messages", err)
		return
	}
	resp := statsResponse{Counts: make(map[core.MessageStatus]int64)}
	for _, s := range []core.MessageStatus{core.StatusPending, core.StatusDelivered, core.StatusFailed} {
		resp.Counts[s] = counts[s]
		resp.Total += counts[s]
	}
	srv.writeJSON(w, http.StatusOK, resp)
}

func (srv *APIServer) listCursors(w http.ResponseWriter, r *http.Request) {
	cursors, err := srv.store.ListCursors(r.Context())
	if err != nil {
		srv.internalError(w, "failed to list cursors", err)
		return
	}
	if cursors == nil {
		cursors = []*core.ChainCursor{}
	}
	srv.writeJSON(w, http.StatusOK, cursors)
}

func (srv *APIServer) listDeadLetters(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := core.DeadLetterFilter{
		Chain:  q.Get("chain"),
		Status: core.DeadLetterStatus(q.Get("status")),
	}
	var err error
	if filter.Limit, err = limitParam(q.Get("limit")); err != nil {
		srv.writeError(w, http.StatusBadRequest, err)
		return
	}
	dls, err := srv.store.ListDeadLetters(r.Context(), filter)
	if err != nil {
		srv.internalError(w, "failed to list dead letters", err)
		return
	}
	if dls == nil {
		dls = []*core.DeadLetter{}
	}
	srv.writeJSON(w, http.StatusOK, dls)
}

// limitParam parses a page size. The stores read a zero limit as unbounded, so
// zero selects DefaultListLimit and larger values are capped at MaxListLimit.
func limitParam(s string) (int, error) {
	v, err := intParam(s, DefaultListLimit)
	if err != nil {
		return 0, err
	}
	switch {
	case v == 0:
		return DefaultListLimit, nil
	case v > MaxListLimit:
		return MaxListLimit, nil
	}
	return v, nil
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, errors.Newf("invalid non-negative integer %q", s)
	}
	return v, nil
}

func (srv *APIServer) internalError(w http.ResponseWriter, msg string, err error) {
	srv.logger.Error(msg, err)
	srv.writeError(w, http.StatusInternalServerError, errors.New("internal server error"))
}

func (srv *APIServer) writeError(w http.ResponseWriter, status int, err error) {
	srv.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (srv *APIServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		srv.logger.Error("failed to write response", err)
	}
}
