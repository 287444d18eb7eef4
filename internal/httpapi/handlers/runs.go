package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"framefarm/internal/httpkit"
	"framefarm/internal/pkg/errors"
	"framefarm/internal/session"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 200
)

var errNoLedger = errors.Unavailable("run ledger")

func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) error {
	if h.runs == nil {
		return errNoLedger
	}

	limit, err := httpkit.QueryInt(r, "limit", defaultRunLimit, maxRunLimit)
	if err != nil {
		return err
	}

	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		return errors.Wrap(err, "httpapi.list_runs", "list runs")
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"runs": runs})
	return nil
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) error {
	if h.runs == nil {
		return errNoLedger
	}

	sess, err := session.Parse(chi.URLParam(r, "sessionId"))
	if err != nil {
		return err
	}

	run, err := h.runs.GetRun(r.Context(), sess.ID)
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"run": run})
	return nil
}
