package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/deploytrack/internal/api/request"
	"github.com/edvin/deploytrack/internal/api/response"
	"github.com/edvin/deploytrack/internal/core"
)

type Instance struct {
	svc *core.InstanceService
}

func NewInstance(svc *core.InstanceService) *Instance {
	return &Instance{svc: svc}
}

// List returns an infra mapping's instances. Without an "at" parameter the
// currently-active set is returned; with one, the set that was active at
// that moment, reconstructed from the soft-delete history.
func (h *Instance) List(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	appID := r.URL.Query().Get("app_id")
	if appID == "" {
		response.WriteError(w, http.StatusBadRequest, "missing app_id query parameter")
		return
	}

	at, err := request.ParseTimestamp(r, "at")
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if at.IsZero() {
		instances, err := h.svc.ListByInfraMapping(r.Context(), appID, id)
		if err != nil {
			response.WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		response.WriteJSON(w, http.StatusOK, instances)
		return
	}

	instances, err := h.svc.AtTimestamp(r.Context(), appID, id, at)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, instances)
}
