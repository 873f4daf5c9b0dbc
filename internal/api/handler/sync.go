package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/deploytrack/internal/activity"
	"github.com/edvin/deploytrack/internal/api/request"
	"github.com/edvin/deploytrack/internal/api/response"
	"github.com/edvin/deploytrack/internal/core"
	"github.com/edvin/deploytrack/internal/platform"
)

type Sync struct {
	statuses *core.SyncStatusService
	mappings *core.InfraMappingService
	tc       temporalclient.Client
}

func NewSync(statuses *core.SyncStatusService, mappings *core.InfraMappingService, tc temporalclient.Client) *Sync {
	return &Sync{statuses: statuses, mappings: mappings, tc: tc}
}

func (h *Sync) Status(w http.ResponseWriter, r *http.Request) {
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

	status, err := h.statuses.Get(r.Context(), appID, id)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if status == nil {
		response.WriteError(w, http.StatusNotFound, "no sync status recorded")
		return
	}

	response.WriteJSON(w, http.StatusOK, status)
}

func (h *Sync) ListByApp(w http.ResponseWriter, r *http.Request) {
	appID, err := request.RequireID(chi.URLParam(r, "appID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	statuses, err := h.statuses.ListByApp(r.Context(), appID)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusOK, statuses)
}

// Trigger starts one out-of-schedule sync run for a mapping.
func (h *Sync) Trigger(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	mapping, err := h.mappings.GetByID(r.Context(), id)
	if err != nil {
		response.WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	run, err := h.tc.ExecuteWorkflow(r.Context(), temporalclient.StartWorkflowOptions{
		ID:        fmt.Sprintf("manual-sync-%s-%s", mapping.ID, platform.NewID()),
		TaskQueue: core.TaskQueue,
	}, "InstanceSyncWorkflow", activity.SyncInstancesParams{
		AppID:          mapping.AppID,
		InfraMappingID: mapping.ID,
	})
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusAccepted, map[string]string{
		"workflow_id": run.GetID(),
		"run_id":      run.GetRunID(),
	})
}
