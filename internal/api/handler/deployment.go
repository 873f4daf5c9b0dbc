package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/deploytrack/internal/api/request"
	"github.com/edvin/deploytrack/internal/api/response"
	"github.com/edvin/deploytrack/internal/core"
	"github.com/edvin/deploytrack/internal/instancesync"
	"github.com/edvin/deploytrack/internal/model"
)

type Deployment struct {
	orch      *instancesync.Orchestrator
	summaries *core.DeploymentSummaryService
}

func NewDeployment(orch *instancesync.Orchestrator, summaries *core.DeploymentSummaryService) *Deployment {
	return &Deployment{orch: orch, summaries: summaries}
}

// PhaseCompleted is the deployment intake: the delivery pipeline posts one
// completed phase here. The summaries are persisted and the reconciliation
// event enqueued synchronously; the reconciliation itself runs async.
func (h *Deployment) PhaseCompleted(w http.ResponseWriter, r *http.Request) {
	var phase model.PhaseCompletion
	if err := request.Decode(r, &phase); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if phase.AccountID == "" || phase.AppID == "" || phase.InfraMappingID == "" {
		response.WriteError(w, http.StatusBadRequest, "account_id, app_id and infra_mapping_id are required")
		return
	}
	if phase.DeployedAt.IsZero() {
		phase.DeployedAt = time.Now()
	}

	if err := h.orch.ProcessPhaseCompletion(r.Context(), &phase); err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// LastSummary returns the most recent deployment recorded for a mapping.
func (h *Deployment) LastSummary(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := h.summaries.Last(r.Context(), id)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if summary == nil {
		response.WriteError(w, http.StatusNotFound, "no deployments recorded")
		return
	}

	response.WriteJSON(w, http.StatusOK, summary)
}
