package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/deploytrack/internal/api/request"
	"github.com/edvin/deploytrack/internal/api/response"
	"github.com/edvin/deploytrack/internal/core"
	"github.com/edvin/deploytrack/internal/model"
)

type InfraMapping struct {
	svc       *core.InfraMappingService
	instances *core.InstanceService
	statuses  *core.SyncStatusService
	tasks     *core.PerpetualTaskService
}

func NewInfraMapping(svc *core.InfraMappingService, instances *core.InstanceService, statuses *core.SyncStatusService, tasks *core.PerpetualTaskService) *InfraMapping {
	return &InfraMapping{svc: svc, instances: instances, statuses: statuses, tasks: tasks}
}

func (h *InfraMapping) ListByApp(w http.ResponseWriter, r *http.Request) {
	appID, err := request.RequireID(chi.URLParam(r, "appID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	mappings, err := h.svc.ListByApp(r.Context(), appID)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusOK, mappings)
}

func (h *InfraMapping) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID         string   `json:"account_id" validate:"required"`
		AppID             string   `json:"app_id" validate:"required"`
		ServiceID         string   `json:"service_id" validate:"required"`
		ServiceName       string   `json:"service_name"`
		EnvID             string   `json:"env_id" validate:"required"`
		EnvName           string   `json:"env_name"`
		Kind              string   `json:"kind" validate:"required"`
		DeploymentType    string   `json:"deployment_type"`
		ComputeProviderID string   `json:"compute_provider_id"`
		Region            string   `json:"region"`
		ClusterName       string   `json:"cluster_name"`
		Namespace         string   `json:"namespace"`
		ResourceGroup     string   `json:"resource_group"`
		Organization      string   `json:"organization"`
		Space             string   `json:"space"`
		HostNames         []string `json:"host_names"`
	}
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	mapping := &model.InfraMapping{
		AccountID:         req.AccountID,
		AppID:             req.AppID,
		ServiceID:         req.ServiceID,
		ServiceName:       req.ServiceName,
		EnvID:             req.EnvID,
		EnvName:           req.EnvName,
		Kind:              model.InfraMappingKind(req.Kind),
		DeploymentType:    model.DeploymentType(req.DeploymentType),
		ComputeProviderID: req.ComputeProviderID,
		Region:            req.Region,
		ClusterName:       req.ClusterName,
		Namespace:         req.Namespace,
		ResourceGroup:     req.ResourceGroup,
		Organization:      req.Organization,
		Space:             req.Space,
		HostNames:         req.HostNames,
	}

	if err := h.svc.Create(r.Context(), mapping); err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusCreated, mapping)
}

func (h *InfraMapping) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	mapping, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		response.WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusOK, mapping)
}

// Delete removes a mapping along with its tracked instances, sync status,
// and poll tasks.
func (h *InfraMapping) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	mapping, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		response.WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	if err := h.tasks.DeleteTasks(r.Context(), mapping.AccountID, mapping.ID); err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := h.instances.DeleteByInfraMapping(r.Context(), mapping.ID); err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.statuses.Delete(r.Context(), mapping.AppID, mapping.ID); err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.svc.Delete(r.Context(), mapping.ID); err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
