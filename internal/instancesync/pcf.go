package instancesync

import (
	"context"
	"errors"
	"fmt"

	"github.com/edvin/deploytrack/internal/model"
	"github.com/edvin/deploytrack/internal/provider"
)

type pcfProvider interface {
	ListAppInstances(ctx context.Context, appName string) ([]provider.PCFInstance, error)
}

// pcfHandler reconciles Cloud Foundry deployments. The application name is
// the sync scope; instance identity is appGUID:index, which CF reuses
// across restarts, so a restarted index keeps its instance row.
type pcfHandler struct {
	deps Deps
	pcf  pcfProvider
}

func newPCFHandler(deps Deps, pcf pcfProvider) *pcfHandler {
	return &pcfHandler{deps: deps, pcf: pcf}
}

func (h *pcfHandler) GetDeploymentInfo(phase *model.PhaseCompletion, mapping *model.InfraMapping) ([]model.DeploymentInfo, error) {
	var infos []model.DeploymentInfo
	for _, step := range phase.Steps {
		if step.Kind != model.StepPCFDeploy || step.PCFApplicationName == "" {
			continue
		}
		infos = append(infos, model.DeploymentInfo{
			Kind:               model.DeployKeyPCF,
			PCFApplicationName: step.PCFApplicationName,
			PCFApplicationGUID: step.PCFApplicationGUID,
		})
	}
	return infos, nil
}

func (h *pcfHandler) GenerateDeploymentKey(info model.DeploymentInfo) (model.DeploymentKey, error) {
	if info.Kind != model.DeployKeyPCF {
		return model.DeploymentKey{}, fmt.Errorf("pcf handler: unexpected deployment info kind %q", info.Kind)
	}
	return model.DeploymentKey{
		Kind:               model.DeployKeyPCF,
		PCFApplicationName: info.PCFApplicationName,
	}, nil
}

func (h *pcfHandler) SyncInstances(ctx context.Context, appID, infraMappingID string) error {
	mapping, err := h.deps.Mappings.GetByID(ctx, infraMappingID)
	if err != nil {
		return err
	}

	stored, err := h.deps.Instances.ListByInfraMapping(ctx, appID, infraMappingID)
	if err != nil {
		return err
	}

	attr := h.deps.fallbackAttribution(ctx, infraMappingID)
	for appName, dbInstances := range groupByBackendService(stored) {
		if err := h.syncApp(ctx, mapping, appName, dbInstances, attr, model.OnDemandRollbackInfo{}); err != nil {
			return err
		}
	}
	return nil
}

func (h *pcfHandler) HandleNewDeployment(ctx context.Context, summaries []model.DeploymentSummary, rollback bool, rollbackInfo model.OnDemandRollbackInfo) error {
	for _, summary := range summaries {
		mapping, err := h.deps.Mappings.GetByID(ctx, summary.InfraMappingID)
		if err != nil {
			return err
		}

		appName := summary.Key.PCFApplicationName
		dbInstances, err := h.deps.Instances.ListByBackendService(ctx, mapping.ID, appName)
		if err != nil {
			return err
		}

		if rollbackInfo.OnDemandRollback {
			if err := h.restamp(ctx, mapping, appName, dbInstances, &summary); err != nil {
				return err
			}
			continue
		}
		if err := h.syncApp(ctx, mapping, appName, dbInstances, attributionFromSummary(&summary), rollbackInfo); err != nil {
			return err
		}
	}
	return nil
}

// syncApp diffs one CF application. An application the platform has not
// materialized yet comes back as ErrNotFound; deleting on that would wipe
// instances during a slow push, so the scope is skipped instead.
func (h *pcfHandler) syncApp(ctx context.Context, mapping *model.InfraMapping, appName string, dbInstances []model.Instance, attr attribution, _ model.OnDemandRollbackInfo) error {
	live, err := h.pcf.ListAppInstances(ctx, appName)
	if err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			h.deps.Logger.Warn().
				Str("infra_mapping_id", mapping.ID).
				Str("pcf_app", appName).
				Msg("cf app not visible yet, skipping scope")
			return nil
		}
		return fmt.Errorf("sync cf app %s: %w", appName, err)
	}

	latest := make([]*model.Instance, 0, len(live))
	for _, inst := range live {
		latest = append(latest, h.newPCFInstance(mapping, appName, inst, attr))
	}

	added, removed, err := reconcile(ctx, h.deps, mapping.Kind, dbInstances, latest)
	if err != nil {
		return err
	}
	h.deps.Logger.Info().
		Str("infra_mapping_id", mapping.ID).
		Str("pcf_app", appName).
		Int("added", added).
		Int("removed", removed).
		Msg("reconciled cf app")
	return nil
}

// restamp handles an on-demand rollback: CF reuses appGUID:index identities
// across versions, so the surviving rows get the rollback deployment's
// attribution in place instead of a delete-and-reinsert cycle.
func (h *pcfHandler) restamp(ctx context.Context, mapping *model.InfraMapping, appName string, dbInstances []model.Instance, summary *model.DeploymentSummary) error {
	live, err := h.pcf.ListAppInstances(ctx, appName)
	if err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("restamp cf app %s: %w", appName, err)
	}

	liveIDs := make(map[string]bool, len(live))
	for _, inst := range live {
		liveIDs[inst.InstanceID()] = true
	}

	attr := attributionFromSummary(summary)
	var stale []string
	for _, db := range dbInstances {
		if !liveIDs[db.Key.PCFInstanceID] {
			stale = append(stale, db.ID)
			continue
		}
		if err := h.deps.Instances.UpdateAttribution(ctx, db.ID, summary); err != nil {
			return err
		}
		delete(liveIDs, db.Key.PCFInstanceID)
	}

	// Indices the rollback scaled down are gone for good.
	if err := h.deps.Instances.Delete(ctx, stale); err != nil {
		return err
	}

	// Indices the rollback scaled up are new rows.
	for _, inst := range live {
		if !liveIDs[inst.InstanceID()] {
			continue
		}
		if err := h.deps.Instances.SaveOrUpdate(ctx, h.newPCFInstance(mapping, appName, inst, attr)); err != nil {
			return err
		}
	}
	return nil
}

func (h *pcfHandler) newPCFInstance(mapping *model.InfraMapping, appName string, inst provider.PCFInstance, attr attribution) *model.Instance {
	key := model.InstanceKey{
		Kind:          model.KeyPCF,
		PCFInstanceID: inst.InstanceID(),
	}
	info := model.InstanceInfo{
		Kind:               model.InstancePCF,
		PCFApplicationName: inst.AppName,
		PCFInstanceIndex:   inst.Index,
		Space:              mapping.Space,
		State:              inst.State,
	}
	return newInstance(mapping, model.InstancePCF, key, info, appName, attr)
}
