package instancesync

import (
	"context"
	"errors"
	"fmt"

	"github.com/edvin/deploytrack/internal/model"
	"github.com/edvin/deploytrack/internal/provider"
)

type spotinstProvider interface {
	ListGroupInstances(ctx context.Context, groupID string) ([]provider.ElastigroupInstance, error)
}

// spotinstHandler reconciles Spotinst elastigroup deployments of AMI infra
// mappings. The elastigroup id is the sync scope.
type spotinstHandler struct {
	deps     Deps
	spotinst spotinstProvider
}

func newSpotinstHandler(deps Deps, spotinst spotinstProvider) *spotinstHandler {
	return &spotinstHandler{deps: deps, spotinst: spotinst}
}

func (h *spotinstHandler) GetDeploymentInfo(phase *model.PhaseCompletion, mapping *model.InfraMapping) ([]model.DeploymentInfo, error) {
	var infos []model.DeploymentInfo
	for _, step := range phase.Steps {
		if step.Kind != model.StepSpotinstDeploy || step.ElastigroupID == "" {
			continue
		}
		infos = append(infos, model.DeploymentInfo{
			Kind:            model.DeployKeySpotinst,
			ElastigroupID:   step.ElastigroupID,
			ElastigroupName: step.ElastigroupName,
		})
	}
	return infos, nil
}

func (h *spotinstHandler) GenerateDeploymentKey(info model.DeploymentInfo) (model.DeploymentKey, error) {
	if info.Kind != model.DeployKeySpotinst {
		return model.DeploymentKey{}, fmt.Errorf("spotinst handler: unexpected deployment info kind %q", info.Kind)
	}
	return model.DeploymentKey{
		Kind:            model.DeployKeySpotinst,
		ElastigroupID:   info.ElastigroupID,
		ElastigroupName: info.ElastigroupName,
	}, nil
}

func (h *spotinstHandler) SyncInstances(ctx context.Context, appID, infraMappingID string) error {
	mapping, err := h.deps.Mappings.GetByID(ctx, infraMappingID)
	if err != nil {
		return err
	}

	stored, err := h.deps.Instances.ListByInfraMapping(ctx, appID, infraMappingID)
	if err != nil {
		return err
	}

	attr := h.deps.fallbackAttribution(ctx, infraMappingID)

	var errs []error
	for groupID, dbInstances := range groupByBackendService(stored) {
		if err := h.syncGroup(ctx, mapping, groupID, dbInstances, attr); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *spotinstHandler) HandleNewDeployment(ctx context.Context, summaries []model.DeploymentSummary, rollback bool, rollbackInfo model.OnDemandRollbackInfo) error {
	var errs []error
	for _, summary := range summaries {
		mapping, err := h.deps.Mappings.GetByID(ctx, summary.InfraMappingID)
		if err != nil {
			return err
		}
		groupID := summary.Key.ElastigroupID
		if groupID == "" {
			return fmt.Errorf("spotinst handler: summary %s carries no elastigroup id", summary.ID)
		}

		dbInstances, err := h.deps.Instances.ListByBackendService(ctx, mapping.ID, groupID)
		if err != nil {
			return err
		}

		if rollbackInfo.OnDemandRollback {
			if err := h.restamp(ctx, mapping, groupID, dbInstances, &summary); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if err := h.syncGroup(ctx, mapping, groupID, dbInstances, attributionFromSummary(&summary)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// syncGroup diffs one elastigroup. A group id the backend no longer knows
// means every instance of the scope is gone; any other provider failure
// aborts before the delete half.
func (h *spotinstHandler) syncGroup(ctx context.Context, mapping *model.InfraMapping, groupID string, dbInstances []model.Instance, attr attribution) error {
	live, err := h.spotinst.ListGroupInstances(ctx, groupID)
	if err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			live = nil
		} else {
			return fmt.Errorf("sync elastigroup %s: %w", groupID, err)
		}
	}

	latest := make([]*model.Instance, 0, len(live))
	for _, inst := range live {
		latest = append(latest, h.newElastigroupInstance(mapping, groupID, inst, attr))
	}

	added, removed, err := reconcile(ctx, h.deps, mapping.Kind, dbInstances, latest)
	if err != nil {
		return err
	}
	h.deps.Logger.Info().
		Str("infra_mapping_id", mapping.ID).
		Str("elastigroup", groupID).
		Int("added", added).
		Int("removed", removed).
		Msg("reconciled elastigroup")
	return nil
}

// restamp handles an on-demand rollback: instances the group kept across
// the rollback get the rollback deployment's attribution in place.
func (h *spotinstHandler) restamp(ctx context.Context, mapping *model.InfraMapping, groupID string, dbInstances []model.Instance, summary *model.DeploymentSummary) error {
	live, err := h.spotinst.ListGroupInstances(ctx, groupID)
	if err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("restamp elastigroup %s: %w", groupID, err)
	}

	liveIDs := make(map[string]bool, len(live))
	for _, inst := range live {
		liveIDs[inst.InstanceID] = true
	}

	attr := attributionFromSummary(summary)
	kept := make(map[string]bool, len(dbInstances))
	var stale []string
	for _, db := range dbInstances {
		if !liveIDs[db.Info.EC2InstanceID] {
			stale = append(stale, db.ID)
			continue
		}
		if err := h.deps.Instances.UpdateAttribution(ctx, db.ID, summary); err != nil {
			return err
		}
		kept[db.Info.EC2InstanceID] = true
	}

	// Instances the rollback replaced are gone for good.
	if err := h.deps.Instances.Delete(ctx, stale); err != nil {
		return err
	}

	for _, inst := range live {
		if kept[inst.InstanceID] {
			continue
		}
		if err := h.deps.Instances.SaveOrUpdate(ctx, h.newElastigroupInstance(mapping, groupID, inst, attr)); err != nil {
			return err
		}
	}
	return nil
}

func (h *spotinstHandler) newElastigroupInstance(mapping *model.InfraMapping, groupID string, inst provider.ElastigroupInstance, attr attribution) *model.Instance {
	key := model.InstanceKey{
		Kind:           model.KeyHost,
		HostName:       inst.InstanceID,
		InfraMappingID: mapping.ID,
	}
	info := model.InstanceInfo{
		Kind:          model.InstanceEC2,
		EC2InstanceID: inst.InstanceID,
		HostName:      inst.InstanceID,
		PrivateDNS:    inst.PrivateIP,
		State:         inst.Status,
	}
	return newInstance(mapping, model.InstanceEC2, key, info, groupID, attr)
}
