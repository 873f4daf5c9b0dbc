package instancesync

import (
	"context"
	"errors"
	"fmt"

	"github.com/edvin/deploytrack/internal/model"
	"github.com/edvin/deploytrack/internal/provider"
)

type codeDeployProvider interface {
	ListDeploymentInstances(ctx context.Context, deploymentID string) ([]provider.Ec2Instance, error)
}

// codeDeployHandler reconciles CodeDeploy deployments. The backend service
// name is the CodeDeploy deployment id.
type codeDeployHandler struct {
	deps Deps
	cd   codeDeployProvider
}

func newCodeDeployHandler(deps Deps, cd codeDeployProvider) *codeDeployHandler {
	return &codeDeployHandler{deps: deps, cd: cd}
}

func (h *codeDeployHandler) GetDeploymentInfo(phase *model.PhaseCompletion, mapping *model.InfraMapping) ([]model.DeploymentInfo, error) {
	var infos []model.DeploymentInfo
	for _, step := range phase.Steps {
		if step.Kind != model.StepCodeDeploy || step.CodeDeployDeploymentID == "" {
			continue
		}
		infos = append(infos, model.DeploymentInfo{
			Kind:                   model.DeployKeyCodeDeploy,
			CodeDeployDeploymentID: step.CodeDeployDeploymentID,
			CodeDeployGroupName:    step.CodeDeployGroupName,
		})
	}
	return infos, nil
}

func (h *codeDeployHandler) GenerateDeploymentKey(info model.DeploymentInfo) (model.DeploymentKey, error) {
	if info.Kind != model.DeployKeyCodeDeploy {
		return model.DeploymentKey{}, fmt.Errorf("codedeploy handler: unexpected deployment info kind %q", info.Kind)
	}
	return model.DeploymentKey{
		Kind:                   model.DeployKeyCodeDeploy,
		CodeDeployDeploymentID: info.CodeDeployDeploymentID,
	}, nil
}

func (h *codeDeployHandler) SyncInstances(ctx context.Context, appID, infraMappingID string) error {
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
	for deploymentID, dbInstances := range groupByBackendService(stored) {
		if err := h.syncDeployment(ctx, mapping, deploymentID, dbInstances, attr); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *codeDeployHandler) HandleNewDeployment(ctx context.Context, summaries []model.DeploymentSummary, rollback bool, rollbackInfo model.OnDemandRollbackInfo) error {
	var errs []error
	for _, summary := range summaries {
		mapping, err := h.deps.Mappings.GetByID(ctx, summary.InfraMappingID)
		if err != nil {
			return err
		}
		deploymentID := summary.Info.CodeDeployDeploymentID
		if deploymentID == "" {
			return fmt.Errorf("codedeploy handler: summary %s carries no deployment id", summary.ID)
		}

		dbInstances, err := h.deps.Instances.ListByBackendService(ctx, mapping.ID, deploymentID)
		if err != nil {
			return err
		}
		if err := h.syncDeployment(ctx, mapping, deploymentID, dbInstances, attributionFromSummary(&summary)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *codeDeployHandler) syncDeployment(ctx context.Context, mapping *model.InfraMapping, deploymentID string, dbInstances []model.Instance, attr attribution) error {
	live, err := h.cd.ListDeploymentInstances(ctx, deploymentID)
	if err != nil {
		return fmt.Errorf("sync codedeploy deployment %s: %w", deploymentID, err)
	}

	latest := make([]*model.Instance, 0, len(live))
	for _, ec2Inst := range live {
		latest = append(latest, newEc2Instance(mapping, deploymentID, ec2Inst, attr))
	}

	added, removed, err := reconcile(ctx, h.deps, mapping.Kind, dbInstances, latest)
	if err != nil {
		return err
	}
	h.deps.Logger.Info().
		Str("infra_mapping_id", mapping.ID).
		Str("deployment_id", deploymentID).
		Int("added", added).
		Int("removed", removed).
		Msg("reconciled codedeploy deployment")
	return nil
}
