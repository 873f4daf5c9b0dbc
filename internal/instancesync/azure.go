package instancesync

import (
	"context"
	"fmt"

	"github.com/edvin/deploytrack/internal/model"
	"github.com/edvin/deploytrack/internal/provider"
)

type azureProvider interface {
	ListVirtualMachines(ctx context.Context, resourceGroup, namePrefix string) ([]provider.AzureVM, error)
}

// azureHandler reconciles Azure virtual machine scale set deployments. The
// scale set name is both the deployment fingerprint and the sync scope.
type azureHandler struct {
	deps  Deps
	azure azureProvider
}

func newAzureHandler(deps Deps, azure azureProvider) *azureHandler {
	return &azureHandler{deps: deps, azure: azure}
}

func (h *azureHandler) GetDeploymentInfo(phase *model.PhaseCompletion, mapping *model.InfraMapping) ([]model.DeploymentInfo, error) {
	var infos []model.DeploymentInfo
	for _, step := range phase.Steps {
		if step.Kind != model.StepAzureVMDeploy || step.ScaleSetName == "" {
			continue
		}
		resourceGroup := step.ResourceGroup
		if resourceGroup == "" {
			resourceGroup = mapping.ResourceGroup
		}
		infos = append(infos, model.DeploymentInfo{
			Kind:          model.DeployKeyAzure,
			ScaleSetName:  step.ScaleSetName,
			ResourceGroup: resourceGroup,
		})
	}
	return infos, nil
}

func (h *azureHandler) GenerateDeploymentKey(info model.DeploymentInfo) (model.DeploymentKey, error) {
	if info.Kind != model.DeployKeyAzure {
		return model.DeploymentKey{}, fmt.Errorf("azure handler: unexpected deployment info kind %q", info.Kind)
	}
	return model.DeploymentKey{
		Kind:         model.DeployKeyAzure,
		ScaleSetName: info.ScaleSetName,
	}, nil
}

func (h *azureHandler) SyncInstances(ctx context.Context, appID, infraMappingID string) error {
	mapping, err := h.deps.Mappings.GetByID(ctx, infraMappingID)
	if err != nil {
		return err
	}

	stored, err := h.deps.Instances.ListByInfraMapping(ctx, appID, infraMappingID)
	if err != nil {
		return err
	}

	attr := h.deps.fallbackAttribution(ctx, infraMappingID)
	for scaleSetName, dbInstances := range groupByBackendService(stored) {
		if err := h.syncScaleSet(ctx, mapping, scaleSetName, dbInstances, attr); err != nil {
			return err
		}
	}
	return nil
}

func (h *azureHandler) HandleNewDeployment(ctx context.Context, summaries []model.DeploymentSummary, rollback bool, rollbackInfo model.OnDemandRollbackInfo) error {
	for _, summary := range summaries {
		mapping, err := h.deps.Mappings.GetByID(ctx, summary.InfraMappingID)
		if err != nil {
			return err
		}

		scaleSetName := summary.Key.ScaleSetName
		dbInstances, err := h.deps.Instances.ListByBackendService(ctx, mapping.ID, scaleSetName)
		if err != nil {
			return err
		}
		if err := h.syncScaleSet(ctx, mapping, scaleSetName, dbInstances, attributionFromSummary(&summary)); err != nil {
			return err
		}
	}
	return nil
}

// syncScaleSet diffs one scale set. Scale set VMs carry the set name as
// their name prefix; the resource group comes from the mapping. A failed
// list aborts before any delete.
func (h *azureHandler) syncScaleSet(ctx context.Context, mapping *model.InfraMapping, scaleSetName string, dbInstances []model.Instance, attr attribution) error {
	vms, err := h.azure.ListVirtualMachines(ctx, mapping.ResourceGroup, scaleSetName)
	if err != nil {
		return fmt.Errorf("sync scale set %s: %w", scaleSetName, err)
	}

	latest := make([]*model.Instance, 0, len(vms))
	for _, vm := range vms {
		latest = append(latest, h.newVMInstance(mapping, scaleSetName, vm, attr))
	}

	added, removed, err := reconcile(ctx, h.deps, mapping.Kind, dbInstances, latest)
	if err != nil {
		return err
	}
	h.deps.Logger.Info().
		Str("infra_mapping_id", mapping.ID).
		Str("scale_set", scaleSetName).
		Int("added", added).
		Int("removed", removed).
		Msg("reconciled azure scale set")
	return nil
}

func (h *azureHandler) newVMInstance(mapping *model.InfraMapping, scaleSetName string, vm provider.AzureVM, attr attribution) *model.Instance {
	key := model.InstanceKey{
		Kind:           model.KeyHost,
		HostName:       vm.Name,
		InfraMappingID: mapping.ID,
	}
	info := model.InstanceInfo{
		Kind:          model.InstanceAzureVM,
		VMID:          vm.ID,
		VMName:        vm.Name,
		ResourceGroup: mapping.ResourceGroup,
	}
	return newInstance(mapping, model.InstanceAzureVM, key, info, scaleSetName, attr)
}
