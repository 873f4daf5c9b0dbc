package instancesync

import (
	"context"
	"errors"
	"fmt"

	"github.com/edvin/deploytrack/internal/model"
	"github.com/edvin/deploytrack/internal/provider"
)

type asgProvider interface {
	ListGroupInstances(ctx context.Context, asgName string) ([]provider.Ec2Instance, error)
}

// asgHandler reconciles AMI/auto-scaling-group deployments. The backend
// service name is the ASG name; instances key by EC2 host name.
type asgHandler struct {
	deps Deps
	asg  asgProvider
}

func newAsgHandler(deps Deps, asg asgProvider) *asgHandler {
	return &asgHandler{deps: deps, asg: asg}
}

func (h *asgHandler) GetDeploymentInfo(phase *model.PhaseCompletion, mapping *model.InfraMapping) ([]model.DeploymentInfo, error) {
	var infos []model.DeploymentInfo
	for _, step := range phase.Steps {
		if step.Kind != model.StepAsgRollout {
			continue
		}
		for _, name := range step.AutoScalingGroupNames {
			if name == "" {
				continue
			}
			infos = append(infos, model.DeploymentInfo{
				Kind:                 model.DeployKeyAsg,
				AutoScalingGroupName: name,
			})
		}
	}
	return infos, nil
}

func (h *asgHandler) GenerateDeploymentKey(info model.DeploymentInfo) (model.DeploymentKey, error) {
	if info.Kind != model.DeployKeyAsg {
		return model.DeploymentKey{}, fmt.Errorf("asg handler: unexpected deployment info kind %q", info.Kind)
	}
	return model.DeploymentKey{
		Kind:                 model.DeployKeyAsg,
		AutoScalingGroupName: info.AutoScalingGroupName,
	}, nil
}

func (h *asgHandler) SyncInstances(ctx context.Context, appID, infraMappingID string) error {
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
	for asgName, dbInstances := range groupByBackendService(stored) {
		if err := h.syncGroup(ctx, mapping, asgName, dbInstances, attr); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *asgHandler) HandleNewDeployment(ctx context.Context, summaries []model.DeploymentSummary, rollback bool, rollbackInfo model.OnDemandRollbackInfo) error {
	var errs []error
	for _, summary := range summaries {
		mapping, err := h.deps.Mappings.GetByID(ctx, summary.InfraMappingID)
		if err != nil {
			return err
		}
		asgName := summary.Info.AutoScalingGroupName
		if asgName == "" {
			return fmt.Errorf("asg handler: summary %s carries no auto-scaling group name", summary.ID)
		}

		dbInstances, err := h.deps.Instances.ListByBackendService(ctx, mapping.ID, asgName)
		if err != nil {
			return err
		}
		if err := h.syncGroup(ctx, mapping, asgName, dbInstances, attributionFromSummary(&summary)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// syncGroup diffs one auto-scaling group. A failed provider call aborts
// before any delete so a transient read error cannot drop live instances.
func (h *asgHandler) syncGroup(ctx context.Context, mapping *model.InfraMapping, asgName string, dbInstances []model.Instance, attr attribution) error {
	live, err := h.asg.ListGroupInstances(ctx, asgName)
	if err != nil {
		return fmt.Errorf("sync asg %s: %w", asgName, err)
	}

	latest := make([]*model.Instance, 0, len(live))
	for _, ec2Inst := range live {
		latest = append(latest, newEc2Instance(mapping, asgName, ec2Inst, attr))
	}

	added, removed, err := reconcile(ctx, h.deps, mapping.Kind, dbInstances, latest)
	if err != nil {
		return err
	}
	h.deps.Logger.Info().
		Str("infra_mapping_id", mapping.ID).
		Str("asg", asgName).
		Int("added", added).
		Int("removed", removed).
		Msg("reconciled auto-scaling group")
	return nil
}

// newEc2Instance builds the instance record shared by all EC2-backed
// handlers.
func newEc2Instance(mapping *model.InfraMapping, backendServiceName string, ec2Inst provider.Ec2Instance, attr attribution) *model.Instance {
	hostName := ec2Inst.PrivateDNSName
	if hostName == "" {
		hostName = ec2Inst.InstanceID
	}
	key := model.InstanceKey{
		Kind:           model.KeyHost,
		HostName:       hostName,
		InfraMappingID: mapping.ID,
	}
	info := model.InstanceInfo{
		Kind:          model.InstanceEC2,
		EC2InstanceID: ec2Inst.InstanceID,
		HostName:      hostName,
		PrivateDNS:    ec2Inst.PrivateDNSName,
		PublicDNS:     ec2Inst.PublicDNSName,
		State:         ec2Inst.State,
	}
	return newInstance(mapping, model.InstanceEC2, key, info, backendServiceName, attr)
}
