package instancesync

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/edvin/deploytrack/internal/model"
)

type hostProvider interface {
	ListLiveHosts(ctx context.Context, hosts []string) ([]string, error)
}

// hostHandler reconciles fixed SSH host deployments. The mapping's host
// list is the universe; liveness probing decides which hosts still count.
// One mapping is one scope, fingerprinted by the digest of its host names.
type hostHandler struct {
	deps   Deps
	prober hostProvider
}

func newHostHandler(deps Deps, prober hostProvider) *hostHandler {
	return &hostHandler{deps: deps, prober: prober}
}

func (h *hostHandler) GetDeploymentInfo(phase *model.PhaseCompletion, mapping *model.InfraMapping) ([]model.DeploymentInfo, error) {
	var infos []model.DeploymentInfo
	for _, step := range phase.Steps {
		if step.Kind != model.StepDeployService {
			continue
		}
		hosts := step.HostNames
		if len(hosts) == 0 {
			hosts = mapping.HostNames
		}
		if len(hosts) == 0 {
			continue
		}
		infos = append(infos, model.DeploymentInfo{
			Kind:      model.DeployKeyHost,
			HostNames: hosts,
		})
	}
	return infos, nil
}

func (h *hostHandler) GenerateDeploymentKey(info model.DeploymentInfo) (model.DeploymentKey, error) {
	if info.Kind != model.DeployKeyHost {
		return model.DeploymentKey{}, fmt.Errorf("host handler: unexpected deployment info kind %q", info.Kind)
	}
	return model.DeploymentKey{
		Kind:            model.DeployKeyHost,
		HostNamesDigest: hostNamesDigest(info.HostNames),
	}, nil
}

func (h *hostHandler) SyncInstances(ctx context.Context, appID, infraMappingID string) error {
	mapping, err := h.deps.Mappings.GetByID(ctx, infraMappingID)
	if err != nil {
		return err
	}

	stored, err := h.deps.Instances.ListByInfraMapping(ctx, appID, infraMappingID)
	if err != nil {
		return err
	}

	attr := h.deps.fallbackAttribution(ctx, infraMappingID)
	return h.syncHosts(ctx, mapping, mapping.HostNames, stored, attr)
}

func (h *hostHandler) HandleNewDeployment(ctx context.Context, summaries []model.DeploymentSummary, rollback bool, rollbackInfo model.OnDemandRollbackInfo) error {
	for _, summary := range summaries {
		mapping, err := h.deps.Mappings.GetByID(ctx, summary.InfraMappingID)
		if err != nil {
			return err
		}

		hosts := summary.Info.HostNames
		if len(hosts) == 0 {
			hosts = mapping.HostNames
		}

		stored, err := h.deps.Instances.ListByInfraMapping(ctx, summary.AppID, mapping.ID)
		if err != nil {
			return err
		}
		if err := h.syncHosts(ctx, mapping, hosts, stored, attributionFromSummary(&summary)); err != nil {
			return err
		}
	}
	return nil
}

// syncHosts diffs the mapping against the probed-live subset of its hosts.
// A probe configuration error aborts before any delete.
func (h *hostHandler) syncHosts(ctx context.Context, mapping *model.InfraMapping, hosts []string, stored []model.Instance, attr attribution) error {
	live, err := h.prober.ListLiveHosts(ctx, hosts)
	if err != nil {
		return fmt.Errorf("probe hosts of mapping %s: %w", mapping.ID, err)
	}

	// Every host of a previously non-empty set going dark at once is
	// indistinguishable from a network partition on our side. Keep the
	// stored rows and let the next cycle decide.
	if len(live) == 0 && len(stored) > 0 {
		h.deps.Logger.Warn().
			Str("infra_mapping_id", mapping.ID).
			Int("stored", len(stored)).
			Msg("no host answered, keeping stored instances")
		return nil
	}

	latest := make([]*model.Instance, 0, len(live))
	for _, hostName := range live {
		latest = append(latest, h.newHostInstance(mapping, hostName, attr))
	}

	added, removed, err := reconcile(ctx, h.deps, mapping.Kind, stored, latest)
	if err != nil {
		return err
	}
	h.deps.Logger.Info().
		Str("infra_mapping_id", mapping.ID).
		Int("added", added).
		Int("removed", removed).
		Msg("reconciled fixed hosts")
	return nil
}

func (h *hostHandler) newHostInstance(mapping *model.InfraMapping, hostName string, attr attribution) *model.Instance {
	key := model.InstanceKey{
		Kind:           model.KeyHost,
		HostName:       hostName,
		InfraMappingID: mapping.ID,
	}
	info := model.InstanceInfo{
		Kind:     model.InstanceHost,
		HostName: hostName,
	}
	return newInstance(mapping, model.InstanceHost, key, info, hostNamesDigest(mapping.HostNames), attr)
}

// hostNamesDigest canonicalizes a host list into the deployment fingerprint.
func hostNamesDigest(hosts []string) string {
	sorted := make([]string, len(hosts))
	copy(sorted, hosts)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
