// Package instancesync is the instance reconciliation engine: one handler
// per infrastructure backend, each able to derive deployment fingerprints
// from completed phases and to converge the instance store against the
// backend's live state.
package instancesync

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/deploytrack/internal/metrics"
	"github.com/edvin/deploytrack/internal/model"
)

// Handler is the per-backend reconciliation strategy.
type Handler interface {
	// GetDeploymentInfo extracts zero or more backend-specific deployment
	// descriptions from a completed phase's step summaries. An empty result
	// is the normal outcome when the phase lacks the expected step kind.
	GetDeploymentInfo(phase *model.PhaseCompletion, mapping *model.InfraMapping) ([]model.DeploymentInfo, error)

	// GenerateDeploymentKey derives the deterministic fingerprint of a
	// deployment info. A variant the handler does not own is a
	// configuration error.
	GenerateDeploymentKey(info model.DeploymentInfo) (model.DeploymentKey, error)

	// SyncInstances reconciles with no known deployment context: every
	// backend-service name already known from the store is re-listed and
	// diffed.
	SyncInstances(ctx context.Context, appID, infraMappingID string) error

	// HandleNewDeployment reconciles the scopes implied by the given
	// summaries, attributing new instances to them.
	HandleNewDeployment(ctx context.Context, summaries []model.DeploymentSummary, rollback bool, rollbackInfo model.OnDemandRollbackInfo) error
}

// InstanceStore is the slice of core.InstanceService the handlers use.
type InstanceStore interface {
	SaveOrUpdate(ctx context.Context, inst *model.Instance) error
	Delete(ctx context.Context, ids []string) error
	ListByInfraMapping(ctx context.Context, appID, infraMappingID string) ([]model.Instance, error)
	ListByBackendService(ctx context.Context, infraMappingID, backendServiceName string) ([]model.Instance, error)
	Newest(ctx context.Context, infraMappingID string) (*model.Instance, error)
	UpdateAttribution(ctx context.Context, id string, summary *model.DeploymentSummary) error
	DeleteByInfraMapping(ctx context.Context, infraMappingID string) (int64, error)
}

// SummaryStore is the slice of core.DeploymentSummaryService the engine uses.
type SummaryStore interface {
	SaveIfAbsent(ctx context.Context, summary *model.DeploymentSummary) (bool, error)
	Last(ctx context.Context, infraMappingID string) (*model.DeploymentSummary, error)
}

// MappingStore resolves infra mappings.
type MappingStore interface {
	GetByID(ctx context.Context, id string) (*model.InfraMapping, error)
}

// Deps bundles the stores every handler needs. Handlers are stateless
// across calls; all shared mutable state lives behind these interfaces.
type Deps struct {
	Instances InstanceStore
	Summaries SummaryStore
	Mappings  MappingStore
	Logger    zerolog.Logger
}

// attribution is the deployment metadata stamped on instances.
type attribution struct {
	deployedAt            *time.Time
	workflowExecutionID   string
	workflowExecutionName string
	pipelineExecutionID   string
	artifactID            string
	artifactName          string
	artifactBuild         string
}

func attributionFromSummary(s *model.DeploymentSummary) attribution {
	deployedAt := s.DeployedAt
	return attribution{
		deployedAt:            &deployedAt,
		workflowExecutionID:   s.WorkflowExecutionID,
		workflowExecutionName: s.WorkflowExecutionName,
		pipelineExecutionID:   s.PipelineExecutionID,
		artifactID:            s.ArtifactID,
		artifactName:          s.ArtifactName,
		artifactBuild:         s.ArtifactBuild,
	}
}

func attributionFromInstance(i *model.Instance) attribution {
	return attribution{
		deployedAt:            i.LastDeployedAt,
		workflowExecutionID:   i.LastWorkflowExecutionID,
		workflowExecutionName: i.LastWorkflowExecutionName,
		pipelineExecutionID:   i.LastPipelineExecutionID,
		artifactID:            i.LastArtifactID,
		artifactName:          i.LastArtifactName,
		artifactBuild:         i.LastArtifactBuild,
	}
}

// fallbackAttribution resolves attribution for instances discovered by a
// bare poll: the newest pre-existing instance's metadata, else the most
// recent deployment summary, else empty.
func (d Deps) fallbackAttribution(ctx context.Context, infraMappingID string) attribution {
	newest, err := d.Instances.Newest(ctx, infraMappingID)
	if err == nil && newest != nil {
		return attributionFromInstance(newest)
	}

	last, err := d.Summaries.Last(ctx, infraMappingID)
	if err == nil && last != nil {
		return attributionFromSummary(last)
	}
	return attribution{}
}

// newInstance builds an unsaved instance record for a live descriptor.
func newInstance(mapping *model.InfraMapping, typ model.InstanceType, key model.InstanceKey, info model.InstanceInfo, backendServiceName string, a attribution) *model.Instance {
	return &model.Instance{
		AccountID:                 mapping.AccountID,
		AppID:                     mapping.AppID,
		ServiceID:                 mapping.ServiceID,
		ServiceName:               mapping.ServiceName,
		EnvID:                     mapping.EnvID,
		EnvName:                   mapping.EnvName,
		InfraMappingID:            mapping.ID,
		InfraMappingKind:          mapping.Kind,
		ComputeProviderID:         mapping.ComputeProviderID,
		InstanceType:              typ,
		Key:                       key,
		Info:                      info,
		BackendServiceName:        backendServiceName,
		LastDeployedAt:            a.deployedAt,
		LastWorkflowExecutionID:   a.workflowExecutionID,
		LastWorkflowExecutionName: a.workflowExecutionName,
		LastPipelineExecutionID:   a.pipelineExecutionID,
		LastArtifactID:            a.artifactID,
		LastArtifactName:          a.artifactName,
		LastArtifactBuild:         a.artifactBuild,
	}
}

// reconcile applies the shared diff shape: instances present only in the
// store are soft-deleted in one batch, instances present only in the live
// set are inserted. Both sides are keyed by InstanceKey.String(). The
// caller must not invoke reconcile when its provider call failed — skipping
// the delete half on a transient read error is the handler's
// responsibility.
func reconcile(ctx context.Context, deps Deps, mappingKind model.InfraMappingKind, dbInstances []model.Instance, latest []*model.Instance) (added, removed int, err error) {
	dbMap := make(map[string]model.Instance, len(dbInstances))
	for _, inst := range dbInstances {
		dbMap[inst.Key.String()] = inst
	}
	latestMap := make(map[string]*model.Instance, len(latest))
	for _, inst := range latest {
		latestMap[inst.Key.String()] = inst
	}

	var toDelete []string
	for key, inst := range dbMap {
		if _, ok := latestMap[key]; !ok {
			toDelete = append(toDelete, inst.ID)
		}
	}
	if len(toDelete) > 0 {
		if err := deps.Instances.Delete(ctx, toDelete); err != nil {
			return 0, 0, err
		}
	}

	for key, inst := range latestMap {
		if _, ok := dbMap[key]; ok {
			continue
		}
		if err := deps.Instances.SaveOrUpdate(ctx, inst); err != nil {
			return added, len(toDelete), err
		}
		added++
	}

	removed = len(toDelete)
	metrics.InstancesAdded.WithLabelValues(string(mappingKind)).Add(float64(added))
	metrics.InstancesRemoved.WithLabelValues(string(mappingKind)).Add(float64(removed))
	return added, removed, nil
}

// groupByBackendService indexes stored instances by their provider-native
// grouping, the scope unit of every sync.
func groupByBackendService(instances []model.Instance) map[string][]model.Instance {
	groups := make(map[string][]model.Instance)
	for _, inst := range instances {
		groups[inst.BackendServiceName] = append(groups[inst.BackendServiceName], inst)
	}
	return groups
}
