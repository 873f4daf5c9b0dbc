package activity

import (
	"context"

	"github.com/edvin/deploytrack/internal/instancesync"
	"github.com/edvin/deploytrack/internal/model"
)

// Sync contains the activities driving the reconciliation engine.
type Sync struct {
	orch *instancesync.Orchestrator
}

func NewSync(orch *instancesync.Orchestrator) *Sync {
	return &Sync{orch: orch}
}

// HandleDeploymentEvent consumes one deployment event. It always succeeds
// from Temporal's point of view: reconciliation failures are logged and left
// for the next periodic poll, so redelivery would only repeat work the poll
// already covers.
func (a *Sync) HandleDeploymentEvent(ctx context.Context, event model.DeploymentEvent) error {
	a.orch.HandleDeploymentEvent(ctx, &event)
	return nil
}

// SyncInstances runs one periodic poll for an infra mapping.
func (a *Sync) SyncInstances(ctx context.Context, params SyncInstancesParams) error {
	return a.orch.SyncNow(ctx, params.AppID, params.InfraMappingID)
}
