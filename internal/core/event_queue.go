package core

import (
	"context"
	"fmt"

	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/deploytrack/internal/model"
	"github.com/edvin/deploytrack/internal/platform"
)

// DeploymentEventQueue publishes deployment events by starting one workflow
// per event. Temporal gives at-least-once delivery and durable retries; the
// consumer is idempotent, so redelivery is harmless.
type DeploymentEventQueue struct {
	tc temporalclient.Client
}

func NewDeploymentEventQueue(tc temporalclient.Client) *DeploymentEventQueue {
	return &DeploymentEventQueue{tc: tc}
}

func (q *DeploymentEventQueue) Publish(ctx context.Context, event model.DeploymentEvent) error {
	_, err := q.tc.ExecuteWorkflow(ctx, temporalclient.StartWorkflowOptions{
		ID:        fmt.Sprintf("deployment-event-%s-%s", event.InfraMappingID, platform.NewID()),
		TaskQueue: TaskQueue,
	}, "DeploymentEventWorkflow", event)
	if err != nil {
		return fmt.Errorf("enqueue deployment event for mapping %s: %w", event.InfraMappingID, err)
	}
	return nil
}
