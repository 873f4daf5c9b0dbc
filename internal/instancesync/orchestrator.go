package instancesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/deploytrack/internal/core"
	"github.com/edvin/deploytrack/internal/metrics"
	"github.com/edvin/deploytrack/internal/model"
	"github.com/edvin/deploytrack/internal/platform"
)

// Lock timings for the per-mapping reconciliation lock. The wait is long
// because deployment events for the same mapping legitimately queue behind
// each other; the lease outlasts the wait so a holder cannot be fenced out
// while others still poll.
const (
	mappingLockWait  = 200 * time.Second
	mappingLockLease = 220 * time.Second
)

// deploySteps is the allow-list of step kinds that represent a deployment.
// Phases whose steps all fall outside it produce no tracking work.
var deploySteps = map[model.PhaseStepKind]bool{
	model.StepDeployService:   true,
	model.StepAsgRollout:      true,
	model.StepCodeDeploy:      true,
	model.StepEcsServiceSetup: true,
	model.StepK8sApply:        true,
	model.StepHelmDeploy:      true,
	model.StepAzureVMDeploy:   true,
	model.StepPCFDeploy:       true,
	model.StepSpotinstDeploy:  true,
	model.StepLambdaDeploy:    true,
}

// EventQueue publishes deployment events for asynchronous consumption.
// Delivery is at-least-once.
type EventQueue interface {
	Publish(ctx context.Context, event model.DeploymentEvent) error
}

// Locker is the slice of core.LockService the orchestrator uses.
type Locker interface {
	Acquire(ctx context.Context, key string, wait, lease time.Duration) (func(), error)
	TryAcquire(ctx context.Context, key string, lease time.Duration) (func(), bool, error)
}

// StatusStore is the slice of core.SyncStatusService the orchestrator uses.
type StatusStore interface {
	Get(ctx context.Context, appID, infraMappingID string) (*model.SyncStatus, error)
	UpdateSuccess(ctx context.Context, mapping *model.InfraMapping, at time.Time) error
	UpdateFailure(ctx context.Context, mapping *model.InfraMapping, reason string, at time.Time) error
	Delete(ctx context.Context, appID, infraMappingID string) error
}

// TaskRegistry is the slice of core.PerpetualTaskService the orchestrator
// uses.
type TaskRegistry interface {
	EnsureTask(ctx context.Context, mapping *model.InfraMapping) (string, error)
	DeleteTasks(ctx context.Context, accountID, infraMappingID string) error
}

// Orchestrator drives the reconciliation engine: it turns completed phases
// into deduped summaries and queued events, consumes those events under a
// per-mapping lock, and runs the periodic polls the perpetual tasks fire.
type Orchestrator struct {
	deps    Deps
	factory *Factory
	queue   EventQueue
	locks   Locker
	status  StatusStore
	tasks   TaskRegistry
	logger  zerolog.Logger

	// syncFailureGrace is how long a mapping may fail to sync after its last
	// success before its instances are purged.
	syncFailureGrace time.Duration

	now func() time.Time
}

func NewOrchestrator(deps Deps, factory *Factory, queue EventQueue, locks Locker, status StatusStore, tasks TaskRegistry, syncFailureGrace time.Duration) *Orchestrator {
	return &Orchestrator{
		deps:             deps,
		factory:          factory,
		queue:            queue,
		locks:            locks,
		status:           status,
		tasks:            tasks,
		logger:           deps.Logger,
		syncFailureGrace: syncFailureGrace,
		now:              time.Now,
	}
}

// ProcessPhaseCompletion is the synchronous half of deployment intake: it
// derives the deployment fingerprints from the completed phase, persists
// each summary at most once, and enqueues the event carrying them. It runs
// on the deployment critical path, so it does the minimum durable work and
// leaves reconciliation to the event consumer.
func (o *Orchestrator) ProcessPhaseCompletion(ctx context.Context, phase *model.PhaseCompletion) error {
	if !o.hasDeployStep(phase) {
		return nil
	}

	mapping, err := o.deps.Mappings.GetByID(ctx, phase.InfraMappingID)
	if err != nil {
		return fmt.Errorf("resolve infra mapping %s: %w", phase.InfraMappingID, err)
	}

	handler, err := o.factory.HandlerFor(mapping)
	if err != nil {
		return err
	}
	if handler == nil {
		return nil
	}

	infos, err := handler.GetDeploymentInfo(phase, mapping)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		return nil
	}

	summaries := make([]model.DeploymentSummary, 0, len(infos))
	for _, info := range infos {
		key, err := handler.GenerateDeploymentKey(info)
		if err != nil {
			return err
		}
		summary := model.DeploymentSummary{
			ID:                    platform.NewID(),
			AccountID:             phase.AccountID,
			AppID:                 phase.AppID,
			InfraMappingID:        mapping.ID,
			WorkflowExecutionID:   phase.WorkflowExecutionID,
			WorkflowExecutionName: phase.WorkflowExecutionName,
			PipelineExecutionID:   phase.PipelineExecutionID,
			StateExecutionID:      phase.StateExecutionID,
			ArtifactID:            phase.ArtifactID,
			ArtifactName:          phase.ArtifactName,
			ArtifactBuild:         phase.ArtifactBuild,
			Info:                  info,
			Key:                   key,
			DeployedAt:            phase.DeployedAt,
		}

		created, err := o.deps.Summaries.SaveIfAbsent(ctx, &summary)
		if err != nil {
			return err
		}
		if !created {
			o.logger.Debug().
				Str("infra_mapping_id", mapping.ID).
				Str("deployment_key", key.String()).
				Msg("deployment summary already recorded")
		}
		summaries = append(summaries, summary)
	}

	event := model.DeploymentEvent{
		AccountID:      phase.AccountID,
		AppID:          phase.AppID,
		InfraMappingID: mapping.ID,
		Summaries:      summaries,
		Rollback:       phase.Rollback,
		RollbackInfo:   phase.OnDemandRollback,
	}
	if err := o.queue.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish deployment event: %w", err)
	}
	return nil
}

func (o *Orchestrator) hasDeployStep(phase *model.PhaseCompletion) bool {
	for _, step := range phase.Steps {
		if deploySteps[step.Kind] {
			return true
		}
	}
	return false
}

// HandleDeploymentEvent consumes one queued event under the per-mapping
// lock. It never returns an error: the instance store is a derived view
// that every later sync repairs, so failing the consumer would only poison
// redelivery. A lock that cannot be taken within the wait means another
// worker is already reconciling the mapping; the event is dropped.
func (o *Orchestrator) HandleDeploymentEvent(ctx context.Context, event *model.DeploymentEvent) {
	release, err := o.locks.Acquire(ctx, "inframapping:"+event.InfraMappingID, mappingLockWait, mappingLockLease)
	if err != nil {
		if errors.Is(err, core.ErrLockNotAcquired) {
			o.logger.Warn().
				Str("infra_mapping_id", event.InfraMappingID).
				Msg("mapping busy, dropping deployment event")
			return
		}
		o.logger.Error().Err(err).
			Str("infra_mapping_id", event.InfraMappingID).
			Msg("acquiring mapping lock failed")
		return
	}
	defer release()

	mapping, err := o.deps.Mappings.GetByID(ctx, event.InfraMappingID)
	if err != nil {
		o.logger.Error().Err(err).
			Str("infra_mapping_id", event.InfraMappingID).
			Msg("resolving mapping for deployment event failed")
		return
	}

	handler, err := o.factory.HandlerFor(mapping)
	if err != nil {
		o.logger.Error().Err(err).
			Str("infra_mapping_id", mapping.ID).
			Msg("no handler for deployment event")
		return
	}
	if handler == nil {
		return
	}

	if err := handler.HandleNewDeployment(ctx, event.Summaries, event.Rollback, event.RollbackInfo); err != nil {
		o.logger.Error().Err(err).
			Str("infra_mapping_id", mapping.ID).
			Msg("reconciling deployment event failed")
		return
	}

	if _, err := o.tasks.EnsureTask(ctx, mapping); err != nil {
		o.logger.Error().Err(err).
			Str("infra_mapping_id", mapping.ID).
			Msg("registering sync task failed")
	}
}

// SyncNow runs one periodic poll for a mapping. Contention is expected:
// when the lock is already held the poll is skipped rather than queued,
// since another reconciliation is doing the same work.
func (o *Orchestrator) SyncNow(ctx context.Context, appID, infraMappingID string) error {
	release, acquired, err := o.locks.TryAcquire(ctx, "inframapping:"+infraMappingID, mappingLockLease)
	if err != nil {
		return err
	}
	if !acquired {
		metrics.SyncRuns.WithLabelValues("skipped").Inc()
		return nil
	}
	defer release()

	mapping, err := o.deps.Mappings.GetByID(ctx, infraMappingID)
	if err != nil {
		return fmt.Errorf("resolve infra mapping %s: %w", infraMappingID, err)
	}

	handler, err := o.factory.HandlerFor(mapping)
	if err != nil {
		return err
	}
	if handler == nil {
		return nil
	}

	if err := handler.SyncInstances(ctx, appID, infraMappingID); err != nil {
		metrics.SyncRuns.WithLabelValues("failure").Inc()
		return o.handleSyncFailure(ctx, mapping, err)
	}

	metrics.SyncRuns.WithLabelValues("success").Inc()
	return o.status.UpdateSuccess(ctx, mapping, o.now())
}

// handleSyncFailure records a failed poll. A mapping that has not synced
// successfully for the whole grace period is presumed decommissioned
// behind our back; its instances, status, and poll tasks are removed so
// the engine stops burning provider calls on it.
func (o *Orchestrator) handleSyncFailure(ctx context.Context, mapping *model.InfraMapping, syncErr error) error {
	now := o.now()

	status, err := o.status.Get(ctx, mapping.AppID, mapping.ID)
	if err != nil {
		o.logger.Error().Err(err).
			Str("infra_mapping_id", mapping.ID).
			Msg("reading sync status failed")
		return syncErr
	}

	if status != nil && status.LastSuccessfullySyncedAt != nil &&
		now.Sub(*status.LastSuccessfullySyncedAt) >= o.syncFailureGrace {
		o.logger.Warn().
			Str("infra_mapping_id", mapping.ID).
			Time("last_success", *status.LastSuccessfullySyncedAt).
			AnErr("sync_error", syncErr).
			Msg("sync failing past grace period, purging mapping instances")

		purged, err := o.deps.Instances.DeleteByInfraMapping(ctx, mapping.ID)
		if err != nil {
			return err
		}
		metrics.InstancesPurged.Add(float64(purged))

		if err := o.status.Delete(ctx, mapping.AppID, mapping.ID); err != nil {
			return err
		}
		return o.tasks.DeleteTasks(ctx, mapping.AccountID, mapping.ID)
	}

	if err := o.status.UpdateFailure(ctx, mapping, syncErr.Error(), now); err != nil {
		o.logger.Error().Err(err).
			Str("infra_mapping_id", mapping.ID).
			Msg("recording sync failure failed")
	}
	return syncErr
}
