package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/deploytrack/internal/model"
	"github.com/edvin/deploytrack/internal/platform"
)

const (
	instanceKeyLockWait  = 1 * time.Minute
	instanceKeyLockLease = 2 * time.Minute
)

const instanceColumns = `id, account_id, app_id, app_name, service_id, service_name, env_id, env_name,
	infra_mapping_id, infra_mapping_kind, compute_provider_id, instance_type,
	instance_key, instance_info, backend_service_name,
	last_deployed_at, last_workflow_execution_id, last_workflow_execution_name,
	last_pipeline_execution_id, last_artifact_id, last_artifact_name, last_artifact_build,
	created_at, is_deleted, deleted_at`

// InstanceService is versioned CRUD over instance records. Identity-
// preserving updates never mutate a row in place: the old row is
// soft-deleted and a new row inserted one millisecond later, so any
// point-in-time query sees exactly one row per logical instance.
type InstanceService struct {
	db    DB
	locks *LockService

	// now is swappable for deterministic versioning tests.
	now func() time.Time
}

func NewInstanceService(db DB, locks *LockService) *InstanceService {
	return &InstanceService{db: db, locks: locks, now: time.Now}
}

// Save inserts a new instance row as-is. The caller owns key uniqueness;
// use SaveOrUpdate when a row with the same key may already exist.
func (s *InstanceService) Save(ctx context.Context, inst *model.Instance) error {
	if inst.ID == "" {
		inst.ID = platform.NewID()
	}
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = s.now()
	}
	return s.insert(ctx, inst)
}

// SaveOrUpdate derives the instance key, takes the per-key lock, and either
// inserts the instance or replaces the existing row with the soft-delete-
// old/insert-new versioning.
func (s *InstanceService) SaveOrUpdate(ctx context.Context, inst *model.Instance) error {
	keyText := inst.Key.String()

	release, err := s.locks.Acquire(ctx, "instance:"+keyText, instanceKeyLockWait, instanceKeyLockLease)
	if err != nil {
		return fmt.Errorf("lock instance key %s: %w", keyText, err)
	}
	defer release()

	existing, err := s.activeByKey(ctx, inst.InfraMappingID, keyText)
	if err != nil {
		return err
	}

	now := s.now()
	if existing == nil {
		inst.ID = platform.NewID()
		inst.CreatedAt = now
		return s.insert(ctx, inst)
	}

	// Soft-delete the old row and insert the replacement strictly after it,
	// keeping point-in-time queries unambiguous.
	if err := s.softDelete(ctx, []string{existing.ID}, now); err != nil {
		return err
	}
	inst.ID = platform.NewID()
	inst.CreatedAt = now.Add(time.Millisecond)
	return s.insert(ctx, inst)
}

// UpdateAttribution rewrites the deployment attribution fields of an active
// instance in place. Used only for on-demand rollbacks, where the backing
// instance did not change and versioned replacement would be wrong.
func (s *InstanceService) UpdateAttribution(ctx context.Context, id string, summary *model.DeploymentSummary) error {
	_, err := s.db.Exec(ctx,
		`UPDATE instances
		 SET last_deployed_at = $1, last_workflow_execution_id = $2, last_workflow_execution_name = $3,
		     last_pipeline_execution_id = $4, last_artifact_id = $5, last_artifact_name = $6, last_artifact_build = $7
		 WHERE id = $8 AND NOT is_deleted`,
		summary.DeployedAt, summary.WorkflowExecutionID, summary.WorkflowExecutionName,
		summary.PipelineExecutionID, summary.ArtifactID, summary.ArtifactName, summary.ArtifactBuild, id,
	)
	if err != nil {
		return fmt.Errorf("update attribution for instance %s: %w", id, err)
	}
	return nil
}

// Delete soft-deletes the given instance rows in one batched update.
func (s *InstanceService) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.softDelete(ctx, ids, s.now())
}

func (s *InstanceService) softDelete(ctx context.Context, ids []string, at time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE instances SET is_deleted = true, deleted_at = $1 WHERE id = ANY($2) AND NOT is_deleted`,
		at, ids,
	)
	if err != nil {
		return fmt.Errorf("soft delete %d instances: %w", len(ids), err)
	}
	return nil
}

// ListByInfraMapping returns all non-deleted instances for (appID,
// infraMappingID) — the DB side of every full-sync diff.
func (s *InstanceService) ListByInfraMapping(ctx context.Context, appID, infraMappingID string) ([]model.Instance, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+instanceColumns+` FROM instances
		 WHERE app_id = $1 AND infra_mapping_id = $2 AND NOT is_deleted
		 ORDER BY created_at`,
		appID, infraMappingID,
	)
	if err != nil {
		return nil, fmt.Errorf("list instances for mapping %s: %w", infraMappingID, err)
	}
	return scanInstances(rows)
}

// ListByBackendService returns all non-deleted instances belonging to one
// provider-native grouping (ASG, ECS service, controller/release, PCF app,
// elastigroup) within an infra mapping.
func (s *InstanceService) ListByBackendService(ctx context.Context, infraMappingID, backendServiceName string) ([]model.Instance, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+instanceColumns+` FROM instances
		 WHERE infra_mapping_id = $1 AND backend_service_name = $2 AND NOT is_deleted
		 ORDER BY created_at`,
		infraMappingID, backendServiceName,
	)
	if err != nil {
		return nil, fmt.Errorf("list instances for backend service %s: %w", backendServiceName, err)
	}
	return scanInstances(rows)
}

// AtTimestamp is the point-in-time query: instances that existed at ts.
// A row covers the inclusive interval [created_at, deleted_at]; replacement
// rows are created at deleted_at + 1ms, so exactly one row per logical
// instance matches any instant.
func (s *InstanceService) AtTimestamp(ctx context.Context, appID, infraMappingID string, ts time.Time) ([]model.Instance, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+instanceColumns+` FROM instances
		 WHERE app_id = $1 AND infra_mapping_id = $2
		   AND created_at <= $3
		   AND (NOT is_deleted OR deleted_at >= $3)
		 ORDER BY created_at`,
		appID, infraMappingID, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("point-in-time instances for mapping %s: %w", infraMappingID, err)
	}
	return scanInstances(rows)
}

// Newest returns the most recent non-deleted instance for an infra mapping,
// or nil when none exists. Bare polls use it to inherit deployment
// attribution for newly observed instances.
func (s *InstanceService) Newest(ctx context.Context, infraMappingID string) (*model.Instance, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+instanceColumns+` FROM instances
		 WHERE infra_mapping_id = $1 AND NOT is_deleted
		 ORDER BY created_at DESC LIMIT 1`,
		infraMappingID,
	)
	inst, err := scanInstance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("newest instance for mapping %s: %w", infraMappingID, err)
	}
	return inst, nil
}

// DeleteByInfraMapping hard-deletes every instance of an infra mapping.
// Reserved for the abandoned-mapping purge; normal reconciliation only ever
// soft-deletes.
func (s *InstanceService) DeleteByInfraMapping(ctx context.Context, infraMappingID string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM instances WHERE infra_mapping_id = $1`, infraMappingID)
	if err != nil {
		return 0, fmt.Errorf("purge instances for mapping %s: %w", infraMappingID, err)
	}
	return tag.RowsAffected(), nil
}

// PurgeDeletedBefore hard-deletes rows soft-deleted before the cutoff,
// per account to bound batch size. Returns the total rows removed.
func (s *InstanceService) PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	rows, err := s.db.Query(ctx,
		`SELECT DISTINCT account_id FROM instances WHERE is_deleted AND deleted_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list accounts with purgeable instances: %w", err)
	}
	defer rows.Close()

	var accountIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("scan account id: %w", err)
		}
		accountIDs = append(accountIDs, id)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate accounts: %w", err)
	}

	var total int64
	for _, accountID := range accountIDs {
		tag, err := s.db.Exec(ctx,
			`DELETE FROM instances WHERE account_id = $1 AND is_deleted AND deleted_at < $2`,
			accountID, cutoff,
		)
		if err != nil {
			return total, fmt.Errorf("purge instances for account %s: %w", accountID, err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

func (s *InstanceService) activeByKey(ctx context.Context, infraMappingID, keyText string) (*model.Instance, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+instanceColumns+` FROM instances
		 WHERE infra_mapping_id = $1 AND instance_key_text = $2 AND NOT is_deleted`,
		infraMappingID, keyText,
	)
	inst, err := scanInstance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get instance by key %s: %w", keyText, err)
	}
	return inst, nil
}

func (s *InstanceService) insert(ctx context.Context, inst *model.Instance) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO instances (id, account_id, app_id, app_name, service_id, service_name, env_id, env_name,
			infra_mapping_id, infra_mapping_kind, compute_provider_id, instance_type,
			instance_key, instance_key_text, instance_info, backend_service_name,
			last_deployed_at, last_workflow_execution_id, last_workflow_execution_name,
			last_pipeline_execution_id, last_artifact_id, last_artifact_name, last_artifact_build,
			created_at, is_deleted, deleted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, false, NULL)`,
		inst.ID, inst.AccountID, inst.AppID, inst.AppName, inst.ServiceID, inst.ServiceName,
		inst.EnvID, inst.EnvName, inst.InfraMappingID, inst.InfraMappingKind,
		inst.ComputeProviderID, inst.InstanceType,
		inst.Key, inst.Key.String(), inst.Info, inst.BackendServiceName,
		inst.LastDeployedAt, inst.LastWorkflowExecutionID, inst.LastWorkflowExecutionName,
		inst.LastPipelineExecutionID, inst.LastArtifactID, inst.LastArtifactName, inst.LastArtifactBuild,
		inst.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert instance %s: %w", inst.Key.String(), err)
	}
	return nil
}

func scanInstance(row pgx.Row) (*model.Instance, error) {
	var inst model.Instance
	err := row.Scan(&inst.ID, &inst.AccountID, &inst.AppID, &inst.AppName,
		&inst.ServiceID, &inst.ServiceName, &inst.EnvID, &inst.EnvName,
		&inst.InfraMappingID, &inst.InfraMappingKind, &inst.ComputeProviderID, &inst.InstanceType,
		&inst.Key, &inst.Info, &inst.BackendServiceName,
		&inst.LastDeployedAt, &inst.LastWorkflowExecutionID, &inst.LastWorkflowExecutionName,
		&inst.LastPipelineExecutionID, &inst.LastArtifactID, &inst.LastArtifactName, &inst.LastArtifactBuild,
		&inst.CreatedAt, &inst.IsDeleted, &inst.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

func scanInstances(rows pgx.Rows) ([]model.Instance, error) {
	defer rows.Close()

	var instances []model.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		instances = append(instances, *inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instances: %w", err)
	}
	return instances, nil
}
