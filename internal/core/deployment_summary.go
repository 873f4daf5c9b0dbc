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
	summaryLockWait  = 30 * time.Second
	summaryLockLease = 1 * time.Minute
)

const summaryColumns = `id, account_id, app_id, infra_mapping_id,
	workflow_execution_id, workflow_execution_name, pipeline_execution_id, state_execution_id,
	artifact_id, artifact_name, artifact_build,
	deployment_info, deployment_key, deployed_at, created_at`

// DeploymentSummaryService is the idempotent record of "a deployment
// happened against infra mapping X with fingerprint Y". Rows are never
// mutated after creation.
type DeploymentSummaryService struct {
	db    DB
	locks *LockService
}

func NewDeploymentSummaryService(db DB, locks *LockService) *DeploymentSummaryService {
	return &DeploymentSummaryService{db: db, locks: locks}
}

// SaveIfAbsent stores the summary unless one with the same fingerprint
// already exists for the infra mapping. The read-check-then-write runs
// under a lock keyed by the fingerprint, making saves idempotent under
// queue redelivery. Returns whether a row was created.
func (s *DeploymentSummaryService) SaveIfAbsent(ctx context.Context, summary *model.DeploymentSummary) (bool, error) {
	keyText := summary.Key.String()

	// The lock is scoped to the mapping: two mappings deploying identically
	// named backend services must not serialize on each other.
	release, err := s.locks.Acquire(ctx, "deploysummary:"+summary.InfraMappingID+":"+keyText, summaryLockWait, summaryLockLease)
	if err != nil {
		return false, fmt.Errorf("lock deployment key %s: %w", keyText, err)
	}
	defer release()

	existing, err := s.GetByKey(ctx, summary.InfraMappingID, summary.Key)
	if err != nil {
		return false, err
	}
	if existing != nil {
		*summary = *existing
		return false, nil
	}

	if summary.ID == "" {
		summary.ID = platform.NewID()
	}
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now()
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO deployment_summaries (id, account_id, app_id, infra_mapping_id,
			workflow_execution_id, workflow_execution_name, pipeline_execution_id, state_execution_id,
			artifact_id, artifact_name, artifact_build,
			deployment_info, deployment_key, deployment_key_text, deployed_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		summary.ID, summary.AccountID, summary.AppID, summary.InfraMappingID,
		summary.WorkflowExecutionID, summary.WorkflowExecutionName,
		summary.PipelineExecutionID, summary.StateExecutionID,
		summary.ArtifactID, summary.ArtifactName, summary.ArtifactBuild,
		summary.Info, summary.Key, keyText, summary.DeployedAt, summary.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert deployment summary %s: %w", keyText, err)
	}
	return true, nil
}

// GetByKey returns the summary with the given fingerprint for an infra
// mapping, or nil when none exists.
func (s *DeploymentSummaryService) GetByKey(ctx context.Context, infraMappingID string, key model.DeploymentKey) (*model.DeploymentSummary, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+summaryColumns+` FROM deployment_summaries
		 WHERE infra_mapping_id = $1 AND deployment_key_text = $2`,
		infraMappingID, key.String(),
	)
	summary, err := scanSummary(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get deployment summary %s: %w", key.String(), err)
	}
	return summary, nil
}

// Last returns the most recent summary for an infra mapping, or nil. Bare
// polls fall back to it for attribution when the instance store is empty.
func (s *DeploymentSummaryService) Last(ctx context.Context, infraMappingID string) (*model.DeploymentSummary, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+summaryColumns+` FROM deployment_summaries
		 WHERE infra_mapping_id = $1
		 ORDER BY deployed_at DESC LIMIT 1`,
		infraMappingID,
	)
	summary, err := scanSummary(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last deployment summary for mapping %s: %w", infraMappingID, err)
	}
	return summary, nil
}

// DeleteByApp prunes all summaries owned by an application. Called when the
// application itself is deleted.
func (s *DeploymentSummaryService) DeleteByApp(ctx context.Context, appID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM deployment_summaries WHERE app_id = $1`, appID)
	if err != nil {
		return fmt.Errorf("delete deployment summaries for app %s: %w", appID, err)
	}
	return nil
}

func scanSummary(row pgx.Row) (*model.DeploymentSummary, error) {
	var ds model.DeploymentSummary
	err := row.Scan(&ds.ID, &ds.AccountID, &ds.AppID, &ds.InfraMappingID,
		&ds.WorkflowExecutionID, &ds.WorkflowExecutionName, &ds.PipelineExecutionID, &ds.StateExecutionID,
		&ds.ArtifactID, &ds.ArtifactName, &ds.ArtifactBuild,
		&ds.Info, &ds.Key, &ds.DeployedAt, &ds.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &ds, nil
}
