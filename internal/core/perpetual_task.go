package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/deploytrack/internal/model"
)

// PerpetualTaskService keeps the bookkeeping of which continuous-polling
// tasks exist for each infra mapping consistent with the tasks themselves.
// A task is realized as a Temporal cron workflow; the workflow ID doubles as
// the task ID.
type PerpetualTaskService struct {
	db       DB
	tc       temporalclient.Client
	syncCron string
}

func NewPerpetualTaskService(db DB, tc temporalclient.Client, syncCron string) *PerpetualTaskService {
	return &PerpetualTaskService{db: db, tc: tc, syncCron: syncCron}
}

// TaskIDs returns the poll task ids registered for an infra mapping.
func (s *PerpetualTaskService) TaskIDs(ctx context.Context, accountID, infraMappingID string) ([]string, error) {
	var ids []string
	err := s.db.QueryRow(ctx,
		`SELECT task_ids FROM perpetual_task_infos WHERE account_id = $1 AND infra_mapping_id = $2`,
		accountID, infraMappingID,
	).Scan(&ids)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get perpetual tasks for mapping %s: %w", infraMappingID, err)
	}
	return ids, nil
}

// EnsureTask registers the continuous sync task for an infra mapping if none
// exists yet. Called when the first instance for a mapping appears.
func (s *PerpetualTaskService) EnsureTask(ctx context.Context, mapping *model.InfraMapping) (string, error) {
	ids, err := s.TaskIDs(ctx, mapping.AccountID, mapping.ID)
	if err != nil {
		return "", err
	}
	if len(ids) > 0 {
		return ids[0], nil
	}

	taskID := fmt.Sprintf("instance-sync-%s", mapping.ID)
	_, err = s.tc.ExecuteWorkflow(ctx, temporalclient.StartWorkflowOptions{
		ID:           taskID,
		TaskQueue:    TaskQueue,
		CronSchedule: s.syncCron,
	}, "InstanceSyncWorkflow", map[string]string{
		"app_id":           mapping.AppID,
		"infra_mapping_id": mapping.ID,
	})
	if err != nil {
		return "", fmt.Errorf("start sync task for mapping %s: %w", mapping.ID, err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO perpetual_task_infos (account_id, infra_mapping_id, task_ids)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (account_id, infra_mapping_id) DO UPDATE
		 SET task_ids = (
			SELECT array_agg(DISTINCT t) FROM unnest(perpetual_task_infos.task_ids || EXCLUDED.task_ids) AS t
		 )`,
		mapping.AccountID, mapping.ID, []string{taskID},
	)
	if err != nil {
		return "", fmt.Errorf("record perpetual task for mapping %s: %w", mapping.ID, err)
	}
	return taskID, nil
}

// DeleteTasks terminates every poll task of an infra mapping and removes the
// bookkeeping row.
func (s *PerpetualTaskService) DeleteTasks(ctx context.Context, accountID, infraMappingID string) error {
	ids, err := s.TaskIDs(ctx, accountID, infraMappingID)
	if err != nil {
		return err
	}

	for _, id := range ids {
		if err := s.tc.TerminateWorkflow(ctx, id, "", "infra mapping no longer tracked"); err != nil {
			// The workflow may already be gone; bookkeeping still has to go.
			continue
		}
	}

	_, err = s.db.Exec(ctx,
		`DELETE FROM perpetual_task_infos WHERE account_id = $1 AND infra_mapping_id = $2`,
		accountID, infraMappingID,
	)
	if err != nil {
		return fmt.Errorf("delete perpetual tasks for mapping %s: %w", infraMappingID, err)
	}
	return nil
}
