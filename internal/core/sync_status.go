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

// SyncStatusService tracks the last sync attempt and the last successful
// sync per infra mapping.
type SyncStatusService struct {
	db DB
}

func NewSyncStatusService(db DB) *SyncStatusService {
	return &SyncStatusService{db: db}
}

// Get returns the sync status for an infra mapping, or nil when the mapping
// has never synced.
func (s *SyncStatusService) Get(ctx context.Context, appID, infraMappingID string) (*model.SyncStatus, error) {
	var st model.SyncStatus
	err := s.db.QueryRow(ctx,
		`SELECT id, app_id, service_id, env_id, infra_mapping_id, infra_mapping_name,
			last_synced_at, last_successfully_synced_at, sync_failure_reason
		 FROM sync_statuses WHERE app_id = $1 AND infra_mapping_id = $2`,
		appID, infraMappingID,
	).Scan(&st.ID, &st.AppID, &st.ServiceID, &st.EnvID, &st.InfraMappingID, &st.InfraMappingName,
		&st.LastSyncedAt, &st.LastSuccessfullySyncedAt, &st.SyncFailureReason)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sync status for mapping %s: %w", infraMappingID, err)
	}
	return &st, nil
}

// ListByApp returns all sync statuses for an application, for the operator
// surface.
func (s *SyncStatusService) ListByApp(ctx context.Context, appID string) ([]model.SyncStatus, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, app_id, service_id, env_id, infra_mapping_id, infra_mapping_name,
			last_synced_at, last_successfully_synced_at, sync_failure_reason
		 FROM sync_statuses WHERE app_id = $1 ORDER BY infra_mapping_id`,
		appID,
	)
	if err != nil {
		return nil, fmt.Errorf("list sync statuses for app %s: %w", appID, err)
	}
	defer rows.Close()

	var statuses []model.SyncStatus
	for rows.Next() {
		var st model.SyncStatus
		if err := rows.Scan(&st.ID, &st.AppID, &st.ServiceID, &st.EnvID, &st.InfraMappingID, &st.InfraMappingName,
			&st.LastSyncedAt, &st.LastSuccessfullySyncedAt, &st.SyncFailureReason); err != nil {
			return nil, fmt.Errorf("scan sync status: %w", err)
		}
		statuses = append(statuses, st)
	}
	return statuses, rows.Err()
}

// UpdateSuccess records a successful sync attempt, clearing any failure
// reason.
func (s *SyncStatusService) UpdateSuccess(ctx context.Context, mapping *model.InfraMapping, at time.Time) error {
	return s.upsert(ctx, mapping, at, &at, "")
}

// UpdateFailure records a failed sync attempt with its reason, leaving the
// last-success timestamp untouched.
func (s *SyncStatusService) UpdateFailure(ctx context.Context, mapping *model.InfraMapping, reason string, at time.Time) error {
	return s.upsert(ctx, mapping, at, nil, reason)
}

func (s *SyncStatusService) upsert(ctx context.Context, mapping *model.InfraMapping, syncedAt time.Time, successAt *time.Time, reason string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO sync_statuses (id, app_id, service_id, env_id, infra_mapping_id, infra_mapping_name,
			last_synced_at, last_successfully_synced_at, sync_failure_reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (app_id, service_id, env_id, infra_mapping_id) DO UPDATE
		 SET last_synced_at = EXCLUDED.last_synced_at,
		     last_successfully_synced_at = COALESCE(EXCLUDED.last_successfully_synced_at, sync_statuses.last_successfully_synced_at),
		     sync_failure_reason = EXCLUDED.sync_failure_reason`,
		platform.NewID(), mapping.AppID, mapping.ServiceID, mapping.EnvID, mapping.ID, mapping.ServiceName,
		syncedAt, successAt, reason,
	)
	if err != nil {
		return fmt.Errorf("upsert sync status for mapping %s: %w", mapping.ID, err)
	}
	return nil
}

// Delete removes the sync status row. Part of the abandoned-mapping purge.
func (s *SyncStatusService) Delete(ctx context.Context, appID, infraMappingID string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM sync_statuses WHERE app_id = $1 AND infra_mapping_id = $2`,
		appID, infraMappingID,
	)
	if err != nil {
		return fmt.Errorf("delete sync status for mapping %s: %w", infraMappingID, err)
	}
	return nil
}
