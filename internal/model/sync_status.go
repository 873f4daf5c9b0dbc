package model

import "time"

// SyncStatus tracks the outcome of the most recent reconciliation attempts
// for one infra mapping. Operators read SyncFailureReason; the orchestrator
// reads LastSuccessfullySyncedAt to decide whether a failure streak warrants
// purging the mapping's instances.
type SyncStatus struct {
	ID                       string     `json:"id" db:"id"`
	AppID                    string     `json:"app_id" db:"app_id"`
	ServiceID                string     `json:"service_id" db:"service_id"`
	EnvID                    string     `json:"env_id" db:"env_id"`
	InfraMappingID           string     `json:"infra_mapping_id" db:"infra_mapping_id"`
	InfraMappingName         string     `json:"infra_mapping_name" db:"infra_mapping_name"`
	LastSyncedAt             *time.Time `json:"last_synced_at,omitempty" db:"last_synced_at"`
	LastSuccessfullySyncedAt *time.Time `json:"last_successfully_synced_at,omitempty" db:"last_successfully_synced_at"`
	SyncFailureReason        string     `json:"sync_failure_reason" db:"sync_failure_reason"`
}

// PerpetualTaskInfo is the set of continuously-running poll tasks registered
// for an infra mapping. Created when the first instance for the mapping
// appears, deleted when the last task is removed.
type PerpetualTaskInfo struct {
	AccountID      string    `json:"account_id" db:"account_id"`
	InfraMappingID string    `json:"infra_mapping_id" db:"infra_mapping_id"`
	TaskIDs        []string  `json:"task_ids" db:"task_ids"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
