package activity

// SyncInstancesParams identifies the infra mapping one poll run reconciles.
// The cron workflow receives it as its only argument; field names match the
// payload the task registry starts the workflow with.
type SyncInstancesParams struct {
	AppID          string `json:"app_id"`
	InfraMappingID string `json:"infra_mapping_id"`
}
