package model

import "time"

// DeploymentInfo is the raw backend-specific description of what a
// completed deployment phase touched. Kind selects the meaningful fields;
// the owning handler derives the DeploymentKey fingerprint from it.
type DeploymentInfo struct {
	Kind DeploymentKeyKind `json:"kind"`

	// AWS ASG rollouts.
	AutoScalingGroupName string `json:"asg_name,omitempty"`

	// CodeDeploy.
	CodeDeployDeploymentID string `json:"codedeploy_deployment_id,omitempty"`
	CodeDeployGroupName    string `json:"codedeploy_group_name,omitempty"`

	// Container services (ECS, Helm v2-style named controllers).
	ClusterName          string            `json:"cluster_name,omitempty"`
	ContainerServiceName string            `json:"container_service_name,omitempty"`
	Labels               map[string]string `json:"labels,omitempty"`
	Version              string            `json:"version,omitempty"`

	// Kubernetes releases.
	ReleaseName   string   `json:"release_name,omitempty"`
	ReleaseNumber int      `json:"release_number,omitempty"`
	Namespaces    []string `json:"namespaces,omitempty"`

	// Shared namespace for single-namespace container deploys.
	Namespace string `json:"namespace,omitempty"`

	// Azure.
	ScaleSetName  string `json:"scale_set_name,omitempty"`
	ResourceGroup string `json:"resource_group,omitempty"`

	// PCF.
	PCFApplicationName string `json:"pcf_application_name,omitempty"`
	PCFApplicationGUID string `json:"pcf_application_guid,omitempty"`

	// Spotinst.
	ElastigroupID   string `json:"elastigroup_id,omitempty"`
	ElastigroupName string `json:"elastigroup_name,omitempty"`

	// Lambda.
	FunctionName    string `json:"function_name,omitempty"`
	FunctionVersion string `json:"function_version,omitempty"`

	// Fixed SSH hosts.
	HostNames []string `json:"host_names,omitempty"`
}

// DeploymentSummary records that a deployment happened against an infra
// mapping with a given fingerprint. At most one summary exists per
// (infraMappingID, DeploymentKey); rows are never mutated.
type DeploymentSummary struct {
	ID                    string `json:"id" db:"id"`
	AccountID             string `json:"account_id" db:"account_id"`
	AppID                 string `json:"app_id" db:"app_id"`
	InfraMappingID        string `json:"infra_mapping_id" db:"infra_mapping_id"`
	WorkflowExecutionID   string `json:"workflow_execution_id" db:"workflow_execution_id"`
	WorkflowExecutionName string `json:"workflow_execution_name" db:"workflow_execution_name"`
	PipelineExecutionID   string `json:"pipeline_execution_id" db:"pipeline_execution_id"`
	StateExecutionID      string `json:"state_execution_id" db:"state_execution_id"`
	ArtifactID            string `json:"artifact_id" db:"artifact_id"`
	ArtifactName          string `json:"artifact_name" db:"artifact_name"`
	ArtifactBuild         string `json:"artifact_build" db:"artifact_build"`

	Info DeploymentInfo `json:"deployment_info" db:"deployment_info"`
	Key  DeploymentKey  `json:"deployment_key" db:"deployment_key"`

	DeployedAt time.Time `json:"deployed_at" db:"deployed_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// DeploymentEvent is the work-queue message produced when a deployment
// phase completes. Delivery is at-least-once; the consumer is idempotent
// because summaries are deduped by fingerprint and instance upserts are
// idempotent on InstanceKey.
type DeploymentEvent struct {
	AccountID      string               `json:"account_id"`
	AppID          string               `json:"app_id"`
	InfraMappingID string               `json:"infra_mapping_id"`
	Summaries      []DeploymentSummary  `json:"deployment_summaries"`
	Rollback       bool                 `json:"is_rollback"`
	RollbackInfo   OnDemandRollbackInfo `json:"on_demand_rollback_info"`
}

// OnDemandRollbackInfo marks a rollback that is itself a fresh on-demand
// deployment rather than a reverse of the previous one. Handlers that
// support it update attribution in place instead of replacing instances.
type OnDemandRollbackInfo struct {
	OnDemandRollback    bool   `json:"on_demand_rollback"`
	RollbackExecutionID string `json:"rollback_execution_id,omitempty"`
}
