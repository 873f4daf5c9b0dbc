package model

import "time"

// InstanceType classifies the backend-specific payload carried by an
// instance record.
type InstanceType string

const (
	InstanceEC2       InstanceType = "ec2"
	InstanceContainer InstanceType = "container"
	InstancePod       InstanceType = "pod"
	InstanceAzureVM   InstanceType = "azure_vm"
	InstancePCF       InstanceType = "pcf"
	InstanceLambda    InstanceType = "lambda"
	InstanceHost      InstanceType = "host"
)

// InstanceInfo is the backend-specific description of a running unit,
// persisted as JSONB alongside the instance row. Kind mirrors the owning
// instance's InstanceType.
type InstanceInfo struct {
	Kind InstanceType `json:"kind"`

	// EC2-backed (ASG, CodeDeploy, Spotinst, plain SSH host).
	EC2InstanceID string `json:"ec2_instance_id,omitempty"`
	HostName      string `json:"host_name,omitempty"`
	PrivateDNS    string `json:"private_dns,omitempty"`
	PublicDNS     string `json:"public_dns,omitempty"`
	State         string `json:"state,omitempty"`

	// Container (ECS).
	ClusterName string `json:"cluster_name,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
	TaskARN     string `json:"task_arn,omitempty"`

	// Pod (Kubernetes).
	PodName     string `json:"pod_name,omitempty"`
	Namespace   string `json:"namespace,omitempty"`
	ReleaseName string `json:"release_name,omitempty"`
	Image       string `json:"image,omitempty"`
	PodIP       string `json:"pod_ip,omitempty"`
	HelmChart   string `json:"helm_chart,omitempty"`

	// Azure VM.
	VMID          string `json:"vm_id,omitempty"`
	VMName        string `json:"vm_name,omitempty"`
	ResourceGroup string `json:"resource_group,omitempty"`

	// PCF.
	PCFApplicationName string `json:"pcf_application_name,omitempty"`
	PCFInstanceIndex   string `json:"pcf_instance_index,omitempty"`
	Space              string `json:"space,omitempty"`

	// Lambda.
	FunctionName    string `json:"function_name,omitempty"`
	FunctionVersion string `json:"function_version,omitempty"`
	FunctionARN     string `json:"function_arn,omitempty"`
}

// Instance is one currently or formerly observed running unit. Rows are
// never updated in place for identity-preserving changes: the old row is
// soft-deleted and a new row inserted with CreatedAt past the old row's
// DeletedAt, so a point-in-time query sees exactly one of the two.
type Instance struct {
	ID                string           `json:"id" db:"id"`
	AccountID         string           `json:"account_id" db:"account_id"`
	AppID             string           `json:"app_id" db:"app_id"`
	AppName           string           `json:"app_name" db:"app_name"`
	ServiceID         string           `json:"service_id" db:"service_id"`
	ServiceName       string           `json:"service_name" db:"service_name"`
	EnvID             string           `json:"env_id" db:"env_id"`
	EnvName           string           `json:"env_name" db:"env_name"`
	InfraMappingID    string           `json:"infra_mapping_id" db:"infra_mapping_id"`
	InfraMappingKind  InfraMappingKind `json:"infra_mapping_kind" db:"infra_mapping_kind"`
	ComputeProviderID string           `json:"compute_provider_id" db:"compute_provider_id"`
	InstanceType      InstanceType     `json:"instance_type" db:"instance_type"`

	Key  InstanceKey  `json:"instance_key" db:"instance_key"`
	Info InstanceInfo `json:"instance_info" db:"instance_info"`

	// BackendServiceName is the provider-native grouping the instance
	// belongs to (ASG, ECS service, controller/release, PCF app,
	// elastigroup). Sync scoping queries filter on it.
	BackendServiceName string `json:"backend_service_name" db:"backend_service_name"`

	LastDeployedAt            *time.Time `json:"last_deployed_at,omitempty" db:"last_deployed_at"`
	LastWorkflowExecutionID   string     `json:"last_workflow_execution_id" db:"last_workflow_execution_id"`
	LastWorkflowExecutionName string     `json:"last_workflow_execution_name" db:"last_workflow_execution_name"`
	LastPipelineExecutionID   string     `json:"last_pipeline_execution_id" db:"last_pipeline_execution_id"`
	LastArtifactID            string     `json:"last_artifact_id" db:"last_artifact_id"`
	LastArtifactName          string     `json:"last_artifact_name" db:"last_artifact_name"`
	LastArtifactBuild         string     `json:"last_artifact_build" db:"last_artifact_build"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	IsDeleted bool       `json:"is_deleted" db:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}
