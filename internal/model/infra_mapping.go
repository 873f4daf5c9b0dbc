package model

import "time"

// InfraMappingKind discriminates the infrastructure backend a mapping
// targets. It is a closed set; the handler factory rejects anything else.
type InfraMappingKind string

const (
	KindAwsSSH        InfraMappingKind = "aws_ssh"
	KindAwsAmi        InfraMappingKind = "aws_ami"
	KindAwsCodeDeploy InfraMappingKind = "aws_codedeploy"
	KindAwsLambda     InfraMappingKind = "aws_lambda"
	KindECS           InfraMappingKind = "ecs"
	KindKubernetes    InfraMappingKind = "kubernetes"
	KindAzureVM       InfraMappingKind = "azure_vm"
	KindPCF           InfraMappingKind = "pcf"

	// Physical data-center kinds are valid configuration but are tracked by
	// a different subsystem; the factory resolves them to no handler.
	KindPhysicalSSH   InfraMappingKind = "physical_ssh"
	KindPhysicalWinRM InfraMappingKind = "physical_winrm"
)

// DeploymentType further qualifies a kind. Only AMI mappings use it today:
// the same mapping kind dispatches to a different handler when the rollout
// is managed by Spotinst instead of a native auto-scaling group.
type DeploymentType string

const (
	DeploymentAwsAsg   DeploymentType = "aws_asg"
	DeploymentSpotinst DeploymentType = "spotinst"
)

// InfraMapping binds a service to a target infrastructure scope
// (e.g. "service X on ECS cluster Y").
type InfraMapping struct {
	ID                string           `json:"id" db:"id"`
	AccountID         string           `json:"account_id" db:"account_id"`
	AppID             string           `json:"app_id" db:"app_id"`
	ServiceID         string           `json:"service_id" db:"service_id"`
	ServiceName       string           `json:"service_name" db:"service_name"`
	EnvID             string           `json:"env_id" db:"env_id"`
	EnvName           string           `json:"env_name" db:"env_name"`
	Kind              InfraMappingKind `json:"kind" db:"kind"`
	DeploymentType    DeploymentType   `json:"deployment_type,omitempty" db:"deployment_type"`
	ComputeProviderID string           `json:"compute_provider_id" db:"compute_provider_id"`

	// Backend scope. Which fields are meaningful depends on Kind.
	Region        string   `json:"region,omitempty" db:"region"`
	ClusterName   string   `json:"cluster_name,omitempty" db:"cluster_name"`
	Namespace     string   `json:"namespace,omitempty" db:"namespace"`
	ResourceGroup string   `json:"resource_group,omitempty" db:"resource_group"`
	Organization  string   `json:"organization,omitempty" db:"organization"`
	Space         string   `json:"space,omitempty" db:"space"`
	HostNames     []string `json:"host_names,omitempty" db:"host_names"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
