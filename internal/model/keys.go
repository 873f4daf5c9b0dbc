package model

import "fmt"

// InstanceKeyKind discriminates the per-backend identity variant of an
// instance. The key is the diff-map key against live state and the
// uniqueness constraint enforced during upsert.
type InstanceKeyKind string

const (
	KeyHost      InstanceKeyKind = "host"
	KeyContainer InstanceKeyKind = "container"
	KeyPod       InstanceKeyKind = "pod"
	KeyPCF       InstanceKeyKind = "pcf"
)

// InstanceKey is a tagged union: Kind selects which of the payload fields
// are meaningful. The struct is comparable and usable as a map key.
type InstanceKey struct {
	Kind InstanceKeyKind `json:"kind"`

	// KeyHost: HostName + InfraMappingID. EC2-backed backends (ASG,
	// CodeDeploy, Spotinst, Azure VM, Lambda versions) key by host name.
	HostName       string `json:"host_name,omitempty"`
	InfraMappingID string `json:"infra_mapping_id,omitempty"`

	// KeyContainer: ContainerID (+ Namespace for ECS-on-EKS style setups).
	ContainerID string `json:"container_id,omitempty"`

	// KeyPod: PodName + Namespace.
	PodName string `json:"pod_name,omitempty"`

	// Shared by KeyContainer and KeyPod.
	Namespace string `json:"namespace,omitempty"`

	// KeyPCF: the PCF instance id (appGUID:index).
	PCFInstanceID string `json:"pcf_instance_id,omitempty"`
}

// String returns the canonical form used as the lock key and the persisted
// diff key. Two keys are the same instance identity iff their strings match.
func (k InstanceKey) String() string {
	switch k.Kind {
	case KeyHost:
		return fmt.Sprintf("host:%s:%s", k.InfraMappingID, k.HostName)
	case KeyContainer:
		return fmt.Sprintf("container:%s:%s", k.Namespace, k.ContainerID)
	case KeyPod:
		return fmt.Sprintf("pod:%s:%s", k.Namespace, k.PodName)
	case KeyPCF:
		return fmt.Sprintf("pcf:%s", k.PCFInstanceID)
	default:
		return fmt.Sprintf("unknown:%s", k.Kind)
	}
}

// DeploymentKeyKind discriminates the fingerprint variant of a deployment.
type DeploymentKeyKind string

const (
	DeployKeyAsg        DeploymentKeyKind = "aws_asg"
	DeployKeyCodeDeploy DeploymentKeyKind = "aws_codedeploy"
	DeployKeyContainer  DeploymentKeyKind = "container"
	DeployKeyK8s        DeploymentKeyKind = "kubernetes"
	DeployKeyAzure      DeploymentKeyKind = "azure_vm"
	DeployKeyPCF        DeploymentKeyKind = "pcf"
	DeployKeySpotinst   DeploymentKeyKind = "spotinst"
	DeployKeyLambda     DeploymentKeyKind = "aws_lambda"
	DeployKeyHost       DeploymentKeyKind = "host"
)

// DeploymentKey is the deterministic fingerprint of one deployment against
// one infra mapping. It dedups summaries under redelivery and correlates
// newly observed instances back to the deployment that produced them.
type DeploymentKey struct {
	Kind DeploymentKeyKind `json:"kind"`

	// DeployKeyAsg.
	AutoScalingGroupName string `json:"asg_name,omitempty"`

	// DeployKeyCodeDeploy.
	CodeDeployDeploymentID string `json:"codedeploy_deployment_id,omitempty"`

	// DeployKeyContainer: the provider-native service/controller name, with
	// optional label selector for label-based rollouts.
	ContainerServiceName string `json:"container_service_name,omitempty"`
	LabelSelector        string `json:"label_selector,omitempty"`
	Version              string `json:"version,omitempty"`

	// DeployKeyK8s.
	ReleaseName   string `json:"release_name,omitempty"`
	ReleaseNumber int    `json:"release_number,omitempty"`

	// DeployKeyAzure.
	ScaleSetName string `json:"scale_set_name,omitempty"`

	// DeployKeyPCF.
	PCFApplicationName string `json:"pcf_application_name,omitempty"`

	// DeployKeySpotinst.
	ElastigroupID   string `json:"elastigroup_id,omitempty"`
	ElastigroupName string `json:"elastigroup_name,omitempty"`

	// DeployKeyLambda.
	FunctionName    string `json:"function_name,omitempty"`
	FunctionVersion string `json:"function_version,omitempty"`

	// DeployKeyHost.
	HostNamesDigest string `json:"host_names_digest,omitempty"`
}

// String returns the canonical fingerprint used for summary dedup and for
// the per-key save lock.
func (k DeploymentKey) String() string {
	switch k.Kind {
	case DeployKeyAsg:
		return fmt.Sprintf("asg:%s", k.AutoScalingGroupName)
	case DeployKeyCodeDeploy:
		return fmt.Sprintf("codedeploy:%s", k.CodeDeployDeploymentID)
	case DeployKeyContainer:
		if k.LabelSelector != "" {
			return fmt.Sprintf("container:%s:%s:%s", k.ContainerServiceName, k.LabelSelector, k.Version)
		}
		return fmt.Sprintf("container:%s", k.ContainerServiceName)
	case DeployKeyK8s:
		return fmt.Sprintf("k8s:%s:%d", k.ReleaseName, k.ReleaseNumber)
	case DeployKeyAzure:
		return fmt.Sprintf("azure:%s", k.ScaleSetName)
	case DeployKeyPCF:
		return fmt.Sprintf("pcf:%s", k.PCFApplicationName)
	case DeployKeySpotinst:
		return fmt.Sprintf("spotinst:%s:%s", k.ElastigroupID, k.ElastigroupName)
	case DeployKeyLambda:
		return fmt.Sprintf("lambda:%s:%s", k.FunctionName, k.FunctionVersion)
	case DeployKeyHost:
		return fmt.Sprintf("host:%s", k.HostNamesDigest)
	default:
		return fmt.Sprintf("unknown:%s", k.Kind)
	}
}
