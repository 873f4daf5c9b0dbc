package model

import "time"

// PhaseStepKind identifies the kind of workflow step a summary came from.
// The orchestrator only processes steps on an explicit allow-list; anything
// else is ignored as unrelated to deployment.
type PhaseStepKind string

const (
	StepDeployService   PhaseStepKind = "deploy_service"
	StepAsgRollout      PhaseStepKind = "asg_rollout"
	StepCodeDeploy      PhaseStepKind = "codedeploy_deploy"
	StepEcsServiceSetup PhaseStepKind = "ecs_service_setup"
	StepK8sApply        PhaseStepKind = "k8s_apply"
	StepHelmDeploy      PhaseStepKind = "helm_deploy"
	StepAzureVMDeploy   PhaseStepKind = "azure_vm_deploy"
	StepPCFDeploy       PhaseStepKind = "pcf_deploy"
	StepSpotinstDeploy  PhaseStepKind = "spotinst_deploy"
	StepLambdaDeploy    PhaseStepKind = "lambda_deploy"
)

// PhaseStepSummary is the summary data one executed step left behind.
// Handlers pick out the steps they own and ignore the rest; a phase whose
// summaries lack the expected step kind yields no deployment infos, which
// is the normal outcome for rollback-without-execution.
type PhaseStepSummary struct {
	Kind PhaseStepKind `json:"kind"`

	// ASG rollouts: the groups the step touched.
	AutoScalingGroupNames []string `json:"asg_names,omitempty"`

	// CodeDeploy.
	CodeDeployDeploymentID string `json:"codedeploy_deployment_id,omitempty"`
	CodeDeployGroupName    string `json:"codedeploy_group_name,omitempty"`

	// ECS / named-controller container deploys.
	ClusterName           string            `json:"cluster_name,omitempty"`
	ContainerServiceNames []string          `json:"container_service_names,omitempty"`
	Namespace             string            `json:"namespace,omitempty"`
	Labels                map[string]string `json:"labels,omitempty"`
	Version               string            `json:"version,omitempty"`

	// Kubernetes releases.
	ReleaseName   string   `json:"release_name,omitempty"`
	ReleaseNumber int      `json:"release_number,omitempty"`
	Namespaces    []string `json:"namespaces,omitempty"`

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

// PhaseCompletion is the signal that a deployment phase finished executing.
type PhaseCompletion struct {
	AccountID             string               `json:"account_id"`
	AppID                 string               `json:"app_id"`
	InfraMappingID        string               `json:"infra_mapping_id"`
	WorkflowExecutionID   string               `json:"workflow_execution_id"`
	WorkflowExecutionName string               `json:"workflow_execution_name"`
	PipelineExecutionID   string               `json:"pipeline_execution_id,omitempty"`
	StateExecutionID      string               `json:"state_execution_id,omitempty"`
	ArtifactID            string               `json:"artifact_id,omitempty"`
	ArtifactName          string               `json:"artifact_name,omitempty"`
	ArtifactBuild         string               `json:"artifact_build,omitempty"`
	Rollback              bool                 `json:"rollback"`
	OnDemandRollback      OnDemandRollbackInfo `json:"on_demand_rollback_info"`
	Steps                 []PhaseStepSummary   `json:"steps"`
	DeployedAt            time.Time            `json:"deployed_at"`
}
