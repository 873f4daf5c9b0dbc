package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codedeploy"
	cdtypes "github.com/aws/aws-sdk-go-v2/service/codedeploy/types"
)

type codeDeployAPI interface {
	ListDeploymentInstances(ctx context.Context, params *codedeploy.ListDeploymentInstancesInput, optFns ...func(*codedeploy.Options)) (*codedeploy.ListDeploymentInstancesOutput, error)
}

// CodeDeployClient resolves the EC2 instances a CodeDeploy deployment
// targeted.
type CodeDeployClient struct {
	api codeDeployAPI
	ec2 *ASGClient
}

func NewCodeDeployClient(cfg aws.Config) *CodeDeployClient {
	return &CodeDeployClient{
		api: codedeploy.NewFromConfig(cfg),
		ec2: NewASGClient(cfg),
	}
}

// ListDeploymentInstances returns the running EC2 instances that belong to
// a CodeDeploy deployment. A deployment id the backend no longer knows
// yields an empty result.
func (c *CodeDeployClient) ListDeploymentInstances(ctx context.Context, deploymentID string) ([]Ec2Instance, error) {
	out, err := c.api.ListDeploymentInstances(ctx, &codedeploy.ListDeploymentInstancesInput{
		DeploymentId: aws.String(deploymentID),
	})
	if err != nil {
		var dne *cdtypes.DeploymentDoesNotExistException
		if errors.As(err, &dne) {
			return nil, nil
		}
		return nil, fmt.Errorf("list codedeploy instances for %s: %w", deploymentID, err)
	}
	if len(out.InstancesList) == 0 {
		return nil, nil
	}

	return c.ec2.DescribeRunning(ctx, out.InstancesList)
}
