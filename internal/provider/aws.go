package provider

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// Ec2Instance is the provider descriptor for one running EC2 instance.
type Ec2Instance struct {
	InstanceID     string
	PrivateDNSName string
	PublicDNSName  string
	State          string
}

// NewAWSConfig resolves AWS credentials for a region. An explicit key pair
// takes precedence over the default chain.
func NewAWSConfig(ctx context.Context, region, accessKeyID, secretAccessKey string) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

// ASGClient lists the live EC2 instances of auto-scaling groups.
type ASGClient struct {
	asg asgAPI
	ec2 ec2API
}

type asgAPI interface {
	DescribeAutoScalingGroups(ctx context.Context, params *autoscaling.DescribeAutoScalingGroupsInput, optFns ...func(*autoscaling.Options)) (*autoscaling.DescribeAutoScalingGroupsOutput, error)
}

type ec2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}

func NewASGClient(cfg aws.Config) *ASGClient {
	return &ASGClient{
		asg: autoscaling.NewFromConfig(cfg),
		ec2: ec2.NewFromConfig(cfg),
	}
}

// ListGroupInstances returns the running EC2 instances of an auto-scaling
// group. A group the backend does not know yields an empty result, not an
// error.
func (c *ASGClient) ListGroupInstances(ctx context.Context, asgName string) ([]Ec2Instance, error) {
	out, err := c.asg.DescribeAutoScalingGroups(ctx, &autoscaling.DescribeAutoScalingGroupsInput{
		AutoScalingGroupNames: []string{asgName},
	})
	if err != nil {
		return nil, fmt.Errorf("describe asg %s: %w", asgName, err)
	}
	if len(out.AutoScalingGroups) == 0 {
		return nil, nil
	}

	var ids []string
	for _, inst := range out.AutoScalingGroups[0].Instances {
		if inst.LifecycleState == "InService" || inst.LifecycleState == "Pending" {
			ids = append(ids, aws.ToString(inst.InstanceId))
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	return c.DescribeRunning(ctx, ids)
}

// DescribeRunning resolves EC2 instance ids to descriptors, keeping only
// instances still in the running state.
func (c *ASGClient) DescribeRunning(ctx context.Context, ids []string) ([]Ec2Instance, error) {
	out, err := c.ec2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: ids,
		Filters: []ec2types.Filter{
			{Name: aws.String("instance-state-name"), Values: []string{"running"}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("describe ec2 instances: %w", err)
	}

	var instances []Ec2Instance
	for _, res := range out.Reservations {
		for _, inst := range res.Instances {
			instances = append(instances, Ec2Instance{
				InstanceID:     aws.ToString(inst.InstanceId),
				PrivateDNSName: aws.ToString(inst.PrivateDnsName),
				PublicDNSName:  aws.ToString(inst.PublicDnsName),
				State:          string(inst.State.Name),
			})
		}
	}
	return instances, nil
}
