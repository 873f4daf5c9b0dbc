package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
)

// EcsTask is the provider descriptor for one running ECS task.
type EcsTask struct {
	TaskARN     string
	ClusterName string
	ServiceName string
	LastStatus  string
}

type ecsAPI interface {
	ListTasks(ctx context.Context, params *ecs.ListTasksInput, optFns ...func(*ecs.Options)) (*ecs.ListTasksOutput, error)
	DescribeTasks(ctx context.Context, params *ecs.DescribeTasksInput, optFns ...func(*ecs.Options)) (*ecs.DescribeTasksOutput, error)
}

// ECSClient lists the running tasks of ECS services.
type ECSClient struct {
	api ecsAPI
}

func NewECSClient(cfg aws.Config) *ECSClient {
	return &ECSClient{api: ecs.NewFromConfig(cfg)}
}

// ListServiceTasks returns the running tasks of one ECS service. A service
// or cluster the backend no longer knows yields an empty result.
func (c *ECSClient) ListServiceTasks(ctx context.Context, cluster, serviceName string) ([]EcsTask, error) {
	list, err := c.api.ListTasks(ctx, &ecs.ListTasksInput{
		Cluster:       aws.String(cluster),
		ServiceName:   aws.String(serviceName),
		DesiredStatus: ecstypes.DesiredStatusRunning,
	})
	if err != nil {
		var snf *ecstypes.ServiceNotFoundException
		var cnf *ecstypes.ClusterNotFoundException
		if errors.As(err, &snf) || errors.As(err, &cnf) {
			return nil, nil
		}
		return nil, fmt.Errorf("list tasks for service %s: %w", serviceName, err)
	}
	if len(list.TaskArns) == 0 {
		return nil, nil
	}

	out, err := c.api.DescribeTasks(ctx, &ecs.DescribeTasksInput{
		Cluster: aws.String(cluster),
		Tasks:   list.TaskArns,
	})
	if err != nil {
		return nil, fmt.Errorf("describe tasks for service %s: %w", serviceName, err)
	}

	var tasks []EcsTask
	for _, t := range out.Tasks {
		if aws.ToString(t.LastStatus) != "RUNNING" {
			continue
		}
		tasks = append(tasks, EcsTask{
			TaskARN:     aws.ToString(t.TaskArn),
			ClusterName: cluster,
			ServiceName: serviceName,
			LastStatus:  aws.ToString(t.LastStatus),
		})
	}
	return tasks, nil
}
