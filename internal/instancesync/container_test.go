package instancesync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/deploytrack/internal/model"
	"github.com/edvin/deploytrack/internal/provider"
)

type fakeEcsProvider struct {
	tasks map[string][]provider.EcsTask
	err   error
}

func (f *fakeEcsProvider) ListServiceTasks(_ context.Context, _, serviceName string) ([]provider.EcsTask, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tasks[serviceName], nil
}

type fakeK8sProvider struct {
	pods map[string][]provider.Pod
	err  error

	selectors []string
}

func (f *fakeK8sProvider) ListPods(_ context.Context, _, selector string) ([]provider.Pod, error) {
	f.selectors = append(f.selectors, selector)
	if f.err != nil {
		return nil, f.err
	}
	return f.pods[selector], nil
}

func ecsMapping() *model.InfraMapping {
	return &model.InfraMapping{
		ID:          "m1",
		AccountID:   "acct1",
		AppID:       "app1",
		Kind:        model.KindECS,
		ClusterName: "prod-cluster",
	}
}

func k8sMapping() *model.InfraMapping {
	return &model.InfraMapping{
		ID:        "m1",
		AccountID: "acct1",
		AppID:     "app1",
		Kind:      model.KindKubernetes,
		Namespace: "prod",
	}
}

func storedTaskInstance(mappingID, serviceName, taskID string) model.Instance {
	return model.Instance{
		ID:                 "db-" + taskID,
		AppID:              "app1",
		InfraMappingID:     mappingID,
		BackendServiceName: serviceName,
		Key:                model.InstanceKey{Kind: model.KeyContainer, ContainerID: taskID},
		Info:               model.InstanceInfo{Kind: model.InstanceContainer, ServiceName: serviceName},
	}
}

func TestContainerHandler_SyncInstances_EcsDiff(t *testing.T) {
	ctx := context.Background()
	mappings := &fakeMappingStore{mapping: ecsMapping()}
	instances := &fakeInstanceStore{
		stored: []model.Instance{
			storedTaskInstance("m1", "orders", "task-1"),
			storedTaskInstance("m1", "orders", "task-2"),
		},
	}
	ecs := &fakeEcsProvider{tasks: map[string][]provider.EcsTask{
		"orders": {
			{TaskARN: "arn:aws:ecs:task/task-2", ClusterName: "prod-cluster", ServiceName: "orders", LastStatus: "RUNNING"},
			{TaskARN: "arn:aws:ecs:task/task-3", ClusterName: "prod-cluster", ServiceName: "orders", LastStatus: "RUNNING"},
		},
	}}
	h := newContainerHandler(testDeps(instances, &fakeSummaryStore{}, mappings), ecs, nil)

	require.NoError(t, h.SyncInstances(ctx, "app1", "m1"))

	assert.Equal(t, []string{"db-task-1"}, instances.deletedIDs)
	require.Len(t, instances.saved, 1)
	assert.Equal(t, "container::task-3", instances.saved[0].Key.String())
	assert.Equal(t, "arn:aws:ecs:task/task-3", instances.saved[0].Info.TaskARN)
}

func TestContainerHandler_HandleNewDeployment_K8sRelease(t *testing.T) {
	ctx := context.Background()
	mappings := &fakeMappingStore{mapping: k8sMapping()}
	instances := &fakeInstanceStore{}
	k8s := &fakeK8sProvider{pods: map[string][]provider.Pod{
		provider.ReleaseNameLabel + "=orders": {
			{Name: "orders-0", Namespace: "prod", ReleaseName: "orders", Image: "orders:7", IP: "10.0.0.5", Phase: "Running"},
			{Name: "orders-1", Namespace: "prod", ReleaseName: "orders", Image: "orders:7", IP: "10.0.0.6", Phase: "Running"},
		},
	}}
	h := newContainerHandler(testDeps(instances, &fakeSummaryStore{}, mappings), nil, k8s)

	summary := model.DeploymentSummary{
		ID:                  "sum1",
		InfraMappingID:      "m1",
		WorkflowExecutionID: "wf-3",
		DeployedAt:          time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		Info:                model.DeploymentInfo{Kind: model.DeployKeyK8s, ReleaseName: "orders", ReleaseNumber: 7, Namespaces: []string{"prod"}},
		Key:                 model.DeploymentKey{Kind: model.DeployKeyK8s, ReleaseName: "orders", ReleaseNumber: 7},
	}
	require.NoError(t, h.HandleNewDeployment(ctx, []model.DeploymentSummary{summary}, false, model.OnDemandRollbackInfo{}))

	require.Len(t, instances.saved, 2)
	for _, saved := range instances.saved {
		assert.Equal(t, model.InstancePod, saved.InstanceType)
		assert.Equal(t, "orders", saved.BackendServiceName)
		assert.Equal(t, "wf-3", saved.LastWorkflowExecutionID)
	}
}

func TestContainerHandler_GetDeploymentInfo_LabelRollout(t *testing.T) {
	h := newContainerHandler(testDeps(&fakeInstanceStore{}, &fakeSummaryStore{}, &fakeMappingStore{}), nil, nil)

	phase := &model.PhaseCompletion{
		Steps: []model.PhaseStepSummary{{
			Kind:        model.StepEcsServiceSetup,
			ClusterName: "prod-cluster",
			Namespace:   "prod",
			Labels:      map[string]string{"release": "r7"},
			Version:     "7",
		}},
	}
	infos, err := h.GetDeploymentInfo(phase, k8sMapping())
	require.NoError(t, err)
	require.Len(t, infos, 1)

	key, err := h.GenerateDeploymentKey(infos[0])
	require.NoError(t, err)
	assert.Equal(t, "container::release=r7:7", key.String())
}
