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

type fakePCFProvider struct {
	apps map[string][]provider.PCFInstance
	err  error

	listedApps []string
}

func (f *fakePCFProvider) ListAppInstances(_ context.Context, appName string) ([]provider.PCFInstance, error) {
	f.listedApps = append(f.listedApps, appName)
	if f.err != nil {
		return nil, f.err
	}
	return f.apps[appName], nil
}

func pcfMapping() *model.InfraMapping {
	return &model.InfraMapping{
		ID:           "m1",
		AccountID:    "acct1",
		AppID:        "app1",
		ServiceID:    "svc1",
		EnvID:        "env1",
		Kind:         model.KindPCF,
		Organization: "org1",
		Space:        "dev",
	}
}

func storedPCFInstance(mappingID, appName, instanceID string) model.Instance {
	return model.Instance{
		ID:                 "db-" + instanceID,
		AppID:              "app1",
		InfraMappingID:     mappingID,
		BackendServiceName: appName,
		Key: model.InstanceKey{
			Kind:          model.KeyPCF,
			PCFInstanceID: instanceID,
		},
		Info: model.InstanceInfo{
			Kind:               model.InstancePCF,
			PCFApplicationName: appName,
		},
	}
}

func pcfRollbackSummary(appName string) model.DeploymentSummary {
	return model.DeploymentSummary{
		ID:                  "sum1",
		AppID:               "app1",
		InfraMappingID:      "m1",
		WorkflowExecutionID: "wf-rb",
		ArtifactBuild:       "41",
		DeployedAt:          time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC),
		Key:                 model.DeploymentKey{Kind: model.DeployKeyPCF, PCFApplicationName: appName},
	}
}

func TestPCFHandler_HandleNewDeployment_OnDemandRollbackRestamps(t *testing.T) {
	ctx := context.Background()
	mappings := &fakeMappingStore{mapping: pcfMapping()}
	instances := &fakeInstanceStore{
		stored: []model.Instance{
			storedPCFInstance("m1", "orders", "guid-1:0"),
			storedPCFInstance("m1", "orders", "guid-1:1"),
		},
	}
	pcf := &fakePCFProvider{apps: map[string][]provider.PCFInstance{
		"orders": {
			{AppGUID: "guid-1", AppName: "orders", Index: "0", State: "RUNNING"},
			{AppGUID: "guid-1", AppName: "orders", Index: "2", State: "RUNNING"},
		},
	}}
	h := newPCFHandler(testDeps(instances, &fakeSummaryStore{}, mappings), pcf)

	summary := pcfRollbackSummary("orders")
	require.NoError(t, h.HandleNewDeployment(ctx, []model.DeploymentSummary{summary},
		true, model.OnDemandRollbackInfo{OnDemandRollback: true}))

	// Index 0 survived the rollback: restamped in place, never recycled.
	assert.Equal(t, []string{"db-guid-1:0"}, instances.attributed)
	// Index 1 is gone, index 2 is new.
	assert.Equal(t, []string{"db-guid-1:1"}, instances.deletedIDs)
	require.Len(t, instances.saved, 1)
	assert.Equal(t, "guid-1:2", instances.saved[0].Key.PCFInstanceID)
	assert.Equal(t, "wf-rb", instances.saved[0].LastWorkflowExecutionID)
}

func TestPCFHandler_HandleNewDeployment_RollbackAppGoneIsNoop(t *testing.T) {
	ctx := context.Background()
	mappings := &fakeMappingStore{mapping: pcfMapping()}
	instances := &fakeInstanceStore{
		stored: []model.Instance{storedPCFInstance("m1", "orders", "guid-1:0")},
	}
	pcf := &fakePCFProvider{err: provider.ErrNotFound}
	h := newPCFHandler(testDeps(instances, &fakeSummaryStore{}, mappings), pcf)

	summary := pcfRollbackSummary("orders")
	require.NoError(t, h.HandleNewDeployment(ctx, []model.DeploymentSummary{summary},
		true, model.OnDemandRollbackInfo{OnDemandRollback: true}))

	assert.Empty(t, instances.attributed)
	assert.Empty(t, instances.deletedIDs)
	assert.Empty(t, instances.saved)
}

func TestPCFHandler_SyncInstances_AppNotVisibleSkipsScope(t *testing.T) {
	ctx := context.Background()
	mappings := &fakeMappingStore{mapping: pcfMapping()}
	instances := &fakeInstanceStore{
		stored: []model.Instance{storedPCFInstance("m1", "orders", "guid-1:0")},
	}
	pcf := &fakePCFProvider{err: provider.ErrNotFound}
	h := newPCFHandler(testDeps(instances, &fakeSummaryStore{}, mappings), pcf)

	require.NoError(t, h.SyncInstances(ctx, "app1", "m1"))
	assert.Empty(t, instances.deletedIDs)
	assert.Empty(t, instances.saved)
}
