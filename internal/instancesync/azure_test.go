package instancesync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/deploytrack/internal/model"
	"github.com/edvin/deploytrack/internal/provider"
)

type fakeAzureProvider struct {
	vms map[string][]provider.AzureVM
	err error

	listedGroups   []string
	listedPrefixes []string
}

func (f *fakeAzureProvider) ListVirtualMachines(_ context.Context, resourceGroup, namePrefix string) ([]provider.AzureVM, error) {
	f.listedGroups = append(f.listedGroups, resourceGroup)
	f.listedPrefixes = append(f.listedPrefixes, namePrefix)
	if f.err != nil {
		return nil, f.err
	}
	return f.vms[namePrefix], nil
}

func azureMapping() *model.InfraMapping {
	return &model.InfraMapping{
		ID:            "m1",
		AccountID:     "acct1",
		AppID:         "app1",
		ServiceID:     "svc1",
		EnvID:         "env1",
		Kind:          model.KindAzureVM,
		ResourceGroup: "rg1",
	}
}

func TestAzureHandler_SyncInstances_Diff(t *testing.T) {
	ctx := context.Background()
	mappings := &fakeMappingStore{mapping: azureMapping()}
	instances := &fakeInstanceStore{
		stored: []model.Instance{
			storedHostInstance("m1", "ss1", "ss1_0"),
			storedHostInstance("m1", "ss1", "ss1_1"),
		},
	}
	azure := &fakeAzureProvider{vms: map[string][]provider.AzureVM{
		"ss1": {
			{ID: "vm-1", Name: "ss1_1", ResourceGroup: "rg1"},
			{ID: "vm-2", Name: "ss1_2", ResourceGroup: "rg1"},
		},
	}}
	h := newAzureHandler(testDeps(instances, &fakeSummaryStore{}, mappings), azure)

	require.NoError(t, h.SyncInstances(ctx, "app1", "m1"))

	// ss1_0 was scaled away, ss1_2 joined the set.
	assert.Equal(t, []string{"db-ss1_0"}, instances.deletedIDs)
	require.Len(t, instances.saved, 1)
	assert.Equal(t, "host:m1:ss1_2", instances.saved[0].Key.String())
	assert.Equal(t, "vm-2", instances.saved[0].Info.VMID)
	assert.Equal(t, []string{"rg1"}, azure.listedGroups)
	assert.Equal(t, []string{"ss1"}, azure.listedPrefixes)
}

func TestAzureHandler_SyncInstances_ProviderFailureSkipsDelete(t *testing.T) {
	ctx := context.Background()
	mappings := &fakeMappingStore{mapping: azureMapping()}
	instances := &fakeInstanceStore{
		stored: []model.Instance{storedHostInstance("m1", "ss1", "ss1_0")},
	}
	azure := &fakeAzureProvider{err: errors.New("throttled")}
	h := newAzureHandler(testDeps(instances, &fakeSummaryStore{}, mappings), azure)

	err := h.SyncInstances(ctx, "app1", "m1")
	require.Error(t, err)
	assert.Empty(t, instances.deletedIDs)
	assert.Empty(t, instances.saved)
}
