package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v6"
)

// AzureVM is the provider descriptor for one Azure virtual machine.
type AzureVM struct {
	ID            string
	Name          string
	ResourceGroup string
	Location      string
}

// armComputeAPI is the slice of the armcompute client the provider needs,
// so tests can substitute a fake pager source.
type armComputeAPI interface {
	NewListPager(resourceGroupName string, options *armcompute.VirtualMachinesClientListOptions) *runtime.Pager[armcompute.VirtualMachinesClientListResponse]
}

// AzureClient lists the virtual machines of a resource group.
type AzureClient struct {
	api armComputeAPI
}

// NewAzureClient builds a client for a subscription using the default Azure
// credential chain.
func NewAzureClient(subscriptionID string) (*AzureClient, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("azure credentials: %w", err)
	}
	return NewAzureClientWithCredential(subscriptionID, cred)
}

func NewAzureClientWithCredential(subscriptionID string, cred azcore.TokenCredential) (*AzureClient, error) {
	api, err := armcompute.NewVirtualMachinesClient(subscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("azure vm client: %w", err)
	}
	return &AzureClient{api: api}, nil
}

// ListVirtualMachines returns the VMs of a resource group, optionally
// filtered to names carrying the given prefix (the scale-set name for VMSS
// style rollouts). An unknown resource group surfaces from the pager as an
// error; callers treat it as transient.
func (c *AzureClient) ListVirtualMachines(ctx context.Context, resourceGroup, namePrefix string) ([]AzureVM, error) {
	var vms []AzureVM

	pager := c.api.NewListPager(resourceGroup, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list vms in %s: %w", resourceGroup, err)
		}
		for _, vm := range page.Value {
			if vm == nil || vm.Name == nil {
				continue
			}
			if namePrefix != "" && !strings.HasPrefix(*vm.Name, namePrefix) {
				continue
			}
			v := AzureVM{Name: *vm.Name, ResourceGroup: resourceGroup}
			if vm.ID != nil {
				v.ID = *vm.ID
			}
			if vm.Location != nil {
				v.Location = *vm.Location
			}
			vms = append(vms, v)
		}
	}
	return vms, nil
}
