package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/spotinst/spotinst-sdk-go/service/elastigroup"
	elastigroupaws "github.com/spotinst/spotinst-sdk-go/service/elastigroup/providers/aws"
	"github.com/spotinst/spotinst-sdk-go/spotinst"
	"github.com/spotinst/spotinst-sdk-go/spotinst/client"
	"github.com/spotinst/spotinst-sdk-go/spotinst/credentials"
	"github.com/spotinst/spotinst-sdk-go/spotinst/session"
)

// ElastigroupInstance is the provider descriptor for one active instance of
// a Spotinst elastigroup.
type ElastigroupInstance struct {
	InstanceID string
	PrivateIP  string
	Status     string
}

type elastigroupAPI interface {
	Status(ctx context.Context, input *elastigroupaws.StatusGroupInput) (*elastigroupaws.StatusGroupOutput, error)
}

// SpotinstClient lists the active EC2 instances of elastigroups.
type SpotinstClient struct {
	api elastigroupAPI
}

func NewSpotinstClient(token, account string) *SpotinstClient {
	cfg := spotinst.DefaultConfig()
	if token != "" {
		cfg.WithCredentials(credentials.NewStaticCredentials(token, account))
	}
	sess := session.New(cfg)
	return &SpotinstClient{api: elastigroup.New(sess).CloudProviderAWS()}
}

func NewSpotinstClientWithAPI(api elastigroupAPI) *SpotinstClient {
	return &SpotinstClient{api: api}
}

// ListGroupInstances returns the active instances of an elastigroup. A group
// id the backend does not know yields ErrNotFound.
func (c *SpotinstClient) ListGroupInstances(ctx context.Context, groupID string) ([]ElastigroupInstance, error) {
	out, err := c.api.Status(ctx, &elastigroupaws.StatusGroupInput{
		GroupID: spotinst.String(groupID),
	})
	if err != nil {
		var errs client.Errors
		if errors.As(err, &errs) {
			for _, e := range errs {
				if e.Code == "GROUP_DOESNT_EXIST" || e.Code == "RESOURCE_DOES_NOT_EXIST" {
					return nil, fmt.Errorf("elastigroup %s: %w", groupID, ErrNotFound)
				}
			}
		}
		return nil, fmt.Errorf("elastigroup %s status: %w", groupID, err)
	}

	var instances []ElastigroupInstance
	for _, inst := range out.Instances {
		id := spotinst.StringValue(inst.ID)
		if id == "" {
			continue
		}
		instances = append(instances, ElastigroupInstance{
			InstanceID: id,
			PrivateIP:  spotinst.StringValue(inst.PrivateIP),
			Status:     spotinst.StringValue(inst.Status),
		})
	}
	return instances, nil
}
