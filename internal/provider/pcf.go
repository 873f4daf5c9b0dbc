package provider

import (
	"context"
	"fmt"
	"strconv"

	cfclient "github.com/cloudfoundry/go-cfclient/v3/client"
	cfconfig "github.com/cloudfoundry/go-cfclient/v3/config"
)

// PCFInstance is the provider descriptor for one running application
// instance. The instance id is "<appGUID>:<index>".
type PCFInstance struct {
	AppGUID string
	AppName string
	Index   string
	State   string
}

// InstanceID returns the provider-native identity of the instance.
func (i PCFInstance) InstanceID() string {
	return i.AppGUID + ":" + i.Index
}

// PCFClient lists the running instances of Cloud Foundry applications.
type PCFClient struct {
	cf *cfclient.Client
}

func NewPCFClient(apiURL, clientID, clientSecret string) (*PCFClient, error) {
	cfg, err := cfconfig.New(apiURL, cfconfig.ClientCredentials(clientID, clientSecret))
	if err != nil {
		return nil, fmt.Errorf("cf config: %w", err)
	}
	cf, err := cfclient.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("cf client: %w", err)
	}
	return &PCFClient{cf: cf}, nil
}

// ListAppInstances returns the running instances of an application by name.
// An application the platform does not know yields ErrNotFound; the caller
// treats that as "not yet visible" and must not delete on it.
func (c *PCFClient) ListAppInstances(ctx context.Context, appName string) ([]PCFInstance, error) {
	opts := cfclient.NewAppListOptions()
	opts.Names.EqualTo(appName)

	apps, err := c.cf.Applications.ListAll(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list cf apps named %s: %w", appName, err)
	}
	if len(apps) == 0 {
		return nil, fmt.Errorf("app %s: %w", appName, ErrNotFound)
	}
	app := apps[0]

	procs, err := c.cf.Processes.ListForAppAll(ctx, app.GUID, nil)
	if err != nil {
		return nil, fmt.Errorf("list processes for app %s: %w", appName, err)
	}

	var instances []PCFInstance
	for _, proc := range procs {
		stats, err := c.cf.Processes.GetStats(ctx, proc.GUID)
		if err != nil {
			return nil, fmt.Errorf("process stats for app %s: %w", appName, err)
		}
		for _, st := range stats.Stats {
			if st.State != "RUNNING" {
				continue
			}
			instances = append(instances, PCFInstance{
				AppGUID: app.GUID,
				AppName: app.Name,
				Index:   strconv.Itoa(st.Index),
				State:   st.State,
			})
		}
	}
	return instances, nil
}
