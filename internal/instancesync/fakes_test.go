package instancesync

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/deploytrack/internal/model"
	"github.com/edvin/deploytrack/internal/platform"
	"github.com/edvin/deploytrack/internal/provider"
)

// fakeInstanceStore is an in-memory InstanceStore that records mutations.
type fakeInstanceStore struct {
	stored []model.Instance
	newest *model.Instance

	saved        []*model.Instance
	deletedIDs   []string
	attributed   []string
	purgedCounts map[string]int64

	listErr error
	saveErr error
}

func (f *fakeInstanceStore) SaveOrUpdate(_ context.Context, inst *model.Instance) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	if inst.ID == "" {
		inst.ID = platform.NewID()
	}
	f.saved = append(f.saved, inst)
	return nil
}

func (f *fakeInstanceStore) Delete(_ context.Context, ids []string) error {
	f.deletedIDs = append(f.deletedIDs, ids...)
	return nil
}

func (f *fakeInstanceStore) ListByInfraMapping(_ context.Context, _, infraMappingID string) ([]model.Instance, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.Instance
	for _, inst := range f.stored {
		if inst.InfraMappingID == infraMappingID {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (f *fakeInstanceStore) ListByBackendService(_ context.Context, infraMappingID, backendServiceName string) ([]model.Instance, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.Instance
	for _, inst := range f.stored {
		if inst.InfraMappingID == infraMappingID && inst.BackendServiceName == backendServiceName {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (f *fakeInstanceStore) Newest(_ context.Context, _ string) (*model.Instance, error) {
	return f.newest, nil
}

func (f *fakeInstanceStore) UpdateAttribution(_ context.Context, id string, _ *model.DeploymentSummary) error {
	f.attributed = append(f.attributed, id)
	return nil
}

func (f *fakeInstanceStore) DeleteByInfraMapping(_ context.Context, infraMappingID string) (int64, error) {
	if f.purgedCounts == nil {
		f.purgedCounts = map[string]int64{}
	}
	n := int64(0)
	for _, inst := range f.stored {
		if inst.InfraMappingID == infraMappingID {
			n++
		}
	}
	f.purgedCounts[infraMappingID] = n
	return n, nil
}

type fakeSummaryStore struct {
	existing map[string]model.DeploymentSummary
	last     *model.DeploymentSummary

	saved []model.DeploymentSummary
}

func (f *fakeSummaryStore) SaveIfAbsent(_ context.Context, summary *model.DeploymentSummary) (bool, error) {
	if prior, ok := f.existing[summary.Key.String()]; ok {
		*summary = prior
		return false, nil
	}
	if f.existing == nil {
		f.existing = map[string]model.DeploymentSummary{}
	}
	f.existing[summary.Key.String()] = *summary
	f.saved = append(f.saved, *summary)
	return true, nil
}

func (f *fakeSummaryStore) Last(_ context.Context, _ string) (*model.DeploymentSummary, error) {
	return f.last, nil
}

type fakeMappingStore struct {
	mapping  *model.InfraMapping
	err      error
	getCalls int
}

func (f *fakeMappingStore) GetByID(_ context.Context, _ string) (*model.InfraMapping, error) {
	f.getCalls++
	return f.mapping, f.err
}

type fakeQueue struct {
	published []model.DeploymentEvent
	err       error
}

func (f *fakeQueue) Publish(_ context.Context, event model.DeploymentEvent) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, event)
	return nil
}

type fakeLocker struct {
	acquireErr  error
	tryAcquired bool

	acquiredKeys []string
	triedKeys    []string
}

func (f *fakeLocker) Acquire(_ context.Context, key string, _, _ time.Duration) (func(), error) {
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	f.acquiredKeys = append(f.acquiredKeys, key)
	return func() {}, nil
}

func (f *fakeLocker) TryAcquire(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	f.triedKeys = append(f.triedKeys, key)
	if !f.tryAcquired {
		return nil, false, nil
	}
	return func() {}, true, nil
}

type fakeStatusStore struct {
	status *model.SyncStatus

	successes int
	failures  []string
	deleted   bool
}

func (f *fakeStatusStore) Get(_ context.Context, _, _ string) (*model.SyncStatus, error) {
	return f.status, nil
}

func (f *fakeStatusStore) UpdateSuccess(_ context.Context, _ *model.InfraMapping, _ time.Time) error {
	f.successes++
	return nil
}

func (f *fakeStatusStore) UpdateFailure(_ context.Context, _ *model.InfraMapping, reason string, _ time.Time) error {
	f.failures = append(f.failures, reason)
	return nil
}

func (f *fakeStatusStore) Delete(_ context.Context, _, _ string) error {
	f.deleted = true
	return nil
}

type fakeTaskRegistry struct {
	ensured      []string
	deletedTasks []string
}

func (f *fakeTaskRegistry) EnsureTask(_ context.Context, mapping *model.InfraMapping) (string, error) {
	f.ensured = append(f.ensured, mapping.ID)
	return "task-" + mapping.ID, nil
}

func (f *fakeTaskRegistry) DeleteTasks(_ context.Context, _, infraMappingID string) error {
	f.deletedTasks = append(f.deletedTasks, infraMappingID)
	return nil
}

type fakeAsgProvider struct {
	groups map[string][]provider.Ec2Instance
	err    error

	listedGroups []string
}

func (f *fakeAsgProvider) ListGroupInstances(_ context.Context, asgName string) ([]provider.Ec2Instance, error) {
	f.listedGroups = append(f.listedGroups, asgName)
	if f.err != nil {
		return nil, f.err
	}
	return f.groups[asgName], nil
}

func testDeps(instances *fakeInstanceStore, summaries *fakeSummaryStore, mappings *fakeMappingStore) Deps {
	return Deps{
		Instances: instances,
		Summaries: summaries,
		Mappings:  mappings,
		Logger:    zerolog.Nop(),
	}
}

func asgMapping() *model.InfraMapping {
	return &model.InfraMapping{
		ID:        "m1",
		AccountID: "acct1",
		AppID:     "app1",
		ServiceID: "svc1",
		EnvID:     "env1",
		Kind:      model.KindAwsAmi,
	}
}

func storedHostInstance(mappingID, asgName, hostName string) model.Instance {
	return model.Instance{
		ID:                 "db-" + hostName,
		AppID:              "app1",
		InfraMappingID:     mappingID,
		BackendServiceName: asgName,
		Key: model.InstanceKey{
			Kind:           model.KeyHost,
			HostName:       hostName,
			InfraMappingID: mappingID,
		},
	}
}
