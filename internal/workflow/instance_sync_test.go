package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/testsuite"

	"github.com/edvin/deploytrack/internal/activity"
)

type InstanceSyncWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *InstanceSyncWorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	registerActivities(s.env)
}

func (s *InstanceSyncWorkflowTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func (s *InstanceSyncWorkflowTestSuite) TestSuccess() {
	params := activity.SyncInstancesParams{AppID: "app1", InfraMappingID: "m1"}

	s.env.OnActivity("SyncInstances", mock.Anything, params).Return(nil)

	s.env.ExecuteWorkflow(InstanceSyncWorkflow, params)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func (s *InstanceSyncWorkflowTestSuite) TestSyncFailure() {
	params := activity.SyncInstancesParams{AppID: "app1", InfraMappingID: "m1"}

	s.env.OnActivity("SyncInstances", mock.Anything, params).
		Return(errors.New("asg not reachable"))

	s.env.ExecuteWorkflow(InstanceSyncWorkflow, params)
	s.True(s.env.IsWorkflowCompleted())
	s.Error(s.env.GetWorkflowError())
}

func TestInstanceSyncWorkflowTestSuite(t *testing.T) {
	suite.Run(t, new(InstanceSyncWorkflowTestSuite))
}

// ---------- PurgeInstancesWorkflow ----------

type PurgeInstancesWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *PurgeInstancesWorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	registerActivities(s.env)
}

func (s *PurgeInstancesWorkflowTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func (s *PurgeInstancesWorkflowTestSuite) TestSuccess() {
	s.env.OnActivity("PurgeDeletedInstances", mock.Anything).Return(int64(12), nil)

	s.env.ExecuteWorkflow(PurgeInstancesWorkflow)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func TestPurgeInstancesWorkflowTestSuite(t *testing.T) {
	suite.Run(t, new(PurgeInstancesWorkflowTestSuite))
}
