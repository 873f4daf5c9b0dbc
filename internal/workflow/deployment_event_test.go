package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/testsuite"

	"github.com/edvin/deploytrack/internal/model"
)

type DeploymentEventWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *DeploymentEventWorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	registerActivities(s.env)
}

func (s *DeploymentEventWorkflowTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func (s *DeploymentEventWorkflowTestSuite) TestSuccess() {
	event := model.DeploymentEvent{
		AccountID:      "acct1",
		AppID:          "app1",
		InfraMappingID: "m1",
		Summaries: []model.DeploymentSummary{{
			ID:             "sum1",
			InfraMappingID: "m1",
			Key:            model.DeploymentKey{Kind: model.DeployKeyAsg, AutoScalingGroupName: "g1"},
		}},
	}

	s.env.OnActivity("HandleDeploymentEvent", mock.Anything, event).Return(nil)

	s.env.ExecuteWorkflow(DeploymentEventWorkflow, event)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func (s *DeploymentEventWorkflowTestSuite) TestActivityFailure() {
	event := model.DeploymentEvent{InfraMappingID: "m1"}

	s.env.OnActivity("HandleDeploymentEvent", mock.Anything, event).
		Return(errors.New("temporal is down"))

	s.env.ExecuteWorkflow(DeploymentEventWorkflow, event)
	s.True(s.env.IsWorkflowCompleted())
	s.Error(s.env.GetWorkflowError())
}

func TestDeploymentEventWorkflowTestSuite(t *testing.T) {
	suite.Run(t, new(DeploymentEventWorkflowTestSuite))
}
