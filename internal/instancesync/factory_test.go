package instancesync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/deploytrack/internal/model"
)

func TestFactory_HandlerFor(t *testing.T) {
	factory := NewFactory(testDeps(&fakeInstanceStore{}, &fakeSummaryStore{}, &fakeMappingStore{}), Providers{})

	tests := []struct {
		name    string
		mapping model.InfraMapping
		want    any
	}{
		{"ami resolves to asg", model.InfraMapping{Kind: model.KindAwsAmi}, &asgHandler{}},
		{"ami with spotinst deployment", model.InfraMapping{Kind: model.KindAwsAmi, DeploymentType: model.DeploymentSpotinst}, &spotinstHandler{}},
		{"codedeploy", model.InfraMapping{Kind: model.KindAwsCodeDeploy}, &codeDeployHandler{}},
		{"ecs", model.InfraMapping{Kind: model.KindECS}, &containerHandler{}},
		{"kubernetes", model.InfraMapping{Kind: model.KindKubernetes}, &containerHandler{}},
		{"azure vm", model.InfraMapping{Kind: model.KindAzureVM}, &azureHandler{}},
		{"pcf", model.InfraMapping{Kind: model.KindPCF}, &pcfHandler{}},
		{"lambda", model.InfraMapping{Kind: model.KindAwsLambda}, &lambdaHandler{}},
		{"aws ssh", model.InfraMapping{Kind: model.KindAwsSSH}, &hostHandler{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := factory.HandlerFor(&tt.mapping)
			require.NoError(t, err)
			assert.IsType(t, tt.want, h)
		})
	}
}

func TestFactory_HandlerFor_PhysicalKindsHaveNoHandler(t *testing.T) {
	factory := NewFactory(testDeps(&fakeInstanceStore{}, &fakeSummaryStore{}, &fakeMappingStore{}), Providers{})

	for _, kind := range []model.InfraMappingKind{model.KindPhysicalSSH, model.KindPhysicalWinRM} {
		h, err := factory.HandlerFor(&model.InfraMapping{Kind: kind})
		require.NoError(t, err)
		assert.Nil(t, h)
	}
}

func TestFactory_HandlerFor_UnknownKind(t *testing.T) {
	factory := NewFactory(testDeps(&fakeInstanceStore{}, &fakeSummaryStore{}, &fakeMappingStore{}), Providers{})

	_, err := factory.HandlerFor(&model.InfraMapping{Kind: "gcp"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedInfraMapping)
}
