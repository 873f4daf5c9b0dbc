package instancesync

import (
	"errors"
	"fmt"

	"github.com/edvin/deploytrack/internal/model"
)

// ErrUnsupportedInfraMapping means a mapping kind the engine does not know.
var ErrUnsupportedInfraMapping = errors.New("unsupported infra mapping kind")

// Providers bundles the backend clients the handlers dispatch to. A nil
// provider is acceptable until a mapping of that backend shows up.
type Providers struct {
	ASG        asgProvider
	CodeDeploy codeDeployProvider
	ECS        ecsProvider
	K8s        k8sProvider
	Azure      azureProvider
	PCF        pcfProvider
	Spotinst   spotinstProvider
	Lambda     lambdaProvider
	Hosts      hostProvider
}

// Factory resolves the reconciliation handler for an infra mapping.
type Factory struct {
	deps      Deps
	providers Providers
}

func NewFactory(deps Deps, providers Providers) *Factory {
	return &Factory{deps: deps, providers: providers}
}

// HandlerFor returns the handler owning a mapping's backend. Physical
// data-center kinds resolve to (nil, nil): they are valid configuration but
// their instances are registered by the delegate that runs on them, not
// listed from a cloud API, so this engine leaves them alone.
func (f *Factory) HandlerFor(mapping *model.InfraMapping) (Handler, error) {
	switch mapping.Kind {
	case model.KindAwsAmi:
		if mapping.DeploymentType == model.DeploymentSpotinst {
			return newSpotinstHandler(f.deps, f.providers.Spotinst), nil
		}
		return newAsgHandler(f.deps, f.providers.ASG), nil
	case model.KindAwsCodeDeploy:
		return newCodeDeployHandler(f.deps, f.providers.CodeDeploy), nil
	case model.KindECS, model.KindKubernetes:
		return newContainerHandler(f.deps, f.providers.ECS, f.providers.K8s), nil
	case model.KindAzureVM:
		return newAzureHandler(f.deps, f.providers.Azure), nil
	case model.KindPCF:
		return newPCFHandler(f.deps, f.providers.PCF), nil
	case model.KindAwsLambda:
		return newLambdaHandler(f.deps, f.providers.Lambda), nil
	case model.KindAwsSSH:
		return newHostHandler(f.deps, f.providers.Hosts), nil
	case model.KindPhysicalSSH, model.KindPhysicalWinRM:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedInfraMapping, mapping.Kind)
	}
}
