package instancesync

import (
	"context"
	"errors"
	"fmt"

	"github.com/edvin/deploytrack/internal/model"
	"github.com/edvin/deploytrack/internal/provider"
)

type lambdaProvider interface {
	GetFunctionVersion(ctx context.Context, functionName, version string) (*provider.LambdaFunction, error)
}

// lambdaHandler reconciles serverless function deployments. Each deployed
// function version is tracked as one instance; the scope name is
// "function:version". A version the backend no longer knows is gone, there
// is no per-unit listing to diff.
type lambdaHandler struct {
	deps   Deps
	lambda lambdaProvider
}

func newLambdaHandler(deps Deps, lambda lambdaProvider) *lambdaHandler {
	return &lambdaHandler{deps: deps, lambda: lambda}
}

func (h *lambdaHandler) GetDeploymentInfo(phase *model.PhaseCompletion, mapping *model.InfraMapping) ([]model.DeploymentInfo, error) {
	var infos []model.DeploymentInfo
	for _, step := range phase.Steps {
		if step.Kind != model.StepLambdaDeploy || step.FunctionName == "" {
			continue
		}
		infos = append(infos, model.DeploymentInfo{
			Kind:            model.DeployKeyLambda,
			FunctionName:    step.FunctionName,
			FunctionVersion: step.FunctionVersion,
		})
	}
	return infos, nil
}

func (h *lambdaHandler) GenerateDeploymentKey(info model.DeploymentInfo) (model.DeploymentKey, error) {
	if info.Kind != model.DeployKeyLambda {
		return model.DeploymentKey{}, fmt.Errorf("lambda handler: unexpected deployment info kind %q", info.Kind)
	}
	return model.DeploymentKey{
		Kind:            model.DeployKeyLambda,
		FunctionName:    info.FunctionName,
		FunctionVersion: info.FunctionVersion,
	}, nil
}

func (h *lambdaHandler) SyncInstances(ctx context.Context, appID, infraMappingID string) error {
	_, err := h.deps.Mappings.GetByID(ctx, infraMappingID)
	if err != nil {
		return err
	}

	stored, err := h.deps.Instances.ListByInfraMapping(ctx, appID, infraMappingID)
	if err != nil {
		return err
	}

	var errs []error
	var gone []string
	for _, db := range stored {
		fn, err := h.lambda.GetFunctionVersion(ctx, db.Info.FunctionName, db.Info.FunctionVersion)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if fn == nil {
			gone = append(gone, db.ID)
		}
	}
	if len(gone) > 0 {
		if err := h.deps.Instances.Delete(ctx, gone); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *lambdaHandler) HandleNewDeployment(ctx context.Context, summaries []model.DeploymentSummary, rollback bool, rollbackInfo model.OnDemandRollbackInfo) error {
	for _, summary := range summaries {
		mapping, err := h.deps.Mappings.GetByID(ctx, summary.InfraMappingID)
		if err != nil {
			return err
		}

		fn, err := h.lambda.GetFunctionVersion(ctx, summary.Key.FunctionName, summary.Key.FunctionVersion)
		if err != nil {
			return fmt.Errorf("lambda deployment %s: %w", summary.Key.String(), err)
		}
		if fn == nil {
			h.deps.Logger.Warn().
				Str("infra_mapping_id", mapping.ID).
				Str("function", summary.Key.FunctionName).
				Str("version", summary.Key.FunctionVersion).
				Msg("deployed function version not visible, skipping")
			continue
		}

		inst := h.newFunctionInstance(mapping, fn, attributionFromSummary(&summary))
		if err := h.deps.Instances.SaveOrUpdate(ctx, inst); err != nil {
			return err
		}
	}
	return nil
}

func (h *lambdaHandler) newFunctionInstance(mapping *model.InfraMapping, fn *provider.LambdaFunction, attr attribution) *model.Instance {
	scope := fn.FunctionName + ":" + fn.Version
	key := model.InstanceKey{
		Kind:           model.KeyHost,
		HostName:       scope,
		InfraMappingID: mapping.ID,
	}
	info := model.InstanceInfo{
		Kind:            model.InstanceLambda,
		FunctionName:    fn.FunctionName,
		FunctionVersion: fn.Version,
		FunctionARN:     fn.FunctionARN,
	}
	return newInstance(mapping, model.InstanceLambda, key, info, scope, attr)
}
