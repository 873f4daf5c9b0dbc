package instancesync

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/edvin/deploytrack/internal/model"
	"github.com/edvin/deploytrack/internal/provider"
)

type ecsProvider interface {
	ListServiceTasks(ctx context.Context, cluster, serviceName string) ([]provider.EcsTask, error)
}

type k8sProvider interface {
	ListPods(ctx context.Context, namespace, labelSelector string) ([]provider.Pod, error)
}

const containerSyncConcurrency = 4

// containerScope identifies one independently-versioned group of containers
// within a container infra mapping: an ECS service, or a Kubernetes
// release/controller in a namespace. One mapping can host many scopes
// simultaneously (canary, blue-green).
type containerScope struct {
	Name      string
	Namespace string
}

// containerHandler reconciles ECS and Kubernetes deployments.
type containerHandler struct {
	deps Deps
	ecs  ecsProvider
	k8s  k8sProvider
}

func newContainerHandler(deps Deps, ecs ecsProvider, k8s k8sProvider) *containerHandler {
	return &containerHandler{deps: deps, ecs: ecs, k8s: k8s}
}

func (h *containerHandler) GetDeploymentInfo(phase *model.PhaseCompletion, mapping *model.InfraMapping) ([]model.DeploymentInfo, error) {
	var infos []model.DeploymentInfo
	for _, step := range phase.Steps {
		switch step.Kind {
		case model.StepEcsServiceSetup:
			if len(step.ContainerServiceNames) > 0 {
				for _, name := range step.ContainerServiceNames {
					if name == "" {
						continue
					}
					infos = append(infos, model.DeploymentInfo{
						Kind:                 model.DeployKeyContainer,
						ClusterName:          step.ClusterName,
						ContainerServiceName: name,
						Namespace:            step.Namespace,
					})
				}
			} else if len(step.Labels) > 0 {
				// Label-based rollouts carry no service names; the scope is
				// resolved at sync time from the pods the selector matches.
				infos = append(infos, model.DeploymentInfo{
					Kind:        model.DeployKeyContainer,
					ClusterName: step.ClusterName,
					Namespace:   step.Namespace,
					Labels:      step.Labels,
					Version:     step.Version,
				})
			}
		case model.StepK8sApply, model.StepHelmDeploy:
			if step.ReleaseName == "" {
				continue
			}
			namespaces := step.Namespaces
			if len(namespaces) == 0 && step.Namespace != "" {
				namespaces = []string{step.Namespace}
			}
			infos = append(infos, model.DeploymentInfo{
				Kind:          model.DeployKeyK8s,
				ReleaseName:   step.ReleaseName,
				ReleaseNumber: step.ReleaseNumber,
				Namespaces:    namespaces,
			})
		}
	}
	return infos, nil
}

func (h *containerHandler) GenerateDeploymentKey(info model.DeploymentInfo) (model.DeploymentKey, error) {
	switch info.Kind {
	case model.DeployKeyContainer:
		return model.DeploymentKey{
			Kind:                 model.DeployKeyContainer,
			ContainerServiceName: info.ContainerServiceName,
			LabelSelector:        labelSelector(info.Labels),
			Version:              info.Version,
		}, nil
	case model.DeployKeyK8s:
		return model.DeploymentKey{
			Kind:          model.DeployKeyK8s,
			ReleaseName:   info.ReleaseName,
			ReleaseNumber: info.ReleaseNumber,
		}, nil
	default:
		return model.DeploymentKey{}, fmt.Errorf("container handler: unexpected deployment info kind %q", info.Kind)
	}
}

func (h *containerHandler) SyncInstances(ctx context.Context, appID, infraMappingID string) error {
	mapping, err := h.deps.Mappings.GetByID(ctx, infraMappingID)
	if err != nil {
		return err
	}

	stored, err := h.deps.Instances.ListByInfraMapping(ctx, appID, infraMappingID)
	if err != nil {
		return err
	}

	attr := h.deps.fallbackAttribution(ctx, infraMappingID)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(containerSyncConcurrency)
	for scope, dbInstances := range groupByContainerScope(stored) {
		g.Go(func() error {
			return h.syncScope(gctx, mapping, scope, dbInstances, attr)
		})
	}
	return g.Wait()
}

func (h *containerHandler) HandleNewDeployment(ctx context.Context, summaries []model.DeploymentSummary, rollback bool, rollbackInfo model.OnDemandRollbackInfo) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(containerSyncConcurrency)

	for _, summary := range summaries {
		mapping, err := h.deps.Mappings.GetByID(ctx, summary.InfraMappingID)
		if err != nil {
			return err
		}

		for _, scope := range h.scopesForSummary(ctx, mapping, &summary) {
			attr := attributionFromSummary(&summary)
			g.Go(func() error {
				dbInstances, err := h.deps.Instances.ListByBackendService(gctx, mapping.ID, scope.Name)
				if err != nil {
					return err
				}
				scoped := dbInstances[:0:0]
				for _, inst := range dbInstances {
					if scope.Namespace == "" || inst.Info.Namespace == scope.Namespace {
						scoped = append(scoped, inst)
					}
				}
				return h.syncScope(gctx, mapping, scope, scoped, attr)
			})
		}
	}
	return g.Wait()
}

// scopesForSummary resolves the container scopes a summary implies. Label-
// based summaries resolve scopes from the pods the selector currently
// matches, since the controller names are not known at deploy time.
func (h *containerHandler) scopesForSummary(ctx context.Context, mapping *model.InfraMapping, summary *model.DeploymentSummary) []containerScope {
	info := summary.Info

	switch summary.Key.Kind {
	case model.DeployKeyK8s:
		namespaces := info.Namespaces
		if len(namespaces) == 0 {
			namespaces = []string{mapping.Namespace}
		}
		scopes := make([]containerScope, 0, len(namespaces))
		for _, ns := range namespaces {
			scopes = append(scopes, containerScope{Name: info.ReleaseName, Namespace: ns})
		}
		return scopes

	case model.DeployKeyContainer:
		if info.ContainerServiceName != "" {
			return []containerScope{{Name: info.ContainerServiceName, Namespace: info.Namespace}}
		}
		if len(info.Labels) == 0 {
			return nil
		}
		namespace := info.Namespace
		if namespace == "" {
			namespace = mapping.Namespace
		}
		pods, err := h.k8s.ListPods(ctx, namespace, labelSelector(info.Labels))
		if err != nil {
			h.deps.Logger.Warn().Err(err).
				Str("infra_mapping_id", mapping.ID).
				Str("selector", labelSelector(info.Labels)).
				Msg("resolving label-based scopes failed")
			return nil
		}
		seen := make(map[containerScope]bool)
		var scopes []containerScope
		for _, pod := range pods {
			if pod.ReleaseName == "" {
				continue
			}
			scope := containerScope{Name: pod.ReleaseName, Namespace: pod.Namespace}
			if !seen[scope] {
				seen[scope] = true
				scopes = append(scopes, scope)
			}
		}
		return scopes
	}
	return nil
}

// syncScope diffs one container scope. ECS mappings list service tasks;
// Kubernetes mappings list pods by release label. A failed provider call
// aborts before any delete.
func (h *containerHandler) syncScope(ctx context.Context, mapping *model.InfraMapping, scope containerScope, dbInstances []model.Instance, attr attribution) error {
	var latest []*model.Instance

	if mapping.Kind == model.KindECS {
		tasks, err := h.ecs.ListServiceTasks(ctx, mapping.ClusterName, scope.Name)
		if err != nil {
			return fmt.Errorf("sync ecs service %s: %w", scope.Name, err)
		}
		for _, task := range tasks {
			latest = append(latest, h.newTaskInstance(mapping, scope.Name, task, attr))
		}
	} else {
		pods, err := h.k8s.ListPods(ctx, scope.Namespace, provider.ReleaseNameLabel+"="+scope.Name)
		if err != nil {
			return fmt.Errorf("sync k8s release %s in %s: %w", scope.Name, scope.Namespace, err)
		}
		for _, pod := range pods {
			latest = append(latest, h.newPodInstance(mapping, scope.Name, pod, attr))
		}
	}

	added, removed, err := reconcile(ctx, h.deps, mapping.Kind, dbInstances, latest)
	if err != nil {
		return err
	}
	h.deps.Logger.Info().
		Str("infra_mapping_id", mapping.ID).
		Str("scope", scope.Name).
		Str("namespace", scope.Namespace).
		Int("added", added).
		Int("removed", removed).
		Msg("reconciled container scope")
	return nil
}

func (h *containerHandler) newTaskInstance(mapping *model.InfraMapping, serviceName string, task provider.EcsTask, attr attribution) *model.Instance {
	taskID := task.TaskARN
	if idx := strings.LastIndex(taskID, "/"); idx >= 0 {
		taskID = taskID[idx+1:]
	}
	key := model.InstanceKey{
		Kind:        model.KeyContainer,
		ContainerID: taskID,
	}
	info := model.InstanceInfo{
		Kind:        model.InstanceContainer,
		ClusterName: task.ClusterName,
		ServiceName: serviceName,
		TaskARN:     task.TaskARN,
		State:       task.LastStatus,
	}
	return newInstance(mapping, model.InstanceContainer, key, info, serviceName, attr)
}

func (h *containerHandler) newPodInstance(mapping *model.InfraMapping, releaseName string, pod provider.Pod, attr attribution) *model.Instance {
	key := model.InstanceKey{
		Kind:      model.KeyPod,
		PodName:   pod.Name,
		Namespace: pod.Namespace,
	}
	info := model.InstanceInfo{
		Kind:        model.InstancePod,
		PodName:     pod.Name,
		Namespace:   pod.Namespace,
		ReleaseName: releaseName,
		Image:       pod.Image,
		PodIP:       pod.IP,
		State:       pod.Phase,
	}
	return newInstance(mapping, model.InstancePod, key, info, releaseName, attr)
}

// groupByContainerScope indexes stored instances by (controller|release,
// namespace).
func groupByContainerScope(instances []model.Instance) map[containerScope][]model.Instance {
	groups := make(map[containerScope][]model.Instance)
	for _, inst := range instances {
		scope := containerScope{
			Name:      inst.BackendServiceName,
			Namespace: inst.Info.Namespace,
		}
		groups[scope] = append(groups[scope], inst)
	}
	return groups
}

// labelSelector renders a label map as a deterministic selector string.
func labelSelector(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+labels[k])
	}
	return strings.Join(parts, ",")
}
