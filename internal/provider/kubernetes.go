package provider

import (
	"context"
	"fmt"
	"os"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// ReleaseNameLabel is the pod label carrying the release a pod was deployed
// under.
const ReleaseNameLabel = "release"

// Pod is the provider descriptor for one running pod.
type Pod struct {
	Name        string
	Namespace   string
	ReleaseName string
	Image       string
	IP          string
	Phase       string
}

// K8sClient lists the running pods of a namespace.
type K8sClient struct {
	cs kubernetes.Interface
}

// NewK8sClient builds a client from the in-cluster config, falling back to
// KUBECONFIG for out-of-cluster use.
func NewK8sClient() (*K8sClient, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := os.Getenv("KUBECONFIG")
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("build kubernetes config: %w", err)
		}
	}

	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}
	return &K8sClient{cs: cs}, nil
}

func NewK8sClientWithClientset(cs kubernetes.Interface) *K8sClient {
	return &K8sClient{cs: cs}
}

// ListPods returns the running pods of a namespace matching the label
// selector. An empty namespace is a legitimate empty result; API errors are
// transient.
func (c *K8sClient) ListPods(ctx context.Context, namespace, labelSelector string) ([]Pod, error) {
	list, err := c.cs.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: labelSelector,
	})
	if err != nil {
		return nil, fmt.Errorf("list pods in %s: %w", namespace, err)
	}

	var pods []Pod
	for _, p := range list.Items {
		if p.Status.Phase != corev1.PodRunning {
			continue
		}
		pod := Pod{
			Name:        p.Name,
			Namespace:   p.Namespace,
			ReleaseName: p.Labels[ReleaseNameLabel],
			IP:          p.Status.PodIP,
			Phase:       string(p.Status.Phase),
		}
		if len(p.Spec.Containers) > 0 {
			pod.Image = p.Spec.Containers[0].Image
		}
		pods = append(pods, pod)
	}
	return pods, nil
}
