package containerinfo

import (
	"context"
	"fmt"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// KubernetesResolver implements PodResolver by listing pods scheduled to
// the local node and matching container statuses' runtime ID against the
// requested containerID (SPEC_FULL.md §4.14). Pod/container association
// is not exposed as a direct "container ID -> pod" API, only as "list
// pods, read each one's container statuses" — so this resolver's cost
// scales with node pod density; callers are expected to cache results,
// as the Resolver type's doc comment notes.
type KubernetesResolver struct {
	clientset *kubernetes.Clientset
	nodeName  string
}

// NewKubernetesResolver builds a resolver using in-cluster credentials
// (the standard service-account token every pod is mounted) for the node
// named nodeName (typically the $NODE_NAME downward-API env var).
func NewKubernetesResolver(nodeName string) (*KubernetesResolver, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("containerinfo: in-cluster config: %w", err)
	}
	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("containerinfo: build clientset: %w", err)
	}
	return &KubernetesResolver{clientset: cs, nodeName: nodeName}, nil
}

func (k *KubernetesResolver) ResolvePod(ctx context.Context, containerID string) (string, string, error) {
	pods, err := k.clientset.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{
		FieldSelector: "spec.nodeName=" + k.nodeName,
	})
	if err != nil {
		return "", "", fmt.Errorf("containerinfo: list pods on node %s: %w", k.nodeName, err)
	}

	for _, pod := range pods.Items {
		for _, cs := range pod.Status.ContainerStatuses {
			if containerStatusID(cs.ContainerID) == containerID {
				return pod.Name, pod.Namespace, nil
			}
		}
		for _, cs := range pod.Status.InitContainerStatuses {
			if containerStatusID(cs.ContainerID) == containerID {
				return pod.Name, pod.Namespace, nil
			}
		}
	}
	return "", "", fmt.Errorf("containerinfo: no pod on %s references container %s", k.nodeName, containerID)
}

// containerStatusID strips the "docker://"/"containerd://" runtime
// prefix Kubernetes puts on ContainerStatus.ContainerID.
func containerStatusID(runtimeID string) string {
	if i := strings.Index(runtimeID, "://"); i >= 0 {
		return runtimeID[i+3:]
	}
	return runtimeID
}
