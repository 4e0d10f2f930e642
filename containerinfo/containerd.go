package containerinfo

import (
	"context"
	"fmt"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/namespaces"
)

// ContainerdResolver implements ContainerResolver against a local
// containerd socket (SPEC_FULL.md §4.14) — the resolver Kubernetes's
// containerd-backed CRI implementation (as opposed to dockershim) needs.
type ContainerdResolver struct {
	client    *containerd.Client
	namespace string
}

// NewContainerdResolver connects to address (typically
// "/run/containerd/containerd.sock") within the given containerd
// namespace ("k8s.io" for a Kubernetes node).
func NewContainerdResolver(address, namespace string) (*ContainerdResolver, error) {
	cli, err := containerd.New(address)
	if err != nil {
		return nil, fmt.Errorf("containerinfo: connect to containerd: %w", err)
	}
	return &ContainerdResolver{client: cli, namespace: namespace}, nil
}

func (c *ContainerdResolver) ResolveContainer(ctx context.Context, containerID string) (string, string, error) {
	ctx = namespaces.WithNamespace(ctx, c.namespace)
	container, err := c.client.LoadContainer(ctx, containerID)
	if err != nil {
		return "", "", fmt.Errorf("containerinfo: load container %s: %w", containerID, err)
	}
	info, err := container.Info(ctx)
	if err != nil {
		return "", "", fmt.Errorf("containerinfo: container info %s: %w", containerID, err)
	}
	return containerID, info.Image, nil
}
