package containerinfo

import (
	"context"
	"fmt"

	"github.com/docker/docker/client"
)

// DockerResolver implements ContainerResolver against a local Docker
// Engine API socket (SPEC_FULL.md §4.14).
type DockerResolver struct {
	cli *client.Client
}

// NewDockerResolver connects using the standard DOCKER_HOST/DOCKER_* env
// vars, negotiating the API version against the daemon.
func NewDockerResolver() (*DockerResolver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("containerinfo: connect to docker: %w", err)
	}
	return &DockerResolver{cli: cli}, nil
}

func (d *DockerResolver) ResolveContainer(ctx context.Context, containerID string) (string, string, error) {
	info, err := d.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return "", "", fmt.Errorf("containerinfo: inspect %s: %w", containerID, err)
	}
	name := info.Name
	image := ""
	if info.Config != nil {
		image = info.Config.Image
	}
	return name, image, nil
}
