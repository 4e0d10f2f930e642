package containerinfo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractContainerIDMatchesFullHex(t *testing.T) {
	id := ExtractContainerID("/kubepods/burstable/pod123/cri-containerd-" +
		"a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f90.scope")
	require.Equal(t, "a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f90", id)
}

func TestExtractContainerIDFallsBackToShortHex(t *testing.T) {
	id := ExtractContainerID("/docker/abcdef012345.scope")
	require.Equal(t, "abcdef012345", id)
}

func TestExtractContainerIDEmptyForNonContainerPath(t *testing.T) {
	require.Empty(t, ExtractContainerID("/user.slice/user-1000.slice"))
}

func TestContainerStatusIDStripsRuntimePrefix(t *testing.T) {
	require.Equal(t, "abc123", containerStatusID("containerd://abc123"))
	require.Equal(t, "abc123", containerStatusID("docker://abc123"))
	require.Equal(t, "abc123", containerStatusID("abc123"))
}

type fakeContainerResolver struct {
	name, image string
	err         error
}

func (f *fakeContainerResolver) ResolveContainer(ctx context.Context, containerID string) (string, string, error) {
	return f.name, f.image, f.err
}

type fakePodResolver struct {
	pod, ns string
	err     error
}

func (f *fakePodResolver) ResolvePod(ctx context.Context, containerID string) (string, string, error) {
	return f.pod, f.ns, f.err
}

func TestResolveDegradesWithoutContainerID(t *testing.T) {
	r := &Resolver{Containers: &fakeContainerResolver{}}
	meta := r.Resolve(context.Background(), "/user.slice/user-1000.slice")
	require.Empty(t, meta.ContainerID)
	require.Empty(t, meta.ContainerName)
}

func TestResolveDegradesWhenContainerResolveFails(t *testing.T) {
	r := &Resolver{Containers: &fakeContainerResolver{err: errors.New("no such container")}}
	meta := r.Resolve(context.Background(), "/docker/abcdef012345.scope")
	require.Equal(t, "abcdef012345", meta.ContainerID)
	require.Empty(t, meta.ContainerName)
}

func TestResolveEnrichesWithPodMetadataWhenAvailable(t *testing.T) {
	r := &Resolver{
		Containers: &fakeContainerResolver{name: "my-app", image: "my-app:latest"},
		Pods:       &fakePodResolver{pod: "my-app-7d4f", ns: "default"},
	}
	meta := r.Resolve(context.Background(), "/docker/abcdef012345.scope")
	require.Equal(t, "abcdef012345", meta.ContainerID)
	require.Equal(t, "my-app", meta.ContainerName)
	require.Equal(t, "my-app:latest", meta.Image)
	require.Equal(t, "my-app-7d4f", meta.PodName)
	require.Equal(t, "default", meta.PodNamespace)
}

func TestResolveToleratesPodResolveFailure(t *testing.T) {
	r := &Resolver{
		Containers: &fakeContainerResolver{name: "my-app"},
		Pods:       &fakePodResolver{err: errors.New("not found")},
	}
	meta := r.Resolve(context.Background(), "/docker/abcdef012345.scope")
	require.Equal(t, "my-app", meta.ContainerName)
	require.Empty(t, meta.PodName)
}
