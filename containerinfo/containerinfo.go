// Package containerinfo resolves a thread's cgroup/container identity
// into name/image metadata and, where the process also runs under
// Kubernetes, pod metadata (SPEC_FULL.md §4.14). This generalizes the
// reporter's plain podName/podNamespace/containerName strings into a
// reusable resolver backed by the containerd/Docker Engine APIs and
// client-go, instead of leaving those fields as opaque caller-supplied
// strings.
package containerinfo

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/elastic/symprofile/internal/log"
)

// ContainerMeta is what a cgroup/container ID resolves to.
type ContainerMeta struct {
	ContainerID   string
	ContainerName string
	Image         string
	PodName       string
	PodNamespace  string
}

// ContainerResolver maps a raw container ID (as extracted from a cgroup
// path) to its name and image.
type ContainerResolver interface {
	ResolveContainer(ctx context.Context, containerID string) (name, image string, err error)
}

// PodResolver maps a container ID to the Kubernetes pod it belongs to.
type PodResolver interface {
	ResolvePod(ctx context.Context, containerID string) (podName, namespace string, err error)
}

// Resolver composes a ContainerResolver and an optional PodResolver into
// the single enrichment step the reporter calls once per newly seen
// process (SPEC_FULL.md §4.14). Results are not cached here: callers needing caching wrap this
// with their own go-freelru, keyed on containerID, as every other
// bounded cache in this module does.
type Resolver struct {
	Containers ContainerResolver
	Pods       PodResolver // nil if not running under Kubernetes
}

// Resolve enriches a raw cgroup path into ContainerMeta, degrading
// gracefully (zero-value fields) at every stage a backend is unavailable
// or the lookup fails, since enrichment is best-effort additive metadata,
// never required to produce a valid profile.
func (r *Resolver) Resolve(ctx context.Context, cgroupPath string) ContainerMeta {
	var meta ContainerMeta
	meta.ContainerID = ExtractContainerID(cgroupPath)
	if meta.ContainerID == "" || r.Containers == nil {
		return meta
	}

	name, image, err := r.Containers.ResolveContainer(ctx, meta.ContainerID)
	if err != nil {
		log.Debugf("containerinfo: resolve container %s: %v", meta.ContainerID, err)
		return meta
	}
	meta.ContainerName = name
	meta.Image = image

	if r.Pods != nil {
		podName, ns, err := r.Pods.ResolvePod(ctx, meta.ContainerID)
		if err != nil {
			log.Debugf("containerinfo: resolve pod for container %s: %v", meta.ContainerID, err)
		} else {
			meta.PodName = podName
			meta.PodNamespace = ns
		}
	}
	return meta
}

// cgroupIDPattern matches the 64-hex-character container ID segment
// present in both the legacy `docker-<id>.scope` cgroup naming and the
// systemd-cgroup-driver `cri-containerd-<id>.scope` / kubepods
// `<id>` leaf directory naming.
var cgroupIDPattern = regexp.MustCompile(`[0-9a-f]{64}`)

// ExtractContainerID pulls the 64-hex-char container ID out of a raw
// `/proc/[pid]/cgroup` path entry, returning "" if none is present (e.g.
// the process isn't containerized).
func ExtractContainerID(cgroupPath string) string {
	if id := cgroupIDPattern.FindString(cgroupPath); id != "" {
		return id
	}
	// Some runtimes shorten the id to 12 hex chars in directory names;
	// accept that form too if nothing longer matched.
	for _, seg := range strings.Split(cgroupPath, "/") {
		seg = strings.TrimSuffix(seg, ".scope")
		if len(seg) == 12 && isHex(seg) {
			return seg
		}
	}
	return ""
}

// CgroupPath reads /proc/[pid]/cgroup and returns its raw contents for
// ExtractContainerID to scan; it returns "" (not an error) once the
// process has exited, since a vanished process is simply not
// containerized from this enrichment step's point of view.
func CgroupPath(pid int) string {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/cgroup", pid))
	if err != nil {
		return ""
	}
	return string(data)
}

func isHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
