//go:build !windows

package engine

import (
	"fmt"
	"os"
	"path/filepath"
)

const nativeTransport = TransportUnix

func wellKnownEndpoints(home string) []Endpoint {
	endpoints := []Endpoint{}
	if home != "" {
		endpoints = append(endpoints,
			unixSocket("docker-desktop", filepath.Join(home, ".docker", "run", "docker.sock")),
			unixSocket("colima", filepath.Join(home, ".colima", "default", "docker.sock")),
			unixSocket("orbstack", filepath.Join(home, ".orbstack", "run", "docker.sock")),
			unixSocket("rancher-desktop", filepath.Join(home, ".rd", "docker.sock")),
			unixSocket("lima", filepath.Join(home, ".lima", "docker", "sock", "docker.sock")),
		)
	}
	endpoints = append(endpoints,
		unixSocket("podman-rootless", fmt.Sprintf("/run/user/%d/podman/podman.sock", os.Getuid())),
		unixSocket("podman", "/run/podman/podman.sock"),
	)
	return endpoints
}
