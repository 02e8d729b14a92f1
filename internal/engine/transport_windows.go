//go:build windows

package engine

const nativeTransport = TransportNpipe

func wellKnownEndpoints(string) []Endpoint {
	return []Endpoint{
		{Name: "docker-desktop-linux", Host: "npipe:////./pipe/dockerDesktopLinuxEngine", Transport: TransportNpipe},
		{Name: "podman-machine", Host: "npipe:////./pipe/podman-machine-default", Transport: TransportNpipe},
		{Name: "rancher-desktop", Host: "npipe:////./pipe/docker_engine", Transport: TransportNpipe},
	}
}
