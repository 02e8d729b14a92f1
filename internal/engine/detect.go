package engine

import (
	"strings"

	systemtypes "github.com/docker/docker/api/types/system"

	"github.com/rcourtman/harborview/internal/models"
)

// detectEngineKind classifies the backend from endpoint path markers first, then
// from markers the daemon reports about itself.
func detectEngineKind(endpoint string, info *systemtypes.Info) models.EngineKind {
	lowerEndpoint := strings.ToLower(endpoint)

	switch {
	case strings.Contains(lowerEndpoint, "podman-machine"), strings.Contains(lowerEndpoint, "/.local/share/containers/podman/machine"):
		return models.EngineKindPodmanMachine
	case strings.Contains(lowerEndpoint, "podman"), strings.Contains(lowerEndpoint, "libpod"):
		return models.EngineKindPodman
	case strings.Contains(lowerEndpoint, ".colima"):
		return models.EngineKindColima
	case strings.Contains(lowerEndpoint, ".orbstack"):
		return models.EngineKindOrbStack
	case strings.Contains(lowerEndpoint, "/.rd/"):
		return models.EngineKindRancherDesktop
	case strings.Contains(lowerEndpoint, "/.lima/"):
		return models.EngineKindLima
	case strings.Contains(lowerEndpoint, "dockerdesktop"), strings.Contains(lowerEndpoint, "/.docker/run/"):
		return models.EngineKindDockerDesktop
	}

	if info == nil {
		return models.EngineKindNative
	}

	if strings.Contains(strings.ToLower(info.InitBinary), "podman") ||
		strings.Contains(strings.ToLower(info.ServerVersion), "podman") {
		return models.EngineKindPodman
	}
	for _, pair := range info.DriverStatus {
		if strings.Contains(strings.ToLower(pair[0]), "podman") || strings.Contains(strings.ToLower(pair[1]), "podman") {
			return models.EngineKindPodman
		}
	}
	for _, option := range info.SecurityOptions {
		if strings.Contains(strings.ToLower(option), "podman") {
			return models.EngineKindPodman
		}
	}

	os := strings.ToLower(info.OperatingSystem)
	name := strings.ToLower(info.Name)
	switch {
	case strings.Contains(os, "docker desktop"):
		return models.EngineKindDockerDesktop
	case strings.Contains(os, "orbstack"):
		return models.EngineKindOrbStack
	case strings.Contains(os, "rancher desktop"):
		return models.EngineKindRancherDesktop
	case strings.HasPrefix(name, "colima"):
		return models.EngineKindColima
	case strings.HasPrefix(name, "lima-"):
		return models.EngineKindLima
	}

	return models.EngineKindNative
}

// engineInfoFrom builds the backend description for a connected endpoint. info
// may be nil when the daemon summary could not be read.
func engineInfoFrom(endpoint, apiVersion string, info *systemtypes.Info) models.EngineInfo {
	kind := detectEngineKind(endpoint, info)
	result := models.EngineInfo{
		Kind:       kind,
		VMBacked:   kind.VMBacked(),
		Endpoint:   endpoint,
		APIVersion: apiVersion,
	}
	if info != nil {
		result.ServerVersion = info.ServerVersion
		result.OS = info.OperatingSystem
		result.Name = info.Name
	}
	return result
}

// installedInfo describes an engine whose CLI exists but whose daemon did not answer.
func installedInfo(binaryPath string) models.EngineInfo {
	kind := models.EngineKindNative
	if strings.Contains(strings.ToLower(binaryPath), "podman") {
		kind = models.EngineKindPodman
	}
	return models.EngineInfo{Kind: kind, VMBacked: kind.VMBacked(), Name: binaryPath}
}

// DetailsFromInfo maps the daemon summary into the snapshot's engine-info block.
func DetailsFromInfo(info systemtypes.Info) *models.EngineDetails {
	return &models.EngineDetails{
		Name:              info.Name,
		ServerVersion:     info.ServerVersion,
		OperatingSystem:   info.OperatingSystem,
		KernelVersion:     info.KernelVersion,
		Architecture:      info.Architecture,
		CPUs:              info.NCPU,
		MemTotal:          info.MemTotal,
		Containers:        info.Containers,
		ContainersRunning: info.ContainersRunning,
		ContainersPaused:  info.ContainersPaused,
		ContainersStopped: info.ContainersStopped,
		Images:            info.Images,
	}
}
