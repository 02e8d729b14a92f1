package models

import "time"

// EngineKind identifies the concrete engine backend behind an endpoint.
type EngineKind string

const (
	EngineKindNative         EngineKind = "native"
	EngineKindDockerDesktop  EngineKind = "docker-desktop"
	EngineKindColima         EngineKind = "colima"
	EngineKindOrbStack       EngineKind = "orbstack"
	EngineKindRancherDesktop EngineKind = "rancher-desktop"
	EngineKindLima           EngineKind = "lima"
	EngineKindPodman         EngineKind = "podman"
	EngineKindPodmanMachine  EngineKind = "podman-machine"
)

// VMBacked reports whether the kind runs the daemon inside a managed VM.
func (k EngineKind) VMBacked() bool {
	switch k {
	case EngineKindDockerDesktop, EngineKindColima, EngineKindOrbStack,
		EngineKindRancherDesktop, EngineKindLima, EngineKindPodmanMachine:
		return true
	default:
		return false
	}
}

// EngineInfo describes the engine backend a handle is (or would be) connected to.
type EngineInfo struct {
	Kind          EngineKind `json:"kind"`
	VMBacked      bool       `json:"vmBacked"`
	Endpoint      string     `json:"endpoint,omitempty"`
	ServerVersion string     `json:"serverVersion,omitempty"`
	APIVersion    string     `json:"apiVersion,omitempty"`
	OS            string     `json:"os,omitempty"`
	Name          string     `json:"name,omitempty"`
}

// SameBackend reports whether both infos describe the same engine backend.
func (i EngineInfo) SameBackend(other EngineInfo) bool {
	return i.Kind == other.Kind && i.Endpoint == other.Endpoint && i.VMBacked == other.VMBacked
}

// EngineDetails is the optional daemon summary attached to a snapshot.
type EngineDetails struct {
	Name              string `json:"name,omitempty"`
	ServerVersion     string `json:"serverVersion,omitempty"`
	OperatingSystem   string `json:"operatingSystem,omitempty"`
	KernelVersion     string `json:"kernelVersion,omitempty"`
	Architecture      string `json:"architecture,omitempty"`
	CPUs              int    `json:"cpus,omitempty"`
	MemTotal          int64  `json:"memTotal,omitempty"`
	Containers        int    `json:"containers"`
	ContainersRunning int    `json:"containersRunning"`
	ContainersPaused  int    `json:"containersPaused"`
	ContainersStopped int    `json:"containersStopped"`
	Images            int    `json:"images"`
}

// Container is a single container as listed by the engine.
type Container struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Image      string            `json:"image"`
	ImageID    string            `json:"imageId,omitempty"`
	Command    string            `json:"command,omitempty"`
	State      string            `json:"state"`
	Status     string            `json:"status"`
	Created    int64             `json:"created"`
	Ports      []Port            `json:"ports,omitempty"`
	Labels     map[string]string `json:"labels,omitempty"`
	Networks   []string          `json:"networks,omitempty"`
	SizeRw     int64             `json:"sizeRw,omitempty"`
	SizeRootFs int64             `json:"sizeRootFs,omitempty"`
}

// Port describes a container port mapping.
type Port struct {
	IP          string `json:"ip,omitempty"`
	PrivatePort uint16 `json:"privatePort"`
	PublicPort  uint16 `json:"publicPort,omitempty"`
	Type        string `json:"type"`
}

// Image is a locally stored image.
type Image struct {
	ID          string            `json:"id"`
	RepoTags    []string          `json:"repoTags,omitempty"`
	RepoDigests []string          `json:"repoDigests,omitempty"`
	Created     int64             `json:"created"`
	Size        int64             `json:"size"`
	SharedSize  int64             `json:"sharedSize"`
	Containers  int64             `json:"containers"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// Volume is a named volume. Size and RefCount are -1 when the engine does not report usage.
type Volume struct {
	Name       string            `json:"name"`
	Driver     string            `json:"driver"`
	Mountpoint string            `json:"mountpoint,omitempty"`
	Scope      string            `json:"scope,omitempty"`
	CreatedAt  string            `json:"createdAt,omitempty"`
	Labels     map[string]string `json:"labels,omitempty"`
	Size       int64             `json:"size"`
	RefCount   int64             `json:"refCount"`
}

// Network is an engine network.
type Network struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Driver     string            `json:"driver"`
	Scope      string            `json:"scope,omitempty"`
	Internal   bool              `json:"internal"`
	Attachable bool              `json:"attachable"`
	EnableIPv6 bool              `json:"enableIPv6"`
	Created    time.Time         `json:"created"`
	Labels     map[string]string `json:"labels,omitempty"`
	Subnets    []string          `json:"subnets,omitempty"`
	Containers int               `json:"containers"`
}
