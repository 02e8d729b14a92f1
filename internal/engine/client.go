// Package engine acquires and caches handles to the local container engine.
//
// A Strategy walks an ordered list of connection attempts (environment default,
// enumerated contexts, bare default) and a Cache keeps at most one live Handle,
// replacing it when its status stops reporting a running daemon.
package engine

import (
	"context"

	"github.com/docker/docker/api/types"
	containertypes "github.com/docker/docker/api/types/container"
	eventtypes "github.com/docker/docker/api/types/events"
	imagetypes "github.com/docker/docker/api/types/image"
	networktypes "github.com/docker/docker/api/types/network"
	systemtypes "github.com/docker/docker/api/types/system"
	volumetypes "github.com/docker/docker/api/types/volume"
)

// Client is the subset of the engine API the core consumes. *client.Client
// from github.com/docker/docker satisfies it.
type Client interface {
	Ping(ctx context.Context) (types.Ping, error)
	Info(ctx context.Context) (systemtypes.Info, error)
	ContainerList(ctx context.Context, options containertypes.ListOptions) ([]containertypes.Summary, error)
	ImageList(ctx context.Context, options imagetypes.ListOptions) ([]imagetypes.Summary, error)
	VolumeList(ctx context.Context, options volumetypes.ListOptions) (volumetypes.ListResponse, error)
	NetworkList(ctx context.Context, options networktypes.ListOptions) ([]networktypes.Summary, error)
	Events(ctx context.Context, options eventtypes.ListOptions) (<-chan eventtypes.Message, <-chan error)
	DaemonHost() string
	Close() error
}
