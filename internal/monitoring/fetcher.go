package monitoring

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/IGLOU-EU/go-wildcard/v2"
	containertypes "github.com/docker/docker/api/types/container"
	imagetypes "github.com/docker/docker/api/types/image"
	networktypes "github.com/docker/docker/api/types/network"
	systemtypes "github.com/docker/docker/api/types/system"
	volumetypes "github.com/docker/docker/api/types/volume"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rcourtman/harborview/internal/engine"
	internalerrors "github.com/rcourtman/harborview/internal/errors"
	"github.com/rcourtman/harborview/internal/models"
)

// FetcherConfig controls what a fetch captures.
type FetcherConfig struct {
	// IgnoreContainers holds wildcard patterns matched against container names.
	IgnoreContainers []string
	// SkipEngineInfo disables the daemon summary block.
	SkipEngineInfo bool
}

// Fetcher captures one snapshot from a handle.
type Fetcher struct {
	cfg    FetcherConfig
	logger zerolog.Logger
}

// NewFetcher returns a fetcher.
func NewFetcher(cfg FetcherConfig, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		cfg:    cfg,
		logger: logger.With().Str("component", "state-fetcher").Logger(),
	}
}

// Fetch lists containers, images, volumes and networks concurrently and joins
// them into one snapshot. Any listing failure fails the whole fetch; the daemon
// summary is best effort.
func (f *Fetcher) Fetch(ctx context.Context, handle *engine.Handle, status models.EngineStatus) (models.EngineState, error) {
	cli := handle.Client()
	endpoint := handle.Endpoint()

	var (
		containers []containertypes.Summary
		images     []imagetypes.Summary
		volumes    volumetypes.ListResponse
		networks   []networktypes.Summary
		info       *systemtypes.Info
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		containers, err = cli.ContainerList(gctx, containertypes.ListOptions{All: true})
		if err != nil {
			return internalerrors.WrapFetchError("list_containers", endpoint, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		images, err = cli.ImageList(gctx, imagetypes.ListOptions{})
		if err != nil {
			return internalerrors.WrapFetchError("list_images", endpoint, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		volumes, err = cli.VolumeList(gctx, volumetypes.ListOptions{})
		if err != nil {
			return internalerrors.WrapFetchError("list_volumes", endpoint, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		networks, err = cli.NetworkList(gctx, networktypes.ListOptions{})
		if err != nil {
			return internalerrors.WrapFetchError("list_networks", endpoint, err)
		}
		return nil
	})
	if !f.cfg.SkipEngineInfo {
		g.Go(func() error {
			summary, err := cli.Info(gctx)
			if err != nil {
				f.logger.Debug().Err(err).Str("endpoint", endpoint).Msg("Engine info unavailable")
				return nil
			}
			info = &summary
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return models.EngineState{}, err
	}

	var details *models.EngineDetails
	if info != nil {
		details = engine.DetailsFromInfo(*info)
	}

	return models.NewEngineState(
		f.containerMap(containers),
		imageMap(images),
		volumeMap(volumes.Volumes),
		networkMap(networks),
		status,
		details,
		nowFn(),
	), nil
}

func (f *Fetcher) ignored(name string) bool {
	for _, pattern := range f.cfg.IgnoreContainers {
		if wildcard.Match(pattern, name) {
			return true
		}
	}
	return false
}

// uniqueKey returns id unless it is empty or already taken, in which case an
// index-based key is synthesized.
func uniqueKey(id, prefix string, index int, seen map[string]struct{}) string {
	key := strings.TrimSpace(id)
	if key == "" {
		key = fmt.Sprintf("%s-%d", prefix, index)
	} else if _, dup := seen[key]; dup {
		key = fmt.Sprintf("%s-%d", prefix, index)
	}
	for {
		if _, dup := seen[key]; !dup {
			break
		}
		key += "-dup"
	}
	seen[key] = struct{}{}
	return key
}

func (f *Fetcher) containerMap(list []containertypes.Summary) map[string]models.Container {
	out := make(map[string]models.Container, len(list))
	seen := make(map[string]struct{}, len(list))
	for i, c := range list {
		name := containerName(c)
		if len(f.cfg.IgnoreContainers) > 0 && f.ignored(name) {
			f.logger.Debug().Str("container", name).Msg("Skipping ignored container")
			continue
		}
		key := uniqueKey(c.ID, "container", i, seen)
		out[key] = convertContainer(c, name)
	}
	return out
}

func containerName(c containertypes.Summary) string {
	for _, name := range c.Names {
		if trimmed := strings.TrimPrefix(name, "/"); trimmed != "" {
			return trimmed
		}
	}
	if len(c.ID) > 12 {
		return c.ID[:12]
	}
	return c.ID
}

func convertContainer(c containertypes.Summary, name string) models.Container {
	ports := make([]models.Port, 0, len(c.Ports))
	for _, p := range c.Ports {
		ports = append(ports, models.Port{IP: p.IP, PrivatePort: p.PrivatePort, PublicPort: p.PublicPort, Type: p.Type})
	}

	var networks []string
	if c.NetworkSettings != nil {
		for net := range c.NetworkSettings.Networks {
			networks = append(networks, net)
		}
		sort.Strings(networks)
	}

	return models.Container{
		ID:         c.ID,
		Name:       name,
		Image:      c.Image,
		ImageID:    c.ImageID,
		Command:    c.Command,
		State:      string(c.State),
		Status:     c.Status,
		Created:    c.Created,
		Ports:      ports,
		Labels:     c.Labels,
		Networks:   networks,
		SizeRw:     c.SizeRw,
		SizeRootFs: c.SizeRootFs,
	}
}

func imageMap(list []imagetypes.Summary) map[string]models.Image {
	out := make(map[string]models.Image, len(list))
	seen := make(map[string]struct{}, len(list))
	for i, img := range list {
		key := uniqueKey(img.ID, "image", i, seen)
		out[key] = models.Image{
			ID:          img.ID,
			RepoTags:    img.RepoTags,
			RepoDigests: img.RepoDigests,
			Created:     img.Created,
			Size:        img.Size,
			SharedSize:  img.SharedSize,
			Containers:  img.Containers,
			Labels:      img.Labels,
		}
	}
	return out
}

func volumeMap(list []*volumetypes.Volume) map[string]models.Volume {
	out := make(map[string]models.Volume, len(list))
	seen := make(map[string]struct{}, len(list))
	for i, v := range list {
		if v == nil {
			continue
		}
		size, refs := int64(-1), int64(-1)
		if v.UsageData != nil {
			size, refs = v.UsageData.Size, v.UsageData.RefCount
		}
		key := uniqueKey(v.Name, "volume", i, seen)
		out[key] = models.Volume{
			Name:       v.Name,
			Driver:     v.Driver,
			Mountpoint: v.Mountpoint,
			Scope:      v.Scope,
			CreatedAt:  v.CreatedAt,
			Labels:     v.Labels,
			Size:       size,
			RefCount:   refs,
		}
	}
	return out
}

func networkMap(list []networktypes.Summary) map[string]models.Network {
	out := make(map[string]models.Network, len(list))
	seen := make(map[string]struct{}, len(list))
	for i, n := range list {
		var subnets []string
		for _, cfg := range n.IPAM.Config {
			if cfg.Subnet != "" {
				subnets = append(subnets, cfg.Subnet)
			}
		}
		key := uniqueKey(n.Name, "network", i, seen)
		out[key] = models.Network{
			ID:         n.ID,
			Name:       n.Name,
			Driver:     n.Driver,
			Scope:      n.Scope,
			Internal:   n.Internal,
			Attachable: n.Attachable,
			EnableIPv6: n.EnableIPv6,
			Created:    n.Created,
			Labels:     n.Labels,
			Subnets:    subnets,
			Containers: len(n.Containers),
		}
	}
	return out
}
