package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcourtman/harborview/internal/engine"
	"github.com/rcourtman/harborview/internal/engine/enginetest"
	internalerrors "github.com/rcourtman/harborview/internal/errors"
	"github.com/rcourtman/harborview/internal/models"
)

func TestFetcherBuildsSnapshot(t *testing.T) {
	captured := time.Date(2026, 3, 1, 9, 30, 0, 0, time.FixedZone("CET", 3600))
	swap(t, &nowFn, func() time.Time { return captured })

	fake := enginetest.New("unix:///var/run/docker.sock")
	fake.AddContainer("c1", "web", "running")
	fake.AddContainer("c2", "db", "exited")
	fake.AddImage("sha256:aaa", "alpine:3")
	fake.AddVolume("data")
	fake.AddNetwork("n1", "bridge")

	handle := engine.NewHandle(fake, "")
	defer handle.Release()

	state, err := NewFetcher(FetcherConfig{}, zerolog.Nop()).Fetch(context.Background(), handle, runningStatus)
	require.NoError(t, err)

	require.Len(t, state.Containers, 2)
	assert.Equal(t, "web", state.Containers["c1"].Name)
	assert.Equal(t, "exited", state.Containers["c2"].State)
	assert.Contains(t, state.Images, "sha256:aaa")
	assert.Equal(t, int64(-1), state.Volumes["data"].Size, "missing usage data reported as unknown")
	assert.Equal(t, "n1", state.Networks["bridge"].ID)
	assert.True(t, state.EngineStatus.Equal(runningStatus))
	require.NotNil(t, state.EngineInfo)
	assert.Equal(t, 2, state.EngineInfo.Containers)
	assert.Equal(t, captured.UTC(), state.CapturedAt)
	assert.Zero(t, state.UpdateCounter)
}

func TestFetcherSynthesizesKeys(t *testing.T) {
	fake := enginetest.New("unix:///var/run/docker.sock")
	fake.AddContainer("", "anon", "running")
	fake.AddContainer("dup", "first", "running")
	fake.AddContainer("dup", "second", "exited")
	fake.AddImage("")
	fake.AddImage("")
	fake.AddVolume("")

	handle := engine.NewHandle(fake, "")
	defer handle.Release()

	state, err := NewFetcher(FetcherConfig{SkipEngineInfo: true}, zerolog.Nop()).Fetch(context.Background(), handle, runningStatus)
	require.NoError(t, err)

	require.Len(t, state.Containers, 3, "every container keeps a unique key")
	assert.Equal(t, "anon", state.Containers["container-0"].Name)
	assert.Equal(t, "first", state.Containers["dup"].Name)
	assert.Equal(t, "second", state.Containers["container-2"].Name)
	assert.Contains(t, state.Images, "image-0")
	assert.Contains(t, state.Images, "image-1")
	assert.Contains(t, state.Volumes, "volume-0")
	assert.Nil(t, state.EngineInfo)

	// Same input, same keys.
	again, err := NewFetcher(FetcherConfig{SkipEngineInfo: true}, zerolog.Nop()).Fetch(context.Background(), handle, runningStatus)
	require.NoError(t, err)
	for key := range state.Containers {
		assert.Contains(t, again.Containers, key)
	}
}

func TestUniqueKeyAvoidsCollisionWithRealIDs(t *testing.T) {
	seen := map[string]struct{}{}
	assert.Equal(t, "container-1", uniqueKey("container-1", "container", 0, seen))
	assert.Equal(t, "container-1-dup", uniqueKey("", "container", 1, seen))
}

func TestFetcherIgnoresContainersByWildcard(t *testing.T) {
	fake := enginetest.New("unix:///var/run/docker.sock")
	fake.AddContainer("c1", "web", "running")
	fake.AddContainer("c2", "harborview-backup-1", "exited")
	fake.AddContainer("c3", "buildx_buildkit_default", "running")

	handle := engine.NewHandle(fake, "")
	defer handle.Release()

	f := NewFetcher(FetcherConfig{IgnoreContainers: []string{"harborview-backup-*", "buildx_*"}}, zerolog.Nop())
	state, err := f.Fetch(context.Background(), handle, runningStatus)
	require.NoError(t, err)

	assert.Len(t, state.Containers, 1)
	assert.Contains(t, state.Containers, "c1")
}

func TestFetcherFailsFast(t *testing.T) {
	fake := enginetest.New("unix:///var/run/docker.sock")
	fake.AddContainer("c1", "web", "running")
	fake.SetListError(errors.New("daemon busy"))

	handle := engine.NewHandle(fake, "")
	defer handle.Release()

	state, err := NewFetcher(FetcherConfig{}, zerolog.Nop()).Fetch(context.Background(), handle, runningStatus)
	require.Error(t, err)
	assert.ErrorIs(t, err, internalerrors.ErrFetch)
	assert.Nil(t, state.Containers, "no partial snapshot on failure")
}

func TestFetcherHonorsCancellation(t *testing.T) {
	fake := enginetest.New("unix:///var/run/docker.sock")
	fake.SetListDelay(time.Minute)

	handle := engine.NewHandle(fake, "")
	defer handle.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewFetcher(FetcherConfig{}, zerolog.Nop()).Fetch(ctx, handle, models.UnknownStatus())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
