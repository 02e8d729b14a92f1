//go:build integration

package monitoring_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"

	"github.com/rcourtman/harborview/internal/engine"
	"github.com/rcourtman/harborview/internal/models"
	"github.com/rcourtman/harborview/internal/monitoring"
)

func providerAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		return false
	}
	defer provider.Close()
	return true
}

func waitForUpdate(t *testing.T, updates <-chan monitoring.Update, timeout time.Duration, match func(models.EngineState) bool) models.EngineState {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case update := <-updates:
			if match(update.State) {
				return update.State
			}
		case <-deadline:
			t.Fatal("timed out waiting for matching engine state")
		}
	}
}

// TestMonitorTracksRealEngine drives a container through start, stop and
// removal against a live daemon and checks the mirror follows each step.
func TestMonitorTracksRealEngine(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if !providerAvailable() {
		t.Skip("skipping integration test: no container engine available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	logger := zerolog.New(zerolog.NewTestWriter(t))
	strategy := engine.NewStrategy(engine.NewCLIEnumerator("docker", logger), engine.DefaultProbeTimeout, logger)
	cache := engine.NewCache(strategy, engine.CacheConfig{}, logger)
	defer cache.Close()

	fanout := monitoring.NewFanout()
	id, updates := fanout.Subscribe(64)
	defer fanout.Unsubscribe(id)

	monitor := monitoring.New(cache, monitoring.NewFetcher(monitoring.FetcherConfig{}, logger), fanout,
		monitoring.Config{PollInterval: time.Second}, logger)
	if _, err := monitor.Start(ctx); err != nil {
		t.Fatalf("start monitor: %v", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		_ = monitor.Stop(stopCtx)
	}()

	baseline := waitForUpdate(t, updates, 30*time.Second, func(models.EngineState) bool { return true })
	if !baseline.EngineStatus.IsRunning() {
		t.Skipf("engine not running: %s", baseline.EngineStatus)
	}

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: "alpine:3.20",
			Cmd:   []string{"sleep", "300"},
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start container: %v", err)
	}
	containerID := ctr.GetContainerID()
	defer func() { _ = ctr.Terminate(context.Background()) }()

	waitForUpdate(t, updates, 30*time.Second, func(s models.EngineState) bool {
		c, ok := s.Containers[containerID]
		return ok && c.State == "running"
	})

	stopTimeout := time.Second
	if err := ctr.Stop(ctx, &stopTimeout); err != nil {
		t.Fatalf("stop container: %v", err)
	}
	waitForUpdate(t, updates, 30*time.Second, func(s models.EngineState) bool {
		c, ok := s.Containers[containerID]
		return ok && c.State == "exited"
	})

	if err := ctr.Terminate(ctx); err != nil {
		t.Fatalf("terminate container: %v", err)
	}
	waitForUpdate(t, updates, 30*time.Second, func(s models.EngineState) bool {
		_, ok := s.Containers[containerID]
		return !ok
	})
}
