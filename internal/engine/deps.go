package engine

import (
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/docker/docker/client"
)

var (
	nowFn      = time.Now
	lookPathFn = exec.LookPath
	getenvFn   = os.Getenv
	// dialEngineFn builds a client for host. An empty host means "honor the
	// environment" (DOCKER_HOST and friends).
	dialEngineFn = func(host string) (Client, error) {
		opts := []client.Opt{client.WithAPIVersionNegotiation()}
		if host == "" {
			opts = append([]client.Opt{client.FromEnv}, opts...)
		} else {
			opts = append(opts, client.WithHost(host))
		}
		return client.NewClientWithOpts(opts...)
	}
	runCommandFn CommandRunner = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return exec.CommandContext(ctx, name, args...).Output()
	}
)
