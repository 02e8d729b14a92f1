package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	systemtypes "github.com/docker/docker/api/types/system"
	"github.com/docker/docker/client"
	"github.com/rs/zerolog"

	internalerrors "github.com/rcourtman/harborview/internal/errors"
	"github.com/rcourtman/harborview/internal/models"
)

// DefaultProbeTimeout bounds every liveness probe the strategy issues.
const DefaultProbeTimeout = 5 * time.Second

// Connection is the result of a successful strategy run.
type Connection struct {
	Client   Client
	Endpoint string
	Info     models.EngineInfo
}

// Connector produces a validated connection or fails.
type Connector interface {
	Connect(ctx context.Context) (*Connection, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context) (*Connection, error)

func (f ConnectorFunc) Connect(ctx context.Context) (*Connection, error) {
	return f(ctx)
}

// Strategy searches for a reachable engine: environment default first, then the
// endpoints reported by the enumerator, then the bare platform default.
type Strategy struct {
	enumerator   EndpointEnumerator
	probeTimeout time.Duration
	logger       zerolog.Logger
}

// NewStrategy returns a strategy using enumerator for the context step. A nil
// enumerator disables that step.
func NewStrategy(enumerator EndpointEnumerator, probeTimeout time.Duration, logger zerolog.Logger) *Strategy {
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	return &Strategy{
		enumerator:   enumerator,
		probeTimeout: probeTimeout,
		logger:       logger.With().Str("component", "engine-strategy").Logger(),
	}
}

// Installed delegates to the enumerator when it can detect installed tooling.
func (s *Strategy) Installed() (string, bool) {
	if detector, ok := s.enumerator.(InstallDetector); ok {
		return detector.Installed()
	}
	return "", false
}

// Connect runs the three-step search. The returned error wraps
// ErrNoReachableEndpoint and lists every attempt.
func (s *Strategy) Connect(ctx context.Context) (*Connection, error) {
	var attempts []string
	tried := make(map[string]struct{})

	conn, err := s.attempt(ctx, "")
	if err == nil {
		return conn, nil
	}
	attempts = append(attempts, fmt.Sprintf("environment default: %v", err))
	if host := defaultEnvHost(); host != "" {
		tried[host] = struct{}{}
	}
	if ctx.Err() != nil {
		return nil, s.fail(attempts, ctx.Err())
	}

	if s.enumerator != nil {
		endpoints, enumErr := s.enumerator.Enumerate(ctx)
		if enumErr != nil {
			s.logger.Warn().Err(enumErr).Msg("Failed to enumerate engine contexts")
			attempts = append(attempts, fmt.Sprintf("enumerate contexts: %v", enumErr))
		}

		for _, ep := range endpoints {
			if ctx.Err() != nil {
				return nil, s.fail(attempts, ctx.Err())
			}
			if !supportsTransport(ep.Transport) {
				s.logger.Warn().
					Str("context", ep.Name).
					Str("host", ep.Host).
					Str("transport", string(ep.Transport)).
					Msg("Skipping engine context with unsupported transport")
				continue
			}
			if _, ok := tried[ep.Host]; ok {
				continue
			}
			tried[ep.Host] = struct{}{}

			conn, err := s.attempt(ctx, ep.Host)
			if err == nil {
				s.logger.Info().Str("context", ep.Name).Str("host", ep.Host).Msg("Connected to engine via context")
				return conn, nil
			}
			s.logger.Debug().Err(err).Str("context", ep.Name).Str("host", ep.Host).Msg("Engine context unreachable")
			attempts = append(attempts, fmt.Sprintf("context %s (%s): %v", ep.Name, ep.Host, err))
		}
	}

	if ctx.Err() != nil {
		return nil, s.fail(attempts, ctx.Err())
	}

	conn, err = s.attempt(ctx, client.DefaultDockerHost)
	if err == nil {
		s.logger.Info().Str("host", client.DefaultDockerHost).Msg("Connected to engine via bare default")
		return conn, nil
	}
	attempts = append(attempts, fmt.Sprintf("bare default (%s): %v", client.DefaultDockerHost, err))

	return nil, s.fail(attempts, nil)
}

func (s *Strategy) fail(attempts []string, cause error) error {
	detail := strings.Join(attempts, "; ")
	if cause != nil {
		return internalerrors.WrapConnectionError("connect", "", fmt.Errorf("%w: %s: %w", internalerrors.ErrNoReachableEndpoint, detail, cause))
	}
	return internalerrors.WrapConnectionError("connect", "", fmt.Errorf("%w: %s", internalerrors.ErrNoReachableEndpoint, detail))
}

// attempt builds a client for host and probes it. The client is closed on failure.
func (s *Strategy) attempt(ctx context.Context, host string) (*Connection, error) {
	cli, err := dialEngineFn(host)
	if err != nil {
		return nil, internalerrors.WrapConnectionError("dial", host, err)
	}

	endpoint := cli.DaemonHost()
	if endpoint == "" {
		endpoint = host
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	ping, err := cli.Ping(probeCtx)
	cancel()
	if err != nil {
		_ = cli.Close()
		return nil, internalerrors.WrapProbeError("ping", endpoint, err)
	}

	infoCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()
	var details *systemtypes.Info
	if info, infoErr := cli.Info(infoCtx); infoErr != nil {
		s.logger.Debug().Err(infoErr).Str("endpoint", endpoint).Msg("Engine info unavailable during classification")
	} else {
		details = &info
	}

	return &Connection{
		Client:   cli,
		Endpoint: endpoint,
		Info:     engineInfoFrom(endpoint, ping.APIVersion, details),
	}, nil
}

func supportsTransport(kind TransportKind) bool {
	switch kind {
	case nativeTransport, TransportTCP:
		return true
	default:
		return false
	}
}

func defaultEnvHost() string {
	if host := strings.TrimSpace(getenvFn("DOCKER_HOST")); host != "" {
		return host
	}
	return client.DefaultDockerHost
}
