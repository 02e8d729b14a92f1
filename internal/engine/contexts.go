package engine

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// TransportKind is the dial scheme of an endpoint.
type TransportKind string

const (
	TransportUnix    TransportKind = "unix"
	TransportNpipe   TransportKind = "npipe"
	TransportTCP     TransportKind = "tcp"
	TransportSSH     TransportKind = "ssh"
	TransportUnknown TransportKind = "unknown"
)

// Endpoint is one candidate daemon address.
type Endpoint struct {
	Name      string
	Host      string
	Transport TransportKind
}

// EndpointEnumerator is the single platform capability the strategy depends on:
// list the candidate endpoints configured on this machine, in preference order.
type EndpointEnumerator interface {
	Enumerate(ctx context.Context) ([]Endpoint, error)
}

// InstallDetector is optionally implemented by enumerators that can tell whether
// engine tooling is present even when no daemon answers.
type InstallDetector interface {
	Installed() (string, bool)
}

// CommandRunner executes a helper binary and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// TransportOf derives the transport kind from a host URL.
func TransportOf(host string) TransportKind {
	scheme, _, ok := strings.Cut(strings.TrimSpace(host), "://")
	if !ok {
		return TransportUnknown
	}
	switch strings.ToLower(scheme) {
	case "unix":
		return TransportUnix
	case "npipe":
		return TransportNpipe
	case "tcp", "http", "https":
		return TransportTCP
	case "ssh":
		return TransportSSH
	default:
		return TransportUnknown
	}
}

// ParseEndpoints turns newline-delimited helper output into endpoints. Each line is
// either "<host>" or "<name>\t<host>"; blank lines and duplicates are dropped.
func ParseEndpoints(output []byte) []Endpoint {
	var endpoints []Endpoint
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		name := ""
		host := line
		if before, after, ok := strings.Cut(line, "\t"); ok {
			name = strings.TrimSpace(before)
			host = strings.TrimSpace(after)
		}
		if host == "" {
			continue
		}
		if _, dup := seen[host]; dup {
			continue
		}
		seen[host] = struct{}{}

		if name == "" {
			name = host
		}
		endpoints = append(endpoints, Endpoint{
			Name:      name,
			Host:      host,
			Transport: TransportOf(host),
		})
	}
	return endpoints
}

// CLIEnumerator lists endpoints by asking the engine CLI for its contexts and then
// appending the well-known sockets of VM-backed engines for this platform.
type CLIEnumerator struct {
	Binary    string
	Run       CommandRunner
	HomeDir   string
	Logger    zerolog.Logger
	WellKnown []Endpoint
}

// NewCLIEnumerator builds the default enumerator for the running platform.
func NewCLIEnumerator(binary string, logger zerolog.Logger) *CLIEnumerator {
	if strings.TrimSpace(binary) == "" {
		binary = "docker"
	}
	home, _ := os.UserHomeDir()
	return &CLIEnumerator{
		Binary:    binary,
		Run:       runCommandFn,
		HomeDir:   home,
		Logger:    logger.With().Str("component", "endpoint-enumerator").Logger(),
		WellKnown: wellKnownEndpoints(home),
	}
}

// Enumerate runs "<binary> context ls" and merges the result with well-known sockets.
// A failing helper is not fatal as long as well-known sockets exist to try.
func (e *CLIEnumerator) Enumerate(ctx context.Context) ([]Endpoint, error) {
	run := e.Run
	if run == nil {
		run = runCommandFn
	}

	var endpoints []Endpoint
	output, err := run(ctx, e.Binary, "context", "ls", "--format", "{{.Name}}\t{{.DockerEndpoint}}")
	if err != nil {
		e.Logger.Debug().Err(err).Str("binary", e.Binary).Msg("Context enumeration helper failed")
	} else {
		endpoints = ParseEndpoints(output)
	}

	seen := make(map[string]struct{}, len(endpoints))
	for _, ep := range endpoints {
		seen[ep.Host] = struct{}{}
	}
	for _, ep := range e.WellKnown {
		if _, ok := seen[ep.Host]; ok {
			continue
		}
		if path, ok := socketPath(ep.Host); ok {
			if _, statErr := os.Stat(path); statErr != nil {
				continue
			}
		}
		seen[ep.Host] = struct{}{}
		endpoints = append(endpoints, ep)
	}

	if len(endpoints) == 0 && err != nil {
		return nil, fmt.Errorf("enumerate %s contexts: %w", e.Binary, err)
	}
	return endpoints, nil
}

// Installed reports whether the engine CLI is on PATH.
func (e *CLIEnumerator) Installed() (string, bool) {
	path, err := lookPathFn(e.Binary)
	if err != nil {
		return "", false
	}
	return path, true
}

func socketPath(host string) (string, bool) {
	if TransportOf(host) != TransportUnix {
		return "", false
	}
	_, path, _ := strings.Cut(host, "://")
	return filepath.FromSlash(path), true
}

func unixSocket(name string, path string) Endpoint {
	return Endpoint{Name: name, Host: "unix://" + filepath.ToSlash(path), Transport: TransportUnix}
}
