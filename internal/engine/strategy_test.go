package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/client"
	"github.com/rs/zerolog"

	"github.com/rcourtman/harborview/internal/engine/enginetest"
	internalerrors "github.com/rcourtman/harborview/internal/errors"
	"github.com/rcourtman/harborview/internal/models"
)

func TestStrategyLocalDefaultSkipsEnumeration(t *testing.T) {
	local := enginetest.New("unix:///var/run/docker.sock")
	dialer := installDialer(t, map[string]*enginetest.Engine{"": local})
	enum := &countingEnumerator{endpoints: []Endpoint{{Name: "other", Host: "unix:///tmp/other.sock", Transport: TransportUnix}}}

	conn, err := NewStrategy(enum, time.Second, zerolog.Nop()).Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if conn.Endpoint != "unix:///var/run/docker.sock" {
		t.Fatalf("endpoint = %q", conn.Endpoint)
	}
	if got := enum.callCount(); got != 0 {
		t.Fatalf("expected zero enumeration calls, got %d", got)
	}
	if got := dialer.dialed(); len(got) != 1 {
		t.Fatalf("expected a single dial, got %v", got)
	}
}

func TestStrategySecondContextWinsWithoutBareDefault(t *testing.T) {
	first := "unix:///tmp/first.sock"
	second := "unix:///home/dev/.colima/default/docker.sock"
	secondEngine := enginetest.New(second)
	bare := enginetest.New(client.DefaultDockerHost)

	dialer := installDialer(t, map[string]*enginetest.Engine{
		"":                       downEngine(""),
		first:                    downEngine(first),
		second:                   secondEngine,
		client.DefaultDockerHost: bare,
	})
	enum := &countingEnumerator{endpoints: []Endpoint{
		{Name: "first", Host: first, Transport: TransportUnix},
		{Name: "colima", Host: second, Transport: TransportUnix},
	}}

	conn, err := NewStrategy(enum, time.Second, zerolog.Nop()).Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if conn.Endpoint != second {
		t.Fatalf("endpoint = %q, want %q", conn.Endpoint, second)
	}
	if conn.Info.Kind != models.EngineKindColima || !conn.Info.VMBacked {
		t.Fatalf("unexpected info: %+v", conn.Info)
	}
	for _, host := range dialer.dialed() {
		if host == client.DefaultDockerHost {
			t.Fatalf("bare default dialed after a context succeeded: %v", dialer.dialed())
		}
	}
	if bare.PingCalls() != 0 {
		t.Fatalf("bare default probed %d times", bare.PingCalls())
	}
}

func TestStrategySkipsUnsupportedTransports(t *testing.T) {
	dialer := installDialer(t, map[string]*enginetest.Engine{
		"":                       downEngine(""),
		client.DefaultDockerHost: downEngine(client.DefaultDockerHost),
	})
	enum := &countingEnumerator{endpoints: []Endpoint{
		{Name: "remote", Host: "ssh://dev@build", Transport: TransportSSH},
		{Name: "weird", Host: "fd://3", Transport: TransportUnknown},
	}}

	_, err := NewStrategy(enum, time.Second, zerolog.Nop()).Connect(context.Background())
	if err == nil {
		t.Fatal("expected failure")
	}
	for _, host := range dialer.dialed() {
		if strings.HasPrefix(host, "ssh://") || strings.HasPrefix(host, "fd://") {
			t.Fatalf("unsupported transport dialed: %s", host)
		}
	}
	if strings.Contains(err.Error(), "ssh://") {
		t.Fatalf("skipped context counted as a failure: %v", err)
	}
}

func TestStrategyAllFail(t *testing.T) {
	installDialer(t, map[string]*enginetest.Engine{
		"":                       downEngine(""),
		client.DefaultDockerHost: downEngine(client.DefaultDockerHost),
	})
	enum := &countingEnumerator{err: errors.New("docker: not found")}

	_, err := NewStrategy(enum, time.Second, zerolog.Nop()).Connect(context.Background())
	if !errors.Is(err, internalerrors.ErrNoReachableEndpoint) {
		t.Fatalf("expected ErrNoReachableEndpoint, got %v", err)
	}
	if !internalerrors.IsConnectionError(err) {
		t.Fatalf("expected connection error classification")
	}
	for _, want := range []string{"environment default", "enumerate contexts", "bare default"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing attempt %q", err, want)
		}
	}
}

func TestStrategyBareDefaultNeedsProbe(t *testing.T) {
	bare := enginetest.New(client.DefaultDockerHost)
	installDialer(t, map[string]*enginetest.Engine{
		"":                       downEngine(""),
		client.DefaultDockerHost: bare,
	})

	conn, err := NewStrategy(nil, time.Second, zerolog.Nop()).Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if conn.Endpoint != client.DefaultDockerHost {
		t.Fatalf("endpoint = %q", conn.Endpoint)
	}
	if bare.PingCalls() != 1 {
		t.Fatalf("expected exactly one probe of the bare default, got %d", bare.PingCalls())
	}
}

func TestStrategyClosesFailedClients(t *testing.T) {
	local := downEngine("")
	installDialer(t, map[string]*enginetest.Engine{
		"":                       local,
		client.DefaultDockerHost: enginetest.New(client.DefaultDockerHost),
	})

	if _, err := NewStrategy(nil, time.Second, zerolog.Nop()).Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if local.CloseCalls() != 1 {
		t.Fatalf("failed client closed %d times", local.CloseCalls())
	}
}

func TestStrategyInstalledDelegates(t *testing.T) {
	s := NewStrategy(&countingEnumerator{installed: "/usr/bin/docker"}, 0, zerolog.Nop())
	if path, ok := s.Installed(); !ok || path != "/usr/bin/docker" {
		t.Fatalf("Installed() = %q, %v", path, ok)
	}
	if _, ok := NewStrategy(nil, 0, zerolog.Nop()).Installed(); ok {
		t.Fatal("nil enumerator reported installed tooling")
	}
}
