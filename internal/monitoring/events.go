package monitoring

import (
	"context"
	"errors"
	"io"

	eventtypes "github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	"github.com/rs/zerolog"

	internalerrors "github.com/rcourtman/harborview/internal/errors"
)

// eventTaskResult is what the supervisor learns when the event task exits.
type eventTaskResult struct {
	processed int
	err       error
}

func eventFilters() filters.Args {
	return filters.NewArgs(
		filters.Arg("type", string(eventtypes.ContainerEventType)),
		filters.Arg("type", string(eventtypes.ImageEventType)),
		filters.Arg("type", string(eventtypes.VolumeEventType)),
		filters.Arg("type", string(eventtypes.NetworkEventType)),
		filters.Arg("type", string(eventtypes.DaemonEventType)),
	)
}

// spawnEventTask starts the event subscription task and returns a channel that
// receives its result exactly once.
func (m *Monitor) spawnEventTask(ctx context.Context, logger zerolog.Logger) <-chan eventTaskResult {
	done := make(chan eventTaskResult, 1)
	go func() {
		done <- m.runEventTask(ctx, logger)
	}()
	return done
}

// runEventTask subscribes to the engine's event stream and runs one cycle per
// event. It returns when the stream ends, when ctx is cancelled, or after
// MaxEventFailures consecutive read errors.
func (m *Monitor) runEventTask(ctx context.Context, logger zerolog.Logger) eventTaskResult {
	handle, _, err := m.cache.Acquire(ctx)
	if err != nil {
		return eventTaskResult{err: err}
	}
	defer m.cache.Release(handle)

	endpoint := handle.Endpoint()
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	msgs, errs := handle.Client().Events(streamCtx, eventtypes.ListOptions{Filters: eventFilters()})
	logger.Debug().Str("endpoint", endpoint).Msg("Subscribed to engine events")

	processed := 0
	failures := 0

	// onErr reports whether the task must stop, and with which error.
	onErr := func(err error, ok bool) (bool, error) {
		if !ok || errors.Is(err, io.EOF) {
			logger.Info().Str("endpoint", endpoint).Int("processed", processed).Msg("Engine event stream ended")
			return true, internalerrors.WrapStreamError("event_stream", endpoint, io.EOF)
		}
		if ctx.Err() != nil {
			return true, ctx.Err()
		}
		failures++
		m.metrics.streamFailures.Inc()
		logger.Warn().Err(err).Str("endpoint", endpoint).Int("consecutive", failures).Msg("Engine event stream read failed")
		if failures >= m.cfg.MaxEventFailures {
			return true, internalerrors.WrapExhaustionError("event_stream", endpoint, err)
		}
		return false, nil
	}

	onMsg := func(msg eventtypes.Message) {
		failures = 0
		if msg.Type == "" && msg.Action == "" {
			return
		}
		processed++
		m.metrics.events.WithLabelValues(string(msg.Type)).Inc()
		logger.Debug().
			Str("type", string(msg.Type)).
			Str("action", string(msg.Action)).
			Str("actor", msg.Actor.ID).
			Msg("Engine event received")
		if err := m.cycle(ctx, logger, false); err != nil {
			logger.Debug().Err(err).Msg("Event-triggered cycle failed")
		}
	}

	timer := newTimerFn(m.cfg.FirstEventTimeout)
	select {
	case <-ctx.Done():
		timer.Stop()
		return eventTaskResult{processed: processed, err: ctx.Err()}
	case msg := <-msgs:
		timer.Stop()
		onMsg(msg)
	case err, ok := <-errs:
		timer.Stop()
		if stop, stopErr := onErr(err, ok); stop {
			return eventTaskResult{processed: processed, err: stopErr}
		}
	case <-timer.C:
		logger.Debug().Dur("timeout", m.cfg.FirstEventTimeout).Msg("No engine event within first-event window")
	}

	for {
		select {
		case <-ctx.Done():
			return eventTaskResult{processed: processed, err: ctx.Err()}
		case msg := <-msgs:
			onMsg(msg)
		case err, ok := <-errs:
			if stop, stopErr := onErr(err, ok); stop {
				return eventTaskResult{processed: processed, err: stopErr}
			}
		}
	}
}
