package models

import "time"

// EngineState is one immutable capture of the engine's resources. Once built it
// is never mutated; consumers replace a cached state instead of patching it.
type EngineState struct {
	Containers    map[string]Container `json:"containers"`
	Images        map[string]Image     `json:"images"`
	Volumes       map[string]Volume    `json:"volumes"`
	Networks      map[string]Network   `json:"networks"`
	EngineStatus  EngineStatus         `json:"engine_status"`
	EngineInfo    *EngineDetails       `json:"engine_info,omitempty"`
	UpdateCounter uint64               `json:"update_counter"`
	CapturedAt    time.Time            `json:"captured_at"`
}

// NewEngineState builds a snapshot. Nil maps are replaced with empty ones so the
// serialized payload always carries all four collections.
func NewEngineState(
	containers map[string]Container,
	images map[string]Image,
	volumes map[string]Volume,
	networks map[string]Network,
	status EngineStatus,
	details *EngineDetails,
	capturedAt time.Time,
) EngineState {
	if containers == nil {
		containers = map[string]Container{}
	}
	if images == nil {
		images = map[string]Image{}
	}
	if volumes == nil {
		volumes = map[string]Volume{}
	}
	if networks == nil {
		networks = map[string]Network{}
	}
	return EngineState{
		Containers:   containers,
		Images:       images,
		Volumes:      volumes,
		Networks:     networks,
		EngineStatus: status,
		EngineInfo:   details,
		CapturedAt:   capturedAt.UTC(),
	}
}

// StatusOnlyState is the snapshot emitted when no handle is available.
func StatusOnlyState(status EngineStatus, capturedAt time.Time) EngineState {
	return NewEngineState(nil, nil, nil, nil, status, nil, capturedAt)
}

// WithCounter returns a copy stamped with the given update counter. The maps are
// shared with the receiver, which is safe because neither copy is ever mutated.
func (s EngineState) WithCounter(counter uint64) EngineState {
	s.UpdateCounter = counter
	return s
}
