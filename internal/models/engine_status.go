package models

// StatusState is the tag of an EngineStatus.
type StatusState string

const (
	StatusUnknown   StatusState = "unknown"
	StatusInstalled StatusState = "installed"
	StatusRunning   StatusState = "running"
)

// EngineStatus is a tagged variant: Unknown, Installed(info) or Running(info).
// Info is nil only for Unknown.
type EngineStatus struct {
	State StatusState `json:"state"`
	Info  *EngineInfo `json:"info,omitempty"`
}

// UnknownStatus reports that no engine could be found.
func UnknownStatus() EngineStatus {
	return EngineStatus{State: StatusUnknown}
}

// InstalledStatus reports an engine whose tooling exists but whose daemon is not reachable.
func InstalledStatus(info EngineInfo) EngineStatus {
	return EngineStatus{State: StatusInstalled, Info: &info}
}

// RunningStatus reports a reachable daemon.
func RunningStatus(info EngineInfo) EngineStatus {
	return EngineStatus{State: StatusRunning, Info: &info}
}

// IsRunning is the liveness predicate used by the handle cache.
func (s EngineStatus) IsRunning() bool {
	return s.State == StatusRunning
}

// Equal compares the tag and the backend identity (kind, endpoint, VM
// backing). Version and host details come from a best-effort daemon query and
// are ignored.
func (s EngineStatus) Equal(other EngineStatus) bool {
	if s.State != other.State {
		return false
	}
	switch {
	case s.Info == nil && other.Info == nil:
		return true
	case s.Info == nil || other.Info == nil:
		return false
	default:
		return s.Info.SameBackend(*other.Info)
	}
}

func (s EngineStatus) String() string {
	if s.Info == nil || s.Info.Kind == "" {
		return string(s.State)
	}
	return string(s.State) + "(" + string(s.Info.Kind) + ")"
}
