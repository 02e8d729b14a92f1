package monitoring

import "github.com/rcourtman/harborview/internal/models"

// HasChanged reports whether next differs from prev enough to broadcast. The
// rules short-circuit in order:
//
//  1. no previous snapshot
//  2. container count differs
//  3. a container present in both has a different lifecycle state
//  4. a container id is new
//  5. image, volume or network count differs
//  6. engine status differs
//
// Content-only edits to images, volumes and networks that leave the counts
// unchanged are not detected.
func HasChanged(prev *models.EngineState, next models.EngineState) bool {
	if prev == nil {
		return true
	}

	if len(prev.Containers) != len(next.Containers) {
		return true
	}

	for id, container := range next.Containers {
		if old, ok := prev.Containers[id]; ok && old.State != container.State {
			return true
		}
	}

	for id := range next.Containers {
		if _, ok := prev.Containers[id]; !ok {
			return true
		}
	}

	if len(prev.Images) != len(next.Images) ||
		len(prev.Volumes) != len(next.Volumes) ||
		len(prev.Networks) != len(next.Networks) {
		return true
	}

	return !prev.EngineStatus.Equal(next.EngineStatus)
}
