package types

type RepoState string

const (
	RepoStateIdle        RepoState = "idle"
	RepoStateNeedsUpdate RepoState = "needs_update"
	RepoStateQueued      RepoState = "queued"
	RepoStateUpdating    RepoState = "updating"
)

var legalTransitions = map[RepoState]map[RepoState]struct{}{
	RepoStateIdle: {
		RepoStateNeedsUpdate: {},
	},
	RepoStateNeedsUpdate: {
		RepoStateQueued: {},
		RepoStateIdle:   {},
	},
	RepoStateQueued: {
		RepoStateUpdating:    {},
		RepoStateIdle:        {},
		RepoStateNeedsUpdate: {},
	},
	RepoStateUpdating: {
		RepoStateIdle:        {},
		RepoStateNeedsUpdate: {},
	},
}

func (s RepoState) Valid() bool {
	_, ok := legalTransitions[s]
	return ok
}

// CanTransition reports whether moving from s to next is a legal
// lifecycle step. Self transitions are never legal.
func (s RepoState) CanTransition(next RepoState) bool {
	targets, ok := legalTransitions[s]
	if !ok {
		return false
	}
	_, ok = targets[next]
	return ok
}
