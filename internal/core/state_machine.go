package core

import (
	"context"
	"errors"
	"fmt"

	"repobuild/internal/ports"
	"repobuild/internal/types"
)

var ErrIllegalTransition = errors.New("illegal repository state transition")

// TransitionError reports a transition rejected by the lifecycle table.
type TransitionError struct {
	RepositoryID int64
	From         types.RepoState
	To           types.RepoState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("repository %d: %s -> %s: %s", e.RepositoryID, e.From, e.To, ErrIllegalTransition)
}

func (e *TransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// StateMachine applies lifecycle transitions to persisted repositories.
// Every method is a single atomic read-validate-write against the store.
type StateMachine struct {
	Store ports.RepositoryStorePort
}

func NewStateMachine(store ports.RepositoryStorePort) StateMachine {
	return StateMachine{Store: store}
}

// Transition moves the repository to next and applies mutate in the same
// write. The current state must allow next.
func (m StateMachine) Transition(ctx context.Context, id int64, next types.RepoState, mutate func(*types.Repository)) (types.Repository, error) {
	return m.Store.UpdateRepository(ctx, id, func(repo *types.Repository) error {
		if err := moveTo(repo, next); err != nil {
			return err
		}
		if mutate != nil {
			mutate(repo)
		}
		return nil
	})
}

// RequestRebuild flags repo for a rebuild. Queued and pending
// repositories are left alone; an updating repository remembers the
// request and returns to needs_update once the running build ends.
// A state outside the lifecycle is rejected.
func RequestRebuild(repo *types.Repository) error {
	switch repo.State {
	case types.RepoStateNeedsUpdate, types.RepoStateQueued:
		return nil
	case types.RepoStateUpdating:
		repo.RebuildPending = true
		return nil
	}
	return moveTo(repo, types.RepoStateNeedsUpdate)
}

func (m StateMachine) MarkNeedsUpdate(ctx context.Context, id int64) (types.Repository, error) {
	return m.Store.UpdateRepository(ctx, id, RequestRebuild)
}

// ClaimForQueue performs needs_update -> queued. The boolean is false
// when the repository is in any other state, which is how concurrent
// schedulers lose the race without an error.
func (m StateMachine) ClaimForQueue(ctx context.Context, id int64) (types.Repository, bool, error) {
	return m.claim(ctx, id, types.RepoStateNeedsUpdate, types.RepoStateQueued, nil)
}

// BeginUpdate performs queued -> updating and persists the resolved path.
func (m StateMachine) BeginUpdate(ctx context.Context, id int64, path string) (types.Repository, bool, error) {
	return m.claim(ctx, id, types.RepoStateQueued, types.RepoStateUpdating, func(repo *types.Repository) {
		repo.Path = path
		repo.RebuildPending = false
	})
}

// Finish ends a successful build. A rebuild requested while the build
// was running sends the repository back to needs_update.
func (m StateMachine) Finish(ctx context.Context, id int64, repoType types.RepoType) (types.Repository, error) {
	return m.Store.UpdateRepository(ctx, id, func(repo *types.Repository) error {
		next := types.RepoStateIdle
		if repo.RebuildPending {
			next = types.RepoStateNeedsUpdate
		}
		if err := moveTo(repo, next); err != nil {
			return err
		}
		repo.RebuildPending = false
		if repo.Type == types.RepoTypeUnknown {
			repo.Type = repoType
		}
		return nil
	})
}

func (m StateMachine) Fail(ctx context.Context, id int64) (types.Repository, error) {
	return m.Transition(ctx, id, types.RepoStateNeedsUpdate, func(repo *types.Repository) {
		repo.RebuildPending = false
	})
}

// Release returns a queued repository to needs_update, used when the
// job could not be handed to the queue.
func (m StateMachine) Release(ctx context.Context, id int64) (types.Repository, error) {
	return m.Transition(ctx, id, types.RepoStateNeedsUpdate, nil)
}

// Disable clears pending work for a repository whose project is
// disabled. Idle and updating repositories are returned unchanged.
func (m StateMachine) Disable(ctx context.Context, id int64) (types.Repository, error) {
	return m.Store.UpdateRepository(ctx, id, func(repo *types.Repository) error {
		switch repo.State {
		case types.RepoStateIdle, types.RepoStateUpdating:
			return nil
		}
		return moveTo(repo, types.RepoStateIdle)
	})
}

func (m StateMachine) claim(ctx context.Context, id int64, from types.RepoState, to types.RepoState, mutate func(*types.Repository)) (types.Repository, bool, error) {
	claimed := false
	repo, err := m.Store.UpdateRepository(ctx, id, func(repo *types.Repository) error {
		if repo.State != from {
			return nil
		}
		if err := moveTo(repo, to); err != nil {
			return err
		}
		if mutate != nil {
			mutate(repo)
		}
		claimed = true
		return nil
	})
	if err != nil {
		return types.Repository{}, false, err
	}
	return repo, claimed, nil
}

// moveTo is the only place a repository state is written.
func moveTo(repo *types.Repository, next types.RepoState) error {
	if !repo.State.CanTransition(next) {
		return &TransitionError{RepositoryID: repo.ID, From: repo.State, To: next}
	}
	repo.State = next
	return nil
}

func IsIllegalTransition(err error) bool {
	var transitionErr *TransitionError
	return errors.As(err, &transitionErr)
}
