package types

import "time"

type BuildOutcome string

const (
	BuildOutcomeBuilt    BuildOutcome = "built"
	BuildOutcomeMissing  BuildOutcome = "missing"
	BuildOutcomeDisabled BuildOutcome = "disabled"
	BuildOutcomeSkipped  BuildOutcome = "skipped"
)

type BuildReport struct {
	RepositoryID int64
	Outcome      BuildOutcome
	Path         string
	Linked       int
	Skipped      []string
	Generated    []string
	Duration     time.Duration
}

type QueueJob struct {
	ID           string    `cbor:"1,keyasint"`
	RepositoryID int64     `cbor:"2,keyasint"`
	EnqueuedAt   time.Time `cbor:"3,keyasint"`
	Attempt      int       `cbor:"4,keyasint"`
}

type BuildEventKind string

const (
	// BuildEventBuilding fires when a queued repository is claimed.
	BuildEventBuilding BuildEventKind = "building"
	// BuildEventReady fires when a build has published the repository.
	BuildEventReady BuildEventKind = "ready"
)

type BuildEvent struct {
	Kind          BuildEventKind `json:"event"`
	RepositoryID  int64          `json:"repository_id"`
	Project       string         `json:"project"`
	Ref           string         `json:"ref"`
	Hash          string         `json:"hash,omitempty"`
	Distro        string         `json:"distro"`
	DistroVersion string         `json:"distro_version"`
	Type          RepoType       `json:"type,omitempty"`
	Path          string         `json:"path,omitempty"`
	At            time.Time      `json:"at"`
}
