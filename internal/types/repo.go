package types

type RepoType string

const (
	RepoTypeUnknown RepoType = ""
	RepoTypeRPM     RepoType = "rpm"
	RepoTypeDeb     RepoType = "deb"
)

// DistroFamily selects how the metadata generator is invoked for a
// repository. Flat families expect a single metadata tree at the
// repository root; everything else gets one tree per arch directory.
type DistroFamily string

const (
	DistroFamilyPerArch DistroFamily = "per-arch"
	DistroFamilyFlat    DistroFamily = "flat"
)

type Project struct {
	ID   int64
	Name string
}

// Binary is one stored artifact. Hash identifies the build that
// produced it and is shared by its sibling artifacts; Checksum is the
// digest of the file itself.
type Binary struct {
	ID            int64
	Name          string
	Project       string
	Arch          string
	Distro        string
	DistroVersion string
	Ref           string
	Hash          string
	Checksum      string
	Path          string
	Size          int64
}

// BinaryFilter selects binaries. Empty fields match anything.
type BinaryFilter struct {
	Project       string
	Distro        string
	DistroVersion string
	Ref           string
	Hash          string
}

type RepositoryKey struct {
	Project       string
	Ref           string
	Hash          string
	Distro        string
	DistroVersion string
}

type Repository struct {
	ID             int64
	Project        string
	Ref            string
	Hash           string
	Distro         string
	DistroVersion  string
	Path           string
	Type           RepoType
	State          RepoState
	RebuildPending bool
}

func (r Repository) Key() RepositoryKey {
	return RepositoryKey{
		Project:       r.Project,
		Ref:           r.Ref,
		Hash:          r.Hash,
		Distro:        r.Distro,
		DistroVersion: r.DistroVersion,
	}
}

func (r Repository) NeedsUpdate() bool { return r.State == RepoStateNeedsUpdate }
func (r Repository) IsQueued() bool    { return r.State == RepoStateQueued }
func (r Repository) IsUpdating() bool  { return r.State == RepoStateUpdating }

// RepositoryFilter selects repositories. Empty fields match anything;
// Refs restricts to the listed refs when non-empty.
type RepositoryFilter struct {
	Project string
	Refs    []string
	State   RepoState
}
