package adapters

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"repobuild/internal/ports"
	"repobuild/internal/types"
)

type binaryKey struct {
	Project       string
	Distro        string
	DistroVersion string
	Ref           string
	Hash          string
	Arch          string
	Name          string
}

// MemoryStoreAdapter keeps projects, repositories and binaries in
// process. A single mutex serializes every write, which makes
// UpdateRepository atomic.
type MemoryStoreAdapter struct {
	mu sync.Mutex

	nextID        int64
	projects      map[string]types.Project
	repos         map[int64]types.Repository
	reposByKey    map[types.RepositoryKey]int64
	binaries      map[int64]types.Binary
	binariesByKey map[binaryKey]int64
}

func NewMemoryStoreAdapter() *MemoryStoreAdapter {
	return &MemoryStoreAdapter{
		projects:      map[string]types.Project{},
		repos:         map[int64]types.Repository{},
		reposByKey:    map[types.RepositoryKey]int64{},
		binaries:      map[int64]types.Binary{},
		binariesByKey: map[binaryKey]int64{},
	}
}

func (s *MemoryStoreAdapter) GetOrCreateProject(ctx context.Context, name string) (types.Project, error) {
	if err := ctx.Err(); err != nil {
		return types.Project{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Project{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("project name is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if project, ok := s.projects[name]; ok {
		return project, nil
	}
	s.nextID++
	project := types.Project{ID: s.nextID, Name: name}
	s.projects[name] = project
	return project, nil
}

func (s *MemoryStoreAdapter) ListProjects(ctx context.Context) ([]types.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Project, 0, len(s.projects))
	for _, project := range s.projects {
		out = append(out, project)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStoreAdapter) GetRepository(ctx context.Context, id int64) (types.Repository, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.Repository{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	repo, ok := s.repos[id]
	return repo, ok, nil
}

func (s *MemoryStoreAdapter) FindRepositories(ctx context.Context, filter types.RepositoryFilter) ([]types.Repository, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	refs := map[string]struct{}{}
	for _, ref := range filter.Refs {
		refs[ref] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Repository
	for _, repo := range s.repos {
		if filter.Project != "" && repo.Project != filter.Project {
			continue
		}
		if filter.State != "" && repo.State != filter.State {
			continue
		}
		if len(refs) > 0 {
			if _, ok := refs[repo.Ref]; !ok {
				continue
			}
		}
		out = append(out, repo)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStoreAdapter) GetOrCreateRepository(ctx context.Context, key types.RepositoryKey, init func(*types.Repository)) (types.Repository, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.Repository{}, false, err
	}
	if err := validateRepositoryKey(key); err != nil {
		return types.Repository{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.reposByKey[key]; ok {
		return s.repos[id], false, nil
	}
	if _, ok := s.projects[key.Project]; !ok {
		s.nextID++
		s.projects[key.Project] = types.Project{ID: s.nextID, Name: key.Project}
	}
	s.nextID++
	repo := types.Repository{
		ID:            s.nextID,
		Project:       key.Project,
		Ref:           key.Ref,
		Hash:          key.Hash,
		Distro:        key.Distro,
		DistroVersion: key.DistroVersion,
		State:         types.RepoStateIdle,
	}
	if init != nil {
		init(&repo)
	}
	s.repos[repo.ID] = repo
	s.reposByKey[key] = repo.ID
	return repo, true, nil
}

func (s *MemoryStoreAdapter) UpdateRepository(ctx context.Context, id int64, mutate func(*types.Repository) error) (types.Repository, error) {
	if err := ctx.Err(); err != nil {
		return types.Repository{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.repos[id]
	if !ok {
		return types.Repository{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("repository %d not found", id))
	}
	next := current
	if err := mutate(&next); err != nil {
		return current, err
	}
	next.ID = current.ID
	next.Project, next.Ref, next.Hash = current.Project, current.Ref, current.Hash
	next.Distro, next.DistroVersion = current.Distro, current.DistroVersion
	s.repos[id] = next
	return next, nil
}

func (s *MemoryStoreAdapter) UpsertBinary(ctx context.Context, binary types.Binary) (types.Binary, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.Binary{}, false, err
	}
	if err := validateBinary(binary); err != nil {
		return types.Binary{}, false, err
	}
	key := binaryKey{
		Project:       binary.Project,
		Distro:        binary.Distro,
		DistroVersion: binary.DistroVersion,
		Ref:           binary.Ref,
		Hash:          binary.Hash,
		Arch:          binary.Arch,
		Name:          binary.Name,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[binary.Project]; !ok {
		s.nextID++
		s.projects[binary.Project] = types.Project{ID: s.nextID, Name: binary.Project}
	}
	if id, ok := s.binariesByKey[key]; ok {
		existing := s.binaries[id]
		existing.Path = binary.Path
		existing.Size = binary.Size
		existing.Checksum = binary.Checksum
		s.binaries[id] = existing
		return existing, false, nil
	}
	s.nextID++
	binary.ID = s.nextID
	s.binaries[binary.ID] = binary
	s.binariesByKey[key] = binary.ID
	return binary, true, nil
}

func (s *MemoryStoreAdapter) FindBinaries(ctx context.Context, filter types.BinaryFilter) ([]types.Binary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Binary
	for _, binary := range s.binaries {
		if !matchBinary(filter, binary) {
			continue
		}
		out = append(out, binary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStoreAdapter) Close() error {
	return nil
}

func matchBinary(filter types.BinaryFilter, binary types.Binary) bool {
	checks := [][2]string{
		{filter.Project, binary.Project},
		{filter.Distro, binary.Distro},
		{filter.DistroVersion, binary.DistroVersion},
		{filter.Ref, binary.Ref},
		{filter.Hash, binary.Hash},
	}
	for _, check := range checks {
		if check[0] != "" && check[0] != check[1] {
			return false
		}
	}
	return true
}

func validateRepositoryKey(key types.RepositoryKey) error {
	if strings.TrimSpace(key.Project) == "" || strings.TrimSpace(key.Ref) == "" ||
		strings.TrimSpace(key.Distro) == "" || strings.TrimSpace(key.DistroVersion) == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("repository key requires project, ref, distro and distro version")
	}
	return nil
}

func validateBinary(binary types.Binary) error {
	if strings.TrimSpace(binary.Name) == "" || strings.TrimSpace(binary.Path) == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("binary name and path are required")
	}
	return validateRepositoryKey(types.RepositoryKey{
		Project:       binary.Project,
		Ref:           binary.Ref,
		Distro:        binary.Distro,
		DistroVersion: binary.DistroVersion,
	})
}

var _ ports.StorePort = (*MemoryStoreAdapter)(nil)
