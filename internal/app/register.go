package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"repobuild/internal/adapters"
	"repobuild/internal/core"
	"repobuild/internal/policies"
	"repobuild/internal/types"
)

// RegisterBinary records an uploaded artifact and flags every repository
// it makes stale: its own and those of projects that fold it in.
func (s Service) RegisterBinary(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
	ctx = log.Logger.WithContext(ctx)
	binary, err := s.binaryFromRequest(req)
	if err != nil {
		return RegisterResult{}, err
	}
	logger := log.Ctx(ctx).With().
		Str("project", binary.Project).
		Str("binary", binary.Name).
		Str("ref", binary.Ref).
		Logger()
	ctx = logger.WithContext(ctx)

	stored, created, err := s.Store.UpsertBinary(ctx, binary)
	if err != nil {
		return RegisterResult{}, err
	}
	resolver := s.resolver()
	own, err := resolver.MarkOwn(ctx, stored)
	if err != nil {
		return RegisterResult{}, err
	}
	related, err := resolver.MarkRelated(ctx, stored)
	if err != nil {
		return RegisterResult{}, err
	}
	logger.Info().
		Bool("created", created).
		Str("state", string(own.State)).
		Int("related", len(related)).
		Msg("binary registered")
	return RegisterResult{Binary: stored, Created: created, Own: own, Related: related}, nil
}

func (s Service) binaryFromRequest(req RegisterRequest) (types.Binary, error) {
	path := strings.TrimSpace(req.Path)
	if path == "" {
		return types.Binary{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("binary path is required")
	}
	absolute, err := filepath.Abs(path)
	if err != nil {
		return types.Binary{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid binary path").
			WithCause(err)
	}
	info, err := os.Stat(absolute)
	if err != nil {
		return types.Binary{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("binary file not found").
			WithCause(err)
	}
	if info.IsDir() {
		return types.Binary{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("binary path is a directory")
	}
	project := strings.TrimSpace(req.Project)
	if !policies.ValidProjectName(project) {
		return types.Binary{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid project name: " + project)
	}
	required := []struct {
		field string
		value string
	}{
		{"ref", req.Ref},
		{"distro", req.Distro},
		{"distro version", req.DistroVersion},
	}
	for _, entry := range required {
		if strings.TrimSpace(entry.value) == "" {
			return types.Binary{}, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(entry.field + " is required")
		}
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = filepath.Base(absolute)
	}
	arch := strings.TrimSpace(req.Arch)
	if arch == "" {
		// Unplaceable names keep an empty arch; the executor skips them.
		arch, _ = core.InferArchDirectory(core.InferRepoType(name), name)
	}
	key := types.RepositoryKey{
		Project:       project,
		Ref:           strings.TrimSpace(req.Ref),
		Hash:          strings.TrimSpace(req.Hash),
		Distro:        strings.TrimSpace(req.Distro),
		DistroVersion: strings.TrimSpace(req.DistroVersion),
	}
	if err := core.CheckRepositoryKey(key); err != nil {
		return types.Binary{}, err
	}
	checksum, err := adapters.HashFile(absolute)
	if err != nil {
		return types.Binary{}, err
	}
	return types.Binary{
		Name:          name,
		Project:       key.Project,
		Arch:          arch,
		Distro:        key.Distro,
		DistroVersion: key.DistroVersion,
		Ref:           key.Ref,
		Hash:          key.Hash,
		Checksum:      checksum,
		Path:          absolute,
		Size:          info.Size(),
	}, nil
}
