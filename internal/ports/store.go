package ports

import (
	"context"

	"repobuild/internal/types"
)

type ProjectStorePort interface {
	GetOrCreateProject(ctx context.Context, name string) (types.Project, error)
	ListProjects(ctx context.Context) ([]types.Project, error)
}

// RepositoryStorePort persists repositories. UpdateRepository runs
// mutate against the current row and writes the result in one atomic
// step; an error from mutate aborts the write.
type RepositoryStorePort interface {
	GetRepository(ctx context.Context, id int64) (types.Repository, bool, error)
	FindRepositories(ctx context.Context, filter types.RepositoryFilter) ([]types.Repository, error)
	GetOrCreateRepository(ctx context.Context, key types.RepositoryKey, init func(*types.Repository)) (types.Repository, bool, error)
	UpdateRepository(ctx context.Context, id int64, mutate func(*types.Repository) error) (types.Repository, error)
}

type BinaryStorePort interface {
	UpsertBinary(ctx context.Context, binary types.Binary) (types.Binary, bool, error)
	FindBinaries(ctx context.Context, filter types.BinaryFilter) ([]types.Binary, error)
}

type StorePort interface {
	ProjectStorePort
	RepositoryStorePort
	BinaryStorePort
	Close() error
}
