package ports

import (
	"context"

	"repobuild/internal/types"
)

// GeneratorPort produces package-manager metadata for one directory.
type GeneratorPort interface {
	Generate(ctx context.Context, repoType types.RepoType, dir string) error
}
