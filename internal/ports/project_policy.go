package ports

import "repobuild/internal/types"

type ProjectPolicyPort interface {
	IsAutomatic(project string) bool
	IsDisabled(project string) bool
	// ExtraSources lists the projects whose binaries are folded into
	// repositories of project.
	ExtraSources(project string) []types.RelatedSource
	// Dependents lists the projects that fold binaries of project into
	// their own repositories, with the refs of the dependent project
	// that must be rebuilt.
	Dependents(project string) []types.RelatedSource
}

type ProjectPolicyLoaderPort interface {
	Load(path string) (types.ProjectsFile, error)
}
