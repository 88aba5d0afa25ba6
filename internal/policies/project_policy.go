package policies

import (
	"strings"

	"github.com/rs/zerolog/log"

	"repobuild/internal/ports"
	"repobuild/internal/shared"
	"repobuild/internal/types"
)

// ProjectPolicy answers per-project build questions from the operator
// configuration. The reverse relation index is compiled once.
type ProjectPolicy struct {
	projects   map[string]types.ProjectConfig
	forward    map[string][]types.RelatedSource
	dependents map[string][]types.RelatedSource
}

func NewProjectPolicy(projects map[string]types.ProjectConfig) ProjectPolicy {
	policy := ProjectPolicy{
		projects:   map[string]types.ProjectConfig{},
		forward:    map[string][]types.RelatedSource{},
		dependents: map[string][]types.RelatedSource{},
	}
	for _, rawName := range shared.SortedKeys(projects) {
		config := projects[rawName]
		name := strings.TrimSpace(rawName)
		if !ValidProjectName(name) {
			log.Warn().Str("project", rawName).Msg("skipping project with invalid name")
			continue
		}
		policy.projects[name] = config
		for _, rawRelated := range shared.SortedKeys(config.Related) {
			refs := config.Related[rawRelated]
			relatedName := strings.TrimSpace(rawRelated)
			if !ValidProjectName(relatedName) || relatedName == name {
				log.Warn().
					Str("project", name).
					Str("related", rawRelated).
					Msg("skipping misconfigured related project")
				continue
			}
			if refs.IsEmpty() {
				log.Warn().
					Str("project", name).
					Str("related", relatedName).
					Msg("skipping related project without refs")
				continue
			}
			policy.forward[name] = append(policy.forward[name], types.RelatedSource{Project: relatedName, Refs: refs})
			policy.dependents[relatedName] = append(policy.dependents[relatedName], types.RelatedSource{Project: name, Refs: refs})
		}
	}
	return policy
}

func (p ProjectPolicy) IsAutomatic(project string) bool {
	config, ok := p.projects[project]
	return ok && config.Automatic
}

func (p ProjectPolicy) IsDisabled(project string) bool {
	config, ok := p.projects[project]
	return ok && config.Disabled
}

func (p ProjectPolicy) ExtraSources(project string) []types.RelatedSource {
	return p.forward[project]
}

func (p ProjectPolicy) Dependents(project string) []types.RelatedSource {
	return p.dependents[project]
}

// ValidProjectName rejects names that cannot be used as a single path
// segment.
func ValidProjectName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\") && strings.TrimSpace(name) == name
}

var _ ports.ProjectPolicyPort = ProjectPolicy{}
