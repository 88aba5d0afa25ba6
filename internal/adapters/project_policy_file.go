package adapters

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"gopkg.in/yaml.v3"

	"repobuild/internal/ports"
	"repobuild/internal/types"
)

// ProjectPolicyFileAdapter reads the per-project policy from YAML:
//
//	projects:
//	  foo:
//	    automatic: true
//	    related:
//	      bar: [main]
//	      baz: all
type ProjectPolicyFileAdapter struct{}

func NewProjectPolicyFileAdapter() ProjectPolicyFileAdapter {
	return ProjectPolicyFileAdapter{}
}

// Load returns an empty policy when path is blank.
func (a ProjectPolicyFileAdapter) Load(path string) (types.ProjectsFile, error) {
	if strings.TrimSpace(path) == "" {
		return types.ProjectsFile{Projects: map[string]types.ProjectConfig{}}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return types.ProjectsFile{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("projects file not found").
			WithCause(err)
	}
	return ParseProjectsFile(data)
}

func ParseProjectsFile(data []byte) (types.ProjectsFile, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	var file types.ProjectsFile
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return types.ProjectsFile{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("failed to parse projects yaml").
			WithCause(err)
	}
	if file.Projects == nil {
		file.Projects = map[string]types.ProjectConfig{}
	}
	return file, nil
}

var _ ports.ProjectPolicyLoaderPort = ProjectPolicyFileAdapter{}
