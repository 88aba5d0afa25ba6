package types

// ProjectConfig is the operator-provided policy for one project.
type ProjectConfig struct {
	Automatic bool            `yaml:"automatic"`
	Disabled  bool            `yaml:"disabled"`
	Related   map[string]Refs `yaml:"related,omitempty"`
}

type ProjectsFile struct {
	Projects map[string]ProjectConfig `yaml:"projects"`
}

// RelatedSource names another project and the refs of it that take part
// in a relation.
type RelatedSource struct {
	Project string
	Refs    Refs
}
