package core

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	debversion "github.com/knqyf263/go-deb-version"

	"repobuild/internal/types"
)

// ErrArchUnknown is returned when a binary name does not map onto any
// arch directory of its repository type.
var ErrArchUnknown = errors.New("architecture directory could not be inferred")

var archDirectories = map[types.RepoType][]string{
	types.RepoTypeRPM: {"SRPMS", "noarch", "x86_64", "aarch64"},
	types.RepoTypeDeb: {"source", "all", "amd64", "arm64"},
}

var rpmArchSuffixes = []struct {
	suffix string
	dir    string
}{
	{".src.rpm", "SRPMS"},
	{".noarch.rpm", "noarch"},
	{".x86_64.rpm", "x86_64"},
	{".aarch64.rpm", "aarch64"},
}

var debSourceSuffixes = []string{".dsc", ".orig.tar.gz", ".orig.tar.xz", ".orig.tar.bz2", ".debian.tar.gz", ".debian.tar.xz", ".debian.tar.bz2"}

type RepoPaths struct {
	Absolute string
	Relative string
	ArchDirs []string
}

// ArchPaths returns the absolute arch directories in layout order.
func (p RepoPaths) ArchPaths() []string {
	out := make([]string, 0, len(p.ArchDirs))
	for _, dir := range p.ArchDirs {
		out = append(out, filepath.Join(p.Absolute, dir))
	}
	return out
}

type PathResolver struct {
	Root string
}

func NewPathResolver(root string) PathResolver {
	return PathResolver{Root: root}
}

// RepoPaths computes <root>/<project>/<ref>[/<hash>]/<distro>/<version>
// and the arch directories for repoType.
func (r PathResolver) RepoPaths(repo types.Repository, repoType types.RepoType) (RepoPaths, error) {
	if strings.TrimSpace(r.Root) == "" {
		return RepoPaths{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("repos root is empty")
	}
	if err := CheckRepositoryKey(repo.Key()); err != nil {
		return RepoPaths{}, err
	}
	segments := []string{repo.Project, repo.Ref}
	if repo.Hash != "" {
		segments = append(segments, repo.Hash)
	}
	segments = append(segments, repo.Distro, repo.DistroVersion)
	for i, segment := range segments {
		segments[i] = PathSegment(segment)
	}
	relative := filepath.Join(segments...)
	return RepoPaths{
		Absolute: filepath.Join(r.Root, relative),
		Relative: relative,
		ArchDirs: ArchDirectories(repoType),
	}, nil
}

func ArchDirectories(repoType types.RepoType) []string {
	dirs := archDirectories[repoType]
	out := make([]string, len(dirs))
	copy(out, dirs)
	return out
}

// InferRepoType guesses the repository family from a binary file name.
func InferRepoType(name string) types.RepoType {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".rpm"):
		return types.RepoTypeRPM
	case strings.HasSuffix(lower, ".deb"), strings.HasSuffix(lower, ".udeb"), strings.HasSuffix(lower, ".ddeb"):
		return types.RepoTypeDeb
	case hasAnySuffix(lower, debSourceSuffixes):
		return types.RepoTypeDeb
	default:
		return types.RepoTypeUnknown
	}
}

// InferArchDirectory maps a binary name onto the arch directory it is
// linked into.
func InferArchDirectory(repoType types.RepoType, name string) (string, error) {
	switch repoType {
	case types.RepoTypeRPM:
		for _, entry := range rpmArchSuffixes {
			if strings.HasSuffix(name, entry.suffix) {
				return entry.dir, nil
			}
		}
	case types.RepoTypeDeb:
		if hasAnySuffix(name, debSourceSuffixes) {
			return "source", nil
		}
		arch, err := debArch(name)
		if err != nil {
			return "", err
		}
		for _, dir := range archDirectories[types.RepoTypeDeb] {
			if dir == arch {
				return dir, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrArchUnknown, name)
}

// debArch extracts the architecture from name_version_arch.deb after
// checking that the version field parses as a Debian version.
func debArch(name string) (string, error) {
	ext := filepath.Ext(name)
	switch ext {
	case ".deb", ".udeb", ".ddeb":
	default:
		return "", fmt.Errorf("%w: %s", ErrArchUnknown, name)
	}
	parts := strings.Split(strings.TrimSuffix(name, ext), "_")
	if len(parts) != 3 || parts[0] == "" {
		return "", fmt.Errorf("%w: %s", ErrArchUnknown, name)
	}
	if _, err := debversion.NewVersion(strings.ReplaceAll(parts[1], "%3a", ":")); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrArchUnknown, name, err)
	}
	return parts[2], nil
}

// FamilyForDistro selects the generator strategy for a distro name.
func FamilyForDistro(distro string) types.DistroFamily {
	switch strings.ToLower(strings.TrimSpace(distro)) {
	case "opensuse", "sle":
		return types.DistroFamilyFlat
	default:
		return types.DistroFamilyPerArch
	}
}

var generationTargets = map[types.DistroFamily]func(RepoPaths) []string{
	types.DistroFamilyFlat: func(paths RepoPaths) []string {
		return []string{paths.Absolute}
	},
	types.DistroFamilyPerArch: func(paths RepoPaths) []string {
		return paths.ArchPaths()
	},
}

// GenerationTargets lists the directories the metadata generator runs
// against for family.
func GenerationTargets(family types.DistroFamily, paths RepoPaths) []string {
	strategy, ok := generationTargets[family]
	if !ok {
		strategy = generationTargets[types.DistroFamilyPerArch]
	}
	return strategy(paths)
}

// PathSegment escapes one key field into a single directory name, so a
// ref such as feature/x stays one level deep as feature%2Fx.
func PathSegment(value string) string {
	return url.PathEscape(value)
}

// CheckRepositoryKey reports key fields that can never form a directory
// name. The hash is optional.
func CheckRepositoryKey(key types.RepositoryKey) error {
	fields := []struct {
		name     string
		value    string
		optional bool
	}{
		{"project", key.Project, false},
		{"ref", key.Ref, false},
		{"hash", key.Hash, true},
		{"distro", key.Distro, false},
		{"distro version", key.DistroVersion, false},
	}
	for _, field := range fields {
		if field.optional && field.value == "" {
			continue
		}
		if !validSegment(field.value) {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("invalid %s %q", field.name, field.value))
		}
	}
	return nil
}

func validSegment(segment string) bool {
	if strings.TrimSpace(segment) == "" || strings.TrimSpace(segment) != segment {
		return false
	}
	escaped := PathSegment(segment)
	return escaped != "." && escaped != ".."
}

func hasAnySuffix(value string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(value, suffix) {
			return true
		}
	}
	return false
}
