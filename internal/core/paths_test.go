package core

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repobuild/internal/types"
)

func TestPathResolverRepoPaths(t *testing.T) {
	resolver := NewPathResolver("/srv/repos")
	repo := types.Repository{Project: "foo", Ref: "main", Distro: "centos", DistroVersion: "8"}

	paths, err := resolver.RepoPaths(repo, types.RepoTypeRPM)
	require.NoError(t, err)
	assert.Equal(t, "/srv/repos/foo/main/centos/8", paths.Absolute)
	assert.Equal(t, filepath.Join("foo", "main", "centos", "8"), paths.Relative)
	want := []string{
		"/srv/repos/foo/main/centos/8/SRPMS",
		"/srv/repos/foo/main/centos/8/noarch",
		"/srv/repos/foo/main/centos/8/x86_64",
		"/srv/repos/foo/main/centos/8/aarch64",
	}
	if diff := cmp.Diff(want, paths.ArchPaths()); diff != "" {
		t.Fatalf("unexpected arch paths (-want +got):\n%s", diff)
	}

	repo.Hash = "abc123"
	paths, err = resolver.RepoPaths(repo, types.RepoTypeDeb)
	require.NoError(t, err)
	assert.Equal(t, "/srv/repos/foo/main/abc123/centos/8", paths.Absolute)
	assert.Equal(t, []string{"source", "all", "amd64", "arm64"}, paths.ArchDirs)
}

func TestPathResolverEscapesSlashedRefs(t *testing.T) {
	resolver := NewPathResolver("/srv/repos")
	repo := types.Repository{Project: "foo", Ref: "feature/x", Hash: `a\b`, Distro: "centos", DistroVersion: "8"}

	paths, err := resolver.RepoPaths(repo, types.RepoTypeRPM)
	require.NoError(t, err)
	assert.Equal(t, "/srv/repos/foo/feature%2Fx/a%5Cb/centos/8", paths.Absolute)
	assert.Equal(t, "feature%2Fx", PathSegment("feature/x"))
	assert.NotEqual(t, PathSegment("feature/x"), PathSegment("feature%2Fx"))
}

func TestCheckRepositoryKey(t *testing.T) {
	valid := types.RepositoryKey{Project: "foo", Ref: "feature/x", Distro: "centos", DistroVersion: "8"}
	require.NoError(t, CheckRepositoryKey(valid))

	tests := map[string]types.RepositoryKey{
		"dot ref":        {Project: "foo", Ref: ".", Distro: "centos", DistroVersion: "8"},
		"dotdot hash":    {Project: "foo", Ref: "main", Hash: "..", Distro: "centos", DistroVersion: "8"},
		"padded distro":  {Project: "foo", Ref: "main", Distro: " centos", DistroVersion: "8"},
		"missing ref":    {Project: "foo", Distro: "centos", DistroVersion: "8"},
		"missing distro": {Project: "foo", Ref: "main", DistroVersion: "8"},
	}
	for name, key := range tests {
		err := CheckRepositoryKey(key)
		require.Error(t, err, name)
		assert.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err), name)
	}
}

func TestPathResolverRejectsUnsafeSegments(t *testing.T) {
	resolver := NewPathResolver("/srv/repos")
	tests := []types.Repository{
		{Project: "..", Ref: "main", Distro: "centos", DistroVersion: "8"},
		{Project: "foo", Ref: "..", Distro: "centos", DistroVersion: "8"},
		{Project: "foo", Ref: "main", Distro: "", DistroVersion: "8"},
	}
	for _, repo := range tests {
		_, err := resolver.RepoPaths(repo, types.RepoTypeRPM)
		require.Error(t, err)
		assert.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))
	}

	_, err := NewPathResolver(" ").RepoPaths(types.Repository{Project: "foo", Ref: "main", Distro: "centos", DistroVersion: "8"}, types.RepoTypeRPM)
	require.Error(t, err)
}

func TestArchDirectoriesReturnsCopy(t *testing.T) {
	dirs := ArchDirectories(types.RepoTypeRPM)
	dirs[0] = "mutated"
	assert.Equal(t, "SRPMS", ArchDirectories(types.RepoTypeRPM)[0])
	assert.Empty(t, ArchDirectories(types.RepoTypeUnknown))
}

func TestInferRepoType(t *testing.T) {
	tests := map[string]types.RepoType{
		"foo-1.0-1.x86_64.rpm":  types.RepoTypeRPM,
		"foo-1.0-1.src.rpm":     types.RepoTypeRPM,
		"foo_1.0-1_amd64.deb":   types.RepoTypeDeb,
		"foo_1.0-1.dsc":         types.RepoTypeDeb,
		"foo_1.0.orig.tar.gz":   types.RepoTypeDeb,
		"foo-udeb_1.0_all.udeb": types.RepoTypeDeb,
		"foo.tar.gz":            types.RepoTypeUnknown,
		"README":                types.RepoTypeUnknown,
	}
	for name, want := range tests {
		assert.Equal(t, want, InferRepoType(name), name)
	}
}

func TestInferArchDirectory(t *testing.T) {
	tests := []struct {
		repoType types.RepoType
		name     string
		want     string
		wantErr  bool
	}{
		{repoType: types.RepoTypeRPM, name: "foo-1.0-1.x86_64.rpm", want: "x86_64"},
		{repoType: types.RepoTypeRPM, name: "foo-1.0-1.aarch64.rpm", want: "aarch64"},
		{repoType: types.RepoTypeRPM, name: "foo-1.0-1.noarch.rpm", want: "noarch"},
		{repoType: types.RepoTypeRPM, name: "foo-1.0-1.src.rpm", want: "SRPMS"},
		{repoType: types.RepoTypeRPM, name: "foo-1.0-1.i686.rpm", wantErr: true},
		{repoType: types.RepoTypeDeb, name: "foo_1.0-1_amd64.deb", want: "amd64"},
		{repoType: types.RepoTypeDeb, name: "foo_2%3a1.0-1_arm64.deb", want: "arm64"},
		{repoType: types.RepoTypeDeb, name: "foo_1.0-1_all.deb", want: "all"},
		{repoType: types.RepoTypeDeb, name: "foo_1.0-1.dsc", want: "source"},
		{repoType: types.RepoTypeDeb, name: "foo_1.0-1_i386.deb", wantErr: true},
		{repoType: types.RepoTypeDeb, name: "foo_1.0-1.deb", wantErr: true},
		{repoType: types.RepoTypeDeb, name: "foo_not a version_amd64.deb", wantErr: true},
		{repoType: types.RepoTypeUnknown, name: "foo-1.0-1.x86_64.rpm", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InferArchDirectory(tt.repoType, tt.name)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrArchUnknown))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerationTargets(t *testing.T) {
	paths := RepoPaths{Absolute: "/r", ArchDirs: []string{"SRPMS", "x86_64"}}

	assert.Equal(t, types.DistroFamilyFlat, FamilyForDistro("opensuse"))
	assert.Equal(t, types.DistroFamilyFlat, FamilyForDistro("SLE"))
	assert.Equal(t, types.DistroFamilyPerArch, FamilyForDistro("centos"))

	assert.Equal(t, []string{"/r"}, GenerationTargets(types.DistroFamilyFlat, paths))
	assert.Equal(t, []string{"/r/SRPMS", "/r/x86_64"}, GenerationTargets(types.DistroFamilyPerArch, paths))
	assert.Equal(t, []string{"/r/SRPMS", "/r/x86_64"}, GenerationTargets(types.DistroFamily("other"), paths))
}
