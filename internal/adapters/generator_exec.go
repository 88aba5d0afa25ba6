package adapters

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"repobuild/internal/ports"
	"repobuild/internal/shared"
	"repobuild/internal/types"
)

const debPackagesIndex = "Packages"

var (
	DefaultRPMGenerator = []string{"createrepo", "--no-database"}
	DefaultDebGenerator = []string{"apt-ftparchive", "packages", "."}
)

// GeneratorExecAdapter runs the external metadata tools. The rpm
// command receives the directory as its last argument. The deb command
// runs inside the directory and its stdout becomes the Packages index.
type GeneratorExecAdapter struct {
	RPMCommand []string
	DebCommand []string
}

func NewGeneratorExecAdapter(rpmCommand []string, debCommand []string) GeneratorExecAdapter {
	if len(rpmCommand) == 0 {
		rpmCommand = DefaultRPMGenerator
	}
	if len(debCommand) == 0 {
		debCommand = DefaultDebGenerator
	}
	return GeneratorExecAdapter{RPMCommand: rpmCommand, DebCommand: debCommand}
}

func (a GeneratorExecAdapter) Generate(ctx context.Context, repoType types.RepoType, dir string) error {
	switch repoType {
	case types.RepoTypeRPM:
		return a.generateRPM(ctx, dir)
	case types.RepoTypeDeb:
		return a.generateDeb(ctx, dir)
	default:
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("no metadata generator for repository type %q", repoType))
	}
}

func (a GeneratorExecAdapter) generateRPM(ctx context.Context, dir string) error {
	args := append(append([]string{}, a.RPMCommand[1:]...), dir)
	log.Ctx(ctx).Debug().Str("dir", dir).Strs("cmd", a.RPMCommand).Msg("running rpm metadata generator")
	cmd := exec.CommandContext(ctx, a.RPMCommand[0], args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("%s failed", a.RPMCommand[0])).
			WithCause(shared.CommandError(output, err))
	}
	return nil
}

func (a GeneratorExecAdapter) generateDeb(ctx context.Context, dir string) error {
	log.Ctx(ctx).Debug().Str("dir", dir).Strs("cmd", a.DebCommand).Msg("running deb metadata generator")
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, a.DebCommand[0], a.DebCommand[1:]...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("%s failed", a.DebCommand[0])).
			WithCause(shared.CommandError(stderr.Bytes(), err))
	}
	target := filepath.Join(dir, debPackagesIndex)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, stdout.Bytes(), 0o644); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write Packages index").
			WithCause(err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write Packages index").
			WithCause(err)
	}
	return nil
}

// ParseGeneratorCommand splits a configured command line on whitespace.
func ParseGeneratorCommand(value string) []string {
	return strings.Fields(value)
}

var _ ports.GeneratorPort = GeneratorExecAdapter{}
