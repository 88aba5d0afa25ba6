package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"repobuild/internal/app"
)

type registerOptions struct {
	Project       string
	Name          string
	Arch          string
	Distro        string
	DistroVersion string
	Ref           string
	Hash          string
}

func newRegisterCommand() *cobra.Command {
	opts := registerOptions{}
	cmd := &cobra.Command{
		Use:   "register <path>",
		Short: "Record an uploaded binary and flag the repositories it belongs to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(cmd.Context(), cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.Project, "project", "", "Project the binary belongs to")
	cmd.Flags().StringVar(&opts.Name, "name", "", "Binary file name (defaults to the base name of the path)")
	cmd.Flags().StringVar(&opts.Arch, "arch", "", "Architecture (inferred from the file name when empty)")
	cmd.Flags().StringVar(&opts.Distro, "distro", "", "Distribution name")
	cmd.Flags().StringVar(&opts.DistroVersion, "distro-version", "", "Distribution version")
	cmd.Flags().StringVar(&opts.Ref, "ref", "", "Source ref the binary was built from")
	cmd.Flags().StringVar(&opts.Hash, "hash", "", "Build identifier shared by sibling binaries")

	_ = viper.BindPFlag("project", cmd.Flags().Lookup("project"))
	_ = viper.BindPFlag("distro", cmd.Flags().Lookup("distro"))
	_ = viper.BindPFlag("distro_version", cmd.Flags().Lookup("distro-version"))
	_ = viper.BindPFlag("ref", cmd.Flags().Lookup("ref"))

	return cmd
}

func runRegister(ctx context.Context, cmd *cobra.Command, path string, opts registerOptions) error {
	service, err := newAppService(ctx)
	if err != nil {
		return err
	}
	defer service.Close()

	result, err := service.RegisterBinary(ctx, app.RegisterRequest{
		Path:          path,
		Name:          opts.Name,
		Project:       resolveString(cmd, opts.Project, "project", "project"),
		Arch:          opts.Arch,
		Distro:        resolveString(cmd, opts.Distro, "distro", "distro"),
		DistroVersion: resolveString(cmd, opts.DistroVersion, "distro_version", "distro-version"),
		Ref:           resolveString(cmd, opts.Ref, "ref", "ref"),
		Hash:          opts.Hash,
	})
	if err != nil {
		return err
	}
	verb := "updated"
	if result.Created {
		verb = "registered"
	}
	fmt.Printf("%s %s (binary %d, %s)\n", verb, result.Binary.Name, result.Binary.ID, result.Binary.Arch)
	fmt.Printf("repository %d: %s\n", result.Own.ID, result.Own.State)
	for _, repo := range result.Related {
		fmt.Printf("related repository %d (%s): %s\n", repo.ID, repo.Project, repo.State)
	}
	return nil
}
