package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/spf13/cobra"

	"repobuild/internal/app"
)

type buildOptions struct {
	Force bool
}

func newBuildCommand() *cobra.Command {
	opts := buildOptions{}
	cmd := &cobra.Command{
		Use:   "build <repository-id>",
		Short: "Build one repository in the foreground",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRepositoryID(args[0])
			if err != nil {
				return err
			}
			return runBuild(cmd.Context(), id, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "Flag the repository for a build even if it is idle")

	return cmd
}

func parseRepositoryID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("invalid repository id: %q", value))
	}
	return id, nil
}

func runBuild(ctx context.Context, id int64, opts buildOptions) error {
	service, err := newAppService(ctx)
	if err != nil {
		return err
	}
	defer service.Close()

	result, err := service.BuildRepository(ctx, app.BuildRequest{RepositoryID: id, Force: opts.Force})
	if err != nil {
		return err
	}
	report := result.Report
	fmt.Printf("repository %d %s: %s\n", id, report.Outcome, report.Path)
	fmt.Printf("linked %d binaries, skipped %d, state %s\n", report.Linked, len(report.Skipped), result.Repository.State)
	for _, skipped := range report.Skipped {
		fmt.Printf("skipped %s\n", skipped)
	}
	return nil
}
