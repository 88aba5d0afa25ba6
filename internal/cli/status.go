package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"repobuild/internal/app"
	"repobuild/internal/types"
)

type statusOptions struct {
	Project  string
	Refs     []string
	State    string
	Projects bool
}

func newStatusCommand() *cobra.Command {
	opts := statusOptions{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "List repositories and their build state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Project, "project", "", "Only list repositories of this project")
	cmd.Flags().StringSliceVar(&opts.Refs, "ref", nil, "Only list repositories of these refs")
	cmd.Flags().StringVar(&opts.State, "state", "", "Only list repositories in this state")
	cmd.Flags().BoolVar(&opts.Projects, "projects", false, "List projects and their build policy instead")

	_ = viper.BindPFlag("status_project", cmd.Flags().Lookup("project"))
	_ = viper.BindPFlag("status_refs", cmd.Flags().Lookup("ref"))

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, opts statusOptions) error {
	service, err := newAppService(ctx)
	if err != nil {
		return err
	}
	defer service.Close()

	if opts.Projects {
		return printProjects(ctx, service)
	}
	result, err := service.Status(ctx, statusRequest(cmd, opts))
	if err != nil {
		return err
	}
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tPROJECT\tREF\tHASH\tDISTRO\tVERSION\tTYPE\tSTATE\tPATH")
	for _, repo := range result.Repositories {
		state := string(repo.State)
		if repo.RebuildPending {
			state += "+rebuild"
		}
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			repo.ID, repo.Project, repo.Ref, orDash(repo.Hash), repo.Distro, repo.DistroVersion,
			orDash(string(repo.Type)), state, orDash(repo.Path))
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	fmt.Printf("%d jobs waiting in the queue\n", result.QueueDepth)
	return nil
}

func statusRequest(cmd *cobra.Command, opts statusOptions) app.StatusRequest {
	refs := make([]string, 0, len(opts.Refs))
	for _, ref := range resolveStrings(cmd, opts.Refs, "status_refs", "ref") {
		if ref = strings.TrimSpace(ref); ref != "" {
			refs = append(refs, ref)
		}
	}
	return app.StatusRequest{
		Project: strings.TrimSpace(resolveString(cmd, opts.Project, "status_project", "project")),
		Refs:    refs,
		State:   types.RepoState(strings.TrimSpace(opts.State)),
	}
}

func printProjects(ctx context.Context, service app.Service) error {
	projects, err := service.Projects(ctx)
	if err != nil {
		return err
	}
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tPROJECT\tAUTOMATIC\tDISABLED")
	for _, project := range projects {
		fmt.Fprintf(writer, "%d\t%s\t%t\t%t\n", project.Project.ID, project.Project.Name, project.Automatic, project.Disabled)
	}
	return writer.Flush()
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
