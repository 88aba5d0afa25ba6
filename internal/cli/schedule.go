package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newScheduleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Queue every repository waiting for a build",
		Long: "Queue every repository in needs_update. With the memory queue the jobs only\n" +
			"live for this process, so schedule is mainly useful with --queue spool.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSchedule(cmd.Context())
		},
	}
}

func runSchedule(ctx context.Context) error {
	service, err := newAppService(ctx)
	if err != nil {
		return err
	}
	defer service.Close()

	result, err := service.Schedule(ctx)
	if err != nil {
		return err
	}
	for _, job := range result.Jobs {
		fmt.Printf("queued repository %d (job %s)\n", job.RepositoryID, job.ID)
	}
	fmt.Printf("queued %d repositories\n", len(result.Jobs))
	return nil
}
