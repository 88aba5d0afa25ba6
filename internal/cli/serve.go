package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"repobuild/internal/app"
)

type serveOptions struct {
	Workers    int
	JobTimeout time.Duration
	Recover    bool
}

func newServeCommand() *cobra.Command {
	opts := serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and build workers until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Workers, "workers", 2, "Number of concurrent build workers")
	cmd.Flags().DurationVar(&opts.JobTimeout, "job-timeout", 30*time.Minute, "Maximum duration of a single build (0 disables)")
	cmd.Flags().BoolVar(&opts.Recover, "recover", false, "Reset repositories left updating or queued by a previous server")

	_ = viper.BindPFlag("workers", cmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("job_timeout", cmd.Flags().Lookup("job-timeout"))
	_ = viper.BindPFlag("recover", cmd.Flags().Lookup("recover"))

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, opts serveOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	service, err := newAppService(ctx)
	if err != nil {
		return err
	}
	defer service.Close()

	return service.Serve(ctx, app.ServeRequest{
		Workers:      resolveInt(cmd, opts.Workers, "workers", "workers"),
		JobTimeout:   resolveDuration(cmd, opts.JobTimeout, "job_timeout", "job-timeout"),
		PollInterval: viper.GetDuration("poll_interval"),
		Recover:      resolveBool(cmd, opts.Recover, "recover", "recover"),
	})
}
