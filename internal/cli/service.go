package cli

import (
	"context"

	"github.com/spf13/viper"

	"repobuild/internal/app"
)

// serviceConfig reads the backend selection shared by every command.
// Root flags are bound to viper, so flags win over env and config file.
func serviceConfig() app.Config {
	return app.Config{
		ReposRoot:    viper.GetString("repos_root"),
		Store:        viper.GetString("store"),
		DatabaseURL:  viper.GetString("database_url"),
		Queue:        viper.GetString("queue"),
		QueueDir:     viper.GetString("queue_dir"),
		ProjectsFile: viper.GetString("projects_file"),
		Metrics:      viper.GetString("metrics"),
		StatsdAddr:   viper.GetString("statsd_addr"),
		StatsdPrefix: viper.GetString("statsd_prefix"),
		StatsdTagged: viper.GetBool("statsd_tagged"),
		GeneratorRPM: viper.GetString("generator_rpm"),
		GeneratorDeb: viper.GetString("generator_deb"),
		Notify:       viper.GetString("notify"),
		NotifyURL:    viper.GetString("notify_url"),
	}
}

func newAppService(ctx context.Context) (app.Service, error) {
	return app.NewService(ctx, serviceConfig())
}
