package cli

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"repobuild/internal/app"
)

// version is set at build time via ldflags.
var version = "dev"

const envPrefix = "REPOBUILD"

type RootConfig struct {
	ConfigFile   string
	LogLevel     string
	ReposRoot    string
	Store        string
	DatabaseURL  string
	Queue        string
	QueueDir     string
	PollInterval time.Duration
	ProjectsFile string
	Metrics      string
	StatsdAddr   string
	StatsdPrefix string
	StatsdTagged bool
	GeneratorRPM string
	GeneratorDeb string
	Notify       string
	NotifyURL    string
}

func Execute() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		os.Exit(exitCodeForError(err))
	}
}

func newRootCommand() *cobra.Command {
	cfg := RootConfig{}
	cmd := &cobra.Command{
		Use:           "repobuild",
		Short:         "Build rpm and deb repositories from uploaded binaries",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := initConfig(cfg.ConfigFile); err != nil {
				return err
			}
			setupLogging(viper.GetString("log_level"))
			return nil
		},
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfg.ConfigFile, "config", "", "Config file path")
	flags.StringVar(&cfg.LogLevel, "log-level", "info", "Log level")
	flags.StringVar(&cfg.ReposRoot, "repos-root", "repos", "Directory repositories are assembled under")
	flags.StringVar(&cfg.Store, "store", "", "Store backend: memory or postgres (default postgres when --database-url is set)")
	flags.StringVar(&cfg.DatabaseURL, "database-url", "", "Postgres connection string")
	flags.StringVar(&cfg.Queue, "queue", "memory", "Job queue backend: memory or spool")
	flags.StringVar(&cfg.QueueDir, "queue-dir", "spool", "Directory of the spool queue")
	flags.DurationVar(&cfg.PollInterval, "poll-interval", 10*time.Second, "Scheduler polling interval")
	flags.StringVar(&cfg.ProjectsFile, "projects-file", "", "Project policy YAML (automatic, disabled, related)")
	flags.StringVar(&cfg.Metrics, "metrics", "log", "Metrics sink: log, statsd or none")
	flags.StringVar(&cfg.StatsdAddr, "statsd-addr", "127.0.0.1:8125", "Statsd UDP address")
	flags.StringVar(&cfg.StatsdPrefix, "statsd-prefix", "repobuild", "Statsd metric prefix")
	flags.BoolVar(&cfg.StatsdTagged, "statsd-tagged", false, "Append DogStatsD tags to statsd metrics")
	flags.StringVar(&cfg.GeneratorRPM, "generator-rpm", "createrepo --no-database", "rpm metadata command, the directory is appended")
	flags.StringVar(&cfg.GeneratorDeb, "generator-deb", "apt-ftparchive packages .", "deb metadata command, run inside the directory")
	flags.StringVar(&cfg.Notify, "notify", "", "Build event sink: log, webhook or none (default webhook when --notify-url is set)")
	flags.StringVar(&cfg.NotifyURL, "notify-url", "", "URL that receives building and ready events as JSON")

	_ = viper.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("repos_root", flags.Lookup("repos-root"))
	_ = viper.BindPFlag("store", flags.Lookup("store"))
	_ = viper.BindPFlag("database_url", flags.Lookup("database-url"))
	_ = viper.BindPFlag("queue", flags.Lookup("queue"))
	_ = viper.BindPFlag("queue_dir", flags.Lookup("queue-dir"))
	_ = viper.BindPFlag("poll_interval", flags.Lookup("poll-interval"))
	_ = viper.BindPFlag("projects_file", flags.Lookup("projects-file"))
	_ = viper.BindPFlag("metrics", flags.Lookup("metrics"))
	_ = viper.BindPFlag("statsd_addr", flags.Lookup("statsd-addr"))
	_ = viper.BindPFlag("statsd_prefix", flags.Lookup("statsd-prefix"))
	_ = viper.BindPFlag("statsd_tagged", flags.Lookup("statsd-tagged"))
	_ = viper.BindPFlag("generator_rpm", flags.Lookup("generator-rpm"))
	_ = viper.BindPFlag("generator_deb", flags.Lookup("generator-deb"))
	_ = viper.BindPFlag("notify", flags.Lookup("notify"))
	_ = viper.BindPFlag("notify_url", flags.Lookup("notify-url"))

	cmd.AddCommand(newRegisterCommand())
	cmd.AddCommand(newScheduleCommand())
	cmd.AddCommand(newBuildCommand())
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newStatusCommand())
	return cmd
}

func initConfig(configFile string) error {
	// A missing .env is the common case.
	_ = godotenv.Load()

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("failed to read config file").
				WithCause(err)
		}
		return nil
	}

	viper.SetConfigName("repobuild")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/repobuild")
	// The config file is optional; flags and env cover every key.
	_ = viper.ReadInConfig()
	return nil
}

func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func exitCodeForError(err error) int {
	code := errbuilder.CodeOf(err)
	switch code {
	case errbuilder.CodeInvalidArgument, errbuilder.CodeAlreadyExists:
		return 2
	case errbuilder.CodeFailedPrecondition:
		if errors.Is(err, app.ErrRepositoryBusy) {
			return 3
		}
		return 4
	case errbuilder.CodePermissionDenied:
		return 3
	case errbuilder.CodeNotFound:
		return 4
	case errbuilder.CodeInternal:
		return 5
	default:
		return 1
	}
}

func errorMessage(err error) string {
	var builder *errbuilder.ErrBuilder
	if errors.As(err, &builder) && strings.TrimSpace(builder.Msg) != "" {
		return builder.Msg
	}
	return err.Error()
}
