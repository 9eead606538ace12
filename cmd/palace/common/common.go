// Package commoncmder holds the wiring shared by palace commands: config
// resolution, logging, and construction of the processing client and
// pipeline.
package commoncmder

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/memorypalace/pkg/cliui"
	"github.com/papercomputeco/memorypalace/pkg/config"
	"github.com/papercomputeco/memorypalace/pkg/dotdir"
	"github.com/papercomputeco/memorypalace/pkg/eventstream"
	"github.com/papercomputeco/memorypalace/pkg/eventstream/kafka"
	"github.com/papercomputeco/memorypalace/pkg/eventstream/nop"
	"github.com/papercomputeco/memorypalace/pkg/logger"
	"github.com/papercomputeco/memorypalace/pkg/metrics"
	"github.com/papercomputeco/memorypalace/pkg/pipeline"
	"github.com/papercomputeco/memorypalace/pkg/processing/rest"
)

// LogFileFlag names the flag that tees logs into a JSON file. Only
// long-running commands define it.
const LogFileFlag = "log-file"

// ServiceFlagKeys are the registry keys every command that talks to the
// processing service accepts.
var ServiceFlagKeys = []string{
	config.FlagAPITarget,
	config.FlagTimeout,
	config.FlagEventsProvider,
	config.FlagEventsBrokers,
	config.FlagEventsTopic,
}

// ServiceFlags holds the raw flag targets. Values are read back through
// viper so flag, env, and file precedence applies.
type ServiceFlags struct {
	apiTarget      string
	timeout        uint
	eventsProvider string
	eventsBrokers  string
	eventsTopic    string
}

// AddServiceFlags registers ServiceFlagKeys on cmd.
func AddServiceFlags(cmd *cobra.Command, f *ServiceFlags) {
	config.AddStringFlag(cmd, config.Registry, config.FlagAPITarget, &f.apiTarget)
	config.AddUintFlag(cmd, config.Registry, config.FlagTimeout, &f.timeout)
	config.AddStringFlag(cmd, config.Registry, config.FlagEventsProvider, &f.eventsProvider)
	config.AddStringFlag(cmd, config.Registry, config.FlagEventsBrokers, &f.eventsBrokers)
	config.AddStringFlag(cmd, config.Registry, config.FlagEventsTopic, &f.eventsTopic)
}

// ConfigDir returns the --config-dir override, empty when unset.
func ConfigDir(cmd *cobra.Command) string {
	configDir, _ := cmd.Flags().GetString("config-dir")
	return configDir
}

// LoadConfig resolves the effective config for cmd, binding the given
// registry flags into the precedence chain.
func LoadConfig(cmd *cobra.Command, flagKeys ...string) (*config.Config, error) {
	v, err := config.InitViper(ConfigDir(cmd))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	config.BindRegisteredFlags(v, cmd, config.Registry, flagKeys)
	return config.FromViper(v), nil
}

// NewLogger builds the command logger from the --debug and --log-json
// flags. Interactive terminals get the pretty handler.
func NewLogger(cmd *cobra.Command) *slog.Logger {
	debug, _ := cmd.Flags().GetBool("debug")
	jsonLogs, _ := cmd.Flags().GetBool("log-json")

	return logger.New(
		logger.WithDebug(debug),
		logger.WithJSON(jsonLogs),
		logger.WithPretty(!jsonLogs && cliui.IsTerminal(os.Stderr)),
		logger.WithWriter(os.Stderr),
	)
}

// teeLogFile copies log records as JSON into the file named by the
// command's --log-file flag. Commands without the flag, or with it unset,
// get log back unchanged and a nil closer.
func teeLogFile(cmd *cobra.Command, log *slog.Logger) (*slog.Logger, io.Closer, error) {
	path, _ := cmd.Flags().GetString(LogFileFlag)
	if path == "" {
		return log, nil, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	debug, _ := cmd.Flags().GetBool("debug")
	return logger.Tee(log, f, logger.WithDebug(debug)), f, nil
}

// NewService builds the processing service client.
func NewService(cfg *config.Config, log *slog.Logger) (*rest.Client, error) {
	client, err := rest.NewClient(rest.Config{
		BaseURL: cfg.Client.APITarget,
		Timeout: cfg.Client.Timeout(),
		Logger:  log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating processing client: %w", err)
	}
	return client, nil
}

// NewPublisher builds the configured stage event publisher.
func NewPublisher(cfg *config.Config, log *slog.Logger) (eventstream.Publisher, error) {
	switch cfg.Events.Provider {
	case "", config.EventsProviderNop:
		return nop.NewPublisher(), nil
	case config.EventsProviderKafka:
		pub, err := kafka.NewPublisher(kafka.Config{
			Brokers: cfg.Events.BrokerList(),
			Topic:   cfg.Events.Topic,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		log.Info("publishing stage events to kafka",
			"brokers", cfg.Events.Brokers,
			"topic", cfg.Events.Topic,
		)
		return pub, nil
	default:
		return nil, fmt.Errorf("unknown events provider %q", cfg.Events.Provider)
	}
}

// Runtime bundles the pieces most commands need.
type Runtime struct {
	Config       *config.Config
	Logger       *slog.Logger
	Service      *rest.Client
	Publisher    eventstream.Publisher
	Metrics      *metrics.Recorder
	Orchestrator *pipeline.Orchestrator
	ConfigDir    string

	logFile io.Closer
}

// NewRuntime resolves config and builds the processing client and
// orchestrator for cmd. Callers must Close it.
func NewRuntime(cmd *cobra.Command, flagKeys ...string) (*Runtime, error) {
	cfg, err := LoadConfig(cmd, append(append([]string{}, ServiceFlagKeys...), flagKeys...)...)
	if err != nil {
		return nil, err
	}

	log, logFile, err := teeLogFile(cmd, NewLogger(cmd))
	if err != nil {
		return nil, err
	}
	closeLogFile := func() {
		if logFile != nil {
			_ = logFile.Close()
		}
	}

	svc, err := NewService(cfg, log)
	if err != nil {
		closeLogFile()
		return nil, err
	}

	pub, err := NewPublisher(cfg, log)
	if err != nil {
		closeLogFile()
		return nil, err
	}

	rec := metrics.NewRecorder()
	orch, err := pipeline.New(pipeline.Config{
		Service:   svc,
		Publisher: pub,
		Metrics:   rec,
		Logger:    log,
	})
	if err != nil {
		_ = pub.Close()
		closeLogFile()
		return nil, err
	}

	return &Runtime{
		Config:       cfg,
		Logger:       log,
		Service:      svc,
		Publisher:    pub,
		Metrics:      rec,
		Orchestrator: orch,
		ConfigDir:    ConfigDir(cmd),
		logFile:      logFile,
	}, nil
}

// Close flushes and closes the event publisher and the log file, if any.
func (r *Runtime) Close() error {
	err := r.Publisher.Close()
	if r.logFile != nil {
		err = errors.Join(err, r.logFile.Close())
	}
	return err
}

// MemoryID returns args[0] when given, otherwise the current memory pointer.
func (r *Runtime) MemoryID(args []string) (string, error) {
	explicit := ""
	if len(args) > 0 {
		explicit = args[0]
	}
	return dotdir.NewManager().ResolveMemoryID(explicit, r.ConfigDir)
}
