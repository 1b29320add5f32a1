package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"flow-classifier/internal/engine"
	"flow-classifier/internal/metrics"
	"flow-classifier/internal/model"
	"flow-classifier/internal/parser"
)

const envPrefix = "FLOWCTL"

// options holds the resolved settings of one invocation.
type options struct {
	configFile  string
	provider    string
	flowsFile   string
	flowsDB     string
	logLevel    string
	logFile     string
	keysFile    string
	pcapFile    string
	outFile     string
	workers     int
	metricsFile string
	shmDir      string
	shmName     string
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "flowctl",
		Short: "Classify packet 5-tuples against a prioritized flow table",
		Long: `flowctl loads named, prioritized flow definitions into a flow table and
classifies lookup keys against it, or publishes the table to shared memory.

Every flag can also be set through a FLOWCTL_* environment variable
(FLOWCTL_LOG_LEVEL, FLOWCTL_FLOWS, ...) or a YAML file given with --config.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return resolveOptions(v, cmd, opts)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "YAML file with flag values")
	flags.String("provider", "file", "Flow provider: 'file' (.conf or .yaml) or 'mariadb'")
	flags.String("flows", "", "Flow definition file (for 'file' provider)")
	flags.String("db", "", "Database connection string (for 'mariadb' provider)")
	flags.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	flags.String("log-file", "", "Log file path (default: stderr)")
	flags.String("shm-dir", "", "Shared memory directory (default: /dev/shm)")

	rootCmd.AddCommand(
		newShowCmd(opts),
		newClassifyCmd(opts),
		newPublishCmd(opts),
		newInspectCmd(opts),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveOptions merges flags, environment and config file, in that order
// of precedence, and sets up logging.
func resolveOptions(v *viper.Viper, cmd *cobra.Command, opts *options) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return bindErr
	}

	if opts.configFile != "" {
		v.SetConfigFile(opts.configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", opts.configFile, err)
		}
	}

	opts.provider = v.GetString("provider")
	opts.flowsFile = v.GetString("flows")
	opts.flowsDB = v.GetString("db")
	opts.logLevel = v.GetString("log-level")
	opts.logFile = v.GetString("log-file")
	opts.shmDir = v.GetString("shm-dir")
	opts.keysFile = v.GetString("keys")
	opts.pcapFile = v.GetString("pcap")
	opts.outFile = v.GetString("out")
	opts.workers = v.GetInt("workers")
	opts.metricsFile = v.GetString("metrics-file")
	opts.shmName = v.GetString("name")

	slog.SetDefault(setupLogger(opts.logLevel, opts.logFile))
	return nil
}

func setupLogger(level, logFilePath string) *slog.Logger {
	var logWriter io.Writer = os.Stderr
	if logFilePath != "" {
		f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			logWriter = f
		}
		// The logger is not set up yet; fall back to stderr silently.
	}

	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "INFO":
		lvl = slog.LevelInfo
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(logWriter, &slog.HandlerOptions{Level: lvl}))
}

func loadFlows(provider, flowsPath, dbConnStr string) ([]model.FlowDef, error) {
	switch provider {
	case "file":
		if flowsPath == "" {
			return nil, fmt.Errorf("flow file path must be provided for file provider")
		}
		return parser.LoadFlowFile(flowsPath)
	case "mariadb":
		if dbConnStr == "" {
			return nil, fmt.Errorf("database connection string must be provided for mariadb provider")
		}
		l, err := parser.NewMariaDBLoader(dbConnStr)
		if err != nil {
			return nil, err
		}
		defer l.Close()
		if err := l.Load(); err != nil {
			return nil, err
		}
		return l.Flows, nil
	default:
		return nil, fmt.Errorf("unknown flow provider: %s", provider)
	}
}

// buildTable loads the configured flows into a new table. reg may be nil.
func buildTable(opts *options, reg prometheus.Registerer) (*engine.Table[model.Target], error) {
	slog.Info("Loading flows...", "provider", opts.provider)
	defs, err := loadFlows(opts.provider, opts.flowsFile, opts.flowsDB)
	if err != nil {
		slog.Error("Failed to load flows", "error", err)
		return nil, err
	}

	var m *metrics.Table
	if reg != nil {
		m = metrics.NewTable(reg)
	}
	table := engine.New[model.Target](engine.Config{Logger: slog.Default(), Metrics: m})
	applied, err := parser.Apply(table, defs)
	if err != nil {
		slog.Error("Failed to define flows", "error", err, "applied", applied)
		return nil, err
	}
	slog.Info("Successfully loaded flows", "count", table.Size(), "skipped", len(defs)-applied)
	return table, nil
}

func defaultWorkers() int {
	return runtime.NumCPU()
}
