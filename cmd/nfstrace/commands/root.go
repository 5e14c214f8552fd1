// Package commands implements the CLI commands for nfstrace.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/nfstrace/nfstrace/internal/decode"
	"github.com/nfstrace/nfstrace/internal/logger"
	"github.com/nfstrace/nfstrace/pkg/config"
	"github.com/nfstrace/nfstrace/pkg/metrics"
	promdecode "github.com/nfstrace/nfstrace/pkg/metrics/prometheus"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "nfstrace",
	Short: "nfstrace - NFS packet trace decoder",
	Long: `nfstrace decodes NFSv4 traffic out of pcap capture files. It walks a
capture one frame at a time, reassembles IP fragments and TCP streams,
pairs ONC RPC calls with their replies, and decodes NFSv4.0/4.1 COMPOUND
procedures, including pNFS and callback operations.

Decoded records go to stdout; logs go to stderr.

Use "nfstrace [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/nfstrace/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(followCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig loads the configuration and initializes the logger from it.
// Every trace-walking command starts here.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decoderConfig builds the decoder configuration, wiring the Prometheus
// metrics sink when metrics are enabled.
func decoderConfig(cfg *config.Config) decode.Config {
	dc := cfg.DecoderConfig()
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		dc.Metrics = promdecode.NewDecodeMetrics()
	}
	return dc
}
