// Package commands implements the formrelay command line.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/formrelay/internal/config"
	"github.com/telhawk-systems/formrelay/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "formrelay",
	Short: "Form submission relay",
	Long: `formrelay serves a static web form, relays each submitted body over UDP
to a collector, and the collector appends every decoded submission to a JSON
file keyed by arrival time.

Run both halves in one process with "formrelay serve", or split them with
"formrelay frontend" and "formrelay collector".`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

// Execute runs the root command. A non-nil error means the process should
// exit with a non-zero status.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or /etc/formrelay/config.yaml)")
}

func initConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Logs go to stderr so dump and list output on stdout stays parseable.
	logger = logging.NewWithWriter(cmd.ErrOrStderr(), logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logging.SetDefault(logger)
	return nil
}
