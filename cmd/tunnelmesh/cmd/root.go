package cmd

import (
	"fmt"
	"os"

	"github.com/tunnelmesh/relay/internal/logging"

	"github.com/spf13/cobra"
)

var (
	globalConfigFile string
	globalLogFormat  string
	globalLogLevel   string
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tunnelmesh",
		Short:         "Tunnel relay fleet (relay + agent)",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.NewLogger(logging.Options{
				Level:  globalLogLevel,
				Format: globalLogFormat,
			})
			if err != nil {
				return err
			}
			cmd.SetContext(logging.WithLogger(cmd.Context(), logger))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(
		&globalConfigFile,
		"config",
		"",
		"config file (default: search up for .tunnelmesh/config.yaml, fallback: ~/.tunnelmesh/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(&globalLogFormat, "log-format", "text", "log format: text|json")
	rootCmd.PersistentFlags().StringVar(&globalLogLevel, "log-level", "info", "log level: debug|info|warn|error")

	rootCmd.AddCommand(NewConfigCmd())
	rootCmd.AddCommand(NewRelayCmd())
	rootCmd.AddCommand(NewAgentCmd())

	return rootCmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func GetConfigFileFlag() string {
	return globalConfigFile
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
