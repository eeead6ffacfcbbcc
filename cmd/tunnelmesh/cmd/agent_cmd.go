package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tunnelmesh/relay/internal/agent"
	"github.com/tunnelmesh/relay/internal/config"
	"github.com/tunnelmesh/relay/internal/logging"

	"github.com/spf13/cobra"
)

func NewAgentCmd() *cobra.Command {
	agentCmd := &cobra.Command{
		Use:   "agent",
		Short: "Agent (runs next to local services behind NAT)",
	}
	agentCmd.AddCommand(newAgentRunCmd())
	return agentCmd
}

func newAgentRunCmd() *cobra.Command {
	var relayURL string
	var apiKey string
	var servicesFile string

	c := &cobra.Command{
		Use:   "run",
		Short: "Connect to a relay and serve local services through it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			logger := logging.FromContext(cmd.Context())

			cfg, err := config.Load(config.LoadOptions{ConfigFile: GetConfigFileFlag()})
			if err != nil {
				logger.Warn("no usable config file, falling back to flags", "err", err.Error())
				cfg = &config.Config{}
			}

			services := cfg.Services
			if servicesFile != "" {
				services, err = loadServicesFile(servicesFile)
				if err != nil {
					return err
				}
			}

			opts := agent.Options{
				RelayURL: firstNonEmpty(relayURL, cfg.Server.URL),
				APIKey:   firstNonEmpty(apiKey, cfg.Server.APIKey),
				Services: services,
				Logger:   logger,
				OnReady: func(tunnelID, publicBaseURL string) {
					logger.Info("tunnel ready", "tunnel_id", tunnelID, "public_base_url", publicBaseURL)
				},
			}
			if opts.RelayURL == "" || opts.APIKey == "" {
				return fmt.Errorf("missing --relay-url/--api-key (or server.url/server.api_key in config)")
			}

			logger.Info("agent starting", "relay_url", opts.RelayURL, "services", string(mustMarshalJSON(opts.Services)))
			connector := agent.NewConnector(opts)
			return connector.Run(ctx)
		},
	}
	c.Flags().StringVar(&relayURL, "relay-url", "", "relay control-channel base URL (ws:// or wss://)")
	c.Flags().StringVar(&apiKey, "api-key", "", "API key identifying this agent to the relay")
	c.Flags().StringVar(&servicesFile, "services", "", "path to a JSON []ServiceConfig file, as an alternative to --config")
	return c
}

// loadServicesFile reads path as a JSON array of config.ServiceConfig,
// overriding whatever services a --config file declared.
func loadServicesFile(path string) ([]config.ServiceConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read services file %s: %w", path, err)
	}
	var services []config.ServiceConfig
	if err := json.Unmarshal(raw, &services); err != nil {
		return nil, fmt.Errorf("decode services file %s: %w", path, err)
	}
	return services, nil
}
