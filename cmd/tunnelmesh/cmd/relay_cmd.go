package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tunnelmesh/relay/internal/bus"
	"github.com/tunnelmesh/relay/internal/config"
	"github.com/tunnelmesh/relay/internal/logging"
	"github.com/tunnelmesh/relay/internal/persistence"
	"github.com/tunnelmesh/relay/internal/relay"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func NewRelayCmd() *cobra.Command {
	relayCmd := &cobra.Command{
		Use:   "relay",
		Short: "Relay instance (runs in the cloud)",
	}
	relayCmd.AddCommand(newRelayServeCmd())
	return relayCmd
}

func newRelayServeCmd() *cobra.Command {
	var listen string
	var publicBaseURL string
	var instanceID string
	var redisURL string
	var redisKeyPrefix string

	c := &cobra.Command{
		Use:   "serve",
		Short: "Start a relay instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			logger := logging.FromContext(cmd.Context())

			cfg, err := config.Load(config.LoadOptions{ConfigFile: GetConfigFileFlag()})
			if err != nil {
				logger.Warn("no usable config file, falling back to flags", "err", err.Error())
				cfg = &config.Config{}
			}

			opts := relay.Options{
				InstanceID:    firstNonEmpty(instanceID, cfg.InstanceID),
				PublicBaseURL: firstNonEmpty(publicBaseURL, cfg.PublicBaseURL),
				Logger:        logger,
			}
			listenAddr := firstNonEmpty(listen, cfg.Listen, ":8088")

			url := firstNonEmpty(redisURL, cfg.Redis.URL)
			prefix := firstNonEmpty(redisKeyPrefix, cfg.Redis.KeyPrefix, "tunnelmesh:")
			if strings.TrimSpace(url) == "" {
				logger.Info("no redis url configured, running single-instance (in-process bus and store)")
				opts.Bus = bus.NewMemory()
				opts.Store = persistence.NewMemory()
			} else {
				redisOpt, err := redis.ParseURL(url)
				if err != nil {
					return fmt.Errorf("parse redis url: %w", err)
				}
				client := redis.NewClient(redisOpt)
				opts.Bus = bus.NewRedis(client, prefix)
				opts.Store = persistence.NewRedis(client, prefix)
			}

			server := relay.NewServer(opts)
			if err := server.Subscribe(ctx); err != nil {
				return fmt.Errorf("subscribe to bus: %w", err)
			}
			defer server.Shutdown(context.Background())

			httpServer := &http.Server{
				Addr:              listenAddr,
				Handler:           server.Mux(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = httpServer.Shutdown(shutdownCtx)
			}()

			logger.Info("relay listening", "addr", listenAddr, "instance_id", opts.InstanceID)
			err = httpServer.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		},
	}
	c.Flags().StringVar(&listen, "listen", "", "listen address (default :8088 or config listen)")
	c.Flags().StringVar(&publicBaseURL, "public-base-url", "", "public base URL advertised to agents on register")
	c.Flags().StringVar(&instanceID, "instance-id", "", "relay instance id (default: auto)")
	c.Flags().StringVar(&redisURL, "redis-url", "", "redis connection URL for the broadcast bus and persistence (optional, single-instance if empty)")
	c.Flags().StringVar(&redisKeyPrefix, "redis-key-prefix", "", "redis key prefix (default tunnelmesh:)")
	return c
}
