// Package config loads relay and agent configuration with viper, and
// resolves which config file to load the way the grounding codebase's
// `config path`/`validate`/`apply` commands expect (SPEC_FULL §10.2).
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	dotDir     = ".tunnelmesh"
	fileName   = "config.yaml"
	envPrefix  = "TUNNELMESH"
)

// RedisConfig configures the Redis connection backing the Broadcast Bus
// (C1) and the Persistence Adapter (C11).
type RedisConfig struct {
	URL        string `mapstructure:"url"`
	KeyPrefix  string `mapstructure:"key_prefix"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// ServiceConfig is one entry of an agent's advertised local services.
type ServiceConfig struct {
	ID              string `mapstructure:"id"`
	Name            string `mapstructure:"name"`
	Type            string `mapstructure:"type"`
	LocalHost       string `mapstructure:"local_host"`
	LocalPort       int    `mapstructure:"local_port"`
	SubdomainOrPath string `mapstructure:"subdomain_or_path"`
}

// AgentIdentity is informational metadata about the agent process.
type AgentIdentity struct {
	ID string `mapstructure:"id"`
}

// ServerConfig is the agent's view of the relay it connects to.
type ServerConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
}

// Config is the union of everything that can appear in a tunnelmesh config
// file. A relay process reads Listen/PublicBaseURL/InstanceID/Redis; an
// agent process reads Agent/Server/Services. Both may be present in one
// file (e.g. for local all-in-one development).
type Config struct {
	Listen        string          `mapstructure:"listen"`
	PublicBaseURL string          `mapstructure:"public_base_url"`
	InstanceID    string          `mapstructure:"instance_id"`
	Redis         RedisConfig     `mapstructure:"redis"`
	Agent         AgentIdentity   `mapstructure:"agent"`
	Server        ServerConfig    `mapstructure:"server"`
	Services      []ServiceConfig `mapstructure:"services"`
}

// LoadOptions controls where Load reads from.
type LoadOptions struct {
	// ConfigFile, if non-empty, is used verbatim instead of discovery.
	ConfigFile string
}

// DefaultConfigPath returns ~/.tunnelmesh/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, dotDir, fileName)
}

// ResolveConfigPath returns explicit if non-empty. Otherwise it walks up
// from the working directory looking for <dir>/.tunnelmesh/config.yaml,
// stopping as soon as one is found or a .git directory is reached, and
// falls back to DefaultConfigPath() if nothing was found on the way up.
func ResolveConfigPath(explicit string) string {
	if strings.TrimSpace(explicit) != "" {
		return explicit
	}

	dir, err := os.Getwd()
	if err != nil {
		return DefaultConfigPath()
	}

	for {
		candidate := filepath.Join(dir, dotDir, fileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return DefaultConfigPath()
}

// Load reads and decodes the config file selected by opts, applying
// TUNNELMESH_-prefixed environment variable overrides (e.g.
// TUNNELMESH_REDIS_URL overrides redis.url).
func Load(opts LoadOptions) (*Config, error) {
	path := ResolveConfigPath(opts.ConfigFile)

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, new(viper.ConfigFileNotFoundError)) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		// Missing config file is not fatal: flags/env vars may fully
		// populate a Config (e.g. `agent run --relay-url ... --api-key ...`).
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks whichever of the relay/agent sections is populated.
func (c *Config) Validate() error {
	isRelay := c.Listen != "" || c.Redis.URL != ""
	isAgent := c.Server.URL != "" || len(c.Services) > 0

	if !isRelay && !isAgent {
		return errors.New("config: neither relay (listen/redis) nor agent (server/services) section is populated")
	}

	if isRelay {
		if c.Listen == "" {
			return errors.New("config: listen is required for a relay instance")
		}
	}

	if isAgent {
		if c.Server.URL == "" {
			return errors.New("config: server.url is required for an agent")
		}
		if !strings.HasPrefix(c.Server.URL, "ws://") && !strings.HasPrefix(c.Server.URL, "wss://") {
			return errors.New("config: server.url must begin with ws:// or wss://")
		}
		if c.Server.APIKey == "" {
			return errors.New("config: server.api_key is required for an agent")
		}
		for i, svc := range c.Services {
			if err := svc.validate(); err != nil {
				return fmt.Errorf("config: services[%d]: %w", i, err)
			}
		}
	}

	return nil
}

func (s ServiceConfig) validate() error {
	if s.Type != "http" && s.Type != "tcp" {
		return fmt.Errorf("type must be http or tcp, got %q", s.Type)
	}
	if s.LocalPort <= 0 {
		return errors.New("local_port is required")
	}
	if strings.TrimSpace(s.SubdomainOrPath) == "" {
		return errors.New("subdomain_or_path is required")
	}
	if strings.ContainsAny(s.SubdomainOrPath, "/ \t\n") {
		return errors.New("subdomain_or_path must not contain '/' or whitespace")
	}
	return nil
}

// ApplyFile copies src to dst, creating dst's parent directory as needed —
// used by `config apply` to install a config at the default location.
func ApplyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(dst), err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy config to %s: %w", dst, err)
	}
	return nil
}
