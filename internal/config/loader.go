package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envConfigDefaultPath = "CHANSERV_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "chanserv.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
// Only the non-zero fields of each override are applied (see UpdateFrom).
func Load(logger *zerolog.Logger, explicitPath string, overrides ...Config) (Config, string, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix("CHANSERV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}
	for _, o := range overrides {
		cfg.UpdateFrom(o)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, configPath, err
	}
	return cfg, configPath, nil
}

// Validate rejects configurations the bot cannot start with.
func (c Config) Validate() error {
	switch {
	case c.Lobby.Address == "":
		return errors.New("config: lobby.address is required")
	case c.Lobby.Port <= 0 || c.Lobby.Port > 65535:
		return fmt.Errorf("config: lobby.port %d out of range", c.Lobby.Port)
	case c.Lobby.Username == "":
		return errors.New("config: lobby.username is required")
	case c.Gateway.Port < 0 || c.Gateway.Port > 65535:
		return fmt.Errorf("config: gateway.port %d out of range", c.Gateway.Port)
	}
	switch c.Transcripts.Backend {
	case "sqlite", "files", "":
	default:
		return fmt.Errorf("config: unknown transcripts.backend %q", c.Transcripts.Backend)
	}
	return nil
}

// setDefaults registers every scalar key so env overrides resolve.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("lobby.address", cfg.Lobby.Address)
	v.SetDefault("lobby.port", cfg.Lobby.Port)
	v.SetDefault("lobby.username", cfg.Lobby.Username)
	v.SetDefault("lobby.password", cfg.Lobby.Password)
	v.SetDefault("lobby.reconnect_delay", cfg.Lobby.ReconnectDelay)
	v.SetDefault("lobby.keepalive_interval", cfg.Lobby.KeepAliveInterval)
	v.SetDefault("gateway.port", cfg.Gateway.Port)
	v.SetDefault("gateway.token_secret", cfg.Gateway.TokenSecret)
	v.SetDefault("gateway.idle_timeout", cfg.Gateway.IdleTimeout)
	v.SetDefault("gateway.query_timeout", cfg.Gateway.QueryTimeout)
	v.SetDefault("gateway.max_sessions", cfg.Gateway.MaxSessions)
	v.SetDefault("gateway.accept_rate", cfg.Gateway.AcceptRate)
	v.SetDefault("gateway.accept_burst", cfg.Gateway.AcceptBurst)
	v.SetDefault("status.addr", cfg.Status.Addr)
	v.SetDefault("status.read_header_timeout", cfg.Status.ReadHeaderTimeout)
	v.SetDefault("status.requests_per_minute", cfg.Status.RequestsPerMinute)
	v.SetDefault("transcripts.backend", cfg.Transcripts.Backend)
	v.SetDefault("transcripts.database_path", cfg.Transcripts.DatabasePath)
	v.SetDefault("transcripts.dir", cfg.Transcripts.Dir)
	v.SetDefault("shutdown_timeout", cfg.ShutdownTimeout)
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

// writeConfig replaces path atomically with cfg as YAML.
func writeConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
