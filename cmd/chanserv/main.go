package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/chanserv/internal/app"
	"github.com/vovakirdan/chanserv/internal/auth"
	"github.com/vovakirdan/chanserv/internal/config"
	"github.com/vovakirdan/chanserv/internal/log"
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func main() {
	err := rootCmd().Execute()
	var ee *exitError
	switch {
	case err == nil:
	case errors.As(err, &ee):
		os.Exit(ee.code)
	default:
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(app.ExitFailure)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		overrides  config.Config
	)

	cmd := &cobra.Command{
		Use:           "chanserv",
		Short:         "Channel service bot for a lobby server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), configPath, overrides)
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to chanserv.yaml (default: $CHANSERV_CONFIG_DEFAULT_PATH or ./chanserv.yaml)")
	cmd.PersistentFlags().StringVar(&overrides.LogLevel, "log-level", "", "log level override (trace, debug, info, warn, error)")
	cmd.Flags().StringVar(&overrides.Lobby.Address, "lobby-address", "", "lobby server host override")
	cmd.Flags().IntVar(&overrides.Lobby.Port, "lobby-port", 0, "lobby server port override")
	cmd.Flags().IntVar(&overrides.Gateway.Port, "gateway-port", 0, "remote gateway port override")
	cmd.Flags().StringVar(&overrides.Status.Addr, "status-addr", "", "status API listen address override")

	cmd.AddCommand(hashKeyCmd())
	cmd.AddCommand(issueTokenCmd(&configPath))
	return cmd
}

func runBot(parent context.Context, configPath string, overrides config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootLogger := log.New("info")
	cfg, path, err := config.Load(bootLogger, configPath, overrides)
	if err != nil {
		bootLogger.Error().Err(err).Msg("failed to load config")
		return &exitError{code: app.ExitFailure, err: err}
	}
	logger := log.New(cfg.LogLevel)

	application, err := app.New(cfg, path, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize")
		return &exitError{code: app.ExitFailure, err: err}
	}

	logger.Info().
		Str("config", path).
		Str("lobby", fmt.Sprintf("%s:%d", cfg.Lobby.Address, cfg.Lobby.Port)).
		Int("gateway_port", cfg.Gateway.Port).
		Msg("starting chanserv")
	err = application.Run(ctx)
	if code := app.ExitCode(err); code != app.ExitOK {
		logger.Error().Err(err).Int("exit_code", code).Msg("chanserv stopped")
		return &exitError{code: code, err: err}
	}
	logger.Info().Msg("chanserv stopped")
	return nil
}

func hashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key <key>",
		Short: "Print a bcrypt hash of a gateway key for gateway.keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashKey(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func issueTokenCmd(configPath *string) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "issue-token <tool>",
		Short: "Print a signed gateway token for a remote tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.Load(log.Nop(), *configPath)
			if err != nil {
				return err
			}
			if cfg.Gateway.TokenSecret == "" {
				return errors.New("gateway.token_secret is not set")
			}
			token, err := auth.GenerateToken(&auth.JWTConfig{
				Secret: []byte(cfg.Gateway.TokenSecret),
				Issuer: auth.TokenIssuer,
				TTL:    ttl,
			}, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (0 means no expiry)")
	return cmd
}
