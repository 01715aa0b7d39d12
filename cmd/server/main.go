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
	"github.com/spf13/pflag"

	"github.com/vovakirdan/wirearena-server/internal/app"
	"github.com/vovakirdan/wirearena-server/internal/auth"
	"github.com/vovakirdan/wirearena-server/internal/config"
	"github.com/vovakirdan/wirearena-server/internal/log"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "wirearena-server",
		Short:        "Authoritative game server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath, cmd.Flags())
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	addServeFlags(root.Flags())

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the game server (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath, cmd.Flags())
		},
	}
	addServeFlags(serveCmd.Flags())

	root.AddCommand(serveCmd, newHashTokenCmd(), newTokenCmd(&configPath), newVersionCmd())
	return root
}

func addServeFlags(fs *pflag.FlagSet) {
	def := config.Default()
	fs.String("server-id", def.ServerID, "server instance id (random when empty)")
	fs.String("host", def.Host, "game listener host")
	fs.Int("port", def.Port, "game listener port")
	fs.String("admin-addr", def.AdminAddr, "admin HTTP listen address (empty disables)")
	fs.String("log-level", def.LogLevel, "log level: debug, info, warn, error")
	fs.String("log-file", def.LogFile, "also write JSON logs to this rotating file")
	fs.Duration("liveness-timeout", def.LivenessTimeout, "drop sessions silent for this long")
	fs.String("room-name", def.RoomName, "initial room name")
	fs.Int("max-players", def.MaxPlayers, "room capacity for non-spectators")
	fs.String("lobby-url", def.LobbyURL, "lobby base URL (empty disables reporting)")
	fs.String("database-path", def.DatabasePath, "sqlite connection journal (empty disables)")
	fs.Uint64("seed", def.Seed, "game rng seed (0 picks one)")
}

func serve(ctx context.Context, configPath string, flags *pflag.FlagSet) error {
	bootLog := log.New("info", "")

	cfg, resolvedPath, err := config.Load(bootLog, configPath, flags)
	if err != nil {
		bootLog.Error().Err(err).Msg("failed to load config")
		return err
	}

	logger := log.New(cfg.LogLevel, cfg.LogFile)
	logger.Info().Str("config", resolvedPath).Str("version", version).Msg("configuration loaded")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to start")
		return err
	}

	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newHashTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token <token>",
		Short: "Print the bcrypt hash to use as admin_token_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func newTokenCmd(configPath *string) *cobra.Command {
	var (
		userID string
		name   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a session token signed with jwt_secret (for local testing)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := config.Load(nil, *configPath, nil)
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("jwt_secret is not configured")
			}
			token, err := auth.GenerateToken(&auth.JWTConfig{
				Secret:   []byte(cfg.JWTSecret),
				Issuer:   cfg.JWTIssuer,
				Audience: cfg.JWTAudience,
				TTL:      ttl,
			}, userID, name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "dev-1", "user id claim")
	cmd.Flags().StringVar(&name, "name", "dev", "display name claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
