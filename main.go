// Command chatgrep watches Twitch chat across many live channels and prints
// every message matching a regular expression.
//
// It:
//   - Loads configuration from defaults, an optional TOML file, the
//     environment (.env supported) and flags.
//   - Resolves a category to its live channels, or checks an explicit list.
//   - Splits channels into batches and runs one anonymous chat session per
//     batch, reconnecting with bounded backoff.
//   - Writes matches as `<channel> | <sender>: <text>` to stdout. Logs go to
//     stderr.
//   - Optionally serves /healthz, /readyz, /status and /metrics.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/onnwee/chatgrep/catalog"
	"github.com/onnwee/chatgrep/chat"
	"github.com/onnwee/chatgrep/config"
	"github.com/onnwee/chatgrep/monitor"
	"github.com/onnwee/chatgrep/server"
	"github.com/onnwee/chatgrep/telemetry"
	"github.com/onnwee/chatgrep/twitchapi"
)

// version is set at build time via -ldflags "-X main.version=v1.0.0"
var version = "dev"

func main() {
	// .env is a local convenience; real deployments use the environment.
	_ = godotenv.Load()

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "chatgrep: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags *config.Flags
	cmd := &cobra.Command{
		Use:           "chatgrep --category NAME | --channels a,b,c --filter REGEX",
		Short:         "Stream matching Twitch chat messages from many channels",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.ConfigPath())
			if err != nil {
				return err
			}
			flags.Apply(cfg)
			setupLogging(cfg.LogLevel, cfg.LogFormat)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return run(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	flags = config.RegisterFlags(cmd.Flags())
	cmd.AddCommand(versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chatgrep %s\n", version)
		},
	}
}

// setupLogging configures the default slog logger on stderr so stdout
// carries only matches. Defaults: level=info, format=text.
func setupLogging(level, format string) {
	lvl := slog.LevelInfo
	unknown := false
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		unknown = true
	}
	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	if unknown {
		slog.Warn("unknown LOG_LEVEL, using info", slog.String("value", level))
	}
}

func run(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	telemetry.Init()
	shutdown, err := telemetry.InitTracing("chatgrep", version)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer shutdown()

	filter, err := chat.NewFilter(cfg.Filter)
	if err != nil {
		return err
	}
	hc := &http.Client{Timeout: 15 * time.Second}
	tokens, err := twitchapi.NewTokenSource(ctx, twitchapi.Credentials{
		ClientID:     cfg.Twitch.ClientID,
		AccessToken:  cfg.Twitch.AccessToken,
		ClientSecret: cfg.Twitch.ClientSecret,
	}, hc)
	if err != nil {
		return err
	}
	helix := &twitchapi.HelixClient{
		ClientID:   cfg.Twitch.ClientID,
		Tokens:     tokens,
		BaseURL:    cfg.Twitch.HelixURL,
		HTTPClient: hc,
	}
	mode, err := monitor.ParseColorMode(cfg.Color)
	if err != nil {
		return err
	}

	sup := monitor.NewSupervisor(monitor.Config{
		Target:     catalog.Target{Category: cfg.Category, Channels: cfg.Channels},
		Resolver:   catalog.NewResolver(helix),
		NewSession: chat.NewTwitchSessionFactory(chat.TwitchOptions{IRCAddress: cfg.Twitch.IRCAddress}),
		Filter:     filter,
		Output:     monitor.NewLineEmitter(stdout, mode),
		BatchSize:  cfg.BatchSize,
		QueueSize:  cfg.QueueSize,
		Watcher: chat.WatcherOptions{
			MaxReconnects:  uint(cfg.MaxReconnects),
			InitialBackoff: cfg.InitialBackoff,
			MaxBackoff:     cfg.MaxBackoff,
		},
	})

	if cfg.MetricsAddr != "" {
		srvCtx, stop := context.WithCancel(ctx)
		defer stop()
		go func() {
			if err := server.Start(srvCtx, cfg.MetricsAddr, sup); err != nil {
				slog.Error("status server failed", slog.Any("err", err))
			}
		}()
	}

	return sup.Run(ctx)
}
