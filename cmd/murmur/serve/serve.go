package serve

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"murmur/cmd/murmur/app"
	"murmur/internal/channels"
	"murmur/internal/config"
	"murmur/internal/gateway"
	"murmur/internal/trace"

	"github.com/spf13/cobra"
)

var addr string

var Cmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, err := app.LoadConfig()
		if err != nil {
			return err
		}
		if addr != "" {
			cfg.Server.Addr = addr
		}

		if cfg.Trace.Enabled {
			shutdown, err := trace.Init(ctx, trace.Config{
				Endpoint:       cfg.Trace.Endpoint,
				URLPath:        cfg.Trace.URLPath,
				MetricsURLPath: cfg.Trace.MetricsURLPath,
				APIKey:         cfg.Trace.APIKey,
			})
			if err != nil {
				return fmt.Errorf("initializing telemetry: %w", err)
			}
			defer shutdown(context.Background())
			slog.Info("telemetry enabled", "endpoint", cfg.Trace.Endpoint)
		}

		env, err := app.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		chs := buildChannels(cfg, env)
		srv := gateway.NewServer(env.Resolver, gateway.Options{
			Transcriber:    env.Transcriber,
			History:        env.History,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			RequestTimeout: cfg.Resolver.RequestTimeout.Duration,
			TLSCertFile:    cfg.Server.TLSCert,
			TLSKeyFile:     cfg.Server.TLSKey,
		}, chs...)

		slog.Info("starting gateway", "addr", cfg.Server.Addr, "channels", len(chs))
		return srv.ListenAndServe(ctx, cfg.Server.Addr)
	},
}

func init() {
	Cmd.Flags().StringVarP(&addr, "addr", "a", "", "override gateway listen address")
}

func buildChannels(cfg *config.Config, env *app.Env) []channels.Channel {
	var chs []channels.Channel
	for name, ch := range cfg.Channels {
		if !ch.Enabled {
			continue
		}
		switch ch.Type {
		case "telegram":
			opts := []channels.TelegramOption{channels.WithHistory(env.History)}
			if v, ok := ch.Settings["allowed_chats"]; ok {
				opts = append(opts, channels.WithAllowedChats(parseIDs(v)...))
			}
			chs = append(chs, channels.NewTelegram(ch.Settings["bot_token"], env.Resolver, opts...))
			slog.Info("channel configured", "name", name, "type", ch.Type)
		default:
			slog.Warn("unknown channel type", "name", name, "type", ch.Type)
		}
	}
	return chs
}

func parseIDs(v string) []int64 {
	var ids []int64
	for _, s := range strings.Split(v, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			slog.Warn("ignoring invalid chat id", "value", s)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
