package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/marcus/taskflow/internal/api"
	"github.com/marcus/taskflow/internal/config"
	"github.com/marcus/taskflow/internal/telemetry"
	"github.com/marcus/taskflow/internal/webhook"
	"github.com/marcus/taskflow/internal/workflow"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the HTTP API server",
	GroupID: "server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		tc := cfg.Telemetry
		if err := telemetry.Init(ctx, telemetry.Config{
			Enabled:      tc.Enabled,
			Stdout:       tc.Stdout,
			OTLPEndpoint: tc.OTLPEndpoint,
			ServiceName:  tc.ServiceName,
		}, version); err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			telemetry.Shutdown(flushCtx)
		}()

		st, err := openStore(ctx)
		if err != nil {
			logger.Error("open database", "driver", cfg.Database.Driver, "err", err)
			return err
		}
		defer st.Close()

		opts := []workflow.Option{
			workflow.WithLogger(logger),
			workflow.WithDeletePolicy(cfg.DeletePolicy()),
		}
		var hooks *webhook.Dispatcher
		if wc := cfg.Webhook; wc.URL != "" {
			hooks, err = webhook.New(webhook.Config{
				URL:       wc.URL,
				Secret:    wc.Secret,
				Filter:    cfg.WebhookFilter(),
				QueueSize: wc.QueueSize,
				Timeout:   wc.Timeout,
				Logger:    logger,
			})
			if err != nil {
				return err
			}
			opts = append(opts, workflow.WithNotifier(hooks))
		}
		svc := workflow.New(telemetry.WrapStore(st), opts...)

		srv, err := api.NewServer(api.ConfigFrom(cfg), svc, st, st)
		if err != nil {
			return err
		}

		logger.Info("server starting",
			"addr", cfg.Server.ListenAddr,
			"driver", cfg.Database.Driver,
			"version", version,
			"telemetry", telemetry.Enabled(),
			"webhook", hooks != nil,
		)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.Run(gctx) })
		if hooks != nil {
			g.Go(func() error { return hooks.Run(gctx) })
		}
		if path, _ := cmd.Flags().GetString("config"); path != "" {
			g.Go(func() error {
				err := config.Watch(gctx, path, cmd.Flags(), reloadLogLevel)
				if err != nil {
					logger.Warn("config watch stopped", "err", err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			logger.Error("server stopped", "err", err)
			return err
		}
		if hooks != nil {
			s := hooks.Stats()
			logger.Info("webhook stats", "delivered", s.Delivered, "failed", s.Failed, "dropped", s.Dropped)
		}
		logger.Info("server stopped")
		return nil
	},
}

// reloadLogLevel applies a changed log.level. Other settings need a restart.
func reloadLogLevel(c *config.Config, err error) {
	if err != nil {
		logger.Warn("config reload rejected", "err", err)
		return
	}
	lvl, _ := config.ParseLevel(c.Log.Level)
	if lvl != logLevel.Level() {
		logLevel.Set(lvl)
		logger.Info("log level changed", "level", lvl.String())
	}
}

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	Short:   "Create or upgrade the database schema",
	GroupID: "server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		v, err := st.SchemaVersion(ctx)
		if err != nil {
			return err
		}
		cmd.Printf("%s schema at version %d\n", st.Driver(), v)
		return nil
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "listen address (default :8080)")
	serveCmd.Flags().String("base-url", "", "public base URL")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}
