package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/pagechat/server"
	"github.com/vinayprograms/pagechat/shutdown"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx := cmd.Context()
			a, err := buildApp(ctx, cfg, true)
			if err != nil {
				return err
			}

			srv := server.New(server.Config{
				Addr:         cfg.Server.Addr,
				StrictStatus: cfg.Server.StrictStatus,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}, a.relay, serverOptions(a)...)

			scfg := shutdown.DefaultConfig()
			scfg.OnProgress = shutdown.LogProgress(a.logger.WithComponent("shutdown"))
			coord := shutdown.NewCoordinator(scfg)
			coord.Register("http", shutdown.PhaseServer, srv)
			coord.RegisterFunc("admission", shutdown.PhaseGate, func(ctx context.Context) error {
				a.gate.Close()
				return a.gate.Drain(ctx)
			})
			coord.RegisterFunc("cache", shutdown.PhaseGate, func(context.Context) error {
				return a.store.Close()
			})
			if a.telemetry != nil {
				coord.Register("telemetry", shutdown.PhaseFlush, a.telemetry)
			}
			coord.HandleSignals()

			serveErr := make(chan error, 1)
			go func() { serveErr <- srv.ListenAndServe() }()

			select {
			case err := <-serveErr:
				if err != nil {
					a.logger.Error("server_failed", map[string]interface{}{"error": err.Error()})
					coord.Trigger()
					<-coord.Done()
					return err
				}
			case <-coord.Done():
			}
			<-coord.Done()
			return coord.Err()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func serverOptions(a *app) []server.Option {
	opts := []server.Option{
		server.WithLogger(a.logger.WithComponent("http")),
		server.WithStats(a.store, a.gate),
	}
	if a.telemetry != nil {
		opts = append(opts, server.WithTracerProvider(a.telemetry.TracerProvider()))
	}
	return opts
}
