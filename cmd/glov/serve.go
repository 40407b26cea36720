package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/xhad/glov/internal/logger"
	"github.com/xhad/glov/server"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.config
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if err := validate(cfg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			logger.GetDefault().Info("Configuration loaded",
				"provider", cfg.Embedder.Provider,
				"model", cfg.Embedder.Model,
				"collection", cfg.Database.Collection,
			)

			srv := server.NewServer(server.Config{
				Host:      cfg.Server.Host,
				Port:      cfg.Server.Port,
				RateLimit: cfg.Server.RateLimit,
				Burst:     cfg.Server.Burst,
			}, a.pipeline, a.registry)
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "localhost", "Address to listen on")
	cmd.Flags().IntVar(&port, "port", 8000, "Port to listen on")
	return cmd
}
