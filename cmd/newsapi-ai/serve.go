package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dc-codes426/newsapi-ai/config"
	"github.com/dc-codes426/newsapi-ai/internal/server"
)

func serveCMD() *cobra.Command {
	var serveAddr string
	var cfgPath string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if serveAddr != "" {
				cfg.Server.Address = serveAddr
			}

			srv, err := server.New(cfg)
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Run() }()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case <-sig:
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(ctx)
			}
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return serve
}
