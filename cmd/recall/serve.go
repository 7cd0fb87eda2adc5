package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeanpaul/recall/internal/server"
)

func newServeCmd(c *cli) *cobra.Command {
	var transport, addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the memory tools over MCP stdio or HTTP",
		Long: `Serve the memory tools.

With --transport stdio (the default) the MCP protocol runs on stdin/stdout,
which is how chat clients launch tool servers. With --transport http the
JSON gateway, the analytics endpoint, /metrics and MCP at /mcp are served
on --addr.`,
		Example: `  recall serve
  recall serve --transport http --addr 127.0.0.1:8765`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if transport != "" {
				c.cfg.Server.Transport = transport
			}
			if addr != "" {
				c.cfg.Server.Addr = addr
			}
			if err := c.cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, c)
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "", "stdio or http (default from config)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address for --transport http")
	return cmd
}

func serve(ctx context.Context, c *cli) error {
	a, err := openApp(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	mcpSrv := server.NewMCPServer(a.facade, version)

	c.logger.Info("serving memory tools",
		zap.String("transport", c.cfg.Server.Transport),
		zap.String("document", a.store.Path()),
		zap.String("tool_log", a.toolLog.Path()),
		zap.Bool("test_mode", c.cfg.TestMode))

	switch c.cfg.Server.Transport {
	case "stdio":
		return server.ServeStdio(ctx, mcpSrv, os.Stdin, os.Stdout)
	case "http":
		opts := server.Options{
			Catalog:       a.facade,
			Users:         a.store,
			Health:        a.store,
			HealthTimeout: c.cfg.Store.LockTimeout,
			ToolLog:       a.toolLog,
			Summary:       a.summaryOptions(),
			MCP:           mcpSrv,
			Logger:        c.logger,
			Version:       version,
		}
		if a.metrics != nil {
			opts.Metrics = a.metrics.Handler()
		}
		return server.New(opts).ListenAndServe(ctx, c.cfg.Server.Addr, c.cfg.Server.ShutdownTimeout)
	default:
		return fmt.Errorf("unknown transport %q", c.cfg.Server.Transport)
	}
}
