package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ctagard/testops-mcp/internal/mcp"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Long: `Run the MCP server on a websocket listener. With --stdio the server also
answers newline-delimited JSON-RPC on stdin/stdout, as MCP clients that spawn
their servers expect:

    {
        "mcpServers": {
            "testops": {
                "command": "testops-mcp",
                "args": ["serve", "--stdio"]
            }
        }
    }`,
		RunE: runServe,
	}

	flags := cmd.Flags()
	flags.String("listen", "localhost:3001", "Websocket listen address")
	flags.Bool("stdio", false, "Also serve on stdin/stdout")
	flags.Bool("metrics", true, "Expose Prometheus metrics on /metrics")
	flags.String("data-file", "config/config.yaml", "Test data document")
	flags.String("alerts-file", "config/alerts.json", "Alert rules file")
	mustBind(v, "listenAddress", flags.Lookup("listen"))
	mustBind(v, "stdio", flags.Lookup("stdio"))
	mustBind(v, "metricsEnabled", flags.Lookup("metrics"))
	mustBind(v, "dataFile", flags.Lookup("data-file"))
	mustBind(v, "alertsFile", flags.Lookup("alerts-file"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := mcp.NewServer(cfg, mcp.WithLogger(logger))
	logger.Info("testops-mcp server starting", "address", cfg.ListenAddress, "stdio", cfg.Stdio)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx)
	})
	if cfg.Stdio {
		g.Go(func() error {
			err := server.ServeStdio(gctx)
			// stdin closing means the spawning client is gone
			stop()
			return err
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shut down")
	return nil
}
