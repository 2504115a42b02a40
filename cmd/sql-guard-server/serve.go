package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"github.com/triage-ai/palisade/services/sql_guard/internal/config"
	"github.com/triage-ai/palisade/services/sql_guard/internal/server"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	transportStdio = "stdio"
	transportHTTP  = "http"
	transportBoth  = "both"

	defaultHTTPAddr = ":8080"
	shutdownTimeout = 5 * time.Second
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var transport string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Synchronise permissions and serve the MCP tools (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			switch transport {
			case transportStdio, transportHTTP, transportBoth:
			default:
				return fmt.Errorf("unknown transport %q: want stdio, http or both", transport)
			}
			return runServe(cmd.Context(), cfg, transport)
		},
	}
	cmd.Flags().StringVar(&transport, "transport", transportStdio, "stdio, http or both")
	return cmd
}

func runServe(parent context.Context, cfg config.Config, transport string) error {
	logger := mustBuildLogger(cfg.LogLevel)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting sql guard server",
		zap.String("transport", transport),
		zap.Bool("allow_mutations", cfg.AllowMutations),
		zap.Strings("allowed_tables", cfg.AllowedTables),
		zap.Bool("default_can_read", cfg.DefaultPolicy.CanRead),
		zap.Bool("default_can_write", cfg.DefaultPolicy.CanWrite),
	)

	a, err := newApp(ctx, cfg, "mcp", logger)
	if err != nil {
		return err
	}
	defer a.close()

	// The guard is not reachable until reconciliation has run.
	if _, err := a.sync(ctx); err != nil {
		return err
	}

	guardServer, err := server.NewSQLGuardServer(a.gateway, a.admin, a.audit, logger)
	if err != nil {
		return err
	}
	mcpServer := guardServer.MCPServer(cfg.ServerName, version)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if transport == transportStdio || transport == transportBoth {
		g.Go(func() error {
			// The client closing stdin ends the process.
			defer cancel()
			logger.Info("mcp stdio transport ready")
			if err := mcpServer.Run(gctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("stdio transport: %w", err)
			}
			return nil
		})
	}

	if transport == transportHTTP || transport == transportBoth {
		addr := cfg.HTTPAddr
		if addr == "" {
			addr = defaultHTTPAddr
		}
		httpServer := &http.Server{
			Addr: addr,
			Handler: server.NewHTTPHandler(server.HTTPConfig{
				MCP:     mcpServer,
				DB:      a.db,
				Metrics: a.metrics.Handler(),
				Logger:  logger,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("mcp http transport listening", zap.String("addr", addr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http transport: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	logger.Info("sql guard server stopped")
	return err
}
