package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/leonardcser/content-mcp/internal/cache"
	"github.com/leonardcser/content-mcp/internal/config"
	"github.com/leonardcser/content-mcp/internal/content"
	"github.com/leonardcser/content-mcp/internal/logger"
	tools "github.com/leonardcser/content-mcp/internal/tools"
	web "github.com/leonardcser/content-mcp/internal/web"
)

var version = "dev"

var configFile string

var rootCmd = &cobra.Command{
	Use:           "content-mcp",
	Short:         "MCP server for newsletter, podcast and YouTube content",
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVar(&configFile, "config", "", "config file (default .content-mcp.yaml in . or $HOME)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	v, err := config.New(configFile)
	if err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	// stdout carries the MCP protocol, so logs go to a file.
	if cfg.LogFile != "" {
		err = logger.Init(cfg.LogFile)
	} else {
		err = logger.InitFromEnv()
	}
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return err
	}

	logger.Infof("Starting content MCP server %s", version)

	store := cache.NewMemory(cache.Options{DefaultTTL: cfg.CacheTTL})
	go store.Run(ctx)

	svc := content.New(cfg, store)
	if cfg.Warm {
		go svc.Warm(ctx)
	}

	transport := web.NewTransport(nil, web.WithPolicy(cfg.Retry))
	pages := web.NewPageFetcher(store, cfg.PageCacheTTL, transport, cfg.UserAgent)
	logger.Infof("Initialized content services and page fetcher")

	s := server.NewMCPServer(
		"Content MCP",
		version,
		server.WithRecovery(),
		server.WithToolCapabilities(false),
	)
	tools.Register(s, tools.Deps{Content: svc, Pages: pages})

	logger.Infof("Starting MCP server on stdio")
	if err := server.ServeStdio(s); err != nil {
		logger.Errorf("server error: %v", err)
		return err
	}
	return nil
}
