package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/leonardcser/content-mcp/internal/api"
	"github.com/leonardcser/content-mcp/internal/cache"
	"github.com/leonardcser/content-mcp/internal/config"
	"github.com/leonardcser/content-mcp/internal/content"
	"github.com/leonardcser/content-mcp/internal/logger"
)

const shutdownTimeout = 10 * time.Second

var (
	configFile string
	addr       string
)

var rootCmd = &cobra.Command{
	Use:           "content-api",
	Short:         "HTTP API for newsletter, podcast and YouTube content",
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), cmd.Flags().Changed("addr"))
	},
}

func init() {
	rootCmd.Flags().StringVar(&configFile, "config", "", "config file (default .content-mcp.yaml in . or $HOME)")
	rootCmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, addrFlag bool) error {
	v, err := config.New(configFile)
	if err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if addrFlag {
		cfg.Addr = addr
	}

	if cfg.LogFile != "" {
		if err := logger.Init(cfg.LogFile); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer logger.Close()
	} else {
		logger.InitWriter(os.Stderr)
	}
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return err
	}

	store := cache.NewMemory(cache.Options{DefaultTTL: cfg.CacheTTL})
	go store.Run(ctx)

	svc := content.New(cfg, store)
	if cfg.Warm {
		go svc.Warm(ctx)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.New(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Infof("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
