package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vogtb/sheetd/packages/config"
	"github.com/vogtb/sheetd/packages/engine"
	"github.com/vogtb/sheetd/packages/graph"
	"github.com/vogtb/sheetd/packages/logging"
	"github.com/vogtb/sheetd/packages/server"
	"github.com/vogtb/sheetd/packages/store"
	"github.com/vogtb/sheetd/packages/transport"
)

var (
	serveConfigPath  string
	serveListenAddr  string
	serveAdminAddr   string
	serveLogLevel    string
	serveLogJSON     bool
	serveTraceStdout bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the spreadsheet server",
	Long: `Run the spreadsheet server.

Line protocol clients connect over TCP on --listen. the admin HTTP server on
--admin serves /healthz, /metrics, /v1/cells, /v1/cells/:name,
/v1/functions, /v1/flush and a WebSocket transport on /ws. settings come from --config (TOML or YAML),
then SHEETD_* environment variables, then flags.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(serveConfigPath)
		if err != nil {
			return err
		}
		if err := applyServeFlags(cmd, &cfg); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "config file (.toml, .yaml or .yml)")
	serveCmd.Flags().StringVar(&serveListenAddr, "listen", "", "TCP address for line protocol clients")
	serveCmd.Flags().StringVar(&serveAdminAddr, "admin", "", `HTTP address for the admin server, "off" to disable`)
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "log level: debug, info, warn or error")
	serveCmd.Flags().BoolVar(&serveLogJSON, "log-json", false, "log JSON to stderr")
	serveCmd.Flags().BoolVar(&serveTraceStdout, "trace-stdout", false, "export trace spans to stdout")
	rootCmd.AddCommand(serveCmd)
}

// applyServeFlags overrides config values with flags that were set
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.ListenAddr = serveListenAddr
	}
	if flags.Changed("admin") {
		cfg.AdminAddr = serveAdminAddr
		if serveAdminAddr == "off" {
			cfg.AdminAddr = ""
		}
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = serveLogLevel
	}
	if flags.Changed("log-json") {
		cfg.Log.JSON = serveLogJSON
	}
	if flags.Changed("trace-stdout") {
		cfg.Tracing.Stdout = serveTraceStdout
	}
	return cfg.Validate()
}

// runServe runs the worker, the TCP supervisor and the admin server until
// ctx is cancelled or one of them fails
func runServe(ctx context.Context, cfg config.Config) error {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.New(logging.Config{
		Level:   level,
		Service: "sheetd",
		JSON:    cfg.Log.JSON,
		LogDir:  cfg.Log.Dir,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	if cfg.Tracing.Stdout {
		shutdown, err := setupTracing(os.Stdout)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("trace shutdown", "error", err)
			}
		}()
	}

	eng := engine.New(store.New(), graph.New(), engine.Options{
		QueueSize: cfg.QueueSize,
		Logger:    logger,
	})
	defer eng.Close()

	tcp, err := transport.ListenTCP(cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}

	var adminLn net.Listener
	if cfg.AdminAddr != "" {
		adminLn, err = net.Listen("tcp", cfg.AdminAddr)
		if err != nil {
			tcp.Close()
			return fmt.Errorf("listen %s: %w", cfg.AdminAddr, err)
		}
	}

	limit := server.RateLimit{PerSecond: cfg.RateLimit.PerSecond, Burst: cfg.RateLimit.Burst}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return eng.Run(ctx)
	})
	g.Go(func() error {
		return server.NewSupervisor(tcp, eng, limit, logger).Serve(ctx)
	})

	if adminLn != nil {
		ws := transport.NewWSListener("/ws")
		router := server.NewRouter(eng, ws, logger)

		g.Go(func() error {
			return server.NewSupervisor(ws, eng, limit, logger).Serve(ctx)
		})
		g.Go(func() error {
			return server.ServeAdmin(ctx, adminLn, router, logger)
		})
	}

	logger.Info("sheetd started", "listen", tcp.Addr(), "admin", cfg.AdminAddr)
	err = g.Wait()
	logger.Info("sheetd stopped")
	return err
}
