package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/germinal-ai/germinal/internal/application"
	"github.com/germinal-ai/germinal/internal/domain/service"
	"github.com/germinal-ai/germinal/internal/infrastructure/config"
	"github.com/germinal-ai/germinal/internal/infrastructure/logger"
	"github.com/germinal-ai/germinal/internal/interfaces/repl"
)

const (
	appName    = "germinald"
	appVersion = "0.3.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   appName + " [prompt]",
		Short: "Germinal — persistent agent orchestration runtime",
		Long: "Germinal runs language-model agents against a sandboxed tool registry.\n" +
			"With a prompt argument it runs one invocation and prints the response;\n" +
			"without arguments it starts an interactive REPL.",
		Args: cobra.ArbitraryArgs,
		RunE: runInteractive,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the daemon: event loop, timer, and HTTP front-end",
		RunE:  runServe,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", appName, appVersion)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runServe 守护进程模式
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log, err := logger.NewLogger(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     "json",
		OutputPath: "stdout",
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	log.Info("Starting germinald",
		zap.String("version", appVersion),
		zap.String("db", cfg.DatabaseDSN()),
	)

	app, err := application.NewApp(cfg, log)
	if err != nil {
		log.Error("Failed to initialize application", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := app.Start(ctx); err != nil {
		log.Error("Failed to start application", zap.Error(err))
		return err
	}

	// Graceful shutdown: the loop exits after the current invocation.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := app.Stop(shutdownCtx); err != nil {
		log.Error("Error during shutdown", zap.Error(err))
		return err
	}
	log.Info("Stopped cleanly")
	return nil
}

// runInteractive 单次或 REPL 模式
//
// Logging goes to stderr so stdout carries only the agent response — this
// matters when output is piped into another process.
func runInteractive(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log, err := logger.NewLogger(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     "console",
		OutputPath: "stderr",
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	app, err := application.NewApp(cfg, log)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}

	ctx := context.Background()
	r := repl.New(app)

	if len(args) > 0 {
		prompt := strings.Join(args, " ")
		// Piped stdin feeds the large-content side channel so oversized
		// payloads never enter the prompt; small payloads ride along inline.
		if err := loadStdin(app, cfg, &prompt); err != nil {
			return err
		}
		if err := r.RunOnce(ctx, prompt); err != nil {
			os.Exit(1)
		}
		return nil
	}
	return r.Run(ctx)
}

// loadStdin reads piped stdin (one-shot mode only). Content above the
// configured threshold goes into the content store for incremental access
// via the content tools; smaller content is appended to the prompt.
func loadStdin(app *application.App, cfg *config.Config, prompt *string) error {
	info, err := os.Stdin.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice != 0 {
		return nil
	}

	maxBytes := int64(cfg.Input.MaxFileSizeMB) * 1024 * 1024
	if maxBytes <= 0 {
		maxBytes = 50 * 1024 * 1024
	}
	data, err := io.ReadAll(io.LimitReader(os.Stdin, maxBytes+1))
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return fmt.Errorf("stdin exceeds the %d MB input limit", cfg.Input.MaxFileSizeMB)
	}
	if len(data) == 0 {
		return nil
	}

	threshold := int64(cfg.Input.LargeFileThresholdMB) * 1024 * 1024
	if threshold <= 0 {
		threshold = 1024 * 1024
	}
	overTokenBudget := cfg.Input.MaxTokensEstimate > 0 && service.EstimateTokens(string(data)) > cfg.Input.MaxTokensEstimate
	if int64(len(data)) >= threshold || overTokenBudget {
		app.LoadContent("stdin", string(data))
		*prompt += "\n\n(Large input content was provided on stdin. Use get_content_info, " +
			"read_content_range, and search_content to inspect it.)"
		return nil
	}
	*prompt += "\n\nInput content:\n" + string(data)
	return nil
}
