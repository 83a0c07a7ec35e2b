// Package main is the entry point for the POP3/SMTP webmail bridge.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	gosmtp "github.com/emersion/go-smtp"
	"golang.org/x/sync/errgroup"

	"github.com/mailbridge/ombx-bridge/internal/bridge"
	"github.com/mailbridge/ombx-bridge/internal/config"
	"github.com/mailbridge/ombx-bridge/internal/pop3"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Logging.Level)

	if !cfg.POP3Enabled() && !cfg.SMTPEnabled() {
		slog.Error("both listeners disabled, nothing to do")
		os.Exit(1)
	}

	factory := bridge.NewClientFactory(cfg.Webmail.BaseURL)

	slog.Info("starting ombx-bridge",
		"pop3_listen", cfg.POP3.Listen,
		"smtp_listen", cfg.SMTP.Listen,
		"webmail", cfg.Webmail.BaseURL,
	)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		slog.Info("received signal, initiating shutdown", "signal", sig)
		cancel()
	}()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.POP3Enabled() {
		server := pop3.New(pop3.ServerConfig{
			ListenAddr: cfg.POP3.Listen,
			Hostname:   cfg.SMTP.Hostname,
			PostOffice: bridge.NewPostOffice(factory, cfg.Webmail.MaxList),
		})
		g.Go(func() error {
			return server.ListenAndServe(ctx)
		})
	}

	if cfg.SMTPEnabled() {
		server := gosmtp.NewServer(bridge.NewSMTPBackend(factory))
		server.Addr = cfg.SMTP.Listen
		server.Domain = cfg.SMTP.Hostname
		// TLS terminates in front of the bridge, never here.
		server.AllowInsecureAuth = true

		g.Go(func() error {
			slog.Info("SMTP server listening", "addr", server.Addr)
			err := server.ListenAndServe()
			if errors.Is(err, gosmtp.ErrServerClosed) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-ctx.Done()
			slog.Info("shutting down SMTP server")
			server.Close()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("ombx-bridge stopped")
}

// loadConfig loads configuration from the specified path (YAML + env
// override) or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
