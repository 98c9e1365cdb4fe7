package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/deltat/coreservice/internal/infrastructure/config"
	"github.com/deltat/coreservice/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags override environment
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	host := fs.String("host", cfg.Server.Host, "HTTP bind host")
	port := fs.String("port", cfg.Server.Port, "HTTP port")
	env := fs.String("env", cfg.Project.Environment, "Deployment environment (LOCAL enables development logging)")
	logLevel := fs.String("log-level", cfg.Logging.Level, "Log level")
	logFormat := fs.String("log-format", cfg.Logging.Format, "Log format: logfmt, json or console")
	exporter := fs.String("exporter", cfg.Tracing.Exporter, "Span exporter: otlp, otlphttp, zipkin, stdout or none")
	otelHost := fs.String("otel-host", cfg.Tracing.Host, "Collector host")
	otelPort := fs.String("otel-port", cfg.Tracing.Port, "Collector port")
	_ = fs.Parse(os.Args[1:])

	cfg.Server.Host = *host
	cfg.Server.Port = *port
	cfg.Project.Environment = *env
	cfg.Logging.Level = *logLevel
	cfg.Logging.Format = *logFormat
	cfg.Tracing.Exporter = *exporter
	cfg.Tracing.Host = *otelHost
	cfg.Tracing.Port = *otelPort
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewServer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		log.Println("Shutting down gracefully...")
	case err := <-errChan:
		if err != nil {
			log.Printf("Server error: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Close(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
		os.Exit(1)
	}
}
