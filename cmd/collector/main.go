package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/deltat/coreservice/internal/grpc/collector"
	"github.com/deltat/coreservice/internal/infrastructure/logging"
	"github.com/deltat/coreservice/internal/infrastructure/monitoring"
)

func main() {
	addr := flag.String("addr", ":4317", "OTLP/gRPC listen address")
	metricsAddr := flag.String("metrics-addr", ":9464", "Prometheus metrics listen address, empty to disable")
	logLevel := flag.String("log-level", "info", "Log level")
	logFormat := flag.String("log-format", logging.FormatLogfmt, "Log format: logfmt, json or console")
	capacity := flag.Int("capacity", collector.DefaultCapacity, "Recent spans kept in memory")
	flag.Parse()

	logCfg := logging.DefaultConfig()
	logCfg.Level = *logLevel
	logCfg.Format = *logFormat
	logCfg.Name = "otel-collector"
	logger, err := logging.New(logCfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	reg := monitoring.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	c := collector.New(logger.Logger,
		collector.WithMetrics(metrics),
		collector.WithCapacity(*capacity),
	)

	listener, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Fatal("Failed to listen", zap.String("addr", *addr), zap.Error(err))
	}

	var metricsServer *http.Server
	if *metricsAddr != "" {
		gin.SetMode(gin.ReleaseMode)
		router := gin.New()
		router.GET("/metrics", gin.WrapH(monitoring.Handler(reg)))
		metricsServer = &http.Server{
			Addr:              *metricsAddr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- c.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down collector", zap.Int("spans_received", c.Total()))
	case err := <-errChan:
		logger.Error("Collector stopped", zap.Error(err))
	}

	c.Stop()
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
}
