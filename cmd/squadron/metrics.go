package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	metricsFile string
	metricsAddr string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "",
		"Write prometheus metrics in text format to this file when a run ends (node_exporter textfile collector)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "",
		"Serve prometheus metrics on this address at /metrics while a run is in progress, e.g. :9464")
}

// serveMetrics exposes the default registry on addr until the returned stop
// function is called. An empty addr serves nothing.
func serveMetrics(addr string, logger *zap.Logger) (stop func()) {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("endpoint", "http://"+addr+"/metrics"))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// writeMetrics dumps everything g gathers to path in the prometheus text
// format. An empty path writes nothing.
func writeMetrics(path string, g prometheus.Gatherer) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
