package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Brownie44l1/dog-breed-api/internal/handlers"
	"github.com/Brownie44l1/dog-breed-api/internal/metrics"
	"github.com/Brownie44l1/dog-breed-api/internal/router"
)

var serveCmd = &cobra.Command{
	Use:          "serve",
	Short:        "Serve the upload form and prediction API",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	flags := serveCmd.Flags()
	flags.Int("port", 8080, "HTTP port")
	flags.String("host", "0.0.0.0", "HTTP listen address")

	if err := v.BindPFlag("server.port", flags.Lookup("port")); err != nil {
		panic(fmt.Errorf("bind port flag to viper: %w", err))
	}
	if err := v.BindPFlag("server.host", flags.Lookup("host")); err != nil {
		panic(fmt.Errorf("bind host flag to viper: %w", err))
	}
}

func runServe() error {
	cfg, log, classifier, err := setup()
	if err != nil {
		return err
	}
	defer teardown(log, classifier)

	if err := classifier.Err(); err != nil {
		// Still serve: the page reports the missing artifact on every upload.
		log.Error("Classifier unavailable", zap.Error(err))
	}

	gin.SetMode(cfg.Server.Mode)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(reg)

	h := handlers.NewHandler(classifier, recorder, log, cfg.Server)
	r := router.Setup(h, log, reg)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server",
			zap.String("address", addr),
			zap.Stringer("classifier", classifier))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
	return nil
}
