package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"

	"affiliatepay/internal/app"
	"affiliatepay/internal/common/nats"
	"affiliatepay/internal/withdrawal"
)

// Config holds service configuration
type Config struct {
	Port         int    `envconfig:"PORT" default:"8080"`
	ConsumerName string `envconfig:"CONSUMER_NAME" default:"affiliatepay"`

	app.Config
}

func main() {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to process config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Withdrawal.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid withdrawal config: %v\n", err)
		os.Exit(1)
	}

	logger := app.SetupLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	a, err := app.Build(ctx, cfg.Config, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// Event consumers
	if a.NATS != nil {
		router := a.Consumers()
		consumer, err := a.NATS.EnsureConsumer(ctx, nats.DefaultConsumerConfig(cfg.ConsumerName, nats.EventsStream, router.Subjects()...))
		if err != nil {
			logger.Error("failed to create consumer", "error", err)
			os.Exit(1)
		}
		sub := nats.NewSubscriber(consumer, logger)
		go func() {
			if err := sub.Start(ctx, router.Dispatch); err != nil && ctx.Err() == nil {
				logger.Error("consumer stopped", "error", err)
				cancel()
			}
		}()
	} else {
		logger.Warn("NATS_URL not set, inbound events are not consumed")
	}

	go withdrawal.NewSweeper(a.Withdrawals, cfg.Withdrawal.SweepInterval, logger).Run(ctx)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      a.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting affiliate service",
			"port", cfg.Port,
			"environment", cfg.Environment,
			"store", cfg.StoreDriver,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
