package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/workshop/internal/app"
	"github.com/vladislavdragonenkov/workshop/internal/version"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(cfg app.Config) error {
	return app.ConfigureLogger(log.StandardLogger(), cfg.LogLevel, cfg.LogFormat)
}

// run читает конфигурацию и держит сервис до отмены ctx.
func run(ctx context.Context, lookup app.EnvLookup) error {
	cfg, err := app.LoadConfig(lookup)
	if err != nil {
		return err
	}
	if err := setupLogger(cfg); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"http_addr":    cfg.HTTPAddr,
		"grpc_addr":    cfg.GRPCAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.StorageDriver,
		"build":        version.String(),
	}).Info("запускаем workshop-service")

	return app.Run(ctx, cfg, log.WithField("component", "app"))
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if err := app.LoadDotEnv(); err != nil {
		log.WithError(err).Fatal("не удалось прочитать .env")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.LookupEnv); err != nil {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("workshop-service остановлен")
}
