// cmd/ingestor/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iamjai-3/clickhouse-kafka-streaming/internal/app"
	"github.com/iamjai-3/clickhouse-kafka-streaming/internal/config"
	"github.com/iamjai-3/clickhouse-kafka-streaming/pkg/logger"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "ingestor",
		Short: "Kafka to ClickHouse streaming ingestor",
		RunE: func(cmd *cobra.Command, args []string) error {
			// 1) Загрузка конфига
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config load: %w", err)
			}

			// 2) Логгер
			log, err := logger.New(logger.Config{
				Level:   cfg.Logging.Level,
				DevMode: cfg.Logging.DevMode,
			})
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer log.Sync()

			if cfg.Logging.DevMode {
				cfg.Print()
			}

			log.Info("starting ingestor service",
				zap.String("service.name", cfg.ServiceName),
				zap.String("service.version", cfg.ServiceVersion),
				zap.String("config.path", configPath),
			)

			// 3) Контекст с отменой по SIGINT/SIGTERM
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			// 4) Запуск приложения
			if err := app.Run(ctx, cfg, log); err != nil && ctx.Err() == nil {
				log.Error("application exited with error", zap.Error(err))
				return err
			}

			log.Info("shutdown complete")
			return nil
		},
	}

	root.Flags().StringVar(&configPath, "config", "", "path to config file (optional, env overrides)")
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ingestor: %v\n", err)
		os.Exit(1)
	}
}
