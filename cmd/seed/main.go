// cmd/seed/main.go

// Утилита начальной загрузки ClickHouse: создаёт базу, доменные таблицы
// и наполняет их стартовыми данными.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iamjai-3/clickhouse-kafka-streaming/internal/config"
	"github.com/iamjai-3/clickhouse-kafka-streaming/internal/model"
	"github.com/iamjai-3/clickhouse-kafka-streaming/pkg/logger"
)

var tableDDL = map[string]string{
	"users": `
		CREATE TABLE IF NOT EXISTS users (
			id         UInt64,
			name       String,
			email      String,
			age        UInt8,
			city       String,
			created_at DateTime DEFAULT now()
		) ENGINE = MergeTree()
		ORDER BY (id)`,
	"products": `
		CREATE TABLE IF NOT EXISTS products (
			id          UInt64,
			name        String,
			category    String,
			price       Decimal64(2),
			stock       UInt32,
			description String,
			created_at  DateTime DEFAULT now()
		) ENGINE = MergeTree()
		ORDER BY (id)`,
	"orders": `
		CREATE TABLE IF NOT EXISTS orders (
			id          UInt64,
			user_id     UInt64,
			product_id  UInt64,
			quantity    UInt32,
			total_price Decimal64(2),
			status      String,
			order_date  DateTime DEFAULT now()
		) ENGINE = MergeTree()
		ORDER BY (id)`,
}

func connect(ctx context.Context, cfg *config.Config, database string) (driver.Conn, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.ClickHouse.Addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: cfg.ClickHouse.Username,
			Password: cfg.ClickHouse.Password,
		},
		DialTimeout: cfg.ClickHouse.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return conn, nil
}

func createDatabase(ctx context.Context, cfg *config.Config) error {
	conn, err := connect(ctx, cfg, "default")
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	return conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", cfg.ClickHouse.Database))
}

func createTables(ctx context.Context, conn driver.Conn, log *logger.Logger) error {
	for _, name := range []string{"users", "products", "orders"} {
		if err := conn.Exec(ctx, tableDDL[name]); err != nil {
			return fmt.Errorf("create table %s: %w", name, err)
		}
		log.Info("created table", zap.String("table", name))
	}
	return nil
}

func seedUsers(ctx context.Context, conn driver.Conn, count int) error {
	batch, err := conn.PrepareBatch(ctx, "INSERT INTO users (id, name, email, age, city)")
	if err != nil {
		return err
	}
	for i := 1; i <= count; i++ {
		err := batch.Append(
			uint64(i),
			gofakeit.Name(),
			gofakeit.Email(),
			uint8(gofakeit.Number(18, 80)),
			gofakeit.City(),
		)
		if err != nil {
			return err
		}
	}
	return batch.Send()
}

func seedProducts(ctx context.Context, conn driver.Conn, count int) error {
	categories := []string{"Electronics", "Furniture", "Clothing", "Books"}
	batch, err := conn.PrepareBatch(ctx, "INSERT INTO products (id, name, category, price, stock, description)")
	if err != nil {
		return err
	}
	for i := 1; i <= count; i++ {
		err := batch.Append(
			uint64(i),
			gofakeit.ProductName(),
			gofakeit.RandomString(categories),
			gofakeit.Price(10, 1000),
			uint32(gofakeit.Number(0, 500)),
			gofakeit.ProductDescription(),
		)
		if err != nil {
			return err
		}
	}
	return batch.Send()
}

func seedOrders(ctx context.Context, conn driver.Conn, count, maxUserID, maxProductID int) error {
	batch, err := conn.PrepareBatch(ctx, "INSERT INTO orders (id, user_id, product_id, quantity, total_price, status)")
	if err != nil {
		return err
	}
	for i := 1; i <= count; i++ {
		quantity := gofakeit.Number(1, 10)
		err := batch.Append(
			uint64(i),
			uint64(gofakeit.Number(1, maxUserID)),
			uint64(gofakeit.Number(1, maxProductID)),
			uint32(quantity),
			float64(quantity)*gofakeit.Price(10, 500),
			gofakeit.RandomString(model.OrderStatuses),
		)
		if err != nil {
			return err
		}
	}
	return batch.Send()
}

func verify(ctx context.Context, conn driver.Conn, log *logger.Logger) error {
	for _, table := range []string{"users", "products", "orders"} {
		var count uint64
		row := conn.QueryRow(ctx, fmt.Sprintf("SELECT count() FROM %s", table))
		if err := row.Scan(&count); err != nil {
			return fmt.Errorf("count %s: %w", table, err)
		}
		log.Info("table seeded", zap.String("table", table), zap.Uint64("rows", count))
	}
	return nil
}

func main() {
	var (
		configPath    string
		usersCount    int
		productsCount int
		ordersCount   int
	)

	root := &cobra.Command{
		Use:   "seed",
		Short: "Create and seed ClickHouse domain tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config load: %w", err)
			}

			log, err := logger.New(logger.Config{
				Level:   cfg.Logging.Level,
				DevMode: cfg.Logging.DevMode,
			})
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer log.Sync()

			ctx := cmd.Context()

			if err := createDatabase(ctx, cfg); err != nil {
				return fmt.Errorf("create database: %w", err)
			}

			conn, err := connect(ctx, cfg, cfg.ClickHouse.Database)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()

			if err := createTables(ctx, conn, log); err != nil {
				return err
			}
			if err := seedUsers(ctx, conn, usersCount); err != nil {
				return fmt.Errorf("seed users: %w", err)
			}
			if err := seedProducts(ctx, conn, productsCount); err != nil {
				return fmt.Errorf("seed products: %w", err)
			}
			if err := seedOrders(ctx, conn, ordersCount, usersCount, productsCount); err != nil {
				return fmt.Errorf("seed orders: %w", err)
			}
			if err := verify(ctx, conn, log); err != nil {
				return err
			}

			log.Info("seeding complete")
			return nil
		},
	}

	root.Flags().StringVar(&configPath, "config", "", "path to config file (optional, env overrides)")
	root.Flags().IntVar(&usersCount, "users", 10, "number of users to insert")
	root.Flags().IntVar(&productsCount, "products", 10, "number of products to insert")
	root.Flags().IntVar(&ordersCount, "orders", 20, "number of orders to insert")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}
