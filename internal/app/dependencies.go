package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/messaging"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/realtime"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
	"github.com/vladislavdragonenkov/storefront/internal/storage/sqlite"
	"github.com/vladislavdragonenkov/storefront/internal/store"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

// Имена документов в таблице store_documents (postgres и sqlite).
const (
	productsDocument = "products"
	cartsDocument    = "carts"
)

// Dependencies содержит все зависимости приложения.
type Dependencies struct {
	// Origin отличает события этого экземпляра от событий соседей в общем топике.
	Origin   string
	Products *store.ProductManager
	Carts    *store.CartManager
	Feed     *realtime.Hub
	Health   *health.Handler
	Metrics  *metrics.StoreMetrics
	Producer *kafka.Producer
	Consumer *kafka.Consumer
	Logger   *log.Entry

	database *postgres.Database
	embedded *sqlite.DocumentStore
}

// NewDependencies открывает хранилища выбранного backend и связывает их с лентой и Kafka.
// Ошибка Kafka не фатальна: сервис работает без неё, а /healthz сообщает degraded.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	d := &Dependencies{
		Origin:  uuid.NewString(),
		Health:  health.NewHandler(version.GetVersion()),
		Metrics: metrics.NewStoreMetrics(),
		Logger:  logger,
	}

	d.Feed = realtime.NewHub(realtime.Config{
		Name: "products",
		Accept: func(e domain.Event) bool {
			return e.AggregateType == domain.AggregateProduct
		},
		InitialState:   d.productsSnapshot,
		AllowedOrigins: cfg.WSAllowedOrigins,
	})

	producer, kafkaErr := initKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic, d.Origin, logger)
	d.Producer = producer
	if producer != nil {
		consumer, err := initKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.KafkaTopic, d.Origin, d.Feed, logger)
		d.Consumer = consumer
		kafkaErr = err
	}
	if len(cfg.KafkaBrokers) > 0 {
		d.Health.RegisterOptional("kafka", func(context.Context) error { return kafkaErr })
	}

	sinks := []messaging.Sink{{Name: "websocket", Publisher: d.Feed}}
	if d.Producer != nil {
		sinks = append(sinks, messaging.Sink{Name: "kafka", Publisher: d.Producer})
	}
	publisher := messaging.NewFanout(d.Metrics, sinks...)
	logger.WithField("sinks", publisher.Len()).Info("store events fanout configured")

	opts := []store.Option{
		store.WithMetrics(d.Metrics),
		store.WithPublisher(publisher),
	}
	if err := d.openStores(ctx, cfg, opts); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Dependencies) openStores(ctx context.Context, cfg Config, opts []store.Option) error {
	switch cfg.StorageDriver {
	case StorageDriverPostgres:
		db, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		d.database = db
		if cfg.PostgresAutoMigrate {
			if err := db.MigrateUp(ctx, 0); err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
		}
		d.Health.Register("storage", db.Ping)
		return d.openDocuments(ctx, db.Documents(), opts)

	case StorageDriverSQLite:
		docs, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		d.embedded = docs
		d.Health.Register("storage", docs.Ping)
		return d.openDocuments(ctx, docs, opts)

	default:
		var err error
		if d.Products, err = store.NewProductManager(ctx, cfg.ProductsFile,
			append(opts, store.WithLogger(d.Logger.WithField("store", "products")))...); err != nil {
			return err
		}
		if d.Carts, err = store.NewCartManager(ctx, cfg.CartsFile,
			append(opts, store.WithLogger(d.Logger.WithField("store", "carts")))...); err != nil {
			return err
		}
		dirs := []string{filepath.Dir(cfg.ProductsFile), filepath.Dir(cfg.CartsFile)}
		d.Health.Register("storage", func(context.Context) error {
			for _, dir := range dirs {
				if _, err := os.Stat(dir); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return nil
}

func (d *Dependencies) openDocuments(ctx context.Context, docs domain.DocumentStore, opts []store.Option) error {
	var err error
	if d.Products, err = store.OpenProductManager(ctx, docs, productsDocument,
		append(opts, store.WithLogger(d.Logger.WithField("store", "products")))...); err != nil {
		return err
	}
	if d.Carts, err = store.OpenCartManager(ctx, docs, cartsDocument,
		append(opts, store.WithLogger(d.Logger.WithField("store", "carts")))...); err != nil {
		return err
	}
	return nil
}

// productsSnapshot отдаёт начальное состояние ленты: все товары каталога.
func (d *Dependencies) productsSnapshot(ctx context.Context) (any, error) {
	if d.Products == nil {
		return []domain.ProductView{}, nil
	}
	products, err := d.Products.Products(ctx, 0, 0)
	if err != nil {
		return nil, err
	}
	views := make([]domain.ProductView, 0, len(products))
	for _, p := range products {
		views = append(views, p.View())
	}
	return views, nil
}

// Close освобождает ресурсы в обратном порядке открытия.
func (d *Dependencies) Close() error {
	closeKafka(d.Producer, d.Consumer, d.Logger)

	var errs []error
	if d.Carts != nil {
		errs = append(errs, d.Carts.Close())
	}
	if d.Products != nil {
		errs = append(errs, d.Products.Close())
	}
	if d.database != nil {
		errs = append(errs, d.database.Close())
	}
	if d.embedded != nil {
		errs = append(errs, d.embedded.Close())
	}
	return errors.Join(errs...)
}
