package main

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gallerysync/api/internal/client"
	"github.com/gallerysync/api/internal/config"
	"github.com/gallerysync/api/internal/gallery"
	"github.com/gallerysync/api/internal/handler"
	"github.com/gallerysync/api/internal/logging"
	"github.com/gallerysync/api/internal/metrics"
	"github.com/gallerysync/api/internal/middleware"
	"github.com/gallerysync/api/internal/model"
	"github.com/gallerysync/api/internal/queue"
	"github.com/gallerysync/api/internal/repository"
	"github.com/gallerysync/api/internal/service"
	"github.com/gallerysync/api/internal/worker"
)

// deps are the shared clients of one process
type deps struct {
	db      *repository.DB
	redis   *redis.Client
	metrics *metrics.Metrics
}

func openDeps(ctx context.Context, rt *cli, migrate bool) (*deps, error) {
	db, err := repository.Open(ctx, rt.cfg.Database, rt.logger)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := repository.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     rt.cfg.Redis.Addr,
		Password: rt.cfg.Redis.Password,
		DB:       rt.cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		rt.logger.Warn().Err(err).Msg("redis not available")
	}

	return &deps{
		db:      db,
		redis:   redisClient,
		metrics: metrics.MustNew(prometheus.DefaultRegisterer),
	}, nil
}

func (d *deps) Close() {
	d.redis.Close()
	d.db.Close()
}

func redisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func newMediaStorage(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (gallery.MediaStorage, error) {
	switch cfg.Driver {
	case "s3":
		s3Storage, err := client.NewS3MediaStorage(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return s3Storage, nil
	case "local":
		return client.NewLocalMediaStorage(cfg.MediaRoot, logger), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// newWorkerServer builds the asynq server and its handler mux
func newWorkerServer(ctx context.Context, rt *cli, d *deps) (*asynq.Server, *asynq.ServeMux, error) {
	media, err := newMediaStorage(ctx, rt.cfg.Storage, rt.logger)
	if err != nil {
		return nil, nil, err
	}

	processor := gallery.NewProcessor(
		repository.NewGalleryRepository(d.db),
		media,
		gallery.DefaultRoleMapper(),
		gallery.DefaultManagedRoles(),
		rt.logger,
	)
	statuses := worker.NewOperationStatusUpdater(repository.NewOperationRepository(d.db), rt.logger)
	galleryWorker := worker.NewGalleryWorker(
		processor,
		service.NewImageNormalizer(rt.logger),
		worker.NewFailureClassifier(),
		statuses,
		d.metrics,
		rt.logger,
	)

	srv := asynq.NewServer(
		redisOpt(rt.cfg.Redis),
		asynq.Config{
			Concurrency: rt.cfg.Queue.Concurrency,
			Queues: map[string]int{
				rt.cfg.Queue.Name: 1,
			},
			Logger:   logging.NewAsynqLogger(rt.logger),
			LogLevel: logging.AsynqLevel(rt.cfg.Server.LogLevel),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(model.TopicGalleryProcess, galleryWorker.ProcessTask)

	return srv, mux, nil
}

// newHTTPApp builds the fiber app. The returned closer releases the asynq
// client and inspector.
func newHTTPApp(rt *cli, d *deps) (*fiber.App, func()) {
	asynqClient := asynq.NewClient(redisOpt(rt.cfg.Redis))
	inspector := asynq.NewInspector(redisOpt(rt.cfg.Redis))

	operations := repository.NewOperationRepository(d.db)
	scheduler := queue.NewAsynqScheduler(operations, asynqClient, inspector, rt.cfg.Queue, rt.logger)
	bulkService := service.NewBulkService(
		scheduler,
		operations,
		service.NewImageNormalizer(rt.logger),
		d.metrics,
		rt.cfg.Bulk.Description,
		rt.logger,
	)

	app := handler.NewApp(rt.cfg.Server.BodyLimitMB, rt.cfg.IsDevelopment())
	handler.Routes{
		Bulk:    handler.NewBulkHandler(bulkService, validator.New(), rt.cfg.Bulk.MaxItems),
		Gallery: handler.NewGalleryHandler(repository.NewGalleryRepository(d.db)),
		Health: handler.NewHealthHandler(map[string]handler.HealthCheck{
			"redis": func(ctx context.Context) error {
				return d.redis.Ping(ctx).Err()
			},
			"database": func(ctx context.Context) error {
				return d.db.PingContext(ctx)
			},
		}),
		RateLimiter: middleware.NewRateLimiter(d.redis, rt.logger),
		BulkPerHour: rt.cfg.RateLimit.BulkPerHour,
		Metrics:     metrics.Handler(prometheus.DefaultGatherer),
	}.Register(app)

	return app, func() {
		inspector.Close()
		asynqClient.Close()
	}
}
