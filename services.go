package main

import (
	"fmt"
	"time"

	"github.com/ggstvfer/psd-covert-sub000/caching"
	"github.com/ggstvfer/psd-covert-sub000/extract"
	"github.com/ggstvfer/psd-covert-sub000/handlers"
	"github.com/ggstvfer/psd-covert-sub000/health"
	"github.com/ggstvfer/psd-covert-sub000/queues"
	"github.com/ggstvfer/psd-covert-sub000/services"
	"github.com/ggstvfer/psd-covert-sub000/store"
)

// embeddedChunkTTL is a backstop behind the lazy session sweep: chunks
// in the embedded tier expire on their own even if the sweep never
// reaches them.
const embeddedChunkTTL = 24 * time.Hour

type Stores struct {
	sessions store.SessionStore
	embedded store.ChunkStore
	external store.ChunkStore
}

type Services struct {
	Uploads services.UploadService

	Stores  *Stores
	Handler *handlers.HttpHandler
}

func BuildServices(app *App) *Services {
	cfg := app.Config

	sessionStore := store.NewDynamoDbSessionStoreImpl(app.DynamoDB, cfg.DynamoDBConfig.SessionsTableName)
	embedded := store.NewRedisChunkStoreImpl(app.Redis, embeddedChunkTTL)
	external := store.NewS3ChunkStoreImpl(app.S3, cfg.S3Config.BucketName, app.Logger)

	var cachingSvc caching.CachingService
	cachingSvc = caching.NewRedisCachingService(app.Redis)
	if app.Redis == nil {
		cachingSvc = caching.NewNullCachingService()
	}

	var notifier queues.CompletionNotifier = queues.NewNullCompletionNotifier()
	if app.Sqs != nil && cfg.AWSConfig.AccountID != "" {
		queueUrl := fmt.Sprintf("https://sqs.%s.amazonaws.com/%s/%s", cfg.AWSConfig.Region, cfg.AWSConfig.AccountID, cfg.ServiceConfig.CompletionsQueueName)
		notifier = queues.NewSqsCompletionNotifierImpl(app.Sqs, queueUrl, app.Logger)
	}

	engine := extract.NewEngine(extract.NewHeaderDecoderImpl(), app.Logger)
	tiering := services.NewTieringPolicy(cfg.ServiceConfig.StorageTierThreshold)

	uploadSvc := services.NewUploadServiceImpl(
		sessionStore,
		embedded,
		external,
		tiering,
		engine,
		cachingSvc,
		notifier,
		cfg.ServiceConfig,
		app.Logger,
	)

	handler := handlers.NewHttpHandler(uploadSvc, &app.ready, app.Logger)

	return &Services{
		Uploads: uploadSvc,

		Stores: &Stores{
			sessions: sessionStore,
			embedded: embedded,
			external: external,
		},

		Handler: handler,
	}
}

func (s *Services) ReadinessChecks() []health.ReadinessCheck {
	return []health.ReadinessCheck{
		s.Stores.sessions,
		s.Stores.embedded,
		s.Stores.external,
	}
}
