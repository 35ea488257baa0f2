package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ggstvfer/psd-covert-sub000/config"
	"github.com/ggstvfer/psd-covert-sub000/logging"
	"github.com/ggstvfer/psd-covert-sub000/tracing"
)

const serviceName = "psd-upload-sessions"

type App struct {
	Server *http.Server

	DynamoDB *dynamodb.Client
	Redis    *redis.Client
	S3       *s3.Client
	Sqs      *sqs.Client

	Config    config.Config
	AwsConfig aws.Config

	Services       *Services
	TracerProvider *sdktrace.TracerProvider
	Logger         *logging.ZapLogger

	ready atomic.Bool
}

func SetupApp() (*App, error) {
	cfg := config.LoadConfig()

	if err := cfg.AWSConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	awsCfg, err := initAWS(cfg.AWSConfig)
	if err != nil {
		return nil, err
	}

	appLogger, err := logging.NewZapLogger(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("could not init logger: %w", err)
	}

	app := &App{
		DynamoDB: dynamodb.NewFromConfig(awsCfg),
		Redis:    initRedis(cfg.RedisConfig),
		S3:       s3.NewFromConfig(awsCfg),
		Sqs:      sqs.NewFromConfig(awsCfg),

		Config:    cfg,
		AwsConfig: awsCfg,
		Logger:    appLogger,
	}

	if app.Config.Tracing {
		tp, err := tracing.InitTracer(context.Background(), serviceName, cfg.TracingAddr)
		if err != nil {
			return nil, fmt.Errorf("could not start tracing: %w", err)
		}
		appLogger.Info("tracing enabled", "addr", cfg.TracingAddr)

		app.TracerProvider = tp
	}

	app.Services = BuildServices(app)

	return app, nil
}

func (a *App) Run(ctx context.Context) error {
	go a.watchReadiness(ctx)

	if a.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(serviceName))
	a.Services.Handler.RegisterRoutes(router)

	a.Server = &http.Server{
		Addr:    a.Config.ServiceConfig.HTTPAddr,
		Handler: router,
	}

	a.Logger.Info("http server starting", "addr", a.Server.Addr)

	if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// watchReadiness polls the backing stores and flips the readiness flag
// the /healthz endpoint serves. Starts pessimistic.
func (a *App) watchReadiness(ctx context.Context) {
	checks := a.Services.ReadinessChecks()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ready := true

			for _, c := range checks {
				cctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
				err := c.IsReady(cctx)
				cancel()

				if err != nil {
					a.Logger.Warn("readiness check failed", "check", c.Name(), "error", err)
					ready = false
					break
				}
			}

			a.ready.Store(ready)
		}
	}
}

func initAWS(cfg config.AWSConfig) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(
		context.Background(),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Host,
		Password: "",
		DB:       0,
	})
}

func (a *App) Shutdown(ctx context.Context) error {
	log.Println("starting graceful shutdown")

	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			log.Printf("http server shutdown error: %v", err)
		}
	}

	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.Printf("redis close error: %v", err)
		}
	}

	if a.TracerProvider != nil {
		if err := a.TracerProvider.Shutdown(ctx); err != nil {
			log.Printf("tracer shutdown error: %v", err)
		}
	}

	if a.Logger != nil {
		_ = a.Logger.Sync()
	}

	log.Println("graceful shutdown complete")
	return nil
}
