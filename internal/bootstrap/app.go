// Package bootstrap builds the process-wide dependency graph from Config.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gin-gonic/gin"

	googleauth "resume-critique/internal/auth"
	"resume-critique/internal/inference"
	"resume-critique/internal/inference/gemini"
	"resume-critique/internal/inference/openai"
	"resume-critique/internal/intake"
	"resume-critique/internal/pipeline"
	"resume-critique/internal/queue"
	"resume-critique/internal/rasterize"
	"resume-critique/internal/services/health"
	sharedauth "resume-critique/internal/shared/auth"
	"resume-critique/internal/shared/awsutil"
	"resume-critique/internal/shared/config"
	"resume-critique/internal/shared/server"
	"resume-critique/internal/shared/server/middleware"
	"resume-critique/internal/shared/storage/db"
	"resume-critique/internal/shared/storage/kv"
	"resume-critique/internal/shared/storage/object"
	localstore "resume-critique/internal/shared/storage/object/local"
	s3store "resume-critique/internal/shared/storage/object/s3"
	"resume-critique/internal/shared/telemetry"
	"resume-critique/internal/submissions"
	"resume-critique/internal/wipe"
)

// App holds shared dependencies. Every entrypoint builds one and uses the parts it needs.
type App struct {
	Config     config.Config
	Router     *gin.Engine
	DB         *sql.DB
	Artifacts  object.Store
	KV         kv.Store
	Records    *submissions.Store
	Queue      queue.Client
	AMQP       *queue.AMQPClient
	Inference  inference.Client
	Pipeline   *pipeline.Orchestrator
	Intake     *intake.Service
	Wipe       *wipe.Service
	Signer     *sharedauth.Signer
	GoogleAuth *googleauth.GoogleService
	Health     *health.Service
}

// Options overrides parts of the graph, mainly for tests and the CLI.
type Options struct {
	Artifacts  object.Store
	KV         kv.Store
	Inference  inference.Client
	Rasterizer pipeline.Rasterizer
	Queue      queue.Client
}

// Build prepares shared dependencies and the HTTP router.
func Build(cfg config.Config) (*App, error) {
	return BuildWith(context.Background(), cfg, Options{})
}

// BuildWith is Build with overrides.
func BuildWith(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	app := &App{Config: cfg}

	if err := rasterize.SetLicenseKey(cfg.UnidocLicenseKey); err != nil {
		return nil, err
	}

	var err error
	if app.Artifacts = opts.Artifacts; app.Artifacts == nil {
		if app.Artifacts, err = buildArtifacts(ctx, cfg); err != nil {
			return nil, err
		}
	}
	if app.KV = opts.KV; app.KV == nil {
		if app.KV, app.DB, err = buildKV(ctx, cfg); err != nil {
			return nil, err
		}
	}
	if app.Queue = opts.Queue; app.Queue == nil {
		if err := buildQueue(ctx, cfg, app); err != nil {
			return nil, err
		}
	}
	if app.Inference = opts.Inference; app.Inference == nil {
		if app.Inference, err = buildInference(ctx, cfg); err != nil {
			return nil, err
		}
	}
	raster := opts.Rasterizer
	if raster == nil {
		raster = rasterize.New(rasterize.UniPDF{}, cfg.RasterScale, cfg.RasterEncodeTimeout)
	}

	storeGuard := pipeline.Guard{
		Name:    "store",
		Timeout: cfg.StoreCallTimeout,
		Retries: cfg.CallRetries,
		Backoff: cfg.CallRetryBackoff,
	}
	app.Records = submissions.NewStore(app.KV)
	app.Pipeline, err = pipeline.New(pipeline.Deps{
		Artifacts:  app.Artifacts,
		Records:    app.Records,
		Rasterizer: raster,
		Inference:  app.Inference,
		StoreGuard: storeGuard,
		InferenceGuard: pipeline.Guard{
			Name:    "inference",
			Timeout: cfg.InferenceTimeout,
			Retries: cfg.CallRetries,
			Backoff: cfg.CallRetryBackoff,
		},
	})
	if err != nil {
		return nil, err
	}
	app.Wipe = &wipe.Service{Artifacts: app.Artifacts, Records: app.Records, Guard: storeGuard}
	app.Intake = &intake.Service{
		Pipeline:  app.Pipeline,
		Records:   app.Records,
		Artifacts: app.Artifacts,
		Queue:     app.Queue,
		Wiper:     app.Wipe,
	}

	if app.Signer, err = sharedauth.NewSigner(cfg.JWTSecret, cfg.Env); err != nil {
		return nil, err
	}
	app.GoogleAuth = googleauth.NewGoogleService(googleauth.GoogleConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		UIRedirect:   cfg.UIRedirectURL,
	}, app.Signer)

	app.Health = health.NewService()
	if app.DB != nil {
		app.Health.Register("database", app.DB.PingContext)
	}
	if app.AMQP != nil {
		app.Health.Register("amqp", app.AMQP.Ping)
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:      cfg,
		Verifier:    app.Signer,
		Submissions: intake.NewHandler(app.Intake),
		GoogleAuth:  app.GoogleAuth,
		RateLimiter: middleware.NewRateLimiter(nil),
		Health:      app.Health,
	})

	telemetry.Info("bootstrap.ready", map[string]any{
		"env":          cfg.Env,
		"object_store": cfg.ObjectStoreType,
		"kv_backend":   cfg.KVBackend,
		"queue":        cfg.QueueBackend,
		"llm_provider": cfg.LLMProvider,
	})
	return app, nil
}

// Close releases connections held by the app.
func (a *App) Close() {
	if a.AMQP != nil {
		_ = a.AMQP.Close()
	}
	if a.DB != nil && !db.IsLambdaRuntime() {
		_ = a.DB.Close()
	}
}

func buildArtifacts(ctx context.Context, cfg config.Config) (object.Store, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, errors.New("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildKV(ctx context.Context, cfg config.Config) (kv.Store, *sql.DB, error) {
	switch cfg.KVBackend {
	case "postgres":
		sqlDB, err := openDB(ctx, cfg)
		if err != nil {
			if isDevLike(cfg.Env) {
				telemetry.Warn("bootstrap.db_fallback", map[string]any{"error": err.Error()})
				return kv.NewMemoryStore(), nil, nil
			}
			return nil, nil, err
		}
		return &kv.PGStore{DB: sqlDB}, sqlDB, nil
	case "dynamodb":
		awsCfg, _, err := awsutil.Load(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, nil, fmt.Errorf("load aws config: %w", err)
		}
		return &kv.DynamoStore{DB: dynamodb.NewFromConfig(awsCfg), Table: cfg.DynamoDBTable}, nil, nil
	default:
		if !isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_records", map[string]any{"env": cfg.Env})
		}
		return kv.NewMemoryStore(), nil, nil
	}
}

func openDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if db.IsLambdaRuntime() {
		return db.Shared(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.Defaults(db.ProfileLambda)))
	}
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.Defaults(db.ProfileServer)))
	if err != nil {
		return nil, err
	}
	if isDevLike(cfg.Env) {
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return sqlDB, nil
}

func buildQueue(ctx context.Context, cfg config.Config, app *App) error {
	switch cfg.QueueBackend {
	case "sqs":
		client, err := queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.SQSQueueURL)
		if err != nil {
			return err
		}
		app.Queue = client
	case "amqp":
		client, err := queue.NewAMQPClient(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			return err
		}
		app.Queue = client
		app.AMQP = client
	}
	return nil
}

func buildInference(ctx context.Context, cfg config.Config) (inference.Client, error) {
	switch cfg.LLMProvider {
	case "openai":
		return openai.NewClient(cfg.OpenAIAPIKey, cfg.LLMModel)
	case "gemini":
		return gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.LLMModel)
	case "", "placeholder":
		return inference.PlaceholderClient{}, nil
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
