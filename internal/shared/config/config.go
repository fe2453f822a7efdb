package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Env             string `mapstructure:"env"`
	Port            string `mapstructure:"port"`
	CORSAllowOrigin []string
	CORSRaw         string `mapstructure:"cors_allow_origins"`
	LogLevel        string `mapstructure:"log_level"`

	ObjectStoreType string `mapstructure:"object_store"`
	LocalStoreDir   string `mapstructure:"local_store_dir"`
	AWSRegion       string `mapstructure:"aws_region"`
	S3Bucket        string `mapstructure:"s3_bucket"`
	S3Prefix        string `mapstructure:"s3_prefix"`
	SSEKMSKeyID     string `mapstructure:"sse_kms_key_id"`

	KVBackend     string `mapstructure:"kv_backend"`
	DatabaseURL   string `mapstructure:"database_url"`
	DynamoDBTable string `mapstructure:"dynamodb_table"`

	QueueBackend string `mapstructure:"queue_backend"`
	SQSQueueURL  string `mapstructure:"sqs_queue_url"`
	AMQPURL      string `mapstructure:"amqp_url"`
	AMQPQueue    string `mapstructure:"amqp_queue"`

	LLMProvider  string `mapstructure:"llm_provider"`
	LLMModel     string `mapstructure:"llm_model"`
	OpenAIAPIKey string `mapstructure:"openai_api_key"`
	GeminiAPIKey string `mapstructure:"gemini_api_key"`

	RasterScale         float64       `mapstructure:"raster_scale"`
	RasterEncodeTimeout time.Duration `mapstructure:"raster_encode_timeout"`
	UnidocLicenseKey    string        `mapstructure:"unidoc_license_api_key"`

	StoreCallTimeout time.Duration `mapstructure:"store_call_timeout"`
	InferenceTimeout time.Duration `mapstructure:"inference_timeout"`
	CallRetries      int           `mapstructure:"call_retries"`
	CallRetryBackoff time.Duration `mapstructure:"call_retry_backoff"`

	WorkerConcurrency   int `mapstructure:"worker_concurrency"`
	SQSVisibilitySecs   int `mapstructure:"sqs_visibility_timeout_seconds"`
	ShutdownTimeoutSecs int `mapstructure:"shutdown_timeout_seconds"`

	GoogleClientID     string `mapstructure:"google_client_id"`
	GoogleClientSecret string `mapstructure:"google_client_secret"`
	GoogleRedirectURL  string `mapstructure:"google_redirect_url"`
	UIRedirectURL      string `mapstructure:"ui_redirect_url"`
	JWTSecret          string `mapstructure:"jwt_secret"`

	SubmitRatePerMin int `mapstructure:"submit_rate_per_min"`
	SubmitBurst      int `mapstructure:"submit_burst"`
}

var defaults = map[string]any{
	"env":                            "dev",
	"port":                           "8080",
	"cors_allow_origins":             "http://localhost:5173",
	"log_level":                      "info",
	"object_store":                   "local",
	"local_store_dir":                "./data",
	"aws_region":                     "",
	"s3_bucket":                      "",
	"s3_prefix":                      "",
	"sse_kms_key_id":                 "",
	"kv_backend":                     "",
	"database_url":                   "",
	"dynamodb_table":                 "",
	"queue_backend":                  "none",
	"sqs_queue_url":                  "",
	"amqp_url":                       "",
	"amqp_queue":                     "submission_jobs",
	"llm_provider":                   "placeholder",
	"llm_model":                      "",
	"openai_api_key":                 "",
	"gemini_api_key":                 "",
	"raster_scale":                   2.5,
	"raster_encode_timeout":          "5s",
	"unidoc_license_api_key":         "",
	"store_call_timeout":             "30s",
	"inference_timeout":              "180s",
	"call_retries":                   1,
	"call_retry_backoff":             "300ms",
	"worker_concurrency":             4,
	"sqs_visibility_timeout_seconds": 1200,
	"shutdown_timeout_seconds":       30,
	"google_client_id":               "",
	"google_client_secret":           "",
	"google_redirect_url":            "",
	"ui_redirect_url":                "",
	"jwt_secret":                     "",
	"submit_rate_per_min":            6,
	"submit_burst":                   3,
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	v := viper.New()
	v.AutomaticEnv()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Printf("config: unmarshal failed, using defaults: %v", err)
	}
	return normalize(cfg)
}

func normalize(cfg Config) Config {
	cfg.Env = normalizeEnv(cfg.Env)
	cfg.CORSAllowOrigin = splitAndTrim(cfg.CORSRaw)
	cfg.ObjectStoreType = normalizeStoreType(cfg.ObjectStoreType)
	cfg.KVBackend = normalizeKVBackend(cfg.KVBackend, cfg.DatabaseURL, cfg.DynamoDBTable)
	cfg.QueueBackend = normalizeQueueBackend(cfg.QueueBackend)
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	if cfg.RasterScale < 2 {
		cfg.RasterScale = 2
	}
	if cfg.RasterEncodeTimeout <= 0 {
		cfg.RasterEncodeTimeout = 5 * time.Second
	}
	if cfg.CallRetries < 0 {
		cfg.CallRetries = 0
	}
	if cfg.CallRetries > 1 {
		cfg.CallRetries = 1
	}
	if cfg.WorkerConcurrency < 1 {
		cfg.WorkerConcurrency = 1
	}

	if cfg.Env == "production" && cfg.KVBackend == "memory" {
		log.Printf("config: production without DATABASE_URL or DYNAMODB_TABLE keeps records in memory")
	}
	return cfg
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}

func normalizeKVBackend(raw, databaseURL, dynamoTable string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "postgres", "pg":
		return "postgres"
	case "dynamodb", "dynamo":
		return "dynamodb"
	case "memory":
		return "memory"
	}
	if strings.TrimSpace(databaseURL) != "" {
		return "postgres"
	}
	if strings.TrimSpace(dynamoTable) != "" {
		return "dynamodb"
	}
	return "memory"
}

func normalizeQueueBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sqs":
		return "sqs"
	case "amqp", "rabbitmq":
		return "amqp"
	default:
		return "none"
	}
}
