// SPDX-License-Identifier: MIT

// Package config builds the immutable configuration snapshot the
// daemon is wired from. Environment variables decide infrastructure;
// the per-plan limits live in a YAML file that hot-reloads.
package config

import (
	"time"

	"github.com/coachscribe/coachscribe/internal/domain/model"
)

// Snapshot is read once at startup and threaded through constructors.
// No component reads the environment after this point.
type Snapshot struct {
	ListenAddr  string
	DataDir     string
	DBPath      string
	StoreBackend string

	// Blob store
	BlobBackend  string
	BucketName   string
	UploadURLTTL time.Duration

	// Queue
	QueueBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	QueueKey      string

	// Providers
	DefaultProvider    model.Provider
	AssemblyAIAPIKey   string
	GoogleCredsFile    string
	ProviderTimeout    time.Duration
	PollInterval       time.Duration

	// Cost model, cents per transcribed minute.
	RateGoogleCents     int
	RateAssemblyAICents int
	Currency            string

	// Worker
	WorkerConcurrency  int
	HeartbeatInterval  time.Duration
	RetryBaseDelay     time.Duration
	RetryMaxDelay      time.Duration
	RetryAttempts      int
	ProviderRPS        float64

	// Reaper
	ReaperInterval         time.Duration
	ReaperTimeoutMultiplier float64
	ReaperMinTimeout       time.Duration

	// Plans
	PlanFile string

	// Telemetry
	OTLPEndpoint string
}

// FromEnv assembles a Snapshot from the process environment.
func FromEnv() Snapshot {
	return Snapshot{
		ListenAddr:   ParseString("LISTEN_ADDR", ":8080"),
		DataDir:      ParseString("DATA_DIR", "./data"),
		DBPath:       ParseString("DB_PATH", "./data/coachscribe.db"),
		StoreBackend: ParseString("STORE_BACKEND", "sqlite"),

		BlobBackend:  ParseString("BLOB_BACKEND", "gcs"),
		BucketName:   ParseString("AUDIO_BUCKET", "coachscribe-audio"),
		UploadURLTTL: ParseDuration("UPLOAD_URL_TTL", 15*time.Minute),

		QueueBackend:  ParseString("QUEUE_BACKEND", "redis"),
		RedisAddr:     ParseString("REDIS_ADDR", "localhost:6379"),
		RedisPassword: ParseString("REDIS_PASSWORD", ""),
		RedisDB:       ParseInt("REDIS_DB", 0),
		QueueKey:      ParseString("QUEUE_KEY", "coachscribe:transcription:queue"),

		DefaultProvider:  model.Provider(ParseString("DEFAULT_STT_PROVIDER", string(model.ProviderAssemblyAI))),
		AssemblyAIAPIKey: ParseString("ASSEMBLYAI_API_KEY", ""),
		GoogleCredsFile:  ParseString("GOOGLE_APPLICATION_CREDENTIALS", ""),
		ProviderTimeout:  ParseDuration("PROVIDER_TIMEOUT", 30*time.Second),
		PollInterval:     ParseDuration("PROVIDER_POLL_INTERVAL", 5*time.Second),

		RateGoogleCents:     ParseInt("RATE_GOOGLE_CENTS_PER_MIN", 3),
		RateAssemblyAICents: ParseInt("RATE_ASSEMBLYAI_CENTS_PER_MIN", 2),
		Currency:            ParseString("BILLING_CURRENCY", "TWD"),

		WorkerConcurrency: ParseInt("WORKER_CONCURRENCY", 4),
		HeartbeatInterval: ParseDuration("WORKER_HEARTBEAT_INTERVAL", 30*time.Second),
		RetryBaseDelay:    ParseDuration("WORKER_RETRY_BASE_DELAY", 5*time.Second),
		RetryMaxDelay:     ParseDuration("WORKER_RETRY_MAX_DELAY", 120*time.Second),
		RetryAttempts:     ParseInt("WORKER_RETRY_ATTEMPTS", 3),
		ProviderRPS:       ParseFloat("WORKER_PROVIDER_RPS", 10),

		ReaperInterval:          ParseDuration("REAPER_INTERVAL", time.Minute),
		ReaperTimeoutMultiplier: ParseFloat("REAPER_TIMEOUT_MULTIPLIER", 2.0),
		ReaperMinTimeout:        ParseDuration("REAPER_MIN_TIMEOUT", 30*time.Minute),

		PlanFile: ParseString("PLAN_FILE", ""),

		OTLPEndpoint: ParseString("OTLP_ENDPOINT", ""),
	}
}
