package app

import (
	"strings"
	"time"

	"github.com/mabquiz/mabquiz-backend/internal/platform/envutil"
)

type Config struct {
	Port        string
	Environment string
	Version     string

	AllowOrigins []string

	WindowDays        int
	MinSampleSize     int
	MetricsMaxAgeDays int

	JobMaxAttempts    int
	JobRetryBase      time.Duration
	JobStaleRunning   time.Duration
	JobPollInterval   time.Duration
	WorkerConcurrency int

	SchedulerEnabled bool
	RecomputeAt      string
}

func LoadConfig() Config {
	origins := strings.Split(envutil.String("CORS_ALLOW_ORIGINS", "http://localhost:3000"), ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	return Config{
		Port:        envutil.String("PORT", "8080"),
		Environment: envutil.String("ENVIRONMENT", "development"),
		Version:     envutil.String("SERVICE_VERSION", "dev"),

		AllowOrigins: origins,

		WindowDays:        envutil.Int("DIFFICULTY_WINDOW_DAYS", 30),
		MinSampleSize:     envutil.Int("DIFFICULTY_MIN_SAMPLE_SIZE", 10),
		MetricsMaxAgeDays: envutil.Int("METRICS_MAX_AGE_DAYS", 90),

		JobMaxAttempts:    envutil.Int("JOB_MAX_ATTEMPTS", 3),
		JobRetryBase:      envutil.Duration("JOB_RETRY_BASE", 30*time.Second),
		JobStaleRunning:   envutil.Duration("JOB_STALE_RUNNING", 2*time.Minute),
		JobPollInterval:   envutil.Duration("JOB_POLL_INTERVAL", 1*time.Second),
		WorkerConcurrency: envutil.Int("JOB_WORKER_CONCURRENCY", 1),

		SchedulerEnabled: envutil.Bool("SCHEDULER_ENABLED", true),
		RecomputeAt:      envutil.String("DIFFICULTY_RECOMPUTE_AT", "02:00"),
	}
}
