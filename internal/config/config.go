// Package config loads Shepherd's scalar settings from the environment, in
// the teacher's app-utils-go/env style, plus the YAML sheep-fleet
// declaration (spec.md §6) describing the sheep set. Per spec.md §9's note
// that "global... singletons become explicit collaborators constructed at
// startup," this is a plain struct built once in main and threaded through,
// not package-level mutable state.
package config

import (
	"time"

	"github.com/catalystcommunity/app-utils-go/env"
)

// Config holds every scalar setting Shepherd needs at startup.
type Config struct {
	// Port is the HTTP API Facade's listen port.
	Port int

	// FleetFile is the path to the YAML sheep-fleet configuration
	// (spec.md §6's "Configuration file").
	FleetFile string

	// ObjectStoreKind selects the Storage Adapter backend: s3, filesystem, memory.
	ObjectStoreKind string
	S3Region        string
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	FilesystemRoot  string

	// QueueCapacity bounds each sheep's FIFO channel (spec.md §5, default 1024).
	QueueCapacity int
	// WorkerPoolSize sizes the bounded blocking-I/O pool (spec.md §5, default 2x sheep count).
	WorkerPoolSize int

	HandshakeTimeout time.Duration
	StorageTimeout   time.Duration

	// AuditDatabaseURI, when set, enables the best-effort audit log
	// (internal/audit). Left empty, the audit sink silently no-ops.
	AuditDatabaseURI string

	// Debug toggles verbose logging (spec.md §6).
	Debug bool
}

// FromEnv loads a Config from the process environment, applying the same
// defaults convention as the teacher's internal/config (app-utils-go/env
// GetEnvOrDefault family).
func FromEnv() Config {
	return Config{
		Port:             env.GetEnvAsIntOrDefault("SHEPHERD_PORT", "8080"),
		FleetFile:        env.GetEnvOrDefault("SHEPHERD_FLEET_FILE", "./fleet.yaml"),
		ObjectStoreKind:  env.GetEnvOrDefault("SHEPHERD_OBJECT_STORE", "filesystem"),
		S3Region:         env.GetEnvOrDefault("AWS_REGION", "us-east-1"),
		S3Endpoint:       env.GetEnvOrDefault("SHEPHERD_S3_ENDPOINT", ""),
		S3AccessKey:      env.GetEnvOrDefault("AWS_ACCESS_KEY_ID", ""),
		S3SecretKey:      env.GetEnvOrDefault("AWS_SECRET_ACCESS_KEY", ""),
		FilesystemRoot:   env.GetEnvOrDefault("SHEPHERD_FILESYSTEM_ROOT", "./objects"),
		QueueCapacity:    env.GetEnvAsIntOrDefault("SHEPHERD_QUEUE_CAPACITY", "1024"),
		WorkerPoolSize:   env.GetEnvAsIntOrDefault("SHEPHERD_WORKER_POOL_SIZE", "0"),
		HandshakeTimeout: time.Duration(env.GetEnvAsIntOrDefault("SHEPHERD_HANDSHAKE_TIMEOUT_SECONDS", "30")) * time.Second,
		StorageTimeout:   time.Duration(env.GetEnvAsIntOrDefault("SHEPHERD_STORAGE_TIMEOUT_SECONDS", "60")) * time.Second,
		AuditDatabaseURI: env.GetEnvOrDefault("SHEPHERD_AUDIT_DB_URI", ""),
		Debug:            env.GetEnvAsBoolOrDefault("DEBUG", "false"),
	}
}
