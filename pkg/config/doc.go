// Package config loads the service configuration.
//
// Values come from defaults, then an optional YAML file named by
// SODAV_CONFIG_FILE, then SODAV_* environment variables:
//
//	SODAV_PORT="8080"
//	SODAV_HEALTH_PORT="9090"
//	SODAV_POSTGRES_URL="postgres://sodav@db/sodav?sslmode=disable"
//	SODAV_REDIS_URL="redis://redis:6379/0"
//	SODAV_S3_BUCKET="sodav-reports"
//	SODAV_IDENTITY_MODE="jwks"          # jwks or gotrue
//	SODAV_IDENTITY_JWKS_URL="https://project.supabase.co/auth/v1/.well-known/jwks.json"
//	SODAV_ACOUSTID_KEY="..."
//	SODAV_AUDD_TOKEN="..."
//	SODAV_DEDUP_WINDOW="5m"
//	SODAV_LOG_LEVEL="info"              # debug, info, warn, error
//	SODAV_OTEL_ENABLED="true"
//
// The same settings in YAML:
//
//	server:
//	  port: "8080"
//	storage:
//	  postgres_url: postgres://sodav@db/sodav
//	monitor:
//	  dedup_window: 5m
//	observability:
//	  log_level: debug
//
// Watch follows the file and applies log level changes without a restart.
package config
