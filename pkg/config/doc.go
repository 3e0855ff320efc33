// Package config loads and validates the authapi server configuration.
//
// # Sources
//
// Values are resolved from, lowest precedence first:
//
//  1. built-in defaults (Default)
//  2. the YAML file named by AUTHAPI_CONFIG_FILE
//  3. AUTHAPI_* environment variables
//
// A YAML file only needs the keys it overrides:
//
//	server:
//	  port: "8080"
//	  health_port: "9090"
//	storage:
//	  type: postgres
//	  postgres_url: postgres://authapi@db/authapi?sslmode=disable
//	cache:
//	  ttl: 30s
//	  redis_url: redis://cache:6379/0
//	observability:
//	  log_level: debug
//	  otel:
//	    enabled: true
//	    endpoint: otel-collector:4317
//
// # Environment Variables
//
// Server:
//
//	AUTHAPI_HOST="0.0.0.0"
//	AUTHAPI_PORT="8080"
//	AUTHAPI_HEALTH_PORT="9090"
//	AUTHAPI_READ_TIMEOUT="15s"
//	AUTHAPI_SHUTDOWN_TIMEOUT="30s"
//
// Storage:
//
//	AUTHAPI_STORAGE_TYPE="postgres"  # memory, postgres, sqlite
//	AUTHAPI_POSTGRES_URL="postgres://localhost/authapi"
//	AUTHAPI_POSTGRES_REPLICA_URLS="postgres://r1/authapi,postgres://r2/authapi"
//	AUTHAPI_POSTGRES_MAX_CONNS="20"
//	AUTHAPI_SQLITE_PATH="file:authapi.db?_foreign_keys=on"
//	AUTHAPI_AUTO_MIGRATE="true"
//
// Permission cache:
//
//	AUTHAPI_CACHE_SIZE="10000"
//	AUTHAPI_CACHE_TTL="1m"
//	AUTHAPI_REDIS_URL="redis://localhost:6379/0"
//
// Observability, audit and jobs:
//
//	AUTHAPI_LOG_LEVEL="info"  # debug, info, warn, error
//	AUTHAPI_METRICS_ENABLED="true"
//	AUTHAPI_OTEL_ENABLED="true"
//	AUTHAPI_OTEL_ENDPOINT="otel-collector:4317"
//	AUTHAPI_OTEL_SAMPLE_RATIO="0.1"
//	AUTHAPI_AUDIT_ENABLED="true"
//	AUTHAPI_AUDIT_PATH="/var/log/authapi/audit.jsonl"
//	AUTHAPI_GAUGE_SCHEDULE="@every 1m"
package config
