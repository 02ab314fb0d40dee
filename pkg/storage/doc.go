// Package storage defines the persistence configuration and the sentinel errors
// shared by every SODAV Monitor backend.
//
// # Overview
//
// Domain packages (pkg/auth, pkg/monitor, pkg/audit) declare the narrow store
// interfaces they need. Implementations live in pkg/storage/postgres, which
// combines three backends:
//
//   - PostgreSQL (lib/pq): profiles, API keys, channels, songs, detections, audit logs
//   - Redis (go-redis): cross-replica event fan-out for the realtime relay
//   - S3-compatible object storage (aws-sdk-go-v2): archived airplay reports
//
// # Sentinel errors
//
// Stores translate driver-level failures into a small set of facts so callers can
// branch with errors.Is without knowing which backend answered:
//
//	profile, err := profiles.GetProfile(ctx, userID)
//	if errors.Is(err, storage.ErrNotFound) {
//		// the row does not exist
//	}
//	if errors.Is(err, storage.ErrUnavailable) {
//		// the backend could not be reached; distinct from "not found"
//	}
//
// # Configuration
//
//	cfg := storage.DefaultConfig()
//	cfg.PostgresURL = "postgres://sodav@localhost/sodav?sslmode=disable"
//	cfg.RedisURL = "redis://localhost:6379/0"
//	cfg.S3Bucket = "sodav-reports"
//
// # Related Packages
//
//   - pkg/storage/postgres: backend implementations
//   - pkg/config: loads Config from the environment
package storage
