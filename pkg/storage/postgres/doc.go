// Package postgres implements the SODAV stores on PostgreSQL, with Redis for
// the song cache and cross-replica event fan-out and S3 for archived reports.
//
// A single Store satisfies the profile, API key, channel, song and detection
// ports. Driver errors are classified onto the storage sentinels so callers
// can branch with errors.Is without importing lib/pq.
package postgres
