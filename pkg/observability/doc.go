// Package observability holds the service's logging, metrics, tracing,
// health and shutdown plumbing.
//
// Logging is JSON via log/slog wrapped in a small Logger that carries
// fields. FromContext picks up the request ID, user ID and trace IDs:
//
//	observability.FromContext(ctx).WithField("channel_id", id).Info("detection recorded")
//
// Prometheus collectors live on Metrics and are registered against the
// registerer passed to NewMetrics. OTelMetrics records database, archive and
// cache instruments through the global meter provider set by InitOTel.
//
// HealthChecker runs named dependency checks; a failing critical dependency
// turns /health/ready into a 503. ShutdownManager stops the HTTP server and
// then runs registered cleanup steps under one deadline.
package observability
