// Package audit keeps the authentication audit trail.
//
// DBRecorder implements auth.Recorder: every bearer and API-key attempt the
// Authenticator sees is written to the audit_logs table with the request ID
// and client address taken from the request context. Recording is
// best-effort; a failed insert is logged by the Authenticator and never
// fails the request.
//
//	recorder, err := audit.NewDBRecorder(store.DB())
//	authn := auth.NewAuthenticator(verifier, store, store, auth.WithRecorder(recorder))
//
// Handlers expose the trail to administrators as JSON, CSV or NDJSON:
//
//	GET /api/audit?from=2024-03-01&failures=true
//	GET /api/audit/export?format=csv
//
// Cleanup enforces retention (DefaultRetention, 90 days).
package audit
