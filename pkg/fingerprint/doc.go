// Package fingerprint calls the external identification providers, AcoustID
// and AudD. Each client sits behind its own circuit breaker; while a breaker
// is open calls fail fast with ErrProviderUnavailable.
package fingerprint
