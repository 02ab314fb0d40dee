package monitor

import "github.com/sodav-monitor/sodav/pkg/auth"

// Classified errors. They carry auth kinds so handlers render them with the
// same mapping as access-control failures.
var (
	ErrInvalidISRC    = auth.Validation("invalid ISRC", nil)
	ErrNoISRC         = auth.Validation("provider response carries no ISRC", nil)
	ErrLowConfidence  = auth.Validation("match confidence below threshold", nil)
	ErrInvalidChannel = auth.Validation("invalid channel", nil)
	ErrInvalidSong    = auth.Validation("invalid song", nil)
	ErrUnknownSong    = auth.Validation("unknown song", nil)
	ErrInvalidRequest = auth.Validation("invalid detection request", nil)
	ErrNoProvider     = auth.Validation("no identification provider for request", nil)
)
