package audit

import (
	"time"

	"github.com/sodav-monitor/sodav/pkg/auth"
)

// Record is one stored authentication attempt.
type Record struct {
	ID         string      `json:"id"`
	OccurredAt time.Time   `json:"occurred_at"`
	Method     auth.Method `json:"method"`
	Success    bool        `json:"success"`
	Kind       string      `json:"kind,omitempty"`
	UserID     string      `json:"user_id,omitempty"`
	KeyID      string      `json:"key_id,omitempty"`
	Reason     string      `json:"reason,omitempty"`
	RequestID  string      `json:"request_id,omitempty"`
	ClientIP   string      `json:"client_ip,omitempty"`
}

// Filter narrows Search. Zero values match everything.
type Filter struct {
	From         time.Time
	To           time.Time
	UserID       string
	Method       auth.Method
	FailuresOnly bool
	Limit        int
	Offset       int
}

// ExportFormat selects the Export encoding.
type ExportFormat string

const (
	FormatJSON   ExportFormat = "json"
	FormatCSV    ExportFormat = "csv"
	FormatNDJSON ExportFormat = "ndjson"
)

// DefaultRetention is how long records are kept by Cleanup when no
// retention is configured.
const DefaultRetention = 90 * 24 * time.Hour

const (
	defaultLimit = 100
	maxLimit     = 1000
)
