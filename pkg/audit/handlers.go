package audit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sodav-monitor/sodav/pkg/auth"
	"github.com/sodav-monitor/sodav/pkg/httputil"
	"github.com/sodav-monitor/sodav/pkg/observability"
)

// Searcher queries stored records.
type Searcher interface {
	Search(ctx context.Context, filter Filter) ([]*Record, error)
}

// Handlers serves the audit trail over HTTP. Callers gate the routes to
// administrators.
type Handlers struct {
	store Searcher
}

// NewHandlers creates audit handlers.
func NewHandlers(store Searcher) *Handlers {
	return &Handlers{store: store}
}

// List handles GET /api/audit.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}
	records, err := h.store.Search(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return
	}
	if records == nil {
		records = []*Record{}
	}
	_ = httputil.WriteSuccess(w, map[string]interface{}{
		"events": records,
		"count":  len(records),
		"limit":  pageSize(filter.Limit),
		"offset": filter.Offset,
	})
}

// Export handles GET /api/audit/export?format=csv|json|ndjson.
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}
	format := ExportFormat(httputil.ParseQueryString(r, "format", string(FormatJSON)))
	switch format {
	case FormatJSON, FormatCSV, FormatNDJSON:
	default:
		httputil.WriteBadRequest(w, fmt.Sprintf("unsupported export format %q", format))
		return
	}

	records, err := h.store.Search(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return
	}

	contentType, ext := ContentType(format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=audit-logs."+ext)
	if err := Export(w, records, format); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("audit export interrupted")
	}
}

func parseFilter(w http.ResponseWriter, r *http.Request) (Filter, bool) {
	var (
		filter Filter
		err    error
	)
	if filter.From, err = httputil.ParseQueryTime(r, "from", time.Time{}); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return filter, false
	}
	if filter.To, err = httputil.ParseQueryTime(r, "to", time.Time{}); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return filter, false
	}
	if filter.Limit, err = httputil.ParseQueryInt(r, "limit", defaultLimit); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return filter, false
	}
	if filter.Offset, err = httputil.ParseQueryInt(r, "offset", 0); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return filter, false
	}
	filter.UserID = httputil.ParseQueryString(r, "user_id", "")
	filter.Method = auth.Method(httputil.ParseQueryString(r, "method", ""))
	filter.FailuresOnly = httputil.ParseQueryString(r, "failures", "") == "true"
	return filter, true
}
