package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sodav-monitor/sodav/pkg/auth"
	"github.com/sodav-monitor/sodav/pkg/httputil"
	"github.com/sodav-monitor/sodav/pkg/middleware"
	"github.com/sodav-monitor/sodav/pkg/report"
)

// listKeys handles GET /api/keys?owner_user_id=
func (s *Server) listKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.deps.Keys.List(r.Context(), httputil.ParseQueryString(r, "owner_user_id", ""))
	if err != nil {
		writeError(w, r, err, "key not found")
		return
	}
	if keys == nil {
		keys = []*auth.APIKey{}
	}
	_ = httputil.WriteSuccess(w, keys)
}

type issueKeyResponse struct {
	Key    string       `json:"key"`
	APIKey *auth.APIKey `json:"api_key"`
}

// issueKey handles POST /api/keys. The raw key appears only in this response.
func (s *Server) issueKey(w http.ResponseWriter, r *http.Request) {
	var req auth.IssueRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.OwnerUserID == "" {
		req.OwnerUserID = middleware.PrincipalFrom(r.Context()).UserID()
	}
	raw, key, err := s.deps.Keys.Issue(r.Context(), req)
	if err != nil {
		writeError(w, r, err, "key not found")
		return
	}
	_ = httputil.WriteCreated(w, issueKeyResponse{Key: raw, APIKey: key})
}

// disableKey handles DELETE /api/keys/{id}
func (s *Server) disableKey(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	if err := s.deps.Keys.Disable(r.Context(), id); err != nil {
		writeError(w, r, err, "key not found")
		return
	}
	httputil.WriteNoContent(w)
}

// airplayReport handles GET /api/reports/airplay.csv?from=&to=&channel_id=.
// Without from the current UTC day is reported; without to the range spans
// one day from from.
func (s *Server) airplayReport(w http.ResponseWriter, r *http.Request) {
	defaultFrom, _ := report.DayRange(s.deps.Now())
	from, err := httputil.ParseQueryTime(r, "from", defaultFrom)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	to, err := httputil.ParseQueryTime(r, "to", from.Add(24*time.Hour))
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if !to.After(from) {
		httputil.WriteBadRequest(w, "to must be after from")
		return
	}

	var buf bytes.Buffer
	rows, err := s.deps.Reports.AirplayCSV(r.Context(), &buf, from, to, httputil.ParseQueryString(r, "channel_id", ""))
	if err != nil {
		writeError(w, r, err, "channel not found")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=airplay-%s.csv", from.UTC().Format(time.DateOnly)))
	w.Header().Set("X-Report-Rows", strconv.Itoa(rows))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
