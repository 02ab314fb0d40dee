package api

import (
	"net/http"

	"github.com/sodav-monitor/sodav/pkg/httputil"
	"github.com/sodav-monitor/sodav/pkg/monitor"
)

// ingestDetection handles POST /api/ingest/detections. Provider payloads are
// forwarded verbatim by agents, so unknown fields are accepted. A new
// detection is answered with 201, a merged repeat with 200.
func (s *Server) ingestDetection(w http.ResponseWriter, r *http.Request) {
	var req monitor.RecordRequest
	if !httputil.ParseJSONLenientOrError(w, r, &req) {
		return
	}
	res, err := s.deps.Monitor.RecordFromProvider(r.Context(), req)
	if err != nil {
		writeError(w, r, err, "channel not found")
		return
	}
	writeRecordResult(w, res)
}

// ingestIdentify handles POST /api/ingest/identify
func (s *Server) ingestIdentify(w http.ResponseWriter, r *http.Request) {
	var req monitor.IdentifyRequest
	if !httputil.ParseJSONLenientOrError(w, r, &req) {
		return
	}
	res, err := s.deps.Monitor.Identify(r.Context(), req)
	if err != nil {
		writeError(w, r, err, "channel not found")
		return
	}
	writeRecordResult(w, res)
}

func writeRecordResult(w http.ResponseWriter, res *monitor.RecordResult) {
	if res.Merged {
		_ = httputil.WriteSuccess(w, res)
		return
	}
	_ = httputil.WriteCreated(w, res)
}
