package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/sodav-monitor/sodav/pkg/auth"
	"github.com/sodav-monitor/sodav/pkg/httputil"
	"github.com/sodav-monitor/sodav/pkg/middleware"
	"github.com/sodav-monitor/sodav/pkg/monitor"
)

type meResponse struct {
	Profile *auth.Profile `json:"profile"`
	Role    auth.Role     `json:"role"`
	Method  auth.Method   `json:"method"`
}

// me handles GET /api/me
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFrom(r.Context())
	_ = httputil.WriteSuccess(w, meResponse{Profile: p.Profile, Role: p.Role(), Method: p.Method})
}

// listChannels handles GET /api/channels. active=true hides inactive channels.
func (s *Server) listChannels(w http.ResponseWriter, r *http.Request) {
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))
	channels, err := s.deps.Channels.ListChannels(r.Context(), activeOnly)
	if err != nil {
		writeError(w, r, err, "channel not found")
		return
	}
	if channels == nil {
		channels = []*monitor.Channel{}
	}
	_ = httputil.WriteSuccess(w, channels)
}

// getChannel handles GET /api/channels/{id}
func (s *Server) getChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	ch, err := s.deps.Channels.GetChannel(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "channel not found")
		return
	}
	_ = httputil.WriteSuccess(w, ch)
}

// createChannel handles POST /api/channels
func (s *Server) createChannel(w http.ResponseWriter, r *http.Request) {
	var ch monitor.Channel
	if !httputil.ParseJSONOrError(w, r, &ch) {
		return
	}
	ch.ID = ""
	if err := s.deps.Monitor.CreateChannel(r.Context(), &ch); err != nil {
		writeError(w, r, err, "channel not found")
		return
	}
	_ = httputil.WriteCreated(w, &ch)
}

// updateChannel handles PUT /api/channels/{id}
func (s *Server) updateChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var ch monitor.Channel
	if !httputil.ParseJSONOrError(w, r, &ch) {
		return
	}
	ch.ID = id
	if err := s.deps.Monitor.UpdateChannel(r.Context(), &ch); err != nil {
		writeError(w, r, err, "channel not found")
		return
	}
	_ = httputil.WriteSuccess(w, &ch)
}

// deleteChannel handles DELETE /api/channels/{id}
func (s *Server) deleteChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	if err := s.deps.Monitor.DeleteChannel(r.Context(), id); err != nil {
		writeError(w, r, err, "channel not found")
		return
	}
	httputil.WriteNoContent(w)
}

// listSongs handles GET /api/songs?q=&limit=&offset=
func (s *Server) listSongs(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := parsePage(w, r)
	if !ok {
		return
	}
	filter := monitor.SongFilter{
		Query:  httputil.ParseQueryString(r, "q", ""),
		Limit:  monitor.PageSize(limit),
		Offset: offset,
	}
	songs, err := s.deps.Songs.ListSongs(r.Context(), filter)
	if err != nil {
		writeError(w, r, err, "song not found")
		return
	}
	views := make([]monitor.SongView, len(songs))
	for i, song := range songs {
		views[i] = song.View()
	}
	_ = httputil.WriteSuccess(w, newList(views, filter.Limit, filter.Offset))
}

// getSong handles GET /api/songs/{id}
func (s *Server) getSong(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	song, err := s.deps.Songs.GetSong(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "song not found")
		return
	}
	_ = httputil.WriteSuccess(w, song.View())
}

// createSong handles POST /api/songs
func (s *Server) createSong(w http.ResponseWriter, r *http.Request) {
	var song monitor.Song
	if !httputil.ParseJSONOrError(w, r, &song) {
		return
	}
	song.ID = ""
	if err := s.deps.Monitor.CreateSong(r.Context(), &song); err != nil {
		writeError(w, r, err, "song not found")
		return
	}
	_ = httputil.WriteCreated(w, song.View())
}

// listDetections handles GET /api/detections?channel_id=&from=&to=
func (s *Server) listDetections(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := parsePage(w, r)
	if !ok {
		return
	}
	from, err := httputil.ParseQueryTime(r, "from", time.Time{})
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	to, err := httputil.ParseQueryTime(r, "to", time.Time{})
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		httputil.WriteBadRequest(w, "to must be after from")
		return
	}

	filter := monitor.DetectionFilter{
		ChannelID: httputil.ParseQueryString(r, "channel_id", ""),
		From:      from,
		To:        to,
		Limit:     monitor.PageSize(limit),
		Offset:    offset,
	}
	detections, err := s.deps.Detections.ListDetections(r.Context(), filter)
	if err != nil {
		writeError(w, r, err, "detection not found")
		return
	}
	_ = httputil.WriteSuccess(w, newList(detections, filter.Limit, filter.Offset))
}

type correctRequest struct {
	SongID string `json:"song_id"`
}

// correctDetection handles PATCH /api/detections/{id}
func (s *Server) correctDetection(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req correctRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	by := middleware.PrincipalFrom(r.Context()).UserID()
	d, err := s.deps.Monitor.Correct(r.Context(), id, req.SongID, by)
	if err != nil {
		writeError(w, r, err, "detection not found")
		return
	}
	_ = httputil.WriteSuccess(w, d)
}
