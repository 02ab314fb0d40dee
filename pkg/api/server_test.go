package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sodav-monitor/sodav/pkg/auth"
	"github.com/sodav-monitor/sodav/pkg/auth/authtest"
	"github.com/sodav-monitor/sodav/pkg/fingerprint"
	"github.com/sodav-monitor/sodav/pkg/httputil"
	"github.com/sodav-monitor/sodav/pkg/isrc"
	"github.com/sodav-monitor/sodav/pkg/middleware"
	"github.com/sodav-monitor/sodav/pkg/monitor"
	"github.com/sodav-monitor/sodav/pkg/monitor/monitortest"
	"github.com/sodav-monitor/sodav/pkg/observability"
	"github.com/sodav-monitor/sodav/pkg/report"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type testEnv struct {
	srv      *Server
	store    *monitortest.Store
	keys     *authtest.Keys
	agentKey string
	readKey  string
}

type envOption func(*Deps, *[]monitor.Option)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	verifier := authtest.NewVerifier().
		Add("admin-token", "u-admin").
		Add("manager-token", "u-manager").
		Add("operator-token", "u-operator").
		Add("listener-token", "u-listener")
	profiles := authtest.NewProfiles(
		&auth.Profile{ID: "u-admin", Email: "admin@sodav.sn", Role: auth.RoleAdmin, IsActive: true},
		&auth.Profile{ID: "u-manager", Email: "manager@sodav.sn", Role: auth.RoleManager, IsActive: true},
		&auth.Profile{ID: "u-operator", Email: "operator@sodav.sn", Role: auth.RoleOperator, IsActive: true},
		&auth.Profile{ID: "u-listener", Email: "listener@sodav.sn", Role: auth.RoleListener, IsActive: true},
	)
	keys := authtest.NewKeys()
	env := &testEnv{store: monitortest.NewStore(), keys: keys}
	env.agentKey = keys.Issue(&auth.APIKey{ID: "key-agent", Name: "agent", OwnerUserID: "u-admin", Permissions: []auth.Permission{auth.PermissionDetectionsWrite}, Active: true})
	env.readKey = keys.Issue(&auth.APIKey{ID: "key-read", Name: "reader", OwnerUserID: "u-admin", Permissions: []auth.Permission{auth.PermissionSongsRead}, Active: true})

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	require.NoError(t, env.store.CreateChannel(context.Background(), &monitor.Channel{ID: "c-rfm", Name: "RFM", Kind: monitor.ChannelRadio, StreamURL: "http://rfm.sn/live", Active: true}))

	deps := Deps{
		Authenticator: auth.NewAuthenticator(verifier, profiles, keys, auth.WithLogger(logger)),
		Channels:      env.store,
		Songs:         env.store,
		Detections:    env.store,
		Keys:          auth.NewKeyManager(keys),
		Reports:       report.NewGenerator(env.store),
		Logger:        logger,
		Now:           func() time.Time { return testNow },
	}
	monitorOpts := []monitor.Option{monitor.WithClock(func() time.Time { return testNow }), monitor.WithLogger(logger)}
	for _, opt := range opts {
		opt(&deps, &monitorOpts)
	}
	deps.Monitor = monitor.NewService(env.store, env.store, env.store, monitor.DefaultConfig(), monitorOpts...)

	env.srv = NewServer(deps)
	return env
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func apiKey(raw string) http.Header {
	h := http.Header{}
	h.Set(middleware.APIKeyHeader, raw)
	return h
}

func (e *testEnv) do(t *testing.T, method, path string, header http.Header, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[httputil.ErrorResponse](t, rec).Error
}

func TestMe(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/me", bearer("unknown"), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/me", bearer("manager-token"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[meResponse](t, rec)
	assert.Equal(t, "u-manager", me.Profile.ID)
	assert.Equal(t, auth.RoleManager, me.Role)
	assert.Equal(t, auth.MethodBearer, me.Method)

	rec = env.do(t, http.MethodGet, "/api/me", apiKey(env.agentKey), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "API keys do not open user routes")
}

func TestChannels(t *testing.T) {
	env := newTestEnv(t)
	ch := monitor.Channel{Name: "RTS 1", Kind: monitor.ChannelTV, StreamURL: "http://rts.sn/live", Active: true}

	rec := env.do(t, http.MethodPost, "/api/channels", bearer("listener-token"), ch)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/channels", bearer("manager-token"), ch)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[monitor.Channel](t, rec)
	require.NotEmpty(t, created.ID)

	rec = env.do(t, http.MethodPost, "/api/channels", bearer("manager-token"), monitor.Channel{Name: "no kind"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/channels", bearer("listener-token"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]monitor.Channel](t, rec), 2)

	created.Active = false
	rec = env.do(t, http.MethodPut, "/api/channels/"+created.ID, bearer("manager-token"), created)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/channels?active=true", bearer("listener-token"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	active := decode[[]monitor.Channel](t, rec)
	require.Len(t, active, 1)
	assert.Equal(t, "c-rfm", active[0].ID)

	rec = env.do(t, http.MethodDelete, "/api/channels/"+created.ID, bearer("manager-token"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/channels/"+created.ID, bearer("admin-token"), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/channels/"+created.ID, bearer("listener-token"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "channel not found", errorMessage(t, rec))
}

func TestSongs(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/songs", bearer("manager-token"), monitor.Song{Title: "7 Seconds", Artist: "Youssou N'Dour", ISRC: "gb-aye-94-00001"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[map[string]any](t, rec)
	assert.Equal(t, "GBAYE9400001", created["isrc"])
	assert.Equal(t, "GB-AYE-94-00001", created["isrc_display"])
	assert.Equal(t, "GB", created["isrc_country"])
	assert.EqualValues(t, 1994, created["isrc_year"])

	rec = env.do(t, http.MethodPost, "/api/songs", bearer("manager-token"), monitor.Song{Title: "Dup", Artist: "Dup", ISRC: "GBAYE9400001"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/songs", bearer("manager-token"), monitor.Song{Title: "Bad", Artist: "Bad", ISRC: "ABC123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid ISRC", errorMessage(t, rec))

	rec = env.do(t, http.MethodPost, "/api/songs", bearer("operator-token"), monitor.Song{Title: "x", Artist: "y"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/songs/"+created["id"].(string), bearer("listener-token"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "GB-AYE-94-00001", decode[map[string]any](t, rec)["isrc_display"])

	rec = env.do(t, http.MethodGet, "/api/songs?q=youssou&limit=5", bearer("listener-token"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[listResponse[map[string]any]](t, rec)
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, 5, list.Limit)

	rec = env.do(t, http.MethodGet, "/api/songs?limit=abc", bearer("listener-token"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/songs/missing", bearer("listener-token"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIngestDetections(t *testing.T) {
	env := newTestEnv(t)
	body := monitor.RecordRequest{
		ChannelID:           "c-rfm",
		Source:              monitor.SourceManual,
		ISRC:                "FR-GFV-94-00246",
		Title:               "Yé ké yé ké",
		Artist:              "Mory Kanté",
		PlayDurationSeconds: 60,
	}

	tests := []struct {
		name   string
		header http.Header
		want   int
	}{
		{"no credentials", nil, http.StatusUnauthorized},
		{"bearer token is not a key", bearer("admin-token"), http.StatusUnauthorized},
		{"unknown key", apiKey("sk_unknown"), http.StatusUnauthorized},
		{"key without detections:write", apiKey(env.readKey), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/ingest/detections", tt.header, body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	rec := env.do(t, http.MethodPost, "/api/ingest/detections", apiKey(env.agentKey), body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[monitor.RecordResult](t, rec)
	assert.False(t, first.Merged)
	assert.Equal(t, "FRGFV9400246", first.Detection.ISRC)
	assert.Equal(t, "FR-GFV-94-00246", first.Song.ISRCDisplay)

	rec = env.do(t, http.MethodPost, "/api/ingest/detections", apiKey(env.agentKey), body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	second := decode[monitor.RecordResult](t, rec)
	assert.True(t, second.Merged)
	assert.Equal(t, first.Detection.ID, second.Detection.ID)
	assert.Equal(t, 120, second.Detection.PlayDurationSeconds)

	bad := body
	bad.ISRC = "ABC123"
	rec = env.do(t, http.MethodPost, "/api/ingest/detections", apiKey(env.agentKey), bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid ISRC", errorMessage(t, rec))

	unknown := body
	unknown.ChannelID = "c-missing"
	rec = env.do(t, http.MethodPost, "/api/ingest/detections", apiKey(env.agentKey), unknown)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid channel", errorMessage(t, rec))

	assert.Len(t, env.store.Detections(), 1)
}

func TestIngestDetections_FullProviderResponses(t *testing.T) {
	tests := []struct {
		name   string
		body   json.RawMessage
		title  string
		artist string
	}{
		{
			name: "audd",
			body: json.RawMessage(`{
				"channel_id": "c-rfm",
				"source": "audd",
				"audd": {
					"status": "success",
					"result": {
						"artist": "Mory Kanté",
						"title": "Yé ké yé ké",
						"album": "Akwaba Beach",
						"release_date": "1987-06-01",
						"label": "Barclay",
						"timecode": "00:56",
						"song_link": "https://lis.tn/YeKeYeKe",
						"spotify": {
							"album": {"name": "Akwaba Beach", "album_type": "album"},
							"external_ids": {"isrc": "FRGFV9400246", "upc": "0042283342126"},
							"popularity": 41
						}
					}
				}
			}`),
			title:  "Yé ké yé ké",
			artist: "Mory Kanté",
		},
		{
			name: "acoustid",
			body: json.RawMessage(`{
				"channel_id": "c-rfm",
				"source": "acoustid",
				"acoustid": {
					"status": "ok",
					"results": [{
						"id": "9ff43b6a-4f16-427c-93c2-92307ca505e0",
						"score": 0.94,
						"recordings": [{
							"id": "cd2e7c47-16f5-46c6-a37c-a1eb7bf599ff",
							"title": "Yé ké yé ké",
							"duration": 241.6,
							"sources": 12,
							"releasegroups": [{"id": "a1", "title": "Akwaba Beach", "type": "Album"}],
							"artists": [{"id": "b2", "name": "Mory Kanté", "joinphrase": ""}],
							"isrcs": ["FRGFV9400246"]
						}]
					}]
				}
			}`),
			title:  "Yé ké yé ké",
			artist: "Mory Kanté",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			rec := env.do(t, http.MethodPost, "/api/ingest/detections", apiKey(env.agentKey), tt.body)
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

			res := decode[monitor.RecordResult](t, rec)
			assert.Equal(t, "FRGFV9400246", res.Detection.ISRC)
			assert.Equal(t, tt.title, res.Song.Title)
			assert.Equal(t, tt.artist, res.Song.Artist)
		})
	}
}

func TestCatalogueBodiesRejectUnknownFields(t *testing.T) {
	env := newTestEnv(t)

	body := json.RawMessage(`{"name":"Sud FM","kind":"radio","stream_url":"http://sudfm.sn/live","owner":"x"}`)
	rec := env.do(t, http.MethodPost, "/api/channels", bearer("admin-token"), body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "unknown field")
}

type stubAcoustID struct {
	resp *isrc.AcoustIDResponse
	err  error
}

func (s *stubAcoustID) Lookup(context.Context, string, int) (*isrc.AcoustIDResponse, error) {
	return s.resp, s.err
}

func withAcoustID(c monitor.AcoustIDLookup) envOption {
	return func(_ *Deps, opts *[]monitor.Option) {
		*opts = append(*opts, monitor.WithAcoustID(c))
	}
}

func TestIngestIdentify(t *testing.T) {
	t.Run("no provider configured", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(t, http.MethodPost, "/api/ingest/identify", apiKey(env.agentKey), monitor.IdentifyRequest{ChannelID: "c-rfm", Fingerprint: "AQAA", Duration: 30})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("provider unavailable", func(t *testing.T) {
		env := newTestEnv(t, withAcoustID(&stubAcoustID{err: fingerprint.ErrProviderUnavailable}))
		rec := env.do(t, http.MethodPost, "/api/ingest/identify", apiKey(env.agentKey), monitor.IdentifyRequest{ChannelID: "c-rfm", Fingerprint: "AQAA", Duration: 30})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("match recorded", func(t *testing.T) {
		resp := &isrc.AcoustIDResponse{Status: "ok", Results: []isrc.AcoustIDResult{{
			ID:    "a1",
			Score: 0.97,
			Recordings: []isrc.AcoustIDRecording{{
				ID:      "r1",
				Title:   "Birima",
				Artists: []isrc.AcoustIDArtist{{Name: "Youssou N'Dour"}},
				ISRCs:   []string{"gbaye0100123"},
			}},
		}}}
		env := newTestEnv(t, withAcoustID(&stubAcoustID{resp: resp}))
		rec := env.do(t, http.MethodPost, "/api/ingest/identify", apiKey(env.agentKey), monitor.IdentifyRequest{ChannelID: "c-rfm", Fingerprint: "AQAA", Duration: 30})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		res := decode[monitor.RecordResult](t, rec)
		assert.Equal(t, monitor.SourceAcoustID, res.Detection.Source)
		assert.Equal(t, "GBAYE0100123", res.Song.ISRC)
		assert.Equal(t, 2001, res.Song.ISRCYear)
	})
}

func TestDetections(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/ingest/detections", apiKey(env.agentKey), monitor.RecordRequest{
		ChannelID: "c-rfm", Source: monitor.SourceManual, ISRC: "FRGFV9400246", Title: "a", Artist: "b", PlayDurationSeconds: 30,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	detectionID := decode[monitor.RecordResult](t, rec).Detection.ID

	rec = env.do(t, http.MethodPost, "/api/songs", bearer("admin-token"), monitor.Song{Title: "Correct", Artist: "Song", ISRC: "SN1AB2312345"})
	require.Equal(t, http.StatusCreated, rec.Code)
	songID := decode[map[string]any](t, rec)["id"].(string)

	rec = env.do(t, http.MethodGet, "/api/detections?channel_id=c-rfm&from=2026-03-14", bearer("listener-token"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[listResponse[monitor.Detection]](t, rec).Count)

	rec = env.do(t, http.MethodGet, "/api/detections?from=yesterday", bearer("listener-token"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/detections?from=2026-03-15&to=2026-03-14", bearer("listener-token"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/detections/"+detectionID, bearer("listener-token"), correctRequest{SongID: songID})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/detections/"+detectionID, bearer("operator-token"), correctRequest{SongID: "missing"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/detections/missing", bearer("operator-token"), correctRequest{SongID: songID})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/detections/"+detectionID, bearer("operator-token"), correctRequest{SongID: songID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	corrected := decode[monitor.Detection](t, rec)
	assert.Equal(t, songID, corrected.SongID)
	assert.Equal(t, "SN1AB2312345", corrected.ISRC)
	assert.Equal(t, "u-operator", corrected.CorrectedBy)
}

func TestKeys(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/keys", bearer("manager-token"), auth.IssueRequest{Name: "x", Permissions: []auth.Permission{auth.PermissionDetectionsWrite}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/keys", bearer("admin-token"), auth.IssueRequest{Name: "x", Permissions: []auth.Permission{"songs:delete"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/keys", bearer("admin-token"), auth.IssueRequest{Name: "dakar-probe", Permissions: []auth.Permission{auth.PermissionDetectionsWrite}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	issued := decode[issueKeyResponse](t, rec)
	require.NotEmpty(t, issued.Key)
	assert.Equal(t, "u-admin", issued.APIKey.OwnerUserID)
	assert.NotContains(t, rec.Body.String(), "key_hash")

	ingest := monitor.RecordRequest{ChannelID: "c-rfm", Source: monitor.SourceManual, ISRC: "FRGFV9400246", Title: "a", Artist: "b"}
	rec = env.do(t, http.MethodPost, "/api/ingest/detections", apiKey(issued.Key), ingest)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/keys?owner_user_id=u-admin", bearer("admin-token"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]auth.APIKey](t, rec), 3)

	rec = env.do(t, http.MethodDelete, "/api/keys/"+issued.APIKey.ID, bearer("admin-token"), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/ingest/detections", apiKey(issued.Key), ingest)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/keys/missing", bearer("admin-token"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAirplayReport(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/ingest/detections", apiKey(env.agentKey), monitor.RecordRequest{
		ChannelID: "c-rfm", Source: monitor.SourceManual, ISRC: "FRGFV9400246", Title: "Yé ké yé ké", Artist: "Mory Kanté", PlayDurationSeconds: 241,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/reports/airplay.csv", bearer("operator-token"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/reports/airplay.csv", bearer("manager-token"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=airplay-2026-03-14.csv", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "1", rec.Header().Get("X-Report-Rows"))

	records, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, report.Header, records[0])
	assert.Equal(t, []string{"RFM", "2026-03-14T09:30:00Z", "Yé ké yé ké", "Mory Kanté", "FR-GFV-94-00246", "241"}, records[1])

	rec = env.do(t, http.MethodGet, "/api/reports/airplay.csv?from=2026-03-13", bearer("manager-token"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-Report-Rows"))

	rec = env.do(t, http.MethodGet, "/api/reports/airplay.csv?from=2026-03-14&to=2026-03-14", bearer("manager-token"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	limiter := middleware.NewRateLimiter(&middleware.RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Hour})
	env := newTestEnv(t, func(d *Deps, _ *[]monitor.Option) {
		d.RateLimit = middleware.NewRateLimitMiddleware(nil, limiter, nil, nil)
	})

	rec := env.do(t, http.MethodGet, "/api/me", bearer("listener-token"), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/me", bearer("listener-token"), nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = env.do(t, http.MethodGet, "/api/me", bearer("manager-token"), nil)
	assert.Equal(t, http.StatusOK, rec.Code, "quotas are per user")

	rec = env.do(t, http.MethodPost, "/api/ingest/detections", apiKey(env.agentKey), monitor.RecordRequest{
		ChannelID: "c-rfm", Source: monitor.SourceManual, ISRC: "FRGFV9400246", Title: "a", Artist: "b",
	})
	assert.Equal(t, http.StatusCreated, rec.Code, "key class is unlimited here")
}

func TestServerPlumbing(t *testing.T) {
	env := newTestEnv(t, func(d *Deps, _ *[]monitor.Option) {
		d.AllowedOrigins = []string{"https://monitor.sodav.sn"}
	})

	rec := env.do(t, http.MethodGet, "/api/unknown", bearer("admin-token"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(httputil.RequestIDHeader))

	req := httptest.NewRequest(http.MethodOptions, "/api/channels", nil)
	req.Header.Set("Origin", "https://monitor.sodav.sn")
	preflight := httptest.NewRecorder()
	env.srv.ServeHTTP(preflight, req)
	assert.Equal(t, http.StatusNoContent, preflight.Code)
	assert.Equal(t, "https://monitor.sodav.sn", preflight.Header().Get("Access-Control-Allow-Origin"))

	rec = env.do(t, http.MethodPost, "/api/channels", bearer("admin-token"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/audit", bearer("admin-token"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "audit routes are off without a store")
}
