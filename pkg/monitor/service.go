package monitor

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sodav-monitor/sodav/pkg/events"
	"github.com/sodav-monitor/sodav/pkg/isrc"
	"github.com/sodav-monitor/sodav/pkg/observability"
	"github.com/sodav-monitor/sodav/pkg/storage"
)

// Publisher receives domain events.
type Publisher interface {
	Publish(ctx context.Context, e events.Event) error
}

// AcoustIDLookup resolves a Chromaprint fingerprint.
type AcoustIDLookup interface {
	Lookup(ctx context.Context, fingerprint string, duration int) (*isrc.AcoustIDResponse, error)
}

// AudDRecognizer identifies audio by URL.
type AudDRecognizer interface {
	Recognize(ctx context.Context, audioURL string) (*isrc.AudDResponse, error)
}

// Config tunes the detection service.
type Config struct {
	// DedupWindow merges repeat identifications of the same ISRC on the
	// same channel into one detection.
	DedupWindow time.Duration `yaml:"dedup_window"`
	DedupSize   int           `yaml:"dedup_size"`

	// MinConfidence rejects provider matches scored below it. Zero scores
	// mean the provider gave none and are accepted.
	MinConfidence float64 `yaml:"min_confidence"`
}

// DefaultConfig merges repeats within 5 minutes and rejects matches scored
// below 0.5.
func DefaultConfig() Config {
	return Config{
		DedupWindow:   5 * time.Minute,
		DedupSize:     4096,
		MinConfidence: 0.5,
	}
}

// Service records detections and maintains the catalogue.
type Service struct {
	channels   ChannelStore
	songs      SongStore
	detections DetectionStore
	publisher  Publisher
	acoustid   AcoustIDLookup
	audd       AudDRecognizer

	cfg    Config
	recent *lru.LRU[string, string]
	locks  [64]sync.Mutex

	metrics *observability.Metrics
	logger  *observability.Logger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithAcoustID enables fingerprint identification.
func WithAcoustID(c AcoustIDLookup) Option { return func(s *Service) { s.acoustid = c } }

// WithAudD enables URL identification.
func WithAudD(c AudDRecognizer) Option { return func(s *Service) { s.audd = c } }

// WithPublisher sends domain events to p.
func WithPublisher(p Publisher) Option { return func(s *Service) { s.publisher = p } }

// WithMetrics counts detections by source and outcome.
func WithMetrics(m *observability.Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithLogger sets the service logger.
func WithLogger(l *observability.Logger) Option { return func(s *Service) { s.logger = l } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates a detection service.
func NewService(channels ChannelStore, songs SongStore, detections DetectionStore, cfg Config, opts ...Option) *Service {
	defaults := DefaultConfig()
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = defaults.DedupWindow
	}
	if cfg.DedupSize <= 0 {
		cfg.DedupSize = defaults.DedupSize
	}
	s := &Service{
		channels:   channels,
		songs:      songs,
		detections: detections,
		cfg:        cfg,
		recent:     lru.NewLRU[string, string](cfg.DedupSize, nil, cfg.DedupWindow),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = observability.NewLogger(observability.InfoLevel, io.Discard)
	}
	return s
}

// RecordRequest is a provider result to record against a channel. Exactly
// one payload is read, chosen by Source: AcoustID, AudD, or ISRC for manual
// entries.
type RecordRequest struct {
	ChannelID           string                 `json:"channel_id"`
	Source              Source                 `json:"source"`
	Confidence          float64                `json:"confidence,omitempty"`
	DetectedAt          time.Time              `json:"detected_at,omitempty"`
	PlayDurationSeconds int                    `json:"play_duration_seconds,omitempty"`
	AcoustID            *isrc.AcoustIDResponse `json:"acoustid,omitempty"`
	AudD                *isrc.AudDResponse     `json:"audd,omitempty"`
	ISRC                string                 `json:"isrc,omitempty"`
	Title               string                 `json:"title,omitempty"`
	Artist              string                 `json:"artist,omitempty"`
}

// RecordResult is the outcome of recording a detection.
type RecordResult struct {
	Detection *Detection `json:"detection"`
	Song      SongView   `json:"song"`
	Merged    bool       `json:"merged"`
}

// DetectionEvent is the payload of detection events.
type DetectionEvent struct {
	Detection *Detection `json:"detection"`
	Song      SongView   `json:"song"`
}

// RecordFromProvider extracts and validates the ISRC from a provider payload,
// resolves or creates the song, and records the detection. A repeat of the
// same ISRC on the same channel inside the dedup window extends the earlier
// detection instead.
func (s *Service) RecordFromProvider(ctx context.Context, req RecordRequest) (res *RecordResult, err error) {
	defer func() { s.observe(req.Source, err, res) }()

	if req.ChannelID == "" || !req.Source.Valid() || req.PlayDurationSeconds < 0 {
		return nil, ErrInvalidRequest
	}
	if req.Confidence > 0 && req.Confidence < s.cfg.MinConfidence {
		return nil, fmt.Errorf("%w: %.2f", ErrLowConfidence, req.Confidence)
	}

	raw, meta, ok := extract(req)
	if !ok {
		return nil, ErrNoISRC
	}
	code := isrc.Normalize(raw)
	if !isrc.Validate(code) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidISRC, raw)
	}

	if _, err := s.channels.GetChannel(ctx, req.ChannelID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidChannel, req.ChannelID)
		}
		return nil, err
	}

	song, err := s.findOrCreateSong(ctx, code, meta)
	if err != nil {
		return nil, err
	}

	key := dedupKey(req.ChannelID, code)
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if id, ok := s.recent.Get(key); ok {
		err := s.detections.ExtendDetection(ctx, id, req.PlayDurationSeconds)
		switch {
		case err == nil:
			d, err := s.detections.GetDetection(ctx, id)
			if err != nil {
				return nil, err
			}
			return &RecordResult{Detection: d, Song: song.View(), Merged: true}, nil
		case errors.Is(err, storage.ErrNotFound):
			s.recent.Remove(key)
		default:
			return nil, err
		}
	}

	d := &Detection{
		ChannelID:           req.ChannelID,
		SongID:              song.ID,
		ISRC:                code,
		Source:              req.Source,
		Confidence:          req.Confidence,
		DetectedAt:          req.DetectedAt,
		PlayDurationSeconds: req.PlayDurationSeconds,
	}
	if d.DetectedAt.IsZero() {
		d.DetectedAt = s.now()
	}
	if err := s.detections.CreateDetection(ctx, d); err != nil {
		return nil, err
	}
	s.recent.Add(key, d.ID)

	view := song.View()
	s.publish(ctx, events.DetectionCreated, d.ChannelID, DetectionEvent{Detection: d, Song: view})
	return &RecordResult{Detection: d, Song: view}, nil
}

// IdentifyRequest asks the providers to identify an excerpt. Fingerprint
// goes to AcoustID, AudioURL to AudD; with both, AudD is the fallback when
// AcoustID finds no ISRC.
type IdentifyRequest struct {
	ChannelID           string    `json:"channel_id"`
	Fingerprint         string    `json:"fingerprint,omitempty"`
	Duration            int       `json:"duration,omitempty"`
	AudioURL            string    `json:"audio_url,omitempty"`
	DetectedAt          time.Time `json:"detected_at,omitempty"`
	PlayDurationSeconds int       `json:"play_duration_seconds,omitempty"`
}

// Identify calls the providers and records the result.
func (s *Service) Identify(ctx context.Context, req IdentifyRequest) (*RecordResult, error) {
	useAcoustID := req.Fingerprint != "" && s.acoustid != nil
	useAudD := req.AudioURL != "" && s.audd != nil
	if !useAcoustID && !useAudD {
		return nil, ErrNoProvider
	}

	base := RecordRequest{
		ChannelID:           req.ChannelID,
		DetectedAt:          req.DetectedAt,
		PlayDurationSeconds: req.PlayDurationSeconds,
	}
	if base.PlayDurationSeconds == 0 {
		base.PlayDurationSeconds = req.Duration
	}

	if useAcoustID {
		resp, err := s.acoustid.Lookup(ctx, req.Fingerprint, req.Duration)
		if err != nil && !useAudD {
			return nil, err
		}
		if err == nil {
			rec := base
			rec.Source = SourceAcoustID
			rec.AcoustID = resp
			rec.Confidence = bestScore(resp)
			res, err := s.RecordFromProvider(ctx, rec)
			if err == nil || !useAudD || !errors.Is(err, ErrNoISRC) {
				return res, err
			}
		} else {
			s.logger.WithError(err).Warn("AcoustID lookup failed, falling back to AudD")
		}
	}

	resp, err := s.audd.Recognize(ctx, req.AudioURL)
	if err != nil {
		return nil, err
	}
	rec := base
	rec.Source = SourceAudD
	rec.AudD = resp
	return s.RecordFromProvider(ctx, rec)
}

// Correct reassigns a detection to songID on behalf of user by.
func (s *Service) Correct(ctx context.Context, detectionID, songID, by string) (*Detection, error) {
	if songID == "" {
		return nil, fmt.Errorf("%w: song_id is required", ErrInvalidRequest)
	}
	song, err := s.songs.GetSong(ctx, songID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSong, songID)
		}
		return nil, err
	}
	before, err := s.detections.GetDetection(ctx, detectionID)
	if err != nil {
		return nil, err
	}

	d, err := s.detections.CorrectDetection(ctx, detectionID, song.ID, song.ISRC, by, s.now())
	if err != nil {
		return nil, err
	}
	if before.ISRC != "" {
		s.recent.Remove(dedupKey(before.ChannelID, before.ISRC))
	}

	s.logger.WithFields(map[string]interface{}{
		"detection_id": d.ID,
		"from_song":    before.SongID,
		"to_song":      song.ID,
		"corrected_by": by,
	}).Info("Detection corrected")
	s.publish(ctx, events.DetectionCorrected, d.ChannelID, DetectionEvent{Detection: d, Song: song.View()})
	return d, nil
}

// CreateSong validates and stores a song. The ISRC, when present, is stored
// in canonical form.
func (s *Service) CreateSong(ctx context.Context, song *Song) error {
	song.Title = strings.TrimSpace(song.Title)
	song.Artist = strings.TrimSpace(song.Artist)
	if song.Title == "" || song.Artist == "" || song.DurationSeconds < 0 {
		return fmt.Errorf("%w: title and artist are required", ErrInvalidSong)
	}
	if song.ISRC != "" {
		code := isrc.Normalize(song.ISRC)
		if !isrc.Validate(code) {
			return fmt.Errorf("%w: %q", ErrInvalidISRC, song.ISRC)
		}
		song.ISRC = code
	}
	if err := s.songs.CreateSong(ctx, song); err != nil {
		return err
	}
	s.publish(ctx, events.SongCreated, "", song.View())
	return nil
}

// CreateChannel validates and stores a channel.
func (s *Service) CreateChannel(ctx context.Context, ch *Channel) error {
	if err := validateChannel(ch); err != nil {
		return err
	}
	if err := s.channels.CreateChannel(ctx, ch); err != nil {
		return err
	}
	s.publish(ctx, events.ChannelUpdated, ch.ID, ch)
	return nil
}

// UpdateChannel validates and replaces a channel.
func (s *Service) UpdateChannel(ctx context.Context, ch *Channel) error {
	if err := validateChannel(ch); err != nil {
		return err
	}
	if err := s.channels.UpdateChannel(ctx, ch); err != nil {
		return err
	}
	s.publish(ctx, events.ChannelUpdated, ch.ID, ch)
	return nil
}

// DeleteChannel removes a channel and its detections.
func (s *Service) DeleteChannel(ctx context.Context, id string) error {
	if err := s.channels.DeleteChannel(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, events.ChannelUpdated, id, map[string]any{"id": id, "deleted": true})
	return nil
}

func validateChannel(ch *Channel) error {
	ch.Name = strings.TrimSpace(ch.Name)
	ch.StreamURL = strings.TrimSpace(ch.StreamURL)
	switch {
	case ch.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidChannel)
	case !ch.Kind.Valid():
		return fmt.Errorf("%w: kind must be radio or tv", ErrInvalidChannel)
	case ch.StreamURL == "":
		return fmt.Errorf("%w: stream_url is required", ErrInvalidChannel)
	}
	return nil
}

// findOrCreateSong resolves code, creating a catalogue entry from the
// provider metadata on first sight.
func (s *Service) findOrCreateSong(ctx context.Context, code string, meta songMeta) (*Song, error) {
	song, err := s.songs.GetSongByISRC(ctx, code)
	if err == nil {
		return song, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	song = &Song{
		Title:           orUnknown(meta.title),
		Artist:          orUnknown(meta.artist),
		Album:           meta.album,
		Label:           meta.label,
		ISRC:            code,
		DurationSeconds: meta.duration,
	}
	err = s.songs.CreateSong(ctx, song)
	if errors.Is(err, storage.ErrConflict) {
		// Created concurrently by another ingester.
		return s.songs.GetSongByISRC(ctx, code)
	}
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.SongCreated, "", song.View())
	return song, nil
}

func (s *Service) publish(ctx context.Context, t events.Type, channelID string, data any) {
	if s.publisher == nil {
		return
	}
	e, err := events.New(t, channelID, data)
	if err == nil {
		err = s.publisher.Publish(ctx, e)
	}
	if err != nil {
		s.logger.WithError(err).WithField("event", string(t)).Warn("Failed to publish event")
	}
}

func (s *Service) observe(source Source, err error, res *RecordResult) {
	if s.metrics == nil {
		return
	}
	result := "recorded"
	switch {
	case errors.Is(err, ErrNoISRC):
		result = "no_isrc"
	case errors.Is(err, ErrInvalidISRC):
		result = "invalid_isrc"
	case errors.Is(err, ErrLowConfidence):
		result = "low_confidence"
	case err != nil:
		result = "error"
	case res != nil && res.Merged:
		result = "merged"
	}
	s.metrics.ObserveDetection(string(source), result)
}

func (s *Service) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.locks[h.Sum32()%uint32(len(s.locks))]
}

func dedupKey(channelID, code string) string {
	return channelID + "|" + code
}

func orUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "Unknown"
	}
	return s
}
