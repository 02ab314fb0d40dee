// Package monitortest provides an in-memory implementation of the monitor
// and report storage ports for tests.
package monitortest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sodav-monitor/sodav/pkg/monitor"
	"github.com/sodav-monitor/sodav/pkg/report"
	"github.com/sodav-monitor/sodav/pkg/storage"
)

// Store is a map-backed ChannelStore, SongStore, DetectionStore and
// report.Source. Setting Err makes every call fail with it.
type Store struct {
	mu         sync.Mutex
	seq        int
	channels   map[string]*monitor.Channel
	songs      map[string]*monitor.Song
	detections map[string]*monitor.Detection
	Err        error
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		channels:   map[string]*monitor.Channel{},
		songs:      map[string]*monitor.Song{},
		detections: map[string]*monitor.Detection{},
	}
}

func (s *Store) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *Store) CreateChannel(_ context.Context, ch *monitor.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if ch.ID == "" {
		ch.ID = s.nextID("ch")
	}
	copied := *ch
	s.channels[ch.ID] = &copied
	return nil
}

func (s *Store) GetChannel(_ context.Context, id string) (*monitor.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	ch, ok := s.channels[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *ch
	return &copied, nil
}

func (s *Store) ListChannels(_ context.Context, activeOnly bool) ([]*monitor.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []*monitor.Channel
	for _, ch := range s.channels {
		if activeOnly && !ch.Active {
			continue
		}
		copied := *ch
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) UpdateChannel(_ context.Context, ch *monitor.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.channels[ch.ID]; !ok {
		return storage.ErrNotFound
	}
	copied := *ch
	s.channels[ch.ID] = &copied
	return nil
}

func (s *Store) DeleteChannel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.channels[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.channels, id)
	for did, d := range s.detections {
		if d.ChannelID == id {
			delete(s.detections, did)
		}
	}
	return nil
}

func (s *Store) CreateSong(_ context.Context, song *monitor.Song) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if song.ISRC != "" {
		for _, existing := range s.songs {
			if existing.ISRC == song.ISRC {
				return fmt.Errorf("create song: %w", storage.ErrConflict)
			}
		}
	}
	if song.ID == "" {
		song.ID = s.nextID("song")
	}
	copied := *song
	s.songs[song.ID] = &copied
	return nil
}

func (s *Store) GetSong(_ context.Context, id string) (*monitor.Song, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	song, ok := s.songs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *song
	return &copied, nil
}

func (s *Store) GetSongByISRC(_ context.Context, code string) (*monitor.Song, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, song := range s.songs {
		if song.ISRC == code {
			copied := *song
			return &copied, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) ListSongs(_ context.Context, filter monitor.SongFilter) ([]*monitor.Song, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	query := strings.ToLower(filter.Query)
	var out []*monitor.Song
	for _, song := range s.songs {
		if query != "" && !strings.Contains(strings.ToLower(song.Title+" "+song.Artist), query) {
			continue
		}
		copied := *song
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return page(out, filter.Limit, filter.Offset), nil
}

func (s *Store) CreateDetection(_ context.Context, d *monitor.Detection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.channels[d.ChannelID]; !ok {
		return storage.ErrNotFound
	}
	if d.ID == "" {
		d.ID = s.nextID("det")
	}
	copied := *d
	s.detections[d.ID] = &copied
	return nil
}

func (s *Store) GetDetection(_ context.Context, id string) (*monitor.Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	d, ok := s.detections[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *d
	return &copied, nil
}

func (s *Store) ListDetections(_ context.Context, filter monitor.DetectionFilter) ([]*monitor.Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := s.filterDetections(filter.From, filter.To, filter.ChannelID)
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.After(out[j].DetectedAt) })
	return page(out, filter.Limit, filter.Offset), nil
}

func (s *Store) CorrectDetection(_ context.Context, id, songID, code, by string, at time.Time) (*monitor.Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	d, ok := s.detections[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	d.SongID, d.ISRC, d.CorrectedBy = songID, code, by
	d.CorrectedAt = &at
	copied := *d
	return &copied, nil
}

func (s *Store) ExtendDetection(_ context.Context, id string, playSeconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	d, ok := s.detections[id]
	if !ok {
		return storage.ErrNotFound
	}
	d.PlayDurationSeconds += playSeconds
	return nil
}

// AirplayRows implements report.Source, oldest first.
func (s *Store) AirplayRows(_ context.Context, from, to time.Time, channelID string) ([]report.AirplayRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	detections := s.filterDetections(from, to, channelID)
	sort.Slice(detections, func(i, j int) bool { return detections[i].DetectedAt.Before(detections[j].DetectedAt) })

	rows := make([]report.AirplayRow, 0, len(detections))
	for _, d := range detections {
		row := report.AirplayRow{
			DetectedAt:          d.DetectedAt,
			ISRC:                d.ISRC,
			PlayDurationSeconds: d.PlayDurationSeconds,
		}
		if ch, ok := s.channels[d.ChannelID]; ok {
			row.Channel = ch.Name
		}
		if song, ok := s.songs[d.SongID]; ok {
			row.Title, row.Artist = song.Title, song.Artist
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Detections returns a snapshot of every stored detection.
func (s *Store) Detections() []*monitor.Detection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterDetections(time.Time{}, time.Time{}, "")
}

// RemoveDetection deletes a detection behind the service's back.
func (s *Store) RemoveDetection(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.detections, id)
}

func (s *Store) filterDetections(from, to time.Time, channelID string) []*monitor.Detection {
	var out []*monitor.Detection
	for _, d := range s.detections {
		if channelID != "" && d.ChannelID != channelID {
			continue
		}
		if !from.IsZero() && d.DetectedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !d.DetectedAt.Before(to) {
			continue
		}
		copied := *d
		out = append(out, &copied)
	}
	return out
}

func page[T any](items []T, limit, offset int) []T {
	limit = monitor.PageSize(limit)
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}
