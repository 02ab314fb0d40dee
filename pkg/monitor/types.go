package monitor

import (
	"time"

	"github.com/sodav-monitor/sodav/pkg/isrc"
)

// ChannelKind distinguishes broadcast media.
type ChannelKind string

const (
	ChannelRadio ChannelKind = "radio"
	ChannelTV    ChannelKind = "tv"
)

// Valid reports whether k is a known kind.
func (k ChannelKind) Valid() bool {
	return k == ChannelRadio || k == ChannelTV
}

// Channel is a monitored radio or TV stream.
type Channel struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Kind      ChannelKind `json:"kind"`
	StreamURL string      `json:"stream_url"`
	Region    string      `json:"region,omitempty"`
	Active    bool        `json:"active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Song is a catalogued recording. ISRC holds the canonical form or is empty.
type Song struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Artist          string    `json:"artist"`
	Album           string    `json:"album,omitempty"`
	Label           string    `json:"label,omitempty"`
	ISRC            string    `json:"isrc,omitempty"`
	DurationSeconds int       `json:"duration_seconds,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SongView is the API representation of a song with derived ISRC fields.
type SongView struct {
	*Song
	ISRCDisplay string `json:"isrc_display,omitempty"`
	ISRCCountry string `json:"isrc_country,omitempty"`
	ISRCYear    int    `json:"isrc_year,omitempty"`
}

// View derives the display, country and year fields from the stored ISRC.
func (s *Song) View() SongView {
	v := SongView{Song: s}
	if code, ok := isrc.Parse(s.ISRC); ok {
		v.ISRCDisplay = code.Display()
		v.ISRCCountry = code.Country
		v.ISRCYear = code.FullYear()
	}
	return v
}

// Source names where a detection came from.
type Source string

const (
	SourceAcoustID Source = "acoustid"
	SourceAudD     Source = "audd"
	SourceManual   Source = "manual"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceAcoustID, SourceAudD, SourceManual:
		return true
	}
	return false
}

// Detection is one identified airing of a song on a channel.
type Detection struct {
	ID                  string     `json:"id"`
	ChannelID           string     `json:"channel_id"`
	SongID              string     `json:"song_id"`
	ISRC                string     `json:"isrc,omitempty"`
	Source              Source     `json:"source"`
	Confidence          float64    `json:"confidence"`
	DetectedAt          time.Time  `json:"detected_at"`
	PlayDurationSeconds int        `json:"play_duration_seconds"`
	CorrectedBy         string     `json:"corrected_by,omitempty"`
	CorrectedAt         *time.Time `json:"corrected_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// SongFilter narrows ListSongs. Query matches title or artist.
type SongFilter struct {
	Query  string
	Limit  int
	Offset int
}

// DetectionFilter narrows ListDetections. Zero times are open bounds.
type DetectionFilter struct {
	ChannelID string
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}

// DefaultPageSize applies when a filter's Limit is zero.
const DefaultPageSize = 50

// MaxPageSize caps any filter's Limit.
const MaxPageSize = 500

// PageSize clamps a requested limit into [1, MaxPageSize].
func PageSize(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	}
	return limit
}
