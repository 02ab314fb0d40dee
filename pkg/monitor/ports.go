package monitor

import (
	"context"
	"time"
)

// ChannelStore persists channels. Missing rows yield storage.ErrNotFound.
type ChannelStore interface {
	CreateChannel(ctx context.Context, ch *Channel) error
	GetChannel(ctx context.Context, id string) (*Channel, error)
	ListChannels(ctx context.Context, activeOnly bool) ([]*Channel, error)
	UpdateChannel(ctx context.Context, ch *Channel) error
	DeleteChannel(ctx context.Context, id string) error
}

// SongStore persists songs. A duplicate ISRC yields storage.ErrConflict.
type SongStore interface {
	CreateSong(ctx context.Context, song *Song) error
	GetSong(ctx context.Context, id string) (*Song, error)
	GetSongByISRC(ctx context.Context, code string) (*Song, error)
	ListSongs(ctx context.Context, filter SongFilter) ([]*Song, error)
}

// DetectionStore persists detections.
type DetectionStore interface {
	CreateDetection(ctx context.Context, d *Detection) error
	GetDetection(ctx context.Context, id string) (*Detection, error)
	ListDetections(ctx context.Context, filter DetectionFilter) ([]*Detection, error)
	CorrectDetection(ctx context.Context, id, songID, code, by string, at time.Time) (*Detection, error)
	ExtendDetection(ctx context.Context, id string, playSeconds int) error
}
