package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/sodav-monitor/sodav/pkg/monitor"
	"github.com/sodav-monitor/sodav/pkg/observability"
)

// SongCache is a Redis read-through cache in front of a SongStore. Ingestion
// resolves every detection by ISRC, so single-song lookups are cached; lists
// are not.
type SongCache struct {
	monitor.SongStore
	redis   redis.UniversalClient
	ttl     time.Duration
	metrics *observability.OTelMetrics
	logger  *observability.Logger
}

var _ monitor.SongStore = (*SongCache)(nil)

// NewSongCache wraps store. A zero ttl means 15 minutes.
func NewSongCache(store monitor.SongStore, client redis.UniversalClient, ttl time.Duration, metrics *observability.OTelMetrics, logger *observability.Logger) *SongCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, io.Discard)
	}
	return &SongCache{
		SongStore: store,
		redis:     client,
		ttl:       ttl,
		metrics:   metrics,
		logger:    logger,
	}
}

func songIDKey(id string) string     { return fmt.Sprintf("sodav:song:id:%s", id) }
func songISRCKey(code string) string { return fmt.Sprintf("sodav:song:isrc:%s", code) }

// GetSong serves a song from cache, falling back to the store.
func (c *SongCache) GetSong(ctx context.Context, id string) (*monitor.Song, error) {
	return c.readThrough(ctx, songIDKey(id), func() (*monitor.Song, error) {
		return c.SongStore.GetSong(ctx, id)
	})
}

// GetSongByISRC serves a song by canonical ISRC from cache, falling back to
// the store.
func (c *SongCache) GetSongByISRC(ctx context.Context, code string) (*monitor.Song, error) {
	return c.readThrough(ctx, songISRCKey(code), func() (*monitor.Song, error) {
		return c.SongStore.GetSongByISRC(ctx, code)
	})
}

// CreateSong writes through to the store and primes both cache keys.
func (c *SongCache) CreateSong(ctx context.Context, song *monitor.Song) error {
	if err := c.SongStore.CreateSong(ctx, song); err != nil {
		return err
	}
	c.set(ctx, song)
	return nil
}

func (c *SongCache) readThrough(ctx context.Context, key string, load func() (*monitor.Song, error)) (*monitor.Song, error) {
	data, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var song monitor.Song
		if err := json.Unmarshal(data, &song); err == nil {
			c.metrics.RecordCacheLookup(ctx, "songs", true)
			return &song, nil
		}
		c.redis.Del(ctx, key)
	case err != redis.Nil:
		c.logger.WithError(err).Warn("Song cache read failed")
	}
	c.metrics.RecordCacheLookup(ctx, "songs", false)

	song, err := load()
	if err != nil {
		return nil, err
	}
	c.set(ctx, song)
	return song, nil
}

func (c *SongCache) set(ctx context.Context, song *monitor.Song) {
	data, err := json.Marshal(song)
	if err != nil {
		return
	}
	pipe := c.redis.Pipeline()
	pipe.Set(ctx, songIDKey(song.ID), data, c.ttl)
	if song.ISRC != "" {
		pipe.Set(ctx, songISRCKey(song.ISRC), data, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.WithError(err).Warn("Song cache write failed")
	}
}

// Invalidate drops the cached entries for a song.
func (c *SongCache) Invalidate(ctx context.Context, song *monitor.Song) error {
	keys := []string{songIDKey(song.ID)}
	if song.ISRC != "" {
		keys = append(keys, songISRCKey(song.ISRC))
	}
	return c.redis.Del(ctx, keys...).Err()
}
