package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/sodav-monitor/sodav/pkg/monitor"
)

const songColumns = `id, title, artist, album, label, isrc, duration_seconds, created_at, updated_at`

func scanSong(row rowScanner) (*monitor.Song, error) {
	var (
		song               monitor.Song
		album, label, code sql.NullString
	)
	if err := row.Scan(&song.ID, &song.Title, &song.Artist, &album, &label, &code,
		&song.DurationSeconds, &song.CreatedAt, &song.UpdatedAt); err != nil {
		return nil, err
	}
	song.Album = album.String
	song.Label = label.String
	song.ISRC = code.String
	return &song, nil
}

// CreateSong inserts a song. A second song with the same ISRC is a conflict.
func (s *Store) CreateSong(ctx context.Context, song *monitor.Song) (err error) {
	ctx, done := s.begin(ctx, "Store.CreateSong", "insert", "songs")
	defer func() { done(err) }()

	if song.ID == "" {
		song.ID = uuid.NewString()
	}
	song.CreatedAt = s.now()
	song.UpdatedAt = song.CreatedAt
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO songs (id, title, artist, album, label, isrc, duration_seconds, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		song.ID, song.Title, song.Artist, nullString(song.Album), nullString(song.Label),
		nullString(song.ISRC), song.DurationSeconds, song.CreatedAt,
	)
	return wrap("create song", err)
}

// GetSong loads a song by ID.
func (s *Store) GetSong(ctx context.Context, id string) (song *monitor.Song, err error) {
	ctx, done := s.begin(ctx, "Store.GetSong", "select", "songs")
	defer func() { done(err) }()

	song, err = scanSong(s.db.QueryRowContext(ctx, `SELECT `+songColumns+` FROM songs WHERE id = $1`, id))
	if err != nil {
		return nil, wrap("get song "+id, err)
	}
	return song, nil
}

// GetSongByISRC loads a song by canonical ISRC.
func (s *Store) GetSongByISRC(ctx context.Context, code string) (song *monitor.Song, err error) {
	ctx, done := s.begin(ctx, "Store.GetSongByISRC", "select", "songs")
	defer func() { done(err) }()

	song, err = scanSong(s.db.QueryRowContext(ctx, `SELECT `+songColumns+` FROM songs WHERE isrc = $1`, code))
	if err != nil {
		return nil, wrap("get song by isrc "+code, err)
	}
	return song, nil
}

// ListSongs pages through songs by title, optionally matching title or
// artist case-insensitively.
func (s *Store) ListSongs(ctx context.Context, filter monitor.SongFilter) (songs []*monitor.Song, err error) {
	ctx, done := s.begin(ctx, "Store.ListSongs", "select", "songs")
	defer func() { done(err) }()

	pattern := ""
	if q := strings.TrimSpace(filter.Query); q != "" {
		pattern = "%" + q + "%"
	}
	rows, err := s.reader().QueryContext(ctx, `
		SELECT `+songColumns+` FROM songs
		WHERE ($1 = '' OR title ILIKE $1 OR artist ILIKE $1)
		ORDER BY title, artist
		LIMIT $2 OFFSET $3`,
		pattern, monitor.PageSize(filter.Limit), filter.Offset,
	)
	if err != nil {
		return nil, wrap("list songs", err)
	}
	defer rows.Close()

	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, wrap("scan song", err)
		}
		songs = append(songs, song)
	}
	return songs, wrap("list songs", rows.Err())
}
