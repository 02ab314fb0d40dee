package isrc

import (
	"encoding/json"
	"fmt"
)

// AcoustIDResponse is the subset of an AcoustID lookup response carrying ISRCs.
// Request it with meta=recordings+isrcs.
type AcoustIDResponse struct {
	Status  string           `json:"status"`
	Results []AcoustIDResult `json:"results"`
}

// AcoustIDResult is one fingerprint match.
type AcoustIDResult struct {
	ID         string              `json:"id"`
	Score      float64             `json:"score"`
	Recordings []AcoustIDRecording `json:"recordings"`
}

// AcoustIDRecording is a MusicBrainz recording attached to a match.
type AcoustIDRecording struct {
	ID       string           `json:"id"`
	Title    string           `json:"title,omitempty"`
	Duration float64          `json:"duration,omitempty"`
	Artists  []AcoustIDArtist `json:"artists,omitempty"`
	ISRCs    []string         `json:"isrcs"`
}

// AcoustIDArtist names a credited artist.
type AcoustIDArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AudDResponse is the subset of an AudD recognition response carrying ISRCs.
// Request it with return=apple_music,spotify.
type AudDResponse struct {
	Status string      `json:"status"`
	Result *AudDResult `json:"result"`
}

// AudDResult is the recognized track. ISRC may be empty when only the
// streaming-service blocks carry one.
type AudDResult struct {
	Artist      string          `json:"artist"`
	Title       string          `json:"title"`
	Album       string          `json:"album"`
	Label       string          `json:"label"`
	ReleaseDate string          `json:"release_date"`
	ISRC        string          `json:"isrc"`
	Spotify     *AudDSpotify    `json:"spotify"`
	AppleMusic  *AudDAppleMusic `json:"apple_music"`
}

// AudDSpotify is the Spotify block of an AudD result.
type AudDSpotify struct {
	ExternalIDs *AudDExternalIDs `json:"external_ids"`
}

// AudDExternalIDs holds Spotify external identifiers.
type AudDExternalIDs struct {
	ISRC string `json:"isrc"`
}

// AudDAppleMusic is the Apple Music block of an AudD result.
type AudDAppleMusic struct {
	ISRC string `json:"isrc"`
}

// ExtractFromAcoustID returns the first ISRC found walking
// results -> recordings -> isrcs.
func ExtractFromAcoustID(resp *AcoustIDResponse) (string, bool) {
	if resp == nil {
		return "", false
	}
	for _, result := range resp.Results {
		for _, rec := range result.Recordings {
			for _, code := range rec.ISRCs {
				if code != "" {
					return code, true
				}
			}
		}
	}
	return "", false
}

// ExtractFromAudD returns the first ISRC found checking result.isrc, then
// result.spotify.external_ids.isrc, then result.apple_music.isrc.
func ExtractFromAudD(resp *AudDResponse) (string, bool) {
	if resp == nil || resp.Result == nil {
		return "", false
	}
	r := resp.Result
	if r.ISRC != "" {
		return r.ISRC, true
	}
	if r.Spotify != nil && r.Spotify.ExternalIDs != nil && r.Spotify.ExternalIDs.ISRC != "" {
		return r.Spotify.ExternalIDs.ISRC, true
	}
	if r.AppleMusic != nil && r.AppleMusic.ISRC != "" {
		return r.AppleMusic.ISRC, true
	}
	return "", false
}

// DecodeAcoustID decodes a raw AcoustID lookup body.
func DecodeAcoustID(data []byte) (*AcoustIDResponse, error) {
	var resp AcoustIDResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("invalid acoustid payload: %w", err)
	}
	return &resp, nil
}

// DecodeAudD decodes a raw AudD recognition body.
func DecodeAudD(data []byte) (*AudDResponse, error) {
	var resp AudDResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("invalid audd payload: %w", err)
	}
	return &resp, nil
}
