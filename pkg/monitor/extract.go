package monitor

import (
	"math"
	"strings"

	"github.com/sodav-monitor/sodav/pkg/isrc"
)

// songMeta is the catalogue data a provider returned alongside the ISRC.
type songMeta struct {
	title, artist string
	album, label  string
	duration      int
}

// extract returns the raw ISRC and metadata of the payload named by
// req.Source.
func extract(req RecordRequest) (string, songMeta, bool) {
	switch req.Source {
	case SourceAcoustID:
		code, ok := isrc.ExtractFromAcoustID(req.AcoustID)
		if !ok {
			return "", songMeta{}, false
		}
		return code, acoustIDMeta(req.AcoustID, code), true

	case SourceAudD:
		code, ok := isrc.ExtractFromAudD(req.AudD)
		if !ok {
			return "", songMeta{}, false
		}
		r := req.AudD.Result
		return code, songMeta{title: r.Title, artist: r.Artist, album: r.Album, label: r.Label}, true

	case SourceManual:
		if strings.TrimSpace(req.ISRC) == "" {
			return "", songMeta{}, false
		}
		return req.ISRC, songMeta{title: req.Title, artist: req.Artist}, true
	}
	return "", songMeta{}, false
}

// acoustIDMeta reads title, artist and duration from the recording that
// carried code.
func acoustIDMeta(resp *isrc.AcoustIDResponse, code string) songMeta {
	for _, result := range resp.Results {
		for _, rec := range result.Recordings {
			for _, c := range rec.ISRCs {
				if c != code {
					continue
				}
				meta := songMeta{title: rec.Title, duration: int(math.Round(rec.Duration))}
				if len(rec.Artists) > 0 {
					meta.artist = rec.Artists[0].Name
				}
				return meta
			}
		}
	}
	return songMeta{}
}

// bestScore is the score of the result that carried the extracted ISRC.
func bestScore(resp *isrc.AcoustIDResponse) float64 {
	if resp == nil {
		return 0
	}
	for _, result := range resp.Results {
		for _, rec := range result.Recordings {
			for _, c := range rec.ISRCs {
				if c != "" {
					return result.Score
				}
			}
		}
	}
	return 0
}
