package codec

import (
	"encoding/json"

	"github.com/kaelwave/wavetuner/internal/catalog"
	"github.com/kaelwave/wavetuner/internal/errs"
)

// Quality is the requested audio bitrate/codec tier.
type Quality int

const (
	QualityLow Quality = iota
	QualityMedium
	QualityHigh
)

func (q Quality) wireKey() string {
	switch q {
	case QualityLow:
		return "low"
	case QualityHigh:
		return "high"
	default:
		return "medium"
	}
}

// ParseQuality maps a config-file quality string to a Quality.
func ParseQuality(s string) Quality {
	switch s {
	case "low":
		return QualityLow
	case "high":
		return QualityHigh
	default:
		return QualityMedium
	}
}

type audioURLMapEntry struct {
	Encoding string `json:"encoding"`
	AudioURL string `json:"audioUrl"`
}

// wireSong is the raw shape of one playlist entry in a getPlaylist
// response, including the audioUrlMap the codec must post-process.
type wireSong struct {
	TrackToken  string                      `json:"trackToken"`
	StationID   string                      `json:"stationId"`
	Artist      string                      `json:"artistName"`
	Album       string                      `json:"albumName"`
	Title       string                      `json:"songName"`
	CoverArt    string                      `json:"albumArtUrl"`
	DetailURL   string                      `json:"songDetailUrl"`
	FileGainDB  float64                     `json:"fileGain"`
	LengthSecs  int                         `json:"trackLength"`
	Rating      int                         `json:"rating"`
	MusicID     string                      `json:"musicId"`
	SeedID      string                      `json:"seedId"`
	FeedbackID  string                      `json:"feedbackId"`
	AudioURL    string                      `json:"audioUrl"`
	AudioURLMap map[string]audioURLMapEntry `json:"audioUrlMap"`
}

func formatFromEncoding(encoding string) catalog.AudioFormat {
	switch encoding {
	case "mp3", "mp3-hifi":
		return catalog.FormatMP3
	case "aacplus":
		return catalog.FormatAACPlus
	default:
		return catalog.FormatUnknown
	}
}

// selectAudioURL implements spec.md §4.3's audioUrlMap tier selection: if
// the map is present, the requested tier must be present in it, or
// ErrQualityUnavailable is returned; the chosen entry's encoding becomes
// the song's AudioFormat.
func selectAudioURL(w wireSong, quality Quality) (string, catalog.AudioFormat, error) {
	if w.AudioURLMap == nil {
		if w.AudioURL == "" {
			return "", catalog.FormatUnknown, errs.Wrap(errs.KindProtocol, "song has no audio URL", errs.ErrQualityUnavailable)
		}
		return w.AudioURL, catalog.FormatUnknown, nil
	}
	entry, ok := w.AudioURLMap[quality.wireKey()]
	if !ok {
		return "", catalog.FormatUnknown, errs.Wrap(errs.KindProtocol, "requested quality tier missing from audioUrlMap", errs.ErrQualityUnavailable)
	}
	return entry.AudioURL, formatFromEncoding(entry.Encoding), nil
}

// DecodeSong parses one playlist entry and resolves its audio URL for
// quality. On ErrQualityUnavailable the caller must not append the song
// to the playlist (spec.md §8 boundary behavior).
func DecodeSong(raw json.RawMessage, quality Quality) (*catalog.Song, error) {
	var w wireSong
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, errs.Wrap(errs.KindProtocol, "invalid song payload", err)
	}
	url, format, err := selectAudioURL(w, quality)
	if err != nil {
		return nil, err
	}
	return &catalog.Song{
		TrackToken:  w.TrackToken,
		StationID:   w.StationID,
		Artist:      w.Artist,
		Album:       w.Album,
		Title:       w.Title,
		AudioURL:    url,
		AudioFormat: format,
		CoverArt:    w.CoverArt,
		DetailURL:   w.DetailURL,
		FileGainDB:  w.FileGainDB,
		LengthSecs:  w.LengthSecs,
		Rating:      catalog.Rating(w.Rating),
		MusicID:     w.MusicID,
		SeedID:      w.SeedID,
		FeedbackID:  w.FeedbackID,
	}, nil
}

// DecodePlaylist parses a getPlaylist result's "items" array, skipping
// (not erroring on) any entry whose quality tier is unavailable, per
// spec.md §8.
func DecodePlaylist(raw json.RawMessage, quality Quality) ([]*catalog.Song, error) {
	var payload struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errs.Wrap(errs.KindProtocol, "invalid playlist payload", err)
	}
	songs := make([]*catalog.Song, 0, len(payload.Items))
	for _, item := range payload.Items {
		song, err := DecodeSong(item, quality)
		if err != nil {
			if errs.IsQualityUnavailable(err) {
				continue
			}
			return nil, err
		}
		songs = append(songs, song)
	}
	return songs, nil
}
