// Package rpc implements the typed request/response layer over Session
// and Catalog: one method per remote operation (spec.md §4.6), each
// building a JSON body, dispatching through Session, and folding the
// parsed result into Catalog.
package rpc

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kaelwave/wavetuner/internal/catalog"
	"github.com/kaelwave/wavetuner/internal/codec"
	"github.com/kaelwave/wavetuner/internal/errs"
)

// caller is the subset of *session.Session the engine needs; kept as an
// interface so tests can substitute a fake instead of driving real HTTP.
type caller interface {
	Call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error)
	CallPlaintext(ctx context.Context, method string, params map[string]any) (json.RawMessage, error)
	Login(ctx context.Context) error
}

// Engine is the RpcEngine component: it owns no state of its own beyond
// the quality tier, delegating identity to Session and collections to
// Catalog.
type Engine struct {
	session caller
	catalog *catalog.Catalog
	quality codec.Quality
}

// New builds an Engine. quality picks the audioUrlMap tier GetPlaylist
// resolves songs at.
func New(session caller, cat *catalog.Catalog, quality codec.Quality) *Engine {
	return &Engine{session: session, catalog: cat, quality: quality}
}

// correlate tags a call's logging with a per-request id, mirroring
// spec.md §9's observability note that correlation ids are logging-only
// and never appear on the wire.
func correlate(method string) slog.Attr {
	return slog.String("request_id", uuid.NewString()+":"+method)
}

// Login drives the full partner+user handshake.
func (e *Engine) Login(ctx context.Context) error {
	return e.session.Login(ctx)
}

// --- Stations ---

type wireStation struct {
	StationID   string `json:"stationId"`
	StationName string `json:"stationName"`
	IsCreator   bool    `json:"isCreator"`
	IsQuickMix  bool    `json:"isQuickMix"`
	UseQuickMix bool    `json:"allowAddMusic"`
	SeedID      string `json:"stationToken"`
}

// GetStations fetches the full station list and replaces Catalog's copy.
func (e *Engine) GetStations(ctx context.Context) error {
	slog.Debug("rpc: getStations", "channel", "rpc", correlate("user.getStationList"))
	raw, err := e.session.Call(ctx, "user.getStationList", map[string]any{})
	if err != nil {
		return err
	}
	var payload struct {
		Stations []wireStation `json:"stations"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return errs.Wrap(errs.KindProtocol, "invalid getStationList response", err)
	}
	stations := make([]*catalog.Station, 0, len(payload.Stations))
	for _, w := range payload.Stations {
		stations = append(stations, &catalog.Station{
			ID:          w.StationID,
			Name:        w.StationName,
			IsCreator:   w.IsCreator,
			IsQuickMix:  w.IsQuickMix,
			UseQuickMix: w.UseQuickMix,
			SeedID:      w.SeedID,
		})
	}
	e.catalog.SetStations(stations)
	return nil
}

// Stations returns a snapshot of the known station list, for display and
// selection by the dispatcher.
func (e *Engine) Stations() []*catalog.Station {
	return e.catalog.Stations()
}

// QuickMixMembers collects the ids of stations currently contributing to
// the quick mix, for toggling membership before SetQuickMix.
func (e *Engine) QuickMixMembers() []string {
	return e.catalog.QuickMixMembers()
}

// RenameStation renames on the server first, then locally on success
// only (spec.md §4.6 ordering policy).
func (e *Engine) RenameStation(ctx context.Context, stationID, name string) error {
	_, err := e.session.Call(ctx, "station.renameStation", map[string]any{
		"stationToken": stationID,
		"stationName":  name,
	})
	if err != nil {
		return err
	}
	e.catalog.RenameStation(stationID, name)
	return nil
}

// DeleteStation removes a station on the server, then locally; the
// caller is responsible for cancelling playback if it was the current
// station (spec.md §4.6 ordering policy; the engine has no Player
// reference to do so itself).
func (e *Engine) DeleteStation(ctx context.Context, stationID string) error {
	_, err := e.session.Call(ctx, "station.deleteStation", map[string]any{
		"stationToken": stationID,
	})
	if err != nil {
		return err
	}
	e.catalog.DeleteStation(stationID)
	return nil
}

// CreateStation creates a station from a music/song/artist seed token.
func (e *Engine) CreateStation(ctx context.Context, token string, seedType string) (*catalog.Station, error) {
	params := map[string]any{}
	switch seedType {
	case "music":
		params["musicToken"] = token
	default:
		params["trackToken"] = token
		params["musicType"] = seedType
	}
	raw, err := e.session.Call(ctx, "station.createStation", params)
	if err != nil {
		return nil, err
	}
	var w wireStation
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, errs.Wrap(errs.KindProtocol, "invalid createStation response", err)
	}
	st := &catalog.Station{ID: w.StationID, Name: w.StationName, IsCreator: w.IsCreator, SeedID: w.SeedID}
	e.catalog.CreateStation(st)
	return st, nil
}

// AddSeed adds a music seed to an existing station.
func (e *Engine) AddSeed(ctx context.Context, stationID, musicID string) error {
	_, err := e.session.Call(ctx, "station.addMusic", map[string]any{
		"stationToken": stationID,
		"musicToken":   musicID,
	})
	return err
}

// DeleteSeed removes a previously added seed.
func (e *Engine) DeleteSeed(ctx context.Context, seedID string) error {
	_, err := e.session.Call(ctx, "station.deleteMusic", map[string]any{"seedId": seedID})
	return err
}

// SetQuickMix pushes the set of stations contributing to the quick-mix
// station, then applies the same set locally.
func (e *Engine) SetQuickMix(ctx context.Context, stationIDs []string) error {
	_, err := e.session.Call(ctx, "user.setQuickMix", map[string]any{
		"quickMixStationIds": stationIDs,
	})
	if err != nil {
		return err
	}
	e.catalog.ApplyQuickMix(stationIDs)
	return nil
}

// TransformStation converts a shared station into one this account owns.
func (e *Engine) TransformStation(ctx context.Context, stationID string) error {
	_, err := e.session.Call(ctx, "station.transformSharedStation", map[string]any{
		"stationToken": stationID,
	})
	return err
}

// --- Playlist / feedback ---

// GetPlaylist fetches the next playlist chunk for stationID, resolves
// audio URLs at the engine's configured quality, and replaces Catalog's
// playlist.
func (e *Engine) GetPlaylist(ctx context.Context, stationID string) ([]*catalog.Song, error) {
	raw, err := e.session.Call(ctx, "station.getPlaylist", map[string]any{
		"stationToken":       stationID,
		"additionalAudioUrl": "HTTP_64_AACPLUS,HTTP_128_MP3",
	})
	if err != nil {
		return nil, err
	}
	songs, err := codec.DecodePlaylist(raw, e.quality)
	if err != nil {
		return nil, err
	}
	for _, s := range songs {
		s.StationID = stationID
	}
	e.catalog.SetPlaylist(songs)
	return songs, nil
}

// AddFeedback rates a track and returns the server-issued feedback id.
func (e *Engine) AddFeedback(ctx context.Context, stationID, trackToken string, rating catalog.Rating) (string, error) {
	raw, err := e.session.Call(ctx, "station.addFeedback", map[string]any{
		"stationToken": stationID,
		"trackToken":   trackToken,
		"isPositive":   rating == catalog.RatingLove,
	})
	if err != nil {
		return "", err
	}
	var result struct {
		FeedbackID string `json:"feedbackId"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", errs.Wrap(errs.KindProtocol, "invalid addFeedback response", err)
	}
	return result.FeedbackID, nil
}

// RateSong is a convenience over AddFeedback; on success its only
// Catalog effect is updating the song's in-memory rating (spec.md §4.6).
func (e *Engine) RateSong(ctx context.Context, song *catalog.Song, rating catalog.Rating) error {
	if _, err := e.AddFeedback(ctx, song.StationID, song.TrackToken, rating); err != nil {
		return err
	}
	e.catalog.UpdateRating(song.TrackToken, rating)
	return nil
}

// MoveSong bans song on the source station and, only if that succeeds,
// loves it on the destination station (spec.md §4.6).
func (e *Engine) MoveSong(ctx context.Context, from, to string, song *catalog.Song) error {
	if _, err := e.AddFeedback(ctx, from, song.TrackToken, catalog.RatingBan); err != nil {
		return err
	}
	_, err := e.AddFeedback(ctx, to, song.TrackToken, catalog.RatingLove)
	return err
}

// AddTiredSong marks a song tired so the server deprioritizes it.
func (e *Engine) AddTiredSong(ctx context.Context, song *catalog.Song) error {
	_, err := e.session.Call(ctx, "user.sleepSong", map[string]any{"trackToken": song.TrackToken})
	if err != nil {
		return err
	}
	e.catalog.UpdateRating(song.TrackToken, catalog.RatingTired)
	return nil
}

// DeleteFeedback removes a previously submitted rating.
func (e *Engine) DeleteFeedback(ctx context.Context, feedbackID string) error {
	_, err := e.session.Call(ctx, "station.deleteFeedback", map[string]any{"feedbackId": feedbackID})
	return err
}

// BookmarkSong bookmarks the song's track.
func (e *Engine) BookmarkSong(ctx context.Context, song *catalog.Song) error {
	_, err := e.session.Call(ctx, "bookmark.addSongBookmark", map[string]any{"trackToken": song.TrackToken})
	return err
}

// BookmarkArtist bookmarks the song's artist.
func (e *Engine) BookmarkArtist(ctx context.Context, song *catalog.Song) error {
	_, err := e.session.Call(ctx, "bookmark.addArtistBookmark", map[string]any{"trackToken": song.TrackToken})
	return err
}

// --- Search / genres / explain / station info ---

type wireSearchResult struct {
	Artists []struct {
		ArtistName string `json:"artistName"`
		MusicToken string `json:"musicToken"`
	} `json:"artists"`
	Songs []struct {
		SongName   string `json:"songName"`
		ArtistName string `json:"artistName"`
		MusicToken string `json:"musicToken"`
	} `json:"songs"`
}

// Search looks up artists and songs matching text.
func (e *Engine) Search(ctx context.Context, text string) (*catalog.SearchResult, error) {
	raw, err := e.session.Call(ctx, "music.search", map[string]any{"searchText": text})
	if err != nil {
		return nil, err
	}
	var w wireSearchResult
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, errs.Wrap(errs.KindProtocol, "invalid search response", err)
	}
	result := &catalog.SearchResult{}
	for _, a := range w.Artists {
		result.Artists = append(result.Artists, catalog.ArtistMatch{Name: a.ArtistName, MusicID: a.MusicToken})
	}
	for _, s := range w.Songs {
		result.Songs = append(result.Songs, catalog.SongMatch{Title: s.SongName, Artist: s.ArtistName, MusicID: s.MusicToken})
	}
	return result, nil
}

type wireGenreCategory struct {
	CategoryName string `json:"categoryName"`
	Stations     []struct {
		StationName string `json:"stationName"`
		MusicToken  string `json:"stationToken"`
	} `json:"stations"`
}

// GetGenreStations fetches the genre→station seed catalog and stores it.
func (e *Engine) GetGenreStations(ctx context.Context) ([]catalog.GenreCategory, error) {
	raw, err := e.session.Call(ctx, "station.getGenreStations", map[string]any{})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Categories []wireGenreCategory `json:"categories"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errs.Wrap(errs.KindProtocol, "invalid getGenreStations response", err)
	}
	categories := make([]catalog.GenreCategory, 0, len(payload.Categories))
	for _, c := range payload.Categories {
		genres := make([]catalog.Genre, 0, len(c.Stations))
		for _, s := range c.Stations {
			genres = append(genres, catalog.Genre{Name: s.StationName, MusicID: s.MusicToken})
		}
		categories = append(categories, catalog.GenreCategory{Name: c.CategoryName, Genres: genres})
	}
	e.catalog.SetGenres(categories)
	return categories, nil
}

// Explain returns the server's human-readable rationale for why a song
// was selected for its station.
func (e *Engine) Explain(ctx context.Context, song *catalog.Song) (string, error) {
	raw, err := e.session.Call(ctx, "track.explainTrack", map[string]any{"trackToken": song.TrackToken})
	if err != nil {
		return "", err
	}
	var result struct {
		Explanation string `json:"explanation"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", errs.Wrap(errs.KindProtocol, "invalid explainTrack response", err)
	}
	return result.Explanation, nil
}

type wireSeed struct {
	SeedID     string `json:"seedId"`
	Name       string `json:"name"`
	MusicToken string `json:"musicToken"`
}

// GetStationInfo fetches the seeds and feedback history for a station.
func (e *Engine) GetStationInfo(ctx context.Context, stationID string) (*catalog.StationInfo, error) {
	raw, err := e.session.Call(ctx, "station.getStation", map[string]any{
		"stationToken":       stationID,
		"includeExtendedAttributes": true,
	})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Music struct {
			Artists []wireSeed `json:"artists"`
			Songs   []wireSeed `json:"songs"`
		} `json:"music"`
		StationSeeds []wireSeed `json:"stationSeeds"`
		Feedback     struct {
			ThumbsUp []struct {
				FeedbackID string `json:"feedbackId"`
				SongName   string `json:"songName"`
				ArtistName string `json:"artistName"`
				TrackToken string `json:"trackToken"`
			} `json:"thumbsUp"`
		} `json:"feedback"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errs.Wrap(errs.KindProtocol, "invalid getStationInfo response", err)
	}

	info := &catalog.StationInfo{}
	for _, s := range payload.Music.Artists {
		info.ArtistSeeds = append(info.ArtistSeeds, catalog.Seed{SeedID: s.SeedID, Name: s.Name, MusicID: s.MusicToken})
	}
	for _, s := range payload.Music.Songs {
		info.SongSeeds = append(info.SongSeeds, catalog.Seed{SeedID: s.SeedID, Name: s.Name, MusicID: s.MusicToken})
	}
	for _, s := range payload.StationSeeds {
		info.StationSeeds = append(info.StationSeeds, catalog.Seed{SeedID: s.SeedID, Name: s.Name, MusicID: s.MusicToken})
	}
	for _, f := range payload.Feedback.ThumbsUp {
		info.Feedback = append(info.Feedback, catalog.FeedbackItem{
			FeedbackID: f.FeedbackID,
			Song:       catalog.Song{TrackToken: f.TrackToken, Title: f.SongName, Artist: f.ArtistName},
			Rating:     catalog.RatingLove,
		})
	}
	return info, nil
}

// --- Settings ---

// GetSettings fetches account settings as a raw opaque map; the caller
// (the dispatcher's settings action) prints every key/value pair.
func (e *Engine) GetSettings(ctx context.Context) (map[string]any, error) {
	raw, err := e.session.Call(ctx, "user.getSettings", map[string]any{})
	if err != nil {
		return nil, err
	}
	var settings map[string]any
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, errs.Wrap(errs.KindProtocol, "invalid getSettings response", err)
	}
	return settings, nil
}

// ChangeSettings pushes account settings. This is the one operation
// spec.md §4.3 marks as plaintext JSON even though it is user-authed.
func (e *Engine) ChangeSettings(ctx context.Context, settings map[string]any) error {
	_, err := e.session.CallPlaintext(ctx, "user.changeSettings", settings)
	return err
}
