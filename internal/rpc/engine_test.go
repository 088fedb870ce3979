package rpc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaelwave/wavetuner/internal/catalog"
	"github.com/kaelwave/wavetuner/internal/codec"
	"github.com/kaelwave/wavetuner/internal/errs"
)

// fakeCaller is a hand-rolled test double for the caller interface: it
// maps method name to a canned JSON result or error, and records every
// call it saw for assertions.
type fakeCaller struct {
	results map[string]json.RawMessage
	errs    map[string]error
	calls   []call
	loginFn func(ctx context.Context) error
}

type call struct {
	method string
	params map[string]any
}

func (f *fakeCaller) Call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	f.calls = append(f.calls, call{method, params})
	if err, ok := f.errs[method]; ok {
		return nil, err
	}
	return f.results[method], nil
}

func (f *fakeCaller) CallPlaintext(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	return f.Call(ctx, method, params)
}

func (f *fakeCaller) Login(ctx context.Context) error {
	if f.loginFn != nil {
		return f.loginFn(ctx)
	}
	return nil
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{results: map[string]json.RawMessage{}, errs: map[string]error{}}
}

func TestGetStations_ReplacesCatalog(t *testing.T) {
	fc := newFakeCaller()
	fc.results["user.getStationList"] = json.RawMessage(`{"stations":[
		{"stationId":"s1","stationName":"Jazz","isCreator":true},
		{"stationId":"s2","stationName":"Rock","allowAddMusic":true}
	]}`)
	cat := catalog.New(10)
	e := New(fc, cat, codec.QualityHigh)

	require.NoError(t, e.GetStations(context.Background()))
	stations := cat.Stations()
	require.Len(t, stations, 2)
	assert.Equal(t, "Jazz", stations[0].Name)
	assert.True(t, stations[1].UseQuickMix)
}

func TestGetPlaylist_ResolvesQualityAndStamps(t *testing.T) {
	fc := newFakeCaller()
	fc.results["station.getPlaylist"] = json.RawMessage(`{"items":[
		{"trackToken":"t1","audioUrlMap":{"high":{"encoding":"mp3","audioUrl":"http://a"}}}
	]}`)
	cat := catalog.New(10)
	e := New(fc, cat, codec.QualityHigh)

	songs, err := e.GetPlaylist(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, songs, 1)
	assert.Equal(t, "s1", songs[0].StationID)
	assert.Equal(t, songs, cat.Playlist())
}

func TestRateSong_UpdatesCatalogOnSuccess(t *testing.T) {
	fc := newFakeCaller()
	fc.results["station.addFeedback"] = json.RawMessage(`{"feedbackId":"fb1"}`)
	cat := catalog.New(10)
	cat.SetPlaylist([]*catalog.Song{{TrackToken: "t1", StationID: "s1"}})
	e := New(fc, cat, codec.QualityMedium)

	err := e.RateSong(context.Background(), &catalog.Song{TrackToken: "t1", StationID: "s1"}, catalog.RatingLove)
	require.NoError(t, err)
	song, _ := cat.CurrentSong()
	assert.Equal(t, catalog.RatingLove, song.Rating)
}

func TestMoveSong_SkipsLoveWhenBanFails(t *testing.T) {
	fc := newFakeCaller()
	fc.errs["station.addFeedback"] = errs.New(errs.KindServer, "boom")
	cat := catalog.New(10)
	e := New(fc, cat, codec.QualityMedium)

	err := e.MoveSong(context.Background(), "from", "to", &catalog.Song{TrackToken: "t1"})
	require.Error(t, err)
	assert.Len(t, fc.calls, 1) // only the ban attempt, never the love call
}

func TestDeleteStation_RemovesFromCatalogOnSuccess(t *testing.T) {
	fc := newFakeCaller()
	cat := catalog.New(10)
	cat.CreateStation(&catalog.Station{ID: "s1", Name: "Jazz"})
	e := New(fc, cat, codec.QualityMedium)

	require.NoError(t, e.DeleteStation(context.Background(), "s1"))
	_, found := cat.FindStation("s1")
	assert.False(t, found)
}

func TestDeleteStation_LeavesCatalogUntouchedOnServerFailure(t *testing.T) {
	fc := newFakeCaller()
	fc.errs["station.deleteStation"] = errs.New(errs.KindServer, "boom")
	cat := catalog.New(10)
	cat.CreateStation(&catalog.Station{ID: "s1", Name: "Jazz"})
	e := New(fc, cat, codec.QualityMedium)

	err := e.DeleteStation(context.Background(), "s1")
	require.Error(t, err)
	_, found := cat.FindStation("s1")
	assert.True(t, found)
}

func TestSetQuickMix_AppliesLocallyOnSuccess(t *testing.T) {
	fc := newFakeCaller()
	cat := catalog.New(10)
	cat.CreateStation(&catalog.Station{ID: "s1", Name: "Jazz"})
	cat.CreateStation(&catalog.Station{ID: "s2", Name: "Rock"})
	e := New(fc, cat, codec.QualityMedium)

	require.NoError(t, e.SetQuickMix(context.Background(), []string{"s1"}))
	stations := cat.Stations()
	assert.True(t, stations[0].UseQuickMix)
	assert.False(t, stations[1].UseQuickMix)
}

func TestSearch_ParsesArtistsAndSongs(t *testing.T) {
	fc := newFakeCaller()
	fc.results["music.search"] = json.RawMessage(`{
		"artists": [{"artistName":"Miles Davis","musicToken":"m1"}],
		"songs": [{"songName":"So What","artistName":"Miles Davis","musicToken":"m2"}]
	}`)
	e := New(fc, catalog.New(10), codec.QualityMedium)

	result, err := e.Search(context.Background(), "miles")
	require.NoError(t, err)
	require.Len(t, result.Artists, 1)
	require.Len(t, result.Songs, 1)
	assert.Equal(t, "Miles Davis", result.Artists[0].Name)
}

func TestChangeSettings_UsesPlaintextCall(t *testing.T) {
	fc := newFakeCaller()
	fc.results["user.changeSettings"] = json.RawMessage(`{}`)
	e := New(fc, catalog.New(10), codec.QualityMedium)

	require.NoError(t, e.ChangeSettings(context.Background(), map[string]any{"gender": "f"}))
	require.Len(t, fc.calls, 1)
	assert.Equal(t, "user.changeSettings", fc.calls[0].method)
}

func TestGetStationInfo_ParsesSeedsAndFeedback(t *testing.T) {
	fc := newFakeCaller()
	fc.results["station.getStation"] = json.RawMessage(`{
		"music": {"artists":[{"seedId":"a1","name":"Miles","musicToken":"m1"}], "songs":[]},
		"stationSeeds": [],
		"feedback": {"thumbsUp":[{"feedbackId":"fb1","songName":"So What","artistName":"Miles","trackToken":"t1"}]}
	}`)
	e := New(fc, catalog.New(10), codec.QualityMedium)

	info, err := e.GetStationInfo(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, info.ArtistSeeds, 1)
	require.Len(t, info.Feedback, 1)
	assert.Equal(t, catalog.RatingLove, info.Feedback[0].Rating)
}
