package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kaelwave/wavetuner/internal/catalog"
	"github.com/kaelwave/wavetuner/internal/config"
)

// Hooks are the callbacks a handler needs that the dispatch package itself
// has no business owning: starting playback of a song requires a Decoder
// and Sink (spec.md §1 lists both as external collaborators), printing to
// the terminal is internal/termio's job, and reading a line of visible
// text (station number, search text, a rename) is termio's ReadLine, not
// dispatch's.
type Hooks struct {
	// Print writes one line of status/help text tagged with a kind (e.g.
	// "songlove", "help", "stationlist"), letting the caller apply a
	// config format_* template keyed by that kind before it reaches the
	// terminal.
	Print func(kind, line string)
	// Prompt writes a prompt and reads one line of visible text back
	// (station selection, search text, new names, raw tokens).
	Prompt func(prompt string) (string, error)
	// PlayNext starts playback of the next song on the current station,
	// replacing d.State's current song/player. Called after a station is
	// tuned in and after a song is skipped, banned, marked tired or moved;
	// a song that plays to its natural end does not trigger it.
	PlayNext func(ctx context.Context, d *Dispatcher) error
}

// tableEntry is a keystroke binding before cfg.KeyFor has resolved its
// final rune, so act_* overrides and disables can remap or drop it.
type tableEntry struct {
	name     string
	fallback rune
	required Context
	help     string
	handler  func(context.Context, *Dispatcher) error
}

// DefaultTable builds the keystroke table spec.md §4.8 describes,
// wired against engine, station selection, and the active player. hooks
// supplies the handful of actions dispatch cannot perform on its own.
// cfg supplies the act_* key rebindings/disables parsed from the config
// file; a nil cfg falls back to every action's default key.
func DefaultTable(hooks Hooks, cfg *config.Config) map[rune]Action {
	if hooks.Print == nil {
		hooks.Print = func(string, string) {}
	}
	if hooks.Prompt == nil {
		hooks.Prompt = func(string) (string, error) { return "", fmt.Errorf("no prompt source available") }
	}
	if cfg == nil {
		cfg = config.Default()
	}

	entries := []tableEntry{
		{"quit", 'q', CtxGlobal, "quit", func(ctx context.Context, d *Dispatcher) error {
			return errQuit
		}},
		{"pause", 'p', CtxSong, "pause/unpause", pauseHandler(hooks)},
		{"next", 'n', CtxSong, "next song", nextHandler(hooks)},
		{"songlove", '+', CtxStation | CtxSong, "love song", rateHandler(catalog.RatingLove, "songlove", hooks)},
		{"songban", '-', CtxStation | CtxSong, "ban song", banHandler(hooks)},
		{"songtired", 't', CtxSong, "tired of song", tiredHandler(hooks)},
		{"songexplain", 'e', CtxSong, "explain why this song is playing", explainHandler(hooks)},
		{"songbookmark", 'b', CtxSong, "bookmark song", bookmarkSongHandler(hooks)},
		{"artistbookmark", 'B', CtxSong, "bookmark artist", bookmarkArtistHandler(hooks)},
		{"stationselect", 's', CtxGlobal, "select station", selectStationHandler(hooks)},
		{"stationrefresh", 'R', CtxGlobal, "refresh station list", refreshStationsHandler(hooks)},
		{"stationadd", 'a', CtxGlobal, "add station (search for music)", addStationHandler(hooks)},
		{"stationgenre", 'g', CtxGlobal, "browse genre stations", genreStationHandler(hooks)},
		{"stationdelete", 'd', CtxStation, "delete current station", deleteStationHandler(hooks)},
		{"stationrename", 'r', CtxStation, "rename current station", renameStationHandler(hooks)},
		{"seedadd", 'v', CtxStation, "add a music seed to current station", addSeedHandler(hooks)},
		{"seeddelete", 'V', CtxStation, "delete a seed from current station", deleteSeedHandler(hooks)},
		{"quickmixtoggle", 'm', CtxStation, "toggle quick mix membership", quickMixHandler(hooks)},
		{"stationtransform", 'x', CtxStation, "adopt a shared station", transformStationHandler(hooks)},
		{"stationinfo", 'i', CtxStation, "show station info", stationInfoHandler(hooks)},
		{"songmove", 'M', CtxStation | CtxSong, "move song to another station", moveSongHandler(hooks)},
		{"feedbackdelete", 'f', CtxGlobal, "delete a feedback entry by id", deleteFeedbackHandler(hooks)},
		{"settingsget", 'o', CtxGlobal, "show account settings", settingsGetHandler(hooks)},
		{"settingschange", 'O', CtxGlobal, "change an account setting (key=value)", settingsChangeHandler(hooks)},
	}

	table := make(map[rune]Action, len(entries)+1)
	for _, e := range entries {
		key, ok := cfg.KeyFor(e.name, e.fallback)
		if !ok {
			continue
		}
		table[key] = Action{Required: e.required, Handler: e.handler, Help: e.help}
	}
	table['?'] = Action{
		Required: CtxGlobal,
		Help:     "print this help",
		Handler: func(ctx context.Context, d *Dispatcher) error {
			for key, action := range d.Table {
				hooks.Print("help", fmt.Sprintf("%c: %s", key, action.Help))
			}
			return nil
		},
	}
	return table
}

func pauseHandler(hooks Hooks) func(context.Context, *Dispatcher) error {
	return func(ctx context.Context, d *Dispatcher) error {
		_, _, p := d.State.Snapshot()
		if p == nil {
			return fmt.Errorf("no active player")
		}
		if p.TogglePause() {
			hooks.Print("pause", "paused")
		} else {
			hooks.Print("pause", "playing")
		}
		return nil
	}
}

func nextHandler(hooks Hooks) func(context.Context, *Dispatcher) error {
	return func(ctx context.Context, d *Dispatcher) error {
		_, _, p := d.State.Snapshot()
		if p == nil {
			return fmt.Errorf("no active player")
		}
		p.Skip()
		if hooks.PlayNext != nil {
			return hooks.PlayNext(ctx, d)
		}
		return nil
	}
}

func rateHandler(rating catalog.Rating, kind string, hooks Hooks) func(context.Context, *Dispatcher) error {
	return func(ctx context.Context, d *Dispatcher) error {
		_, song, _ := d.State.Snapshot()
		if err := d.Engine.RateSong(ctx, song, rating); err != nil {
			return err
		}
		hooks.Print(kind, fmt.Sprintf("%s - %s", song.Artist, song.Title))
		return nil
	}
}

// banHandler bans the current song and, per spec.md §4.6, advances
// playback past it since a banned song is never played out.
func banHandler(hooks Hooks) func(context.Context, *Dispatcher) error {
	return func(ctx context.Context, d *Dispatcher) error {
		_, song, p := d.State.Snapshot()
		if err := d.Engine.RateSong(ctx, song, catalog.RatingBan); err != nil {
			return err
		}
		hooks.Print("songban", fmt.Sprintf("%s - %s", song.Artist, song.Title))
		if p != nil {
			p.Skip()
		}
		if hooks.PlayNext != nil {
			return hooks.PlayNext(ctx, d)
		}
		return nil
	}
}

func tiredHandler(hooks Hooks) func(context.Context, *Dispatcher) error {
	return func(ctx context.Context, d *Dispatcher) error {
		_, song, p := d.State.Snapshot()
		if err := d.Engine.AddTiredSong(ctx, song); err != nil {
			return err
		}
		hooks.Print("songtired", fmt.Sprintf("%s - %s", song.Artist, song.Title))
		if p != nil {
			p.Skip()
		}
		if hooks.PlayNext != nil {
			return hooks.PlayNext(ctx, d)
		}
		return nil
	}
}

func explainHandler(hooks Hooks) func(context.Context, *Dispatcher) error {
	return func(ctx context.Context, d *Dispatcher) error {
		_, song, _ := d.State.Snapshot()
		text, err := d.Engine.Explain(ctx, song)
		if err != nil {
			return err
		}
		hooks.Print("songexplain", text)
		return nil
	}
}

func bookmarkSongHandler(hooks Hooks) func(context.Context, *Dispatcher) error {
	return func(ctx context.Context, d *Dispatcher) error {
		_, song, _ := d.State.Snapshot()
		if err := d.Engine.BookmarkSong(ctx, song); err != nil {
			return err
		}
		hooks.Print("songbookmark", fmt.Sprintf("%s - %s", song.Artist, song.Title))
		return nil
	}
}

func bookmarkArtistHandler(hooks Hooks) func(context.Context, *Dispatcher) error {
	return func(ctx context.Context, d *Dispatcher) error {
		_, song, _ := d.State.Snapshot()
		if err := d.Engine.BookmarkArtist(ctx, song); err != nil {
			return err
		}
		hooks.Print("artistbookmark", song.Artist)
		return nil
	}
}

func refreshStationsHandler(hooks Hooks) func(context.Context, *Dispatcher) error {
	return func(ctx context.Context, d *Dispatcher) error {
		if err := d.Engine.GetStations(ctx); err != nil {
			return err
		}
		hooks.Print("stationrefresh", "station list refreshed")
		return nil
	}
}

func deleteStationHandler(hooks Hooks) func(context.Context, *Dispatcher) error {
	return func(ctx context.Context, d *Dispatcher) error {
		stationID, _, p := d.State.Snapshot()
		if err := d.Engine.DeleteStation(ctx, stationID); err != nil {
			return err
		}
		if p != nil {
			p.Skip()
		}
		d.State.SetStation("")
		hooks.Print("stationdelete", "station deleted")
		return nil
	}
}

func renameStationHandler(hooks Hooks) func(context.Context, *Dispatcher) error {
	return func(ctx context.Context, d *Dispatcher) error {
		stationID, _, _ := d.State.Snapshot()
		name, err := hooks.Prompt("new name: ")
		if err != nil {
			return err
		}
		if err := d.Engine.RenameStation(ctx, stationID, name); err != nil {
			return err
		}
		hooks.Print("stationrename", name)
		return nil
	}
}

func addSeedHandler(hooks Hooks) func(context.Context, *Dispatcher) error {
	return func(ctx context.Context, d *Dispatcher) error {
		stationID, _, _ := d.State.Snapshot()
		token, err := hooks.Prompt("music token to add: ")
		if err != nil {
			return err
		}
		return d.Engine.AddSeed(ctx, stationID, strings.TrimSpace(token))
	}
}

func deleteSeedHandler(hooks Hooks) func(context.Context, *Dispatcher) error {
	return func(ctx context.Context, d *Dispatcher) error {
		seedID, err := hooks.Prompt("seed id to delete: ")
		if err != nil {
			return err
		}
		return d.Engine.DeleteSeed(ctx, strings.TrimSpace(seedID))
	}
}

func quickMixHandler(hooks Hooks) func(context.Context, *Dispatcher) error {
	return func(ctx context.Context, d *Dispatcher) error {
		stationID, _, _ := d.State.Snapshot()
		members := d.Engine.QuickMixMembers()
		next := make([]string, 0, len(members)+1)
		found := false
		for _, id := range members {
			if id == stationID {
				found = true
				continue
			}
			next = append(next, id)
		}
		if !found {
			next = append(next, stationID)
		}
		if err := d.Engine.SetQuickMix(ctx, next); err != nil {
			return err
		}
		if found {
			hooks.Print("quickmixtoggle", "removed from quick mix")
		} else {
			hooks.Print("quickmixtoggle", "added to quick mix")
		}
		return nil
	}
}

func transformStationHandler(hooks Hooks) func(context.Context, *Dispatcher) error {
	return func(ctx context.Context, d *Dispatcher) error {
		stationID, _, _ := d.State.Snapshot()
		return d.Engine.TransformStation(ctx, stationID)
	}
}

func deleteFeedbackHandler(hooks Hooks) func(context.Context, *Dispatcher) error {
	return func(ctx context.Context, d *Dispatcher) error {
		feedbackID, err := hooks.Prompt("feedback id to delete: ")
		if err != nil {
			return err
		}
		return d.Engine.DeleteFeedback(ctx, strings.TrimSpace(feedbackID))
	}
}

func settingsGetHandler(hooks Hooks) func(context.Context, *Dispatcher) error {
	return func(ctx context.Context, d *Dispatcher) error {
		settings, err := d.Engine.GetSettings(ctx)
		if err != nil {
			return err
		}
		for k, v := range settings {
			hooks.Print("settingsget", fmt.Sprintf("%s = %v", k, v))
		}
		return nil
	}
}

func settingsChangeHandler(hooks Hooks) func(context.Context, *Dispatcher) error {
	return func(ctx context.Context, d *Dispatcher) error {
		line, err := hooks.Prompt("setting key=value: ")
		if err != nil {
			return err
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("expected key=value")
		}
		return d.Engine.ChangeSettings(ctx, map[string]any{
			strings.TrimSpace(key): strings.TrimSpace(value),
		})
	}
}

// selectStationHandler lists every known station, prompts for its number,
// tunes it in, and starts playback.
func selectStationHandler(hooks Hooks) func(context.Context, *Dispatcher) error {
	return func(ctx context.Context, d *Dispatcher) error {
		stations := catalog.Sorted(d.Engine.Stations(), catalog.SortNameAZ)
		if len(stations) == 0 {
			return fmt.Errorf("no stations loaded")
		}
		for i, s := range stations {
			hooks.Print("stationlist", fmt.Sprintf("%d) %s", i+1, s.Name))
		}
		idx, err := promptIndex(hooks, "station number: ", len(stations))
		if err != nil {
			return err
		}
		d.State.SetStation(stations[idx].ID)
		if hooks.PlayNext != nil {
			return hooks.PlayNext(ctx, d)
		}
		return nil
	}
}

// addStationHandler searches for music by name and creates a station from
// whichever artist or song the user picks.
func addStationHandler(hooks Hooks) func(context.Context, *Dispatcher) error {
	return func(ctx context.Context, d *Dispatcher) error {
		text, err := hooks.Prompt("search: ")
		if err != nil {
			return err
		}
		result, err := d.Engine.Search(ctx, text)
		if err != nil {
			return err
		}
		var tokens, labels []string
		for _, a := range result.Artists {
			tokens = append(tokens, a.MusicID)
			labels = append(labels, "[artist] "+a.Name)
		}
		for _, s := range result.Songs {
			tokens = append(tokens, s.MusicID)
			labels = append(labels, "[song] "+s.Artist+" - "+s.Title)
		}
		if len(tokens) == 0 {
			return fmt.Errorf("no matches for %q", text)
		}
		for i, label := range labels {
			hooks.Print("searchresult", fmt.Sprintf("%d) %s", i+1, label))
		}
		idx, err := promptIndex(hooks, "selection number: ", len(tokens))
		if err != nil {
			return err
		}
		station, err := d.Engine.CreateStation(ctx, tokens[idx], "music")
		if err != nil {
			return err
		}
		d.State.SetStation(station.ID)
		if hooks.PlayNext != nil {
			return hooks.PlayNext(ctx, d)
		}
		return nil
	}
}

// genreStationHandler fetches the genre seed catalog, lets the user pick
// one, and creates a station from it.
func genreStationHandler(hooks Hooks) func(context.Context, *Dispatcher) error {
	return func(ctx context.Context, d *Dispatcher) error {
		categories, err := d.Engine.GetGenreStations(ctx)
		if err != nil {
			return err
		}
		var tokens, labels []string
		for _, c := range categories {
			for _, g := range c.Genres {
				tokens = append(tokens, g.MusicID)
				labels = append(labels, c.Name+" / "+g.Name)
			}
		}
		if len(tokens) == 0 {
			return fmt.Errorf("no genre stations available")
		}
		for i, label := range labels {
			hooks.Print("genrelist", fmt.Sprintf("%d) %s", i+1, label))
		}
		idx, err := promptIndex(hooks, "genre number: ", len(tokens))
		if err != nil {
			return err
		}
		station, err := d.Engine.CreateStation(ctx, tokens[idx], "music")
		if err != nil {
			return err
		}
		d.State.SetStation(station.ID)
		if hooks.PlayNext != nil {
			return hooks.PlayNext(ctx, d)
		}
		return nil
	}
}

// stationInfoHandler prints the current station's seeds and feedback
// history.
func stationInfoHandler(hooks Hooks) func(context.Context, *Dispatcher) error {
	return func(ctx context.Context, d *Dispatcher) error {
		stationID, _, _ := d.State.Snapshot()
		info, err := d.Engine.GetStationInfo(ctx, stationID)
		if err != nil {
			return err
		}
		for _, seed := range info.ArtistSeeds {
			hooks.Print("stationinfo", fmt.Sprintf("artist seed: %s", seed.Name))
		}
		for _, seed := range info.SongSeeds {
			hooks.Print("stationinfo", fmt.Sprintf("song seed: %s", seed.Name))
		}
		for _, seed := range info.StationSeeds {
			hooks.Print("stationinfo", fmt.Sprintf("station seed: %s", seed.Name))
		}
		for _, fb := range info.Feedback {
			hooks.Print("stationinfo", fmt.Sprintf("loved: %s - %s", fb.Song.Artist, fb.Song.Title))
		}
		return nil
	}
}

// moveSongHandler bans the current song on its station and loves it on a
// prompted destination station, then advances playback (spec.md §4.6).
func moveSongHandler(hooks Hooks) func(context.Context, *Dispatcher) error {
	return func(ctx context.Context, d *Dispatcher) error {
		stationID, song, p := d.State.Snapshot()
		dest, err := hooks.Prompt("move to station id: ")
		if err != nil {
			return err
		}
		dest = strings.TrimSpace(dest)
		if err := d.Engine.MoveSong(ctx, stationID, dest, song); err != nil {
			return err
		}
		hooks.Print("songmove", fmt.Sprintf("moved %s - %s", song.Artist, song.Title))
		if p != nil {
			p.Skip()
		}
		if hooks.PlayNext != nil {
			return hooks.PlayNext(ctx, d)
		}
		return nil
	}
}

// promptIndex prompts for a 1-based line number and returns it converted
// to a valid 0-based index into a list of length n.
func promptIndex(hooks Hooks, prompt string, n int) (int, error) {
	input, err := hooks.Prompt(prompt)
	if err != nil {
		return 0, err
	}
	idx, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || idx < 1 || idx > n {
		return 0, fmt.Errorf("invalid selection")
	}
	return idx - 1, nil
}
