// Package eventhook forks the configured event command on each lifecycle
// event named in spec.md §6, writing a stable key=value block on the
// child's stdin. Uses the same exec.CommandContext + piped-I/O shape as
// player's ffmpeg decoder, repurposed from running ffmpeg to running the
// user's own shell command.
package eventhook

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
)

// Event is one of the lifecycle event names spec.md §6 enumerates.
type Event string

const (
	UserLogin              Event = "userlogin"
	UserGetStations        Event = "usergetstations"
	StationFetchPlaylist   Event = "stationfetchplaylist"
	SongStart              Event = "songstart"
	SongFinish             Event = "songfinish"
	SongLove               Event = "songlove"
	SongBan                Event = "songban"
	SongShelf              Event = "songshelf"
	SongBookmark           Event = "songbookmark"
	ArtistBookmark         Event = "artistbookmark"
	StationCreate          Event = "stationcreate"
	StationDelete          Event = "stationdelete"
	StationRename          Event = "stationrename"
	StationAddMusic        Event = "stationaddmusic"
	StationAddShared       Event = "stationaddshared"
	StationAddGenre        Event = "stationaddgenre"
	StationFetchGenre      Event = "stationfetchgenre"
	StationQuickMixToggle  Event = "stationquickmixtoggle"
	StationFetchInfo       Event = "stationfetchinfo"
	StationDeleteArtistSeed Event = "stationdeleteartistseed"
	StationDeleteSongSeed  Event = "stationdeletesongseed"
	StationDeleteStationSeed Event = "stationdeletestationseed"
	StationDeleteFeedback  Event = "stationdeletefeedback"
	SongExplain            Event = "songexplain"
	SettingsGet            Event = "settingsget"
	SettingsChange         Event = "settingschange"
)

// Fields is the stable key=value block written to the child's stdin.
// Every field is written even when zero-valued, matching the fixed
// schema spec.md §6 describes; Stations is rendered as stationCount
// followed by station0..stationN-1 lines.
type Fields struct {
	Artist          string
	Title           string
	Album           string
	CoverArt        string
	StationName     string
	SongStationName string
	PRet            int
	PRetStr         string
	WRet            int
	WRetStr         string
	SongDuration    int
	SongPlayed      int
	Rating          string
	DetailURL       string
	Stations        []string
}

// Hook runs the configured event command, if any, for one lifecycle
// event. A zero-value Hook (Command == "") is a no-op, matching spec.md
// §6's "if event_command is set" guard.
type Hook struct {
	Command string
}

// New builds a Hook. An empty command disables firing entirely.
func New(command string) *Hook {
	return &Hook{Command: command}
}

// Fire execs `/bin/sh -c <command> <eventType>`, writing fields as a
// key=value block on its stdin, and logs (never returns) any failure:
// spec.md treats the event hook as fire-and-forget, never blocking or
// failing playback.
func (h *Hook) Fire(ctx context.Context, event Event, fields Fields) {
	if h == nil || h.Command == "" {
		return
	}
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", h.Command, string(event))
	cmd.Stdin = bytes.NewReader(encode(fields))

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		slog.Warn("eventhook: command failed", "event", event, "error", err, "stderr", stderr.String())
	}
}

func encode(f Fields) []byte {
	var buf bytes.Buffer
	line := func(key, value string) {
		fmt.Fprintf(&buf, "%s=%s\n", key, value)
	}
	line("artist", f.Artist)
	line("title", f.Title)
	line("album", f.Album)
	line("coverArt", f.CoverArt)
	line("stationName", f.StationName)
	line("songStationName", f.SongStationName)
	line("pRet", strconv.Itoa(f.PRet))
	line("pRetStr", f.PRetStr)
	line("wRet", strconv.Itoa(f.WRet))
	line("wRetStr", f.WRetStr)
	line("songDuration", strconv.Itoa(f.SongDuration))
	line("songPlayed", strconv.Itoa(f.SongPlayed))
	line("rating", f.Rating)
	line("detailUrl", f.DetailURL)
	line("stationCount", strconv.Itoa(len(f.Stations)))
	for i, s := range f.Stations {
		line(fmt.Sprintf("station%d", i), s)
	}
	return buf.Bytes()
}
