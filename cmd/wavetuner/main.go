// Command wavetuner is the terminal client spec.md §1 describes: it logs
// in, tunes stations, streams and decodes playlists, and dispatches
// keystrokes to rate/skip/browse actions while a play-clock updates in
// place. Wiring follows the teacher's main.go (structured logging setup,
// context-cancel-on-signal graceful shutdown), generalized from a single
// HTTP server's Start/Shutdown pair to the Session→Engine→Dispatcher
// pipeline this client runs instead.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kaelwave/wavetuner/internal/catalog"
	"github.com/kaelwave/wavetuner/internal/config"
	"github.com/kaelwave/wavetuner/internal/dispatch"
	"github.com/kaelwave/wavetuner/internal/errs"
	"github.com/kaelwave/wavetuner/internal/eventhook"
	"github.com/kaelwave/wavetuner/internal/player"
	"github.com/kaelwave/wavetuner/internal/rpc"
	"github.com/kaelwave/wavetuner/internal/session"
	"github.com/kaelwave/wavetuner/internal/termio"
	"github.com/kaelwave/wavetuner/internal/transport"
)

const (
	packageName = "wavetuner"
	version     = "0.1.0"
)

var configPathFlag string

var rootCmd = &cobra.Command{
	Use:   packageName,
	Short: "A terminal client for internet radio",
	Long: packageName + " " + version + ` — log in, tune a station, and rate
songs as they play. Press ? once running for the full key list.`,
	RunE: run,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVar(&configPathFlag, "config", "", "path to config file (defaults to $XDG_CONFIG_HOME/wavetuner/config)")
}

func run(cmd *cobra.Command, args []string) error {
	debugMask := config.ParseDebugMask(os.Getenv("WAVETUNER_DEBUG"))
	level := slog.LevelInfo
	if debugMask.Any() {
		level = slog.LevelDebug
	}
	handler := config.NewChannelHandler(
		slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
		debugMask,
	)
	slog.SetDefault(slog.New(handler))

	configDir := config.DefaultConfigDir()
	configPath := configPathFlag
	if configPath == "" {
		configPath = filepath.Join(configDir, "config")
	}
	statePath := filepath.Join(configDir, "state")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config init failed: %w", err)
	}
	priorState, err := config.LoadState(statePath)
	if err != nil {
		slog.Warn("main: could not read state file", "error", err)
	}

	console := termio.NewConsole()
	fmt.Fprintf(os.Stdout, "%s %s -- press ? for help, q to quit\n", packageName, version)

	app, err := newApp(cfg, console)
	if err != nil {
		return fmt.Errorf("init failed: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		slog.Info("main: shutdown signal received")
		cancel()
	}()

	if err := app.engine.Login(ctx); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	app.hook.Fire(ctx, eventhook.UserLogin, eventhook.Fields{})
	console.Status(termio.Info, "logged in")

	if err := app.engine.GetStations(ctx); err != nil {
		return fmt.Errorf("fetching stations failed: %w", err)
	}
	app.hook.Fire(ctx, eventhook.UserGetStations, eventhook.Fields{
		Stations: stationNames(app.catalog.Stations()),
	})

	if priorState.AutostartStation != "" {
		if _, ok := app.catalog.FindStation(priorState.AutostartStation); ok {
			app.dispatcher.State.SetStation(priorState.AutostartStation)
			if err := app.playNext(ctx); err != nil {
				slog.Warn("main: autostart station failed", "error", err)
			}
		}
	}

	runErr := app.dispatcher.Run(ctx)

	stationID, _, active := app.dispatcher.State.Snapshot()
	if active != nil {
		active.Skip()
	}
	if err := config.SaveState(statePath, config.State{Volume: cfg.Volume, AutostartStation: stationID}); err != nil {
		slog.Warn("main: could not write state file", "error", err)
	}

	return runErr
}

// app bundles every wired component for one run of the client.
type app struct {
	cfg        *config.Config
	console    *termio.Console
	catalog    *catalog.Catalog
	engine     *rpc.Engine
	dispatcher *dispatch.Dispatcher
	hook       *eventhook.Hook
	decoder    player.Decoder
}

func newApp(cfg *config.Config, console *termio.Console) (*app, error) {
	if cfg.User == "" {
		return nil, errs.New(errs.KindLocal, "no user configured")
	}

	httpClient, err := transport.New(transport.Settings{
		CABundlePath: cfg.CABundle,
		Proxy:        cfg.Proxy,
		ControlProxy: cfg.ControlProxy,
	})
	if err != nil {
		return nil, err
	}

	partner := session.Partner{
		User:     cfg.User,
		Password: cfg.Password,
		Device:   cfg.Device,
		InKey:    cfg.InKey,
		OutKey:   cfg.OutKey,
	}
	endpoint := session.Endpoint{
		RpcHost:      cfg.RPCHost,
		RpcPath:      cfg.RPCPath,
		TLSPort:      cfg.TLSPort,
		HTTPProxy:    cfg.Proxy,
		ControlProxy: cfg.ControlProxy,
		CABundle:     cfg.CABundle,
	}
	sess, err := session.New(partner, endpoint, httpClient)
	if err != nil {
		return nil, err
	}

	cat := catalog.New(cfg.HistorySize)
	engine := rpc.New(sess, cat, cfg.AudioQuality)
	hook := eventhook.New(cfg.EventCommand)

	a := &app{
		cfg:     cfg,
		console: console,
		catalog: cat,
		engine:  engine,
		hook:    hook,
		decoder: &player.FFmpegDecoder{},
	}

	hooks := dispatch.Hooks{
		Print: func(kind, line string) {
			if tmpl, ok := cfg.MessageFormats[kind]; ok {
				line = fmt.Sprintf(tmpl, line)
			}
			console.Status(termio.Info, "%s", line)
		},
		Prompt: func(prompt string) (string, error) { return console.ReadLine(prompt) },
		PlayNext: func(ctx context.Context, d *dispatch.Dispatcher) error {
			return a.playNext(ctx)
		},
	}
	a.dispatcher = dispatch.New(engine, dispatch.NewStdinInput(cfg.FifoPath), dispatch.DefaultTable(hooks, cfg))
	a.dispatcher.OnClockTick(func(d *dispatch.Dispatcher) {
		_, _, p := d.State.Snapshot()
		if p == nil {
			return
		}
		console.Status(termio.Time, "%s", p.SongPlayed().Truncate(time.Second))
	})

	return a, nil
}

// playNext advances past whatever was just playing, refills the
// playlist if it has run dry, and starts a fresh Player for the new
// head song.
func (a *app) playNext(ctx context.Context) error {
	stationID, _, previous := a.dispatcher.State.Snapshot()
	if stationID == "" {
		return fmt.Errorf("no station selected")
	}
	if previous != nil {
		a.catalog.AdvancePastCurrent()
	}

	song, ok := a.catalog.CurrentSong()
	if !ok {
		songs, err := a.engine.GetPlaylist(ctx, stationID)
		if err != nil {
			return err
		}
		a.hook.Fire(ctx, eventhook.StationFetchPlaylist, eventhook.Fields{})
		if len(songs) == 0 {
			return errs.New(errs.KindPlayer, "empty playlist")
		}
		song = songs[0]
	}

	p := player.New(a.decoder, stdoutSink{}, song, player.Settings{Volume: a.cfg.Volume})
	a.dispatcher.State.SetSong(song, p)
	a.hook.Fire(ctx, eventhook.SongStart, eventhook.Fields{
		Artist:       song.Artist,
		Title:        song.Title,
		Album:        song.Album,
		CoverArt:     song.CoverArt,
		SongDuration: song.LengthSecs,
		DetailURL:    song.DetailURL,
	})

	go func() {
		if err := p.Run(ctx); err != nil {
			slog.Warn("player: playback ended with error", "error", err)
		}
		a.hook.Fire(ctx, eventhook.SongFinish, eventhook.Fields{
			Artist:       song.Artist,
			Title:        song.Title,
			SongDuration: song.LengthSecs,
			SongPlayed:   int(p.SongPlayed().Seconds()),
		})
	}()
	return nil
}

func stationNames(stations []*catalog.Station) []string {
	names := make([]string, len(stations))
	for i, s := range stations {
		names[i] = s.Name
	}
	return names
}

// stdoutSink writes raw interleaved PCM16 samples to stdout, letting the
// operator pipe wavetuner into any system audio player (e.g. `| aplay
// -f S16_LE`); concrete audio output devices are an out-of-scope external
// collaborator (spec.md §1).
type stdoutSink struct{}

func (stdoutSink) Write(samples []int16, sampleRate int) error {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	_, err := os.Stdout.Write(buf)
	return err
}
