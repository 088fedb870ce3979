// Package player runs the two-worker decode/filter/sink pipeline spec.md
// §4.7/§5 describes: a producer that demuxes and decodes a song's audio
// into PCM frames, and a consumer that filters and writes those frames to
// an audio sink, bridged by a bounded look-ahead buffer with its own
// condition variable pair.
package player

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kaelwave/wavetuner/internal/catalog"
	"github.com/kaelwave/wavetuner/internal/errs"
)

// Mode is the playback lifecycle state spec.md §3 names.
type Mode int

const (
	ModeDead Mode = iota
	ModeWaiting
	ModePlaying
	ModeFinished
)

func (m Mode) String() string {
	switch m {
	case ModeWaiting:
		return "waiting"
	case ModePlaying:
		return "playing"
	case ModeFinished:
		return "finished"
	default:
		return "dead"
	}
}

// State is the per-playback struct spec.md §3 describes: created before
// the worker pair starts, read by both, mutated only under Player.lock.
type State struct {
	URL           string
	GainDB        float64
	SongDuration  time.Duration
	SongPlayed    time.Duration
	DoPause       bool
	DoQuit        bool
	Mode          Mode
	LastTimestamp time.Time
}

// Frame is one block of decoded, interleaved 16-bit PCM samples.
type Frame struct {
	Samples    []int16
	SampleRate int
	Duration   time.Duration
}

// Decoder demuxes and decodes the audio at a URL into Frames. spec.md §1
// lists concrete media-codec libraries as an out-of-scope external
// collaborator; demux (stream selection) and decode (packet→PCM) are
// collapsed into one method here because the default implementation,
// FFmpegDecoder, performs both in a single ffmpeg subprocess, exactly as
// the teacher's Encoder.Stream performs mux+encode in one invocation.
type Decoder interface {
	Decode(ctx context.Context, url string, interrupted *atomic.Int32, emit func(Frame) error) error
}

// Sink plays back decoded audio. spec.md §1 lists concrete audio output
// devices as out of scope: the binary's only implementation writes raw
// PCM16 to stdout (cmd/wavetuner's stdoutSink), and tests use a recording
// fake.
type Sink interface {
	Write(samples []int16, sampleRate int) error
}

// Filter transforms a block of interleaved PCM samples in place or into a
// new slice. The chain is source → VolumeGain → FormatConvert → sink
// (spec.md §4.7).
type Filter interface {
	Process(samples []int16) []int16
}

// Settings configures a Player for its whole lifetime.
type Settings struct {
	BufferSeconds time.Duration // producer look-ahead bound
	TargetRate    int           // 0 keeps the stream's native rate
	Volume        float64       // base volume in dB, before per-song fileGain
	GainMul       float64       // multiplier applied to fileGain before adding to Volume
}

// Player owns one track's worker pair. It is not reused across tracks;
// callers construct a fresh Player per song.
type Player struct {
	settings Settings

	lock sync.Mutex
	cond *sync.Cond // guards/signals DoPause and DoQuit transitions

	bufLock sync.Mutex
	bufCond *sync.Cond // signaled by the consumer when it drains a frame
	pending []Frame
	ahead   time.Duration // producer's lead over the consumer's last emitted timestamp
	decoded bool          // set once the decoder has returned; no more frames will arrive

	interrupted atomic.Int32

	decoder Decoder
	sink    Sink
	volume  *VolumeGain
	convert *FormatConvert

	state State
}

// New builds a Player for one song, wiring the filter chain from
// settings and the song's per-track gain.
func New(decoder Decoder, sink Sink, song *catalog.Song, settings Settings) *Player {
	if settings.BufferSeconds <= 0 {
		settings.BufferSeconds = 10 * time.Second
	}
	p := &Player{
		settings: settings,
		decoder:  decoder,
		sink:     sink,
		state: State{
			URL:          song.AudioURL,
			GainDB:       settings.Volume + song.FileGainDB*settings.GainMul,
			SongDuration: time.Duration(song.LengthSecs) * time.Second,
			Mode:         ModeWaiting,
		},
	}
	p.cond = sync.NewCond(&p.lock)
	p.bufCond = sync.NewCond(&p.bufLock)
	p.volume = &VolumeGain{GainDB: p.state.GainDB}
	p.convert = &FormatConvert{TargetRate: settings.TargetRate}
	return p
}

// Run starts the producer/consumer pair and blocks until the track
// finishes, is skipped, or ctx is cancelled. Supervision is via
// errgroup.WithContext, exactly as the teacher's Broadcaster pairs a
// worker loop with a cancel-on-skip context, generalized to a
// producer/consumer pair joined by an errgroup instead of a single
// goroutine.
func (p *Player) Run(ctx context.Context) error {
	p.setMode(ModePlaying)
	slog.Debug("player: starting", "channel", "player", "url", p.state.URL)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return p.produce(gctx) })
	group.Go(func() error { return p.consume(gctx) })

	err := group.Wait()
	p.setMode(ModeFinished)

	if errs.IsContinueRequest(err) {
		return nil
	}
	return err
}

func (p *Player) setMode(m Mode) {
	p.lock.Lock()
	p.state.Mode = m
	p.lock.Unlock()
}

// Mode returns the current playback mode.
func (p *Player) Mode() Mode {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.state.Mode
}

// SongPlayed returns elapsed playback time.
func (p *Player) SongPlayed() time.Duration {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.state.SongPlayed
}

// produce decodes the song into frames and pushes them into the bounded
// look-ahead buffer, waiting on bufCond whenever it has gotten more than
// BufferSeconds ahead of the consumer.
func (p *Player) produce(ctx context.Context) error {
	err := p.decoder.Decode(ctx, p.state.URL, &p.interrupted, func(f Frame) error {
		p.bufLock.Lock()
		for p.ahead >= p.settings.BufferSeconds {
			p.lock.Lock()
			quit := p.state.DoQuit
			p.lock.Unlock()
			if quit || ctx.Err() != nil {
				p.bufLock.Unlock()
				return errs.ContinueRequest()
			}
			p.bufCond.Wait()
		}
		p.pending = append(p.pending, f)
		p.ahead += f.Duration
		p.bufCond.Signal()
		p.bufLock.Unlock()
		return nil
	})
	if errs.IsContinueRequest(err) {
		return nil
	}
	p.bufLock.Lock()
	p.decoded = true
	p.bufCond.Broadcast()
	p.bufLock.Unlock()
	return err
}

// consume drains frames from the buffer, runs them through the filter
// chain, writes them to the sink, honors pause, and nudges the producer
// via bufCond after each frame.
func (p *Player) consume(ctx context.Context) error {
	for {
		p.lock.Lock()
		for p.state.DoPause && !p.state.DoQuit {
			p.cond.Wait()
		}
		quit := p.state.DoQuit
		p.lock.Unlock()
		if quit {
			return errs.ContinueRequest()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		p.bufLock.Lock()
		for len(p.pending) == 0 {
			p.lock.Lock()
			done := p.state.DoQuit
			p.lock.Unlock()
			if done || p.decoded || ctx.Err() != nil {
				p.bufLock.Unlock()
				return nil
			}
			p.bufCond.Wait()
		}
		frame := p.pending[0]
		p.pending = p.pending[1:]
		p.ahead -= frame.Duration
		p.bufCond.Signal()
		p.bufLock.Unlock()

		samples := p.volume.Process(frame.Samples)
		p.convert.SetSourceRate(frame.SampleRate)
		samples = p.convert.Process(samples)
		if err := p.sink.Write(samples, frame.SampleRate); err != nil {
			return errs.Wrap(errs.KindPlayer, "sink write failed", err)
		}

		p.lock.Lock()
		p.state.SongPlayed += frame.Duration
		p.state.LastTimestamp = time.Now()
		p.lock.Unlock()
	}
}

// SetVolume applies a new absolute dB level to the filter chain, as
// spec.md §4.7 describes for filters without a runtime command channel.
func (p *Player) SetVolume(dB float64) {
	p.lock.Lock()
	p.state.GainDB = dB
	p.lock.Unlock()
	p.volume.SetGainDB(dB)
}

// Pause sets DoPause; the consumer blocks before its next frame until
// Resume (or TogglePause) clears it. Calling Pause twice leaves it paused.
func (p *Player) Pause() {
	p.lock.Lock()
	p.state.DoPause = true
	p.lock.Unlock()
}

// Resume clears pause and wakes the consumer.
func (p *Player) Resume() {
	p.lock.Lock()
	p.state.DoPause = false
	p.lock.Unlock()
	p.cond.Broadcast()
}

// TogglePause flips the current pause state and returns the new value.
func (p *Player) TogglePause() bool {
	p.lock.Lock()
	p.state.DoPause = !p.state.DoPause
	paused := p.state.DoPause
	p.lock.Unlock()
	if !paused {
		p.cond.Broadcast()
	}
	return paused
}

// Skip sets DoQuit, wakes both workers, and sets the interrupted flag so
// the decoder's own interrupt check (spec.md §4.7) aborts promptly.
func (p *Player) Skip() {
	p.interrupted.Store(1)
	p.lock.Lock()
	p.state.DoQuit = true
	p.lock.Unlock()
	p.cond.Broadcast()

	p.bufLock.Lock()
	p.bufCond.Broadcast()
	p.bufLock.Unlock()
}
