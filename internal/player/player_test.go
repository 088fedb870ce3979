package player

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaelwave/wavetuner/internal/catalog"
)

// fakeDecoder emits a fixed number of constant-valued (100) frames back to
// back, and honors the interrupted flag like FFmpegDecoder does.
type fakeDecoder struct {
	frames     int
	sampleRate int
	frameSize  int
}

func (d *fakeDecoder) Decode(ctx context.Context, url string, interrupted *atomic.Int32, emit func(Frame) error) error {
	for i := 0; i < d.frames; i++ {
		if interrupted != nil && interrupted.Load() != 0 {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		samples := make([]int16, d.frameSize*2)
		for j := range samples {
			samples[j] = int16(100)
		}
		frame := Frame{
			Samples:    samples,
			SampleRate: d.sampleRate,
			Duration:   time.Duration(d.frameSize) * time.Second / time.Duration(d.sampleRate),
		}
		if err := emit(frame); err != nil {
			return err
		}
	}
	return nil
}

// recordingSink counts Write calls and keeps a copy of every sample block.
type recordingSink struct {
	mu      sync.Mutex
	writes  int
	samples [][]int16
}

func (s *recordingSink) Write(samples []int16, sampleRate int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	cp := make([]int16, len(samples))
	copy(cp, samples)
	s.samples = append(s.samples, cp)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func testSong() *catalog.Song {
	return &catalog.Song{AudioURL: "http://example/song", LengthSecs: 4, FileGainDB: 0}
}

func TestRun_PlaysAllFramesAndFinishes(t *testing.T) {
	dec := &fakeDecoder{frames: 5, sampleRate: 44100, frameSize: 256}
	sink := &recordingSink{}
	p := New(dec, sink, testSong(), Settings{BufferSeconds: time.Second})

	err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ModeFinished, p.Mode())
	assert.Equal(t, 5, sink.count())
	assert.Greater(t, p.SongPlayed(), time.Duration(0))
}

func TestSkip_StopsPlaybackEarly(t *testing.T) {
	dec := &fakeDecoder{frames: 10000, sampleRate: 44100, frameSize: 64}
	sink := &recordingSink{}
	p := New(dec, sink, testSong(), Settings{BufferSeconds: 100 * time.Millisecond})

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	p.Skip()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Skip")
	}
	assert.Less(t, sink.count(), 10000)
}

func TestPauseResume_BlocksConsumerUntilResumed(t *testing.T) {
	dec := &fakeDecoder{frames: 3, sampleRate: 44100, frameSize: 64}
	sink := &recordingSink{}
	p := New(dec, sink, testSong(), Settings{BufferSeconds: time.Second})
	p.Pause()

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, sink.count(), "no frames should be written while paused")

	p.Resume()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not finish after Resume")
	}
	assert.Equal(t, 3, sink.count())
}

func TestSetVolume_AppliesGainToSamples(t *testing.T) {
	dec := &fakeDecoder{frames: 1, sampleRate: 44100, frameSize: 4}
	sink := &recordingSink{}
	p := New(dec, sink, testSong(), Settings{BufferSeconds: time.Second})
	p.SetVolume(-20) // 10x attenuation

	require.NoError(t, p.Run(context.Background()))
	require.Len(t, sink.samples, 1)
	assert.InDelta(t, 10, sink.samples[0][0], 1)
}

func TestVolumeGain_ClampsOnOverflow(t *testing.T) {
	v := &VolumeGain{GainDB: 40} // 100x
	out := v.Process([]int16{1000})
	assert.Equal(t, int16(32767), out[0])
}

func TestFormatConvert_PassthroughWhenRatesMatch(t *testing.T) {
	f := &FormatConvert{TargetRate: 44100}
	f.SetSourceRate(44100)
	in := []int16{1, 2, 3, 4}
	out := f.Process(in)
	assert.Equal(t, in, out)
}

func TestFormatConvert_ResamplesStereoLength(t *testing.T) {
	f := &FormatConvert{TargetRate: 22050}
	f.SetSourceRate(44100)
	in := make([]int16, 4*2) // 4 stereo frames
	out := f.Process(in)
	assert.InDelta(t, 2, len(out)/2, 1)
}
