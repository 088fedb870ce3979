package player

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/kaelwave/wavetuner/internal/errs"
)

// FFmpegDecoder is the default Decoder: it shells out to ffmpeg to both
// demux and decode in one subprocess, reading raw signed 16-bit
// little-endian PCM off stdout. Adapted from the teacher's
// Encoder.Stream, which shells out to ffmpeg the same way to encode
// mp3-to-stdout instead of decode-from-network; the StdoutPipe +
// StderrPipe + background stderr-logging-goroutine shape is unchanged.
type FFmpegDecoder struct {
	SampleRate int // output sample rate requested from ffmpeg; defaults to 44100
	Channels   int // defaults to 2
	FrameSize  int // samples per channel per emitted Frame; defaults to 4096
}

const (
	defaultSampleRate = 44100
	defaultChannels   = 2
	defaultFrameSize  = 4096
)

// Decode runs ffmpeg against url and emits decoded frames until the
// stream ends, ctx is cancelled, or interrupted is set.
func (d *FFmpegDecoder) Decode(ctx context.Context, url string, interrupted *atomic.Int32, emit func(Frame) error) error {
	sampleRate := d.SampleRate
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	channels := d.Channels
	if channels <= 0 {
		channels = defaultChannels
	}
	frameSize := d.FrameSize
	if frameSize <= 0 {
		frameSize = defaultFrameSize
	}

	args := []string{
		"-re",
		"-i", url,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"-vn",
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errs.Wrap(errs.KindPlayer, "creating ffmpeg stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errs.Wrap(errs.KindPlayer, "creating ffmpeg stderr pipe", err)
	}
	if err := cmd.Start(); err != nil {
		return errs.Wrap(errs.KindPlayer, "starting ffmpeg", err)
	}

	go func() {
		buf := make([]byte, 1024)
		for {
			n, rerr := stderr.Read(buf)
			if n > 0 {
				slog.Debug("player: ffmpeg", "channel", "player", "output", string(buf[:n]))
			}
			if rerr != nil {
				return
			}
		}
	}()

	bytesPerFrame := frameSize * channels * 2 // 2 bytes per sample
	reader := bufio.NewReaderSize(stdout, bytesPerFrame*2)
	raw := make([]byte, bytesPerFrame)

	readErr := func() error {
		for {
			if interrupted != nil && interrupted.Load() != 0 {
				return errs.ContinueRequest()
			}
			n, rerr := readFull(reader, raw)
			if n > 0 {
				samples := bytesToInt16(raw[:n-(n%2)])
				if len(samples) > 0 {
					frame := Frame{
						Samples:    samples,
						SampleRate: sampleRate,
						Duration:   time.Duration(len(samples)/channels) * time.Second / time.Duration(sampleRate),
					}
					if emitErr := emit(frame); emitErr != nil {
						return emitErr
					}
				}
			}
			if rerr != nil {
				return rerr
			}
		}
	}()

	waitErr := cmd.Wait()

	if errs.IsContinueRequest(readErr) {
		return nil
	}
	if readErr != nil && !errors.Is(readErr, io.EOF) {
		if ctx.Err() != nil {
			return nil
		}
		return errs.Wrap(errs.KindPlayer, "decoding stream", readErr)
	}
	if waitErr != nil && ctx.Err() == nil {
		return errs.Wrap(errs.KindPlayer, "ffmpeg process error", waitErr)
	}
	return nil
}

// readFull reads into buf, returning as many bytes as are available up
// to len(buf) and io.EOF (or another error) once the source is
// exhausted, mirroring io.ReadFull but tolerating short final reads.
func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, fmt.Errorf("short read")
		}
	}
	return total, nil
}

func bytesToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}
