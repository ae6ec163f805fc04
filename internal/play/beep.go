package play

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/audiolibrelab/voicechanger/internal/audio"
	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

const (
	resampleQuality     = 4
	highResampleQuality = 6
)

// BeepPlayer plays recordings in-process through the system speaker.
// Rate changes are done by resampling, so pitch always follows speed.
type BeepPlayer struct {
	sampleRate beep.SampleRate

	initOnce sync.Once
	initErr  error

	mutex   sync.Mutex
	current *beepStream
}

type beepStream struct {
	ctrl   *beep.Ctrl
	source beep.StreamSeekCloser
}

func NewBeepPlayer(sampleRate int) *BeepPlayer {
	return &BeepPlayer{sampleRate: beep.SampleRate(sampleRate)}
}

func (p *BeepPlayer) Name() string { return "beep" }

func (p *BeepPlayer) init() error {
	p.initOnce.Do(func() {
		p.initErr = speaker.Init(p.sampleRate, p.sampleRate.N(time.Second/10))
	})
	return p.initErr
}

// Play decodes the WAV recording and queues it on the speaker
func (p *BeepPlayer) Play(ctx context.Context, ref *audio.RecordingRef, opts audio.PlayOptions) error {
	if err := p.init(); err != nil {
		return fmt.Errorf("failed to initialize speaker: %w", err)
	}

	f, err := os.Open(ref.Path)
	if err != nil {
		return fmt.Errorf("audio file not found: %s", ref.Path)
	}

	source, format, err := wav.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to decode %s: %w", ref.Path, err)
	}

	quality := qualityFor(opts.PitchCorrection)
	var s beep.Streamer = source
	if format.SampleRate != p.sampleRate {
		s = beep.Resample(quality, format.SampleRate, p.sampleRate, s)
	}
	if opts.Rate != 1 {
		s = beep.ResampleRatio(quality, opts.Rate, s)
	}

	stream := &beepStream{source: source}
	stream.ctrl = &beep.Ctrl{Streamer: beep.Seq(s, beep.Callback(func() {
		// Runs on the speaker goroutine with the speaker lock held
		go p.finished(stream, ref, opts.OnComplete)
	}))}

	p.mutex.Lock()
	p.current = stream
	p.mutex.Unlock()

	speaker.Play(stream.ctrl)
	return nil
}

func qualityFor(correction audio.PitchCorrection) int {
	if correction == audio.PitchCorrectionHigh {
		return highResampleQuality
	}
	return resampleQuality
}

func (p *BeepPlayer) finished(stream *beepStream, ref *audio.RecordingRef, onComplete func()) {
	p.mutex.Lock()
	natural := p.current == stream
	if natural {
		p.current = nil
	}
	p.mutex.Unlock()

	if !natural {
		return
	}

	stream.source.Close()
	slog.Info("Playback completed", "id", ref.ID)
	if onComplete != nil {
		onComplete()
	}
}

// Stop silences the current stream and releases its file
func (p *BeepPlayer) Stop(ctx context.Context) error {
	p.mutex.Lock()
	stream := p.current
	p.current = nil
	p.mutex.Unlock()

	if stream == nil {
		return nil
	}

	speaker.Lock()
	stream.ctrl.Streamer = nil
	speaker.Unlock()

	return stream.source.Close()
}
