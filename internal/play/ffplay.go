package play

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/audiolibrelab/voicechanger/internal/audio"
	"github.com/faiface/beep/wav"
)

// FFplayPlayer plays recordings through an ffplay subprocess. Rate changes
// reinterpret the sample rate and resample back, so pitch follows speed.
type FFplayPlayer struct {
	binary     string
	sampleRate int

	mutex   sync.Mutex
	current *ffplayProcess
}

type ffplayProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
}

func NewFFplayPlayer(sampleRate int) *FFplayPlayer {
	return &FFplayPlayer{binary: "ffplay", sampleRate: sampleRate}
}

func (p *FFplayPlayer) Name() string { return "ffplay" }

// Play starts ffplay in the background and returns once it is running
func (p *FFplayPlayer) Play(ctx context.Context, ref *audio.RecordingRef, opts audio.PlayOptions) error {
	if _, err := os.Stat(ref.Path); err != nil {
		return fmt.Errorf("audio file not found: %s", ref.Path)
	}

	args := []string{"-nodisp", "-autoexit", "-loglevel", "error",
		"-af", rateFilter(opts.Rate, opts.PitchCorrection, p.sourceRate(ref.Path)), ref.Path}
	slog.Debug("Starting ffplay", "command", p.binary+" "+strings.Join(args, " "))

	cmd := exec.Command(p.binary, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("playback failed with %s: %w", p.binary, err)
	}

	proc := &ffplayProcess{cmd: cmd, done: make(chan struct{})}

	p.mutex.Lock()
	p.current = proc
	p.mutex.Unlock()

	go func() {
		err := cmd.Wait()
		close(proc.done)

		p.mutex.Lock()
		natural := p.current == proc
		if natural {
			p.current = nil
		}
		p.mutex.Unlock()

		if !natural {
			return
		}
		if err != nil {
			slog.Warn("ffplay exited with error", "error", err)
		}
		slog.Info("Playback completed", "id", ref.ID)
		if opts.OnComplete != nil {
			opts.OnComplete()
		}
	}()

	return nil
}

// Stop kills the running ffplay, if any, and waits for it to exit
func (p *FFplayPlayer) Stop(ctx context.Context) error {
	p.mutex.Lock()
	proc := p.current
	p.current = nil
	p.mutex.Unlock()

	if proc == nil {
		return nil
	}

	if proc.cmd.Process != nil {
		if err := proc.cmd.Process.Kill(); err != nil {
			slog.Debug("Failed to kill ffplay", "error", err)
		}
	}

	select {
	case <-proc.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for ffplay to exit: %w", ctx.Err())
	}
}

// sourceRate reads the sample rate from the WAV header, falling back to the
// configured capture rate when the header cannot be decoded
func (p *FFplayPlayer) sourceRate(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return p.sampleRate
	}
	defer f.Close()

	_, format, err := wav.Decode(f)
	if err != nil || format.SampleRate <= 0 {
		slog.Debug("Using configured sample rate for playback", "path", path, "error", err)
		return p.sampleRate
	}
	return int(format.SampleRate)
}

// rateFilter builds the ffmpeg audio filter for a playback rate. asetrate
// plays the samples faster or slower and aresample converts back to the
// source rate, shifting pitch together with speed.
func rateFilter(rate float64, correction audio.PitchCorrection, sampleRate int) string {
	shifted := int(float64(sampleRate) * rate)
	filter := fmt.Sprintf("asetrate=%d,aresample=%d", shifted, sampleRate)
	if correction == audio.PitchCorrectionHigh {
		filter += ":filter_size=64:phase_shift=12"
	}
	return filter
}
