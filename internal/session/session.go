// Package session implements the recording/playback state machine that sits
// between a presentation layer and an audio.Device.
//
// A session moves through IDLE -> RECORDING -> RECORDED -> IDLE. While
// recording, two samplers run: one counts elapsed seconds, the other meters
// the input level. Playback is an orthogonal IDLE/PLAYING sub-state that is
// only reachable from RECORDED. Device failures never escape as fatal errors;
// they are logged and surfaced through an Advisor, and the session always
// lands in a phase the user can act on.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/audiolibrelab/voicechanger/internal/audio"
	"github.com/audiolibrelab/voicechanger/internal/effects"
	"github.com/audiolibrelab/voicechanger/internal/metrics"
	"github.com/benbjohnson/clock"
)

// Phase is the recording lifecycle state
type Phase string

const (
	PhaseIdle      Phase = "IDLE"
	PhaseRecording Phase = "RECORDING"
	PhaseRecorded  Phase = "RECORDED"
)

// PlaybackPhase is the playback sub-state
type PlaybackPhase string

const (
	PlaybackIdle    PlaybackPhase = "IDLE"
	PlaybackPlaying PlaybackPhase = "PLAYING"
)

// CompletionMode selects what ends a playback
type CompletionMode string

const (
	// CompletionEstimate ends playback after elapsed/speed seconds
	CompletionEstimate CompletionMode = "estimate"
	// CompletionDevice ends playback when the device reports it finished
	CompletionDevice CompletionMode = "device"
)

const (
	DefaultElapsedInterval = time.Second
	DefaultMeterInterval   = 100 * time.Millisecond

	meterFloorDB = -160.0
	meterScale   = 2.0
)

// State is a point-in-time copy of the session for presentation
type State struct {
	Phase             Phase               `json:"phase"`
	Playback          PlaybackPhase       `json:"playback"`
	ElapsedSeconds    int                 `json:"elapsed_seconds"`
	Elapsed           string              `json:"elapsed"`
	InputLevel        float64             `json:"input_level"`
	SelectedEffect    effects.Effect      `json:"selected_effect"`
	PermissionGranted bool                `json:"permission_granted"`
	Recording         *audio.RecordingRef `json:"recording,omitempty"`
}

// Options configures a Session. Zero values select defaults.
type Options struct {
	Clock           clock.Clock
	Advisor         Advisor
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
	ElapsedInterval time.Duration
	MeterInterval   time.Duration
	Completion      CompletionMode

	// Random returns a value in [0,1) for the display-only level placeholder
	Random func() float64
}

// Session is the single process-wide recording session
type Session struct {
	device  audio.Device
	catalog *effects.Catalog

	clock           clock.Clock
	advisor         Advisor
	log             *slog.Logger
	metrics         *metrics.Metrics
	elapsedInterval time.Duration
	meterInterval   time.Duration
	completion      CompletionMode
	random          func() float64

	// opMu serializes entry points so only one device operation is in flight
	opMu sync.Mutex

	mu            sync.Mutex
	closed        bool
	phase         Phase
	playback      PlaybackPhase
	elapsed       int
	level         float64
	selected      effects.Effect
	permission    bool
	recording     *audio.RecordingRef
	samplers      *samplerGroup
	playbackTimer *clock.Timer
	playbackGen   uint64
}

// New creates an idle session driving device
func New(device audio.Device, catalog *effects.Catalog, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Advisor == nil {
		opts.Advisor = discardAdvisor{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ElapsedInterval <= 0 {
		opts.ElapsedInterval = DefaultElapsedInterval
	}
	if opts.MeterInterval <= 0 {
		opts.MeterInterval = DefaultMeterInterval
	}
	if opts.Completion == "" {
		opts.Completion = CompletionEstimate
	}
	if opts.Random == nil {
		opts.Random = rand.Float64
	}

	return &Session{
		device:          device,
		catalog:         catalog,
		clock:           opts.Clock,
		advisor:         opts.Advisor,
		log:             opts.Logger.With("component", "session"),
		metrics:         opts.Metrics,
		elapsedInterval: opts.ElapsedInterval,
		meterInterval:   opts.MeterInterval,
		completion:      opts.Completion,
		random:          opts.Random,
		phase:           PhaseIdle,
		playback:        PlaybackIdle,
		selected:        catalog.Default(),
	}
}

// Catalog returns the effect catalog the session was created with
func (s *Session) Catalog() *effects.Catalog {
	return s.catalog
}

// MeterInterval is how often the input level is refreshed
func (s *Session) MeterInterval() time.Duration {
	return s.meterInterval
}

// Snapshot returns a copy of the current state
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Phase:             s.phase,
		Playback:          s.playback,
		ElapsedSeconds:    s.elapsed,
		Elapsed:           FormatElapsed(s.elapsed),
		InputLevel:        s.level,
		SelectedEffect:    s.selected,
		PermissionGranted: s.permission,
	}
	if s.recording != nil {
		ref := *s.recording
		st.Recording = &ref
	}
	return st
}

// RequestPermission asks the device for microphone access. A refusal is
// surfaced as an advisory and leaves the session idle.
func (s *Session) RequestPermission(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.isClosed() {
		return ErrClosed
	}

	granted, err := s.device.RequestPermission(ctx)
	if err != nil {
		s.log.Error("Permission request failed", "error", err)
		granted = false
	}

	s.mu.Lock()
	s.permission = granted
	s.mu.Unlock()

	s.metrics.PermissionResult(granted)

	if !granted {
		s.advise(KindPermissionDenied, "Permission required",
			"Microphone access is needed to record your voice.", err)
		return ErrPermissionDenied
	}

	s.log.Info("Microphone permission granted")
	return nil
}

// StartRecording opens a device recording and starts the samplers.
// It requires phase IDLE and a granted permission.
func (s *Session) StartRecording(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.phase != PhaseIdle {
		phase := s.phase
		s.mu.Unlock()
		return fmt.Errorf("start recording in phase %s: %w", phase, ErrInvalidPhase)
	}
	permitted := s.permission
	s.mu.Unlock()

	if !permitted {
		s.advise(KindPermissionDenied, "No permission",
			"Please grant microphone access before recording.", nil)
		return ErrPermissionDenied
	}

	if err := s.device.StartRecording(ctx); err != nil {
		s.advise(KindDeviceStartFailure, "Recording failed",
			"Could not start recording. Please try again.", err)
		return fmt.Errorf("start recording: %w", err)
	}

	s.mu.Lock()
	s.phase = PhaseRecording
	s.elapsed = 0
	s.level = 0
	s.recording = nil
	s.samplers = s.startSamplers()
	s.mu.Unlock()

	s.metrics.RecordingStarted()
	s.log.Info("Recording started")
	return nil
}

// StopRecording cancels the samplers and finalizes the device recording.
// If finalizing fails there is no recording to hold, so the session returns
// to IDLE instead of RECORDED.
func (s *Session) StopRecording(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.phase != PhaseRecording {
		phase := s.phase
		s.mu.Unlock()
		return fmt.Errorf("stop recording in phase %s: %w", phase, ErrInvalidPhase)
	}
	samplers := s.samplers
	s.samplers = nil
	s.mu.Unlock()

	// Samplers must be gone before the handle is released
	samplers.stop()

	s.mu.Lock()
	s.level = 0
	elapsed := s.elapsed
	s.mu.Unlock()

	ref, err := s.device.StopRecording(ctx)

	s.mu.Lock()
	if err != nil || ref == nil {
		s.phase = PhaseIdle
		s.recording = nil
	} else {
		s.phase = PhaseRecorded
		s.recording = ref
	}
	s.mu.Unlock()

	s.metrics.RecordingStopped(time.Duration(elapsed)*time.Second, err == nil && ref != nil)

	switch {
	case err != nil:
		s.advise(KindDeviceStopFailure, "Recording failed",
			"Could not stop the recording.", err)
		return fmt.Errorf("stop recording: %w", err)
	case ref == nil:
		s.advise(KindDeviceStopFailure, "Recording failed",
			"No audio was captured.", nil)
		return fmt.Errorf("stop recording: %w", audio.ErrNoRecording)
	}

	s.log.Info("Recording stopped", "elapsed_seconds", elapsed, "id", ref.ID, "path", ref.Path)
	return nil
}

// PlayWithEffect plays the finished recording with effect. It requires phase
// RECORDED. A playback already in progress is replaced.
func (s *Session) PlayWithEffect(ctx context.Context, effect effects.Effect) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if effect.Speed <= 0 {
		return fmt.Errorf("effect '%s' speed %.2f: %w", effect.ID, effect.Speed, ErrInvalidEffect)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.phase != PhaseRecorded {
		phase := s.phase
		s.mu.Unlock()
		return fmt.Errorf("play in phase %s: %w", phase, ErrInvalidPhase)
	}
	ref := s.recording
	elapsed := s.elapsed
	s.selected = effect
	s.playback = PlaybackPlaying
	s.stopPlaybackTimerLocked()
	s.playbackGen++
	gen := s.playbackGen
	s.mu.Unlock()

	opts := audio.PlayOptions{
		Rate:            effect.Speed,
		PitchCorrection: audio.PitchCorrectionHigh,
	}
	if s.completion == CompletionDevice {
		opts.OnComplete = func() { s.finishPlayback(gen, "device") }
	} else {
		opts.OnComplete = func() {
			s.log.Debug("Device reported end of playback, estimate governs playback state", "generation", gen)
		}
	}

	if err := s.device.Play(ctx, ref, opts); err != nil {
		s.mu.Lock()
		if s.playbackGen == gen {
			s.playback = PlaybackIdle
		}
		s.mu.Unlock()
		s.metrics.PlaybackStopped()

		if errors.Is(err, audio.ErrNoRecording) {
			// Phase gating makes this unreachable
			s.log.Error("Invariant violated: playback requested without a recording", "phase", PhaseRecorded)
			s.advise(KindNoRecordingAvailable, "Playback failed", "There is no recording to play.", err)
		} else {
			s.advise(KindPlaybackFailure, "Playback failed", "Could not play the recording.", err)
		}
		return fmt.Errorf("play: %w", err)
	}

	s.metrics.PlaybackStarted(effect.ID)

	if s.completion == CompletionEstimate {
		d := time.Duration(float64(elapsed) * float64(time.Second) / effect.Speed)
		s.mu.Lock()
		if s.playbackGen == gen && s.playback == PlaybackPlaying {
			s.playbackTimer = s.clock.AfterFunc(d, func() { s.finishPlayback(gen, "estimate") })
		}
		s.mu.Unlock()
		s.log.Info("Playback started", "effect", effect.ID, "rate", effect.Speed, "estimated", d)
	} else {
		s.log.Info("Playback started", "effect", effect.ID, "rate", effect.Speed)
	}

	return nil
}

// finishPlayback returns playback to IDLE unless a newer playback or a stop
// superseded generation gen.
func (s *Session) finishPlayback(gen uint64, source string) {
	s.mu.Lock()
	if s.playbackGen != gen || s.playback != PlaybackPlaying {
		s.mu.Unlock()
		s.log.Debug("Ignoring stale playback completion", "generation", gen, "source", source)
		return
	}
	s.playback = PlaybackIdle
	s.playbackTimer = nil
	s.metrics.PlaybackStopped()
	s.mu.Unlock()

	s.log.Info("Playback finished", "source", source)
}

// StopPlayback stops a playback in progress. Calling it while idle does
// nothing. Device failures are logged only.
func (s *Session) StopPlayback(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.playback != PlaybackPlaying {
		s.mu.Unlock()
		return nil
	}
	s.stopPlaybackTimerLocked()
	s.playbackGen++
	s.mu.Unlock()

	s.stopDevicePlayback(ctx)

	s.mu.Lock()
	s.playback = PlaybackIdle
	s.mu.Unlock()

	s.metrics.PlaybackStopped()
	s.log.Info("Playback stopped")
	return nil
}

// Reset discards the finished recording and returns to IDLE with the
// default effect selected. It is refused while recording.
func (s *Session) Reset(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.phase == PhaseRecording {
		s.mu.Unlock()
		return fmt.Errorf("reset in phase %s: %w", PhaseRecording, ErrInvalidPhase)
	}
	wasPlaying := s.playback == PlaybackPlaying
	s.stopPlaybackTimerLocked()
	s.playbackGen++
	s.phase = PhaseIdle
	s.playback = PlaybackIdle
	s.elapsed = 0
	s.level = 0
	s.selected = s.catalog.Default()
	s.recording = nil
	s.mu.Unlock()

	if wasPlaying {
		s.stopDevicePlayback(ctx)
		s.metrics.PlaybackStopped()
	}

	s.log.Info("Session reset")
	return nil
}

// Teardown cancels samplers and timers and releases every device handle.
// Only the first call has an effect; later operations return ErrClosed.
func (s *Session) Teardown(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	samplers := s.samplers
	s.samplers = nil
	s.stopPlaybackTimerLocked()
	s.playbackGen++
	s.playback = PlaybackIdle
	s.level = 0
	if s.phase == PhaseRecording {
		s.phase = PhaseIdle
	}
	s.mu.Unlock()

	samplers.stop()
	s.metrics.PlaybackStopped()

	if err := s.device.ReleaseAll(ctx); err != nil {
		s.log.Error("Failed to release audio device", "error", err)
		return fmt.Errorf("teardown: %w", err)
	}

	s.log.Info("Session torn down")
	return nil
}

func (s *Session) stopDevicePlayback(ctx context.Context) {
	if err := s.device.StopPlayback(ctx); err != nil {
		s.log.Warn("Failed to stop playback", "error", err)
	}
}

// stopPlaybackTimerLocked cancels the estimate timer. Callers hold s.mu.
func (s *Session) stopPlaybackTimerLocked() {
	if s.playbackTimer != nil {
		s.playbackTimer.Stop()
		s.playbackTimer = nil
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// advise logs, counts and presents an advisory. Never call with s.mu held.
func (s *Session) advise(kind Kind, title, body string, err error) {
	if kind == KindNoRecordingAvailable {
		s.log.Error(title, "kind", kind, "error", err)
	} else {
		s.log.Warn(title, "kind", kind, "detail", body, "error", err)
	}
	s.metrics.Advisory(string(kind))

	s.advisor.Advise(Advisory{
		Kind:  kind,
		Title: title,
		Body:  body,
		Time:  s.clock.Now(),
		Err:   err,
	})
}

// NormalizeLevel maps a metering value in dB to [0,100]
func NormalizeLevel(db float64) float64 {
	v := (db - meterFloorDB) * meterScale
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// FormatElapsed renders seconds as mm:ss
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
