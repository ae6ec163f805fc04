package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/audiolibrelab/voicechanger/internal/audio"
	"github.com/audiolibrelab/voicechanger/internal/audio/audiotest"
	"github.com/audiolibrelab/voicechanger/internal/effects"
	"github.com/audiolibrelab/voicechanger/internal/metrics"
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	poll    = time.Millisecond
)

type advisoryLog struct {
	mu   sync.Mutex
	list []Advisory
}

func (l *advisoryLog) Advise(a Advisory) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.list = append(l.list, a)
}

func (l *advisoryLog) kinds() []Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	var kinds []Kind
	for _, a := range l.list {
		kinds = append(kinds, a.Kind)
	}
	return kinds
}

type harness struct {
	session  *Session
	device   *audiotest.FakeDevice
	clock    *clock.Mock
	advisor  *advisoryLog
	metrics  *metrics.Metrics
	catalog  *effects.Catalog
	ctx      context.Context
	chipmunk effects.Effect
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()

	h := &harness{
		device:  audiotest.NewFakeDevice(),
		clock:   clock.NewMock(),
		advisor: &advisoryLog{},
		metrics: metrics.New(prometheus.NewRegistry()),
		catalog: effects.BuiltinCatalog(),
		ctx:     context.Background(),
	}

	opts := Options{
		Clock:   h.clock,
		Advisor: h.advisor,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: h.metrics,
	}
	for _, m := range mutate {
		m(&opts)
	}

	h.session = New(h.device, h.catalog, opts)

	var ok bool
	h.chipmunk, ok = h.catalog.Lookup("chipmunk")
	require.True(t, ok)

	t.Cleanup(func() { _ = h.session.Teardown(context.Background()) })
	return h
}

// tick advances simulated time by one elapsed interval and waits for the
// elapsed sampler to observe it.
func (h *harness) tick(t *testing.T) {
	t.Helper()
	want := h.session.Snapshot().ElapsedSeconds + 1
	h.clock.Add(time.Second)
	require.Eventually(t, func() bool {
		return h.session.Snapshot().ElapsedSeconds == want
	}, waitFor, poll)
}

func (h *harness) record(t *testing.T, seconds int) {
	t.Helper()
	require.NoError(t, h.session.RequestPermission(h.ctx))
	require.NoError(t, h.session.StartRecording(h.ctx))
	for i := 0; i < seconds; i++ {
		h.tick(t)
	}
	require.NoError(t, h.session.StopRecording(h.ctx))
}

func TestNew_InitialState(t *testing.T) {
	h := newHarness(t)

	st := h.session.Snapshot()
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.Equal(t, PlaybackIdle, st.Playback)
	assert.Zero(t, st.ElapsedSeconds)
	assert.Zero(t, st.InputLevel)
	assert.Equal(t, "normal", st.SelectedEffect.ID)
	assert.False(t, st.PermissionGranted)
	assert.Nil(t, st.Recording)
	assert.Equal(t, "00:00", st.Elapsed)
}

func TestRequestPermission(t *testing.T) {
	t.Run("granted", func(t *testing.T) {
		h := newHarness(t)

		require.NoError(t, h.session.RequestPermission(h.ctx))
		assert.True(t, h.session.Snapshot().PermissionGranted)
		assert.Empty(t, h.advisor.kinds())
		assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.PermissionRequests.WithLabelValues("granted")))
	})

	t.Run("denied", func(t *testing.T) {
		h := newHarness(t)
		h.device.SetPermission(false)

		err := h.session.RequestPermission(h.ctx)
		assert.ErrorIs(t, err, ErrPermissionDenied)
		assert.False(t, h.session.Snapshot().PermissionGranted)
		assert.Equal(t, PhaseIdle, h.session.Snapshot().Phase)
		assert.Equal(t, []Kind{KindPermissionDenied}, h.advisor.kinds())
	})

	t.Run("device error counts as denied", func(t *testing.T) {
		h := newHarness(t)
		h.device.PermissionErr = audiotest.ErrInjected

		err := h.session.RequestPermission(h.ctx)
		assert.ErrorIs(t, err, ErrPermissionDenied)
		assert.False(t, h.session.Snapshot().PermissionGranted)
		assert.Equal(t, []Kind{KindPermissionDenied}, h.advisor.kinds())
	})

	t.Run("later refusal revokes", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.session.RequestPermission(h.ctx))

		h.device.SetPermission(false)
		assert.ErrorIs(t, h.session.RequestPermission(h.ctx), ErrPermissionDenied)
		assert.False(t, h.session.Snapshot().PermissionGranted)
	})
}

func TestStartRecording_WithoutPermission(t *testing.T) {
	h := newHarness(t)
	h.device.SetPermission(false)
	_ = h.session.RequestPermission(h.ctx)

	before := h.session.Snapshot()
	err := h.session.StartRecording(h.ctx)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	assert.Equal(t, before, h.session.Snapshot())
	assert.Equal(t, 0, h.device.CallCount("StartRecording"))
	assert.Equal(t, []Kind{KindPermissionDenied, KindPermissionDenied}, h.advisor.kinds())

	// No samplers were created
	h.clock.Add(3 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, h.device.LevelCalls())
	assert.Zero(t, h.session.Snapshot().ElapsedSeconds)
}

func TestStartRecording_NeverAsked(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.session.StartRecording(h.ctx), ErrPermissionDenied)
	assert.Equal(t, PhaseIdle, h.session.Snapshot().Phase)
	assert.Equal(t, []Kind{KindPermissionDenied}, h.advisor.kinds())
}

func TestStartRecording_DeviceFailure(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.session.RequestPermission(h.ctx))
	h.device.StartErr = audiotest.ErrInjected

	err := h.session.StartRecording(h.ctx)
	require.Error(t, err)

	var devErr *audio.DeviceError
	assert.True(t, errors.As(err, &devErr))
	assert.ErrorIs(t, err, audiotest.ErrInjected)

	assert.Equal(t, PhaseIdle, h.session.Snapshot().Phase)
	assert.Equal(t, []Kind{KindDeviceStartFailure}, h.advisor.kinds())

	h.clock.Add(2 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, h.device.LevelCalls())
	assert.Zero(t, h.session.Snapshot().ElapsedSeconds)
}

func TestStartRecording_OnlyFromIdle(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.session.RequestPermission(h.ctx))
	require.NoError(t, h.session.StartRecording(h.ctx))

	assert.ErrorIs(t, h.session.StartRecording(h.ctx), ErrInvalidPhase)
	assert.Equal(t, 1, h.device.CallCount("StartRecording"))

	require.NoError(t, h.session.StopRecording(h.ctx))
	assert.ErrorIs(t, h.session.StartRecording(h.ctx), ErrInvalidPhase)
	assert.Equal(t, PhaseRecorded, h.session.Snapshot().Phase)
}

func TestRecord_ThreeTicks(t *testing.T) {
	h := newHarness(t)

	h.record(t, 3)

	st := h.session.Snapshot()
	assert.Equal(t, PhaseRecorded, st.Phase)
	assert.Equal(t, 3, st.ElapsedSeconds)
	assert.Equal(t, "00:03", st.Elapsed)
	assert.Zero(t, st.InputLevel)
	require.NotNil(t, st.Recording)
	assert.Equal(t, "rec-1", st.Recording.ID)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RecordingsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RecordingsCompleted))
}

func TestRecord_ImmediateStop(t *testing.T) {
	h := newHarness(t)

	h.record(t, 0)

	st := h.session.Snapshot()
	assert.Equal(t, PhaseRecorded, st.Phase)
	assert.Zero(t, st.ElapsedSeconds)
	assert.Zero(t, st.InputLevel)
}

func TestStopRecording_NoPhantomTicks(t *testing.T) {
	h := newHarness(t)
	h.device.SetMetering(-100)

	h.record(t, 2)
	calls := h.device.LevelCalls()

	h.clock.Add(5 * time.Second)
	time.Sleep(10 * time.Millisecond)

	st := h.session.Snapshot()
	assert.Equal(t, 2, st.ElapsedSeconds)
	assert.Zero(t, st.InputLevel)
	assert.Equal(t, calls, h.device.LevelCalls())
}

func TestStopRecording_OnlyWhileRecording(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.session.StopRecording(h.ctx), ErrInvalidPhase)
	assert.Equal(t, PhaseIdle, h.session.Snapshot().Phase)
	assert.Equal(t, 0, h.device.CallCount("StopRecording"))

	h.record(t, 1)
	before := h.session.Snapshot()
	assert.ErrorIs(t, h.session.StopRecording(h.ctx), ErrInvalidPhase)
	assert.Equal(t, before, h.session.Snapshot())
}

func TestStopRecording_FinalizeFailure(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*audiotest.FakeDevice)
		want  error
	}{
		{
			name:  "device error",
			setup: func(d *audiotest.FakeDevice) { d.StopErr = audiotest.ErrInjected },
			want:  audiotest.ErrInjected,
		},
		{
			name:  "no reference",
			setup: func(d *audiotest.FakeDevice) { d.NilRef = true },
			want:  audio.ErrNoRecording,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.device.SetMetering(-120)
			tt.setup(h.device)

			require.NoError(t, h.session.RequestPermission(h.ctx))
			require.NoError(t, h.session.StartRecording(h.ctx))
			h.tick(t)

			err := h.session.StopRecording(h.ctx)
			assert.ErrorIs(t, err, tt.want)

			st := h.session.Snapshot()
			assert.Equal(t, PhaseIdle, st.Phase)
			assert.Zero(t, st.InputLevel)
			assert.Nil(t, st.Recording)
			assert.Equal(t, []Kind{KindDeviceStopFailure}, h.advisor.kinds())
			assert.Zero(t, testutil.ToFloat64(h.metrics.RecordingsCompleted))

			// Session is usable again
			require.NoError(t, h.session.StartRecording(h.ctx))
			assert.Equal(t, PhaseRecording, h.session.Snapshot().Phase)
			assert.Zero(t, h.session.Snapshot().ElapsedSeconds)
		})
	}
}

func TestMeter_NormalizesDeviceLevel(t *testing.T) {
	h := newHarness(t)
	h.device.SetMetering(-130)

	require.NoError(t, h.session.RequestPermission(h.ctx))
	require.NoError(t, h.session.StartRecording(h.ctx))

	h.clock.Add(100 * time.Millisecond)
	require.Eventually(t, func() bool {
		return h.session.Snapshot().InputLevel == 60
	}, waitFor, poll)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.MeterSamples.WithLabelValues("device")))
	assert.Equal(t, 60.0, testutil.ToFloat64(h.metrics.InputLevel))

	require.NoError(t, h.session.StopRecording(h.ctx))
	assert.Zero(t, testutil.ToFloat64(h.metrics.InputLevel))
}

func TestMeter_UnsupportedUsesPlaceholder(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.session.RequestPermission(h.ctx))
	require.NoError(t, h.session.StartRecording(h.ctx))

	for i := 1; i <= 25; i++ {
		h.clock.Add(100 * time.Millisecond)
		want := i
		require.Eventually(t, func() bool {
			return h.device.LevelCalls() >= want
		}, waitFor, poll)

		level := h.session.Snapshot().InputLevel
		if level != 0 {
			assert.GreaterOrEqual(t, level, 20.0)
			assert.LessOrEqual(t, level, 80.0)
		}
	}

	require.Eventually(t, func() bool {
		return h.session.Snapshot().InputLevel != 0
	}, waitFor, poll)
	assert.Empty(t, h.advisor.kinds())
}

func TestMeter_PlaceholderRange(t *testing.T) {
	for _, r := range []float64{0, 0.5, 0.999999} {
		h := newHarness(t, func(o *Options) {
			o.Random = func() float64 { return r }
		})

		require.NoError(t, h.session.RequestPermission(h.ctx))
		require.NoError(t, h.session.StartRecording(h.ctx))
		h.clock.Add(100 * time.Millisecond)

		want := 20 + r*60
		require.Eventually(t, func() bool {
			return h.session.Snapshot().InputLevel == want
		}, waitFor, poll)
		assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.MeterSamples.WithLabelValues("placeholder")))
	}
}

func TestNormalizeLevel(t *testing.T) {
	tests := []struct {
		db   float64
		want float64
	}{
		{-200, 0},
		{-160, 0},
		{-150, 20},
		{-130, 60},
		{-110, 100},
		{-60, 100},
		{0, 100},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeLevel(tt.db), "db=%v", tt.db)
	}
}

func TestPlayWithEffect_OnlyWhenRecorded(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.session.PlayWithEffect(h.ctx, h.chipmunk), ErrInvalidPhase)
	assert.Equal(t, "normal", h.session.Snapshot().SelectedEffect.ID)

	require.NoError(t, h.session.RequestPermission(h.ctx))
	require.NoError(t, h.session.StartRecording(h.ctx))
	assert.ErrorIs(t, h.session.PlayWithEffect(h.ctx, h.chipmunk), ErrInvalidPhase)

	st := h.session.Snapshot()
	assert.Equal(t, PlaybackIdle, st.Playback)
	assert.Equal(t, "normal", st.SelectedEffect.ID)
	assert.Equal(t, 0, h.device.CallCount("Play"))
}

func TestPlayWithEffect_InvalidEffect(t *testing.T) {
	h := newHarness(t)
	h.record(t, 1)

	err := h.session.PlayWithEffect(h.ctx, effects.Effect{ID: "broken", Pitch: 1, Speed: 0})
	assert.ErrorIs(t, err, ErrInvalidEffect)
	assert.Equal(t, PlaybackIdle, h.session.Snapshot().Playback)
	assert.Equal(t, 0, h.device.CallCount("Play"))
}

func TestPlayWithEffect_PassesRateAndPitchCorrection(t *testing.T) {
	h := newHarness(t)
	h.record(t, 2)

	require.NoError(t, h.session.PlayWithEffect(h.ctx, h.chipmunk))

	st := h.session.Snapshot()
	assert.Equal(t, PlaybackPlaying, st.Playback)
	assert.Equal(t, "chipmunk", st.SelectedEffect.ID)

	opts := h.device.PlayOptions()
	require.Len(t, opts, 1)
	assert.Equal(t, 1.5, opts[0].Rate)
	assert.Equal(t, audio.PitchCorrectionHigh, opts[0].PitchCorrection)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Playbacks.WithLabelValues("chipmunk")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.PlaybackActive))
}

func TestPlayWithEffect_EstimatedCompletion(t *testing.T) {
	h := newHarness(t)
	h.record(t, 10)

	fast := effects.Effect{ID: "double", Name: "Double", Pitch: 1, Speed: 2.0}
	require.NoError(t, h.session.PlayWithEffect(h.ctx, fast))

	h.clock.Add(4900 * time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, PlaybackPlaying, h.session.Snapshot().Playback)

	h.clock.Add(100 * time.Millisecond)
	require.Eventually(t, func() bool {
		return h.session.Snapshot().Playback == PlaybackIdle
	}, waitFor, poll)

	// The recording survives playback
	st := h.session.Snapshot()
	assert.Equal(t, PhaseRecorded, st.Phase)
	assert.Equal(t, 10, st.ElapsedSeconds)
	assert.Equal(t, "double", st.SelectedEffect.ID)
	assert.Zero(t, testutil.ToFloat64(h.metrics.PlaybackActive))
}

func TestPlayWithEffect_EstimateIgnoresDeviceCallback(t *testing.T) {
	h := newHarness(t)
	h.record(t, 4)

	require.NoError(t, h.session.PlayWithEffect(h.ctx, h.catalog.Default()))
	h.device.FinishPlayback()
	assert.Equal(t, PlaybackPlaying, h.session.Snapshot().Playback)

	h.clock.Add(4 * time.Second)
	require.Eventually(t, func() bool {
		return h.session.Snapshot().Playback == PlaybackIdle
	}, waitFor, poll)
}

func TestPlayWithEffect_ReplayRearmsTimer(t *testing.T) {
	h := newHarness(t)
	h.record(t, 10)

	normal := h.catalog.Default()
	require.NoError(t, h.session.PlayWithEffect(h.ctx, normal))
	h.clock.Add(5 * time.Second)

	require.NoError(t, h.session.PlayWithEffect(h.ctx, normal))

	// First timer would have fired here
	h.clock.Add(5 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, PlaybackPlaying, h.session.Snapshot().Playback)

	h.clock.Add(5 * time.Second)
	require.Eventually(t, func() bool {
		return h.session.Snapshot().Playback == PlaybackIdle
	}, waitFor, poll)
	assert.Equal(t, 2, h.device.CallCount("Play"))
}

func TestPlayWithEffect_DeviceCompletion(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Completion = CompletionDevice })
	h.record(t, 2)

	require.NoError(t, h.session.PlayWithEffect(h.ctx, h.chipmunk))

	// No estimate timer in device mode
	h.clock.Add(time.Minute)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, PlaybackPlaying, h.session.Snapshot().Playback)

	h.device.FinishPlayback()
	assert.Equal(t, PlaybackIdle, h.session.Snapshot().Playback)
}

func TestPlayWithEffect_StaleDeviceCallback(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Completion = CompletionDevice })
	h.record(t, 2)

	require.NoError(t, h.session.PlayWithEffect(h.ctx, h.chipmunk))
	first := h.device.PlayOptions()[0].OnComplete

	require.NoError(t, h.session.PlayWithEffect(h.ctx, h.catalog.Default()))

	first()
	assert.Equal(t, PlaybackPlaying, h.session.Snapshot().Playback)

	h.device.FinishPlayback()
	assert.Equal(t, PlaybackIdle, h.session.Snapshot().Playback)
}

func TestPlayWithEffect_DeviceFailure(t *testing.T) {
	h := newHarness(t)
	h.record(t, 3)
	h.device.PlayErr = audiotest.ErrInjected

	err := h.session.PlayWithEffect(h.ctx, h.chipmunk)
	assert.ErrorIs(t, err, audiotest.ErrInjected)

	st := h.session.Snapshot()
	assert.Equal(t, PlaybackIdle, st.Playback)
	assert.Equal(t, PhaseRecorded, st.Phase)
	assert.Equal(t, []Kind{KindPlaybackFailure}, h.advisor.kinds())

	// Recovers once the device works again
	h.device.PlayErr = nil
	require.NoError(t, h.session.PlayWithEffect(h.ctx, h.chipmunk))
	assert.Equal(t, PlaybackPlaying, h.session.Snapshot().Playback)
}

func TestStopPlayback(t *testing.T) {
	t.Run("idle is a no-op", func(t *testing.T) {
		h := newHarness(t)
		h.record(t, 1)

		before := h.session.Snapshot()
		require.NoError(t, h.session.StopPlayback(h.ctx))
		require.NoError(t, h.session.StopPlayback(h.ctx))

		assert.Equal(t, before, h.session.Snapshot())
		assert.Equal(t, 0, h.device.CallCount("StopPlayback"))
	})

	t.Run("stops and cancels estimate", func(t *testing.T) {
		h := newHarness(t)
		h.record(t, 4)
		require.NoError(t, h.session.PlayWithEffect(h.ctx, h.catalog.Default()))

		require.NoError(t, h.session.StopPlayback(h.ctx))
		assert.Equal(t, PlaybackIdle, h.session.Snapshot().Playback)
		assert.False(t, h.device.Playing())
		assert.Equal(t, 1, h.device.CallCount("StopPlayback"))

		// A new playback is not ended by the cancelled timer
		h.clock.Add(2 * time.Second)
		require.NoError(t, h.session.PlayWithEffect(h.ctx, h.catalog.Default()))
		h.clock.Add(2 * time.Second)
		time.Sleep(10 * time.Millisecond)
		assert.Equal(t, PlaybackPlaying, h.session.Snapshot().Playback)
	})

	t.Run("device failure is logged only", func(t *testing.T) {
		h := newHarness(t)
		h.record(t, 4)
		require.NoError(t, h.session.PlayWithEffect(h.ctx, h.catalog.Default()))
		h.device.StopPlayErr = audiotest.ErrInjected

		require.NoError(t, h.session.StopPlayback(h.ctx))
		assert.Equal(t, PlaybackIdle, h.session.Snapshot().Playback)
		assert.Empty(t, h.advisor.kinds())
	})
}

func TestReset(t *testing.T) {
	t.Run("restores defaults after playback", func(t *testing.T) {
		h := newHarness(t)
		h.record(t, 3)
		require.NoError(t, h.session.PlayWithEffect(h.ctx, h.chipmunk))

		require.NoError(t, h.session.Reset(h.ctx))

		st := h.session.Snapshot()
		assert.Equal(t, PhaseIdle, st.Phase)
		assert.Equal(t, PlaybackIdle, st.Playback)
		assert.Zero(t, st.ElapsedSeconds)
		assert.Zero(t, st.InputLevel)
		assert.Equal(t, h.catalog.Default(), st.SelectedEffect)
		assert.Nil(t, st.Recording)
		assert.Equal(t, 1, h.device.CallCount("StopPlayback"))
	})

	t.Run("from idle", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.session.Reset(h.ctx))
		assert.Equal(t, h.catalog.Default(), h.session.Snapshot().SelectedEffect)
		assert.Equal(t, 0, h.device.CallCount("StopPlayback"))
	})

	t.Run("refused while recording", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.session.RequestPermission(h.ctx))
		require.NoError(t, h.session.StartRecording(h.ctx))
		h.tick(t)

		assert.ErrorIs(t, h.session.Reset(h.ctx), ErrInvalidPhase)
		st := h.session.Snapshot()
		assert.Equal(t, PhaseRecording, st.Phase)
		assert.Equal(t, 1, st.ElapsedSeconds)
	})

	t.Run("allows a new recording", func(t *testing.T) {
		h := newHarness(t)
		h.record(t, 2)
		require.NoError(t, h.session.Reset(h.ctx))

		require.NoError(t, h.session.StartRecording(h.ctx))
		h.tick(t)
		require.NoError(t, h.session.StopRecording(h.ctx))

		st := h.session.Snapshot()
		assert.Equal(t, 1, st.ElapsedSeconds)
		require.NotNil(t, st.Recording)
		assert.Equal(t, "rec-2", st.Recording.ID)
	})

	t.Run("estimate timer does not outlive reset", func(t *testing.T) {
		h := newHarness(t)
		h.record(t, 2)
		require.NoError(t, h.session.PlayWithEffect(h.ctx, h.catalog.Default()))
		require.NoError(t, h.session.Reset(h.ctx))

		h.record(t, 0)
		require.NoError(t, h.session.PlayWithEffect(h.ctx, h.chipmunk))
		require.NoError(t, h.session.StopPlayback(h.ctx))
		h.clock.Add(5 * time.Second)
		time.Sleep(10 * time.Millisecond)
		assert.Equal(t, PlaybackIdle, h.session.Snapshot().Playback)
	})
}

func TestTeardown(t *testing.T) {
	t.Run("while recording", func(t *testing.T) {
		h := newHarness(t)
		h.device.SetMetering(-100)
		require.NoError(t, h.session.RequestPermission(h.ctx))
		require.NoError(t, h.session.StartRecording(h.ctx))
		h.tick(t)

		require.NoError(t, h.session.Teardown(h.ctx))
		assert.False(t, h.device.Recording())
		assert.Equal(t, 1, h.device.CallCount("ReleaseAll"))

		calls := h.device.LevelCalls()
		h.clock.Add(3 * time.Second)
		time.Sleep(10 * time.Millisecond)
		assert.Equal(t, calls, h.device.LevelCalls())
		assert.Equal(t, 1, h.session.Snapshot().ElapsedSeconds)
		assert.Zero(t, h.session.Snapshot().InputLevel)
	})

	t.Run("while playing", func(t *testing.T) {
		h := newHarness(t)
		h.record(t, 3)
		require.NoError(t, h.session.PlayWithEffect(h.ctx, h.chipmunk))

		require.NoError(t, h.session.Teardown(h.ctx))
		assert.False(t, h.device.Playing())
		assert.Equal(t, PlaybackIdle, h.session.Snapshot().Playback)
	})

	t.Run("idempotent and closes the session", func(t *testing.T) {
		h := newHarness(t)

		require.NoError(t, h.session.Teardown(h.ctx))
		require.NoError(t, h.session.Teardown(h.ctx))
		assert.Equal(t, 1, h.device.CallCount("ReleaseAll"))

		assert.ErrorIs(t, h.session.RequestPermission(h.ctx), ErrClosed)
		assert.ErrorIs(t, h.session.StartRecording(h.ctx), ErrClosed)
		assert.ErrorIs(t, h.session.StopRecording(h.ctx), ErrClosed)
		assert.ErrorIs(t, h.session.PlayWithEffect(h.ctx, h.chipmunk), ErrClosed)
		assert.ErrorIs(t, h.session.StopPlayback(h.ctx), ErrClosed)
		assert.ErrorIs(t, h.session.Reset(h.ctx), ErrClosed)
	})

	t.Run("release failure is reported", func(t *testing.T) {
		h := newHarness(t)
		h.device.ReleaseErr = audiotest.ErrInjected

		assert.ErrorIs(t, h.session.Teardown(h.ctx), audiotest.ErrInjected)
	})
}

func TestAdvisorFunc(t *testing.T) {
	var got []Advisory
	h := newHarness(t, func(o *Options) {
		o.Advisor = AdvisorFunc(func(a Advisory) { got = append(got, a) })
	})
	h.device.SetPermission(false)

	_ = h.session.RequestPermission(h.ctx)

	require.Len(t, got, 1)
	assert.Equal(t, KindPermissionDenied, got[0].Kind)
	assert.NotEmpty(t, got[0].Title)
	assert.NotEmpty(t, got[0].Body)
	assert.Equal(t, h.clock.Now(), got[0].Time)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Advisories.WithLabelValues(string(KindPermissionDenied))))
}

func TestFormatElapsed(t *testing.T) {
	tests := map[int]string{
		-1:   "00:00",
		0:    "00:00",
		9:    "00:09",
		61:   "01:01",
		600:  "10:00",
		3599: "59:59",
		6000: "100:00",
	}

	for seconds, want := range tests {
		assert.Equal(t, want, FormatElapsed(seconds), "seconds=%d", seconds)
	}
}
