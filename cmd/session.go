package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	"unicode"

	"github.com/audiolibrelab/voicechanger/internal/audio"
	"github.com/audiolibrelab/voicechanger/internal/effects"
	"github.com/audiolibrelab/voicechanger/internal/metrics"
	"github.com/audiolibrelab/voicechanger/internal/play"
	"github.com/audiolibrelab/voicechanger/internal/session"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	levelBarWidth   = 20
	playbackPollGap = 50 * time.Millisecond
)

// newSession wires the configured player and device into a session.
// reg may be nil when metrics are not exposed.
func newSession(advisor session.Advisor, reg prometheus.Registerer, completion session.CompletionMode) (*session.Session, error) {
	player, err := play.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create player: %w", err)
	}

	device, err := audio.NewDevice(cfg, player, toolOutput())
	if err != nil {
		return nil, fmt.Errorf("failed to create audio device: %w", err)
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, fmt.Errorf("invalid effect catalog: %w", err)
	}

	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}

	slog.Debug("Session created", "player", player.Name(), "backend", cfg.Audio.Backend,
		"completion", completion)

	return session.New(device, catalog, session.Options{
		Advisor:         advisor,
		Logger:          slog.Default(),
		Metrics:         m,
		ElapsedInterval: cfg.Session.ElapsedInterval,
		MeterInterval:   cfg.Session.MeterInterval,
		Completion:      completion,
	}), nil
}

func teardown(sess *session.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Audio.StopTimeout)
	defer cancel()
	if err := sess.Teardown(ctx); err != nil {
		slog.Error("Teardown failed", "error", err)
	}
}

// terminalAdvisor prints advisories for the interactive commands
type terminalAdvisor struct {
	out io.Writer
}

func (a terminalAdvisor) Advise(adv session.Advisory) {
	fmt.Fprintf(a.out, "\n⚠️  %s: %s\n", adv.Title, adv.Body)
}

// recordTake records until interrupted (or for maxDuration when positive)
// and returns the finished state.
func recordTake(ctx context.Context, sess *session.Session, maxDuration time.Duration) (session.State, error) {
	if err := sess.RequestPermission(ctx); err != nil {
		return session.State{}, err
	}

	recCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if maxDuration > 0 {
		var cancel context.CancelFunc
		recCtx, cancel = context.WithTimeout(recCtx, maxDuration)
		defer cancel()
	}

	if err := sess.StartRecording(recCtx); err != nil {
		return session.State{}, err
	}

	fmt.Fprintln(os.Stderr, "🎙  Recording... Press Ctrl+C to stop")
	showProgress(recCtx, sess)

	// recCtx is done, finalize on a fresh context
	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Audio.StopTimeout+time.Second)
	defer cancel()
	if err := sess.StopRecording(stopCtx); err != nil {
		return session.State{}, err
	}

	return sess.Snapshot(), nil
}

// showProgress redraws the elapsed time and input level until ctx is done
func showProgress(ctx context.Context, sess *session.Session) {
	ticker := time.NewTicker(sess.MeterInterval())
	defer ticker.Stop()

	for {
		st := sess.Snapshot()
		fmt.Fprintf(os.Stderr, "\r● REC %s %s", st.Elapsed, levelBar(st.InputLevel, levelBarWidth))

		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr)
			return
		case <-ticker.C:
		}
	}
}

// levelBar renders a level in [0,100] as a fixed-width bar
func levelBar(level float64, width int) string {
	filled := int(level / 100 * float64(width))
	filled = max(0, min(width, filled))
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

// audition plays the recording with effect and waits for the playback to
// finish. Interrupting stops the playback. The session must use device
// completion, otherwise the estimate ends the wait while the player still
// runs and the next effect cuts it off.
func audition(ctx context.Context, sess *session.Session, effect effects.Effect) error {
	playCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sess.PlayWithEffect(playCtx, effect); err != nil {
		return err
	}

	fmt.Printf("%s %s: %s\n", effectIcon(effect), effect.Name, effect.Description)

	ticker := time.NewTicker(playbackPollGap)
	defer ticker.Stop()

	for sess.Snapshot().Playback == session.PlaybackPlaying {
		select {
		case <-playCtx.Done():
			if err := sess.StopPlayback(context.Background()); err != nil {
				slog.Warn("Failed to stop playback", "error", err)
			}
			return playCtx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// iconEmoji maps catalog icon names to terminal glyphs
var iconEmoji = map[string]string{
	"person":     "🙂",
	"arrow-up":   "🐿",
	"arrow-down": "🐻",
	"settings":   "🤖",
	"flash":      "⚡",
	"hourglass":  "🐢",
	"mic":        "🎙",
	"musical":    "🎵",
	"star":       "⭐",
	"heart":      "❤️",
}

// effectIcon renders effect.Icon. Names not in iconEmoji that are not plain
// ASCII are taken as a glyph already.
func effectIcon(effect effects.Effect) string {
	name := strings.ToLower(strings.TrimSpace(effect.Icon))
	if icon, ok := iconEmoji[name]; ok {
		return icon
	}
	for _, r := range name {
		if r > unicode.MaxASCII {
			return strings.TrimSpace(effect.Icon)
		}
	}
	return "🎵"
}
