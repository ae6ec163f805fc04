// Package play implements the playback half of the audio device: it plays a
// finished recording at an adjusted rate and reports natural completion.
package play

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/audiolibrelab/voicechanger/internal/audio"
	"github.com/audiolibrelab/voicechanger/internal/config"
)

// New creates the player selected in the configuration
func New(cfg *config.Config) (audio.Player, error) {
	name := strings.ToLower(cfg.Audio.Player)
	if name == "" || name == "auto" {
		name = findAudioPlayer()
	}

	switch name {
	case "ffplay":
		return NewFFplayPlayer(cfg.Audio.SampleRate), nil
	case "beep":
		return NewBeepPlayer(cfg.Audio.SampleRate), nil
	default:
		return nil, fmt.Errorf("unsupported player: %s", name)
	}
}

// findAudioPlayer prefers ffplay and falls back to native playback
func findAudioPlayer() string {
	if _, err := exec.LookPath("ffplay"); err == nil {
		return "ffplay"
	}
	slog.Debug("ffplay not found, using native playback")
	return "beep"
}
