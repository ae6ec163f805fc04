package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/audiolibrelab/voicechanger/internal/config"

	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	configPath   string
	profile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "voicechanger",
	Short: "Record your voice and play it back with fun effects",
	Long: `VoiceChanger records a short take from the microphone and replays it
with a pitch/speed effect such as chipmunk, deep, robot, fast or slow.

Recording uses PipeWire (pw-record); playback uses ffplay when available
and falls back to native playback otherwise. The same session can be
driven remotely with 'voicechanger serve'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Configure slog based on verbose level
		setupLogging(verboseLevel)

		configPath = cfgFile
		if configPath == "" {
			configPath = os.ExpandEnv("$HOME/.config/voicechanger.yaml")
		}

		// The default file is optional, an explicit --config is not
		loadPath := configPath
		if cfgFile == "" {
			if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
				slog.Debug("No config file, using defaults", "path", configPath)
				loadPath = ""
			}
		}

		var err error
		cfg, err = config.LoadWithProfile(loadPath, profile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		slog.Debug("Configuration loaded", "file", loadPath, "profile", cfg.Profile)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/voicechanger.yaml)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_profile from file)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug, 2=tool output, 3=max tracing")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(effectsCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	var slogLevel slog.Level
	switch level {
	case 0:
		slogLevel = slog.LevelInfo
	case 1, 2, 3:
		slogLevel = slog.LevelDebug
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(os.Stderr, opts)
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// Set environment variables for maximum tracing (level 3)
	if level >= 3 {
		os.Setenv("PIPEWIRE_DEBUG", "3")
	}
}

// toolOutput is where pw-record and ffplay write their own output
func toolOutput() io.Writer {
	if verboseLevel >= 2 {
		return os.Stderr
	}
	return io.Discard
}
