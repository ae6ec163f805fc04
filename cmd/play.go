package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/audiolibrelab/voicechanger/internal/audio"
	"github.com/audiolibrelab/voicechanger/internal/play"

	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play [file.wav]",
	Short: "Play a previous recording with an effect",
	Long: `Play a WAV file from an earlier take with the selected effect.
A relative name is looked up in the output directory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		effectID, _ := cmd.Flags().GetString("effect")

		catalog, err := cfg.Catalog()
		if err != nil {
			return fmt.Errorf("invalid effect catalog: %w", err)
		}
		effect, ok := catalog.Lookup(effectID)
		if !ok {
			return fmt.Errorf("unknown effect '%s'", effectID)
		}

		path := args[0]
		if !filepath.IsAbs(path) {
			if _, err := os.Stat(path); err != nil {
				path = filepath.Join(cfg.Output.Directory, path)
			}
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("recording not found: %w", err)
		}

		player, err := play.New(cfg)
		if err != nil {
			return fmt.Errorf("failed to create player: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		done := make(chan struct{})
		ref := &audio.RecordingRef{ID: filepath.Base(path), Path: path}
		err = player.Play(ctx, ref, audio.PlayOptions{
			Rate:            effect.Speed,
			PitchCorrection: audio.PitchCorrectionHigh,
			OnComplete:      func() { close(done) },
		})
		if err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}

		fmt.Printf("%s Playing %s with %s effect\n", effectIcon(effect), filepath.Base(path), effect.Name)

		select {
		case <-done:
		case <-ctx.Done():
			if err := player.Stop(context.Background()); err != nil {
				return fmt.Errorf("failed to stop playback: %w", err)
			}
		}
		return nil
	},
}

func init() {
	playCmd.Flags().StringP("effect", "e", "normal", "effect to apply")
}
