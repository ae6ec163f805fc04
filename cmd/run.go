package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/audiolibrelab/voicechanger/internal/effects"
	"github.com/audiolibrelab/voicechanger/internal/session"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Record a take, then play it back with each effect",
	Long: `Record once, then audition the take with every effect of the catalog in
order (or only those given with --effects). Ctrl+C during a playback skips
the remaining effects.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		duration, _ := cmd.Flags().GetDuration("duration")
		ids, _ := cmd.Flags().GetStringSlice("effects")

		sess, err := newSession(terminalAdvisor{out: os.Stderr}, nil, session.CompletionDevice)
		if err != nil {
			return err
		}
		defer teardown(sess)

		selected, err := selectEffects(sess.Catalog(), ids)
		if err != nil {
			return err
		}

		st, err := recordTake(cmd.Context(), sess, duration)
		if err != nil {
			return fmt.Errorf("recording failed: %w", err)
		}
		fmt.Printf("Recorded %s, playing %d effect(s)\n", session.FormatElapsed(st.ElapsedSeconds), len(selected))

		for i, effect := range selected {
			fmt.Printf("[%d/%d] ", i+1, len(selected))
			err := audition(cmd.Context(), sess, effect)
			if errors.Is(err, context.Canceled) {
				fmt.Println("Stopped")
				return nil
			}
			if err != nil {
				return fmt.Errorf("playback with %s failed: %w", effect.ID, err)
			}
		}

		return nil
	},
}

// selectEffects resolves ids against the catalog, all effects when ids is empty
func selectEffects(catalog *effects.Catalog, ids []string) ([]effects.Effect, error) {
	if len(ids) == 0 {
		return catalog.All(), nil
	}

	selected := make([]effects.Effect, 0, len(ids))
	for _, id := range ids {
		effect, ok := catalog.Lookup(strings.TrimSpace(id))
		if !ok {
			return nil, fmt.Errorf("unknown effect '%s' (available: %s)", id, strings.Join(catalog.IDs(), ", "))
		}
		selected = append(selected, effect)
	}
	return selected, nil
}

func init() {
	runCmd.Flags().DurationP("duration", "d", 0, "stop recording automatically after this duration")
	runCmd.Flags().StringSliceP("effects", "e", nil, "effects to play, in order (default: all)")
}
