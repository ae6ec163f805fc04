package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/audiolibrelab/voicechanger/internal/session"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a take from the microphone",
	Long: `Record from the configured PipeWire source until Ctrl+C (or --duration).
The take is saved as a WAV file in the output directory.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		duration, _ := cmd.Flags().GetDuration("duration")

		sess, err := newSession(terminalAdvisor{out: os.Stderr}, nil, session.CompletionMode(cfg.Session.PlaybackCompletion))
		if err != nil {
			return err
		}
		defer teardown(sess)

		slog.Info("Record command started", "source", cfg.Audio.Source, "output", cfg.Output.Directory)

		st, err := recordTake(cmd.Context(), sess, duration)
		if err != nil {
			return fmt.Errorf("recording failed: %w", err)
		}

		fmt.Printf("Saved %s (%s)\n", st.Recording.Path, session.FormatElapsed(st.ElapsedSeconds))
		return nil
	},
}

func init() {
	recordCmd.Flags().DurationP("duration", "d", 0, "stop automatically after this duration")
}
