package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/audiolibrelab/voicechanger/internal/audio"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available audio sources",
	Long:  `List the audio backends and all PipeWire ports that can be used as audio.source, and check the configured one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("🔌 Backends: %s\n", backendList(cfg.Audio.Backend))

		pw := audio.NewPipeWire()

		sources, err := pw.ListPorts(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get PipeWire sources: %w", err)
		}

		fmt.Printf("🎵 Audio Sources (%s)\n", runtime.GOOS)
		fmt.Printf("═══════════════════════════════════════\n\n")

		fmt.Printf("📋 PIPEWIRE/JACK SOURCES (%d found):\n", len(sources))
		for i, source := range sources {
			fmt.Printf("  %d. %s\n", i+1, source)
		}

		fmt.Printf("\n🎙  Configured source: ")
		if cfg.Audio.Source == "" {
			fmt.Printf("default input\n")
		} else if err := pw.ValidatePort(cmd.Context(), cfg.Audio.Source); err != nil {
			fmt.Printf("%s ❌ %v\n", cfg.Audio.Source, err)
		} else {
			fmt.Printf("%s ✅\n", cfg.Audio.Source)
		}

		fmt.Printf("\n💡 PipeWire Usage:\n")
		fmt.Printf("  • Format: \"Device: Audio (hw:X,Y):Z\" or \"Application:port\"\n")
		fmt.Printf("  • Example: \"Scarlett 2i2 USB: Audio (hw:1,0):capture_FL\"\n")
		fmt.Printf("  • Configure in audio.source, leave empty for the default input\n\n")

		return nil
	},
}

// backendList renders the available backends, marking the configured one
func backendList(configured string) string {
	if configured == "" {
		configured = string(audio.BackendTypeAuto)
	}

	names := []string{string(audio.BackendTypeAuto)}
	for _, b := range audio.GetAvailableBackends() {
		names = append(names, string(b))
	}
	for i, name := range names {
		if strings.EqualFold(name, configured) {
			names[i] = name + " (selected)"
		}
	}
	return strings.Join(names, ", ")
}
