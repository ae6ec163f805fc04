package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var effectsCmd = &cobra.Command{
	Use:   "effects",
	Short: "List the available voice effects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := cfg.Catalog()
		if err != nil {
			return fmt.Errorf("invalid effect catalog: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tPITCH\tSPEED\tDESCRIPTION")
		for _, e := range catalog.All() {
			fmt.Fprintf(w, "%s\t%s %s\t%.2f\t%.2f\t%s\n", e.ID, effectIcon(e), e.Name, e.Pitch, e.Speed, e.Description)
		}
		return w.Flush()
	},
}
