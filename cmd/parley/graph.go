package main

import (
	"fmt"

	"github.com/aretw0/parley/internal/presentation/graph"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <vignette-id>",
	Short: "Export the phase graph of a vignette",
	Long: `Outputs a Mermaid diagram (graph TD) of the phases and branch triggers of a
vignette. With --session the current and visited phases of a stored
conversation are highlighted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newParley()
		if err != nil {
			return err
		}
		v, err := app.Vignette(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		var overlay *graph.Overlay
		if sessionID, _ := cmd.Flags().GetString("session"); sessionID != "" {
			store, err := sessionStore()
			if err != nil {
				return err
			}
			defer store.Close()
			state, err := store.store.Load(cmd.Context(), sessionID)
			if err != nil {
				return fmt.Errorf("load session %q: %w", sessionID, err)
			}
			overlay = graph.OverlayFrom(state)
		}

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(v, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringP("session", "s", "", "Highlight the progress of a stored session")
}
