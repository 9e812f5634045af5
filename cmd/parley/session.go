package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/aretw0/parley/internal/config"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage stored sessions",
	Long:  `List, inspect, and remove sessions kept in the configured store (file, redis or sqlite).`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := sessionStore()
		if err != nil {
			return err
		}
		defer store.Close()
		out := cmd.OutOrStdout()

		if vignetteID, _ := cmd.Flags().GetString("vignette"); vignetteID != "" {
			if store.archive == nil {
				return errors.New("--vignette needs the sqlite store")
			}
			sums, err := store.archive.ListByVignette(cmd.Context(), vignetteID)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tUSER\tPHASE\tMOOD\tENDED\tUPDATED")
			for _, s := range sums {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.1f\t%t\t%s\n", s.SessionID, s.UserID, s.CurrentPhase, s.Mood, s.Ended, s.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		}

		sessions, err := store.store.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("error listing sessions: %w", err)
		}
		if len(sessions) == 0 {
			fmt.Fprintln(out, "No stored sessions found.")
			return nil
		}
		fmt.Fprintln(out, "Stored Sessions:")
		for _, s := range sessions {
			fmt.Fprintln(out, "- "+s)
		}
		return nil
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <session-id>",
	Short: "Print the snapshot of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := sessionStore()
		if err != nil {
			return err
		}
		defer store.Close()

		state, err := store.store.Load(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("error loading session '%s': %w", args[0], err)
		}
		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return fmt.Errorf("error marshaling state: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <session-id>...",
	Short: "Remove one or more sessions",
	Args: func(cmd *cobra.Command, args []string) error {
		if all, _ := cmd.Flags().GetBool("all"); all {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.MinimumNArgs(1)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := sessionStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if all, _ := cmd.Flags().GetBool("all"); all {
			if args, err = store.store.List(cmd.Context()); err != nil {
				return err
			}
		}

		var errs []error
		for _, sessionID := range args {
			if err := store.store.Delete(cmd.Context(), sessionID); err != nil {
				errs = append(errs, fmt.Errorf("error removing '%s': %w", sessionID, err))
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed session '%s'\n", sessionID)
		}
		return errors.Join(errs...)
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionRmCmd)

	sessionLsCmd.Flags().String("vignette", "", "Summarize the sessions of one vignette (sqlite store)")
	sessionRmCmd.Flags().Bool("all", false, "Remove every stored session")
}

// sessionStore opens the configured store. The in-memory store has nothing
// to manage from a separate process, so session files are used instead.
func sessionStore() (*backend, error) {
	kind := cfg.Store
	if kind == config.StoreMemory {
		kind = config.StoreFile
	}
	return openStore(cfg, kind)
}
