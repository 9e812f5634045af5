package main

import (
	"errors"
	"fmt"

	"github.com/aretw0/parley/internal/validator"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file...]",
	Short: "Check vignettes for errors and authoring problems",
	Long: `Loads every vignette of the library, or the given files, and reports schema
and structural errors plus unreachable phases, conversations that can never
end and triggers shadowed by earlier ones.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			results []validator.Result
			err     error
		)
		if len(args) > 0 {
			results, err = validator.ValidateFiles(cmd.Context(), args)
		} else {
			app, perr := newParley()
			if perr != nil {
				return perr
			}
			results, err = validator.ValidateLibrary(cmd.Context(), app.Loader())
		}
		if err != nil {
			return err
		}

		failed := 0
		for _, r := range results {
			if r.OK() {
				fmt.Fprintf(cmd.OutOrStdout(), "ok    %s\n", r.VignetteID)
				continue
			}
			failed++
			fmt.Fprintf(cmd.OutOrStdout(), "FAIL  %s\n", r.VignetteID)
			if r.Err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "      %v\n", r.Err)
			}
			for _, f := range r.Findings {
				fmt.Fprintf(cmd.OutOrStdout(), "      %s\n", f)
			}
		}
		if failed > 0 {
			return fmt.Errorf("validation failed for %d of %d vignettes", failed, len(results))
		}
		if len(results) == 0 {
			return errors.New("no vignettes found")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "All %d vignettes are valid!\n", len(results))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
