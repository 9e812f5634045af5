package main

import (
	"os"

	"github.com/aretw0/parley/internal/cli"
	"github.com/aretw0/parley/internal/presentation/tui"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var chatCmd = &cobra.Command{
	Use:   "chat [vignette-id]",
	Short: "Rehearse a conversation in the terminal",
	Long: `Plays a vignette interactively. The persona speaks first, then every line
you type is one turn. Type /retry when the persona failed to answer and
exit to leave.

With --session the transcript is stored and resumed on the next run.
With --watch the vignette is reloaded whenever its file changes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := cli.Options{}
		opts.VignetteID, _ = cmd.Flags().GetString("vignette")
		if opts.VignetteID == "" && len(args) > 0 {
			opts.VignetteID = args[0]
		}
		opts.Difficulty, _ = cmd.Flags().GetString("difficulty")
		opts.Model, _ = cmd.Flags().GetString("model")
		opts.UserID, _ = cmd.Flags().GetString("user")
		opts.SessionID, _ = cmd.Flags().GetString("session")
		opts.Fresh, _ = cmd.Flags().GetBool("fresh")
		opts.Watch, _ = cmd.Flags().GetBool("watch")
		opts.Debug, _ = cmd.Flags().GetBool("debug")

		chatLogger := cli.Logger(opts.Debug)
		var hooks []domain.LifecycleHooks
		if opts.Debug {
			hooks = append(hooks, cli.DebugHooks(chatLogger))
		}
		logger = chatLogger
		app, err := newParley(hooks...)
		if err != nil {
			return err
		}

		chat := &cli.Chat{
			Parley: app,
			Input:  os.Stdin,
			Output: os.Stdout,
			Logger: chatLogger,
		}
		if term.IsTerminal(int(os.Stdout.Fd())) {
			chat.Banner = tui.PrintBanner
			chat.Renderer = tui.NewRenderer()
		}

		if opts.SessionID != "" || opts.Watch {
			store, err := sessionStore()
			if err != nil {
				return err
			}
			defer store.Close()
			chat.Store = store.store
		}

		return chat.Execute(cmd.Context(), opts)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringP("vignette", "v", "", "Vignette id (optional when the library holds one)")
	chatCmd.Flags().StringP("difficulty", "l", "", "Difficulty level (beginner, intermediate, advanced)")
	chatCmd.Flags().String("user", "", "Trainee id stored with the session")
	chatCmd.Flags().StringP("session", "s", "", "Session id to store and resume")
	chatCmd.Flags().Bool("fresh", false, "Discard the stored session before starting")
	chatCmd.Flags().BoolP("watch", "w", false, "Reload the vignette when its file changes")
	chatCmd.Flags().Bool("debug", false, "Log engine events to stderr")
}
