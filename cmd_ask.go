package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"astro_insight/internal/storage"
	"astro_insight/pkg"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
)

func newAskCommand(opts *rootOptions) *cobra.Command {
	var (
		sessionID  string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Send one message and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			a, err := opts.newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			message := strings.Join(args, " ")
			var snap *pkg.SessionSnapshot
			if sessionID != "" {
				snap, err = a.Registry.Continue(ctx, sessionID, message)
			} else {
				snap, err = a.Registry.CreateOrContinue(ctx, "", message)
			}
			if errors.Is(err, storage.ErrSessionNotFound) && !a.PersistentSessions {
				return fmt.Errorf("session %s not found: sessions are kept in memory, set REDIS_URL to continue them across commands", sessionID)
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				data, err := sonic.ConfigStd.MarshalIndent(snap, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}
			printSnapshot(snap)
			switch {
			case snap.AwaitingChoice && a.PersistentSessions:
				fmt.Printf("Reply with: astro ask --session %s <message>\n", snap.SessionID)
			case snap.AwaitingChoice:
				fmt.Println("This session is kept in memory only; use \"astro chat\" to answer follow-up questions.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "continue this session id")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the session snapshot as JSON")
	return cmd
}
