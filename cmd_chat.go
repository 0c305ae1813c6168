package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"astro_insight/pkg"

	"github.com/spf13/cobra"
)

func newChatCommand(opts *rootOptions) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive session on stdin",
		Long: `Start an interactive session.

Each line is one message. Type /new to start a fresh session and /exit to leave.
While a visualization is being clarified, "done" runs it and "quit" cancels it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			a, err := opts.newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			scanner := bufio.NewScanner(os.Stdin)
			scanner.Buffer(make([]byte, 64*1024), 1024*1024)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					fmt.Println()
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				switch line {
				case "/exit":
					return nil
				case "/new":
					sessionID = ""
					fmt.Println("Started a new session.")
					continue
				}

				var snap *pkg.SessionSnapshot
				if sessionID != "" {
					snap, err = a.Registry.Continue(ctx, sessionID, line)
				} else {
					snap, err = a.Registry.CreateOrContinue(ctx, "", line)
				}
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
					continue
				}
				sessionID = snap.SessionID
				printSnapshot(snap)
			}
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "resume an existing session id")
	return cmd
}
