package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var (
		sessionID string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List finished runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			if a.History == nil {
				return fmt.Errorf("run history is disabled (HISTORY_DB_PATH is empty)")
			}
			runs, err := a.History.List(cmd.Context(), sessionID, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tFINISHED\tSESSION\tTASK\tSTATUS\tRETRIES\tINPUT")
			for _, r := range runs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
					r.ID, r.FinishedAt.Format(time.DateTime), r.SessionID, orDash(r.TaskType),
					r.Status, r.RetryCount, shorten(r.UserInput, 50))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "only runs of this session")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func shorten(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
