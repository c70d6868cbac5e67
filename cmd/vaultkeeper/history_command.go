package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"vaultkeeper/internal/api"
	"vaultkeeper/internal/ipc"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var q api.HistoryQuery
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List journaled operations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.History(q)
				if resp == nil {
					return err
				}
				return emit(cmd, ctx, resp.Entries, err, func(w io.Writer) {
					renderHistory(w, resp.Entries)
				})
			})
		},
	}
	cmd.Flags().StringVar(&q.Kind, "kind", "", "Only this kind (transfer, socket, lock, loadout, resync)")
	cmd.Flags().StringVar(&q.Status, "status", "", "Only this status (pending, succeeded, failed)")
	cmd.Flags().StringVar(&q.InstanceID, "instance", "", "Only operations on this instance")
	cmd.Flags().IntVarP(&q.Limit, "limit", "n", 20, "Maximum rows")
	return cmd
}

func renderHistory(w io.Writer, entries []api.HistoryEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No operations recorded")
		return
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		outcome := e.Status
		if e.ErrorKind != "" {
			outcome += " (" + e.ErrorKind + ")"
		}
		rows = append(rows, []string{
			e.CreatedAt,
			e.Kind,
			orDash(e.InstanceID),
			orDash(e.Target),
			outcome,
			strconv.FormatInt(e.DurationMS, 10) + "ms",
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"When", "Kind", "Instance", "Target", "Outcome", "Took"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	))
}
