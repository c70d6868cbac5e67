package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vaultkeeper/internal/api"
	"vaultkeeper/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, store, and sync status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Status()
				if err != nil {
					return err
				}
				return emit(cmd, ctx, resp.DaemonStatus, nil, func(w io.Writer) {
					renderStatus(w, resp.DaemonStatus)
				})
			})
		},
	}
}

func renderStatus(w io.Writer, status api.DaemonStatus) {
	printKV(w, [][2]string{
		{"Daemon", runningLabel(status.Running) + " (pid " + strconv.Itoa(status.PID) + ")"},
		{"Store version", strconv.FormatUint(status.StoreVersion, 10)},
		{"Snapshot time", orDash(status.Guard)},
		{"Characters", strconv.Itoa(status.Characters)},
		{"Items", strconv.Itoa(status.Items)},
		{"In flight", strconv.Itoa(status.InFlight)},
		{"Definitions", strconv.Itoa(status.Definitions)},
		{"Last sync", orDash(status.Sync.LastSuccess) + " " + orDash(status.Sync.LastResult)},
		{"Sync failures", strconv.Itoa(status.Sync.ConsecutiveFailures)},
		{"Last sync error", orDash(status.Sync.LastError)},
		{"Journal", journalSummary(status.Journal)},
	})
}

func runningLabel(running bool) string {
	if running {
		return "running"
	}
	return "stopped"
}

func journalSummary(stats map[string]int) string {
	if len(stats) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, stats[k])
	}
	return strings.Join(parts, " ")
}
