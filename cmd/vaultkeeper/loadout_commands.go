package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"vaultkeeper/internal/api"
	"vaultkeeper/internal/engine"
	"vaultkeeper/internal/ipc"
	"vaultkeeper/internal/loadout"
)

func newLoadoutCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loadout",
		Short: "Equip or validate YAML loadouts",
	}
	cmd.AddCommand(newLoadoutRunCommand(ctx, "equip", "Equip a loadout on a character", false))
	cmd.AddCommand(newLoadoutRunCommand(ctx, "validate", "Resolve a loadout without changing anything", true))
	return cmd
}

func newLoadoutRunCommand(ctx *commandContext, use, short string, validateOnly bool) *cobra.Command {
	var characterID string
	var noProgress bool
	cmd := &cobra.Command{
		Use:   use + " <file|->",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readLoadoutFile(cmd, args[0])
			if err != nil {
				return err
			}
			// Parse locally so bad YAML fails before touching the daemon.
			def, err := loadout.ParseBytes(raw)
			if err != nil {
				return err
			}
			req := api.LoadoutRequest{
				Definition:   string(raw),
				CharacterID:  strings.TrimSpace(characterID),
				ValidateOnly: validateOnly,
			}
			out := cmd.OutOrStdout()
			live := !validateOnly && !noProgress && !ctx.jsonOutput() && isTerminal(out)

			return ctx.withClient(func(client *ipc.Client) error {
				var stop func()
				if live {
					stop = ctx.followProgress(client, out, def.Name)
				}
				resp, err := client.Loadout(req)
				if stop != nil {
					stop()
				}
				if resp == nil {
					return err
				}
				return emit(cmd, ctx, resp.LoadoutResponse, err, func(w io.Writer) {
					renderLoadout(w, resp.LoadoutResponse, validateOnly)
				})
			})
		},
	}
	cmd.Flags().StringVarP(&characterID, "character", "C", "", "Character id to equip on (required)")
	_ = cmd.MarkFlagRequired("character")
	if !validateOnly {
		cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Do not show live progress")
	}
	return cmd
}

func readLoadoutFile(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read loadout: %w", err)
	}
	return raw, nil
}

// followProgress prints progress events for the named loadout from a second
// connection until the returned stop func is called.
func (c *commandContext) followProgress(main *ipc.Client, w io.Writer, name string) func() {
	status, err := main.Status()
	if err != nil {
		return nil
	}
	events, err := c.dialClient()
	if err != nil {
		return nil
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer events.Close()
		since := status.LastEvent
		printed := false
		for {
			select {
			case <-done:
				if printed {
					fmt.Fprintln(w)
				}
				return
			default:
			}
			resp, err := events.Events(since, 100, 250*time.Millisecond)
			if err != nil {
				return
			}
			for _, evt := range resp.Events {
				if evt.Type != engine.EventProgress || evt.Progress == nil || evt.Progress.Loadout != name {
					continue
				}
				fmt.Fprintf(w, "\r\033[K[%3.0f%%] %s", evt.Progress.Percent, evt.Progress.Step)
				printed = true
			}
			since = resp.Next
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func renderLoadout(w io.Writer, resp api.LoadoutResponse, validateOnly bool) {
	rows := make([][]string, 0, len(resp.Equipped)+len(resp.Failed)+len(resp.Missing)+len(resp.Resolved))
	if validateOnly {
		for _, r := range resp.Resolved {
			rows = append(rows, []string{r.Component, "found", r.InstanceID + " @ " + r.Location})
		}
	} else {
		for _, name := range resp.Equipped {
			rows = append(rows, []string{name, "equipped", ""})
		}
	}
	for _, f := range resp.Failed {
		rows = append(rows, []string{f.Component, "failed (" + f.Phase + ")", f.Reason})
	}
	for _, name := range resp.Missing {
		rows = append(rows, []string{name, "missing", "not in any location"})
	}
	if len(rows) > 0 {
		fmt.Fprintln(w, renderTable([]string{"Component", "Result", "Detail"}, rows, nil))
	}

	verdict := "complete"
	switch {
	case validateOnly && resp.Success:
		verdict = "all components found"
	case validateOnly:
		verdict = "cannot be equipped as written"
	case !resp.Success:
		verdict = "incomplete"
	}
	fmt.Fprintf(w, "Loadout %q on %s: %s\n", resp.Loadout, resp.CharacterID, verdict)
}
