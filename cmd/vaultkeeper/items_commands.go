package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"vaultkeeper/internal/api"
	"vaultkeeper/internal/ipc"
)

func newItemsCommand(ctx *commandContext) *cobra.Command {
	var q api.ItemsQuery
	cmd := &cobra.Command{
		Use:   "items",
		Short: "List stored items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Items(q)
				if resp == nil {
					return err
				}
				return emit(cmd, ctx, resp.ItemsResponse, err, func(w io.Writer) {
					renderItems(w, resp.ItemsResponse)
				})
			})
		},
	}
	cmd.Flags().StringVarP(&q.Location, "location", "l", "", "Only this location (vault, inventory:<id>, equipped:<id>)")
	cmd.Flags().StringVarP(&q.Name, "name", "n", "", "Case-insensitive name substring")
	cmd.Flags().Uint32Var(&q.ItemHash, "hash", 0, "Only this item hash")
	cmd.Flags().BoolVar(&q.InFlight, "in-flight", false, "Only items with a transfer in progress")
	cmd.AddCommand(newItemShowCommand(ctx))
	return cmd
}

func newItemShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <instance-id>",
		Short: "Show one item with its sockets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Item(args[0])
				if resp == nil {
					return err
				}
				return emit(cmd, ctx, resp.Item, err, func(w io.Writer) {
					if err == nil {
						renderItemDetail(w, resp.Item)
					}
				})
			})
		},
	}
}

func renderItems(w io.Writer, resp api.ItemsResponse) {
	if len(resp.Items) == 0 {
		fmt.Fprintln(w, "No items")
		return
	}
	rows := make([][]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		location := item.Location
		if item.InFlight {
			location += " -> " + item.InFlightTarget
		}
		rows = append(rows, []string{
			orDash(item.InstanceID),
			orDash(item.Name),
			orDash(item.ItemType),
			strconv.Itoa(item.Quantity),
			powerLabel(item.Power),
			yesNo(item.Locked),
			location,
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"Instance", "Name", "Type", "Qty", "Power", "Locked", "Location"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	))
	fmt.Fprintf(w, "%d items, store version %d\n", len(resp.Items), resp.Version)
}

func renderItemDetail(w io.Writer, item api.ItemDetail) {
	printKV(w, [][2]string{
		{"Instance", item.InstanceID},
		{"Name", orDash(item.Name)},
		{"Hash", strconv.FormatUint(uint64(item.ItemHash), 10)},
		{"Type", orDash(item.ItemType)},
		{"Location", item.Location},
		{"Power", powerLabel(item.Power)},
		{"Locked", yesNo(item.Locked)},
	})
	if len(item.Sockets) == 0 {
		return
	}
	rows := make([][]string, 0, len(item.Sockets))
	for _, s := range item.Sockets {
		rows = append(rows, []string{
			strconv.Itoa(s.Index),
			orDash(s.Category),
			orDash(s.PlugName),
			strconv.FormatUint(uint64(s.PlugHash), 10),
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"Socket", "Category", "Plug", "Hash"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight},
	))
}

func powerLabel(power int) string {
	if power == 0 {
		return "-"
	}
	return strconv.Itoa(power)
}
