package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"vaultkeeper/internal/api"
	"vaultkeeper/internal/ipc"
)

func newTransferCommand(ctx *commandContext) *cobra.Command {
	var req api.TransferRequest
	cmd := &cobra.Command{
		Use:   "transfer <instance-id> <target>",
		Short: "Move an item to the vault or a character",
		Long: "Move an item. Target is vault, inventory:<character-id>, or equipped:<character-id>.\n" +
			"The item's listed location changes once the next snapshot confirms the move.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.InstanceID = args[0]
			req.Target = args[1]
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Transfer(req)
				if resp == nil {
					return err
				}
				return emit(cmd, ctx, resp.TransferResponse, err, func(w io.Writer) {
					if err == nil {
						renderTransfer(w, resp.TransferResponse)
					}
				})
			})
		},
	}
	cmd.Flags().BoolVar(&req.Equip, "equip", false, "Equip the item after it arrives")
	cmd.Flags().Uint32Var(&req.ItemHash, "hash", 0, "Expected item hash; rejects the transfer if it differs")
	return cmd
}

func renderTransfer(w io.Writer, resp api.TransferResponse) {
	if len(resp.Hops) == 0 {
		fmt.Fprintf(w, "%s is already at %s\n", resp.InstanceID, resp.To)
		return
	}
	fmt.Fprintf(w, "%s: %s -> %s accepted\n", resp.InstanceID, resp.From, resp.To)
	for i, hop := range resp.Hops {
		fmt.Fprintf(w, "  %d. %s\n", i+1, hop)
	}
}

func newSocketCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "socket <instance-id> <socket-index> <plug>",
		Short: "Insert a plug into an item socket",
		Long:  "Insert a plug. The plug may be given by hash or by manifest name.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil || index < 0 {
				return fmt.Errorf("invalid socket index %q", args[1])
			}
			req := api.SocketRequest{InstanceID: args[0], SocketIndex: index}
			if hash, err := strconv.ParseUint(args[2], 10, 32); err == nil {
				req.PlugHash = uint32(hash)
			} else {
				req.Plug = args[2]
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Socket(req)
				if resp == nil {
					return err
				}
				return emit(cmd, ctx, resp.SocketResponse, err, func(w io.Writer) {
					if err != nil {
						return
					}
					if !resp.Changed {
						fmt.Fprintf(w, "%s socket %d already holds %d\n", resp.InstanceID, resp.SocketIndex, resp.Current)
						return
					}
					fmt.Fprintf(w, "%s socket %d: %d -> %d\n", resp.InstanceID, resp.SocketIndex, resp.Previous, resp.Current)
				})
			})
		},
	}
}

func newLockCommand(ctx *commandContext) *cobra.Command {
	var unlock bool
	cmd := &cobra.Command{
		Use:   "lock <instance-id>",
		Short: "Lock (or with --off, unlock) an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.LockRequest{InstanceID: args[0], Locked: !unlock}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Lock(req)
				if resp == nil {
					return err
				}
				return emit(cmd, ctx, resp.LockResponse, err, func(w io.Writer) {
					if err != nil {
						return
					}
					state := "locked"
					if !resp.Locked {
						state = "unlocked"
					}
					if resp.Changed {
						fmt.Fprintf(w, "%s %s\n", resp.InstanceID, state)
					} else {
						fmt.Fprintf(w, "%s was already %s\n", resp.InstanceID, state)
					}
				})
			})
		},
	}
	cmd.Flags().BoolVar(&unlock, "off", false, "Unlock instead of lock")
	return cmd
}

func newResyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resync",
		Short: "Fetch the profile now and replace the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Resync()
				if resp == nil {
					return err
				}
				return emit(cmd, ctx, resp.ResyncResponse, err, func(w io.Writer) {
					if err == nil {
						fmt.Fprintf(w, "Store version %d, %d items, snapshot %s\n",
							resp.Version, resp.Items, orDash(resp.Guard))
					}
				})
			})
		},
	}
}
