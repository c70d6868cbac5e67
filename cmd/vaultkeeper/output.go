package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"vaultkeeper/internal/api"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// emit prints payload as JSON when --json is set, otherwise runs render.
// A failed operation still prints whatever partial payload it produced.
func emit(cmd *cobra.Command, ctx *commandContext, payload any, opErr error, render func(io.Writer)) error {
	if ctx.jsonOutput() {
		if opErr != nil {
			body := api.ErrorResponse{Error: asAPIError(opErr), Result: payload}
			if err := writeJSON(cmd, body); err != nil {
				return err
			}
			return opErr
		}
		if err := writeJSON(cmd, payload); err != nil {
			return err
		}
		return nil
	}
	if render != nil && payload != nil {
		render(cmd.OutOrStdout())
	}
	return opErr
}

func asAPIError(err error) *api.Error {
	var failure *api.Error
	if errors.As(err, &failure) {
		return failure
	}
	return api.FromError(err)
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

func printKV(w io.Writer, pairs [][2]string) {
	width := 0
	for _, p := range pairs {
		width = max(width, len(p[0])+1)
	}
	for _, p := range pairs {
		fmt.Fprintf(w, "%-*s  %s\n", width, p[0]+":", p[1])
	}
}
