package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/linnemanlabs/docket/internal/triage"
)

func newToolsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the enabled tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, _, err := a.build(cmd)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tDESCRIPTION")
			for _, def := range res.Engine.Tools() {
				fmt.Fprintf(tw, "%s\t%s\n", def.Name, oneLine(def.Description))
			}
			return tw.Flush()
		},
	}
}

// oneLine collapses a multi-line description so each tool stays on one table row.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func newToolCmd(a *app) *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "tool NAME",
		Short: "Invoke one tool directly and print the recorded call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !json.Valid([]byte(input)) {
				return fmt.Errorf("--input is not valid JSON: %q", input)
			}
			res, _, err := a.build(cmd)
			if err != nil {
				return err
			}
			call, err := res.Engine.InvokeTool(cmd.Context(), args[0], json.RawMessage(input))
			if err != nil {
				if errors.Is(err, triage.ErrUnknownTool) {
					return fmt.Errorf("unknown or disabled tool %q", args[0])
				}
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(call); err != nil {
				return err
			}
			if !call.Success {
				return fmt.Errorf("tool %s failed: %s", call.Tool, call.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "{}", "tool input as a JSON object")
	return cmd
}
