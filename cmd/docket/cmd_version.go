package main

import (
	"fmt"

	v "github.com/linnemanlabs/go-core/version"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			vi := v.Get()
			fmt.Fprintf(cmd.OutOrStdout(),
				"%s (%s) %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
				vi.AppName, vi.Component, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
				vi.VCSDirty != nil && *vi.VCSDirty,
			)
		},
	}
}
