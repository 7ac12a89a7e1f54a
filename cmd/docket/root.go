// Docket triages support tickets from the command line.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/log"
	v "github.com/linnemanlabs/go-core/version"
	"github.com/spf13/cobra"

	"github.com/linnemanlabs/docket/internal/bootstrap"
	dc "github.com/linnemanlabs/docket/internal/cfg"
)

const appName = "docket"
const component = "cli"

// app holds the settings shared by every subcommand.
type app struct {
	cfg    dc.Config
	logCfg log.Config
	flags  *flag.FlagSet
}

func newApp() *app {
	a := &app{flags: flag.NewFlagSet(appName, flag.ContinueOnError)}
	a.cfg.RegisterEngineFlags(a.flags)
	a.logCfg.RegisterFlags(a.flags)
	return a
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "docket",
		Short: "Triage support tickets into urgency, routing and a suggested reply",
		Long: "Docket classifies support tickets, gathers context from the knowledge base\n" +
			"and simulated integrations, and recommends an action and specialist queue.",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}
	root.PersistentFlags().AddGoFlagSet(a.flags)

	root.AddCommand(newTriageCmd(a))
	root.AddCommand(newToolsCmd(a))
	root.AddCommand(newToolCmd(a))
	root.AddCommand(newVersionCmd())
	return root
}

// build validates the resolved configuration and wires an engine.
func (a *app) build(cmd *cobra.Command) (*bootstrap.Result, log.Logger, error) {
	if err := errors.Join(a.cfg.ValidateEngine(), a.logCfg.Validate()); err != nil {
		return nil, nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	lg, err := log.New(a.logCfg.ToOptions(appName))
	if err != nil {
		return nil, nil, fmt.Errorf("logger init: %w", err)
	}
	L := lg.With("component", component)

	res, err := bootstrap.Build(cmd.Context(), &a.cfg, bootstrap.Options{Logger: L})
	if err != nil {
		return nil, nil, err
	}
	return res, L, nil
}

func main() {
	v.AppName = appName
	v.Component = component

	a := newApp()
	// environment values become defaults that command-line flags still override
	cfg.FillFromEnv(a.flags, "DOCKET_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := newRootCmd(a).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
