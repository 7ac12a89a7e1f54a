package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/linnemanlabs/docket/internal/ticket"
	"github.com/linnemanlabs/docket/internal/triage"
)

type triageFlags struct {
	samples     bool
	concurrency int
	pretty      bool
}

// triageResult is one output record. Exactly one of Verdict and Error is set.
type triageResult struct {
	TriageID string          `json:"triage_id,omitempty"`
	TicketID string          `json:"ticket_id"`
	Verdict  *triage.Verdict `json:"verdict,omitempty"`
	Error    string          `json:"error,omitempty"`
}

func newTriageCmd(a *app) *cobra.Command {
	var f triageFlags
	cmd := &cobra.Command{
		Use:   "triage [FILE...]",
		Short: "Triage tickets read from files, stdin or the bundled samples",
		Long: "Triage reads tickets as JSON (.json files) or YAML (everything else).\n" +
			"A file may hold a single ticket or a list. Use - or no arguments for stdin.\n" +
			"One JSON verdict is written per ticket, in input order.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTriage(cmd, a, &f, args)
		},
	}
	fl := cmd.Flags()
	fl.BoolVar(&f.samples, "samples", false, "triage the bundled sample tickets instead of reading input")
	fl.IntVar(&f.concurrency, "concurrency", 4, "tickets triaged in parallel")
	fl.BoolVar(&f.pretty, "pretty", false, "indent JSON output")
	return cmd
}

func runTriage(cmd *cobra.Command, a *app, f *triageFlags, args []string) error {
	if f.concurrency < 1 {
		return fmt.Errorf("invalid --concurrency %d (must be >= 1)", f.concurrency)
	}

	tickets, err := collectTickets(cmd.InOrStdin(), f.samples, args)
	if err != nil {
		return err
	}
	if len(tickets) == 0 {
		return errors.New("no tickets to triage")
	}

	res, L, err := a.build(cmd)
	if err != nil {
		return err
	}

	results := triageAll(cmd.Context(), res.Engine, tickets, f.concurrency)

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	sent := res.Outbox.Counts()
	L.Info(cmd.Context(), "triage finished",
		"tickets", len(results),
		"failed", failed,
		"issues_created", sent.Issues,
		"messages_posted", sent.Messages,
		"incidents_opened", sent.Incidents,
	)

	if err := writeResults(cmd.OutOrStdout(), results, f.pretty); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tickets failed validation", failed, len(results))
	}
	return nil
}

func collectTickets(stdin io.Reader, samples bool, args []string) ([]*ticket.Ticket, error) {
	if samples {
		if len(args) > 0 {
			return nil, errors.New("--samples does not take file arguments")
		}
		return sampleTickets()
	}
	if len(args) == 0 {
		args = []string{"-"}
	}

	var out []*ticket.Ticket
	for _, name := range args {
		var (
			ts  []*ticket.Ticket
			err error
		)
		if name == "-" {
			ts, err = readTickets(stdin, false)
		} else {
			ts, err = readTicketFile(name)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, ts...)
	}
	return out, nil
}

func readTicketFile(name string) ([]*ticket.Ticket, error) {
	fh, err := os.Open(name) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, err
	}
	defer func() { _ = fh.Close() }()
	return readTickets(fh, isJSONFile(name))
}

// triageAll runs the engine over tickets with at most limit in flight.
// Results keep input order.
func triageAll(ctx context.Context, engine *triage.Engine, tickets []*ticket.Ticket, limit int) []triageResult {
	results := make([]triageResult, len(tickets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, t := range tickets {
		g.Go(func() error {
			r := triageResult{TicketID: ticketID(t)}
			v, err := engine.Triage(gctx, t)
			if err != nil {
				r.Error = err.Error()
			} else {
				r.TriageID = ulid.Make().String()
				r.Verdict = v
			}
			results[i] = r
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func ticketID(t *ticket.Ticket) string {
	if t == nil {
		return ""
	}
	return t.ID
}

func writeResults(w io.Writer, results []triageResult, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
	}
	return nil
}
