package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Layr-Labs/ink-verifier/pkg/metadata"
	"github.com/Layr-Labs/ink-verifier/pkg/types"
)

func printReport(w io.Writer, r *types.RunReport) {
	fmt.Fprintf(w, "Run:       %s\n", r.RunID)
	fmt.Fprintf(w, "Node:      %s %s (%s) at %s\n", r.Node.Name, r.Node.Version, r.Node.Chain, r.Endpoint)
	fmt.Fprintf(w, "Contract:  %s\n", r.Contract)
	fmt.Fprintf(w, "Signer:    %s (%s)\n", r.Signer, r.Algorithm)
	fmt.Fprintf(w, "Duration:  %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(w, "Root:      0x%x\n\n", r.Root)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSTEP\tOUTCOME\tGAS USED\tRESULT")
	for _, s := range r.Steps {
		result := string(s.Output)
		if s.Outcome.Failed() {
			result = s.Fault
		} else if s.Page != nil {
			result = fmt.Sprintf("%d of %d records (page %d)", s.Page.Returned, s.Page.Total, s.Page.PageIndex)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", s.Index, s.Name, s.Outcome, s.GasConsumed.RefTime, truncate(result, 80))
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\n%d steps, %d failed\n", len(r.Steps), r.Failed())
}

func printReportList(w io.Writer, reports []*types.RunReport) {
	if len(reports) == 0 {
		fmt.Fprintln(w, "No reports stored")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tCONTRACT\tSTEPS\tFAILED")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", r.RunID, r.StartedAt.Format(time.RFC3339), r.Contract, len(r.Steps), r.Failed())
	}
	_ = tw.Flush()
}

func printMethods(w io.Writer, md *metadata.Metadata) {
	fmt.Fprintf(w, "%s %s (metadata %s)\n\n", md.Contract.Name, md.Contract.Version, md.Version)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SELECTOR\tMESSAGE\tARGS\tKIND")
	for _, name := range md.MessageNames() {
		msg, _ := md.Message(name)
		args := make([]string, len(msg.Args))
		for i, a := range msg.Args {
			args[i] = a.Label
			if len(a.DisplayName) > 0 {
				args[i] += ": " + strings.Join(a.DisplayName, "::")
			}
		}
		kind := "query"
		if msg.Mutates {
			kind = "mutates"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", msg.SelectorHex(), msg.Label, strings.Join(args, ", "), kind)
	}
	_ = tw.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
