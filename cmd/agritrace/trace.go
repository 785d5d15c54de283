package main

import (
	"context"
	"io"

	"agritrace/internal/core"

	"github.com/spf13/cobra"
)

func newTraceCmd(c *cli) *cobra.Command {
	var export bool
	cmd := &cobra.Command{
		Use:   "trace <lot-code>",
		Short: "Print the diagnostic trace report of a lot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := c.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer rt.Close()
			return runTrace(cmd.Context(), rt.svc, cmd.OutOrStdout(), args[0], export)
		},
	}
	cmd.Flags().BoolVar(&export, "export", false, "Also write the report to the blob store")
	return cmd
}

func newLookupCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <trace-code>",
		Short: "Resolve a traceability code to its lot chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := c.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer rt.Close()
			return runLookup(cmd.Context(), rt.svc, cmd.OutOrStdout(), args[0])
		},
	}
}

type exportedReport struct {
	Report core.TraceReport `json:"report"`
	Key    string           `json:"export_key,omitempty"`
}

func runTrace(ctx context.Context, svc *core.Service, out io.Writer, lotCode string, export bool) error {
	report, err := svc.TraceLotByCode(ctx, lotCode)
	if err != nil {
		return err
	}
	if !export {
		return printJSON(out, report)
	}
	info, err := svc.ExportTraceReport(ctx, report.Lot.ID)
	if err != nil {
		return err
	}
	return printJSON(out, exportedReport{Report: report, Key: info.Key})
}

func runLookup(ctx context.Context, svc *core.Service, out io.Writer, code string) error {
	chain, err := svc.FindByTraceCode(ctx, code)
	if err != nil {
		return err
	}
	return printJSON(out, chain)
}
