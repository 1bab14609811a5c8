package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/groovy/replicasync/internal/app/bootstrap"
	"github.com/groovy/replicasync/internal/application"
)

type ReconcileOptions struct {
	*RootOptions
	Full bool
}

func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile <target>",
		Short: "Run one reconciliation pass for a sync target",
		Long: `Run one reconciliation pass for a sync target.

With --api the run is triggered on a running api process, which refuses
while the target is already running. Without it the run happens in this
process against the configured stores; do not overlap it with a worker
reconciling the same target.

Example:
  syncctl reconcile songs --api http://localhost:8080
  syncctl reconcile users --full --config configs/default.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd.Context(), opts, args[0], cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&opts.Full, "full", false, "discard the checkpoint and resync everything")
	return cmd
}

func runReconcile(ctx context.Context, opts *ReconcileOptions, target string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mode := application.ModeIncremental
	if opts.Full {
		mode = application.ModeFull
	}

	var report application.RunReport
	if opts.APIURL != "" {
		path := "/internal/reconcile/" + url.PathEscape(target) + "?mode=" + string(mode)
		if err := newAPIClient(opts.APIURL).do(ctx, http.MethodPost, path, &report); err != nil {
			return err
		}
	} else {
		rt, err := bootstrap.NewRuntime(ctx, opts.ConfigPath)
		if err != nil {
			return err
		}
		defer rt.Close()
		report, err = rt.Engine().Run(ctx, target, mode)
		if err != nil {
			return err
		}
	}
	return printReport(out, opts.Format, report)
}

func printReport(out io.Writer, format string, report application.RunReport) error {
	if format == "json" {
		return json.NewEncoder(out).Encode(report)
	}
	_, err := fmt.Fprintf(out, "target=%s mode=%s pages=%d upserted=%d skipped=%d deleted=%d checkpointed=%t\n",
		report.Target, report.Mode, report.Pages, report.Upserted, report.Skipped, report.Deleted, report.Checkpointed)
	return err
}
