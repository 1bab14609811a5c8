package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/groovy/replicasync/internal/application"
)

const defaultAPIURL = "http://localhost:8080"

func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show reconciliation state of every sync target on a running api",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
}

func runStatus(ctx context.Context, opts *RootOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	base := opts.APIURL
	if base == "" {
		base = defaultAPIURL
	}
	var statuses []application.TargetStatus
	if err := newAPIClient(base).do(ctx, http.MethodGet, "/internal/reconcile", &statuses); err != nil {
		return err
	}
	if opts.Format == "json" {
		return json.NewEncoder(out).Encode(statuses)
	}
	for _, st := range statuses {
		line := fmt.Sprintf("%-12s %-8s", st.Target, st.State)
		if st.LastReport != nil {
			line += fmt.Sprintf(" last=%s finished=%s checkpointed=%t",
				st.LastReport.Mode, st.LastReport.FinishedAt.Format("2006-01-02T15:04:05Z07:00"), st.LastReport.Checkpointed)
		}
		if st.LastError != "" {
			line += " error=" + st.LastError
		}
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}
