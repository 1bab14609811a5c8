package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/groovy/replicasync/internal/app/bootstrap"
)

func NewPingCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the event transport is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPing(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
}

func runPing(ctx context.Context, opts *RootOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.APIURL != "" {
		if err := newAPIClient(opts.APIURL).do(ctx, http.MethodGet, "/readyz", nil); err != nil {
			return fmt.Errorf("api not ready: %w", err)
		}
		_, err := fmt.Fprintln(out, "ready")
		return err
	}

	rt, err := bootstrap.NewRuntime(ctx, opts.ConfigPath)
	if err != nil {
		return err
	}
	defer rt.Close()
	if !rt.TransportReady(ctx) {
		return fmt.Errorf("event transport unreachable")
	}
	_, err = fmt.Fprintf(out, "ready targets=%s\n", strings.Join(rt.Engine().Targets(), ","))
	return err
}
