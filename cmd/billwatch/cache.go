package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"BillWatch/internal/app"
	"BillWatch/internal/invoke"
)

func cacheCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Build the record cache incrementally",
	}
	cmd.AddCommand(cacheStepCmd(opts), cacheRunCmd(opts), cacheStatusCmd(opts))
	return cmd
}

func cacheStepCmd(opts *options) *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "step",
		Short: "Run one invocation: bootstrap, one batch, or a completion report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.Application) error {
				resp := a.Service().CacheStep(cmd.Context(), opts.credentials(), reset)
				if err := printJSON(cmd, resp); err != nil {
					return err
				}
				if resp.Status == invoke.StatusRejected || resp.Status == invoke.StatusFailed {
					return fmt.Errorf("cache step %s: %s", resp.Status, resp.Error)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "delete the cursor and regenerate the candidate set")
	return cmd
}

func cacheRunCmd(opts *options) *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Step the cache on the scheduler interval until it completes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.Application) error {
				return a.Service().CacheRun(cmd.Context(), opts.credentials(), reset, func(resp invoke.StepResponse) {
					_ = printJSON(cmd, resp)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "delete the cursor before the first step")
	return cmd
}

func cacheStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the cursor of the configured scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.Application) error {
				resp := a.Service().CacheStatus(cmd.Context(), opts.credentials())
				if err := printJSON(cmd, resp); err != nil {
					return err
				}
				if resp.Error != "" {
					return fmt.Errorf("cache status: %s", resp.Error)
				}
				return nil
			})
		},
	}
}
