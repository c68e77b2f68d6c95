package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"BillWatch/internal/app"
	"BillWatch/internal/domain"
	"BillWatch/internal/invoke"
)

func detectCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Refresh tracked items and search tracked keywords",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.Application) error {
				resp := a.Service().Detect(cmd.Context(), opts.credentials())
				if err := printJSON(cmd, resp); err != nil {
					return err
				}
				if resp.Status != invoke.StatusOK {
					return fmt.Errorf("detect %s", resp.Status)
				}
				return nil
			})
		},
	}
}

func trackCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "track",
		Short: "Manage the watch list",
	}

	var priority string
	add := &cobra.Command{
		Use:   "add <record-id>",
		Short: "Watch a record for status and hearing changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := domain.ParsePriority(priority)
			if err != nil {
				return err
			}
			return withApp(cmd, func(a *app.Application) error {
				item, err := a.Service().TrackRecord(cmd.Context(), opts.credentials(), args[0], p)
				if err != nil {
					return err
				}
				return printJSON(cmd, item)
			})
		},
	}
	add.Flags().StringVar(&priority, "priority", "normal", "low, normal, high or urgent")

	history := &cobra.Command{
		Use:   "history <tracked-item-id>",
		Short: "List the recorded status changes of a watch entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.Application) error {
				events, err := a.Service().TrackHistory(cmd.Context(), opts.credentials(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, events)
			})
		},
	}

	cmd.AddCommand(add, history)
	return cmd
}

func keywordCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keyword",
		Short: "Manage tracked search keywords",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <term>",
		Short: "Alert on new search results for a term",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.Application) error {
				kw, err := a.Service().AddKeyword(cmd.Context(), opts.credentials(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, kw)
			})
		},
	})
	return cmd
}
