package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"BillWatch/internal/app"
	"BillWatch/internal/config"
	"BillWatch/internal/invoke"
	"BillWatch/internal/logging"
)

var Version = "dev"

const tokenEnv = "BILLWATCH_TOKEN"

type options struct {
	token          string
	schedulerToken string
}

func main() {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "billwatch",
		Short:         "Incremental legislative record cache and change detector",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", "", "shared secret (defaults to $"+tokenEnv+")")
	rootCmd.PersistentFlags().StringVar(&opts.schedulerToken, "scheduler-token", "", "trusted scheduler token")

	rootCmd.AddCommand(cacheCmd(opts))
	rootCmd.AddCommand(detectCmd(opts))
	rootCmd.AddCommand(trackCmd(opts))
	rootCmd.AddCommand(keywordCmd(opts))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func (o *options) credentials() invoke.Credentials {
	token := o.token
	if token == "" {
		token = os.Getenv(tokenEnv)
	}
	creds := invoke.BearerCredentials(token)
	creds.SchedulerToken = o.schedulerToken
	return creds
}

// withApp opens the application for the duration of fn.
func withApp(cmd *cobra.Command, fn func(*app.Application) error) error {
	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}

	runErr := fn(application)
	if err := application.Close(); err != nil {
		logger.Error("close application", "error", err)
	}
	return runErr
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
