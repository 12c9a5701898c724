package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
	dev        bool
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "nextchapter-billing",
		Short:         "Subscription checkout for the NextChapter app",
		Long:          `nextchapter-billing authorizes payments with a one-time code, polls the gateway until settlement and activates the subscription.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to YAML config file")
	cmd.PersistentFlags().BoolVar(&flags.dev, "dev", false, "developer mode (console logs, unredacted identifiers)")

	cmd.AddCommand(newServeCommand(flags), newSubscribeCommand(flags), newStatusCommand(flags))
	return cmd
}
