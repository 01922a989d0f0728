package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/tweetstream/internal/app"
	"github.com/JakeFAU/tweetstream/internal/config"
	"github.com/JakeFAU/tweetstream/internal/logging"
)

// Runner is the part of app.App the stream command drives.
type Runner interface {
	Run(ctx context.Context) error
}

// newApp is the application factory. It is a variable so tests can replace
// it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger, opts app.Options) (Runner, error) {
	return app.New(ctx, cfg, logger, opts)
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tweetstream",
		Short: "Capture a filtered live post stream to hourly files.",
		Long: `tweetstream subscribes to a filtered stream of public posts, buffers them
in a bounded queue, and appends each post's raw JSON to hourly line-delimited
files, optionally downloading referenced media and archiving closed files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newStreamCmd())
	cmd.AddCommand(newResolveCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		logger, logErr := logging.New(false, "")
		if logErr != nil {
			fmt.Fprintf(os.Stderr, "command failed: %v\n", err)
			os.Exit(1)
		}
		logger.Fatal("command failed", zap.Error(err))
	}
}
