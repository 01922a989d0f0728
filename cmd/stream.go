package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/tweetstream/internal/app"
	"github.com/JakeFAU/tweetstream/internal/config"
	"github.com/JakeFAU/tweetstream/internal/logging"
)

func newStreamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Stream matching posts to disk until stopped",
		Long: `Subscribes with the given filter and writes every matching post to
<output>/<yyyyMMdd_HHmmss>/tweets/stream-<yyyyMMddHH>.json. At least one of
--term, --user-id, --handle, --language or --geo-box is required. Stop with
Ctrl-C, SIGTERM, or by typing q and pressing enter.`,
		Args: cobra.NoArgs,
		RunE: runStream,
	}
	config.AddFlags(cmd.Flags())
	return cmd
}

func runStream(cmd *cobra.Command, _ []string) error {
	cfgPath, err := cmd.Flags().GetString(config.FlagConfig)
	if err != nil {
		return fmt.Errorf("read --config: %w", err)
	}
	cfg, err := config.Load(cfgPath, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Debug, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := newApp(ctx, cfg, logger, app.Options{Control: cmd.InOrStdin()})
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return err
	}
	if err := runner.Run(ctx); err != nil {
		return fmt.Errorf("stream: %w", err)
	}
	return nil
}
