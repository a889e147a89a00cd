// Command importer registers two batches of devices in an IoT hub through
// bulk import jobs and reports the resulting job ids.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/straye-as/device-importer/internal/app"
	"github.com/straye-as/device-importer/internal/config"
	"github.com/straye-as/device-importer/internal/logger"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(run).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// options are the command line overrides of the import settings
type options struct {
	devices         []string
	followUpDevices []string
	wait            bool
}

type runFunc func(ctx context.Context, opts options, changed func(name string) bool) error

func newRootCmd(fn runFunc) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "importer",
		Short: "Bulk import devices into an IoT hub",
		Long: `Bulk import devices into an IoT hub.

The first batch is staged in a new blob container and submitted as an import
job. Once its status has been read, the follow-up batch is submitted the same
way, retrying with exponential backoff while the failure is transient.

Connection strings are read from config.json, the environment
(IOTHUB_CONNECTIONSTRING, STORAGE_CONNECTIONSTRING) or Azure Key Vault.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return fn(cmd.Context(), opts, cmd.Flags().Changed)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.devices, "device", "d", nil, "device id of the first batch (repeatable, defaults to import.primaryDevices)")
	cmd.Flags().StringSliceVarP(&opts.followUpDevices, "follow-up-device", "f", nil, "device id of the follow-up batch (repeatable, defaults to import.followUpDevices)")
	cmd.Flags().BoolVarP(&opts.wait, "wait", "w", false, "wait until the follow-up job finishes (defaults to import.wait)")

	return cmd
}

// applyOptions overrides cfg with the flags that were set on the command line
func applyOptions(cfg *config.ImportConfig, opts options, changed func(name string) bool) {
	if changed("device") {
		cfg.PrimaryDevices = opts.devices
	}
	if changed("follow-up-device") {
		cfg.FollowUpDevices = opts.followUpDevices
	}
	if changed("wait") {
		cfg.Wait = opts.wait
	}
}

func run(ctx context.Context, opts options, changed func(name string) bool) error {
	basicCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(&basicCfg.Logging, &basicCfg.App)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("=== START ===")

	cfg, err := config.LoadWithSecrets(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	applyOptions(&cfg.Import, opts, changed)

	services, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	log.Info("Importing devices", zap.String("iothub_host", services.Registry.HostName()))

	outcome, err := services.Runner.Run(ctx, cfg.Import.PrimaryDevices, cfg.Import.FollowUpDevices)
	if err != nil {
		log.Error("Import failed", zap.Error(err))
		return err
	}

	log.Info("Jobs created",
		zap.String("job_1", outcome.FirstJobID),
		zap.String("job_2", outcome.SecondJobID),
		zap.Int("attempts", outcome.Attempts),
	)

	if cfg.Import.Wait {
		waitCtx, cancel := context.WithTimeout(ctx, cfg.Import.WaitTimeoutDuration())
		defer cancel()

		if _, err := services.Runner.Wait(waitCtx, outcome.SecondJobID); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("job %s did not finish within %s: %w", outcome.SecondJobID, cfg.Import.WaitTimeoutDuration(), err)
			}
			return err
		}
	}

	log.Info("=== END ===")
	return nil
}
