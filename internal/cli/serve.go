package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/amrcfdp/cfdp-receiver/internal/audit"
	"github.com/amrcfdp/cfdp-receiver/internal/config"
	"github.com/amrcfdp/cfdp-receiver/internal/pdu"
	"github.com/amrcfdp/cfdp-receiver/internal/receiver"
	"github.com/amrcfdp/cfdp-receiver/internal/telemetry"
)

func newServeCommand() *cobra.Command {
	var sourceEntityID, txSeq uint64
	var tickInterval time.Duration
	var input string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run a receiver transaction against a local transport stub",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.EnsureConfigFile(configPath); err != nil {
				return fmt.Errorf("config bootstrap: %w", err)
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config load: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config validate: %w", err)
			}

			log := telemetry.New(cfg.LogLevel).ForTransaction(sourceEntityID, txSeq)

			var ledger *audit.Ledger
			if cfg.AuditDBPath != "" {
				ledger, err = audit.Open(cfg.AuditDBPath)
				if err != nil {
					return fmt.Errorf("audit open: %w", err)
				}
				defer ledger.Close()
			}

			rcv := receiver.New(receiver.Options{
				ID:       pdu.TransactionID{SourceEntityID: sourceEntityID, TransactionSeqNo: txSeq},
				Config:   cfg,
				Handlers: cfg.HandlerTable(),
				Sender:   NewLoggingSender(log),
				Logger:   log,
				Ledger:   ledger,
			})

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return pumpTimers(ctx, rcv, tickInterval) })
			if input != "" {
				g.Go(func() error { return intakeFromFile(ctx, rcv, input) })
			}

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.Uint64Var(&sourceEntityID, "source-entity-id", 1, "source entity id of the transaction being received")
	flags.Uint64Var(&txSeq, "transaction-seq", 1, "transaction sequence number")
	flags.DurationVar(&tickInterval, "tick-interval", time.Second, "how often to poll the timer service")
	flags.StringVar(&input, "input", "", "optional replay file to drive the receiver with (see 'replay')")
	return cmd
}

// pumpTimers ticks the receiver's timer service on a fixed interval
// until ctx is canceled (spec.md §5: timers may be polled on any
// convenient schedule; this is the CLI's choice of schedule).
func pumpTimers(ctx context.Context, rcv *receiver.Receiver, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			rcv.Tick()
		}
	}
}

func intakeFromFile(ctx context.Context, rcv *receiver.Receiver, path string) error {
	steps, err := LoadReplaySteps(path)
	if err != nil {
		return err
	}
	for _, step := range steps {
		ev, err := step.ToEvent()
		if err != nil {
			return err
		}
		if err := rcv.Handle(ctx, ev); err != nil {
			return err
		}
		if rcv.State() == receiver.StateClosed {
			break
		}
	}
	return nil
}
