package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amrcfdp/cfdp-receiver/internal/config"
	"github.com/amrcfdp/cfdp-receiver/internal/pdu"
	"github.com/amrcfdp/cfdp-receiver/internal/receiver"
	"github.com/amrcfdp/cfdp-receiver/internal/telemetry"
)

func newReplayCommand() *cobra.Command {
	var sourceEntityID, txSeq uint64

	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "feed a captured PDU sequence file through a receiver and print the transitions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.EnsureConfigFile(configPath); err != nil {
				return fmt.Errorf("config bootstrap: %w", err)
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config load: %w", err)
			}

			log := telemetry.New(cfg.LogLevel).ForTransaction(sourceEntityID, txSeq)
			rcv := receiver.New(receiver.Options{
				ID:       pdu.TransactionID{SourceEntityID: sourceEntityID, TransactionSeqNo: txSeq},
				Config:   cfg,
				Handlers: cfg.HandlerTable(),
				Sender:   NewLoggingSender(log),
				Logger:   log,
			})

			steps, err := LoadReplaySteps(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			for i, step := range steps {
				ev, err := step.ToEvent()
				if err != nil {
					return fmt.Errorf("step %d: %w", i, err)
				}
				before := rcv.State()
				if err := rcv.Handle(ctx, ev); err != nil {
					return fmt.Errorf("step %d: %w", i, err)
				}
				after := rcv.State()
				fmt.Printf("step %d: %s -> %s (%s)\n", i, before, after, step.Kind)
				if after == receiver.StateClosed {
					break
				}
			}
			snap := rcv.Snapshot()
			fmt.Printf("final: state=%s missing=%d\n", snap.State, len(snap.Missing))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.Uint64Var(&sourceEntityID, "source-entity-id", 1, "source entity id of the transaction being received")
	flags.Uint64Var(&txSeq, "transaction-seq", 1, "transaction sequence number")
	return cmd
}
