// Package cli is the cobra command tree for cmd/cfdpreceiver, grounded
// on dsmmcken-dh-cli's src/internal/cmd package shape: one file per
// subcommand, a NewRootCmd constructor, persistent flags bound in one
// place.
package cli

import (
	"github.com/amrcfdp/cfdp-receiver/internal/pdu"
	"github.com/amrcfdp/cfdp-receiver/internal/telemetry"
)

// LoggingSender is the local transport stub the CLI's serve and replay
// subcommands drive the receiver with: it has no real peer to talk to,
// so every outbound PDU is just logged (SPEC_FULL.md's CLI section
// calls this "a local transport stub, for manual exercising").
type LoggingSender struct {
	log *telemetry.Logger
}

// NewLoggingSender builds a transport stub that logs through log.
func NewLoggingSender(log *telemetry.Logger) *LoggingSender {
	return &LoggingSender{log: log}
}

// SendNAK implements receiver.Sender.
func (s *LoggingSender) SendNAK(nak pdu.NAK) error {
	if s.log != nil {
		s.log.Info("send NAK", map[string]interface{}{
			"start_of_scope": nak.StartOfScope,
			"end_of_scope":   nak.EndOfScope,
			"segments":       len(nak.SegmentRequests),
		})
	}
	return nil
}

// SendFinished implements receiver.Sender.
func (s *LoggingSender) SendFinished(f pdu.Finished) error {
	if s.log != nil {
		s.log.Info("send Finished", map[string]interface{}{
			"condition_code": f.ConditionCode,
			"delivery_code":  f.DeliveryCode,
			"file_status":    f.FileStatus,
		})
	}
	return nil
}
