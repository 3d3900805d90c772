package receiver

import (
	"context"
	"fmt"

	"github.com/amrcfdp/cfdp-receiver/internal/assembler"
	"github.com/amrcfdp/cfdp-receiver/internal/fault"
	"github.com/amrcfdp/cfdp-receiver/internal/gaptracker"
	"github.com/amrcfdp/cfdp-receiver/internal/pdu"
)

// handleMetadata is E10 in S1 AWAITING_METADATA (spec.md §4.4): install
// metadata, open the assembler and gap tracker, move to S2, then replay
// anything that arrived early.
func handleMetadata(ctx context.Context, r *Receiver, ev Event) error {
	m := ev.(MetadataEvent).Metadata
	if err := m.Validate(); err != nil {
		return r.raise(ctx, fault.New(fault.FilestoreRejection, "metadata validate", err))
	}
	r.metadata = &m
	r.mode = r.resolveMode(m.Header)
	r.destinationPath = r.destinationFor(m)
	if m.FileSize > 0 {
		r.gaps = gaptracker.NewWithSize(m.FileSize)
	} else {
		r.gaps = gaptracker.New()
	}

	asm, err := assembler.Open(r.cfg.DataPaths.Tempfiles, r.id)
	if err != nil {
		return r.raise(ctx, fault.New(fault.FilestoreRejection, "assembler.open", err))
	}
	r.asm = asm
	r.state = StateReceiving
	r.restartInactivity()

	buffered := r.bufferedFileData
	r.bufferedFileData = nil
	for _, fd := range buffered {
		if err := r.applyFileData(ctx, fd); err != nil {
			return err
		}
		if r.state != StateReceiving {
			// A fault or an early completion already moved the
			// transaction on; nothing left in S2 to replay into.
			return nil
		}
	}

	if r.eofSeen {
		eof := *r.eof
		if err := r.applyEOF(ctx, EOFEvent{EOF: eof, WithError: r.eofWithError}); err != nil {
			return err
		}
	}
	return nil
}

// handleBufferFileData is E11 in S1: out-of-order file data arriving
// before Metadata is held for replay once Metadata installs (spec.md
// §4.4 edge case "file data before metadata").
func handleBufferFileData(ctx context.Context, r *Receiver, ev Event) error {
	fd := ev.(FileDataEvent).FileData
	if len(r.bufferedFileData) >= maxBufferedFileData {
		r.bufferedFileData = r.bufferedFileData[1:]
		r.filestoreRejectionCandidates++
		if r.log != nil {
			r.log.Info("dropped oldest buffered file-data segment, S1 backlog full", map[string]interface{}{
				"limit":      maxBufferedFileData,
				"candidates": r.filestoreRejectionCandidates,
			})
		}
		if r.filestoreRejectionCandidates >= maxFilestoreRejectionCandidates {
			return r.raise(ctx, fault.New(fault.FilestoreRejection, "s1 file-data backlog repeatedly overflowed awaiting metadata", nil))
		}
	}
	r.bufferedFileData = append(r.bufferedFileData, fd)
	r.restartInactivity()
	return nil
}

// handleStashEOF is E12/E13 in S1: an EOF that arrives before Metadata
// is stashed, not acted on, until Metadata replay resolves it.
func handleStashEOF(ctx context.Context, r *Receiver, ev Event) error {
	e := ev.(EOFEvent)
	eof := e.EOF
	r.eof = &eof
	r.eofSeen = true
	r.eofWithError = e.WithError
	r.restartInactivity()
	return nil
}

// handleInactivityTimer is E_INACTIVITY_TIMER in S1 or S2: no PDU
// arrived within inactivity_timeout, the one fault either resting
// state can raise on its own (spec.md §4.4).
func handleInactivityTimer(ctx context.Context, r *Receiver, ev Event) error {
	return r.raise(ctx, fault.New(fault.InactivityDetected, "no pdu received within inactivity_timeout", nil))
}

// handleFileDataReceiving is E11 in S2.
func handleFileDataReceiving(ctx context.Context, r *Receiver, ev Event) error {
	fd := ev.(FileDataEvent).FileData
	return r.applyFileData(ctx, fd)
}

// applyFileData marks the segment received, clipping it to a known
// upper bound and raising FILE_SIZE_ERROR on overrun (spec.md §4.1,
// §4.4: "implementations should both fault and truncate"), writes the
// surviving bytes, and checks for completion.
func (r *Receiver) applyFileData(ctx context.Context, fd pdu.FileData) error {
	start := fd.SegmentOffset
	end := fd.End()
	overrun := r.gaps.MarkReceived(start, end)

	data := fd.Data
	if overrun {
		if bound, known := r.gaps.UpperBound(); known {
			if bound <= start {
				data = nil
			} else if bound < end {
				data = data[:bound-start]
			}
		}
	}
	if len(data) > 0 {
		if err := r.asm.Write(start, data); err != nil {
			return r.raise(ctx, fault.New(fault.FilestoreRejection, "assembler.write", err))
		}
	}
	r.restartInactivity()

	if overrun {
		if err := r.raise(ctx, fault.New(fault.FileSizeError, "file data beyond declared file size", nil)); err != nil {
			return err
		}
		if r.state != StateReceiving {
			return nil
		}
	}

	if r.state == StateReceiving && r.eofSeen && r.gaps.IsComplete() {
		return r.enterAwaitingCompletion(ctx)
	}
	return nil
}

// handleEOFReceiving is E12/E13 in S2.
func handleEOFReceiving(ctx context.Context, r *Receiver, ev Event) error {
	e := ev.(EOFEvent)
	return r.applyEOF(ctx, e)
}

// applyEOF is E12/E13's logic, shared between the live S2 path and the
// S1-replay path (spec.md §4.4).
func (r *Receiver) applyEOF(ctx context.Context, e EOFEvent) error {
	eof := e.EOF
	r.eof = &eof
	r.eofSeen = true
	r.eofWithError = e.WithError

	if e.WithError {
		code := fault.Code(eof.ConditionCode)
		if code == "" {
			code = fault.FileChecksumFailure
		}
		return r.raise(ctx, fault.New(code, "eof with error reported by sender", nil))
	}

	overrun := r.gaps.SetUpperBound(eof.FileSize)
	r.restartInactivity()

	if r.mode == pdu.Acknowledged && !r.gaps.IsComplete() {
		r.nakCount = 0
		r.scheduleNAK()
	}

	if overrun {
		if err := r.raise(ctx, fault.New(fault.FileSizeError, "eof file_size retroactively overrun by prior data", nil)); err != nil {
			return err
		}
		if r.state != StateReceiving {
			return nil
		}
	}

	if r.gaps.IsComplete() {
		return r.enterAwaitingCompletion(ctx)
	}
	if r.mode == pdu.Unacknowledged {
		return r.raise(ctx, fault.New(fault.FileChecksumFailure, "file incomplete at eof, unacknowledged mode", nil))
	}
	return nil
}

// handleNAKTimer is E_NAK_TIMER in S2: re-request whatever is still
// missing, or declare NAK_LIMIT_REACHED once retries are exhausted
// (spec.md §4.4).
func handleNAKTimer(ctx context.Context, r *Receiver, ev Event) error {
	if r.gaps.IsComplete() {
		return nil
	}
	bound, _ := r.gaps.UpperBound()
	missing := r.gaps.Missing()
	segs := make([]pdu.Range, 0, len(missing))
	for _, g := range missing {
		segs = append(segs, pdu.Range{Start: g.Start, End: g.End})
	}
	nak := pdu.NAK{
		Header:          r.outboundHeader(),
		StartOfScope:    0,
		EndOfScope:      bound,
		SegmentRequests: segs,
	}
	if r.sender != nil {
		if err := r.sender.SendNAK(nak); err != nil {
			return fmt.Errorf("receiver: send nak: %w", err)
		}
	}
	r.nakCount++
	if r.nakCount > r.cfg.Timers.NAKLimit {
		return r.raise(ctx, fault.New(fault.NAKLimitReached, "nak retransmit limit exceeded", nil))
	}
	r.scheduleNAK()
	return nil
}

// enterAwaitingCompletion is S3's entry action (spec.md §4.4): not a
// resting state, it always resolves into S4, S5 (unacknowledged
// courtesy close), or an SF FAULT disposition before returning.
func (r *Receiver) enterAwaitingCompletion(ctx context.Context) error {
	r.state = StateAwaitingCompletion
	r.timers.Cancel(timerNAK)

	var expectedSize uint64
	var expectedChecksum uint32
	if r.eof != nil {
		expectedSize = r.eof.FileSize
		expectedChecksum = r.eof.FileChecksum
	}

	result, err := r.asm.Finalize(expectedSize, expectedChecksum)
	if err != nil {
		return r.raise(ctx, fault.New(fault.FilestoreRejection, "assembler.finalize", err))
	}
	if !result.OK {
		return r.raise(ctx, fault.New(fault.FileChecksumFailure, "computed checksum does not match eof checksum", nil))
	}

	r.timers.Cancel(timerInactivity)
	warn, err := r.asm.Promote(r.destinationPath)
	if err != nil {
		return r.raise(ctx, fault.New(fault.FilestoreRejection, "assembler.promote", err))
	}
	if warn && r.log != nil {
		r.log.Info("promoted across filesystem boundary, atomicity not guaranteed", map[string]interface{}{
			"destination": r.destinationPath,
		})
	}

	finished := pdu.Finished{
		Header:        r.outboundHeader(),
		ConditionCode: string(fault.NoError),
		DeliveryCode:  pdu.Complete,
		FileStatus:    pdu.RetainedInFilestore,
	}
	r.pendingFinished = &finished
	r.pendingOutcome = "COMPLETE"

	if r.mode == pdu.Unacknowledged {
		if r.sender != nil {
			_ = r.sender.SendFinished(finished) // courtesy only, no ack expected
		}
		return r.closeTransaction(ctx, r.pendingOutcome)
	}
	if err := r.sendFinished(finished); err != nil {
		return err
	}
	r.state = StateSendingFinished
	r.finishedRetransmitCount = 0
	r.scheduleFinishedWait()
	return nil
}

// handleAckFinished is E14 in S4: the handshake completes.
func handleAckFinished(ctx context.Context, r *Receiver, ev Event) error {
	r.timers.Cancel(timerFinishedWait)
	outcome := r.pendingOutcome
	if outcome == "" {
		outcome = "COMPLETE"
	}
	return r.closeTransaction(ctx, outcome)
}

// handleFinishedAckTimer is E_FINISHED_ACK_TIMER in S4: resend Finished
// under the retry limit, else declare POSITIVE_ACK_LIMIT_REACHED and
// give up on this transaction outright — there is no further PDU this
// receiver can usefully send an unresponsive peer once its own
// Finished has gone unacknowledged past the limit (spec.md §4.4).
func handleFinishedAckTimer(ctx context.Context, r *Receiver, ev Event) error {
	if r.finishedRetransmitCount < r.cfg.Timers.ACKLimit {
		r.finishedRetransmitCount++
		if r.pendingFinished != nil {
			if err := r.sendFinished(*r.pendingFinished); err != nil {
				return err
			}
		}
		r.scheduleFinishedWait()
		return nil
	}
	r.recordFault(ctx, fault.PositiveACKLimitReached)
	if r.log != nil {
		r.log.Fault(r.state.String(), string(fault.PositiveACKLimitReached), nil)
	}
	return r.closeTransaction(ctx, "INCOMPLETE:"+string(fault.PositiveACKLimitReached))
}

// raise is the SF FAULT path (spec.md §4.4, §7): record the condition,
// look up its configured disposition, and apply it.
func (r *Receiver) raise(ctx context.Context, cond *fault.Condition) error {
	if r.mode == pdu.Unspecified {
		// Metadata (and thus resolveMode) hasn't run yet — a fault
		// raised in S1 AWAITING_METADATA still needs a definitive mode
		// to decide how the resulting Finished is sent.
		r.mode = r.resolveMode(pdu.Header{})
	}
	r.recordFault(ctx, cond.Code)
	if r.log != nil {
		r.log.Fault(r.state.String(), string(cond.Code), cond.Err)
	}

	switch r.handlers.Resolve(cond.Code) {
	case fault.Ignore:
		return nil
	case fault.NoticeOfSuspension:
		r.timers.Cancel(timerNAK)
		r.timers.Cancel(timerInactivity)
		r.timers.Cancel(timerFinishedWait)
		r.suspendedFrom = r.state
		r.state = StateSuspended
		return nil
	case fault.Abandon:
		if r.asm != nil && !r.cfg.RetainTempOnAbandon {
			_ = r.asm.Discard()
		}
		r.timers.Cancel(timerNAK)
		r.timers.Cancel(timerInactivity)
		r.timers.Cancel(timerFinishedWait)
		return r.closeTransaction(ctx, "ABANDONED:"+string(cond.Code))
	default: // fault.NoticeOfCancellation
		return r.cancelTransaction(ctx, cond.Code)
	}
}

// cancelTransaction is NOTICE_OF_CANCELLATION: discard the partial
// file, emit an INCOMPLETE Finished carrying the condition code, and
// wait for its ACK exactly as a normal completion would (spec.md §4.4,
// §7). Class-1 transactions close immediately.
func (r *Receiver) cancelTransaction(ctx context.Context, code fault.Code) error {
	if r.asm != nil {
		_ = r.asm.Discard()
	}
	r.timers.Cancel(timerNAK)
	r.timers.Cancel(timerInactivity)

	finished := pdu.Finished{
		Header:        r.outboundHeader(),
		ConditionCode: string(code),
		DeliveryCode:  pdu.Incomplete,
		FileStatus:    pdu.Discarded,
	}
	r.pendingFinished = &finished
	r.pendingOutcome = "INCOMPLETE:" + string(code)

	if r.mode == pdu.Unacknowledged {
		if r.sender != nil {
			_ = r.sender.SendFinished(finished)
		}
		return r.closeTransaction(ctx, r.pendingOutcome)
	}
	if err := r.sendFinished(finished); err != nil {
		return err
	}
	r.state = StateSendingFinished
	r.finishedRetransmitCount = 0
	r.scheduleFinishedWait()
	return nil
}

// closeTransaction is the one path into S5 CLOSED: cancel every
// timer, persist the outcome, and freeze.
func (r *Receiver) closeTransaction(ctx context.Context, outcome string) error {
	r.timers.Cancel(timerNAK)
	r.timers.Cancel(timerInactivity)
	r.timers.Cancel(timerFinishedWait)
	r.state = StateClosed
	r.closed = true
	if r.ledger != nil {
		_ = r.ledger.RecordOutcome(ctx, r.id.SourceEntityID, r.id.TransactionSeqNo, r.state.String(), outcome, r.destinationPath)
	}
	return nil
}

// recordFault appends to the bounded in-memory fault history (the
// Finished audit record keeps at most the last maxFaultHistory codes,
// per SPEC_FULL.md's supplemented behavior) and to the durable ledger.
func (r *Receiver) recordFault(ctx context.Context, code fault.Code) {
	r.faultHistory = append(r.faultHistory, code)
	if len(r.faultHistory) > maxFaultHistory {
		r.faultHistory = r.faultHistory[len(r.faultHistory)-maxFaultHistory:]
	}
	if r.ledger != nil {
		_ = r.ledger.AppendFault(ctx, r.id.SourceEntityID, r.id.TransactionSeqNo, string(code))
	}
}

func (r *Receiver) sendFinished(f pdu.Finished) error {
	if r.sender == nil {
		return nil
	}
	if err := r.sender.SendFinished(f); err != nil {
		return fmt.Errorf("receiver: send finished: %w", err)
	}
	return nil
}

// outboundHeader builds the Header carried on every PDU this receiver
// emits for its transaction.
func (r *Receiver) outboundHeader() pdu.Header {
	return pdu.Header{
		SourceEntityID:   r.id.SourceEntityID,
		TransactionSeqNo: r.id.TransactionSeqNo,
		PDUType:          pdu.FileDirective,
		TransmissionMode: r.mode,
	}
}
