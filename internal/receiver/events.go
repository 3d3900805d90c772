package receiver

import "github.com/amrcfdp/cfdp-receiver/internal/pdu"

// Kind tags each event the receiver consumes (spec.md §4.4 "Events
// (inputs)"). A table of function pointers indexed by (State, Kind)
// drives dispatch — see table.go — rather than a dynamic
// attribute/method lookup (spec.md §9 "State machine dispatch").
type Kind uint8

const (
	KindMetadata Kind = iota
	KindFileData
	KindEOFNoError
	KindEOFWithError
	KindAckFinished
	KindNAKTimer
	KindInactivityTimer
	KindFinishedAckTimer
	KindSuspend
	KindResume
	KindCancel
)

// Event is the tagged-variant input to Receiver.Handle. Concrete types
// below each carry one Kind's payload.
type Event interface {
	Kind() Kind
}

// MetadataEvent is E10 METADATA_PDU.
type MetadataEvent struct{ Metadata pdu.Metadata }

func (MetadataEvent) Kind() Kind { return KindMetadata }

// FileDataEvent is E11 FILEDATA_PDU.
type FileDataEvent struct{ FileData pdu.FileData }

func (FileDataEvent) Kind() Kind { return KindFileData }

// EOFEvent is E12 EOF_NO_ERROR_PDU or E13 EOF_WITH_ERROR_PDU,
// distinguished by WithError.
type EOFEvent struct {
	EOF       pdu.EOF
	WithError bool
}

func (e EOFEvent) Kind() Kind {
	if e.WithError {
		return KindEOFWithError
	}
	return KindEOFNoError
}

// AckFinishedEvent is E14 ACK_FINISHED_PDU (Class-2 only).
type AckFinishedEvent struct{ ACK pdu.ACK }

func (AckFinishedEvent) Kind() Kind { return KindAckFinished }

// NAKTimerEvent is E_NAK_TIMER.
type NAKTimerEvent struct{}

func (NAKTimerEvent) Kind() Kind { return KindNAKTimer }

// InactivityTimerEvent is E_INACTIVITY_TIMER.
type InactivityTimerEvent struct{}

func (InactivityTimerEvent) Kind() Kind { return KindInactivityTimer }

// FinishedAckTimerEvent is E_FINISHED_ACK_TIMER.
type FinishedAckTimerEvent struct{}

func (FinishedAckTimerEvent) Kind() Kind { return KindFinishedAckTimer }

// SuspendEvent is E_SUSPEND, from the outer entity.
type SuspendEvent struct{}

func (SuspendEvent) Kind() Kind { return KindSuspend }

// ResumeEvent is E_RESUME, from the outer entity.
type ResumeEvent struct{}

func (ResumeEvent) Kind() Kind { return KindResume }

// CancelEvent is E_CANCEL, from the outer entity.
type CancelEvent struct{}

func (CancelEvent) Kind() Kind { return KindCancel }
