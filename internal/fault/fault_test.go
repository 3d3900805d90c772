package fault

import (
	"errors"
	"testing"
)

func TestHandlerTable_Resolve_NoErrorAlwaysIgnored(t *testing.T) {
	table := HandlerTable{NoError: Abandon} // even if misconfigured
	if got := table.Resolve(NoError); got != Ignore {
		t.Fatalf("Resolve(NoError) = %v, want Ignore regardless of table contents", got)
	}
}

func TestHandlerTable_Resolve_DefaultsToCancellationWhenUnconfigured(t *testing.T) {
	table := HandlerTable{}
	if got := table.Resolve(FileChecksumFailure); got != NoticeOfCancellation {
		t.Fatalf("Resolve(unconfigured) = %v, want NoticeOfCancellation", got)
	}
}

func TestHandlerTable_Resolve_ConfiguredOverride(t *testing.T) {
	table := HandlerTable{NAKLimitReached: Abandon}
	if got := table.Resolve(NAKLimitReached); got != Abandon {
		t.Fatalf("Resolve(configured) = %v, want Abandon", got)
	}
}

func TestDefaultHandlers_CancelsEveryKnownFault(t *testing.T) {
	handlers := DefaultHandlers()
	for _, code := range []Code{
		PositiveACKLimitReached, NAKLimitReached, InactivityDetected,
		FileChecksumFailure, FileSizeError, FilestoreRejection, CancelRequestReceived,
	} {
		if got := handlers.Resolve(code); got != NoticeOfCancellation {
			t.Fatalf("DefaultHandlers().Resolve(%s) = %v, want NoticeOfCancellation", code, got)
		}
	}
}

func TestCondition_UnwrapExposesUnderlyingError(t *testing.T) {
	cause := errors.New("disk full")
	cond := New(FilestoreRejection, "assembler.write", cause)
	if !errors.Is(cond, cause) {
		t.Fatalf("errors.Is(cond, cause) = false, want true via Unwrap")
	}
}

func TestCondition_ErrorStringWithoutCause(t *testing.T) {
	cond := New(InactivityDetected, "no pdu received", nil)
	want := "INACTIVITY_DETECTED: no pdu received"
	if cond.Error() != want {
		t.Fatalf("Error() = %q, want %q", cond.Error(), want)
	}
}
