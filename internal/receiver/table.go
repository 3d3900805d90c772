package receiver

import "context"

// handlerFunc is one (State, Kind) transition function. table is the
// function-pointer dispatch table spec.md §9 calls for, keyed by the
// two enums rather than any dynamic attribute lookup.
type handlerFunc func(ctx context.Context, r *Receiver, ev Event) error

var table = map[State]map[Kind]handlerFunc{
	StateAwaitingMetadata: {
		KindMetadata:        handleMetadata,
		KindFileData:        handleBufferFileData,
		KindEOFNoError:      handleStashEOF,
		KindEOFWithError:    handleStashEOF,
		KindInactivityTimer: handleInactivityTimer,
	},
	StateReceiving: {
		KindFileData:        handleFileDataReceiving,
		KindEOFNoError:      handleEOFReceiving,
		KindEOFWithError:    handleEOFReceiving,
		KindNAKTimer:        handleNAKTimer,
		KindInactivityTimer: handleInactivityTimer,
	},
	StateSendingFinished: {
		KindAckFinished:      handleAckFinished,
		KindFinishedAckTimer: handleFinishedAckTimer,
	},
}
