package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/amrcfdp/cfdp-receiver/internal/pdu"
	"github.com/amrcfdp/cfdp-receiver/internal/receiver"
)

// ReplayStep is one element of a captured PDU sequence file: a tagged
// union decoded into the matching receiver.Event. This JSON shape is
// this repo's own test-harness format, not a CFDP wire encoding — the
// wire codec is an external collaborator (spec.md's stated non-goal).
type ReplayStep struct {
	Kind             string `json:"kind"`
	SourceEntityID   uint64 `json:"source_entity_id,omitempty"`
	SourcePath       string `json:"source_path,omitempty"`
	DestinationPath  string `json:"destination_path,omitempty"`
	FileSize         uint64 `json:"file_size,omitempty"`
	SegmentOffset    uint64 `json:"segment_offset,omitempty"`
	Data             []byte `json:"data,omitempty"`
	ConditionCode    string `json:"condition_code,omitempty"`
	FileChecksum     uint32 `json:"file_checksum,omitempty"`
	TransmissionMode string `json:"transmission_mode,omitempty"` // "ACKNOWLEDGED" or "UNACKNOWLEDGED"; empty leaves pdu.Unspecified so transmission_mode_default decides
}

// LoadReplaySteps reads a JSON array of ReplayStep from path.
func LoadReplaySteps(path string) ([]ReplayStep, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cli: read replay file: %w", err)
	}
	var steps []ReplayStep
	if err := json.Unmarshal(b, &steps); err != nil {
		return nil, fmt.Errorf("cli: parse replay file: %w", err)
	}
	return steps, nil
}

// transmissionMode decodes the step's transmission_mode field,
// defaulting to pdu.Unspecified (so the receiver falls back to its
// configured transmission_mode_default) when the field is absent.
func (s ReplayStep) transmissionMode() pdu.TransmissionMode {
	switch s.TransmissionMode {
	case "ACKNOWLEDGED":
		return pdu.Acknowledged
	case "UNACKNOWLEDGED":
		return pdu.Unacknowledged
	default:
		return pdu.Unspecified
	}
}

// ToEvent converts one ReplayStep into the receiver.Event it names.
func (s ReplayStep) ToEvent() (receiver.Event, error) {
	switch s.Kind {
	case "metadata":
		return receiver.MetadataEvent{Metadata: pdu.Metadata{
			Header:          pdu.Header{SourceEntityID: s.SourceEntityID, TransmissionMode: s.transmissionMode()},
			SourcePath:      s.SourcePath,
			DestinationPath: s.DestinationPath,
			FileSize:        s.FileSize,
		}}, nil
	case "filedata":
		return receiver.FileDataEvent{FileData: pdu.FileData{
			SegmentOffset: s.SegmentOffset,
			Data:          s.Data,
		}}, nil
	case "eof":
		return receiver.EOFEvent{EOF: pdu.EOF{
			ConditionCode: s.ConditionCode,
			FileChecksum:  s.FileChecksum,
			FileSize:      s.FileSize,
		}}, nil
	case "eof_error":
		return receiver.EOFEvent{WithError: true, EOF: pdu.EOF{
			ConditionCode: s.ConditionCode,
			FileSize:      s.FileSize,
		}}, nil
	case "ack_finished":
		return receiver.AckFinishedEvent{}, nil
	case "suspend":
		return receiver.SuspendEvent{}, nil
	case "resume":
		return receiver.ResumeEvent{}, nil
	case "cancel":
		return receiver.CancelEvent{}, nil
	default:
		return nil, fmt.Errorf("cli: unknown replay step kind %q", s.Kind)
	}
}
