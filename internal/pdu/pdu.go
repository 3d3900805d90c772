// Package pdu defines the shape of the inbound/outbound CFDP events the
// receiver core consumes and emits. The wire codec (octet-stream ⇄
// these structs) is an external collaborator; this package only
// carries the decoded field set enumerated in spec.md §3 and §6.
package pdu

import (
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// MaxPathOctets is the CFDP wire limit on a length-prefixed path
// string: one octet of length, so at most 255 octets of content.
const MaxPathOctets = 255

// PDUType distinguishes the two CFDP PDU categories the core cares
// about; transmission_mode and direction are carried alongside on
// Header but are not separately modeled as they don't drive branching
// in this core beyond ACKNOWLEDGED vs UNACKNOWLEDGED (see TransmissionMode).
type PDUType uint8

const (
	FileDirective PDUType = iota
	FileData
)

// TransmissionMode selects between Class-1 (UNACKNOWLEDGED) and
// Class-2 (ACKNOWLEDGED) delivery semantics. The zero value,
// Unspecified, is distinct from Unacknowledged: it means the codec
// (or a hand-built Header) never set a definitive mode, so the
// receiver should fall back to its configured default instead of
// silently treating the PDU as Class-1 (spec.md §6
// transmission_mode_default).
type TransmissionMode uint8

const (
	Unspecified TransmissionMode = iota
	Unacknowledged
	Acknowledged
)

// Header carries the fields spec.md §3 says the core consumes from
// every PDU.
type Header struct {
	SourceEntityID      uint64
	DestinationEntityID uint64
	TransactionSeqNo    uint64
	PDUType             PDUType
	TransmissionMode    TransmissionMode
}

// TransactionID uniquely identifies one receiver transaction.
type TransactionID struct {
	SourceEntityID   uint64
	TransactionSeqNo uint64
}

func (t TransactionID) String() string {
	return fmt.Sprintf("%d:%d", t.SourceEntityID, t.TransactionSeqNo)
}

// Metadata is the decoded Metadata PDU (spec.md §3).
type Metadata struct {
	Header          Header
	SourcePath      string
	DestinationPath string
	FileSize        uint64 // 0 means unbounded/unknown at send time
}

// Validate normalizes and length-checks the path octet strings the
// way the codec layer is expected to have already validated on the
// wire; the core re-checks because a hand-built Metadata (tests, or a
// future alternate codec) might skip that step.
func (m *Metadata) Validate() error {
	src, err := normalizePath(m.SourcePath)
	if err != nil {
		return fmt.Errorf("source_path: %w", err)
	}
	dst, err := normalizePath(m.DestinationPath)
	if err != nil {
		return fmt.Errorf("destination_path: %w", err)
	}
	m.SourcePath, m.DestinationPath = src, dst
	return nil
}

func normalizePath(p string) (string, error) {
	n := norm.NFC.String(p)
	if len(n) > MaxPathOctets {
		return "", fmt.Errorf("path exceeds %d octets: %d", MaxPathOctets, len(n))
	}
	return n, nil
}

// FileData is the decoded File-Data PDU (spec.md §3). A segment
// occupies [SegmentOffset, SegmentOffset+len(Data)).
type FileData struct {
	Header        Header
	SegmentOffset uint64
	Data          []byte
}

// End returns the exclusive end of the byte range this segment covers.
func (f FileData) End() uint64 { return f.SegmentOffset + uint64(len(f.Data)) }

// EOF is the decoded EOF PDU (spec.md §3).
type EOF struct {
	Header        Header
	ConditionCode string
	FileChecksum  uint32
	FileSize      uint64
}

// Range is a half-open byte range [Start, End).
type Range struct {
	Start uint64
	End   uint64
}

// NAK is the outbound NAK PDU (spec.md §3).
type NAK struct {
	Header          Header
	StartOfScope    uint64
	EndOfScope      uint64
	SegmentRequests []Range
}

// DeliveryCode is carried on a Finished PDU.
type DeliveryCode uint8

const (
	Complete DeliveryCode = iota
	Incomplete
)

// FileStatus is carried on a Finished PDU.
type FileStatus uint8

const (
	StatusUnreported FileStatus = iota
	Discarded
	RetainedInFilestore
	Rejected
)

// Finished is the outbound Finished PDU (spec.md §3).
type Finished struct {
	Header        Header
	ConditionCode string
	DeliveryCode  DeliveryCode
	FileStatus    FileStatus
}

// AckedDirective distinguishes which directive an ACK acknowledges.
type AckedDirective uint8

const (
	AckEOF AckedDirective = iota
	AckFinished
)

// ACK is the inbound/outbound ACK PDU (spec.md §3).
type ACK struct {
	Header        Header
	Directive     AckedDirective
	ConditionCode string
}
