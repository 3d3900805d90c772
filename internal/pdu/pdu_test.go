package pdu

import (
	"strings"
	"testing"
)

func TestMetadata_Validate_NormalizesAndAccepts(t *testing.T) {
	m := &Metadata{SourcePath: "a/b/x.bin", DestinationPath: "dst/x.bin"}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if m.SourcePath != "a/b/x.bin" || m.DestinationPath != "dst/x.bin" {
		t.Fatalf("Validate mutated ASCII paths unexpectedly: %+v", m)
	}
}

func TestMetadata_Validate_RejectsOverlongPath(t *testing.T) {
	m := &Metadata{SourcePath: strings.Repeat("a", MaxPathOctets+1), DestinationPath: "x"}
	if err := m.Validate(); err == nil {
		t.Fatalf("expected error for source_path over %d octets", MaxPathOctets)
	}
}

func TestMetadata_Validate_RejectsOverlongDestination(t *testing.T) {
	m := &Metadata{SourcePath: "x", DestinationPath: strings.Repeat("b", MaxPathOctets+1)}
	if err := m.Validate(); err == nil {
		t.Fatalf("expected error for destination_path over %d octets", MaxPathOctets)
	}
}

func TestFileData_End(t *testing.T) {
	fd := FileData{SegmentOffset: 1024, Data: make([]byte, 256)}
	if got := fd.End(); got != 1280 {
		t.Fatalf("End() = %d, want 1280", got)
	}
}

func TestTransactionID_String(t *testing.T) {
	id := TransactionID{SourceEntityID: 7, TransactionSeqNo: 42}
	if got := id.String(); got != "7:42" {
		t.Fatalf("String() = %q, want %q", got, "7:42")
	}
}
