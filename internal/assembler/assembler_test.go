package assembler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/amrcfdp/cfdp-receiver/internal/pdu"
)

func newTestAssembler(t *testing.T) (*Assembler, string) {
	t.Helper()
	dir := t.TempDir()
	id := pdu.TransactionID{SourceEntityID: 7, TransactionSeqNo: 42}
	a, err := Open(filepath.Join(dir, "tempfiles"), id)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return a, dir
}

func TestWrite_OutOfOrderReassemblesExactly(t *testing.T) {
	a, _ := newTestAssembler(t)

	segments := []struct {
		offset uint64
		data   []byte
	}{
		{2048, []byte("CCCCCCCCCCCCCCCC")},
		{0, []byte("AAAAAAAAAAAAAAAA")},
		{1024, []byte("BBBBBBBBBBBBBBBB")},
	}
	for _, s := range segments {
		if err := a.Write(s.offset, s.data); err != nil {
			t.Fatalf("Write(%d): %v", s.offset, err)
		}
	}

	result, err := a.Finalize(2064, 0)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	_ = result

	b, err := os.ReadFile(a.TempPath())
	if err != nil {
		t.Fatalf("read tempfile: %v", err)
	}
	if string(b[0:16]) != "AAAAAAAAAAAAAAAA" {
		t.Fatalf("segment at 0 mismatched")
	}
	if string(b[1024:1040]) != "BBBBBBBBBBBBBBBB" {
		t.Fatalf("segment at 1024 mismatched")
	}
	if string(b[2048:2064]) != "CCCCCCCCCCCCCCCC" {
		t.Fatalf("segment at 2048 mismatched")
	}
}

func TestWrite_OverlapLaterWins(t *testing.T) {
	a, _ := newTestAssembler(t)
	if err := a.Write(0, []byte("AAAAAAAAAAAAAAAAAAAA")); err != nil { // [0,20)
		t.Fatalf("write 1: %v", err)
	}
	if err := a.Write(10, []byte("BBBBBBBBBB")); err != nil { // [10,20)
		t.Fatalf("write 2: %v", err)
	}
	if _, err := a.Finalize(20, 0); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	b, err := os.ReadFile(a.TempPath())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "AAAAAAAAAABBBBBBBBBB" {
		t.Fatalf("overlap region did not take the later write: %q", string(b))
	}
}

func TestWrite_DuplicateIdenticalContentIsNoop(t *testing.T) {
	a, _ := newTestAssembler(t)
	if err := a.Write(0, []byte("hello")); err != nil {
		t.Fatalf("write 1: %v", err)
	}
	if err := a.Write(0, []byte("hello")); err != nil {
		t.Fatalf("write 2: %v", err)
	}
	b, err := os.ReadFile(a.TempPath())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "hello" {
		t.Fatalf("got %q, want %q", string(b), "hello")
	}
}

func TestFinalize_ChecksumMatch(t *testing.T) {
	a, _ := newTestAssembler(t)
	// Two words: 0x00000001 and 0x00000002 -> modular sum 0x00000003.
	data := []byte{0, 0, 0, 1, 0, 0, 0, 2}
	if err := a.Write(0, data); err != nil {
		t.Fatalf("write: %v", err)
	}
	result, err := a.Finalize(uint64(len(data)), 3)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !result.OK || result.ComputedChecksum != 3 {
		t.Fatalf("result = %+v, want OK with checksum 3", result)
	}
}

func TestFinalize_ChecksumMismatch(t *testing.T) {
	a, _ := newTestAssembler(t)
	data := []byte{0, 0, 0, 1}
	if err := a.Write(0, data); err != nil {
		t.Fatalf("write: %v", err)
	}
	result, err := a.Finalize(uint64(len(data)), 0xDEADBEEF)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if result.OK {
		t.Fatalf("expected checksum mismatch, got OK")
	}
}

func TestFinalize_PartialTrailingWordZeroPadded(t *testing.T) {
	a, _ := newTestAssembler(t)
	// Three bytes: 0x00 0x00 0x01 -> left-aligned, zero-padded to 0x00000100.
	data := []byte{0x00, 0x00, 0x01}
	if err := a.Write(0, data); err != nil {
		t.Fatalf("write: %v", err)
	}
	result, err := a.Finalize(uint64(len(data)), 0x00000100)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !result.OK {
		t.Fatalf("expected partial-word checksum to match, got %+v", result)
	}
}

func TestPromote_MovesToDestination(t *testing.T) {
	a, dir := newTestAssembler(t)
	if err := a.Write(0, []byte("payload")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := a.Finalize(7, 0); err != nil {
		// The checksum will mismatch, but that is reported through
		// Result.OK rather than err; Promote checks neither, so ignore
		// any error here and promote anyway to exercise the rename path
		// in isolation.
		_ = err
	}
	dest := filepath.Join(dir, "incoming", "nested", "out.bin")
	warn, err := a.Promote(dest)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if warn {
		t.Fatalf("expected same-filesystem rename to not warn")
	}
	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("destination file missing after promote: %v", err)
	}
	if _, err := os.Stat(a.TempPath()); !os.IsNotExist(err) {
		t.Fatalf("tempfile should be gone after promote")
	}
}

func TestDiscard_RemovesTempFile(t *testing.T) {
	a, _ := newTestAssembler(t)
	if err := a.Write(0, []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := a.Discard(); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if _, err := os.Stat(a.TempPath()); !os.IsNotExist(err) {
		t.Fatalf("expected tempfile removed after discard")
	}
}

func TestDiscard_Idempotent(t *testing.T) {
	a, _ := newTestAssembler(t)
	if err := a.Discard(); err != nil {
		t.Fatalf("first discard: %v", err)
	}
	if err := a.Discard(); err != nil {
		t.Fatalf("second discard should be a no-op, got: %v", err)
	}
}
