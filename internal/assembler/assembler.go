// Package assembler is the incremental file assembler: it writes
// payload segments into a sparse on-disk temporary file and, at
// completion, validates a CFDP modular checksum and promotes the file
// to its destination.
//
// The temp-then-atomic-rename write pattern is adapted from the
// teacher repo's segment cache writer (internal/streamer/segments.go's
// ensureSegment: write to a ".part" sibling, then os.Rename into
// place); concurrent duplicate writes are deduplicated with
// golang.org/x/sync/singleflight the same way the teacher's FUSE layer
// deduplicates concurrent fetches of the same byte range
// (internal/fusefs/rawfs.go's fetchGroup).
package assembler

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/amrcfdp/cfdp-receiver/internal/pdu"
)

// Result is the outcome of Finalize.
type Result struct {
	ComputedChecksum uint32
	OK               bool
}

// Assembler owns one transaction's temp file for its lifetime.
type Assembler struct {
	tempPath string
	file     *os.File

	mu   sync.Mutex
	sf   singleflight.Group
	seen map[uint64]string // offset -> content hash of last write at that offset, dedupe identical rewrites
}

// Open creates and truncates the temp file for transaction id,
// rooted under tempDir (spec.md §6 "tempfiles/", named
// tx_<source_id>_<seq>.part).
func Open(tempDir string, id pdu.TransactionID) (*Assembler, error) {
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("assembler: mkdir tempdir: %w", err)
	}
	path := filepath.Join(tempDir, fmt.Sprintf("tx_%d_%d.part", id.SourceEntityID, id.TransactionSeqNo))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("assembler: open tempfile: %w", err)
	}
	return &Assembler{tempPath: path, file: f, seen: make(map[uint64]string)}, nil
}

// TempPath returns the path of the transaction's temp file.
func (a *Assembler) TempPath() string { return a.tempPath }

// Write writes bytes at offset. Duplicate writes of identical content
// at the same offset are permitted and skipped; duplicate writes of
// differing content overwrite (the CFDP checksum compare at EOF is
// the authority on correctness, per spec.md §4.2). Concurrent writes
// to the same offset are collapsed via singleflight so only one
// physical write happens.
func (a *Assembler) Write(offset uint64, data []byte) error {
	key := fmt.Sprintf("%d", offset)
	_, err, _ := a.sf.Do(key, func() (interface{}, error) {
		a.mu.Lock()
		defer a.mu.Unlock()
		sum := hashBytes(data)
		if prior, ok := a.seen[offset]; ok && prior == sum {
			return nil, nil
		}
		if _, err := a.file.WriteAt(data, int64(offset)); err != nil {
			return nil, fmt.Errorf("assembler: write at %d: %w", offset, err)
		}
		a.seen[offset] = sum
		return nil, nil
	})
	return err
}

func hashBytes(b []byte) string {
	// A length-prefixed sum is enough to distinguish "same content
	// written twice" from "different content, same offset" without
	// paying for a cryptographic hash on every segment.
	var h uint64 = uint64(len(b))
	for _, c := range b {
		h = h*131 + uint64(c)
	}
	return fmt.Sprintf("%d:%d", len(b), h)
}

// Finalize truncates the temp file to expectedSize, computes the CFDP
// modular checksum, and compares it against expectedChecksum. The
// file is not promoted by this call.
func (a *Assembler) Finalize(expectedSize uint64, expectedChecksum uint32) (Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.file.Truncate(int64(expectedSize)); err != nil {
		return Result{}, fmt.Errorf("assembler: truncate: %w", err)
	}
	if _, err := a.file.Seek(0, io.SeekStart); err != nil {
		return Result{}, fmt.Errorf("assembler: seek: %w", err)
	}
	sum, err := modularChecksum(a.file)
	if err != nil {
		return Result{}, fmt.Errorf("assembler: checksum: %w", err)
	}
	return Result{ComputedChecksum: sum, OK: sum == expectedChecksum}, nil
}

// modularChecksum computes the CFDP modular checksum: the sum of
// 32-bit big-endian words of the file data, with the final partial
// word left-aligned and zero-padded (spec.md §4.2).
func modularChecksum(r io.Reader) (uint32, error) {
	var sum uint32
	buf := make([]byte, 4)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			word := buf
			if n < 4 {
				word = make([]byte, 4)
				copy(word, buf[:n])
			}
			sum += binary.BigEndian.Uint32(word)
		}
		if errors.Is(err, io.EOF) {
			return sum, nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return sum, nil
		}
		if err != nil {
			return 0, err
		}
	}
}

// Promote atomically moves the temp file to destinationPath, creating
// parent directories as needed. If the rename crosses a filesystem
// device, a copy-then-rename fallback is used and warn is set true to
// flag the loss of atomicity (spec.md §4.2).
func (a *Assembler) Promote(destinationPath string) (warn bool, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.file.Close(); err != nil {
		return false, fmt.Errorf("assembler: close tempfile: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(destinationPath), 0o755); err != nil {
		return false, fmt.Errorf("assembler: mkdir destination: %w", err)
	}

	err = os.Rename(a.tempPath, destinationPath)
	if err == nil {
		return false, nil
	}
	if !isCrossDevice(err) {
		return false, fmt.Errorf("assembler: rename: %w", err)
	}

	if cerr := copyThenRemove(a.tempPath, destinationPath); cerr != nil {
		return false, fmt.Errorf("assembler: cross-device copy: %w", cerr)
	}
	return true, nil
}

func copyThenRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	tmp := dst + ".part"
	out, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// isCrossDevice reports whether err is the kind of rename failure
// that indicates source and destination are on different filesystems
// (EXDEV). Portable detection short of syscall.Errno introspection:
// match the substring every Go platform's *os.LinkError wraps for
// this condition.
func isCrossDevice(err error) bool {
	return bytes.Contains([]byte(err.Error()), []byte("cross-device"))
}

// Discard unlinks the temp file.
func (a *Assembler) Discard() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.file.Close()
	if err := os.Remove(a.tempPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("assembler: discard: %w", err)
	}
	return nil
}
