package gaptracker

import "testing"

func rangesEqual(a, b []Range) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewWithSize_StartsFullyMissing(t *testing.T) {
	tr := NewWithSize(4096)
	if tr.IsComplete() {
		t.Fatalf("expected incomplete tracker right after init")
	}
	missing := tr.Missing()
	want := []Range{{Start: 0, End: 4096}}
	if !rangesEqual(missing, want) {
		t.Fatalf("missing = %+v, want %+v", missing, want)
	}
}

func TestMarkReceived_InteriorGaps(t *testing.T) {
	tr := NewWithSize(4096)
	tr.MarkReceived(0, 1024)
	tr.MarkReceived(2048, 3072)

	got := tr.Missing()
	want := []Range{{Start: 1024, End: 2048}, {Start: 3072, End: 4096}}
	if !rangesEqual(got, want) {
		t.Fatalf("missing = %+v, want %+v", got, want)
	}
	if tr.IsComplete() {
		t.Fatalf("expected incomplete, two gaps remain")
	}
}

func TestMarkReceived_InteriorGapsBeforeBoundKnown(t *testing.T) {
	// The bound isn't pinned yet: interior gaps between out-of-order
	// segments must still show up, not just once SetUpperBound runs.
	tr := New()
	tr.MarkReceived(0, 1024)
	tr.MarkReceived(2048, 3072)

	got := tr.Missing()
	want := []Range{{Start: 1024, End: 2048}}
	if !rangesEqual(got, want) {
		t.Fatalf("missing before bound known = %+v, want %+v", got, want)
	}
}

func TestMarkReceived_FillsGapCompletesTracker(t *testing.T) {
	tr := NewWithSize(4096)
	tr.MarkReceived(0, 1024)
	tr.MarkReceived(2048, 4096)
	tr.MarkReceived(1024, 2048)

	if !tr.IsComplete() {
		t.Fatalf("expected complete after filling the only gap, missing=%+v", tr.Missing())
	}
}

func TestMarkReceived_Idempotent(t *testing.T) {
	tr := NewWithSize(4096)
	tr.MarkReceived(0, 2048)
	before := tr.Missing()
	tr.MarkReceived(0, 2048)
	after := tr.Missing()
	if !rangesEqual(before, after) {
		t.Fatalf("duplicate MarkReceived changed the gap set: before=%+v after=%+v", before, after)
	}
}

func TestMarkReceived_Overlapping(t *testing.T) {
	tr := NewWithSize(4096)
	tr.MarkReceived(0, 1500)
	tr.MarkReceived(1000, 2500)
	got := tr.Missing()
	want := []Range{{Start: 2500, End: 4096}}
	if !rangesEqual(got, want) {
		t.Fatalf("missing = %+v, want %+v", got, want)
	}
}

func TestMarkReceived_OverrunBeyondBound(t *testing.T) {
	tr := NewWithSize(1024)
	overrun := tr.MarkReceived(512, 2048)
	if !overrun {
		t.Fatalf("expected overrun=true for a segment extending past the known bound")
	}
	got := tr.Missing()
	want := []Range{{Start: 0, End: 512}}
	if !rangesEqual(got, want) {
		t.Fatalf("missing after clipped overrun = %+v, want %+v", got, want)
	}
}

func TestSetUpperBound_RetroactiveOverrun(t *testing.T) {
	tr := New()
	tr.MarkReceived(0, 2048)
	overrun := tr.SetUpperBound(1024)
	if !overrun {
		t.Fatalf("expected overrun=true: data was already received past the new bound")
	}
	got := tr.Missing()
	if len(got) != 0 {
		t.Fatalf("expected no gaps after truncating to a fully-covered bound, got %+v", got)
	}
	if !tr.IsComplete() {
		t.Fatalf("expected complete after truncation removed the only gap")
	}
}

func TestSetUpperBound_Idempotent(t *testing.T) {
	tr := New()
	tr.MarkReceived(0, 100)
	tr.SetUpperBound(4096)
	overrun := tr.SetUpperBound(4096)
	if overrun {
		t.Fatalf("re-setting the same bound must not report overrun")
	}
}

func TestUpperBound(t *testing.T) {
	tr := New()
	if _, known := tr.UpperBound(); known {
		t.Fatalf("expected unknown bound on a fresh tracker")
	}
	tr.SetUpperBound(10)
	bound, known := tr.UpperBound()
	if !known || bound != 10 {
		t.Fatalf("UpperBound() = (%d, %v), want (10, true)", bound, known)
	}
}

func TestMarkReceived_ZeroLengthIsNoop(t *testing.T) {
	tr := NewWithSize(1024)
	if overrun := tr.MarkReceived(10, 10); overrun {
		t.Fatalf("zero-length mark must not report overrun")
	}
	want := []Range{{Start: 0, End: 1024}}
	if !rangesEqual(tr.Missing(), want) {
		t.Fatalf("zero-length mark changed the gap set: %+v", tr.Missing())
	}
}
