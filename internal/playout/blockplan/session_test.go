package blockplan

import (
	"errors"
	"testing"

	"github.com/alxayo/playout-engine/internal/perr"
)

func block(id string, start, end, seq int64) FedBlock {
	return FedBlock{
		BlockID:    id,
		ChannelID:  "ch1",
		StartUTCMs: start,
		EndUTCMs:   end,
		CommitSeq:  seq,
		Segments: []Segment{
			{Index: 0, SegmentType: SegmentContent, AssetURI: "file:///a.mov", SegmentDurationMs: end - start},
		},
	}
}

func TestEnqueueContiguousBlocks(t *testing.T) {
	ctx := NewSessionContext("ch1", 640, 480)
	if err := ctx.EnqueueBlock(block("b1", 0, 5000, 1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ctx.EnqueueBlock(block("b2", 5000, 10000, 2)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctx.QueueLen() != 2 {
		t.Fatalf("expected queue len 2, got %d", ctx.QueueLen())
	}
}

func TestEnqueueRejectsNonContiguous(t *testing.T) {
	ctx := NewSessionContext("ch1", 640, 480)
	if err := ctx.EnqueueBlock(block("b1", 0, 5000, 1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := ctx.EnqueueBlock(block("b2", 6000, 11000, 2))
	if err == nil || !perr.IsViolation(err) {
		t.Fatalf("expected a violation error, got %v", err)
	}
	var ce *perr.BlockNotContiguousError
	if !errors.As(err, &ce) {
		t.Fatalf("expected BlockNotContiguousError, got %T", err)
	}
}

func TestEnqueueRejectsDuplicate(t *testing.T) {
	ctx := NewSessionContext("ch1", 640, 480)
	if err := ctx.EnqueueBlock(block("b1", 0, 5000, 1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := ctx.EnqueueBlock(block("b1", 5000, 10000, 2))
	if err == nil {
		t.Fatalf("expected duplicate rejection")
	}
}

func TestEnqueueRejectsStaleCommitSeq(t *testing.T) {
	ctx := NewSessionContext("ch1", 640, 480)
	if err := ctx.EnqueueBlock(block("b1", 0, 5000, 5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := ctx.EnqueueBlock(block("b2", 5000, 10000, 3))
	if err == nil {
		t.Fatalf("expected stale commit seq rejection")
	}
}

func TestEnqueueRejectsStaleWallClock(t *testing.T) {
	ctx := NewSessionContext("ch1", 640, 480)
	// end_utc_ms is already behind "session now" (session elapsed time is
	// always >= 0), so this must be rejected regardless of commit sequence
	// or contiguity, per spec.md §7's "end_utc_ms <= session now" rule.
	err := ctx.EnqueueBlock(block("b1", -2000, -1000, 1))
	if err == nil || !perr.IsViolation(err) {
		t.Fatalf("expected a violation error, got %v", err)
	}
	var se *perr.StaleBlockError
	if !errors.As(err, &se) {
		t.Fatalf("expected StaleBlockError, got %T", err)
	}
}

func TestEnqueueRejectsDurationMismatch(t *testing.T) {
	ctx := NewSessionContext("ch1", 640, 480)
	b := block("b1", 0, 5000, 1)
	b.Segments[0].SegmentDurationMs = 4000 // mismatch vs block's 5000ms span
	if err := ctx.EnqueueBlock(b); err == nil {
		t.Fatalf("expected segment duration mismatch rejection")
	}
}

func TestTryDequeueFIFO(t *testing.T) {
	ctx := NewSessionContext("ch1", 640, 480)
	_ = ctx.EnqueueBlock(block("b1", 0, 5000, 1))
	_ = ctx.EnqueueBlock(block("b2", 5000, 10000, 2))

	b, ok := ctx.TryDequeue()
	if !ok || b.BlockID != "b1" {
		t.Fatalf("expected b1 first, got %+v ok=%v", b, ok)
	}
	b, ok = ctx.TryDequeue()
	if !ok || b.BlockID != "b2" {
		t.Fatalf("expected b2 second, got %+v ok=%v", b, ok)
	}
	if _, ok := ctx.TryDequeue(); ok {
		t.Fatalf("expected empty queue")
	}
}

func TestPeekDoesNotRemove(t *testing.T) {
	ctx := NewSessionContext("ch1", 640, 480)
	_ = ctx.EnqueueBlock(block("b1", 0, 5000, 1))
	if b, ok := ctx.Peek(); !ok || b.BlockID != "b1" {
		t.Fatalf("expected to peek b1")
	}
	if ctx.QueueLen() != 1 {
		t.Fatalf("peek must not remove from queue")
	}
}

func TestRequestStop(t *testing.T) {
	ctx := NewSessionContext("ch1", 640, 480)
	if ctx.StopRequested() {
		t.Fatalf("should not be stopped initially")
	}
	ctx.RequestStop()
	if !ctx.StopRequested() {
		t.Fatalf("expected stop requested")
	}
}
