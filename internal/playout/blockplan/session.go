package blockplan

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alxayo/playout-engine/internal/perr"
)

// SessionContext is the per-session shared state the external control
// API writes into and the PipelineManager reads from: a mutex-guarded
// queue of FedBlocks, a condition variable signaled on enqueue, and an
// atomic stop flag. Created at session start, discarded at session end.
type SessionContext struct {
	ChannelID string
	SessionID string
	Width     int
	Height    int

	mu            sync.Mutex
	notEmpty      *sync.Cond
	queue         []FedBlock
	lastEndUTCMs  int64
	haveLast      bool
	lastCommitSeq int64
	haveCommitSeq bool
	seenBlockIDs  map[string]struct{}
	createdAt     time.Time

	stopRequested atomic.Bool
}

// NewSessionContext constructs an empty session queue for the given
// channel and fixed output resolution. createdAt anchors "session now"
// for the STALE_BLOCK_FROM_CORE check: block timestamps are milliseconds
// elapsed since the session began (see pipeline.Manager.sessionEpochUTCMs),
// so a freshly-created session has not elapsed any of its own timeline yet.
func NewSessionContext(channelID string, width, height int) *SessionContext {
	ctx := &SessionContext{
		ChannelID:    channelID,
		SessionID:    uuid.New().String(),
		Width:        width,
		Height:       height,
		seenBlockIDs: make(map[string]struct{}),
		createdAt:    time.Now(),
	}
	ctx.notEmpty = sync.NewCond(&ctx.mu)
	return ctx
}

// EnqueueBlock validates and appends a block to the session queue,
// signaling the tick thread's wait. Validation enforces the input
// taxonomy from the error handling design: duplicate IDs, non-contiguous
// starts, stale commit sequence numbers, and segment-duration mismatches
// are all rejected before the block ever reaches the tick loop.
func (c *SessionContext) EnqueueBlock(b FedBlock) error {
	if b.SumSegmentDurationsMs() != b.DurationMs() {
		return perr.NewSegmentDurationMismatchError("blockplan.enqueue", nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, dup := c.seenBlockIDs[b.BlockID]; dup {
		return perr.NewDuplicateBlockError("blockplan.enqueue", nil)
	}
	if c.haveCommitSeq && b.CommitSeq <= c.lastCommitSeq {
		return perr.NewStaleBlockError("blockplan.enqueue", nil)
	}
	if b.EndUTCMs <= time.Since(c.createdAt).Milliseconds() {
		return perr.NewStaleBlockError("blockplan.enqueue", nil)
	}
	if c.haveLast && b.StartUTCMs != c.lastEndUTCMs {
		return perr.NewBlockNotContiguousError("blockplan.enqueue", nil)
	}

	c.seenBlockIDs[b.BlockID] = struct{}{}
	c.lastEndUTCMs = b.EndUTCMs
	c.haveLast = true
	c.lastCommitSeq = b.CommitSeq
	c.haveCommitSeq = true
	c.queue = append(c.queue, b)
	c.notEmpty.Signal()
	return nil
}

// TryDequeue pops the next block without blocking. Returns ok=false if
// the queue is empty.
func (c *SessionContext) TryDequeue() (FedBlock, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return FedBlock{}, false
	}
	b := c.queue[0]
	c.queue = c.queue[1:]
	return b, true
}

// Peek returns the head of the queue without removing it, for the
// "outside the timed window" preload-kickoff check.
func (c *SessionContext) Peek() (FedBlock, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return FedBlock{}, false
	}
	return c.queue[0], true
}

// QueueLen reports the current queue depth (diagnostics only).
func (c *SessionContext) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// RequestStop sets the session's atomic stop flag and wakes anything
// blocked on the queue condition variable.
func (c *SessionContext) RequestStop() {
	c.stopRequested.Store(true)
	c.mu.Lock()
	c.notEmpty.Broadcast()
	c.mu.Unlock()
}

// StopRequested reports whether RequestStop has been called.
func (c *SessionContext) StopRequested() bool {
	return c.stopRequested.Load()
}
