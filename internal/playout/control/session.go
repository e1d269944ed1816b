// Package control implements the engine's external Control API:
// EnqueueBlock, Start, Stop (spec.md §6). The engine owns its own tick
// thread; every call here is non-blocking from the caller's point of
// view, matching the "controller is non-blocking" contract.
package control

import (
	"context"
	"log/slog"

	"github.com/alxayo/playout-engine/internal/playout/blockplan"
	"github.com/alxayo/playout-engine/internal/playout/hooks"
	"github.com/alxayo/playout-engine/internal/playout/metrics"
	"github.com/alxayo/playout-engine/internal/playout/pipeline"
)

// Session is one channel's external control surface. It owns the
// session's block queue and wraps a pipeline.Manager, translating its
// lifecycle callbacks into hook events for the external collaborators
// named in spec.md §6 (remote control surface, metrics endpoint).
type Session struct {
	channelID string
	queue     *blockplan.SessionContext
	manager   *pipeline.Manager
	hookMgr   *hooks.Manager
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New constructs a Session bound to one channel. hookMgr may be nil to
// disable lifecycle notification.
func New(channelID string, width, height int, pipelineCfg pipeline.Config, hookMgr *hooks.Manager, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	queue := blockplan.NewSessionContext(channelID, width, height)

	s := &Session{
		channelID: channelID,
		queue:     queue,
		hookMgr:   hookMgr,
		metrics:   pipelineCfg.Metrics,
		logger:    logger,
	}

	cb := pipeline.Callbacks{
		OnBlockCompleted: s.onBlockCompleted,
		OnSessionEnded:   s.onSessionEnded,
		OnSeamTransition: s.onSeamTransition,
	}
	s.manager = pipeline.New(pipelineCfg, queue, cb)
	return s
}

// EnqueueBlock validates and appends a block to the session queue. It
// never blocks the caller; the tick thread pops blocks on its own
// schedule. Validation failures (stale commit sequence, non-contiguous
// start, duplicate ID, segment-duration mismatch) return the matching
// internal/perr error without touching engine state.
func (s *Session) EnqueueBlock(b blockplan.FedBlock) error {
	if err := s.queue.EnqueueBlock(b); err != nil {
		s.logger.Warn("block rejected", "block_id", b.BlockID, "error", err)
		return err
	}
	s.fire(hooks.EventBlockLoaded, b.BlockID, "", nil)
	return nil
}

// Start opens the sink once and launches the tick thread.
func (s *Session) Start() error {
	if err := s.manager.Start(); err != nil {
		return err
	}
	s.fire(hooks.EventSessionStarted, "", "", nil)
	return nil
}

// Stop requests shutdown, cancels any in-flight preload, and joins the
// tick thread before returning.
func (s *Session) Stop() {
	s.manager.Stop()
}

// Metrics exposes this session's metrics instance for the exposition
// endpoint (see cmd/playout-engine).
func (s *Session) Metrics() *metrics.Metrics { return s.metrics }

// QueueDepth reports the number of blocks currently pending, for
// diagnostics and the control surface's backlog reporting.
func (s *Session) QueueDepth() int { return s.queue.QueueLen() }

func (s *Session) onBlockCompleted(blockID string) {
	s.fire(hooks.EventBlockCompleted, blockID, "", nil)
}

func (s *Session) onSessionEnded(reason string) {
	s.fire(hooks.EventSessionEnded, "", "", map[string]interface{}{"reason": reason})
}

func (s *Session) onSeamTransition(fromSegmentID, toSegmentID, kind string) {
	s.fire(hooks.EventSeamTransition, "", toSegmentID, map[string]interface{}{
		"from": fromSegmentID,
		"kind": kind,
	})
}

func (s *Session) fire(t hooks.EventType, blockID, segmentID string, data map[string]interface{}) {
	if s.hookMgr == nil {
		return
	}
	ev := hooks.NewEvent(t).WithChannelID(s.channelID)
	if blockID != "" {
		ev = ev.WithBlockID(blockID)
	}
	if segmentID != "" {
		ev = ev.WithSegmentID(segmentID)
	}
	for k, v := range data {
		ev = ev.WithData(k, v)
	}
	s.hookMgr.TriggerEvent(context.Background(), *ev)
}
