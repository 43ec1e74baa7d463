// Package importer turns Mascot and OMSSA search results into a flat-file
// dataset: it drives the format readers, resolves modifications, matches
// fragment ions to peaks and writes the records of every accepted
// identification.
package importer

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

// RunContext carries the state of one run through the importers: the
// identification and fragment ion counters, the cancellation flag and the
// progress and notice sinks. Counters continue across input files.
type RunContext struct {
	lastIdentification int
	lastFragmentIon    int
	unmatched          int
	cancelled          atomic.Bool

	ctx      context.Context
	progress ProgressSink
	notices  NoticeSink
	logger   *zap.Logger
}

// NewRunContext creates a run context. A nil progress or notice sink
// discards what it would receive.
func NewRunContext(ctx context.Context, progress ProgressSink, notices NoticeSink, logger *zap.Logger) *RunContext {
	if ctx == nil {
		ctx = context.Background()
	}
	if progress == nil {
		progress = NopProgress{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunContext{ctx: ctx, progress: progress, notices: notices, logger: logger}
}

// NextIdentificationID assigns the next identification id, starting at 1
func (rc *RunContext) NextIdentificationID() int {
	rc.lastIdentification++
	return rc.lastIdentification
}

// NextFragmentIonID assigns the next fragment ion counter, starting at 1
func (rc *RunContext) NextFragmentIonID() int {
	rc.lastFragmentIon++
	return rc.lastFragmentIon
}

// Identifications returns the number of identification ids assigned
func (rc *RunContext) Identifications() int {
	return rc.lastIdentification
}

// FragmentIons returns the number of fragment ion counters assigned
func (rc *RunContext) FragmentIons() int {
	return rc.lastFragmentIon
}

// UnmatchedIons returns the number of theoretical ions without an observed peak
func (rc *RunContext) UnmatchedIons() int {
	return rc.unmatched
}

// Cancel requests the run to stop at the next checkpoint. Safe to call
// from any goroutine.
func (rc *RunContext) Cancel() {
	rc.cancelled.Store(true)
}

// Cancelled reports whether the run was cancelled directly or through its context
func (rc *RunContext) Cancelled() bool {
	if rc.cancelled.Load() {
		return true
	}
	select {
	case <-rc.ctx.Done():
		return true
	default:
		return false
	}
}

// checkpoint returns ErrCancelled once the run is cancelled
func (rc *RunContext) checkpoint() error {
	if rc.Cancelled() {
		return ErrCancelled
	}
	return nil
}

func (rc *RunContext) notify(n Notice) {
	if n.Kind == NoticeUnmatchedIon {
		rc.unmatched++
	}
	rc.logger.Warn(n.Message,
		zap.String("file", n.File),
		zap.Int("identification", n.IdentificationID),
		zap.String("ion", n.Ion),
		zap.Float64("mz", n.MZ))
	if rc.notices != nil {
		rc.notices.Notice(n)
	}
}
