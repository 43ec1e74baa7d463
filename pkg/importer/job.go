package importer

import "context"

// Job is a run executing on its own goroutine
type Job struct {
	pipeline *Pipeline
	cancel   context.CancelFunc
	done     chan struct{}
	result   Result
	err      error
}

// Start runs req on a new goroutine so the caller can keep serving user
// interaction and cancel the run at any time.
func Start(ctx context.Context, p *Pipeline, req Request) *Job {
	return startJob(ctx, p, func(ctx context.Context) (Result, error) {
		return p.Run(ctx, req)
	})
}

// StartExtract runs an extraction on a new goroutine
func StartExtract(ctx context.Context, p *Pipeline, src IdentificationSource, req ExtractRequest) *Job {
	return startJob(ctx, p, func(ctx context.Context) (Result, error) {
		return p.Extract(ctx, src, req)
	})
}

func startJob(ctx context.Context, p *Pipeline, run func(context.Context) (Result, error)) *Job {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	j := &Job{pipeline: p, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(j.done)
		defer cancel()
		j.result, j.err = run(ctx)
	}()
	return j
}

// Cancel requests the run to stop. It returns immediately; use Wait to
// observe the cleanup.
func (j *Job) Cancel() {
	j.cancel()
	j.pipeline.Cancel()
}

// Done is closed when the run has finished
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the run has finished and returns its result
func (j *Job) Wait() (Result, error) {
	<-j.done
	return j.result, j.err
}
