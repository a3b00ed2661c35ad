package pipeline

import (
	"context"
	"time"

	"creditiq/pkg/core/ingest"

	"golang.org/x/sync/errgroup"
)

// AuditEntry is one line of the run audit log.
type AuditEntry struct {
	RunID     string    `json:"run_id"`
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
	Status    State     `json:"status"`
}

// AuditLog records the outcome of every batch run.
type AuditLog interface {
	Append(ctx context.Context, e AuditEntry) error
}

// DefaultParallelism bounds concurrent runs of a batch.
const DefaultParallelism = 2

// RunBatch runs every source and returns the results in input order. A
// failed run does not stop the others; the error is only non-nil when ctx
// is cancelled before all runs start.
func (o *Orchestrator) RunBatch(ctx context.Context, sources []ingest.Source, parallelism int) ([]*RunResult, error) {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	results := make([]*RunResult, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, src := range sources {
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			res := o.Run(gctx, src)
			results[i] = res
			o.appendAudit(gctx, res)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

func (o *Orchestrator) appendAudit(ctx context.Context, res *RunResult) {
	if o.audit == nil {
		return
	}
	entry := AuditEntry{RunID: res.RunID, URL: res.URL, Timestamp: res.Timestamp, Status: res.State}
	if err := o.audit.Append(ctx, entry); err != nil {
		o.log.WithError(err).WithField("run_id", res.RunID).Warn("audit append failed")
	}
}
