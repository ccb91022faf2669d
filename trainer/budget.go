package trainer

import (
	"context"
	"fmt"

	"github.com/radon-h2020/radon-defect-predictor/core"
)

type runResult struct {
	model      *core.SelectedModel
	candidates []core.Candidate
	err        error
}

// runWithBudget runs the search under a deadline. The caller gets
// control back as soon as the deadline fires even if a fit is still in
// flight; the abandoned run stops at its next cancellation check and
// drains into the buffered channel.
func (t *Trainer) runWithBudget(ctx context.Context, ds core.Dataset) (*core.SelectedModel, []core.Candidate, error) {
	execCtx, cancel := context.WithTimeout(ctx, t.opts.Budget)
	defer cancel()

	done := make(chan runResult, 1)
	go func() {
		model, candidates, err := t.run(execCtx, ds)
		done <- runResult{model: model, candidates: candidates, err: err}
	}()

	select {
	case <-execCtx.Done():
		return nil, nil, fmt.Errorf("training budget %v exhausted: %w", t.opts.Budget, execCtx.Err())
	case r := <-done:
		return r.model, r.candidates, r.err
	}
}
