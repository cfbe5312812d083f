package engine

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// BatchPart is one independent sub-operation of a fanned-out user action,
// e.g. one of several unrelated resources saved together.
type BatchPart struct {
	Name string
	Run  func(ctx context.Context) error
}

// PartResult is the outcome of one part.
type PartResult struct {
	Name string
	Err  error
}

// BatchResult holds per-part outcomes in the order the parts were given.
type BatchResult struct {
	Parts []PartResult
}

// OK reports whether every part succeeded.
func (r BatchResult) OK() bool {
	return len(r.Failed()) == 0
}

// Failed returns the parts that failed.
func (r BatchResult) Failed() []PartResult {
	var out []PartResult
	for _, p := range r.Parts {
		if p.Err != nil {
			out = append(out, p)
		}
	}
	return out
}

// Err returns a *BatchError naming exactly the failed parts, or nil.
func (r BatchResult) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	return &BatchError{Failed: failed, Total: len(r.Parts)}
}

// BatchError reports which parts of a batch failed.
type BatchError struct {
	Failed []PartResult
	Total  int
}

func (e *BatchError) Error() string {
	msgs := make([]string, len(e.Failed))
	for i, p := range e.Failed {
		msgs[i] = fmt.Sprintf("%s: %v", p.Name, p.Err)
	}
	return fmt.Sprintf("%d of %d parts failed: %s", len(e.Failed), e.Total, strings.Join(msgs, "; "))
}

// Unwrap exposes each part's error to errors.Is / errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, p := range e.Failed {
		errs[i] = p.Err
	}
	return errs
}

// RunBatch runs every part concurrently and records each outcome on its
// own. A failing part neither cancels nor rolls back its siblings, so the
// group is not derived from ctx and every goroutine reports nil.
func RunBatch(ctx context.Context, parts ...BatchPart) BatchResult {
	results := make([]PartResult, len(parts))

	var g errgroup.Group
	for i, p := range parts {
		g.Go(func() error {
			results[i] = PartResult{Name: p.Name, Err: runPart(ctx, p)}
			return nil
		})
	}
	_ = g.Wait()

	return BatchResult{Parts: results}
}

func runPart(ctx context.Context, p BatchPart) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("part %s panicked: %v", p.Name, r)
		}
	}()
	if p.Run == nil {
		return fmt.Errorf("part %s has no operation", p.Name)
	}
	return p.Run(ctx)
}
