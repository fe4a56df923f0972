package search

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/bulletinsearch/internal/store"
)

// branchFunc runs one retrieval technique.
type branchFunc func(ctx context.Context) ([]*store.RankedHit, error)

// outcome is the resolved result of one branch. Err is set when the branch
// failed, timed out, or was cancelled; Hits is then nil.
type outcome struct {
	Hits    []*store.RankedHit
	Err     error
	Elapsed time.Duration
}

// jointOutcome holds both branches of a hybrid search once both resolved.
type jointOutcome struct {
	Semantic outcome
	Keyword  outcome
}

// runJoint starts both branches before waiting on either and returns once
// both have resolved. Each branch gets its own timeout derived from ctx, so
// a slow backend cannot delay the other past its deadline. Branch failures
// never cancel the sibling.
func runJoint(ctx context.Context, timeout time.Duration, semantic, keyword branchFunc) jointOutcome {
	var joint jointOutcome

	// Branches report failures in their outcome and always return nil, so
	// the group context is cancelled only with ctx.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		joint.Semantic = runBranch(gctx, timeout, semantic)
		return nil
	})
	g.Go(func() error {
		joint.Keyword = runBranch(gctx, timeout, keyword)
		return nil
	})
	_ = g.Wait()

	return joint
}

// runBranch runs fn under its own deadline. A backend that ignores its
// context is abandoned at the deadline; its late result is discarded.
func runBranch(ctx context.Context, timeout time.Duration, fn branchFunc) outcome {
	start := time.Now()

	bctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		hits []*store.RankedHit
		err  error
	}
	resultCh := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- result{err: fmt.Errorf("search branch panicked: %v", r)}
			}
		}()
		hits, err := fn(bctx)
		resultCh <- result{hits: hits, err: err}
	}()

	select {
	case r := <-resultCh:
		if r.err != nil {
			return outcome{Err: r.err, Elapsed: time.Since(start)}
		}
		return outcome{Hits: r.hits, Elapsed: time.Since(start)}
	case <-bctx.Done():
		return outcome{Err: bctx.Err(), Elapsed: time.Since(start)}
	}
}
