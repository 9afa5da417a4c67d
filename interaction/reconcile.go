package interaction

import (
	"context"
	"log"
	"time"

	"socialfeed/apperr"
)

const reconcileBatch = 100

// ReconcileOrphans links comments older than grace whose post exists but does
// not reference them. It returns how many were linked.
func (e *Engine) ReconcileOrphans(ctx context.Context, grace time.Duration) (int, error) {
	cutoff := e.now().Add(-grace).Unix()

	sctx, cancel := e.storeCtx(ctx)
	orphans, err := e.comments.FindUnlinkedComments(sctx, cutoff, reconcileBatch)
	cancel()
	if err != nil {
		return 0, apperr.Dependency(err)
	}

	linked := 0
	for _, c := range orphans {
		if err := e.LinkComment(ctx, c.PostID, c.ID); err != nil {
			log.Printf("[Reconcile] linking comment %s failed: %v", c.ID.Hex(), err)
			continue
		}
		linked++
	}
	return linked, nil
}

// RunReconciler sweeps for orphaned comments every interval until ctx ends.
func (e *Engine) RunReconciler(ctx context.Context, interval, grace time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := e.ReconcileOrphans(ctx, grace)
			if err != nil {
				log.Printf("[Reconcile] sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("[Reconcile] linked %d orphaned comments", n)
			}
		}
	}
}
