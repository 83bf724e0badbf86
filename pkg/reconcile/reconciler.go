package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	ledgermodels "github.com/boostfeed/stakeledger/pkg/db/models/ledger"
	"github.com/boostfeed/stakeledger/pkg/utils"
)

// Summary reports what a reconciliation pass changed.
type Summary struct {
	LocksUpdated    int      `json:"locksUpdated"`
	PostsRecomputed int      `json:"postsRecomputed"`
	AffectedUsers   []string `json:"-"`
	DurationMs      float64  `json:"durationMs"`
}

// Reconcile recomputes every active lock's weight against one height
// snapshot, writes back only the rows whose weight or expiry changed, then
// refreshes the cached aggregate of each affected post. Running it twice at
// the same height writes nothing the second time.
func (c *Context) Reconcile(ctx context.Context, height uint64) (*Summary, error) {
	start := time.Now()

	var locksUpdated atomic.Int64
	affectedPosts := xsync.NewMap[string, struct{}]()
	affectedUsers := xsync.NewMap[string, struct{}]()

	cursor := ""
	limit := c.batchSize()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		locks, err := c.Store.ActiveLocks(ctx, cursor, limit)
		if err != nil {
			return nil, fmt.Errorf("page active locks after %q: %w", cursor, err)
		}
		if len(locks) == 0 {
			break
		}
		cursor = locks[len(locks)-1].ID

		var changed []*ledgermodels.Lock
		for _, lock := range locks {
			weight, expired := c.Curve.WeightAt(lock.InitialAmount, lock.CreatedAtHeight, lock.TargetHeight, height)
			if weight == lock.CurrentWeight && expired == lock.IsExpired() {
				continue
			}

			next := *lock
			next.CurrentWeight = weight
			next.Expired = utils.BoolToUInt8(expired)
			next.Height = height
			changed = append(changed, &next)

			affectedPosts.Store(lock.PostID, struct{}{})
			affectedUsers.Store(lock.UserID, struct{}{})
		}

		if len(changed) > 0 {
			if err := c.Store.InsertLocks(ctx, changed); err != nil {
				return nil, fmt.Errorf("write reconciled locks: %w", err)
			}
			locksUpdated.Add(int64(len(changed)))
		}

		if len(locks) < limit {
			break
		}
	}

	recomputed, err := c.recomputePosts(ctx, affectedPosts, height)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		LocksUpdated:    int(locksUpdated.Load()),
		PostsRecomputed: recomputed,
		DurationMs:      float64(time.Since(start).Microseconds()) / 1000.0,
	}
	affectedUsers.Range(func(userID string, _ struct{}) bool {
		summary.AffectedUsers = append(summary.AffectedUsers, userID)
		return true
	})

	c.Logger.Info("Reconciliation pass complete",
		zap.Uint64("height", height),
		zap.Int("locks_updated", summary.LocksUpdated),
		zap.Int("posts_recomputed", summary.PostsRecomputed),
		zap.Float64("duration_ms", summary.DurationMs),
	)
	return summary, nil
}

// recomputePosts refreshes the cached aggregate of each affected post in
// parallel. Aggregates are derived caches, so a failed recompute is logged
// and skipped; the next pass repairs it.
func (c *Context) recomputePosts(ctx context.Context, affected *xsync.Map[string, struct{}], height uint64) (int, error) {
	if affected.Size() == 0 {
		return 0, nil
	}

	var recomputed atomic.Int64

	pool := c.recomputePool()
	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	affected.Range(func(postID string, _ struct{}) bool {
		group.Submit(func() {
			if err := groupCtx.Err(); err != nil {
				return
			}
			if err := c.recomputePost(groupCtx, postID, height); err != nil {
				c.Logger.Warn("failed to recompute post aggregate",
					zap.String("post_id", postID),
					zap.Uint64("height", height),
					zap.Error(err),
				)
				return
			}
			recomputed.Add(1)
		})
		return true
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		return int(recomputed.Load()), fmt.Errorf("post recompute group: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return int(recomputed.Load()), err
	}

	return int(recomputed.Load()), nil
}

func (c *Context) recomputePost(ctx context.Context, postID string, height uint64) error {
	agg, err := c.Store.PostAggregate(ctx, postID)
	if err != nil {
		return err
	}

	post := &ledgermodels.Post{
		PostID:      postID,
		TotalWeight: agg.TotalWeight,
		ActiveLocks: agg.ActiveLocks,
		Height:      height,
	}
	// Keep the author attribution from the previous aggregate row.
	if prev, err := c.Store.GetPost(ctx, postID); err == nil && prev != nil {
		post.AuthorID = prev.AuthorID
	}

	return c.Store.UpsertPost(ctx, post)
}
