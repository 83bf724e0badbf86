package controller

import (
	"net/http"
	"time"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// StakeEntry is one lock's live-recomputed contribution to a post.
type StakeEntry struct {
	ID              string `json:"id"`
	UserID          string `json:"userId"`
	InitialAmount   uint64 `json:"initialAmount"`
	CreatedAtHeight uint64 `json:"createdAtHeight"`
	TargetHeight    uint64 `json:"targetHeight"`
	Weight          uint64 `json:"weight"`
	Tag             string `json:"tag,omitempty"`
}

// PostStakeResponse is the live stake detail for one post.
type PostStakeResponse struct {
	PostID       string       `json:"postId"`
	Height       uint64       `json:"height"`
	HeightStale  bool         `json:"heightStale"`
	TotalWeight  uint64       `json:"totalWeight"`
	ActiveLocks  []StakeEntry `json:"activeLocks"`
	ExpiredLocks []StakeEntry `json:"expiredLocks"`
	ReportedAt   time.Time    `json:"reportedAt"`
}

// HandlePostStake recomputes a post's stake detail from its lock rows at the
// current height, bypassing the cached aggregate entirely. Responses are
// marked no-store: this endpoint is the strong-freshness read path.
func (c *Controller) HandlePostStake(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	postID := mux.Vars(r)["id"]

	head, err := c.App.Heights.GetHeight(ctx)
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "chain height unavailable"})
		return
	}

	locks, err := c.App.LedgerDB.LocksByPost(ctx, postID)
	if err != nil {
		c.App.Logger.Error("failed to load post locks", zap.String("post_id", postID), zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "failed to load post locks"})
		return
	}

	resp := PostStakeResponse{
		PostID:       postID,
		Height:       head.Height,
		HeightStale:  head.Stale,
		ActiveLocks:  []StakeEntry{},
		ExpiredLocks: []StakeEntry{},
		ReportedAt:   time.Now().UTC(),
	}

	for _, lock := range locks {
		weight, expired := c.App.Reconciler.Curve.WeightAt(
			lock.InitialAmount, lock.CreatedAtHeight, lock.TargetHeight, head.Height)
		entry := StakeEntry{
			ID:              lock.ID,
			UserID:          lock.UserID,
			InitialAmount:   lock.InitialAmount,
			CreatedAtHeight: lock.CreatedAtHeight,
			TargetHeight:    lock.TargetHeight,
			Weight:          weight,
			Tag:             lock.Tag,
		}
		if expired {
			resp.ExpiredLocks = append(resp.ExpiredLocks, entry)
			continue
		}
		resp.ActiveLocks = append(resp.ActiveLocks, entry)
		resp.TotalWeight += weight
	}

	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(resp)
}
