package controller

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/boostfeed/stakeledger/pkg/reconcile"
)

// BalanceResponse is the refreshed user snapshot.
type BalanceResponse struct {
	UserID             string    `json:"userId"`
	Address            string    `json:"address"`
	CachedBalance      uint64    `json:"cachedBalance"`
	CachedLockedAmount uint64    `json:"cachedLockedAmount"`
	RefreshedAt        time.Time `json:"refreshedAt"`
	Height             uint64    `json:"height"`
}

// HandleBalanceRefresh runs the balance aggregator for one user on demand.
func (c *Controller) HandleBalanceRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := mux.Vars(r)["id"]

	head, err := c.App.Heights.GetHeight(ctx)
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "chain height unavailable"})
		return
	}

	snap, err := c.App.Reconciler.RefreshBalance(ctx, userID, head.Height)
	if err != nil {
		if errors.Is(err, reconcile.ErrUnknownUser) {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "unknown user"})
			return
		}
		c.App.Logger.Error("balance refresh failed", zap.String("user_id", userID), zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "balance refresh failed"})
		return
	}

	_ = json.NewEncoder(w).Encode(BalanceResponse{
		UserID:             snap.UserID,
		Address:            snap.Address,
		CachedBalance:      snap.CachedBalance,
		CachedLockedAmount: snap.CachedLockedAmount,
		RefreshedAt:        snap.RefreshedAt,
		Height:             snap.Height,
	})
}
