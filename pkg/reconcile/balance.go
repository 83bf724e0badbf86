package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	ledgermodels "github.com/boostfeed/stakeledger/pkg/db/models/ledger"
)

// ErrUnknownUser indicates the user has no snapshot row, so there is no
// wallet address to query.
var ErrUnknownUser = errors.New("unknown user")

// RefreshBalance recomputes a user's snapshot: the locked amount from the
// ledger's active locks, the wallet balance from the chain provider. When
// the wallet source is down the previous cached balance is kept and the
// snapshot still refreshes with the new locked amount.
func (c *Context) RefreshBalance(ctx context.Context, userID string, height uint64) (*ledgermodels.User, error) {
	user, err := c.Store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}

	locked, err := c.Store.SumUserLockedAmount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("sum locked amount for %s: %w", userID, err)
	}

	balance := user.CachedBalance
	if fresh, err := c.Oracle.AddressBalance(ctx, user.Address); err != nil {
		c.Logger.Warn("wallet balance source unavailable, keeping cached balance",
			zap.String("user_id", userID),
			zap.String("address", user.Address),
			zap.Error(err),
		)
	} else {
		balance = fresh
	}

	next := &ledgermodels.User{
		UserID:             user.UserID,
		Address:            user.Address,
		CachedBalance:      balance,
		CachedLockedAmount: locked,
		RefreshedAt:        time.Now().UTC(),
		Height:             height,
	}
	if err := c.Store.UpsertUser(ctx, next); err != nil {
		return nil, fmt.Errorf("persist user snapshot %s: %w", userID, err)
	}

	return next, nil
}

// RefreshBalances refreshes each user in turn, logging and skipping
// failures so one bad snapshot cannot stall a sync pass.
func (c *Context) RefreshBalances(ctx context.Context, userIDs []string, height uint64) {
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			return
		}
		if _, err := c.RefreshBalance(ctx, userID, height); err != nil {
			c.Logger.Warn("balance refresh failed",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
	}
}
