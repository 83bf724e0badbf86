// Package heightcache is a read-through cache over the chain height oracle.
// A successful probe persists the new tip; on oracle failure the last
// persisted tip is served flagged as stale, so degraded freshness rather than
// unavailability is what propagates upward.
package heightcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrNoCachedHeight means the oracle is unreachable and no prior sync ever
// persisted a height, so there is nothing to serve.
var ErrNoCachedHeight = errors.New("no cached chain height")

// State is the persisted ChainHeightState singleton.
type State struct {
	Height       uint64    `json:"height"`
	Network      string    `json:"network"`
	LastSyncTime time.Time `json:"lastSyncTime"`
}

// Result is a height read, fresh or explicitly stale.
type Result struct {
	Height   uint64
	Network  string
	Stale    bool
	SyncedAt time.Time
}

// HeadSource is the slice of the oracle the cache consumes.
type HeadSource interface {
	ChainHead(ctx context.Context) (uint64, error)
	Network() string
}

// Store persists the ChainHeightState singleton. The production
// implementation is Redis-backed; tests substitute an in-memory fake.
type Store interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, state *State) error
}

// Notifier receives a callback after each successful refresh. Used to relay
// height updates onto the realtime stream; failures there must not affect the
// read path.
type Notifier interface {
	HeightUpdated(ctx context.Context, state State)
}

// Cache is the read-through height cache.
type Cache struct {
	source   HeadSource
	store    Store
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// New returns a Cache. notifier may be nil.
func New(source HeadSource, store Store, notifier Notifier, logger *zap.Logger) *Cache {
	return &Cache{
		source:   source,
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// GetHeight probes the oracle and persists the result. When the probe fails
// it falls back to the persisted state, marking the response stale; only when
// neither source can answer does it return an error.
func (c *Cache) GetHeight(ctx context.Context) (Result, error) {
	head, err := c.source.ChainHead(ctx)
	if err == nil {
		state := State{
			Height:       head,
			Network:      c.source.Network(),
			LastSyncTime: c.now().UTC(),
		}
		if saveErr := c.store.Save(ctx, &state); saveErr != nil {
			// The probe succeeded, so serve the fresh height anyway; the next
			// refresh retries the persist.
			c.logger.Warn("failed to persist chain height state", zap.Error(saveErr))
		} else if c.notifier != nil {
			c.notifier.HeightUpdated(ctx, state)
		}
		return Result{Height: state.Height, Network: state.Network, SyncedAt: state.LastSyncTime}, nil
	}

	c.logger.Warn("chain oracle unreachable, falling back to cached height", zap.Error(err))

	state, loadErr := c.store.Load(ctx)
	if loadErr != nil {
		if errors.Is(loadErr, ErrNoCachedHeight) {
			return Result{}, fmt.Errorf("oracle failed and no prior sync: %w", ErrNoCachedHeight)
		}
		return Result{}, loadErr
	}

	return Result{
		Height:   state.Height,
		Network:  state.Network,
		Stale:    true,
		SyncedAt: state.LastSyncTime,
	}, nil
}

// SecondsUntilNextBlock estimates the time to the next block from the last
// sync time and the network's average block interval. Purely cosmetic for the
// height endpoint; never negative.
func (r Result) SecondsUntilNextBlock(blockInterval time.Duration, now time.Time) uint64 {
	if blockInterval <= 0 || r.SyncedAt.IsZero() {
		return 0
	}
	elapsed := now.Sub(r.SyncedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	remainder := blockInterval - elapsed%blockInterval
	return uint64(remainder / time.Second)
}
