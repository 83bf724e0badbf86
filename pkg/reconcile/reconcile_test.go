package reconcile

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	ledgerstore "github.com/boostfeed/stakeledger/pkg/db/ledger"
	ledgermodels "github.com/boostfeed/stakeledger/pkg/db/models/ledger"
	"github.com/boostfeed/stakeledger/pkg/decay"
)

// memStore is an in-memory Store backed by last-write-wins maps, mirroring
// how the versioned ClickHouse tables behave after a merge.
type memStore struct {
	mu    sync.Mutex
	locks map[string]*ledgermodels.Lock
	posts map[string]*ledgermodels.Post
	txns  map[string]*ledgermodels.Transaction
	users map[string]*ledgermodels.User

	lockWrites int
	postWrites int
}

func newMemStore() *memStore {
	return &memStore{
		locks: make(map[string]*ledgermodels.Lock),
		posts: make(map[string]*ledgermodels.Post),
		txns:  make(map[string]*ledgermodels.Transaction),
		users: make(map[string]*ledgermodels.User),
	}
}

func (s *memStore) DatabaseName() string         { return "test" }
func (s *memStore) Ping(_ context.Context) error { return nil }
func (s *memStore) Close() error                 { return nil }

func (s *memStore) InsertLocks(_ context.Context, locks []*ledgermodels.Lock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range locks {
		cp := *l
		if prev, ok := s.locks[l.ID]; !ok || cp.Height >= prev.Height {
			s.locks[l.ID] = &cp
		}
		s.lockWrites++
	}
	return nil
}

func (s *memStore) ActiveLocks(_ context.Context, cursor string, limit int) ([]*ledgermodels.Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ledgermodels.Lock
	for _, l := range s.locks {
		if l.IsExpired() || l.ID <= cursor {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) LocksByPost(_ context.Context, postID string) ([]*ledgermodels.Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ledgermodels.Lock
	for _, l := range s.locks {
		if l.PostID == postID {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CurrentWeight > out[j].CurrentWeight })
	return out, nil
}

func (s *memStore) PostAggregate(_ context.Context, postID string) (*ledgerstore.PostAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg := &ledgerstore.PostAggregate{}
	for _, l := range s.locks {
		if l.PostID == postID && !l.IsExpired() {
			agg.TotalWeight += l.CurrentWeight
			agg.ActiveLocks++
		}
	}
	return agg, nil
}

func (s *memStore) SumUserLockedAmount(_ context.Context, userID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total uint64
	for _, l := range s.locks {
		if l.UserID == userID && !l.IsExpired() {
			total += l.InitialAmount
		}
	}
	return total, nil
}

func (s *memStore) UpsertPost(_ context.Context, post *ledgermodels.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *post
	if prev, ok := s.posts[post.PostID]; !ok || cp.Height >= prev.Height {
		s.posts[post.PostID] = &cp
	}
	s.postWrites++
	return nil
}

func (s *memStore) GetPost(_ context.Context, postID string) (*ledgermodels.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.posts[postID]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) InsertTransactions(_ context.Context, txns []*ledgermodels.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range txns {
		cp := *t
		if prev, ok := s.txns[t.Txid]; !ok || cp.ConfirmedHeight >= prev.ConfirmedHeight {
			s.txns[t.Txid] = &cp
		}
	}
	return nil
}

func (s *memStore) PendingTransactions(_ context.Context, limit int) ([]*ledgermodels.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ledgermodels.Transaction
	for _, t := range s.txns {
		if !t.IsConfirmed() {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) ConfirmTransaction(ctx context.Context, txn *ledgermodels.Transaction, height uint64) error {
	confirmed := *txn
	confirmed.Confirmed = 1
	confirmed.ConfirmedHeight = height
	return s.InsertTransactions(ctx, []*ledgermodels.Transaction{&confirmed})
}

func (s *memStore) GetUser(_ context.Context, userID string) (*ledgermodels.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) UpsertUser(_ context.Context, user *ledgermodels.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *user
	s.users[user.UserID] = &cp
	return nil
}

// fakeOracle is a canned chain data provider.
type fakeOracle struct {
	head          uint64
	headErr       error
	confirmations map[string]uint64
	confErr       map[string]error
	balances      map[string]uint64
	balanceErr    error
}

func (f *fakeOracle) ChainHead(_ context.Context) (uint64, error) {
	return f.head, f.headErr
}

func (f *fakeOracle) TxConfirmations(_ context.Context, txid string) (uint64, error) {
	if err, ok := f.confErr[txid]; ok {
		return 0, err
	}
	return f.confirmations[txid], nil
}

func (f *fakeOracle) AddressBalance(_ context.Context, address string) (uint64, error) {
	if f.balanceErr != nil {
		return 0, f.balanceErr
	}
	return f.balances[address], nil
}

func (f *fakeOracle) Network() string { return "testnet" }

func newTestContext(t *testing.T, store *memStore, orc *fakeOracle) *Context {
	t.Helper()
	return &Context{
		Logger:    zaptest.NewLogger(t),
		Store:     store,
		Oracle:    orc,
		Curve:     decay.Linear{},
		BatchSize: 2, // force paging
	}
}

func seedLock(id, postID, userID string, amount, created, target, weight, height uint64) *ledgermodels.Lock {
	return &ledgermodels.Lock{
		ID:              id,
		PostID:          postID,
		UserID:          userID,
		Txid:            "tx-" + id,
		InitialAmount:   amount,
		CreatedAtHeight: created,
		TargetHeight:    target,
		CurrentWeight:   weight,
		Height:          height,
	}
}

func TestReconcileUpdatesLocksAndPosts(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	// Three locks on two posts by two users, all stored at height 100.
	require.NoError(t, store.InsertLocks(ctx, []*ledgermodels.Lock{
		seedLock("lock-1", "post-a", "user-1", 1000, 100, 200, 1000, 100),
		seedLock("lock-2", "post-a", "user-2", 400, 100, 300, 400, 100),
		seedLock("lock-3", "post-b", "user-1", 600, 100, 150, 600, 100),
	}))

	rc := newTestContext(t, store, &fakeOracle{})
	summary, err := rc.Reconcile(ctx, 150)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.LocksUpdated)
	assert.Equal(t, 2, summary.PostsRecomputed)
	assert.ElementsMatch(t, []string{"user-1", "user-2"}, summary.AffectedUsers)

	// lock-1: halfway through a 100-block span.
	assert.Equal(t, uint64(500), store.locks["lock-1"].CurrentWeight)
	assert.False(t, store.locks["lock-1"].IsExpired())
	// lock-2: 150 of 200 blocks remain.
	assert.Equal(t, uint64(300), store.locks["lock-2"].CurrentWeight)
	// lock-3: reached its target, expired with zero weight.
	assert.Equal(t, uint64(0), store.locks["lock-3"].CurrentWeight)
	assert.True(t, store.locks["lock-3"].IsExpired())

	// Post aggregates reflect only still-active locks.
	postA := store.posts["post-a"]
	require.NotNil(t, postA)
	assert.Equal(t, uint64(800), postA.TotalWeight)
	assert.Equal(t, uint32(2), postA.ActiveLocks)
	assert.Equal(t, uint64(150), postA.Height)

	postB := store.posts["post-b"]
	require.NotNil(t, postB)
	assert.Equal(t, uint64(0), postB.TotalWeight)
	assert.Equal(t, uint32(0), postB.ActiveLocks)
}

func TestReconcileIsIdempotentAtSameHeight(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	require.NoError(t, store.InsertLocks(ctx, []*ledgermodels.Lock{
		seedLock("lock-1", "post-a", "user-1", 1000, 100, 200, 1000, 100),
	}))

	rc := newTestContext(t, store, &fakeOracle{})
	first, err := rc.Reconcile(ctx, 150)
	require.NoError(t, err)
	require.Equal(t, 1, first.LocksUpdated)

	writesAfterFirst := store.lockWrites
	second, err := rc.Reconcile(ctx, 150)
	require.NoError(t, err)

	assert.Equal(t, 0, second.LocksUpdated)
	assert.Equal(t, 0, second.PostsRecomputed)
	assert.Empty(t, second.AffectedUsers)
	assert.Equal(t, writesAfterFirst, store.lockWrites, "second pass must not write lock rows")
}

func TestReconcileExpiredLocksStayExpired(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	require.NoError(t, store.InsertLocks(ctx, []*ledgermodels.Lock{
		seedLock("lock-1", "post-a", "user-1", 600, 100, 150, 600, 100),
	}))

	rc := newTestContext(t, store, &fakeOracle{})
	_, err := rc.Reconcile(ctx, 200)
	require.NoError(t, err)
	require.True(t, store.locks["lock-1"].IsExpired())

	// Later passes no longer see the expired lock.
	summary, err := rc.Reconcile(ctx, 300)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.LocksUpdated)
	assert.True(t, store.locks["lock-1"].IsExpired())
	assert.Equal(t, uint64(0), store.locks["lock-1"].CurrentWeight)
}

func TestReconcilePagesThroughAllLocks(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	var seed []*ledgermodels.Lock
	ids := []string{"a1", "b2", "c3", "d4", "e5"}
	for _, id := range ids {
		seed = append(seed, seedLock("lock-"+id, "post-"+id, "user-"+id, 1000, 100, 200, 1000, 100))
	}
	require.NoError(t, store.InsertLocks(ctx, seed))

	rc := newTestContext(t, store, &fakeOracle{}) // BatchSize 2, so three pages
	summary, err := rc.Reconcile(ctx, 150)
	require.NoError(t, err)

	assert.Equal(t, len(ids), summary.LocksUpdated)
	assert.Equal(t, len(ids), summary.PostsRecomputed)
}

func TestConfirmPending(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, store.InsertTransactions(ctx, []*ledgermodels.Transaction{
		{ID: "t1", UserID: "user-1", PostID: "post-a", Txid: "tx-confirmed", CreatedAt: base},
		{ID: "t2", UserID: "user-1", PostID: "post-a", Txid: "tx-mempool", CreatedAt: base.Add(time.Second)},
		{ID: "t3", UserID: "user-2", PostID: "post-b", Txid: "tx-broken", CreatedAt: base.Add(2 * time.Second)},
	}))

	orc := &fakeOracle{
		confirmations: map[string]uint64{"tx-confirmed": 3, "tx-mempool": 0},
		confErr:       map[string]error{"tx-broken": errors.New("provider down")},
	}
	rc := newTestContext(t, store, orc)
	rc.BatchSize = 10

	summary, err := rc.ConfirmPending(ctx, 500)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 1, summary.Confirmed)
	assert.Equal(t, 1, summary.Failed)

	assert.True(t, store.txns["tx-confirmed"].IsConfirmed())
	assert.Equal(t, uint64(500), store.txns["tx-confirmed"].ConfirmedHeight)
	assert.False(t, store.txns["tx-mempool"].IsConfirmed())
	assert.False(t, store.txns["tx-broken"].IsConfirmed())

	// A confirmed transaction never reverts: the next pass skips it entirely.
	next, err := rc.ConfirmPending(ctx, 600)
	require.NoError(t, err)
	assert.Equal(t, 2, next.Processed)
	assert.Equal(t, uint64(500), store.txns["tx-confirmed"].ConfirmedHeight)
}

func TestRefreshBalance(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	require.NoError(t, store.UpsertUser(ctx, &ledgermodels.User{
		UserID:        "user-1",
		Address:       "addr-1",
		CachedBalance: 900,
		Height:        100,
	}))
	require.NoError(t, store.InsertLocks(ctx, []*ledgermodels.Lock{
		seedLock("lock-1", "post-a", "user-1", 250, 100, 200, 250, 100),
		seedLock("lock-2", "post-b", "user-1", 150, 100, 300, 150, 100),
	}))

	orc := &fakeOracle{balances: map[string]uint64{"addr-1": 1200}}
	rc := newTestContext(t, store, orc)

	snap, err := rc.RefreshBalance(ctx, "user-1", 150)
	require.NoError(t, err)
	assert.Equal(t, uint64(1200), snap.CachedBalance)
	assert.Equal(t, uint64(400), snap.CachedLockedAmount)
	assert.Equal(t, uint64(150), snap.Height)
	assert.False(t, snap.RefreshedAt.IsZero())
}

func TestRefreshBalanceKeepsCachedBalanceWhenWalletSourceFails(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	require.NoError(t, store.UpsertUser(ctx, &ledgermodels.User{
		UserID:        "user-1",
		Address:       "addr-1",
		CachedBalance: 900,
		Height:        100,
	}))
	require.NoError(t, store.InsertLocks(ctx, []*ledgermodels.Lock{
		seedLock("lock-1", "post-a", "user-1", 250, 100, 200, 250, 100),
	}))

	orc := &fakeOracle{balanceErr: errors.New("wallet source down")}
	rc := newTestContext(t, store, orc)

	snap, err := rc.RefreshBalance(ctx, "user-1", 150)
	require.NoError(t, err)
	assert.Equal(t, uint64(900), snap.CachedBalance, "degraded refresh keeps the previous balance")
	assert.Equal(t, uint64(250), snap.CachedLockedAmount, "locked amount still refreshes")
}

func TestRefreshBalanceUnknownUser(t *testing.T) {
	rc := newTestContext(t, newMemStore(), &fakeOracle{})

	_, err := rc.RefreshBalance(context.Background(), "ghost", 150)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownUser)
}
