package heightcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	height  uint64
	err     error
	network string
	calls   int
}

func (f *fakeSource) ChainHead(context.Context) (uint64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.height, nil
}

func (f *fakeSource) Network() string { return f.network }

type fakeStore struct {
	state   *State
	saveErr error
	loadErr error
	saves   int
}

func (f *fakeStore) Load(context.Context) (*State, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if f.state == nil {
		return nil, ErrNoCachedHeight
	}
	return f.state, nil
}

func (f *fakeStore) Save(_ context.Context, s *State) error {
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	cp := *s
	f.state = &cp
	return nil
}

type fakeNotifier struct {
	updates []State
}

func (f *fakeNotifier) HeightUpdated(_ context.Context, s State) {
	f.updates = append(f.updates, s)
}

func TestGetHeightFreshProbePersistsAndNotifies(t *testing.T) {
	source := &fakeSource{height: 812000, network: "mainnet"}
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	cache := New(source, store, notifier, zap.NewNop())

	res, err := cache.GetHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(812000), res.Height)
	assert.Equal(t, "mainnet", res.Network)
	assert.False(t, res.Stale)

	require.NotNil(t, store.state)
	assert.Equal(t, uint64(812000), store.state.Height)
	require.Len(t, notifier.updates, 1)
	assert.Equal(t, uint64(812000), notifier.updates[0].Height)
}

func TestGetHeightOracleDownServesStaleCache(t *testing.T) {
	source := &fakeSource{height: 812000, network: "mainnet"}
	store := &fakeStore{}
	cache := New(source, store, nil, zap.NewNop())

	// Prime the cache with a successful probe.
	_, err := cache.GetHeight(context.Background())
	require.NoError(t, err)

	// Then take the oracle down.
	source.err = errors.New("connection refused")

	res, err := cache.GetHeight(context.Background())
	require.NoError(t, err, "a cached height must never surface the oracle failure")
	assert.Equal(t, uint64(812000), res.Height)
	assert.True(t, res.Stale)
}

func TestGetHeightNoCacheNoOracleFails(t *testing.T) {
	source := &fakeSource{err: errors.New("connection refused")}
	cache := New(source, &fakeStore{}, nil, zap.NewNop())

	_, err := cache.GetHeight(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoCachedHeight))
}

func TestGetHeightPersistFailureStillServesFresh(t *testing.T) {
	source := &fakeSource{height: 100, network: "mainnet"}
	store := &fakeStore{saveErr: errors.New("redis down")}
	notifier := &fakeNotifier{}
	cache := New(source, store, notifier, zap.NewNop())

	res, err := cache.GetHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), res.Height)
	assert.False(t, res.Stale)
	assert.Empty(t, notifier.updates, "no notification when the persist failed")
}

func TestSecondsUntilNextBlock(t *testing.T) {
	synced := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	res := Result{Height: 1, SyncedAt: synced}

	tests := []struct {
		name    string
		now     time.Time
		want    uint64
	}{
		{"just synced", synced, 600},
		{"halfway", synced.Add(5 * time.Minute), 300},
		{"past one interval", synced.Add(11 * time.Minute), 540},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, res.SecondsUntilNextBlock(10*time.Minute, tt.now))
		})
	}

	assert.Zero(t, Result{}.SecondsUntilNextBlock(10*time.Minute, synced))
}
