package presenter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"pricetracker/internal/asset"
	"pricetracker/internal/dispatch"
	"pricetracker/internal/fetcher"
	"pricetracker/internal/testutil"
)

const testKey = "fetcher:freecurrency:RUB"

func newMock(t *testing.T) *testutil.MockFetcher {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := testutil.NewMockFetcher(ctrl)
	m.EXPECT().Key().Return(testKey).AnyTimes()
	return m
}

func TestPresenter_RefreshCommits(t *testing.T) {
	m := newMock(t)
	m.EXPECT().Fetch(gomock.Any()).Return(testutil.Assets("EUR", 100.0, "USD", 90.0), nil)

	p := New(m)

	calls := 0
	p.Subscribe(func() { calls++ })

	res := p.Refresh(t.Context())
	require.True(t, res.OK())
	assert.Equal(t, testKey, res.Key)

	assert.Equal(t, 1, calls)
	assert.Equal(t, testutil.Assets("EUR", 100.0, "USD", 90.0), p.Assets())
	assert.Empty(t, p.Snapshot(), "first commit has nothing to compare against")
	assert.NoError(t, p.LastError())
	assert.False(t, p.UpdatedAt().IsZero())
}

func TestPresenter_SnapshotIsPreviousList(t *testing.T) {
	m := newMock(t)
	gomock.InOrder(
		m.EXPECT().Fetch(gomock.Any()).Return(testutil.Assets("EUR", 100.0, "USD", 90.0), nil),
		m.EXPECT().Fetch(gomock.Any()).Return(testutil.Assets("EUR", 99.0, "USD", 91.0), nil),
	)

	p := New(m)
	p.Refresh(t.Context())
	p.Refresh(t.Context())

	assert.Equal(t, asset.Snapshot{"EUR": 100, "USD": 90}, p.Snapshot())

	current := p.Assets()
	require.Len(t, current, 2)
	assert.Equal(t, asset.TrendDown, p.Trend(current[0]))
	assert.Equal(t, asset.TrendUp, p.Trend(current[1]))
}

func TestPresenter_DecodeFailureKeepsState(t *testing.T) {
	m := newMock(t)
	decodeErr := fetcher.NewDecodeError("invalid rates payload", nil)
	gomock.InOrder(
		m.EXPECT().Fetch(gomock.Any()).Return(testutil.Assets("USD", 90.0), nil),
		m.EXPECT().Fetch(gomock.Any()).Return(nil, decodeErr),
	)

	p := New(m)
	p.Refresh(t.Context())

	before := p.Assets()
	beforeSnap := p.Snapshot()
	beforeAt := p.UpdatedAt()

	calls := 0
	p.Subscribe(func() { calls++ })

	res := p.Refresh(t.Context())
	require.False(t, res.OK())
	assert.Nil(t, res.Assets)

	assert.Zero(t, calls, "failures must not notify subscribers")
	assert.Equal(t, before, p.Assets())
	assert.Equal(t, beforeSnap, p.Snapshot())
	assert.Equal(t, beforeAt, p.UpdatedAt())
	assert.True(t, fetcher.IsType(p.LastError(), fetcher.ErrorTypeDecode))
}

func TestPresenter_SuccessClearsLastError(t *testing.T) {
	m := newMock(t)
	gomock.InOrder(
		m.EXPECT().Fetch(gomock.Any()).Return(nil, fetcher.NewServerError(502)),
		m.EXPECT().Fetch(gomock.Any()).Return(testutil.Assets("USD", 90.0), nil),
	)

	p := New(m)
	p.Refresh(t.Context())
	require.Error(t, p.LastError())

	p.Refresh(t.Context())
	assert.NoError(t, p.LastError())
}

func TestPresenter_InFlightDropped(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	m := newMock(t)
	m.EXPECT().Fetch(gomock.Any()).DoAndReturn(func(ctx context.Context) ([]asset.PricedAsset, error) {
		close(started)
		<-release
		return testutil.Assets("USD", 90.0), nil
	}).Times(1)

	p := New(m)

	first := make(chan fetcher.Result, 1)
	go func() { first <- p.Refresh(t.Context()) }()
	<-started

	second := p.Refresh(t.Context())
	assert.ErrorIs(t, second.Error, ErrRefreshInFlight)

	close(release)
	assert.True(t, (<-first).OK())
	assert.Len(t, p.Assets(), 1)
}

func TestPresenter_Cancel(t *testing.T) {
	started := make(chan struct{})

	m := newMock(t)
	m.EXPECT().Fetch(gomock.Any()).DoAndReturn(func(ctx context.Context) ([]asset.PricedAsset, error) {
		close(started)
		<-ctx.Done()
		return nil, fetcher.NewNetworkError(ctx.Err())
	})

	p := New(m)

	calls := 0
	p.Subscribe(func() { calls++ })

	done := make(chan fetcher.Result, 1)
	go func() { done <- p.Refresh(t.Context()) }()
	<-started

	p.Cancel()

	select {
	case res := <-done:
		require.Error(t, res.Error)
		assert.True(t, errors.Is(res.Error, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("Cancel did not stop the refresh")
	}

	assert.Zero(t, calls)
	assert.Empty(t, p.Assets())
	assert.NoError(t, p.LastError(), "cancellation is not recorded as a failure")
}

func TestPresenter_CancelWithoutRefresh(t *testing.T) {
	p := New(newMock(t))
	assert.NotPanics(t, p.Cancel)
}

func TestPresenter_Unsubscribe(t *testing.T) {
	m := newMock(t)
	m.EXPECT().Fetch(gomock.Any()).Return(testutil.Assets("USD", 90.0), nil).Times(2)

	p := New(m)

	var order []string
	unsubA := p.Subscribe(func() { order = append(order, "a") })
	p.Subscribe(func() { order = append(order, "b") })

	p.Refresh(t.Context())
	unsubA()
	unsubA()
	p.Refresh(t.Context())

	assert.Equal(t, []string{"a", "b", "b"}, order)
}

func TestPresenter_TrendFromChange(t *testing.T) {
	m := newMock(t)
	p := New(m, WithTrendPolicy(TrendFromChange))

	up, down := 2.5, -0.1
	assert.Equal(t, asset.TrendUp, p.Trend(asset.PricedAsset{Code: "BITCOIN", Change24h: &up}))
	assert.Equal(t, asset.TrendDown, p.Trend(asset.PricedAsset{Code: "PEPE", Change24h: &down}))
	assert.Equal(t, asset.TrendFlat, p.Trend(asset.PricedAsset{Code: "DOGECOIN"}))
}

func TestPresenter_AssetsIsCopy(t *testing.T) {
	m := newMock(t)
	m.EXPECT().Fetch(gomock.Any()).Return(testutil.Assets("USD", 90.0), nil)

	p := New(m)
	p.Refresh(t.Context())

	got := p.Assets()
	got[0].Price = 0
	assert.Equal(t, 90.0, p.Assets()[0].Price)
}

func TestPresenter_CommitsOnOwnerLoop(t *testing.T) {
	m := newMock(t)
	m.EXPECT().Fetch(gomock.Any()).Return(testutil.Assets("USD", 90.0), nil)

	loop := dispatch.NewLoop()
	p := New(m, WithDispatcher(loop))

	notified := make(chan struct{})
	p.Subscribe(func() { close(notified) })

	res := p.Refresh(t.Context())
	require.True(t, res.OK())
	assert.Empty(t, p.Assets(), "nothing is committed until the owner loop runs")

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go loop.Run(ctx)

	select {
	case <-notified:
	case <-time.After(2 * time.Second):
		t.Fatal("commit never ran on the owner loop")
	}
	assert.Len(t, p.Assets(), 1)
}
