// Package presenter holds the displayed state of one asset class: the
// current list, the snapshot it replaced, and the last refresh error.
//
// State changes happen only on the owner context supplied as a
// dispatch.Dispatcher, and subscribers are notified there after every
// successful commit. Failed refreshes leave the list and snapshot untouched.
package presenter

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"pricetracker/internal/asset"
	"pricetracker/internal/dispatch"
	"pricetracker/internal/fetcher"
	"pricetracker/internal/logger"
)

// ErrRefreshInFlight is returned by Refresh when the previous refresh has
// not finished yet.
var ErrRefreshInFlight = errors.New("refresh already in flight")

// TrendPolicy selects how Trend derives an asset's direction.
type TrendPolicy int

const (
	// TrendFromSnapshot compares against the previous successful list.
	TrendFromSnapshot TrendPolicy = iota
	// TrendFromChange uses the upstream 24h change.
	TrendFromChange
)

// Option configures a Presenter.
type Option func(*Presenter)

// WithDispatcher sets the owner context. The default is dispatch.Immediate.
func WithDispatcher(d dispatch.Dispatcher) Option {
	return func(p *Presenter) {
		p.dispatcher = d
	}
}

// WithTrendPolicy sets the trend policy. The default is TrendFromSnapshot.
func WithTrendPolicy(tp TrendPolicy) Option {
	return func(p *Presenter) {
		p.policy = tp
	}
}

// Presenter drives one fetcher and keeps what it returned.
type Presenter struct {
	fetcher    fetcher.Fetcher
	dispatcher dispatch.Dispatcher
	policy     TrendPolicy

	inFlight atomic.Bool

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	mu        sync.RWMutex
	assets    []asset.PricedAsset
	snapshot  asset.Snapshot
	lastErr   error
	updatedAt time.Time

	subMu     sync.Mutex
	nextSubID int
	subs      map[int]func()
}

// New creates a presenter for f with an empty list.
func New(f fetcher.Fetcher, opts ...Option) *Presenter {
	p := &Presenter{
		fetcher:    f,
		dispatcher: dispatch.Immediate{},
		policy:     TrendFromSnapshot,
		snapshot:   asset.Snapshot{},
		subs:       make(map[int]func()),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Key returns the key of the underlying fetcher.
func (p *Presenter) Key() string {
	return p.fetcher.Key()
}

// Refresh runs one fetch cycle and hands the outcome to the owner context.
// It returns once the commit is dispatched, not once it has run.
func (p *Presenter) Refresh(ctx context.Context) fetcher.Result {
	key := p.fetcher.Key()

	if !p.inFlight.CompareAndSwap(false, true) {
		logger.Debug("%s: refresh skipped, previous one still running", key)
		return fetcher.NewResult(key, nil, ErrRefreshInFlight)
	}
	defer p.inFlight.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	p.setCancel(cancel)
	defer func() {
		p.setCancel(nil)
		cancel()
	}()

	assets, err := p.fetcher.Fetch(ctx)
	result := fetcher.NewResult(key, assets, err)

	switch {
	case err == nil:
		p.dispatcher.Dispatch(func() { p.commit(result) })
	case ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled):
		logger.Debug("%s: refresh cancelled", key)
	default:
		logger.Warn("%s: refresh failed: %v", key, err)
		p.dispatcher.Dispatch(func() { p.fail(err) })
	}

	return result
}

// Cancel aborts the refresh in flight, if any.
func (p *Presenter) Cancel() {
	p.cancelMu.Lock()
	defer p.cancelMu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Presenter) setCancel(c context.CancelFunc) {
	p.cancelMu.Lock()
	p.cancel = c
	p.cancelMu.Unlock()
}

// commit runs on the owner context.
func (p *Presenter) commit(r fetcher.Result) {
	p.mu.Lock()
	p.snapshot = asset.SnapshotOf(p.assets)
	p.assets = r.Assets
	p.lastErr = nil
	p.updatedAt = r.FetchedAt
	p.mu.Unlock()

	p.notify()
}

// fail runs on the owner context.
func (p *Presenter) fail(err error) {
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
}

func (p *Presenter) notify() {
	p.subMu.Lock()
	ids := make([]int, 0, len(p.subs))
	for id := range p.subs {
		ids = append(ids, id)
	}
	p.subMu.Unlock()

	// subscription order
	slices.Sort(ids)
	for _, id := range ids {
		p.subMu.Lock()
		fn, ok := p.subs[id]
		p.subMu.Unlock()
		if ok {
			fn()
		}
	}
}

// Subscribe registers fn to be called on the owner context after every
// successful refresh. The returned function removes it.
func (p *Presenter) Subscribe(fn func()) (unsubscribe func()) {
	p.subMu.Lock()
	id := p.nextSubID
	p.nextSubID++
	p.subs[id] = fn
	p.subMu.Unlock()

	return func() {
		p.subMu.Lock()
		delete(p.subs, id)
		p.subMu.Unlock()
	}
}

// Assets returns a copy of the current list.
func (p *Presenter) Assets() []asset.PricedAsset {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]asset.PricedAsset, len(p.assets))
	copy(out, p.assets)
	return out
}

// Snapshot returns a copy of the prices the current list replaced.
func (p *Presenter) Snapshot() asset.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(asset.Snapshot, len(p.snapshot))
	for k, v := range p.snapshot {
		out[k] = v
	}
	return out
}

// Trend reports the direction of a according to the presenter's policy.
func (p *Presenter) Trend(a asset.PricedAsset) asset.Trend {
	if p.policy == TrendFromChange {
		return asset.FromChange(a.Change24h)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot.Trend(a)
}

// LastError returns the error of the most recent failed refresh, or nil if
// the most recent refresh succeeded. A non-nil error means the list is stale.
func (p *Presenter) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

// UpdatedAt returns when the current list was fetched, zero if never.
func (p *Presenter) UpdatedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.updatedAt
}
