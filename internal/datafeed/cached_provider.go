package datafeed

import (
	"context"
	"sync"
	"time"

	"github.com/IggyIkenna/basis-strategy-v1-sub010/pkg/types"
)

// CachedProvider wraps another Provider and memoizes ticks by timestamp,
// so re-running the pipeline over the same window never refetches
type CachedProvider struct {
	provider Provider

	mutex sync.RWMutex
	cache map[int64]types.TickData
}

// NewCachedProvider creates a caching wrapper around the given provider
func NewCachedProvider(provider Provider) *CachedProvider {
	return &CachedProvider{
		provider: provider,
		cache:    make(map[int64]types.TickData),
	}
}

// GetName returns the name of the underlying provider with cache indication
func (p *CachedProvider) GetName() string {
	return "Cached " + p.provider.GetName()
}

// GetData serves from cache when the timestamp has been seen before
func (p *CachedProvider) GetData(ctx context.Context, timestamp time.Time) (types.TickData, error) {
	key := timestamp.UnixNano()

	p.mutex.RLock()
	tick, ok := p.cache[key]
	p.mutex.RUnlock()
	if ok {
		return tick, nil
	}

	tick, err := p.provider.GetData(ctx, timestamp)
	if err != nil {
		return types.TickData{}, err
	}

	p.mutex.Lock()
	p.cache[key] = tick
	p.mutex.Unlock()
	return tick, nil
}

// Size returns the number of cached ticks
func (p *CachedProvider) Size() int {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return len(p.cache)
}

// Clear removes all cached ticks
func (p *CachedProvider) Clear() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.cache = make(map[int64]types.TickData)
}
