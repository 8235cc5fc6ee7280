package cache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dailydrops/drops/pkg/logging"
)

const assetTTL = 24 * time.Hour

// FetchFunc downloads an asset blob by repository path and revision
type FetchFunc func(ctx context.Context, token, path, ref string) ([]byte, error)

// inflightFetch lets concurrent requests for the same asset share one
// download instead of stampeding the origin.
type inflightFetch struct {
	done chan struct{}
	data []byte
	err  error
}

// AssetCache serves asset blobs addressed by their CDN URL, caching
// them in Redis when available and in process memory otherwise.
type AssetCache struct {
	cache  *Cache
	fetch  FetchFunc
	logger *zap.Logger

	mu       sync.Mutex
	local    map[string][]byte
	inflight map[string]*inflightFetch
}

// NewAssetCache creates an asset cache. cache may be nil; blobs then
// live in process memory only.
func NewAssetCache(cache *Cache, fetch FetchFunc) *AssetCache {
	return &AssetCache{
		cache:    cache,
		fetch:    fetch,
		logger:   logging.GetLogger().With(zap.String("component", "asset-cache")),
		local:    make(map[string][]byte),
		inflight: make(map[string]*inflightFetch),
	}
}

// Get returns the blob behind rawURL, downloading it at most once no
// matter how many callers ask concurrently.
func (a *AssetCache) Get(ctx context.Context, token, rawURL string) ([]byte, error) {
	key := "asset:" + HashKey(rawURL)

	if data, ok := a.lookup(key); ok {
		return data, nil
	}

	a.mu.Lock()
	if f, ok := a.inflight[key]; ok {
		a.mu.Unlock()
		select {
		case <-f.done:
			return f.data, f.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f := &inflightFetch{done: make(chan struct{})}
	a.inflight[key] = f
	a.mu.Unlock()

	f.data, f.err = a.download(ctx, token, rawURL)
	if f.err == nil {
		a.store(key, f.data)
	}

	a.mu.Lock()
	delete(a.inflight, key)
	a.mu.Unlock()
	close(f.done)

	return f.data, f.err
}

func (a *AssetCache) lookup(key string) ([]byte, bool) {
	if a.cache != nil {
		if value, err := a.cache.Get(key); err == nil {
			return []byte(value), true
		} else if !errors.Is(err, ErrCacheDisabled) && !isCacheMiss(err) {
			a.logger.Warn("Cache read failed", zap.Error(err))
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.local[key]
	return data, ok
}

func (a *AssetCache) store(key string, data []byte) {
	if a.cache != nil {
		if err := a.cache.Set(key, data, assetTTL); err == nil {
			return
		} else if !errors.Is(err, ErrCacheDisabled) {
			a.logger.Warn("Cache write failed", zap.Error(err))
		}
	}
	a.mu.Lock()
	a.local[key] = data
	a.mu.Unlock()
}

func (a *AssetCache) download(ctx context.Context, token, rawURL string) ([]byte, error) {
	path, ref, err := parseRawURL(rawURL)
	if err != nil {
		return nil, err
	}
	return a.fetch(ctx, token, path, ref)
}

// parseRawURL splits a CDN address of the form
// https://host/{owner}/{name}/{ref}/{path...} into its revision and
// repository path.
func parseRawURL(rawURL string) (path, ref string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid asset url: %w", err)
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 4 {
		return "", "", fmt.Errorf("asset url %q has no repository path", rawURL)
	}
	return strings.Join(segments[3:], "/"), segments[2], nil
}

func isCacheMiss(err error) bool {
	return err != nil && err.Error() == "redis: nil"
}
