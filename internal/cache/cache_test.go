package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

func TestHashKey(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
	}{
		{
			name:  "single part",
			parts: []string{"test"},
		},
		{
			name:  "multiple parts",
			parts: []string{"test", "key", "with", "many", "parts"},
		},
		{
			name:  "empty parts",
			parts: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hashed1 := HashKey(tt.parts...)
			hashed2 := HashKey(tt.parts...)

			// Hash should be consistent
			if hashed1 != hashed2 {
				t.Errorf("HashKey() should be consistent, got %s and %s", hashed1, hashed2)
			}

			// Hash should be 32 characters (MD5 hex)
			if len(hashed1) != 32 {
				t.Errorf("HashKey() should return 32 character hex string, got length %d", len(hashed1))
			}
		})
	}
}

func TestCache_NamespaceKey(t *testing.T) {
	cache := &Cache{}

	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{
			name:     "simple key",
			key:      "test",
			expected: "drops:test",
		},
		{
			name:     "key with colon",
			key:      "test:key",
			expected: "drops:test:key",
		},
		{
			name:     "empty key",
			key:      "",
			expected: "drops:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := cache.namespaceKey(tt.key)
			if result != tt.expected {
				t.Errorf("namespaceKey() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestParseRawURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantPath string
		wantRef  string
		wantErr  bool
	}{
		{
			name:     "nested path",
			url:      "https://raw.githubusercontent.com/acme/drops-data/main/assets/img-1.png",
			wantPath: "assets/img-1.png",
			wantRef:  "main",
		},
		{
			name:     "single segment path",
			url:      "https://raw.githubusercontent.com/acme/drops-data/v2/readme.md",
			wantPath: "readme.md",
			wantRef:  "v2",
		},
		{
			name:    "too few segments",
			url:     "https://raw.githubusercontent.com/acme/drops-data",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, ref, err := parseRawURL(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseRawURL() expected error, got path=%q ref=%q", path, ref)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseRawURL() error = %v", err)
			}
			if path != tt.wantPath || ref != tt.wantRef {
				t.Errorf("parseRawURL() = (%q, %q), want (%q, %q)", path, ref, tt.wantPath, tt.wantRef)
			}
		})
	}
}

func TestAssetCacheDownloadsOnce(t *testing.T) {
	var fetches int32
	release := make(chan struct{})
	fetch := func(ctx context.Context, token, path, ref string) ([]byte, error) {
		atomic.AddInt32(&fetches, 1)
		<-release
		return []byte("blob:" + path), nil
	}

	a := NewAssetCache(nil, fetch)
	url := "https://raw.githubusercontent.com/acme/drops-data/main/assets/img-1.png"

	var wg sync.WaitGroup
	results := make([][]byte, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, err := a.Get(context.Background(), "tok", url)
			if err != nil {
				t.Errorf("Get() error = %v", err)
				return
			}
			results[i] = data
		}(i)
	}

	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&fetches); got != 1 {
		t.Errorf("origin fetched %d times, want 1", got)
	}
	for _, data := range results {
		if string(data) != "blob:assets/img-1.png" {
			t.Errorf("Get() = %q", data)
		}
	}

	// Second round is served from cache
	if _, err := a.Get(context.Background(), "tok", url); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got := atomic.LoadInt32(&fetches); got != 1 {
		t.Errorf("origin fetched %d times after cached read, want 1", got)
	}
}

func TestAssetCachePropagatesFetchErrors(t *testing.T) {
	fetch := func(ctx context.Context, token, path, ref string) ([]byte, error) {
		return nil, context.DeadlineExceeded
	}
	a := NewAssetCache(nil, fetch)

	_, err := a.Get(context.Background(), "tok", "https://raw.githubusercontent.com/acme/drops-data/main/x.png")
	if err == nil {
		t.Fatal("Get() expected error")
	}

	// Failures are not cached; the next call tries again
	ok := false
	a.fetch = func(ctx context.Context, token, path, ref string) ([]byte, error) {
		ok = true
		return []byte("fine"), nil
	}
	if _, err := a.Get(context.Background(), "tok", "https://raw.githubusercontent.com/acme/drops-data/main/x.png"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Error("failed fetch was cached")
	}
}
