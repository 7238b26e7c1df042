package client

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"plantatlas/pkg/storage"
)

// urlCacheTTL is how long a signed URL is served from cache. It sits below
// the server-side expiry so callers never receive a URL about to die in
// their hands.
const urlCacheTTL = storage.SignedURLExpiry - 10*time.Minute

// ImageRef names one image to resolve: the id of the record owning it plus
// its storage path. The cache keys on both, so replacing a record's image
// invalidates the old entry without any explicit eviction call.
type ImageRef struct {
	ID   string
	Path string
}

func (r ImageRef) key() string {
	return r.ID + "\x00" + r.Path
}

type cachedURL struct {
	url      string
	issuedAt time.Time
}

// SignedURLResolver is the slice of Backend the cache needs.
type SignedURLResolver interface {
	ResolveSignedURLs(ctx context.Context, paths []string) ([]string, error)
}

// URLCache resolves image storage paths to signed download URLs through a
// resolver, caching results per image. A request whose entries are all
// cached and fresh is answered without a network call; any miss resolves
// the whole batch in one call. Results are positional: out[i] belongs to
// refs[i], and an unresolvable path yields "" at its position.
type URLCache struct {
	resolver SignedURLResolver
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]cachedURL

	group singleflight.Group
}

// NewURLCache returns a cache over resolver with the default TTL.
func NewURLCache(resolver SignedURLResolver) *URLCache {
	return &URLCache{
		resolver: resolver,
		ttl:      urlCacheTTL,
		now:      time.Now,
		entries:  make(map[string]cachedURL),
	}
}

func (c *URLCache) fresh(e cachedURL) bool {
	return c.now().Sub(e.issuedAt) < c.ttl
}

// lookup returns the cached URLs for refs, ok=false when any entry is
// missing or expired.
func (c *URLCache) lookup(refs []ImageRef) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(refs))
	for i, ref := range refs {
		e, ok := c.entries[ref.key()]
		if !ok || !c.fresh(e) {
			return nil, false
		}
		out[i] = e.url
	}
	return out, true
}

// Resolve returns one signed URL per ref, in ref order. On a full cache
// hit no network call is made. Identical concurrent batches share a single
// resolver call.
func (c *URLCache) Resolve(ctx context.Context, refs []ImageRef) ([]string, error) {
	if len(refs) == 0 {
		return []string{}, nil
	}
	if out, ok := c.lookup(refs); ok {
		return out, nil
	}

	keys := make([]string, len(refs))
	for i, ref := range refs {
		keys[i] = ref.key()
	}
	v, err, _ := c.group.Do(strings.Join(keys, "\x1f"), func() (any, error) {
		paths := make([]string, len(refs))
		for i, ref := range refs {
			paths[i] = ref.Path
		}
		urls, err := c.resolver.ResolveSignedURLs(ctx, paths)
		if err != nil {
			return nil, err
		}
		issued := c.now()
		c.mu.Lock()
		for i, ref := range refs {
			// Failed items stay uncached so a later request retries them.
			if urls[i] == "" {
				continue
			}
			c.entries[ref.key()] = cachedURL{url: urls[i], issuedAt: issued}
		}
		c.mu.Unlock()
		return urls, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// ResolveOne is a convenience wrapper for a single image.
func (c *URLCache) ResolveOne(ctx context.Context, ref ImageRef) (string, error) {
	out, err := c.Resolve(ctx, []ImageRef{ref})
	if err != nil {
		return "", err
	}
	return out[0], nil
}

// Clear drops every cached URL. Called on sign-out so the next session
// starts cold.
func (c *URLCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]cachedURL)
	c.mu.Unlock()
}
