package sink

import "gtorrent/lru"

// page is the unit the read cache holds: the bytes of one WriteAt call,
// keyed by the content offset they were written at.
type page struct {
	offset int64
	data   []byte
}

// CachingSink wraps a Sink with a bounded read cache of recently-written
// pieces, grounded on spec.md §9's open question (d): a downloaded piece is
// likely to be re-served to other peers soon after arrival (once seeding is
// implemented), so keeping its bytes warm in memory avoids an immediate
// re-read from disk. Uses package lru rather than a bespoke map+list since
// this is exactly the bounded-recency cache lru.Cache implements.
type CachingSink struct {
	underlying Sink
	cache      *lru.Cache[int, page]
}

// NewCachingSink wraps underlying with an LRU of capacity pieces.
func NewCachingSink(underlying Sink, capacity int) *CachingSink {
	return &CachingSink{
		underlying: underlying,
		cache:      lru.New[int, page](capacity),
	}
}

// WriteAt writes through to the underlying sink and caches the bytes,
// keyed by offset, for fast re-reads.
func (c *CachingSink) WriteAt(offset int64, p []byte) (int, error) {
	n, err := c.underlying.WriteAt(offset, p)
	if err != nil {
		return n, err
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	c.cache.Put(int(offset), page{offset: offset, data: cp})
	return n, nil
}

// Peek returns the cached bytes written at offset, if still resident.
func (c *CachingSink) Peek(offset int64) ([]byte, bool) {
	pg, ok := c.cache.Get(int(offset))
	if !ok {
		return nil, false
	}
	return pg.data, true
}

func (c *CachingSink) Files() []FileSpec { return c.underlying.Files() }
func (c *CachingSink) Close() error      { return c.underlying.Close() }

var _ Sink = (*CachingSink)(nil)
