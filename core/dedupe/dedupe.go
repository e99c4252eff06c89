// Package dedupe provides a fast-path duplicate-content cache for flooded
// link-state packets, so a re-flooded LSP whose content (origin, sequence,
// links) byte-for-byte matches one already seen can be discarded before the
// router touches its LSDB or sequence-number bookkeeping.
//
// It tracks recently seen content using a circular buffer of truncated
// hashes, matching the shape of the original MeshCore packet deduplicator.
package dedupe

import (
	"golang.org/x/crypto/blake2b"
)

const (
	// DefaultCapacity is the default number of distinct content hashes the
	// cache remembers before the oldest entry is evicted.
	DefaultCapacity = 256
	// DigestSize is the truncated blake2b digest size used for each entry.
	DigestSize = 8
)

// Cache is a circular-buffer content-hash cache. It is not safe for
// concurrent use; callers (core/ls.Router) guard it with their own mutex.
type Cache struct {
	hashes   []byte // circular buffer of capacity*DigestSize bytes
	capacity int
	next     int
	filled   int
}

// New creates a Cache with DefaultCapacity entries.
func New() *Cache {
	return NewWithCapacity(DefaultCapacity)
}

// NewWithCapacity creates a Cache that remembers up to capacity distinct
// content hashes.
func NewWithCapacity(capacity int) *Cache {
	return &Cache{
		hashes:   make([]byte, capacity*DigestSize),
		capacity: capacity,
	}
}

// HasSeen reports whether content has been seen before. If not, it records
// the content and returns false. If it has been seen, it returns true.
func (c *Cache) HasSeen(content []byte) bool {
	digest := digestOf(content)

	for i := 0; i < c.filled; i++ {
		offset := i * DigestSize
		if byteSliceEqual(digest[:], c.hashes[offset:offset+DigestSize]) {
			return true
		}
	}

	offset := c.next * DigestSize
	copy(c.hashes[offset:offset+DigestSize], digest[:])
	c.next = (c.next + 1) % c.capacity
	if c.filled < c.capacity {
		c.filled++
	}
	return false
}

// Clear resets the cache, forgetting all previously seen content.
func (c *Cache) Clear() {
	clear(c.hashes)
	c.next = 0
	c.filled = 0
}

func digestOf(content []byte) [DigestSize]byte {
	full := blake2b.Sum256(content)
	var result [DigestSize]byte
	copy(result[:], full[:DigestSize])
	return result
}

func byteSliceEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
