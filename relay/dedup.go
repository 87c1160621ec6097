package relay

import (
	"sync"

	"github.com/willf/bloom"
)

// dedupExpectedItems and dedupFalsePositiveRate size the bloom filter
// for a single relay's transient inbound-event dedup window; this is
// not a persistence layer, only a cheap suppressor for the common case
// of a relay re-delivering an EVENT already forwarded to the pool.
const (
	dedupExpectedItems     = 100_000
	dedupFalsePositiveRate = 0.001
)

// eventDedup suppresses duplicate inbound event ids for the lifetime
// of one connected session. It resets on every reconnect since the
// filter only ever grows and a long-lived relay would otherwise
// saturate it.
type eventDedup struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
}

func newEventDedup() *eventDedup {
	return &eventDedup{filter: bloom.NewWithEstimates(dedupExpectedItems, dedupFalsePositiveRate)}
}

// Seen reports whether id was already observed, recording it either way.
func (d *eventDedup) Seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := []byte(id)
	if d.filter.Test(key) {
		return true
	}
	d.filter.Add(key)
	return false
}

// Reset discards all recorded ids, used on reconnect.
func (d *eventDedup) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.filter = bloom.NewWithEstimates(dedupExpectedItems, dedupFalsePositiveRate)
}
