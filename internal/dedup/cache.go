// Package dedup remembers recently executed requests so that a retransmitted
// request is not executed twice.
package dedup

import (
	"container/list"
	"fmt"
	"net/netip"
	"time"
)

const (
	DefaultTTL      = 30 * time.Second
	DefaultCapacity = 1000
)

// Key identifies a logical request: the client's request id plus its address.
func Key(requestID uint32, addr netip.AddrPort) string {
	return fmt.Sprintf("%d-%s", requestID, addr)
}

// Entry is one remembered request.
type Entry struct {
	Key      string
	SeenAt   time.Time
	Response []byte // encoded reply, kept only when replaying
}

// Cache is a FIFO of request keys bounded both by age and by size. Eviction
// follows insertion order only; lookups never refresh an entry.
//
// Cache is not safe for concurrent use.
type Cache struct {
	ttl      time.Duration
	capacity int

	order *list.List // of *Entry, oldest first
	index map[string]*list.Element
}

func New(ttl time.Duration, capacity int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		ttl:      ttl,
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element, capacity),
	}
}

// Lookup returns the entry for key if it was recorded no more than ttl ago.
// A stale entry is dropped.
func (c *Cache) Lookup(key string, now time.Time) (Entry, bool) {
	el, ok := c.index[key]
	if !ok {
		return Entry{}, false
	}
	e := el.Value.(*Entry)
	if now.Sub(e.SeenAt) > c.ttl {
		c.drop(el)
		return Entry{}, false
	}
	return *e, true
}

// Record stores key as seen at now, evicting the oldest entry when full.
// Recording a key that is already present moves it to the back.
func (c *Cache) Record(key string, now time.Time, response []byte) {
	if el, ok := c.index[key]; ok {
		c.drop(el)
	}
	for c.order.Len() >= c.capacity {
		c.drop(c.order.Front())
	}
	c.index[key] = c.order.PushBack(&Entry{Key: key, SeenAt: now, Response: response})
}

// Sweep drops every entry older than ttl and returns how many were removed.
func (c *Cache) Sweep(now time.Time) int {
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if now.Sub(el.Value.(*Entry).SeenAt) > c.ttl {
			c.drop(el)
			removed++
		}
		el = next
	}
	return removed
}

func (c *Cache) Len() int { return c.order.Len() }

func (c *Cache) TTL() time.Duration { return c.ttl }

func (c *Cache) drop(el *list.Element) {
	delete(c.index, el.Value.(*Entry).Key)
	c.order.Remove(el)
}
