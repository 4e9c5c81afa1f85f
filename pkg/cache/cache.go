package cache

import (
	"container/list"
	"sync"

	"github.com/sirupsen/logrus"
)

// Cache is a weighted LRU cache safe for concurrent use. Once the combined
// weight of its entries exceeds the budget, the least recently used entries
// are evicted until it fits again.
type Cache[V any] struct {
	log *logrus.Entry

	mu      sync.Mutex
	budget  int
	weight  int
	order   *list.List
	entries map[string]*list.Element
}

type entry[V any] struct {
	key    string
	value  V
	weight int
}

func New[V any](budget int) *Cache[V] {
	return &Cache[V]{
		log:     logrus.StandardLogger().WithField("type", "cache"),
		budget:  budget,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

// Get returns the value for key and marks it as most recently used
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}

	c.order.MoveToFront(el)
	return el.Value.(*entry[V]).value, true
}

// Put sets the value for key, replacing any existing value. An entry heavier
// than the budget is evicted immediately.
func (c *Cache[V]) Put(key string, value V, weight int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.unlink(el)
	}

	c.entries[key] = c.order.PushFront(&entry[V]{
		key:    key,
		value:  value,
		weight: weight,
	})
	c.weight += weight

	for c.weight > c.budget {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}

		evicted := c.unlink(oldest)
		c.log.WithFields(logrus.Fields{
			"key":          evicted.key,
			"weight":       evicted.weight,
			"spare_weight": c.budget - c.weight,
		}).Trace("cache eviction")
	}
}

// Remove deletes key, returning whether it was present
func (c *Cache[V]) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return false
	}

	c.unlink(el)
	return true
}

// Weight returns the combined weight of all entries
func (c *Cache[V]) Weight() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.weight
}

// Len returns the number of entries
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.order.Len()
}

func (c *Cache[V]) unlink(el *list.Element) *entry[V] {
	e := c.order.Remove(el).(*entry[V])
	delete(c.entries, e.key)
	c.weight -= e.weight
	return e
}
