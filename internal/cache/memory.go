package cache

import (
	"container/list"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// memoryTier is a byte-bounded LRU split into shards. Each shard owns
// maxBytes/len(shards) of the budget, so the sum can never exceed the bound.
type memoryTier struct {
	shards []*lruShard
}

type lruShard struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	order    *list.List // front is most recently used
	bytes    int64
	maxBytes int64
}

func newMemoryTier(maxBytes int64, shards int) *memoryTier {
	if shards < 1 {
		shards = 1
	}

	t := &memoryTier{shards: make([]*lruShard, shards)}
	per := maxBytes / int64(shards)
	for i := range t.shards {
		t.shards[i] = &lruShard{
			items:    make(map[string]*list.Element),
			order:    list.New(),
			maxBytes: per,
		}
	}
	return t
}

func (t *memoryTier) shard(key string) *lruShard {
	return t.shards[xxhash.Sum64String(key)%uint64(len(t.shards))]
}

// get returns a copy of the entry and bumps its recency and hit count.
func (t *memoryTier) get(key string) (Entry, bool) {
	s := t.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok {
		return Entry{}, false
	}
	s.order.MoveToFront(el)
	e := el.Value.(*Entry)
	e.HitCount++
	return *e, true
}

// put stores e, evicting least recently used entries of the same shard until
// it fits. Entries larger than a whole shard are not kept in memory.
// It returns how many entries were evicted and whether e was stored.
func (t *memoryTier) put(e *Entry) (evicted int, stored bool) {
	s := t.shard(e.Key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[e.Key]; ok {
		s.bytes -= el.Value.(*Entry).SizeBytes
		s.order.Remove(el)
		delete(s.items, e.Key)
	}

	if e.SizeBytes > s.maxBytes {
		return 0, false
	}

	for s.bytes+e.SizeBytes > s.maxBytes {
		oldest := s.order.Back()
		if oldest == nil {
			break
		}
		victim := oldest.Value.(*Entry)
		s.order.Remove(oldest)
		delete(s.items, victim.Key)
		s.bytes -= victim.SizeBytes
		evicted++
	}

	s.items[e.Key] = s.order.PushFront(e)
	s.bytes += e.SizeBytes
	return evicted, true
}

func (t *memoryTier) remove(key string) {
	s := t.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[key]; ok {
		s.bytes -= el.Value.(*Entry).SizeBytes
		s.order.Remove(el)
		delete(s.items, key)
	}
}

func (t *memoryTier) usage() (bytes int64, entries int) {
	for _, s := range t.shards {
		s.mu.Lock()
		bytes += s.bytes
		entries += len(s.items)
		s.mu.Unlock()
	}
	return bytes, entries
}
