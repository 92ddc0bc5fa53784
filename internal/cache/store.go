package cache

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/angeloszaimis/ai-orchestrator/internal/storage"
)

// EventKind is what happened on a cache access.
type EventKind string

const (
	EventHit   EventKind = "hit"
	EventMiss  EventKind = "miss"
	EventEvict EventKind = "evict"
)

// Tier names where an event happened.
type Tier string

const (
	TierMemory Tier = "memory"
	TierDisk   Tier = "disk"
)

const keyLockStripes = 256

// Options configures a Store.
type Options struct {
	MemoryMaxBytes int64
	DiskMaxBytes   int64
	Shards         int

	// Persistence backs the disk tier. Nil runs memory only.
	Persistence storage.Persistence

	Logger  *slog.Logger
	OnEvent func(kind EventKind, tier Tier)
	Now     func() time.Time
}

// Stats is a point-in-time view of cache activity and occupancy.
type Stats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Evictions     int64 `json:"evictions"`
	MemoryBytes   int64 `json:"memory_bytes"`
	MemoryEntries int   `json:"memory_entries"`
	DiskBytes     int64 `json:"disk_bytes"`
	DiskEntries   int   `json:"disk_entries"`
}

// Store is the tiered cache.
type Store struct {
	mem   *memoryTier
	disk  *diskTier
	locks [keyLockStripes]sync.Mutex

	logger  *slog.Logger
	onEvent func(EventKind, Tier)
	now     func() time.Time

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// New builds a Store. With a Persistence configured it rebuilds the disk
// index first; corrupt persisted data fails construction.
func New(ctx context.Context, opts Options) (*Store, error) {
	s := &Store{
		mem:     newMemoryTier(opts.MemoryMaxBytes, opts.Shards),
		logger:  opts.Logger,
		onEvent: opts.OnEvent,
		now:     opts.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}

	if opts.Persistence != nil {
		disk, evicted, err := openDiskTier(ctx, opts.Persistence, opts.DiskMaxBytes)
		if err != nil {
			return nil, err
		}
		s.disk = disk
		s.recordEvictions(evicted, TierDisk)

		bytes, entries := disk.usage()
		s.logger.Info("cache disk tier loaded",
			slog.Int("entries", entries),
			slog.Int64("bytes", bytes))
	}

	return s, nil
}

// Get returns a fresh entry for key. Expired entries are reported as a miss.
func (s *Store) Get(ctx context.Context, key string) (*Entry, bool) {
	e, tier, ok := s.lookup(ctx, key)
	if !ok || !e.Fresh(s.now()) {
		s.misses.Add(1)
		s.emit(EventMiss, tier)
		return nil, false
	}
	s.hits.Add(1)
	s.emit(EventHit, tier)
	return e, true
}

// GetStale returns whatever entry exists for key, expired or not.
func (s *Store) GetStale(ctx context.Context, key string) (*Entry, bool) {
	e, _, ok := s.lookup(ctx, key)
	return e, ok
}

// lookup reports the entry and the deepest tier that was consulted.
func (s *Store) lookup(ctx context.Context, key string) (*Entry, Tier, bool) {
	if e, ok := s.mem.get(key); ok {
		return &e, TierMemory, true
	}
	if s.disk == nil {
		return nil, TierMemory, false
	}

	e, rec, err := s.disk.get(ctx, key)
	if err != nil {
		s.logger.Warn("cache disk read failed, treating as miss",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return nil, TierDisk, false
	}
	if e == nil {
		return nil, TierDisk, false
	}

	// Promote, unless a writer got the key into memory meanwhile or the
	// record read is no longer the one on disk.
	mu := s.lockFor(key)
	mu.Lock()
	defer mu.Unlock()
	if fresher, ok := s.mem.get(key); ok {
		return &fresher, TierMemory, true
	}
	if !s.disk.current(rec) {
		return nil, TierDisk, false
	}
	e.HitCount++
	promoted := *e
	evicted, _ := s.mem.put(&promoted)
	s.recordEvictions(evicted, TierMemory)
	return e, TierDisk, true
}

// Put stores value under key for ttl in both tiers. Memory is always
// updated; a disk failure is returned as *Error after being logged.
func (s *Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := s.now()
	e := &Entry{
		Key:       key,
		Value:     slices.Clone(value),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		SizeBytes: EntrySize(key, value),
	}

	mu := s.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	evicted, _ := s.mem.put(e)
	s.recordEvictions(evicted, TierMemory)

	if s.disk == nil {
		return nil
	}

	evicted, err := s.disk.put(ctx, e)
	s.recordEvictions(evicted, TierDisk)
	if err != nil {
		s.logger.Warn("cache disk write failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}

// Invalidate removes key from both tiers.
func (s *Store) Invalidate(ctx context.Context, key string) error {
	mu := s.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	s.mem.remove(key)
	if s.disk == nil {
		return nil
	}
	return s.disk.remove(ctx, key)
}

// Stats reports counters and current occupancy.
func (s *Store) Stats() Stats {
	st := Stats{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Evictions: s.evictions.Load(),
	}
	st.MemoryBytes, st.MemoryEntries = s.mem.usage()
	if s.disk != nil {
		st.DiskBytes, st.DiskEntries = s.disk.usage()
	}
	return st
}

// Close releases the disk tier's store.
func (s *Store) Close() error {
	if s.disk == nil {
		return nil
	}
	return s.disk.store.Close()
}

func (s *Store) lockFor(key string) *sync.Mutex {
	return &s.locks[xxhash.Sum64String(key)%keyLockStripes]
}

func (s *Store) recordEvictions(n int, tier Tier) {
	for i := 0; i < n; i++ {
		s.evictions.Add(1)
		s.emit(EventEvict, tier)
	}
}

func (s *Store) emit(kind EventKind, tier Tier) {
	if s.onEvent != nil {
		s.onEvent(kind, tier)
	}
}

// IsCorrupt reports whether err stems from corrupt persisted data.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorrupt)
}
