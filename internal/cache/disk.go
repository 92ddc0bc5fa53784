package cache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/angeloszaimis/ai-orchestrator/internal/storage"
)

// diskTier keeps a byte-bounded LRU index over a Persistence. The lock
// guards only the index; store I/O runs outside it. A key being written,
// deleted or evicted is marked busy, which serializes operations on that key
// and keeps it out of victim selection. The index records a key only once
// its bytes are in the store, and drops it only once they are gone.
type diskTier struct {
	store storage.Persistence

	mu       sync.Mutex
	idle     *sync.Cond
	busy     map[string]struct{}
	index    map[string]*list.Element
	order    *list.List // of *diskRecord, front is most recently used
	bytes    int64
	reserved int64
	maxBytes int64

	reads singleflight.Group
}

type diskRecord struct {
	key  string
	size int64
}

// openDiskTier rebuilds the index from whatever the store holds. A record
// that fails to decode aborts startup with ErrCorrupt.
func openDiskTier(ctx context.Context, store storage.Persistence, maxBytes int64) (*diskTier, int, error) {
	d := &diskTier{
		store:    store,
		busy:     make(map[string]struct{}),
		index:    make(map[string]*list.Element),
		order:    list.New(),
		maxBytes: maxBytes,
	}
	d.idle = sync.NewCond(&d.mu)

	err := store.Scan(ctx, func(key string, value []byte) error {
		e, err := decodeEntry(key, value)
		if err != nil {
			return err
		}
		d.index[key] = d.order.PushFront(&diskRecord{key: key, size: e.SizeBytes})
		d.bytes += e.SizeBytes
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("rebuild disk index: %w", err)
	}

	// The bound may have shrunk since the previous run.
	d.mu.Lock()
	victims, _ := d.claimVictimsLocked("", d.bytes-d.maxBytes)
	d.mu.Unlock()
	evicted, err := d.evict(ctx, victims)
	if err != nil {
		return nil, 0, err
	}
	return d, evicted, nil
}

// get reads key from the store. The returned record identifies the index
// entry the value belongs to; see current.
func (d *diskTier) get(ctx context.Context, key string) (*Entry, *diskRecord, error) {
	d.mu.Lock()
	el, ok := d.index[key]
	if ok {
		d.order.MoveToFront(el)
	}
	d.mu.Unlock()
	if !ok {
		return nil, nil, nil
	}
	rec := el.Value.(*diskRecord)

	v, err, _ := d.reads.Do(key, func() (any, error) {
		data, err := d.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		return decodeEntry(key, data)
	})
	if errors.Is(err, storage.ErrNotFound) {
		d.forget(rec)
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, &Error{Op: "get", Key: key, Err: err}
	}

	// Shared by every caller of the flight; hand each its own copy.
	e := *v.(*Entry)
	return &e, rec, nil
}

// current reports whether rec is still what the index holds for its key.
// A put or remove since the read replaces or drops the record.
func (d *diskTier) current(rec *diskRecord) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, ok := d.index[rec.key]
	return ok && el.Value.(*diskRecord) == rec
}

// put writes e, first evicting enough least recently used entries to keep
// the tier under bound. Entries that can never fit are dropped. On failure
// the index still describes what the store holds.
func (d *diskTier) put(ctx context.Context, e *Entry) (int, error) {
	if e.SizeBytes > d.maxBytes {
		return 0, d.remove(ctx, e.Key)
	}

	d.mu.Lock()
	d.acquireLocked(e.Key)
	var current int64
	if el, ok := d.index[e.Key]; ok {
		current = el.Value.(*diskRecord).size
	}
	victims, fits := d.claimVictimsLocked(e.Key, d.bytes-current+d.reserved+e.SizeBytes-d.maxBytes)
	if !fits {
		d.releaseLocked(e.Key)
		d.mu.Unlock()
		return 0, &Error{Op: "put", Key: e.Key, Err: errDiskFull}
	}
	d.reserved += e.SizeBytes
	d.mu.Unlock()

	evicted, err := d.evict(ctx, victims)
	if err == nil {
		if perr := d.store.Put(ctx, e.Key, encodeEntry(e)); perr != nil {
			err = &Error{Op: "put", Key: e.Key, Err: perr}
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	defer d.releaseLocked(e.Key)
	d.reserved -= e.SizeBytes
	if err != nil {
		return evicted, err
	}
	d.unindexLocked(e.Key)
	d.index[e.Key] = d.order.PushFront(&diskRecord{key: e.Key, size: e.SizeBytes})
	d.bytes += e.SizeBytes
	return evicted, nil
}

// claimVictimsLocked picks least recently used records, skipping busy keys
// and skip, until at least need bytes are covered. The victims are marked
// busy but stay indexed until evict removes them. It reports false, and
// claims nothing, when need cannot be covered.
func (d *diskTier) claimVictimsLocked(skip string, need int64) ([]*diskRecord, bool) {
	if need <= 0 {
		return nil, true
	}

	var (
		victims []*diskRecord
		freed   int64
	)
	for el := d.order.Back(); el != nil && freed < need; el = el.Prev() {
		rec := el.Value.(*diskRecord)
		if _, busy := d.busy[rec.key]; busy || rec.key == skip {
			continue
		}
		victims = append(victims, rec)
		freed += rec.size
	}
	if freed < need {
		return nil, false
	}

	for _, rec := range victims {
		d.busy[rec.key] = struct{}{}
	}
	return victims, true
}

// evict deletes claimed victims from the store and then from the index.
// Victims left over after a failure are released untouched.
func (d *diskTier) evict(ctx context.Context, victims []*diskRecord) (int, error) {
	for i, rec := range victims {
		err := d.store.Delete(ctx, rec.key)

		d.mu.Lock()
		if err != nil {
			for _, left := range victims[i:] {
				d.releaseLocked(left.key)
			}
			d.mu.Unlock()
			return i, &Error{Op: "evict", Key: rec.key, Err: err}
		}
		d.unindexLocked(rec.key)
		d.releaseLocked(rec.key)
		d.mu.Unlock()
	}
	return len(victims), nil
}

func (d *diskTier) remove(ctx context.Context, key string) error {
	d.mu.Lock()
	d.acquireLocked(key)
	d.mu.Unlock()

	err := d.store.Delete(ctx, key)

	d.mu.Lock()
	defer d.mu.Unlock()
	defer d.releaseLocked(key)
	if err != nil {
		return &Error{Op: "delete", Key: key, Err: err}
	}
	d.unindexLocked(key)
	return nil
}

// forget drops an index record whose data vanished from the store, unless
// the key has been rewritten or is being worked on.
func (d *diskTier) forget(rec *diskRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.busy[rec.key]; busy {
		return
	}
	if el, ok := d.index[rec.key]; ok && el.Value.(*diskRecord) == rec {
		d.unindexLocked(rec.key)
	}
}

// acquireLocked waits until no other operation holds key, then takes it.
func (d *diskTier) acquireLocked(key string) {
	for {
		if _, busy := d.busy[key]; !busy {
			break
		}
		d.idle.Wait()
	}
	d.busy[key] = struct{}{}
}

func (d *diskTier) releaseLocked(key string) {
	delete(d.busy, key)
	d.idle.Broadcast()
}

func (d *diskTier) unindexLocked(key string) {
	el, ok := d.index[key]
	if !ok {
		return
	}
	d.bytes -= el.Value.(*diskRecord).size
	d.order.Remove(el)
	delete(d.index, key)
}

func (d *diskTier) usage() (int64, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bytes, len(d.index)
}
