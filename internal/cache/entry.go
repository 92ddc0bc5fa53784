package cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Entry is one cached response.
type Entry struct {
	Key       string
	Value     []byte
	CreatedAt time.Time
	ExpiresAt time.Time
	SizeBytes int64
	HitCount  int64
}

// Fresh reports whether the entry may be served as a cache hit at now.
func (e *Entry) Fresh(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// ErrCorrupt reports a persisted entry that fails to decode.
var ErrCorrupt = errors.New("cache: corrupt entry")

var envelopeMagic = [4]byte{'A', 'I', 'C', '1'}

// magic, created, expires, hits, key length, value length, checksum
const envelopeOverhead = 4 + 8 + 8 + 8 + 4 + 4 + 8

// EntrySize is the number of bytes an entry for key and value is charged
// against a tier's bound.
func EntrySize(key string, value []byte) int64 {
	return int64(envelopeOverhead + len(key) + len(value))
}

func encodeEntry(e *Entry) []byte {
	buf := make([]byte, 0, EntrySize(e.Key, e.Value))
	buf = append(buf, envelopeMagic[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(e.CreatedAt.UnixNano()))
	buf = binary.BigEndian.AppendUint64(buf, uint64(e.ExpiresAt.UnixNano()))
	buf = binary.BigEndian.AppendUint64(buf, uint64(e.HitCount))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(e.Key)))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(e.Value)))
	buf = append(buf, e.Key...)
	buf = append(buf, e.Value...)
	return binary.BigEndian.AppendUint64(buf, xxhash.Sum64(buf))
}

func decodeEntry(key string, data []byte) (*Entry, error) {
	if len(data) < envelopeOverhead {
		return nil, fmt.Errorf("%w: %q is %d bytes", ErrCorrupt, key, len(data))
	}

	body, sum := data[:len(data)-8], binary.BigEndian.Uint64(data[len(data)-8:])
	if xxhash.Sum64(body) != sum {
		return nil, fmt.Errorf("%w: %q checksum mismatch", ErrCorrupt, key)
	}
	if [4]byte(body[:4]) != envelopeMagic {
		return nil, fmt.Errorf("%w: %q bad magic", ErrCorrupt, key)
	}

	created := int64(binary.BigEndian.Uint64(body[4:12]))
	expires := int64(binary.BigEndian.Uint64(body[12:20]))
	hits := int64(binary.BigEndian.Uint64(body[20:28]))
	keyLen := int(binary.BigEndian.Uint32(body[28:32]))
	valLen := int(binary.BigEndian.Uint32(body[32:36]))

	rest := body[36:]
	if keyLen+valLen != len(rest) {
		return nil, fmt.Errorf("%w: %q length mismatch", ErrCorrupt, key)
	}
	if string(rest[:keyLen]) != key {
		return nil, fmt.Errorf("%w: %q stored under wrong key", ErrCorrupt, key)
	}

	value := make([]byte, valLen)
	copy(value, rest[keyLen:])

	return &Entry{
		Key:       key,
		Value:     value,
		CreatedAt: time.Unix(0, created),
		ExpiresAt: time.Unix(0, expires),
		SizeBytes: int64(len(data)),
		HitCount:  hits,
	}, nil
}
