package cache

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// EntryKind tags what an entry holds. Negative entries record that the
// upstream was consulted and had nothing, which is distinct from the key
// being absent from the cache.
type EntryKind uint8

const (
	KindValue    EntryKind = 1
	KindNegative EntryKind = 2
)

// Entry is the envelope stored in both tiers. Payload is the msgpack
// encoding of the domain value; negative entries carry no payload, only the
// namespace sentinel label for diagnostics.
type Entry struct {
	Kind     EntryKind `msgpack:"k"`
	Payload  []byte    `msgpack:"p,omitempty"`
	Sentinel string    `msgpack:"s,omitempty"`
	StoredAt int64     `msgpack:"t"` // unix seconds
}

// Negative reports whether the entry is a looked-up-but-absent marker.
func (e Entry) Negative() bool { return e.Kind == KindNegative }

// Decode unmarshals the payload into dest. Calling Decode on a negative
// entry is a caller bug.
func (e Entry) Decode(dest interface{}) error {
	if e.Kind != KindValue {
		return fmt.Errorf("cannot decode %s entry", e.Sentinel)
	}
	return msgpack.Unmarshal(e.Payload, dest)
}

func newValueEntry(value interface{}, now int64) (Entry, error) {
	payload, err := msgpack.Marshal(value)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to encode cache payload: %w", err)
	}
	return Entry{Kind: KindValue, Payload: payload, StoredAt: now}, nil
}

func newNegativeEntry(sentinel string, now int64) Entry {
	return Entry{Kind: KindNegative, Sentinel: sentinel, StoredAt: now}
}

func encodeEntry(e Entry) ([]byte, error) {
	return msgpack.Marshal(e)
}

func decodeEntry(raw []byte) (Entry, error) {
	var e Entry
	if err := msgpack.Unmarshal(raw, &e); err != nil {
		return Entry{}, err
	}
	return e, nil
}
