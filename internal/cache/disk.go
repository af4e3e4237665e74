package cache

import (
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// diskStore is the persistent tier backed by Badger. Entries are stored as
// msgpack envelopes with Badger-native TTLs. Failures degrade: callers see
// a miss or a dropped write, never an error.
type diskStore struct {
	db  *badger.DB
	log zerolog.Logger
}

func openDiskStore(dir string, log zerolog.Logger) (*diskStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create disk cache directory: %w", err)
	}

	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open disk cache: %w", err)
	}

	return &diskStore{db: db, log: log}, nil
}

func (d *diskStore) get(key string) (Entry, bool) {
	var raw []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if err != badger.ErrKeyNotFound {
			d.log.Warn().Err(err).Str("key", key).Msg("disk cache read failed")
		}
		return Entry{}, false
	}

	entry, err := decodeEntry(raw)
	if err != nil {
		d.log.Warn().Err(err).Str("key", key).Msg("corrupt disk cache entry, dropping")
		d.delete(key)
		return Entry{}, false
	}
	return entry, true
}

func (d *diskStore) set(key string, entry Entry, ttl time.Duration) {
	raw, err := encodeEntry(entry)
	if err != nil {
		d.log.Warn().Err(err).Str("key", key).Msg("disk cache encode failed")
		return
	}

	err = d.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), raw).WithTTL(ttl)
		return txn.SetEntry(e)
	})
	if err != nil {
		d.log.Warn().Err(err).Str("key", key).Msg("disk cache write failed")
	}
}

func (d *diskStore) delete(key string) {
	err := d.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		d.log.Warn().Err(err).Str("key", key).Msg("disk cache delete failed")
	}
}

func (d *diskStore) deletePrefix(prefix string) int {
	removed := 0
	err := d.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			key := it.Item().KeyCopy(nil)
			if err := txn.Delete(key); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		d.log.Warn().Err(err).Str("prefix", prefix).Msg("disk cache prefix delete failed")
	}
	return removed
}

func (d *diskStore) clear() {
	if err := d.db.DropAll(); err != nil {
		d.log.Warn().Err(err).Msg("disk cache clear failed")
	}
}

// gc reclaims value-log space. Badger returns ErrNoRewrite when there is
// nothing to collect, which is not an error condition.
func (d *diskStore) gc() {
	for {
		if err := d.db.RunValueLogGC(0.5); err != nil {
			return
		}
	}
}

func (d *diskStore) sizes() (lsm, vlog int64) {
	return d.db.Size()
}

func (d *diskStore) close() error {
	return d.db.Close()
}
