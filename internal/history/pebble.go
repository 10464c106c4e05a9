package history

import (
	"fmt"
	"os"

	"github.com/cockroachdb/pebble"
	jsoniter "github.com/json-iterator/go"
)

const (
	historyDirPermissions = 0o750

	// pebbleCacheSize is small; the history of a handful of accounts fits
	// comfortably.
	pebbleCacheSize = 8 << 20
)

//nolint:gochecknoglobals // codec for stored values
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PebbleBackend persists history records in a pebble database.
// Keys are "<account>:<txid>", values are JSON encoded StoredRecords.
type PebbleBackend struct {
	db *pebble.DB
}

// Compile-time interface check
var _ Backend = (*PebbleBackend)(nil)

// OpenPebble opens (or creates) the pebble database at dir.
func OpenPebble(dir string) (*PebbleBackend, error) {
	if err := os.MkdirAll(dir, historyDirPermissions); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	cache := pebble.NewCache(pebbleCacheSize)
	defer cache.Unref()

	db, err := pebble.Open(dir, &pebble.Options{Cache: cache})
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	return &PebbleBackend{db: db}, nil
}

func recordKey(account, txID string) []byte {
	return []byte(account + ":" + txID)
}

// SaveBatch writes records in a single synced batch.
func (p *PebbleBackend) SaveBatch(records []StoredRecord) error {
	batch := p.db.NewBatch()
	defer func() { _ = batch.Close() }()

	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshaling record %s: %w", r.Record.TxID, err)
		}
		if err := batch.Set(recordKey(r.Account, r.Record.TxID), data, nil); err != nil {
			return fmt.Errorf("staging record %s: %w", r.Record.TxID, err)
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("committing history batch: %w", err)
	}
	return nil
}

// LoadAll reads every stored record.
func (p *PebbleBackend) LoadAll() ([]StoredRecord, error) {
	iter, err := p.db.NewIter(nil)
	if err != nil {
		return nil, fmt.Errorf("opening history iterator: %w", err)
	}
	defer func() { _ = iter.Close() }()

	var records []StoredRecord
	for iter.First(); iter.Valid(); iter.Next() {
		var r StoredRecord
		if err := json.Unmarshal(iter.Value(), &r); err != nil {
			return nil, fmt.Errorf("decoding history record %q: %w", iter.Key(), err)
		}
		records = append(records, r)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}
	return records, nil
}

// Close closes the database.
func (p *PebbleBackend) Close() error {
	return p.db.Close()
}
