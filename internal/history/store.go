// Package history keeps the transaction history of each account.
//
// Records are merged by transaction id. A record's status only moves
// forward, from pending to confirmed or failed, and terminal records are
// never modified again. Listings are ordered newest first.
package history

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/mrz1836/coinsync/internal/node"
	coinerr "github.com/mrz1836/coinsync/pkg/errors"
)

// StoredRecord is a record together with its owning account and insertion
// sequence. The sequence breaks ties between records with equal times.
type StoredRecord struct {
	Account string                 `json:"account"`
	Seq     uint64                 `json:"seq"`
	Record  node.TransactionRecord `json:"record"`
}

// Backend persists history records. Implementations must be safe for use
// from a single goroutine at a time; the Store serializes calls.
type Backend interface {
	// SaveBatch persists records atomically.
	SaveBatch(records []StoredRecord) error

	// LoadAll returns every persisted record.
	LoadAll() ([]StoredRecord, error)

	// Close releases the backend.
	Close() error
}

// Store is the in-memory history of every account, optionally persisted.
// It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]map[string]StoredRecord // account -> txid -> record
	seq      uint64
	backend  Backend
}

// NewStore creates an empty, memory-only store.
func NewStore() *Store {
	return &Store{accounts: make(map[string]map[string]StoredRecord)}
}

// Open creates a store backed by b and loads its records.
func Open(b Backend) (*Store, error) {
	s := NewStore()
	s.backend = b

	records, err := b.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	for _, r := range records {
		if r.Account == "" || r.Record.TxID == "" {
			continue
		}
		s.setLocked(r)
		if r.Seq > s.seq {
			s.seq = r.Seq
		}
	}
	return s, nil
}

// Upsert merges records into the account's history and returns how many
// records were inserted or changed. Re-applying an identical record is a
// no-op. A pending record is replaced by any newer view of the same
// transaction; confirmed and failed records are left untouched. A record
// without a status is stored as pending.
func (s *Store) Upsert(account string, records ...node.TransactionRecord) (int, error) {
	if account == "" {
		return 0, coinerr.WithDetails(coinerr.ErrInvalidInput, map[string]string{"field": "account"})
	}
	for _, r := range records {
		if r.TxID == "" {
			return 0, coinerr.WithDetails(coinerr.ErrInvalidInput, map[string]string{"field": "tx_id"})
		}
		if r.Status != "" && !r.Status.IsKnown() {
			return 0, coinerr.WithDetails(coinerr.ErrInvalidInput, map[string]string{"status": string(r.Status)})
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.accounts[account]
	pending := make(map[string]StoredRecord, len(records))
	order := make([]string, 0, len(records))
	next := s.seq

	for _, in := range records {
		if in.Status == "" {
			in.Status = node.StatusPending
		}
		cur, ok := pending[in.TxID]
		if !ok {
			cur, ok = existing[in.TxID]
		}

		var merged StoredRecord
		switch {
		case !ok:
			next++
			merged = StoredRecord{Account: account, Seq: next, Record: in.Clone()}
		case !cur.Record.Status.CanTransition(in.Status) || cur.Record.Status.IsTerminal():
			continue
		case recordsEqual(cur.Record, in):
			continue
		default:
			merged = StoredRecord{Account: account, Seq: cur.Seq, Record: in.Clone()}
		}

		if _, seen := pending[in.TxID]; !seen {
			order = append(order, in.TxID)
		}
		pending[in.TxID] = merged
	}

	if len(order) == 0 {
		return 0, nil
	}

	changed := make([]StoredRecord, 0, len(order))
	for _, id := range order {
		changed = append(changed, pending[id])
	}

	if s.backend != nil {
		if err := s.backend.SaveBatch(changed); err != nil {
			return 0, fmt.Errorf("persisting history: %w", err)
		}
	}

	for _, r := range changed {
		s.setLocked(r)
	}
	s.seq = next
	return len(changed), nil
}

// ListByAccount returns the account's records, newest first. Records with
// equal times are ordered by most recent insertion first. The result is a
// copy and may be modified by the caller.
func (s *Store) ListByAccount(account string) []node.TransactionRecord {
	s.mu.RLock()
	stored := make([]StoredRecord, 0, len(s.accounts[account]))
	for _, r := range s.accounts[account] {
		stored = append(stored, r)
	}
	s.mu.RUnlock()

	sort.Slice(stored, func(i, j int) bool {
		ti, tj := stored[i].Record.Time, stored[j].Record.Time
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return stored[i].Seq > stored[j].Seq
	})

	out := make([]node.TransactionRecord, len(stored))
	for i, r := range stored {
		out[i] = r.Record.Clone()
	}
	return out
}

// Get returns a copy of one record.
func (s *Store) Get(account, txID string) fn.Option[node.TransactionRecord] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.accounts[account][txID]
	if !ok {
		return fn.None[node.TransactionRecord]()
	}
	return fn.Some(r.Record.Clone())
}

// Pending returns the account's records that have not reached a terminal
// status, newest first.
func (s *Store) Pending(account string) []node.TransactionRecord {
	all := s.ListByAccount(account)
	out := all[:0]
	for _, r := range all {
		if !r.Status.IsTerminal() {
			out = append(out, r)
		}
	}
	return out
}

// Accounts returns the names of accounts with at least one record, sorted.
func (s *Store) Accounts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.accounts))
	for name := range s.accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases the backend, if any.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backend == nil {
		return nil
	}
	err := s.backend.Close()
	s.backend = nil
	return err
}

func (s *Store) setLocked(r StoredRecord) {
	byTx, ok := s.accounts[r.Account]
	if !ok {
		byTx = make(map[string]StoredRecord)
		s.accounts[r.Account] = byTx
	}
	byTx[r.Record.TxID] = r
}

func recordsEqual(a, b node.TransactionRecord) bool {
	if a.TxID != b.TxID || !a.Time.Equal(b.Time) || a.AmountUnits != b.AmountUnits ||
		a.FeeUnits != b.FeeUnits || a.Direction != b.Direction ||
		a.IsPrivacy != b.IsPrivacy || a.Status != b.Status ||
		len(a.Receivers) != len(b.Receivers) {
		return false
	}
	for i := range a.Receivers {
		if a.Receivers[i] != b.Receivers[i] {
			return false
		}
	}
	return true
}
