// Package ledger is the append-only, per-address record of wallet intents
// and their outcomes, backed by badger.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
)

var (
	// ErrEntryNotFound means a status update referenced an unknown entry id.
	// Bookkeeping issue, non-fatal to the user-facing operation.
	ErrEntryNotFound = errors.New("ledger entry not found")

	// ErrTerminalStatus means a status update tried to move an entry out of
	// Completed or Failed. Terminal states are absorbing.
	ErrTerminalStatus = errors.New("entry already in a terminal status")
)

// Store persists ledger entries. Writes to one address are serialized by
// badger transactions; reads may run concurrently.
type Store struct {
	db *badgerhold.Store
}

// Open opens (or creates) the ledger database at dir. An empty dir opens an
// in-memory store, used by tests.
func Open(dir string) (*Store, error) {
	inMemory := len(dir) == 0

	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	if inMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger store: %w", err)
	}

	if !inMemory {
		go runValueLogGC(db)
	}

	return &Store{db: db}, nil
}

func runValueLogGC(db *badgerhold.Store) {
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		if err := db.Badger().RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
			log.WithError(err).Warn("ledger value log GC failed")
		}
	}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append assigns the entry a unique id, stamps CreatedAt if unset, and
// persists it. Returns the assigned id.
func (s *Store) Append(ctx context.Context, e *Entry) (string, error) {
	if e.Address == "" {
		return "", fmt.Errorf("entry address is required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.USDValueAtRecording == "" {
		e.USDValueAtRecording = "0"
	}

	if err := s.db.Insert(e.ID, e); err != nil {
		return "", fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return e.ID, nil
}

// UpdateStatus moves the entry identified by (address, id) to status,
// attaching txHash when non-empty. Unknown ids fail with ErrEntryNotFound.
// Entries already in a terminal status reject any change (ErrTerminalStatus);
// a Pending entry may stay Pending to pick up its txHash after broadcast.
func (s *Store) UpdateStatus(ctx context.Context, address, id string, status Status, txHash string) error {
	return s.db.Badger().Update(func(tx *badger.Txn) error {
		var entry Entry
		if err := s.db.TxGet(tx, id, &entry); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return ErrEntryNotFound
			}
			return fmt.Errorf("failed to load ledger entry: %w", err)
		}
		if entry.Address != address {
			return ErrEntryNotFound
		}

		if entry.Status.Terminal() && status != entry.Status {
			return ErrTerminalStatus
		}

		entry.Status = status
		if txHash != "" {
			entry.TxHash = txHash
		}

		if err := s.db.TxUpdate(tx, id, &entry); err != nil {
			return fmt.Errorf("failed to update ledger entry: %w", err)
		}
		return nil
	})
}

// FindStalePending returns the newest Pending entry of the given kind created
// within the window, or nil when none exists. Failure-recovery paths use it
// to re-find an entry whose id was lost between append and the follow-up
// status update.
func (s *Store) FindStalePending(ctx context.Context, address string, kind Kind, within time.Duration) (*Entry, error) {
	cutoff := time.Now().Add(-within)

	query := badgerhold.Where("Address").Eq(address).Index("Address").
		And("Kind").Eq(kind).
		And("Status").Eq(StatusPending).
		And("CreatedAt").Ge(cutoff).
		SortBy("CreatedAt").Reverse().Limit(1)

	var results []Entry
	if err := s.db.Find(&results, query); err != nil {
		return nil, fmt.Errorf("failed to query pending entries: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

// Stats folds entry amounts by kind for the address. With no statuses given,
// entries of every status are counted, including Failed ones - the historical
// behavior; whether Failed amounts belong in the totals is an open product
// question, so the status filter is an explicit opt-in rather than a default.
func (s *Store) Stats(ctx context.Context, address string, statuses ...Status) (Stats, error) {
	query := badgerhold.Where("Address").Eq(address).Index("Address")

	var stats Stats
	err := s.db.ForEach(query, func(e *Entry) error {
		if len(statuses) > 0 && !containsStatus(statuses, e.Status) {
			return nil
		}
		switch e.Kind {
		case KindDeposit:
			stats.TotalDeposited += e.AmountLamports
		case KindWithdraw:
			stats.TotalWithdrawn += e.AmountLamports
		case KindYieldCredit:
			stats.TotalYieldEarned += e.AmountLamports
		}
		stats.Count++
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("failed to fold ledger stats: %w", err)
	}
	return stats, nil
}

// Entries lists the address's entries newest-first, narrowed by filter.
// A nil filter matches everything.
func (s *Store) Entries(ctx context.Context, address string, filter *Filter) ([]Entry, error) {
	if filter != nil {
		if err := filter.Validate(); err != nil {
			return nil, err
		}
	}

	query := badgerhold.Where("Address").Eq(address).Index("Address").
		SortBy("CreatedAt").Reverse()

	var results []Entry
	if err := s.db.Find(&results, query); err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}

	if filter == nil {
		return results, nil
	}

	filtered := make([]Entry, 0, len(results))
	for _, e := range results {
		if filter.matches(&e) {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

// LastByKind returns the newest entry of the given kind, or nil when the
// address has none.
func (s *Store) LastByKind(ctx context.Context, address string, kind Kind) (*Entry, error) {
	query := badgerhold.Where("Address").Eq(address).Index("Address").
		And("Kind").Eq(kind).
		SortBy("CreatedAt").Reverse().Limit(1)

	var results []Entry
	if err := s.db.Find(&results, query); err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

// Clear deletes every entry for the address. Idempotent.
func (s *Store) Clear(ctx context.Context, address string) error {
	query := badgerhold.Where("Address").Eq(address).Index("Address")
	if err := s.db.DeleteMatching(&Entry{}, query); err != nil {
		return fmt.Errorf("failed to clear ledger: %w", err)
	}
	return nil
}

func containsStatus(statuses []Status, status Status) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
