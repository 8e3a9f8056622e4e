package persist

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

const (
	keyCorrectionHistory = "correction_history"
	keyEngineOptions     = "engine_options"
)

// EngineOptions is the subset of USI options worth remembering across
// runs, so a fresh `isready` can report the same tuning a previous
// session left behind instead of resetting to the compiled-in defaults.
type EngineOptions struct {
	HashMB   int    `json:"hash_mb"`
	Threads  int    `json:"threads"`
	MultiPV  int    `json:"multi_pv"`
	EvalFile string `json:"eval_file"`
}

// DefaultEngineOptions returns the options an engine starts with before
// any setoption or persisted state is applied.
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{HashMB: 16, Threads: 1, MultiPV: 1}
}

// Store wraps an embedded BadgerDB instance holding the engine's
// persisted correction-history table and last-used options.
type Store struct {
	db *badger.DB
}

// Open opens (creating if necessary) the badger store at the platform
// data directory.
func Open() (*Store, error) {
	dir, err := GetDatabaseDir()
	if err != nil {
		return nil, fmt.Errorf("persist: resolve database dir: %w", err)
	}
	return OpenAt(dir)
}

// OpenAt opens the store at an explicit directory, used by tests and by
// callers that want to keep persisted state outside the default
// platform location; no USI option selects the directory.
func OpenAt(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("persist: open badger store at %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveCorrectionHistory persists table, the correction-history array a
// search.CorrectionHistory exposes via its Snapshot method, as one
// little-endian int16 array under a single key. The stored layout is the
// table's own; a table saved at a different size is later ignored by
// CorrectionHistory.Restore.
func (s *Store) SaveCorrectionHistory(table []int16) error {
	buf := make([]byte, len(table)*2)
	for i, v := range table {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyCorrectionHistory), buf)
	})
}

// LoadCorrectionHistory returns the previously persisted correction
// table, or (nil, nil) if none was ever saved.
func (s *Store) LoadCorrectionHistory() ([]int16, error) {
	var table []int16
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyCorrectionHistory))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			table = make([]int16, len(val)/2)
			for i := range table {
				table[i] = int16(binary.LittleEndian.Uint16(val[i*2:]))
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("persist: load correction history: %w", err)
	}
	return table, nil
}

// SaveOptions persists the engine's last-applied USI options.
func (s *Store) SaveOptions(opts EngineOptions) error {
	data, err := json.Marshal(opts)
	if err != nil {
		return fmt.Errorf("persist: marshal options: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyEngineOptions), data)
	})
}

// LoadOptions returns the last-persisted engine options, or the compiled
// defaults if none were ever saved.
func (s *Store) LoadOptions() (EngineOptions, error) {
	opts := DefaultEngineOptions()
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyEngineOptions))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &opts)
		})
	})
	if err != nil {
		return EngineOptions{}, fmt.Errorf("persist: load options: %w", err)
	}
	return opts, nil
}
