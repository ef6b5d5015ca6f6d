// Package store persists the paper trading ledger as a single JSON document
// and serialises every mutation of it behind one lock.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/seenimoa/papertrade/pkg/models"
)

// errNoop aborts an Update without persisting; the state is left as it was.
var errNoop = errors.New("no change")

// Store owns the in-memory State and its on-disk copy.
type Store struct {
	mu             sync.RWMutex
	path           string
	initialBalance float64
	now            func() time.Time
	log            *slog.Logger

	loaded bool
	state  *models.State
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for IDs and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New creates a Store backed by path. Nothing is read until Load.
func New(path string, initialBalance float64, opts ...Option) *Store {
	s := &Store{
		path:           path,
		initialBalance: initialBalance,
		now:            time.Now,
		log:            slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "store")
	return s
}

// Path returns the state file location.
func (s *Store) Path() string { return s.path }

// Load reads the state file, creating a fresh ledger if it is missing or
// cannot be decoded. Subsequent calls are no-ops.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() error {
	if s.loaded {
		return nil
	}

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.log.Info("no state file, starting fresh", "path", s.path, "initial_balance", s.initialBalance)
		s.state = models.NewState(s.initialBalance, s.now())
	case err != nil:
		return fmt.Errorf("read state %s: %w", s.path, err)
	default:
		var st models.State
		if err := json.Unmarshal(data, &st); err != nil {
			s.log.Warn("state file unreadable, starting fresh", "path", s.path, "error", err)
			s.quarantine()
			s.state = models.NewState(s.initialBalance, s.now())
		} else {
			st.Normalize()
			s.state = &st
		}
	}

	s.loaded = true
	return nil
}

// quarantine moves an undecodable state file aside so the next save does not
// destroy it.
func (s *Store) quarantine() {
	dst := fmt.Sprintf("%s.corrupt-%s", s.path, s.now().Format("20060102150405"))
	if err := os.Rename(s.path, dst); err != nil {
		s.log.Warn("could not move corrupt state aside", "path", s.path, "error", err)
		return
	}
	s.log.Warn("corrupt state moved aside", "path", dst)
}

// Save writes the current state to disk.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return err
	}
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	s.state.UpdatedAt = s.now()

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("write state %s: %w", s.path, err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file next to path, syncs it and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Update runs fn with exclusive access to the state and persists the result.
// If fn or the save fails, the in-memory state is restored to what it was
// before the call.
func (s *Store) Update(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return err
	}

	snapshot := s.state.Clone()
	tx := &Tx{State: s.state, now: s.now()}
	if err := fn(tx); err != nil {
		s.state = snapshot
		return err
	}
	if err := s.saveLocked(); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

// View runs fn with shared read access. fn must not retain or mutate the
// state.
func (s *Store) View(fn func(st *models.State) error) error {
	s.mu.RLock()
	if s.loaded {
		defer s.mu.RUnlock()
		return fn(s.state)
	}
	s.mu.RUnlock()

	if err := s.Load(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}

// Snapshot returns a deep copy of the state.
func (s *Store) Snapshot() (*models.State, error) {
	var out *models.State
	err := s.View(func(st *models.State) error {
		out = st.Clone()
		return nil
	})
	return out, err
}

// NextOrderID issues and persists the next order id.
func (s *Store) NextOrderID() (string, error) {
	var id string
	err := s.Update(func(tx *Tx) error {
		id = tx.NextOrderID()
		return nil
	})
	return id, err
}

// NextTradeID issues and persists the next trade id.
func (s *Store) NextTradeID() (string, error) {
	var id string
	err := s.Update(func(tx *Tx) error {
		id = tx.NextTradeID()
		return nil
	})
	return id, err
}

// NextHoldingID issues and persists the next holding id.
func (s *Store) NextHoldingID() (int, error) {
	var id int
	err := s.Update(func(tx *Tx) error {
		id = tx.NextHoldingID()
		return nil
	})
	return id, err
}

// ResetState replaces the ledger with a fresh one and persists it.
func (s *Store) ResetState() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, wasLoaded := s.state, s.loaded
	s.state = models.NewState(s.initialBalance, s.now())
	s.loaded = true
	if err := s.saveLocked(); err != nil {
		s.state, s.loaded = prev, wasLoaded
		return err
	}
	s.log.Info("state reset", "initial_balance", s.initialBalance)
	return nil
}

// Tx is the handle passed to Update callbacks.
type Tx struct {
	State *models.State
	now   time.Time
}

// Now is the wall clock captured when the transaction began.
func (tx *Tx) Now() time.Time { return tx.now }

// NextOrderID returns PT-YYYYMMDDHHMMSS-NNNNNN.
func (tx *Tx) NextOrderID() string {
	tx.State.OrderCounter++
	return fmt.Sprintf("PT-%s-%06d", tx.now.Format("20060102150405"), tx.State.OrderCounter)
}

// NextTradeID returns PTT-YYYYMMDDHHMMSS-NNNNNN.
func (tx *Tx) NextTradeID() string {
	tx.State.TradeCounter++
	return fmt.Sprintf("PTT-%s-%06d", tx.now.Format("20060102150405"), tx.State.TradeCounter)
}

// NextHoldingID returns the next holding id.
func (tx *Tx) NextHoldingID() int {
	tx.State.HoldingCounter++
	return tx.State.HoldingCounter
}
