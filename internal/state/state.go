/*
Copyright (c) 2025 Diagrid Inc.
Licensed under the MIT License.
*/

package state

import (
	"context"
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/diagridio/go-async-scheduler/api/errors"
)

// Operation is the body of an execution unit. unit is the number of the unit
// running it, used to check back in with the Store.
type Operation func(ctx context.Context, unit uint64)

// Subscription is an external subscription owned by a run, released when the
// run is superseded or cancelled.
type Subscription interface {
	Close()
}

type Options struct {
	Log logr.Logger
}

// record is the run of a single schedule identity.
type record struct {
	// lease is assigned on Install and kept across Restart.
	lease uint64
	// unit is the number of the current execution unit.
	unit       uint64
	cancel     context.CancelFunc
	subs       []Subscription
	iterations uint64
}

// Store is the mapping of schedule identity to its current run. There is at
// most one run per identity. All operations are serialized.
// Every execution unit waits for the previously started unit of the same
// identity to return before running its operation, so operations of one
// identity never overlap even while a superseded unit is still unwinding.
type Store struct {
	log logr.Logger

	lock    sync.Mutex
	records map[uuid.UUID]*record
	// tails holds the done channel of the most recently started unit of each
	// identity, until that unit returns.
	tails  map[uuid.UUID]chan struct{}
	idx    uint64
	closed bool

	wg sync.WaitGroup
}

func New(opts Options) *Store {
	return &Store{
		log:     opts.Log.WithName("state"),
		records: make(map[uuid.UUID]*record),
		tails:   make(map[uuid.UUID]chan struct{}),
	}
}

// Install cancels any existing run of id, releasing its subscriptions, and
// installs a new run executing op. The new run owns subs. Returns the lease of
// the new run. Does not wait for op.
func (s *Store) Install(id uuid.UUID, subs []Subscription, op Operation) (uint64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return 0, errors.ErrClosed
	}

	if rec, ok := s.records[id]; ok {
		s.log.V(3).Info("Superseding run", "id", id, "lease", rec.lease)
		s.teardown(rec)
	}

	s.idx++
	rec := &record{
		lease: s.idx,
		subs:  subs,
	}
	s.records[id] = rec
	s.start(id, rec, op)

	return rec.lease, nil
}

// Restart replaces the execution unit of the run holding lease with a new
// unit executing op. Subscriptions of the run are kept. Returns false if the
// lease is no longer current, in which case nothing is changed.
func (s *Store) Restart(id uuid.UUID, lease uint64, op Operation) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.lease != lease {
		return false
	}

	rec.cancel()
	rec.iterations = 0
	s.start(id, rec, op)

	return true
}

// Reenter is called by an execution unit before starting its next
// iteration. Returns true if the unit is still the current unit of id.
func (s *Store) Reenter(id uuid.UUID, unit uint64) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.unit != unit {
		return false
	}

	rec.iterations++
	return true
}

// Fault removes the run of id if unit is still its current execution unit.
// Returns true if the run was removed.
func (s *Store) Fault(id uuid.UUID, unit uint64) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.unit != unit {
		return false
	}

	s.teardown(rec)
	delete(s.records, id)

	return true
}

// Cancel cancels and removes the run of id. No-op if absent. The execution
// unit may still be unwinding when Cancel returns.
func (s *Store) Cancel(id uuid.UUID) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if rec, ok := s.records[id]; ok {
		s.teardown(rec)
		delete(s.records, id)
	}
}

// CancelAll cancels and removes every run.
func (s *Store) CancelAll() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.cancelAll()
}

// Close cancels every run and refuses any further Install.
func (s *Store) Close() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.closed = true
	s.cancelAll()
}

// Wait blocks until every execution unit has returned, or the context is
// done.
func (s *Store) Wait(ctx context.Context) error {
	doneCh := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) Has(id uuid.UUID) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	_, ok := s.records[id]
	return ok
}

func (s *Store) Len() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.records)
}

// IDs returns a snapshot of the identities which currently have a run.
func (s *Store) IDs() sets.Set[uuid.UUID] {
	s.lock.Lock()
	defer s.lock.Unlock()
	return sets.KeySet(s.records)
}

// Iterations returns the number of iterations the current execution unit of
// id has re-entered.
func (s *Store) Iterations(id uuid.UUID) (uint64, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return 0, false
	}
	return rec.iterations, true
}

func (s *Store) cancelAll() {
	if len(s.records) > 0 {
		s.log.Info("Cancelling all runs", "count", len(s.records))
	}
	for _, rec := range s.records {
		s.teardown(rec)
	}
	clear(s.records)
}

// teardown cancels the unit of the run and releases its subscriptions.
func (s *Store) teardown(rec *record) {
	rec.cancel()
	for _, sub := range rec.subs {
		sub.Close()
	}
	rec.subs = nil
}

// start starts a new execution unit for rec. Must be called with the lock
// held.
func (s *Store) start(id uuid.UUID, rec *record, op Operation) {
	s.idx++
	unit := s.idx

	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan struct{})
	prevCh := s.tails[id]
	s.tails[id] = doneCh

	rec.unit = unit
	rec.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer func() {
			cancel()
			s.lock.Lock()
			if s.tails[id] == doneCh {
				delete(s.tails, id)
			}
			s.lock.Unlock()
			close(doneCh)
			s.wg.Done()
		}()

		// The previous unit has always been cancelled by now. Waiting for it
		// even when cancelled keeps the chain of units ordered.
		if prevCh != nil {
			<-prevCh
		}

		if ctx.Err() != nil {
			return
		}

		op(ctx, unit)
	}()
}
