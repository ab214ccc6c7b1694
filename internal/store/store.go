// Package store is the per-node local store beneath a replicated KV
// node: a vector-clock versioned map with explicit sibling/conflict
// surfacing, a write-ahead log, and point-in-time snapshots for crash
// recovery. It is exclusively owned by one Node; Ring and Membership
// state live alongside it in package cluster.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"distsys/internal/vclock"

	"github.com/sirupsen/logrus"
)

// Store holds the sibling sets for every key local to one node.
//
// All mutation happens under mu: reads and writes are serialized per
// node. WAL and snapshot give crash recovery, generalized here to a
// sibling-set value model.
type Store struct {
	mu       sync.RWMutex
	siblings map[string][]VersionedValue

	wal     *WAL
	dataDir string
	nodeID  string
	log     *logrus.Entry
}

// New opens (or creates) a Store rooted at dataDir, replaying its
// snapshot and WAL to rebuild in-memory state.
func New(dataDir, nodeID string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	s := &Store{
		siblings: make(map[string][]VersionedValue),
		dataDir:  dataDir,
		nodeID:   nodeID,
		log:      logrus.WithField("component", "store").WithField("node", nodeID),
	}

	if err := s.loadSnapshot(); err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	wal, err := newWAL(filepath.Join(dataDir, "wal.log"))
	if err != nil {
		return nil, fmt.Errorf("open wal: %w", err)
	}
	s.wal = wal

	if err := s.replayWAL(); err != nil {
		return nil, fmt.Errorf("replay wal: %w", err)
	}

	return s, nil
}

// Put derives a new clock from context (copy, then increment selfNodeID)
// and reconciles it against any existing siblings.
func (s *Store) Put(key, data string, context vclock.Clock) (vclock.Clock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	newClock := context.Copy()
	if newClock == nil {
		newClock = vclock.New()
	}
	newClock.Increment(s.nodeID)

	newValue := VersionedValue{Data: data, Clock: newClock, UpdatedAt: time.Now().UTC()}

	survivors := reconcile(s.siblings[key], newValue)

	if err := s.wal.append(walEntry{Op: opPut, Key: key, Siblings: survivors}); err != nil {
		return nil, fmt.Errorf("wal append: %w", err)
	}
	s.siblings[key] = survivors

	return newClock, nil
}

// reconcile drops siblings the new write dominates, discards the write
// itself if a sibling dominates it, and keeps anything concurrent or
// equal alongside the new value.
func reconcile(existing []VersionedValue, newValue VersionedValue) []VersionedValue {
	if len(existing) == 0 {
		return []VersionedValue{newValue}
	}

	survivors := make([]VersionedValue, 0, len(existing)+1)
	dominated := false

	for _, sib := range existing {
		switch newValue.Clock.Compare(sib.Clock) {
		case vclock.After:
			// new value supersedes this sibling — drop it
		case vclock.Before:
			// an existing sibling supersedes the write — keep it, discard
			// the write (other siblings are still independently evaluated)
			survivors = append(survivors, sib)
			dominated = true
		default: // Concurrent or Equal
			survivors = append(survivors, sib)
		}
	}

	if dominated {
		return survivors
	}
	return append(survivors, newValue)
}

// Get returns a copy of the current sibling set for key. A single sibling is
// returned as-is; multiple siblings are a conflict surface the caller
// must resolve. The returned clock is the newest sibling's by
// wall-clock tiebreak.
func (s *Store) Get(key string) Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sibs := s.siblings[key]
	if len(sibs) == 0 {
		return Result{Found: false}
	}

	out := make([]VersionedValue, len(sibs))
	copy(out, sibs)

	newest := out[0]
	for _, v := range out[1:] {
		if v.UpdatedAt.After(newest.UpdatedAt) {
			newest = v
		}
	}

	return Result{Found: true, Siblings: out, Clock: newest.Clock}
}

// GetRaw returns the unreconciled sibling slice, used for peer-to-peer
// fetch/replication.
func (s *Store) GetRaw(key string) ([]VersionedValue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sibs, ok := s.siblings[key]
	if !ok {
		return nil, false
	}
	out := make([]VersionedValue, len(sibs))
	copy(out, sibs)
	return out, true
}

// Delete removes a key outright; there is no tombstone. It reports
// whether the key existed.
func (s *Store) Delete(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.siblings[key]
	if !existed {
		return false, nil
	}

	if err := s.wal.append(walEntry{Op: opDelete, Key: key}); err != nil {
		return false, fmt.Errorf("wal append: %w", err)
	}
	delete(s.siblings, key)
	return true, nil
}

// Resolve merges every sibling's clock, increments self, and collapses
// the key to a single sibling carrying the supplied value.
func (s *Store) Resolve(key, data string) (vclock.Clock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := vclock.New()
	for _, sib := range s.siblings[key] {
		merged = merged.Merge(sib.Clock)
	}
	merged.Increment(s.nodeID)

	resolved := VersionedValue{Data: data, Clock: merged, UpdatedAt: time.Now().UTC()}
	survivors := []VersionedValue{resolved}

	if err := s.wal.append(walEntry{Op: opPut, Key: key, Siblings: survivors}); err != nil {
		return nil, fmt.Errorf("wal append: %w", err)
	}
	s.siblings[key] = survivors

	return merged, nil
}

// ApplyRemote incorporates a sibling set received from a peer (gossip
// replication or a replicate RPC) using the same reconciliation rule as
// a local Put, without incrementing any clock — the clock is already
// final when it crosses the wire.
func (s *Store) ApplyRemote(key string, incoming []VersionedValue) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.siblings[key]
	for _, v := range incoming {
		current = reconcile(current, v)
	}

	if err := s.wal.append(walEntry{Op: opPut, Key: key, Siblings: current}); err != nil {
		s.log.WithError(err).Warn("apply remote: wal append failed")
		return false
	}
	s.siblings[key] = current
	return true
}

// Keys returns every key currently present.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.siblings))
	for k := range s.siblings {
		keys = append(keys, k)
	}
	return keys
}

// Close releases the underlying WAL file handle.
func (s *Store) Close() error {
	return s.wal.close()
}
