package cluster

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// NodeStatus is a node's believed liveness state as seen by the local
// member list: UNKNOWN -> LIVE -> SUSPECT -> FAILED.
type NodeStatus int

const (
	StatusUnknown NodeStatus = iota
	StatusLive
	StatusSuspect
	StatusFailed
)

func (s NodeStatus) String() string {
	switch s {
	case StatusLive:
		return "live"
	case StatusSuspect:
		return "suspect"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	// DefaultGossipInterval is how often a node gossips its view to a
	// random fanout of peers.
	DefaultGossipInterval = 300 * time.Millisecond
	// DefaultGossipFanout is the number of random peers contacted per
	// gossip round.
	DefaultGossipFanout = 3
	// DefaultSuspectAfter is how long since a heartbeat last advanced
	// before a node is marked SUSPECT.
	DefaultSuspectAfter = 1 * time.Second
	// DefaultFailAfter is how long since a heartbeat last advanced
	// before a node is marked FAILED and dropped from the ring.
	DefaultFailAfter = 2 * time.Second
)

// memberEntry is the local bookkeeping for one known peer.
type memberEntry struct {
	heartbeat     uint64
	status        NodeStatus
	lastAdvanced  time.Time // wall-clock time the heartbeat was last seen to increase
}

// Transport is the outbound side of gossip: send our view and known-failed
// set to a peer and get back its merged view and known-failed set.
// Implemented over HTTP by package api/client code; kept as an interface
// here so membership has no transport dependency of its own.
type Transport interface {
	Gossip(addr string, view map[string]uint64, knownFailed []string) (map[string]uint64, []string, error)
}

// Membership tracks the believed liveness of every node in the cluster
// via anti-entropy gossip of heartbeat counters, and the address each
// node id resolves to.
type Membership struct {
	mu          sync.RWMutex
	selfID      string
	heartbeat   uint64
	members     map[string]*memberEntry
	addrs       map[string]string
	knownFailed map[string]struct{}
	ring        *Ring
	transport   Transport
	log         *logrus.Entry

	stop chan struct{}
	done chan struct{}
}

// NewMembership creates a Membership for selfID, wired to ring (which is
// kept in sync as nodes join/leave/fail) and transport (outbound gossip
// RPCs).
func NewMembership(selfID, selfAddr string, ring *Ring, transport Transport) *Membership {
	m := &Membership{
		selfID:      selfID,
		members:     make(map[string]*memberEntry),
		addrs:       map[string]string{selfID: selfAddr},
		knownFailed: make(map[string]struct{}),
		ring:        ring,
		transport:   transport,
		log:         logrus.WithField("component", "membership").WithField("node", selfID),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	m.members[selfID] = &memberEntry{heartbeat: 0, status: StatusLive, lastAdvanced: time.Now()}
	ring.Add(selfID)
	return m
}

// Join registers a peer discovered out of band (e.g. returned by a
// coordinator's directory listing) as LIVE with heartbeat zero.
func (m *Membership) Join(nodeID, addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joinLocked(nodeID, addr)
}

func (m *Membership) joinLocked(nodeID, addr string) {
	delete(m.knownFailed, nodeID)
	if _, ok := m.members[nodeID]; !ok {
		m.members[nodeID] = &memberEntry{heartbeat: 0, status: StatusLive, lastAdvanced: time.Now()}
		m.ring.Add(nodeID)
		m.log.WithField("peer", nodeID).Info("node joined")
	}
	m.addrs[nodeID] = addr
}

// Addr returns the address a node id last advertised.
func (m *Membership) Addr(nodeID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.addrs[nodeID]
	return a, ok
}

// Status reports a node's current believed liveness.
func (m *Membership) Status(nodeID string) NodeStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.members[nodeID]
	if !ok {
		return StatusUnknown
	}
	return e.status
}

// LiveNodes returns every node currently believed LIVE or SUSPECT (a
// suspect node is still a valid replication target — it is only
// excluded from the ring once FAILED).
func (m *Membership) LiveNodes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.members))
	for id, e := range m.members {
		if e.status == StatusLive || e.status == StatusSuspect {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// View snapshots the local heartbeat table for gossip exchange.
func (m *Membership) View() map[string]uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v := make(map[string]uint64, len(m.members))
	for id, e := range m.members {
		v[id] = e.heartbeat
	}
	return v
}

// KnownFailed snapshots the local known-failed set for gossip exchange.
func (m *Membership) KnownFailed() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.knownFailed))
	for id := range m.knownFailed {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Merge folds a remote heartbeat view and known-failed set into the
// local table. knownFailed is applied first and gates the view: a node
// either side has already confirmed failed is removed from membership
// and the ring and is never re-learned as LIVE off a stale heartbeat,
// until something (e.g. an explicit Join) clears it.
func (m *Membership) Merge(view map[string]uint64, knownFailed []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()

	for _, id := range knownFailed {
		if id == m.selfID {
			continue
		}
		if _, ok := m.knownFailed[id]; !ok {
			m.log.WithField("peer", id).Warn("learned node is failed via gossip")
		}
		m.knownFailed[id] = struct{}{}
		if _, ok := m.members[id]; ok {
			delete(m.members, id)
			m.ring.Remove(id)
		}
	}

	for id, hb := range view {
		if _, failed := m.knownFailed[id]; failed {
			continue
		}
		e, ok := m.members[id]
		if !ok {
			m.members[id] = &memberEntry{heartbeat: hb, status: StatusLive, lastAdvanced: now}
			m.ring.Add(id)
			m.log.WithField("peer", id).Info("learned of node via gossip")
			continue
		}
		if hb > e.heartbeat {
			e.heartbeat = hb
			e.lastAdvanced = now
			if e.status != StatusLive {
				m.log.WithField("peer", id).WithField("from", e.status).Info("node recovered")
			}
			e.status = StatusLive
		}
	}
}

// beat increments self's own heartbeat, run once per gossip round.
func (m *Membership) beat() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeat++
	e := m.members[m.selfID]
	e.heartbeat = m.heartbeat
	e.lastAdvanced = time.Now()
}

// checkFailures promotes members whose heartbeat has been stale past
// the suspect/fail thresholds. A node that crosses the fail threshold is
// removed from the ring and from membership entirely and recorded in
// knownFailed, so gossip never re-learns it from a peer's stale view.
func (m *Membership) checkFailures(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, e := range m.members {
		if id == m.selfID {
			continue
		}
		age := now.Sub(e.lastAdvanced)
		switch {
		case age >= DefaultFailAfter:
			m.ring.Remove(id)
			delete(m.members, id)
			m.knownFailed[id] = struct{}{}
			m.log.WithField("peer", id).Warn("node marked failed")
		case age >= DefaultSuspectAfter:
			if e.status == StatusLive {
				e.status = StatusSuspect
				m.log.WithField("peer", id).Warn("node marked suspect")
			}
		}
	}
}

// randomPeers picks up to n random peer ids other than self. Failed
// nodes are never candidates since checkFailures/Merge remove them from
// m.members entirely.
func (m *Membership) randomPeers(n int) []string {
	m.mu.RLock()
	candidates := make([]string, 0, len(m.members))
	for id := range m.members {
		if id != m.selfID {
			candidates = append(candidates, id)
		}
	}
	m.mu.RUnlock()

	rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

// Run starts the gossip and failure-detection loops. It blocks until
// Stop is called.
func (m *Membership) Run() {
	defer close(m.done)

	gossipTicker := time.NewTicker(DefaultGossipInterval)
	defer gossipTicker.Stop()
	failTicker := time.NewTicker(DefaultSuspectAfter)
	defer failTicker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-gossipTicker.C:
			m.gossipRound()
		case t := <-failTicker.C:
			m.checkFailures(t)
		}
	}
}

// gossipRound advances self's heartbeat and pushes the local view to a
// random fanout of peers, merging back whatever each peer returns.
func (m *Membership) gossipRound() {
	m.beat()

	for _, peer := range m.randomPeers(DefaultGossipFanout) {
		addr, ok := m.Addr(peer)
		if !ok {
			continue
		}
		remoteView, remoteFailed, err := m.transport.Gossip(addr, m.View(), m.KnownFailed())
		if err != nil {
			m.log.WithError(err).WithField("peer", peer).Debug("gossip round failed")
			continue
		}
		m.Merge(remoteView, remoteFailed)
	}
}

// Stop terminates the background loops and waits for them to exit.
func (m *Membership) Stop() {
	close(m.stop)
	<-m.done
}
