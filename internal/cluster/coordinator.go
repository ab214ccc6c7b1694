package cluster

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"distsys/internal/store"
	"distsys/internal/vclock"

	"github.com/sirupsen/logrus"
)

// ErrNoResponsibleNodes is returned when the ring has no physical nodes
// at all.
var ErrNoResponsibleNodes = errors.New("cluster: no responsible nodes for key")

// ErrQuorumNotReached is returned when fewer than the required number of
// replicas acknowledged an operation before its deadline.
var ErrQuorumNotReached = errors.New("cluster: quorum not reached")

// ReplicaClient is the outbound RPC surface a Coordinator uses to talk
// to a peer node's store. Implemented over HTTP by the api/client
// package; kept as an interface so package cluster has no transport
// dependency of its own.
type ReplicaClient interface {
	ReplicatePut(ctx context.Context, addr, key string, siblings []store.VersionedValue) error
	ReplicateGet(ctx context.Context, addr, key string) ([]store.VersionedValue, error)
	ReplicateDelete(ctx context.Context, addr, key string) error
	// ForwardPut asks a remote node to coordinate the write itself when
	// the caller isn't one of the key's responsible replicas, returning
	// the clock it derived so the caller can replicate the resulting
	// sibling onward.
	ForwardPut(ctx context.Context, addr, key, data string, causalContext vclock.Clock) (vclock.Clock, error)
}

// Quorum is the N/W/R replication policy for one cluster.
type Quorum struct {
	N int // number of replicas a key is stored on
	W int // writes must be acknowledged by this many replicas
	R int // reads must be acknowledged by this many replicas
}

// DefaultQuorum is N=3, W=2, R=2 — a majority write/read quorum that
// tolerates one replica being unavailable.
var DefaultQuorum = Quorum{N: 3, W: 2, R: 2}

const (
	writeDeadline = 2 * time.Second
	readDeadline  = 2 * time.Second
)

// Coordinator serves Put/Get/Delete for keys this node may or may not
// own locally, fanning out to whichever physical nodes the ring says
// are responsible and requiring W (or R) acknowledgements before
// returning.
type Coordinator struct {
	selfID     string
	quorum     Quorum
	ring       *Ring
	membership *Membership
	local      *store.Store
	client     ReplicaClient
	log        *logrus.Entry
}

// NewCoordinator wires a Coordinator for selfID against the given ring,
// membership view, local store and replica RPC client.
func NewCoordinator(selfID string, quorum Quorum, ring *Ring, membership *Membership, local *store.Store, client ReplicaClient) *Coordinator {
	return &Coordinator{
		selfID:     selfID,
		quorum:     quorum,
		ring:       ring,
		membership: membership,
		local:      local,
		client:     client,
		log:        logrus.WithField("component", "coordinator").WithField("node", selfID),
	}
}

type replicaResult struct {
	nodeID   string
	siblings []store.VersionedValue
	err      error
}

// responsibleNodes returns the N nodes the ring assigns to key.
func (c *Coordinator) responsibleNodes(key string) ([]string, error) {
	nodes := c.ring.Locate(key, c.quorum.N)
	if len(nodes) == 0 {
		return nil, ErrNoResponsibleNodes
	}
	return nodes, nil
}

// Put writes data under key, deriving a new clock from causalContext
// (the caller-supplied causal context — nil/empty for a blind write),
// and requires W of the N responsible nodes to acknowledge before the
// deadline elapses. If this node is not among the N responsible for
// key, the write is forwarded to the first responsible node, which
// coordinates it instead.
func (c *Coordinator) Put(key, data string, causalContext vclock.Clock) (vclock.Clock, error) {
	nodes, err := c.responsibleNodes(key)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context0(writeDeadline)
	defer cancel()

	if !contains(nodes, c.selfID) {
		return c.forwardPut(ctx, nodes[0], key, data, causalContext)
	}

	newClock, err := c.local.Put(key, data, causalContext)
	if err != nil {
		return nil, fmt.Errorf("local put: %w", err)
	}
	sib := []store.VersionedValue{{Data: data, Clock: newClock}}

	acked := 1 // self always counts as one acknowledgement

	for _, nodeID := range nodes {
		if nodeID == c.selfID {
			continue
		}
		addr, ok := c.membership.Addr(nodeID)
		if !ok {
			c.log.WithField("peer", nodeID).Warn("replicate put skipped: no known address")
			continue
		}
		if err := c.client.ReplicatePut(ctx, addr, key, sib); err != nil {
			c.log.WithError(err).WithField("peer", nodeID).Warn("replicate put failed")
			continue
		}
		acked++
	}

	if acked < c.quorum.W {
		return newClock, ErrQuorumNotReached
	}
	return newClock, nil
}

// forwardPut asks addr (the first responsible node for key) to
// coordinate the write, since this node isn't one of the N replicas.
func (c *Coordinator) forwardPut(ctx context.Context, nodeID, key, data string, causalContext vclock.Clock) (vclock.Clock, error) {
	addr, ok := c.membership.Addr(nodeID)
	if !ok {
		return nil, fmt.Errorf("no known address for node %s", nodeID)
	}
	return c.client.ForwardPut(ctx, addr, key, data, causalContext)
}

func contains(nodes []string, id string) bool {
	for _, n := range nodes {
		if n == id {
			return true
		}
	}
	return false
}

func context0(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}

// Get reads key from all N responsible nodes, requires at least R of
// them to answer before the deadline, flattens and deduplicates the
// returned sibling sets, and performs read repair by
// pushing the merged result back to any replica that was behind (spec
// §4.5 step 3-5).
func (c *Coordinator) Get(key string) (store.Result, error) {
	nodes, err := c.responsibleNodes(key)
	if err != nil {
		return store.Result{}, err
	}

	ctx, cancel := context0(readDeadline)
	defer cancel()

	results := make(chan replicaResult, len(nodes))
	for _, nodeID := range nodes {
		nodeID := nodeID
		go func() {
			if nodeID == c.selfID {
				sibs, ok := c.local.GetRaw(key)
				if !ok {
					results <- replicaResult{nodeID: nodeID}
					return
				}
				results <- replicaResult{nodeID: nodeID, siblings: sibs}
				return
			}
			addr, ok := c.membership.Addr(nodeID)
			if !ok {
				results <- replicaResult{nodeID: nodeID, err: fmt.Errorf("no address for %s", nodeID)}
				return
			}
			sibs, err := c.client.ReplicateGet(ctx, addr, key)
			results <- replicaResult{nodeID: nodeID, siblings: sibs, err: err}
		}()
	}

	var gathered []replicaResult
	acked := 0
	for i := 0; i < len(nodes); i++ {
		select {
		case r := <-results:
			gathered = append(gathered, r)
			if r.err == nil {
				acked++
			}
		case <-ctx.Done():
			i = len(nodes)
		}
	}

	if acked < c.quorum.R {
		return store.Result{}, ErrQuorumNotReached
	}

	merged := mergeReplicaResults(gathered)

	for _, r := range gathered {
		if r.err != nil {
			continue
		}
		if !sameSiblingSet(r.siblings, merged.Siblings) {
			c.readRepair(ctx, r.nodeID, key, merged.Siblings)
		}
	}

	return merged, nil
}

// readRepair pushes the coordinator's merged view of key back to a
// replica whose copy was stale.
func (c *Coordinator) readRepair(ctx context.Context, nodeID, key string, siblings []store.VersionedValue) {
	if nodeID == c.selfID {
		c.local.ApplyRemote(key, siblings)
		return
	}
	addr, ok := c.membership.Addr(nodeID)
	if !ok {
		return
	}
	if err := c.client.ReplicatePut(ctx, addr, key, siblings); err != nil {
		c.log.WithError(err).WithField("peer", nodeID).Debug("read repair failed")
	}
}

// mergeReplicaResults flattens and deduplicates siblings across every
// responding replica: a sibling dominated by another is dropped; what
// remains is the conflict set (or singleton) with the newest clock by
// wall time.
func mergeReplicaResults(results []replicaResult) store.Result {
	var all []store.VersionedValue
	for _, r := range results {
		if r.err == nil {
			all = append(all, r.siblings...)
		}
	}
	if len(all) == 0 {
		return store.Result{Found: false}
	}

	var merged []store.VersionedValue
	for _, v := range all {
		merged = reconcileInto(merged, v)
	}

	newest := merged[0]
	for _, v := range merged[1:] {
		if v.UpdatedAt.After(newest.UpdatedAt) {
			newest = v
		}
	}

	return store.Result{Found: true, Siblings: merged, Clock: newest.Clock}
}

// reconcileInto folds value into an accumulating sibling set using the
// same dominance rule as the local store's reconcile, duplicated here
// because that helper is unexported. Unlike store's reconcile it also
// drops a value whose data and clock equal an existing sibling's.
func reconcileInto(existing []store.VersionedValue, value store.VersionedValue) []store.VersionedValue {
	survivors := make([]store.VersionedValue, 0, len(existing)+1)
	dominated := false
	dup := false

	for _, sib := range existing {
		if sameValue(sib, value) {
			survivors = append(survivors, sib)
			dup = true
			continue
		}
		switch value.Clock.Compare(sib.Clock) {
		case vclock.After:
		case vclock.Before:
			survivors = append(survivors, sib)
			dominated = true
		default:
			survivors = append(survivors, sib)
		}
	}

	if dup || dominated {
		return survivors
	}
	return append(survivors, value)
}

func sameValue(a, b store.VersionedValue) bool {
	return a.Data == b.Data && a.Clock.Compare(b.Clock) == vclock.Equal
}

func sameSiblingSet(a, b []store.VersionedValue) bool {
	if len(a) != len(b) {
		return false
	}
	ac := append([]store.VersionedValue(nil), a...)
	bc := append([]store.VersionedValue(nil), b...)
	sortVersioned(ac)
	sortVersioned(bc)
	for i := range ac {
		if !sameValue(ac[i], bc[i]) {
			return false
		}
	}
	return true
}

func sortVersioned(vs []store.VersionedValue) {
	sort.Slice(vs, func(i, j int) bool { return vs[i].Data < vs[j].Data })
}

// Delete attempts removal on every responsible node and succeeds as
// soon as at least one replica acknowledges the delete.
func (c *Coordinator) Delete(key string) error {
	nodes, err := c.responsibleNodes(key)
	if err != nil {
		return err
	}

	ctx, cancel := context0(writeDeadline)
	defer cancel()

	acked := 0
	for _, nodeID := range nodes {
		var err error
		if nodeID == c.selfID {
			_, err = c.local.Delete(key)
		} else {
			addr, ok := c.membership.Addr(nodeID)
			if !ok {
				continue
			}
			err = c.client.ReplicateDelete(ctx, addr, key)
		}
		if err != nil {
			c.log.WithError(err).WithField("peer", nodeID).Warn("replicate delete failed")
			continue
		}
		acked++
	}

	if acked < 1 {
		return ErrQuorumNotReached
	}
	return nil
}
