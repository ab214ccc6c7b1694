package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultCelebrityThreshold is the follower count above which an author
// switches from push to pull fanout.
const DefaultCelebrityThreshold = 5000

// DefaultFanoutBatchSize is how many followers are processed per batch.
const DefaultFanoutBatchSize = 100

// DefaultFanoutWorkers is the worker pool size.
const DefaultFanoutWorkers = 10

// DefaultQueueDepth bounds the fanout task queue so a burst of
// publishes applies backpressure rather than growing unbounded.
const DefaultQueueDepth = 1024

// ErrDispatcherClosed is returned by Enqueue once Close has been called.
var ErrDispatcherClosed = errors.New("feed: fanout dispatcher is shutting down")

type fanoutTask struct {
	authorID  string
	postID    uint64
	createdAt time.Time
}

// FanoutDispatcher distributes a freshly published post into its
// author's followers' feeds: push (eager) for regular authors, pull
// (lazy, via a celebrity flag read at feed time) for authors whose
// follower count exceeds celebrityThreshold.
//
// Ordering is preserved per author not by FIFO worker scheduling but
// because FeedIndex orders entries by the post's own creation score:
// workers may run concurrently and interleave, but every recipient's
// feed sorts by score regardless of append order.
type FanoutDispatcher struct {
	graph     *SocialGraph
	index     *FeedIndex
	threshold int
	batchSize int

	tasks chan fanoutTask
	wg    sync.WaitGroup

	closeOnce sync.Once
	closed    chan struct{}

	log *logrus.Entry
}

// NewFanoutDispatcher wires a dispatcher against graph and index with
// workers background goroutines pulling from a bounded queue.
// celebrityThreshold, batchSize, workers <= 0 fall back to package
// defaults.
func NewFanoutDispatcher(graph *SocialGraph, index *FeedIndex, celebrityThreshold, batchSize, workers int) *FanoutDispatcher {
	if celebrityThreshold <= 0 {
		celebrityThreshold = DefaultCelebrityThreshold
	}
	if batchSize <= 0 {
		batchSize = DefaultFanoutBatchSize
	}
	if workers <= 0 {
		workers = DefaultFanoutWorkers
	}

	d := &FanoutDispatcher{
		graph:     graph,
		index:     index,
		threshold: celebrityThreshold,
		batchSize: batchSize,
		tasks:     make(chan fanoutTask, DefaultQueueDepth),
		closed:    make(chan struct{}),
		log:       logrus.WithField("component", "fanout"),
	}

	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	return d
}

// Enqueue appends the post to the author's own feed synchronously
// (§4.9: "the service MUST NOT block the publisher on follower
// traversal"), then hands the fanout work to the worker pool and
// returns without waiting for follower traversal to complete.
func (d *FanoutDispatcher) Enqueue(ctx context.Context, authorID string, postID uint64, createdAt time.Time) error {
	if err := d.index.Append(ctx, authorID, postID, createdAt.UnixMilli()); err != nil {
		return err
	}

	select {
	case <-d.closed:
		return ErrDispatcherClosed
	default:
	}

	select {
	case d.tasks <- fanoutTask{authorID: authorID, postID: postID, createdAt: createdAt}:
		return nil
	case <-d.closed:
		return ErrDispatcherClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *FanoutDispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case task := <-d.tasks:
			d.execute(task)
		case <-d.closed:
			d.drain()
			return
		}
	}
}

// drain runs every task already sitting in the queue before a worker
// exits, without blocking on new sends (the channel is never closed, so
// a plain range would hang forever).
func (d *FanoutDispatcher) drain() {
	for {
		select {
		case task := <-d.tasks:
			d.execute(task)
		default:
			return
		}
	}
}

// execute runs one fanout task: celebrity authors are flagged and left
// for read-time merge; regular authors are pushed to followers in
// batches, skipping any follower who has blocked the author. Individual
// follower failures do not abort the batch.
func (d *FanoutDispatcher) execute(task fanoutTask) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	count := d.graph.FollowerCount(task.authorID)
	if count > d.threshold {
		if err := d.index.MarkCelebrity(ctx, task.authorID); err != nil {
			d.log.WithError(err).WithField("author", task.authorID).Warn("failed to mark celebrity")
		}
		return
	}

	followers := d.graph.Followers(task.authorID)
	score := task.createdAt.UnixMilli()

	var wg sync.WaitGroup
	for start := 0; start < len(followers); start += d.batchSize {
		end := start + d.batchSize
		if end > len(followers) {
			end = len(followers)
		}
		batch := followers[start:end]

		wg.Add(1)
		go func(batch []string) {
			defer wg.Done()
			d.fanoutBatch(ctx, task.authorID, task.postID, score, batch)
		}(batch)
	}
	wg.Wait()
}

func (d *FanoutDispatcher) fanoutBatch(ctx context.Context, authorID string, postID uint64, score int64, followers []string) {
	for _, follower := range followers {
		if kind, ok := d.graph.RelationshipType(follower, authorID); ok && kind == RelationBlock {
			continue
		}
		if err := d.index.Append(ctx, follower, postID, score); err != nil {
			d.log.WithError(err).WithField("follower", follower).WithField("post", postID).Warn("fanout append failed")
		}
	}
}

// Close refuses new Enqueue calls, lets the workers run every task
// still in the queue, and waits for every worker to exit; in-flight
// batches run to completion.
func (d *FanoutDispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.closed)
	})
	d.wg.Wait()
}
