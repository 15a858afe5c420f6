// NodeSaver drains dirty nodes and persists their unsaved state in the
// background: config first, then changed affiliations, then changed or
// removed subscriptions. Requests which dirtied the node never wait for the
// database write.

package main

import (
	"time"

	"github.com/xmpub/pubsub/server/concurrency"
	"github.com/xmpub/pubsub/server/logs"
	"github.com/xmpub/pubsub/server/store"
)

const saverQueueDepth = 4096

type nodeSaver struct {
	queue chan *Node
	pool  *concurrency.GoRoutinePool
	// Write attempts per category within one flush cycle.
	retries int
	done    chan struct{}
}

func newNodeSaver(workers, retries int) *nodeSaver {
	if workers < 1 {
		workers = 1
	}
	if retries < 1 {
		retries = 1
	}
	s := &nodeSaver{
		queue:   make(chan *Node, saverQueueDepth),
		pool:    concurrency.NewGoRoutinePool(workers),
		retries: retries,
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *nodeSaver) run() {
	for {
		select {
		case node := <-s.queue:
			s.pool.Schedule(func() {
				if err := s.flush(node); err != nil {
					logs.Err.Printf("saver: flush of %s/%s failed: %v",
						node.service, node.name, err)
					statsInc("FailedSaves", 1)
				} else {
					statsInc("SavedNodes", 1)
				}
			})
		case <-s.done:
			return
		}
	}
}

// schedule enqueues the node for flushing. A node already in the queue is
// not enqueued again. When the queue is full the flush degrades to its own
// goroutine rather than blocking the request path.
func (s *nodeSaver) schedule(node *Node) {
	if !node.markQueued() {
		return
	}
	select {
	case s.queue <- node:
	default:
		go func() {
			if err := s.flush(node); err != nil {
				logs.Err.Printf("saver: flush of %s/%s failed: %v",
					node.service, node.name, err)
				statsInc("FailedSaves", 1)
			}
		}()
	}
}

func (s *nodeSaver) stop() {
	close(s.done)
	s.pool.Stop()
}

// flush writes the node's unsaved state category by category. A failing
// category is retried up to the configured number of attempts; categories
// already written are not repeated. On exhaustion the config-dirty flag is
// retained for the next cycle while the failed affiliation/subscription
// snapshot is rolled back, so a structurally bad write is not re-attempted
// forever. Merge and rollback are scoped to the snapshot that was written:
// changes landing while the write is in flight stay pending.
func (s *nodeSaver) flush(node *Node) error {
	// Clear the queued flag first: a mutation racing with this flush
	// reschedules the node instead of being lost.
	node.clearQueued()

	if node.isDeleted() {
		return nil
	}

	if config, dirty := node.takeCfgDirty(); dirty {
		if err := s.withRetry(func() error {
			return store.Nodes.UpdateConfig(node.key, config)
		}); err != nil {
			node.restoreCfgDirty()
			return err
		}
	}

	if node.affs.IsChanged() {
		changes := node.affs.Changed()
		if err := s.withRetry(func() error {
			return store.Nodes.SaveAffiliations(node.key, changes)
		}); err != nil {
			node.affs.ResetPending(changes)
			return err
		}
		node.affs.Merge(changes)
	}

	if node.subs.IsChanged() {
		changes := node.subs.Changed()
		if err := s.withRetry(func() error {
			return store.Nodes.SaveSubscriptions(node.key, changes)
		}); err != nil {
			node.subs.ResetPending(changes)
			return err
		}
		node.subs.Merge(changes)
	}

	return nil
}

func (s *nodeSaver) withRetry(write func() error) error {
	var err error
	for attempt := 0; attempt < s.retries; attempt++ {
		if err = write(); err == nil {
			return nil
		}
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}
	return err
}
