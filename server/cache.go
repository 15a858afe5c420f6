// NodeCache owns all in-memory Node objects: load-on-miss from storage,
// bounded-size LRU eviction which never drops unsaved state, and the handoff
// of dirty nodes to the saver.

package main

import (
	"container/list"
	"sync"

	"github.com/xmpub/pubsub/server/logs"
	"github.com/xmpub/pubsub/server/store"
	t "github.com/xmpub/pubsub/server/store/types"
)

type nodeRef struct {
	service t.JID
	name    string
}

// NodeCache is a bounded map of loaded nodes keyed by (service, name).
type NodeCache struct {
	mu    sync.Mutex
	limit int
	// ref -> *list.Element whose Value is *Node; front is most recent.
	entries map[nodeRef]*list.Element
	lru     *list.List
	// In-flight loads; concurrent getters of the same node wait here.
	loading map[nodeRef]chan struct{}

	saver *nodeSaver
}

func newNodeCache(limit int, saver *nodeSaver) *NodeCache {
	if limit < 1 {
		limit = 1
	}
	return &NodeCache{
		limit:   limit,
		entries: make(map[nodeRef]*list.Element),
		lru:     list.New(),
		loading: make(map[nodeRef]chan struct{}),
		saver:   saver,
	}
}

// Get returns the cached node, loading it from storage on a miss. A storage
// failure is reported as ErrNotFound: the engine fails safe and treats the
// node as absent.
func (c *NodeCache) Get(service t.JID, name string) (*Node, error) {
	ref := nodeRef{service, name}

	for {
		c.mu.Lock()
		if elem, ok := c.entries[ref]; ok {
			c.lru.MoveToFront(elem)
			node := elem.Value.(*lruEntry).node
			c.mu.Unlock()
			return node, nil
		}
		wait, inFlight := c.loading[ref]
		if !inFlight {
			wait = make(chan struct{})
			c.loading[ref] = wait
			c.mu.Unlock()
			break
		}
		c.mu.Unlock()
		<-wait
	}

	node, err := c.load(service, name)

	c.mu.Lock()
	close(c.loading[ref])
	delete(c.loading, ref)
	if node != nil {
		node = c.insertLocked(ref, node)
	}
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return node, nil
}

// load performs the one logical fetch: metadata+config, affiliations and
// subscriptions.
func (c *NodeCache) load(service t.JID, name string) (*Node, error) {
	rec, err := store.Nodes.Get(service, name)
	if err != nil {
		logs.Err.Printf("cache: failed to load node %s/%s: %v", service, name, err)
		statsInc("FailedNodeLoads", 1)
		return nil, t.ErrNotFound
	}
	if rec == nil {
		return nil, t.ErrNotFound
	}

	affs, err := store.Nodes.GetAffiliations(rec.Uid())
	if err != nil {
		logs.Err.Printf("cache: failed to load affiliations %s/%s: %v", service, name, err)
		statsInc("FailedNodeLoads", 1)
		return nil, t.ErrNotFound
	}
	subs, err := store.Nodes.GetSubscriptions(rec.Uid())
	if err != nil {
		logs.Err.Printf("cache: failed to load subscriptions %s/%s: %v", service, name, err)
		statsInc("FailedNodeLoads", 1)
		return nil, t.ErrNotFound
	}

	statsInc("TotalNodeLoads", 1)
	return nodeFromRecord(rec, affs, subs), nil
}

// Add inserts a freshly created node. The caller has already persisted it;
// a concurrent create for the same key has failed at the storage layer with
// a conflict.
func (c *NodeCache) Add(node *Node) {
	c.mu.Lock()
	c.insertLocked(nodeRef{node.service, node.name}, node)
	c.mu.Unlock()
}

// Remove drops the node from the cache, dirty or not. Used on delete.
func (c *NodeCache) Remove(service t.JID, name string) {
	c.mu.Lock()
	ref := nodeRef{service, name}
	if elem, ok := c.entries[ref]; ok {
		c.lru.Remove(elem)
		delete(c.entries, ref)
	}
	c.mu.Unlock()
}

// RemoveService drops all cached nodes of the service.
func (c *NodeCache) RemoveService(service t.JID) {
	c.mu.Lock()
	for ref, elem := range c.entries {
		if ref.service == service {
			c.lru.Remove(elem)
			delete(c.entries, ref)
		}
	}
	c.mu.Unlock()
}

// MarkDirty schedules the node for asynchronous persistence. Never blocks on
// I/O.
func (c *NodeCache) MarkDirty(node *Node) {
	c.saver.schedule(node)
}

// Len returns the number of cached nodes.
func (c *NodeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

type lruEntry struct {
	ref  nodeRef
	node *Node
}

func (c *NodeCache) insertLocked(ref nodeRef, node *Node) *Node {
	if elem, ok := c.entries[ref]; ok {
		// Lost a load race; keep the existing object so there is a single
		// owner per node.
		c.lru.MoveToFront(elem)
		return elem.Value.(*lruEntry).node
	}
	c.entries[ref] = c.lru.PushFront(&lruEntry{ref, node})
	statsSet("LiveNodes", int64(len(c.entries)))
	if len(c.entries) > c.limit {
		c.evictLocked()
	}
	return node
}

// evictLocked removes the least-recently-used entries with no unsaved state.
// A dirty node is skipped and left for the next eviction pass.
func (c *NodeCache) evictLocked() {
	for elem := c.lru.Back(); elem != nil && len(c.entries) > c.limit; {
		prev := elem.Prev()
		ent := elem.Value.(*lruEntry)
		if ent.node.needsSaving() {
			statsInc("DirtyEvictionSkips", 1)
		} else {
			c.lru.Remove(elem)
			delete(c.entries, ent.ref)
			statsInc("CacheEvictions", 1)
		}
		elem = prev
	}
	statsSet("LiveNodes", int64(len(c.entries)))
}
