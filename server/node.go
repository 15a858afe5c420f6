// In-memory representation of a single pubsub node. The cache is the sole
// owner of Node objects; everything else refers to nodes by (service, name)
// and parent collections are resolved by name through the cache, never held
// as pointers.

package main

import (
	"sync"
	"time"

	t "github.com/xmpub/pubsub/server/store/types"
)

// Node is a cached pubsub node: storage metadata plus the mutable
// configuration, affiliation and subscription state.
type Node struct {
	// Immutable once loaded.
	key       t.Uid
	service   t.JID
	name      string
	creator   t.JID
	createdAt time.Time

	// Guards config, children and the dirty flags below.
	mu     sync.Mutex
	config t.NodeConfig
	// Cached names of child nodes; nil until first loaded. Collections only.
	children []string

	affs *t.AffiliationSet
	subs *t.SubscriptionSet

	// Configuration changed since the last successful flush.
	cfgDirty bool
	// Node is scheduled in the saver queue.
	queued bool
	// Node was deleted; stale references must not write through it.
	deleted bool
}

func nodeFromRecord(rec *t.Node, affs map[t.JID]t.Affiliation, subs map[t.JID]t.SubState) *Node {
	return &Node{
		key:       rec.Uid(),
		service:   rec.Service,
		name:      rec.Name,
		creator:   rec.Creator,
		createdAt: rec.CreatedAt,
		config:    rec.Config,
		affs:      t.NewAffiliationSet(affs),
		subs:      t.NewSubscriptionSet(subs),
	}
}

// Key returns the storage key of the node.
func (n *Node) Key() t.Uid {
	return n.key
}

// Service returns the owning service address.
func (n *Node) Service() t.JID {
	return n.service
}

// Name returns the node name, unique within the service.
func (n *Node) Name() string {
	return n.name
}

// Config returns a copy of the current configuration.
func (n *Node) Config() t.NodeConfig {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.config
}

// IsCollection checks the node type.
func (n *Node) IsCollection() bool {
	return n.Config().NodeType == t.NodeTypeCollection
}

// setConfig replaces the configuration and marks it for persistence.
func (n *Node) setConfig(config t.NodeConfig) {
	n.mu.Lock()
	n.config = config
	n.cfgDirty = true
	n.mu.Unlock()
}

// owners lists the addresses holding the owner affiliation, in-flight
// changes included.
func (n *Node) owners() []t.JID {
	var out []t.JID
	for j, aff := range n.affs.Values() {
		if aff == t.AffOwner {
			out = append(out, j)
		}
	}
	return out
}

// needsSaving checks if the node has any unflushed state. Such nodes are
// never evicted from the cache.
func (n *Node) needsSaving() bool {
	n.mu.Lock()
	dirty := n.cfgDirty || n.queued
	n.mu.Unlock()
	return dirty || n.affs.IsChanged() || n.subs.IsChanged()
}

// markQueued flips the queued flag; returns false if already set.
func (n *Node) markQueued() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.queued || n.deleted {
		return false
	}
	n.queued = true
	return true
}

func (n *Node) clearQueued() {
	n.mu.Lock()
	n.queued = false
	n.mu.Unlock()
}

// takeCfgDirty clears and returns the config-dirty flag together with the
// config snapshot to write.
func (n *Node) takeCfgDirty() (t.NodeConfig, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	dirty := n.cfgDirty
	n.cfgDirty = false
	return n.config, dirty
}

// restoreCfgDirty re-arms the config-dirty flag after a failed write so the
// state is retained for the next flush.
func (n *Node) restoreCfgDirty() {
	n.mu.Lock()
	n.cfgDirty = true
	n.mu.Unlock()
}

// markDeleted flags the node as gone and drops pending state.
func (n *Node) markDeleted() {
	n.mu.Lock()
	n.deleted = true
	n.cfgDirty = false
	n.mu.Unlock()
	n.affs.ResetPending(n.affs.Changed())
	n.subs.ResetPending(n.subs.Changed())
}

// isDeleted checks the deleted flag.
func (n *Node) isDeleted() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.deleted
}

// childrenNames returns the cached child name list and whether it is loaded.
func (n *Node) childrenNames() ([]string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.children == nil {
		return nil, false
	}
	out := make([]string, len(n.children))
	copy(out, n.children)
	return out, true
}

func (n *Node) setChildren(names []string) {
	n.mu.Lock()
	if names == nil {
		names = []string{}
	}
	n.children = names
	n.mu.Unlock()
}

func (n *Node) addChild(name string) {
	n.mu.Lock()
	if n.children != nil {
		n.children = append(n.children, name)
	}
	n.mu.Unlock()
}

func (n *Node) removeChild(name string) {
	n.mu.Lock()
	if n.children != nil {
		for i, c := range n.children {
			if c == name {
				n.children = append(n.children[:i], n.children[i+1:]...)
				break
			}
		}
	}
	n.mu.Unlock()
}
