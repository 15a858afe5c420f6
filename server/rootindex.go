// RootCollectionIndex: per-service set of node names with no parent
// collection. The first access triggers a storage load shared by all
// concurrent callers; add/remove calls arriving while the load is in flight
// are buffered and replayed in arrival order against the loaded set.

package main

import (
	"sort"
	"sync"

	"github.com/xmpub/pubsub/server/store"
	t "github.com/xmpub/pubsub/server/store/types"
	"golang.org/x/sync/singleflight"
)

type rootOp struct {
	name string
	add  bool
}

type rootEntry struct {
	loaded bool
	names  map[string]bool
	// Mutations which arrived before the load finished.
	buffer []rootOp
}

// RootIndex tracks top-level node names per service.
type RootIndex struct {
	mu      sync.Mutex
	entries map[t.JID]*rootEntry
	flight  singleflight.Group
}

func newRootIndex() *RootIndex {
	return &RootIndex{entries: make(map[t.JID]*rootEntry)}
}

func (r *RootIndex) entry(service t.JID) *rootEntry {
	ent, ok := r.entries[service]
	if !ok {
		ent = &rootEntry{}
		r.entries[service] = ent
	}
	return ent
}

// Get returns the sorted root node names of the service, loading the set
// from storage on first access. Concurrent first callers share one load.
func (r *RootIndex) Get(service t.JID) ([]string, error) {
	r.mu.Lock()
	ent := r.entry(service)
	if ent.loaded {
		out := snapshot(ent.names)
		r.mu.Unlock()
		return out, nil
	}
	r.mu.Unlock()

	_, err, _ := r.flight.Do(string(service), func() (interface{}, error) {
		names, err := store.Nodes.Children(service, "")
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		ent := r.entry(service)
		if !ent.loaded {
			ent.names = make(map[string]bool, len(names))
			for _, name := range names {
				ent.names[name] = true
			}
			// Replay buffered mutations in arrival order.
			for _, op := range ent.buffer {
				if op.add {
					ent.names[op.name] = true
				} else {
					delete(ent.names, op.name)
				}
			}
			ent.buffer = nil
			ent.loaded = true
		}
		r.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	out := snapshot(r.entry(service).names)
	r.mu.Unlock()
	return out, nil
}

// Add records a new root node. Buffered if the first load has not finished.
func (r *RootIndex) Add(service t.JID, name string) {
	r.mu.Lock()
	ent := r.entry(service)
	if ent.loaded {
		ent.names[name] = true
	} else {
		ent.buffer = append(ent.buffer, rootOp{name, true})
	}
	r.mu.Unlock()
}

// Remove drops a root node. Buffered if the first load has not finished.
func (r *RootIndex) Remove(service t.JID, name string) {
	r.mu.Lock()
	ent := r.entry(service)
	if ent.loaded {
		delete(ent.names, name)
	} else {
		ent.buffer = append(ent.buffer, rootOp{name, false})
	}
	r.mu.Unlock()
}

// Drop forgets the whole service. Used when a service is removed.
func (r *RootIndex) Drop(service t.JID) {
	r.mu.Lock()
	delete(r.entries, service)
	r.mu.Unlock()
}

func snapshot(names map[string]bool) []string {
	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
