// Package mem is an in-process database adapter holding all data in memory.
// Used by tests and single-node development setups; data does not survive a
// restart.
package mem

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/xmpub/pubsub/server/store"
	t "github.com/xmpub/pubsub/server/store/types"
)

const adapterName = "mem"

type nodeKey struct {
	service t.JID
	name    string
}

type adapter struct {
	mu sync.Mutex

	open bool

	// (service, name) -> node record.
	nodes map[nodeKey]*t.Node
	// node uid -> (service, name), for reverse lookups on delete.
	byUid map[t.Uid]nodeKey

	affs  map[t.Uid]map[t.JID]t.Affiliation
	subs  map[t.Uid]map[t.JID]t.SubState
	items map[t.Uid]map[string]*t.Item
}

func (a *adapter) Open(config json.RawMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.open {
		return t.ErrFailed
	}
	a.reset()
	a.open = true
	return nil
}

func (a *adapter) reset() {
	a.nodes = make(map[nodeKey]*t.Node)
	a.byUid = make(map[t.Uid]nodeKey)
	a.affs = make(map[t.Uid]map[t.JID]t.Affiliation)
	a.subs = make(map[t.Uid]map[t.JID]t.SubState)
	a.items = make(map[t.Uid]map[string]*t.Item)
}

func (a *adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.open = false
	return nil
}

func (a *adapter) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.open
}

func (a *adapter) GetName() string {
	return adapterName
}

func (a *adapter) CreateDb(reset bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if reset {
		a.reset()
	}
	return nil
}

func (a *adapter) Stats() interface{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return map[string]int{"nodes": len(a.nodes)}
}

func (a *adapter) NodeCreate(node *t.Node) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := nodeKey{node.Service, node.Name}
	if _, ok := a.nodes[key]; ok {
		return t.ErrDuplicate
	}
	cp := *node
	a.nodes[key] = &cp
	a.byUid[node.Uid()] = key
	return nil
}

func (a *adapter) NodeGet(service t.JID, name string) (*t.Node, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	node, ok := a.nodes[nodeKey{service, name}]
	if !ok {
		return nil, nil
	}
	cp := *node
	return &cp, nil
}

func (a *adapter) NodeConfigUpdate(node t.Uid, config t.NodeConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	key, ok := a.byUid[node]
	if !ok {
		return t.ErrNotFound
	}
	rec := a.nodes[key]
	rec.Config = config
	rec.UpdatedAt = t.TimeNow()
	return nil
}

func (a *adapter) NodeDelete(node t.Uid) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	key, ok := a.byUid[node]
	if !ok {
		return t.ErrNotFound
	}
	delete(a.nodes, key)
	delete(a.byUid, node)
	delete(a.affs, node)
	delete(a.subs, node)
	delete(a.items, node)
	return nil
}

func (a *adapter) NodeCount(service t.JID) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	count := 0
	for key := range a.nodes {
		if key.service == service {
			count++
		}
	}
	return count, nil
}

func (a *adapter) NodesForService(service t.JID) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var names []string
	for key := range a.nodes {
		if key.service == service {
			names = append(names, key.name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (a *adapter) ChildNodes(service t.JID, parent string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var names []string
	for key, rec := range a.nodes {
		if key.service == service && rec.Config.Collection == parent {
			names = append(names, key.name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (a *adapter) ServiceDelete(service t.JID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key, rec := range a.nodes {
		if key.service != service {
			continue
		}
		uid := rec.Uid()
		delete(a.nodes, key)
		delete(a.byUid, uid)
		delete(a.affs, uid)
		delete(a.subs, uid)
		delete(a.items, uid)
	}
	return nil
}

func (a *adapter) AffiliationsGet(node t.Uid) (map[t.JID]t.Affiliation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[t.JID]t.Affiliation, len(a.affs[node]))
	for j, aff := range a.affs[node] {
		out[j] = aff
	}
	return out, nil
}

func (a *adapter) AffiliationsUpsert(node t.Uid, changes map[t.JID]t.Affiliation) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.byUid[node]; !ok {
		return t.ErrNotFound
	}
	rows := a.affs[node]
	if rows == nil {
		rows = make(map[t.JID]t.Affiliation)
		a.affs[node] = rows
	}
	for j, aff := range changes {
		if aff == t.AffNone {
			delete(rows, j)
		} else {
			rows[j] = aff
		}
	}
	return nil
}

func (a *adapter) SubscriptionsGet(node t.Uid) (map[t.JID]t.SubState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[t.JID]t.SubState, len(a.subs[node]))
	for j, st := range a.subs[node] {
		out[j] = st
	}
	return out, nil
}

func (a *adapter) SubscriptionsUpsert(node t.Uid, changes map[t.JID]t.SubState) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.byUid[node]; !ok {
		return t.ErrNotFound
	}
	rows := a.subs[node]
	if rows == nil {
		rows = make(map[t.JID]t.SubState)
		a.subs[node] = rows
	}
	for j, st := range changes {
		if st.Sub == t.SubNone {
			delete(rows, j)
		} else {
			rows[j] = st
		}
	}
	return nil
}

func (a *adapter) ItemSave(item *t.Item) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.byUid[item.Node]; !ok {
		return t.ErrNotFound
	}
	rows := a.items[item.Node]
	if rows == nil {
		rows = make(map[string]*t.Item)
		a.items[item.Node] = rows
	}
	cp := *item
	if prev, ok := rows[item.Id]; ok {
		// Update keeps the original creation time and archive id.
		cp.CreatedAt = prev.CreatedAt
		cp.ArchiveId = prev.ArchiveId
	}
	rows[item.Id] = &cp
	return nil
}

func (a *adapter) ItemGet(node t.Uid, id string) (*t.Item, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	item, ok := a.items[node][id]
	if !ok {
		return nil, nil
	}
	cp := *item
	return &cp, nil
}

func (a *adapter) ItemDelete(node t.Uid, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	rows := a.items[node]
	if _, ok := rows[id]; !ok {
		return t.ErrNotFound
	}
	delete(rows, id)
	return nil
}

func (a *adapter) sortedItems(node t.Uid, ordering t.CollectionItemsOrdering) []*t.Item {
	list := make([]*t.Item, 0, len(a.items[node]))
	for _, item := range a.items[node] {
		list = append(list, item)
	}
	sort.Slice(list, func(i, k int) bool {
		var ti, tk time.Time
		if ordering == t.OrderByCreationDate {
			ti, tk = list[i].CreatedAt, list[k].CreatedAt
		} else {
			ti, tk = list[i].UpdatedAt, list[k].UpdatedAt
		}
		if ti.Equal(tk) {
			// Stable order for equal timestamps.
			return list[i].Id > list[k].Id
		}
		return ti.After(tk)
	})
	return list
}

func (a *adapter) ItemIds(node t.Uid, ordering t.CollectionItemsOrdering, since *time.Time) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var ids []string
	for _, item := range a.sortedItems(node, ordering) {
		if since != nil && item.UpdatedAt.Before(*since) {
			continue
		}
		ids = append(ids, item.Id)
	}
	return ids, nil
}

func (a *adapter) ItemMetaAll(node t.Uid, ordering t.CollectionItemsOrdering) ([]t.ItemMeta, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var metas []t.ItemMeta
	for _, item := range a.sortedItems(node, ordering) {
		metas = append(metas, t.ItemMeta{
			Id:        item.Id,
			Publisher: item.Publisher,
			CreatedAt: item.CreatedAt,
			UpdatedAt: item.UpdatedAt,
			ArchiveId: item.ArchiveId,
		})
	}
	return metas, nil
}

func init() {
	store.RegisterAdapter(&adapter{})
}
