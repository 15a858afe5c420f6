// The pubsub engine proper: ties the node cache, the saver, the root index
// and the notifier together and implements the node operations invoked by
// the transport layer.

package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xmpub/pubsub/server/logs"
	"github.com/xmpub/pubsub/server/store"
	t "github.com/xmpub/pubsub/server/store/types"
)

// EngineConfig is the engine section of the config file.
type EngineConfig struct {
	// Maximum number of cached nodes.
	CacheSize int `json:"cache_size"`
	// Administrator bare addresses; administrators pass every access check.
	Admins []string `json:"admins,omitempty"`
	// Deliver the last published item when a subscriber's presence newly
	// advertises interest.
	SendLastOnPresence bool `json:"send_last_item_on_presence"`
	// Enable capability-filtered subscriptions ("+notify") for this service.
	PresenceFiltered bool `json:"presence_filtered"`
	// Concurrent flush workers.
	SaveWorkers int `json:"save_workers"`
	// Write attempts per category within one flush cycle.
	SaveRetries int `json:"save_retries"`
	// Concurrent delivery workers.
	FanoutWorkers int `json:"fanout_workers"`
}

const (
	defaultCacheSize     = 2000
	defaultSaveWorkers   = 4
	defaultSaveRetries   = 3
	defaultFanoutWorkers = 16
)

// Engine is the per-process pubsub node engine. Constructed once at startup;
// all state lives here rather than in package-level variables.
type Engine struct {
	config   EngineConfig
	admins   map[t.JID]bool
	cache    *NodeCache
	saver    *nodeSaver
	roots    *RootIndex
	notifier *Notifier
	roster   Roster
	presence PresenceTracker
}

// NewEngine creates an engine wired to the given collaborators.
func NewEngine(config EngineConfig, sender Sender, presence PresenceTracker, roster Roster) *Engine {
	if config.CacheSize <= 0 {
		config.CacheSize = defaultCacheSize
	}
	if config.SaveWorkers <= 0 {
		config.SaveWorkers = defaultSaveWorkers
	}
	if config.SaveRetries <= 0 {
		config.SaveRetries = defaultSaveRetries
	}
	if config.FanoutWorkers <= 0 {
		config.FanoutWorkers = defaultFanoutWorkers
	}

	admins := make(map[t.JID]bool, len(config.Admins))
	for _, admin := range config.Admins {
		admins[t.JID(admin).Bare()] = true
	}

	saver := newNodeSaver(config.SaveWorkers, config.SaveRetries)
	cache := newNodeCache(config.CacheSize, saver)
	notifier := newNotifier(sender, presence, roster, cache,
		config.FanoutWorkers, config.PresenceFiltered)

	return &Engine{
		config:   config,
		admins:   admins,
		cache:    cache,
		saver:    saver,
		roots:    newRootIndex(),
		notifier: notifier,
		roster:   roster,
		presence: presence,
	}
}

// Stop shuts down the background workers.
func (e *Engine) Stop() {
	e.saver.stop()
	e.notifier.stop()
}

// GetNode resolves a node through the cache.
func (e *Engine) GetNode(service t.JID, name string) (*Node, error) {
	return e.cache.Get(service, name)
}

// CreateNode creates a node, assigns its storage key and grants the creator
// the owner affiliation, optionally auto-subscribing them. A concurrent
// create for the same (service, name) fails with ErrDuplicate.
func (e *Engine) CreateNode(service t.JID, name string, creator t.JID,
	config *t.NodeConfig, autoSubscribe bool) (*Node, error) {

	var cfg t.NodeConfig
	if config == nil {
		cfg = t.DefaultNodeConfig(t.NodeTypeLeaf)
	} else {
		cfg = *config
		if cfg.NodeType == "" {
			cfg.NodeType = t.NodeTypeLeaf
		}
		cfg.Normalize()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var parent *Node
	if cfg.Collection != "" {
		var err error
		parent, err = e.cache.Get(service, cfg.Collection)
		if err != nil {
			return nil, fmt.Errorf("%w: parent collection %q", t.ErrNotFound, cfg.Collection)
		}
		if !parent.IsCollection() {
			return nil, fmt.Errorf("%w: %q is not a collection node", t.ErrMalformed, cfg.Collection)
		}
	}

	rec := &t.Node{
		Service: service,
		Name:    name,
		Creator: creator.Bare(),
		Config:  cfg,
	}
	if err := store.Nodes.Create(rec); err != nil {
		return nil, err
	}

	node := nodeFromRecord(rec, nil, nil)
	node.affs.Add(creator, t.AffOwner)
	if autoSubscribe {
		node.subs.Add(creator, t.SubState{Sub: t.SubSubscribed, Id: store.GetUid().SubId()})
	}
	// The creator's grants are part of the creation, written synchronously.
	affChanges := node.affs.Changed()
	if err := store.Nodes.SaveAffiliations(node.key, affChanges); err != nil {
		store.Nodes.Delete(node.key)
		return nil, err
	}
	node.affs.Merge(affChanges)
	if node.subs.IsChanged() {
		subChanges := node.subs.Changed()
		if err := store.Nodes.SaveSubscriptions(node.key, subChanges); err != nil {
			store.Nodes.Delete(node.key)
			return nil, err
		}
		node.subs.Merge(subChanges)
	}

	e.cache.Add(node)
	if cfg.Collection == "" {
		e.roots.Add(service, name)
	} else {
		parent.addChild(name)
		e.notifier.NodeEvent(parent, EventAssociate, name)
	}
	statsInc("CreatedNodes", 1)
	return node, nil
}

// Configure replaces the node configuration. Only owners (or administrators)
// may configure; the node type is immutable; moving the node between
// collections updates both indexes and notifies the affected collections.
func (e *Engine) Configure(service t.JID, name string, who t.JID, newConfig t.NodeConfig) error {
	node, err := e.cache.Get(service, name)
	if err != nil {
		return err
	}
	if err = e.checkPermission(node, who, ActionManageNode); err != nil {
		return err
	}

	newConfig.Normalize()
	if err = newConfig.Validate(); err != nil {
		return err
	}
	old := node.Config()
	if newConfig.NodeType != old.NodeType {
		return fmt.Errorf("%w: node_type is immutable", t.ErrMalformed)
	}

	if newConfig.Collection != old.Collection {
		if err = e.reparent(node, old.Collection, newConfig.Collection); err != nil {
			return err
		}
	}

	node.setConfig(newConfig)
	e.cache.MarkDirty(node)
	e.notifier.NodeEvent(node, EventConfig, "")
	return nil
}

// reparent detaches the node from its old parent (or the root index) and
// attaches it to the new one, with associate/disassociate events.
func (e *Engine) reparent(node *Node, oldParent, newParent string) error {
	var parent *Node
	if newParent != "" {
		var err error
		parent, err = e.cache.Get(node.service, newParent)
		if err != nil {
			return fmt.Errorf("%w: parent collection %q", t.ErrNotFound, newParent)
		}
		if !parent.IsCollection() {
			return fmt.Errorf("%w: %q is not a collection node", t.ErrMalformed, newParent)
		}
	}

	if oldParent == "" {
		e.roots.Remove(node.service, node.name)
	} else if prev, err := e.cache.Get(node.service, oldParent); err == nil {
		prev.removeChild(node.name)
		e.notifier.NodeEvent(prev, EventDisassociate, node.name)
	}

	if newParent == "" {
		e.roots.Add(node.service, node.name)
	} else {
		parent.addChild(node.name)
		e.notifier.NodeEvent(parent, EventAssociate, node.name)
	}
	return nil
}

// DeleteNode removes a node: subscribers are notified, children of a deleted
// collection are re-parented to the node's own parent, and the node is
// detached from its parent or the root index.
func (e *Engine) DeleteNode(service t.JID, name string, who t.JID) error {
	node, err := e.cache.Get(service, name)
	if err != nil {
		return err
	}
	if err = e.checkPermission(node, who, ActionManageNode); err != nil {
		return err
	}

	if err = store.Nodes.Delete(node.key); err != nil {
		return err
	}

	e.notifier.NodeEvent(node, EventDelete, "")

	parentName := node.Config().Collection
	if node.IsCollection() {
		children, err := e.Children(service, name)
		if err != nil {
			logs.Err.Printf("engine: listing children of %s/%s failed: %v", service, name, err)
		}
		for _, childName := range children {
			child, err := e.cache.Get(service, childName)
			if err != nil {
				continue
			}
			childConfig := child.Config()
			childConfig.Collection = parentName
			child.setConfig(childConfig)
			e.cache.MarkDirty(child)
			if parentName == "" {
				e.roots.Add(service, childName)
			}
		}
	}

	if parentName == "" {
		e.roots.Remove(service, name)
	} else if parent, err := e.cache.Get(service, parentName); err == nil {
		parent.removeChild(name)
		for _, childName := range e.adoptedChildren(node) {
			parent.addChild(childName)
		}
		e.notifier.NodeEvent(parent, EventDisassociate, name)
	}

	node.markDeleted()
	e.cache.Remove(service, name)
	statsInc("DeletedNodes", 1)
	return nil
}

func (e *Engine) adoptedChildren(node *Node) []string {
	if !node.IsCollection() {
		return nil
	}
	children, _ := node.childrenNames()
	return children
}

// Purge deletes all items of a leaf node and notifies subscribers.
func (e *Engine) Purge(service t.JID, name string, who t.JID) error {
	node, err := e.cache.Get(service, name)
	if err != nil {
		return err
	}
	if node.IsCollection() {
		return t.ErrUnsupported
	}
	if err = e.checkPermission(node, who, ActionPurgeNode); err != nil {
		return err
	}

	config := node.Config()
	ids, err := store.Items.IdsByOrdering(node.key, config.ItemsOrdering, nil)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := store.Items.Delete(node.key, id); err != nil {
			logs.Err.Printf("engine: purge of item %s on %s/%s failed: %v", id, service, name, err)
		}
	}
	e.notifier.NodeEvent(node, EventPurge, "")
	return nil
}

// ItemPayload is one item of a publish request.
type ItemPayload struct {
	// Item id; empty means the engine assigns one.
	Id      string
	Payload string
}

// PublishOptions carries per-publish preconditions: each named configuration
// field must currently hold the expected value or the publish is rejected.
type PublishOptions struct {
	Expect map[string]string
}

// checkPublishOptions compares the expected values against the JSON rendering
// of the node configuration.
func checkPublishOptions(config t.NodeConfig, opts *PublishOptions) error {
	if opts == nil || len(opts.Expect) == 0 {
		return nil
	}
	raw, err := json.Marshal(&config)
	if err != nil {
		return t.ErrInternal
	}
	var fields map[string]interface{}
	if err = json.Unmarshal(raw, &fields); err != nil {
		return t.ErrInternal
	}
	for field, want := range opts.Expect {
		cur, ok := fields[field]
		if !ok || fmt.Sprint(cur) != want {
			return fmt.Errorf("%w: %s", t.ErrPrecondition, field)
		}
	}
	return nil
}

// Publish writes the items (insert-or-update by id) and fans out the
// notifications. Returns the item ids, assigned ones included.
func (e *Engine) Publish(service t.JID, name string, publisher t.JID,
	payloads []ItemPayload, opts *PublishOptions) ([]string, error) {

	node, err := e.cache.Get(service, name)
	if err != nil {
		return nil, err
	}
	if node.IsCollection() {
		return nil, t.ErrUnsupported
	}
	if err = e.checkPermission(node, publisher, ActionPublishItems); err != nil {
		return nil, err
	}

	config := node.Config()
	if err = checkPublishOptions(config, opts); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(payloads))
	justWritten := make(map[string]bool, len(payloads))
	items := make([]*t.Item, 0, len(payloads))
	now := t.TimeNow()

	for _, payload := range payloads {
		id := payload.Id
		if id == "" {
			id = store.GetUidString()
		}
		item := &t.Item{
			Id:        id,
			Node:      node.key,
			Publisher: publisher.Bare(),
			Payload:   payload.Payload,
		}
		if config.PersistItems {
			if err = store.Items.Save(item); err != nil {
				return nil, err
			}
		} else {
			item.CreatedAt = now
			item.UpdatedAt = now
		}
		ids = append(ids, id)
		justWritten[id] = true
		items = append(items, item)
	}

	if config.PersistItems && config.MaxItems > 0 {
		trimItems(node.key, config.MaxItems, config.ItemsOrdering, justWritten)
	}

	e.notifier.Publish(node, items)
	statsInc("PublishedItems", len(items))
	return ids, nil
}

// Retract deletes the given items and fans out retraction events. Owners may
// retract anything; publishers only their own items. The whole batch is
// validated before the first delete, so a rejected request deletes nothing.
func (e *Engine) Retract(service t.JID, name string, who t.JID, itemIds []string) error {
	node, err := e.cache.Get(service, name)
	if err != nil {
		return err
	}
	if node.IsCollection() {
		return t.ErrUnsupported
	}
	if err = e.checkPermission(node, who, ActionRetractItems); err != nil {
		return err
	}

	owner := e.isAdmin(who.Bare()) || affOf(node, who).MayManage()
	items := make([]*t.Item, 0, len(itemIds))
	for _, id := range itemIds {
		item, err := store.Items.Get(node.key, id)
		if err != nil {
			return err
		}
		if item == nil {
			return t.ErrNotFound
		}
		if !owner && item.Publisher != who.Bare() {
			return t.Deny(t.ReasonForbidden)
		}
		items = append(items, item)
	}

	var retracted []string
	for _, item := range items {
		if err := store.Items.Delete(node.key, item.Id); err != nil {
			// Items already gone are still announced as retracted.
			if len(retracted) > 0 {
				e.notifier.Retract(node, retracted)
			}
			return err
		}
		retracted = append(retracted, item.Id)
	}

	if len(retracted) > 0 {
		e.notifier.Retract(node, retracted)
	}
	return nil
}

// RetrieveItems returns items by explicit ids, or the most recent maxItems
// (all when zero) in the node's configured ordering.
func (e *Engine) RetrieveItems(service t.JID, name string, who t.JID,
	itemIds []string, maxItems int) ([]*t.Item, error) {

	node, err := e.cache.Get(service, name)
	if err != nil {
		return nil, err
	}
	if node.IsCollection() {
		return nil, t.ErrUnsupported
	}
	if err = e.checkPermission(node, who, ActionRetrieveItems); err != nil {
		return nil, err
	}

	config := node.Config()
	if !config.PersistItems {
		return nil, nil
	}

	if len(itemIds) == 0 {
		itemIds, err = store.Items.IdsByOrdering(node.key, config.ItemsOrdering, nil)
		if err != nil {
			return nil, err
		}
		if maxItems > 0 && len(itemIds) > maxItems {
			itemIds = itemIds[:maxItems]
		}
	}

	items := make([]*t.Item, 0, len(itemIds))
	for _, id := range itemIds {
		item, err := store.Items.Get(node.key, id)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, t.ErrNotFound
		}
		items = append(items, item)
	}
	return items, nil
}

// ItemsMeta returns metadata of the node's items without payloads, most
// recent first.
func (e *Engine) ItemsMeta(service t.JID, name string, who t.JID) ([]t.ItemMeta, error) {
	node, err := e.cache.Get(service, name)
	if err != nil {
		return nil, err
	}
	if node.IsCollection() {
		return nil, t.ErrUnsupported
	}
	if err = e.checkPermission(node, who, ActionRetrieveItems); err != nil {
		return nil, err
	}
	config := node.Config()
	if !config.PersistItems {
		return nil, nil
	}
	return store.Items.MetaAll(node.key, config.ItemsOrdering)
}

// Subscribe subscribes the requester to the node. Under the authorize model
// the subscription is created pending and every owner is asked to approve;
// otherwise the requester is subscribed immediately and raised to at least
// the member affiliation.
func (e *Engine) Subscribe(service t.JID, name string, who t.JID) (t.SubState, error) {
	node, err := e.cache.Get(service, name)
	if err != nil {
		return t.SubState{}, err
	}

	who = who.Bare()
	if current := subOf(node, who); current.Sub == t.SubSubscribed || current.Sub == t.SubPending {
		return current, nil
	}

	err = e.checkAccess(node, who)
	if err != nil {
		var denied *t.AccessError
		if node.Config().AccessModel == t.AccessAuthorize &&
			errors.As(err, &denied) && denied.Reason == t.ReasonNotSubscribed {
			// First-time subscriber under the authorize model: park the
			// subscription and ask the owners.
			st := t.SubState{Sub: t.SubPending, Id: store.GetUid().SubId()}
			node.subs.Change(who, st)
			e.cache.MarkDirty(node)
			e.notifier.AuthorizationRequest(node, who)
			e.notifier.SubscriptionEvent(node, who, st)
			return st, nil
		}
		return t.SubState{}, err
	}

	st := t.SubState{Sub: t.SubSubscribed, Id: store.GetUid().SubId()}
	node.subs.Change(who, st)
	node.affs.Raise(who, t.AffMember)
	e.cache.MarkDirty(node)
	e.notifier.SubscriptionEvent(node, who, st)

	if policy := node.Config().SendLastPublishedItem; policy != t.SendLastNever {
		e.notifier.SendLastPublished(node, who, e.checkAccess)
	}
	return st, nil
}

// Unsubscribe removes the requester's subscription. A non-empty subscription
// id must match the stored one.
func (e *Engine) Unsubscribe(service t.JID, name string, who t.JID, subId string) error {
	node, err := e.cache.Get(service, name)
	if err != nil {
		return err
	}

	who = who.Bare()
	current := subOf(node, who)
	if current.Sub == t.SubNone {
		return t.ErrNotFound
	}
	if subId != "" && subId != current.Id {
		return fmt.Errorf("%w: unknown subscription id", t.ErrMalformed)
	}

	node.subs.Change(who, t.SubState{Sub: t.SubNone, Id: current.Id})
	e.cache.MarkDirty(node)
	e.notifier.SubscriptionEvent(node, who, t.SubState{Sub: t.SubNone, Id: current.Id})
	return nil
}

// Approve resolves a pending subscription. Only owners and administrators
// may approve; approval subscribes the entity and raises it to member.
func (e *Engine) Approve(service t.JID, name string, owner, subscriber t.JID, allow bool) error {
	node, err := e.cache.Get(service, name)
	if err != nil {
		return err
	}
	if !e.isAdmin(owner.Bare()) && !affOf(node, owner).MayManage() {
		return t.Deny(t.ReasonForbidden)
	}

	subscriber = subscriber.Bare()
	current := subOf(node, subscriber)
	if current.Sub != t.SubPending {
		return t.ErrNotFound
	}

	st := t.SubState{Sub: t.SubNone, Id: current.Id}
	if allow {
		st.Sub = t.SubSubscribed
		node.affs.Raise(subscriber, t.AffMember)
	}
	node.subs.Change(subscriber, st)
	e.cache.MarkDirty(node)
	e.notifier.SubscriptionEvent(node, subscriber, st)

	if allow {
		if policy := node.Config().SendLastPublishedItem; policy != t.SendLastNever {
			e.notifier.SendLastPublished(node, subscriber, e.checkAccess)
		}
	}
	return nil
}

// SetAffiliation grants or revokes an affiliation. Owner-only.
func (e *Engine) SetAffiliation(service t.JID, name string, who, subject t.JID, aff t.Affiliation) error {
	node, err := e.cache.Get(service, name)
	if err != nil {
		return err
	}
	if err = e.checkPermission(node, who, ActionManageNode); err != nil {
		return err
	}
	node.affs.Change(subject, aff)
	e.cache.MarkDirty(node)
	return nil
}

// RootNodes lists the service's top-level node names.
func (e *Engine) RootNodes(service t.JID) ([]string, error) {
	return e.roots.Get(service)
}

// NodeNames lists every node name of the service, for service discovery.
func (e *Engine) NodeNames(service t.JID) ([]string, error) {
	return store.Nodes.NamesForService(service)
}

// NodeCount returns the number of nodes of the service.
func (e *Engine) NodeCount(service t.JID) (int, error) {
	return store.Nodes.Count(service)
}

// Children lists a collection's child node names, cached on the node after
// the first lookup.
func (e *Engine) Children(service t.JID, name string) ([]string, error) {
	node, err := e.cache.Get(service, name)
	if err != nil {
		return nil, err
	}
	if !node.IsCollection() {
		return nil, t.ErrUnsupported
	}
	if children, ok := node.childrenNames(); ok {
		return children, nil
	}
	children, err := store.Nodes.Children(service, name)
	if err != nil {
		return nil, err
	}
	node.setChildren(children)
	return children, nil
}

// PresenceInterest is called by the session layer when a subscriber's
// presence or capabilities newly advertise interest in the node. Delivers
// the last published item when both the service and the node opt in.
func (e *Engine) PresenceInterest(service t.JID, name string, who t.JID) {
	if !e.config.SendLastOnPresence {
		return
	}
	node, err := e.cache.Get(service, name)
	if err != nil {
		return
	}
	if node.Config().SendLastPublishedItem == t.SendLastOnSubPresence {
		e.notifier.SendLastPublished(node, who.Bare(), e.checkAccess)
	}
}

// RemoveService drops all of a service's nodes from the cache, the root
// index and storage.
func (e *Engine) RemoveService(service t.JID) error {
	e.cache.RemoveService(service)
	e.roots.Drop(service)
	return store.Services.Delete(service)
}
