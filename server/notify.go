// Notification fan-out: computes the recipient set of an event, narrows it
// by presence and capability advertising, propagates one level into the
// parent collection and drives the last-published-item delivery policy.
//
// Delivery is fire-and-forget per recipient: each send is scheduled
// independently and a slow or failing recipient delays only itself.

package main

import (
	"time"

	"github.com/xmpub/pubsub/server/concurrency"
	"github.com/xmpub/pubsub/server/logs"
	"github.com/xmpub/pubsub/server/store"
	t "github.com/xmpub/pubsub/server/store/types"
)

// Notifier computes recipient sets and hands payloads to the transport.
type Notifier struct {
	sender   Sender
	presence PresenceTracker
	roster   Roster
	pool     *concurrency.GoRoutinePool
	cache    *NodeCache

	// Capability-filtered delivery enabled for this service (PEP-style
	// "+notify" handling).
	presenceFiltered bool
}

func newNotifier(sender Sender, presence PresenceTracker, roster Roster,
	cache *NodeCache, workers int, presenceFiltered bool) *Notifier {
	if workers < 1 {
		workers = 1
	}
	return &Notifier{
		sender:           sender,
		presence:         presence,
		roster:           roster,
		pool:             concurrency.NewGoRoutinePool(workers),
		cache:            cache,
		presenceFiltered: presenceFiltered,
	}
}

func (nf *Notifier) stop() {
	nf.pool.Stop()
}

// Publish fans out newly published items: direct subscribers first, then the
// parent collection's subscribers, each set computed from the then-current
// affiliation/subscription snapshot.
func (nf *Notifier) Publish(node *Node, items []*t.Item) {
	nf.fanOut(node, &Notification{
		Service: node.service,
		Node:    node.name,
		Event:   EventItems,
		Items:   items,
	})
}

// Retract fans out item retractions.
func (nf *Notifier) Retract(node *Node, ids []string) {
	nf.fanOut(node, &Notification{
		Service:    node.service,
		Node:       node.name,
		Event:      EventRetract,
		RetractIds: ids,
	})
}

// NodeEvent fans out a node-meta event: config change, delete, purge,
// associate/disassociate of a child.
func (nf *Notifier) NodeEvent(node *Node, event, target string) {
	nf.fanOut(node, &Notification{
		Service: node.service,
		Node:    node.name,
		Event:   event,
		Target:  target,
	})
}

// SubscriptionEvent notifies a single subscriber of its new subscription
// state.
func (nf *Notifier) SubscriptionEvent(node *Node, to t.JID, st t.SubState) {
	stCopy := st
	nf.sendTo(node.service, to, &Notification{
		Service:      node.service,
		Node:         node.name,
		Event:        EventSubscription,
		Subscription: &stCopy,
	})
}

// AuthorizationRequest asks every owner to approve a pending subscription.
func (nf *Notifier) AuthorizationRequest(node *Node, subscriber t.JID) {
	notif := &Notification{
		Service:    node.service,
		Node:       node.name,
		Event:      EventAuthorization,
		Subscriber: subscriber.Bare(),
	}
	for _, owner := range node.owners() {
		nf.sendTo(node.service, owner, notif)
	}
}

// SendLastPublished delivers the most recently updated item to a single
// newly interested recipient. The recipient is re-checked with the retrieval
// access rule; a denial skips the delivery silently.
func (nf *Notifier) SendLastPublished(node *Node, to t.JID, accessCheck func(*Node, t.JID) error) {
	config := node.Config()
	if config.NodeType != t.NodeTypeLeaf || !config.PersistItems {
		return
	}
	if err := accessCheck(node, to); err != nil {
		return
	}

	ids, err := store.Items.IdsByOrdering(node.key, config.ItemsOrdering, nil)
	if err != nil {
		logs.Err.Printf("notify: last-item lookup on %s/%s failed: %v", node.service, node.name, err)
		return
	}
	if len(ids) == 0 {
		return
	}
	item, err := store.Items.Get(node.key, ids[0])
	if err != nil || item == nil {
		return
	}

	nf.sendTo(node.service, to, &Notification{
		Service: node.service,
		Node:    node.name,
		Event:   EventItems,
		Items:   []*t.Item{item},
	})
	statsInc("LastItemsSent", 1)
}

// fanOut delivers to the node's direct subscribers, then propagates one hop
// into the parent collection with a Collection header naming the child.
func (nf *Notifier) fanOut(node *Node, notif *Notification) {
	nf.deliver(node, notif)

	parentName := node.Config().Collection
	if parentName == "" {
		return
	}
	parent, err := nf.cache.Get(node.service, parentName)
	if err != nil {
		logs.Warn.Printf("notify: parent collection %s/%s not found: %v",
			node.service, parentName, err)
		return
	}
	tagged := *notif
	tagged.Node = parent.name
	tagged.Collection = node.name
	nf.deliver(parent, &tagged)
}

// deliver computes the recipient set and schedules one independent send per
// recipient.
func (nf *Notifier) deliver(node *Node, notif *Notification) {
	for _, rcpt := range nf.recipients(node) {
		nf.sendTo(node.service, rcpt, notif)
	}
}

// recipients computes the base recipient set of the node: subscribed, not
// banned, narrowed by presence expiry and expanded to full addresses when
// the node is configured for presence-based delivery.
func (nf *Notifier) recipients(node *Node) []t.JID {
	config := node.Config()
	affs := node.affs.Values()

	var bare []t.JID
	expired := false
	for j, st := range node.subs.Values() {
		if st.Sub != t.SubSubscribed {
			continue
		}
		aff := affs[j]
		if aff == t.AffOutcast {
			continue
		}
		if config.PresenceExpired && aff == t.AffMember && !nf.presence.IsAvailable(node.service, j) {
			// The subscription expires with the subscriber's presence.
			node.subs.Change(j, t.SubState{Sub: t.SubNone})
			expired = true
			continue
		}
		bare = append(bare, j)
	}
	if expired {
		nf.cache.MarkDirty(node)
	}

	if !config.PresenceBasedDelivery {
		return bare
	}
	return nf.expandPresence(node, config, bare)
}

// expandPresence maps bare recipients to their available full addresses.
// When capability filtering applies, entities advertising the node's notify
// feature are delivered to as well, subject to roster-group filtering under
// the roster access model.
func (nf *Notifier) expandPresence(node *Node, config t.NodeConfig, bare []t.JID) []t.JID {
	subscribed := make(map[t.JID]bool, len(bare))
	for _, j := range bare {
		subscribed[j] = true
	}

	var full []t.JID
	seen := make(map[t.JID]bool)
	for _, j := range bare {
		for _, res := range nf.presence.AvailableResources(node.service, j) {
			if !seen[res] {
				seen[res] = true
				full = append(full, res)
			}
		}
	}

	if config.NotifyFeature == "" || !nf.presenceFiltered {
		return full
	}

	for _, adv := range nf.presence.WithFeature(node.service, config.NotifyFeature) {
		if seen[adv] {
			continue
		}
		if !subscribed[adv.Bare()] {
			if config.AccessModel != t.AccessRoster {
				continue
			}
			ok, err := nf.inAllowedGroup(node, adv.Bare(), config.RosterGroupsAllowed)
			if err != nil || !ok {
				continue
			}
		}
		seen[adv] = true
		full = append(full, adv)
	}
	return full
}

func (nf *Notifier) inAllowedGroup(node *Node, who t.JID, allowed []string) (bool, error) {
	allowedSet := make(map[string]bool, len(allowed))
	for _, group := range allowed {
		allowedSet[group] = true
	}
	for _, owner := range node.owners() {
		roster, err := nf.roster.RosterOf(owner)
		if err != nil {
			return false, err
		}
		if item, ok := roster[who]; ok {
			for _, group := range item.Groups {
				if allowedSet[group] {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

// sendTo schedules one delivery, honoring the externally-reported
// back-pressure delay before the send.
func (nf *Notifier) sendTo(service t.JID, to t.JID, notif *Notification) {
	nf.pool.Schedule(func() {
		if delay := nf.sender.HighLoadDelay(); delay > 0 {
			time.Sleep(delay)
		}
		if err := nf.sender.Send(service, to, notif); err != nil {
			logs.Warn.Printf("notify: delivery to %s failed: %v", to, err)
		} else {
			statsInc("NotificationsSent", 1)
		}
	})
}
