// Access-control decisions: who may subscribe, retrieve, publish, retract
// and manage a node, given its access model and the requester's affiliation,
// subscription, presence and roster standing.

package main

import (
	"github.com/xmpub/pubsub/server/logs"
	t "github.com/xmpub/pubsub/server/store/types"
)

// Action is an operation gated by checkPermission.
type Action int

const (
	ActionSubscribe Action = iota
	ActionUnsubscribe
	ActionRetrieveItems
	ActionPublishItems
	ActionRetractItems
	ActionPurgeNode
	ActionManageNode
)

// isAdmin checks the configured administrator list.
func (e *Engine) isAdmin(who t.JID) bool {
	return e.admins[who.Bare()]
}

// checkAccess decides whether the requester may subscribe to or read from
// the node. Evaluation order: administrators, outcast ban, then the node's
// access model.
func (e *Engine) checkAccess(node *Node, who t.JID) error {
	who = who.Bare()
	if e.isAdmin(who) {
		return nil
	}

	aff := affOf(node, who)
	if aff == t.AffOutcast {
		return t.Deny(t.ReasonForbidden)
	}

	config := node.Config()
	switch config.AccessModel {
	case t.AccessOpen:
		if len(config.Domains) == 0 {
			return nil
		}
		for _, domain := range config.Domains {
			if who.Domain() == domain {
				return nil
			}
		}
		return t.Deny(t.ReasonForbidden)

	case t.AccessWhitelist:
		if aff.MayRetrieve() {
			return nil
		}
		return t.Deny(t.ReasonClosedNode)

	case t.AccessAuthorize:
		if subOf(node, who).Sub == t.SubSubscribed && aff.MayRetrieve() {
			return nil
		}
		return t.Deny(t.ReasonNotSubscribed)

	case t.AccessPresence:
		ok, err := e.hasPresenceSubscription(node, who)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		return t.Deny(t.ReasonPresenceNeeded)

	case t.AccessRoster:
		ok, err := e.inAllowedRosterGroup(node, who, config.RosterGroupsAllowed)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		return t.Deny(t.ReasonNotInGroup)
	}

	return t.Deny(t.ReasonForbidden)
}

// checkPermission decides whether the requester may perform the action on
// the node.
func (e *Engine) checkPermission(node *Node, who t.JID, action Action) error {
	who = who.Bare()
	if e.isAdmin(who) {
		return nil
	}

	aff := affOf(node, who)
	if aff == t.AffOutcast {
		return t.Deny(t.ReasonForbidden)
	}

	switch action {
	case ActionManageNode, ActionPurgeNode:
		if aff.MayManage() {
			return nil
		}
		return t.Deny(t.ReasonForbidden)

	case ActionPublishItems:
		if aff.MayPublish() {
			return nil
		}
		switch node.Config().PublisherModel {
		case t.PublisherModelOpen:
			return nil
		case t.PublisherModelSubscribers:
			if subOf(node, who).Sub == t.SubSubscribed {
				return nil
			}
		}
		return t.Deny(t.ReasonForbidden)

	case ActionRetractItems:
		// Owners may retract anything; publishers their own items, which the
		// caller verifies against the item's publisher.
		if aff.MayPublish() {
			return nil
		}
		return t.Deny(t.ReasonForbidden)

	case ActionUnsubscribe:
		// Own subscription state; the subscription id is validated by the
		// caller.
		return nil

	case ActionSubscribe, ActionRetrieveItems:
		return e.checkAccess(node, who)
	}

	return t.Deny(t.ReasonForbidden)
}

// affOf returns the requester's affiliation including in-flight changes.
func affOf(node *Node, who t.JID) t.Affiliation {
	if aff, ok := node.affs.Values()[who.Bare()]; ok {
		return aff
	}
	return t.AffNone
}

// subOf returns the requester's subscription including in-flight changes.
func subOf(node *Node, who t.JID) t.SubState {
	if st, ok := node.subs.Values()[who.Bare()]; ok {
		return st
	}
	return t.SubState{}
}

// hasPresenceSubscription checks whether some owner's roster shows the
// requester with an inbound-presence-visible subscription.
func (e *Engine) hasPresenceSubscription(node *Node, who t.JID) (bool, error) {
	for _, owner := range node.owners() {
		roster, err := e.roster.RosterOf(owner)
		if err != nil {
			logs.Err.Printf("access: roster lookup for %s failed: %v", owner, err)
			return false, t.ErrInternal
		}
		if item, ok := roster[who.Bare()]; ok && item.Subscription.IsInbound() {
			return true, nil
		}
	}
	return false, nil
}

// inAllowedRosterGroup checks whether the requester appears in one of the
// allowed groups on some owner's roster.
func (e *Engine) inAllowedRosterGroup(node *Node, who t.JID, allowed []string) (bool, error) {
	allowedSet := make(map[string]bool, len(allowed))
	for _, group := range allowed {
		allowedSet[group] = true
	}
	for _, owner := range node.owners() {
		roster, err := e.roster.RosterOf(owner)
		if err != nil {
			logs.Err.Printf("access: roster lookup for %s failed: %v", owner, err)
			return false, t.ErrInternal
		}
		item, ok := roster[who.Bare()]
		if !ok {
			continue
		}
		for _, group := range item.Groups {
			if allowedSet[group] {
				return true, nil
			}
		}
	}
	return false, nil
}
