// Outbound boundary of the engine: interfaces implemented by the stanza
// transport, the session/presence tracker and the roster service. The engine
// produces fully-formed notification payloads; wire encoding, delivery
// retries and timeouts belong to the transport behind Sender.

package main

import (
	"time"

	"github.com/xmpub/pubsub/server/logs"
	t "github.com/xmpub/pubsub/server/store/types"
)

// Notification event kinds.
const (
	EventItems         = "items"
	EventRetract       = "retract"
	EventPurge         = "purge"
	EventDelete        = "delete"
	EventConfig        = "config"
	EventAssociate     = "associate"
	EventDisassociate  = "disassociate"
	EventSubscription  = "subscription"
	EventAuthorization = "authorization"
)

// Notification is a fully-formed event payload handed to the transport, one
// Send call per recipient.
type Notification struct {
	// Service and node the event originates from.
	Service t.JID
	Node    string
	// One of the Event* kinds.
	Event string
	// Published items for EventItems; the last-item delivery uses a
	// single-element slice.
	Items []*t.Item
	// Ids of retracted items for EventRetract.
	RetractIds []string
	// Name of the originating child node when the event is propagated to a
	// parent collection's subscribers; empty for direct notifications.
	Collection string
	// Child node affected by EventAssociate/EventDisassociate.
	Target string
	// New subscription record for EventSubscription.
	Subscription *t.SubState
	// Entity whose subscription awaits approval, for EventAuthorization.
	Subscriber t.JID
}

// Sender delivers notifications to recipients. Implemented by the excluded
// transport layer.
type Sender interface {
	// Send delivers one notification to one recipient. Errors are
	// per-recipient: the engine logs them and moves on.
	Send(from t.JID, to t.JID, notif *Notification) error
	// HighLoadDelay reports the back-pressure pause to honor before each
	// send, zero when the process is not under memory pressure.
	HighLoadDelay() time.Duration
}

// PresenceTracker answers presence-availability and entity-capability
// queries. Implemented by the session layer.
type PresenceTracker interface {
	// IsAvailable checks if the user has at least one available resource.
	IsAvailable(service t.JID, user t.JID) bool
	// AvailableResources lists the user's currently available full addresses.
	AvailableResources(service t.JID, user t.JID) []t.JID
	// WithFeature lists full addresses which advertise the given disco
	// feature through presence capabilities.
	WithFeature(service t.JID, feature string) []t.JID
}

// Roster looks up roster entries of node owners for the presence and roster
// access models.
type Roster interface {
	RosterOf(owner t.JID) (map[t.JID]t.RosterItem, error)
}

// logSender writes notifications to the log. Default when no transport is
// attached, i.e. in development runs.
type logSender struct{}

func (logSender) Send(from t.JID, to t.JID, notif *Notification) error {
	logs.Info.Printf("deliver: %s -> %s node=%s event=%s items=%d",
		from, to, notif.Node, notif.Event, len(notif.Items))
	return nil
}

func (logSender) HighLoadDelay() time.Duration {
	return 0
}

// nullPresence reports every user as unavailable with no resources.
type nullPresence struct{}

func (nullPresence) IsAvailable(service t.JID, user t.JID) bool {
	return false
}

func (nullPresence) AvailableResources(service t.JID, user t.JID) []t.JID {
	return nil
}

func (nullPresence) WithFeature(service t.JID, feature string) []t.JID {
	return nil
}

// nullRoster reports empty rosters.
type nullRoster struct{}

func (nullRoster) RosterOf(owner t.JID) (map[t.JID]t.RosterItem, error) {
	return nil, nil
}
