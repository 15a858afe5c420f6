package types

import (
	"errors"
)

// NodeType distinguishes leaf nodes (hold items) from collection nodes
// (hold child nodes). Immutable after creation.
type NodeType string

const (
	NodeTypeLeaf       NodeType = "leaf"
	NodeTypeCollection NodeType = "collection"
)

// AccessModel gates who may subscribe to and retrieve from a node.
type AccessModel string

const (
	AccessOpen      AccessModel = "open"
	AccessPresence  AccessModel = "presence"
	AccessRoster    AccessModel = "roster"
	AccessWhitelist AccessModel = "whitelist"
	AccessAuthorize AccessModel = "authorize"
)

// PublisherModel gates who may publish items to a node.
type PublisherModel string

const (
	PublisherModelPublishers  PublisherModel = "publishers"
	PublisherModelSubscribers PublisherModel = "subscribers"
	PublisherModelOpen        PublisherModel = "open"
)

// SendLastPublishedItem controls delivery of the most recent item to
// newly interested subscribers.
type SendLastPublishedItem string

const (
	SendLastNever         SendLastPublishedItem = "never"
	SendLastOnSub         SendLastPublishedItem = "on_sub"
	SendLastOnSubPresence SendLastPublishedItem = "on_sub_and_presence"
)

// CollectionItemsOrdering selects the timestamp items are ordered by when
// listing or trimming, most recent first.
type CollectionItemsOrdering string

const (
	OrderByCreationDate CollectionItemsOrdering = "byCreationDate"
	OrderByUpdateDate   CollectionItemsOrdering = "byUpdateDate"
)

// NodeConfig is the typed configuration bag of a single node. One concrete
// record for both node types; fields which make no sense for the type are
// ignored by the engine (a collection has no items to retain).
type NodeConfig struct {
	NodeType NodeType `json:"node_type"`
	Title    string   `json:"title,omitempty"`

	AccessModel    AccessModel    `json:"access_model"`
	PublisherModel PublisherModel `json:"publisher_model"`

	// Maximum number of persisted items, 0 = unlimited.
	MaxItems     int  `json:"max_items"`
	PersistItems bool `json:"persist_items"`

	// Deliver to available full resources rather than bare addresses.
	PresenceBasedDelivery bool `json:"presence_based_delivery"`
	// Drop member subscriptions whose owner shows no available presence.
	PresenceExpired bool `json:"presence_expired,omitempty"`

	SendLastPublishedItem SendLastPublishedItem `json:"send_last_published_item"`

	// Roster groups the roster access model admits.
	RosterGroupsAllowed []string `json:"roster_groups_allowed,omitempty"`
	// Domains admitted by the open access model; empty = unrestricted.
	Domains []string `json:"domains,omitempty"`

	// Name of the parent collection node, empty for root.
	Collection string `json:"collection,omitempty"`

	ItemsOrdering CollectionItemsOrdering `json:"items_ordering,omitempty"`

	// Disco feature which gates capability-filtered delivery, e.g.
	// "urn:example:tides+notify". Empty disables capability filtering.
	NotifyFeature string `json:"notify_feature,omitempty"`

	// Reference to the body transform used by the excluded renderer.
	BodyTransform string `json:"body_xslt,omitempty"`
}

// DefaultNodeConfig returns the configuration a node gets when the owner
// supplies none.
func DefaultNodeConfig(nt NodeType) NodeConfig {
	return NodeConfig{
		NodeType:              nt,
		AccessModel:           AccessOpen,
		PublisherModel:        PublisherModelPublishers,
		PersistItems:          nt == NodeTypeLeaf,
		SendLastPublishedItem: SendLastNever,
		ItemsOrdering:         OrderByUpdateDate,
	}
}

// Normalize fills zero-valued enum fields with defaults.
func (c *NodeConfig) Normalize() {
	if c.AccessModel == "" {
		c.AccessModel = AccessOpen
	}
	if c.PublisherModel == "" {
		c.PublisherModel = PublisherModelPublishers
	}
	if c.SendLastPublishedItem == "" {
		c.SendLastPublishedItem = SendLastNever
	}
	if c.ItemsOrdering == "" {
		c.ItemsOrdering = OrderByUpdateDate
	}
}

// Validate checks enum fields and numeric ranges. Returns ErrMalformed
// wrapped with the offending field.
func (c *NodeConfig) Validate() error {
	switch c.NodeType {
	case NodeTypeLeaf, NodeTypeCollection:
	default:
		return badConfig("node_type")
	}
	switch c.AccessModel {
	case AccessOpen, AccessPresence, AccessRoster, AccessWhitelist, AccessAuthorize:
	default:
		return badConfig("access_model")
	}
	switch c.PublisherModel {
	case PublisherModelPublishers, PublisherModelSubscribers, PublisherModelOpen:
	default:
		return badConfig("publisher_model")
	}
	switch c.SendLastPublishedItem {
	case SendLastNever, SendLastOnSub, SendLastOnSubPresence:
	default:
		return badConfig("send_last_published_item")
	}
	switch c.ItemsOrdering {
	case OrderByCreationDate, OrderByUpdateDate:
	default:
		return badConfig("items_ordering")
	}
	if c.MaxItems < 0 {
		return badConfig("max_items")
	}
	if c.AccessModel == AccessRoster && len(c.RosterGroupsAllowed) == 0 {
		return badConfig("roster_groups_allowed")
	}
	return nil
}

func badConfig(field string) error {
	return errors.Join(ErrMalformed, errors.New("node config: "+field))
}
