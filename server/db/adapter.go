// Package adapter contains the interfaces to be implemented by the database adapter.
package adapter

import (
	"encoding/json"
	"time"

	t "github.com/xmpub/pubsub/server/store/types"
)

// Adapter is the interface that must be implemented by a database adapter.
// The current schema supports a single connection by database type.
//
// Calls are synchronous; any of them may fail with an error which the engine
// treats as non-fatal but blocking for that one operation.
type Adapter interface {
	// General

	// Open and configure the adapter.
	Open(config json.RawMessage) error
	// Close the adapter.
	Close() error
	// IsOpen checks if the adapter is ready for use.
	IsOpen() bool
	// GetName returns the name of the adapter.
	GetName() string
	// CreateDb creates the database optionally dropping an existing database first.
	CreateDb(reset bool) error
	// Stats returns the DB connection stats object.
	Stats() interface{}

	// Node management

	// NodeCreate inserts a new node record, assigning its key. Fails with
	// types.ErrDuplicate if (service, name) already exists.
	NodeCreate(node *t.Node) error
	// NodeGet loads node metadata and configuration by (service, name).
	// Returns (nil, nil) if the node does not exist.
	NodeGet(service t.JID, name string) (*t.Node, error)
	// NodeConfigUpdate replaces the stored configuration of the node.
	NodeConfigUpdate(node t.Uid, config t.NodeConfig) error
	// NodeDelete removes the node record together with its affiliations,
	// subscriptions and items.
	NodeDelete(node t.Uid) error
	// NodeCount returns the total number of nodes of a service.
	NodeCount(service t.JID) (int, error)
	// NodesForService lists all node names of a service.
	NodesForService(service t.JID) ([]string, error)
	// ChildNodes lists names of nodes whose parent collection is the given
	// node name. Empty parent lists root nodes.
	ChildNodes(service t.JID, parent string) ([]string, error)
	// ServiceDelete removes all data of a service.
	ServiceDelete(service t.JID) error

	// Affiliations and subscriptions

	// AffiliationsGet loads all stored (non-default) affiliations of a node.
	AffiliationsGet(node t.Uid) (map[t.JID]t.Affiliation, error)
	// AffiliationsUpsert writes changed affiliations. AffNone removes the row.
	AffiliationsUpsert(node t.Uid, changes map[t.JID]t.Affiliation) error
	// SubscriptionsGet loads all stored subscriptions of a node.
	SubscriptionsGet(node t.Uid) (map[t.JID]t.SubState, error)
	// SubscriptionsUpsert writes changed subscriptions. SubNone removes the row.
	SubscriptionsUpsert(node t.Uid, changes map[t.JID]t.SubState) error

	// Items

	// ItemSave inserts or updates an item keyed by (node, id).
	ItemSave(item *t.Item) error
	// ItemGet loads a single item. Returns (nil, nil) if absent.
	ItemGet(node t.Uid, id string) (*t.Item, error)
	// ItemDelete removes a single item.
	ItemDelete(node t.Uid, id string) error
	// ItemIds lists item ids ordered by the given timestamp column, most
	// recent first, optionally limited to items updated since the timestamp.
	ItemIds(node t.Uid, ordering t.CollectionItemsOrdering, since *time.Time) ([]string, error)
	// ItemMetaAll lists metadata of all items of a node, most recent first
	// by the given ordering.
	ItemMetaAll(node t.Uid, ordering t.CollectionItemsOrdering) ([]t.ItemMeta, error)
}
