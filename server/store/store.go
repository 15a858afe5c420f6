// Package store is a thin mapper layer between the engine and the database
// adapter: it owns the adapter registry, the unique id generator and the
// per-category persistence interfaces the engine (and its tests) talk to.
package store

import (
	"encoding/json"
	"errors"
	"time"

	adapter "github.com/xmpub/pubsub/server/db"
	"github.com/xmpub/pubsub/server/store/types"
)

var adp adapter.Adapter
var availableAdapters = make(map[string]adapter.Adapter)

// Unique ID generator.
var uGen types.UidGenerator

type configType struct {
	// 16-byte key for XTEA. Used to initialize types.UidGenerator.
	UidKey []byte `json:"uid_key"`
	// DB adapter name to use. Should be one of those specified in `Adapters`.
	UseAdapter string `json:"use_adapter"`
	// Configurations for individual adapters.
	Adapters map[string]json.RawMessage `json:"adapters"`
}

func openAdapter(workerId int, jsonconf json.RawMessage) error {
	var config configType
	if err := json.Unmarshal(jsonconf, &config); err != nil {
		return errors.New("store: failed to parse config: " + err.Error())
	}

	if adp == nil {
		if len(config.UseAdapter) > 0 {
			// Adapter name specified explicitly.
			if ad, ok := availableAdapters[config.UseAdapter]; ok {
				adp = ad
			} else {
				return errors.New("store: " + config.UseAdapter + " adapter is not available in this binary")
			}
		} else if len(availableAdapters) == 1 {
			// Default to the only entry in availableAdapters.
			for _, v := range availableAdapters {
				adp = v
			}
		} else {
			return errors.New("store: db adapter is not specified")
		}
	}

	if adp.IsOpen() {
		return errors.New("store: connection is already opened")
	}

	// Initialize snowflake.
	if workerId < 0 || workerId > 1023 {
		return errors.New("store: invalid worker ID")
	}
	if err := uGen.Init(uint(workerId), config.UidKey); err != nil {
		return errors.New("store: failed to init snowflake: " + err.Error())
	}

	var adapterConfig json.RawMessage
	if config.Adapters != nil {
		adapterConfig = config.Adapters[adp.GetName()]
	}

	return adp.Open(adapterConfig)
}

// Open initializes the persistence system. Adapter holds a connection pool
// for a database instance.
func Open(workerId int, jsonconf json.RawMessage) error {
	return openAdapter(workerId, jsonconf)
}

// Close terminates connection to persistent storage.
func Close() error {
	if adp != nil && adp.IsOpen() {
		return adp.Close()
	}
	return nil
}

// IsOpen checks if persistent storage connection has been initialized.
func IsOpen() bool {
	return adp != nil && adp.IsOpen()
}

// GetAdapterName returns the name of the current adapter.
func GetAdapterName() string {
	if adp != nil {
		return adp.GetName()
	}
	return ""
}

// InitDb creates and configures a new database instance. If 'reset' is true
// it will first attempt to drop an existing database.
func InitDb(jsonconf json.RawMessage, reset bool) error {
	if !IsOpen() {
		if err := openAdapter(1, jsonconf); err != nil {
			return err
		}
	}
	return adp.CreateDb(reset)
}

// RegisterAdapter makes a persistence adapter available.
// If Register is called twice for the same adapter or if the adapter is nil,
// it panics.
func RegisterAdapter(a adapter.Adapter) {
	if a == nil {
		panic("store: Register adapter is nil")
	}
	name := a.GetName()
	if _, ok := availableAdapters[name]; ok {
		panic("store: adapter '" + name + "' is already registered")
	}
	availableAdapters[name] = a
}

// GetUid generates a unique ID.
func GetUid() types.Uid {
	return uGen.Get()
}

// GetUidString generates a unique ID as a string.
func GetUidString() string {
	return uGen.GetStr()
}

// DbStats returns a function to call to get db connection stats object.
func DbStats() func() interface{} {
	if adp == nil {
		return nil
	}
	return adp.Stats
}

// NodesPersistenceInterface is an interface which defines methods for
// persistent storage of nodes: metadata, configuration, affiliations and
// subscriptions.
type NodesPersistenceInterface interface {
	Create(node *types.Node) error
	Get(service types.JID, name string) (*types.Node, error)
	UpdateConfig(node types.Uid, config types.NodeConfig) error
	Delete(node types.Uid) error
	Count(service types.JID) (int, error)
	NamesForService(service types.JID) ([]string, error)
	Children(service types.JID, parent string) ([]string, error)
	GetAffiliations(node types.Uid) (map[types.JID]types.Affiliation, error)
	SaveAffiliations(node types.Uid, changes map[types.JID]types.Affiliation) error
	GetSubscriptions(node types.Uid) (map[types.JID]types.SubState, error)
	SaveSubscriptions(node types.Uid, changes map[types.JID]types.SubState) error
}

// ItemsPersistenceInterface is an interface which defines methods for
// persistent storage of published items.
type ItemsPersistenceInterface interface {
	Save(item *types.Item) error
	Get(node types.Uid, id string) (*types.Item, error)
	Delete(node types.Uid, id string) error
	IdsByOrdering(node types.Uid, ordering types.CollectionItemsOrdering, since *time.Time) ([]string, error)
	MetaAll(node types.Uid, ordering types.CollectionItemsOrdering) ([]types.ItemMeta, error)
}

// ServicesPersistenceInterface is an interface which defines methods for
// service-wide storage operations.
type ServicesPersistenceInterface interface {
	Delete(service types.JID) error
}

// Nodes is the singleton instance of NodesPersistenceInterface.
var Nodes NodesPersistenceInterface = nodesMapper{}

// Items is the singleton instance of ItemsPersistenceInterface.
var Items ItemsPersistenceInterface = itemsMapper{}

// Services is the singleton instance of ServicesPersistenceInterface.
var Services ServicesPersistenceInterface = servicesMapper{}

type nodesMapper struct{}

// Create assigns a key to the node record and inserts it.
func (nodesMapper) Create(node *types.Node) error {
	node.SetUid(GetUid())
	node.InitTimes()
	node.Config.Normalize()
	return adp.NodeCreate(node)
}

// Get loads node metadata and configuration. Returns (nil, nil) if missing.
func (nodesMapper) Get(service types.JID, name string) (*types.Node, error) {
	return adp.NodeGet(service, name)
}

// UpdateConfig replaces the stored node configuration.
func (nodesMapper) UpdateConfig(node types.Uid, config types.NodeConfig) error {
	return adp.NodeConfigUpdate(node, config)
}

// Delete removes the node and its dependent rows.
func (nodesMapper) Delete(node types.Uid) error {
	return adp.NodeDelete(node)
}

// Count returns the number of nodes of a service.
func (nodesMapper) Count(service types.JID) (int, error) {
	return adp.NodeCount(service)
}

// NamesForService lists all node names of a service.
func (nodesMapper) NamesForService(service types.JID) ([]string, error) {
	return adp.NodesForService(service)
}

// Children lists child node names; empty parent lists roots.
func (nodesMapper) Children(service types.JID, parent string) ([]string, error) {
	return adp.ChildNodes(service, parent)
}

// GetAffiliations loads stored affiliations of a node.
func (nodesMapper) GetAffiliations(node types.Uid) (map[types.JID]types.Affiliation, error) {
	return adp.AffiliationsGet(node)
}

// SaveAffiliations persists changed affiliations.
func (nodesMapper) SaveAffiliations(node types.Uid, changes map[types.JID]types.Affiliation) error {
	if len(changes) == 0 {
		return nil
	}
	return adp.AffiliationsUpsert(node, changes)
}

// GetSubscriptions loads stored subscriptions of a node.
func (nodesMapper) GetSubscriptions(node types.Uid) (map[types.JID]types.SubState, error) {
	return adp.SubscriptionsGet(node)
}

// SaveSubscriptions persists changed subscriptions.
func (nodesMapper) SaveSubscriptions(node types.Uid, changes map[types.JID]types.SubState) error {
	if len(changes) == 0 {
		return nil
	}
	return adp.SubscriptionsUpsert(node, changes)
}

type itemsMapper struct{}

// Save stamps times and an archive id on the item and upserts it.
func (itemsMapper) Save(item *types.Item) error {
	now := types.TimeNow()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	if item.ArchiveId == "" {
		item.ArchiveId = GetUid().ArchiveId()
	}
	return adp.ItemSave(item)
}

// Get loads a single item. Returns (nil, nil) if absent.
func (itemsMapper) Get(node types.Uid, id string) (*types.Item, error) {
	return adp.ItemGet(node, id)
}

// Delete removes a single item.
func (itemsMapper) Delete(node types.Uid, id string) error {
	return adp.ItemDelete(node, id)
}

// IdsByOrdering lists item ids, most recent first.
func (itemsMapper) IdsByOrdering(node types.Uid, ordering types.CollectionItemsOrdering, since *time.Time) ([]string, error) {
	return adp.ItemIds(node, ordering, since)
}

// MetaAll lists item metadata, most recent first.
func (itemsMapper) MetaAll(node types.Uid, ordering types.CollectionItemsOrdering) ([]types.ItemMeta, error) {
	return adp.ItemMetaAll(node, ordering)
}

type servicesMapper struct{}

// Delete removes all data of a service.
func (servicesMapper) Delete(service types.JID) error {
	return adp.ServiceDelete(service)
}
