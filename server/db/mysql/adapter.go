//go:build mysql
// +build mysql

// Package mysql is a database adapter for MySQL.
package mysql

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	ms "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/xmpub/pubsub/server/store"
	t "github.com/xmpub/pubsub/server/store/types"
)

// adapter holds MySQL connection data.
type adapter struct {
	db     *sqlx.DB
	dsn    string
	dbName string
}

const (
	defaultDSN      = "root:@tcp(localhost:3306)/pubsub?parseTime=true"
	defaultDatabase = "pubsub"

	adapterName = "mysql"
)

type configType struct {
	DSN    string `json:"dsn,omitempty"`
	DBName string `json:"database,omitempty"`
}

// Open initializes database connection.
func (a *adapter) Open(jsonconfig json.RawMessage) error {
	if a.db != nil {
		return errors.New("mysql adapter is already connected")
	}

	var err error
	var config configType
	if len(jsonconfig) > 0 {
		if err = json.Unmarshal(jsonconfig, &config); err != nil {
			return errors.New("mysql adapter failed to parse config: " + err.Error())
		}
	}

	a.dsn = config.DSN
	if a.dsn == "" {
		a.dsn = defaultDSN
	}
	a.dbName = config.DBName
	if a.dbName == "" {
		a.dbName = defaultDatabase
	}

	a.db, err = sqlx.Open("mysql", a.dsn)
	if err != nil {
		return err
	}

	return a.db.Ping()
}

// Close closes the underlying database connection.
func (a *adapter) Close() error {
	var err error
	if a.db != nil {
		err = a.db.Close()
		a.db = nil
	}
	return err
}

// IsOpen returns true if connection to database has been established.
// It does not check if connection is actually live.
func (a *adapter) IsOpen() bool {
	return a.db != nil
}

// GetName returns string that adapter uses to register itself with store.
func (a *adapter) GetName() string {
	return adapterName
}

// Stats returns connection pool stats.
func (a *adapter) Stats() interface{} {
	if a.db == nil {
		return nil
	}
	return a.db.Stats()
}

// CreateDb initializes the storage. Dropping the database requires identical
// DSN rights; tables are created in the database named in the DSN.
func (a *adapter) CreateDb(reset bool) error {
	if reset {
		if _, err := a.db.Exec("DROP DATABASE IF EXISTS " + a.dbName); err != nil {
			return err
		}
		if _, err := a.db.Exec("CREATE DATABASE " + a.dbName + " CHARACTER SET utf8mb4"); err != nil {
			return err
		}
		if _, err := a.db.Exec("USE " + a.dbName); err != nil {
			return err
		}
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS nodes(
			id        BIGINT UNSIGNED NOT NULL,
			createdat DATETIME(3) NOT NULL,
			updatedat DATETIME(3) NOT NULL,
			service   VARCHAR(1023) CHARACTER SET ascii NOT NULL,
			name      VARCHAR(1023) CHARACTER SET ascii NOT NULL,
			creator   VARCHAR(1023) CHARACTER SET ascii NOT NULL,
			config    JSON,
			PRIMARY KEY(id),
			UNIQUE INDEX nodes_service_name(service(255), name(255))
		)`,
		`CREATE TABLE IF NOT EXISTS affiliations(
			nodeid BIGINT UNSIGNED NOT NULL,
			jid    VARCHAR(1023) CHARACTER SET ascii NOT NULL,
			aff    VARCHAR(16) NOT NULL,
			PRIMARY KEY(nodeid, jid(255)),
			FOREIGN KEY(nodeid) REFERENCES nodes(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS subscriptions(
			nodeid BIGINT UNSIGNED NOT NULL,
			jid    VARCHAR(1023) CHARACTER SET ascii NOT NULL,
			sub    VARCHAR(16) NOT NULL,
			subid  VARCHAR(24) CHARACTER SET ascii NOT NULL,
			PRIMARY KEY(nodeid, jid(255)),
			FOREIGN KEY(nodeid) REFERENCES nodes(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS items(
			nodeid    BIGINT UNSIGNED NOT NULL,
			id        VARCHAR(255) CHARACTER SET ascii NOT NULL,
			createdat DATETIME(3) NOT NULL,
			updatedat DATETIME(3) NOT NULL,
			publisher VARCHAR(1023) CHARACTER SET ascii NOT NULL,
			archiveid VARCHAR(24) CHARACTER SET ascii NOT NULL,
			payload   MEDIUMTEXT,
			PRIMARY KEY(nodeid, id),
			INDEX items_updatedat(nodeid, updatedat),
			FOREIGN KEY(nodeid) REFERENCES nodes(id) ON DELETE CASCADE
		)`,
	}
	for _, stmt := range stmts {
		if _, err := a.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func isDupe(err error) bool {
	if err == nil {
		return false
	}
	var myerr *ms.MySQLError
	return errors.As(err, &myerr) && myerr.Number == 1062
}

func (a *adapter) NodeCreate(node *t.Node) error {
	config, err := json.Marshal(node.Config)
	if err != nil {
		return err
	}
	_, err = a.db.Exec(
		"INSERT INTO nodes(id,createdat,updatedat,service,name,creator,config) VALUES(?,?,?,?,?,?,?)",
		uint64(node.Uid()), node.CreatedAt, node.UpdatedAt,
		string(node.Service), node.Name, string(node.Creator), config)
	if isDupe(err) {
		return t.ErrDuplicate
	}
	return err
}

func (a *adapter) NodeGet(service t.JID, name string) (*t.Node, error) {
	var row struct {
		Id        uint64
		CreatedAt time.Time `db:"createdat"`
		UpdatedAt time.Time `db:"updatedat"`
		Service   string
		Name      string
		Creator   string
		Config    []byte
	}
	err := a.db.Get(&row,
		"SELECT id,createdat,updatedat,service,name,creator,config FROM nodes WHERE service=? AND name=?",
		string(service), name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	node := &t.Node{
		Service: t.JID(row.Service),
		Name:    row.Name,
		Creator: t.JID(row.Creator),
	}
	node.SetUid(t.Uid(row.Id))
	node.CreatedAt = row.CreatedAt
	node.UpdatedAt = row.UpdatedAt
	if err = json.Unmarshal(row.Config, &node.Config); err != nil {
		return nil, err
	}
	return node, nil
}

func (a *adapter) NodeConfigUpdate(node t.Uid, config t.NodeConfig) error {
	raw, err := json.Marshal(config)
	if err != nil {
		return err
	}
	res, err := a.db.Exec("UPDATE nodes SET updatedat=?,config=? WHERE id=?",
		t.TimeNow(), raw, uint64(node))
	if err != nil {
		return err
	}
	if count, _ := res.RowsAffected(); count == 0 {
		return t.ErrNotFound
	}
	return nil
}

func (a *adapter) NodeDelete(node t.Uid) error {
	res, err := a.db.Exec("DELETE FROM nodes WHERE id=?", uint64(node))
	if err != nil {
		return err
	}
	if count, _ := res.RowsAffected(); count == 0 {
		return t.ErrNotFound
	}
	return nil
}

func (a *adapter) NodeCount(service t.JID) (int, error) {
	var count int
	err := a.db.Get(&count, "SELECT COUNT(*) FROM nodes WHERE service=?", string(service))
	return count, err
}

func (a *adapter) NodesForService(service t.JID) ([]string, error) {
	var names []string
	err := a.db.Select(&names,
		"SELECT name FROM nodes WHERE service=? ORDER BY name", string(service))
	return names, err
}

func (a *adapter) ChildNodes(service t.JID, parent string) ([]string, error) {
	var names []string
	var err error
	if parent == "" {
		err = a.db.Select(&names,
			`SELECT name FROM nodes WHERE service=? AND
				(config->>'$.collection' IS NULL OR config->>'$.collection'='') ORDER BY name`,
			string(service))
	} else {
		err = a.db.Select(&names,
			"SELECT name FROM nodes WHERE service=? AND config->>'$.collection'=? ORDER BY name",
			string(service), parent)
	}
	return names, err
}

func (a *adapter) ServiceDelete(service t.JID) error {
	_, err := a.db.Exec("DELETE FROM nodes WHERE service=?", string(service))
	return err
}

func (a *adapter) AffiliationsGet(node t.Uid) (map[t.JID]t.Affiliation, error) {
	rows, err := a.db.Queryx("SELECT jid,aff FROM affiliations WHERE nodeid=?", uint64(node))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[t.JID]t.Affiliation)
	for rows.Next() {
		var jid, aff string
		if err = rows.Scan(&jid, &aff); err != nil {
			return nil, err
		}
		var parsed t.Affiliation
		if err = parsed.UnmarshalText([]byte(aff)); err != nil {
			return nil, err
		}
		out[t.JID(jid)] = parsed
	}
	return out, rows.Err()
}

func (a *adapter) AffiliationsUpsert(node t.Uid, changes map[t.JID]t.Affiliation) error {
	tx, err := a.db.Beginx()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for jid, aff := range changes {
		if aff == t.AffNone {
			_, err = tx.Exec("DELETE FROM affiliations WHERE nodeid=? AND jid=?",
				uint64(node), string(jid))
		} else {
			_, err = tx.Exec(
				`INSERT INTO affiliations(nodeid,jid,aff) VALUES(?,?,?)
					ON DUPLICATE KEY UPDATE aff=VALUES(aff)`,
				uint64(node), string(jid), aff.String())
		}
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (a *adapter) SubscriptionsGet(node t.Uid) (map[t.JID]t.SubState, error) {
	rows, err := a.db.Queryx("SELECT jid,sub,subid FROM subscriptions WHERE nodeid=?", uint64(node))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[t.JID]t.SubState)
	for rows.Next() {
		var jid, sub, subid string
		if err = rows.Scan(&jid, &sub, &subid); err != nil {
			return nil, err
		}
		var parsed t.Subscription
		if err = parsed.UnmarshalText([]byte(sub)); err != nil {
			return nil, err
		}
		out[t.JID(jid)] = t.SubState{Sub: parsed, Id: subid}
	}
	return out, rows.Err()
}

func (a *adapter) SubscriptionsUpsert(node t.Uid, changes map[t.JID]t.SubState) error {
	tx, err := a.db.Beginx()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for jid, st := range changes {
		if st.Sub == t.SubNone {
			_, err = tx.Exec("DELETE FROM subscriptions WHERE nodeid=? AND jid=?",
				uint64(node), string(jid))
		} else {
			_, err = tx.Exec(
				`INSERT INTO subscriptions(nodeid,jid,sub,subid) VALUES(?,?,?,?)
					ON DUPLICATE KEY UPDATE sub=VALUES(sub), subid=VALUES(subid)`,
				uint64(node), string(jid), st.Sub.String(), st.Id)
		}
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (a *adapter) ItemSave(item *t.Item) error {
	_, err := a.db.Exec(
		`INSERT INTO items(nodeid,id,createdat,updatedat,publisher,archiveid,payload)
			VALUES(?,?,?,?,?,?,?)
			ON DUPLICATE KEY UPDATE
				updatedat=VALUES(updatedat), publisher=VALUES(publisher), payload=VALUES(payload)`,
		uint64(item.Node), item.Id, item.CreatedAt, item.UpdatedAt,
		string(item.Publisher), item.ArchiveId, item.Payload)
	return err
}

func (a *adapter) ItemGet(node t.Uid, id string) (*t.Item, error) {
	var row struct {
		Id        string
		CreatedAt time.Time `db:"createdat"`
		UpdatedAt time.Time `db:"updatedat"`
		Publisher string
		ArchiveId string `db:"archiveid"`
		Payload   string
	}
	err := a.db.Get(&row,
		"SELECT id,createdat,updatedat,publisher,archiveid,payload FROM items WHERE nodeid=? AND id=?",
		uint64(node), id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t.Item{
		Id:        row.Id,
		Node:      node,
		Publisher: t.JID(row.Publisher),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
		ArchiveId: row.ArchiveId,
		Payload:   row.Payload,
	}, nil
}

func (a *adapter) ItemDelete(node t.Uid, id string) error {
	res, err := a.db.Exec("DELETE FROM items WHERE nodeid=? AND id=?", uint64(node), id)
	if err != nil {
		return err
	}
	if count, _ := res.RowsAffected(); count == 0 {
		return t.ErrNotFound
	}
	return nil
}

func orderColumn(ordering t.CollectionItemsOrdering) string {
	if ordering == t.OrderByCreationDate {
		return "createdat"
	}
	return "updatedat"
}

func (a *adapter) ItemIds(node t.Uid, ordering t.CollectionItemsOrdering, since *time.Time) ([]string, error) {
	var sb strings.Builder
	sb.WriteString("SELECT id FROM items WHERE nodeid=?")
	args := []interface{}{uint64(node)}
	if since != nil {
		sb.WriteString(" AND updatedat>=?")
		args = append(args, *since)
	}
	sb.WriteString(" ORDER BY " + orderColumn(ordering) + " DESC, id DESC")

	var ids []string
	err := a.db.Select(&ids, sb.String(), args...)
	return ids, err
}

func (a *adapter) ItemMetaAll(node t.Uid, ordering t.CollectionItemsOrdering) ([]t.ItemMeta, error) {
	rows, err := a.db.Queryx(
		"SELECT id,createdat,updatedat,publisher,archiveid FROM items WHERE nodeid=? ORDER BY "+
			orderColumn(ordering)+" DESC, id DESC", uint64(node))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metas []t.ItemMeta
	for rows.Next() {
		var meta t.ItemMeta
		var publisher string
		if err = rows.Scan(&meta.Id, &meta.CreatedAt, &meta.UpdatedAt, &publisher, &meta.ArchiveId); err != nil {
			return nil, err
		}
		meta.Publisher = t.JID(publisher)
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

func init() {
	store.RegisterAdapter(&adapter{})
}
