package main

import (
	"testing"
	"time"

	"github.com/golang/mock/gomock"

	"github.com/xmpub/pubsub/server/store"
	"github.com/xmpub/pubsub/server/store/mock_store"
	t "github.com/xmpub/pubsub/server/store/types"
)

const testService = t.JID("pubsub.example.org")

type sentNotification struct {
	to    t.JID
	notif *Notification
}

type testSender struct {
	sent chan sentNotification
}

func newTestSender() *testSender {
	return &testSender{sent: make(chan sentNotification, 64)}
}

func (s *testSender) Send(from t.JID, to t.JID, notif *Notification) error {
	s.sent <- sentNotification{to, notif}
	return nil
}

func (s *testSender) HighLoadDelay() time.Duration {
	return 0
}

// collect waits for exactly n deliveries keyed by recipient.
func (s *testSender) collect(tb testing.TB, n int) map[t.JID]*Notification {
	tb.Helper()
	out := make(map[t.JID]*Notification, n)
	for i := 0; i < n; i++ {
		select {
		case msg := <-s.sent:
			out[msg.to] = msg.notif
		case <-time.After(2 * time.Second):
			tb.Fatalf("timed out waiting for delivery %d of %d", i+1, n)
		}
	}
	return out
}

func (s *testSender) expectNoMore(tb testing.TB) {
	tb.Helper()
	select {
	case msg := <-s.sent:
		tb.Fatalf("unexpected delivery to %s: %+v", msg.to, msg.notif)
	case <-time.After(100 * time.Millisecond):
	}
}

type testPresence struct {
	// bare address -> available full addresses.
	resources map[t.JID][]t.JID
	// disco feature -> advertising full addresses.
	features map[string][]t.JID
}

func (p testPresence) IsAvailable(service t.JID, user t.JID) bool {
	return len(p.resources[user.Bare()]) > 0
}

func (p testPresence) AvailableResources(service t.JID, user t.JID) []t.JID {
	return p.resources[user.Bare()]
}

func (p testPresence) WithFeature(service t.JID, feature string) []t.JID {
	return p.features[feature]
}

type testRoster map[t.JID]map[t.JID]t.RosterItem

func (r testRoster) RosterOf(owner t.JID) (map[t.JID]t.RosterItem, error) {
	return r[owner], nil
}

// idleSaver returns a saver whose queue is never drained, so MarkDirty does
// not reach storage during the test.
func idleSaver() *nodeSaver {
	return &nodeSaver{queue: make(chan *Node, 16), retries: 1}
}

func makeNode(name string, uid uint64, config t.NodeConfig,
	affs map[t.JID]t.Affiliation, subs map[t.JID]t.SubState) *Node {

	rec := &t.Node{Service: testService, Name: name, Creator: "owner@example.org", Config: config}
	rec.SetUid(t.Uid(uid))
	rec.InitTimes()
	return nodeFromRecord(rec, affs, subs)
}

func subscribed(id string) t.SubState {
	return t.SubState{Sub: t.SubSubscribed, Id: id}
}

func TestFanOutPropagatesOneCollectionLevel(t_ *testing.T) {
	cache := newNodeCache(16, idleSaver())
	sender := newTestSender()
	nf := newNotifier(sender, testPresence{}, testRoster{}, cache, 2, false)
	defer nf.stop()

	grandConfig := t.DefaultNodeConfig(t.NodeTypeCollection)
	grand := makeNode("grand", 1, grandConfig, nil,
		map[t.JID]t.SubState{"gary@example.org": subscribed("sub-g")})

	parentConfig := t.DefaultNodeConfig(t.NodeTypeCollection)
	parentConfig.Collection = "grand"
	parent := makeNode("parent", 2, parentConfig, nil,
		map[t.JID]t.SubState{"pam@example.org": subscribed("sub-p")})

	leafConfig := t.DefaultNodeConfig(t.NodeTypeLeaf)
	leafConfig.Collection = "parent"
	leaf := makeNode("tides", 3, leafConfig, nil,
		map[t.JID]t.SubState{"lee@example.org": subscribed("sub-l")})

	cache.Add(grand)
	cache.Add(parent)
	cache.Add(leaf)

	items := []*t.Item{{Id: "i1", Node: leaf.key, Publisher: "owner@example.org", Payload: "<x/>"}}
	nf.Publish(leaf, items)

	got := sentNotifications(t_, sender, 2)
	direct := got["lee@example.org"]
	if direct == nil || direct.Node != "tides" || direct.Collection != "" {
		t_.Errorf("direct notification wrong: %+v", direct)
	}
	// The parent's subscriber sees the event attributed to the parent with
	// the child named in the Collection header.
	viaParent := got["pam@example.org"]
	if viaParent == nil || viaParent.Node != "parent" || viaParent.Collection != "tides" {
		t_.Errorf("collection notification wrong: %+v", viaParent)
	}
	// Propagation stops after one level: the grandparent's subscriber
	// hears nothing.
	sender.expectNoMore(t_)
}

func sentNotifications(tb testing.TB, sender *testSender, n int) map[t.JID]*Notification {
	tb.Helper()
	return sender.collect(tb, n)
}

func TestFanOutSkipsOutcasts(t_ *testing.T) {
	cache := newNodeCache(16, idleSaver())
	sender := newTestSender()
	nf := newNotifier(sender, testPresence{}, testRoster{}, cache, 2, false)
	defer nf.stop()

	node := makeNode("tides", 1, t.DefaultNodeConfig(t.NodeTypeLeaf),
		map[t.JID]t.Affiliation{"mallory@example.org": t.AffOutcast},
		map[t.JID]t.SubState{
			"mallory@example.org": subscribed("sub-m"),
			"bob@example.org":     subscribed("sub-b"),
		})
	cache.Add(node)

	nf.Publish(node, []*t.Item{{Id: "i1", Node: node.key}})

	got := sender.collect(t_, 1)
	if got["bob@example.org"] == nil {
		t_.Errorf("expected delivery to bob, got %v", got)
	}
	sender.expectNoMore(t_)
}

func TestFanOutPresenceBasedDelivery(t_ *testing.T) {
	cache := newNodeCache(16, idleSaver())
	sender := newTestSender()
	presence := testPresence{resources: map[t.JID][]t.JID{
		"bob@example.org": {"bob@example.org/phone", "bob@example.org/desk"},
	}}
	nf := newNotifier(sender, presence, testRoster{}, cache, 2, false)
	defer nf.stop()

	config := t.DefaultNodeConfig(t.NodeTypeLeaf)
	config.PresenceBasedDelivery = true
	node := makeNode("tides", 1, config, nil, map[t.JID]t.SubState{
		"bob@example.org":   subscribed("sub-b"),
		"alice@example.org": subscribed("sub-a"), // no available resources
	})
	cache.Add(node)

	nf.Publish(node, []*t.Item{{Id: "i1", Node: node.key}})

	got := sender.collect(t_, 2)
	if got["bob@example.org/phone"] == nil || got["bob@example.org/desk"] == nil {
		t_.Errorf("expected delivery to both of bob's resources, got %v", got)
	}
	sender.expectNoMore(t_)
}

func TestFanOutCapabilityFiltered(t_ *testing.T) {
	const feature = "urn:example:tides+notify"

	cache := newNodeCache(16, idleSaver())
	sender := newTestSender()
	presence := testPresence{
		resources: map[t.JID][]t.JID{"bob@example.org": {"bob@example.org/phone"}},
		features:  map[string][]t.JID{feature: {"carol@example.org/web"}},
	}
	roster := testRoster{
		"owner@example.org": {
			"carol@example.org": {Subscription: t.RosterSubBoth, Groups: []string{"friends"}},
		},
	}
	nf := newNotifier(sender, presence, roster, cache, 2, true)
	defer nf.stop()

	// Open model: a non-subscribed advertiser is not delivered to.
	config := t.DefaultNodeConfig(t.NodeTypeLeaf)
	config.PresenceBasedDelivery = true
	config.NotifyFeature = feature
	open := makeNode("open-tides", 1, config, nil,
		map[t.JID]t.SubState{"bob@example.org": subscribed("sub-b")})
	cache.Add(open)

	nf.Publish(open, []*t.Item{{Id: "i1", Node: open.key}})
	got := sender.collect(t_, 1)
	if got["bob@example.org/phone"] == nil {
		t_.Errorf("expected delivery to bob only, got %v", got)
	}
	sender.expectNoMore(t_)

	// Roster model: the advertiser is admitted through the owner's roster
	// group.
	config.AccessModel = t.AccessRoster
	config.RosterGroupsAllowed = []string{"friends"}
	gated := makeNode("roster-tides", 2, config,
		map[t.JID]t.Affiliation{"owner@example.org": t.AffOwner},
		map[t.JID]t.SubState{"bob@example.org": subscribed("sub-b")})
	cache.Add(gated)

	nf.Publish(gated, []*t.Item{{Id: "i2", Node: gated.key}})
	got = sender.collect(t_, 2)
	if got["bob@example.org/phone"] == nil || got["carol@example.org/web"] == nil {
		t_.Errorf("expected deliveries to bob and carol, got %v", got)
	}
	sender.expectNoMore(t_)
}

func TestFanOutExpiresOfflineMemberSubscriptions(t_ *testing.T) {
	cache := newNodeCache(16, idleSaver())
	sender := newTestSender()
	nf := newNotifier(sender, testPresence{}, testRoster{}, cache, 2, false)
	defer nf.stop()

	config := t.DefaultNodeConfig(t.NodeTypeLeaf)
	config.PresenceExpired = true
	node := makeNode("tides", 1, config,
		map[t.JID]t.Affiliation{
			"bob@example.org":   t.AffMember,
			"alice@example.org": t.AffPublisher,
		},
		map[t.JID]t.SubState{
			"bob@example.org":   subscribed("sub-b"),
			"alice@example.org": subscribed("sub-a"),
		})
	cache.Add(node)

	nf.Publish(node, []*t.Item{{Id: "i1", Node: node.key}})

	// Offline member is dropped; the publisher affiliation is exempt.
	got := sender.collect(t_, 1)
	if got["alice@example.org"] == nil {
		t_.Errorf("expected delivery to alice only, got %v", got)
	}
	sender.expectNoMore(t_)

	if _, ok := node.subs.Values()["bob@example.org"]; ok {
		t_.Error("expired subscription still present")
	}
	if !node.subs.IsChanged() {
		t_.Error("expiry was not marked for persistence")
	}
}

func TestSendLastPublished(t_ *testing.T) {
	ctrl := gomock.NewController(t_)
	m := mock_store.NewMockItemsPersistenceInterface(ctrl)
	origItems := store.Items
	store.Items = m
	defer func() {
		store.Items = origItems
		ctrl.Finish()
	}()

	cache := newNodeCache(16, idleSaver())
	sender := newTestSender()
	nf := newNotifier(sender, testPresence{}, testRoster{}, cache, 2, false)
	defer nf.stop()

	node := makeNode("tides", 1, t.DefaultNodeConfig(t.NodeTypeLeaf), nil, nil)

	m.EXPECT().IdsByOrdering(node.key, t.OrderByUpdateDate, gomock.Nil()).Return([]string{"i2", "i1"}, nil)
	m.EXPECT().Get(node.key, "i2").Return(&t.Item{Id: "i2", Node: node.key}, nil)

	allow := func(*Node, t.JID) error { return nil }
	nf.SendLastPublished(node, "bob@example.org", allow)

	got := sender.collect(t_, 1)
	notif := got["bob@example.org"]
	if notif == nil || len(notif.Items) != 1 || notif.Items[0].Id != "i2" {
		t_.Errorf("expected the most recent item, got %+v", notif)
	}

	// An access denial skips the delivery silently, without touching storage.
	deny := func(*Node, t.JID) error { return t.Deny(t.ReasonForbidden) }
	nf.SendLastPublished(node, "mallory@example.org", deny)
	sender.expectNoMore(t_)
}
