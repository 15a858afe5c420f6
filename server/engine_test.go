package main

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/xmpub/pubsub/server/logs"
	"github.com/xmpub/pubsub/server/store"
	t "github.com/xmpub/pubsub/server/store/types"
)

const testStoreConfig = `{
	"uid_key": "la6YsO+bNX/+XIkOqc5Svw==",
	"use_adapter": "mem"
}`

func TestMain(m *testing.M) {
	logs.Init()
	if err := store.Open(1, json.RawMessage(testStoreConfig)); err != nil {
		logs.Err.Println("failed to open the test store:", err)
		os.Exit(1)
	}
	code := m.Run()
	store.Close()
	os.Exit(code)
}

func newTestEngine() (*Engine, *testSender) {
	sender := newTestSender()
	e := NewEngine(EngineConfig{
		CacheSize:          64,
		Admins:             []string{"admin@example.org"},
		SendLastOnPresence: true,
	}, sender, testPresence{}, testRoster{})
	return e, sender
}

const owner = t.JID("owner@example.org")

func TestEngineOpenNodeLifecycle(t_ *testing.T) {
	e, sender := newTestEngine()
	defer e.Stop()

	config := t.DefaultNodeConfig(t.NodeTypeLeaf)
	config.MaxItems = 2

	if _, err := e.CreateNode(testService, "lifecycle", owner, &config, false); err != nil {
		t_.Fatalf("create failed: %v", err)
	}
	if _, err := e.CreateNode(testService, "lifecycle", owner, &config, false); !errors.Is(err, t.ErrDuplicate) {
		t_.Errorf("second create: got %v, want ErrDuplicate", err)
	}

	st, err := e.Subscribe(testService, "lifecycle", "bob@example.org/phone")
	if err != nil {
		t_.Fatalf("subscribe failed: %v", err)
	}
	if st.Sub != t.SubSubscribed || !strings.HasPrefix(st.Id, "sub") {
		t_.Errorf("subscription state: %+v", st)
	}
	ev := sender.collect(t_, 1)["bob@example.org"]
	if ev == nil || ev.Event != EventSubscription || ev.Subscription.Sub != t.SubSubscribed {
		t_.Errorf("subscription event: %+v", ev)
	}

	// Repeat subscribe is idempotent and returns the same id.
	again, err := e.Subscribe(testService, "lifecycle", "bob@example.org")
	if err != nil || again.Id != st.Id {
		t_.Errorf("repeat subscribe: %+v, %v", again, err)
	}

	// Publish three items; the retention limit keeps the two most recent.
	for _, id := range []string{"a", "b", "c"} {
		ids, err := e.Publish(testService, "lifecycle", owner, []ItemPayload{{Id: id, Payload: "<x/>"}}, nil)
		if err != nil || len(ids) != 1 || ids[0] != id {
			t_.Fatalf("publish %s: ids=%v err=%v", id, ids, err)
		}
		notif := sender.collect(t_, 1)["bob@example.org"]
		if notif == nil || notif.Event != EventItems || notif.Items[0].Id != id {
			t_.Errorf("publish notification for %s: %+v", id, notif)
		}
	}

	items, err := e.RetrieveItems(testService, "lifecycle", owner, nil, 0)
	if err != nil {
		t_.Fatalf("retrieve failed: %v", err)
	}
	kept := make(map[string]bool, len(items))
	for _, item := range items {
		kept[item.Id] = true
	}
	if len(kept) != 2 || !kept["b"] || !kept["c"] {
		t_.Errorf("retained items: got %v, want b and c", kept)
	}
	if _, err := e.RetrieveItems(testService, "lifecycle", owner, []string{"a"}, 0); !errors.Is(err, t.ErrNotFound) {
		t_.Errorf("trimmed item still retrievable: %v", err)
	}

	// Publish preconditions are matched against the current configuration.
	opts := &PublishOptions{Expect: map[string]string{"max_items": "2"}}
	if _, err := e.Publish(testService, "lifecycle", owner, []ItemPayload{{Id: "c", Payload: "<y/>"}}, opts); err != nil {
		t_.Errorf("matching precondition rejected: %v", err)
	}
	sender.collect(t_, 1)
	opts.Expect["max_items"] = "5"
	if _, err := e.Publish(testService, "lifecycle", owner, []ItemPayload{{Payload: "<x/>"}}, opts); !errors.Is(err, t.ErrPrecondition) {
		t_.Errorf("stale precondition: got %v, want ErrPrecondition", err)
	}

	metas, err := e.ItemsMeta(testService, "lifecycle", owner)
	if err != nil || len(metas) != 2 {
		t_.Errorf("item metadata: %v, %v", metas, err)
	}

	// Members may not publish under the publishers model.
	if _, err := e.Publish(testService, "lifecycle", "bob@example.org", []ItemPayload{{Payload: "<x/>"}}, nil); !errors.Is(err, t.ErrPermissionDenied) {
		t_.Errorf("member publish: got %v, want permission denial", err)
	}

	// Unsubscribe validates the subscription id.
	if err := e.Unsubscribe(testService, "lifecycle", "bob@example.org", "sub-bogus"); !errors.Is(err, t.ErrMalformed) {
		t_.Errorf("bogus subid: got %v, want ErrMalformed", err)
	}
	if err := e.Unsubscribe(testService, "lifecycle", "bob@example.org", st.Id); err != nil {
		t_.Fatalf("unsubscribe failed: %v", err)
	}
	ev = sender.collect(t_, 1)["bob@example.org"]
	if ev == nil || ev.Event != EventSubscription || ev.Subscription.Sub != t.SubNone {
		t_.Errorf("unsubscribe event: %+v", ev)
	}
	if err := e.Unsubscribe(testService, "lifecycle", "bob@example.org", ""); !errors.Is(err, t.ErrNotFound) {
		t_.Errorf("repeat unsubscribe: got %v, want ErrNotFound", err)
	}

	// No subscribers left: publishing is silent.
	if _, err := e.Publish(testService, "lifecycle", owner, []ItemPayload{{Id: "d", Payload: "<x/>"}}, nil); err != nil {
		t_.Fatalf("publish after unsubscribe: %v", err)
	}
	sender.expectNoMore(t_)
}

func TestEngineAuthorizeFlow(t_ *testing.T) {
	e, sender := newTestEngine()
	defer e.Stop()

	config := t.DefaultNodeConfig(t.NodeTypeLeaf)
	config.AccessModel = t.AccessAuthorize

	if _, err := e.CreateNode(testService, "approvals", owner, &config, false); err != nil {
		t_.Fatalf("create failed: %v", err)
	}

	st, err := e.Subscribe(testService, "approvals", "bob@example.org")
	if err != nil {
		t_.Fatalf("subscribe failed: %v", err)
	}
	if st.Sub != t.SubPending {
		t_.Fatalf("subscription state: got %s, want pending", st.Sub)
	}
	got := sender.collect(t_, 2)
	authz := got[owner]
	if authz == nil || authz.Event != EventAuthorization || authz.Subscriber != "bob@example.org" {
		t_.Errorf("authorization request: %+v", authz)
	}
	pending := got["bob@example.org"]
	if pending == nil || pending.Event != EventSubscription || pending.Subscription.Sub != t.SubPending {
		t_.Errorf("pending event: %+v", pending)
	}

	// A pending subscriber receives no notifications and may not retrieve.
	if _, err := e.Publish(testService, "approvals", owner, []ItemPayload{{Id: "i1", Payload: "<x/>"}}, nil); err != nil {
		t_.Fatalf("publish failed: %v", err)
	}
	sender.expectNoMore(t_)
	if _, err := e.RetrieveItems(testService, "approvals", "bob@example.org", nil, 0); !errors.Is(err, t.ErrPermissionDenied) {
		t_.Errorf("pending retrieve: got %v, want permission denial", err)
	}

	// Only owners approve.
	if err := e.Approve(testService, "approvals", "bob@example.org", "bob@example.org", true); !errors.Is(err, t.ErrPermissionDenied) {
		t_.Errorf("self-approval: got %v, want permission denial", err)
	}

	if err := e.Approve(testService, "approvals", owner, "bob@example.org", true); err != nil {
		t_.Fatalf("approve failed: %v", err)
	}
	ev := sender.collect(t_, 1)["bob@example.org"]
	if ev == nil || ev.Event != EventSubscription || ev.Subscription.Sub != t.SubSubscribed {
		t_.Errorf("approval event: %+v", ev)
	}
	if ev != nil && ev.Subscription.Id != st.Id {
		t_.Errorf("approval changed the subscription id: %s vs %s", ev.Subscription.Id, st.Id)
	}

	// Approval raised the subscriber to member.
	node, err := e.GetNode(testService, "approvals")
	if err != nil {
		t_.Fatal(err)
	}
	if got := affOf(node, "bob@example.org"); got != t.AffMember {
		t_.Errorf("affiliation after approval: got %s, want member", got)
	}

	// Approved subscribers retrieve and receive notifications.
	if _, err := e.RetrieveItems(testService, "approvals", "bob@example.org", nil, 0); err != nil {
		t_.Errorf("approved retrieve failed: %v", err)
	}
	if _, err := e.Publish(testService, "approvals", owner, []ItemPayload{{Id: "i2", Payload: "<x/>"}}, nil); err != nil {
		t_.Fatal(err)
	}
	notif := sender.collect(t_, 1)["bob@example.org"]
	if notif == nil || notif.Event != EventItems {
		t_.Errorf("post-approval notification: %+v", notif)
	}

	if err := e.Approve(testService, "approvals", owner, "bob@example.org", true); !errors.Is(err, t.ErrNotFound) {
		t_.Errorf("approve without pending: got %v, want ErrNotFound", err)
	}
}

func TestEngineCollections(t_ *testing.T) {
	e, sender := newTestEngine()
	defer e.Stop()

	colConfig := t.DefaultNodeConfig(t.NodeTypeCollection)
	if _, err := e.CreateNode(testService, "weather", owner, &colConfig, false); err != nil {
		t_.Fatalf("create collection: %v", err)
	}

	leafConfig := t.DefaultNodeConfig(t.NodeTypeLeaf)
	leafConfig.Collection = "weather"
	if _, err := e.CreateNode(testService, "weather-tides", owner, &leafConfig, false); err != nil {
		t_.Fatalf("create leaf: %v", err)
	}

	// A leaf cannot be a parent.
	badConfig := t.DefaultNodeConfig(t.NodeTypeLeaf)
	badConfig.Collection = "weather-tides"
	if _, err := e.CreateNode(testService, "weather-bad", owner, &badConfig, false); !errors.Is(err, t.ErrMalformed) {
		t_.Errorf("leaf parent: got %v, want ErrMalformed", err)
	}
	// The parent must exist.
	badConfig.Collection = "no-such-collection"
	if _, err := e.CreateNode(testService, "weather-bad", owner, &badConfig, false); !errors.Is(err, t.ErrNotFound) {
		t_.Errorf("missing parent: got %v, want ErrNotFound", err)
	}

	children, err := e.Children(testService, "weather")
	if err != nil || len(children) != 1 || children[0] != "weather-tides" {
		t_.Errorf("children: %v, %v", children, err)
	}
	if _, err := e.Children(testService, "weather-tides"); !errors.Is(err, t.ErrUnsupported) {
		t_.Errorf("children of a leaf: got %v, want ErrUnsupported", err)
	}

	roots, err := e.RootNodes(testService)
	if err != nil {
		t_.Fatal(err)
	}
	if !containsName(roots, "weather") || containsName(roots, "weather-tides") {
		t_.Errorf("roots: %v", roots)
	}

	// The node type is immutable.
	flipped := colConfig
	flipped.NodeType = t.NodeTypeLeaf
	if err := e.Configure(testService, "weather", owner, flipped); !errors.Is(err, t.ErrMalformed) {
		t_.Errorf("type change: got %v, want ErrMalformed", err)
	}

	// Moving the leaf to the root updates both indexes.
	moved := leafConfig
	moved.Collection = ""
	if err := e.Configure(testService, "weather-tides", owner, moved); err != nil {
		t_.Fatalf("reconfigure failed: %v", err)
	}
	if children, _ := e.Children(testService, "weather"); len(children) != 0 {
		t_.Errorf("children after move: %v", children)
	}
	if roots, _ := e.RootNodes(testService); !containsName(roots, "weather-tides") {
		t_.Errorf("roots after move: %v", roots)
	}

	// Only owners may configure.
	if err := e.Configure(testService, "weather", "stranger@example.org", colConfig); !errors.Is(err, t.ErrPermissionDenied) {
		t_.Errorf("stranger configure: got %v, want permission denial", err)
	}

	// Publishing to a collection is not supported.
	if _, err := e.Publish(testService, "weather", owner, []ItemPayload{{Payload: "<x/>"}}, nil); !errors.Is(err, t.ErrUnsupported) {
		t_.Errorf("publish to collection: got %v, want ErrUnsupported", err)
	}

	sender.expectNoMore(t_)
}

func TestEngineDeleteReparentsChildren(t_ *testing.T) {
	e, _ := newTestEngine()
	defer e.Stop()

	colConfig := t.DefaultNodeConfig(t.NodeTypeCollection)
	if _, err := e.CreateNode(testService, "doomed", owner, &colConfig, false); err != nil {
		t_.Fatal(err)
	}
	leafConfig := t.DefaultNodeConfig(t.NodeTypeLeaf)
	leafConfig.Collection = "doomed"
	if _, err := e.CreateNode(testService, "doomed-child", owner, &leafConfig, false); err != nil {
		t_.Fatal(err)
	}

	if err := e.DeleteNode(testService, "doomed", "stranger@example.org"); !errors.Is(err, t.ErrPermissionDenied) {
		t_.Errorf("stranger delete: got %v, want permission denial", err)
	}
	if err := e.DeleteNode(testService, "doomed", owner); err != nil {
		t_.Fatalf("delete failed: %v", err)
	}

	if _, err := e.GetNode(testService, "doomed"); !errors.Is(err, t.ErrNotFound) {
		t_.Errorf("deleted node still resolvable: %v", err)
	}
	// The orphaned child was re-parented to the deleted node's parent, the
	// root in this case.
	child, err := e.GetNode(testService, "doomed-child")
	if err != nil {
		t_.Fatalf("child lost: %v", err)
	}
	if got := child.Config().Collection; got != "" {
		t_.Errorf("child parent after delete: %q", got)
	}
	if roots, _ := e.RootNodes(testService); !containsName(roots, "doomed-child") {
		t_.Errorf("child missing from roots: %v", roots)
	}
}

func TestEnginePurgeAndRetract(t_ *testing.T) {
	e, sender := newTestEngine()
	defer e.Stop()

	config := t.DefaultNodeConfig(t.NodeTypeLeaf)
	if _, err := e.CreateNode(testService, "scratch", owner, &config, true); err != nil {
		t_.Fatal(err)
	}
	// Auto-subscribe: the creator receives its own publish notifications.
	if _, err := e.Publish(testService, "scratch", owner, []ItemPayload{{Id: "i1"}, {Id: "i2"}}, nil); err != nil {
		t_.Fatal(err)
	}
	sender.collect(t_, 1)

	// A publisher may not retract someone else's item.
	if err := e.SetAffiliation(testService, "scratch", owner, "pub@example.org", t.AffPublisher); err != nil {
		t_.Fatal(err)
	}
	if err := e.Retract(testService, "scratch", "pub@example.org", []string{"i1"}); !errors.Is(err, t.ErrPermissionDenied) {
		t_.Errorf("foreign retract: got %v, want permission denial", err)
	}

	if err := e.Retract(testService, "scratch", owner, []string{"i1"}); err != nil {
		t_.Fatalf("retract failed: %v", err)
	}
	ev := sender.collect(t_, 1)[owner]
	if ev == nil || ev.Event != EventRetract || len(ev.RetractIds) != 1 || ev.RetractIds[0] != "i1" {
		t_.Errorf("retract event: %+v", ev)
	}
	if err := e.Retract(testService, "scratch", owner, []string{"i1"}); !errors.Is(err, t.ErrNotFound) {
		t_.Errorf("repeat retract: got %v, want ErrNotFound", err)
	}

	if err := e.Purge(testService, "scratch", owner); err != nil {
		t_.Fatalf("purge failed: %v", err)
	}
	ev = sender.collect(t_, 1)[owner]
	if ev == nil || ev.Event != EventPurge {
		t_.Errorf("purge event: %+v", ev)
	}
	if items, err := e.RetrieveItems(testService, "scratch", owner, nil, 0); err != nil || len(items) != 0 {
		t_.Errorf("items after purge: %v, %v", items, err)
	}
}

func TestEngineRetractValidatesWholeBatchFirst(t_ *testing.T) {
	e, sender := newTestEngine()
	defer e.Stop()

	config := t.DefaultNodeConfig(t.NodeTypeLeaf)
	if _, err := e.CreateNode(testService, "drafts", owner, &config, true); err != nil {
		t_.Fatal(err)
	}
	if err := e.SetAffiliation(testService, "drafts", owner, "pub@example.org", t.AffPublisher); err != nil {
		t_.Fatal(err)
	}
	if _, err := e.Publish(testService, "drafts", owner, []ItemPayload{{Id: "i1"}}, nil); err != nil {
		t_.Fatal(err)
	}
	if _, err := e.Publish(testService, "drafts", "pub@example.org", []ItemPayload{{Id: "i2"}}, nil); err != nil {
		t_.Fatal(err)
	}
	sender.collect(t_, 2)

	// A batch with a missing id deletes nothing.
	if err := e.Retract(testService, "drafts", owner, []string{"i1", "missing"}); !errors.Is(err, t.ErrNotFound) {
		t_.Errorf("batch with missing id: got %v, want ErrNotFound", err)
	}
	// A publisher's batch touching a foreign item deletes nothing, the
	// publisher's own item included.
	if err := e.Retract(testService, "drafts", "pub@example.org", []string{"i2", "i1"}); !errors.Is(err, t.ErrPermissionDenied) {
		t_.Errorf("foreign item in batch: got %v, want permission denial", err)
	}
	sender.expectNoMore(t_)
	if items, err := e.RetrieveItems(testService, "drafts", owner, []string{"i1", "i2"}, 0); err != nil || len(items) != 2 {
		t_.Errorf("items after rejected batches: %v, %v", items, err)
	}

	if err := e.Retract(testService, "drafts", owner, []string{"i1", "i2"}); err != nil {
		t_.Fatalf("valid batch: %v", err)
	}
	ev := sender.collect(t_, 1)[owner]
	if ev == nil || ev.Event != EventRetract || len(ev.RetractIds) != 2 {
		t_.Errorf("retract event: %+v", ev)
	}
}

func TestEnginePresenceInterestDeliversLastItem(t_ *testing.T) {
	e, sender := newTestEngine()
	defer e.Stop()

	config := t.DefaultNodeConfig(t.NodeTypeLeaf)
	config.SendLastPublishedItem = t.SendLastOnSubPresence
	if _, err := e.CreateNode(testService, "presence-news", owner, &config, false); err != nil {
		t_.Fatal(err)
	}
	if _, err := e.Publish(testService, "presence-news", owner, []ItemPayload{{Id: "latest"}}, nil); err != nil {
		t_.Fatal(err)
	}

	e.PresenceInterest(testService, "presence-news", "bob@example.org")
	notif := sender.collect(t_, 1)["bob@example.org"]
	if notif == nil || notif.Event != EventItems || notif.Items[0].Id != "latest" {
		t_.Errorf("last-item delivery: %+v", notif)
	}

	// Node policy gates the delivery even when the service allows it.
	never := config
	never.SendLastPublishedItem = t.SendLastNever
	if err := e.Configure(testService, "presence-news", owner, never); err != nil {
		t_.Fatal(err)
	}
	e.PresenceInterest(testService, "presence-news", "bob@example.org")
	sender.expectNoMore(t_)
}

func containsName(names []string, want string) bool {
	for _, name := range names {
		if name == want {
			return true
		}
	}
	return false
}
