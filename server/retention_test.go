package main

import (
	"testing"

	"github.com/golang/mock/gomock"

	"github.com/xmpub/pubsub/server/store"
	"github.com/xmpub/pubsub/server/store/mock_store"
	t "github.com/xmpub/pubsub/server/store/types"
)

func withMockItems(t_ *testing.T) (*mock_store.MockItemsPersistenceInterface, func()) {
	ctrl := gomock.NewController(t_)
	m := mock_store.NewMockItemsPersistenceInterface(ctrl)
	orig := store.Items
	store.Items = m
	return m, func() {
		store.Items = orig
		ctrl.Finish()
	}
}

func TestTrimDeletesOldestBeyondLimit(t_ *testing.T) {
	m, done := withMockItems(t_)
	defer done()

	node := t.Uid(7)
	m.EXPECT().IdsByOrdering(node, t.OrderByUpdateDate, gomock.Nil()).
		Return([]string{"e", "d", "c", "b", "a"}, nil)
	m.EXPECT().Delete(node, "c").Return(nil)
	m.EXPECT().Delete(node, "b").Return(nil)
	m.EXPECT().Delete(node, "a").Return(nil)

	trimItems(node, 2, t.OrderByUpdateDate, map[string]bool{"e": true, "d": true})
}

func TestTrimSparesJustWrittenBatch(t_ *testing.T) {
	m, done := withMockItems(t_)
	defer done()

	// The triggering batch fits within the limit, so its items are never
	// trimmed even when an id ordering anomaly places one beyond the limit.
	node := t.Uid(7)
	m.EXPECT().IdsByOrdering(node, t.OrderByUpdateDate, gomock.Nil()).
		Return([]string{"x", "e", "d", "a"}, nil)
	m.EXPECT().Delete(node, "a").Return(nil)

	trimItems(node, 2, t.OrderByUpdateDate, map[string]bool{"e": true, "d": true})
}

func TestTrimOversizedBatchIsNotSpared(t_ *testing.T) {
	m, done := withMockItems(t_)
	defer done()

	// A single publish larger than max_items must still be trimmed, else the
	// limit would never hold.
	node := t.Uid(7)
	m.EXPECT().IdsByOrdering(node, t.OrderByUpdateDate, gomock.Nil()).
		Return([]string{"e", "d", "c"}, nil)
	m.EXPECT().Delete(node, "c").Return(nil)

	trimItems(node, 2, t.OrderByUpdateDate, map[string]bool{"e": true, "d": true, "c": true})
}

func TestTrimNoopWithinLimit(t_ *testing.T) {
	m, done := withMockItems(t_)
	defer done()

	node := t.Uid(7)
	m.EXPECT().IdsByOrdering(node, t.OrderByUpdateDate, gomock.Nil()).
		Return([]string{"b", "a"}, nil)

	trimItems(node, 2, t.OrderByUpdateDate, map[string]bool{"b": true})

	// Unlimited nodes are never listed, let alone trimmed.
	trimItems(node, 0, t.OrderByUpdateDate, nil)
}

func TestTrimContinuesPastDeleteFailures(t_ *testing.T) {
	m, done := withMockItems(t_)
	defer done()

	node := t.Uid(7)
	m.EXPECT().IdsByOrdering(node, t.OrderByUpdateDate, gomock.Nil()).
		Return([]string{"c", "b", "a"}, nil)
	m.EXPECT().Delete(node, "b").Return(t.ErrNotFound)
	m.EXPECT().Delete(node, "a").Return(nil)

	trimItems(node, 1, t.OrderByUpdateDate, map[string]bool{"c": true})
}
