// Item retention: trim a node's item log to the configured maximum, oldest
// first by the configured ordering.

package main

import (
	"github.com/xmpub/pubsub/server/logs"
	"github.com/xmpub/pubsub/server/store"
	t "github.com/xmpub/pubsub/server/store/types"
)

// trimItems deletes the oldest items beyond maxItems. justWritten holds the
// ids of the publish batch which triggered the trim: those are spared unless
// the batch alone exceeds the limit. Individual delete failures are logged
// and do not abort trimming of the remaining ids.
func trimItems(node t.Uid, maxItems int, ordering t.CollectionItemsOrdering, justWritten map[string]bool) {
	if maxItems <= 0 {
		return
	}

	ids, err := store.Items.IdsByOrdering(node, ordering, nil)
	if err != nil {
		logs.Err.Printf("retention: listing items of %s failed: %v", node, err)
		return
	}
	if len(ids) <= maxItems {
		return
	}

	spareBatch := len(justWritten) <= maxItems
	for _, id := range ids[maxItems:] {
		if spareBatch && justWritten[id] {
			continue
		}
		if err := store.Items.Delete(node, id); err != nil {
			logs.Err.Printf("retention: deleting item %s of %s failed: %v", id, node, err)
		}
	}
}
