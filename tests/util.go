package tests

import (
	"testing"

	"github.com/nspcc-dev/neo-go/pkg/core/interop/storage"
	"github.com/nspcc-dev/neo-go/pkg/neotest"
	"github.com/nspcc-dev/neo-go/pkg/neotest/chain"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
)

// newLedgerExecutor creates a single-node chain executor the key ledger
// suites deploy their contracts to.
func newLedgerExecutor(t *testing.T) *neotest.Executor {
	bc, acc := chain.NewSingle(t)
	return neotest.NewExecutor(t, bc, acc, acc)
}

// drainIterator collects the remaining items of a history iterator.
func drainIterator(iter *storage.Iterator) []stackitem.Item {
	var items []stackitem.Item
	for iter.Next() {
		items = append(items, iter.Value())
	}
	return items
}
