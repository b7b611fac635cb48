// Package selector provides different transaction selecting algorithms.
package selector

import (
	"fmt"

	"github.com/contentledger/blockchain/foundation/blockchain/database"
)

// List of different select strategies.
const (
	StrategyFIFO = "fifo"
	StrategyFair = "fair"
)

// Map of different select strategies with functions.
var strategies = map[string]Func{
	StrategyFIFO: fifoSelect,
	StrategyFair: fairSelect,
}

// Entry is a pooled transaction with the sequence number it was given when
// it was submitted.
type Entry struct {
	Seq uint64
	Tx  database.SignedTx
}

// Func defines a function that takes the pooled transactions and selects
// howMany of them in an order based on the functions strategy. All selector
// functions MUST keep each sender's transactions in submission order.
// Receiving -1 for howMany must return all the transactions in the
// strategies ordering.
type Func func(entries []Entry, howMany int) []database.SignedTx

// Retrieve returns the specified select strategy function.
func Retrieve(strategy string) (Func, error) {
	fn, exists := strategies[strategy]
	if !exists {
		return nil, fmt.Errorf("strategy %q does not exist", strategy)
	}
	return fn, nil
}

// =============================================================================

// bySeq provides sorting support by the submission sequence.
type bySeq []Entry

// Len returns the number of transactions in the list.
func (bs bySeq) Len() int {
	return len(bs)
}

// Less helps to sort the list by sequence in ascending order to keep the
// transactions in the order they were submitted.
func (bs bySeq) Less(i, j int) bool {
	return bs[i].Seq < bs[j].Seq
}

// Swap moves transactions in the order of the sequence value.
func (bs bySeq) Swap(i, j int) {
	bs[i], bs[j] = bs[j], bs[i]
}
