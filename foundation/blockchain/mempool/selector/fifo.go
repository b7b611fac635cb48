package selector

import (
	"sort"

	"github.com/contentledger/blockchain/foundation/blockchain/database"
)

// fifoSelect returns transactions in the order they were submitted.
var fifoSelect = func(entries []Entry, howMany int) []database.SignedTx {
	sort.Sort(bySeq(entries))

	if howMany < 0 || howMany > len(entries) {
		howMany = len(entries)
	}

	final := make([]database.SignedTx, howMany)
	for i := range final {
		final[i] = entries[i].Tx
	}

	return final
}
