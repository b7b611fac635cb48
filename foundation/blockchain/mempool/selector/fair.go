package selector

import (
	"sort"

	"github.com/contentledger/blockchain/foundation/blockchain/database"
)

// fairSelect takes turns across senders so one busy account can't fill a
// block, while respecting the submission order for each sender.
var fairSelect = func(entries []Entry, howMany int) []database.SignedTx {

	/*
		Seq 1: Bill upload
		Seq 2: Bill review
		Seq 3: Pavl grant
		Seq 4: Bill transfer
		Seq 5: Edua upload
	*/

	// Group the transactions by sender in submission order. The senders are
	// ordered by their earliest submission.
	sort.Sort(bySeq(entries))

	var senders []database.AccountID
	m := make(map[database.AccountID][]Entry)
	for _, entry := range entries {
		sender := entry.Tx.Sender
		if _, exists := m[sender]; !exists {
			senders = append(senders, sender)
		}
		m[sender] = append(m[sender], entry)
	}

	/*
		Bill: {Seq: 1}, {Seq: 2}, {Seq: 4}
		Pavl: {Seq: 3}
		Edua: {Seq: 5}
	*/

	// Pick the first transaction in the slice for each sender. Each iteration
	// represents a new row of selections. Keep doing that until all the
	// transactions have been selected.
	var rows [][]Entry
	for {
		var row []Entry
		for _, sender := range senders {
			if len(m[sender]) > 0 {
				row = append(row, m[sender][0])
				m[sender] = m[sender][1:]
			}
		}
		if row == nil {
			break
		}
		rows = append(rows, row)
	}

	/*
		0: Bill {Seq: 1}, Pavl {Seq: 3}, Edua {Seq: 5}
		1: Bill {Seq: 2}
		2: Bill {Seq: 4}
	*/

	if howMany < 0 || howMany > len(entries) {
		howMany = len(entries)
	}

	// Keep pulling transactions from each row until the amount is fulfilled
	// or there are no more transactions.
	final := []database.SignedTx{}
done:
	for _, row := range rows {
		for _, entry := range row {
			if len(final) == howMany {
				break done
			}
			final = append(final, entry.Tx)
		}
	}

	return final
}
