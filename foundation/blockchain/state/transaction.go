package state

import "github.com/contentledger/blockchain/foundation/blockchain/database"

// SubmitTransaction accepts a transaction from a local caller for inclusion
// and shares it with the network.
func (s *State) SubmitTransaction(tx database.SignedTx) error {
	n, err := s.mempool.Submit(tx, s.db.IsConfirmed)
	if err != nil {
		return err
	}

	s.evHandler("state: SubmitTransaction: tx[%s]: mempool[%d]", tx.ID, n)

	s.Worker.SignalShareTx(tx)
	s.Worker.SignalStartMining()

	return nil
}

// SubmitNodeTransaction accepts a transaction from a peer for inclusion.
func (s *State) SubmitNodeTransaction(tx database.SignedTx) error {
	n, err := s.mempool.Submit(tx, s.db.IsConfirmed)
	if err != nil {
		return err
	}

	s.evHandler("state: SubmitNodeTransaction: tx[%s]: mempool[%d]", tx.ID, n)

	s.Worker.SignalStartMining()

	return nil
}
