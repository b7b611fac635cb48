package state

import "github.com/contentledger/blockchain/foundation/blockchain/database"

// Confirmed is sent to subscribers each time a block joins the chain,
// whether it was appended or adopted by a reorganization.
type Confirmed struct {
	BlockIndex uint64          `json:"block_index"`
	BlockHash  database.Hash   `json:"block_hash"`
	TxIDs      []database.Hash `json:"tx_ids"`
}

// SubscribeConfirmed registers a receiver under the id. A receiver that
// falls behind misses notifications instead of stalling the chain.
func (s *State) SubscribeConfirmed(id string) <-chan Confirmed {
	return s.confirmed.Acquire(id)
}

// UnsubscribeConfirmed removes the receiver and closes its channel.
func (s *State) UnsubscribeConfirmed(id string) error {
	return s.confirmed.Release(id)
}
