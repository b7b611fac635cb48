package state

import (
	"math/big"

	"github.com/contentledger/blockchain/foundation/blockchain/database"
	"github.com/contentledger/blockchain/foundation/blockchain/genesis"
	"github.com/contentledger/blockchain/foundation/blockchain/peer"
)

// RetrieveHost returns a copy of host information.
func (s *State) RetrieveHost() string {
	return s.host
}

// RetrieveGenesis returns a copy of the genesis information.
func (s *State) RetrieveGenesis() genesis.Genesis {
	return s.genesis
}

// RetrieveGenesisBlock returns the genesis block.
func (s *State) RetrieveGenesisBlock() database.Block {
	return s.db.GenesisBlock()
}

// RetrieveLatestBlock returns a copy the current latest block.
func (s *State) RetrieveLatestBlock() database.Block {
	return s.db.LatestBlock()
}

// RetrieveCumulativeWork returns the work of the local chain.
func (s *State) RetrieveCumulativeWork() *big.Int {
	return s.db.CumulativeWork()
}

// RetrieveMempool returns a copy of the mempool in the order it would be mined.
func (s *State) RetrieveMempool() []database.SignedTx {
	return s.mempool.PickBest(-1)
}

// RetrieveKnownPeers retrieves a copy of the known peer list.
func (s *State) RetrieveKnownPeers() []peer.Peer {
	return s.knownPeers.Copy(s.host)
}

// RetrievePeerStatus returns the status this node reports to peers.
func (s *State) RetrievePeerStatus() peer.PeerStatus {
	latest := s.db.LatestBlock()

	return peer.PeerStatus{
		LatestBlockHash:   latest.Hash(),
		LatestBlockNumber: latest.Header.Index,
		CumulativeWork:    s.db.CumulativeWork().String(),
		KnownPeers:        s.RetrieveKnownPeers(),
	}
}
