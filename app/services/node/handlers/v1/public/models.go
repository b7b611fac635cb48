package public

import (
	"github.com/contentledger/blockchain/foundation/blockchain/database"
	"github.com/contentledger/blockchain/foundation/blockchain/peersync"
)

type status struct {
	Host           string              `json:"host"`
	Height         uint64              `json:"height"`
	LatestBlock    database.Hash       `json:"latest_block"`
	CumulativeWork string              `json:"cumulative_work"`
	Uncommitted    int                 `json:"uncommitted"`
	Peers          []peersync.PeerInfo `json:"peers"`
}

type txStatus struct {
	ID         database.Hash `json:"id"`
	Status     string        `json:"status"`
	BlockIndex uint64        `json:"block_index,omitempty"`
}
