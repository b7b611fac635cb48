package peersync

import "github.com/contentledger/blockchain/foundation/blockchain/database"

// Frame helpers for driving a Sync from a raw websocket.

const (
	MsgChainRequest = uint8(msgChainRequest)
)

func EncodeHandshake(height uint64, tip database.Hash, host string) []byte {
	return encodeHandshake(handshake{Height: height, Tip: tip, Host: host})
}

func EncodeNewBlock(block database.Block) []byte {
	return encodeNewBlock(block)
}

func EncodeNewTransaction(tx database.SignedTx) []byte {
	return encodeNewTransaction(tx)
}

func EncodeChainResponse(blocks []database.Block) []byte {
	return encodeChainResponse(blocks)
}

func DecodeChainRequest(frame []byte) (uint64, error) {
	return decodeChainRequest(frame[1:])
}
