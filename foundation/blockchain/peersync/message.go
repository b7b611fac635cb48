package peersync

import (
	"errors"
	"fmt"

	"github.com/contentledger/blockchain/foundation/blockchain/codec"
	"github.com/contentledger/blockchain/foundation/blockchain/database"
)

// msgType identifies the payload of a frame. A frame is the type byte
// followed by the payload in canonical encoding.
type msgType uint8

// Set of message types exchanged between peers.
const (
	msgHandshake      msgType = 1
	msgNewBlock       msgType = 2
	msgNewTransaction msgType = 3
	msgChainRequest   msgType = 4
	msgChainResponse  msgType = 5
)

// maxChainResponse bounds the block count a decoder will accept.
const maxChainResponse = 1 << 20

// String implements the fmt.Stringer interface for logging.
func (mt msgType) String() string {
	switch mt {
	case msgHandshake:
		return "HANDSHAKE"
	case msgNewBlock:
		return "NEW_BLOCK"
	case msgNewTransaction:
		return "NEW_TRANSACTION"
	case msgChainRequest:
		return "CHAIN_REQUEST"
	case msgChainResponse:
		return "CHAIN_RESPONSE"
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(mt))
}

// handshake is the first message each side sends on a new connection.
type handshake struct {
	Height uint64
	Tip    database.Hash
	Host   string
}

// =============================================================================

// splitFrame separates the message type from its payload.
func splitFrame(frame []byte) (msgType, []byte, error) {
	if len(frame) == 0 {
		return 0, nil, errors.New("empty frame")
	}

	return msgType(frame[0]), frame[1:], nil
}

func encodeHandshake(hs handshake) []byte {
	w := codec.NewWriter(64 + len(hs.Host))
	w.Uint8(uint8(msgHandshake))
	w.Uint64(hs.Height)
	w.Fixed32(hs.Tip)
	w.String(hs.Host)
	return w.Encoded()
}

func decodeHandshake(payload []byte) (handshake, error) {
	r := codec.NewReader(payload)

	hs := handshake{
		Height: r.Uint64(),
		Tip:    r.Fixed32(),
		Host:   r.String(),
	}

	if err := r.Done(); err != nil {
		return handshake{}, fmt.Errorf("decoding handshake: %w", err)
	}

	return hs, nil
}

func encodeNewBlock(block database.Block) []byte {
	return append([]byte{uint8(msgNewBlock)}, database.EncodeBlock(block)...)
}

func encodeNewTransaction(tx database.SignedTx) []byte {
	return append([]byte{uint8(msgNewTransaction)}, database.EncodeTx(tx)...)
}

func encodeChainRequest(from uint64) []byte {
	w := codec.NewWriter(9)
	w.Uint8(uint8(msgChainRequest))
	w.Uint64(from)
	return w.Encoded()
}

func decodeChainRequest(payload []byte) (uint64, error) {
	r := codec.NewReader(payload)
	from := r.Uint64()

	if err := r.Done(); err != nil {
		return 0, fmt.Errorf("decoding chain request: %w", err)
	}

	return from, nil
}

func encodeChainResponse(blocks []database.Block) []byte {
	w := codec.NewWriter(5 + 512*len(blocks))
	w.Uint8(uint8(msgChainResponse))
	w.Uint32(uint32(len(blocks)))
	for _, block := range blocks {
		w.Bytes(database.EncodeBlock(block))
	}
	return w.Encoded()
}

func decodeChainResponse(payload []byte) ([]database.Block, error) {
	r := codec.NewReader(payload)

	n := r.Uint32()
	if n > maxChainResponse {
		return nil, fmt.Errorf("decoding chain response: %d blocks exceeds %d", n, maxChainResponse)
	}

	var blocks []database.Block
	for i := uint32(0); i < n; i++ {
		data := r.Bytes()
		if r.Err() != nil {
			break
		}

		block, err := database.DecodeBlock(data)
		if err != nil {
			return nil, fmt.Errorf("decoding chain response: block %d: %w", i, err)
		}
		blocks = append(blocks, block)
	}

	if err := r.Done(); err != nil {
		return nil, fmt.Errorf("decoding chain response: %w", err)
	}

	return blocks, nil
}
