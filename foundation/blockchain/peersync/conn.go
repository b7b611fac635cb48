package peersync

import (
	"errors"
	"sync"
	"time"

	"github.com/contentledger/blockchain/foundation/blockchain/database"
	"github.com/contentledger/blockchain/foundation/blockchain/peer"
	"github.com/contentledger/blockchain/foundation/blockchain/state"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ConnState represents where a connection is in its lifecycle.
type ConnState int32

// Set of connection states.
const (
	StateConnecting ConnState = iota
	StateHandshaking
	StateSynced
)

// String implements the fmt.Stringer interface.
func (cs ConnState) String() string {
	switch cs {
	case StateHandshaking:
		return "handshaking"
	case StateSynced:
		return "synced"
	}
	return "connecting"
}

// Connection settings.
const (
	sendBuffer     = 256
	maxMessageSize = 64 << 20
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
)

// =============================================================================

// conn is a live websocket connection to a peer. The reader goroutine
// handles every inbound message in order; the writer goroutine drains the
// send channel.
type conn struct {
	id       string
	sync     *Sync
	ws       *websocket.Conn
	outbound bool
	send     chan []byte
	done     chan struct{}
	once     sync.Once

	mu          sync.Mutex
	state       ConnState
	host        string
	height      uint64
	tip         database.Hash
	pending     *time.Timer
	pendingFrom uint64
}

func newConn(s *Sync, ws *websocket.Conn, host string) *conn {
	return &conn{
		id:       uuid.NewString(),
		sync:     s,
		ws:       ws,
		outbound: host != "",
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		state:    StateConnecting,
		host:     host,
	}
}

// run registers the connection, sends the handshake and reads until the
// connection fails or is closed.
func (c *conn) run() {
	if !c.sync.add(c) {
		c.ws.Close()
		return
	}
	defer c.close()

	go c.writer()

	tip := c.sync.ledger.RetrieveLatestBlock()
	c.setState(StateHandshaking)
	c.queue(encodeHandshake(handshake{
		Height: tip.Header.Index,
		Tip:    tip.Hash(),
		Host:   c.sync.host,
	}))

	c.reader()
}

// close tears the connection down once.
func (c *conn) close() {
	c.once.Do(func() {
		c.sync.evHandler("peersync: close: conn[%s]: host[%s]", c.id, c.remoteHost())

		c.mu.Lock()
		if c.pending != nil {
			c.pending.Stop()
			c.pending = nil
		}
		c.mu.Unlock()

		close(c.done)
		c.ws.Close()
		c.sync.remove(c)
	})
}

// queue hands the frame to the writer. When the send buffer is full the
// frame is dropped for this peer only.
func (c *conn) queue(frame []byte) {
	select {
	case <-c.done:
	case c.send <- frame:
	default:
		c.sync.evHandler("peersync: queue: conn[%s]: WARNING: send buffer full, frame dropped", c.id)
	}
}

// =============================================================================

func (c *conn) writer() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				c.sync.evHandler("peersync: writer: conn[%s]: ERROR: %s", c.id, err)
				c.close()
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}

		case <-c.done:
			return
		}
	}
}

func (c *conn) reader() {
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		kind, frame, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.sync.evHandler("peersync: reader: conn[%s]: closed: %s", c.id, err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))

		if kind != websocket.BinaryMessage {
			continue
		}

		c.handle(frame)
	}
}

// =============================================================================

// handle dispatches one inbound frame. Invalid frames are logged and
// dropped, they never close the connection.
func (c *conn) handle(frame []byte) {
	mt, payload, err := splitFrame(frame)
	if err != nil {
		c.sync.evHandler("peersync: handle: conn[%s]: WARNING: %s", c.id, err)
		return
	}

	switch mt {
	case msgHandshake:
		c.handleHandshake(payload)
		return

	case msgChainRequest:
		c.handleChainRequest(payload)
		return

	case msgChainResponse:
		c.handleChainResponse(payload)
		return
	}

	// Before the first sync only the announced height is kept, the chain
	// response that follows fetches the block.
	if c.currentState() != StateSynced {
		if mt == msgNewBlock {
			if block, err := database.DecodeBlock(payload); err == nil {
				c.notePeerTip(block)
			}
		}
		c.sync.evHandler("peersync: handle: conn[%s]: dropped %s before synced", c.id, mt)
		return
	}

	switch mt {
	case msgNewBlock:
		c.handleNewBlock(payload)

	case msgNewTransaction:
		c.handleNewTransaction(payload)

	default:
		c.sync.evHandler("peersync: handle: conn[%s]: WARNING: dropped %s", c.id, mt)
	}
}

func (c *conn) handleHandshake(payload []byte) {
	hs, err := decodeHandshake(payload)
	if err != nil {
		c.sync.evHandler("peersync: handleHandshake: conn[%s]: WARNING: %s", c.id, err)
		return
	}

	c.sync.evHandler("peersync: handleHandshake: conn[%s]: host[%s]: height[%d]: tip[%s]", c.id, hs.Host, hs.Height, hs.Tip)

	c.mu.Lock()
	first := c.state != StateSynced && c.pending == nil
	if hs.Host != "" {
		c.host = hs.Host
	}
	c.height = hs.Height
	c.tip = hs.Tip
	c.mu.Unlock()

	// Learn the peer and keep a connection to it if there isn't one.
	if hs.Host != "" && hs.Host != c.sync.host {
		if c.sync.ledger.AddKnownPeer(peer.New(hs.Host)) && !c.outbound && !c.sync.connectedTo(hs.Host) {
			c.sync.dial(hs.Host)
		}
	}

	if !first {
		return
	}

	local := c.sync.ledger.RetrieveLatestBlock()
	if hs.Height > local.Header.Index {
		c.requestChain(local.Header.Index + 1)
		return
	}

	c.setState(StateSynced)
}

func (c *conn) handleChainRequest(payload []byte) {
	from, err := decodeChainRequest(payload)
	if err != nil {
		c.sync.evHandler("peersync: handleChainRequest: conn[%s]: WARNING: %s", c.id, err)
		return
	}

	if from == 0 {
		from = 1
	}

	blocks := c.sync.ledger.QueryBlocksFrom(from)
	c.sync.evHandler("peersync: handleChainRequest: conn[%s]: from[%d]: blocks[%d]", c.id, from, len(blocks))

	c.queue(encodeChainResponse(blocks))
}

func (c *conn) handleChainResponse(payload []byte) {
	from, ok := c.finishRequest()
	if !ok {
		c.sync.evHandler("peersync: handleChainResponse: conn[%s]: WARNING: unsolicited response", c.id)
		return
	}

	blocks, err := decodeChainResponse(payload)
	if err != nil {
		c.sync.evHandler("peersync: handleChainResponse: conn[%s]: WARNING: %s", c.id, err)
		c.setState(StateSynced)
		return
	}

	c.sync.evHandler("peersync: handleChainResponse: conn[%s]: from[%d]: blocks[%d]", c.id, from, len(blocks))

	before := c.sync.ledger.RetrieveLatestBlock().Hash()
	if !c.applyChain(from, blocks) {
		return
	}
	c.setState(StateSynced)

	// Blocks announced while the request was outstanding may be missing.
	// Ask again as long as each response moves the tip forward.
	tip := c.sync.ledger.RetrieveLatestBlock()
	if tip.Hash() != before && c.peerHeight() > tip.Header.Index {
		c.requestChain(tip.Header.Index + 1)
	}
}

// applyChain feeds the blocks of a chain response to the ledger. It reports
// false when another request went out to fetch the full chain.
func (c *conn) applyChain(from uint64, blocks []database.Block) bool {
	if len(blocks) == 0 {
		return true
	}

	// A full chain was requested, let fork choice decide.
	if from == 1 {
		candidate := append([]database.Block{c.sync.ledger.RetrieveGenesisBlock()}, blocks...)
		switch err := c.sync.ledger.ResolveFork(candidate); {
		case errors.Is(err, state.ErrForkNotHeavier):
			c.sync.evHandler("peersync: applyChain: conn[%s]: keep local chain: %s", c.id, err)
		case err != nil:
			c.sync.evHandler("peersync: applyChain: conn[%s]: WARNING: rejected peer chain: %s", c.id, err)
		default:
			c.sync.evHandler("peersync: applyChain: conn[%s]: adopted peer chain: height[%d]", c.id, len(blocks))

			// Announce the new tip, peers on the old chain request the rest.
			tip := c.sync.ledger.RetrieveLatestBlock()
			c.sync.seenBlocks.Add(tip.Hash(), struct{}{})
			c.sync.broadcast(encodeNewBlock(tip), c)
		}
		return true
	}

	// The blocks extend the local tip, append them in order.
	tip := c.sync.ledger.RetrieveLatestBlock()
	if blocks[0].Header.Index == tip.Header.Index+1 && blocks[0].Header.PrevBlockHash == tip.Hash() {
		for _, block := range blocks {
			c.sync.seenBlocks.Add(block.Hash(), struct{}{})
			if _, err := c.sync.ledger.ProcessProposedBlock(block); err != nil {
				c.sync.evHandler("peersync: applyChain: conn[%s]: WARNING: blk[%d]: %s", c.id, block.Header.Index, err)
				break
			}
			c.sync.broadcast(encodeNewBlock(block), c)
		}
		return true
	}

	// The chains diverged, fetch the whole chain from the peer.
	c.sync.evHandler("peersync: applyChain: conn[%s]: fork detected at blk[%d]", c.id, blocks[0].Header.Index)
	c.requestChain(1)

	return false
}

func (c *conn) handleNewBlock(payload []byte) {
	block, err := database.DecodeBlock(payload)
	if err != nil {
		c.sync.evHandler("peersync: handleNewBlock: conn[%s]: WARNING: %s", c.id, err)
		return
	}

	if !c.sync.firstSeenBlock(block.Hash()) {
		return
	}

	c.notePeerTip(block)

	tip := c.sync.ledger.RetrieveLatestBlock()

	switch {
	case block.Header.Index == tip.Header.Index+1 && block.Header.PrevBlockHash == tip.Hash():
		if _, err := c.sync.ledger.ProcessProposedBlock(block); err != nil {
			c.sync.evHandler("peersync: handleNewBlock: conn[%s]: WARNING: blk[%d]: %s", c.id, block.Header.Index, err)

			// The hash was only claimed, the real block may still arrive.
			c.sync.seenBlocks.Remove(block.Hash())
			return
		}
		c.sync.broadcast(encodeNewBlock(block), c)

	case block.Header.Index > tip.Header.Index:
		c.sync.evHandler("peersync: handleNewBlock: conn[%s]: fork signal: blk[%d]: tip[%d]", c.id, block.Header.Index, tip.Header.Index)
		c.requestChain(tip.Header.Index + 1)

	default:
		c.sync.evHandler("peersync: handleNewBlock: conn[%s]: ignore blk[%d]: tip[%d]", c.id, block.Header.Index, tip.Header.Index)
	}
}

func (c *conn) handleNewTransaction(payload []byte) {
	tx, err := database.DecodeTx(payload)
	if err != nil {
		c.sync.evHandler("peersync: handleNewTransaction: conn[%s]: WARNING: %s", c.id, err)
		return
	}

	if !c.sync.firstSeenTx(tx.ID) {
		return
	}

	if err := c.sync.ledger.SubmitNodeTransaction(tx); err != nil {
		if !errors.Is(err, database.ErrDuplicateTransaction) {
			c.sync.evHandler("peersync: handleNewTransaction: conn[%s]: WARNING: tx[%s]: %s", c.id, tx.ID, err)
			c.sync.seenTxs.Remove(tx.ID)
		}
		return
	}

	c.sync.broadcast(encodeNewTransaction(tx), c)
}

// =============================================================================

// requestChain asks the peer for its blocks starting at the specified
// number. Only one request is outstanding at a time and a request that is
// not answered in time closes the connection. A synced connection stays
// synced while the request is outstanding.
func (c *conn) requestChain(from uint64) {
	c.mu.Lock()
	if c.pending != nil {
		c.mu.Unlock()
		return
	}

	c.pendingFrom = from
	c.pending = time.AfterFunc(c.sync.timeout, func() {
		c.sync.evHandler("peersync: requestChain: conn[%s]: WARNING: chain request timed out", c.id)
		c.close()
	})
	c.mu.Unlock()

	c.sync.evHandler("peersync: requestChain: conn[%s]: from[%d]", c.id, from)
	c.queue(encodeChainRequest(from))
}

// finishRequest clears the outstanding request and returns where it
// started.
func (c *conn) finishRequest() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		return 0, false
	}

	c.pending.Stop()
	c.pending = nil

	return c.pendingFrom, true
}

func (c *conn) setState(cs ConnState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = cs
}

func (c *conn) currentState() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// notePeerTip records a block the peer announced when it is higher than
// anything seen from the peer so far.
func (c *conn) notePeerTip(block database.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if block.Header.Index > c.height {
		c.height = block.Header.Index
		c.tip = block.Hash()
	}
}

func (c *conn) peerHeight() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.height
}

func (c *conn) remoteHost() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.host
}

func (c *conn) info() PeerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	return PeerInfo{
		ID:       c.id,
		Host:     c.host,
		Outbound: c.outbound,
		State:    c.state.String(),
		Height:   c.height,
		Tip:      c.tip,
	}
}
