// Package peersync keeps the node converging on one chain with its peers.
// Peers talk over websocket connections using binary frames: each side
// announces its tip in a handshake, fetches missing blocks with chain
// requests and relays new blocks and transactions as they arrive.
package peersync

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/contentledger/blockchain/foundation/blockchain/database"
	"github.com/contentledger/blockchain/foundation/blockchain/peer"
	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Path is the route peers connect to on the private host.
const Path = "/v1/node/peer"

// Default settings for a Sync.
const (
	DefaultChainRequestTimeout = 15 * time.Second
	DefaultSeenCacheSize       = 4096
)

// Backoff bounds for redialling an outbound peer.
const (
	minBackoff = time.Second
	maxBackoff = time.Minute
)

// Ledger represents the chain operations peer sync relies on.
type Ledger interface {
	RetrieveGenesisBlock() database.Block
	RetrieveLatestBlock() database.Block
	QueryBlocksFrom(from uint64) []database.Block
	ProcessProposedBlock(block database.Block) (database.Block, error)
	ResolveFork(candidate []database.Block) error
	SubmitNodeTransaction(tx database.SignedTx) error
	RetrieveKnownPeers() []peer.Peer
	AddKnownPeer(peer peer.Peer) bool
}

// Config represents the settings for peer sync.
type Config struct {
	Ledger              Ledger
	Host                string // Host this node accepts peer connections on.
	ChainRequestTimeout time.Duration
	SeenCacheSize       int
	EvHandler           func(v string, args ...any)
}

// PeerInfo describes a live connection.
type PeerInfo struct {
	ID       string        `json:"id"`
	Host     string        `json:"host"`
	Outbound bool          `json:"outbound"`
	State    string        `json:"state"`
	Height   uint64        `json:"height"`
	Tip      database.Hash `json:"tip"`
}

// =============================================================================

// Sync manages the connections to peers.
type Sync struct {
	ledger    Ledger
	host      string
	timeout   time.Duration
	evHandler func(v string, args ...any)

	seenBlocks *lru.Cache[database.Hash, struct{}]
	seenTxs    *lru.Cache[database.Hash, struct{}]

	upgrader websocket.Upgrader
	dialer   websocket.Dialer

	mu      sync.RWMutex
	conns   map[string]*conn
	dialing map[string]struct{}
	shut    chan struct{}
	wg      sync.WaitGroup
}

// New constructs a Sync for use.
func New(cfg Config) (*Sync, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("ledger is required")
	}

	ev := cfg.EvHandler
	if ev == nil {
		ev = func(string, ...any) {}
	}

	timeout := cfg.ChainRequestTimeout
	if timeout <= 0 {
		timeout = DefaultChainRequestTimeout
	}

	size := cfg.SeenCacheSize
	if size <= 0 {
		size = DefaultSeenCacheSize
	}

	seenBlocks, err := lru.New[database.Hash, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("constructing block cache: %w", err)
	}

	seenTxs, err := lru.New[database.Hash, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("constructing transaction cache: %w", err)
	}

	s := Sync{
		ledger:     cfg.Ledger,
		host:       cfg.Host,
		timeout:    timeout,
		evHandler:  ev,
		seenBlocks: seenBlocks,
		seenTxs:    seenTxs,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		dialer: websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		conns:   make(map[string]*conn),
		dialing: make(map[string]struct{}),
		shut:    make(chan struct{}),
	}

	return &s, nil
}

// Start dials every known peer. Each outbound peer is redialled with
// backoff until Shutdown is called.
func (s *Sync) Start() {
	s.evHandler("peersync: Start: known peers[%d]", len(s.ledger.RetrieveKnownPeers()))

	for _, p := range s.ledger.RetrieveKnownPeers() {
		s.dial(p.Host)
	}
}

// Connect records the host as a known peer and keeps an outbound
// connection to it.
func (s *Sync) Connect(host string) {
	s.ledger.AddKnownPeer(peer.New(host))

	if !s.connectedTo(host) {
		s.dial(host)
	}
}

// Shutdown closes every connection and stops redialling.
func (s *Sync) Shutdown() {
	s.evHandler("peersync: Shutdown: started")
	defer s.evHandler("peersync: Shutdown: completed")

	s.mu.Lock()
	select {
	case <-s.shut:
	default:
		close(s.shut)
	}
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close()
	}

	s.wg.Wait()
}

// Accept upgrades an inbound HTTP request into a peer connection. It
// returns once the connection is closed.
func (s *Sync) Accept(w http.ResponseWriter, r *http.Request) error {
	if s.isShutdown() {
		return errors.New("peer sync is shut down")
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrading peer connection: %w", err)
	}

	c := newConn(s, ws, "")
	s.evHandler("peersync: Accept: conn[%s]: remote[%s]", c.id, r.RemoteAddr)

	c.run()

	return nil
}

// BroadcastBlock sends a block mined by this node to every synced peer.
func (s *Sync) BroadcastBlock(block database.Block) {
	s.seenBlocks.Add(block.Hash(), struct{}{})
	s.broadcast(encodeNewBlock(block), nil)
}

// BroadcastTx sends a transaction submitted to this node to every synced peer.
func (s *Sync) BroadcastTx(tx database.SignedTx) {
	s.seenTxs.Add(tx.ID, struct{}{})
	s.broadcast(encodeNewTransaction(tx), nil)
}

// Peers returns the state of every live connection.
func (s *Sync) Peers() []PeerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	peers := make([]PeerInfo, 0, len(s.conns))
	for _, c := range s.conns {
		peers = append(peers, c.info())
	}

	return peers
}

// =============================================================================

// broadcast queues the frame on every synced connection except the one
// specified.
func (s *Sync) broadcast(frame []byte, except *conn) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.conns {
		if c == except || c.currentState() != StateSynced {
			continue
		}
		c.queue(frame)
	}
}

// firstSeenBlock reports whether the block hash was not seen before and
// remembers it.
func (s *Sync) firstSeenBlock(hash database.Hash) bool {
	seen, _ := s.seenBlocks.ContainsOrAdd(hash, struct{}{})
	return !seen
}

// firstSeenTx reports whether the transaction id was not seen before and
// remembers it.
func (s *Sync) firstSeenTx(id database.Hash) bool {
	seen, _ := s.seenTxs.ContainsOrAdd(id, struct{}{})
	return !seen
}

// add registers a live connection.
func (s *Sync) add(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isShutdown() {
		return false
	}

	s.conns[c.id] = c
	return true
}

// remove drops a closed connection.
func (s *Sync) remove(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conns, c.id)
}

// connectedTo reports whether a live connection or dial loop exists for
// the host.
func (s *Sync) connectedTo(host string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.dialing[host]; exists {
		return true
	}

	for _, c := range s.conns {
		if c.remoteHost() == host {
			return true
		}
	}

	return false
}

// isShutdown is used to test if a shutdown has been signaled.
func (s *Sync) isShutdown() bool {
	select {
	case <-s.shut:
		return true
	default:
		return false
	}
}
