// Package state is the core API for the blockchain and implements all the
// business rules and processing.
package state

import (
	"errors"
	"sync"

	"github.com/contentledger/blockchain/foundation/blockchain/database"
	"github.com/contentledger/blockchain/foundation/blockchain/genesis"
	"github.com/contentledger/blockchain/foundation/blockchain/mempool"
	"github.com/contentledger/blockchain/foundation/blockchain/peer"
	"github.com/contentledger/blockchain/foundation/events"
)

// Set of error variables for the chain operations.
var (
	ErrNoTransactions     = errors.New("no transactions in mempool")
	ErrStaleBlock         = errors.New("mined block is stale, the tip moved")
	ErrForkNotHeavier     = errors.New("peer chain does not have more work")
	ErrInvariantViolation = errors.New("locally mined block failed validation")
)

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining and transaction sharing.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining() (done func())
	SignalShareTx(tx database.SignedTx)
}

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	Genesis        genesis.Genesis
	Storage        database.Storage
	SelectStrategy string
	Host           string
	KnownPeers     *peer.PeerSet
	EvHandler      EventHandler
}

// State manages the blockchain database.
type State struct {
	mu sync.Mutex

	host      string
	evHandler EventHandler

	knownPeers *peer.PeerSet
	genesis    genesis.Genesis
	mempool    *mempool.Mempool
	db         *database.Database
	confirmed  *events.Events[Confirmed]

	Worker Worker
}

// New constructs a new blockchain for data management.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	// Load every block already in storage and check the chain before it
	// is used.
	db, err := database.New(cfg.Genesis, cfg.Storage, ev)
	if err != nil {
		return nil, err
	}

	// Construct a mempool with the specified select strategy.
	strategy := cfg.SelectStrategy
	if strategy == "" {
		strategy = "fifo"
	}
	mempool, err := mempool.NewWithStrategy(strategy)
	if err != nil {
		return nil, err
	}

	knownPeers := cfg.KnownPeers
	if knownPeers == nil {
		knownPeers = peer.NewPeerSet()
	}

	// Create the State to provide support for managing the blockchain.
	state := State{
		host:      cfg.Host,
		evHandler: ev,

		knownPeers: knownPeers,
		genesis:    cfg.Genesis,
		mempool:    mempool,
		db:         db,
		confirmed:  events.New[Confirmed](),

		Worker: idleWorker{},
	}

	// The Worker is replaced when worker.Run is called, which registers
	// itself and starts everything up and running for the node.

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Stop all blockchain writing activity.
	s.Worker.Shutdown()

	s.confirmed.Shutdown()

	// Make sure the database file is properly closed.
	return s.db.Close()
}

// =============================================================================

// idleWorker is used until a worker registers itself with the state.
type idleWorker struct{}

func (idleWorker) Shutdown()                       {}
func (idleWorker) SignalStartMining()              {}
func (idleWorker) SignalCancelMining() func()      { return func() {} }
func (idleWorker) SignalShareTx(database.SignedTx) {}
