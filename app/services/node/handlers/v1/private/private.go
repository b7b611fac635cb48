// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"errors"
	"net/http"

	v1 "github.com/contentledger/blockchain/business/web/v1"
	"github.com/contentledger/blockchain/foundation/blockchain/database"
	"github.com/contentledger/blockchain/foundation/blockchain/peer"
	"github.com/contentledger/blockchain/foundation/blockchain/peersync"
	"github.com/contentledger/blockchain/foundation/blockchain/state"
	"github.com/contentledger/blockchain/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of node to node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	Sync  *peersync.Sync
}

// Peer upgrades the request into a peer connection and holds it until the
// connection closes.
func (h Handlers) Peer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if err := h.Sync.Accept(w, r); err != nil {
		h.Log.Infow("peer", "traceid", web.GetTraceID(ctx), "remoteaddr", r.RemoteAddr, "ERROR", err)
	}

	return nil
}

// SubmitPeer adds a peer to the known peers and connects to it.
func (h Handlers) SubmitPeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var pr peer.Peer
	if err := web.Decode(r, &pr); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	if pr.Host == "" {
		return v1.NewRequestError(errors.New("host is required"), http.StatusBadRequest)
	}

	h.Log.Infow("submit peer", "traceid", web.GetTraceID(ctx), "host", pr.Host)
	h.Sync.Connect(pr.Host)

	return web.Respond(ctx, w, nil, http.StatusNoContent)
}

// RemovePeer drops a peer from the known peers. A live connection to it
// stays open until it fails.
func (h Handlers) RemovePeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.State.RemoveKnownPeer(peer.New(web.Param(r, "host")))
	return web.Respond(ctx, w, nil, http.StatusNoContent)
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RetrievePeerStatus(), http.StatusOK)
}

// Peers returns the live peer connections.
func (h Handlers) Peers(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.Sync.Peers(), http.StatusOK)
}

// BlocksByNumber returns all the blocks based on the specified to/from values.
func (h Handlers) BlocksByNumber(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	from, to, err := v1.ParseBlockRange(web.Param(r, "from"), web.Param(r, "to"))
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	blocks := h.State.QueryBlocksByNumber(from, to)
	if len(blocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	blockData := make([]database.BlockData, len(blocks))
	for i, block := range blocks {
		blockData[i] = database.NewBlockData(block)
	}

	return web.Respond(ctx, w, blockData, http.StatusOK)
}
