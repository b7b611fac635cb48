// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/contentledger/blockchain/business/sys/validate"
	v1 "github.com/contentledger/blockchain/business/web/v1"
	"github.com/contentledger/blockchain/foundation/blockchain/database"
	"github.com/contentledger/blockchain/foundation/blockchain/peersync"
	"github.com/contentledger/blockchain/foundation/blockchain/state"
	"github.com/contentledger/blockchain/foundation/events"
	"github.com/contentledger/blockchain/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of public ledger endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	Sync  *peersync.Sync
	WS    websocket.Upgrader
	Evts  *events.Events[string]
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	return stream(c, ch, func(msg string) error {
		return c.WriteMessage(websocket.TextMessage, []byte(msg))
	})
}

// Confirmed handles a web socket that receives a notice for every block
// that joins the chain.
func (h Handlers) Confirmed(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.State.SubscribeConfirmed(v.TraceID)
	defer h.State.UnsubscribeConfirmed(v.TraceID)

	return stream(c, ch, func(cfm state.Confirmed) error {
		return c.WriteJSON(cfm)
	})
}

// stream writes every value received on the channel to the client and
// pings the client each second so dead sockets are noticed.
func stream[T any](c *websocket.Conn, ch <-chan T, write func(T) error) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := write(msg); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitTransaction adds a new signed transaction to the mempool.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var signedTx database.SignedTx
	if err := web.Decode(r, &signedTx); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	if err := validate.Check(signedTx); err != nil {
		return err
	}

	h.Log.Infow("submit tran", "traceid", web.GetTraceID(ctx), "tx", signedTx)
	if err := h.State.SubmitTransaction(signedTx); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string        `json:"status"`
		ID     database.Hash `json:"id"`
	}{
		Status: "transaction added to mempool",
		ID:     signedTx.ID,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Transaction reports whether a transaction is pending or in which block
// it was confirmed.
func (h Handlers) Transaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id, err := database.ToHash(web.Param(r, "id"))
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	if index, confirmed := h.State.QueryTransaction(id); confirmed {
		return web.Respond(ctx, w, txStatus{ID: id, Status: "confirmed", BlockIndex: index}, http.StatusOK)
	}

	for _, tx := range h.State.RetrieveMempool() {
		if tx.ID == id {
			return web.Respond(ctx, w, txStatus{ID: id, Status: "pending"}, http.StatusOK)
		}
	}

	return v1.NewRequestError(errors.New("transaction not found"), http.StatusNotFound)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RetrieveGenesis(), http.StatusOK)
}

// Status returns the chain and connection status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	latest := h.State.RetrieveLatestBlock()

	st := status{
		Host:           h.State.RetrieveHost(),
		Height:         latest.Header.Index,
		LatestBlock:    latest.Hash(),
		CumulativeWork: h.State.RetrieveCumulativeWork().String(),
		Uncommitted:    h.State.QueryMempoolLength(),
		Peers:          h.Sync.Peers(),
	}

	return web.Respond(ctx, w, st, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions in the order they
// would be mined.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RetrieveMempool(), http.StatusOK)
}

// BlocksByNumber returns the blocks in the specified range.
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
