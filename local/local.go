// Package local provides an in-process ledger connection.
//
// For a ledger compiled into the same binary as the consensus engine,
// this adapter adds call-order enforcement and capability discovery
// with no serialization overhead.
package local

import (
	"context"
	"log/slog"

	"github.com/blockberries/nullspace"
	"github.com/blockberries/nullspace/server"
	"github.com/blockberries/nullspace/types"
)

// Compile-time interface check.
var _ nullspace.Connection = (*Connection)(nil)

// Connection wraps a local Lifecycle implementation.
type Connection struct {
	srv *server.Server
	// closer is the ledger's Close, if it has one.
	closer func() error
}

// NewConnection creates an in-process connection wrapping the given
// ledger. Close closes the ledger if it implements io.Closer.
func NewConnection(app nullspace.Lifecycle, logger *slog.Logger) *Connection {
	c := &Connection{srv: server.New(app, logger)}
	if cl, ok := app.(interface{ Close() error }); ok {
		c.closer = cl.Close
	}
	return c
}

func (c *Connection) Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	return c.srv.Handshake(ctx, req)
}

func (c *Connection) CheckTx(ctx context.Context, tx types.Transaction) (types.Verdict, error) {
	return c.srv.CheckTx(ctx, tx)
}

func (c *Connection) ApplyBlock(ctx context.Context, block types.Block) (types.StateTransitionResult, error) {
	return c.srv.ApplyBlock(ctx, block)
}

func (c *Connection) Query(ctx context.Context, req types.StateQuery) (types.StateQueryResult, error) {
	return c.srv.Query(ctx, req)
}

func (c *Connection) Capabilities() types.Capabilities {
	return c.srv.Capabilities()
}

func (c *Connection) AsProposalControl() nullspace.ProposalControl {
	return c.srv.AsProposalControl()
}

func (c *Connection) AsStateSync() nullspace.StateSync {
	return c.srv.AsStateSync()
}

func (c *Connection) AsSimulator() nullspace.Simulator {
	return c.srv.AsSimulator()
}

func (c *Connection) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

// Server returns the underlying server for advanced use cases.
func (c *Connection) Server() *server.Server {
	return c.srv
}
