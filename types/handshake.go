package types

// HandshakeRequest is sent once on every startup. Genesis is used only
// when the ledger has no committed state.
type HandshakeRequest struct {
	Genesis *GenesisDoc `cramberry:"1"`
	// AwaitSnapshot lets a ledger without state finish the handshake
	// empty; it becomes ready once ImportSnapshot succeeds.
	AwaitSnapshot bool `cramberry:"2"`
}

// HandshakeResponse reports the ledger's committed state after
// genesis or recovery.
type HandshakeResponse struct {
	LastBlock    BlockID      `cramberry:"1"`
	Capabilities Capabilities `cramberry:"2"`
	// Recovered is true if startup replayed a logged block whose
	// state commit had not landed.
	Recovered bool `cramberry:"3"`
}
