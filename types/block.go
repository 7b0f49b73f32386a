package types

// Block is a finalized, ordered batch of transactions delivered by
// the consensus layer. Height 0 is genesis.
type Block struct {
	Height     uint64        `cramberry:"1"`
	ParentRoot Hash          `cramberry:"2"`
	Txs        []Transaction `cramberry:"3"`
}

// NonceUpdate reports the next expected nonce of an account after a
// block was applied.
type NonceUpdate struct {
	Account PublicKey `cramberry:"1"`
	Next    uint64    `cramberry:"2"`
}

// StateTransitionResult is returned by applying a block. StartHeight
// equals EndHeight when the block had already been applied.
type StateTransitionResult struct {
	StartHeight     uint64        `cramberry:"1"`
	EndHeight       uint64        `cramberry:"2"`
	Events          []Event       `cramberry:"3"`
	Receipts        []Receipt     `cramberry:"4"`
	NewRoot         Hash          `cramberry:"5"`
	ReceiptsRoot    Hash          `cramberry:"6"`
	ProcessedNonces []NonceUpdate `cramberry:"7"`
}

// NoOp reports whether the transition changed nothing.
func (r StateTransitionResult) NoOp() bool { return r.StartHeight == r.EndHeight }

// BlockRecord is the durable form of an applied block in the event
// log: its inputs and the outputs they produced.
type BlockRecord struct {
	Height       uint64        `cramberry:"1"`
	ParentRoot   Hash          `cramberry:"2"`
	Txs          []Transaction `cramberry:"3"`
	Events       []Event       `cramberry:"4"`
	Receipts     []Receipt     `cramberry:"5"`
	StateRoot    Hash          `cramberry:"6"`
	ReceiptsRoot Hash          `cramberry:"7"`
}
