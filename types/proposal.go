package types

// ProposalContext is provided when this node proposes the next block.
type ProposalContext struct {
	Height uint64 `cramberry:"1"`
	// Maximum number of transactions in the proposal.
	MaxTxs uint32 `cramberry:"2"`
}

// BuiltProposal is the ordered transaction list for the next block.
type BuiltProposal struct {
	Txs []Transaction `cramberry:"1"`
}

// ReceivedProposal is a proposal from another node, checked before
// voting.
type ReceivedProposal struct {
	Height uint64        `cramberry:"1"`
	Txs    []Transaction `cramberry:"2"`
}

// ProposalVerdict is the structural verdict on a received proposal.
type ProposalVerdict struct {
	Accept bool   `cramberry:"1"`
	Reason string `cramberry:"2"`
	// Index of the first offending transaction when rejected.
	TxIndex uint32 `cramberry:"3"`
}
