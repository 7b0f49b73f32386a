package types

// QueryPath selects a query handler.
type QueryPath string

const (
	QueryAccount  QueryPath = "/account"
	QueryEvents   QueryPath = "/events"
	QueryReceipts QueryPath = "/receipts"
	QueryProof    QueryPath = "/proof"
	QueryState    QueryPath = "/state"
)

// Query result codes.
const (
	QueryOK uint32 = iota
	QueryNotFound
	QueryBadRequest
	QueryUnknownPath
	QueryUnknownHeight
)

// StateQuery is a request to read committed ledger state.
type StateQuery struct {
	Path QueryPath `cramberry:"1"`
	// Account for /account; ignored otherwise.
	Account PublicKey `cramberry:"2"`
	// Keys for /proof and /state.
	Keys []Key `cramberry:"3"`
	// Height to query at. Nil = latest committed state.
	Height *uint64 `cramberry:"4"`
	// FromHeight/ToHeight bound /events and /receipts (inclusive).
	FromHeight uint64 `cramberry:"5"`
	ToHeight   uint64 `cramberry:"6"`
	// If true, /account and /state attach a proof.
	Prove bool `cramberry:"7"`
}

// HeightEvents are the events committed at one height.
type HeightEvents struct {
	Height   uint64    `cramberry:"1"`
	Events   []Event   `cramberry:"2"`
	Receipts []Receipt `cramberry:"3"`
}

// StateQueryResult is the response to a StateQuery. Only the fields
// relevant to the path are set.
type StateQueryResult struct {
	Code    uint32         `cramberry:"1"`
	Height  uint64         `cramberry:"2"`
	Root    Hash           `cramberry:"3"`
	Account *Account       `cramberry:"4"`
	Values  [][]byte       `cramberry:"5"`
	Blocks  []HeightEvents `cramberry:"6"`
	Proof   *Proof         `cramberry:"7"`
	Info    string         `cramberry:"8"`
}

// OK returns true if the query succeeded.
func (r StateQueryResult) OK() bool { return r.Code == QueryOK }
