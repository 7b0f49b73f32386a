package types

// ProofVersion is the layout version of Proof and RangeProof.
const ProofVersion uint8 = 1

// Proof is a bounded multi-key inclusion (or exclusion) proof against
// the state root at Height. Nodes are the trie nodes on the paths of
// the proven keys, deduplicated and sorted.
type Proof struct {
	Version uint8    `cramberry:"1"`
	Height  uint64   `cramberry:"2"`
	Root    Hash     `cramberry:"3"`
	Nodes   [][]byte `cramberry:"4"`
}

// RangeProof proves that Keys/Values are the complete, ordered set of
// leaves between the first key and the last key against Root.
type RangeProof struct {
	Version uint8    `cramberry:"1"`
	Height  uint64   `cramberry:"2"`
	Root    Hash     `cramberry:"3"`
	Keys    [][]byte `cramberry:"4"`
	Values  [][]byte `cramberry:"5"`
	Nodes   [][]byte `cramberry:"6"`
}
