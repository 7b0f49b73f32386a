package types

// SimulationResult is the outcome of dry-running one transaction
// against committed state. Nothing is persisted.
type SimulationResult struct {
	Height  uint64  `cramberry:"1"`
	Receipt Receipt `cramberry:"2"`
	Events  []Event `cramberry:"3"`
}
