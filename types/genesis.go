package types

// GenesisAccount funds one account at height 0.
type GenesisAccount struct {
	Public PublicKey `cramberry:"1"`
	Chips  uint64    `cramberry:"2"`
	VUSDT  uint64    `cramberry:"3"`
}

// GenesisPool seeds the AMM at height 0.
type GenesisPool struct {
	ReserveChips uint64 `cramberry:"1"`
	ReserveVUSDT uint64 `cramberry:"2"`
}

// GenesisDoc is the document height 0 is built from.
type GenesisDoc struct {
	ChainID     string           `cramberry:"1"`
	GenesisTime Timestamp        `cramberry:"2"`
	Config      ChainConfig      `cramberry:"3"`
	Accounts    []GenesisAccount `cramberry:"4"`
	Pool        *GenesisPool     `cramberry:"5"`
}
