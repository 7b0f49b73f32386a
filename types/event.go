package types

import (
	"fmt"
	"strconv"
)

// EventKind tags an event. Values are stable and part of the
// event log encoding.
type EventKind uint32

const (
	EventPlayerRegistered    EventKind = 20
	EventGameStarted         EventKind = 21
	EventGameMoved           EventKind = 22
	EventGameCompleted       EventKind = 23
	EventBetPlaced           EventKind = 24
	EventError               EventKind = 29
	EventVaultCreated        EventKind = 30
	EventCollateralDeposited EventKind = 31
	EventVUSDTBorrowed       EventKind = 32
	EventVUSDTRepaid         EventKind = 33
	EventAmmSwapped          EventKind = 34
	EventLiquidityAdded      EventKind = 35
	EventLiquidityRemoved    EventKind = 36
	EventStaked              EventKind = 37
	EventUnstaked            EventKind = 38
	EventEpochProcessed      EventKind = 39
	EventRewardsClaimed      EventKind = 40
	EventDeposited           EventKind = 41
)

var eventNames = map[EventKind]string{
	EventPlayerRegistered:    "PlayerRegistered",
	EventGameStarted:         "GameStarted",
	EventGameMoved:           "GameMoved",
	EventGameCompleted:       "GameCompleted",
	EventBetPlaced:           "BetPlaced",
	EventError:               "Error",
	EventVaultCreated:        "VaultCreated",
	EventCollateralDeposited: "CollateralDeposited",
	EventVUSDTBorrowed:       "VUSDTBorrowed",
	EventVUSDTRepaid:         "VUSDTRepaid",
	EventAmmSwapped:          "AmmSwapped",
	EventLiquidityAdded:      "LiquidityAdded",
	EventLiquidityRemoved:    "LiquidityRemoved",
	EventStaked:              "Staked",
	EventUnstaked:            "Unstaked",
	EventEpochProcessed:      "EpochProcessed",
	EventRewardsClaimed:      "RewardsClaimed",
	EventDeposited:           "Deposited",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", uint32(k))
}

// EventAttribute is a single key-value tag within an event.
type EventAttribute struct {
	Key   string `cramberry:"1"`
	Value string `cramberry:"2"`
}

// Event is an append-only output of applying one instruction.
type Event struct {
	Kind       EventKind        `cramberry:"1"`
	Account    PublicKey        `cramberry:"2"`
	Attributes []EventAttribute `cramberry:"3"`
}

// NewEvent builds an event with the given attributes in order.
func NewEvent(kind EventKind, account PublicKey, attrs ...EventAttribute) Event {
	return Event{Kind: kind, Account: account, Attributes: attrs}
}

// Uint is an unsigned integer attribute.
func Uint(key string, v uint64) EventAttribute {
	return EventAttribute{Key: key, Value: strconv.FormatUint(v, 10)}
}

// String is a string attribute.
func String(key, v string) EventAttribute {
	return EventAttribute{Key: key, Value: v}
}

// Bool is a boolean attribute.
func Bool(key string, v bool) EventAttribute {
	return EventAttribute{Key: key, Value: strconv.FormatBool(v)}
}

// Attr returns the value of the first attribute named key.
func (e Event) Attr(key string) (string, bool) {
	for _, a := range e.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// UintAttr parses the attribute named key as an unsigned integer.
func (e Event) UintAttr(key string) (uint64, bool) {
	v, ok := e.Attr(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Equal compares two events by value.
func (e Event) Equal(o Event) bool {
	if e.Kind != o.Kind || e.Account != o.Account || len(e.Attributes) != len(o.Attributes) {
		return false
	}
	for i := range e.Attributes {
		if e.Attributes[i] != o.Attributes[i] {
			return false
		}
	}
	return true
}

// EventsEqual compares two event sequences by value.
func EventsEqual(a, b []Event) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
