package store

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/blockberries/nullspace/state"
	"github.com/blockberries/nullspace/types"
)

// Change is one staged mutation. Delete takes precedence over Value.
type Change struct {
	Key    types.Key
	Value  []byte
	Delete bool
}

// SortChanges orders changes by key, the canonical order every batch
// is applied in.
func SortChanges(changes []Change) {
	sort.Slice(changes, func(i, j int) bool {
		return compareKeys(changes[i].Key, changes[j].Key) < 0
	})
}

// Overlay stages mutations over a parent view. Reads see staged
// values first. Nothing reaches the parent until Flush.
//
// An Overlay is not safe for concurrent use.
type Overlay struct {
	parent  state.View
	pending map[types.Key]Change
}

var _ state.View = (*Overlay)(nil)

// NewOverlay returns an empty overlay over parent.
func NewOverlay(parent state.View) *Overlay {
	return &Overlay{parent: parent, pending: make(map[types.Key]Change)}
}

func (o *Overlay) Get(key types.Key) ([]byte, error) {
	if c, ok := o.pending[key]; ok {
		if c.Delete {
			return nil, nil
		}
		return c.Value, nil
	}
	return o.parent.Get(key)
}

func (o *Overlay) Insert(key types.Key, value []byte) error {
	if len(value) == 0 {
		return fmt.Errorf("store: empty value for key %s", key)
	}
	o.pending[key] = Change{Key: key, Value: bytes.Clone(value)}
	return nil
}

func (o *Overlay) Delete(key types.Key) error {
	o.pending[key] = Change{Key: key, Delete: true}
	return nil
}

// Len returns the number of staged keys.
func (o *Overlay) Len() int { return len(o.pending) }

// Changes returns the staged mutations in key order.
func (o *Overlay) Changes() []Change {
	out := make([]Change, 0, len(o.pending))
	for _, c := range o.pending {
		out = append(out, c)
	}
	SortChanges(out)
	return out
}

// Flush writes the staged mutations to the parent in key order and
// clears the overlay.
func (o *Overlay) Flush() error {
	for _, c := range o.Changes() {
		var err error
		if c.Delete {
			err = o.parent.Delete(c.Key)
		} else {
			err = o.parent.Insert(c.Key, c.Value)
		}
		if err != nil {
			return err
		}
	}
	clear(o.pending)
	return nil
}

// Discard drops the staged mutations.
func (o *Overlay) Discard() { clear(o.pending) }

func compareKeys(a, b types.Key) int { return bytes.Compare(a[:], b[:]) }
