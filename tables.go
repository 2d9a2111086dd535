package ctree

import (
	"cmp"
	"encoding/json"
	"iter"
	"maps"
	"slices"
)

// Table is a key-unique map from a locator to user data. Setting the empty
// value of V deletes the entry. Tables encode to JSON as a list of entries
// sorted by key, so a snapshot does not depend on insertion order.
type Table[K comparable, V any] struct {
	m       map[K]V
	compare func(a, b K) int
	empty   func(v V) bool
	equal   func(a, b V) bool
}

func newTable[K comparable, V any](compare func(a, b K) int, empty func(V) bool, equal func(a, b V) bool) *Table[K, V] {
	return &Table[K, V]{m: make(map[K]V), compare: compare, empty: empty, equal: equal}
}

func (t *Table[K, V]) Get(k K) (V, bool) {
	if t == nil {
		var zero V
		return zero, false
	}
	v, ok := t.m[k]
	return v, ok
}

// Set stores v at k, or deletes k when v is empty. Like the other methods
// it treats a nil table as empty, so Set on nil does nothing.
func (t *Table[K, V]) Set(k K, v V) {
	if t == nil {
		return
	}
	if t.empty != nil && t.empty(v) {
		delete(t.m, k)
		return
	}
	if t.m == nil {
		t.m = make(map[K]V)
	}
	t.m[k] = v
}

// Delete removes k and reports whether it was present.
func (t *Table[K, V]) Delete(k K) bool {
	if t == nil {
		return false
	}
	_, ok := t.m[k]
	delete(t.m, k)
	return ok
}

func (t *Table[K, V]) Len() int {
	if t == nil {
		return 0
	}
	return len(t.m)
}

func (t *Table[K, V]) Clear() {
	if t != nil {
		clear(t.m)
	}
}

// Keys returns the keys in order.
func (t *Table[K, V]) Keys() []K {
	if t == nil {
		return nil
	}
	return slices.SortedFunc(maps.Keys(t.m), t.compare)
}

// All iterates over the entries in key order.
func (t *Table[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, k := range t.Keys() {
			if !yield(k, t.m[k]) {
				return
			}
		}
	}
}

// Equal reports whether both tables hold the same entries.
func (t *Table[K, V]) Equal(o *Table[K, V]) bool {
	if t.Len() != o.Len() {
		return false
	}
	if t.Len() == 0 {
		return true
	}
	for k, v := range t.m {
		ov, ok := o.m[k]
		if !ok || !t.equal(v, ov) {
			return false
		}
	}
	return true
}

type tableEntry[K, V any] struct {
	Key   K `json:"key"`
	Value V `json:"value"`
}

func (t *Table[K, V]) MarshalJSON() ([]byte, error) {
	entries := make([]tableEntry[K, V], 0, t.Len())
	for k, v := range t.All() {
		entries = append(entries, tableEntry[K, V]{Key: k, Value: v})
	}
	return json.Marshal(entries)
}

// UnmarshalJSON replaces the contents of t with the decoded entries.
func (t *Table[K, V]) UnmarshalJSON(data []byte) error {
	var entries []tableEntry[K, V]
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	t.m = make(map[K]V, len(entries))
	for _, e := range entries {
		t.Set(e.Key, e.Value)
	}
	return nil
}

// CitemCmt is a stored comment. Used records whether the printer already
// emitted it; it is not persisted.
type CitemCmt struct {
	Text string `json:"text"`
	Used bool   `json:"-"`
}

// UserCmts maps tree locations to comments.
type UserCmts struct {
	Table[TreeLoc, CitemCmt]
}

func NewUserCmts() *UserCmts {
	return &UserCmts{*newTable(TreeLoc.Compare,
		func(c CitemCmt) bool { return c.Text == "" },
		func(a, b CitemCmt) bool { return a.Text == b.Text })}
}

// SetText stores a comment; an empty text deletes it.
func (uc *UserCmts) SetText(loc TreeLoc, text string) { uc.Set(loc, CitemCmt{Text: text}) }

// Text returns the comment at loc regardless of its used bit.
func (uc *UserCmts) Text(loc TreeLoc) string {
	c, _ := uc.Get(loc)
	return c.Text
}

// Retrieve returns the comment at loc and marks it used. With RetrieveOnce
// a comment that was already used is not returned.
func (uc *UserCmts) Retrieve(loc TreeLoc, how CmtRetrieval) (string, bool) {
	if uc == nil {
		return "", false
	}
	c, ok := uc.m[loc]
	if !ok || (c.Used && how == RetrieveOnce) {
		return "", false
	}
	c.Used = true
	uc.m[loc] = c
	return c.Text, true
}

// ResetUsed clears every used bit, e.g. before the text is regenerated.
func (uc *UserCmts) ResetUsed() {
	if uc == nil {
		return
	}
	for k, c := range uc.m {
		c.Used = false
		uc.m[k] = c
	}
}

// Unused returns the locations whose comments have not been emitted.
func (uc *UserCmts) Unused() []TreeLoc {
	var out []TreeLoc
	for k, c := range uc.All() {
		if !c.Used {
			out = append(out, k)
		}
	}
	return out
}

// table returns the entries of uc; a nil uc has none.
func (uc *UserCmts) table() *Table[TreeLoc, CitemCmt] {
	if uc == nil {
		return nil
	}
	return &uc.Table
}

func (uc *UserCmts) Get(loc TreeLoc) (CitemCmt, bool)  { return uc.table().Get(loc) }
func (uc *UserCmts) Set(loc TreeLoc, c CitemCmt)       { uc.table().Set(loc, c) }
func (uc *UserCmts) Delete(loc TreeLoc) bool           { return uc.table().Delete(loc) }
func (uc *UserCmts) Len() int                          { return uc.table().Len() }
func (uc *UserCmts) Clear()                            { uc.table().Clear() }
func (uc *UserCmts) Keys() []TreeLoc                   { return uc.table().Keys() }
func (uc *UserCmts) All() iter.Seq2[TreeLoc, CitemCmt] { return uc.table().All() }
func (uc *UserCmts) Equal(o *UserCmts) bool            { return uc.table().Equal(o.table()) }

// UserNumforms maps instruction operands to number formats.
type UserNumforms = Table[OperandLocator, NumberFormat]

func NewUserNumforms() *UserNumforms {
	return newTable(OperandLocator.Compare,
		func(nf NumberFormat) bool { return nf == NumberFormat{} },
		func(a, b NumberFormat) bool { return a == b })
}

// UserIflags maps item locators to CIT_ flags.
type UserIflags = Table[ItemLocator, int32]

func NewUserIflags() *UserIflags {
	return newTable(ItemLocator.Compare,
		func(f int32) bool { return f == 0 },
		func(a, b int32) bool { return a == b })
}

// UserLabels maps label numbers to user names.
type UserLabels = Table[int, string]

func NewUserLabels() *UserLabels {
	return newTable(cmp.Compare[int],
		func(s string) bool { return s == "" },
		func(a, b string) bool { return a == b })
}

// UserUnions maps addresses to union member selections: one member number
// per nested union along the access path.
type UserUnions = Table[uint64, []int]

func NewUserUnions() *UserUnions {
	return newTable(cmp.Compare[uint64],
		func(p []int) bool { return len(p) == 0 },
		slices.Equal[[]int])
}
