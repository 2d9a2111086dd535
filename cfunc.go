package ctree

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/tools/container/intsets"
)

// CfuncState records which derived data of a Cfunc is up to date.
type CfuncState uint32

const (
	CfsBounds      CfuncState = 1 << iota // EAMap and Boundaries are ready
	CfsText                               // Pseudocode is ready
	CfsLvarsHidden                        // variable declarations are collapsed
)

// AddrRange is the half-open address range [Start, End).
type AddrRange struct {
	Start, End uint64
}

// Cfunc is a decompiled function: the tree, its variables and the user
// annotations that apply to it. It is shared through the cache and
// reference counted; a holder must call Release when done.
//
// Changes to the tree go through Mutate, which holds the write lock and
// invalidates the derived text. Readers use Read.
type Cfunc struct {
	EntryEA  uint64
	Name     string
	Body     *Insn
	Maturity Maturity
	Vars     Lvars
	ArgIdx   []int
	RetType  Type
	Types    TypeOracle

	UserLabels *UserLabels
	UserCmts   *UserCmts
	Numforms   *UserNumforms
	UserIflags *UserIflags
	UserUnions *UserUnions

	mu        sync.RWMutex
	cacheMu   sync.Mutex
	refcnt    atomic.Int32
	statebits CfuncState

	eamap      map[uint64][]Item
	boundaries map[*Insn][]AddrRange
	pseudocode []string
	hdrlines   int
	coords     map[Item]int

	warnings    Warnings
	stkoffDelta uint64
	bus         *Bus
	onRelease   func(*Cfunc)
}

func newCfunc(ea uint64, types TypeOracle) *Cfunc {
	cf := &Cfunc{
		EntryEA:    ea,
		Types:      types,
		UserLabels: NewUserLabels(),
		UserCmts:   NewUserCmts(),
		Numforms:   NewUserNumforms(),
		UserIflags: NewUserIflags(),
		UserUnions: NewUserUnions(),
	}
	cf.refcnt.Store(1)
	return cf
}

// FromTree wraps a tree built by hand. A body that is not a block is
// wrapped into one.
func FromTree(ea uint64, body *Insn, vars Lvars, types TypeOracle) *Cfunc {
	cf := newCfunc(ea, types)
	if body == nil {
		body = NewBlock()
	} else if body.op != InsnBlock {
		body = NewBlock(body)
	}
	if body.EA == BadAddr {
		body.EA = ea
	}
	cf.Body = body
	cf.Vars = vars
	cf.Maturity = CmatBuilt
	for i, v := range vars {
		if v.IsArgVar() {
			cf.ArgIdx = append(cf.ArgIdx, i)
		}
	}
	return cf
}

// Retain adds a reference.
func (cf *Cfunc) Retain() { cf.refcnt.Add(1) }

// Release drops a reference. The last release frees the tree.
func (cf *Cfunc) Release() {
	n := cf.refcnt.Add(-1)
	switch {
	case n < 0:
		panic(interrAt(cf.EntryEA, "cfunc released too many times"))
	case n > 0:
		return
	}
	cf.mu.Lock()
	if cf.Body != nil {
		cf.Body.Cleanup()
		cf.Body = nil
	}
	cf.mu.Unlock()
	cf.invalidate()
	if cf.onRelease != nil {
		cf.onRelease(cf)
	}
}

// Refs returns the current reference count.
func (cf *Cfunc) Refs() int { return int(cf.refcnt.Load()) }

// Read calls fn with the read lock held.
func (cf *Cfunc) Read(fn func(cf *Cfunc) error) error {
	cf.mu.RLock()
	defer cf.mu.RUnlock()
	return fn(cf)
}

// Mutate calls fn with the write lock held. Derived data is invalidated
// when fn returns, whatever it returns.
func (cf *Cfunc) Mutate(fn func(cf *Cfunc) error) error {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	defer cf.invalidate()
	return fn(cf)
}

func (cf *Cfunc) invalidate() {
	cf.cacheMu.Lock()
	defer cf.cacheMu.Unlock()
	cf.statebits &^= CfsBounds | CfsText
	cf.eamap = nil
	cf.boundaries = nil
	cf.pseudocode = nil
	cf.coords = nil
}

// State returns the state bits.
func (cf *Cfunc) State() CfuncState {
	cf.cacheMu.Lock()
	defer cf.cacheMu.Unlock()
	return cf.statebits
}

// HideLvars collapses or expands the variable declarations.
func (cf *Cfunc) HideLvars(hide bool) {
	cf.cacheMu.Lock()
	defer cf.cacheMu.Unlock()
	if hide {
		cf.statebits |= CfsLvarsHidden
	} else {
		cf.statebits &^= CfsLvarsHidden
	}
	cf.statebits &^= CfsText
}

func (cf *Cfunc) TypeCtx() *TypeCtx { return &TypeCtx{Oracle: cf.Types, Vars: cf.Vars} }

func (cf *Cfunc) StkoffDelta() uint64 { return cf.stkoffDelta }

func (cf *Cfunc) Warnings() []Warning { return cf.warnings.List() }

// Verify checks the structural invariants of the tree. Unless
// allowUnusedLabels is set every label must be the target of a goto.
func (cf *Cfunc) Verify(allowUnusedLabels bool) error {
	if cf.Body == nil || cf.Body.op != InsnBlock {
		return interrAt(cf.EntryEA, "function body is not a block")
	}
	var (
		labels  intsets.Sparse
		targets intsets.Sparse
		err     error
	)
	fail := func(it Item, format string, args ...any) int {
		err = interrAt(HeaderOf(it).EA, format, args...)
		return 1
	}
	check := func(w *Walker, it Item) int {
		h := it.header()
		if h.HasLabel() && !labels.Insert(h.Label) {
			return fail(it, "duplicate label %d", h.Label)
		}
		switch it := it.(type) {
		case *Expr:
			return cf.verifyExpr(it, fail)
		case *Insn:
			if it.op == InsnGoto {
				targets.Insert(it.GotoLabel())
			}
			if it.op == InsnBlock {
				for s := range it.Block().All() {
					if s.list != it.Block() {
						return fail(s, "statement linked into a foreign block")
					}
				}
			}
		}
		return 0
	}
	Walk(cf.Body, 0, VisitorFuncs{
		Insn: func(w *Walker, i *Insn) int { return check(w, i) },
		Expr: func(w *Walker, e *Expr) int { return check(w, e) },
	})
	if err != nil {
		return err
	}
	if !targets.SubsetOf(&labels) {
		var missing intsets.Sparse
		missing.Difference(&targets, &labels)
		return interrAt(cf.EntryEA, "goto to undefined label %d", missing.Min())
	}
	if !allowUnusedLabels && !labels.SubsetOf(&targets) {
		var unused intsets.Sparse
		unused.Difference(&labels, &targets)
		return interrAt(cf.EntryEA, "unused label %d", unused.Min())
	}
	if free := CollectFreeBreaks(cf.Body); len(free) > 0 {
		return interrAt(free[0].EA, "break outside of a loop or switch")
	}
	if free := CollectFreeContinues(cf.Body); len(free) > 0 {
		return interrAt(free[0].EA, "continue outside of a loop")
	}
	return nil
}

func (cf *Cfunc) verifyExpr(e *Expr, fail func(Item, string, ...any) int) int {
	op := e.op
	for n, x := range e.Operands() {
		if x == nil || x.op == ExprEmpty {
			return fail(e, "%s: operand %d is missing", op, n)
		}
	}
	switch {
	case op == ExprVar:
		if idx := e.VarIndex(); idx < 0 || idx >= len(cf.Vars) {
			return fail(e, "variable index %d out of range", idx)
		}
	case op == ExprInsn && cf.Maturity >= CmatFinal:
		return fail(e, "statement embedded in an expression")
	case op == ExprPtr && e.PtrSize() <= 0:
		return fail(e, "dereference without an access size")
	}
	return 0
}

// FindLabel returns the item carrying label, or nil.
func (cf *Cfunc) FindLabel(label int) Item {
	if cf.Body == nil || label < 0 {
		return nil
	}
	for it := range subtree(cf.Body) {
		if it.header().Label == label {
			return it
		}
	}
	return nil
}

// RemoveUnusedLabels drops the labels that no goto targets and returns
// how many were dropped.
func (cf *Cfunc) RemoveUnusedLabels() int {
	if cf.Body == nil {
		return 0
	}
	var used intsets.Sparse
	for it := range subtree(cf.Body) {
		if i, ok := it.(*Insn); ok && i.op == InsnGoto {
			used.Insert(i.GotoLabel())
		}
	}
	n := 0
	for it := range subtree(cf.Body) {
		h := it.header()
		if h.HasLabel() && !used.Has(h.Label) {
			h.Label = NoLabel
			n++
		}
	}
	return n
}

// GetUserCmt returns the comment at loc.
func (cf *Cfunc) GetUserCmt(loc TreeLoc, how CmtRetrieval) string {
	text, _ := cf.UserCmts.Retrieve(loc, how)
	return text
}

// SetUserCmt sets the comment at loc; an empty text deletes it.
func (cf *Cfunc) SetUserCmt(loc TreeLoc, text string) {
	cf.UserCmts.SetText(loc, text)
	cf.dropText()
}

func (cf *Cfunc) GetUserIflags(loc ItemLocator) int32 {
	f, _ := cf.UserIflags.Get(loc)
	return f
}

func (cf *Cfunc) SetUserIflags(loc ItemLocator, flags int32) {
	cf.UserIflags.Set(loc, flags)
	cf.dropText()
}

// GetUserUnionSelection returns the member path chosen at ea.
func (cf *Cfunc) GetUserUnionSelection(ea uint64) []int {
	path, _ := cf.UserUnions.Get(ea)
	return slices.Clone(path)
}

func (cf *Cfunc) SetUserUnionSelection(ea uint64, path []int) {
	cf.UserUnions.Set(ea, slices.Clone(path))
}

// SetUserLabel names label; an empty name restores the default one.
func (cf *Cfunc) SetUserLabel(label int, name string) {
	cf.UserLabels.Set(label, name)
	cf.dropText()
}

func (cf *Cfunc) dropText() {
	cf.cacheMu.Lock()
	defer cf.cacheMu.Unlock()
	cf.statebits &^= CfsText
}

// orphan reports whether a comment at loc has no item to attach to.
func (cf *Cfunc) orphan(loc TreeLoc, eamap map[uint64][]Item) bool {
	if loc.EA == cf.EntryEA {
		return false
	}
	_, ok := eamap[loc.EA]
	return !ok
}

// HasOrphanCmts reports whether some comment points to an address no
// longer present in the tree.
func (cf *Cfunc) HasOrphanCmts() bool {
	eamap := cf.EAMap()
	for loc := range cf.UserCmts.All() {
		if cf.orphan(loc, eamap) {
			return true
		}
	}
	return false
}

// DelOrphanCmts deletes the orphan comments and returns their number.
func (cf *Cfunc) DelOrphanCmts() int {
	eamap := cf.EAMap()
	n := 0
	for _, loc := range cf.UserCmts.Keys() {
		if cf.orphan(loc, eamap) {
			cf.UserCmts.Delete(loc)
			n++
		}
	}
	if n > 0 {
		cf.dropText()
	}
	return n
}

// EAMap returns the items of the tree grouped by address.
func (cf *Cfunc) EAMap() map[uint64][]Item {
	cf.cacheMu.Lock()
	defer cf.cacheMu.Unlock()
	cf.computeBounds()
	return cf.eamap
}

// Boundaries returns, for each statement, the addresses its own
// expressions come from.
func (cf *Cfunc) Boundaries() map[*Insn][]AddrRange {
	cf.cacheMu.Lock()
	defer cf.cacheMu.Unlock()
	cf.computeBounds()
	return cf.boundaries
}

func (cf *Cfunc) computeBounds() {
	if cf.statebits&CfsBounds != 0 {
		return
	}
	cf.eamap = make(map[uint64][]Item)
	cf.boundaries = make(map[*Insn][]AddrRange)
	if cf.Body != nil {
		var owners []*Insn
		Walk(cf.Body, CvPost, VisitorFuncs{
			Insn: func(w *Walker, i *Insn) int {
				owners = append(owners, i)
				cf.note(i, i)
				return 0
			},
			LeaveI: func(w *Walker, i *Insn) int {
				owners = owners[:len(owners)-1]
				return 0
			},
			Expr: func(w *Walker, e *Expr) int {
				cf.note(e, owners[len(owners)-1])
				return 0
			},
		})
	}
	for i, rs := range cf.boundaries {
		cf.boundaries[i] = mergeRanges(rs)
	}
	cf.statebits |= CfsBounds
}

func (cf *Cfunc) note(it Item, owner *Insn) {
	ea := it.header().EA
	if ea == BadAddr {
		return
	}
	cf.eamap[ea] = append(cf.eamap[ea], it)
	if owner.op != InsnBlock {
		cf.boundaries[owner] = append(cf.boundaries[owner], AddrRange{ea, ea + 1})
	}
}

func mergeRanges(rs []AddrRange) []AddrRange {
	slices.SortFunc(rs, func(a, b AddrRange) int {
		if a.Start != b.Start {
			return cmpUint(a.Start, b.Start)
		}
		return cmpUint(a.End, b.End)
	})
	out := rs[:0]
	for _, r := range rs {
		if n := len(out); n > 0 && r.Start <= out[n-1].End {
			out[n-1].End = max(out[n-1].End, r.End)
			continue
		}
		out = append(out, r)
	}
	return out
}

func cmpUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// FindByEA returns the items generated from ea.
func (cf *Cfunc) FindByEA(ea uint64) []Item { return cf.EAMap()[ea] }

// Pseudocode returns the text of the function. It is regenerated after
// any change; comments are emitted once each.
//
// The print events are fired without any lock of cf held, so subscribers
// may call back into cf.
func (cf *Cfunc) Pseudocode() []string {
	cf.cacheMu.Lock()
	if cf.statebits&CfsText != 0 {
		defer cf.cacheMu.Unlock()
		return slices.Clone(cf.pseudocode)
	}
	cf.cacheMu.Unlock()

	cf.bus.Fire(EvPrintFunc, cf)

	cf.cacheMu.Lock()
	printed := cf.statebits&CfsText == 0
	if printed {
		cf.UserCmts.ResetUsed()
		p := newPrinter(cf)
		cf.hdrlines = p.printFunc()
		cf.pseudocode = p.lines
		cf.coords = p.coords
		cf.statebits |= CfsText
	}
	lines := slices.Clone(cf.pseudocode)
	cf.cacheMu.Unlock()

	if printed {
		cf.bus.Fire(EvFuncPrinted, cf)
	}
	return lines
}

// HeaderLines returns the number of text lines before the first statement.
func (cf *Cfunc) HeaderLines() int {
	cf.Pseudocode()
	cf.cacheMu.Lock()
	defer cf.cacheMu.Unlock()
	return cf.hdrlines
}

// FindItemCoords returns the text line where it is printed.
func (cf *Cfunc) FindItemCoords(it Item) (int, bool) {
	cf.Pseudocode()
	cf.cacheMu.Lock()
	defer cf.cacheMu.Unlock()
	line, ok := cf.coords[it]
	return line, ok
}

func (cf *Cfunc) String() string {
	return fmt.Sprintf("cfunc %#x (%s, %d vars)", cf.EntryEA, cf.Maturity, len(cf.Vars))
}
