package ctree

// HasSideEffects reports whether evaluating e may change program state:
// assignments, increments, calls and embedded statements anywhere in the
// subtree.
func (e *Expr) HasSideEffects() bool {
	if e == nil {
		return false
	}
	if IsAssignment(e.op) || IsPrePost(e.op) || e.op == ExprCall || e.op == ExprInsn {
		return true
	}
	for _, c := range e.Operands() {
		if c.HasSideEffects() {
			return true
		}
	}
	return false
}

// RequiresLvalue reports whether child, a direct operand of e, must be an
// lvalue for e to be well formed.
func (e *Expr) RequiresLvalue(child *Expr) bool {
	switch {
	case IsAssignment(e.op):
		return e.X() == child
	case IsPrePost(e.op), e.op == ExprRef:
		return e.X() == child
	}
	return false
}

// IsSmallUDTOpLegal reports whether e may operate on a small structure or
// union value.
func (e *Expr) IsSmallUDTOpLegal() bool {
	if !e.Type.IsSmallUDT() {
		for _, c := range e.Operands() {
			if c.Type.IsSmallUDT() {
				return AllowedOnSmallUDT(e.op)
			}
		}
		return true
	}
	return AllowedOnSmallUDT(e.op)
}

// Contains reports whether the subtree of e holds at least times
// expressions of kind op, e included.
func (e *Expr) Contains(op Ctype, times int) bool {
	n := 0
	e.countOps(op, &n, times)
	return n >= times
}

func (e *Expr) countOps(op Ctype, n *int, limit int) {
	if e == nil || *n >= limit {
		return
	}
	if e.op == op {
		*n++
	}
	for _, c := range e.Operands() {
		c.countOps(op, n, limit)
	}
	if e.op == ExprInsn {
		for it := range subtree(e.Insn()) {
			if x, ok := it.(*Expr); ok && x.op == op {
				*n++
			}
		}
	}
}

// ContainsComma reports whether e has a comma operator at least times.
func (e *Expr) ContainsComma(times int) bool { return e.Contains(ExprComma, times) }

// ContainsInsn reports whether e embeds at least times statements.
func (e *Expr) ContainsInsn(times int) bool { return e.Contains(ExprInsn, times) }

// ContainsLabel reports whether any item of the subtree carries a label.
func ContainsLabel(root Item) bool {
	for it := range subtree(root) {
		if it.header().HasLabel() {
			return true
		}
	}
	return false
}

// ContainsInsnCount counts the statements of kind op below root, root
// included.
func ContainsInsnCount(root *Insn, op Ctype) int {
	n := 0
	for it := range subtree(root) {
		if it.Op() == op {
			n++
		}
	}
	return n
}

// IsNiceExpr reports whether e is free of commas, embedded statements and
// labels. Most rewrites only apply to nice expressions.
func (e *Expr) IsNiceExpr() bool {
	return !e.ContainsComma(1) && !e.ContainsInsn(1) && !ContainsLabel(e)
}

// IsNiceCond reports whether e is a nice expression usable as a condition.
func (e *Expr) IsNiceCond() bool {
	return e.IsNiceExpr() && !e.Type.IsUDT() && !e.Type.IsVoid()
}

// FindParentOf returns the direct parent of target below root, or nil.
func FindParentOf(root Item, target Item) Item {
	for it := range subtree(root) {
		for _, c := range directChildren(it) {
			if c == target {
				return it
			}
		}
	}
	return nil
}

// IsChildOf reports whether it is a proper descendant of parent.
func IsChildOf(it Item, parent Item) bool {
	if it == parent {
		return false
	}
	for x := range subtree(parent) {
		if x == it {
			return true
		}
	}
	return false
}

// CollectFreeBreaks returns the break statements of root that would leave
// root itself, i.e. those not consumed by a nested loop or switch.
func CollectFreeBreaks(root *Insn) []*Insn { return collectFree(root, InsnBreak) }

// CollectFreeContinues returns the continue statements of root not consumed
// by a nested loop.
func CollectFreeContinues(root *Insn) []*Insn { return collectFree(root, InsnContinue) }

func collectFree(root *Insn, want Ctype) []*Insn {
	var out []*Insn
	var walk func(i *Insn, top bool)
	walk = func(i *Insn, top bool) {
		if i == nil {
			return
		}
		if i.op == want {
			out = append(out, i)
			return
		}
		if !top {
			if want == InsnBreak && IsBreakConsumer(i.op) {
				return
			}
			if want == InsnContinue && IsLoop(i.op) {
				return
			}
		}
		for _, c := range i.Children() {
			if s, ok := c.(*Insn); ok {
				walk(s, false)
			}
		}
	}
	walk(root, true)
	return out
}

// IsOrdinaryFlow reports whether control can fall off the end of i: it is
// not a jump and does not end in one.
func (i *Insn) IsOrdinaryFlow() bool {
	switch i.op {
	case InsnBreak, InsnContinue, InsnReturn, InsnGoto:
		return false
	case InsnBlock:
		last := i.Block().Back()
		return last == nil || last.IsOrdinaryFlow()
	case InsnIf:
		if i.Else() == nil {
			return true
		}
		return i.Then().IsOrdinaryFlow() || i.Else().IsOrdinaryFlow()
	}
	return true
}

// HighBitBound returns how many low bits can be nonzero in the value of e,
// or the full width of its type when nothing better is known.
func (e *Expr) HighBitBound() int {
	full := e.Type.Size * 8
	switch e.op {
	case ExprNum:
		v := e.NumValue()
		n := 0
		for v != 0 {
			n++
			v >>= 1
		}
		return n
	case ExprBand:
		return min(e.X().HighBitBound(), e.Y().HighBitBound())
	case ExprBor, ExprXor:
		return max(e.X().HighBitBound(), e.Y().HighBitBound())
	case ExprUshr:
		if e.Y().op == ExprNum {
			return max(0, e.X().HighBitBound()-int(e.Y().NumValue()))
		}
	case ExprCast:
		if e.X().Type.IsUnsigned() || e.X().Type.IsBool() {
			return min(full, e.X().HighBitBound())
		}
	case ExprEq, ExprNe, ExprSge, ExprUge, ExprSle, ExprUle, ExprSgt, ExprUgt, ExprSlt, ExprUlt,
		ExprLnot, ExprLand, ExprLor:
		return 1
	}
	if e.Type.IsBool() {
		return 1
	}
	return full
}

// Lnot returns the logical negation of e, consuming e. Relations are
// negated in place, double negation is removed.
func Lnot(e *Expr) *Expr {
	switch {
	case IsRelational(e.op):
		e.SetOp(NegatedRelation(e.op))
		return e
	case e.op == ExprLnot:
		x := e.X()
		e.SetX(nil)
		return x
	}
	n := NewUnary(ExprLnot, e)
	n.EA = e.EA
	n.Type = BoolType()
	return n
}

// MakeRef returns &e, consuming e. Taking the address of a dereference
// cancels it.
func MakeRef(e *Expr, ptrSize int) *Expr {
	if e.op == ExprPtr {
		x := e.X()
		e.SetX(nil)
		return x
	}
	r := NewUnary(ExprRef, e)
	r.EA = e.EA
	r.Type = PtrTo(e.Type, ptrSize)
	return r
}

// Dereference returns *e of size bytes, consuming e. Dereferencing an
// address-of cancels it.
func Dereference(e *Expr, size int) *Expr {
	if e.op == ExprRef {
		x := e.X()
		e.SetX(nil)
		return x
	}
	p := NewPtr(e, size)
	p.EA = e.EA
	if t, ok := e.Type.Pointed(); ok {
		p.Type = t
	} else {
		p.Type = UnknownType(size)
	}
	return p
}
