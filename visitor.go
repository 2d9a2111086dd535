package ctree

import "iter"

// VisitFlags control a Walker.
type VisitFlags uint8

const (
	CvParents   VisitFlags = 1 << iota // maintain the ancestor stack
	CvPost                             // call the Leave hooks too
	CvRestart                          // restart enumeration at the top
	CvPrune                            // do not visit children of the current item
	CvInsnsOnly                        // offer only statements to the hooks
)

// Visitor receives the items of a walk. A nonzero result from any method
// stops the walk and becomes its result.
type Visitor interface {
	VisitInsn(w *Walker, i *Insn) int
	VisitExpr(w *Walker, e *Expr) int
	LeaveInsn(w *Walker, i *Insn) int
	LeaveExpr(w *Walker, e *Expr) int
}

// VisitorBase implements every Visitor method as a no-op; embed it and
// override what you need.
type VisitorBase struct{}

func (VisitorBase) VisitInsn(*Walker, *Insn) int { return 0 }
func (VisitorBase) VisitExpr(*Walker, *Expr) int { return 0 }
func (VisitorBase) LeaveInsn(*Walker, *Insn) int { return 0 }
func (VisitorBase) LeaveExpr(*Walker, *Expr) int { return 0 }

// VisitorFuncs adapts plain functions to Visitor. Nil fields are no-ops.
type VisitorFuncs struct {
	Insn   func(w *Walker, i *Insn) int
	Expr   func(w *Walker, e *Expr) int
	LeaveI func(w *Walker, i *Insn) int
	LeaveE func(w *Walker, e *Expr) int
}

func (f VisitorFuncs) VisitInsn(w *Walker, i *Insn) int { return call(f.Insn, w, i) }
func (f VisitorFuncs) VisitExpr(w *Walker, e *Expr) int { return call(f.Expr, w, e) }
func (f VisitorFuncs) LeaveInsn(w *Walker, i *Insn) int { return call(f.LeaveI, w, i) }
func (f VisitorFuncs) LeaveExpr(w *Walker, e *Expr) int { return call(f.LeaveE, w, e) }

func call[T any](fn func(*Walker, T) int, w *Walker, x T) int {
	if fn == nil {
		return 0
	}
	return fn(w, x)
}

// Walker drives a Visitor over a tree. The ancestor stack it maintains is
// only meaningful inside a hook; do not keep slices of it.
type Walker struct {
	Flags   VisitFlags
	v       Visitor
	parents []Item

	exprsOnly bool
}

func NewWalker(v Visitor, flags VisitFlags) *Walker {
	return &Walker{Flags: flags, v: v}
}

// Walk runs v over root in pre-order (and post-order with CvPost).
func Walk(root Item, flags VisitFlags, v Visitor) int {
	return NewWalker(v, flags).ApplyTo(root, nil)
}

// WalkExprs runs v over the expressions below root.
func WalkExprs(root Item, flags VisitFlags, v Visitor) int {
	return NewWalker(v, flags).ApplyToExprs(root, nil)
}

// Parents returns the ancestors of the item being visited, outermost
// first. Requires CvParents.
func (w *Walker) Parents() []Item { return w.parents[:len(w.parents):len(w.parents)] }

// ParentExpr returns the direct parent if it is an expression.
func (w *Walker) ParentExpr() *Expr {
	if len(w.parents) == 0 {
		return nil
	}
	return AsExpr(w.parents[len(w.parents)-1])
}

// ParentInsn returns the direct parent if it is a statement.
func (w *Walker) ParentInsn() *Insn {
	if len(w.parents) == 0 {
		return nil
	}
	return AsInsn(w.parents[len(w.parents)-1])
}

// PruneNow skips the children of the item being visited. The request is
// cleared once honored.
func (w *Walker) PruneNow() { w.Flags |= CvPrune }

// SetRestart asks the walk to start over from the root once the current
// hook returns.
func (w *Walker) SetRestart() { w.Flags |= CvRestart }

func (w *Walker) MustRestart() bool { return w.Flags&CvRestart != 0 }

// ApplyTo walks every item of root. parent, if not nil, is reported as
// root's ancestor.
func (w *Walker) ApplyTo(root Item, parent Item) int {
	w.exprsOnly = false
	return w.run(root, parent)
}

// ApplyToExprs walks the expressions of root. Statements are crossed but
// never offered to the hooks, including statements embedded in
// expressions.
func (w *Walker) ApplyToExprs(root Item, parent Item) int {
	w.exprsOnly = true
	return w.run(root, parent)
}

func (w *Walker) run(root Item, parent Item) int {
	for {
		w.parents = w.parents[:0]
		if parent != nil && w.Flags&CvParents != 0 {
			w.parents = append(w.parents, parent)
		}
		w.Flags &^= CvPrune
		if r := w.visit(root); r != 0 {
			return r
		}
		if w.Flags&CvRestart == 0 {
			return 0
		}
		w.Flags &^= CvRestart
	}
}

func (w *Walker) hooked(it Item) bool {
	if it.IsExpr() {
		return w.Flags&CvInsnsOnly == 0
	}
	return !w.exprsOnly
}

func (w *Walker) visit(it Item) int {
	hooked := w.hooked(it)
	if hooked {
		var r int
		switch x := it.(type) {
		case *Expr:
			r = w.v.VisitExpr(w, x)
		case *Insn:
			r = w.v.VisitInsn(w, x)
		}
		if r != 0 || w.MustRestart() {
			w.Flags &^= CvPrune
			return r
		}
	}
	pruned := w.Flags&CvPrune != 0
	w.Flags &^= CvPrune
	if !pruned {
		if r := w.visitChildren(it); r != 0 || w.MustRestart() {
			return r
		}
	}
	if !hooked || w.Flags&CvPost == 0 {
		return 0
	}
	switch x := it.(type) {
	case *Expr:
		return w.v.LeaveExpr(w, x)
	case *Insn:
		return w.v.LeaveInsn(w, x)
	}
	return 0
}

func (w *Walker) visitChildren(it Item) int {
	track := w.Flags&CvParents != 0
	if track {
		w.parents = append(w.parents, it)
		defer func() { w.parents = w.parents[:len(w.parents)-1] }()
	}
	if ins, ok := it.(*Insn); ok && ins.op == InsnBlock {
		// Statements may be inserted after or removed at the current
		// position by the hooks.
		b := ins.Block()
		for s := b.Front(); s != nil; {
			saved := s.next
			if r := w.visit(s); r != 0 || w.MustRestart() {
				return r
			}
			if s.list == b {
				s = s.next
			} else {
				s = saved
			}
		}
		return 0
	}
	for _, c := range directChildren(it) {
		if r := w.visit(c); r != 0 || w.MustRestart() {
			return r
		}
	}
	return 0
}

// directChildren lists the children of any item, crossing from an
// expression into its embedded statement.
func directChildren(it Item) []Item {
	switch x := it.(type) {
	case *Insn:
		return x.Children()
	case *Expr:
		if x.op == ExprInsn {
			return []Item{x.Insn()}
		}
		ops := x.Operands()
		out := make([]Item, 0, len(ops))
		for _, o := range ops {
			if o != nil {
				out = append(out, o)
			}
		}
		return out
	}
	return nil
}

// subtree yields root and all its descendants in pre-order.
func subtree(root Item) iter.Seq[Item] {
	return func(yield func(Item) bool) {
		var rec func(it Item) bool
		rec = func(it Item) bool {
			if !yield(it) {
				return false
			}
			for _, c := range directChildren(it) {
				if !rec(c) {
					return false
				}
			}
			return true
		}
		if root != nil {
			rec(root)
		}
	}
}

// CountItems returns the number of items reachable from root.
func CountItems(root Item) int {
	n := 0
	for range subtree(root) {
		n++
	}
	return n
}

// RecalcParentTypes recomputes the types of the expression ancestors of
// the item being visited, innermost first, stopping at the first
// statement. On the way it drops casts that became useless and casts
// assignment sources whose width no longer matches the destination. It
// reports whether any such structural change happened, in which case the
// caller must restart its walk. Requires CvParents.
func (w *Walker) RecalcParentTypes(tc *TypeCtx) bool {
	changed := false
	for n := len(w.parents) - 1; n >= 0; n-- {
		p, ok := w.parents[n].(*Expr)
		if !ok {
			break
		}
		for _, c := range p.Operands() {
			if c != nil && c.IsUselessCast() && !p.RequiresLvalue(c) {
				c.ReplaceBy(c.X())
				changed = true
			}
		}
		if p.op == ExprAsg {
			dst, src := p.X(), p.Y()
			if dst.Type.Size != 0 && src.Type.Size != 0 &&
				!CalcRvalueType(dst.Type, src).Equal(src.Type) && src.op != ExprCast {
				p.SetY(NewCast(dst.Type, src).At(src.EA))
				changed = true
			}
		}
		p.CalcType(tc, false)
	}
	return changed
}
