package ctree

import "slices"

// Clone returns a deep copy of e. Variable references are copied as
// indexes; they keep pointing into the same variable list.
func (e *Expr) Clone() *Expr {
	if e == nil {
		return nil
	}
	c := &Expr{ItemHeader: e.ItemHeader, Type: e.Type.clone(), Flags: e.Flags}
	switch d := e.data.(type) {
	case nil:
	case *numData:
		c.data = &numData{n: d.n}
	case *fnumData:
		c.data = &fnumData{f: d.f}
	case *varData:
		c.data = &varData{idx: d.idx}
	case *objData:
		c.data = &objData{ea: d.ea}
	case *operands:
		c.data = &operands{x: d.x.Clone(), y: d.y.Clone(), z: d.z.Clone()}
	case *derefData:
		c.data = &derefData{x: d.x.Clone(), size: d.size}
	case *memberData:
		c.data = &memberData{x: d.x.Clone(), m: d.m, size: d.size}
	case *callData:
		args := make([]*Expr, len(d.args))
		for i, a := range d.args {
			args[i] = a.Clone()
		}
		c.data = &callData{x: d.x.Clone(), args: args}
	case *insnData:
		c.data = &insnData{ins: d.ins.Clone()}
	case *helperData:
		c.data = &helperData{name: d.name}
	case *strData:
		c.data = &strData{s: d.s}
	}
	return c
}

// Clone returns a deep copy of i. The copy is not an element of any block.
func (i *Insn) Clone() *Insn {
	if i == nil {
		return nil
	}
	c := &Insn{ItemHeader: i.ItemHeader}
	switch d := i.data.(type) {
	case nil:
	case *blockPayload:
		b := &Block{}
		for s := range d.b.All() {
			b.PushBack(s.Clone())
		}
		c.data = &blockPayload{b: b}
	case *exprPayload:
		c.data = &exprPayload{e: d.e.Clone()}
	case *ifPayload:
		c.data = &ifPayload{cond: d.cond.Clone(), then: d.then.Clone(), els: d.els.Clone()}
	case *forPayload:
		c.data = &forPayload{init: d.init.Clone(), cond: d.cond.Clone(), step: d.step.Clone(), body: d.body.Clone()}
	case *whilePayload:
		c.data = &whilePayload{cond: d.cond.Clone(), body: d.body.Clone()}
	case *doPayload:
		c.data = &doPayload{body: d.body.Clone(), cond: d.cond.Clone()}
	case *switchPayload:
		cases := make([]*Case, len(d.cases))
		for n, cs := range d.cases {
			cases[n] = &Case{Values: slices.Clone(cs.Values), Body: cs.Body.Clone()}
		}
		c.data = &switchPayload{e: d.e.Clone(), maxval: d.maxval, cases: cases}
	case *returnPayload:
		c.data = &returnPayload{e: d.e.Clone()}
	case *gotoPayload:
		c.data = &gotoPayload{label: d.label}
	case *asmPayload:
		c.data = &asmPayload{addrs: slices.Clone(d.addrs)}
	}
	return c
}

func (t Type) clone() Type {
	c := t
	if t.Elem != nil {
		e := t.Elem.clone()
		c.Elem = &e
	}
	if t.Args != nil {
		c.Args = make([]Type, len(t.Args))
		for i, a := range t.Args {
			c.Args[i] = a.clone()
		}
	}
	return c
}

// Cleanup releases every owned child and resets e to an empty expression.
// Calling it again is harmless.
func (e *Expr) Cleanup() {
	if e == nil {
		return
	}
	for _, c := range e.Operands() {
		c.Cleanup()
	}
	if d, ok := e.data.(*insnData); ok {
		d.ins.Cleanup()
	}
	e.reset(ExprEmpty)
	e.Type = Type{}
	e.Flags = 0
	e.data = nil
}

// Cleanup releases every owned child and resets i to an empty statement.
// Block links are preserved: a cleaned element stays in its block.
func (i *Insn) Cleanup() {
	if i == nil {
		return
	}
	for _, c := range i.Children() {
		switch c := c.(type) {
		case *Expr:
			c.Cleanup()
		case *Insn:
			c.Cleanup()
		}
	}
	if d, ok := i.data.(*blockPayload); ok {
		d.b.Clear()
	}
	i.reset(InsnEmpty)
	i.data = nil
}

// ReplaceBy moves the contents of r into e. The children e owned before
// are abandoned: the caller must already have moved them elsewhere or
// intend to drop them. r is left empty and no longer owns anything, so r
// may safely be a descendant of e.
func (e *Expr) ReplaceBy(r *Expr) {
	if r == e {
		return
	}
	e.ItemHeader = r.ItemHeader
	e.Type = r.Type
	e.Flags = r.Flags
	e.data = r.data
	r.reset(ExprEmpty)
	r.Type = Type{}
	r.Flags = 0
	r.data = nil
}

// ReplaceBy moves the contents of r into i. Block membership of i is
// unchanged; r must not be an element of a block.
func (i *Insn) ReplaceBy(r *Insn) {
	if r == i {
		return
	}
	if r.list != nil {
		panic(interrAt(r.EA, "ReplaceBy: replacement is still an element of a block"))
	}
	i.ItemHeader = r.ItemHeader
	i.data = r.data
	r.reset(InsnEmpty)
	r.data = nil
}

// Swap exchanges the contents of two expressions.
func (e *Expr) Swap(o *Expr) {
	e.ItemHeader, o.ItemHeader = o.ItemHeader, e.ItemHeader
	e.Type, o.Type = o.Type, e.Type
	e.Flags, o.Flags = o.Flags, e.Flags
	e.data, o.data = o.data, e.data
}

// Swap exchanges the contents of two statements, leaving block links alone.
func (i *Insn) Swap(o *Insn) {
	i.ItemHeader, o.ItemHeader = o.ItemHeader, i.ItemHeader
	i.data, o.data = o.data, i.data
}

// Detach takes the child x out of e, leaving an empty expression in its
// place, and returns it. Useful before ReplaceBy to keep a subtree alive.
func (e *Expr) Detach(x *Expr) *Expr {
	slot := NewEmptyExpr()
	switch d := e.data.(type) {
	case *operands:
		switch x {
		case d.x:
			d.x = slot
		case d.y:
			d.y = slot
		case d.z:
			d.z = slot
		default:
			panic(e.wrongPayload("Detach of a non-child"))
		}
	case *derefData:
		if x != d.x {
			panic(e.wrongPayload("Detach of a non-child"))
		}
		d.x = slot
	case *memberData:
		if x != d.x {
			panic(e.wrongPayload("Detach of a non-child"))
		}
		d.x = slot
	case *callData:
		if x == d.x {
			d.x = slot
			break
		}
		n := slices.Index(d.args, x)
		if n < 0 {
			panic(e.wrongPayload("Detach of a non-child"))
		}
		d.args[n] = slot
	default:
		panic(e.wrongPayload("Detach"))
	}
	return x
}
