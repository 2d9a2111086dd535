package ctree

import (
	"context"
	"fmt"
)

// BuildCtree replaces the tree of cf with one generated from mba and
// brings it to CmatFinal. Durable variable settings from lvinf (may be
// nil) and the number formats and union selections already present in
// cf's tables are applied on the way. The caller owns cf exclusively or
// holds its write lock.
//
// Cancellation of ctx is honored between maturity levels and reported as
// a MerrCanceled failure.
func (cf *Cfunc) BuildCtree(ctx context.Context, mba *Mba, lvinf *LvarUserVec) error {
	if cf.Body != nil {
		cf.Body.Cleanup()
		cf.Body = nil
	}
	cf.invalidate()
	cf.Maturity = CmatZero
	cf.warnings.Clear()
	cf.warnings.Merge(mba.Warnings)
	cf.stkoffDelta = mba.StkoffDelta
	cf.RetType = mba.RetType

	cf.Vars = make(Lvars, len(mba.Vars))
	for i, v := range mba.Vars {
		c := *v
		cf.Vars[i] = &c
	}
	b := &builder{cf: cf, mba: mba, numOps: make(map[*Expr]OperandLocator)}
	b.remap = make([]int, len(cf.Vars))
	for i := range b.remap {
		b.remap[i] = i
	}
	if lvinf != nil {
		var rejected []LvarLocator
		b.remap, rejected = lvinf.Apply(cf.Vars)
		for _, ll := range rejected {
			cf.warnings.Add(ll.DefEA, WarnBadVarsize, ll.String())
		}
	}
	cf.Vars.MarkOverlaps()
	cf.ArgIdx = cf.ArgIdx[:0]
	for _, idx := range mba.ArgIdx {
		cf.ArgIdx = append(cf.ArgIdx, b.remap[idx])
	}
	b.ptrSize = cf.TypeCtx().ptrSize()

	body := NewBlock().At(mba.EntryEA)
	if mba.Structure != nil {
		body.Block().PushBack(b.stmt(mba.Structure))
	}
	cf.Body = body
	if err := cf.advance(ctx, CmatBuilt); err != nil {
		return err
	}

	tc := cf.TypeCtx()
	typeTree(cf.Body, tc)
	b.applyNumforms()
	if b.cf.ApplyUserUnions() {
		typeTree(cf.Body, tc)
	}

	passes := []struct {
		m   Maturity
		run func(*Cfunc)
	}{
		{CmatTrans1, func(cf *Cfunc) { flatten(cf.Body) }},
		{CmatNice, func(cf *Cfunc) { useCompoundAssignments(cf.Body) }},
		{CmatTrans2, func(cf *Cfunc) { invertEmptyThens(cf.Body) }},
		{CmatCPA, func(cf *Cfunc) { scalePointerArith(cf.Body) }},
		{CmatTrans3, func(cf *Cfunc) { removeGotosToNext(cf.Body) }},
		{CmatCasted, func(cf *Cfunc) { insertCasts(cf.Body, cf.TypeCtx()) }},
	}
	for _, p := range passes {
		p.run(cf)
		if err := cf.advance(ctx, p.m); err != nil {
			return err
		}
	}
	cf.RemoveUnusedLabels()
	cf.Maturity = CmatFinal
	if err := cf.Verify(false); err != nil {
		panic(err)
	}
	cf.bus.Fire(EvMaturity, cf, CmatFinal)
	return nil
}

func (cf *Cfunc) advance(ctx context.Context, m Maturity) error {
	if err := ctx.Err(); err != nil {
		return NewFailure(MerrCanceled, cf.EntryEA, err.Error())
	}
	cf.Maturity = m
	cf.bus.Fire(EvMaturity, cf, m)
	return nil
}

// typeTree computes every expression type bottom up.
func typeTree(root Item, tc *TypeCtx) {
	Walk(root, CvPost, VisitorFuncs{
		LeaveE: func(w *Walker, e *Expr) int {
			e.CalcType(tc, false)
			return 0
		},
	})
}

type builder struct {
	cf      *Cfunc
	mba     *Mba
	remap   []int
	ptrSize int
	numOps  map[*Expr]OperandLocator
}

func (b *builder) stmt(n *CtrlNode) *Insn {
	var s *Insn
	switch n.Kind {
	case CtrlSeq:
		s = NewBlock()
		for _, c := range n.Children {
			s.Block().PushBack(b.stmt(c))
		}
	case CtrlBlock:
		s = b.block(n.Block)
	case CtrlIf:
		var els *Insn
		if len(n.Children) > 1 && n.Children[1] != nil {
			els = b.body(n.Children[1])
		}
		s = NewIf(b.cond(n), b.body(b.child(n, 0)), els)
	case CtrlWhile:
		s = NewWhile(b.cond(n), b.body(b.child(n, 0)))
	case CtrlDo:
		s = NewDo(b.body(b.child(n, 0)), b.cond(n))
	case CtrlFor:
		s = NewFor(b.minsnExpr(n.Init), b.cond(n), b.minsnExpr(n.Step), b.body(b.child(n, 0)))
	case CtrlSwitch:
		sel := b.cond(n)
		if len(n.CaseValues) != len(n.Children) {
			panic(interrAt(n.EA, "switch has %d case bodies for %d value lists", len(n.Children), len(n.CaseValues)))
		}
		cases := make([]*Case, len(n.Children))
		for i, c := range n.Children {
			cases[i] = &Case{Values: n.CaseValues[i], Body: b.body(c)}
		}
		s = NewSwitch(sel, switchMaxValue(sel), cases...)
	case CtrlGoto:
		s = NewGoto(n.Target)
	case CtrlBreak:
		s = NewBreak()
	case CtrlContinue:
		s = NewContinue()
	case CtrlReturn:
		var e *Expr
		if n.Value != nil {
			e = b.operand(n.Value, n.EA, false)
		}
		s = NewReturn(e)
	default:
		panic(interrAt(n.EA, "unknown control node kind %d", n.Kind))
	}
	if s.EA == BadAddr {
		s.EA = n.EA
	}
	if n.Label >= 0 {
		s.Label = n.Label
	}
	return s
}

func (b *builder) child(n *CtrlNode, i int) *CtrlNode {
	if i >= len(n.Children) || n.Children[i] == nil {
		panic(interrAt(n.EA, "control node lacks child %d", i))
	}
	return n.Children[i]
}

// body returns the statement for n as a block.
func (b *builder) body(n *CtrlNode) *Insn {
	s := b.stmt(n)
	if s.op == InsnBlock {
		return s
	}
	return NewBlock(s).At(s.EA)
}

func (b *builder) cond(n *CtrlNode) *Expr {
	if n.Cond == nil {
		panic(interrAt(n.EA, "%s without a condition", ctrlKindName(n.Kind)))
	}
	return b.operand(n.Cond, n.EA, false)
}

func ctrlKindName(k CtrlKind) string {
	switch k {
	case CtrlIf:
		return "if"
	case CtrlWhile:
		return "while"
	case CtrlDo:
		return "do"
	case CtrlFor:
		return "for"
	case CtrlSwitch:
		return "switch"
	}
	return fmt.Sprintf("ctrl(%d)", k)
}

func switchMaxValue(sel *Expr) uint64 {
	size := sel.Type.Size
	if size <= 0 || size >= 8 {
		return ^uint64(0)
	}
	return 1 << uint(8*size)
}

// block converts the instructions of one basic block. Runs of
// instructions the tree cannot express become one asm statement.
func (b *builder) block(serial int) *Insn {
	mb := b.mba.Block(serial)
	if mb == nil {
		panic(interrAt(b.mba.EntryEA, "no basic block %d", serial))
	}
	out := NewBlock().At(mb.Start)
	var asm *Insn
	for _, m := range mb.Insns {
		if m.Op == MExt {
			if asm == nil {
				asm = NewAsm().At(m.EA)
				out.Block().PushBack(asm)
			}
			d := asm.data.(*asmPayload)
			d.addrs = append(d.addrs, m.EA)
			continue
		}
		asm = nil
		if e := b.minsnExpr(m); e != nil {
			out.Block().PushBack(NewExprInsn(e))
		}
	}
	return out
}

// minsnExpr converts one instruction; nop yields nil.
func (b *builder) minsnExpr(m *Minsn) *Expr {
	if m == nil || m.Op == MNop {
		return nil
	}
	var val *Expr
	switch op := m.Op; {
	case op == MMov:
		val = b.operand(&m.L, m.EA, false)
	case op == MLdx:
		addr := b.operand(&m.R, m.EA, false)
		if m.L.Kind != MopNone {
			addr = NewBinary(ExprAdd, b.operand(&m.L, m.EA, false), addr).At(m.EA)
		}
		val = Dereference(addr, m.D.Size)
	case op == MStx:
		dst := Dereference(b.operand(&m.R, m.EA, false), m.L.Size)
		return NewBinary(ExprAsg, dst, b.operand(&m.L, m.EA, false)).At(m.EA)
	case op == MXdu || op == MXds || op == MLow:
		sign := Unsigned
		if op == MXds {
			sign = Signed
		}
		val = NewCast(IntType(m.D.Size, sign), b.operand(&m.L, m.EA, false)).At(m.EA)
	case op == MCall:
		fn := b.operand(&m.L, m.EA, false)
		var args []*Expr
		if m.R.Kind == MopArgs {
			for i := range m.R.Args {
				args = append(args, b.operand(&m.R.Args[i], m.EA, false))
			}
		}
		val = NewCall(fn, args...).At(m.EA)
	default:
		eop, ok := op.exprOp()
		if !ok {
			panic(interrAt(m.EA, "can not convert %s", op))
		}
		if IsUnary(eop) {
			val = NewUnary(eop, b.operand(&m.L, m.EA, false)).At(m.EA)
		} else {
			val = NewBinary(eop, b.operand(&m.L, m.EA, false), b.operand(&m.R, m.EA, false)).At(m.EA)
		}
	}
	if m.D.Kind == MopNone {
		return val
	}
	return NewBinary(ExprAsg, b.operand(&m.D, m.EA, true), val).At(m.EA)
}

func (b *builder) lvarRef(idx int, ea uint64) *Expr {
	idx = b.remap[idx]
	return NewVar(idx, b.cf.Vars[idx].Type).At(ea)
}

func placeholderType(op *Mop) Type {
	if op.Type.IsDefined() {
		return op.Type
	}
	return UnknownType(op.Size)
}

// operand converts a microcode operand. dst is set for the destination
// of an instruction.
func (b *builder) operand(op *Mop, ea uint64, dst bool) *Expr {
	switch op.Kind {
	case MopNum:
		e := NewNum(Number{Value: op.Value}.Masked(op.Size, Unsigned), op.Size).At(ea)
		b.numOps[e] = OperandLocator{EA: ea, OpNum: op.OpNum}
		return e
	case MopFloat:
		return NewFNum(op.F, op.Size).At(ea)
	case MopStr:
		return NewStr(op.Str).At(ea)
	case MopLvar:
		if op.Lvar < 0 || op.Lvar >= len(b.cf.Vars) {
			panic(interrAt(ea, "variable %d out of range", op.Lvar))
		}
		return b.lvarRef(op.Lvar, ea)
	case MopReg:
		loc := RegLoc(op.Reg)
		if idx := b.cf.Vars.FindInputLvar(loc, op.Size); idx >= 0 {
			return b.lvarRef(idx, ea)
		}
		if dst {
			b.cf.warnings.Add(ea, WarnOddInputReg, loc.String())
		} else {
			b.cf.warnings.Add(ea, WarnUninitedReg, loc.String())
		}
		return NewHelper(loc.String(), placeholderType(op)).At(ea)
	case MopStack:
		if idx := b.cf.Vars.FindStkvar(op.Off, op.Size); idx >= 0 {
			return b.lvarRef(idx, ea)
		}
		loc := StackLoc(op.Off)
		b.cf.warnings.Add(ea, WarnFragLvar, loc.String())
		return NewHelper(fmt.Sprintf("stk_%X", op.Off), placeholderType(op)).At(ea)
	case MopGlobal:
		t, ok := b.cf.TypeCtx().Oracle.ObjectType(op.EA)
		if !ok {
			t = placeholderType(op)
		}
		obj := NewObj(op.EA, t).At(ea)
		if t.IsUnion() || (t.IsUDT() && op.Off != 0) {
			// unions start at their first member until the user picks one
			return NewMemref(obj, uint64(op.Off)).At(ea)
		}
		return obj
	case MopAddr:
		if op.Addr == nil {
			panic(interrAt(ea, "address-of without an operand"))
		}
		return MakeRef(b.operand(op.Addr, ea, false), b.ptrSize)
	case MopHelper:
		return NewHelper(op.Str, placeholderType(op)).At(ea)
	case MopInsn:
		if op.Insn == nil {
			panic(interrAt(ea, "nested instruction missing"))
		}
		return b.minsnExpr(op.Insn)
	}
	panic(interrAt(ea, "operand kind %d can not be an expression", op.Kind))
}

// applyNumforms attaches the user number formats to the literals made from
// the operands they were set on.
func (b *builder) applyNumforms() {
	for e, loc := range b.numOps {
		if e.op != ExprNum {
			continue
		}
		if nf, ok := b.cf.Numforms.Get(loc); ok {
			e.Num().Format = nf
		}
	}
}

// ApplyUserUnions selects union members along the access paths chosen by
// the user, innermost access first. It reports whether anything changed.
// The caller must hold the write lock of a shared function.
func (cf *Cfunc) ApplyUserUnions() bool {
	if cf.UserUnions.Len() == 0 {
		return false
	}
	used := make(map[uint64]int)
	changed := false
	Walk(cf.Body, CvPost, VisitorFuncs{
		LeaveE: func(w *Walker, e *Expr) int {
			if e.op != ExprMemref && e.op != ExprMemptr {
				return 0
			}
			udt := e.X().Type
			if e.op == ExprMemptr {
				udt, _ = udt.Pointed()
			}
			if !udt.IsUnion() {
				return 0
			}
			path, ok := cf.UserUnions.Get(e.EA)
			if !ok || used[e.EA] >= len(path) {
				return 0
			}
			e.SetMember(uint64(path[used[e.EA]]))
			used[e.EA]++
			changed = true
			return 0
		},
	})
	return changed
}

// flatten drops empty statements and splices unlabeled nested blocks into
// their parent.
func flatten(i *Insn) {
	for _, c := range i.Children() {
		if s, ok := c.(*Insn); ok {
			flatten(s)
		}
	}
	if i.op != InsnBlock {
		return
	}
	b := i.Block()
	for s := range b.All() {
		switch {
		case s.HasLabel():
		case s.op == InsnEmpty:
			b.Remove(s)
		case s.op == InsnBlock:
			inner := s.Block().Slice()
			s.Block().Clear()
			for _, c := range inner {
				b.InsertBefore(c, s)
			}
			b.Remove(s)
		}
	}
}

// useCompoundAssignments rewrites x = x op y as x op= y.
func useCompoundAssignments(root *Insn) {
	WalkExprs(root, 0, VisitorFuncs{
		Expr: func(w *Walker, e *Expr) int {
			if e.op != ExprAsg {
				return 0
			}
			y := e.Y()
			aop := AsgOp(y.op)
			if aop == ExprEmpty || !y.X().Equal(e.X()) || e.X().HasSideEffects() {
				return 0
			}
			rhs := y.Detach(y.Y())
			e.SetOp(aop)
			e.SetY(rhs)
			y.Cleanup()
			return 0
		},
	})
}

func isEmptyBody(s *Insn) bool {
	if s == nil || s.HasLabel() {
		return s == nil
	}
	return s.op == InsnEmpty || (s.op == InsnBlock && s.Block().Empty())
}

// invertEmptyThens rewrites if (c) {} else s as if (!c) s.
func invertEmptyThens(root *Insn) {
	Walk(root, CvInsnsOnly, VisitorFuncs{
		Insn: func(w *Walker, i *Insn) int {
			if i.op != InsnIf || i.Else() == nil || !isEmptyBody(i.Then()) {
				return 0
			}
			i.SetExpr(Lnot(i.Expr()))
			then := i.Then()
			i.SetThen(i.Else())
			i.SetElse(nil)
			then.Cleanup()
			return 0
		},
	})
}

// scalePointerArith turns the byte offset in ptr+n and ptr-n into an
// element count.
func scalePointerArith(root *Insn) {
	WalkExprs(root, 0, VisitorFuncs{
		Expr: func(w *Walker, e *Expr) int {
			if (e.op != ExprAdd && e.op != ExprSub) || e.Flags&ExflCPADone != 0 {
				return 0
			}
			elem, ok := e.X().Type.Pointed()
			y := e.Y()
			if !ok || y.op != ExprNum || elem.Size <= 1 {
				return 0
			}
			v := int64(y.Num().Masked(y.Type.Size, Signed))
			if v%int64(elem.Size) != 0 {
				return 0
			}
			y.Num().Value = Number{Value: uint64(v / int64(elem.Size))}.Masked(y.Type.Size, Unsigned)
			e.Flags |= ExflCPADone
			return 0
		},
	})
}

// removeGotosToNext drops gotos to the statement that follows anyway.
func removeGotosToNext(root *Insn) {
	Walk(root, CvInsnsOnly, VisitorFuncs{
		Insn: func(w *Walker, i *Insn) int {
			if i.op != InsnGoto || i.Next() == nil || i.Next().Label != i.GotoLabel() {
				return 0
			}
			i.list.Remove(i)
			i.Cleanup()
			return 0
		},
	})
}

// insertCasts makes implicit conversions explicit where the width or the
// kind of a value changes: assignment sources and call arguments.
func insertCasts(root *Insn, tc *TypeCtx) {
	cast := func(t Type, e *Expr) *Expr {
		if !t.IsDefined() || !e.Type.IsDefined() || e.op == ExprCast || CalcRvalueType(t, e).Equal(e.Type) {
			return e
		}
		return NewCast(t, e).At(e.EA)
	}
	WalkExprs(root, 0, VisitorFuncs{
		Expr: func(w *Walker, e *Expr) int {
			switch e.op {
			case ExprAsg:
				e.SetY(cast(e.X().Type, e.Y()))
			case ExprCall:
				ft := e.X().Type
				if p, ok := ft.Pointed(); ok {
					ft = p
				}
				if !ft.IsFunc() {
					return 0
				}
				args := e.Args()
				for n := range min(len(args), len(ft.Args)) {
					args[n] = cast(ft.Args[n], args[n])
				}
				e.SetArgs(args)
			}
			return 0
		},
	})
}
