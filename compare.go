package ctree

import (
	"cmp"
	"slices"
	"strings"
)

// Compare orders two expressions structurally. It is a total order over
// kinds, payloads and children; types only take part for casts and type
// expressions, where the type is the payload.
func (e *Expr) Compare(o *Expr) int {
	if e == nil || o == nil {
		return cmp.Compare(boolInt(e != nil), boolInt(o != nil))
	}
	if c := cmp.Compare(e.op, o.op); c != 0 {
		return c
	}
	switch d := e.data.(type) {
	case nil:
		if e.op == ExprType {
			return strings.Compare(e.Type.String(), o.Type.String())
		}
		return 0
	case *numData:
		return cmp.Compare(e.NumValue(), o.NumValue())
	case *fnumData:
		return cmp.Compare(d.f.Float64(), o.data.(*fnumData).f.Float64())
	case *varData:
		return cmp.Compare(d.idx, o.data.(*varData).idx)
	case *objData:
		return cmp.Compare(d.ea, o.data.(*objData).ea)
	case *helperData:
		return strings.Compare(d.name, o.data.(*helperData).name)
	case *strData:
		return strings.Compare(d.s, o.data.(*strData).s)
	case *insnData:
		return d.ins.Compare(o.data.(*insnData).ins)
	case *derefData:
		od := o.data.(*derefData)
		if c := cmp.Compare(d.size, od.size); c != 0 {
			return c
		}
		return d.x.Compare(od.x)
	case *memberData:
		od := o.data.(*memberData)
		if c := cmp.Compare(d.m, od.m); c != 0 {
			return c
		}
		if c := cmp.Compare(d.size, od.size); c != 0 {
			return c
		}
		return d.x.Compare(od.x)
	case *callData:
		od := o.data.(*callData)
		if c := d.x.Compare(od.x); c != 0 {
			return c
		}
		return slices.CompareFunc(d.args, od.args, (*Expr).Compare)
	case *operands:
		if e.op == ExprCast {
			if c := strings.Compare(e.Type.String(), o.Type.String()); c != 0 {
				return c
			}
		}
		return slices.CompareFunc(e.Operands(), o.Operands(), (*Expr).Compare)
	}
	return 0
}

// Equal reports whether Compare returns 0.
func (e *Expr) Equal(o *Expr) bool { return e.Compare(o) == 0 }

// Compare orders two statements structurally.
func (i *Insn) Compare(o *Insn) int {
	if i == nil || o == nil {
		return cmp.Compare(boolInt(i != nil), boolInt(o != nil))
	}
	if c := cmp.Compare(i.op, o.op); c != 0 {
		return c
	}
	switch d := i.data.(type) {
	case *forPayload:
		od := o.data.(*forPayload)
		for _, pair := range [][2]*Expr{{d.init, od.init}, {d.cond, od.cond}, {d.step, od.step}} {
			if c := pair[0].Compare(pair[1]); c != 0 {
				return c
			}
		}
		return d.body.Compare(od.body)
	case *gotoPayload:
		return cmp.Compare(d.label, o.data.(*gotoPayload).label)
	case *asmPayload:
		return slices.Compare(d.addrs, o.data.(*asmPayload).addrs)
	case *switchPayload:
		od := o.data.(*switchPayload)
		if c := d.e.Compare(od.e); c != 0 {
			return c
		}
		if c := cmp.Compare(d.maxval.Value, od.maxval.Value); c != 0 {
			return c
		}
		return slices.CompareFunc(d.cases, od.cases, func(a, b *Case) int {
			if c := slices.Compare(a.Values, b.Values); c != 0 {
				return c
			}
			return a.Body.Compare(b.Body)
		})
	}
	return slices.CompareFunc(i.Children(), o.Children(), compareItems)
}

func (i *Insn) Equal(o *Insn) bool { return i.Compare(o) == 0 }

func compareItems(a, b Item) int {
	ae, aIsExpr := a.(*Expr)
	be, bIsExpr := b.(*Expr)
	switch {
	case aIsExpr && bIsExpr:
		return ae.Compare(be)
	case !aIsExpr && !bIsExpr:
		return a.(*Insn).Compare(b.(*Insn))
	case aIsExpr:
		return -1
	}
	return 1
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// IsUselessCast reports whether e is a cast that does not change the
// value: the operand already has the target size and both sides are
// scalars of the same family.
func (e *Expr) IsUselessCast() bool {
	if e.op != ExprCast {
		return false
	}
	from := e.X().Type
	if from.Equal(e.Type) {
		return true
	}
	if from.Size != e.Type.Size || from.Size == 0 {
		return false
	}
	intLike := func(t Type) bool { return t.IsIntegral() || t.IsPtr() }
	return intLike(from) && intLike(e.Type)
}

func skipUselessCasts(e *Expr) *Expr {
	for e != nil && e.IsUselessCast() {
		e = e.X()
	}
	return e
}

// EqualEffect reports whether e and o compute the same value. Unlike
// Equal it ignores useless casts, accepts swapped operands of commutative
// operators and mirrored relations (x < y against y > x).
func (e *Expr) EqualEffect(o *Expr) bool {
	e = skipUselessCasts(e)
	o = skipUselessCasts(o)
	if e == nil || o == nil {
		return e == o
	}
	if e.op != o.op {
		if IsRelational(e.op) && SwappedRelation(e.op) == o.op {
			return e.X().EqualEffect(o.Y()) && e.Y().EqualEffect(o.X())
		}
		return false
	}
	switch e.data.(type) {
	case *operands:
		if e.op == ExprCast && !e.Type.Equal(o.Type) {
			return false
		}
		ea, oa := e.Operands(), o.Operands()
		if allEqualEffect(ea, oa) {
			return true
		}
		if IsCommutative(e.op) {
			return ea[0].EqualEffect(oa[1]) && ea[1].EqualEffect(oa[0])
		}
		return false
	case *derefData, *memberData, *callData:
		if e.op == ExprPtr && e.PtrSize() != o.PtrSize() {
			return false
		}
		if (e.op == ExprMemref || e.op == ExprMemptr) && e.Member() != o.Member() {
			return false
		}
		return allEqualEffect(e.Operands(), o.Operands())
	}
	return e.Equal(o)
}

func allEqualEffect(a, b []*Expr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].EqualEffect(b[i]) {
			return false
		}
	}
	return true
}
