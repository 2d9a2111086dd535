package ctree

// CalcType recomputes the type of e from its operands, which must already
// be typed unless recursive is set. Literals, casts, helpers and type
// expressions keep the type they were created with.
func (e *Expr) CalcType(tc *TypeCtx, recursive bool) {
	if recursive {
		for _, c := range e.Operands() {
			c.CalcType(tc, true)
		}
	}
	ptrSize := tc.ptrSize()
	switch {
	case e.op == ExprEmpty, e.op == ExprNum, e.op == ExprFnum, e.op == ExprCast,
		e.op == ExprHelper, e.op == ExprType:
	case e.op == ExprStr:
		if !e.Type.IsDefined() {
			e.Type = PtrTo(IntType(1, Signed), ptrSize)
		}
	case e.op == ExprVar:
		if v := tc.lvar(e.VarIndex()); v != nil {
			e.Type = v.Type
		}
	case e.op == ExprObj:
		if tc != nil && tc.Oracle != nil {
			if t, ok := tc.Oracle.ObjectType(e.ObjEA()); ok {
				e.Type = t
			}
		}
	case e.op == ExprComma:
		e.Type = e.Y().Type
	case IsAssignment(e.op), IsPrePost(e.op):
		e.Type = e.X().Type
	case e.op == ExprTern:
		e.Type = ternaryType(e.Y().Type, e.Z().Type)
	case IsRelational(e.op), IsLogical(e.op):
		e.Type = BoolType()
	case e.op >= ExprFadd && e.op <= ExprFdiv:
		e.Type = FloatType(max(e.X().Type.Size, e.Y().Type.Size))
	case e.op == ExprFneg:
		e.Type = e.X().Type
	case e.op == ExprNeg, e.op == ExprBnot:
		e.Type = promote(e.X().Type, NoSign)
	case e.op == ExprSshr, e.op == ExprUshr, e.op == ExprShl:
		e.Type = promote(e.X().Type, OpSign(e.op))
	case IsBinary(e.op):
		e.Type = arithType(e.op, e.X().Type, e.Y().Type, ptrSize)
	case e.op == ExprPtr:
		e.Type = pointedOr(e.X().Type, e.PtrSize())
	case e.op == ExprIdx:
		if t, ok := e.X().Type.Pointed(); ok {
			e.Type = t
		}
	case e.op == ExprRef:
		e.Type = PtrTo(e.X().Type, ptrSize)
	case e.op == ExprMemref:
		if t, ok := tc.member(e.X().Type, e.Member()); ok {
			e.Type = t
		}
	case e.op == ExprMemptr:
		udt, _ := e.X().Type.Pointed()
		if t, ok := tc.member(udt, e.Member()); ok {
			e.Type = t
		} else {
			e.Type = UnknownType(e.PtrSize())
		}
	case e.op == ExprCall:
		if t, ok := e.X().Type.Result(); ok {
			e.Type = t
		}
	case e.op == ExprInsn:
		e.Type = VoidType()
	case e.op == ExprSizeof:
		e.Type = IntType(ptrSize, Unsigned)
	}
	e.Flags &^= ExflPartial
	if e.Type.IsPartial() && e.Type.Size > 0 {
		e.Flags |= ExflPartial
	}
	if e.Type.IsFloat() && e.op != ExprCast && e.op != ExprVar {
		e.Flags |= ExflFPOp
	}
}

func (tc *TypeCtx) lvar(idx int) *Lvar {
	if tc == nil || idx < 0 || idx >= len(tc.Vars) {
		return nil
	}
	return tc.Vars[idx]
}

func (tc *TypeCtx) member(udt Type, off uint64) (Type, bool) {
	if tc == nil || tc.Oracle == nil {
		return Type{}, false
	}
	return tc.Oracle.MemberType(udt, off)
}

// promote applies the integer promotions: everything narrower than int
// becomes int.
func promote(t Type, sign Sign) Type {
	if !t.IsIntegral() {
		return t
	}
	if sign == NoSign {
		sign = t.Sign
		if t.IsBool() || t.IsPartial() {
			sign = Signed
		}
	}
	if t.IsPartial() && t.Size >= 4 {
		return UnknownType(t.Size)
	}
	return IntType(max(4, t.Size), sign)
}

func pointedOr(t Type, size int) Type {
	if p, ok := t.Pointed(); ok && (p.Size == size || size == 0) {
		return p
	}
	return UnknownType(size)
}

func ternaryType(a, b Type) Type {
	switch {
	case a.IsPtr():
		return a
	case b.IsPtr():
		return b
	case a.Size >= b.Size:
		return a
	}
	return b
}

// arithType implements the usual arithmetic conversions plus pointer
// arithmetic for add and sub.
func arithType(op Ctype, a, b Type, ptrSize int) Type {
	switch op {
	case ExprAdd:
		if a.IsPtrOrArray() && b.IsIntegral() {
			return decay(a, ptrSize)
		}
		if b.IsPtrOrArray() && a.IsIntegral() {
			return decay(b, ptrSize)
		}
	case ExprSub:
		if a.IsPtrOrArray() && b.IsPtrOrArray() {
			return IntType(ptrSize, Signed)
		}
		if a.IsPtrOrArray() && b.IsIntegral() {
			return decay(a, ptrSize)
		}
	}
	if a.IsFloat() || b.IsFloat() {
		return FloatType(max(a.Size, b.Size))
	}
	size := max(4, a.Size, b.Size)
	if a.IsPartial() && b.IsPartial() && size == max(a.Size, b.Size) {
		return UnknownType(size)
	}
	sign := OpSign(op)
	if sign == NoSign {
		sign = Signed
		if (a.IsUnsigned() && a.Size == size) || (b.IsUnsigned() && b.Size == size) {
			sign = Unsigned
		}
	}
	return IntType(size, sign)
}

// decay turns an array into a pointer to its element.
func decay(t Type, ptrSize int) Type {
	if t.IsArray() && t.Elem != nil {
		return PtrTo(*t.Elem, ptrSize)
	}
	return t
}

// CalcRvalueType returns the type an expression must have to be assigned
// to a target of type target: the target type itself when the widths
// differ, otherwise the type e already has.
func CalcRvalueType(target Type, e *Expr) Type {
	if target.Size != e.Type.Size || (target.IsFloat() != e.Type.IsFloat()) {
		return target
	}
	return e.Type
}
