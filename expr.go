package ctree

import "fmt"

// ExprFlags are per-expression properties.
type ExprFlags uint32

const (
	ExflCPADone ExprFlags = 0x01 // pointer arithmetic correction done
	ExflLvalue  ExprFlags = 0x02 // expression is forcibly lvalue
	ExflFPOp    ExprFlags = 0x04 // floating point operation
	ExflAlone   ExprFlags = 0x08 // standalone helper
	ExflCStr    ExprFlags = 0x10 // string literal
	ExflPartial ExprFlags = 0x20 // type of the expression is considered partial
)

// Expr is an expression node. Its payload is selected solely by Op; the
// accessors panic with an internal error when used on the wrong kind.
type Expr struct {
	ItemHeader
	Type  Type
	Flags ExprFlags
	data  exprData
}

type exprData interface{ isExprData() }

type (
	numData    struct{ n Number }
	fnumData   struct{ f FNumber }
	varData    struct{ idx int }
	objData    struct{ ea uint64 }
	operands   struct{ x, y, z *Expr }
	derefData  struct {
		x    *Expr
		size int
	}
	memberData struct {
		x    *Expr
		m    uint64
		size int
	}
	callData struct {
		x    *Expr
		args []*Expr
	}
	insnData   struct{ ins *Insn }
	helperData struct{ name string }
	strData    struct{ s string }
)

func (*numData) isExprData()    {}
func (*fnumData) isExprData()   {}
func (*varData) isExprData()    {}
func (*objData) isExprData()    {}
func (*operands) isExprData()   {}
func (*derefData) isExprData()  {}
func (*memberData) isExprData() {}
func (*callData) isExprData()   {}
func (*insnData) isExprData()   {}
func (*helperData) isExprData() {}
func (*strData) isExprData()    {}

// shape groups expression kinds that share a payload variant.
type shape uint8

const (
	shapeNone shape = iota
	shapeNum
	shapeFnum
	shapeVar
	shapeObj
	shapeOperands
	shapeDeref
	shapeMember
	shapeCall
	shapeInsn
	shapeHelper
	shapeStr
)

func exprShape(op Ctype) shape {
	switch op {
	case ExprEmpty, ExprType:
		return shapeNone
	case ExprNum:
		return shapeNum
	case ExprFnum:
		return shapeFnum
	case ExprVar:
		return shapeVar
	case ExprObj:
		return shapeObj
	case ExprPtr:
		return shapeDeref
	case ExprMemref, ExprMemptr:
		return shapeMember
	case ExprCall:
		return shapeCall
	case ExprInsn:
		return shapeInsn
	case ExprHelper:
		return shapeHelper
	case ExprStr:
		return shapeStr
	}
	if IsExpr(op) {
		return shapeOperands
	}
	panic(interr(fmt.Sprintf("%s is not an expression kind", op)))
}

func newExpr(op Ctype, data exprData) *Expr {
	return &Expr{ItemHeader: newHeader(op), data: data}
}

// NewEmptyExpr returns an expression of kind ExprEmpty.
func NewEmptyExpr() *Expr { return newExpr(ExprEmpty, nil) }

// NewNum returns a signed integer literal of size bytes.
func NewNum(v uint64, size int) *Expr {
	e := newExpr(ExprNum, &numData{n: Number{Value: v, Format: NumberFormat{OrgNBytes: size}}})
	e.Type = IntType(size, Signed)
	return e
}

// NewFNum returns a floating literal of nbytes bytes.
func NewFNum(f float64, nbytes int) *Expr {
	e := newExpr(ExprFnum, &fnumData{f: NewFNumber(f, nbytes)})
	e.Type = FloatType(nbytes)
	e.Flags |= ExflFPOp
	return e
}

// NewVar returns a reference to the variable at index idx of the owning
// function's variable list.
func NewVar(idx int, t Type) *Expr {
	e := newExpr(ExprVar, &varData{idx: idx})
	e.Type = t
	return e
}

// NewObj returns a reference to the global object at ea.
func NewObj(ea uint64, t Type) *Expr {
	e := newExpr(ExprObj, &objData{ea: ea})
	e.Type = t
	return e
}

// NewHelper returns a free-form named placeholder, e.g. an intrinsic.
func NewHelper(name string, t Type) *Expr {
	e := newExpr(ExprHelper, &helperData{name: name})
	e.Type = t
	return e
}

// NewStr returns a string literal.
func NewStr(s string) *Expr {
	e := newExpr(ExprStr, &strData{s: s})
	e.Flags |= ExflCStr
	return e
}

// NewTypeExpr returns an expression standing for a type, as used by sizeof.
func NewTypeExpr(t Type) *Expr {
	e := newExpr(ExprType, nil)
	e.Type = t
	return e
}

// NewUnary builds a single-operand expression such as neg, lnot, ref,
// cast or a pre/post increment.
func NewUnary(op Ctype, x *Expr) *Expr {
	if exprShape(op) != shapeOperands || UsesY(op) {
		panic(interr(fmt.Sprintf("NewUnary: %s takes more than one operand", op)))
	}
	return newExpr(op, &operands{x: x})
}

// NewBinary builds a two-operand expression, including idx.
func NewBinary(op Ctype, x, y *Expr) *Expr {
	if exprShape(op) != shapeOperands || !IsBinary(op) {
		panic(interr(fmt.Sprintf("NewBinary: %s is not binary", op)))
	}
	return newExpr(op, &operands{x: x, y: y})
}

// NewTern builds c ? a : b.
func NewTern(c, a, b *Expr) *Expr {
	return newExpr(ExprTern, &operands{x: c, y: a, z: b})
}

// NewCast builds (t)x.
func NewCast(t Type, x *Expr) *Expr {
	e := NewUnary(ExprCast, x)
	e.Type = t
	return e
}

// NewCall builds fn(args...).
func NewCall(fn *Expr, args ...*Expr) *Expr {
	return newExpr(ExprCall, &callData{x: fn, args: args})
}

// NewPtr builds *x accessing size bytes.
func NewPtr(x *Expr, size int) *Expr {
	return newExpr(ExprPtr, &derefData{x: x, size: size})
}

// NewMemref builds x.m where m is the member offset (the member number for
// unions).
func NewMemref(x *Expr, m uint64) *Expr {
	return newExpr(ExprMemref, &memberData{x: x, m: m})
}

// NewMemptr builds x->m accessing size bytes.
func NewMemptr(x *Expr, m uint64, size int) *Expr {
	return newExpr(ExprMemptr, &memberData{x: x, m: m, size: size})
}

// NewEmbedded wraps a statement in an expression. Only legal before the
// tree reaches CmatFinal.
func NewEmbedded(ins *Insn) *Expr {
	return newExpr(ExprInsn, &insnData{ins: ins})
}

// At sets the address and returns e for chaining.
func (e *Expr) At(ea uint64) *Expr {
	e.EA = ea
	return e
}

func (e *Expr) wrongPayload(what string) *Failure {
	return interrAt(e.EA, "%s used on %s expression", what, e.op)
}

// X returns the first operand.
func (e *Expr) X() *Expr {
	switch d := e.data.(type) {
	case *operands:
		return d.x
	case *derefData:
		return d.x
	case *memberData:
		return d.x
	case *callData:
		return d.x
	}
	panic(e.wrongPayload("X"))
}

// Y returns the second operand of a binary or ternary expression.
func (e *Expr) Y() *Expr {
	if d, ok := e.data.(*operands); ok && UsesY(e.op) {
		return d.y
	}
	panic(e.wrongPayload("Y"))
}

// Z returns the third operand of a ternary expression.
func (e *Expr) Z() *Expr {
	if d, ok := e.data.(*operands); ok && UsesZ(e.op) {
		return d.z
	}
	panic(e.wrongPayload("Z"))
}

func (e *Expr) SetX(x *Expr) {
	switch d := e.data.(type) {
	case *operands:
		d.x = x
	case *derefData:
		d.x = x
	case *memberData:
		d.x = x
	case *callData:
		d.x = x
	default:
		panic(e.wrongPayload("SetX"))
	}
}

func (e *Expr) SetY(y *Expr) {
	d, ok := e.data.(*operands)
	if !ok || !UsesY(e.op) {
		panic(e.wrongPayload("SetY"))
	}
	d.y = y
}

func (e *Expr) SetZ(z *Expr) {
	d, ok := e.data.(*operands)
	if !ok || !UsesZ(e.op) {
		panic(e.wrongPayload("SetZ"))
	}
	d.z = z
}

// Args returns the call arguments. The slice is owned by the call.
func (e *Expr) Args() []*Expr {
	if d, ok := e.data.(*callData); ok {
		return d.args
	}
	panic(e.wrongPayload("Args"))
}

func (e *Expr) SetArgs(args []*Expr) {
	d, ok := e.data.(*callData)
	if !ok {
		panic(e.wrongPayload("SetArgs"))
	}
	d.args = args
}

// Num returns the literal of a num expression for reading or editing.
func (e *Expr) Num() *Number {
	if d, ok := e.data.(*numData); ok {
		return &d.n
	}
	panic(e.wrongPayload("Num"))
}

// NumValue returns the literal value truncated to the expression type.
func (e *Expr) NumValue() uint64 {
	return e.Num().Masked(e.Type.Size, e.Type.Sign)
}

func (e *Expr) FNum() FNumber {
	if d, ok := e.data.(*fnumData); ok {
		return d.f
	}
	panic(e.wrongPayload("FNum"))
}

// VarIndex returns the index of the referenced variable.
func (e *Expr) VarIndex() int {
	if d, ok := e.data.(*varData); ok {
		return d.idx
	}
	panic(e.wrongPayload("VarIndex"))
}

func (e *Expr) SetVarIndex(idx int) {
	d, ok := e.data.(*varData)
	if !ok {
		panic(e.wrongPayload("SetVarIndex"))
	}
	d.idx = idx
}

func (e *Expr) ObjEA() uint64 {
	if d, ok := e.data.(*objData); ok {
		return d.ea
	}
	panic(e.wrongPayload("ObjEA"))
}

// Member returns the member offset of memref and memptr.
func (e *Expr) Member() uint64 {
	if d, ok := e.data.(*memberData); ok {
		return d.m
	}
	panic(e.wrongPayload("Member"))
}

func (e *Expr) SetMember(m uint64) {
	d, ok := e.data.(*memberData)
	if !ok {
		panic(e.wrongPayload("SetMember"))
	}
	d.m = m
}

// PtrSize returns the access width of ptr and memptr.
func (e *Expr) PtrSize() int {
	switch d := e.data.(type) {
	case *derefData:
		return d.size
	case *memberData:
		if e.op == ExprMemptr {
			return d.size
		}
	}
	panic(e.wrongPayload("PtrSize"))
}

func (e *Expr) SetPtrSize(size int) {
	switch d := e.data.(type) {
	case *derefData:
		d.size = size
	case *memberData:
		if e.op != ExprMemptr {
			panic(e.wrongPayload("SetPtrSize"))
		}
		d.size = size
	default:
		panic(e.wrongPayload("SetPtrSize"))
	}
}

// Insn returns the statement embedded in an ExprInsn expression.
func (e *Expr) Insn() *Insn {
	if d, ok := e.data.(*insnData); ok {
		return d.ins
	}
	panic(e.wrongPayload("Insn"))
}

func (e *Expr) HelperName() string {
	if d, ok := e.data.(*helperData); ok {
		return d.name
	}
	panic(e.wrongPayload("HelperName"))
}

func (e *Expr) Str() string {
	if d, ok := e.data.(*strData); ok {
		return d.s
	}
	panic(e.wrongPayload("Str"))
}

// SetOp changes the discriminant within the same payload shape, e.g. add to
// sub or eq to ne. Changing shape requires building a new node.
func (e *Expr) SetOp(op Ctype) {
	if !IsExpr(op) || exprShape(op) != exprShape(e.op) {
		panic(interrAt(e.EA, "SetOp: can not turn %s into %s", e.op, op))
	}
	if UsesY(op) != UsesY(e.op) || UsesZ(op) != UsesZ(e.op) {
		panic(interrAt(e.EA, "SetOp: operand count of %s differs from %s", op, e.op))
	}
	e.op = op
}

// IsCstr reports whether e is a string literal.
func (e *Expr) IsCstr() bool { return e.Flags&ExflCStr != 0 }

// IsFPOp reports whether e is a floating point operation.
func (e *Expr) IsFPOp() bool { return e.Flags&ExflFPOp != 0 }

// IsTypePartial reports whether the type of e is considered partial.
func (e *Expr) IsTypePartial() bool { return e.Flags&ExflPartial != 0 }

// IsZero reports whether e is the literal 0.
func (e *Expr) IsZero() bool { return e.op == ExprNum && e.NumValue() == 0 }

// IsConst reports whether e is the literal v.
func (e *Expr) IsConst(v uint64) bool { return e.op == ExprNum && e.NumValue() == v }

// TheOnlyVar returns the referenced variable index if e is a plain
// variable reference, or -1.
func (e *Expr) TheOnlyVar() int {
	if e.op == ExprVar {
		return e.VarIndex()
	}
	return -1
}

// Operands returns the direct expression children of e in visit order.
// Embedded statements are not included.
func (e *Expr) Operands() []*Expr {
	switch d := e.data.(type) {
	case *operands:
		switch {
		case UsesZ(e.op):
			return []*Expr{d.x, d.y, d.z}
		case UsesY(e.op):
			return []*Expr{d.x, d.y}
		}
		return []*Expr{d.x}
	case *derefData:
		return []*Expr{d.x}
	case *memberData:
		return []*Expr{d.x}
	case *callData:
		out := make([]*Expr, 0, 1+len(d.args))
		out = append(out, d.x)
		return append(out, d.args...)
	}
	return nil
}

func (e *Expr) String() string { return Print1(e, nil) }
