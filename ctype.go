package ctree

import "fmt"

// Ctype is the discriminant of a tree item. Values up to and including
// ExprLast are expressions; the rest are statements.
type Ctype uint8

// Expression kinds.
const (
	ExprEmpty   Ctype = iota
	ExprComma         // x, y
	ExprAsg           // x = y
	ExprAsgBor        // x |= y
	ExprAsgXor        // x ^= y
	ExprAsgBand       // x &= y
	ExprAsgAdd        // x += y
	ExprAsgSub        // x -= y
	ExprAsgMul        // x *= y
	ExprAsgSshr       // x >>= y signed
	ExprAsgUshr       // x >>= y unsigned
	ExprAsgShl        // x <<= y
	ExprAsgSdiv       // x /= y signed
	ExprAsgUdiv       // x /= y unsigned
	ExprAsgSmod       // x %= y signed
	ExprAsgUmod       // x %= y unsigned
	ExprTern          // x ? y : z
	ExprLor           // x || y
	ExprLand          // x && y
	ExprBor           // x | y
	ExprXor           // x ^ y
	ExprBand          // x & y
	ExprEq            // x == y
	ExprNe            // x != y
	ExprSge           // x >= y signed or fpu
	ExprUge           // x >= y unsigned
	ExprSle           // x <= y signed or fpu
	ExprUle           // x <= y unsigned
	ExprSgt           // x > y signed or fpu
	ExprUgt           // x > y unsigned
	ExprSlt           // x < y signed or fpu
	ExprUlt           // x < y unsigned
	ExprSshr          // x >> y signed
	ExprUshr          // x >> y unsigned
	ExprShl           // x << y
	ExprAdd           // x + y
	ExprSub           // x - y
	ExprMul           // x * y
	ExprSdiv          // x / y signed
	ExprUdiv          // x / y unsigned
	ExprSmod          // x % y signed
	ExprUmod          // x % y unsigned
	ExprFadd          // x + y fp
	ExprFsub          // x - y fp
	ExprFmul          // x * y fp
	ExprFdiv          // x / y fp
	ExprFneg          // -x fp
	ExprNeg           // -x
	ExprCast          // (type)x
	ExprLnot          // !x
	ExprBnot          // ~x
	ExprPtr           // *x, access size in ptrsize
	ExprRef           // &x
	ExprPostinc       // x++
	ExprPostdec       // x--
	ExprPreinc        // ++x
	ExprPredec        // --x
	ExprCall          // x(...)
	ExprIdx           // x[y]
	ExprMemref        // x.m
	ExprMemptr        // x->m, access size in ptrsize
	ExprNum           // n
	ExprFnum          // fpc
	ExprStr           // string constant
	ExprObj           // obj_ea
	ExprVar           // v
	ExprInsn          // instruction in expression, internal representation only
	ExprSizeof        // sizeof(x)
	ExprHelper        // arbitrary name
	ExprType          // arbitrary type
)

// ExprLast is the last expression kind.
const ExprLast = ExprType

// Statement kinds.
const (
	InsnEmpty Ctype = iota + ExprLast + 1
	InsnBlock
	InsnExpr
	InsnIf
	InsnFor
	InsnWhile
	InsnDo
	InsnSwitch
	InsnBreak
	InsnContinue
	InsnReturn
	InsnGoto
	InsnAsm
	InsnEnd
)

var ctypeNames = [...]string{
	ExprEmpty: "noexpr", ExprComma: "comma", ExprAsg: "asg", ExprAsgBor: "asgbor",
	ExprAsgXor: "asgxor", ExprAsgBand: "asgband", ExprAsgAdd: "asgadd", ExprAsgSub: "asgsub",
	ExprAsgMul: "asgmul", ExprAsgSshr: "asgsshr", ExprAsgUshr: "asgushr", ExprAsgShl: "asgshl",
	ExprAsgSdiv: "asgsdiv", ExprAsgUdiv: "asgudiv", ExprAsgSmod: "asgsmod", ExprAsgUmod: "asgumod",
	ExprTern: "tern", ExprLor: "lor", ExprLand: "land", ExprBor: "bor", ExprXor: "xor",
	ExprBand: "band", ExprEq: "eq", ExprNe: "ne", ExprSge: "sge", ExprUge: "uge", ExprSle: "sle",
	ExprUle: "ule", ExprSgt: "sgt", ExprUgt: "ugt", ExprSlt: "slt", ExprUlt: "ult",
	ExprSshr: "sshr", ExprUshr: "ushr", ExprShl: "shl", ExprAdd: "add", ExprSub: "sub",
	ExprMul: "mul", ExprSdiv: "sdiv", ExprUdiv: "udiv", ExprSmod: "smod", ExprUmod: "umod",
	ExprFadd: "fadd", ExprFsub: "fsub", ExprFmul: "fmul", ExprFdiv: "fdiv", ExprFneg: "fneg",
	ExprNeg: "neg", ExprCast: "cast", ExprLnot: "lnot", ExprBnot: "bnot", ExprPtr: "ptr",
	ExprRef: "ref", ExprPostinc: "postinc", ExprPostdec: "postdec", ExprPreinc: "preinc",
	ExprPredec: "predec", ExprCall: "call", ExprIdx: "idx", ExprMemref: "memref",
	ExprMemptr: "memptr", ExprNum: "num", ExprFnum: "fnum", ExprStr: "str", ExprObj: "obj",
	ExprVar: "var", ExprInsn: "insn", ExprSizeof: "sizeof", ExprHelper: "helper", ExprType: "type",
	InsnEmpty: "empty", InsnBlock: "block", InsnExpr: "expr", InsnIf: "if", InsnFor: "for",
	InsnWhile: "while", InsnDo: "do", InsnSwitch: "switch", InsnBreak: "break",
	InsnContinue: "continue", InsnReturn: "return", InsnGoto: "goto", InsnAsm: "asm",
}

func (op Ctype) String() string {
	if int(op) < len(ctypeNames) && ctypeNames[op] != "" {
		return ctypeNames[op]
	}
	return fmt.Sprintf("ctype(%d)", int(op))
}

// CtypeByName maps the short names used by String back to kinds.
func CtypeByName(name string) (Ctype, bool) {
	for i, n := range ctypeNames {
		if n == name {
			return Ctype(i), true
		}
	}
	return 0, false
}

// IsExpr reports whether op selects the expression payload family.
func IsExpr(op Ctype) bool { return op <= ExprLast }

// IsInsn reports whether op is a statement kind.
func IsInsn(op Ctype) bool { return op > ExprLast && op < InsnEnd }

func UsesX(op Ctype) bool { return (op >= ExprComma && op <= ExprMemptr) || op == ExprSizeof }

func UsesY(op Ctype) bool { return (op >= ExprComma && op <= ExprFdiv) || op == ExprIdx }

func UsesZ(op Ctype) bool { return op == ExprTern }

func IsBinary(op Ctype) bool { return UsesY(op) && op != ExprTern }

func IsUnary(op Ctype) bool { return op >= ExprFneg && op <= ExprPredec }

func IsRelational(op Ctype) bool { return op >= ExprEq && op <= ExprUlt }

func IsAssignment(op Ctype) bool { return op >= ExprAsg && op <= ExprAsgUmod }

// AcceptsUDTs reports whether structure or union operands are allowed.
func AcceptsUDTs(op Ctype) bool { return op == ExprAsg || op == ExprComma || op > ExprLast }

func IsPrePost(op Ctype) bool { return op >= ExprPostinc && op <= ExprPredec }

func IsCommutative(op Ctype) bool {
	switch op {
	case ExprBor, ExprXor, ExprBand, ExprAdd, ExprMul, ExprFadd, ExprFmul, ExprNe, ExprEq:
		return true
	}
	return false
}

func IsAdditive(op Ctype) bool {
	return op == ExprAdd || op == ExprSub || op == ExprFadd || op == ExprFsub
}

func IsMultiplicative(op Ctype) bool {
	switch op {
	case ExprMul, ExprSdiv, ExprUdiv, ExprFmul, ExprFdiv:
		return true
	}
	return false
}

func IsBitop(op Ctype) bool {
	return op == ExprBor || op == ExprXor || op == ExprBand || op == ExprBnot
}

func IsLogical(op Ctype) bool { return op == ExprLor || op == ExprLand || op == ExprLnot }

func IsLoop(op Ctype) bool { return op == InsnFor || op == InsnWhile || op == InsnDo }

// IsBreakConsumer reports whether a break inside op's body exits op.
func IsBreakConsumer(op Ctype) bool { return IsLoop(op) || op == InsnSwitch }

// IsLvalueOp reports whether expressions of kind op can be assigned to.
func IsLvalueOp(op Ctype) bool {
	switch op {
	case ExprPtr, ExprIdx, ExprMemref, ExprMemptr, ExprObj, ExprVar:
		return true
	}
	return false
}

// AllowedOnSmallUDT reports whether op may take a small struct or union operand.
func AllowedOnSmallUDT(op Ctype) bool {
	switch op {
	case InsnReturn, ExprAsg, ExprEq, ExprNe, ExprComma, ExprTern:
		return true
	}
	return IsInsn(op)
}

// NegatedRelation returns the relation that is true exactly when op is false.
func NegatedRelation(op Ctype) Ctype {
	switch op {
	case ExprEq:
		return ExprNe
	case ExprNe:
		return ExprEq
	case ExprSge:
		return ExprSlt
	case ExprUge:
		return ExprUlt
	case ExprSle:
		return ExprSgt
	case ExprUle:
		return ExprUgt
	case ExprSgt:
		return ExprSle
	case ExprUgt:
		return ExprUle
	case ExprSlt:
		return ExprSge
	case ExprUlt:
		return ExprUge
	}
	panic(interr(fmt.Sprintf("NegatedRelation: %s is not relational", op)))
}

// SwappedRelation returns the relation to use when the operands are exchanged.
func SwappedRelation(op Ctype) Ctype {
	switch op {
	case ExprSge:
		return ExprSle
	case ExprUge:
		return ExprUle
	case ExprSle:
		return ExprSge
	case ExprUle:
		return ExprUge
	case ExprSgt:
		return ExprSlt
	case ExprUgt:
		return ExprUlt
	case ExprSlt:
		return ExprSgt
	case ExprUlt:
		return ExprUgt
	}
	return op
}

var asgOps = map[Ctype]Ctype{
	ExprBor: ExprAsgBor, ExprXor: ExprAsgXor, ExprBand: ExprAsgBand, ExprAdd: ExprAsgAdd,
	ExprSub: ExprAsgSub, ExprMul: ExprAsgMul, ExprSshr: ExprAsgSshr, ExprUshr: ExprAsgUshr,
	ExprShl: ExprAsgShl, ExprSdiv: ExprAsgSdiv, ExprUdiv: ExprAsgUdiv, ExprSmod: ExprAsgSmod,
	ExprUmod: ExprAsgUmod,
}

// AsgOp converts a binary operator into its compound assignment form.
// Operators without one yield ExprEmpty.
func AsgOp(op Ctype) Ctype {
	if r, ok := asgOps[op]; ok {
		return r
	}
	return ExprEmpty
}

// AsgOpRevert converts a compound assignment into its binary operator.
func AsgOpRevert(op Ctype) Ctype {
	for k, v := range asgOps {
		if v == op {
			return k
		}
	}
	return ExprEmpty
}

// Sign describes the signedness an operator imposes on its operands.
type Sign uint8

const (
	NoSign Sign = iota
	Signed
	Unsigned
)

// OpSign reports the signedness implied by op, if any.
func OpSign(op Ctype) Sign {
	switch op {
	case ExprAsgSshr, ExprAsgSdiv, ExprAsgSmod, ExprSge, ExprSle, ExprSgt, ExprSlt,
		ExprSshr, ExprSdiv, ExprSmod:
		return Signed
	case ExprAsgUshr, ExprAsgUdiv, ExprAsgUmod, ExprUge, ExprUle, ExprUgt, ExprUlt,
		ExprUshr, ExprUdiv, ExprUmod:
		return Unsigned
	}
	return NoSign
}

// FixType is the syntactic position of an operator.
type FixType uint8

const (
	FixNone FixType = iota
	FixInfix
	FixPrefix
	FixPostfix
	FixTernary
)

// OperatorFlags describe extra properties of an operator.
type OperatorFlags uint8

const (
	CoiRL   OperatorFlags = 1 << iota // right-to-left associativity
	CoiLR                             // left-to-right associativity
	CoiInt                            // requires integer operands
	CoiFP                             // requires floating point operands
	CoiSh                             // is shift operation
	CoiSgn                            // sign sensitive
	CoiSbn                            // is simple binary
)

// OperatorInfo describes how an operator is rendered.
type OperatorInfo struct {
	Text       string
	Precedence int // lower binds tighter
	Valency    int
	Fix        FixType
	Flags      OperatorFlags
}

var operatorInfos = map[Ctype]OperatorInfo{
	ExprComma:   {",", 15, 2, FixInfix, CoiLR},
	ExprAsg:     {"=", 14, 2, FixInfix, CoiRL},
	ExprAsgBor:  {"|=", 14, 2, FixInfix, CoiRL | CoiInt},
	ExprAsgXor:  {"^=", 14, 2, FixInfix, CoiRL | CoiInt},
	ExprAsgBand: {"&=", 14, 2, FixInfix, CoiRL | CoiInt},
	ExprAsgAdd:  {"+=", 14, 2, FixInfix, CoiRL},
	ExprAsgSub:  {"-=", 14, 2, FixInfix, CoiRL},
	ExprAsgMul:  {"*=", 14, 2, FixInfix, CoiRL},
	ExprAsgSshr: {">>=", 14, 2, FixInfix, CoiRL | CoiInt | CoiSgn | CoiSh},
	ExprAsgUshr: {">>=", 14, 2, FixInfix, CoiRL | CoiInt | CoiSh},
	ExprAsgShl:  {"<<=", 14, 2, FixInfix, CoiRL | CoiInt | CoiSh},
	ExprAsgSdiv: {"/=", 14, 2, FixInfix, CoiRL | CoiSgn},
	ExprAsgUdiv: {"/=", 14, 2, FixInfix, CoiRL},
	ExprAsgSmod: {"%=", 14, 2, FixInfix, CoiRL | CoiInt | CoiSgn},
	ExprAsgUmod: {"%=", 14, 2, FixInfix, CoiRL | CoiInt},
	ExprTern:    {"?:", 13, 3, FixTernary, CoiRL},
	ExprLor:     {"||", 12, 2, FixInfix, CoiLR},
	ExprLand:    {"&&", 11, 2, FixInfix, CoiLR},
	ExprBor:     {"|", 10, 2, FixInfix, CoiLR | CoiInt | CoiSbn},
	ExprXor:     {"^", 9, 2, FixInfix, CoiLR | CoiInt | CoiSbn},
	ExprBand:    {"&", 8, 2, FixInfix, CoiLR | CoiInt | CoiSbn},
	ExprEq:      {"==", 7, 2, FixInfix, CoiLR},
	ExprNe:      {"!=", 7, 2, FixInfix, CoiLR},
	ExprSge:     {">=", 6, 2, FixInfix, CoiLR | CoiSgn},
	ExprUge:     {">=", 6, 2, FixInfix, CoiLR},
	ExprSle:     {"<=", 6, 2, FixInfix, CoiLR | CoiSgn},
	ExprUle:     {"<=", 6, 2, FixInfix, CoiLR},
	ExprSgt:     {">", 6, 2, FixInfix, CoiLR | CoiSgn},
	ExprUgt:     {">", 6, 2, FixInfix, CoiLR},
	ExprSlt:     {"<", 6, 2, FixInfix, CoiLR | CoiSgn},
	ExprUlt:     {"<", 6, 2, FixInfix, CoiLR},
	ExprSshr:    {">>", 5, 2, FixInfix, CoiLR | CoiInt | CoiSgn | CoiSh},
	ExprUshr:    {">>", 5, 2, FixInfix, CoiLR | CoiInt | CoiSh},
	ExprShl:     {"<<", 5, 2, FixInfix, CoiLR | CoiInt | CoiSh},
	ExprAdd:     {"+", 4, 2, FixInfix, CoiLR | CoiSbn},
	ExprSub:     {"-", 4, 2, FixInfix, CoiLR | CoiSbn},
	ExprMul:     {"*", 3, 2, FixInfix, CoiLR | CoiSbn},
	ExprSdiv:    {"/", 3, 2, FixInfix, CoiLR | CoiSgn | CoiSbn},
	ExprUdiv:    {"/", 3, 2, FixInfix, CoiLR | CoiSbn},
	ExprSmod:    {"%", 3, 2, FixInfix, CoiLR | CoiInt | CoiSgn | CoiSbn},
	ExprUmod:    {"%", 3, 2, FixInfix, CoiLR | CoiInt | CoiSbn},
	ExprFadd:    {"+", 4, 2, FixInfix, CoiLR | CoiFP},
	ExprFsub:    {"-", 4, 2, FixInfix, CoiLR | CoiFP},
	ExprFmul:    {"*", 3, 2, FixInfix, CoiLR | CoiFP},
	ExprFdiv:    {"/", 3, 2, FixInfix, CoiLR | CoiFP},
	ExprFneg:    {"-", 2, 1, FixPrefix, CoiRL | CoiFP},
	ExprNeg:     {"-", 2, 1, FixPrefix, CoiRL},
	ExprCast:    {"(type)", 2, 1, FixPrefix, CoiRL},
	ExprLnot:    {"!", 2, 1, FixPrefix, CoiRL},
	ExprBnot:    {"~", 2, 1, FixPrefix, CoiRL | CoiInt},
	ExprPtr:     {"*", 2, 1, FixPrefix, CoiRL},
	ExprRef:     {"&", 2, 1, FixPrefix, CoiRL},
	ExprPostinc: {"++", 1, 1, FixPostfix, CoiLR},
	ExprPostdec: {"--", 1, 1, FixPostfix, CoiLR},
	ExprPreinc:  {"++", 2, 1, FixPrefix, CoiRL},
	ExprPredec:  {"--", 2, 1, FixPrefix, CoiRL},
	ExprCall:    {"x(...)", 1, 2, FixNone, CoiLR},
	ExprIdx:     {"x[y]", 1, 2, FixNone, CoiLR},
	ExprMemref:  {".", 1, 1, FixPostfix, CoiLR},
	ExprMemptr:  {"->", 1, 1, FixPostfix, CoiLR},
	ExprSizeof:  {"sizeof", 2, 1, FixPrefix, CoiRL},
}

// Operator returns rendering information for op. Leaves and statements
// report precedence 0.
func Operator(op Ctype) OperatorInfo {
	if info, ok := operatorInfos[op]; ok {
		return info
	}
	return OperatorInfo{Text: op.String()}
}
