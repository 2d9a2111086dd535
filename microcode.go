package ctree

import "fmt"

// Func is the handle of a function to decompile.
type Func struct {
	EA      uint64
	Size    uint64
	Bitness int // 16, 32 or 64
	Name    string
}

// Mcode is a microcode opcode. Only the opcodes the tree builder has to
// understand are listed; the rest arrive as MExt.
type Mcode uint8

const (
	MNop  Mcode = iota
	MMov        // d = l
	MLdx        // d = *(l + r), size of d
	MStx        // *(r) = l
	MAdd        // d = l + r
	MSub        // d = l - r
	MMul        // d = l * r
	MUdiv       // d = l / r, unsigned
	MSdiv       // d = l / r, signed
	MUmod       // d = l % r, unsigned
	MSmod       // d = l % r, signed
	MOr         // d = l | r
	MAnd        // d = l & r
	MXor        // d = l ^ r
	MShl        // d = l << r
	MShr        // d = l >> r, logical
	MSar        // d = l >> r, arithmetic
	MNeg        // d = -l
	MLnot       // d = !l
	MBnot       // d = ~l
	MXdu        // d = zero extended l
	MXds        // d = sign extended l
	MLow        // d = low part of l
	MSetz       // d = l == r
	MSetnz      // d = l != r
	MSetae      // d = l >= r, unsigned
	MSetb       // d = l < r, unsigned
	MSeta       // d = l > r, unsigned
	MSetbe      // d = l <= r, unsigned
	MSetg       // d = l > r, signed
	MSetge      // d = l >= r, signed
	MSetl       // d = l < r, signed
	MSetle      // d = l <= r, signed
	MCall       // d = l(r...), r holds the arguments
	MFadd       // d = l + r, floating
	MFsub       // d = l - r, floating
	MFmul       // d = l * r, floating
	MFdiv       // d = l / r, floating
	MFneg       // d = -l, floating
	MExt        // anything else; becomes inline assembly
)

var mcodeNames = [...]string{
	"nop", "mov", "ldx", "stx", "add", "sub", "mul", "udiv", "sdiv", "umod", "smod",
	"or", "and", "xor", "shl", "shr", "sar", "neg", "lnot", "bnot", "xdu", "xds", "low",
	"setz", "setnz", "setae", "setb", "seta", "setbe", "setg", "setge", "setl", "setle",
	"call", "fadd", "fsub", "fmul", "fdiv", "fneg", "ext",
}

func (m Mcode) String() string {
	if int(m) < len(mcodeNames) {
		return mcodeNames[m]
	}
	return fmt.Sprintf("mcode(%d)", int(m))
}

// McodeByName returns the opcode called name.
func McodeByName(name string) (Mcode, bool) {
	for i, n := range mcodeNames {
		if n == name {
			return Mcode(i), true
		}
	}
	return 0, false
}

// exprOp returns the expression kind of a binary or unary opcode.
func (m Mcode) exprOp() (Ctype, bool) {
	op, ok := mcodeOps[m]
	return op, ok
}

var mcodeOps = map[Mcode]Ctype{
	MAdd: ExprAdd, MSub: ExprSub, MMul: ExprMul,
	MUdiv: ExprUdiv, MSdiv: ExprSdiv, MUmod: ExprUmod, MSmod: ExprSmod,
	MOr: ExprBor, MAnd: ExprBand, MXor: ExprXor,
	MShl: ExprShl, MShr: ExprUshr, MSar: ExprSshr,
	MNeg: ExprNeg, MLnot: ExprLnot, MBnot: ExprBnot,
	MSetz: ExprEq, MSetnz: ExprNe, MSetae: ExprUge, MSetb: ExprUlt, MSeta: ExprUgt,
	MSetbe: ExprUle, MSetg: ExprSgt, MSetge: ExprSge, MSetl: ExprSlt, MSetle: ExprSle,
	MFadd: ExprFadd, MFsub: ExprFsub, MFmul: ExprFmul, MFdiv: ExprFdiv, MFneg: ExprFneg,
}

// MopKind classifies a microcode operand.
type MopKind uint8

const (
	MopNone   MopKind = iota
	MopReg            // machine register Reg
	MopNum            // immediate Value
	MopFloat          // floating immediate F
	MopStr            // string literal Str
	MopInsn           // result of the nested instruction Insn
	MopStack          // stack slot at Off
	MopGlobal         // global object at EA
	MopLvar           // variable Lvar of the Mba
	MopAddr           // address of Addr
	MopHelper         // helper function Str
	MopArgs           // call argument list Args
)

// Mop is a microcode operand.
type Mop struct {
	Kind  MopKind
	Size  int
	Reg   int
	Value uint64
	F     float64
	Str   string
	EA    uint64
	Off   int64
	Lvar  int
	Insn  *Minsn
	Addr  *Mop
	Args  []Mop
	OpNum int // operand number in the machine instruction, for number formats
	Type  Type
}

// Minsn is one microcode instruction.
type Minsn struct {
	Op      Mcode
	EA      uint64
	L, R, D Mop
}

// Mblock is a basic block of microcode.
type Mblock struct {
	Serial     int
	Start, End uint64
	Insns      []*Minsn
}

// CtrlKind classifies a CtrlNode.
type CtrlKind uint8

const (
	CtrlSeq      CtrlKind = iota // Children in order
	CtrlBlock                    // the instructions of Mblock Block
	CtrlIf                       // if (Cond) Children[0] else Children[1]
	CtrlWhile                    // while (Cond) Children[0]
	CtrlDo                       // do Children[0] while (Cond)
	CtrlFor                      // for (Init; Cond; Step) Children[0]
	CtrlSwitch                   // switch (Cond) with Children as case bodies
	CtrlGoto                     // goto Target
	CtrlBreak
	CtrlContinue
	CtrlReturn // return Value
)

// CtrlNode is the control structure recovered by structural analysis.
type CtrlNode struct {
	Kind       CtrlKind
	EA         uint64
	Label      int // label of the first statement, -1 for none
	Block      int
	Cond       *Mop
	Init, Step *Minsn
	Value      *Mop
	Target     int
	CaseValues [][]uint64 // parallel to Children for CtrlSwitch; nil is default
	Children   []*CtrlNode
}

// Mba is the microcode of one function, as produced by the external
// engine, together with the results of variable allocation and
// structural analysis.
type Mba struct {
	EntryEA     uint64
	Blocks      []*Mblock
	Vars        Lvars
	ArgIdx      []int
	RetType     Type
	StkoffDelta uint64
	Structure   *CtrlNode
	Warnings    []Warning
}

// Block returns the basic block with the given serial, or nil.
func (mba *Mba) Block(serial int) *Mblock {
	for _, b := range mba.Blocks {
		if b.Serial == serial {
			return b
		}
	}
	return nil
}
