package ctree

import (
	"fmt"
	"iter"
)

// Insn is a statement node. Like Expr, its payload is selected by Op.
// An Insn that is an element of a Block also carries the list links; the
// links belong to the list, not to the payload, and are left alone by
// ReplaceBy, Swap and Cleanup.
type Insn struct {
	ItemHeader
	data insnPayload

	prev, next *Insn
	list       *Block
}

type insnPayload interface{ isInsnPayload() }

type (
	blockPayload struct{ b *Block }
	exprPayload  struct{ e *Expr }
	ifPayload    struct {
		cond      *Expr
		then, els *Insn
	}
	forPayload struct {
		init, cond, step *Expr
		body             *Insn
	}
	whilePayload struct {
		cond *Expr
		body *Insn
	}
	doPayload struct {
		body *Insn
		cond *Expr
	}
	switchPayload struct {
		e      *Expr
		maxval Number
		cases  []*Case
	}
	returnPayload struct{ e *Expr }
	gotoPayload   struct{ label int }
	asmPayload    struct{ addrs []uint64 }
)

func (*blockPayload) isInsnPayload()  {}
func (*exprPayload) isInsnPayload()   {}
func (*ifPayload) isInsnPayload()     {}
func (*forPayload) isInsnPayload()    {}
func (*whilePayload) isInsnPayload()  {}
func (*doPayload) isInsnPayload()     {}
func (*switchPayload) isInsnPayload() {}
func (*returnPayload) isInsnPayload() {}
func (*gotoPayload) isInsnPayload()   {}
func (*asmPayload) isInsnPayload()    {}

// Case is one arm of a switch. An empty Values slice marks the default arm.
type Case struct {
	Values []uint64
	Body   *Insn
}

// IsDefault reports whether c is the default arm.
func (c *Case) IsDefault() bool { return len(c.Values) == 0 }

func newInsn(op Ctype, data insnPayload) *Insn {
	return &Insn{ItemHeader: newHeader(op), data: data}
}

func NewEmptyInsn() *Insn     { return newInsn(InsnEmpty, nil) }
func NewBreak() *Insn         { return newInsn(InsnBreak, nil) }
func NewContinue() *Insn      { return newInsn(InsnContinue, nil) }
func NewGoto(label int) *Insn { return newInsn(InsnGoto, &gotoPayload{label: label}) }

// NewBlock returns a compound statement holding stmts in order.
func NewBlock(stmts ...*Insn) *Insn {
	b := &Block{}
	for _, s := range stmts {
		b.PushBack(s)
	}
	return newInsn(InsnBlock, &blockPayload{b: b})
}

// NewExprInsn returns an expression statement.
func NewExprInsn(e *Expr) *Insn {
	ins := newInsn(InsnExpr, &exprPayload{e: e})
	ins.EA = e.EA
	return ins
}

// NewIf returns if (cond) then else els; els may be nil.
func NewIf(cond *Expr, then, els *Insn) *Insn {
	return newInsn(InsnIf, &ifPayload{cond: cond, then: then, els: els})
}

func NewFor(init, cond, step *Expr, body *Insn) *Insn {
	return newInsn(InsnFor, &forPayload{init: init, cond: cond, step: step, body: body})
}

func NewWhile(cond *Expr, body *Insn) *Insn {
	return newInsn(InsnWhile, &whilePayload{cond: cond, body: body})
}

func NewDo(body *Insn, cond *Expr) *Insn {
	return newInsn(InsnDo, &doPayload{body: body, cond: cond})
}

// NewSwitch returns switch (e) with the given arms. maxval is the number
// of distinct values the switch expression can take.
func NewSwitch(e *Expr, maxval uint64, cases ...*Case) *Insn {
	return newInsn(InsnSwitch, &switchPayload{e: e, maxval: Number{Value: maxval}, cases: cases})
}

// NewReturn returns a return statement; e is nil for a bare return.
func NewReturn(e *Expr) *Insn {
	return newInsn(InsnReturn, &returnPayload{e: e})
}

// NewAsm returns an inline assembly statement covering addrs.
func NewAsm(addrs ...uint64) *Insn {
	return newInsn(InsnAsm, &asmPayload{addrs: addrs})
}

// At sets the address and returns i for chaining.
func (i *Insn) At(ea uint64) *Insn {
	i.EA = ea
	return i
}

// WithLabel sets the label and returns i for chaining.
func (i *Insn) WithLabel(label int) *Insn {
	i.Label = label
	return i
}

func (i *Insn) wrongPayload(what string) *Failure {
	return interrAt(i.EA, "%s used on %s statement", what, i.op)
}

// Block returns the statement list of a block.
func (i *Insn) Block() *Block {
	if d, ok := i.data.(*blockPayload); ok {
		return d.b
	}
	panic(i.wrongPayload("Block"))
}

// Expr returns the expression of an expression statement, the condition of
// if/for/while/do, the selector of a switch, or the value of a return (nil
// for a bare return).
func (i *Insn) Expr() *Expr {
	switch d := i.data.(type) {
	case *exprPayload:
		return d.e
	case *ifPayload:
		return d.cond
	case *forPayload:
		return d.cond
	case *whilePayload:
		return d.cond
	case *doPayload:
		return d.cond
	case *switchPayload:
		return d.e
	case *returnPayload:
		return d.e
	}
	panic(i.wrongPayload("Expr"))
}

// SetExpr replaces the expression returned by Expr.
func (i *Insn) SetExpr(e *Expr) {
	switch d := i.data.(type) {
	case *exprPayload:
		d.e = e
	case *ifPayload:
		d.cond = e
	case *forPayload:
		d.cond = e
	case *whilePayload:
		d.cond = e
	case *doPayload:
		d.cond = e
	case *switchPayload:
		d.e = e
	case *returnPayload:
		d.e = e
	default:
		panic(i.wrongPayload("SetExpr"))
	}
}

func (i *Insn) ifData() *ifPayload {
	if d, ok := i.data.(*ifPayload); ok {
		return d
	}
	panic(i.wrongPayload("if accessor"))
}

func (i *Insn) Then() *Insn        { return i.ifData().then }
func (i *Insn) Else() *Insn        { return i.ifData().els }
func (i *Insn) SetThen(then *Insn) { i.ifData().then = then }
func (i *Insn) SetElse(els *Insn)  { i.ifData().els = els }

// Body returns the body of a loop.
func (i *Insn) Body() *Insn {
	switch d := i.data.(type) {
	case *forPayload:
		return d.body
	case *whilePayload:
		return d.body
	case *doPayload:
		return d.body
	}
	panic(i.wrongPayload("Body"))
}

func (i *Insn) SetBody(body *Insn) {
	switch d := i.data.(type) {
	case *forPayload:
		d.body = body
	case *whilePayload:
		d.body = body
	case *doPayload:
		d.body = body
	default:
		panic(i.wrongPayload("SetBody"))
	}
}

func (i *Insn) forData() *forPayload {
	if d, ok := i.data.(*forPayload); ok {
		return d
	}
	panic(i.wrongPayload("for accessor"))
}

func (i *Insn) Init() *Expr     { return i.forData().init }
func (i *Insn) Step() *Expr     { return i.forData().step }
func (i *Insn) SetInit(e *Expr) { i.forData().init = e }
func (i *Insn) SetStep(e *Expr) { i.forData().step = e }

func (i *Insn) switchData() *switchPayload {
	if d, ok := i.data.(*switchPayload); ok {
		return d
	}
	panic(i.wrongPayload("switch accessor"))
}

// Cases returns the arms of a switch in order.
func (i *Insn) Cases() []*Case { return i.switchData().cases }

func (i *Insn) SetCases(cases []*Case) { i.switchData().cases = cases }

// MaxValue returns the switch's maximal-value literal.
func (i *Insn) MaxValue() *Number { return &i.switchData().maxval }

// GotoLabel returns the target label number of a goto.
func (i *Insn) GotoLabel() int {
	if d, ok := i.data.(*gotoPayload); ok {
		return d.label
	}
	panic(i.wrongPayload("GotoLabel"))
}

func (i *Insn) SetGotoLabel(label int) {
	d, ok := i.data.(*gotoPayload)
	if !ok {
		panic(i.wrongPayload("SetGotoLabel"))
	}
	d.label = label
}

// AsmAddrs returns the instruction addresses of an asm statement.
func (i *Insn) AsmAddrs() []uint64 {
	if d, ok := i.data.(*asmPayload); ok {
		return d.addrs
	}
	panic(i.wrongPayload("AsmAddrs"))
}

// Next returns the following statement in the enclosing block, or nil.
func (i *Insn) Next() *Insn { return i.next }

// Prev returns the preceding statement in the enclosing block, or nil.
func (i *Insn) Prev() *Insn { return i.prev }

// InBlock reports whether i is an element of some block.
func (i *Insn) InBlock() bool { return i.list != nil }

// Children returns the direct children of i in visit order: expressions
// and statements interleaved as they appear in the source.
func (i *Insn) Children() []Item {
	var out []Item
	addE := func(e *Expr) {
		if e != nil {
			out = append(out, e)
		}
	}
	addI := func(s *Insn) {
		if s != nil {
			out = append(out, s)
		}
	}
	switch d := i.data.(type) {
	case *blockPayload:
		for s := range d.b.All() {
			out = append(out, s)
		}
	case *exprPayload:
		addE(d.e)
	case *ifPayload:
		addE(d.cond)
		addI(d.then)
		addI(d.els)
	case *forPayload:
		addE(d.init)
		addE(d.cond)
		addE(d.step)
		addI(d.body)
	case *whilePayload:
		addE(d.cond)
		addI(d.body)
	case *doPayload:
		addI(d.body)
		addE(d.cond)
	case *switchPayload:
		addE(d.e)
		for _, c := range d.cases {
			addI(c.Body)
		}
	case *returnPayload:
		addE(d.e)
	}
	return out
}

func (i *Insn) String() string {
	lines := printInsnLines(i, nil)
	if len(lines) == 1 {
		return lines[0]
	}
	return fmt.Sprintf("%s ... (%d lines)", lines[0], len(lines))
}

// Block is a doubly-linked, order-significant statement list. Insertion
// and removal anywhere in the list take constant time.
type Block struct {
	head, tail *Insn
	n          int
}

func (b *Block) Len() int     { return b.n }
func (b *Block) Front() *Insn { return b.head }
func (b *Block) Back() *Insn  { return b.tail }
func (b *Block) Empty() bool  { return b.n == 0 }

// All iterates over the statements in order. The iteration tolerates
// removal of the statement being visited.
func (b *Block) All() iter.Seq[*Insn] {
	return func(yield func(*Insn) bool) {
		for s := b.head; s != nil; {
			next := s.next
			if !yield(s) {
				return
			}
			s = next
		}
	}
}

// Slice returns the statements as a slice.
func (b *Block) Slice() []*Insn {
	out := make([]*Insn, 0, b.n)
	for s := range b.All() {
		out = append(out, s)
	}
	return out
}

func (b *Block) adopt(s *Insn) {
	if s.list != nil {
		panic(interrAt(s.EA, "statement is already an element of a block"))
	}
	s.list = b
	b.n++
}

func (b *Block) checkOwned(mark *Insn) {
	if mark.list != b {
		panic(interrAt(mark.EA, "statement is not an element of this block"))
	}
}

func (b *Block) PushBack(s *Insn) {
	b.adopt(s)
	s.prev = b.tail
	s.next = nil
	if b.tail != nil {
		b.tail.next = s
	} else {
		b.head = s
	}
	b.tail = s
}

func (b *Block) PushFront(s *Insn) {
	b.adopt(s)
	s.next = b.head
	s.prev = nil
	if b.head != nil {
		b.head.prev = s
	} else {
		b.tail = s
	}
	b.head = s
}

// InsertAfter inserts s right after mark.
func (b *Block) InsertAfter(s, mark *Insn) {
	b.checkOwned(mark)
	if mark == b.tail {
		b.PushBack(s)
		return
	}
	b.adopt(s)
	s.prev = mark
	s.next = mark.next
	mark.next.prev = s
	mark.next = s
}

// InsertBefore inserts s right before mark.
func (b *Block) InsertBefore(s, mark *Insn) {
	b.checkOwned(mark)
	if mark == b.head {
		b.PushFront(s)
		return
	}
	b.adopt(s)
	s.next = mark
	s.prev = mark.prev
	mark.prev.next = s
	mark.prev = s
}

// Remove unlinks s and returns it. Ownership passes to the caller.
func (b *Block) Remove(s *Insn) *Insn {
	b.checkOwned(s)
	if s.prev != nil {
		s.prev.next = s.next
	} else {
		b.head = s.next
	}
	if s.next != nil {
		s.next.prev = s.prev
	} else {
		b.tail = s.prev
	}
	s.prev, s.next, s.list = nil, nil, nil
	b.n--
	return s
}

// Clear unlinks every statement.
func (b *Block) Clear() {
	for s := range b.All() {
		s.prev, s.next, s.list = nil, nil, nil
	}
	b.head, b.tail, b.n = nil, nil, 0
}

// Index returns the position of s, or -1.
func (b *Block) Index(s *Insn) int {
	n := 0
	for cur := range b.All() {
		if cur == s {
			return n
		}
		n++
	}
	return -1
}
