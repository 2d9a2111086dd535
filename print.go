package ctree

import (
	"fmt"
	"strconv"
	"strings"
)

const indentUnit = "  "

// printer renders pseudocode lines. With a function attached it resolves
// variable and label names, emits user comments and honors collapsed
// items; without one it prints placeholders.
type printer struct {
	cf     *Cfunc
	lines  []string
	coords map[Item]int
	next   int
	inner  []string
}

func newPrinter(cf *Cfunc) *printer {
	return &printer{cf: cf, coords: make(map[Item]int)}
}

// Print1 renders one expression.
func Print1(e *Expr, cf *Cfunc) string {
	p := newPrinter(cf)
	return p.expr(e, maxPrecedence)
}

func printInsnLines(i *Insn, cf *Cfunc) []string {
	p := newPrinter(cf)
	p.stmt(i, 0)
	return p.lines
}

// PrintInsn renders a statement as indented lines.
func PrintInsn(i *Insn, cf *Cfunc) []string { return printInsnLines(i, cf) }

const maxPrecedence = 100

func (p *printer) mark(it Item) {
	h := it.header()
	h.Index = p.next
	p.next++
	p.coords[it] = len(p.lines)
}

func (p *printer) cmt(ea uint64, itp ItemPreciser) string {
	if p.cf == nil || ea == BadAddr {
		return ""
	}
	text, _ := p.cf.UserCmts.Retrieve(TreeLoc{EA: ea, Itp: itp}, RetrieveOnce)
	return text
}

func (p *printer) emit(indent int, text string, it Item, cmts ...string) {
	if it != nil {
		p.mark(it)
	}
	var all []string
	for _, c := range cmts {
		if c != "" {
			all = append(all, c)
		}
	}
	all = append(all, p.inner...)
	p.inner = p.inner[:0]
	line := strings.Repeat(indentUnit, indent) + text
	if len(all) > 0 {
		line += " // " + strings.Join(all, "; ")
	}
	p.lines = append(p.lines, line)
}

func (p *printer) collapsed(it Item) bool {
	if p.cf == nil {
		return false
	}
	f, _ := p.cf.UserIflags.Get(LocatorOf(it))
	return f&CitCollapsed != 0
}

func (p *printer) labelName(n int) string {
	if p.cf != nil {
		if name, ok := p.cf.UserLabels.Get(n); ok {
			return name
		}
	}
	return "LABEL_" + strconv.Itoa(n)
}

func (p *printer) stmt(i *Insn, indent int) {
	if i.HasLabel() {
		p.emit(0, p.labelName(i.Label)+":", nil, p.cmt(i.EA, ItpColon))
	}
	if c := p.cmt(i.EA, ItpBlock1); c != "" {
		p.emit(indent, "// "+c, nil)
	}
	semi := func(text string) { p.emit(indent, text+";", i, p.cmt(i.EA, ItpSemi)) }
	switch i.op {
	case InsnEmpty:
		semi("")
	case InsnBlock:
		p.block(i, indent, i.EA)
	case InsnExpr:
		semi(p.expr(i.Expr(), maxPrecedence))
	case InsnIf:
		cond := p.expr(i.Expr(), maxPrecedence)
		p.emit(indent, "if ( "+cond+" )", i, p.cmt(i.EA, ItpSemi), p.cmt(i.EA, ItpBrace2))
		p.body(i.Then(), indent, i.EA)
		if els := i.Else(); els != nil {
			p.emit(indent, "else", nil, p.cmt(i.EA, ItpElse))
			p.body(els, indent, els.EA)
		}
	case InsnFor:
		parts := []string{p.optExpr(i.Init()), p.optExpr(i.Expr()), p.optExpr(i.Step())}
		p.emit(indent, "for ( "+strings.Join(parts, "; ")+" )", i, p.cmt(i.EA, ItpSemi))
		p.body(i.Body(), indent, i.EA)
	case InsnWhile:
		cond := p.expr(i.Expr(), maxPrecedence)
		p.emit(indent, "while ( "+cond+" )", i, p.cmt(i.EA, ItpSemi), p.cmt(i.EA, ItpBrace2))
		p.body(i.Body(), indent, i.EA)
	case InsnDo:
		p.emit(indent, "do", i, p.cmt(i.EA, ItpDo))
		p.body(i.Body(), indent, i.EA)
		cond := p.expr(i.Expr(), maxPrecedence)
		p.emit(indent, "while ( "+cond+" );", nil, p.cmt(i.EA, ItpSemi))
	case InsnSwitch:
		p.switchStmt(i, indent)
	case InsnReturn:
		if e := i.Expr(); e != nil {
			semi("return " + p.expr(e, maxPrecedence))
		} else {
			semi("return")
		}
	case InsnGoto:
		semi("goto " + p.labelName(i.GotoLabel()))
	case InsnBreak:
		semi("break")
	case InsnContinue:
		semi("continue")
	case InsnAsm:
		addrs := make([]string, len(i.AsmAddrs()))
		for n, a := range i.AsmAddrs() {
			addrs[n] = fmt.Sprintf("%#x", a)
		}
		p.emit(indent, "__asm { "+strings.Join(addrs, " ")+" }", i, p.cmt(i.EA, ItpAsm))
	default:
		panic(i.wrongPayload("print"))
	}
	if c := p.cmt(i.EA, ItpBlock2); c != "" {
		p.emit(indent, "// "+c, nil)
	}
}

// body prints the body of a compound statement. Braces of a block body
// carry the comments of braceEA.
func (p *printer) body(s *Insn, indent int, braceEA uint64) {
	if s == nil {
		p.emit(indent+1, ";", nil)
		return
	}
	if s.op == InsnBlock && !s.HasLabel() {
		p.block(s, indent, braceEA)
		return
	}
	p.stmt(s, indent+1)
}

func (p *printer) block(b *Insn, indent int, braceEA uint64) {
	if p.collapsed(b) {
		p.emit(indent, fmt.Sprintf("{ ... } // %d statements", b.Block().Len()), b, p.cmt(braceEA, ItpCurly1))
		return
	}
	p.emit(indent, "{", b, p.cmt(braceEA, ItpCurly1))
	for s := range b.Block().All() {
		p.stmt(s, indent+1)
	}
	p.emit(indent, "}", nil, p.cmt(braceEA, ItpCurly2))
}

func (p *printer) switchStmt(i *Insn, indent int) {
	sel := i.Expr()
	p.emit(indent, "switch ( "+p.expr(sel, maxPrecedence)+" )", i, p.cmt(i.EA, ItpSemi))
	p.emit(indent, "{", nil, p.cmt(i.EA, ItpCurly1))
	for _, c := range i.Cases() {
		if c.IsDefault() {
			p.emit(indent+1, "default:", nil)
		}
		for _, v := range c.Values {
			n := Number{Value: v}
			text := n.Text(sel.Type.Size, sel.Type.Sign)
			sv := int64(n.Masked(sel.Type.Size, sel.Type.Sign))
			p.emit(indent+1, "case "+text+":", nil, p.cmt(i.EA, CaseItp(sv)))
		}
		if c.Body == nil {
			continue
		}
		if c.Body.op == InsnBlock && !c.Body.HasLabel() {
			p.mark(c.Body)
			for s := range c.Body.Block().All() {
				p.stmt(s, indent+2)
			}
		} else {
			p.stmt(c.Body, indent+2)
		}
	}
	p.emit(indent, "}", nil, p.cmt(i.EA, ItpCurly2))
}

func (p *printer) optExpr(e *Expr) string {
	if e == nil || e.op == ExprEmpty {
		return ""
	}
	return p.expr(e, maxPrecedence)
}

func (p *printer) varName(idx int) string {
	if p.cf != nil && idx >= 0 && idx < len(p.cf.Vars) && p.cf.Vars[idx].Name != "" {
		return p.cf.Vars[idx].Name
	}
	return "v" + strconv.Itoa(idx)
}

func objName(e *Expr) string {
	prefix := "unk_"
	switch {
	case e.Type.IsFunc():
		prefix = "sub_"
	case e.Type.Size == 1:
		prefix = "byte_"
	case e.Type.Size == 2:
		prefix = "word_"
	case e.Type.Size == 4:
		prefix = "dword_"
	case e.Type.Size == 8:
		prefix = "qword_"
	}
	return fmt.Sprintf("%s%X", prefix, e.ObjEA())
}

func memberName(udt Type, m uint64) string {
	if udt.IsUnion() {
		return "u" + strconv.FormatUint(m, 10)
	}
	return fmt.Sprintf("field_%X", m)
}

// expr renders e. allowed is the loosest precedence that may appear
// without parentheses.
func (p *printer) expr(e *Expr, allowed int) string {
	if e == nil {
		return ""
	}
	p.mark(e)
	info := Operator(e.op)
	text := p.exprText(e, info)
	if info.Precedence > allowed {
		return "(" + text + ")"
	}
	return text
}

func (p *printer) exprText(e *Expr, info OperatorInfo) string {
	prec := info.Precedence
	switch e.op {
	case ExprEmpty:
		return ""
	case ExprNum:
		n := e.Num()
		if (n.Format.IsEnum() || n.Format.IsStroff()) && n.Format.TypeName != "" {
			return n.Format.TypeName + "(" + n.Text(e.Type.Size, e.Type.Sign) + ")"
		}
		return n.Text(e.Type.Size, e.Type.Sign)
	case ExprFnum:
		return e.FNum().String()
	case ExprStr:
		return strconv.Quote(e.Str())
	case ExprObj:
		return objName(e)
	case ExprVar:
		return p.varName(e.VarIndex())
	case ExprHelper:
		return e.HelperName()
	case ExprType:
		return e.Type.String()
	case ExprInsn:
		sub := printInsnLines(e.Insn(), p.cf)
		for n := range sub {
			sub[n] = strings.TrimSpace(sub[n])
		}
		return "({ " + strings.Join(sub, " ") + " })"
	case ExprTern:
		return p.expr(e.X(), prec-1) + " ? " + p.expr(e.Y(), prec) + " : " + p.expr(e.Z(), prec)
	case ExprCast:
		return "(" + e.Type.String() + ")" + p.expr(e.X(), prec)
	case ExprSizeof:
		return "sizeof(" + p.expr(e.X(), maxPrecedence) + ")"
	case ExprCall:
		args := make([]string, len(e.Args()))
		for n, a := range e.Args() {
			args[n] = p.expr(a, Operator(ExprComma).Precedence-1)
			if c := p.cmt(e.EA, ArgItp(n)); c != "" {
				p.inner = append(p.inner, c)
			}
		}
		return p.expr(e.X(), prec) + "(" + strings.Join(args, ", ") + ")"
	case ExprIdx:
		return p.expr(e.X(), prec) + "[" + p.expr(e.Y(), maxPrecedence) + "]"
	case ExprMemref:
		return p.expr(e.X(), prec) + "." + memberName(e.X().Type, e.Member())
	case ExprMemptr:
		udt, _ := e.X().Type.Pointed()
		return p.expr(e.X(), prec) + "->" + memberName(udt, e.Member())
	}
	switch info.Fix {
	case FixPrefix:
		return info.Text + p.expr(e.X(), prec)
	case FixPostfix:
		return p.expr(e.X(), prec) + info.Text
	case FixInfix:
		left, right := prec, prec-1
		if info.Flags&CoiRL != 0 {
			left, right = prec-1, prec
		}
		return p.expr(e.X(), left) + " " + info.Text + " " + p.expr(e.Y(), right)
	}
	return e.op.String()
}

// declaration renders "type name".
func declaration(t Type, name string) string {
	s := t.String()
	if strings.HasSuffix(s, "*") {
		return s + name
	}
	return s + " " + name
}

// printFunc renders the whole function and returns the lines together with
// the number of header lines preceding the body statements.
func (p *printer) printFunc() int {
	cf := p.cf
	args := make([]string, len(cf.ArgIdx))
	for n, idx := range cf.ArgIdx {
		v := cf.Vars[idx]
		args[n] = declaration(v.Type, p.varName(idx))
	}
	name := cf.Name
	if name == "" {
		name = fmt.Sprintf("sub_%X", cf.EntryEA)
	}
	ret := cf.RetType
	if !ret.IsDefined() {
		ret = VoidType()
	}
	p.emit(0, declaration(ret, name)+"("+strings.Join(args, ", ")+")", nil, p.cmt(cf.EntryEA, ItpBlock1))
	p.emit(0, "{", nil, p.cmt(cf.EntryEA, ItpCurly1))
	if cf.statebits&CfsLvarsHidden == 0 {
		declared := 0
		for idx, v := range cf.Vars {
			if !v.Used() || v.IsArgVar() {
				continue
			}
			var notes []string
			if v.Loc.IsDefined() {
				notes = append(notes, v.Loc.String())
			}
			if v.Cmt != "" {
				notes = append(notes, v.Cmt)
			}
			p.emit(1, declaration(v.Type, p.varName(idx))+";", nil, notes...)
			declared++
		}
		if declared > 0 {
			p.emit(0, "", nil)
		}
	}
	hdr := len(p.lines)
	if cf.Body != nil {
		p.mark(cf.Body)
		for s := range cf.Body.Block().All() {
			p.stmt(s, 1)
		}
	}
	p.emit(0, "}", nil, p.cmt(cf.EntryEA, ItpCurly2))
	return hdr
}
