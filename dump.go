package ctree

import (
	"fmt"
	"math"
	"strings"

	"github.com/strager/ctree/sexy"
)

// ToSExpr renders the tree rooted at it as an s-expression. Variables are
// named after vars where possible. Addresses and labels are kept as list
// metadata, so the result reads back into an equal tree with ParseItem.
func ToSExpr(it Item, vars Lvars) *sexy.Node {
	d := dumper{vars: vars}
	if e, ok := it.(*Expr); ok {
		return d.expr(e)
	}
	return d.stmt(it.(*Insn))
}

// Dump is ToSExpr in text form.
func Dump(it Item, vars Lvars) string { return ToSExpr(it, vars).String() }

// DumpFunc renders cf in the form read by ParseFunc.
func DumpFunc(cf *Cfunc) string {
	d := dumper{vars: cf.Vars}
	fn := sexy.NewList(sexy.NewSymbol("func"))
	fn.SetMeta("ea", sexy.Hex(cf.EntryEA))
	if cf.Name != "" {
		fn.SetMeta("name", sexy.NewString(cf.Name))
	}
	if cf.RetType.IsDefined() {
		fn.SetMeta("ret", sexy.NewString(typeText(cf.RetType)))
	}
	if len(cf.Vars) > 0 {
		lv := sexy.NewList(sexy.NewSymbol("lvars"))
		for _, v := range cf.Vars {
			decl := sexy.NewList(sexy.NewSymbol(v.Name), sexy.NewString(typeText(v.Type)), sexy.NewString(v.Loc.String()))
			if v.IsArgVar() {
				decl.Items = append(decl.Items, sexy.NewSymbol("arg"))
			}
			if v.IsResultVar() {
				decl.Items = append(decl.Items, sexy.NewSymbol("result"))
			}
			if !v.Used() {
				decl.Items = append(decl.Items, sexy.NewSymbol("unused"))
			}
			lv.Items = append(lv.Items, decl)
		}
		fn.Items = append(fn.Items, lv)
	}
	if cf.UserLabels.Len() > 0 {
		ls := sexy.NewList(sexy.NewSymbol("labels"))
		for n, name := range cf.UserLabels.All() {
			ls.Items = append(ls.Items, sexy.NewList(sexy.Int(int64(n)), sexy.NewString(name)))
		}
		fn.Items = append(fn.Items, ls)
	}
	if cf.UserCmts.Len() > 0 {
		cs := sexy.NewList(sexy.NewSymbol("cmts"))
		for loc, c := range cf.UserCmts.All() {
			cs.Items = append(cs.Items, sexy.NewList(sexy.Hex(loc.EA), sexy.NewString(loc.Itp.String()), sexy.NewString(c.Text)))
		}
		fn.Items = append(fn.Items, cs)
	}
	if cf.UserIflags.Len() > 0 {
		fs := sexy.NewList(sexy.NewSymbol("iflags"))
		for loc, f := range cf.UserIflags.All() {
			fs.Items = append(fs.Items, sexy.NewList(sexy.Hex(loc.EA), sexy.NewSymbol(loc.Op.String()), sexy.Int(int64(f))))
		}
		fn.Items = append(fn.Items, fs)
	}
	fn.Items = append(fn.Items, d.stmt(cf.Body))
	return fn.String()
}

type dumper struct {
	vars Lvars
}

// list builds (head items...) carrying the address and label of h.
func list(h *ItemHeader, head string, items ...*sexy.Node) *sexy.Node {
	n := sexy.NewList(append([]*sexy.Node{sexy.NewSymbol(head)}, items...)...)
	if h.EA != BadAddr {
		n.SetMeta("ea", sexy.Hex(h.EA))
	}
	if h.Label != NoLabel {
		n.SetMeta("label", sexy.Int(int64(h.Label)))
	}
	return n
}

// plain reports whether h carries nothing that only a list could hold.
func plain(h *ItemHeader) bool { return h.EA == BadAddr && h.Label == NoLabel }

func (d *dumper) stmt(i *Insn) *sexy.Node {
	h := &i.ItemHeader
	switch i.op {
	case InsnBlock:
		n := list(h, "block")
		for s := range i.Block().All() {
			n.Items = append(n.Items, d.stmt(s))
		}
		return n
	case InsnExpr:
		e := i.Expr()
		if i.Label == NoLabel && i.EA == e.EA {
			return d.expr(e)
		}
		return list(h, "expr", d.expr(e))
	case InsnIf:
		n := list(h, "if", d.expr(i.Expr()), d.stmt(i.Then()))
		if i.Else() != nil {
			n.Items = append(n.Items, d.stmt(i.Else()))
		}
		return n
	case InsnFor:
		return list(h, "for", d.expr(i.Init()), d.expr(i.Expr()), d.expr(i.Step()), d.stmt(i.Body()))
	case InsnWhile:
		return list(h, "while", d.expr(i.Expr()), d.stmt(i.Body()))
	case InsnDo:
		return list(h, "do", d.stmt(i.Body()), d.expr(i.Expr()))
	case InsnSwitch:
		n := list(h, "switch", d.expr(i.Expr()))
		for _, c := range i.Cases() {
			if c.IsDefault() {
				n.Items = append(n.Items, sexy.NewList(sexy.NewSymbol("default"), d.stmt(c.Body)))
				continue
			}
			vals := sexy.NewList()
			for _, v := range c.Values {
				vals.Items = append(vals.Items, intNode(v))
			}
			n.Items = append(n.Items, sexy.NewList(sexy.NewSymbol("case"), vals, d.stmt(c.Body)))
		}
		return n
	case InsnReturn:
		if e := i.Expr(); e != nil {
			return list(h, "return", d.expr(e))
		}
		return list(h, "return")
	case InsnGoto:
		return list(h, "goto", sexy.Int(int64(i.GotoLabel())))
	case InsnAsm:
		n := list(h, "asm")
		for _, ea := range i.AsmAddrs() {
			n.Items = append(n.Items, sexy.Hex(ea))
		}
		return n
	}
	return list(h, i.op.String())
}

func (d *dumper) expr(e *Expr) *sexy.Node {
	if e == nil {
		return sexy.NewList(sexy.NewSymbol(ExprEmpty.String()))
	}
	h := &e.ItemHeader
	switch e.op {
	case ExprNum:
		n := e.Num()
		if plain(h) && e.Type.Equal(IntType(4, Signed)) && n.Format.OrgNBytes == 4 {
			return intNode(n.Value)
		}
		l := list(h, "num", intNode(n.Value), sexy.Int(int64(e.Type.Size)))
		if e.Type.IsUnsigned() {
			l.Items = append(l.Items, sexy.NewSymbol("unsigned"))
		}
		return l
	case ExprFnum:
		f := e.FNum()
		return list(h, "fnum", sexy.NewString(f.String()), sexy.Int(int64(f.NBytes)))
	case ExprVar:
		name := d.varName(e.VarIndex())
		if plain(h) && name.Type == sexy.NodeSymbol {
			return name
		}
		return list(h, "var", name)
	case ExprObj:
		return list(h, "obj", sexy.Hex(e.ObjEA()))
	case ExprHelper:
		return list(h, "helper", sexy.NewString(e.HelperName()))
	case ExprStr:
		if plain(h) {
			return sexy.NewString(e.Str())
		}
		return list(h, "str", sexy.NewString(e.Str()))
	case ExprType:
		return list(h, "type", sexy.NewString(typeText(e.Type)))
	case ExprCast:
		return list(h, "cast", sexy.NewString(typeText(e.Type)), d.expr(e.X()))
	case ExprPtr:
		return list(h, "ptr", d.expr(e.X()), sexy.Int(int64(e.PtrSize())))
	case ExprMemref:
		return list(h, "memref", d.expr(e.X()), intNode(e.Member()))
	case ExprMemptr:
		return list(h, "memptr", d.expr(e.X()), intNode(e.Member()), sexy.Int(int64(e.PtrSize())))
	case ExprInsn:
		return list(h, "insn", d.stmt(e.Insn()))
	}
	n := list(h, e.op.String())
	for _, x := range e.Operands() {
		n.Items = append(n.Items, d.expr(x))
	}
	return n
}

// varName is the symbol of variable idx, or its index when the name would
// not read back as a symbol.
func (d *dumper) varName(idx int) *sexy.Node {
	if idx >= 0 && idx < len(d.vars) && isSymbolName(d.vars[idx].Name) && d.vars.ByName(d.vars[idx].Name) == idx {
		return sexy.NewSymbol(d.vars[idx].Name)
	}
	return sexy.Int(int64(idx))
}

func isSymbolName(s string) bool {
	if _, reserved := CtypeByName(s); reserved || s == "" {
		return false
	}
	for i, r := range s {
		letter := r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
		if !letter && (i == 0 || r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// intNode writes small values in decimal and the rest in hexadecimal.
func intNode(v uint64) *sexy.Node {
	if v <= math.MaxInt32 {
		return sexy.Int(int64(v))
	}
	return sexy.Hex(v)
}

// typeText is the type name in the form ParseType reads back.
func typeText(t Type) string {
	switch t.Kind {
	case TypeStruct, TypeUnion:
		return fmt.Sprintf("%s:%d", t.String(), t.Size)
	case TypePtr:
		if t.Elem != nil && t.Elem.Kind != TypeFunc {
			s := typeText(*t.Elem)
			if strings.HasSuffix(s, "*") {
				return s + "*"
			}
			return s + " *"
		}
	case TypeArray:
		if t.Elem != nil {
			return fmt.Sprintf("%s[%d]", typeText(*t.Elem), t.NElems)
		}
	}
	return t.String()
}
