package ctree

import (
	"fmt"
	"strconv"

	"github.com/strager/ctree/sexy"
)

// ParseItem reads a tree in the form written by Dump. Bare symbols name
// variables of *vars; names not found there are appended as int variables.
// A list headed by a statement kind reads as a statement, anything else as
// an expression.
func ParseItem(src string, vars *Lvars) (Item, error) {
	n, err := sexy.Parse(src)
	if err != nil {
		return nil, err
	}
	l := &loader{vars: vars, ptrSize: 8}
	if isStmtNode(n) {
		return l.stmt(n)
	}
	return l.expr(n)
}

// ParseExpr is ParseItem for an expression.
func ParseExpr(src string, vars *Lvars) (*Expr, error) {
	n, err := sexy.Parse(src)
	if err != nil {
		return nil, err
	}
	return (&loader{vars: vars, ptrSize: 8}).expr(n)
}

// ParseInsn is ParseItem for a statement. A bare expression becomes an
// expression statement.
func ParseInsn(src string, vars *Lvars) (*Insn, error) {
	n, err := sexy.Parse(src)
	if err != nil {
		return nil, err
	}
	return (&loader{vars: vars, ptrSize: 8}).stmt(n)
}

// ParseFunc reads a function written by DumpFunc:
//
//	(func ^{ea: 0x401000, name: "f", ret: "int"}
//	  (lvars (a1 "int" "stk(8)" arg) (v1 "char *" "r0"))
//	  (labels (1 "retry"))
//	  (cmts (0x401004 "semi" "text"))
//	  (iflags (0x401000 block 1))
//	  (block ...))
//
// Every section is optional; the body comes last. A source that is not a
// func form is read as the body of a function at address 0.
func ParseFunc(src string, types TypeOracle) (*Cfunc, error) {
	n, err := sexy.Parse(src)
	if err != nil {
		return nil, err
	}
	var vars Lvars
	l := &loader{vars: &vars, ptrSize: 8, types: types}
	if types != nil {
		l.ptrSize = types.PointerSize()
	}
	if n.Head() != "func" {
		body, err := l.stmt(n)
		if err != nil {
			return nil, err
		}
		return FromTree(0, body, vars, types), nil
	}

	args := n.Args()
	if len(args) == 0 {
		return nil, fmt.Errorf("func: missing body")
	}
	ea, err := l.metaUint(n, "ea", 0)
	if err != nil {
		return nil, err
	}
	for _, sec := range args[:len(args)-1] {
		if sec.Head() == "lvars" {
			if err := l.lvars(sec); err != nil {
				return nil, err
			}
		}
	}
	body, err := l.stmt(args[len(args)-1])
	if err != nil {
		return nil, err
	}
	cf := FromTree(ea, body, vars, types)
	if name, ok := n.Meta("name"); ok {
		cf.Name = name.Text
	}
	if ret, ok := n.Meta("ret"); ok {
		if cf.RetType, err = ParseType(ret.Text, l.ptrSize); err != nil {
			return nil, err
		}
	}
	for _, sec := range args[:len(args)-1] {
		switch sec.Head() {
		case "lvars":
		case "labels":
			err = l.labels(cf, sec)
		case "cmts":
			err = l.cmts(cf, sec)
		case "iflags":
			err = l.iflags(cf, sec)
		default:
			err = fmt.Errorf("func: unknown section %s", sec)
		}
		if err != nil {
			return nil, err
		}
	}
	return cf, nil
}

type loader struct {
	vars    *Lvars
	ptrSize int
	types   TypeOracle // types of untyped objects, may be nil
}

var stmtHeads = map[string]bool{
	"block": true, "expr": true, "if": true, "for": true, "while": true, "do": true,
	"switch": true, "break": true, "continue": true, "return": true, "goto": true,
	"asm": true, "empty": true,
}

func isStmtNode(n *sexy.Node) bool { return stmtHeads[n.Head()] }

func (l *loader) stmt(n *sexy.Node) (*Insn, error) {
	if !isStmtNode(n) {
		e, err := l.expr(n)
		if err != nil {
			return nil, err
		}
		return NewExprInsn(e), nil
	}
	args := n.Args()
	var ins *Insn
	switch n.Head() {
	case "block":
		stmts, err := mapNodes(args, l.stmt)
		if err != nil {
			return nil, err
		}
		ins = NewBlock(stmts...)
	case "expr":
		if err := arity(n, 1, 1); err != nil {
			return nil, err
		}
		e, err := l.expr(args[0])
		if err != nil {
			return nil, err
		}
		ins = NewExprInsn(e)
		ins.EA = BadAddr
	case "if":
		if err := arity(n, 2, 3); err != nil {
			return nil, err
		}
		cond, err := l.expr(args[0])
		if err != nil {
			return nil, err
		}
		then, err := l.stmt(args[1])
		if err != nil {
			return nil, err
		}
		var els *Insn
		if len(args) == 3 {
			if els, err = l.stmt(args[2]); err != nil {
				return nil, err
			}
		}
		ins = NewIf(cond, then, els)
	case "for":
		if err := arity(n, 4, 4); err != nil {
			return nil, err
		}
		es, err := mapNodes(args[:3], l.expr)
		if err != nil {
			return nil, err
		}
		body, err := l.stmt(args[3])
		if err != nil {
			return nil, err
		}
		ins = NewFor(es[0], es[1], es[2], body)
	case "while":
		if err := arity(n, 2, 2); err != nil {
			return nil, err
		}
		cond, err := l.expr(args[0])
		if err != nil {
			return nil, err
		}
		body, err := l.stmt(args[1])
		if err != nil {
			return nil, err
		}
		ins = NewWhile(cond, body)
	case "do":
		if err := arity(n, 2, 2); err != nil {
			return nil, err
		}
		body, err := l.stmt(args[0])
		if err != nil {
			return nil, err
		}
		cond, err := l.expr(args[1])
		if err != nil {
			return nil, err
		}
		ins = NewDo(body, cond)
	case "switch":
		var err error
		if ins, err = l.switchStmt(n); err != nil {
			return nil, err
		}
	case "break":
		ins = NewBreak()
	case "continue":
		ins = NewContinue()
	case "empty":
		ins = NewEmptyInsn()
	case "return":
		if err := arity(n, 0, 1); err != nil {
			return nil, err
		}
		var e *Expr
		if len(args) == 1 {
			var err error
			if e, err = l.expr(args[0]); err != nil {
				return nil, err
			}
		}
		ins = NewReturn(e)
	case "goto":
		if err := arity(n, 1, 1); err != nil {
			return nil, err
		}
		label, err := args[0].Uint()
		if err != nil {
			return nil, fmt.Errorf("goto: %w", err)
		}
		ins = NewGoto(int(label))
	case "asm":
		addrs, err := mapNodes(args, (*sexy.Node).Uint)
		if err != nil {
			return nil, fmt.Errorf("asm: %w", err)
		}
		ins = NewAsm(addrs...)
	}
	if err := l.header(n, &ins.ItemHeader); err != nil {
		return nil, err
	}
	return ins, nil
}

func (l *loader) switchStmt(n *sexy.Node) (*Insn, error) {
	args := n.Args()
	if len(args) == 0 {
		return nil, fmt.Errorf("switch: missing selector")
	}
	sel, err := l.expr(args[0])
	if err != nil {
		return nil, err
	}
	var cases []*Case
	for _, arm := range args[1:] {
		var c Case
		var body *sexy.Node
		switch arm.Head() {
		case "default":
			if err := arity(arm, 1, 1); err != nil {
				return nil, err
			}
			body = arm.Args()[0]
		case "case":
			if err := arity(arm, 2, 2); err != nil {
				return nil, err
			}
			vals := arm.Args()[0]
			if vals.Type != sexy.NodeList || len(vals.Items) == 0 {
				return nil, fmt.Errorf("case: expected a list of values but got %s", vals)
			}
			if c.Values, err = mapNodes(vals.Items, (*sexy.Node).Uint); err != nil {
				return nil, fmt.Errorf("case: %w", err)
			}
			body = arm.Args()[1]
		default:
			return nil, fmt.Errorf("switch: expected case or default but got %s", arm)
		}
		if c.Body, err = l.stmt(body); err != nil {
			return nil, err
		}
		cases = append(cases, &c)
	}
	return NewSwitch(sel, switchMaxValue(sel), cases...), nil
}

func (l *loader) expr(n *sexy.Node) (*Expr, error) {
	switch n.Type {
	case sexy.NodeInteger:
		v, err := n.Uint()
		if err != nil {
			return nil, err
		}
		return NewNum(v, 4), nil
	case sexy.NodeString:
		return NewStr(n.Text), nil
	case sexy.NodeSymbol:
		return l.variable(n)
	case sexy.NodeList:
	default:
		return nil, fmt.Errorf("expected an expression but got %s", n)
	}
	e, err := l.exprList(n)
	if err != nil {
		return nil, err
	}
	if err := l.header(n, &e.ItemHeader); err != nil {
		return nil, err
	}
	return e, nil
}

func (l *loader) exprList(n *sexy.Node) (*Expr, error) {
	args := n.Args()
	switch head := n.Head(); head {
	case "num":
		if err := arity(n, 2, 3); err != nil {
			return nil, err
		}
		v, err := args[0].Uint()
		if err != nil {
			return nil, err
		}
		size, err := args[1].Uint()
		if err != nil {
			return nil, err
		}
		e := NewNum(v, int(size))
		if len(args) == 3 {
			if args[2].Text != "unsigned" {
				return nil, fmt.Errorf("num: unexpected %s", args[2])
			}
			e.Type.Sign = Unsigned
		}
		return e, nil
	case "fnum":
		if err := arity(n, 2, 2); err != nil {
			return nil, err
		}
		f, err := strconv.ParseFloat(args[0].Text, 64)
		if err != nil {
			return nil, fmt.Errorf("fnum: %w", err)
		}
		size, err := args[1].Uint()
		if err != nil {
			return nil, err
		}
		return NewFNum(f, int(size)), nil
	case "var":
		if err := arity(n, 1, 1); err != nil {
			return nil, err
		}
		if args[0].Type == sexy.NodeInteger {
			idx, err := args[0].Uint()
			if err != nil {
				return nil, err
			}
			if int(idx) >= len(*l.vars) {
				return nil, fmt.Errorf("var: no variable %d", idx)
			}
			return NewVar(int(idx), (*l.vars)[idx].Type), nil
		}
		return l.variable(args[0])
	case "obj":
		if err := arity(n, 1, 2); err != nil {
			return nil, err
		}
		ea, err := args[0].Uint()
		if err != nil {
			return nil, err
		}
		t, err := l.optType(args[1:])
		if err != nil {
			return nil, err
		}
		if !t.IsDefined() && l.types != nil {
			t, _ = l.types.ObjectType(ea)
		}
		return NewObj(ea, t), nil
	case "helper":
		if err := arity(n, 1, 2); err != nil {
			return nil, err
		}
		t, err := l.optType(args[1:])
		if err != nil {
			return nil, err
		}
		return NewHelper(args[0].Text, t), nil
	case "str":
		if err := arity(n, 1, 1); err != nil {
			return nil, err
		}
		return NewStr(args[0].Text), nil
	case "type":
		if err := arity(n, 1, 1); err != nil {
			return nil, err
		}
		t, err := ParseType(args[0].Text, l.ptrSize)
		if err != nil {
			return nil, err
		}
		return NewTypeExpr(t), nil
	case "cast":
		if err := arity(n, 2, 2); err != nil {
			return nil, err
		}
		t, err := ParseType(args[0].Text, l.ptrSize)
		if err != nil {
			return nil, err
		}
		x, err := l.expr(args[1])
		if err != nil {
			return nil, err
		}
		return NewCast(t, x), nil
	case "ptr":
		if err := arity(n, 2, 2); err != nil {
			return nil, err
		}
		x, err := l.expr(args[0])
		if err != nil {
			return nil, err
		}
		size, err := args[1].Uint()
		if err != nil {
			return nil, err
		}
		return NewPtr(x, int(size)), nil
	case "memref", "memptr":
		if head == "memref" {
			if err := arity(n, 2, 2); err != nil {
				return nil, err
			}
		} else if err := arity(n, 3, 3); err != nil {
			return nil, err
		}
		x, err := l.expr(args[0])
		if err != nil {
			return nil, err
		}
		m, err := args[1].Uint()
		if err != nil {
			return nil, err
		}
		if head == "memref" {
			return NewMemref(x, m), nil
		}
		size, err := args[2].Uint()
		if err != nil {
			return nil, err
		}
		return NewMemptr(x, m, int(size)), nil
	case "call":
		if err := arity(n, 1, -1); err != nil {
			return nil, err
		}
		es, err := mapNodes(args, l.expr)
		if err != nil {
			return nil, err
		}
		return NewCall(es[0], es[1:]...), nil
	case "insn":
		if err := arity(n, 1, 1); err != nil {
			return nil, err
		}
		ins, err := l.stmt(args[0])
		if err != nil {
			return nil, err
		}
		return NewEmbedded(ins), nil
	case "noexpr":
		return NewEmptyExpr(), nil
	}

	op, ok := CtypeByName(n.Head())
	if !ok || !IsExpr(op) || exprShape(op) != shapeOperands {
		return nil, fmt.Errorf("unknown expression %s", n)
	}
	want := 1
	switch {
	case UsesZ(op):
		want = 3
	case UsesY(op):
		want = 2
	}
	if err := arity(n, want, want); err != nil {
		return nil, err
	}
	es, err := mapNodes(args, l.expr)
	if err != nil {
		return nil, err
	}
	switch want {
	case 3:
		return NewTern(es[0], es[1], es[2]), nil
	case 2:
		return NewBinary(op, es[0], es[1]), nil
	}
	return NewUnary(op, es[0]), nil
}

// variable returns a reference to the variable called n, declaring it
// first if needed.
func (l *loader) variable(n *sexy.Node) (*Expr, error) {
	if n.Type != sexy.NodeSymbol {
		return nil, fmt.Errorf("expected a variable name but got %s", n)
	}
	idx := l.vars.ByName(n.Text)
	if idx < 0 {
		*l.vars = append(*l.vars, NewLvar(n.Text, VdLoc{}, BadAddr, IntType(4, Signed), 4, -1))
		idx = len(*l.vars) - 1
	}
	return NewVar(idx, (*l.vars)[idx].Type), nil
}

func (l *loader) optType(args []*sexy.Node) (Type, error) {
	if len(args) == 0 {
		return Type{}, nil
	}
	return ParseType(args[0].Text, l.ptrSize)
}

// header applies the ea and label metadata of n.
func (l *loader) header(n *sexy.Node, h *ItemHeader) error {
	ea, err := l.metaUint(n, "ea", h.EA)
	if err != nil {
		return err
	}
	h.EA = ea
	if v, ok := n.Meta("label"); ok {
		label, err := v.Uint()
		if err != nil {
			return fmt.Errorf("label: %w", err)
		}
		h.Label = int(label)
	}
	return nil
}

func (l *loader) metaUint(n *sexy.Node, key string, def uint64) (uint64, error) {
	v, ok := n.Meta(key)
	if !ok {
		return def, nil
	}
	u, err := v.Uint()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return u, nil
}

func (l *loader) lvars(sec *sexy.Node) error {
	for _, decl := range sec.Args() {
		if decl.Type != sexy.NodeList || len(decl.Items) < 2 || decl.Items[0].Type != sexy.NodeSymbol {
			return fmt.Errorf("lvars: expected (name \"type\" [\"loc\"] flags...) but got %s", decl)
		}
		t, err := ParseType(decl.Items[1].Text, l.ptrSize)
		if err != nil {
			return fmt.Errorf("lvars: %w", err)
		}
		var loc VdLoc
		rest := decl.Items[2:]
		if len(rest) > 0 && rest[0].Type == sexy.NodeString {
			if loc, err = ParseVdLoc(rest[0].Text); err != nil {
				return fmt.Errorf("lvars: %w", err)
			}
			rest = rest[1:]
		}
		v := NewLvar(decl.Items[0].Text, loc, BadAddr, t, t.Size, -1)
		v.Flags |= CvarType | CvarName
		for _, f := range rest {
			switch f.Text {
			case "arg":
				v.Flags |= CvarArg
				v.DefBlk = 0
			case "result":
				v.Flags |= CvarResult
			case "unused":
				v.Flags &^= CvarUsed
			default:
				return fmt.Errorf("lvars: unknown flag %s", f)
			}
		}
		if l.vars.ByName(v.Name) >= 0 {
			return fmt.Errorf("lvars: %s declared twice", v.Name)
		}
		*l.vars = append(*l.vars, v)
	}
	return nil
}

func (l *loader) labels(cf *Cfunc, sec *sexy.Node) error {
	for _, ent := range sec.Args() {
		if len(ent.Items) != 2 {
			return fmt.Errorf("labels: expected (number \"name\") but got %s", ent)
		}
		n, err := ent.Items[0].Uint()
		if err != nil {
			return fmt.Errorf("labels: %w", err)
		}
		cf.UserLabels.Set(int(n), ent.Items[1].Text)
	}
	return nil
}

func (l *loader) cmts(cf *Cfunc, sec *sexy.Node) error {
	for _, ent := range sec.Args() {
		if len(ent.Items) != 3 {
			return fmt.Errorf("cmts: expected (ea \"preciser\" \"text\") but got %s", ent)
		}
		ea, err := ent.Items[0].Uint()
		if err != nil {
			return fmt.Errorf("cmts: %w", err)
		}
		itp, err := ParseItemPreciser(ent.Items[1].Text)
		if err != nil {
			return fmt.Errorf("cmts: %w", err)
		}
		cf.UserCmts.SetText(TreeLoc{EA: ea, Itp: itp}, ent.Items[2].Text)
	}
	return nil
}

func (l *loader) iflags(cf *Cfunc, sec *sexy.Node) error {
	for _, ent := range sec.Args() {
		if len(ent.Items) != 3 {
			return fmt.Errorf("iflags: expected (ea kind flags) but got %s", ent)
		}
		ea, err := ent.Items[0].Uint()
		if err != nil {
			return fmt.Errorf("iflags: %w", err)
		}
		op, ok := CtypeByName(ent.Items[1].Text)
		if !ok {
			return fmt.Errorf("iflags: unknown item kind %s", ent.Items[1])
		}
		flags, err := ent.Items[2].Uint()
		if err != nil {
			return fmt.Errorf("iflags: %w", err)
		}
		cf.UserIflags.Set(ItemLocator{EA: ea, Op: op}, int32(flags))
	}
	return nil
}

// arity checks that list n has between lo and hi arguments after its
// head; hi < 0 means no upper bound.
func arity(n *sexy.Node, lo, hi int) error {
	got := len(n.Args())
	if got < lo || (hi >= 0 && got > hi) {
		return fmt.Errorf("%s: wrong number of arguments in %s", n.Head(), n)
	}
	return nil
}

func mapNodes[T any](ns []*sexy.Node, f func(*sexy.Node) (T, error)) ([]T, error) {
	out := make([]T, len(ns))
	for i, n := range ns {
		v, err := f(n)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
