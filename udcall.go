package ctree

import (
	"cmp"
	"fmt"
	"strings"
)

// UdCall turns an instruction into a call of a named function with a
// known prototype.
type UdCall struct {
	Name string `json:"name"`
	Type Type   `json:"type"` // a function type
}

// ParseUdCall reads a declaration of the form "ret name(arg, arg)".
func ParseUdCall(decl string, ptrSize int) (UdCall, error) {
	open := strings.IndexByte(decl, '(')
	if open < 0 || !strings.HasSuffix(strings.TrimSpace(decl), ")") {
		return UdCall{}, fmt.Errorf("malformed declaration %q", decl)
	}
	head := strings.TrimSpace(decl[:open])
	sp := strings.LastIndexAny(head, " *")
	if sp < 0 {
		return UdCall{}, fmt.Errorf("missing return type in %q", decl)
	}
	name := strings.TrimSpace(head[sp+1:])
	if name == "" {
		return UdCall{}, fmt.Errorf("missing name in %q", decl)
	}
	ret, err := ParseType(head[:sp+1], ptrSize)
	if err != nil {
		return UdCall{}, fmt.Errorf("return type of %q: %w", decl, err)
	}
	body := strings.TrimSpace(decl[open+1 : strings.LastIndexByte(decl, ')')])
	var args []Type
	if body != "" && body != "void" {
		for _, a := range strings.Split(body, ",") {
			t, err := ParseType(a, ptrSize)
			if err != nil {
				return UdCall{}, fmt.Errorf("argument of %q: %w", decl, err)
			}
			args = append(args, t)
		}
	}
	return UdCall{Name: name, Type: FuncType(ret, args...)}, nil
}

// IsEmpty reports whether udc names no function.
func (udc UdCall) IsEmpty() bool { return udc.Name == "" }

// emit lowers cg.Insn as a call to udc. A non-void result is stored in the
// first machine operand; the following operands become the arguments.
func (udc UdCall) emit(cg *Codegen) error {
	ops := cg.Insn.Ops
	ret, _ := udc.Type.Result()
	var dst Mop
	if !ret.IsVoid() {
		if len(ops) == 0 {
			return NewFailure(MerrBadCall, cg.Insn.EA, udc.Name)
		}
		dst, ops = ops[0], ops[1:]
		dst.Size = ret.Size
		dst.Type = ret
	}
	if len(ops) < len(udc.Type.Args) {
		return NewFailure(MerrBadCall, cg.Insn.EA, udc.Name)
	}
	args := Mop{Kind: MopArgs}
	for i, t := range udc.Type.Args {
		a := ops[i]
		a.Size = t.Size
		a.Type = t
		args.Args = append(args.Args, a)
	}
	fn := Mop{Kind: MopHelper, Str: udc.Name, Type: udc.Type}
	cg.Emit(MCall, fn, args, dst)
	return nil
}

// UdcFilter lowers the instructions selected by Matcher as calls to UdCall.
type UdcFilter struct {
	UdCall
	Matcher func(cg *Codegen) bool
}

func (f *UdcFilter) Match(cg *Codegen) bool  { return f.Matcher != nil && f.Matcher(cg) }
func (f *UdcFilter) Apply(cg *Codegen) error { return f.emit(cg) }

// UserUdcalls maps instruction addresses to user-defined calls.
type UserUdcalls = Table[uint64, UdCall]

func NewUserUdcalls() *UserUdcalls {
	return newTable(cmp.Compare[uint64],
		func(u UdCall) bool { return u.IsEmpty() },
		func(a, b UdCall) bool { return a.Name == b.Name && a.Type.Equal(b.Type) })
}

// UdcallsFilter applies a UserUdcalls table: every instruction whose
// address has an entry becomes the corresponding call.
type UdcallsFilter struct {
	Calls *UserUdcalls
}

func (f UdcallsFilter) Match(cg *Codegen) bool {
	_, ok := f.Calls.Get(cg.Insn.EA)
	return ok
}

func (f UdcallsFilter) Apply(cg *Codegen) error {
	udc, ok := f.Calls.Get(cg.Insn.EA)
	if !ok {
		return ErrNotHandled
	}
	return udc.emit(cg)
}
