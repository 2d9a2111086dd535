package ctree

import (
	"cmp"
	"fmt"
)

// LvarLocator identifies a variable across rebuilds: the index of a
// variable is only stable within one tree. DefEA is BadAddr for
// arguments.
type LvarLocator struct {
	Loc   VdLoc  `json:"loc"`
	DefEA uint64 `json:"defea"`
}

func (ll LvarLocator) Compare(o LvarLocator) int {
	if c := ll.Loc.Compare(o.Loc); c != 0 {
		return c
	}
	return cmp.Compare(ll.DefEA, o.DefEA)
}

func (ll LvarLocator) Equal(o LvarLocator) bool { return ll.Compare(o) == 0 }

func (ll LvarLocator) String() string {
	if ll.DefEA == BadAddr {
		return ll.Loc.String()
	}
	return fmt.Sprintf("%s@%#x", ll.Loc, ll.DefEA)
}

func (ll LvarLocator) IsRegVar() bool    { return ll.Loc.IsReg() }
func (ll LvarLocator) IsStkVar() bool    { return ll.Loc.IsStack() }
func (ll LvarLocator) IsScattered() bool { return ll.Loc.Kind == LocScattered }

// LvarFlags are variable property bits.
type LvarFlags uint32

const (
	CvarUsed    LvarFlags = 1 << iota // is used in the code
	CvarType                          // the type is defined
	CvarName                          // has nice name
	CvarMreg                          // corresponding mregs were replaced
	CvarNoWidth                       // width is unknown
	CvarUname                         // user-defined name
	CvarUtype                         // user-defined type
	CvarResult                        // function result variable
	CvarArg                           // function argument
	CvarFake                          // fake return variable
	CvarOver                          // overlapping variable
	CvarFloat                         // used in a floating point instruction
	CvarSpoiled                       // spoiled, meaningful during allocation only
	CvarMapdst                        // other variables are mapped to this one
	CvarPartial                       // type is partially defined
)

// Lvar is a local variable or argument.
type Lvar struct {
	LvarLocator
	Name    string
	Cmt     string
	Type    Type
	Width   int
	DefBlk  int    // first defining block; 0 for arguments, -1 if unknown
	Divisor uint64 // largest known divisor of the value
	Flags   LvarFlags
}

// NewLvar returns a used variable.
func NewLvar(name string, loc VdLoc, defEA uint64, t Type, width, defBlk int) *Lvar {
	return &Lvar{
		LvarLocator: LvarLocator{Loc: loc, DefEA: defEA},
		Name:        name,
		Type:        t,
		Width:       width,
		DefBlk:      defBlk,
		Flags:       CvarUsed,
	}
}

func (v *Lvar) has(f LvarFlags) bool { return v.Flags&f != 0 }

func (v *Lvar) Used() bool             { return v.has(CvarUsed) }
func (v *Lvar) Typed() bool            { return v.has(CvarType) }
func (v *Lvar) HasNiceName() bool      { return v.has(CvarName) }
func (v *Lvar) IsUnknownWidth() bool   { return v.has(CvarNoWidth) }
func (v *Lvar) HasUserName() bool      { return v.has(CvarUname) }
func (v *Lvar) HasUserType() bool      { return v.has(CvarUtype) }
func (v *Lvar) IsResultVar() bool      { return v.has(CvarResult) }
func (v *Lvar) IsArgVar() bool         { return v.has(CvarArg) }
func (v *Lvar) IsFakeVar() bool        { return v.has(CvarFake) }
func (v *Lvar) IsOverlappedVar() bool  { return v.has(CvarOver) }
func (v *Lvar) IsFloatingVar() bool    { return v.has(CvarFloat) }
func (v *Lvar) IsSpoiledVar() bool     { return v.has(CvarSpoiled) }
func (v *Lvar) IsMapdstVar() bool      { return v.has(CvarMapdst) }
func (v *Lvar) IsPartiallyTyped() bool { return v.has(CvarPartial) }

// HasUserInfo reports whether the user named, typed or commented v.
func (v *Lvar) HasUserInfo() bool { return v.has(CvarUname|CvarUtype) || v.Cmt != "" }

// SetUserName renames v on behalf of the user.
func (v *Lvar) SetUserName(name string) {
	v.Name = name
	v.Flags |= CvarName | CvarUname
}

// SetRegName names a register without declaring it.
func (v *Lvar) SetRegName(name string) {
	v.Name = name
	v.Flags &^= CvarUsed
	v.Flags |= CvarName
}

func (v *Lvar) ClearUserInfo() { v.Flags &^= CvarUname | CvarUtype }

// HasCommon reports whether v and o share storage.
func (v *Lvar) HasCommon(o *Lvar) bool { return Overlap(v.Loc, v.Width, o.Loc, o.Width) }

// HasCommonBit reports whether v overlaps width bytes at loc.
func (v *Lvar) HasCommonBit(loc VdLoc, width int) bool {
	return Overlap(v.Loc, v.Width, loc, width)
}

// AcceptsType reports whether t may be the type of a variable: void,
// functions, malformed arrays and sizeless types are refused.
func (v *Lvar) AcceptsType(t Type) bool {
	switch {
	case t.IsVoid(), t.IsFunc():
		return false
	case t.IsArray():
		if t.Elem == nil || t.NElems <= 0 || t.Elem.Size <= 0 || t.Elem.IsVoid() || t.Elem.IsFunc() {
			return false
		}
	}
	return t.Size > 0
}

// ForceLvarType sets the type without validation.
func (v *Lvar) ForceLvarType(t Type) {
	v.Type = t
	v.Width = t.Size
	v.Flags &^= CvarNoWidth | CvarPartial
	if t.IsPartial() {
		v.Flags |= CvarPartial
	}
	if t.IsFloat() {
		v.Flags |= CvarFloat
	}
}

// SetLvarType validates and sets the type of v. With mayFail a bad type
// makes it return false; otherwise a bad type is an internal error, since
// it can only come from a bug upstream.
func (v *Lvar) SetLvarType(t Type, mayFail bool) bool {
	if !v.AcceptsType(t) {
		if mayFail {
			return false
		}
		panic(interrAt(v.DefEA, "variable %s can not have type %s", v.Name, t))
	}
	v.ForceLvarType(t)
	return true
}

// SetFinalLvarType sets a validated type and marks v typed.
func (v *Lvar) SetFinalLvarType(t Type) {
	v.SetLvarType(t, false)
	v.Flags |= CvarType
}

// SetUserType sets a user-chosen type. It fails softly.
func (v *Lvar) SetUserType(t Type) bool {
	if !v.SetLvarType(t, true) {
		return false
	}
	v.Flags |= CvarType | CvarUtype
	return true
}

// SetWidth flags.
const (
	SvwInt   = 0x00 // integer value
	SvwFloat = 0x01 // floating point value
	SvwSoft  = 0x02 // fail softly instead of raising an internal error
)

// SetWidth changes the width of v and derives a type of that width.
func (v *Lvar) SetWidth(w int, svw int) bool {
	mayFail := svw&SvwSoft != 0
	var t Type
	switch {
	case svw&SvwFloat != 0:
		switch w {
		case 4, 8, 10, 16:
			t = FloatType(w)
		default:
			t = UnknownType(0)
		}
	case v.Type.IsInt():
		t = IntType(w, v.Type.Sign)
	default:
		t = UnknownType(w)
	}
	return v.SetLvarType(t, mayFail)
}

// Lvars is the variable list of a function. Expressions refer to its
// elements by index.
type Lvars []*Lvar

// FindInputLvar returns the index of the argument at loc of size bytes,
// or -1.
func (vs Lvars) FindInputLvar(loc VdLoc, size int) int { return vs.FindLvar(loc, size, 0) }

// FindStkvar returns the index of the stack variable at spoff, or -1.
func (vs Lvars) FindStkvar(spoff int64, width int) int {
	for i, v := range vs {
		if v.Loc.IsStack() && v.Loc.Off == spoff && v.Width == width {
			return i
		}
	}
	return -1
}

// Find returns the variable with locator ll, or nil.
func (vs Lvars) Find(ll LvarLocator) *Lvar {
	for _, v := range vs {
		if v.LvarLocator.Equal(ll) {
			return v
		}
	}
	return nil
}

// FindLvar returns the index of the variable at loc of the given width,
// defined in block defBlk (-1 matches any block), or -1.
func (vs Lvars) FindLvar(loc VdLoc, width, defBlk int) int {
	for i, v := range vs {
		if v.Loc.Equal(loc) && v.Width == width && (defBlk == -1 || v.DefBlk == defBlk) {
			return i
		}
	}
	return -1
}

// ByName returns the index of the variable called name, or -1.
func (vs Lvars) ByName(name string) int {
	for i, v := range vs {
		if v.Name == name {
			return i
		}
	}
	return -1
}

// MarkOverlaps sets CvarOver on every variable sharing storage with
// another one.
func (vs Lvars) MarkOverlaps() {
	for _, v := range vs {
		v.Flags &^= CvarOver
	}
	st := make([]storage, len(vs))
	for i, v := range vs {
		st[i] = storageOf(v.Loc, v.Width)
	}
	for i, v := range vs {
		if !v.Loc.IsDefined() {
			continue
		}
		for j := i + 1; j < len(vs); j++ {
			o := vs[j]
			if o.Loc.IsDefined() && st[i].intersects(&st[j]) {
				v.Flags |= CvarOver
				o.Flags |= CvarOver
			}
		}
	}
}
