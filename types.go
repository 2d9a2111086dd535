package ctree

import (
	"fmt"
	"strconv"
	"strings"
)

// TypeKind classifies a Type.
type TypeKind uint8

const (
	// TypeUnknown is a sized type whose meaning has not been inferred
	// (_BYTE, _WORD, _DWORD, ...). Expressions of this type are partial.
	TypeUnknown TypeKind = iota
	TypeVoid
	TypeBool
	TypeInt
	TypeFloat
	TypePtr
	TypeArray
	TypeFunc
	TypeStruct
	TypeUnion
)

// Type is the small type model the tree needs for expression typing. Full
// type information lives in the external type system, reached through a
// TypeOracle.
type Type struct {
	Kind   TypeKind
	Size   int  // in bytes; 0 for void, functions and unknown-size types
	Sign   Sign // TypeInt only
	Name   string
	Elem   *Type // pointee, array element, or function return type
	NElems int
	Args   []Type
}

func VoidType() Type            { return Type{Kind: TypeVoid} }
func BoolType() Type            { return Type{Kind: TypeBool, Size: 1} }
func UnknownType(size int) Type { return Type{Kind: TypeUnknown, Size: size} }
func FloatType(size int) Type   { return Type{Kind: TypeFloat, Size: size} }

func IntType(size int, sign Sign) Type {
	if sign == NoSign {
		sign = Signed
	}
	return Type{Kind: TypeInt, Size: size, Sign: sign}
}

// PtrTo returns a pointer to elem of the given pointer size.
func PtrTo(elem Type, ptrSize int) Type {
	e := elem
	return Type{Kind: TypePtr, Size: ptrSize, Elem: &e}
}

func ArrayOf(elem Type, n int) Type {
	e := elem
	return Type{Kind: TypeArray, Size: elem.Size * n, Elem: &e, NElems: n}
}

func FuncType(ret Type, args ...Type) Type {
	r := ret
	return Type{Kind: TypeFunc, Elem: &r, Args: args}
}

func StructType(name string, size int) Type { return Type{Kind: TypeStruct, Name: name, Size: size} }
func UnionType(name string, size int) Type  { return Type{Kind: TypeUnion, Name: name, Size: size} }

func (t Type) IsVoid() bool       { return t.Kind == TypeVoid }
func (t Type) IsBool() bool       { return t.Kind == TypeBool }
func (t Type) IsInt() bool        { return t.Kind == TypeInt }
func (t Type) IsFloat() bool      { return t.Kind == TypeFloat }
func (t Type) IsPtr() bool        { return t.Kind == TypePtr }
func (t Type) IsArray() bool      { return t.Kind == TypeArray }
func (t Type) IsFunc() bool       { return t.Kind == TypeFunc }
func (t Type) IsUnion() bool      { return t.Kind == TypeUnion }
func (t Type) IsUDT() bool        { return t.Kind == TypeStruct || t.Kind == TypeUnion }
func (t Type) IsPartial() bool    { return t.Kind == TypeUnknown }
func (t Type) IsUnsigned() bool   { return t.Kind == TypeInt && t.Sign == Unsigned }
func (t Type) IsPtrOrArray() bool { return t.Kind == TypePtr || t.Kind == TypeArray }

// IsScalar reports whether values of t fit the integer or float registers.
func (t Type) IsScalar() bool {
	switch t.Kind {
	case TypeUnknown, TypeBool, TypeInt, TypeFloat, TypePtr:
		return true
	}
	return false
}

// IsIntegral reports whether t behaves like an integer in arithmetic.
func (t Type) IsIntegral() bool {
	return t.Kind == TypeInt || t.Kind == TypeBool || t.Kind == TypeUnknown
}

// IsSmallUDT reports whether t is a structure or union small enough to be
// passed in a register.
func (t Type) IsSmallUDT() bool { return t.IsUDT() && t.Size > 0 && t.Size <= 8 }

// Pointed returns the type t points to, or false if t is not a pointer or
// array.
func (t Type) Pointed() (Type, bool) {
	if t.IsPtrOrArray() && t.Elem != nil {
		return *t.Elem, true
	}
	return Type{}, false
}

// Result returns the return type of a function or pointer to function.
func (t Type) Result() (Type, bool) {
	if t.Kind == TypePtr && t.Elem != nil {
		t = *t.Elem
	}
	if t.Kind == TypeFunc && t.Elem != nil {
		return *t.Elem, true
	}
	return Type{}, false
}

// IsDefined reports whether t carries any information at all.
func (t Type) IsDefined() bool { return t.Kind != TypeUnknown || t.Size != 0 }

// Equal reports structural equality.
func (t Type) Equal(u Type) bool {
	if t.Kind != u.Kind || t.Size != u.Size || t.Sign != u.Sign || t.Name != u.Name ||
		t.NElems != u.NElems || len(t.Args) != len(u.Args) {
		return false
	}
	if (t.Elem == nil) != (u.Elem == nil) {
		return false
	}
	if t.Elem != nil && !t.Elem.Equal(*u.Elem) {
		return false
	}
	for i := range t.Args {
		if !t.Args[i].Equal(u.Args[i]) {
			return false
		}
	}
	return true
}

var partialNames = map[int]string{1: "_BYTE", 2: "_WORD", 4: "_DWORD", 8: "_QWORD", 16: "_OWORD"}

func intName(size int, sign Sign) string {
	var base string
	switch size {
	case 1:
		base = "char"
	case 2:
		base = "__int16"
	case 4:
		base = "int"
	case 8:
		base = "__int64"
	case 16:
		base = "__int128"
	default:
		base = fmt.Sprintf("__int%d", size*8)
	}
	if sign == Unsigned {
		return "unsigned " + base
	}
	return base
}

func (t Type) String() string {
	switch t.Kind {
	case TypeUnknown:
		if n, ok := partialNames[t.Size]; ok {
			return n
		}
		if t.Size == 0 {
			return "?"
		}
		return fmt.Sprintf("_BYTE[%d]", t.Size)
	case TypeVoid:
		return "void"
	case TypeBool:
		return "bool"
	case TypeInt:
		if t.Name != "" {
			return t.Name
		}
		return intName(t.Size, t.Sign)
	case TypeFloat:
		switch t.Size {
		case 4:
			return "float"
		case 8:
			return "double"
		}
		return "long double"
	case TypePtr:
		if t.Elem == nil {
			return "void *"
		}
		if t.Elem.Kind == TypeFunc {
			return t.Elem.funcString("(*)")
		}
		s := t.Elem.String()
		if strings.HasSuffix(s, "*") {
			return s + "*"
		}
		return s + " *"
	case TypeArray:
		if t.Elem == nil {
			return fmt.Sprintf("?[%d]", t.NElems)
		}
		return fmt.Sprintf("%s[%d]", t.Elem.String(), t.NElems)
	case TypeFunc:
		return t.funcString("")
	case TypeStruct:
		return "struct " + t.Name
	case TypeUnion:
		return "union " + t.Name
	}
	return "?"
}

func (t Type) funcString(declarator string) string {
	ret := "void"
	if t.Elem != nil {
		ret = t.Elem.String()
	}
	args := make([]string, len(t.Args))
	for i, a := range t.Args {
		args[i] = a.String()
	}
	if declarator != "" {
		return fmt.Sprintf("%s %s(%s)", ret, declarator, strings.Join(args, ", "))
	}
	return fmt.Sprintf("%s (%s)", ret, strings.Join(args, ", "))
}

// ParseType reads the subset of C type names produced by String for
// scalar, pointer, array and named structure types. Structures carry their
// size after a colon ("struct S:16") since nothing else could supply it.
func ParseType(s string, ptrSize int) (Type, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Type{}, fmt.Errorf("empty type name")
	}
	if strings.HasSuffix(s, "*") {
		inner, err := ParseType(strings.TrimSuffix(s, "*"), ptrSize)
		if err != nil {
			return Type{}, err
		}
		return PtrTo(inner, ptrSize), nil
	}
	if strings.HasSuffix(s, "]") {
		open := strings.LastIndexByte(s, '[')
		if open < 0 {
			return Type{}, fmt.Errorf("malformed array type %q", s)
		}
		n, err := strconv.Atoi(s[open+1 : len(s)-1])
		if err != nil {
			return Type{}, fmt.Errorf("malformed array bound in %q", s)
		}
		elem, err := ParseType(s[:open], ptrSize)
		if err != nil {
			return Type{}, err
		}
		return ArrayOf(elem, n), nil
	}
	for size, name := range partialNames {
		if s == name {
			return UnknownType(size), nil
		}
	}
	switch s {
	case "void":
		return VoidType(), nil
	case "bool":
		return BoolType(), nil
	case "float":
		return FloatType(4), nil
	case "double":
		return FloatType(8), nil
	case "long double":
		return FloatType(10), nil
	}
	if rest, ok := strings.CutPrefix(s, "struct "); ok {
		return parseUDT(TypeStruct, rest)
	}
	if rest, ok := strings.CutPrefix(s, "union "); ok {
		return parseUDT(TypeUnion, rest)
	}
	sign := Signed
	if rest, ok := strings.CutPrefix(s, "unsigned "); ok {
		sign = Unsigned
		s = rest
	}
	for _, size := range []int{1, 2, 4, 8, 16} {
		if intName(size, Signed) == s {
			return IntType(size, sign), nil
		}
	}
	switch s {
	case "short":
		return IntType(2, sign), nil
	case "__int32", "long":
		return IntType(4, sign), nil
	case "__int8":
		return IntType(1, sign), nil
	}
	return Type{}, fmt.Errorf("unknown type name %q", s)
}

func parseUDT(kind TypeKind, rest string) (Type, error) {
	name, sizeText, found := strings.Cut(rest, ":")
	size := 0
	if found {
		n, err := strconv.Atoi(sizeText)
		if err != nil {
			return Type{}, fmt.Errorf("malformed size in %q", rest)
		}
		size = n
	}
	return Type{Kind: kind, Name: strings.TrimSpace(name), Size: size}, nil
}

// TypeOracle answers the type questions the tree cannot answer itself.
type TypeOracle interface {
	// PointerSize is the size of a data pointer in bytes.
	PointerSize() int
	// ObjectType returns the type of the global object at ea.
	ObjectType(ea uint64) (Type, bool)
	// MemberType returns the type of the member of udt at offset, where
	// offset is a member number for unions.
	MemberType(udt Type, offset uint64) (Type, bool)
}

// FlatTypes is a TypeOracle backed by plain maps.
type FlatTypes struct {
	PtrSize int
	Objects map[uint64]Type
	// Members maps a structure or union name to its members by offset.
	Members map[string]map[uint64]Type
}

func (ft *FlatTypes) PointerSize() int {
	if ft == nil || ft.PtrSize == 0 {
		return 8
	}
	return ft.PtrSize
}

func (ft *FlatTypes) ObjectType(ea uint64) (Type, bool) {
	if ft == nil {
		return Type{}, false
	}
	t, ok := ft.Objects[ea]
	return t, ok
}

func (ft *FlatTypes) MemberType(udt Type, offset uint64) (Type, bool) {
	if ft == nil || !udt.IsUDT() {
		return Type{}, false
	}
	t, ok := ft.Members[udt.Name][offset]
	return t, ok
}

// TypeCtx is what type computation needs to see outside the tree: the
// oracle and the owning function's variables.
type TypeCtx struct {
	Oracle TypeOracle
	Vars   Lvars
}

func (tc *TypeCtx) ptrSize() int {
	if tc == nil || tc.Oracle == nil {
		return 8
	}
	return tc.Oracle.PointerSize()
}
